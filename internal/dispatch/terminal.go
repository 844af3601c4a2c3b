package dispatch

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/lanikai/multicam/internal/display"
)

// Terminal reads one command per line from r. The channel is closed at the
// end of input, or at the next command once ctx is done. A Read blocked on
// r is not interrupted.
func Terminal(ctx context.Context, r io.Reader) <-chan display.Command {
	ch := make(chan display.Command)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := scanner.Text()
			cmd := display.ParseCommand(line)
			if cmd == display.None {
				if strings.TrimSpace(line) != "" {
					log.Warn("Unknown command %q (use 's' to save, 'q' to quit)", line)
				}
				continue
			}
			select {
			case ch <- cmd:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Debug("Terminal: %v", err)
		}
	}()
	return ch
}
