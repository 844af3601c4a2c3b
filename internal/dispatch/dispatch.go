// Package dispatch runs the single command loop of the process: it refreshes
// the display with the latest composite and serves save and quit requests
// coming from the display, the terminal or the live view.
package dispatch

import (
	"context"
	"image"
	"time"

	"github.com/lanikai/multicam"
	"github.com/lanikai/multicam/internal/display"
	"github.com/lanikai/multicam/internal/logging"
)

var log = logging.DefaultLogger.WithTag("dispatch")

const (
	DefaultRefresh  = 50 * time.Millisecond
	DefaultPollWait = time.Millisecond
)

// Target is what the dispatcher drives; *multicam.Pipeline implements it.
type Target interface {
	Snapshot() *image.RGBA
	Save() ([]string, error)
	Events() <-chan multicam.Event
	Streaming() int
	Shutdown() error
}

type Dispatcher struct {
	Target Target

	// Defaults to a headless display.
	Display display.Display

	// Commands from outside the display, e.g. the terminal or the live view.
	Inputs []<-chan display.Command

	// Called with every refreshed composite, on the dispatcher goroutine.
	Publish func(img *image.RGBA)

	// Called after every save.
	OnSave func(paths []string, err error)

	// Composite refresh period, and the longest wait for display input.
	Refresh  time.Duration
	PollWait time.Duration
}

// Run serves commands until a quit request, ctx cancellation, or the loss of
// every source. It shuts the target down before returning. The result is nil
// after a requested stop and multicam.ErrAllSourcesLost when no source is
// left.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.Display == nil {
		d.Display, _ = display.Open("none", "")
	}
	refresh := d.Refresh
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	wait := d.PollWait
	if wait <= 0 {
		wait = DefaultPollWait
	}

	done := make(chan struct{})
	defer close(done)
	commands := merge(done, d.Inputs)
	events := d.Target.Events()

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			log.Info("Interrupted")
			return d.shutdown(nil)
		case ev := <-events:
			log.Warn("%s disconnected: %v", ev.Handle.Name(), ev.Err)
			n := d.Target.Streaming()
			if n == 0 {
				log.Error("All sources lost")
				return d.shutdown(multicam.ErrAllSourcesLost)
			}
			log.Info("%d sources still streaming", n)
			continue
		case cmd := <-commands:
			if d.handle(cmd) {
				return d.shutdown(nil)
			}
			continue
		default:
		}

		if now := time.Now(); now.Sub(last) >= refresh {
			last = now
			d.render()
		}
		if d.handle(d.Display.Poll(wait)) {
			return d.shutdown(nil)
		}
	}
}

func (d *Dispatcher) render() {
	img := d.Target.Snapshot()
	if img == nil {
		return
	}
	if err := d.Display.Show(img); err != nil {
		log.Warn("Show: %v", err)
	}
	if d.Publish != nil {
		d.Publish(img)
	}
}

// handle runs one command, and reports whether the loop should end.
func (d *Dispatcher) handle(cmd display.Command) bool {
	switch cmd {
	case display.Quit:
		log.Info("Quit requested")
		return true
	case display.Save:
		start := time.Now()
		paths, err := d.Target.Save()
		if err != nil {
			log.Error("Save failed: %v", err)
		} else {
			log.Info("Saved %d files in %v", len(paths), time.Since(start))
		}
		if d.OnSave != nil {
			d.OnSave(paths, err)
		}
	}
	return false
}

func (d *Dispatcher) shutdown(result error) error {
	if err := d.Target.Shutdown(); err != nil {
		log.Warn("Shutdown: %v", err)
	}
	if err := d.Display.Close(); err != nil {
		log.Warn("Close display: %v", err)
	}
	return result
}

// merge forwards every input into one channel until done is closed.
func merge(done <-chan struct{}, inputs []<-chan display.Command) <-chan display.Command {
	out := make(chan display.Command)
	for _, in := range inputs {
		go func(in <-chan display.Command) {
			for {
				select {
				case <-done:
					return
				case cmd, ok := <-in:
					if !ok {
						return
					}
					select {
					case out <- cmd:
					case <-done:
						return
					}
				}
			}
		}(in)
	}
	return out
}
