package multicam

import "github.com/pkg/errors"

var (
	// No source spec was given, or every enumerated source failed to open.
	ErrNoSources = errors.New("multicam: no sources")

	// Every source has stopped streaming.
	ErrAllSourcesLost = errors.New("multicam: all sources lost")
)

// A StartError lists the sources whose worker did not reach Streaming.
type StartError struct {
	Failed map[string]error
}

func (e *StartError) Error() string {
	msg := "multicam: sources failed to start:"
	for _, name := range sortedKeys(e.Failed) {
		msg += " " + name + " (" + e.Failed[name].Error() + ")"
	}
	return msg
}
