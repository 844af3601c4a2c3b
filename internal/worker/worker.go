// Package worker implements the per-source acquisition loop: pull a buffer,
// decode it, publish the FrameSet in the source's latest-frame slot, and
// hand the buffer back to the device.
package worker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/multicam/internal/camera"
	"github.com/lanikai/multicam/internal/decode"
	"github.com/lanikai/multicam/internal/logging"
	"github.com/lanikai/multicam/internal/media"
)

// State of a worker. Transitions only go forward:
//
//	Idle -> Streaming -> Draining -> Stopped
//
// A worker whose source fails goes from Streaming straight to Stopped.
type State int32

const (
	Idle State = iota
	Streaming
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	}
	return "unknown"
}

const (
	DefaultTimeout     = 2 * time.Second
	DefaultMaxTimeouts = 10

	// Consecutive device errors (other than timeouts) tolerated before the
	// source is given up.
	DefaultMaxErrors = 3
)

var ErrStarted = errors.New("worker: already started")

type Config struct {
	// FrameBufferPool capacity of the source.
	Buffers int

	// Bound on a single pull, and therefore on shutdown latency.
	Timeout time.Duration

	// Consecutive timeouts before the source counts as disconnected.
	MaxTimeouts int

	MaxErrors int

	// Called with every filled buffer before it is decoded, while the
	// worker still owns it. Must not retain the buffer.
	OnBuffer func(buf *media.Buffer)

	// Called with every decoded FrameSet after it is published.
	OnFrame func(set *media.FrameSet)
}

func (cfg Config) withDefaults() Config {
	if cfg.Buffers <= 0 {
		cfg.Buffers = media.DefaultPoolSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTimeouts <= 0 {
		cfg.MaxTimeouts = DefaultMaxTimeouts
	}
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = DefaultMaxErrors
	}
	return cfg
}

// Stats are counters of a running or finished worker.
type Stats struct {
	Frames       uint64
	Timeouts     uint64
	DecodeErrors uint64

	// Frames lost on the device side, if the source counts them.
	Dropped uint64
}

// A Worker is the only consumer of its source. It is the only writer of its
// slot.
type Worker struct {
	src  camera.Source
	slot *media.Slot
	cfg  Config
	log  *logging.Logger

	state   int32
	loop    *media.Loop
	started chan error
	done    chan struct{}

	startOnce sync.Once

	frames       uint64
	timeouts     uint64
	decodeErrors uint64
}

func New(src camera.Source, slot *media.Slot, cfg Config) *Worker {
	w := &Worker{
		src:     src,
		slot:    slot,
		cfg:     cfg.withDefaults(),
		log:     logging.DefaultLogger.WithTag("worker/" + src.Info().Serial),
		started: make(chan error, 1),
		done:    make(chan struct{}),
	}
	w.loop = media.NewLoop(func(quit <-chan struct{}) error {
		return w.run(quit, w.started)
	})
	return w
}

func (w *Worker) Source() camera.Source {
	return w.src
}

func (w *Worker) State() State {
	return State(atomic.LoadInt32(&w.state))
}

func (w *Worker) setState(s State) {
	old := State(atomic.SwapInt32(&w.state, int32(s)))
	if old != s {
		w.log.Debug("%s -> %s", old, s)
	}
}

// Start opens the stream and begins pulling in a new goroutine. It returns
// once the source is streaming, or with the error that prevented it.
func (w *Worker) Start() error {
	err := ErrStarted
	w.startOnce.Do(func() {
		w.loop.Start()
		err = <-w.started
	})
	return err
}

// Stop asks the worker to finish its current pull and waits until the
// stream is stopped. It returns the error that ended the worker, if any.
// Stop is idempotent.
func (w *Worker) Stop() error {
	w.startOnce.Do(func() {
		// Never started: Start becomes a no-op.
		close(w.done)
		w.setState(Stopped)
	})
	w.loop.Stop()
	return w.Err()
}

// Done is closed when the worker has stopped, by request or on its own.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Err returns the error that stopped the worker, or nil after a requested
// stop.
func (w *Worker) Err() error {
	return w.loop.Err()
}

func (w *Worker) Stats() Stats {
	s := Stats{
		Frames:       atomic.LoadUint64(&w.frames),
		Timeouts:     atomic.LoadUint64(&w.timeouts),
		DecodeErrors: atomic.LoadUint64(&w.decodeErrors),
	}
	if st, ok := w.src.(camera.Stats); ok {
		s.Dropped = st.Dropped()
	}
	return s
}

func (w *Worker) run(quit <-chan struct{}, started chan<- error) error {
	defer close(w.done)
	defer w.setState(Stopped)

	begun := false
	err := camera.WithStream(w.src, w.cfg.Buffers, func(src camera.Source) error {
		begun = true
		w.setState(Streaming)
		started <- nil
		return w.pull(quit, src)
	})
	if !begun {
		w.log.Error("Failed to start stream: %v", err)
		started <- err
		return err
	}
	if err != nil {
		w.log.Error("Stopped: %v", err)
	} else {
		w.log.Info("Stopped after %d frames", atomic.LoadUint64(&w.frames))
	}
	return err
}

func (w *Worker) pull(quit <-chan struct{}, src camera.Source) error {
	serial := src.Info().Serial
	timeouts, failures := 0, 0
	for {
		select {
		case <-quit:
			w.setState(Draining)
			return nil
		default:
		}

		err := camera.Consume(src, w.cfg.Timeout, func(buf *media.Buffer) error {
			if w.cfg.OnBuffer != nil {
				w.cfg.OnBuffer(buf)
			}
			seq := atomic.AddUint64(&w.frames, 1)
			set, err := decode.Decode(serial, seq, buf)
			if err != nil {
				atomic.AddUint64(&w.decodeErrors, 1)
				w.log.Warn("Frame %d: %v", buf.FrameID, err)
				return nil
			}
			w.slot.Store(set)
			if w.cfg.OnFrame != nil {
				w.cfg.OnFrame(set)
			}
			return nil
		})

		switch {
		case err == nil:
			timeouts, failures = 0, 0
		case camera.IsTimeout(err):
			atomic.AddUint64(&w.timeouts, 1)
			timeouts++
			w.log.Debug("Timed out waiting for frame (%d of %d)", timeouts, w.cfg.MaxTimeouts)
			if timeouts >= w.cfg.MaxTimeouts {
				return errors.Wrapf(camera.ErrDisconnected, "%d consecutive timeouts", timeouts)
			}
		case camera.IsDisconnected(err):
			return err
		default:
			failures++
			w.log.Warn("Acquisition error (%d of %d): %v", failures, w.cfg.MaxErrors, err)
			if failures >= w.cfg.MaxErrors {
				return err
			}
		}
	}
}
