package media

import (
	"sync"
)

// A LoopFunc is a long-running function, e.g. a device read loop. It should
// terminate promptly when the quit channel is closed.
type LoopFunc func(quit <-chan struct{}) error

// A Loop wraps a long-running function that must only run in a single
// goroutine at any given time. Start launches it unless it is already
// running; Stop closes the quit channel and waits for the function to return.
type Loop struct {
	run LoopFunc

	// Closed when Stop() is requested, to trigger run loop exit.
	quit chan struct{}

	// Closed when run loop actually terminates.
	terminated chan struct{}

	// Result of the last run.
	err error

	sync.Mutex
}

func NewLoop(run LoopFunc) *Loop {
	return &Loop{run: run}
}

// Start runs the loop function in a new goroutine. It returns false if the
// loop is already running.
func (loop *Loop) Start() bool {
	loop.Lock()
	defer loop.Unlock()

	if loop.quit != nil {
		select {
		case <-loop.terminated:
			// Terminated on its own; allow a restart.
		default:
			return false
		}
	}
	loop.quit = make(chan struct{})
	loop.terminated = make(chan struct{})
	loop.err = nil

	quit, terminated := loop.quit, loop.terminated
	go func() {
		err := loop.run(quit)
		loop.Lock()
		loop.err = err
		loop.Unlock()
		// Close terminated channel to unblock Stop().
		close(terminated)
	}()
	return true
}

// Stop asks the loop to quit and waits until it has. Stopping a loop that is
// not running is a no-op.
func (loop *Loop) Stop() error {
	loop.Lock()
	quit, terminated := loop.quit, loop.terminated
	loop.quit, loop.terminated = nil, nil
	loop.Unlock()

	if quit == nil {
		return nil
	}
	close(quit)
	<-terminated
	return loop.Err()
}

// Done is closed when the current run terminates on its own or is stopped.
// It returns nil if the loop was never started.
func (loop *Loop) Done() <-chan struct{} {
	loop.Lock()
	defer loop.Unlock()
	return loop.terminated
}

// Err returns the error the loop function last returned.
func (loop *Loop) Err() error {
	loop.Lock()
	defer loop.Unlock()
	return loop.err
}
