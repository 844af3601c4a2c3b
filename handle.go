package multicam

import (
	"sync/atomic"

	"github.com/lanikai/multicam/internal/camera"
	"github.com/lanikai/multicam/internal/media"
	"github.com/lanikai/multicam/internal/worker"
)

// Status is the coarse state of a source, as seen outside its worker.
type Status int32

const (
	Idle Status = iota
	Streaming
	Stopping
	Stopped
	Disconnected
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Disconnected:
		return "disconnected"
	}
	return "unknown"
}

// A SourceHandle owns one source: the opened device, its latest frame slot
// and the worker that fills the slot.
type SourceHandle struct {
	Info   camera.DeviceInfo
	Source camera.Source
	Slot   *media.Slot
	Worker *worker.Worker

	status int32

	// Set when the source failed to configure or start.
	err error
}

func (h *SourceHandle) Name() string {
	return h.Info.Name()
}

func (h *SourceHandle) Status() Status {
	return Status(atomic.LoadInt32(&h.status))
}

func (h *SourceHandle) setStatus(s Status) {
	atomic.StoreInt32(&h.status, int32(s))
}

// transition moves from one status to another, and reports whether the
// handle was in the expected status.
func (h *SourceHandle) transition(from, to Status) bool {
	return atomic.CompareAndSwapInt32(&h.status, int32(from), int32(to))
}

// Err returns why the source is not streaming, if known.
func (h *SourceHandle) Err() error {
	if h.err != nil {
		return h.err
	}
	if h.Worker != nil {
		return h.Worker.Err()
	}
	return nil
}

// An Event reports a source that stopped without being asked to.
type Event struct {
	Handle *SourceHandle
	Err    error
}
