package camera

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/lanikai/multicam/internal/media"
)

/*
Queue models a device's circular buffer pool for drivers that produce frames
in their own goroutine. The producer fills free pool buffers and delivers
them; the consumer pulls them with Next. When every buffer is in flight the
frame is dropped, as a camera does when the host does not requeue fast
enough.
*/
type Queue struct {
	pool  *media.Pool
	ready chan *media.Buffer

	failOnce sync.Once
	failed   chan struct{}
	err      error

	// Guards sending to ready against Close draining it.
	mu        sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}

	dropped uint64
}

// NewQueue allocates n buffers of bufSize bytes.
func NewQueue(n, bufSize int) *Queue {
	if n <= 0 {
		n = media.DefaultPoolSize
	}
	return &Queue{
		pool:   media.NewPool(n, bufSize),
		ready:  make(chan *media.Buffer, n),
		failed: make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// Pool returns the underlying buffer pool.
func (q *Queue) Pool() *media.Pool {
	return q.pool
}

// Deliver fills a free buffer and queues it for Next. It returns false if
// the frame was dropped because no buffer was free, or fill failed.
func (q *Queue) Deliver(fill func(*media.Buffer) error) bool {
	select {
	case <-q.closed:
		return false
	default:
	}

	buf := q.pool.TryAcquire()
	if buf == nil {
		atomic.AddUint64(&q.dropped, 1)
		log.Debug("camera.Queue: no free buffer, frame dropped")
		return false
	}
	if err := fill(buf); err != nil {
		buf.Release()
		log.Warn("camera.Queue: fill failed: %v", err)
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	select {
	case <-q.closed:
		buf.Release()
		return false
	default:
	}
	// Never blocks: at most pool.Cap() buffers exist.
	q.ready <- buf
	return true
}

// Fail records a terminal error. Buffers already queued are still handed
// out; after that Next returns err.
func (q *Queue) Fail(err error) {
	q.failOnce.Do(func() {
		q.err = err
		close(q.failed)
	})
}

// Next returns the oldest filled buffer, waiting at most timeout.
func (q *Queue) Next(timeout time.Duration) (*media.Buffer, error) {
	select {
	case buf := <-q.ready:
		return buf, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case buf := <-q.ready:
		return buf, nil
	case <-q.failed:
		return nil, q.err
	case <-q.closed:
		return nil, ErrNotStarted
	case <-timer.C:
		return nil, ErrAcquisitionTimeout
	}
}

// Close discards queued buffers and wakes up a blocked Next. Buffers held
// by the consumer may still be released afterwards.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		close(q.closed)
		q.mu.Unlock()
		for {
			select {
			case buf := <-q.ready:
				buf.Release()
			default:
				q.pool.Close()
				return
			}
		}
	})
}

// Dropped counts frames lost because no buffer was free.
func (q *Queue) Dropped() uint64 {
	return atomic.LoadUint64(&q.dropped)
}
