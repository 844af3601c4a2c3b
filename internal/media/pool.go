package media

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPoolSize matches the usual vendor SDK default stream buffer count.
const DefaultPoolSize = 10

// Pool is a bounded set of reusable buffers. At most Cap() buffers are lent
// out at any time; Acquire blocks while all of them are in flight.
type Pool struct {
	free chan *block

	size     int
	inFlight int32

	closeOnce sync.Once
	closed    chan struct{}
}

// NewPool allocates n buffers of bufSize bytes each.
func NewPool(n, bufSize int) *Pool {
	if n <= 0 {
		n = DefaultPoolSize
	}
	p := &Pool{
		free:   make(chan *block, n),
		size:   n,
		closed: make(chan struct{}),
	}
	for i := 0; i < n; i++ {
		p.free <- &block{data: make([]byte, bufSize)}
	}
	return p
}

// Cap returns the number of buffers in the pool.
func (p *Pool) Cap() int {
	return p.size
}

// InFlight returns the number of buffers currently lent out.
func (p *Pool) InFlight() int {
	return int(atomic.LoadInt32(&p.inFlight))
}

// Acquire takes a free buffer, blocking until one is released, the context
// is done, or the pool is closed.
func (p *Pool) Acquire(ctx context.Context) (*Buffer, error) {
	select {
	case <-p.closed:
		return nil, ErrPoolClosed
	default:
	}

	select {
	case b := <-p.free:
		return p.lend(b), nil
	case <-p.closed:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AcquireTimeout is Acquire with a deadline. It returns
// context.DeadlineExceeded when no buffer was freed in time.
func (p *Pool) AcquireTimeout(timeout time.Duration) (*Buffer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return p.Acquire(ctx)
}

// TryAcquire returns a free buffer, or nil if all are in flight.
func (p *Pool) TryAcquire() *Buffer {
	select {
	case b := <-p.free:
		return p.lend(b)
	default:
		return nil
	}
}

// With lends a buffer to fn and takes it back when fn returns, whatever the
// outcome.
func (p *Pool) With(ctx context.Context, fn func(*Buffer) error) error {
	b, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer b.Release()
	return fn(b)
}

// Close wakes up blocked Acquire calls with ErrPoolClosed. Buffers still in
// flight may be released afterwards.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
}

func (p *Pool) lend(b *block) *Buffer {
	atomic.AddInt32(&p.inFlight, 1)
	return &Buffer{data: b.data, pool: p, block: b}
}

func (p *Pool) put(b *block) {
	atomic.AddInt32(&p.inFlight, -1)
	// Never blocks: the channel has room for every buffer of the pool.
	p.free <- b
}
