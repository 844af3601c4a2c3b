package media

import (
	"sync/atomic"
	"time"
)

/*
A Buffer is one lease of a Pool's storage, held by a single consumer. Every
Acquire returns a new Buffer, so a lease that has been released stays spent
even after its storage is lent again. A camera backend fills the buffer and
hands it to the acquisition worker, which must call Release() exactly once
when it has finished reading. The preferred way
to consume a buffer is through a scoped helper (Pool.With, camera.Consume)
that releases on every exit path.

Example usage:

	buf, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer buf.Release()
	data := buf.Bytes()
	// Decode data...

*/
type Buffer struct {
	Width     int
	Height    int
	Format    PixelFormat
	FrameID   uint64
	Timestamp time.Time
	Chunks    map[string]float64

	data []byte
	n    int

	pool  *Pool
	block *block

	// Set once by Release.
	released int32
}

// block is the reusable storage behind successive leases.
type block struct {
	data []byte
}

// Bytes returns the filled part of the buffer.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.n]
}

// Data returns the whole backing storage, for producers to fill in place.
// Call SetLen afterwards.
func (b *Buffer) Data() []byte {
	return b.data
}

// SetLen marks the first n bytes of Data() as filled.
func (b *Buffer) SetLen(n int) error {
	if n > len(b.data) {
		return ErrBufferTooBig
	}
	b.n = n
	return nil
}

// Fill copies p into the buffer.
func (b *Buffer) Fill(p []byte) error {
	if len(p) > len(b.data) {
		return ErrBufferTooBig
	}
	b.n = copy(b.data, p)
	return nil
}

// Cap returns the size of the backing storage.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Release returns the buffer's storage to its pool. Releasing a lease a
// second time fails with ErrDoubleRelease and leaves the pool untouched,
// even if the storage has meanwhile been lent to another consumer.
func (b *Buffer) Release() error {
	if b == nil {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&b.released, 0, 1) {
		return ErrDoubleRelease
	}
	b.data = nil
	b.n = 0
	b.pool.put(b.block)
	return nil
}
