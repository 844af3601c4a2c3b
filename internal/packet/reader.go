// Package packet reads and writes big-endian binary headers.
package packet

import (
	"github.com/pkg/errors"
)

var ErrShort = errors.New("packet: short buffer")

// Reader decodes fields from a byte slice. The first out-of-bounds read sets
// Err; later reads return zero values.
type Reader struct {
	buffer []byte
	offset int
	err    error
}

func NewReader(buffer []byte) *Reader {
	return &Reader{buffer: buffer}
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error {
	return r.err
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.err = errors.Wrapf(ErrShort, "%d bytes remaining, %d needed at offset %d", r.Remaining(), n, r.offset)
		return nil
	}
	v := r.buffer[r.offset : r.offset+n]
	r.offset += n
	return v
}

func (r *Reader) ReadByte() byte {
	if p := r.take(1); p != nil {
		return p[0]
	}
	return 0
}

func (r *Reader) ReadUint16() uint16 {
	if p := r.take(2); p != nil {
		return networkOrder.Uint16(p)
	}
	return 0
}

func (r *Reader) ReadUint32() uint32 {
	if p := r.take(4); p != nil {
		return networkOrder.Uint32(p)
	}
	return 0
}

func (r *Reader) ReadUint64() uint64 {
	if p := r.take(8); p != nil {
		return networkOrder.Uint64(p)
	}
	return 0
}

// ReadSlice returns the next n bytes without copying.
func (r *Reader) ReadSlice(n int) []byte {
	return r.take(n)
}

// ReadString8 reads a string preceded by its one-byte length.
func (r *Reader) ReadString8() string {
	n := int(r.ReadByte())
	return string(r.take(n))
}

func (r *Reader) ReadRemaining() []byte {
	return r.take(r.Remaining())
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buffer) - r.offset
}
