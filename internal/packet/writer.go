package packet

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var networkOrder = binary.BigEndian

var ErrTooLong = errors.New("packet: string too long")

// Writer appends fields to a growing byte slice.
type Writer struct {
	buffer []byte
}

// NewWriter writes into buffer's spare capacity, starting at length zero.
func NewWriter(buffer []byte) *Writer {
	return &Writer{buffer[:0]}
}

func NewWriterSize(n int) *Writer {
	return &Writer{make([]byte, 0, n)}
}

func (w *Writer) WriteByte(v byte) error {
	w.buffer = append(w.buffer, v)
	return nil
}

func (w *Writer) WriteUint16(v uint16) {
	w.buffer = append(w.buffer, 0, 0)
	networkOrder.PutUint16(w.buffer[len(w.buffer)-2:], v)
}

func (w *Writer) WriteUint32(v uint32) {
	w.buffer = append(w.buffer, 0, 0, 0, 0)
	networkOrder.PutUint32(w.buffer[len(w.buffer)-4:], v)
}

func (w *Writer) WriteUint64(v uint64) {
	w.buffer = append(w.buffer, 0, 0, 0, 0, 0, 0, 0, 0)
	networkOrder.PutUint64(w.buffer[len(w.buffer)-8:], v)
}

func (w *Writer) WriteSlice(p []byte) {
	w.buffer = append(w.buffer, p...)
}

// WriteString8 writes s preceded by its one-byte length.
func (w *Writer) WriteString8(s string) error {
	if len(s) > 0xff {
		return errors.Wrapf(ErrTooLong, "%d bytes", len(s))
	}
	w.buffer = append(w.buffer, byte(len(s)))
	w.buffer = append(w.buffer, s...)
	return nil
}

// Length returns the number of bytes written so far.
func (w *Writer) Length() int {
	return len(w.buffer)
}

// Bytes returns the bytes written so far.
func (w *Writer) Bytes() []byte {
	return w.buffer
}

func (w *Writer) Reset() {
	w.buffer = w.buffer[:0]
}
