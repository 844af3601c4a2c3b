// Package multicast relays camera buffers to a UDP multicast group, and
// listens to such a relay as a read-only camera.
package multicast

import (
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/multicam/internal/logging"
	"github.com/lanikai/multicam/internal/media"
	"github.com/lanikai/multicam/internal/packet"
)

var log = logging.DefaultLogger.WithTag("multicast")

const (
	magic = 0x4d434631 // "MCF1"

	// Payload bytes per datagram, sized to fit a standard Ethernet MTU.
	DefaultMaxPayload = 1400

	// Largest buffer a listener reassembles.
	MaxFrameBytes = 256 << 20
)

var (
	ErrBadMagic  = errors.New("multicast: not a frame datagram")
	ErrMalformed = errors.New("multicast: malformed datagram")
)

// Header precedes the payload of every datagram. A buffer is split across
// Count datagrams, together carrying Total bytes; each holds the bytes from
// Offset onwards. Epoch identifies one run of a sender, whose Seq numbers
// restart at 1.
type Header struct {
	Epoch     uint64
	Serial    string
	Model     string
	Seq       uint64
	FrameID   uint64
	Timestamp time.Time
	Width     int
	Height    int
	Format    media.PixelFormat

	Index  uint16
	Count  uint16
	Total  uint32
	Offset uint32

	// Chunk data, carried by the first datagram only.
	Chunks map[string]float64
}

func (h *Header) marshal(w *packet.Writer) error {
	w.WriteUint32(magic)
	w.WriteUint64(h.Epoch)
	if err := w.WriteString8(h.Serial); err != nil {
		return err
	}
	if err := w.WriteString8(h.Model); err != nil {
		return err
	}
	w.WriteUint64(h.Seq)
	w.WriteUint64(h.FrameID)
	w.WriteUint64(uint64(h.Timestamp.UnixNano()))
	w.WriteUint32(uint32(h.Width))
	w.WriteUint32(uint32(h.Height))
	if err := w.WriteString8(string(h.Format)); err != nil {
		return err
	}
	w.WriteUint16(h.Index)
	w.WriteUint16(h.Count)
	w.WriteUint32(h.Total)
	w.WriteUint32(h.Offset)

	if h.Index != 0 {
		w.WriteByte(0)
		return nil
	}
	names := make([]string, 0, len(h.Chunks))
	for name := range h.Chunks {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0xff {
		names = names[:0xff]
	}
	w.WriteByte(byte(len(names)))
	for _, name := range names {
		if err := w.WriteString8(name); err != nil {
			return err
		}
		w.WriteUint64(math.Float64bits(h.Chunks[name]))
	}
	return nil
}

// Encode splits a buffer into datagrams of at most maxPayload pixel bytes.
func Encode(h Header, data []byte, maxPayload int) ([][]byte, error) {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	count := (len(data) + maxPayload - 1) / maxPayload
	if count == 0 {
		count = 1
	}
	if count > math.MaxUint16 {
		return nil, errors.Errorf("multicast: %d bytes need %d datagrams", len(data), count)
	}

	h.Count = uint16(count)
	h.Total = uint32(len(data))
	datagrams := make([][]byte, count)
	for i := 0; i < count; i++ {
		start := i * maxPayload
		end := start + maxPayload
		if end > len(data) {
			end = len(data)
		}
		h.Index = uint16(i)
		h.Offset = uint32(start)

		w := packet.NewWriterSize(64 + end - start)
		if err := h.marshal(w); err != nil {
			return nil, err
		}
		w.WriteSlice(data[start:end])
		datagrams[i] = w.Bytes()
	}
	return datagrams, nil
}

// Decode parses one datagram. The returned payload aliases p.
func Decode(p []byte) (Header, []byte, error) {
	var h Header
	r := packet.NewReader(p)
	if r.ReadUint32() != magic {
		return h, nil, ErrBadMagic
	}
	h.Epoch = r.ReadUint64()
	h.Serial = r.ReadString8()
	h.Model = r.ReadString8()
	h.Seq = r.ReadUint64()
	h.FrameID = r.ReadUint64()
	h.Timestamp = time.Unix(0, int64(r.ReadUint64()))
	h.Width = int(r.ReadUint32())
	h.Height = int(r.ReadUint32())
	h.Format = media.PixelFormat(r.ReadString8())
	h.Index = r.ReadUint16()
	h.Count = r.ReadUint16()
	h.Total = r.ReadUint32()
	h.Offset = r.ReadUint32()

	n := int(r.ReadByte())
	for i := 0; i < n; i++ {
		name := r.ReadString8()
		v := math.Float64frombits(r.ReadUint64())
		if h.Chunks == nil {
			h.Chunks = make(map[string]float64, n)
		}
		h.Chunks[name] = v
	}

	payload := r.ReadRemaining()
	if err := r.Err(); err != nil {
		return h, nil, errors.Wrap(ErrMalformed, err.Error())
	}
	if h.Count == 0 || h.Index >= h.Count || uint64(h.Offset)+uint64(len(payload)) > uint64(h.Total) {
		return h, nil, ErrMalformed
	}
	if err := h.checkSize(); err != nil {
		return h, nil, err
	}
	return h, payload, nil
}

// checkSize bounds Total before anyone allocates it: a known format must
// carry exactly one frame, and no frame exceeds what Count datagrams or
// MaxFrameBytes allow.
func (h *Header) checkSize() error {
	if h.Total > MaxFrameBytes || uint64(h.Total) > uint64(h.Count)*maxDatagram {
		return errors.Wrapf(ErrMalformed, "%d bytes in %d datagrams", h.Total, h.Count)
	}
	if !h.Format.Known() {
		return nil
	}
	size, err := h.Format.CheckedFrameSize(h.Width, h.Height)
	if err != nil {
		return errors.Wrap(ErrMalformed, err.Error())
	}
	if uint64(size) != uint64(h.Total) {
		return errors.Wrapf(ErrMalformed, "%s %dx%d is %d bytes, header says %d",
			h.Format, h.Width, h.Height, size, h.Total)
	}
	return nil
}

// A Frame is a reassembled buffer.
type Frame struct {
	Header
	Data []byte
}

// Assembler reassembles the datagrams of one source. Only the newest frame
// is kept in progress: datagrams of an older frame are ignored, and a frame
// still incomplete when a newer one starts is counted as lost. A datagram
// from another sender epoch always starts a new frame, so a restarted relay
// is picked up again.
type Assembler struct {
	cur      *Frame
	received uint32
	seen     []bool

	Lost uint64
}

// Add feeds one datagram. It returns the frame it completes, if any.
func (a *Assembler) Add(h Header, payload []byte) *Frame {
	if a.cur == nil || h.Epoch != a.cur.Epoch || h.Seq > a.cur.Seq {
		if a.cur != nil && a.received < a.cur.Total {
			a.Lost++
			log.Debug("%s: frame %d incomplete (%d of %d bytes)", a.cur.Serial, a.cur.Seq, a.received, a.cur.Total)
		}
		a.cur = &Frame{Header: h, Data: make([]byte, h.Total)}
		a.cur.Chunks = nil
		a.received = 0
		a.seen = make([]bool, h.Count)
	} else if h.Seq < a.cur.Seq || h.Count != a.cur.Count || h.Total != a.cur.Total {
		return nil
	}

	if a.seen[h.Index] {
		return nil
	}
	a.seen[h.Index] = true
	copy(a.cur.Data[h.Offset:], payload)
	a.received += uint32(len(payload))
	if h.Index == 0 {
		a.cur.Chunks = h.Chunks
	}

	if a.received < a.cur.Total {
		return nil
	}
	f := a.cur
	// Keep cur so that late duplicates of f are recognized as old.
	a.cur = &Frame{Header: Header{Epoch: f.Epoch, Serial: f.Serial, Seq: f.Seq, Count: f.Count, Total: f.Total}}
	a.received = f.Total
	a.seen = make([]bool, f.Count)
	for i := range a.seen {
		a.seen[i] = true
	}
	return f
}
