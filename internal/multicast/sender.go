package multicast

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"

	"github.com/lanikai/multicam/internal/camera"
	"github.com/lanikai/multicam/internal/media"
)

// Sender relays buffers to a multicast group.
type Sender struct {
	conn  *net.UDPConn
	group *net.UDPAddr

	MaxPayload int

	epoch uint64

	mu   sync.Mutex
	seqs map[string]uint64

	sent uint64
}

// NewSender prepares to send to group ("ip:port"). ttl limits how many
// routers the datagrams cross; 1 keeps them on the local network.
func NewSender(group string, ttl int) (*Sender, error) {
	addr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		return nil, errors.Wrapf(err, "multicast: group %q", group)
	}
	if !addr.IP.IsMulticast() {
		return nil, errors.Errorf("multicast: %s is not a multicast address", addr.IP)
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, errors.Wrap(err, "multicast: listen")
	}

	// Enable multicast loopback, so that listeners on this host (mostly
	// tests) receive the relay too.
	pconn := ipv4.NewPacketConn(conn)
	if err := pconn.SetMulticastLoopback(true); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "multicast: loopback")
	}
	if ttl > 0 {
		if err := pconn.SetMulticastTTL(ttl); err != nil {
			conn.Close()
			return nil, errors.Wrap(err, "multicast: ttl")
		}
	}

	return &Sender{
		conn:       conn,
		group:      addr,
		MaxPayload: DefaultMaxPayload,
		epoch:      uint64(time.Now().UnixNano()),
		seqs:       make(map[string]uint64),
	}, nil
}

// Send relays one filled buffer from the given source. It does not retain
// buf.
func (s *Sender) Send(info camera.DeviceInfo, buf *media.Buffer) error {
	s.mu.Lock()
	s.seqs[info.Serial]++
	seq := s.seqs[info.Serial]
	s.mu.Unlock()

	data := buf.Bytes()
	if buf.Format.Known() {
		// Drop row padding past the packed frame.
		size, err := buf.Format.CheckedFrameSize(buf.Width, buf.Height)
		if err != nil {
			return err
		}
		if len(data) < size {
			return errors.Wrapf(media.ErrFrameSize, "multicast: %s frame %d: %d bytes, want %d",
				info.Serial, buf.FrameID, len(data), size)
		}
		data = data[:size]
	}

	h := Header{
		Epoch:     s.epoch,
		Serial:    info.Serial,
		Model:     info.Model,
		Seq:       seq,
		FrameID:   buf.FrameID,
		Timestamp: buf.Timestamp,
		Width:     buf.Width,
		Height:    buf.Height,
		Format:    buf.Format,
		Chunks:    buf.Chunks,
	}
	datagrams, err := Encode(h, data, s.MaxPayload)
	if err != nil {
		return err
	}
	for _, d := range datagrams {
		if _, err := s.conn.WriteToUDP(d, s.group); err != nil {
			return errors.Wrapf(err, "multicast: send to %s", s.group)
		}
	}
	atomic.AddUint64(&s.sent, 1)
	log.Trace(3, "%s: relayed frame %d in %d datagrams", info.Serial, seq, len(datagrams))
	return nil
}

// Sent counts relayed buffers.
func (s *Sender) Sent() uint64 {
	return atomic.LoadUint64(&s.sent)
}

func (s *Sender) Close() error {
	return s.conn.Close()
}
