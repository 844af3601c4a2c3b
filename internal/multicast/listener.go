package multicast

import (
	"net"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/multicam/internal/camera"
	"github.com/lanikai/multicam/internal/media"
)

const (
	// How long Enumerate listens for relayed sources.
	DefaultDiscovery = 2 * time.Second

	// Read buffer size, and the most payload one datagram can carry.
	maxDatagram = 65536

	// Read deadline, so that the read loop notices Stop.
	pollInterval = 100 * time.Millisecond
)

func init() {
	camera.RegisterDriver("udp", &Driver{})
}

// Driver discovers relayed sources. Paths are "group:port", optionally
// followed by "?serial=S1,S2" to skip discovery, or "?wait=5s".
type Driver struct{}

func parsePath(path string) (group string, serials []string, wait time.Duration, err error) {
	wait = DefaultDiscovery
	parts := strings.SplitN(path, "?", 2)
	group = parts[0]
	if len(parts) == 2 {
		q, err := url.ParseQuery(parts[1])
		if err != nil {
			return "", nil, 0, errors.Wrapf(err, "multicast: %q", path)
		}
		if s := q.Get("serial"); s != "" {
			serials = strings.Split(s, ",")
		}
		if s := q.Get("wait"); s != "" {
			if wait, err = time.ParseDuration(s); err != nil {
				return "", nil, 0, errors.Wrapf(err, "multicast: %q", path)
			}
		}
	}
	if _, err := net.ResolveUDPAddr("udp4", group); err != nil {
		return "", nil, 0, errors.Wrapf(err, "multicast: group %q", group)
	}
	return
}

func (d *Driver) Enumerate(path string) ([]camera.DeviceInfo, error) {
	group, serials, wait, err := parsePath(path)
	if err != nil {
		return nil, err
	}

	models := map[string]string{}
	if serials == nil {
		if models, err = discover(group, wait); err != nil {
			return nil, err
		}
		for s := range models {
			serials = append(serials, s)
		}
		sort.Strings(serials)
	}

	infos := make([]camera.DeviceInfo, len(serials))
	for i, serial := range serials {
		infos[i] = camera.DeviceInfo{
			ID:      group + "#" + serial,
			Serial:  serial,
			Model:   models[serial],
			Address: group,
			Access:  camera.ReadOnly,
		}
	}
	return infos, nil
}

func (d *Driver) Open(info camera.DeviceInfo) (camera.Source, error) {
	group := info.Address
	if group == "" {
		group = strings.SplitN(info.ID, "#", 2)[0]
	}
	return NewListener(group, info), nil
}

func listen(group string) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp4", group)
	if err != nil {
		return nil, errors.Wrapf(err, "multicast: group %q", group)
	}
	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "multicast: join %s", group)
	}
	conn.SetReadBuffer(4 << 20)
	return conn, nil
}

// Listen to the group for a while and collect the serials heard.
func discover(group string, wait time.Duration) (map[string]string, error) {
	conn, err := listen(group)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	found := map[string]string{}
	deadline := time.Now().Add(wait)
	conn.SetReadDeadline(deadline)
	buf := make([]byte, maxDatagram)
	for time.Now().Before(deadline) {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			break
		}
		h, _, err := Decode(buf[:n])
		if err != nil {
			continue
		}
		if _, ok := found[h.Serial]; !ok {
			log.Debug("Discovered %s on %s", h.Serial, group)
		}
		found[h.Serial] = h.Model
	}
	return found, nil
}

// Listener is a read-only source fed by a multicast relay. It only accepts
// frames of one serial number.
type Listener struct {
	info  camera.DeviceInfo
	group string

	conn  *net.UDPConn
	queue *camera.Queue
	loop  *media.Loop

	// Reassembly buffers are sized from the first frame heard.
	bufSize int

	sync.Mutex
}

func NewListener(group string, info camera.DeviceInfo) *Listener {
	info.Access = camera.ReadOnly
	return &Listener{info: info, group: group}
}

func (l *Listener) Info() camera.DeviceInfo {
	return l.info
}

// Start joins the group. Buffers are allocated once the first complete
// frame reveals the frame size.
func (l *Listener) Start(bufferCount int) error {
	l.Lock()
	defer l.Unlock()

	if l.conn != nil {
		return errors.New("multicast: already listening")
	}
	conn, err := listen(l.group)
	if err != nil {
		return errors.Wrap(camera.ErrDeviceUnavailable, err.Error())
	}
	l.conn = conn
	count := bufferCount
	l.loop = media.NewLoop(func(quit <-chan struct{}) error {
		return l.readLoop(quit, conn, count)
	})
	l.loop.Start()
	return nil
}

func (l *Listener) readLoop(quit <-chan struct{}, conn *net.UDPConn, bufferCount int) error {
	var asm Assembler
	buf := make([]byte, maxDatagram)
	for {
		select {
		case <-quit:
			return nil
		default:
		}

		conn.SetReadDeadline(time.Now().Add(pollInterval))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-quit:
				return nil
			default:
			}
			l.fail(err)
			return err
		}

		h, payload, err := Decode(buf[:n])
		if err != nil {
			log.Trace(3, "Dropping datagram: %v", err)
			continue
		}
		if h.Serial != l.info.Serial {
			continue
		}
		f := asm.Add(h, payload)
		if f == nil {
			continue
		}
		l.deliver(f, bufferCount)
	}
}

func (l *Listener) queueFor(size, bufferCount int) *camera.Queue {
	l.Lock()
	defer l.Unlock()
	if l.queue == nil || size > l.bufSize {
		if l.queue != nil {
			// Frame size grew: the relay was reconfigured.
			l.queue.Close()
		}
		l.queue = camera.NewQueue(bufferCount, size)
		l.bufSize = size
	}
	return l.queue
}

func (l *Listener) deliver(f *Frame, bufferCount int) {
	q := l.queueFor(len(f.Data), bufferCount)
	q.Deliver(func(buf *media.Buffer) error {
		if err := buf.Fill(f.Data); err != nil {
			return err
		}
		buf.Width = f.Width
		buf.Height = f.Height
		buf.Format = f.Format
		buf.FrameID = f.FrameID
		buf.Timestamp = f.Timestamp
		buf.Chunks = f.Chunks
		return nil
	})
}

func (l *Listener) fail(err error) {
	q := l.queueFor(0, 1)
	q.Fail(errors.Wrap(camera.ErrDisconnected, err.Error()))
}

// Next waits for the next complete frame.
func (l *Listener) Next(timeout time.Duration) (*media.Buffer, error) {
	l.Lock()
	running, q := l.conn != nil, l.queue
	l.Unlock()

	if !running {
		return nil, camera.ErrNotStarted
	}
	if q == nil {
		// Nothing heard yet.
		deadline := time.Now().Add(timeout)
		for q == nil && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
			l.Lock()
			q = l.queue
			l.Unlock()
		}
		if q == nil {
			return nil, camera.ErrAcquisitionTimeout
		}
		timeout = time.Until(deadline)
		if timeout <= 0 {
			timeout = time.Millisecond
		}
	}
	return q.Next(timeout)
}

func (l *Listener) Stop() error {
	l.Lock()
	conn, loop, q := l.conn, l.loop, l.queue
	l.conn, l.loop, l.queue = nil, nil, nil
	l.bufSize = 0
	l.Unlock()

	if conn == nil {
		return nil
	}
	loop.Stop()
	conn.Close()
	if q != nil {
		q.Close()
	}
	return nil
}

func (l *Listener) Close() error {
	return l.Stop()
}

// Dropped counts frames lost because every buffer was in flight.
func (l *Listener) Dropped() uint64 {
	l.Lock()
	defer l.Unlock()
	if l.queue == nil {
		return 0
	}
	return l.queue.Dropped()
}
