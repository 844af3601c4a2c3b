//go:build linux
// +build linux

package v4l2

import (
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// A V4L2 character device with a ring of memory-mapped kernel buffers.
type device struct {
	// Device path, usually "/dev/video0".
	path string

	// File descriptor of v4l2 device.
	fd int

	// One mapping per kernel buffer, indexed like the kernel's.
	mmaps [][]byte

	streaming bool
}

func openDevice(path string) (*device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0666)
	if err != nil {
		return nil, errors.Wrapf(err, "v4l2: open %s", path)
	}
	return &device{path: path, fd: fd}, nil
}

func (dev *device) Close() error {
	if err := dev.Stop(); err != nil {
		log.Warn("%s: %v", dev.path, err)
	}
	return unix.Close(dev.fd)
}

func (dev *device) ioctl(request uint, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(
			unix.SYS_IOCTL,
			uintptr(dev.fd),
			uintptr(request),
			uintptr(arg),
		)
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		}
		return errno
	}
}

func (dev *device) queryCapability() (*v4l2_capability, error) {
	var caps v4l2_capability
	if err := dev.ioctl(VIDIOC_QUERYCAP, unsafe.Pointer(&caps)); err != nil {
		return nil, err
	}
	return &caps, nil
}

func (dev *device) getFormat() (*v4l2_pix_format, error) {
	f := v4l2_format{typ: V4L2_BUF_TYPE_VIDEO_CAPTURE}
	if err := dev.ioctl(VIDIOC_G_FMT, unsafe.Pointer(&f)); err != nil {
		return nil, err
	}
	var pfmt v4l2_pix_format
	pfmt.unmarshal(f.fmt)
	return &pfmt, nil
}

// setFormat asks for a format. The driver may adjust it; the format actually
// applied is returned.
func (dev *device) setFormat(width, height, pixelformat uint32) (*v4l2_pix_format, error) {
	pfmt := v4l2_pix_format{
		width:       width,
		height:      height,
		pixelformat: pixelformat,
		field:       V4L2_FIELD_ANY,
	}
	f := v4l2_format{
		typ: V4L2_BUF_TYPE_VIDEO_CAPTURE,
		fmt: pfmt.marshal(),
	}
	if err := dev.ioctl(VIDIOC_S_FMT, unsafe.Pointer(&f)); err != nil {
		return nil, err
	}
	pfmt.unmarshal(f.fmt)
	return &pfmt, nil
}

func (dev *device) setControl(id uint32, value int32) error {
	ctrl := v4l2_control{id: id, value: value}
	return dev.ioctl(VIDIOC_S_CTRL, unsafe.Pointer(&ctrl))
}

func (dev *device) queryControl(id uint32) (*v4l2_queryctrl, error) {
	q := v4l2_queryctrl{id: id}
	if err := dev.ioctl(VIDIOC_QUERYCTRL, unsafe.Pointer(&q)); err != nil {
		return nil, err
	}
	if q.flags&V4L2_CTRL_FLAG_DISABLED != 0 {
		return nil, unix.EINVAL
	}
	return &q, nil
}

// Request n kernel buffers memory-mapped to user-space. The driver may grant
// fewer.
func (dev *device) requestBuffers(n int) (int, error) {
	rb := v4l2_requestbuffers{
		count:  uint32(n),
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
		memory: V4L2_MEMORY_MMAP,
	}
	err := dev.ioctl(VIDIOC_REQBUFS, unsafe.Pointer(&rb))
	return int(rb.count), err
}

// Query buffer parameters.
func (dev *device) queryBuffer(n uint32) (length, offset uint32, err error) {
	qb := v4l2_buffer{
		index:  n,
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
		memory: V4L2_MEMORY_MMAP,
	}
	if err = dev.ioctl(VIDIOC_QUERYBUF, unsafe.Pointer(&qb)); err != nil {
		return
	}
	length = qb.length
	offset = nativeEndian.Uint32(qb.m[0:4])
	return
}

func (dev *device) mapMemory(n int) error {
	granted, err := dev.requestBuffers(n)
	if err != nil {
		return errors.Wrap(err, "v4l2: request buffers")
	}
	if granted < n {
		log.Debug("%s: asked for %d buffers, got %d", dev.path, n, granted)
	}

	for i := 0; i < granted; i++ {
		length, offset, err := dev.queryBuffer(uint32(i))
		if err != nil {
			dev.unmapMemory()
			return errors.Wrapf(err, "v4l2: query buffer %d", i)
		}
		m, err := unix.Mmap(dev.fd, int64(offset), int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			dev.unmapMemory()
			return errors.Wrapf(err, "v4l2: mmap buffer %d", i)
		}
		dev.mmaps = append(dev.mmaps, m)
	}
	return nil
}

func (dev *device) unmapMemory() error {
	for _, m := range dev.mmaps {
		if err := unix.Munmap(m); err != nil {
			return err
		}
	}
	dev.mmaps = nil
	_, err := dev.requestBuffers(0)
	return err
}

func (dev *device) enqueue(index uint32) error {
	qbuf := v4l2_buffer{
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
		memory: V4L2_MEMORY_MMAP,
		index:  index,
	}
	return dev.ioctl(VIDIOC_QBUF, unsafe.Pointer(&qbuf))
}

func (dev *device) dequeue() (*v4l2_buffer, error) {
	dqbuf := v4l2_buffer{
		typ:    V4L2_BUF_TYPE_VIDEO_CAPTURE,
		memory: V4L2_MEMORY_MMAP,
	}
	if err := dev.ioctl(VIDIOC_DQBUF, unsafe.Pointer(&dqbuf)); err != nil {
		return nil, err
	}
	return &dqbuf, nil
}

// Start video capture with n kernel buffers.
func (dev *device) Start(n int) error {
	if err := dev.mapMemory(n); err != nil {
		return err
	}
	for i := range dev.mmaps {
		if err := dev.enqueue(uint32(i)); err != nil {
			dev.unmapMemory()
			return errors.Wrapf(err, "v4l2: queue buffer %d", i)
		}
	}
	typ := uint32(V4L2_BUF_TYPE_VIDEO_CAPTURE)
	if err := dev.ioctl(VIDIOC_STREAMON, unsafe.Pointer(&typ)); err != nil {
		dev.unmapMemory()
		return errors.Wrap(err, "v4l2: stream on")
	}
	dev.streaming = true
	return nil
}

// Stop video capture. Stopping a device that is not streaming is a no-op.
func (dev *device) Stop() error {
	if !dev.streaming {
		return nil
	}
	dev.streaming = false

	// Disable stream (dequeues any outstanding buffers as well).
	typ := uint32(V4L2_BUF_TYPE_VIDEO_CAPTURE)
	if err := dev.ioctl(VIDIOC_STREAMOFF, unsafe.Pointer(&typ)); err != nil {
		return errors.Wrap(err, "v4l2: stream off")
	}
	return dev.unmapMemory()
}

// wait blocks until a buffer can be dequeued or the timeout elapses.
func (dev *device) wait(timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(dev.fd), Events: unix.POLLIN}}
	deadline := time.Now().Add(timeout)
	for {
		ms := int(time.Until(deadline) / time.Millisecond)
		if ms < 0 {
			ms = 0
		}
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return false, unix.ENODEV
		}
		return n > 0, nil
	}
}
