//go:build linux
// +build linux

package v4l2

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/lanikai/multicam/internal/camera"
	"github.com/lanikai/multicam/internal/media"
)

func probe(path string) (camera.DeviceInfo, error) {
	dev, err := openDevice(path)
	if err != nil {
		return camera.DeviceInfo{}, err
	}
	defer unix.Close(dev.fd)

	caps, err := dev.queryCapability()
	if err != nil {
		return camera.DeviceInfo{}, errors.Wrapf(err, "v4l2: query %s", path)
	}
	c := caps.capabilities
	if c&V4L2_CAP_DEVICE_CAPS != 0 {
		c = caps.device_caps
	}
	if c&V4L2_CAP_VIDEO_CAPTURE == 0 || c&V4L2_CAP_STREAMING == 0 {
		return camera.DeviceInfo{}, errors.Errorf("v4l2: %s is not a streaming capture device", path)
	}

	serial := cstring(caps.bus_info[:])
	if serial == "" {
		serial = path
	}
	return camera.DeviceInfo{
		ID:      path,
		Serial:  serial,
		Model:   strings.Replace(cstring(caps.card[:]), " ", "_", -1),
		Vendor:  cstring(caps.driver[:]),
		Address: path,
	}, nil
}

func open(info camera.DeviceInfo) (camera.Source, error) {
	dev, err := openDevice(info.ID)
	if err != nil {
		return nil, err
	}
	pfmt, err := dev.getFormat()
	if err != nil {
		dev.Close()
		return nil, errors.Wrapf(err, "v4l2: get format of %s", info.ID)
	}
	return &Source{info: info, dev: dev, format: *pfmt}, nil
}

// Source is an opened V4L2 capture device.
type Source struct {
	info camera.DeviceInfo
	dev  *device

	// Current format, as applied by the driver.
	format v4l2_pix_format

	pool *media.Pool

	sync.Mutex
}

func (s *Source) Info() camera.DeviceInfo {
	return s.info
}

// Maps GenICam feature names onto V4L2 controls.
var controls = map[string]uint32{
	"ExposureTime":       V4L2_CID_EXPOSURE_ABSOLUTE,
	"Gain":               V4L2_CID_GAIN,
	"ReverseX":           V4L2_CID_HFLIP,
	"ReverseY":           V4L2_CID_VFLIP,
	"ExposureAuto":       V4L2_CID_EXPOSURE_AUTO,
	"GainAuto":           V4L2_CID_AUTOGAIN,
	"BalanceWhiteAuto":   V4L2_CID_AUTO_WHITE_BALANCE,
	"BalanceWhiteEnable": V4L2_CID_AUTO_WHITE_BALANCE,
}

// Largest geometry requested for Width=max / Height=max; the driver clamps
// it to what the sensor supports.
const maxDimension = 16384

func (s *Source) SetFeature(name, value string) error {
	s.Lock()
	defer s.Unlock()

	switch name {
	case "Width", "Height", "PixelFormat":
		if s.pool != nil {
			return errors.Wrap(camera.ErrReadOnly, "locked while streaming")
		}
		return s.setFormat(name, value)
	case "AcquisitionMode":
		if strings.EqualFold(value, "Continuous") {
			return nil
		}
		return camera.ErrOutOfRange
	}

	id, ok := controls[name]
	if !ok {
		return camera.ErrUnknownFeature
	}
	v, err := controlValue(name, value)
	if err != nil {
		return err
	}
	if err := s.dev.setControl(id, v); err != nil {
		if err == unix.ERANGE {
			return camera.ErrOutOfRange
		}
		return errors.Wrapf(err, "v4l2: %s", name)
	}
	return nil
}

// Converts GenICam enumeration and unit conventions to control values.
func controlValue(name, value string) (int32, error) {
	switch strings.ToLower(value) {
	case "true", "continuous", "on":
		if name == "ExposureAuto" {
			return V4L2_EXPOSURE_APERTURE_PRIO, nil
		}
		return 1, nil
	case "false", "off":
		if name == "ExposureAuto" {
			return V4L2_EXPOSURE_MANUAL, nil
		}
		return 0, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.Wrapf(camera.ErrOutOfRange, "%s=%q", name, value)
	}
	if name == "ExposureTime" {
		// Microseconds to units of 100us.
		f /= 100
	}
	return int32(f), nil
}

func (s *Source) setFormat(name, value string) error {
	width, height, code := s.format.width, s.format.height, s.format.pixelformat
	switch name {
	case "Width", "Height":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return errors.Wrapf(camera.ErrOutOfRange, "%s=%q", name, value)
		}
		if name == "Width" {
			width = uint32(n)
		} else {
			height = uint32(n)
		}
	case "PixelFormat":
		c, ok := ToFourcc(media.PixelFormat(value))
		if !ok {
			return camera.ErrOutOfRange
		}
		code = c
	}

	pfmt, err := s.dev.setFormat(width, height, code)
	if err != nil {
		return errors.Wrapf(err, "v4l2: set %s=%s", name, value)
	}
	if name == "PixelFormat" && pfmt.pixelformat != code {
		return errors.Wrapf(camera.ErrOutOfRange, "driver chose %s", FourccString(pfmt.pixelformat))
	}
	s.format = *pfmt
	return nil
}

func (s *Source) Execute(name string) error {
	return camera.ErrUnknownFeature
}

func (s *Source) FeatureBounds(name string) (float64, float64, error) {
	switch name {
	case "Width", "Height":
		return 1, maxDimension, nil
	}
	id, ok := controls[name]
	if !ok {
		return 0, 0, camera.ErrUnknownFeature
	}
	q, err := s.dev.queryControl(id)
	if err != nil {
		return 0, 0, camera.ErrUnknownFeature
	}
	min, max := float64(q.minimum), float64(q.maximum)
	if name == "ExposureTime" {
		min, max = min*100, max*100
	}
	return min, max, nil
}

func (s *Source) Start(bufferCount int) error {
	s.Lock()
	defer s.Unlock()

	if s.pool != nil {
		return errors.New("v4l2: already streaming")
	}
	if _, ok := FromFourcc(s.format.pixelformat); !ok {
		return errors.Wrapf(camera.ErrConfigurationRejected, "v4l2: unsupported pixel format %s",
			FourccString(s.format.pixelformat))
	}
	if err := s.dev.Start(bufferCount); err != nil {
		return err
	}
	size := int(s.format.sizeimage)
	if size == 0 {
		size = int(s.format.bytesperline * s.format.height)
	}
	s.pool = media.NewPool(bufferCount, size)
	log.Debug("%s streaming %dx%d %s with %d buffers", s.info.ID, s.format.width, s.format.height,
		FourccString(s.format.pixelformat), len(s.dev.mmaps))
	return nil
}

// Next waits for a filled kernel buffer, copies it into a pool buffer and
// requeues the kernel buffer.
func (s *Source) Next(timeout time.Duration) (*media.Buffer, error) {
	s.Lock()
	defer s.Unlock()

	if s.pool == nil {
		return nil, camera.ErrNotStarted
	}

	begin := time.Now()
	ready, err := s.dev.wait(timeout)
	if err != nil {
		return nil, errors.Wrap(camera.ErrDisconnected, err.Error())
	}
	if !ready {
		return nil, camera.ErrAcquisitionTimeout
	}

	kbuf, err := s.dev.dequeue()
	switch err {
	case nil:
	case unix.EAGAIN:
		return nil, camera.ErrAcquisitionTimeout
	case unix.ENODEV, unix.EIO, unix.EINVAL:
		return nil, errors.Wrap(camera.ErrDisconnected, err.Error())
	default:
		return nil, errors.Wrap(err, "v4l2: dequeue")
	}
	defer func() {
		if err := s.dev.enqueue(kbuf.index); err != nil {
			log.Warn("%s: requeue buffer %d: %v", s.info.ID, kbuf.index, err)
		}
	}()

	remaining := timeout - time.Since(begin)
	if remaining < time.Millisecond {
		remaining = time.Millisecond
	}
	buf, err := s.pool.AcquireTimeout(remaining)
	if err != nil {
		// Every host buffer is held by the consumer: drop the frame.
		return nil, camera.ErrAcquisitionTimeout
	}

	data := s.dev.mmaps[kbuf.index][:kbuf.bytesused]
	if err := buf.Fill(data); err != nil {
		buf.Release()
		return nil, err
	}
	format, _ := FromFourcc(s.format.pixelformat)
	buf.Width = int(s.format.width)
	buf.Height = int(s.format.height)
	buf.Format = format
	buf.FrameID = uint64(kbuf.sequence)
	buf.Timestamp = time.Now()
	return buf, nil
}

func (s *Source) Stop() error {
	s.Lock()
	defer s.Unlock()

	if s.pool == nil {
		return nil
	}
	s.pool.Close()
	s.pool = nil
	return s.dev.Stop()
}

func (s *Source) Close() error {
	s.Stop()
	return s.dev.Close()
}
