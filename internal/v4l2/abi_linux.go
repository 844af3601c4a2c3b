//go:build linux
// +build linux

package v4l2

import (
	"encoding/binary"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Definitions from <linux/videodev2.h>. Struct layouts are those of 64-bit
// targets; ioctl numbers encode the struct sizes.

const (
	VIDIOC_QUERYCAP  = 0x80685600
	VIDIOC_G_FMT     = 0xc0d05604
	VIDIOC_S_FMT     = 0xc0d05605
	VIDIOC_REQBUFS   = 0xc0145608
	VIDIOC_QUERYBUF  = 0xc0585609
	VIDIOC_QBUF      = 0xc058560f
	VIDIOC_DQBUF     = 0xc0585611
	VIDIOC_STREAMON  = 0x40045612
	VIDIOC_STREAMOFF = 0x40045613
	VIDIOC_G_CTRL    = 0xc008561b
	VIDIOC_S_CTRL    = 0xc008561c
	VIDIOC_QUERYCTRL = 0xc0445624
)

const (
	V4L2_BUF_TYPE_VIDEO_CAPTURE = 1
	V4L2_MEMORY_MMAP            = 1
	V4L2_FIELD_ANY              = 0

	V4L2_CAP_VIDEO_CAPTURE = 0x00000001
	V4L2_CAP_STREAMING     = 0x04000000
	V4L2_CAP_DEVICE_CAPS   = 0x80000000

	V4L2_CTRL_FLAG_DISABLED = 0x0001
)

// Control ids.
const (
	V4L2_CID_BASE               = 0x00980900
	V4L2_CID_AUTO_WHITE_BALANCE = V4L2_CID_BASE + 12
	V4L2_CID_EXPOSURE           = V4L2_CID_BASE + 17
	V4L2_CID_AUTOGAIN           = V4L2_CID_BASE + 18
	V4L2_CID_GAIN               = V4L2_CID_BASE + 19
	V4L2_CID_HFLIP              = V4L2_CID_BASE + 20
	V4L2_CID_VFLIP              = V4L2_CID_BASE + 21

	V4L2_CID_CAMERA_CLASS_BASE  = 0x009a0900
	V4L2_CID_EXPOSURE_AUTO      = V4L2_CID_CAMERA_CLASS_BASE + 1
	V4L2_CID_EXPOSURE_ABSOLUTE  = V4L2_CID_CAMERA_CLASS_BASE + 2
	V4L2_EXPOSURE_MANUAL        = 1
	V4L2_EXPOSURE_APERTURE_PRIO = 3
)

type v4l2_capability struct {
	driver       [16]byte
	card         [32]byte
	bus_info     [32]byte
	version      uint32
	capabilities uint32
	device_caps  uint32
	reserved     [3]uint32
}

type v4l2_pix_format struct {
	width        uint32
	height       uint32
	pixelformat  uint32
	field        uint32
	bytesperline uint32
	sizeimage    uint32
	colorspace   uint32
	priv         uint32
	flags        uint32
	ycbcr_enc    uint32
	quantization uint32
	xfer_func    uint32
}

func (p *v4l2_pix_format) marshal() (raw [200]byte) {
	fields := []uint32{p.width, p.height, p.pixelformat, p.field, p.bytesperline, p.sizeimage,
		p.colorspace, p.priv, p.flags, p.ycbcr_enc, p.quantization, p.xfer_func}
	for i, v := range fields {
		nativeEndian.PutUint32(raw[4*i:], v)
	}
	return
}

func (p *v4l2_pix_format) unmarshal(raw [200]byte) {
	fields := []*uint32{&p.width, &p.height, &p.pixelformat, &p.field, &p.bytesperline, &p.sizeimage,
		&p.colorspace, &p.priv, &p.flags, &p.ycbcr_enc, &p.quantization, &p.xfer_func}
	for i, v := range fields {
		*v = nativeEndian.Uint32(raw[4*i:])
	}
}

// The format union holds pointers, hence the padding after typ.
type v4l2_format struct {
	typ uint32
	_   uint32
	fmt [200]byte
}

type v4l2_requestbuffers struct {
	count        uint32
	typ          uint32
	memory       uint32
	capabilities uint32
	flags        uint8
	reserved     [3]uint8
}

type v4l2_timecode struct {
	typ      uint32
	flags    uint32
	frames   uint8
	seconds  uint8
	minutes  uint8
	hours    uint8
	userbits [4]uint8
}

type v4l2_buffer struct {
	index     uint32
	typ       uint32
	bytesused uint32
	flags     uint32
	field     uint32
	_         uint32
	timestamp unix.Timeval
	timecode  v4l2_timecode
	sequence  uint32
	memory    uint32

	// Union of offset (uint32), userptr, planes and fd.
	m [8]byte

	length    uint32
	reserved2 uint32
	requestFD int32
	_         uint32
}

type v4l2_control struct {
	id    uint32
	value int32
}

type v4l2_queryctrl struct {
	id            uint32
	typ           uint32
	name          [32]byte
	minimum       int32
	maximum       int32
	step          int32
	default_value int32
	flags         uint32
	reserved      [2]uint32
}

var nativeEndian binary.ByteOrder

func init() {
	x := uint16(1)
	if *(*byte)(unsafe.Pointer(&x)) == 1 {
		nativeEndian = binary.LittleEndian
	} else {
		nativeEndian = binary.BigEndian
	}
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
