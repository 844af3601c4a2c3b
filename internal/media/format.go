package media

import "github.com/pkg/errors"

// PixelFormat names a pixel layout using GenICam PFNC names, so that values
// can be passed straight through to a camera's PixelFormat feature.
type PixelFormat string

const (
	Mono8    PixelFormat = "Mono8"
	Mono16   PixelFormat = "Mono16"
	BayerRG8 PixelFormat = "BayerRG8"
	RGB8     PixelFormat = "RGB8"
	BGR8     PixelFormat = "BGR8"
	YUV422_8 PixelFormat = "YUV422_8" // YUYV packed

	// Four polarization angles (0, 45, 90, 135 degrees), each a BayerRG8
	// plane, interleaved per pixel.
	PolarizedAngles PixelFormat = "PolarizedAngles_0d_45d_90d_135d_BayerRG8"

	// Raw polarizer mosaic: every 2x2 block holds the 90/45 (top) and
	// 135/0 (bottom) degree samples.
	PolarizeMono8 PixelFormat = "PolarizeMono8"
)

var bitsPerPixel = map[PixelFormat]int{
	Mono8:           8,
	Mono16:          16,
	BayerRG8:        8,
	RGB8:            24,
	BGR8:            24,
	YUV422_8:        16,
	PolarizedAngles: 32,
	PolarizeMono8:   8,
}

// BitsPerPixel returns the packed size of one pixel, or 0 for unknown formats.
func (f PixelFormat) BitsPerPixel() int {
	return bitsPerPixel[f]
}

// Known reports whether the format is one this package can size.
func (f PixelFormat) Known() bool {
	_, ok := bitsPerPixel[f]
	return ok
}

// MaxDimension bounds the width and height of a frame.
const MaxDimension = 1 << 16

// FrameSize returns the number of bytes in a width x height image. Callers
// handling untrusted geometry use CheckedFrameSize.
func (f PixelFormat) FrameSize(width, height int) int {
	return width * height * f.BitsPerPixel() / 8
}

// CheckedFrameSize is FrameSize for geometry read from a device or the
// network. Both dimensions must lie in 1..MaxDimension.
func (f PixelFormat) CheckedFrameSize(width, height int) (int, error) {
	if width <= 0 || height <= 0 || width > MaxDimension || height > MaxDimension {
		return 0, errors.Wrapf(ErrFrameSize, "%s %dx%d out of range", f, width, height)
	}
	size := int64(width) * int64(height) * int64(f.BitsPerPixel()) / 8
	if int64(int(size)) != size {
		return 0, errors.Wrapf(ErrFrameSize, "%s %dx%d too large", f, width, height)
	}
	return int(size), nil
}

// Formats lists every supported pixel format.
func Formats() []PixelFormat {
	return []PixelFormat{Mono8, Mono16, BayerRG8, RGB8, BGR8, YUV422_8, PolarizedAngles, PolarizeMono8}
}
