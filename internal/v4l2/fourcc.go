// Package v4l2 captures frames from Video4Linux2 devices, e.g. USB and
// MIPI cameras on Linux. Sources are named "v4l2:/dev/video0"; an empty path
// enumerates every capture device.
package v4l2

import (
	"github.com/lanikai/multicam/internal/logging"
	"github.com/lanikai/multicam/internal/media"
)

var log = logging.DefaultLogger.WithTag("v4l2")

// Fourcc packs a four character code the way videodev2.h does.
func Fourcc(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

var (
	V4L2_PIX_FMT_GREY   = Fourcc('G', 'R', 'E', 'Y')
	V4L2_PIX_FMT_Y16    = Fourcc('Y', '1', '6', ' ')
	V4L2_PIX_FMT_SRGGB8 = Fourcc('R', 'G', 'G', 'B')
	V4L2_PIX_FMT_RGB24  = Fourcc('R', 'G', 'B', '3')
	V4L2_PIX_FMT_BGR24  = Fourcc('B', 'G', 'R', '3')
	V4L2_PIX_FMT_YUYV   = Fourcc('Y', 'U', 'Y', 'V')
)

var pixelFormats = map[media.PixelFormat]uint32{
	media.Mono8:    V4L2_PIX_FMT_GREY,
	media.Mono16:   V4L2_PIX_FMT_Y16,
	media.BayerRG8: V4L2_PIX_FMT_SRGGB8,
	media.RGB8:     V4L2_PIX_FMT_RGB24,
	media.BGR8:     V4L2_PIX_FMT_BGR24,
	media.YUV422_8: V4L2_PIX_FMT_YUYV,
}

// ToFourcc maps a pixel format to its V4L2 code.
func ToFourcc(f media.PixelFormat) (uint32, bool) {
	code, ok := pixelFormats[f]
	return code, ok
}

// FromFourcc maps a V4L2 code to a pixel format.
func FromFourcc(code uint32) (media.PixelFormat, bool) {
	for f, c := range pixelFormats {
		if c == code {
			return f, true
		}
	}
	return "", false
}

// FourccString renders a code as its four characters.
func FourccString(code uint32) string {
	return string([]byte{byte(code), byte(code >> 8), byte(code >> 16), byte(code >> 24)})
}
