// Package decode turns filled camera buffers into FrameSets. Pixel data is
// copied out of the buffer, so the buffer can go back to the device as soon
// as Decode returns.
//
// Conversion happens on the device whenever the camera can do it; this
// package only demultiplexes polarization planes and demosaics the Bayer
// layouts a camera delivers unconverted.
package decode

import (
	"github.com/pkg/errors"

	"github.com/lanikai/multicam/internal/color"
	"github.com/lanikai/multicam/internal/media"
)

var ErrUnsupportedFormat = errors.New("decode: unsupported pixel format")

// Polarization plane tags, in the order the planes are interleaved.
var Angles = []string{"0", "45", "90", "135"}

// A Func decodes one buffer into frames.
type Func func(buf *media.Buffer) ([]*media.Frame, error)

var decoders = map[media.PixelFormat]Func{
	media.Mono8:           decodeMono8,
	media.Mono16:          decodeMono16,
	media.BayerRG8:        decodeBayerRG8,
	media.RGB8:            decodeRGB8,
	media.BGR8:            decodeBGR8,
	media.YUV422_8:        decodeYUYV,
	media.PolarizedAngles: decodePolarizedAngles,
	media.PolarizeMono8:   decodePolarizeMono8,
}

// Register installs a decoder for a pixel format, replacing any existing one.
func Register(format media.PixelFormat, fn Func) {
	decoders[format] = fn
}

// Supported reports whether a decoder exists for the format.
func Supported(format media.PixelFormat) bool {
	_, ok := decoders[format]
	return ok
}

// Decode converts buf into a FrameSet for the given source. The caller
// still owns buf and must release it.
func Decode(source string, seq uint64, buf *media.Buffer) (*media.FrameSet, error) {
	fn, ok := decoders[buf.Format]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%q", buf.Format)
	}
	want, err := buf.Format.CheckedFrameSize(buf.Width, buf.Height)
	if err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	if buf.Format.Known() && len(buf.Bytes()) < want {
		return nil, errors.Wrapf(media.ErrFrameSize, "decode %s %dx%d: %d bytes, want %d",
			buf.Format, buf.Width, buf.Height, len(buf.Bytes()), want)
	}

	frames, err := fn(buf)
	if err != nil {
		return nil, err
	}

	var chunks map[string]float64
	if len(buf.Chunks) > 0 {
		chunks = make(map[string]float64, len(buf.Chunks))
		for k, v := range buf.Chunks {
			chunks[k] = v
		}
	}
	return &media.FrameSet{
		Source:    source,
		Seq:       seq,
		FrameID:   buf.FrameID,
		Timestamp: buf.Timestamp,
		Chunks:    chunks,
		Frames:    frames,
	}, nil
}

func clone(p []byte) []byte {
	q := make([]byte, len(p))
	copy(q, p)
	return q
}

func one(f *media.Frame, err error) ([]*media.Frame, error) {
	if err != nil {
		return nil, err
	}
	return []*media.Frame{f}, nil
}

func decodeMono8(buf *media.Buffer) ([]*media.Frame, error) {
	n := buf.Width * buf.Height
	return one(media.NewFrame(buf.Width, buf.Height, 1, 8, media.Mono8, "", clone(buf.Bytes()[:n])))
}

// Mono16 stays little-endian, as delivered.
func decodeMono16(buf *media.Buffer) ([]*media.Frame, error) {
	n := 2 * buf.Width * buf.Height
	return one(media.NewFrame(buf.Width, buf.Height, 1, 16, media.Mono16, "", clone(buf.Bytes()[:n])))
}

func decodeBayerRG8(buf *media.Buffer) ([]*media.Frame, error) {
	w, h := buf.Width, buf.Height
	pix := make([]byte, 3*w*h)
	color.BayerRGToRGB(pix, buf.Bytes()[:w*h], w, h)
	return one(media.NewFrame(w, h, 3, 8, media.RGB8, "", pix))
}

func decodeRGB8(buf *media.Buffer) ([]*media.Frame, error) {
	n := 3 * buf.Width * buf.Height
	return one(media.NewFrame(buf.Width, buf.Height, 3, 8, media.RGB8, "", clone(buf.Bytes()[:n])))
}

func decodeBGR8(buf *media.Buffer) ([]*media.Frame, error) {
	n := 3 * buf.Width * buf.Height
	pix := make([]byte, n)
	color.BGRToRGB(pix, buf.Bytes()[:n])
	return one(media.NewFrame(buf.Width, buf.Height, 3, 8, media.RGB8, "", pix))
}

func decodeYUYV(buf *media.Buffer) ([]*media.Frame, error) {
	w, h := buf.Width, buf.Height
	pix := make([]byte, 3*w*h)
	color.YUYVToRGB(pix, buf.Bytes()[:2*w*h], w, h)
	return one(media.NewFrame(w, h, 3, 8, media.RGB8, "", pix))
}

// Four BayerRG8 planes interleaved per pixel: byte 4*i+k belongs to the
// plane of angle Angles[k]. Each plane is split out, then demosaiced.
func decodePolarizedAngles(buf *media.Buffer) ([]*media.Frame, error) {
	w, h := buf.Width, buf.Height
	n := w * h
	src := buf.Bytes()[:4*n]

	plane := make([]byte, n)
	frames := make([]*media.Frame, len(Angles))
	for k, tag := range Angles {
		for i := 0; i < n; i++ {
			plane[i] = src[4*i+k]
		}
		pix := make([]byte, 3*n)
		color.BayerRGToRGB(pix, plane, w, h)
		f, err := media.NewFrame(w, h, 3, 8, media.RGB8, tag, pix)
		if err != nil {
			return nil, err
		}
		frames[k] = f
	}
	return frames, nil
}

// Offsets within each 2x2 polarizer cell, per angle.
var mosaic = map[string][2]int{
	"90":  {0, 0},
	"45":  {1, 0},
	"135": {0, 1},
	"0":   {1, 1},
}

// A 2x2 polarizer mosaic splits into four half-resolution planes.
func decodePolarizeMono8(buf *media.Buffer) ([]*media.Frame, error) {
	w, h := buf.Width, buf.Height
	hw, hh := w/2, h/2
	if hw == 0 || hh == 0 {
		return nil, errors.Wrapf(media.ErrFrameSize, "decode %s %dx%d", buf.Format, w, h)
	}
	src := buf.Bytes()

	frames := make([]*media.Frame, len(Angles))
	for k, tag := range Angles {
		off := mosaic[tag]
		pix := make([]byte, hw*hh)
		for y := 0; y < hh; y++ {
			row := (2*y + off[1]) * w
			for x := 0; x < hw; x++ {
				pix[y*hw+x] = src[row+2*x+off[0]]
			}
		}
		f, err := media.NewFrame(hw, hh, 1, 8, media.Mono8, tag, pix)
		if err != nil {
			return nil, err
		}
		frames[k] = f
	}
	return frames, nil
}
