package media

import (
	"image"
	"time"

	"github.com/pkg/errors"
)

/*
A Frame is an immutable decoded image. Frames are created by a decoder from a
pool Buffer, after which the Buffer goes back to its pool and the Frame owns a
private copy of the pixels.

Nothing may modify the bytes returned by Bytes() or the Pix of the image
returned by Image(). Frames are shared by reference between the acquisition
worker, the compositor and the persistence sink.
*/
type Frame struct {
	Width    int
	Height   int
	Channels int
	BitDepth int

	// Pixel layout of the decoded image: Mono8, Mono16 or RGB8.
	Layout PixelFormat

	// Tag identifies the plane within its FrameSet, e.g. "0", "45", "90"
	// and "135" for polarization angles. Empty for single-plane sets.
	Tag string

	pix []byte
}

// NewFrame takes ownership of pix. The length of pix must equal
// width*height*channels*bitDepth/8.
func NewFrame(width, height, channels, bitDepth int, layout PixelFormat, tag string, pix []byte) (*Frame, error) {
	if width <= 0 || height <= 0 || channels <= 0 || bitDepth%8 != 0 {
		return nil, errors.Errorf("media: invalid frame geometry %dx%dx%d@%d", width, height, channels, bitDepth)
	}
	if want := width * height * channels * bitDepth / 8; len(pix) != want {
		return nil, errors.Wrapf(ErrFrameSize, "%d bytes, want %d", len(pix), want)
	}
	return &Frame{
		Width:    width,
		Height:   height,
		Channels: channels,
		BitDepth: bitDepth,
		Layout:   layout,
		Tag:      tag,
		pix:      pix,
	}, nil
}

// Bytes returns the pixel data. The slice must not be modified.
func (f *Frame) Bytes() []byte {
	return f.pix
}

// Stride is the number of bytes per row.
func (f *Frame) Stride() int {
	return f.Width * f.Channels * f.BitDepth / 8
}

// Image wraps the pixel data in an image.Image without copying.
func (f *Frame) Image() image.Image {
	r := image.Rect(0, 0, f.Width, f.Height)
	switch {
	case f.Channels == 1 && f.BitDepth == 8:
		return &image.Gray{Pix: f.pix, Stride: f.Stride(), Rect: r}
	case f.Channels == 1 && f.BitDepth == 16:
		// image.Gray16 is big-endian; camera data is little-endian.
		img := image.NewGray16(r)
		for i := 0; i+1 < len(f.pix); i += 2 {
			img.Pix[i], img.Pix[i+1] = f.pix[i+1], f.pix[i]
		}
		return img
	case f.Channels == 3 && f.BitDepth == 8:
		img := image.NewRGBA(r)
		for i, j := 0, 0; i+2 < len(f.pix); i, j = i+3, j+4 {
			img.Pix[j] = f.pix[i]
			img.Pix[j+1] = f.pix[i+1]
			img.Pix[j+2] = f.pix[i+2]
			img.Pix[j+3] = 0xff
		}
		return img
	}
	return image.NewGray(r)
}

// A FrameSet is everything decoded from one camera buffer: one frame for
// ordinary formats, or one frame per plane for polarization formats.
type FrameSet struct {
	// Serial number of the source.
	Source string

	// Sequence number of the buffer within the stream, starting at 1.
	Seq uint64

	// Device frame id, if the device reports one.
	FrameID uint64

	// Time the buffer was captured.
	Timestamp time.Time

	// Chunk data attached to the buffer (e.g. ChunkExposureTime).
	Chunks map[string]float64

	Frames []*Frame
}

// Frame returns the plane with the given tag, or nil.
func (s *FrameSet) Frame(tag string) *Frame {
	if s == nil {
		return nil
	}
	for _, f := range s.Frames {
		if f.Tag == tag {
			return f
		}
	}
	return nil
}
