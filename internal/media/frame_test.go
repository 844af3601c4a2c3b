package media

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFrameValidatesSize(t *testing.T) {
	_, err := NewFrame(4, 2, 3, 8, RGB8, "", make([]byte, 23))
	assert.Error(t, err)

	f, err := NewFrame(4, 2, 3, 8, RGB8, "", make([]byte, 24))
	require.NoError(t, err)
	assert.Equal(t, 12, f.Stride())
}

func TestFrameImage(t *testing.T) {
	gray, err := NewFrame(2, 1, 1, 8, Mono8, "", []byte{10, 20})
	require.NoError(t, err)
	assert.IsType(t, &image.Gray{}, gray.Image())

	deep, err := NewFrame(1, 1, 1, 16, Mono16, "", []byte{0x34, 0x12})
	require.NoError(t, err)
	g16 := deep.Image().(*image.Gray16)
	assert.EqualValues(t, 0x1234, g16.Gray16At(0, 0).Y)

	rgb, err := NewFrame(1, 1, 3, 8, RGB8, "", []byte{1, 2, 3})
	require.NoError(t, err)
	r, g, b, a := rgb.Image().At(0, 0).RGBA()
	assert.Equal(t, []uint32{1, 2, 3, 0xff}, []uint32{r >> 8, g >> 8, b >> 8, a >> 8})
}

func TestPixelFormatSizes(t *testing.T) {
	assert.Equal(t, 4*10*10, PolarizedAngles.FrameSize(10, 10))
	assert.Equal(t, 2*10*10, YUV422_8.FrameSize(10, 10))
	assert.False(t, PixelFormat("Coord3D_ABC16").Known())
}
