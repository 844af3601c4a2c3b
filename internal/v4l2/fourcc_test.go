package v4l2

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lanikai/multicam/internal/media"
)

func TestFourcc(t *testing.T) {
	assert.Equal(t, uint32(0x56595559), V4L2_PIX_FMT_YUYV)
	assert.Equal(t, "GREY", FourccString(V4L2_PIX_FMT_GREY))

	for _, f := range []media.PixelFormat{media.Mono8, media.Mono16, media.BayerRG8, media.RGB8, media.BGR8, media.YUV422_8} {
		code, ok := ToFourcc(f)
		assert.True(t, ok, f)
		back, ok := FromFourcc(code)
		assert.True(t, ok)
		assert.Equal(t, f, back)
	}

	_, ok := ToFourcc(media.PolarizedAngles)
	assert.False(t, ok)
	_, ok = FromFourcc(Fourcc('H', '2', '6', '4'))
	assert.False(t, ok)
}
