package compositor

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/multicam/internal/media"
)

func uniformSet(t *testing.T, serial string, v byte, tags ...string) *media.FrameSet {
	if len(tags) == 0 {
		tags = []string{""}
	}
	set := &media.FrameSet{Source: serial}
	for _, tag := range tags {
		pix := make([]byte, 8*6)
		for i := range pix {
			pix[i] = v
		}
		f, err := media.NewFrame(8, 6, 1, 8, media.Mono8, tag, pix)
		require.NoError(t, err)
		set.Frames = append(set.Frames, f)
	}
	return set
}

func gray(img *image.RGBA, x, y int) color.RGBA {
	return img.RGBAAt(x, y)
}

func TestComposePlaceholders(t *testing.T) {
	c := New(Options{Tile: image.Pt(40, 30), Columns: 2, Border: 10})

	var b, d media.Slot
	b.Store(uniformSet(t, "B", 200))
	d.Store(uniformSet(t, "D", 100))

	// A and C never produced a frame.
	img := c.Compose([]Input{
		{Serial: "D", Slot: &d},
		{Serial: "C", Slot: new(media.Slot)},
		{Serial: "B", Slot: &b},
		{Serial: "A", Slot: new(media.Slot)},
	})
	require.NotNil(t, img)
	assert.Equal(t, image.Rect(0, 0, 90, 70), img.Bounds())
	assert.Equal(t, image.Pt(90, 70), c.Size(4))

	// A: top left, B: top right, C: bottom left, D: bottom right.
	assert.Equal(t, placeholderColor, gray(img, 1, 1))
	assert.Equal(t, color.RGBA{200, 200, 200, 255}, gray(img, 51, 1))
	assert.Equal(t, placeholderColor, gray(img, 1, 41))
	assert.Equal(t, color.RGBA{100, 100, 100, 255}, gray(img, 51, 41))

	// Borders stay white.
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, gray(img, 45, 5))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, gray(img, 5, 35))
}

func TestComposeOneRow(t *testing.T) {
	c := New(Options{Tile: image.Pt(20, 10), Border: 10})
	img := c.Compose([]Input{{Serial: "A"}, {Serial: "B"}, {Serial: "C"}})
	assert.Equal(t, image.Rect(0, 0, 80, 10), img.Bounds())
}

func TestComposeEmpty(t *testing.T) {
	assert.Nil(t, New(Options{}).Compose(nil))
}

func TestComposePlanesInGrid(t *testing.T) {
	c := New(Options{Tile: image.Pt(40, 30)})
	set := &media.FrameSet{Source: "A"}
	for i, tag := range []string{"0", "45", "90", "135"} {
		set.Frames = append(set.Frames, uniformSet(t, "A", byte(50*(i+1)), tag).Frames[0])
	}
	var slot media.Slot
	slot.Store(set)

	img := c.Compose([]Input{{Serial: "A", Slot: &slot}})
	assert.Equal(t, color.RGBA{50, 50, 50, 255}, gray(img, 2, 2))
	assert.Equal(t, color.RGBA{100, 100, 100, 255}, gray(img, 22, 2))
	assert.Equal(t, color.RGBA{150, 150, 150, 255}, gray(img, 2, 17))
	assert.Equal(t, color.RGBA{200, 200, 200, 255}, gray(img, 22, 17))
}

func TestComposeSetsMatchesCompose(t *testing.T) {
	c := New(Options{Tile: image.Pt(16, 12), Labels: true})
	setB := uniformSet(t, "B", 7)

	var slot media.Slot
	slot.Store(setB)
	want := c.Compose([]Input{{Serial: "B", Slot: &slot}, {Serial: "A"}})
	got := c.ComposeSets([]string{"B", "A"}, []*media.FrameSet{setB, nil})
	assert.Equal(t, want.Pix, got.Pix)
}

func TestGrid(t *testing.T) {
	for n, want := range map[int][2]int{1: {1, 1}, 2: {2, 1}, 3: {2, 2}, 4: {2, 2}, 5: {3, 2}, 9: {3, 3}} {
		cols, rows := Grid(n)
		assert.Equal(t, want, [2]int{cols, rows}, "n=%d", n)
	}
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "TRI-1 || TRI-2", Title([]string{"TRI-1", "TRI-2"}))
}
