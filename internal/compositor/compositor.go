// Package compositor tiles the latest frames of every source into one
// image for display and saving.
package compositor

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/lanikai/multicam/internal/media"
)

const (
	DefaultBorder = 10

	placeholderText = "no signal"
)

var (
	DefaultTile = image.Pt(612, 512)

	borderColor      = color.White
	placeholderColor = color.RGBA{0x30, 0x30, 0x30, 0xff}
	labelColor       = color.RGBA{0xff, 0xff, 0x00, 0xff}
)

type Options struct {
	// Size of each source's block. The planes of a source share its block
	// in a square-ish grid.
	Tile image.Point

	// Sources per row; 0 puts all sources in one row.
	Columns int

	// Width of the white separator between source blocks.
	Border int

	// Draw the source serial and plane tags on each block.
	Labels bool
}

// An Input is one source as seen by the compositor.
type Input struct {
	Serial string
	Slot   *media.Slot
}

// A Compositor renders Inputs. It keeps rendered placeholder tiles between
// calls and is safe for concurrent use.
type Compositor struct {
	opts Options

	mu    sync.Mutex
	cache *lru.Cache
}

func New(opts Options) *Compositor {
	if opts.Tile.X <= 0 || opts.Tile.Y <= 0 {
		opts.Tile = DefaultTile
	}
	if opts.Border < 0 {
		opts.Border = 0
	}
	return &Compositor{opts: opts, cache: lru.New(64)}
}

func (c *Compositor) Options() Options {
	return c.opts
}

// Size returns the dimensions of the composite of n sources.
func (c *Compositor) Size(n int) image.Point {
	if n <= 0 {
		return image.Point{}
	}
	cols, rows := c.layout(n)
	b := c.opts.Border
	return image.Pt(cols*c.opts.Tile.X+(cols-1)*b, rows*c.opts.Tile.Y+(rows-1)*b)
}

func (c *Compositor) layout(n int) (cols, rows int) {
	cols = c.opts.Columns
	if cols <= 0 || cols > n {
		cols = n
	}
	rows = (n + cols - 1) / cols
	return
}

// Compose reads every slot once and tiles the results, sources ordered by
// serial. Empty slots get a placeholder tile. Compose never blocks on a
// worker and returns nil for no inputs.
func (c *Compositor) Compose(inputs []Input) *image.RGBA {
	if len(inputs) == 0 {
		return nil
	}
	sorted := make([]Input, len(inputs))
	copy(sorted, inputs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Serial < sorted[j].Serial })

	sets := make([]*media.FrameSet, len(sorted))
	for i, in := range sorted {
		if in.Slot != nil {
			sets[i] = in.Slot.Load()
		}
	}
	return c.render(sorted, sets)
}

// ComposeSets tiles already loaded FrameSets, e.g. the exact sets about to
// be saved. A nil entry gets a placeholder.
func (c *Compositor) ComposeSets(serials []string, sets []*media.FrameSet) *image.RGBA {
	inputs := make([]Input, len(serials))
	for i, s := range serials {
		inputs[i] = Input{Serial: s}
	}
	idx := make([]int, len(serials))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return serials[idx[a]] < serials[idx[b]] })

	sortedIn := make([]Input, len(idx))
	sortedSets := make([]*media.FrameSet, len(idx))
	for i, j := range idx {
		sortedIn[i] = inputs[j]
		if j < len(sets) {
			sortedSets[i] = sets[j]
		}
	}
	return c.render(sortedIn, sortedSets)
}

func (c *Compositor) render(inputs []Input, sets []*media.FrameSet) *image.RGBA {
	size := c.Size(len(inputs))
	dst := image.NewRGBA(image.Rectangle{Max: size})
	draw.Draw(dst, dst.Bounds(), image.NewUniform(borderColor), image.Point{}, draw.Src)

	cols, _ := c.layout(len(inputs))
	for i, in := range inputs {
		r := c.blockRect(i, cols)
		if set := sets[i]; set != nil && len(set.Frames) > 0 {
			c.drawSet(dst, r, in.Serial, set)
		} else {
			draw.Draw(dst, r, c.placeholder(in.Serial), image.Point{}, draw.Src)
		}
	}
	return dst
}

func (c *Compositor) blockRect(i, cols int) image.Rectangle {
	t, b := c.opts.Tile, c.opts.Border
	x := (i % cols) * (t.X + b)
	y := (i / cols) * (t.Y + b)
	return image.Rect(x, y, x+t.X, y+t.Y)
}

// Grid returns a square-ish grid for n planes: 1x1, 2x1, 2x2, 3x2, ...
func Grid(n int) (cols, rows int) {
	if n <= 1 {
		return 1, 1
	}
	cols = int(math.Ceil(math.Sqrt(float64(n))))
	rows = (n + cols - 1) / cols
	return
}

func (c *Compositor) drawSet(dst *image.RGBA, block image.Rectangle, serial string, set *media.FrameSet) {
	cols, rows := Grid(len(set.Frames))
	cw, ch := block.Dx()/cols, block.Dy()/rows
	for k, f := range set.Frames {
		x := block.Min.X + (k%cols)*cw
		y := block.Min.Y + (k/cols)*ch
		cell := image.Rect(x, y, x+cw, y+ch)
		src := f.Image()
		draw.ApproxBiLinear.Scale(dst, cell, src, src.Bounds(), draw.Src, nil)
		if c.opts.Labels && f.Tag != "" {
			label(dst, cell, f.Tag+"°")
		}
	}
	if c.opts.Labels {
		label(dst, block.Add(image.Pt(0, 14)), serial)
	}
}

func (c *Compositor) placeholder(serial string) image.Image {
	key := fmt.Sprintf("%s/%dx%d/%t", serial, c.opts.Tile.X, c.opts.Tile.Y, c.opts.Labels)

	c.mu.Lock()
	defer c.mu.Unlock()
	if img, ok := c.cache.Get(key); ok {
		return img.(image.Image)
	}

	r := image.Rectangle{Max: c.opts.Tile}
	img := image.NewRGBA(r)
	draw.Draw(img, r, image.NewUniform(placeholderColor), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	w := font.MeasureString(face, placeholderText).Ceil()
	center := image.Pt((r.Dx()-w)/2, r.Dy()/2)
	drawText(img, center, placeholderText)
	if c.opts.Labels {
		label(img, r.Add(image.Pt(0, 14)), serial)
	}

	c.cache.Add(key, image.Image(img))
	return img
}

func label(dst draw.Image, cell image.Rectangle, text string) {
	drawText(dst, cell.Min.Add(image.Pt(4, 13)), text)
}

func drawText(dst draw.Image, at image.Point, text string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(labelColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(at.X, at.Y),
	}
	d.DrawString(text)
}

// Title is the window title for a set of source names.
func Title(names []string) string {
	return strings.Join(names, " || ")
}
