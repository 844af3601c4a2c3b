// Package storage writes saved frames to disk and records them in an
// optional catalog.
package storage

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/lanikai/multicam/internal/logging"
	"github.com/lanikai/multicam/internal/media"
)

var log = logging.DefaultLogger.WithTag("storage")

// Give up after this many colliding names for one image.
const maxSuffix = 1000

// Sink is the persistence sink. Each Save writes one file per frame into a
// per-day directory. Existing files are never overwritten.
type Sink struct {
	Format Format

	// Clock used for directory and file names.
	Now func() time.Time
}

func NewSink(format Format) *Sink {
	if format == "" {
		format = PNG
	}
	return &Sink{Format: format, Now: time.Now}
}

// A Saved file.
type Saved struct {
	Path   string
	Tag    string
	Size   int64
	Width  int
	Height int
	Layout media.PixelFormat
}

// DayDir is the per-day directory under base, e.g. "base/2019-3-7".
func DayDir(base string, t time.Time) string {
	return filepath.Join(base, fmt.Sprintf("%d-%d-%d", t.Year(), int(t.Month()), t.Day()))
}

// Stamp is the timestamp prefix of saved file names, with microseconds.
func Stamp(t time.Time) string {
	return fmt.Sprintf("%s-%06d", t.Format("06-01-02-15-04-05"), t.Nanosecond()/1000)
}

// Save writes every frame of set to {baseDir}/{Y-M-D}/{stamp}_{tag}.{ext}
// and returns the written files. A failure leaves already written files in
// place and is a *FilesystemError.
func (s *Sink) Save(set *media.FrameSet, baseDir string) ([]Saved, error) {
	now := s.now()
	dir, err := s.mkdir(baseDir, now)
	if err != nil {
		return nil, err
	}

	var saved []Saved
	for _, f := range set.Frames {
		out, err := s.write(dir, Stamp(now), f.Tag, f.Image())
		if err != nil {
			return saved, err
		}
		out.Layout = f.Layout
		saved = append(saved, out)
	}
	return saved, nil
}

// SaveImage writes a single image, e.g. a composite, the same way.
func (s *Sink) SaveImage(img image.Image, tag, baseDir string) (Saved, error) {
	now := s.now()
	dir, err := s.mkdir(baseDir, now)
	if err != nil {
		return Saved{}, err
	}
	return s.write(dir, Stamp(now), tag, img)
}

// Paths lists the paths of saved files.
func Paths(saved []Saved) []string {
	paths := make([]string, len(saved))
	for i, s := range saved {
		paths[i] = s.Path
	}
	return paths
}

func (s *Sink) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Sink) mkdir(base string, t time.Time) (string, error) {
	dir := DayDir(base, t)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fsError("mkdir", dir, err)
	}
	return dir, nil
}

func (s *Sink) write(dir, stamp, tag string, img image.Image) (Saved, error) {
	format := s.Format
	if format == "" {
		format = PNG
	}
	base := stamp
	if tag != "" {
		base += "_" + tag
	}

	file, path, err := create(dir, base, format.Ext())
	if err != nil {
		return Saved{}, err
	}
	if err := format.Encode(file, img); err != nil {
		file.Close()
		os.Remove(path)
		return Saved{}, fsError("encode", path, err)
	}
	if err := file.Close(); err != nil {
		return Saved{}, fsError("close", path, err)
	}

	var size int64
	if fi, err := os.Stat(path); err == nil {
		size = fi.Size()
	}
	log.Debug("Wrote %s (%d bytes)", path, size)
	b := img.Bounds()
	return Saved{Path: path, Tag: tag, Size: size, Width: b.Dx(), Height: b.Dy()}, nil
}

// create makes a new file named base.ext, or base-1.ext, base-2.ext, ...
// if the name is taken.
func create(dir, base, ext string) (*os.File, string, error) {
	for i := 0; i < maxSuffix; i++ {
		name := base
		if i > 0 {
			name += "-" + strconv.Itoa(i)
		}
		path := filepath.Join(dir, name+"."+ext)
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return file, path, nil
		}
		if !os.IsExist(err) {
			return nil, "", fsError("create", path, err)
		}
	}
	return nil, "", fsError("create", filepath.Join(dir, base+"."+ext), os.ErrExist)
}
