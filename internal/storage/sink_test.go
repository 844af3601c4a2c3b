package storage

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/multicam/internal/media"
)

func testSet(t *testing.T, tags ...string) *media.FrameSet {
	set := &media.FrameSet{Source: "SIM000001", Seq: 3, Timestamp: time.Now()}
	for i, tag := range tags {
		f, err := media.NewFrame(4, 2, 1, 8, media.Mono8, tag, []byte{byte(i), 1, 2, 3, 4, 5, 6, 7})
		require.NoError(t, err)
		set.Frames = append(set.Frames, f)
	}
	return set
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSaveLayout(t *testing.T) {
	base := t.TempDir()
	sink := NewSink(PNG)
	sink.Now = fixedClock(time.Date(2019, time.March, 7, 9, 5, 3, 123456789, time.Local))

	saved, err := sink.Save(testSet(t, "0", "45", "90", "135"), base)
	require.NoError(t, err)
	require.Len(t, saved, 4)

	dir := filepath.Join(base, "2019-3-7")
	assert.Equal(t, filepath.Join(dir, "19-03-07-09-05-03-123456_0.png"), saved[0].Path)
	assert.Equal(t, filepath.Join(dir, "19-03-07-09-05-03-123456_135.png"), saved[3].Path)
	for _, s := range saved {
		assert.FileExists(t, s.Path)
		assert.True(t, s.Size > 0)
		assert.Equal(t, 4, s.Width)
		assert.Equal(t, media.Mono8, s.Layout)
	}

	file, err := os.Open(saved[1].Path)
	require.NoError(t, err)
	defer file.Close()
	img, err := png.Decode(file)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 2, img.Bounds().Dy())
}

func TestSaveTwiceInSameSecond(t *testing.T) {
	base := t.TempDir()
	sink := NewSink(PNG)

	now := time.Date(2020, time.December, 24, 23, 59, 59, 0, time.Local)
	sink.Now = fixedClock(now)
	first, err := sink.Save(testSet(t, ""), base)
	require.NoError(t, err)

	sink.Now = fixedClock(now.Add(500 * time.Microsecond))
	second, err := sink.Save(testSet(t, ""), base)
	require.NoError(t, err)

	// Identical clock: the name is taken, so a suffix is added.
	third, err := sink.Save(testSet(t, ""), base)
	require.NoError(t, err)

	paths := map[string]bool{}
	for _, s := range append(append(first, second...), third...) {
		paths[s.Path] = true
		assert.FileExists(t, s.Path)
	}
	assert.Len(t, paths, 3)
	assert.Equal(t, "20-12-24-23-59-59-000500-1.png", filepath.Base(third[0].Path))
}

func TestSaveFormats(t *testing.T) {
	for _, name := range []string{"png", "jpg", "tiff", "bmp"} {
		format, err := ParseFormat(name)
		require.NoError(t, err)

		saved, err := NewSink(format).Save(testSet(t, "x"), t.TempDir())
		require.NoError(t, err, name)
		assert.Equal(t, "."+name, filepath.Ext(saved[0].Path))
	}

	_, err := ParseFormat("gif")
	assert.Equal(t, ErrUnknownFormat, err)
}

func TestSaveFilesystemError(t *testing.T) {
	// A regular file where the base directory should be.
	base := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(base, nil, 0644))

	_, err := NewSink(PNG).Save(testSet(t, "0"), base)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFilesystem))

	var fsErr *FilesystemError
	require.True(t, errors.As(err, &fsErr))
	assert.Equal(t, "mkdir", fsErr.Op)
}

func TestDayDirIsIdempotent(t *testing.T) {
	base := t.TempDir()
	sink := NewSink(PNG)
	sink.Now = fixedClock(time.Date(2021, time.January, 2, 0, 0, 0, 0, time.Local))

	for i := 0; i < 2; i++ {
		_, err := sink.Save(testSet(t, "0"), base)
		require.NoError(t, err)
	}
	entries, err := os.ReadDir(filepath.Join(base, "2021-1-2"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
