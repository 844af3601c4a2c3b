package multicam

import (
	"context"
	"crypto/sha256"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/multicam/internal/camera"
	"github.com/lanikai/multicam/internal/camera/sim"
	"github.com/lanikai/multicam/internal/media"
	"github.com/lanikai/multicam/internal/storage"
)

const (
	testWidth  = 8
	testHeight = 4
)

func testConfig(t *testing.T) Config {
	return Config{
		Buffers: 3,
		Timeout: 50 * time.Millisecond,
		Output:  t.TempDir(),
		Format:  storage.PNG,
		Tile:    image.Pt(32, 16),
	}
}

// script returns n Mono8 frames, frame i filled with a pattern seeded by
// seed and i.
func script(seed byte, n int) [][]byte {
	frames := make([][]byte, n)
	for i := range frames {
		p := make([]byte, testWidth*testHeight)
		for j := range p {
			p[j] = seed + byte(i*16+j)
		}
		frames[i] = p
	}
	return frames
}

func addSim(t *testing.T, p *Pipeline, serial string, cfg sim.Config) *SourceHandle {
	src := sim.New(camera.DeviceInfo{Driver: "sim", ID: serial}, cfg)
	h, err := p.Add(src)
	require.NoError(t, err)
	return h
}

func waitFor(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestAllWorkersReachStreaming(t *testing.T) {
	p, err := New(testConfig(t))
	require.NoError(t, err)

	serials := []string{"SIM000003", "SIM000001", "SIM000002", "SIM000004"}
	for _, s := range serials {
		addSim(t, p, s, sim.Config{Width: testWidth, Height: testHeight, Interval: 5 * time.Millisecond})
	}

	require.NoError(t, p.Start())
	assert.Equal(t, len(serials), p.Streaming())

	handles := p.Handles()
	require.Len(t, handles, 4)
	for i, h := range handles {
		assert.Equal(t, Streaming, h.Status(), h.Name())
		if i > 0 {
			assert.True(t, handles[i-1].Info.Serial < h.Info.Serial, "sorted by serial")
		}
	}
	assert.Equal(t, "SIM-CAM-SIM000001 || SIM-CAM-SIM000002 || SIM-CAM-SIM000003 || SIM-CAM-SIM000004", p.Title())

	require.NoError(t, p.Shutdown())
	for _, h := range handles {
		assert.Equal(t, Stopped, h.Status())
	}
	assert.NoError(t, p.Shutdown())
}

func TestStartReportsFailedSources(t *testing.T) {
	p, err := New(testConfig(t))
	require.NoError(t, err)
	defer p.Shutdown()

	addSim(t, p, "SIM000001", sim.Config{Width: testWidth, Height: testHeight})
	addSim(t, p, "SIM000002", sim.Config{StartErr: errors.New("no bandwidth")})

	err = p.Start()
	require.Error(t, err)
	serr, ok := err.(*StartError)
	require.True(t, ok, "%T", err)
	assert.Contains(t, serr.Failed, "SIM-CAM-SIM000002")
	assert.Len(t, serr.Failed, 1)
	assert.Equal(t, 1, p.Streaming())

	handles := p.Handles()
	assert.Equal(t, Streaming, handles[0].Status())
	assert.Equal(t, Disconnected, handles[1].Status())
	assert.Error(t, handles[1].Err())
}

func TestStartRejectedConfiguration(t *testing.T) {
	cfg := testConfig(t)
	cfg.Features, _ = camera.ParseFeatures([]string{"ExposureTime=5000"})
	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Shutdown()

	addSim(t, p, "SIM000001", sim.Config{Reject: map[string]bool{"ExposureTime": true}})

	err = p.Start()
	assert.Equal(t, ErrAllSourcesLost, errors.Cause(err))
	h := p.Handles()[0]
	assert.Equal(t, Disconnected, h.Status())
	assert.True(t, errors.Is(h.Err(), camera.ErrConfigurationRejected))
}

func TestAddAfterStart(t *testing.T) {
	p, err := New(testConfig(t))
	require.NoError(t, err)
	defer p.Shutdown()

	addSim(t, p, "SIM000001", sim.Config{Width: testWidth, Height: testHeight})
	require.NoError(t, p.Start())

	_, err = p.Add(sim.New(camera.DeviceInfo{ID: "SIM000002"}, sim.Config{}))
	assert.Error(t, err)
	assert.Error(t, p.Start())
}

func TestDisconnectIsReported(t *testing.T) {
	p, err := New(testConfig(t))
	require.NoError(t, err)
	defer p.Shutdown()

	addSim(t, p, "SIM000001", sim.Config{Width: testWidth, Height: testHeight, Interval: 5 * time.Millisecond})
	addSim(t, p, "SIM000002", sim.Config{Width: testWidth, Height: testHeight, Interval: 5 * time.Millisecond, DisconnectAfter: 2})
	require.NoError(t, p.Start())

	select {
	case ev := <-p.Events():
		assert.Equal(t, "SIM000002", ev.Handle.Info.Serial)
		assert.True(t, camera.IsDisconnected(ev.Err))
		assert.Equal(t, Disconnected, ev.Handle.Status())
	case <-time.After(2 * time.Second):
		t.Fatal("no disconnect event")
	}
	assert.Equal(t, 1, p.Streaming())

	// The lost source keeps its last frame.
	assert.Equal(t, uint64(2), p.Handles()[1].Slot.Version())
}

// Two sources emit a fixed script of five frames each. A save after the
// third frame of each writes exactly one file per source, holding frame 3.
func TestSaveAfterThirdFrame(t *testing.T) {
	cfg := testConfig(t)
	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Shutdown()

	scripts := map[string][][]byte{
		"SIM000001": script(0, 5),
		"SIM000002": script(100, 5),
	}
	gates := map[string]chan struct{}{}
	for serial, frames := range scripts {
		gates[serial] = make(chan struct{})
		addSim(t, p, serial, sim.Config{
			Width:  testWidth,
			Height: testHeight,
			Format: media.Mono8,
			Script: frames,
			Gate:   gates[serial],
		})
	}
	require.NoError(t, p.Start())

	for _, gate := range gates {
		for i := 0; i < 3; i++ {
			gate <- struct{}{}
		}
	}
	for _, h := range p.Handles() {
		h := h
		waitFor(t, func() bool { return h.Slot.Version() == 3 })
	}

	paths, err := p.Save()
	require.NoError(t, err)
	require.Len(t, paths, 2)

	for _, h := range p.Handles() {
		dir := filepath.Join(cfg.Output, h.Name())
		var path string
		for _, p := range paths {
			if filepath.Dir(filepath.Dir(p)) == dir {
				path = p
			}
		}
		require.NotEmpty(t, path, "no file for %s", h.Name())

		f, err := os.Open(path)
		require.NoError(t, err)
		img, err := png.Decode(f)
		f.Close()
		require.NoError(t, err)

		gray, ok := img.(*image.Gray)
		require.True(t, ok, "%T", img)
		want := sha256.Sum256(scripts[h.Info.Serial][2])
		assert.Equal(t, want, sha256.Sum256(gray.Pix), h.Name())
	}

	// The remaining frames still flow after a save.
	for _, gate := range gates {
		gate <- struct{}{}
	}
	for _, h := range p.Handles() {
		h := h
		waitFor(t, func() bool { return h.Slot.Version() == 4 })
	}
}

func TestSaveCompositeAndCatalog(t *testing.T) {
	cfg := testConfig(t)
	cfg.SaveComposite = true
	cfg.Catalog = filepath.Join(t.TempDir(), "catalog.db")
	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Shutdown()

	gate := make(chan struct{})
	addSim(t, p, "SIM000001", sim.Config{Width: testWidth, Height: testHeight, Gate: gate, Chunks: true})
	addSim(t, p, "SIM000002", sim.Config{Width: testWidth, Height: testHeight, Gate: make(chan struct{})})
	require.NoError(t, p.Start())

	gate <- struct{}{}
	waitFor(t, func() bool { return p.Handles()[0].Slot.Version() == 1 })

	// SIM000002 has no frame yet: only its tile in the composite, as a
	// placeholder.
	paths, err := p.Save()
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Contains(t, filepath.Base(paths[1]), "_"+CompositeTag+".png")

	records, err := p.Catalog().Recent(10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	sources := []string{records[0].Source, records[1].Source}
	assert.ElementsMatch(t, []string{"SIM000001", CompositeTag}, sources)
	for _, r := range records {
		if r.Source == "SIM000001" {
			assert.Equal(t, float64(1), r.Chunks["ChunkFrameCounter"])
		}
	}
}

func TestSaveFilesystemErrorKeepsStreaming(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(cfg.Output, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	cfg.Output = blocker

	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Shutdown()

	addSim(t, p, "SIM000001", sim.Config{Width: testWidth, Height: testHeight, Interval: 5 * time.Millisecond})
	require.NoError(t, p.Start())
	h := p.Handles()[0]
	waitFor(t, func() bool { return h.Slot.Version() > 0 })

	_, err = p.Save()
	assert.True(t, errors.Is(err, storage.ErrFilesystem))

	v := h.Slot.Version()
	waitFor(t, func() bool { return h.Slot.Version() > v })
	assert.Equal(t, Streaming, h.Status())
}

func TestSnapshotPlaceholders(t *testing.T) {
	p, err := New(testConfig(t))
	require.NoError(t, err)
	defer p.Shutdown()

	addSim(t, p, "SIM000001", sim.Config{Width: testWidth, Height: testHeight, Gate: make(chan struct{})})
	addSim(t, p, "SIM000002", sim.Config{Width: testWidth, Height: testHeight, Gate: make(chan struct{})})
	require.NoError(t, p.Start())

	img := p.Snapshot()
	// Two 32x16 tiles in one row, 10 pixel border between.
	assert.Equal(t, image.Rect(0, 0, 32+10+32, 16), img.Bounds())
}

func TestEnumerateWithRetry(t *testing.T) {
	infos, err := EnumerateWithRetry(context.Background(), []string{"sim:3"}, 1, 0)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "SIM000001", infos[0].Serial)
	assert.Equal(t, "sim", infos[0].Driver)

	_, err = EnumerateWithRetry(context.Background(), nil, 1, 0)
	assert.Equal(t, ErrNoSources, err)

	_, err = EnumerateWithRetry(context.Background(), []string{"nosuchdriver:"}, 3, time.Hour)
	assert.Error(t, err)
}

func TestEnumerateWithRetryGivesUp(t *testing.T) {
	start := time.Now()
	_, err := EnumerateWithRetry(context.Background(), []string{"sim:0"}, 3, 10*time.Millisecond)
	assert.True(t, errors.Is(err, camera.ErrDeviceUnavailable))
	assert.True(t, time.Since(start) >= 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = EnumerateWithRetry(ctx, []string{"sim:0"}, 3, time.Hour)
	assert.Equal(t, context.Canceled, err)
}

func TestOpen(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources = []string{"sim:2?width=8&height=4"}
	p, err := New(cfg)
	require.NoError(t, err)
	defer p.Shutdown()

	require.NoError(t, p.Open(context.Background()))
	assert.Len(t, p.Handles(), 2)
	require.NoError(t, p.Start())
	assert.Equal(t, 2, p.Streaming())
}
