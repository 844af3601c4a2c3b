package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/lanikai/multicam/internal/camera"
	"github.com/lanikai/multicam/internal/media"
)

func TestEnumerate(t *testing.T) {
	infos, err := camera.Enumerate([]string{"sim:3?format=Mono16&width=32&height=16"})
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, "sim", infos[0].Driver)
	assert.Equal(t, "SIM000002", infos[1].Serial)
	assert.Equal(t, "SIM-CAM-SIM000003", infos[2].Name())

	src, err := camera.Open(infos[0])
	require.NoError(t, err)
	s := src.(*Source)
	assert.Equal(t, media.Mono16, s.cfg.Format)
	assert.Equal(t, 32, s.cfg.Width)

	_, err = camera.Enumerate([]string{"nope:1"})
	assert.Error(t, err)

	d := &Driver{}
	_, err = d.Enumerate("2?color=red")
	assert.Error(t, err)
}

func TestStreamDeliversScript(t *testing.T) {
	gate := make(chan struct{})
	script := [][]byte{{1, 1, 1, 1}, {2, 2, 2, 2}}
	src := New(camera.DeviceInfo{ID: "A"}, Config{Width: 2, Height: 2, Script: script, Gate: gate})

	err := camera.WithStream(src, 4, func(src camera.Source) error {
		for i := range script {
			gate <- struct{}{}
			err := camera.Consume(src, time.Second, func(buf *media.Buffer) error {
				assert.Equal(t, script[i], buf.Bytes())
				assert.EqualValues(t, i+1, buf.FrameID)
				assert.Equal(t, media.Mono8, buf.Format)
				return nil
			})
			require.NoError(t, err)
		}

		// Script exhausted: the camera goes quiet.
		_, err := src.Next(20 * time.Millisecond)
		assert.True(t, camera.IsTimeout(err))
		return nil
	})
	require.NoError(t, err)

	_, err = src.Next(time.Millisecond)
	assert.Equal(t, camera.ErrNotStarted, err)
	assert.NoError(t, src.Stop(), "Stop is idempotent")
}

func TestConfigureFeatures(t *testing.T) {
	src := New(camera.DeviceInfo{ID: "B"}, Config{Reject: map[string]bool{"GainAuto": true}})

	features, err := camera.ParseFeatures([]string{
		"UserSetLoad!",
		"Width=max",
		"Height=min",
		"?GainAuto=Off",
		"PixelFormat=BayerRG8",
	})
	require.NoError(t, err)
	require.NoError(t, camera.Configure(src, features))

	w, _ := src.Feature("Width")
	h, _ := src.Feature("Height")
	assert.Equal(t, "1224", w)
	assert.Equal(t, "8", h)
	assert.Equal(t, media.BayerRG8, src.cfg.Format)

	err = camera.Configure(src, []camera.Feature{{Name: "PixelFormat", Value: "Coord3D_ABC16"}})
	assert.True(t, xerrors.Is(err, camera.ErrConfigurationRejected))
	var ferr *camera.FeatureError
	require.True(t, xerrors.As(err, &ferr))
	assert.Equal(t, "PixelFormat", ferr.Feature)
	assert.True(t, errors.Is(err, camera.ErrOutOfRange))

	err = camera.Configure(src, []camera.Feature{{Name: "DeviceSerialNumber", Value: "x"}})
	assert.True(t, xerrors.Is(err, camera.ErrConfigurationRejected))
}

func TestFeaturesLockedWhileStreaming(t *testing.T) {
	src := New(camera.DeviceInfo{ID: "C"}, Config{})
	require.NoError(t, src.Start(2))
	defer src.Stop()

	assert.True(t, errors.Is(src.SetFeature("Width", "16"), camera.ErrReadOnly))
	assert.NoError(t, src.SetFeature("ExposureTime", "2000"))
}

func TestDroppedWhenAllBuffersInFlight(t *testing.T) {
	gate := make(chan struct{})
	src := New(camera.DeviceInfo{ID: "D"}, Config{Gate: gate})
	require.NoError(t, src.Start(1))
	defer src.Stop()

	gate <- struct{}{}
	buf, err := src.Next(time.Second)
	require.NoError(t, err)

	// The only buffer is held, so the next frame has nowhere to go.
	gate <- struct{}{}
	assert.Eventually(t, func() bool { return src.Dropped() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, buf.Release())
	gate <- struct{}{}
	buf, err = src.Next(time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 3, buf.FrameID)
	buf.Release()
}

func TestSimulatedDisconnect(t *testing.T) {
	src := New(camera.DeviceInfo{ID: "E"}, Config{Interval: time.Millisecond, DisconnectAfter: 2, Chunks: true})
	require.NoError(t, src.Start(4))
	defer src.Stop()

	for i := 0; i < 2; i++ {
		err := camera.Consume(src, time.Second, func(buf *media.Buffer) error {
			assert.EqualValues(t, buf.FrameID, buf.Chunks["ChunkFrameCounter"])
			return nil
		})
		require.NoError(t, err)
	}
	_, err := src.Next(time.Second)
	assert.True(t, camera.IsDisconnected(err))
}

func TestStartError(t *testing.T) {
	boom := errors.New("no link")
	src := New(camera.DeviceInfo{ID: "F"}, Config{StartErr: boom})
	err := camera.WithStream(src, 2, func(camera.Source) error {
		t.Fatal("body must not run")
		return nil
	})
	assert.Equal(t, boom, err)
}
