package multicast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/multicam/internal/camera"
	"github.com/lanikai/multicam/internal/media"
)

const testGroup = "239.255.77.77:37777"

func TestParsePath(t *testing.T) {
	group, serials, wait, err := parsePath(testGroup + "?serial=A,B&wait=50ms")
	require.NoError(t, err)
	assert.Equal(t, testGroup, group)
	assert.Equal(t, []string{"A", "B"}, serials)
	assert.Equal(t, 50*time.Millisecond, wait)

	_, _, _, err = parsePath("nonsense")
	assert.Error(t, err)
}

func TestEnumerateKnownSerials(t *testing.T) {
	infos, err := (&Driver{}).Enumerate(testGroup + "?serial=SIM000002,SIM000001")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, camera.ReadOnly, infos[0].Access)
	assert.Equal(t, testGroup, infos[0].Address)
}

func TestNotAMulticastGroup(t *testing.T) {
	_, err := NewSender("127.0.0.1:5000", 1)
	assert.Error(t, err)
}

// Relays a frame over the loopback interface. Skipped where the host has no
// multicast route.
func TestRelayLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("network test")
	}

	info := camera.DeviceInfo{Serial: "SIM000001", Model: "SIM-CAM"}
	l := NewListener(testGroup, info)
	if err := l.Start(2); err != nil {
		t.Skipf("cannot join multicast group: %v", err)
	}
	defer l.Stop()

	s, err := NewSender(testGroup, 1)
	if err != nil {
		t.Skipf("cannot send to multicast group: %v", err)
	}
	defer s.Close()

	pool := media.NewPool(1, 4000)
	buf := pool.TryAcquire()
	data := testData(4000)
	require.NoError(t, buf.Fill(data))
	buf.Width, buf.Height, buf.Format = 80, 50, media.Mono8

	var got *media.Buffer
	for i := 0; i < 20 && got == nil; i++ {
		if err := s.Send(info, buf); err != nil {
			t.Skipf("cannot send to multicast group: %v", err)
		}
		got, _ = l.Next(100 * time.Millisecond)
	}
	if got == nil {
		t.Skip("no multicast delivery on this host")
	}
	defer got.Release()
	assert.Equal(t, data, got.Bytes())
	assert.Equal(t, 80, got.Width)
	assert.Equal(t, media.Mono8, got.Format)
}
