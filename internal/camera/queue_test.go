package camera

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/multicam/internal/media"
)

func fillByte(v byte) func(*media.Buffer) error {
	return func(buf *media.Buffer) error {
		return buf.Fill([]byte{v})
	}
}

func TestQueueDeliverAndNext(t *testing.T) {
	q := NewQueue(2, 4)
	defer q.Close()

	assert.True(t, q.Deliver(fillByte(1)))
	assert.True(t, q.Deliver(fillByte(2)))
	assert.False(t, q.Deliver(fillByte(3)), "all buffers in flight")
	assert.Equal(t, uint64(1), q.Dropped())

	buf, err := q.Next(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, buf.Bytes())
	require.NoError(t, buf.Release())

	buf, err = q.Next(time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, buf.Bytes())
	require.NoError(t, buf.Release())

	_, err = q.Next(10 * time.Millisecond)
	assert.Equal(t, ErrAcquisitionTimeout, err)
}

func TestQueueFail(t *testing.T) {
	q := NewQueue(2, 4)
	defer q.Close()

	require.True(t, q.Deliver(fillByte(1)))
	q.Fail(ErrDisconnected)

	buf, err := q.Next(time.Second)
	require.NoError(t, err, "queued buffers are still handed out")
	require.NoError(t, buf.Release())

	_, err = q.Next(time.Second)
	assert.Equal(t, ErrDisconnected, err)
}

func TestQueueDeliverRacingClose(t *testing.T) {
	for i := 0; i < 100; i++ {
		q := NewQueue(4, 4)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 4; j++ {
				q.Deliver(fillByte(byte(j)))
			}
		}()
		q.Close()
		wg.Wait()

		assert.Equal(t, 0, q.Pool().InFlight(), "buffer stranded after Close")
		_, err := q.Next(time.Second)
		assert.Equal(t, ErrNotStarted, err)
	}
}
