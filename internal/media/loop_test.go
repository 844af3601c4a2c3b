package media

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoopSingleInstance(t *testing.T) {
	var running int32
	loop := NewLoop(func(quit <-chan struct{}) error {
		if atomic.AddInt32(&running, 1) > 1 {
			t.Error("loop running twice")
		}
		<-quit
		atomic.AddInt32(&running, -1)
		return nil
	})

	assert.True(t, loop.Start())
	assert.False(t, loop.Start())
	assert.NoError(t, loop.Stop())
	assert.NoError(t, loop.Stop())

	// Restartable after a stop.
	assert.True(t, loop.Start())
	assert.NoError(t, loop.Stop())
}

func TestLoopError(t *testing.T) {
	boom := errors.New("boom")
	loop := NewLoop(func(quit <-chan struct{}) error {
		return boom
	})
	loop.Start()

	select {
	case <-loop.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not terminate")
	}
	assert.Equal(t, boom, loop.Err())
	assert.Equal(t, boom, loop.Stop())
}
