package media

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolBackpressure(t *testing.T) {
	p := NewPool(3, 16)

	var held []*Buffer
	for i := 0; i < 3; i++ {
		b, err := p.Acquire(context.Background())
		require.NoError(t, err)
		held = append(held, b)
	}
	assert.Equal(t, 3, p.InFlight())

	got := make(chan *Buffer)
	go func() {
		b, err := p.Acquire(context.Background())
		if err == nil {
			got <- b
		}
	}()

	select {
	case <-got:
		t.Fatal("fourth Acquire did not block")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, held[1].Release())

	select {
	case b := <-got:
		assert.Same(t, held[1].block, b.block)
	case <-time.After(time.Second):
		t.Fatal("Acquire still blocked after Release")
	}
}

func TestPoolDoubleRelease(t *testing.T) {
	p := NewPool(1, 4)
	b := p.TryAcquire()
	require.NotNil(t, b)

	require.NoError(t, b.Release())
	assert.Equal(t, ErrDoubleRelease, b.Release())

	// The pool still holds exactly one buffer.
	assert.NotNil(t, p.TryAcquire())
	assert.Nil(t, p.TryAcquire())
}

func TestPoolStaleRelease(t *testing.T) {
	p := NewPool(1, 4)
	a := p.TryAcquire()
	require.NotNil(t, a)
	require.NoError(t, a.Release())

	b := p.TryAcquire()
	require.NotNil(t, b)
	require.NoError(t, b.Fill([]byte{7}))

	// The first lease is spent, whoever holds the storage now.
	assert.Equal(t, ErrDoubleRelease, a.Release())
	assert.Equal(t, 1, p.InFlight())
	assert.Nil(t, p.TryAcquire())
	assert.Equal(t, []byte{7}, b.Bytes())

	require.NoError(t, b.Release())
	assert.NotNil(t, p.TryAcquire())
}

func TestPoolWithReleasesOnError(t *testing.T) {
	p := NewPool(1, 4)
	boom := assert.AnError

	err := p.With(context.Background(), func(b *Buffer) error {
		assert.Equal(t, 1, p.InFlight())
		return boom
	})
	assert.Equal(t, boom, err)
	assert.Equal(t, 0, p.InFlight())
}

func TestPoolAcquireTimeoutAndClose(t *testing.T) {
	p := NewPool(1, 4)
	b := p.TryAcquire()
	require.NotNil(t, b)

	_, err := p.AcquireTimeout(10 * time.Millisecond)
	assert.Equal(t, context.DeadlineExceeded, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := p.Acquire(context.Background())
		assert.Equal(t, ErrPoolClosed, err)
	}()
	time.Sleep(10 * time.Millisecond)
	p.Close()
	wg.Wait()

	assert.NoError(t, b.Release())
}

func TestBufferFill(t *testing.T) {
	p := NewPool(1, 4)
	b := p.TryAcquire()
	require.NotNil(t, b)
	defer b.Release()

	require.NoError(t, b.Fill([]byte{1, 2, 3}))
	assert.Equal(t, []byte{1, 2, 3}, b.Bytes())
	assert.Equal(t, ErrBufferTooBig, b.Fill(make([]byte, 5)))
	assert.Equal(t, ErrBufferTooBig, b.SetLen(5))
}
