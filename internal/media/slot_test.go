package media

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Readers racing a writer must only ever observe complete frames.
func TestSlotNoTornReads(t *testing.T) {
	var slot Slot
	sizes := [][2]int{{4, 4}, {16, 8}, {3, 7}, {32, 32}}

	const writes = 2000
	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		for i := 0; i < writes; i++ {
			sz := sizes[i%len(sizes)]
			channels := 1 + 2*(i%2)
			f, err := NewFrame(sz[0], sz[1], channels, 8, Mono8, "", make([]byte, sz[0]*sz[1]*channels))
			if err != nil {
				t.Error(err)
				return
			}
			slot.Store(&FrameSet{Seq: uint64(i + 1), Frames: []*Frame{f}})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for {
				select {
				case <-done:
					return
				default:
				}
				set := slot.Load()
				if set == nil {
					continue
				}
				f := set.Frames[0]
				if len(f.Bytes()) != f.Width*f.Height*f.Channels {
					t.Errorf("torn frame: %d bytes for %dx%dx%d", len(f.Bytes()), f.Width, f.Height, f.Channels)
					return
				}
				if set.Seq < last {
					t.Errorf("sequence went backwards: %d after %d", set.Seq, last)
					return
				}
				last = set.Seq
			}
		}()
	}

	wg.Wait()
	assert.EqualValues(t, writes, slot.Version())
	assert.EqualValues(t, writes, slot.Load().Seq)
}
