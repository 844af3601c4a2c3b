package media

import "sync"

// Slot holds the most recent FrameSet of one source. It has a single writer
// (the source's acquisition worker) and any number of readers. A FrameSet is
// replaced as a whole and never edited in place, so readers see either the
// previous or the new set.
type Slot struct {
	mu      sync.RWMutex
	set     *FrameSet
	version uint64
}

// Store replaces the current set.
func (s *Slot) Store(set *FrameSet) {
	s.mu.Lock()
	s.set = set
	s.version++
	s.mu.Unlock()
}

// Load returns the current set, or nil if nothing was stored yet.
func (s *Slot) Load() *FrameSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set
}

// Version counts calls to Store. Readers can compare versions to detect a
// new frame without holding on to the set.
func (s *Slot) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
