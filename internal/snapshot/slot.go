package snapshot

import "sync"

// Slot is the single-slot store for the previous cycle's snapshot. One
// slot exists per process, owned by the monitoring service; it starts
// empty, is overwritten after every successful cycle, and never persists
// to disk.
type Slot struct {
	mu   sync.Mutex
	snap *Snapshot
}

// Get returns the stored snapshot, or nil before the first successful cycle.
func (s *Slot) Get() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Set overwrites the stored snapshot.
func (s *Slot) Set(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}
