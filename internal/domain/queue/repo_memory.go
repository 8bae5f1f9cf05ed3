package queue

import (
	"context"
	"sync"
)

type memoryRepo struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewMemoryRepo keeps the snapshot in process memory. State is lost on exit.
func NewMemoryRepo() Repository {
	return &memoryRepo{}
}

func (r *memoryRepo) Load(_ context.Context) (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copySnapshot(r.snap), nil
}

func (r *memoryRepo) Save(_ context.Context, snap Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap = copySnapshot(snap)
	return nil
}

func copySnapshot(s Snapshot) Snapshot {
	out := Snapshot{LastQueueNumber: s.LastQueueNumber}
	if len(s.Entries) > 0 {
		out.Entries = make([]Entry, len(s.Entries))
		copy(out.Entries, s.Entries)
	}
	return out
}
