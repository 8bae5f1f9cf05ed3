package queue

import (
	"context"
)

// Repository persists the queue as a whole. Load returns an empty snapshot
// when nothing has been saved yet.
type Repository interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}
