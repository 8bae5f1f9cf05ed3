package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type repoRedis struct {
	client *redis.Client
	key    string
}

// NewRedisRepo keeps the whole application-state document as one JSON value
// under key, shaped {"queue":[...],"lastQueueNumber":N}. Unknown top-level
// fields written by other clients are preserved on Save.
func NewRedisRepo(client *redis.Client, key string) Repository {
	return &repoRedis{client: client, key: key}
}

func (r *repoRedis) Load(ctx context.Context) (Snapshot, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("queue load %s: %w", r.key, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("queue decode %s: %w", r.key, err)
	}
	return snap, nil
}

func (r *repoRedis) Save(ctx context.Context, snap Snapshot) error {
	doc := map[string]json.RawMessage{}
	raw, err := r.client.Get(ctx, r.key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return fmt.Errorf("queue load %s: %w", r.key, err)
	default:
		// A corrupt document is overwritten.
		_ = json.Unmarshal(raw, &doc)
	}

	entries := snap.Entries
	if entries == nil {
		entries = []Entry{}
	}
	if doc["queue"], err = json.Marshal(entries); err != nil {
		return fmt.Errorf("queue encode: %w", err)
	}
	if doc["lastQueueNumber"], err = json.Marshal(snap.LastQueueNumber); err != nil {
		return fmt.Errorf("queue encode: %w", err)
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("queue encode: %w", err)
	}
	if err := r.client.Set(ctx, r.key, out, 0).Err(); err != nil {
		return fmt.Errorf("queue save %s: %w", r.key, err)
	}
	return nil
}
