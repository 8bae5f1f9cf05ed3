package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/queue"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/redisclient"
)

// backend holds the storage selected by STORE_BACKEND. The patient
// directory needs Postgres; with other backends patients is nil and queue
// names are taken as entered.
type backend struct {
	pool     *pgxpool.Pool
	redis    *redis.Client
	repo     queue.Repository
	locker   redisclient.Locker
	patients *patient.Service
}

func openBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backend, error) {
	b := &backend{locker: redisclient.NoopLocker{}}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		b.pool = pool
		b.repo = queue.NewPGRepo(pool)
		b.locker = db.NewAdvisoryLocker(pool)
		b.patients = patient.NewService(patient.NewRepo(pool))
		logger.Info().Msg("connected to database")
	case config.BackendRedis:
		client, err := redisclient.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		b.redis = client
		b.repo = queue.NewRedisRepo(client, cfg.StorageNamespace)
		b.locker = redisclient.NewLocker(client, cfg.LockTTL)
		logger.Info().Str("key", cfg.StorageNamespace).Msg("connected to redis")
	case config.BackendMemory:
		b.repo = queue.NewMemoryRepo()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	return b, nil
}

func (b *backend) queueService(logger zerolog.Logger, opts ...queue.ServiceOption) *queue.Service {
	base := []queue.ServiceOption{queue.WithLocker(b.locker)}
	if b.patients != nil {
		base = append(base, queue.WithDirectory(b.patients))
	}
	return queue.NewService(b.repo, logger, append(base, opts...)...)
}

func (b *backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.redis != nil {
		_ = b.redis.Close()
	}
}
