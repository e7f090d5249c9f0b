package queue

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/trivago/geolocator/internal/db"
)

// PostgresStream implements Stream[T] as an append-only table, batched at
// StreamBatchSize and fanned out across DefaultWorkers goroutines.
type PostgresStream[T any] struct {
	pool    db.Pool
	table   string
	workers int
}

// NewPostgresStream builds a PostgresStream backed by table.
func NewPostgresStream[T any](pool db.Pool, table string) *PostgresStream[T] {
	return &PostgresStream[T]{pool: pool, table: table, workers: DefaultWorkers}
}

// Publish implements Stream.
func (s *PostgresStream[T]) Publish(ctx context.Context, items []T) error {
	batches := chunk(items, StreamBatchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			return s.publishBatch(gctx, batch)
		})
	}
	return g.Wait()
}

func (s *PostgresStream[T]) publishBatch(ctx context.Context, batch []T) error {
	var firstErr error
	for _, item := range batch {
		payload, err := json.Marshal(item)
		if err != nil {
			firstErr = errOrFirst(firstErr, eris.Wrap(err, "stream: marshal payload"))
			continue
		}
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO `+s.table+` (id, payload, created_at)
			VALUES ($1, $2, now())
		`, uuid.NewString(), payload); err != nil {
			zap.L().Warn("stream: publish entry failed, will not retry within this batch", zap.Error(err))
			firstErr = errOrFirst(firstErr, eris.Wrap(err, "stream: insert entry"))
		}
	}
	return firstErr
}
