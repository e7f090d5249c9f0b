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

// PostgresQueue implements Queue[T] over a single table of JSON-encoded
// payloads, claimed with FOR UPDATE SKIP LOCKED — a durable stand-in for an
// SQS-style queue that needs no cloud account to run.
type PostgresQueue[T any] struct {
	pool    db.Pool
	table   string
	workers int
}

// NewPostgresQueue builds a PostgresQueue backed by table, fanning batched
// Send calls out across DefaultWorkers goroutines.
func NewPostgresQueue[T any](pool db.Pool, table string) *PostgresQueue[T] {
	return &PostgresQueue[T]{pool: pool, table: table, workers: DefaultWorkers}
}

// Send implements Queue by splitting items into SQSBatchSize-sized batches
// and inserting each batch concurrently (bounded by workers). An entry that
// fails to insert is logged and not retried; the rest of its batch is still
// attempted.
func (q *PostgresQueue[T]) Send(ctx context.Context, items []T) error {
	batches := chunk(items, SQSBatchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.workers)

	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			return q.sendBatch(gctx, batch)
		})
	}
	return g.Wait()
}

func (q *PostgresQueue[T]) sendBatch(ctx context.Context, batch []T) error {
	var firstErr error
	for _, item := range batch {
		payload, err := json.Marshal(item)
		if err != nil {
			firstErr = errOrFirst(firstErr, eris.Wrap(err, "queue: marshal payload"))
			continue
		}
		if _, err := q.pool.Exec(ctx, `
			INSERT INTO `+q.table+` (id, payload, created_at)
			VALUES ($1, $2, now())
		`, uuid.NewString(), payload); err != nil {
			zap.L().Warn("queue: send entry failed, will not retry within this batch", zap.Error(err))
			firstErr = errOrFirst(firstErr, eris.Wrap(err, "queue: insert entry"))
		}
	}
	return firstErr
}

// visibilityWindow is how long a received message stays invisible to other
// consumers before an unacked claim lapses and the message redelivers.
const visibilityWindow = "120 seconds"

// Receive implements Queue by claiming up to max rows, making each invisible
// to other consumers until Ack'd or its visibility window lapses.
func (q *PostgresQueue[T]) Receive(ctx context.Context, max int) ([]Message[T], error) {
	rows, err := q.pool.Query(ctx, `
		UPDATE `+q.table+` SET visible_at = now() + interval '`+visibilityWindow+`'
		WHERE id IN (
			SELECT id FROM `+q.table+`
			WHERE visible_at IS NULL OR visible_at <= now()
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, payload
	`, max)
	if err != nil {
		return nil, eris.Wrap(err, "queue: receive")
	}
	defer rows.Close()

	var out []Message[T]
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, eris.Wrap(err, "queue: scan message")
		}
		var payload T
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, eris.Wrap(err, "queue: unmarshal payload")
		}
		out = append(out, Message[T]{Handle: id, Payload: payload})
	}
	return out, rows.Err()
}

// Ack implements Queue.
func (q *PostgresQueue[T]) Ack(ctx context.Context, handle string) error {
	_, err := q.pool.Exec(ctx, `DELETE FROM `+q.table+` WHERE id = $1`, handle)
	return eris.Wrapf(err, "queue: ack %s", handle)
}

func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for size > 0 && len(items) > 0 {
		if len(items) < size {
			size = len(items)
		}
		out = append(out, items[:size])
		items = items[size:]
	}
	return out
}

func errOrFirst(existing, candidate error) error {
	if existing != nil {
		return existing
	}
	return candidate
}
