// Package deadletter persists resilience.DLQEntry rows for tasks the
// dispatcher exhausted retries on, so an operator can inspect and replay
// them instead of losing the task silently.
package deadletter

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/trivago/geolocator/internal/db"
	"github.com/trivago/geolocator/internal/resilience"
)

// Store persists dead-lettered tasks.
type Store interface {
	Put(ctx context.Context, entry resilience.DLQEntry) error
	List(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
}

// PostgresStore implements Store over a single append-only table.
type PostgresStore struct {
	pool  db.Pool
	table string
}

// NewPostgresStore builds a PostgresStore backed by table.
func NewPostgresStore(pool db.Pool, table string) *PostgresStore {
	return &PostgresStore{pool: pool, table: table}
}

// Put implements Store.
func (s *PostgresStore) Put(ctx context.Context, entry resilience.DLQEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "deadletter: marshal entry")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO `+s.table+` (id, entity_type, error_type, payload, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, entry.ID, entry.Entity.EntityType, entry.ErrorType, payload)
	return eris.Wrap(err, "deadletter: insert entry")
}

// List implements Store, returning the most recent entries matching filter.
func (s *PostgresStore) List(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	sql := `SELECT payload FROM ` + s.table + ` WHERE true`
	args := []any{}
	if filter.EntityType != "" {
		args = append(args, filter.EntityType)
		sql += ` AND entity_type = $` + strconv.Itoa(len(args))
	}
	if filter.ErrorType != "" {
		args = append(args, filter.ErrorType)
		sql += ` AND error_type = $` + strconv.Itoa(len(args))
	}
	args = append(args, limit)
	sql += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "deadletter: list entries")
	}
	defer rows.Close()

	var out []resilience.DLQEntry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "deadletter: scan entry")
		}
		var entry resilience.DLQEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, eris.Wrap(err, "deadletter: unmarshal entry")
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
