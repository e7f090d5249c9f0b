package transfer

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/trivago/geolocator/internal/db"
	"github.com/trivago/geolocator/internal/model"
)

// PostgresStore implements Store over a single transfer table, claiming
// expired rows with FOR UPDATE SKIP LOCKED so multiple locator workers can
// poll concurrently without double-processing the same entity.
type PostgresStore struct {
	pool  db.Pool
	table string
}

// NewPostgresStore builds a PostgresStore backed by table.
func NewPostgresStore(pool db.Pool, table string) *PostgresStore {
	return &PostgresStore{pool: pool, table: table}
}

// Register implements Store.
func (s *PostgresStore) Register(ctx context.Context, key model.EntityKey, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	sql := `
		INSERT INTO ` + s.table + ` (entity_id, entity_type, expires_at)
		VALUES ($1, $2, now() + $3::interval)
		ON CONFLICT (entity_id, entity_type) DO UPDATE SET
			expires_at = EXCLUDED.expires_at
	`
	_, err := s.pool.Exec(ctx, sql, key.EntityID, key.EntityType, ttl.String())
	return eris.Wrapf(err, "transfer: register %s", key.Composite())
}

// ClaimExpired implements Store.
func (s *PostgresStore) ClaimExpired(ctx context.Context, limit int) ([]model.EntityKey, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		DELETE FROM `+s.table+`
		WHERE ctid IN (
			SELECT ctid FROM `+s.table+`
			WHERE expires_at <= now()
			ORDER BY expires_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING entity_id, entity_type
	`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "transfer: claim expired")
	}
	defer rows.Close()

	var keys []model.EntityKey
	for rows.Next() {
		var k model.EntityKey
		if err := rows.Scan(&k.EntityID, &k.EntityType); err != nil {
			return nil, eris.Wrap(err, "transfer: scan claimed row")
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "transfer: iterate claimed rows")
	}
	return keys, nil
}
