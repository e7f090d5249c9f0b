package candidatestore

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/trivago/geolocator/internal/db"
	"github.com/trivago/geolocator/internal/model"
)

// PostgresStore implements Store over a candidate-rows table, one row per
// (entity, provider), with a LISTEN/NOTIFY change feed for Watch.
type PostgresStore struct {
	pool    db.Pool
	conns   *pgxpool.Pool // used only for LISTEN; nil disables Watch
	table   string
	channel string
}

// NewPostgresStore builds a PostgresStore. conns may be nil if the caller
// never calls Watch; Watch then returns an error.
func NewPostgresStore(pool db.Pool, conns *pgxpool.Pool, table string) *PostgresStore {
	return &PostgresStore{pool: pool, conns: conns, table: table, channel: "candidate_changed"}
}

// Upsert implements Store.
func (s *PostgresStore) Upsert(ctx context.Context, c model.Candidate) error {
	meta, err := json.Marshal(c.Meta)
	if err != nil {
		return eris.Wrap(err, "candidatestore: marshal meta")
	}

	// geom_wkb is an auxiliary EWKB encoding of the coordinate, kept purely
	// for GIS tooling (QGIS, ad-hoc ST_GeomFromEWKB queries) to load
	// directly; the decimal-string longitude/latitude columns remain the
	// source of truth read back by GetAllByEntity.
	geomWKB, err := c.GeometryWKB()
	if err != nil {
		return eris.Wrap(err, "candidatestore: encode geometry")
	}

	sql := `
		INSERT INTO ` + s.table + ` (
			entity, entity_id, entity_type, batch_id, provider,
			longitude, latitude, accuracy, confidence, quality,
			score, city, country_code, meta, geom_wkb, timestamp
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (entity, provider) DO UPDATE SET
			batch_id = EXCLUDED.batch_id,
			longitude = EXCLUDED.longitude,
			latitude = EXCLUDED.latitude,
			accuracy = EXCLUDED.accuracy,
			confidence = EXCLUDED.confidence,
			quality = EXCLUDED.quality,
			score = EXCLUDED.score,
			city = EXCLUDED.city,
			country_code = EXCLUDED.country_code,
			meta = EXCLUDED.meta,
			geom_wkb = EXCLUDED.geom_wkb,
			timestamp = EXCLUDED.timestamp,
			updated_at = now()
	`
	_, err = s.pool.Exec(ctx, sql,
		c.Entity, c.EntityID, c.EntityType, c.BatchID, c.Provider,
		c.Longitude, c.Latitude, c.Accuracy, c.Confidence, c.Quality,
		c.Score, c.City, c.CountryCode, meta, geomWKB, c.Timestamp,
	)
	if err != nil {
		return eris.Wrapf(err, "candidatestore: upsert %s/%s", c.Entity, c.Provider)
	}

	if err := s.notify(ctx, c.Key()); err != nil {
		zap.L().Warn("candidatestore: notify failed", zap.String("entity", c.Entity), zap.Error(err))
	}
	return nil
}

func (s *PostgresStore) notify(ctx context.Context, key model.EntityKey) error {
	_, err := s.pool.Exec(ctx, "SELECT pg_notify($1, $2)", s.channel, key.Composite())
	return err
}

// GetAllByEntity implements Store.
func (s *PostgresStore) GetAllByEntity(ctx context.Context, key model.EntityKey) ([]model.Candidate, error) {
	sql := `
		SELECT entity, entity_id, entity_type, batch_id, provider,
		       longitude, latitude, accuracy, confidence, quality,
		       score, city, country_code, meta, timestamp
		FROM ` + s.table + `
		WHERE entity_id = $1 AND entity_type = $2
		ORDER BY created_at ASC
	`
	rows, err := s.pool.Query(ctx, sql, key.EntityID, key.EntityType)
	if err != nil {
		return nil, eris.Wrapf(err, "candidatestore: get all by entity %s", key.Composite())
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		var c model.Candidate
		var meta []byte
		if err := rows.Scan(
			&c.Entity, &c.EntityID, &c.EntityType, &c.BatchID, &c.Provider,
			&c.Longitude, &c.Latitude, &c.Accuracy, &c.Confidence, &c.Quality,
			&c.Score, &c.City, &c.CountryCode, &meta, &c.Timestamp,
		); err != nil {
			return nil, eris.Wrap(err, "candidatestore: scan candidate row")
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &c.Meta); err != nil {
				return nil, eris.Wrap(err, "candidatestore: unmarshal meta")
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Watch implements Store by LISTENing on the change-notification channel
// over a dedicated pooled connection, decoding each payload as an
// EntityKey's composite string.
func (s *PostgresStore) Watch(ctx context.Context) (<-chan model.EntityKey, error) {
	if s.conns == nil {
		return nil, eris.New("candidatestore: watch requires a *pgxpool.Pool connection")
	}

	conn, err := s.conns.Acquire(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "candidatestore: acquire listen connection")
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{s.channel}.Sanitize()); err != nil {
		conn.Release()
		return nil, eris.Wrap(err, "candidatestore: listen")
	}

	out := make(chan model.EntityKey)
	go func() {
		defer conn.Release()
		defer close(out)
		for {
			notification, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				return
			}
			key, ok := parseComposite(notification.Payload)
			if !ok {
				continue
			}
			select {
			case out <- key:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// parseComposite parses the "{entity_type}:{entity_id}" form written by
// EntityKey.Composite.
func parseComposite(s string) (model.EntityKey, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			entityType := s[:i]
			id, err := parseInt64(s[i+1:])
			if err != nil {
				return model.EntityKey{}, false
			}
			return model.EntityKey{EntityType: entityType, EntityID: id}, true
		}
	}
	return model.EntityKey{}, false
}

func parseInt64(s string) (int64, error) {
	var n int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, eris.Errorf("candidatestore: invalid entity id %q", s)
		}
		n = n*10 + int64(r-'0')
	}
	return n, nil
}
