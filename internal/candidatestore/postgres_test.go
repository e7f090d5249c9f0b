package candidatestore

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivago/geolocator/internal/model"
)

func TestUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock, nil, "geo.candidates")
	c := model.NewCandidate(model.EntityKey{EntityID: 1, EntityType: "accommodation"}, model.ProviderGoogle, model.Coordinate{Longitude: 4.9, Latitude: 52.37})

	mock.ExpectExec("INSERT INTO geo.candidates").
		WithArgs(c.Entity, c.EntityID, c.EntityType, c.BatchID, c.Provider,
			c.Longitude, c.Latitude, c.Accuracy, c.Confidence, c.Quality,
			c.Score, c.City, c.CountryCode, pgxmock.AnyArg(), pgxmock.AnyArg(), c.Timestamp).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("SELECT pg_notify").
		WithArgs("candidate_changed", c.Key().Composite()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	err = store.Upsert(context.Background(), c)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_ExecErrorIsWrapped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock, nil, "geo.candidates")
	mock.ExpectExec("INSERT INTO geo.candidates").
		WillReturnError(assert.AnError)

	c := model.NewCandidate(model.EntityKey{EntityID: 1, EntityType: "accommodation"}, model.ProviderGoogle, model.Coordinate{})
	err = store.Upsert(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert")
}

func TestGetAllByEntity_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock, nil, "geo.candidates")
	mock.ExpectQuery("SELECT .+ FROM geo.candidates").
		WithArgs(int64(1), "accommodation").
		WillReturnRows(pgxmock.NewRows([]string{
			"entity", "entity_id", "entity_type", "batch_id", "provider",
			"longitude", "latitude", "accuracy", "confidence", "quality",
			"score", "city", "country_code", "meta", "timestamp",
		}).AddRow(
			"accommodation:1", int64(1), "accommodation", "b1", model.ProviderGoogle,
			"4.9", "52.37", "", "", "",
			0.0, "Amsterdam", "NL", []byte(`{}`), int64(0),
		))

	rows, err := store.GetAllByEntity(context.Background(), model.EntityKey{EntityID: 1, EntityType: "accommodation"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.ProviderGoogle, rows[0].Provider)
	assert.Equal(t, "Amsterdam", rows[0].City)
}

func TestGetAllByEntity_QueryErrorIsWrapped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock, nil, "geo.candidates")
	mock.ExpectQuery("SELECT .+ FROM geo.candidates").
		WillReturnError(assert.AnError)

	_, err = store.GetAllByEntity(context.Background(), model.EntityKey{EntityID: 1, EntityType: "accommodation"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get all by entity")
}

func TestWatch_NilConnsReturnsError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock, nil, "geo.candidates")
	_, err = store.Watch(context.Background())
	require.Error(t, err)
}

func TestParseComposite(t *testing.T) {
	key, ok := parseComposite("accommodation:42")
	require.True(t, ok)
	assert.Equal(t, model.EntityKey{EntityType: "accommodation", EntityID: 42}, key)

	_, ok = parseComposite("not-a-composite")
	assert.False(t, ok)
}
