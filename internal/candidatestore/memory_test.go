package candidatestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivago/geolocator/internal/model"
)

func TestMemoryStore_UpsertThenReplace(t *testing.T) {
	s := NewMemoryStore()
	key := model.EntityKey{EntityID: 1, EntityType: "accommodation"}

	c1 := model.NewCandidate(key, model.ProviderGoogle, model.Coordinate{Longitude: 1, Latitude: 1})
	c1.BatchID = "b1"
	require.NoError(t, s.Upsert(context.Background(), c1))

	c2 := model.NewCandidate(key, model.ProviderGoogle, model.Coordinate{Longitude: 2, Latitude: 2})
	c2.BatchID = "b1"
	require.NoError(t, s.Upsert(context.Background(), c2))

	rows, err := s.GetAllByEntity(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0].Longitude)
}

func TestMemoryStore_UpsertKeyIgnoresBatchID(t *testing.T) {
	// (entity, provider) is the sole uniqueness key; a redelivered task
	// under a different batch_id must still overwrite the same row rather
	// than appending a second one.
	s := NewMemoryStore()
	key := model.EntityKey{EntityID: 1, EntityType: "accommodation"}

	c1 := model.NewCandidate(key, model.ProviderGoogle, model.Coordinate{Longitude: 1, Latitude: 1})
	c1.BatchID = "b1"
	require.NoError(t, s.Upsert(context.Background(), c1))

	c2 := model.NewCandidate(key, model.ProviderGoogle, model.Coordinate{Longitude: 2, Latitude: 2})
	c2.BatchID = "b2"
	require.NoError(t, s.Upsert(context.Background(), c2))

	rows, err := s.GetAllByEntity(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0].Longitude)
	assert.Equal(t, "b2", rows[0].BatchID)
}

func TestMemoryStore_PreservesInsertionOrderAcrossProviders(t *testing.T) {
	s := NewMemoryStore()
	key := model.EntityKey{EntityID: 1, EntityType: "accommodation"}

	for _, p := range []string{model.ProviderGoogle, model.ProviderOSM, model.ProviderArcGIS} {
		c := model.NewCandidate(key, p, model.Coordinate{})
		require.NoError(t, s.Upsert(context.Background(), c))
	}

	rows, err := s.GetAllByEntity(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{model.ProviderGoogle, model.ProviderOSM, model.ProviderArcGIS},
		[]string{rows[0].Provider, rows[1].Provider, rows[2].Provider})
}

func TestMemoryStore_GetAllByEntity_UnknownEntityReturnsEmpty(t *testing.T) {
	s := NewMemoryStore()
	rows, err := s.GetAllByEntity(context.Background(), model.EntityKey{EntityID: 99, EntityType: "poi"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
