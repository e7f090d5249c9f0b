package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivago/geolocator/internal/candidatestore"
	"github.com/trivago/geolocator/internal/countrycode"
	"github.com/trivago/geolocator/internal/envelope"
	"github.com/trivago/geolocator/internal/model"
	"github.com/trivago/geolocator/internal/queue"
	"github.com/trivago/geolocator/internal/transfer"
)

func mapper() *countrycode.Mapper {
	return countrycode.NewMapper([]countrycode.Entry{
		{Name: "United Kingdom", ISO3166_2: "GB", ISO3166_3: "GBR"},
		{Name: "Germany", ISO3166_2: "DE", ISO3166_3: "DEU"},
	})
}

func TestRoute_TrustedFeedWritesConsolidatedWinner(t *testing.T) {
	store := candidatestore.NewMemoryStore()
	xfer := transfer.NewMemoryStore()
	tasks := queue.NewMemoryQueue[envelope.GeocoderTask]()
	r := New(store, xfer, tasks, mapper(), "test", nil)

	key := model.EntityKey{EntityID: 1, EntityType: "candidate_accommodation"}
	feed := envelope.Feed{
		Key:            key,
		Address:        model.Address{City: "London", Country: "United Kingdom"},
		Guess:          &model.Coordinate{Longitude: 0.1, Latitude: 0.2},
		IsValidGeocode: true,
	}

	require.NoError(t, r.Route(context.Background(), feed))

	rows, err := store.GetAllByEntity(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "consolidated_test", rows[0].Provider)
	assert.Equal(t, 1.0, rows[0].Score)
	assert.Equal(t, "GB", rows[0].CountryCode)

	received, err := tasks.Receive(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, received, "trusted feed must not enqueue geocoder tasks")
}

func TestRoute_NeedsGeocodingEnqueuesOneTaskPerProvider(t *testing.T) {
	store := candidatestore.NewMemoryStore()
	xfer := transfer.NewMemoryStore()
	tasks := queue.NewMemoryQueue[envelope.GeocoderTask]()
	r := New(store, xfer, tasks, mapper(), "test", []string{model.ProviderGoogle, model.ProviderOSM})

	key := model.EntityKey{EntityID: 2, EntityType: "candidate_accommodation"}
	feed := envelope.Feed{
		Key:            key,
		Address:        model.Address{City: "Berlin", Country: "Germany"},
		Guess:          &model.Coordinate{Longitude: 13.4, Latitude: 52.5},
		IsValidGeocode: false,
	}

	require.NoError(t, r.Route(context.Background(), feed))

	rows, err := store.GetAllByEntity(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.ProviderTrivago, rows[0].Provider)
	assert.Equal(t, "DE", rows[0].CountryCode)

	received, err := tasks.Receive(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, received, 2)
	assert.Equal(t, model.ProviderGoogle, received[0].Payload.Provider)
	assert.Equal(t, model.ProviderOSM, received[1].Payload.Provider)
	require.NotNil(t, received[0].Payload.Address.Guess, "the feed's guess rides along for proximity scoring")
	assert.Equal(t, 13.4, received[0].Payload.Address.Guess.Longitude)
}

func TestRoute_NeedsGeocodingWithoutGuessLeavesCoordinateEmpty(t *testing.T) {
	store := candidatestore.NewMemoryStore()
	xfer := transfer.NewMemoryStore()
	tasks := queue.NewMemoryQueue[envelope.GeocoderTask]()
	r := New(store, xfer, tasks, mapper(), "test", nil)

	key := model.EntityKey{EntityID: 4, EntityType: "candidate_accommodation"}
	feed := envelope.Feed{Key: key, Address: model.Address{City: "Berlin"}, IsValidGeocode: false}
	require.NoError(t, r.Route(context.Background(), feed))

	rows, err := store.GetAllByEntity(context.Background(), key)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].Longitude)
	assert.Empty(t, rows[0].Latitude)
	assert.False(t, rows[0].HasCoordinate())
}

func TestRoute_RegistersTransferEntry(t *testing.T) {
	store := candidatestore.NewMemoryStore()
	xfer := transfer.NewMemoryStore()
	tasks := queue.NewMemoryQueue[envelope.GeocoderTask]()
	r := New(store, xfer, tasks, mapper(), "test", nil)

	key := model.EntityKey{EntityID: 3, EntityType: "candidate_accommodation"}
	feed := envelope.Feed{Key: key, Address: model.Address{}, IsValidGeocode: true}
	require.NoError(t, r.Route(context.Background(), feed))

	claimed, err := xfer.ClaimExpired(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, claimed, "a freshly registered entity has not expired yet")
}

func TestNormalizeCountry_FuzzyNameFallback(t *testing.T) {
	store := candidatestore.NewMemoryStore()
	xfer := transfer.NewMemoryStore()
	tasks := queue.NewMemoryQueue[envelope.GeocoderTask]()
	r := New(store, xfer, tasks, mapper(), "test", nil)

	got := r.normalizeCountry(model.Address{Country: "germany"})
	assert.Equal(t, "DE", got)
}
