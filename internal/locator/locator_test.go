package locator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivago/geolocator/internal/candidatestore"
	"github.com/trivago/geolocator/internal/envelope"
	"github.com/trivago/geolocator/internal/model"
	"github.com/trivago/geolocator/internal/queue"
)

type fakeClient struct {
	calls   int
	results []*Result
	errs    []error
}

func (f *fakeClient) Lookup(ctx context.Context, coord model.Coordinate, city string) (*Result, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return nil, nil
}

func int64p(v int64) *int64 { return &v }

func TestLocate_SkipsWhenNoWinner(t *testing.T) {
	store := candidatestore.NewMemoryStore()
	client := &fakeClient{}
	output := queue.NewMemoryStream[envelope.CandidateGeoData]()
	loc := New(store, client, output)

	key := model.EntityKey{EntityID: 1, EntityType: "candidate_accommodation"}
	require.NoError(t, loc.Locate(context.Background(), key, "test"))
	assert.Empty(t, output.Items())
	assert.Zero(t, client.calls)
}

func TestLocate_SkipsWhenScoreBelowThreshold(t *testing.T) {
	store := candidatestore.NewMemoryStore()
	key := model.EntityKey{EntityID: 1, EntityType: "candidate_accommodation"}
	require.NoError(t, store.Upsert(context.Background(), model.Candidate{
		EntityID: key.EntityID, EntityType: key.EntityType, Entity: key.Composite(),
		Provider: model.ConsolidatedProvider("test"), Longitude: "1", Latitude: "1", Score: 0.0,
	}))

	client := &fakeClient{}
	output := queue.NewMemoryStream[envelope.CandidateGeoData]()
	loc := New(store, client, output)

	require.NoError(t, loc.Locate(context.Background(), key, "test"))
	assert.Empty(t, output.Items())
	assert.Zero(t, client.calls)
}

func TestLocate_PublishesResolvedLocality(t *testing.T) {
	store := candidatestore.NewMemoryStore()
	key := model.EntityKey{EntityID: 7, EntityType: "accommodation"}
	require.NoError(t, store.Upsert(context.Background(), model.Candidate{
		EntityID: key.EntityID, EntityType: key.EntityType, Entity: key.Composite(),
		Provider: model.ConsolidatedProvider("test"), Longitude: "4.9", Latitude: "52.37",
		City: "Amsterdam", CountryCode: "NL", Score: 1.0,
	}))

	client := &fakeClient{results: []*Result{{LocalityID: int64p(42), CountryID: int64p(9)}}}
	output := queue.NewMemoryStream[envelope.CandidateGeoData]()
	loc := New(store, client, output)

	require.NoError(t, loc.Locate(context.Background(), key, "test"))
	items := output.Items()
	require.Len(t, items, 1)
	assert.Equal(t, int64(42), *items[0].LocalityID)
	assert.Equal(t, int64(200), *items[0].LocalityNs)
	assert.Nil(t, items[0].AdministrativeDivisionID)
	assert.Equal(t, int64(9), *items[0].CountryID)
	assert.True(t, items[0].ValidGeoPoint)
}

func TestLocate_AbortsOnLimitExceeded(t *testing.T) {
	store := candidatestore.NewMemoryStore()
	key := model.EntityKey{EntityID: 9, EntityType: "accommodation"}
	require.NoError(t, store.Upsert(context.Background(), model.Candidate{
		EntityID: key.EntityID, EntityType: key.EntityType, Entity: key.Composite(),
		Provider: model.ConsolidatedProvider("test"), Longitude: "1", Latitude: "1", Score: 1.0,
	}))

	client := &fakeClient{errs: []error{&LimitExceededError{}}}
	output := queue.NewMemoryStream[envelope.CandidateGeoData]()
	loc := New(store, client, output)

	require.NoError(t, loc.Locate(context.Background(), key, "test"))
	assert.Empty(t, output.Items())
	assert.Equal(t, 1, client.calls)
}

func TestLocate_RetriesOnRetryableStatus(t *testing.T) {
	store := candidatestore.NewMemoryStore()
	key := model.EntityKey{EntityID: 11, EntityType: "accommodation"}
	require.NoError(t, store.Upsert(context.Background(), model.Candidate{
		EntityID: key.EntityID, EntityType: key.EntityType, Entity: key.Composite(),
		Provider: model.ConsolidatedProvider("test"), Longitude: "1", Latitude: "1", Score: 1.0,
	}))

	client := &fakeClient{
		errs:    []error{&RetryableError{StatusCode: 429}, nil},
		results: []*Result{nil, {LocalityID: int64p(5)}},
	}
	output := queue.NewMemoryStream[envelope.CandidateGeoData]()
	loc := New(store, client, output)

	require.NoError(t, loc.Locate(context.Background(), key, "test"))
	items := output.Items()
	require.Len(t, items, 1)
	assert.Equal(t, int64(5), *items[0].LocalityID)
	assert.Equal(t, 2, client.calls)
}

func TestLocate_EmptyLookupResultSkipsPublish(t *testing.T) {
	store := candidatestore.NewMemoryStore()
	key := model.EntityKey{EntityID: 12, EntityType: "accommodation"}
	require.NoError(t, store.Upsert(context.Background(), model.Candidate{
		EntityID: key.EntityID, EntityType: key.EntityType, Entity: key.Composite(),
		Provider: model.ConsolidatedProvider("test"), Longitude: "1", Latitude: "1", Score: 1.0,
	}))

	client := &fakeClient{results: []*Result{nil}}
	output := queue.NewMemoryStream[envelope.CandidateGeoData]()
	loc := New(store, client, output)

	require.NoError(t, loc.Locate(context.Background(), key, "test"))
	assert.Empty(t, output.Items())
	assert.Equal(t, 1, client.calls)
}

func TestLocate_FatalErrorSurfaces(t *testing.T) {
	store := candidatestore.NewMemoryStore()
	key := model.EntityKey{EntityID: 13, EntityType: "accommodation"}
	require.NoError(t, store.Upsert(context.Background(), model.Candidate{
		EntityID: key.EntityID, EntityType: key.EntityType, Entity: key.Composite(),
		Provider: model.ConsolidatedProvider("test"), Longitude: "1", Latitude: "1", Score: 1.0,
	}))

	client := &fakeClient{errs: []error{&FatalError{StatusCode: 403}}}
	output := queue.NewMemoryStream[envelope.CandidateGeoData]()
	loc := New(store, client, output)

	err := loc.Locate(context.Background(), key, "test")
	require.Error(t, err)
}
