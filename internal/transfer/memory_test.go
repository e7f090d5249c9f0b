package transfer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivago/geolocator/internal/model"
)

func TestMemoryStore_ClaimExpired_OnlyPastExpiry(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStoreWithClock(func() time.Time { return clock })

	k1 := model.EntityKey{EntityID: 1, EntityType: "accommodation"}
	k2 := model.EntityKey{EntityID: 2, EntityType: "accommodation"}

	require.NoError(t, s.Register(context.Background(), k1, time.Hour))
	require.NoError(t, s.Register(context.Background(), k2, 4*time.Hour))

	clock = clock.Add(2 * time.Hour)
	claimed, err := s.ClaimExpired(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []model.EntityKey{k1}, claimed)

	claimedAgain, err := s.ClaimExpired(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, claimedAgain)
}

func TestMemoryStore_Register_ResetsExpiry(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStoreWithClock(func() time.Time { return clock })

	k := model.EntityKey{EntityID: 1, EntityType: "accommodation"}
	require.NoError(t, s.Register(context.Background(), k, time.Hour))

	clock = clock.Add(30 * time.Minute)
	require.NoError(t, s.Register(context.Background(), k, time.Hour))

	clock = clock.Add(45 * time.Minute)
	claimed, err := s.ClaimExpired(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, claimed, "re-registration should have extended the TTL")
}

func TestMemoryStore_ClaimExpired_RespectsLimit(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStoreWithClock(func() time.Time { return clock })

	for i := int64(0); i < 5; i++ {
		require.NoError(t, s.Register(context.Background(), model.EntityKey{EntityID: i, EntityType: "accommodation"}, time.Hour))
	}
	clock = clock.Add(2 * time.Hour)

	claimed, err := s.ClaimExpired(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, claimed, 3)
}
