package keyvault

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVault_CurrentAndRotate(t *testing.T) {
	v := NewVault(map[string][]string{
		"google": {"key-a", "key-b", "key-c"},
	})

	cur, err := v.Current("google")
	require.NoError(t, err)
	assert.Equal(t, "key-a", cur)

	assert.True(t, v.Rotate("google"))
	cur, err = v.Current("google")
	require.NoError(t, err)
	assert.Equal(t, "key-b", cur)

	assert.True(t, v.Rotate("google"))
	assert.True(t, v.Rotate("google")) // wraps back to key-a
	cur, _ = v.Current("google")
	assert.Equal(t, "key-a", cur)
}

func TestVault_SingleKeyDoesNotRotate(t *testing.T) {
	v := NewVault(map[string][]string{"osm": {"only-key"}})
	assert.False(t, v.Rotate("osm"))
}

func TestVault_UnknownProvider(t *testing.T) {
	v := NewVault(nil)
	_, err := v.Current("google")
	assert.Error(t, err)
}

func TestVault_Count(t *testing.T) {
	v := NewVault(map[string][]string{"bing": {"a", "b"}})
	assert.Equal(t, 2, v.Count("bing"))
	assert.Equal(t, 0, v.Count("unknown"))
}

func TestQuotaTracker(t *testing.T) {
	q := NewQuotaTracker()
	now := time.Unix(1_700_000_000, 0)

	assert.False(t, q.IsExhausted("google", now))

	q.MarkExhausted("google", now.Add(time.Hour))
	assert.True(t, q.IsExhausted("google", now))
	assert.False(t, q.IsExhausted("google", now.Add(2*time.Hour)))
}
