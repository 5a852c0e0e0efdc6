package cache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"privcal/internal/cache"
)

func TestPolicy_Validate(t *testing.T) {
	require.NoError(t, cache.DefaultPolicy().Validate())
	require.ErrorIs(t, cache.Policy{MaxEntries: 0, TTL: time.Minute}.Validate(), cache.ErrInvalidPolicy)
	require.ErrorIs(t, cache.Policy{MaxEntries: 1, TTL: -time.Second}.Validate(), cache.ErrInvalidPolicy)
}

func TestNew_EvictsBySizeAndAge(t *testing.T) {
	c := cache.New[string, int](cache.Policy{MaxEntries: 2, TTL: 50 * time.Millisecond})
	c.Add("a", 1)
	c.Add("b", 2)
	c.Add("c", 3)
	require.False(t, c.Contains("a"))
	require.Equal(t, 2, c.Len())

	require.Eventually(t, func() bool {
		_, ok := c.Get("c")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestNew_ZeroPolicyUsesDefaults(t *testing.T) {
	c := cache.New[string, string](cache.Policy{})
	c.Add("k", "v")
	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", v)
}
