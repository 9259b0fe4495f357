package counter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_BucketAlignment(t *testing.T) {
	now := time.Unix(7200, 0)
	key := Key("ip", "203.0.113.7", 3600, now)
	assert.Equal(t, "ratelimit:ip:203.0.113.7:2", key)

	// Same window, same key
	later := time.Unix(7200+3599, 0)
	assert.Equal(t, key, Key("ip", "203.0.113.7", 3600, later))

	// Next window, new key
	next := time.Unix(7200+3600, 0)
	assert.NotEqual(t, key, Key("ip", "203.0.113.7", 3600, next))
}

func TestWindowEnd(t *testing.T) {
	now := time.Unix(7260, 0)
	end := WindowEnd(3600, now)
	assert.Equal(t, time.Unix(10800, 0), end)

	// One-second windows roll over every second
	assert.Equal(t, time.Unix(7261, 0), WindowEnd(1, now))
}

func TestMemoryStore_IncrementAndGet(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()

	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		count, err := ms.IncrementAndGet(ctx, "k1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	count, err := ms.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestMemoryStore_GetMissingKey(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()

	count, err := ms.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()

	ctx := context.Background()

	_, err := ms.IncrementAndGet(ctx, "k1", 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	count, err := ms.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// A fresh increment starts a new bucket at 1
	count, err = ms.IncrementAndGet(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryStore_TTLNotRefreshedByIncrement(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()

	ctx := context.Background()

	_, err := ms.IncrementAndGet(ctx, "k1", 30*time.Millisecond)
	require.NoError(t, err)

	// Later increments must not extend the original expiry
	time.Sleep(20 * time.Millisecond)
	_, err = ms.IncrementAndGet(ctx, "k1", 30*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	count, err := ms.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestMemoryStore_Delete(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()

	ctx := context.Background()

	_, err := ms.IncrementAndGet(ctx, "k1", time.Minute)
	require.NoError(t, err)
	_, err = ms.IncrementAndGet(ctx, "k2", time.Minute)
	require.NoError(t, err)

	require.NoError(t, ms.Delete(ctx, "k1", "k2", "absent"))
	assert.Equal(t, 0, ms.Len())
}
