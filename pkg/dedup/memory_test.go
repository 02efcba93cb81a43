package dedup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstDeliveryIsNew(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	seen, err := s.MarkSeen(ctx, "Feishu:om_1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = s.MarkSeen(ctx, "Feishu:om_1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestExpiredKeyIsNew(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }
	seen, err := s.MarkSeen(ctx, "Telegram:9")
	require.NoError(t, err)
	require.False(t, seen)

	// Jump past the TTL instead of sleeping.
	s.now = func() time.Time { return now.Add(time.Hour + time.Second) }

	seen, err = s.MarkSeen(ctx, "Telegram:9")
	require.NoError(t, err)
	assert.False(t, seen, "expired entry must read as absent")
}

func TestKeysAreIndependent(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	seen, err := s.MarkSeen(ctx, "Twitter:1")
	require.NoError(t, err)
	require.False(t, seen)

	seen, err = s.MarkSeen(ctx, "Telegram:1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestConcurrentMarkSeenExactlyOneNew(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	var firsts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen, err := s.MarkSeen(ctx, "Feishu:om_shared")
			if err == nil && !seen {
				firsts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), firsts.Load(), "exactly one caller may observe the key as new")
	assert.Equal(t, 1, s.Len())
}

func TestMarkSeenPrunesExpired(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }
	for _, k := range []string{"a", "b", "c"} {
		_, err := s.MarkSeen(ctx, k)
		require.NoError(t, err)
	}

	s.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err := s.MarkSeen(ctx, "d")
	require.NoError(t, err)

	assert.Equal(t, 1, s.Len())
}
