package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/room4-2/OpenDialog/flow"
)

// Integration test; set REDIS_URL to run it against a live instance.
func TestRedisStoreCAS(t *testing.T) {
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		t.Skip("REDIS_URL not set")
	}

	store, err := NewRedisStore(addr, os.Getenv("REDIS_PASSWORD"), time.Minute)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	callID := "test-" + uuid.New().String()
	defer store.Delete(ctx, callID)

	_, err = store.Load(ctx, callID)
	assert.ErrorIs(t, err, ErrNotFound)

	s := New(callID, flow.Reservation, time.Now())
	s.Slots["date"] = "2025-03-11"
	require.NoError(t, store.Save(ctx, s, 0))
	assert.Equal(t, int64(1), s.Version)

	loaded, err := store.Load(ctx, callID)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-11", loaded.Slots["date"])

	stale := New(callID, flow.Reservation, time.Now())
	assert.ErrorIs(t, store.Save(ctx, stale, 0), ErrVersionConflict)

	loaded.TurnCount = 5
	require.NoError(t, store.Save(ctx, loaded, 1))
	assert.Equal(t, int64(2), loaded.Version)
}
