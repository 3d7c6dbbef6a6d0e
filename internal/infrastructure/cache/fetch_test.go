package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type payload struct {
	Value int `json:"value"`
}

func TestGetOrFetch_MissFetchesAndCaches(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	calls := 0
	fetch := func(ctx context.Context) (payload, error) {
		calls++
		return payload{Value: 42}, nil
	}

	got, err := GetOrFetch(ctx, store, zap.NewNop(), "k", Options{}, fetch)
	require.NoError(t, err)
	assert.Equal(t, 42, got.Value)
	assert.Equal(t, 1, calls)

	// Second call is served from cache.
	got, err = GetOrFetch(ctx, store, zap.NewNop(), "k", Options{}, fetch)
	require.NoError(t, err)
	assert.Equal(t, 42, got.Value)
	assert.Equal(t, 1, calls)
}

func TestGetOrFetch_ForceRefresh(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	calls := 0
	fetch := func(ctx context.Context) (payload, error) {
		calls++
		return payload{Value: calls}, nil
	}

	_, err := GetOrFetch(ctx, store, zap.NewNop(), "k", Options{}, fetch)
	require.NoError(t, err)

	got, err := GetOrFetch(ctx, store, zap.NewNop(), "k", Options{ForceRefresh: true}, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Value)
	assert.Equal(t, 2, calls)
}

func TestGetOrFetch_StaleFallbackOnError(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	// Seed with a tiny TTL, then let it go stale.
	_, err := GetOrFetch(ctx, store, zap.NewNop(), "k", Options{TTL: 10 * time.Millisecond},
		func(ctx context.Context) (payload, error) { return payload{Value: 7}, nil })
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)

	// The refresh fails; the stale value is served instead of the error.
	got, err := GetOrFetch(ctx, store, zap.NewNop(), "k", Options{TTL: 10 * time.Millisecond},
		func(ctx context.Context) (payload, error) { return payload{}, errors.New("upstream down") })
	require.NoError(t, err)
	assert.Equal(t, 7, got.Value)
}

func TestGetOrFetch_ErrorWithoutFallbackPropagates(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	wantErr := errors.New("upstream down")
	_, err := GetOrFetch(context.Background(), store, zap.NewNop(), "empty", Options{},
		func(ctx context.Context) (payload, error) { return payload{}, wantErr })
	assert.ErrorIs(t, err, wantErr)
}

func TestGetOrFetch_ExpiredEntryTriggersRefetch(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	calls := 0
	fetch := func(ctx context.Context) (payload, error) {
		calls++
		return payload{Value: calls}, nil
	}

	_, err := GetOrFetch(ctx, store, zap.NewNop(), "k", Options{TTL: 10 * time.Millisecond}, fetch)
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)

	got, err := GetOrFetch(ctx, store, zap.NewNop(), "k", Options{TTL: 10 * time.Millisecond}, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Value)
	assert.Equal(t, 2, calls)
}
