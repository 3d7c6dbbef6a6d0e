package crmapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmdash/backend/internal/domain/crm"
	"github.com/crmdash/backend/internal/infrastructure/cache"
)

func newCachedTestClient(t *testing.T, handler http.Handler) *CachedClient {
	t.Helper()
	client, _ := newTestClient(t, handler)
	store := cache.NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	return NewCachedClient(client, store, time.Minute)
}

func TestCachedSearch_SharedAcrossCallers(t *testing.T) {
	upstream := 0
	cached := newCachedTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstream++
		writeSearchPage(w, 2, "", "1", "2")
	}))
	ctx := context.Background()

	first, total, err := cached.SearchObjects(ctx, crm.ObjectTypeDeals, SearchRequest{})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 2, total)

	// Same query again: served from cache, no second drain.
	second, _, err := cached.SearchObjects(ctx, crm.ObjectTypeDeals, SearchRequest{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, upstream)
}

func TestCachedSearch_KeyCoversSemanticFields(t *testing.T) {
	upstream := 0
	cached := newCachedTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstream++
		writeSearchPage(w, 1, "", "1")
	}))
	ctx := context.Background()

	_, _, err := cached.SearchObjects(ctx, crm.ObjectTypeDeals, SearchRequest{})
	require.NoError(t, err)
	_, _, err = cached.SearchObjects(ctx, crm.ObjectTypeContacts, SearchRequest{})
	require.NoError(t, err)
	_, _, err = cached.SearchObjects(ctx, crm.ObjectTypeDeals, SearchRequest{
		Properties: []string{crm.PropAmount},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, upstream)

	// Pagination mechanics are not query identity.
	_, _, err = cached.SearchObjects(ctx, crm.ObjectTypeDeals, SearchRequest{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, upstream)
}

func TestCachedSearch_ErrorPropagatesWithoutEntry(t *testing.T) {
	cached := newCachedTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, _, err := cached.SearchObjects(context.Background(), crm.ObjectTypeDeals, SearchRequest{})
	require.Error(t, err)

	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)
}
