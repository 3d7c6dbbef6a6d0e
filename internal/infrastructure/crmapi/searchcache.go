package crmapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/crmdash/backend/internal/domain/crm"
	"github.com/crmdash/backend/internal/infrastructure/cache"
)

// CachedClient wraps a Client so identical searches within the TTL are
// served from the result cache instead of re-draining the CRM. Two
// builders issuing the same query share one upstream fetch, and a
// failed refetch falls back to the stale entry like every other cached
// read. Non-search calls pass through to the underlying client.
type CachedClient struct {
	*Client
	store cache.Store
	ttl   time.Duration
}

// NewCachedClient wraps client with a search result cache. A zero ttl
// uses the cache package default.
func NewCachedClient(client *Client, store cache.Store, ttl time.Duration) *CachedClient {
	return &CachedClient{
		Client: client,
		store:  store,
		ttl:    ttl,
	}
}

// cachedSearch is the stored shape of one drained search.
type cachedSearch struct {
	Records []crm.Record `json:"records"`
	Total   int          `json:"total"`
}

// SearchObjects serves the search from the cache when a fresh entry
// exists, draining upstream otherwise.
func (c *CachedClient) SearchObjects(ctx context.Context, objectType string, req SearchRequest) ([]crm.Record, int, error) {
	result, err := cache.GetOrFetch(ctx, c.store, c.logger, searchCacheKey(objectType, req),
		cache.Options{TTL: c.ttl},
		func(ctx context.Context) (cachedSearch, error) {
			records, total, err := c.Client.SearchObjects(ctx, objectType, req)
			if err != nil {
				return cachedSearch{}, err
			}
			return cachedSearch{Records: records, Total: total}, nil
		})
	if err != nil {
		return nil, 0, err
	}
	return result.Records, result.Total, nil
}

// searchCacheKey derives a key from the canonicalized semantic request
// fields. Limit and After are pagination mechanics, not query identity,
// so they stay out of the key.
func searchCacheKey(objectType string, req SearchRequest) string {
	canonical, _ := json.Marshal(struct {
		FilterGroups []FilterGroup `json:"filterGroups"`
		Properties   []string      `json:"properties"`
		Sorts        []Sort        `json:"sorts"`
	}{req.FilterGroups, req.Properties, req.Sorts})

	sum := sha256.Sum256(canonical)
	return "crm:search:" + objectType + ":" + hex.EncodeToString(sum[:16])
}
