package dashboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/crmdash/backend/internal/domain/crm"
	"github.com/crmdash/backend/internal/infrastructure/cache"
	"github.com/crmdash/backend/internal/infrastructure/crmapi"
)

var testNow = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

// fakeAPI is a canned Searcher. search dispatches per object type;
// associations and batch reads come from fixed maps.
type fakeAPI struct {
	mu           sync.Mutex
	search       func(objectType string, req crmapi.SearchRequest) ([]crm.Record, int, error)
	associations map[string][]string // "<dealID>/<toType>" -> IDs
	batch        map[string][]crm.Record
	searchCalls  map[string]int
}

func (f *fakeAPI) SearchObjects(ctx context.Context, objectType string, req crmapi.SearchRequest) ([]crm.Record, int, error) {
	f.mu.Lock()
	if f.searchCalls == nil {
		f.searchCalls = make(map[string]int)
	}
	f.searchCalls[objectType]++
	f.mu.Unlock()

	if f.search == nil {
		return nil, 0, nil
	}
	return f.search(objectType, req)
}

func (f *fakeAPI) GetAssociations(ctx context.Context, fromType, objectID, toType string) ([]string, error) {
	return f.associations[objectID+"/"+toType], nil
}

func (f *fakeAPI) BatchReadObjects(ctx context.Context, objectType string, ids, properties []string) ([]crm.Record, error) {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var records []crm.Record
	for _, r := range f.batch[objectType] {
		if _, ok := wanted[r.ID]; ok {
			records = append(records, r)
		}
	}
	return records, nil
}

func (f *fakeAPI) AssocBatchSize() int       { return 3 }
func (f *fakeAPI) AssocDelay() time.Duration { return 0 }

func (f *fakeAPI) calls(objectType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searchCalls[objectType]
}

func newTestService(t *testing.T, api Searcher) *Service {
	t.Helper()
	store := NewTestStore(t)
	return NewService(api, store, WithNowFunc(func() time.Time { return testNow }))
}

// NewTestStore returns a memory store that is closed with the test.
func NewTestStore(t *testing.T) *cache.MemoryStore {
	t.Helper()
	store := cache.NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	return store
}

func rec(id string, props map[string]string) crm.Record {
	return crm.Record{ID: id, Properties: props}
}

func daysAgo(d int) string {
	return testNow.AddDate(0, 0, -d).Format(time.RFC3339)
}

func dealRecord(id, stage, amount, created, closed string) crm.Record {
	props := map[string]string{
		crm.PropDealName:  "deal " + id,
		crm.PropDealStage: stage,
		crm.PropAmount:    amount,
	}
	if created != "" {
		props[crm.PropCreateDate] = created
	}
	if closed != "" {
		props[crm.PropCloseDate] = closed
	}
	return rec(id, props)
}
