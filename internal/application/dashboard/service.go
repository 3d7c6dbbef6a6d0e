// Package dashboard builds the derived views served to the metrics
// dashboard: the current/previous metrics pair, the per-day trend
// series, the open-deal forecast, today's activity summary and the
// top-deal lists. Every builder reads the CRM through the result cache
// and degrades gracefully where the view tolerates it.
package dashboard

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/crmdash/backend/internal/domain/crm"
	"github.com/crmdash/backend/internal/infrastructure/cache"
	"github.com/crmdash/backend/internal/infrastructure/crmapi"
)

// defaultTopLimit bounds top-deal lists when the caller passes no limit.
const (
	defaultTopLimit = 5
	maxTopLimit     = 50
)

// Searcher is the slice of the CRM client the builders consume.
type Searcher interface {
	SearchObjects(ctx context.Context, objectType string, req crmapi.SearchRequest) ([]crm.Record, int, error)
	GetAssociations(ctx context.Context, fromType, objectID, toType string) ([]string, error)
	BatchReadObjects(ctx context.Context, objectType string, ids, properties []string) ([]crm.Record, error)
	AssocBatchSize() int
	AssocDelay() time.Duration
}

// Service orchestrates CRM fetches, aggregation and caching.
type Service struct {
	api    Searcher
	store  cache.Store
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time
}

// ServiceOption is a functional option for configuring the service.
type ServiceOption func(*Service)

// WithServiceLogger sets the logger for the service.
func WithServiceLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithCacheTTL overrides the default result TTL.
func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.ttl = ttl
	}
}

// WithNowFunc overrides the clock. Tests use this to pin "now".
func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates the dashboard service.
func NewService(api Searcher, store cache.Store, opts ...ServiceOption) *Service {
	s := &Service{
		api:    api,
		store:  store,
		logger: zap.NewNop(),
		ttl:    cache.DefaultTTL,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// dealProperties is the property set fetched for every deal search.
var dealProperties = []string{
	crm.PropDealName,
	crm.PropDealStage,
	crm.PropPipeline,
	crm.PropAmount,
	crm.PropCreateDate,
	crm.PropCloseDate,
}

// taskProperties is the property set fetched for task searches.
var taskProperties = []string{
	crm.PropTaskStatus,
	crm.PropTaskSubject,
	crm.PropTaskCompleted,
	crm.PropCreateDate,
}

// matchAll is the empty filter group slice the CRM treats as "no
// filter". It must be non-nil so it serializes as an empty array.
func matchAll() []crmapi.FilterGroup {
	return []crmapi.FilterGroup{}
}

// betweenFilter builds a single-group BETWEEN condition on one property.
func betweenFilter(property string, r crm.Range) []crmapi.FilterGroup {
	return []crmapi.FilterGroup{{
		Filters: []crmapi.Filter{{
			PropertyName: property,
			Operator:     crmapi.OperatorBetween,
			Value:        millisString(r.Start),
			HighValue:    millisString(r.End),
		}},
	}}
}

// millisString renders an epoch-ms timestamp the way the CRM's datetime
// filters expect it.
func millisString(ms int64) string {
	return strconv.FormatInt(ms, 10)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultTopLimit
	}
	if limit > maxTopLimit {
		return maxTopLimit
	}
	return limit
}
