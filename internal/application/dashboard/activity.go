package dashboard

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crmdash/backend/internal/domain/crm"
	"github.com/crmdash/backend/internal/infrastructure/cache"
	"github.com/crmdash/backend/internal/infrastructure/crmapi"
	"github.com/crmdash/backend/internal/infrastructure/telemetry"
)

// ActivitySummary is today's activity feed: what was created, won and
// finished since midnight.
type ActivitySummary struct {
	Date           string  `json:"date"` // YYYY-MM-DD, UTC
	NewContacts    int     `json:"newContacts"`
	NewDeals       int     `json:"newDeals"`
	NewDealsValue  float64 `json:"newDealsValue"`
	WonDeals       int     `json:"wonDeals"`
	WonDealsValue  float64 `json:"wonDealsValue"`
	CompletedTasks int     `json:"completedTasks"`
}

// GetTodayActivitySummary summarizes activity since the start of the
// current calendar day. Best-effort: failures yield a zeroed summary for
// today instead of an error.
func (s *Service) GetTodayActivitySummary(ctx context.Context) ActivitySummary {
	ctx, span := telemetry.StartSpan(ctx, "dashboard.activity")
	defer span.End()

	today := crm.TodayRange(s.now())
	key := "dashboard:activity:" + crm.DayKey(today.Start)

	summary, err := cache.GetOrFetch(ctx, s.store, s.logger, key,
		cache.Options{TTL: s.ttl},
		func(ctx context.Context) (ActivitySummary, error) {
			return s.fetchActivitySummary(ctx, today)
		})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("activity fetch failed, serving empty summary", zap.Error(err))
		return ActivitySummary{Date: crm.DayKey(today.Start)}
	}

	return summary
}

func (s *Service) fetchActivitySummary(ctx context.Context, today crm.Range) (ActivitySummary, error) {
	summary := ActivitySummary{Date: crm.DayKey(today.Start)}

	var (
		contacts []crm.Record
		created  []crm.Record
		closed   []crm.Record
		tasks    []crm.Record
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		contacts, _, err = s.api.SearchObjects(gctx, crm.ObjectTypeContacts, crmapi.SearchRequest{
			FilterGroups: betweenFilter(crm.PropCreateDate, today),
			Properties:   []string{crm.PropCreateDate},
		})
		return err
	})
	g.Go(func() error {
		var err error
		created, _, err = s.api.SearchObjects(gctx, crm.ObjectTypeDeals, crmapi.SearchRequest{
			FilterGroups: betweenFilter(crm.PropCreateDate, today),
			Properties:   dealProperties,
		})
		return err
	})
	g.Go(func() error {
		var err error
		closed, _, err = s.api.SearchObjects(gctx, crm.ObjectTypeDeals, crmapi.SearchRequest{
			FilterGroups: betweenFilter(crm.PropCloseDate, today),
			Properties:   dealProperties,
		})
		return err
	})
	g.Go(func() error {
		var err error
		tasks, _, err = s.api.SearchObjects(gctx, crm.ObjectTypeTasks, crmapi.SearchRequest{
			FilterGroups: betweenFilter(crm.PropTaskCompleted, today),
			Properties:   taskProperties,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return ActivitySummary{}, err
	}

	summary.NewContacts = len(contacts)

	for _, deal := range crm.DealsFromRecords(created) {
		summary.NewDeals++
		summary.NewDealsValue += deal.Amount.InexactFloat64()
	}
	for _, deal := range crm.DealsFromRecords(closed) {
		if deal.IsWon() {
			summary.WonDeals++
			summary.WonDealsValue += deal.Amount.InexactFloat64()
		}
	}
	for _, r := range tasks {
		if crm.TaskFromRecord(r).IsCompleted() {
			summary.CompletedTasks++
		}
	}

	return summary, nil
}
