package dashboard

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crmdash/backend/internal/domain/crm"
	"github.com/crmdash/backend/internal/infrastructure/cache"
	"github.com/crmdash/backend/internal/infrastructure/crmapi"
	"github.com/crmdash/backend/internal/infrastructure/telemetry"
)

// PeriodMetrics is the full metric set for one reporting period: the
// deal aggregate plus contact, company and task counts.
type PeriodMetrics struct {
	crm.DealMetrics
	TotalContacts  int `json:"totalContacts"`
	NewContacts    int `json:"newContacts"`
	TotalCompanies int `json:"totalCompanies"`
	NewCompanies   int `json:"newCompanies"`
	TotalTasks     int `json:"totalTasks"`
	CompletedTasks int `json:"completedTasks"`
}

// DashboardMetrics is the current/previous pair served to the metrics
// cards. The pair is always produced together so the UI can render
// period-over-period deltas.
type DashboardMetrics struct {
	Current        PeriodMetrics `json:"current"`
	Previous       PeriodMetrics `json:"previous"`
	Period         crm.Range     `json:"period"`
	PreviousPeriod crm.Range     `json:"previousPeriod"`
	GeneratedAt    time.Time     `json:"generatedAt"`
}

// GetDashboardMetrics builds the metrics pair for a trailing period of
// days (0 = all time). Results are cached per day-count; forceRefresh
// bypasses a fresh cache hit.
//
// This builder never fails: when the fetch errors out and no stale cache
// entry exists, it logs the error and returns a zeroed pair so the
// dashboard renders empty cards instead of an error page.
func (s *Service) GetDashboardMetrics(ctx context.Context, days int, forceRefresh bool) DashboardMetrics {
	ctx, span := telemetry.StartSpan(ctx, "dashboard.metrics",
		telemetry.WithAttribute(telemetry.SpanAttrPeriodDays, days),
		telemetry.WithAttribute(telemetry.SpanAttrForce, forceRefresh))
	defer span.End()

	now := s.now()
	current, previous := crm.PeriodRange(days, now)
	key := fmt.Sprintf("dashboard:metrics:%d", days)

	return s.metricsPair(ctx, span, key, forceRefresh, days, current, previous, now)
}

// GetDashboardMetricsRange builds the metrics pair for an explicit
// [start, end] window in epoch milliseconds. The previous period is the
// equal-length window immediately before it. Entity counts honor the
// exact boundaries; the deal aggregate is anchored at the window end
// with the window's calendar-day count, so its trailing window snaps to
// whole days.
func (s *Service) GetDashboardMetricsRange(ctx context.Context, startMs, endMs int64, forceRefresh bool) DashboardMetrics {
	ctx, span := telemetry.StartSpan(ctx, "dashboard.metrics",
		telemetry.WithAttribute(telemetry.SpanAttrPeriodStart, startMs),
		telemetry.WithAttribute(telemetry.SpanAttrPeriodEnd, endMs),
		telemetry.WithAttribute(telemetry.SpanAttrForce, forceRefresh))
	defer span.End()

	current, previous := crm.ExplicitRange(startMs, endMs)
	key := fmt.Sprintf("dashboard:metrics:%d:%d", startMs, endMs)

	return s.metricsPair(ctx, span, key, forceRefresh, current.Days(), current, previous, time.UnixMilli(endMs))
}

// metricsPair is the shared cache/fetch/degrade core behind both metric
// entry points. anchor is the timestamp the deal aggregator trails from:
// the wall clock for day-count requests, the window end for explicit
// ranges.
func (s *Service) metricsPair(ctx context.Context, span trace.Span, key string, forceRefresh bool, days int, current, previous crm.Range, anchor time.Time) DashboardMetrics {
	result, err := cache.GetOrFetch(ctx, s.store, s.logger, key,
		cache.Options{TTL: s.ttl, ForceRefresh: forceRefresh},
		func(ctx context.Context) (DashboardMetrics, error) {
			return s.fetchDashboardMetrics(ctx, days, current, previous, anchor)
		})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("dashboard metrics fetch failed, serving zeroed pair",
			zap.String("cache_key", key),
			zap.Error(err))
		return DashboardMetrics{
			Period:         current,
			PreviousPeriod: previous,
			GeneratedAt:    s.now(),
		}
	}

	return result
}

func (s *Service) fetchDashboardMetrics(ctx context.Context, days int, current, previous crm.Range, anchor time.Time) (DashboardMetrics, error) {
	var (
		contacts  []crm.Record
		companies []crm.Record
		dealRecs  []crm.Record
		taskRecs  []crm.Record
	)

	// The four entity fetches are independent; run them concurrently.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		contacts, _, err = s.api.SearchObjects(gctx, crm.ObjectTypeContacts, searchAllWith(crm.PropCreateDate))
		return err
	})
	g.Go(func() error {
		var err error
		companies, _, err = s.api.SearchObjects(gctx, crm.ObjectTypeCompanies, searchAllWith(crm.PropCreateDate))
		return err
	})
	g.Go(func() error {
		var err error
		dealRecs, _, err = s.api.SearchObjects(gctx, crm.ObjectTypeDeals, searchAllWith(dealProperties...))
		return err
	})
	g.Go(func() error {
		var err error
		taskRecs, _, err = s.api.SearchObjects(gctx, crm.ObjectTypeTasks, searchAllWith(taskProperties...))
		return err
	})
	if err := g.Wait(); err != nil {
		return DashboardMetrics{}, err
	}

	deals := crm.DealsFromRecords(dealRecs)

	result := DashboardMetrics{
		Period:         current,
		PreviousPeriod: previous,
		GeneratedAt:    s.now(),
	}

	// The current aggregate trails from the anchor; the previous one from
	// the previous period's end, so its window lines up with that period.
	result.Current.DealMetrics = crm.ComputeDealMetrics(deals, days, anchor)
	if !previous.IsZero() {
		result.Previous.DealMetrics = crm.ComputeDealMetrics(deals, days, time.UnixMilli(previous.End))
	}

	fillEntityCounts(&result.Current, &result.Previous, contacts, companies, taskRecs, current, previous)

	return result, nil
}

// searchAllWith is the match-all search request carrying one property set.
func searchAllWith(properties ...string) crmapi.SearchRequest {
	return crmapi.SearchRequest{
		FilterGroups: matchAll(),
		Properties:   properties,
	}
}

// fillEntityCounts folds contact/company/task counts into both periods.
// Current totals are all-time; previous totals only count records that
// already existed when the previous period ended.
func fillEntityCounts(current, previous *PeriodMetrics, contacts, companies, tasks []crm.Record, cur, prev crm.Range) {
	for _, r := range contacts {
		created := crm.ParseTime(r.Prop(crm.PropCreateDate))
		current.TotalContacts++
		if created == nil {
			continue
		}
		ms := created.UnixMilli()
		if cur.Contains(ms) {
			current.NewContacts++
		}
		if !prev.IsZero() {
			if ms <= prev.End {
				previous.TotalContacts++
			}
			if prev.Contains(ms) {
				previous.NewContacts++
			}
		}
	}

	for _, r := range companies {
		created := crm.ParseTime(r.Prop(crm.PropCreateDate))
		current.TotalCompanies++
		if created == nil {
			continue
		}
		ms := created.UnixMilli()
		if cur.Contains(ms) {
			current.NewCompanies++
		}
		if !prev.IsZero() {
			if ms <= prev.End {
				previous.TotalCompanies++
			}
			if prev.Contains(ms) {
				previous.NewCompanies++
			}
		}
	}

	for _, r := range tasks {
		task := crm.TaskFromRecord(r)
		current.TotalTasks++
		if task.IsCompleted() {
			current.CompletedTasks++
		}
		if prev.IsZero() {
			continue
		}
		if task.CreatedAt != nil && task.CreatedAt.UnixMilli() <= prev.End {
			previous.TotalTasks++
		}
		if task.IsCompleted() && task.CompletedAt.UnixMilli() <= prev.End {
			previous.CompletedTasks++
		}
	}
}
