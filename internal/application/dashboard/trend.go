package dashboard

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crmdash/backend/internal/domain/crm"
	"github.com/crmdash/backend/internal/infrastructure/cache"
	"github.com/crmdash/backend/internal/infrastructure/crmapi"
	"github.com/crmdash/backend/internal/infrastructure/telemetry"
)

const defaultTrendDays = 30

// TrendPoint is one calendar day of the trend series.
type TrendPoint struct {
	Date        string  `json:"date"` // YYYY-MM-DD, UTC
	Contacts    int     `json:"contacts"`
	Companies   int     `json:"companies"`
	Deals       int     `json:"deals"`
	Revenue     float64 `json:"revenue"`
	LostRevenue float64 `json:"lostRevenue"`
}

// GetTrendData builds one point per calendar day over the trailing
// period. Contacts, companies and the deal count are bucketed by
// creation date; revenue and lost revenue by close date — one deal can
// therefore contribute to two different days.
//
// The trend is best-effort: any failure yields an empty series, not an
// error.
func (s *Service) GetTrendData(ctx context.Context, days int) []TrendPoint {
	if days <= 0 {
		days = defaultTrendDays
	}
	ctx, span := telemetry.StartSpan(ctx, "dashboard.trends",
		telemetry.WithAttribute(telemetry.SpanAttrPeriodDays, days))
	defer span.End()

	key := fmt.Sprintf("dashboard:trends:%d", days)

	points, err := cache.GetOrFetch(ctx, s.store, s.logger, key,
		cache.Options{TTL: s.ttl},
		func(ctx context.Context) ([]TrendPoint, error) {
			return s.fetchTrendData(ctx, days)
		})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("trend fetch failed, serving empty series",
			zap.Int("days", days),
			zap.Error(err))
		return []TrendPoint{}
	}

	return points
}

func (s *Service) fetchTrendData(ctx context.Context, days int) ([]TrendPoint, error) {
	now := s.now()
	current, _ := crm.PeriodRange(days, now)

	var (
		contacts  []crm.Record
		companies []crm.Record
		dealRecs  []crm.Record
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		contacts, _, err = s.api.SearchObjects(gctx, crm.ObjectTypeContacts, crmapi.SearchRequest{
			FilterGroups: betweenFilter(crm.PropCreateDate, current),
			Properties:   []string{crm.PropCreateDate},
		})
		return err
	})
	g.Go(func() error {
		var err error
		companies, _, err = s.api.SearchObjects(gctx, crm.ObjectTypeCompanies, crmapi.SearchRequest{
			FilterGroups: betweenFilter(crm.PropCreateDate, current),
			Properties:   []string{crm.PropCreateDate},
		})
		return err
	})
	g.Go(func() error {
		// Revenue buckets anchor on close date, so the deal fetch
		// filters on it; created-in-range deals that closed outside the
		// window are picked up by their close date elsewhere.
		var err error
		dealRecs, _, err = s.api.SearchObjects(gctx, crm.ObjectTypeDeals, crmapi.SearchRequest{
			FilterGroups: betweenFilter(crm.PropCloseDate, current),
			Properties:   dealProperties,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	buckets := make(map[string]*TrendPoint)
	point := func(ms int64) *TrendPoint {
		day := crm.DayKey(ms)
		p, ok := buckets[day]
		if !ok {
			p = &TrendPoint{Date: day}
			buckets[day] = p
		}
		return p
	}

	for _, r := range contacts {
		if created := crm.ParseTime(r.Prop(crm.PropCreateDate)); created != nil && current.Contains(created.UnixMilli()) {
			point(created.UnixMilli()).Contacts++
		}
	}
	for _, r := range companies {
		if created := crm.ParseTime(r.Prop(crm.PropCreateDate)); created != nil && current.Contains(created.UnixMilli()) {
			point(created.UnixMilli()).Companies++
		}
	}
	for _, deal := range crm.DealsFromRecords(dealRecs) {
		if deal.CreatedAt != nil && current.Contains(deal.CreatedAt.UnixMilli()) {
			point(deal.CreatedAt.UnixMilli()).Deals++
		}
		if deal.ClosedAt == nil || !current.Contains(deal.ClosedAt.UnixMilli()) {
			continue
		}
		closed := deal.ClosedAt.UnixMilli()
		if deal.IsWon() {
			point(closed).Revenue += deal.Amount.InexactFloat64()
		}
		if deal.IsLost() {
			point(closed).LostRevenue += deal.Amount.InexactFloat64()
		}
	}

	// Emit every day of the range, zero-filled, oldest first.
	points := make([]TrendPoint, 0, days+1)
	for day := time.UnixMilli(current.Start).UTC(); !day.After(time.UnixMilli(current.End).UTC()); day = day.AddDate(0, 0, 1) {
		key := crm.DayKey(day.UnixMilli())
		if p, ok := buckets[key]; ok {
			points = append(points, *p)
		} else {
			points = append(points, TrendPoint{Date: key})
		}
	}

	return points, nil
}
