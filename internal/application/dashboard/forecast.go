package dashboard

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/crmdash/backend/internal/domain/crm"
	"github.com/crmdash/backend/internal/infrastructure/cache"
	"github.com/crmdash/backend/internal/infrastructure/crmapi"
	"github.com/crmdash/backend/internal/infrastructure/telemetry"
)

// ForecastMonth is the projected open-pipeline value closing in one
// calendar month.
type ForecastMonth struct {
	Month string  `json:"month"` // YYYY-MM, UTC
	Total float64 `json:"total"`
	Deals int     `json:"deals"`
}

// GetOpenDealsForecastByMonth groups open deals by the calendar month of
// their expected close date and sums their amounts. Deals without a
// close date or with a zero amount carry no forecast signal and are
// skipped. Months are returned ascending.
func (s *Service) GetOpenDealsForecastByMonth(ctx context.Context) ([]ForecastMonth, error) {
	ctx, span := telemetry.StartSpan(ctx, "dashboard.forecast")
	defer span.End()

	months, err := cache.GetOrFetch(ctx, s.store, s.logger, "dashboard:forecast",
		cache.Options{TTL: s.ttl},
		s.fetchForecast)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return months, nil
}

func (s *Service) fetchForecast(ctx context.Context) ([]ForecastMonth, error) {
	records, _, err := s.api.SearchObjects(ctx, crm.ObjectTypeDeals, crmapi.SearchRequest{
		FilterGroups: []crmapi.FilterGroup{{
			Filters: []crmapi.Filter{
				{PropertyName: crm.PropDealStage, Operator: crmapi.OperatorNeq, Value: crm.StageClosedWon},
				{PropertyName: crm.PropDealStage, Operator: crmapi.OperatorNeq, Value: crm.StageClosedLost},
			},
		}},
		Properties: dealProperties,
	})
	if err != nil {
		return nil, err
	}

	type bucket struct {
		total decimal.Decimal
		deals int
	}
	buckets := make(map[string]*bucket)

	for _, deal := range crm.DealsFromRecords(records) {
		if deal.ClosedAt == nil || deal.Amount.IsZero() {
			continue
		}
		month := crm.MonthKey(*deal.ClosedAt)
		b, ok := buckets[month]
		if !ok {
			b = &bucket{}
			buckets[month] = b
		}
		b.total = b.total.Add(deal.Amount)
		b.deals++
	}

	months := make([]ForecastMonth, 0, len(buckets))
	for month, b := range buckets {
		months = append(months, ForecastMonth{
			Month: month,
			Total: b.total.InexactFloat64(),
			Deals: b.deals,
		})
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Month < months[j].Month })

	return months, nil
}
