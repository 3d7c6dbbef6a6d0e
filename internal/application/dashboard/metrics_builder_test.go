package dashboard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmdash/backend/internal/domain/crm"
	"github.com/crmdash/backend/internal/infrastructure/crmapi"
)

func metricsFixture() *fakeAPI {
	return &fakeAPI{
		search: func(objectType string, req crmapi.SearchRequest) ([]crm.Record, int, error) {
			switch objectType {
			case crm.ObjectTypeContacts:
				return []crm.Record{
					rec("c1", map[string]string{crm.PropCreateDate: daysAgo(1)}),
					rec("c2", map[string]string{crm.PropCreateDate: daysAgo(200)}),
				}, 2, nil
			case crm.ObjectTypeCompanies:
				return []crm.Record{
					rec("co1", map[string]string{crm.PropCreateDate: daysAgo(1)}),
				}, 1, nil
			case crm.ObjectTypeDeals:
				return []crm.Record{
					dealRecord("d1", crm.StageClosedWon, "200", daysAgo(5), daysAgo(2)),
					dealRecord("d2", "qualifiedtobuy", "100", daysAgo(10), ""),
					dealRecord("d3", crm.StageClosedLost, "300", daysAgo(60), daysAgo(40)),
				}, 3, nil
			case crm.ObjectTypeTasks:
				return []crm.Record{
					rec("t1", map[string]string{
						crm.PropTaskStatus:    crm.TaskStatusCompleted,
						crm.PropTaskCompleted: daysAgo(1),
						crm.PropCreateDate:    daysAgo(3),
					}),
					rec("t2", map[string]string{
						crm.PropTaskStatus: "NOT_STARTED",
						crm.PropCreateDate: daysAgo(3),
					}),
				}, 2, nil
			default:
				return nil, 0, nil
			}
		},
	}
}

func TestGetDashboardMetrics(t *testing.T) {
	api := metricsFixture()
	svc := newTestService(t, api)

	m := svc.GetDashboardMetrics(context.Background(), 30, false)

	// Current window: d1 won inside, d3 closed 40 days ago is outside,
	// d2 stays open.
	assert.Equal(t, 3, m.Current.TotalDeals)
	assert.Equal(t, 1, m.Current.WonDeals)
	assert.Equal(t, 200.0, m.Current.Revenue)
	assert.Equal(t, 0, m.Current.LostDeals)
	assert.Equal(t, 1, m.Current.OpenDeals)
	assert.Equal(t, 100.0, m.Current.ActiveDealsValue)
	assert.Equal(t, 2, m.Current.NewDeals)

	// The previous aggregate is anchored at the previous period's end,
	// so d3 (closed 40 days ago) lands in its window.
	assert.Equal(t, 1, m.Previous.LostDeals)
	assert.Equal(t, 300.0, m.Previous.LostRevenue)

	assert.Equal(t, 2, m.Current.TotalContacts)
	assert.Equal(t, 1, m.Current.NewContacts)
	assert.Equal(t, 1, m.Previous.TotalContacts) // only c2 existed back then
	assert.Equal(t, 1, m.Current.TotalCompanies)
	assert.Equal(t, 1, m.Current.NewCompanies)
	assert.Equal(t, 2, m.Current.TotalTasks)
	assert.Equal(t, 1, m.Current.CompletedTasks)

	assert.False(t, m.Period.IsZero())
	assert.False(t, m.PreviousPeriod.IsZero())
}

func TestGetDashboardMetricsRange(t *testing.T) {
	api := metricsFixture()
	svc := newTestService(t, api)

	start := testNow.AddDate(0, 0, -30).UnixMilli()
	end := testNow.UnixMilli()
	m := svc.GetDashboardMetricsRange(context.Background(), start, end, false)

	// Boundaries are reported verbatim, not day-snapped.
	assert.Equal(t, start, m.Period.Start)
	assert.Equal(t, end, m.Period.End)
	assert.Equal(t, start-1, m.PreviousPeriod.End)

	// d1 closed 2 days ago falls in the window; d3 closed 40 days ago
	// falls in the preceding one.
	assert.Equal(t, 1, m.Current.WonDeals)
	assert.Equal(t, 200.0, m.Current.Revenue)
	assert.Equal(t, 0, m.Current.LostDeals)
	assert.Equal(t, 1, m.Previous.LostDeals)

	assert.Equal(t, 1, m.Current.NewContacts)
	assert.Equal(t, 1, m.Previous.TotalContacts)
}

func TestGetDashboardMetricsRange_CachedSeparatelyFromDayCounts(t *testing.T) {
	api := metricsFixture()
	svc := newTestService(t, api)
	ctx := context.Background()

	svc.GetDashboardMetrics(ctx, 30, false)
	require.Equal(t, 1, api.calls(crm.ObjectTypeDeals))

	start := testNow.AddDate(0, 0, -30).UnixMilli()
	svc.GetDashboardMetricsRange(ctx, start, testNow.UnixMilli(), false)
	assert.Equal(t, 2, api.calls(crm.ObjectTypeDeals))

	svc.GetDashboardMetricsRange(ctx, start, testNow.UnixMilli(), false)
	assert.Equal(t, 2, api.calls(crm.ObjectTypeDeals))
}

func TestGetDashboardMetrics_AllTimeHasNoPreviousPeriod(t *testing.T) {
	svc := newTestService(t, metricsFixture())

	m := svc.GetDashboardMetrics(context.Background(), 0, false)

	assert.Equal(t, 3, m.Current.TotalDeals)
	assert.True(t, m.PreviousPeriod.IsZero())
	assert.Zero(t, m.Previous.TotalDeals)
	assert.Zero(t, m.Previous.TotalContacts)
}

func TestGetDashboardMetrics_CachesResult(t *testing.T) {
	api := metricsFixture()
	svc := newTestService(t, api)
	ctx := context.Background()

	svc.GetDashboardMetrics(ctx, 30, false)
	svc.GetDashboardMetrics(ctx, 30, false)

	assert.Equal(t, 1, api.calls(crm.ObjectTypeDeals))

	svc.GetDashboardMetrics(ctx, 30, true)
	assert.Equal(t, 2, api.calls(crm.ObjectTypeDeals))
}

func TestGetDashboardMetrics_DegradesToZeroedPair(t *testing.T) {
	api := &fakeAPI{
		search: func(string, crmapi.SearchRequest) ([]crm.Record, int, error) {
			return nil, 0, errors.New("upstream down")
		},
	}
	svc := newTestService(t, api)

	m := svc.GetDashboardMetrics(context.Background(), 30, false)

	assert.Zero(t, m.Current.TotalDeals)
	assert.Zero(t, m.Previous.TotalDeals)
	require.False(t, m.Period.IsZero())
	assert.False(t, m.GeneratedAt.IsZero())
}

func TestGetDashboardMetrics_StaleFallbackAfterUpstreamFailure(t *testing.T) {
	healthy := true
	fixture := metricsFixture()
	api := &fakeAPI{
		search: func(objectType string, req crmapi.SearchRequest) ([]crm.Record, int, error) {
			if !healthy {
				return nil, 0, errors.New("upstream down")
			}
			return fixture.search(objectType, req)
		},
	}
	svc := newTestService(t, api)
	ctx := context.Background()

	first := svc.GetDashboardMetrics(ctx, 30, false)
	require.Equal(t, 3, first.Current.TotalDeals)

	// Forced refresh fails upstream; the stale entry masks the error.
	healthy = false
	second := svc.GetDashboardMetrics(ctx, 30, true)
	assert.Equal(t, 3, second.Current.TotalDeals)
	assert.Equal(t, first.Current.Revenue, second.Current.Revenue)
}
