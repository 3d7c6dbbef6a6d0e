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

func TestGetTrendData(t *testing.T) {
	api := &fakeAPI{
		search: func(objectType string, req crmapi.SearchRequest) ([]crm.Record, int, error) {
			switch objectType {
			case crm.ObjectTypeContacts:
				return []crm.Record{
					rec("c1", map[string]string{crm.PropCreateDate: daysAgo(2)}),
					rec("c2", map[string]string{crm.PropCreateDate: daysAgo(2)}),
				}, 2, nil
			case crm.ObjectTypeCompanies:
				return []crm.Record{
					rec("co1", map[string]string{crm.PropCreateDate: daysAgo(4)}),
				}, 1, nil
			case crm.ObjectTypeDeals:
				return []crm.Record{
					// Created day -6, closed-won day -2: the deal count
					// lands on one day, the revenue on another.
					dealRecord("d1", crm.StageClosedWon, "150", daysAgo(6), daysAgo(2)),
					dealRecord("d2", crm.StageClosedLost, "40", daysAgo(3), daysAgo(1)),
				}, 2, nil
			default:
				return nil, 0, nil
			}
		},
	}
	svc := newTestService(t, api)

	points := svc.GetTrendData(context.Background(), 7)
	require.Len(t, points, 8) // start day through today, inclusive

	byDate := make(map[string]TrendPoint, len(points))
	for _, p := range points {
		byDate[p.Date] = p
	}

	day := func(d int) string { return crm.DayKey(testNow.AddDate(0, 0, -d).UnixMilli()) }

	assert.Equal(t, 2, byDate[day(2)].Contacts)
	assert.Equal(t, 1, byDate[day(4)].Companies)
	assert.Equal(t, 1, byDate[day(6)].Deals)
	assert.Equal(t, 150.0, byDate[day(2)].Revenue)
	assert.Equal(t, 40.0, byDate[day(1)].LostRevenue)

	// Days without activity are present and zero-filled.
	assert.Zero(t, byDate[day(5)].Contacts)
	assert.Zero(t, byDate[day(5)].Revenue)

	// Ascending by date.
	for i := 1; i < len(points); i++ {
		assert.Less(t, points[i-1].Date, points[i].Date)
	}
}

func TestGetTrendData_EmptyOnFailure(t *testing.T) {
	api := &fakeAPI{
		search: func(string, crmapi.SearchRequest) ([]crm.Record, int, error) {
			return nil, 0, errors.New("upstream down")
		},
	}
	svc := newTestService(t, api)

	points := svc.GetTrendData(context.Background(), 7)
	assert.NotNil(t, points)
	assert.Empty(t, points)
}

func TestGetTrendData_DefaultsPeriod(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(t, api)

	points := svc.GetTrendData(context.Background(), 0)
	assert.Len(t, points, defaultTrendDays+1)
}
