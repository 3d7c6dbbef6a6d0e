package crm

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(t time.Time) *time.Time { return &t }

func amount(v string) decimal.Decimal {
	d, _ := decimal.NewFromString(v)
	return d
}

func TestComputeDealMetrics_AllTime(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	deals := []Deal{
		{ID: "1", Stage: "qualifiedtobuy", Amount: amount("100"), CreatedAt: ts(now.AddDate(0, 0, -10))},
		{ID: "2", Stage: StageClosedWon, Amount: amount("200"), CreatedAt: ts(now.AddDate(0, 0, -5)), ClosedAt: ts(now.AddDate(0, 0, -2))},
		{ID: "3", Stage: StageClosedLost, Amount: amount("300"), CreatedAt: ts(now.AddDate(0, 0, -40)), ClosedAt: ts(now.AddDate(0, 0, -1))},
	}

	m := ComputeDealMetrics(deals, 0, now)

	assert.Equal(t, 3, m.TotalDeals)
	assert.Equal(t, 3, m.NewDeals)
	assert.Equal(t, 1, m.OpenDeals)
	assert.Equal(t, 1, m.WonDeals)
	assert.Equal(t, 1, m.LostDeals)
	assert.Equal(t, 200.0, m.Revenue)
	assert.Equal(t, 300.0, m.LostRevenue)
	assert.Equal(t, 200.0, m.AverageWonDealSize)
	assert.Equal(t, 100.0, m.ActiveDealsValue)
}

func TestComputeDealMetrics_WonAnchoredByCloseDate(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	// Created well before the 30-day window but closed-won inside it.
	deal := Deal{
		ID:        "old-but-gold",
		Stage:     StageClosedWon,
		Amount:    amount("5000"),
		CreatedAt: ts(now.AddDate(0, 0, -60)),
		ClosedAt:  ts(now.AddDate(0, 0, -2)),
	}

	m := ComputeDealMetrics([]Deal{deal}, 30, now)

	assert.Equal(t, 1, m.WonDeals)
	assert.Equal(t, 5000.0, m.Revenue)
	// Creation predates the window, so it is not a new deal.
	assert.Equal(t, 0, m.NewDeals)
}

func TestComputeDealMetrics_WindowedNewDeals(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	deals := []Deal{
		{ID: "in", Stage: "appointmentscheduled", Amount: amount("50"), CreatedAt: ts(now.AddDate(0, 0, -3))},
		{ID: "prev", Stage: "appointmentscheduled", Amount: amount("70"), CreatedAt: ts(now.AddDate(0, 0, -10))},
		{ID: "ancient", Stage: "appointmentscheduled", Amount: amount("90"), CreatedAt: ts(now.AddDate(0, 0, -100))},
	}

	m := ComputeDealMetrics(deals, 7, now)

	assert.Equal(t, 1, m.NewDeals)
	assert.Equal(t, 50.0, m.NewDealsValue)
	assert.Equal(t, 1, m.CreatedPrevPeriod)
	// Open-deal accounting is all-time regardless of the window.
	assert.Equal(t, 3, m.OpenDeals)
	assert.Equal(t, 210.0, m.ActiveDealsValue)
}

func TestComputeDealMetrics_EmptyInput(t *testing.T) {
	m := ComputeDealMetrics(nil, 30, time.Now())

	assert.Zero(t, m.TotalDeals)
	assert.Zero(t, m.Revenue)
	assert.Zero(t, m.ConversionRate)
	assert.Zero(t, m.ValueCloseRate)
	assert.Zero(t, m.AverageDealSize)
}

func TestComputeDealMetrics_RatesBounded(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	deals := []Deal{
		{ID: "w1", Stage: StageClosedWon, Amount: amount("100"), CreatedAt: ts(now.AddDate(0, 0, -1)), ClosedAt: ts(now.AddDate(0, 0, -1))},
		{ID: "w2", Stage: StageClosedWon, Amount: amount("300"), CreatedAt: ts(now.AddDate(0, 0, -2)), ClosedAt: ts(now.AddDate(0, 0, -1))},
		{ID: "l1", Stage: StageClosedLost, Amount: amount("100"), CreatedAt: ts(now.AddDate(0, 0, -2)), ClosedAt: ts(now.AddDate(0, 0, -1))},
	}

	for _, days := range []int{0, 7, 30, 365} {
		m := ComputeDealMetrics(deals, days, now)
		assert.GreaterOrEqual(t, m.ConversionRate, 0.0)
		assert.LessOrEqual(t, m.ConversionRate, 100.0)
		assert.GreaterOrEqual(t, m.ValueCloseRate, 0.0)
		assert.LessOrEqual(t, m.ValueCloseRate, 100.0)
	}

	m := ComputeDealMetrics(deals, 30, now)
	assert.InDelta(t, 66.67, m.ConversionRate, 0.01)
	assert.InDelta(t, 80.0, m.ValueCloseRate, 0.01)
}

func TestComputeDealMetrics_MonotonicWithWiderWindow(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	var deals []Deal
	for i := 1; i <= 120; i += 7 {
		closed := now.AddDate(0, 0, -i)
		stage := StageClosedWon
		if i%2 == 0 {
			stage = StageClosedLost
		}
		deals = append(deals, Deal{
			Stage:     stage,
			Amount:    amount("100"),
			CreatedAt: ts(closed.AddDate(0, 0, -5)),
			ClosedAt:  ts(closed),
		})
	}

	prevWon, prevLost := 0, 0
	for _, days := range []int{7, 14, 30, 60, 90, 180} {
		m := ComputeDealMetrics(deals, days, now)
		require.GreaterOrEqual(t, m.WonDeals, prevWon, "wonDeals shrank at days=%d", days)
		require.GreaterOrEqual(t, m.LostDeals, prevLost, "lostDeals shrank at days=%d", days)
		prevWon, prevLost = m.WonDeals, m.LostDeals
	}
}

func TestComputeDealMetrics_WonAverageTiesToRevenue(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	deals := []Deal{
		{Stage: StageClosedWon, Amount: amount("123.45"), CreatedAt: ts(now.AddDate(0, 0, -3)), ClosedAt: ts(now.AddDate(0, 0, -1))},
		{Stage: StageClosedWon, Amount: amount("678.90"), CreatedAt: ts(now.AddDate(0, 0, -4)), ClosedAt: ts(now.AddDate(0, 0, -2))},
		{Stage: StageClosedWon, Amount: amount("42"), CreatedAt: ts(now.AddDate(0, 0, -5)), ClosedAt: ts(now.AddDate(0, 0, -3))},
	}

	m := ComputeDealMetrics(deals, 30, now)
	require.Equal(t, 3, m.WonDeals)
	assert.InDelta(t, m.Revenue, m.AverageWonDealSize*float64(m.WonDeals), 1e-6)
}

func TestComputeDealMetrics_Deterministic(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	deals := []Deal{
		{Stage: StageClosedWon, Amount: amount("99.99"), CreatedAt: ts(now.AddDate(0, 0, -9)), ClosedAt: ts(now.AddDate(0, 0, -1))},
		{Stage: "open", Amount: amount("10"), CreatedAt: ts(now.AddDate(0, 0, -2))},
	}

	first := ComputeDealMetrics(deals, 14, now)
	second := ComputeDealMetrics(deals, 14, now)
	assert.Equal(t, first, second)
}

func TestComputeDealMetrics_UnknownStageCountsAsOpen(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	deals := []Deal{
		{Stage: "", Amount: amount("10"), CreatedAt: ts(now.AddDate(0, 0, -1))},
		{Stage: "somecustomstage", Amount: amount("20"), CreatedAt: ts(now.AddDate(0, 0, -1))},
	}

	m := ComputeDealMetrics(deals, 0, now)
	assert.Equal(t, 2, m.OpenDeals)
	assert.Equal(t, 30.0, m.ActiveDealsValue)
	assert.Zero(t, m.WonDeals)
	assert.Zero(t, m.LostDeals)
}
