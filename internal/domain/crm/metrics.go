package crm

import (
	"time"

	"github.com/shopspring/decimal"
)

// DealMetrics is the flat aggregate computed over a deal list for one
// reporting period. All monetary fields are plain floats; the arithmetic
// behind them runs on decimals and is rounded only at the edge.
//
// Two fields deliberately ignore the requested period:
//
//   - OpenDeals / ActiveDealsValue always count every currently open deal.
//     Open pipeline value is a point-in-time snapshot, not a period flow,
//     so wonDeals+lostDeals+openDeals need not equal TotalDeals under
//     period filtering.
//   - AverageDealSize is the mean over every non-zero amount in the input,
//     not just in-period deals.
type DealMetrics struct {
	TotalDeals         int     `json:"totalDeals"`
	NewDeals           int     `json:"newDeals"`
	WonDeals           int     `json:"wonDeals"`
	LostDeals          int     `json:"lostDeals"`
	OpenDeals          int     `json:"openDeals"`
	CreatedPrevPeriod  int     `json:"createdPrevPeriod"`
	Revenue            float64 `json:"revenue"`
	LostRevenue        float64 `json:"lostRevenue"`
	ActiveDealsValue   float64 `json:"activeDealsValue"`
	NewDealsValue      float64 `json:"newDealsValue"`
	AverageDealSize    float64 `json:"averageDealSize"`
	AverageWonDealSize float64 `json:"averageWonDealSize"`
	AverageNewDealSize float64 `json:"averageNewDealSize"`
	ConversionRate     float64 `json:"conversionRate"`
	ValueCloseRate     float64 `json:"valueCloseRate"`
}

// ComputeDealMetrics reduces deals into DealMetrics for a trailing period
// of periodDays anchored at now. periodDays == 0 selects all-time mode.
//
// New-deal counting is anchored on the creation date. Won/lost counting is
// anchored on the close date: a deal created long before the window that
// closed inside it still contributes to revenue. The function is pure and
// deterministic for a fixed now.
func ComputeDealMetrics(deals []Deal, periodDays int, now time.Time) DealMetrics {
	nowMs := now.UnixMilli()
	periodMs := int64(periodDays) * millisPerDay
	start := nowMs - periodMs
	prevStart := start - periodMs
	prevEnd := start

	var (
		m              DealMetrics
		revenue        decimal.Decimal
		lostRevenue    decimal.Decimal
		activeValue    decimal.Decimal
		newValue       decimal.Decimal
		allAmountSum   decimal.Decimal
		allAmountCount int
	)

	for _, d := range deals {
		m.TotalDeals++

		if !d.Amount.IsZero() {
			allAmountSum = allAmountSum.Add(d.Amount)
			allAmountCount++
		}

		if periodDays == 0 {
			if d.CreatedAt != nil {
				m.NewDeals++
				newValue = newValue.Add(d.Amount)
			}
			if d.IsWon() {
				m.WonDeals++
				revenue = revenue.Add(d.Amount)
			}
			if d.IsLost() {
				m.LostDeals++
				lostRevenue = lostRevenue.Add(d.Amount)
			}
		} else {
			if d.CreatedAt != nil {
				created := d.CreatedAt.UnixMilli()
				if created >= start && created <= nowMs {
					m.NewDeals++
					newValue = newValue.Add(d.Amount)
				}
				if created >= prevStart && created < prevEnd {
					m.CreatedPrevPeriod++
				}
			}
			if d.ClosedAt != nil {
				closed := d.ClosedAt.UnixMilli()
				if closed >= start && closed <= nowMs {
					if d.IsWon() {
						m.WonDeals++
						revenue = revenue.Add(d.Amount)
					}
					if d.IsLost() {
						m.LostDeals++
						lostRevenue = lostRevenue.Add(d.Amount)
					}
				}
			}
		}

		// Open-deal accounting stays all-time in both modes.
		if d.IsOpen() {
			m.OpenDeals++
			activeValue = activeValue.Add(d.Amount)
		}
	}

	m.Revenue = revenue.InexactFloat64()
	m.LostRevenue = lostRevenue.InexactFloat64()
	m.ActiveDealsValue = activeValue.InexactFloat64()
	m.NewDealsValue = newValue.InexactFloat64()

	if allAmountCount > 0 {
		m.AverageDealSize = allAmountSum.Div(decimal.NewFromInt(int64(allAmountCount))).InexactFloat64()
	}
	if m.WonDeals > 0 {
		m.AverageWonDealSize = revenue.Div(decimal.NewFromInt(int64(m.WonDeals))).InexactFloat64()
	}
	if m.NewDeals > 0 {
		m.AverageNewDealSize = newValue.Div(decimal.NewFromInt(int64(m.NewDeals))).InexactFloat64()
	}

	if closed := m.WonDeals + m.LostDeals; closed > 0 {
		m.ConversionRate = float64(m.WonDeals) / float64(closed) * 100
	}
	if closedValue := revenue.Add(lostRevenue); closedValue.IsPositive() {
		m.ValueCloseRate = revenue.Div(closedValue).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}

	return m
}
