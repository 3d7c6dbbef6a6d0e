package crm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodRange_AllTime(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	current, previous := PeriodRange(0, now)

	assert.Equal(t, int64(0), current.Start)
	assert.Equal(t, now.UnixMilli(), current.End)
	assert.True(t, previous.IsZero())
}

func TestPeriodRange_ThirtyDays(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	current, previous := PeriodRange(30, now)

	// Start snaps to the beginning of the day 30 days back.
	wantStart := time.Date(2026, 7, 21, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, wantStart.UnixMilli(), current.Start)

	// End-of-day would be in the future, so the end clamps to now.
	assert.Equal(t, now.UnixMilli(), current.End)

	// The previous period ends the instant before the current one starts.
	assert.Less(t, previous.End, current.Start)
	assert.Equal(t, time.Date(2026, 7, 20, 23, 59, 59, 0, time.UTC).Unix(),
		time.UnixMilli(previous.End).UTC().Truncate(time.Second).Unix())
}

func TestPeriodRange_CalendarDaySpans(t *testing.T) {
	now := time.Date(2026, 8, 20, 23, 30, 0, 0, time.UTC)

	// The current window covers today plus the trailing days; the previous
	// window covers exactly the trailing day count.
	for _, days := range []int{1, 7, 30, 90, 365} {
		current, previous := PeriodRange(days, now)
		require.Equal(t, days+1, current.Days(), "current span at days=%d", days)
		require.Equal(t, days, previous.Days(), "previous span at days=%d", days)
	}
}

func TestPeriodRange_PeriodsDoNotOverlap(t *testing.T) {
	now := time.Date(2026, 8, 20, 9, 15, 0, 0, time.UTC)

	current, previous := PeriodRange(7, now)

	assert.Less(t, previous.Start, previous.End)
	assert.Less(t, previous.End, current.Start)
	assert.False(t, current.Contains(previous.End))
	assert.False(t, previous.Contains(current.Start))
}

func TestExplicitRange(t *testing.T) {
	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	end := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	current, previous := ExplicitRange(start, end)

	// Boundaries are taken verbatim, no day snapping.
	assert.Equal(t, Range{Start: start, End: end}, current)

	// Previous is the equal-length window ending the ms before start.
	assert.Equal(t, start-1, previous.End)
	assert.Equal(t, end-start, previous.End+1-previous.Start)
	assert.False(t, current.Contains(previous.End))
}

func TestExplicitRange_Degenerate(t *testing.T) {
	current, previous := ExplicitRange(200, 100)

	assert.Equal(t, Range{Start: 200, End: 100}, current)
	assert.True(t, previous.IsZero())
}

func TestRange_Contains(t *testing.T) {
	r := Range{Start: 100, End: 200}

	assert.True(t, r.Contains(100))
	assert.True(t, r.Contains(200))
	assert.True(t, r.Contains(150))
	assert.False(t, r.Contains(99))
	assert.False(t, r.Contains(201))
}

func TestDayKey(t *testing.T) {
	ts := time.Date(2026, 8, 20, 23, 59, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, "2026-08-20", DayKey(ts))
}

func TestMonthKey(t *testing.T) {
	assert.Equal(t, "2026-08", MonthKey(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2027-01", MonthKey(time.Date(2027, 1, 31, 12, 0, 0, 0, time.UTC)))
}
