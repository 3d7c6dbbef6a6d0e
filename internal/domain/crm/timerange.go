package crm

import "time"

const millisPerDay = 24 * 60 * 60 * 1000

// Range is a half-open-ish period expressed in epoch milliseconds. Both
// boundaries are inclusive when filtering records; callers that need an
// exclusive end subtract themselves.
type Range struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// IsZero reports whether the range is the degenerate {0,0} marker used
// when no comparison period exists.
func (r Range) IsZero() bool { return r.Start == 0 && r.End == 0 }

// Contains reports whether ts (epoch ms) falls within the range,
// boundaries included.
func (r Range) Contains(ts int64) bool { return ts >= r.Start && ts <= r.End }

// Days returns the number of calendar days the range spans. Because range
// boundaries snap to day edges the raw millisecond delta is not a multiple
// of 86_400_000; consumers should reason in calendar days.
func (r Range) Days() int {
	if r.End <= r.Start {
		return 0
	}
	return int((r.End-r.Start)/millisPerDay) + 1
}

// PeriodRange computes the current reporting period for a trailing
// day-count and the equal-length period immediately before it.
//
// days == 0 means "all time": current is {0, now} and previous is the
// degenerate {0, 0} (no comparison possible). For days > 0 the current end
// is now snapped forward to end-of-day but clamped to the wall clock so a
// skewed clock can never produce a future window, and the current start is
// days earlier at start-of-day. The previous period is the same-length
// window ending just before the current start, normalized to day edges the
// same way.
func PeriodRange(days int, now time.Time) (current, previous Range) {
	if days <= 0 {
		return Range{Start: 0, End: now.UnixMilli()}, Range{}
	}

	end := endOfDay(now)
	if end.After(now) {
		end = now
	}
	start := startOfDay(now.AddDate(0, 0, -days))

	prevEnd := endOfDay(start.AddDate(0, 0, -1))
	prevStart := startOfDay(start.AddDate(0, 0, -days))

	current = Range{Start: start.UnixMilli(), End: end.UnixMilli()}
	previous = Range{Start: prevStart.UnixMilli(), End: prevEnd.UnixMilli()}
	return current, previous
}

// ExplicitRange wraps caller-supplied boundaries and derives the
// equal-length window immediately before them. Explicit boundaries are
// taken verbatim, without the day-edge snapping PeriodRange applies.
// A degenerate window (end at or before start) gets the degenerate
// previous marker.
func ExplicitRange(start, end int64) (current, previous Range) {
	current = Range{Start: start, End: end}
	if end <= start {
		return current, Range{}
	}
	length := end - start
	return current, Range{Start: start - length, End: start - 1}
}

// TodayRange returns the range from the start of now's calendar day up
// to now itself.
func TodayRange(now time.Time) Range {
	return Range{Start: startOfDay(now).UnixMilli(), End: now.UnixMilli()}
}

// startOfDay returns t at 00:00:00.000 in t's location.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// endOfDay returns t at 23:59:59.999 in t's location.
func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(999*time.Millisecond), t.Location())
}

// DayKey formats an epoch-ms timestamp as a YYYY-MM-DD bucket key in UTC.
func DayKey(ts int64) string {
	return time.UnixMilli(ts).UTC().Format("2006-01-02")
}

// MonthKey formats a timestamp as a YYYY-MM bucket key in UTC.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
