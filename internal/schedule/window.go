// Package schedule holds the calendar arithmetic for contribution windows and
// payout schedules. Everything operates in UTC at day granularity and is free
// of side effects, so the same inputs always produce the same dates.
package schedule

import "time"

// Cadence is the contribution/payout frequency pattern of a pod. System pods
// always run on the bi-weekly calendar cadence.
type Cadence string

const (
	CadenceBiWeekly Cadence = "BI_WEEKLY"
	CadenceMonthly  Cadence = "MONTHLY"
)

// Valid reports whether c names a known cadence.
func (c Cadence) Valid() bool {
	return c == CadenceBiWeekly || c == CadenceMonthly
}

// Day truncates t to midnight UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// InContributionWindow reports whether date falls inside a contribution
// window. Monthly windows are calendar days 1-3; bi-weekly windows are days
// 1-3 and 16-18.
func InContributionWindow(date time.Time, cadence Cadence) bool {
	d := date.UTC().Day()
	if cadence == CadenceMonthly {
		return d >= 1 && d <= 3
	}
	return (d >= 1 && d <= 3) || (d >= 16 && d <= 18)
}

// ResolveWindowStart snaps date to the start of its current-or-next
// contribution window: day 1 or day 16 for bi-weekly, day 1 of the
// current-or-next month for monthly.
func ResolveWindowStart(date time.Time, cadence Cadence) time.Time {
	t := Day(date)
	d := t.Day()

	if cadence == CadenceMonthly {
		if d <= 3 {
			return firstOfMonth(t)
		}
		return firstOfMonth(t).AddDate(0, 1, 0)
	}

	switch {
	case d <= 3:
		return firstOfMonth(t)
	case d <= 18:
		return firstOfMonth(t).AddDate(0, 0, 15)
	default:
		return firstOfMonth(t).AddDate(0, 1, 0)
	}
}

// NextWindowStart advances exactly one contribution window past current.
// Bi-weekly jumps 17 days and re-snaps, monthly jumps 32 days and re-snaps,
// which guarantees forward progress across variable month lengths. The
// resulting drift over short months is the observed product behavior and is
// preserved as-is.
func NextWindowStart(current time.Time, cadence Cadence) time.Time {
	if cadence == CadenceMonthly {
		return ResolveWindowStart(Day(current).AddDate(0, 0, 32), cadence)
	}
	return ResolveWindowStart(Day(current).AddDate(0, 0, 17), cadence)
}
