package schedule

import "time"

// midMonthDay is the first payout anchor of each month; lateMonthDay is the
// second, clamped to the last day of short months.
const (
	midMonthDay  = 15
	lateMonthDay = 30
)

func midAnchor(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), midMonthDay, 0, 0, 0, 0, time.UTC)
}

// lateAnchor returns day 30 of t's month, clamped to the month's last day.
func lateAnchor(t time.Time) time.Time {
	last := firstOfMonth(t).AddDate(0, 1, -1)
	if last.Day() < lateMonthDay {
		return last
	}
	return time.Date(t.Year(), t.Month(), lateMonthDay, 0, 0, 0, 0, time.UTC)
}

// NextPayoutAnchor returns the first day-15/day-30 payout anchor strictly
// after date.
func NextPayoutAnchor(date time.Time) time.Time {
	t := Day(date)
	if t.Before(midAnchor(t)) {
		return midAnchor(t)
	}
	if late := lateAnchor(t); t.Before(late) {
		return late
	}
	return midAnchor(firstOfMonth(t).AddDate(0, 1, 0))
}

// SystemPayoutSchedule generates n payout dates starting after start,
// alternating between day 15 and day 30 of successive months. Day 30 is
// clamped to the last day of short months.
func SystemPayoutSchedule(start time.Time, n int) []time.Time {
	dates := make([]time.Time, 0, n)
	anchor := NextPayoutAnchor(start)
	for len(dates) < n {
		dates = append(dates, anchor)
		if anchor.Day() == midMonthDay {
			anchor = lateAnchor(anchor)
		} else {
			anchor = midAnchor(firstOfMonth(anchor).AddDate(0, 1, 0))
		}
	}
	return dates
}

// CustomPayoutSchedule generates n payout dates for a custom pod. Monthly
// cadence anchors every payout to day 30 (clamped) of successive months;
// bi-weekly alternates day 15/30 exactly like the system schedule.
func CustomPayoutSchedule(start time.Time, n int, cadence Cadence) []time.Time {
	if cadence != CadenceMonthly {
		return SystemPayoutSchedule(start, n)
	}

	dates := make([]time.Time, 0, n)
	t := Day(start)
	anchor := lateAnchor(t)
	if !t.Before(anchor) {
		anchor = lateAnchor(firstOfMonth(t).AddDate(0, 1, 0))
	}
	for len(dates) < n {
		dates = append(dates, anchor)
		anchor = lateAnchor(firstOfMonth(anchor).AddDate(0, 1, 0))
	}
	return dates
}
