// Package schedule holds the calendar arithmetic for recurring bills. It is
// deliberately free of store dependencies so the materializer's date stepping
// can be tested without any persistence in play.
package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Frequency is the interval at which a recurring bill falls due.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// ParseFrequency normalizes and validates a frequency value coming from a
// request body or a stored bill row.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case Daily, Weekly, Monthly, Yearly:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported frequency %q", s)
	}
}

// Advance returns the next occurrence after date for the given frequency.
//
// Monthly and yearly steps keep the day-of-month where the target month has
// that day and clamp to the last day of the target month otherwise, so a bill
// anchored on Jan 31 falls due on Feb 28 (29 in leap years), never Mar 2/3.
// Go's native AddDate would roll such dates over into the following month.
func Advance(date time.Time, freq Frequency) time.Time {
	return AdvanceAnchored(date, freq, date.Day())
}

// AdvanceAnchored is Advance for bills anchored on a specific day-of-month
// (the bill's start date day). A cursor that was clamped into a short month
// snaps back to the anchor day in longer months, so a bill starting Jan 31
// walks Jan 31, Feb 28, Mar 31, Apr 30 rather than drifting to the 28th
// forever after the first February.
func AdvanceAnchored(date time.Time, freq Frequency, anchorDay int) time.Time {
	switch freq {
	case Daily:
		return date.AddDate(0, 0, 1)
	case Weekly:
		return date.AddDate(0, 0, 7)
	case Monthly:
		return addMonths(date, 1, anchorDay)
	case Yearly:
		return addMonths(date, 12, anchorDay)
	default:
		// Callers validate via ParseFrequency first; an unknown value here
		// must not silently advance the cursor.
		return date
	}
}

func addMonths(date time.Time, months, anchorDay int) time.Time {
	year, month, _ := date.Date()
	// Step from the first of the month so AddDate cannot overflow, then
	// restore the anchor day clamped to the target month's length.
	first := time.Date(year, month, 1, date.Hour(), date.Minute(), date.Second(), date.Nanosecond(), date.Location())
	target := first.AddDate(0, months, 0)
	day := anchorDay
	if max := daysIn(target.Year(), target.Month()); day > max {
		day = max
	}
	return time.Date(target.Year(), target.Month(), day,
		date.Hour(), date.Minute(), date.Second(), date.Nanosecond(), date.Location())
}

func daysIn(year int, month time.Month) int {
	// Day zero of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
