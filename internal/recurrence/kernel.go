// Package recurrence decides which calendar dates a recurring pattern
// produces an instance on, and recognizes recurrence phrases in task text.
//
// Everything here is pure date arithmetic: no clock, no zone, no storage.
package recurrence

import (
	"fmt"
	"strings"
	"time"

	"dayplanner/internal/calendar"
)

// Kind is how often a pattern repeats.
type Kind string

const (
	Daily    Kind = "DAILY"
	Weekly   Kind = "WEEKLY"
	Biweekly Kind = "BIWEEKLY"
	Monthly  Kind = "MONTHLY"
	Yearly   Kind = "YEARLY"
)

// Kinds lists every supported kind.
var Kinds = []Kind{Daily, Weekly, Biweekly, Monthly, Yearly}

// ParseKind accepts a stored or serialized kind name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown recurrence kind %q", s)
	}
	return k, nil
}

func (k Kind) Valid() bool {
	switch k {
	case Daily, Weekly, Biweekly, Monthly, Yearly:
		return true
	}
	return false
}

// EmitsOn reports whether a pattern of kind k starting on start produces an
// instance on target.
func EmitsOn(k Kind, start, target calendar.Date) bool {
	if target.Before(start) {
		return false
	}
	switch k {
	case Daily:
		return true
	case Weekly:
		return target.DaysSince(start)%7 == 0
	case Biweekly:
		return target.DaysSince(start)%14 == 0
	case Monthly:
		return emitsMonthly(start, target)
	case Yearly:
		return emitsYearly(start, target)
	default:
		return false
	}
}

// A monthly pattern keeps its day of month, clipped to the last day of
// shorter months, starting with the month after start.
func emitsMonthly(start, target calendar.Date) bool {
	if !laterMonth(start, target) {
		return false
	}
	day := min(start.Day, target.DaysInMonth())
	return target.Day == day
}

func emitsYearly(start, target calendar.Date) bool {
	if target.Year <= start.Year || target.Month != start.Month {
		return false
	}
	if start.Month == time.February && start.Day == 29 && !calendar.IsLeap(target.Year) {
		return target.Day == 28
	}
	return target.Day == start.Day
}

func laterMonth(start, target calendar.Date) bool {
	if target.Year != start.Year {
		return target.Year > start.Year
	}
	return target.Month > start.Month
}

// maxGap bounds the distance between two consecutive emissions of any kind.
// The widest gap is a yearly pattern, at most 366 days.
const maxGap = 366

// NextAfter returns the first emission strictly after the given date, or the
// zero Date when the pattern never emits again.
func NextAfter(k Kind, start, after calendar.Date) calendar.Date {
	from := after.AddDays(1)
	if from.Before(start) {
		from = start
	}
	for i := 0; i <= maxGap; i++ {
		d := from.AddDays(i)
		if EmitsOn(k, start, d) {
			return d
		}
	}
	return calendar.Date{}
}
