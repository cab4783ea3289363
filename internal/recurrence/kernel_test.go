package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"dayplanner/internal/calendar"
)

var d = calendar.MustParse

func TestEmitsOnBeforeStart(t *testing.T) {
	for _, k := range Kinds {
		assert.False(t, EmitsOn(k, d("2024-03-10"), d("2024-03-09")), k)
	}
}

func TestEmitsOnDailyWeeklyBiweekly(t *testing.T) {
	start := d("2024-03-10") // a Sunday
	assert.True(t, EmitsOn(Daily, start, start))
	assert.True(t, EmitsOn(Daily, start, d("2031-07-04")))

	assert.True(t, EmitsOn(Weekly, start, start))
	assert.True(t, EmitsOn(Weekly, start, d("2024-03-17")))
	assert.True(t, EmitsOn(Weekly, start, d("2024-03-31")))
	for delta := 1; delta < 7; delta++ {
		assert.False(t, EmitsOn(Weekly, start, start.AddDays(delta)), delta)
	}

	assert.True(t, EmitsOn(Biweekly, start, d("2024-03-24")))
	assert.False(t, EmitsOn(Biweekly, start, d("2024-03-17")))
	assert.True(t, EmitsOn(Biweekly, start, start.AddDays(14*30)))
}

func TestEmitsOnMonthlyClipsToMonthEnd(t *testing.T) {
	start := d("2023-01-31")
	assert.False(t, EmitsOn(Monthly, start, start), "no emission in the start month")
	assert.True(t, EmitsOn(Monthly, start, d("2023-02-28")))
	assert.False(t, EmitsOn(Monthly, start, d("2023-02-27")))
	assert.True(t, EmitsOn(Monthly, start, d("2023-03-31")))
	assert.False(t, EmitsOn(Monthly, start, d("2023-03-30")))
	assert.True(t, EmitsOn(Monthly, start, d("2023-04-30")))
	assert.True(t, EmitsOn(Monthly, start, d("2024-02-29")))
	assert.False(t, EmitsOn(Monthly, start, d("2024-02-28")))

	mid := d("2024-01-15")
	assert.True(t, EmitsOn(Monthly, mid, d("2024-02-15")))
	assert.True(t, EmitsOn(Monthly, mid, d("2025-01-15")))
	assert.False(t, EmitsOn(Monthly, mid, d("2024-02-14")))
}

func TestEmitsOnYearlyLeapDay(t *testing.T) {
	start := d("2024-02-29")
	assert.False(t, EmitsOn(Yearly, start, start))
	assert.True(t, EmitsOn(Yearly, start, d("2025-02-28")))
	assert.True(t, EmitsOn(Yearly, start, d("2026-02-28")))
	assert.True(t, EmitsOn(Yearly, start, d("2027-02-28")))
	assert.True(t, EmitsOn(Yearly, start, d("2028-02-29")))
	assert.False(t, EmitsOn(Yearly, start, d("2028-02-28")))
	assert.False(t, EmitsOn(Yearly, start, d("2025-03-01")))

	plain := d("2024-07-04")
	assert.False(t, EmitsOn(Yearly, plain, plain))
	assert.True(t, EmitsOn(Yearly, plain, d("2025-07-04")))
	assert.False(t, EmitsOn(Yearly, plain, d("2025-07-05")))
}

func TestEmitsOnUnknownKind(t *testing.T) {
	assert.False(t, EmitsOn(Kind("HOURLY"), d("2024-01-01"), d("2024-01-02")))
}

// The kernel agrees with an independent RFC 5545 expansion. Monthly clipping
// is expressed as "the last of BYMONTHDAY 1..day", which is min(day, month length).
func TestEmitsOnMatchesRRule(t *testing.T) {
	starts := []calendar.Date{d("2023-01-31"), d("2024-02-29"), d("2024-03-10"), d("2023-08-30"), d("2024-12-15")}
	for _, start := range starts {
		for _, k := range Kinds {
			set := oracle(t, k, start)
			window := set.Between(start.Time(), start.AddDays(3*366).Time(), true)
			emitted := make(map[calendar.Date]bool, len(window))
			for _, ts := range window {
				emitted[calendar.Of(ts.UTC())] = true
			}
			for i := 0; i < 3*366; i++ {
				day := start.AddDays(i)
				assert.Equal(t, emitted[day], EmitsOn(k, start, day), "%s from %s on %s", k, start, day)
			}
		}
	}
}

func oracle(t *testing.T, k Kind, start calendar.Date) *rrule.RRule {
	t.Helper()
	opt := rrule.ROption{Dtstart: start.Time()}
	switch k {
	case Daily:
		opt.Freq = rrule.DAILY
	case Weekly:
		opt.Freq = rrule.WEEKLY
	case Biweekly:
		opt.Freq, opt.Interval = rrule.WEEKLY, 2
	case Monthly:
		opt.Freq = rrule.MONTHLY
		opt.Dtstart = time.Date(start.Year, start.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
		for day := 1; day <= start.Day; day++ {
			opt.Bymonthday = append(opt.Bymonthday, day)
		}
		opt.Bysetpos = []int{-1}
	case Yearly:
		opt.Freq = rrule.YEARLY
		opt.Dtstart = time.Date(start.Year+1, start.Month, 1, 0, 0, 0, 0, time.UTC)
		opt.Bymonth = []int{int(start.Month)}
		for day := 1; day <= start.Day; day++ {
			opt.Bymonthday = append(opt.Bymonthday, day)
		}
		opt.Bysetpos = []int{-1}
	}
	r, err := rrule.NewRRule(opt)
	require.NoError(t, err)
	return r
}

func TestNextAfter(t *testing.T) {
	assert.Equal(t, d("2024-03-11"), NextAfter(Daily, d("2024-03-10"), d("2024-03-10")))
	assert.Equal(t, d("2024-03-10"), NextAfter(Weekly, d("2024-03-10"), d("2024-01-01")))
	assert.Equal(t, d("2024-03-24"), NextAfter(Biweekly, d("2024-03-10"), d("2024-03-10")))
	assert.Equal(t, d("2023-02-28"), NextAfter(Monthly, d("2023-01-31"), d("2023-01-31")))
	assert.Equal(t, d("2025-02-28"), NextAfter(Yearly, d("2024-02-29"), d("2024-02-29")))
	assert.Equal(t, d("2028-02-29"), NextAfter(Yearly, d("2024-02-29"), d("2027-02-28")))
	assert.True(t, NextAfter(Kind("HOURLY"), d("2024-03-10"), d("2024-03-10")).IsZero())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("biweekly")
	require.NoError(t, err)
	assert.Equal(t, Biweekly, k)

	_, err = ParseKind("FORTNIGHTLY")
	assert.Error(t, err)
}
