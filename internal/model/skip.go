package model

import (
	"time"

	"dayplanner/internal/calendar"
)

// SkipException stops a pattern from producing an instance on SkipDate.
type SkipException struct {
	ID                 int64         `gorm:"primaryKey"`
	RecurringPatternID int64         `gorm:"not null;uniqueIndex:uk_skip_pattern_date,priority:1"`
	SkipDate           calendar.Date `gorm:"not null;uniqueIndex:uk_skip_pattern_date,priority:2"`
	CreatedAt          time.Time
}
