package model

import (
	"time"

	"dayplanner/internal/calendar"
	"dayplanner/internal/recurrence"
)

// RecurringPattern produces task instances on the dates its kind selects,
// from StartDate through EndDate inclusive.
type RecurringPattern struct {
	ID        int64           `gorm:"primaryKey"`
	UserID    int64           `gorm:"not null;index:idx_pattern_user_end,priority:1"`
	Text      string          `gorm:"size:500;not null"`
	Kind      recurrence.Kind `gorm:"column:recurrence_kind;size:20;not null"`
	StartDate calendar.Date   `gorm:"not null"`
	EndDate   *calendar.Date  `gorm:"index:idx_pattern_user_end,priority:2"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (RecurringPattern) TableName() string {
	return "recurring_patterns"
}

// ActiveOn reports start <= d and, when an end is set, d <= end.
func (p *RecurringPattern) ActiveOn(d calendar.Date) bool {
	if d.Before(p.StartDate) {
		return false
	}
	return p.EndDate == nil || !d.After(*p.EndDate)
}

// EmitsOn is ActiveOn plus the recurrence rule.
func (p *RecurringPattern) EmitsOn(d calendar.Date) bool {
	return p.ActiveOn(d) && recurrence.EmitsOn(p.Kind, p.StartDate, d)
}
