package model

import (
	"time"

	"dayplanner/internal/calendar"
)

// Task is a stored task instance on a calendar date.
//
// AssignedDate is where the task shows up; InstanceDate is the date it stands
// for and only differs after a rollover or a manual move. A task with a nil
// RecurringPatternID is either a plain task or an orphaned recurring instance.
type Task struct {
	ID                 int64         `gorm:"primaryKey"`
	UserID             int64         `gorm:"not null;index:idx_task_user_date,priority:1;index:idx_task_user_completed,priority:1"`
	Text               string        `gorm:"size:500;not null"`
	AssignedDate       calendar.Date `gorm:"not null;index:idx_task_user_date,priority:2;index:idx_task_user_completed,priority:3"`
	InstanceDate       calendar.Date `gorm:"not null;uniqueIndex:uk_task_pattern_instance,priority:2"`
	Position           int           `gorm:"not null"`
	RecurringPatternID *int64        `gorm:"uniqueIndex:uk_task_pattern_instance,priority:1"`
	IsCompleted        bool          `gorm:"not null;index:idx_task_user_completed,priority:2"`
	CompletedAt        *time.Time
	IsRolledOver       bool `gorm:"not null"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (t *Task) Linked() bool {
	return t.RecurringPatternID != nil
}

func (t *Task) LinkedTo(patternID int64) bool {
	return t.RecurringPatternID != nil && *t.RecurringPatternID == patternID
}
