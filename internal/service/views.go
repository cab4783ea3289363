package service

import (
	"time"

	"dayplanner/internal/calendar"
	"dayplanner/internal/model"
)

// TaskView is the flattened task shape handed to transports. Virtual
// instances have a nil ID, position 0 and IsVirtual set.
type TaskView struct {
	ID                 *int64        `json:"id"`
	Text               string        `json:"text"`
	AssignedDate       calendar.Date `json:"assigned_date"`
	InstanceDate       calendar.Date `json:"instance_date"`
	Position           int           `json:"position"`
	RecurringPatternID *int64        `json:"recurring_pattern_id,omitempty"`
	IsCompleted        bool          `json:"is_completed"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
	IsRolledOver       bool          `json:"is_rolled_over"`
	IsVirtual          bool          `json:"is_virtual"`
}

// Instance is one entry of an effective day list: either a stored task or a
// virtual occurrence of a pattern. Exactly one of Task and Pattern is set.
type Instance struct {
	Task    *model.Task
	Pattern *model.RecurringPattern
	Date    calendar.Date
}

func stored(t *model.Task) Instance {
	return Instance{Task: t, Date: t.AssignedDate}
}

func virtual(p *model.RecurringPattern, d calendar.Date) Instance {
	return Instance{Pattern: p, Date: d}
}

func (i Instance) View() TaskView {
	if i.Task == nil {
		pid := i.Pattern.ID
		return TaskView{
			Text:               i.Pattern.Text,
			AssignedDate:       i.Date,
			InstanceDate:       i.Date,
			RecurringPatternID: &pid,
			IsVirtual:          true,
		}
	}
	t := i.Task
	id := t.ID
	v := TaskView{
		ID:           &id,
		Text:         t.Text,
		AssignedDate: t.AssignedDate,
		InstanceDate: t.InstanceDate,
		Position:     t.Position,
		IsCompleted:  t.IsCompleted,
		CompletedAt:  t.CompletedAt,
		IsRolledOver: t.IsRolledOver,
	}
	if t.RecurringPatternID != nil {
		pid := *t.RecurringPatternID
		v.RecurringPatternID = &pid
	}
	return v
}

func views(list []Instance) []TaskView {
	out := make([]TaskView, 0, len(list))
	for _, i := range list {
		out = append(out, i.View())
	}
	return out
}

func taskView(t *model.Task) *TaskView {
	v := stored(t).View()
	return &v
}

// PatternView describes a recurring pattern and its next occurrence.
type PatternView struct {
	ID        int64          `json:"id"`
	Text      string         `json:"text"`
	Kind      string         `json:"recurrence_kind"`
	StartDate calendar.Date  `json:"start_date"`
	EndDate   *calendar.Date `json:"end_date,omitempty"`
	Next      *calendar.Date `json:"next_occurrence,omitempty"`
}
