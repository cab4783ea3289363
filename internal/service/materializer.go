package service

import (
	"context"

	"dayplanner/internal/calendar"
	"dayplanner/internal/model"
	"dayplanner/internal/repository"
)

func newInstance(p *model.RecurringPattern, d calendar.Date) *model.Task {
	pid := p.ID
	return &model.Task{
		UserID:             p.UserID,
		Text:               p.Text,
		AssignedDate:       d,
		InstanceDate:       d,
		RecurringPatternID: &pid,
	}
}

// saveDay renumbers l and writes every task whose position changed plus
// the extra ones. Tasks without an id are created.
func saveDay(ctx context.Context, s *repository.Store, l dayList, extra ...*model.Task) error {
	changed := l.renumber()
	seen := make(map[*model.Task]bool, len(changed)+len(extra))
	for _, t := range append(changed, extra...) {
		if seen[t] {
			continue
		}
		seen[t] = true
		var err error
		if t.ID == 0 {
			err = s.Tasks.Create(ctx, t)
		} else {
			err = s.Tasks.Save(ctx, t)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// materializeOne stores the instance of p on d at the end of the incomplete
// zone. When a stored task for (p, d) already exists it is returned as is.
func materializeOne(ctx context.Context, s *repository.Store, p *model.RecurringPattern, d calendar.Date) (*model.Task, bool, error) {
	existing, err := s.Tasks.FindInstance(ctx, p.ID, d)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	tasks, err := s.Tasks.ListByDate(ctx, p.UserID, d)
	if err != nil {
		return nil, false, err
	}
	l := dayList(tasks)
	t := newInstance(p, d)
	l = l.insertAt(l.activeEnd(), t)
	if err := saveDay(ctx, s, l, t); err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// virtualEdit replaces one virtual during bulk materialization with an
// unlinked task carrying new text.
type virtualEdit struct {
	patternID int64
	text      string
	task      *model.Task
}

// materializeDay stores every virtual of d in pattern id order at positions
// 1..M and renumbers the tasks already on d to follow them. It returns the
// number of tasks created.
func materializeDay(ctx context.Context, s *repository.Store, userID int64, d, today calendar.Date, edit *virtualEdit) (int, error) {
	patterns, err := virtualsOn(ctx, s, userID, d, today)
	if err != nil || len(patterns) == 0 {
		return 0, err
	}
	tasks, err := s.Tasks.ListByDate(ctx, userID, d)
	if err != nil {
		return 0, err
	}

	l := make(dayList, 0, len(patterns)+len(tasks))
	fresh := make([]*model.Task, 0, len(patterns))
	for _, p := range patterns {
		t := newInstance(p, d)
		if edit != nil && p.ID == edit.patternID {
			t.Text = edit.text
			t.RecurringPatternID = nil
			edit.task = t
		}
		l = append(l, t)
		fresh = append(fresh, t)
	}
	l = append(l, tasks...)
	if err := saveDay(ctx, s, l, fresh...); err != nil {
		return 0, err
	}
	return len(fresh), nil
}
