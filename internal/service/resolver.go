package service

import (
	"context"

	"dayplanner/internal/calendar"
	"dayplanner/internal/model"
	"dayplanner/internal/repository"
)

// maxRangeDays caps range reads so a bad request cannot expand patterns
// over decades.
const maxRangeDays = 366

// virtualsBetween derives the virtual instances in [start, end], keyed by
// date, each date's patterns in id order. Dates before today never carry
// virtuals.
func virtualsBetween(ctx context.Context, s *repository.Store, userID int64, start, end, today calendar.Date) (map[calendar.Date][]*model.RecurringPattern, error) {
	if start.Before(today) {
		start = today
	}
	if end.Before(start) {
		return nil, nil
	}

	patterns, err := s.Patterns.ListActiveBetween(ctx, userID, start, end)
	if err != nil || len(patterns) == 0 {
		return nil, err
	}
	existing, err := s.Tasks.InstancesBetween(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(patterns))
	for _, p := range patterns {
		ids = append(ids, p.ID)
	}
	skips, err := s.Skips.ListBetween(ctx, ids, start, end)
	if err != nil {
		return nil, err
	}

	out := make(map[calendar.Date][]*model.RecurringPattern)
	for d := start; !d.After(end); d = d.AddDays(1) {
		for _, p := range patterns {
			if p.EmitsOn(d) && !existing.Has(p.ID, d) && !skips.Has(p.ID, d) {
				out[d] = append(out[d], p)
			}
		}
	}
	return out, nil
}

func virtualsOn(ctx context.Context, s *repository.Store, userID int64, d, today calendar.Date) ([]*model.RecurringPattern, error) {
	m, err := virtualsBetween(ctx, s, userID, d, d, today)
	if err != nil {
		return nil, err
	}
	return m[d], nil
}

// resolveRange builds the effective list for [start, end]: per date, the
// virtual instances first, then the stored tasks by position.
func resolveRange(ctx context.Context, s *repository.Store, userID int64, start, end, today calendar.Date) ([]Instance, error) {
	tasks, err := s.Tasks.ListBetween(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	virt, err := virtualsBetween(ctx, s, userID, start, end, today)
	if err != nil {
		return nil, err
	}

	byDate := make(map[calendar.Date][]*model.Task)
	for _, t := range tasks {
		byDate[t.AssignedDate] = append(byDate[t.AssignedDate], t)
	}

	out := make([]Instance, 0, len(tasks))
	for d := start; !d.After(end); d = d.AddDays(1) {
		for _, p := range virt[d] {
			out = append(out, virtual(p, d))
		}
		for _, t := range byDate[d] {
			out = append(out, stored(t))
		}
	}
	return out, nil
}

func resolveDay(ctx context.Context, s *repository.Store, userID int64, d, today calendar.Date) ([]Instance, error) {
	return resolveRange(ctx, s, userID, d, d, today)
}
