package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"dayplanner/internal/calendar"
	"dayplanner/internal/model"
	"dayplanner/internal/repository"
)

// RolloverResult counts what one rollover pass changed.
type RolloverResult struct {
	Date         calendar.Date `json:"date"`
	Rolled       int           `json:"rolled"`
	Replaced     int           `json:"replaced"`
	Materialized int           `json:"materialized"`
}

func (r RolloverResult) Changed() bool {
	return r.Rolled+r.Replaced+r.Materialized > 0
}

// rolloverCache remembers, per user, the local date this process last rolled
// them over on. The user row stays authoritative; losing an entry only costs
// a re-check.
type rolloverCache struct {
	mu   sync.RWMutex
	days map[int64]calendar.Date
}

func (c *rolloverCache) done(userID int64, d calendar.Date) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.days[userID] == d
}

func (c *rolloverCache) mark(userID int64, d calendar.Date) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.days[userID] = d
}

func (c *rolloverCache) forget(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.days, userID)
}

// RolloverEngine carries overdue tasks to the user's current date and
// materializes that date's recurring instances, once per local day.
type RolloverEngine struct {
	cache *rolloverCache
}

func NewRolloverEngine() *RolloverEngine {
	return &RolloverEngine{cache: &rolloverCache{days: make(map[int64]calendar.Date)}}
}

// ShouldTrigger reports whether a request for requested, made on the user's
// current date, needs a rollover first.
func (e *RolloverEngine) ShouldTrigger(user *model.User, requested, current calendar.Date) bool {
	if requested != current {
		return false
	}
	if user.RolledOverOn(current) {
		return false
	}
	return !e.cache.done(user.ID, current)
}

// MarkDone records a committed rollover in the process cache.
func (e *RolloverEngine) MarkDone(userID int64, d calendar.Date) {
	e.cache.mark(userID, d)
}

// Forget drops the cached entry after the user was deleted or moved to
// another zone.
func (e *RolloverEngine) Forget(userID int64) {
	e.cache.forget(userID)
}

// Perform runs the rollover for today inside the caller's transaction.
// Running it again for the same date leaves the data as it is.
//
// Today's list ends up ordered as: tasks carried over from earlier days,
// today's recurring instances by pattern id, the remaining incomplete
// tasks, then completed tasks.
func (e *RolloverEngine) Perform(ctx context.Context, s *repository.Store, user *model.User, today calendar.Date, now time.Time) (RolloverResult, error) {
	res := RolloverResult{Date: today}

	patterns, err := todaysPatterns(ctx, s, user.ID, today)
	if err != nil {
		return res, err
	}
	emitting := make(map[int64]bool, len(patterns))
	for _, p := range patterns {
		emitting[p.ID] = true
	}

	past, err := s.Tasks.FindIncompleteBefore(ctx, user.ID, today)
	if err != nil {
		return res, err
	}
	current, err := s.Tasks.ListByDate(ctx, user.ID, today)
	if err != nil {
		return res, err
	}

	sources := make(map[calendar.Date]bool)
	var replaced, rolled []*model.Task
	for _, t := range past {
		sources[t.AssignedDate] = true
		if t.RecurringPatternID != nil && emitting[*t.RecurringPatternID] {
			replaced = append(replaced, t)
			continue
		}
		rolled = append(rolled, t)
	}
	if err := s.Tasks.DeleteAll(ctx, replaced); err != nil {
		return res, err
	}

	var carried, others, completed []*model.Task
	instances := make(map[int64]*model.Task)
	for _, t := range current {
		switch {
		case t.IsCompleted:
			completed = append(completed, t)
		case t.IsRolledOver:
			carried = append(carried, t)
		case t.RecurringPatternID != nil && emitting[*t.RecurringPatternID] && t.InstanceDate == today:
			instances[*t.RecurringPatternID] = t
		default:
			others = append(others, t)
		}
	}
	for _, t := range rolled {
		t.AssignedDate = today
		t.IsRolledOver = true
		carried = append(carried, t)
	}

	var recurring []*model.Task
	for _, p := range patterns {
		if t, ok := instances[p.ID]; ok {
			recurring = append(recurring, t)
			continue
		}
		existing, err := s.Tasks.FindInstance(ctx, p.ID, today)
		if err != nil {
			return res, err
		}
		if existing != nil {
			// Completed today, or moved away by hand.
			continue
		}
		recurring = append(recurring, newInstance(p, today))
		res.Materialized++
	}

	l := make(dayList, 0, len(carried)+len(recurring)+len(others)+len(completed))
	l = append(l, carried...)
	l = append(l, recurring...)
	l = append(l, others...)
	l = append(l, completed...)

	extra := append([]*model.Task{}, rolled...)
	for _, t := range recurring {
		if t.ID == 0 {
			extra = append(extra, t)
		}
	}
	if err := saveDay(ctx, s, l, extra...); err != nil {
		return res, err
	}

	dates := make([]calendar.Date, 0, len(sources))
	for d := range sources {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	for _, d := range dates {
		tasks, err := s.Tasks.ListByDate(ctx, user.ID, d)
		if err != nil {
			return res, err
		}
		if err := saveDay(ctx, s, tasks); err != nil {
			return res, err
		}
	}

	if err := s.Users.MarkRolledOver(ctx, user.ID, now); err != nil {
		return res, err
	}
	at := now
	user.LastRolloverAt = &at

	res.Rolled = len(rolled)
	res.Replaced = len(replaced)
	return res, nil
}

// todaysPatterns returns the active patterns that emit on d and are not
// skipped there, by id.
func todaysPatterns(ctx context.Context, s *repository.Store, userID int64, d calendar.Date) ([]*model.RecurringPattern, error) {
	active, err := s.Patterns.ListActiveOn(ctx, userID, d)
	if err != nil || len(active) == 0 {
		return nil, err
	}
	ids := make([]int64, 0, len(active))
	for _, p := range active {
		ids = append(ids, p.ID)
	}
	skips, err := s.Skips.ListBetween(ctx, ids, d, d)
	if err != nil {
		return nil, err
	}
	out := make([]*model.RecurringPattern, 0, len(active))
	for _, p := range active {
		if p.EmitsOn(d) && !skips.Has(p.ID, d) {
			out = append(out, p)
		}
	}
	return out, nil
}
