package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dayplanner/internal/apperr"
	"dayplanner/internal/calendar"
	"dayplanner/internal/model"
	"dayplanner/internal/notify"
	"dayplanner/internal/observability"
	"dayplanner/internal/recurrence"
	"dayplanner/internal/repository"
)

// CreateInput represents data required to create a task. Position is the
// 1-based slot in the day's displayed list, virtual instances included; nil
// appends after the last incomplete task.
type CreateInput struct {
	Text     string
	Date     calendar.Date
	Position *int
}

// TaskService wraps task-related business logic. Every method runs in one
// transaction, retried on transient storage failures, and publishes change
// notifications after the commit.
type TaskService struct {
	store    *repository.Store
	notifier notify.Notifier
	rollover *RolloverEngine
	clock    Clock
	metrics  *observability.Metrics
	logger   *slog.Logger
	retry    RetryPolicy
}

type Option func(*TaskService)

func WithClock(c Clock) Option {
	return func(s *TaskService) { s.clock = c }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *TaskService) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *TaskService) { s.logger = l }
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *TaskService) { s.retry = p }
}

func WithRolloverEngine(e *RolloverEngine) Option {
	return func(s *TaskService) { s.rollover = e }
}

func NewTaskService(store *repository.Store, notifier notify.Notifier, opts ...Option) *TaskService {
	s := &TaskService{
		store:    store,
		notifier: notifier,
		clock:    SystemClock,
		logger:   slog.Default(),
		retry:    DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rollover == nil {
		s.rollover = NewRolloverEngine()
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	return s
}

// Today is the user's current local date.
func (s *TaskService) Today(user *model.User) (calendar.Date, error) {
	return user.Today(s.clock.Now())
}

// txn is the state of one attempt: the transaction-bound store, the acting
// user and the events to publish once it commits.
type txn struct {
	*repository.Store
	user   *model.User
	now    time.Time
	today  calendar.Date
	events []notify.Event
	rolled *RolloverResult
}

func (tx *txn) tasksChanged(d calendar.Date) {
	for _, ev := range tx.events {
		if ev.Type == notify.TasksChanged && *ev.Date == d {
			return
		}
	}
	dd := d
	tx.events = append(tx.events, notify.Event{Type: notify.TasksChanged, UserID: tx.user.ID, Date: &dd})
}

func (tx *txn) recurringChanged() {
	for _, ev := range tx.events {
		if ev.Type == notify.RecurringChanged {
			return
		}
	}
	tx.events = append(tx.events, notify.Event{Type: notify.RecurringChanged, UserID: tx.user.ID})
}

// run executes fn for userID in a fresh transaction per attempt.
func (s *TaskService) run(ctx context.Context, op string, userID int64, fn func(tx *txn) error) error {
	started := time.Now()
	var committed *txn
	err := retry(ctx, s.retry, op, s.logger, s.metrics, func() error {
		committed = nil
		return s.store.Transaction(ctx, func(st *repository.Store) error {
			user, err := st.Users.FindByID(ctx, userID)
			if err != nil {
				return err
			}
			now := s.clock.Now()
			today, err := user.Today(now)
			if err != nil {
				return err
			}
			tx := &txn{Store: st, user: user, now: now, today: today}
			if err := fn(tx); err != nil {
				return err
			}
			committed = tx
			return nil
		})
	})
	s.metrics.ObserveOperation(op, started, err)
	if err != nil {
		return err
	}
	s.afterCommit(ctx, committed)
	return nil
}

func (s *TaskService) afterCommit(ctx context.Context, tx *txn) {
	if tx.rolled != nil {
		s.rollover.MarkDone(tx.user.ID, tx.rolled.Date)
		s.metrics.RecordRollover(tx.rolled.Rolled)
		s.metrics.RecordMaterialized("rollover", tx.rolled.Materialized)
		if tx.rolled.Changed() {
			s.logger.Info("rolled over", "user_id", tx.user.ID, "date", tx.rolled.Date.String(),
				"rolled", tx.rolled.Rolled, "replaced", tx.rolled.Replaced, "materialized", tx.rolled.Materialized)
		}
	}
	if ctx.Err() != nil {
		s.logger.Debug("request cancelled, dropping notifications", "user_id", tx.user.ID, "events", len(tx.events))
		return
	}
	for _, ev := range tx.events {
		var err error
		switch ev.Type {
		case notify.TasksChanged:
			err = s.notifier.TasksChanged(ctx, ev.UserID, *ev.Date)
		case notify.RecurringChanged:
			err = s.notifier.RecurringChanged(ctx, ev.UserID)
		}
		s.metrics.RecordNotification(string(ev.Type), err)
		if err != nil {
			s.logger.Warn("notification failed", "type", ev.Type, "user_id", ev.UserID, "error", err)
		}
	}
}

// ensureRollover runs the rollover inside tx when a request for requested
// is the user's first on a new local day.
func (s *TaskService) ensureRollover(ctx context.Context, tx *txn, requested calendar.Date) error {
	if !s.rollover.ShouldTrigger(tx.user, requested, tx.today) {
		return nil
	}
	res, err := s.rollover.Perform(ctx, tx.Store, tx.user, tx.today, tx.now)
	if err != nil {
		return fmt.Errorf("rollover: %w", err)
	}
	tx.rolled = &res
	if res.Changed() {
		tx.tasksChanged(tx.today)
	}
	return nil
}

func (s *TaskService) loadTask(ctx context.Context, tx *txn, id int64) (*model.Task, error) {
	t, err := tx.Tasks.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.UserID != tx.user.ID {
		return nil, apperr.Unauthorizedf("task %d belongs to another user", id)
	}
	return t, nil
}

func (s *TaskService) loadPattern(ctx context.Context, tx *txn, id int64) (*model.RecurringPattern, error) {
	p, err := tx.Patterns.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != tx.user.ID {
		return nil, apperr.Unauthorizedf("pattern %d belongs to another user", id)
	}
	return p, nil
}

// Create adds a task, or a recurring pattern when the text ends in a
// recurrence phrase. A pattern created on the current date is materialized
// right away at the requested position. Otherwise its first occurrence comes
// back as a virtual view and in.Position is ignored, since virtuals always
// lead their day.
func (s *TaskService) Create(ctx context.Context, userID int64, in CreateInput) (*TaskView, error) {
	text, err := cleanText(in.Text)
	if err != nil {
		return nil, err
	}
	if err := checkDate("date", in.Date); err != nil {
		return nil, err
	}
	if in.Position != nil {
		if err := check(positionInput{Position: *in.Position}); err != nil {
			return nil, err
		}
	}

	var view *TaskView
	err = s.run(ctx, "create", userID, func(tx *txn) error {
		if err := s.ensureRollover(ctx, tx, tx.today); err != nil {
			return err
		}
		if m, ok := recurrence.Parse(text); ok {
			var (
				pos int
				err error
			)
			if in.Date == tx.today {
				// Open the slot before the pattern exists so it is not
				// counted among the day's virtuals.
				if pos, err = s.openSlot(ctx, tx, in.Date, in.Position); err != nil {
					return err
				}
			}
			p := &model.RecurringPattern{UserID: tx.user.ID, Text: m.Text, Kind: m.Kind, StartDate: in.Date}
			if err := tx.Patterns.Create(ctx, p); err != nil {
				return err
			}
			tx.recurringChanged()
			if in.Date != tx.today {
				v := virtual(p, in.Date).View()
				view = &v
				return nil
			}
			t := newInstance(p, in.Date)
			t.Position = pos
			if err := tx.Tasks.Create(ctx, t); err != nil {
				return err
			}
			s.metrics.RecordMaterialized("single", 1)
			tx.tasksChanged(in.Date)
			view = taskView(t)
			return nil
		}

		pos, err := s.openSlot(ctx, tx, in.Date, in.Position)
		if err != nil {
			return err
		}
		t := &model.Task{UserID: tx.user.ID, Text: text, AssignedDate: in.Date, InstanceDate: in.Date, Position: pos}
		if err := tx.Tasks.Create(ctx, t); err != nil {
			return err
		}
		tx.tasksChanged(in.Date)
		view = taskView(t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// openSlot frees the position a new incomplete task on d takes and returns
// it. A requested position inside the virtual prefix materializes the prefix
// first; positions past the incomplete zone are clamped to its end.
func (s *TaskService) openSlot(ctx context.Context, tx *txn, d calendar.Date, position *int) (int, error) {
	tasks, err := tx.Tasks.ListByDate(ctx, tx.user.ID, d)
	if err != nil {
		return 0, err
	}
	l := dayList(tasks)

	idx := l.activeEnd()
	if position != nil {
		k := *position
		virt, err := virtualsOn(ctx, tx.Store, tx.user.ID, d, tx.today)
		if err != nil {
			return 0, err
		}
		v := len(virt)
		if k > v+len(l)+1 {
			return 0, apperr.Invalidf("position %d is out of range", k)
		}
		if v > 0 && k <= v {
			n, err := materializeDay(ctx, tx.Store, tx.user.ID, d, tx.today, nil)
			if err != nil {
				return 0, err
			}
			s.metrics.RecordMaterialized("bulk", n)
			if tasks, err = tx.Tasks.ListByDate(ctx, tx.user.ID, d); err != nil {
				return 0, err
			}
			l = dayList(tasks)
			idx = k - 1
		} else {
			idx = k - v - 1
		}
		idx = min(idx, l.activeEnd())
	}

	// Close any gap left by older data, then shift the tail down one.
	if err := saveDay(ctx, tx.Store, l); err != nil {
		return 0, err
	}
	if err := tx.Tasks.ShiftPositions(ctx, tx.user.ID, d, idx+1); err != nil {
		return 0, err
	}
	return idx + 1, nil
}

// ForDate returns the effective list for date, rolling over first when date
// is the user's current date and this is their first request of the day.
func (s *TaskService) ForDate(ctx context.Context, userID int64, date calendar.Date) ([]TaskView, error) {
	if err := checkDate("date", date); err != nil {
		return nil, err
	}
	var out []TaskView
	err := s.run(ctx, "for_date", userID, func(tx *txn) error {
		if err := s.ensureRollover(ctx, tx, date); err != nil {
			return err
		}
		list, err := resolveDay(ctx, tx.Store, tx.user.ID, date, tx.today)
		if err != nil {
			return err
		}
		out = views(list)
		return nil
	})
	return out, err
}

// ForRange returns the effective lists for [start, end] ordered by date and
// position.
func (s *TaskService) ForRange(ctx context.Context, userID int64, start, end calendar.Date) ([]TaskView, error) {
	if err := checkDate("start", start); err != nil {
		return nil, err
	}
	if err := checkDate("end", end); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, apperr.Invalidf("end must not be before start")
	}
	if end.DaysSince(start) >= maxRangeDays {
		return nil, apperr.Invalidf("range must be shorter than %d days", maxRangeDays)
	}

	var out []TaskView
	err := s.run(ctx, "for_range", userID, func(tx *txn) error {
		if tx.today.Between(start, end) {
			if err := s.ensureRollover(ctx, tx, tx.today); err != nil {
				return err
			}
		}
		list, err := resolveRange(ctx, tx.Store, tx.user.ID, start, end, tx.today)
		if err != nil {
			return err
		}
		out = views(list)
		return nil
	})
	return out, err
}

// orphan cuts t loose from its pattern. The skip keeps the pattern from
// producing the same occurrence again.
func orphan(ctx context.Context, tx *txn, t *model.Task) error {
	if t.RecurringPatternID == nil {
		return nil
	}
	if err := tx.Skips.Add(ctx, *t.RecurringPatternID, t.InstanceDate); err != nil {
		return err
	}
	t.RecurringPatternID = nil
	return nil
}

// UpdateText renames a stored task. A recurring instance becomes an orphan.
func (s *TaskService) UpdateText(ctx context.Context, userID, taskID int64, text string) (*TaskView, error) {
	text, err := cleanText(text)
	if err != nil {
		return nil, err
	}
	var view *TaskView
	err = s.run(ctx, "update_text", userID, func(tx *txn) error {
		if err := s.ensureRollover(ctx, tx, tx.today); err != nil {
			return err
		}
		t, err := s.loadTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if err := orphan(ctx, tx, t); err != nil {
			return err
		}
		t.Text = text
		if err := tx.Tasks.Save(ctx, t); err != nil {
			return err
		}
		tx.tasksChanged(t.AssignedDate)
		view = taskView(t)
		return nil
	})
	return view, err
}

// UpdatePosition moves a stored task to slot k of its day's displayed list.
// A move across the completed boundary is ignored and the task is returned
// unchanged.
func (s *TaskService) UpdatePosition(ctx context.Context, userID, taskID int64, k int) (*TaskView, error) {
	if err := check(positionInput{Position: k}); err != nil {
		return nil, err
	}
	var view *TaskView
	err := s.run(ctx, "update_position", userID, func(tx *txn) error {
		if err := s.ensureRollover(ctx, tx, tx.today); err != nil {
			return err
		}
		t, err := s.loadTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		moved, err := s.move(ctx, tx, t, k)
		if err != nil {
			return err
		}
		view = taskView(moved)
		return nil
	})
	return view, err
}

func (s *TaskService) move(ctx context.Context, tx *txn, t *model.Task, k int) (*model.Task, error) {
	d := t.AssignedDate
	virt, err := virtualsOn(ctx, tx.Store, tx.user.ID, d, tx.today)
	if err != nil {
		return nil, err
	}
	tasks, err := tx.Tasks.ListByDate(ctx, tx.user.ID, d)
	if err != nil {
		return nil, err
	}
	l := dayList(tasks)
	v := len(virt)
	if k > v+len(l) {
		return nil, apperr.Invalidf("position %d is out of range", k)
	}

	var to int
	if v > 0 && k <= v {
		// Completed tasks never sit above open ones, virtuals included.
		if t.IsCompleted {
			return t, nil
		}
		n, err := materializeDay(ctx, tx.Store, tx.user.ID, d, tx.today, nil)
		if err != nil {
			return nil, err
		}
		s.metrics.RecordMaterialized("bulk", n)
		tx.tasksChanged(d)
		if tasks, err = tx.Tasks.ListByDate(ctx, tx.user.ID, d); err != nil {
			return nil, err
		}
		l = dayList(tasks)
		to = k - 1
	} else {
		to = k - v - 1
	}

	from := l.indexOf(t.ID)
	if from < 0 {
		return nil, apperr.NotFoundf("task %d is not on %s", t.ID, d)
	}
	if from == to || !l.moveAllowed(from, to) {
		return l[from], nil
	}
	l = l.moveTo(from, to)
	if err := saveDay(ctx, tx.Store, l); err != nil {
		return nil, err
	}
	tx.tasksChanged(d)
	return l[to], nil
}

// Complete marks a stored task done and moves it to the top of the
// completed zone. Completing a completed task changes nothing.
func (s *TaskService) Complete(ctx context.Context, userID, taskID int64) (*TaskView, error) {
	return s.setCompleted(ctx, "complete", userID, taskID, true)
}

// Uncomplete reopens a task and moves it to the end of the incomplete zone.
func (s *TaskService) Uncomplete(ctx context.Context, userID, taskID int64) (*TaskView, error) {
	return s.setCompleted(ctx, "uncomplete", userID, taskID, false)
}

func (s *TaskService) setCompleted(ctx context.Context, op string, userID, taskID int64, done bool) (*TaskView, error) {
	var view *TaskView
	err := s.run(ctx, op, userID, func(tx *txn) error {
		if err := s.ensureRollover(ctx, tx, tx.today); err != nil {
			return err
		}
		t, err := s.loadTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		t, err = s.applyCompleted(ctx, tx, t, done)
		if err != nil {
			return err
		}
		view = taskView(t)
		return nil
	})
	return view, err
}

func (s *TaskService) applyCompleted(ctx context.Context, tx *txn, t *model.Task, done bool) (*model.Task, error) {
	if t.IsCompleted == done {
		return t, nil
	}
	tasks, err := tx.Tasks.ListByDate(ctx, tx.user.ID, t.AssignedDate)
	if err != nil {
		return nil, err
	}
	l := dayList(tasks)
	i := l.indexOf(t.ID)
	if i < 0 {
		return nil, apperr.NotFoundf("task %d is not on %s", t.ID, t.AssignedDate)
	}
	t = l[i]
	t.IsCompleted = done
	if done {
		at := tx.now
		t.CompletedAt = &at
	} else {
		t.CompletedAt = nil
	}
	if err := saveDay(ctx, tx.Store, l.settle(i), t); err != nil {
		return nil, err
	}
	tx.tasksChanged(t.AssignedDate)
	return t, nil
}

// UpdateAssignedDate moves a task to another date, after the last incomplete
// task there. Recurring instances become orphans.
func (s *TaskService) UpdateAssignedDate(ctx context.Context, userID, taskID int64, to calendar.Date) (*TaskView, error) {
	if err := checkDate("date", to); err != nil {
		return nil, err
	}
	var view *TaskView
	err := s.run(ctx, "update_assigned_date", userID, func(tx *txn) error {
		if err := s.ensureRollover(ctx, tx, tx.today); err != nil {
			return err
		}
		t, err := s.loadTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if t, err = s.transfer(ctx, tx, t, to); err != nil {
			return err
		}
		view = taskView(t)
		return nil
	})
	return view, err
}

func (s *TaskService) transfer(ctx context.Context, tx *txn, t *model.Task, to calendar.Date) (*model.Task, error) {
	from := t.AssignedDate
	if from == to {
		return t, nil
	}
	if err := orphan(ctx, tx, t); err != nil {
		return nil, err
	}
	t.IsRolledOver = false

	src, err := tx.Tasks.ListByDate(ctx, tx.user.ID, from)
	if err != nil {
		return nil, err
	}
	sl := dayList(src)
	if i := sl.indexOf(t.ID); i >= 0 {
		sl = sl.without(i)
	}
	if err := saveDay(ctx, tx.Store, sl); err != nil {
		return nil, err
	}

	dst, err := tx.Tasks.ListByDate(ctx, tx.user.ID, to)
	if err != nil {
		return nil, err
	}
	t.AssignedDate = to
	dl := dayList(dst)
	dl = dl.insertAt(dl.firstCompleted(), t)
	if err := saveDay(ctx, tx.Store, dl, t); err != nil {
		return nil, err
	}
	tx.tasksChanged(from)
	tx.tasksChanged(to)
	return t, nil
}

// Delete removes a stored task. With allFuture the task's pattern ends the
// day before the task's occurrence and every later open instance goes too.
func (s *TaskService) Delete(ctx context.Context, userID, taskID int64, allFuture bool) error {
	return s.run(ctx, "delete", userID, func(tx *txn) error {
		if err := s.ensureRollover(ctx, tx, tx.today); err != nil {
			return err
		}
		t, err := s.loadTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if allFuture {
			if t.RecurringPatternID == nil {
				return apperr.Invalidf("task is not part of a recurring series")
			}
			p, err := s.loadPattern(ctx, tx, *t.RecurringPatternID)
			if err != nil {
				return err
			}
			return s.endSeries(ctx, tx, p, t.InstanceDate, t)
		}

		if err := orphan(ctx, tx, t); err != nil {
			return err
		}
		if err := tx.Tasks.Delete(ctx, t); err != nil {
			return err
		}
		if err := renumberDate(ctx, tx, t.AssignedDate); err != nil {
			return err
		}
		tx.tasksChanged(t.AssignedDate)
		return nil
	})
}

func renumberDate(ctx context.Context, tx *txn, d calendar.Date) error {
	tasks, err := tx.Tasks.ListByDate(ctx, tx.user.ID, d)
	if err != nil {
		return err
	}
	return saveDay(ctx, tx.Store, tasks)
}

// endSeries stops p from producing anything on or after d and removes the
// open instances it already produced there. also is deleted with them when
// set. A series cut before its first day is removed entirely.
func (s *TaskService) endSeries(ctx context.Context, tx *txn, p *model.RecurringPattern, d calendar.Date, also *model.Task) error {
	end := d.AddDays(-1)
	doomed, err := tx.Tasks.FindFutureIncomplete(ctx, p.ID, end)
	if err != nil {
		return err
	}
	if also != nil && also.IsCompleted {
		doomed = append(doomed, also)
	}
	dates := make(map[calendar.Date]bool)
	for _, t := range doomed {
		dates[t.AssignedDate] = true
	}
	if err := tx.Tasks.DeleteAll(ctx, doomed); err != nil {
		return err
	}

	switch {
	case end.Before(p.StartDate):
		if err := tx.Patterns.Delete(ctx, p); err != nil {
			return err
		}
	case p.EndDate == nil || end.Before(*p.EndDate):
		p.EndDate = &end
		if err := tx.Patterns.Save(ctx, p); err != nil {
			return err
		}
	}

	for date := range dates {
		if err := renumberDate(ctx, tx, date); err != nil {
			return err
		}
		tx.tasksChanged(date)
	}
	tx.recurringChanged()
	return nil
}

// occurrence resolves (patternID, d) for the virtual operations. It returns
// the stored task when the occurrence was materialized meanwhile, so a
// repeated request acts on the stored task instead of failing.
func (s *TaskService) occurrence(ctx context.Context, tx *txn, patternID int64, d calendar.Date) (*model.RecurringPattern, *model.Task, error) {
	if err := checkDate("date", d); err != nil {
		return nil, nil, err
	}
	p, err := s.loadPattern(ctx, tx, patternID)
	if err != nil {
		return nil, nil, err
	}
	existing, err := tx.Tasks.FindInstance(ctx, p.ID, d)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return p, existing, nil
	}
	skipped, err := tx.Skips.Exists(ctx, p.ID, d)
	if err != nil {
		return nil, nil, err
	}
	if d.Before(tx.today) || !p.EmitsOn(d) || skipped {
		return nil, nil, apperr.NotFoundf("pattern %d has no occurrence on %s", patternID, d)
	}
	return p, nil, nil
}

// CompleteVirtual materializes the occurrence and completes it.
func (s *TaskService) CompleteVirtual(ctx context.Context, userID, patternID int64, d calendar.Date) (*TaskView, error) {
	var view *TaskView
	err := s.run(ctx, "complete_virtual", userID, func(tx *txn) error {
		if err := s.ensureRollover(ctx, tx, tx.today); err != nil {
			return err
		}
		p, t, err := s.occurrence(ctx, tx, patternID, d)
		if err != nil {
			return err
		}
		if t == nil {
			var created bool
			if t, created, err = materializeOne(ctx, tx.Store, p, d); err != nil {
				return err
			}
			if created {
				s.metrics.RecordMaterialized("single", 1)
			}
		}
		if t, err = s.applyCompleted(ctx, tx, t, true); err != nil {
			return err
		}
		tx.tasksChanged(t.AssignedDate)
		view = taskView(t)
		return nil
	})
	return view, err
}

// UpdateVirtualText replaces the occurrence with an unlinked task carrying
// text, in the occurrence's slot. The other virtuals of the day are
// materialized around it.
func (s *TaskService) UpdateVirtualText(ctx context.Context, userID, patternID int64, d calendar.Date, text string) (*TaskView, error) {
	text, err := cleanText(text)
	if err != nil {
		return nil, err
	}
	var view *TaskView
	err = s.run(ctx, "update_virtual_text", userID, func(tx *txn) error {
		if err := s.ensureRollover(ctx, tx, tx.today); err != nil {
			return err
		}
		p, t, err := s.occurrence(ctx, tx, patternID, d)
		if err != nil {
			return err
		}
		if t != nil {
			if err := orphan(ctx, tx, t); err != nil {
				return err
			}
			t.Text = text
			if err := tx.Tasks.Save(ctx, t); err != nil {
				return err
			}
			tx.tasksChanged(t.AssignedDate)
			view = taskView(t)
			return nil
		}

		edit := &virtualEdit{patternID: p.ID, text: text}
		n, err := materializeDay(ctx, tx.Store, tx.user.ID, d, tx.today, edit)
		if err != nil {
			return err
		}
		if edit.task == nil {
			return apperr.NotFoundf("pattern %d has no occurrence on %s", patternID, d)
		}
		s.metrics.RecordMaterialized("bulk", n-1)
		if err := tx.Skips.Add(ctx, p.ID, d); err != nil {
			return err
		}
		tx.tasksChanged(d)
		view = taskView(edit.task)
		return nil
	})
	return view, err
}

// UpdateVirtualPosition materializes the day's virtuals and moves the
// occurrence to slot k.
func (s *TaskService) UpdateVirtualPosition(ctx context.Context, userID, patternID int64, d calendar.Date, k int) (*TaskView, error) {
	if err := check(positionInput{Position: k}); err != nil {
		return nil, err
	}
	var view *TaskView
	err := s.run(ctx, "update_virtual_position", userID, func(tx *txn) error {
		if err := s.ensureRollover(ctx, tx, tx.today); err != nil {
			return err
		}
		p, t, err := s.occurrence(ctx, tx, patternID, d)
		if err != nil {
			return err
		}
		if t == nil {
			n, err := materializeDay(ctx, tx.Store, tx.user.ID, d, tx.today, nil)
			if err != nil {
				return err
			}
			s.metrics.RecordMaterialized("bulk", n)
			tx.tasksChanged(d)
			if t, err = tx.Tasks.FindInstance(ctx, p.ID, d); err != nil {
				return err
			}
			if t == nil {
				return apperr.NotFoundf("pattern %d has no occurrence on %s", patternID, d)
			}
		}
		if t, err = s.move(ctx, tx, t, k); err != nil {
			return err
		}
		view = taskView(t)
		return nil
	})
	return view, err
}

// UpdateVirtualAssignedDate materializes the occurrence and moves it to
// another date, where it becomes an orphan.
func (s *TaskService) UpdateVirtualAssignedDate(ctx context.Context, userID, patternID int64, d, to calendar.Date) (*TaskView, error) {
	if err := checkDate("date", to); err != nil {
		return nil, err
	}
	var view *TaskView
	err := s.run(ctx, "update_virtual_assigned_date", userID, func(tx *txn) error {
		if err := s.ensureRollover(ctx, tx, tx.today); err != nil {
			return err
		}
		p, t, err := s.occurrence(ctx, tx, patternID, d)
		if err != nil {
			return err
		}
		if t == nil {
			var created bool
			if t, created, err = materializeOne(ctx, tx.Store, p, d); err != nil {
				return err
			}
			if created {
				s.metrics.RecordMaterialized("single", 1)
			}
		}
		if t, err = s.transfer(ctx, tx, t, to); err != nil {
			return err
		}
		view = taskView(t)
		return nil
	})
	return view, err
}

// DeleteVirtual skips the occurrence, or with allFuture ends the series the
// day before it.
func (s *TaskService) DeleteVirtual(ctx context.Context, userID, patternID int64, d calendar.Date, allFuture bool) error {
	return s.run(ctx, "delete_virtual", userID, func(tx *txn) error {
		if err := s.ensureRollover(ctx, tx, tx.today); err != nil {
			return err
		}
		p, t, err := s.occurrence(ctx, tx, patternID, d)
		if err != nil {
			return err
		}
		if allFuture {
			return s.endSeries(ctx, tx, p, d, t)
		}
		if t != nil {
			if err := orphan(ctx, tx, t); err != nil {
				return err
			}
			if err := tx.Tasks.Delete(ctx, t); err != nil {
				return err
			}
			if err := renumberDate(ctx, tx, t.AssignedDate); err != nil {
				return err
			}
			tx.tasksChanged(t.AssignedDate)
			return nil
		}
		if err := tx.Skips.Add(ctx, p.ID, d); err != nil {
			return err
		}
		tx.tasksChanged(d)
		return nil
	})
}

// Rollover runs the rollover for the user's current date regardless of
// whether it already ran today.
func (s *TaskService) Rollover(ctx context.Context, userID int64) (RolloverResult, error) {
	var res RolloverResult
	err := s.run(ctx, "rollover", userID, func(tx *txn) error {
		r, err := s.rollover.Perform(ctx, tx.Store, tx.user, tx.today, tx.now)
		if err != nil {
			return fmt.Errorf("rollover: %w", err)
		}
		tx.rolled = &r
		if r.Changed() {
			tx.tasksChanged(tx.today)
		}
		res = r
		return nil
	})
	return res, err
}

// Patterns lists the user's recurring patterns with their next occurrence
// after today.
func (s *TaskService) Patterns(ctx context.Context, userID int64) ([]PatternView, error) {
	var out []PatternView
	err := s.run(ctx, "patterns", userID, func(tx *txn) error {
		ps, err := tx.Patterns.ListByUser(ctx, tx.user.ID)
		if err != nil {
			return err
		}
		out = make([]PatternView, 0, len(ps))
		for _, p := range ps {
			v := PatternView{ID: p.ID, Text: p.Text, Kind: string(p.Kind), StartDate: p.StartDate, EndDate: p.EndDate}
			if next := recurrence.NextAfter(p.Kind, p.StartDate, tx.today.AddDays(-1)); !next.IsZero() && p.ActiveOn(next) {
				v.Next = &next
			}
			out = append(out, v)
		}
		return nil
	})
	return out, err
}

// DeletePattern removes a pattern and its skips. Its stored tasks stay as
// orphans.
func (s *TaskService) DeletePattern(ctx context.Context, userID, patternID int64) error {
	return s.run(ctx, "delete_pattern", userID, func(tx *txn) error {
		p, err := s.loadPattern(ctx, tx, patternID)
		if err != nil {
			return err
		}
		if err := tx.Patterns.Delete(ctx, p); err != nil {
			return err
		}
		tx.recurringChanged()
		return nil
	})
}
