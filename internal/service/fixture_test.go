package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayplanner/internal/calendar"
	"dayplanner/internal/model"
	"dayplanner/internal/notify"
	"dayplanner/internal/observability"
	"dayplanner/internal/repository"
)

const laZone = "America/Los_Angeles"

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (n *recordingNotifier) TasksChanged(_ context.Context, userID int64, d calendar.Date) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	dd := d
	n.events = append(n.events, notify.Event{Type: notify.TasksChanged, UserID: userID, Date: &dd})
	return n.err
}

func (n *recordingNotifier) RecurringChanged(_ context.Context, userID int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notify.Event{Type: notify.RecurringChanged, UserID: userID})
	return n.err
}

func (n *recordingNotifier) take() []notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.events
	n.events = nil
	return out
}

func (n *recordingNotifier) has(typ notify.Type, d string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ev := range n.events {
		if ev.Type != typ {
			continue
		}
		if d == "" || (ev.Date != nil && ev.Date.String() == d) {
			return true
		}
	}
	return false
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *repository.Store
	clock   *fixedClock
	notes   *recordingNotifier
	metrics *observability.Metrics
	engine  *RolloverEngine
	tasks   *TaskService
	users   *UserService
	user    *model.User
	loc     *time.Location
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture opens a fresh in-memory database with one user in zone whose
// clock reads noon local time on day.
func newFixture(t *testing.T, zone, day string) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repository.NewDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	loc, err := calendar.LoadLocation(zone)
	require.NoError(t, err)

	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		store:   repository.NewStore(db),
		clock:   &fixedClock{},
		notes:   &recordingNotifier{},
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
		engine:  NewRolloverEngine(),
		loc:     loc,
	}
	f.setDay(day)
	f.tasks = NewTaskService(f.store, f.notes,
		WithClock(f.clock),
		WithMetrics(f.metrics),
		WithLogger(discardLogger()),
		WithRetryPolicy(RetryPolicy{Attempts: 3}),
		WithRolloverEngine(f.engine),
	)
	f.users = NewUserService(f.store, f.engine, calendar.DefaultZone)
	f.user, err = f.users.Register(f.ctx, "owner@example.com", zone)
	require.NoError(t, err)
	return f
}

func (f *fixture) setDay(day string) {
	d := calendar.MustParse(day)
	f.clock.Set(time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, f.loc))
}

func (f *fixture) create(text, day string) *TaskView {
	f.t.Helper()
	v, err := f.tasks.Create(f.ctx, f.user.ID, CreateInput{Text: text, Date: calendar.MustParse(day)})
	require.NoError(f.t, err)
	return v
}

func (f *fixture) createAt(text, day string, pos int) *TaskView {
	f.t.Helper()
	v, err := f.tasks.Create(f.ctx, f.user.ID, CreateInput{Text: text, Date: calendar.MustParse(day), Position: &pos})
	require.NoError(f.t, err)
	return v
}

func (f *fixture) day(day string) []TaskView {
	f.t.Helper()
	list, err := f.tasks.ForDate(f.ctx, f.user.ID, calendar.MustParse(day))
	require.NoError(f.t, err)
	return list
}

func (f *fixture) stored(day string) []*model.Task {
	f.t.Helper()
	tasks, err := f.store.Tasks.ListByDate(f.ctx, f.user.ID, calendar.MustParse(day))
	require.NoError(f.t, err)
	return tasks
}

// texts lists the stored task texts of day in position order.
func (f *fixture) texts(day string) []string {
	f.t.Helper()
	var out []string
	for _, t := range f.stored(day) {
		out = append(out, t.Text)
	}
	return out
}

// checkDay asserts positions 1..N and incomplete-before-completed on day.
func (f *fixture) checkDay(day string) {
	f.t.Helper()
	seenCompleted := false
	for i, t := range f.stored(day) {
		assert.Equal(f.t, i+1, t.Position, "position of %q on %s", t.Text, day)
		if t.IsCompleted {
			seenCompleted = true
		} else {
			assert.False(f.t, seenCompleted, "incomplete %q below a completed task on %s", t.Text, day)
		}
		assert.Equal(f.t, t.IsCompleted, t.CompletedAt != nil, "completed_at of %q", t.Text)
	}
}

func id(v *TaskView) int64 {
	return *v.ID
}

func texts(list []TaskView) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		out = append(out, v.Text)
	}
	return out
}
