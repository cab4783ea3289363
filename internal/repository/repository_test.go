package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dayplanner/internal/apperr"
	"dayplanner/internal/calendar"
	"dayplanner/internal/model"
	"dayplanner/internal/recurrence"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := NewDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewStore(db)
}

func newUser(t *testing.T, s *Store, email string) *model.User {
	t.Helper()
	u := &model.User{Email: &email, Timezone: "UTC"}
	require.NoError(t, s.Users.Create(context.Background(), u))
	return u
}

func addTask(t *testing.T, s *Store, userID int64, date string, pos int, text string) *model.Task {
	t.Helper()
	d := calendar.MustParse(date)
	task := &model.Task{UserID: userID, Text: text, AssignedDate: d, InstanceDate: d, Position: pos}
	require.NoError(t, s.Tasks.Create(context.Background(), task))
	return task
}

func TestWithDefaultParams(t *testing.T) {
	assert.Equal(t, "a.db?_busy_timeout=5000&_txlock=immediate", withDefaultParams("a.db"))
	assert.Equal(t, "file:x?mode=memory&_txlock=deferred&_busy_timeout=5000",
		withDefaultParams("file:x?mode=memory&_txlock=deferred"))
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u := newUser(t, s, "ann@example.com")
	found, err := s.Users.FindByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	_, err = s.Users.FindByID(ctx, 999)
	assert.True(t, apperr.Is(err, apperr.NotFound))

	dup := "ann@example.com"
	err = s.Users.Create(ctx, &model.User{Email: &dup, Timezone: "UTC"})
	assert.True(t, apperr.Is(err, apperr.Conflict), "got %v", err)

	require.NoError(t, s.Users.UpdateTimezone(ctx, u.ID, "Europe/Moscow"))
	found, err = s.Users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Moscow", found.Timezone)

	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.Users.MarkRolledOver(ctx, u.ID, at))
	found, err = s.Users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, found.LastRolloverAt)
	assert.True(t, at.Equal(*found.LastRolloverAt))
}

func TestUpsertFromTelegram(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u, err := s.Users.UpsertFromTelegram(ctx, TelegramProfile{TelegramID: 42, FirstName: "Ivan"}, "Europe/Moscow")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Moscow", u.Timezone)

	again, err := s.Users.UpsertFromTelegram(ctx, TelegramProfile{TelegramID: 42, FirstName: "Ivan", Username: "ivan"}, "UTC")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, "Europe/Moscow", again.Timezone)

	found, err := s.Users.FindByTelegramID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "ivan", found.Username)

	all, err := s.Users.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTaskQueries(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newUser(t, s, "a@example.com")
	other := newUser(t, s, "b@example.com")

	addTask(t, s, u.ID, "2025-03-10", 2, "second")
	addTask(t, s, u.ID, "2025-03-10", 1, "first")
	addTask(t, s, u.ID, "2025-03-08", 1, "older")
	addTask(t, s, u.ID, "2025-03-09", 1, "old")
	addTask(t, s, other.ID, "2025-03-09", 1, "someone else")
	done := addTask(t, s, u.ID, "2025-03-09", 2, "done")
	done.IsCompleted = true
	require.NoError(t, s.Tasks.Save(ctx, done))

	day, err := s.Tasks.ListByDate(ctx, u.ID, calendar.MustParse("2025-03-10"))
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, "first", day[0].Text)
	assert.Equal(t, "second", day[1].Text)

	overdue, err := s.Tasks.FindIncompleteBefore(ctx, u.ID, calendar.MustParse("2025-03-10"))
	require.NoError(t, err)
	require.Len(t, overdue, 2)
	assert.Equal(t, "old", overdue[0].Text)
	assert.Equal(t, "older", overdue[1].Text)

	span, err := s.Tasks.ListBetween(ctx, u.ID, calendar.MustParse("2025-03-09"), calendar.MustParse("2025-03-10"))
	require.NoError(t, err)
	assert.Len(t, span, 4)

	n, err := s.Tasks.CountIncomplete(ctx, u.ID, calendar.MustParse("2025-03-09"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, s.Tasks.ShiftPositions(ctx, u.ID, calendar.MustParse("2025-03-10"), 2))
	day, err = s.Tasks.ListByDate(ctx, u.ID, calendar.MustParse("2025-03-10"))
	require.NoError(t, err)
	assert.Equal(t, 1, day[0].Position)
	assert.Equal(t, 3, day[1].Position)

	require.NoError(t, s.Tasks.DeleteAll(ctx, day))
	day, err = s.Tasks.ListByDate(ctx, u.ID, calendar.MustParse("2025-03-10"))
	require.NoError(t, err)
	assert.Empty(t, day)
}

func TestInstancesAndPatterns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newUser(t, s, "a@example.com")

	end := calendar.MustParse("2025-03-05")
	ended := &model.RecurringPattern{UserID: u.ID, Text: "old", Kind: recurrence.Daily, StartDate: calendar.MustParse("2025-03-01"), EndDate: &end}
	open := &model.RecurringPattern{UserID: u.ID, Text: "gym", Kind: recurrence.Weekly, StartDate: calendar.MustParse("2025-03-03")}
	require.NoError(t, s.Patterns.Create(ctx, ended))
	require.NoError(t, s.Patterns.Create(ctx, open))

	active, err := s.Patterns.ListActiveOn(ctx, u.ID, calendar.MustParse("2025-03-04"))
	require.NoError(t, err)
	assert.Len(t, active, 2)
	active, err = s.Patterns.ListActiveOn(ctx, u.ID, calendar.MustParse("2025-03-06"))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, open.ID, active[0].ID)
	active, err = s.Patterns.ListActiveBetween(ctx, u.ID, calendar.MustParse("2025-02-01"), calendar.MustParse("2025-03-01"))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, ended.ID, active[0].ID)

	inst := calendar.MustParse("2025-03-10")
	pid := open.ID
	rolled := &model.Task{UserID: u.ID, Text: "gym", AssignedDate: calendar.MustParse("2025-03-12"), InstanceDate: inst, Position: 1, RecurringPatternID: &pid}
	require.NoError(t, s.Tasks.Create(ctx, rolled))

	dup := &model.Task{UserID: u.ID, Text: "gym", AssignedDate: inst, InstanceDate: inst, Position: 1, RecurringPatternID: &pid}
	err = s.Tasks.Create(ctx, dup)
	assert.True(t, apperr.Is(err, apperr.Conflict), "got %v", err)

	found, err := s.Tasks.FindInstance(ctx, pid, inst)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, rolled.ID, found.ID)
	missing, err := s.Tasks.FindInstance(ctx, pid, inst.AddDays(7))
	require.NoError(t, err)
	assert.Nil(t, missing)

	set, err := s.Tasks.InstancesBetween(ctx, u.ID, calendar.MustParse("2025-03-09"), calendar.MustParse("2025-03-11"))
	require.NoError(t, err)
	assert.True(t, set.Has(pid, inst))
	assert.Len(t, set, 1)

	future, err := s.Tasks.FindFutureIncomplete(ctx, pid, calendar.MustParse("2025-03-09"))
	require.NoError(t, err)
	assert.Len(t, future, 1)

	require.NoError(t, s.Skips.Add(ctx, pid, calendar.MustParse("2025-03-17")))
	require.NoError(t, s.Skips.Add(ctx, pid, calendar.MustParse("2025-03-17")))
	ok, err := s.Skips.Exists(ctx, pid, calendar.MustParse("2025-03-17"))
	require.NoError(t, err)
	assert.True(t, ok)
	skips, err := s.Skips.ListBetween(ctx, []int64{pid, ended.ID}, calendar.MustParse("2025-03-01"), calendar.MustParse("2025-03-31"))
	require.NoError(t, err)
	assert.Len(t, skips, 1)

	require.NoError(t, s.Patterns.Delete(ctx, open))
	_, err = s.Patterns.FindByID(ctx, pid)
	assert.True(t, apperr.Is(err, apperr.NotFound))
	orphan, err := s.Tasks.FindByID(ctx, rolled.ID)
	require.NoError(t, err)
	assert.Nil(t, orphan.RecurringPatternID)
	all, err := s.Skips.ListByPattern(ctx, pid)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDeleteUserCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newUser(t, s, "a@example.com")
	p := &model.RecurringPattern{UserID: u.ID, Text: "gym", Kind: recurrence.Daily, StartDate: calendar.MustParse("2025-03-01")}
	require.NoError(t, s.Patterns.Create(ctx, p))
	require.NoError(t, s.Skips.Add(ctx, p.ID, calendar.MustParse("2025-03-02")))
	task := addTask(t, s, u.ID, "2025-03-01", 1, "x")

	require.NoError(t, s.Users.Delete(ctx, u.ID))

	_, err := s.Tasks.FindByID(ctx, task.ID)
	assert.True(t, apperr.Is(err, apperr.NotFound))
	_, err = s.Patterns.FindByID(ctx, p.ID)
	assert.True(t, apperr.Is(err, apperr.NotFound))
	skips, err := s.Skips.ListByPattern(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, skips)

	assert.True(t, apperr.Is(s.Users.Delete(ctx, u.ID), apperr.NotFound))
}

func TestTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := newUser(t, s, "a@example.com")
	boom := errors.New("boom")

	err := s.Transaction(ctx, func(tx *Store) error {
		addTask(t, tx, u.ID, "2025-03-10", 1, "never")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	tasks, err := s.Tasks.ListByDate(ctx, u.ID, calendar.MustParse("2025-03-10"))
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("x", nil))
	assert.True(t, apperr.Is(classify("x", sqlite3.Error{Code: sqlite3.ErrBusy}), apperr.Transient))
	assert.True(t, apperr.Is(classify("x", sqlite3.Error{Code: sqlite3.ErrLocked}), apperr.Transient))
	assert.True(t, apperr.Is(classify("x", errors.New("Deadlock found when trying to get lock")), apperr.Transient))
	assert.True(t, apperr.Is(classify("x", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}), apperr.Conflict))
	assert.Equal(t, apperr.Internal, apperr.KindOf(classify("x", errors.New("disk I/O error"))))
}
