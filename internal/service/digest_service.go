package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"dayplanner/internal/model"
	"dayplanner/internal/repository"
)

// DigestService builds the morning summary of a user's day and decides who
// is due for one.
type DigestService struct {
	users  *repository.UserRepository
	tasks  *TaskService
	clock  Clock
	hour   int
	minute int
}

// NewDigestService sends digests at the HH:MM wall-clock time at, in each
// user's own zone.
func NewDigestService(users *repository.UserRepository, tasks *TaskService, clock Clock, at string) (*DigestService, error) {
	hour, minute, err := parseClock(at)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock
	}
	return &DigestService{users: users, tasks: tasks, clock: clock, hour: hour, minute: minute}, nil
}

// Minute is the minute of the hour the sweep should run at.
func (s *DigestService) Minute() int {
	return s.minute
}

// DueUsers returns the users whose local hour is the digest hour right now.
// Users with a broken zone are skipped.
func (s *DigestService) DueUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	var due []model.User
	for _, u := range users {
		loc, err := u.Location()
		if err != nil {
			continue
		}
		if now.In(loc).Hour() == s.hour {
			due = append(due, u)
		}
	}
	return due, nil
}

// Summary renders today's list for the user as Telegram HTML. Reading the
// list rolls the user over if this is their first request today.
func (s *DigestService) Summary(ctx context.Context, user *model.User) (string, error) {
	today, err := user.Today(s.clock.Now())
	if err != nil {
		return "", err
	}
	list, err := s.tasks.ForDate(ctx, user.ID, today)
	if err != nil {
		return "", err
	}

	var open, done, rolled, recurring int
	for _, v := range list {
		switch {
		case v.IsCompleted:
			done++
		default:
			open++
		}
		if v.IsRolledOver {
			rolled++
		}
		if v.RecurringPatternID != nil {
			recurring++
		}
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>План на день</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", today.Time().Format("02.01.2006")))

	if len(list) == 0 {
		builder.WriteString("— задач нет\n")
	}
	for _, v := range list {
		builder.WriteString(formatDigestLine(v))
	}

	builder.WriteString(fmt.Sprintf("\nОткрыто: %d · Выполнено: %d", open, done))
	if rolled > 0 {
		builder.WriteString(fmt.Sprintf(" · Перенесено: %d", rolled))
	}
	if recurring > 0 {
		builder.WriteString(fmt.Sprintf(" · Регулярных: %d", recurring))
	}
	return strings.TrimSpace(builder.String()), nil
}

func formatDigestLine(v TaskView) string {
	icon := "🟢"
	switch {
	case v.IsCompleted:
		icon = "✅"
	case v.IsRolledOver:
		icon = "↪️"
	case v.RecurringPatternID != nil:
		icon = "♻️"
	}
	return fmt.Sprintf("%s %s\n", icon, html.EscapeString(v.Text))
}
