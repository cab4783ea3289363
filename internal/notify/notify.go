// Package notify tells connected clients that a user's data changed so they
// can refetch. Events carry no payload beyond what changed and for whom.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"dayplanner/internal/calendar"
)

type Type string

const (
	TasksChanged     Type = "TODOS_CHANGED"
	RecurringChanged Type = "RECURRING_CHANGED"
)

type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	UserID    int64          `json:"user_id"`
	Date      *calendar.Date `json:"date,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Notifier is what the task service publishes through.
type Notifier interface {
	TasksChanged(ctx context.Context, userID int64, date calendar.Date) error
	RecurringChanged(ctx context.Context, userID int64) error
}

// Handler delivers one event. A returned error is reported by Publish but
// does not stop delivery to other handlers.
type Handler func(ctx context.Context, ev Event) error

// Bus fans events out to subscribed handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	now      func() time.Time
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[string]Handler), now: time.Now}
}

// Subscribe registers h and returns an id for Unsubscribe.
func (b *Bus) Subscribe(h Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.NewString()
	b.handlers[id] = h
	return id
}

func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.handlers[id]; !ok {
		return false
	}
	delete(b.handlers, id)
	return true
}

func (b *Bus) TasksChanged(ctx context.Context, userID int64, date calendar.Date) error {
	d := date
	return b.Publish(ctx, Event{Type: TasksChanged, UserID: userID, Date: &d})
}

func (b *Bus) RecurringChanged(ctx context.Context, userID int64) error {
	return b.Publish(ctx, Event{Type: RecurringChanged, UserID: userID})
}

// Publish stamps ev and hands it to every handler on the caller's goroutine.
// Async puts a queue in front of it for request paths.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now()
	}

	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		hs = append(hs, h)
	}
	b.mu.RUnlock()

	var errs []error
	for _, h := range hs {
		if err := safeInvoke(ctx, h, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func safeInvoke(ctx context.Context, h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked on %s: %v", ev.Type, r)
		}
	}()
	return h(ctx, ev)
}

// LogHandler writes every event to logger at debug level.
func LogHandler(logger *slog.Logger) Handler {
	return func(ctx context.Context, ev Event) error {
		attrs := []any{"event_id", ev.ID, "type", ev.Type, "user_id", ev.UserID}
		if ev.Date != nil {
			attrs = append(attrs, "date", ev.Date.String())
		}
		logger.DebugContext(ctx, "change notification", attrs...)
		return nil
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) TasksChanged(context.Context, int64, calendar.Date) error { return nil }
func (Nop) RecurringChanged(context.Context, int64) error            { return nil }
