package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"dayplanner/internal/calendar"
)

// ErrQueueFull is returned when an event is dropped because the delivery
// queue has no room left.
var ErrQueueFull = errors.New("notification queue is full")

// Async queues events and publishes them to a Bus from its own goroutine.
// Enqueueing never blocks; Run must be running for events to be delivered.
type Async struct {
	bus    *Bus
	queue  chan Event
	logger *slog.Logger
	done   chan struct{}
}

func NewAsync(bus *Bus, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Async{
		bus:    bus,
		queue:  make(chan Event, size),
		logger: logger.With("component", "notify"),
		done:   make(chan struct{}),
	}
}

func (a *Async) TasksChanged(_ context.Context, userID int64, date calendar.Date) error {
	d := date
	return a.enqueue(Event{Type: TasksChanged, UserID: userID, Date: &d})
}

func (a *Async) RecurringChanged(_ context.Context, userID int64) error {
	return a.enqueue(Event{Type: RecurringChanged, UserID: userID})
}

func (a *Async) enqueue(ev Event) error {
	ev.ID = uuid.NewString()
	ev.Timestamp = a.bus.now()
	select {
	case a.queue <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Run delivers queued events until ctx is done, then drains the queue and
// closes Done.
func (a *Async) Run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case ev := <-a.queue:
			a.deliver(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-a.queue:
					a.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

// Done is closed once Run has returned.
func (a *Async) Done() <-chan struct{} {
	return a.done
}

func (a *Async) deliver(ev Event) {
	// The request that queued ev has usually finished by now.
	if err := a.bus.Publish(context.Background(), ev); err != nil {
		a.logger.Warn("deliver notification", "event_id", ev.ID, "type", ev.Type, "user_id", ev.UserID, "error", err)
	}
}
