package service

import (
	"context"
	"strings"

	"dayplanner/internal/calendar"
	"dayplanner/internal/model"
	"dayplanner/internal/repository"
)

// UserService manages accounts. Changing the timezone only affects how
// "today" is computed from now on; stored dates are left alone.
type UserService struct {
	store       *repository.Store
	rollover    *RolloverEngine
	defaultZone string
}

func NewUserService(store *repository.Store, rollover *RolloverEngine, defaultZone string) *UserService {
	if defaultZone == "" {
		defaultZone = calendar.DefaultZone
	}
	return &UserService{store: store, rollover: rollover, defaultZone: defaultZone}
}

// Register creates a user identified by email. An empty zone selects the
// service default.
func (s *UserService) Register(ctx context.Context, email, zone string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := check(emailInput{Email: email}); err != nil {
		return nil, err
	}
	if zone == "" {
		zone = s.defaultZone
	}
	if err := check(timezoneInput{Timezone: zone}); err != nil {
		return nil, err
	}
	user := &model.User{Email: &email, Timezone: zone}
	if err := s.store.Users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// EnsureTelegramUser returns the user bound to the Telegram account,
// creating it on first contact.
func (s *UserService) EnsureTelegramUser(ctx context.Context, p repository.TelegramProfile) (*model.User, error) {
	return s.store.Users.UpsertFromTelegram(ctx, p, s.defaultZone)
}

func (s *UserService) Get(ctx context.Context, userID int64) (*model.User, error) {
	return s.store.Users.FindByID(ctx, userID)
}

func (s *UserService) UpdateTimezone(ctx context.Context, userID int64, zone string) (*model.User, error) {
	zone = strings.TrimSpace(zone)
	if err := check(timezoneInput{Timezone: zone}); err != nil {
		return nil, err
	}
	if err := s.store.Users.UpdateTimezone(ctx, userID, zone); err != nil {
		return nil, err
	}
	if s.rollover != nil {
		s.rollover.Forget(userID)
	}
	return s.store.Users.FindByID(ctx, userID)
}

// Delete removes the user and everything they own.
func (s *UserService) Delete(ctx context.Context, userID int64) error {
	if err := s.store.Users.Delete(ctx, userID); err != nil {
		return err
	}
	if s.rollover != nil {
		s.rollover.Forget(userID)
	}
	return nil
}
