package model

import (
	"time"

	"dayplanner/internal/calendar"
)

// User owns tasks and recurring patterns. Email and TelegramID are both
// optional identities; at least one is set.
type User struct {
	ID             int64   `gorm:"primaryKey"`
	Email          *string `gorm:"size:255;uniqueIndex"`
	TelegramID     *int64  `gorm:"uniqueIndex"`
	FirstName      string
	LastName       string
	Username       string
	Timezone       string `gorm:"size:50;not null"`
	LastRolloverAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Location resolves the user's zone, falling back to UTC when unset.
func (u *User) Location() (*time.Location, error) {
	return calendar.LoadLocation(u.Timezone)
}

// Today is the user's current local date at instant now.
func (u *User) Today(now time.Time) (calendar.Date, error) {
	return calendar.TodayIn(now, u.Timezone)
}

// RolledOverOn reports whether the stored last rollover instant falls on
// date in the user's zone.
func (u *User) RolledOverOn(date calendar.Date) bool {
	if u.LastRolloverAt == nil {
		return false
	}
	loc, err := u.Location()
	if err != nil {
		return false
	}
	return calendar.Today(*u.LastRolloverAt, loc) == date
}
