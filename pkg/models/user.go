package models

import (
	"time"
)

type User struct {
	ID                  int        `json:"id" db:"id"`
	LastName            string     `json:"lastName" db:"last_name"`
	FirstName           string     `json:"firstName" db:"first_name"`
	Phone               string     `json:"phone" db:"phone"`
	Email               string     `json:"email" db:"email"`
	Role                Role       `json:"role" db:"role"`
	CoachID             *int       `json:"coachId" db:"coach_id"`
	SlotDuration        int        `json:"slotDuration" db:"slot_duration"`
	Timezone            string     `json:"timezone" db:"timezone"`
	CalendarID          *string    `json:"-" db:"calendar_id"`
	DedicatedCalendarID *string    `json:"-" db:"dedicated_calendar_id"`
	AccessToken         *string    `json:"-" db:"access_token"`
	RefreshToken        *string    `json:"-" db:"refresh_token"`
	TokenExpiry         *time.Time `json:"-" db:"token_expiry"`
	Deleted             bool       `json:"deleted" db:"deleted"`
	CreatedAt           time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time  `json:"updatedAt" db:"updated_at"`
}

// CalendarConnected reports whether the user completed the OAuth flow at least once.
func (u User) CalendarConnected() bool {
	return u.RefreshToken != nil && *u.RefreshToken != ""
}

// Location resolves the user's IANA timezone, falling back to UTC.
func (u User) Location() *time.Location {
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
