package models

import "time"

// CoachAvailability is one recurring weekly window during which a coach accepts
// reservations. A coach owns many rows; the full set is replaced wholesale on update.
type CoachAvailability struct {
	ID        int       `json:"id" db:"id"`
	CoachID   int       `json:"coachId" db:"coach_id"`
	DayOfWeek int       `json:"dayOfWeek" db:"day_of_week"`
	StartTime string    `json:"startTime" db:"start_time"`
	EndTime   string    `json:"endTime" db:"end_time"`
	IsActive  bool      `json:"isActive" db:"is_active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// AvailabilityWindow is the wire form of a single window in the wholesale PUT.
type AvailabilityWindow struct {
	DayOfWeek int    `json:"dayOfWeek" validate:"min=0,max=6"`
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime" validate:"required"`
	IsActive  bool   `json:"isActive"`
}

// Slot is a candidate bookable interval derived from recurring availability.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// BusyInterval is an externally reported occupied range from a linked calendar.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}
