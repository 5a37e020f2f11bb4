package models

import "time"

type ReservationStatus string

const (
	StatusPending   ReservationStatus = `pending`
	StatusConfirmed ReservationStatus = `confirmed`
	StatusCancelled ReservationStatus = `cancelled`
	StatusRefused   ReservationStatus = `refused`
)

// Active reports whether the status still claims the coach's time range.
func (s ReservationStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Terminal reports whether no further transition may leave the status.
func (s ReservationStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusRefused
}

type Reservation struct {
	ID              int               `json:"id" db:"id"`
	CoachID         int               `json:"coachId" db:"coach_id"`
	StudentID       int               `json:"studentId" db:"student_id"`
	StartTime       time.Time         `json:"startTime" db:"start_at"`
	EndTime         time.Time         `json:"endTime" db:"end_at"`
	SessionType     string            `json:"sessionType" db:"session_type"`
	Notes           string            `json:"notes" db:"notes"`
	Status          ReservationStatus `json:"status" db:"status"`
	ExternalEventID *string           `json:"-" db:"external_event_id"`
	ReminderSent    bool              `json:"-" db:"reminder_sent"`
	CreatedAt       time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time         `json:"updatedAt" db:"updated_at"`
}

type ReservationRequest struct {
	CoachID     int       `json:"coachId" validate:"required"`
	StartTime   time.Time `json:"startTime" validate:"required"`
	EndTime     time.Time `json:"endTime" validate:"required"`
	SessionType string    `json:"sessionType" validate:"required,oneof=gym outdoor online"`
	Notes       string    `json:"notes" validate:"max=1000"`
}

// ReservationReminder is the join row the reminder worker consumes.
type ReservationReminder struct {
	ReservationID int       `db:"reservation_id"`
	StudentEmail  string    `db:"student_email"`
	StartAt       time.Time `db:"start_at"`
}

// ReservationAction is a coach or student decision on a pending/confirmed reservation.
type ReservationAction struct {
	Action    string     `json:"action" validate:"required,oneof=accept reschedule refuse cancel"`
	StartTime *time.Time `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
}
