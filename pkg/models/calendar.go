package models

import "time"

// Event is the provider-agnostic shape of a calendar event managed by the app.
// The remote event id travels separately: reservations keep it in
// external_event_id and the adapter takes it as an argument.
type Event struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
}
