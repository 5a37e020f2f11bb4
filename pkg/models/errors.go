package models

import "errors"

// Error taxonomy surfaced to callers. Lower-level provider payloads are logged,
// wrapped with one of these sentinels and matched with errors.Is in the REST layer.
var (
	ErrValidation          = errors.New("invalid request")
	ErrForbidden           = errors.New("forbidden")
	ErrSlotTaken           = errors.New("slot is no longer available")
	ErrNotConnected        = errors.New("calendar is not connected")
	ErrProviderUnavailable = errors.New("calendar provider is unavailable")
	ErrCalendar            = errors.New("calendar provider error")
	ErrEventGone           = errors.New("remote event is gone")
	ErrRateLimited         = errors.New("too many requests")
)
