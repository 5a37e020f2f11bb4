package service

import (
	"context"
	"fmt"
	"time"

	"github.com/peakform/schedule/pkg/models"
	"github.com/peakform/schedule/pkg/scheduler"
)

// AvailableSlots returns the coach's free slots for one calendar day. Local
// reservation filtering is mandatory; external busy filtering is best-effort,
// so a broken or absent calendar linkage still yields locally valid slots.
func (s *ScheduleService) AvailableSlots(ctx context.Context, coachID int, date time.Time) ([]models.Slot, error) {
	coach, err := s.store.GetUser(ctx, coachID)
	if err != nil {
		return nil, fmt.Errorf("err getting coach: %w", err)
	}
	if !coach.Role.CanManageSchedule() {
		return nil, fmt.Errorf("%w: user %d is not a coach", models.ErrValidation, coachID)
	}
	windows, err := s.store.GetAvailability(ctx, coachID)
	if err != nil {
		return nil, fmt.Errorf("err getting availability: %w", err)
	}
	// the date names a calendar day; rebuild it from its components so a
	// coach west of UTC is not shifted onto the previous local day
	loc := coach.Location()
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	slots, err := scheduler.Grid(windows, time.Duration(coach.SlotDuration)*time.Minute, day, loc)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return []models.Slot{}, nil
	}

	dayStart := day
	dayEnd := day.AddDate(0, 0, 1)

	reservations, err := s.store.ActiveReservationsBetween(ctx, coachID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("err getting reservations: %w", err)
	}

	var busy []models.BusyInterval
	_ = s.callCalendar(BestEffort, "query busy intervals", func() error {
		intervals, err := s.calendar.QueryBusy(ctx, coachID, dayStart, dayEnd)
		if err != nil {
			return err
		}
		busy = intervals
		return nil
	})

	return scheduler.FilterConflicts(slots, reservations, busy), nil
}

// GetAvailability returns the coach's recurring windows.
func (s *ScheduleService) GetAvailability(ctx context.Context, coachID int) ([]models.CoachAvailability, error) {
	return s.store.GetAvailability(ctx, coachID)
}

// ReplaceAvailability swaps the coach's full availability set wholesale and,
// when the coach has a linked calendar without a dedicated one yet, provisions
// it best-effort.
func (s *ScheduleService) ReplaceAvailability(ctx context.Context, coachID int, windows []models.AvailabilityWindow, slotDuration int) ([]models.CoachAvailability, error) {
	coach, err := s.store.GetUser(ctx, coachID)
	if err != nil {
		return nil, fmt.Errorf("err getting coach: %w", err)
	}
	if !coach.Role.CanManageSchedule() {
		return nil, fmt.Errorf("%w: only coaches manage availability", models.ErrForbidden)
	}
	if slotDuration <= 0 {
		return nil, fmt.Errorf("%w: slot duration must be positive", models.ErrValidation)
	}
	for _, w := range windows {
		if err = validateWindow(w); err != nil {
			return nil, err
		}
	}
	saved, err := s.store.ReplaceAvailability(ctx, coachID, windows, slotDuration)
	if err != nil {
		return nil, fmt.Errorf("err replacing availability: %w", err)
	}
	if coach.CalendarConnected() && deref(coach.DedicatedCalendarID) == "" {
		_ = s.callCalendar(BestEffort, "provision dedicated calendar", func() error {
			_, err := s.calendar.EnsureDedicated(ctx, coachID)
			return err
		})
	}
	return saved, nil
}

func validateWindow(w models.AvailabilityWindow) error {
	if w.DayOfWeek < 0 || w.DayOfWeek > 6 {
		return fmt.Errorf("%w: day of week %d", models.ErrValidation, w.DayOfWeek)
	}
	start, err := time.Parse("15:04", w.StartTime)
	if err != nil {
		return fmt.Errorf("%w: bad start time %q", models.ErrValidation, w.StartTime)
	}
	end, err := time.Parse("15:04", w.EndTime)
	if err != nil {
		return fmt.Errorf("%w: bad end time %q", models.ErrValidation, w.EndTime)
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: window %s-%s is empty", models.ErrValidation, w.StartTime, w.EndTime)
	}
	return nil
}
