package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/peakform/schedule/pkg/models"
)

// CreateReservation runs the mandatory checks and persists a pending
// reservation. Any failed check aborts with no row created; the overlap guard
// is enforced inside the store transaction.
func (s *ScheduleService) CreateReservation(ctx context.Context, studentID int, req models.ReservationRequest) (models.Reservation, error) {
	student, err := s.store.GetUser(ctx, studentID)
	if err != nil {
		return models.Reservation{}, fmt.Errorf("err getting student: %w", err)
	}
	if !student.Role.CanBook() {
		return models.Reservation{}, fmt.Errorf("%w: only students book sessions", models.ErrForbidden)
	}
	if !student.CalendarConnected() {
		return models.Reservation{}, fmt.Errorf("%w: link your calendar before booking", models.ErrNotConnected)
	}
	if student.CoachID == nil || *student.CoachID != req.CoachID {
		return models.Reservation{}, fmt.Errorf("%w: not your assigned coach", models.ErrForbidden)
	}
	coach, err := s.store.GetUser(ctx, req.CoachID)
	if err != nil {
		return models.Reservation{}, fmt.Errorf("err getting coach: %w", err)
	}
	if !coach.Role.CanManageSchedule() {
		return models.Reservation{}, fmt.Errorf("%w: user %d is not a coach", models.ErrValidation, req.CoachID)
	}
	if !coach.CalendarConnected() {
		return models.Reservation{}, fmt.Errorf("%w: coach has no linked calendar", models.ErrNotConnected)
	}
	if !req.StartTime.Before(req.EndTime) {
		return models.Reservation{}, fmt.Errorf("%w: start must precede end", models.ErrValidation)
	}
	if !req.StartTime.After(s.now()) {
		return models.Reservation{}, fmt.Errorf("%w: slot is in the past", models.ErrValidation)
	}

	created, err := s.store.CreateReservation(ctx, models.Reservation{
		CoachID:     req.CoachID,
		StudentID:   studentID,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		SessionType: req.SessionType,
		Notes:       req.Notes,
		Status:      models.StatusPending,
	})
	if err != nil {
		return models.Reservation{}, err
	}
	s.notifyAsync(coach.Email, "reservation_requested", slotData(created))
	return created, nil
}

// Decide applies a coach action to a reservation: accept, reschedule or refuse.
func (s *ScheduleService) Decide(ctx context.Context, coachID, reservationID int, action models.ReservationAction) (models.Reservation, error) {
	res, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return models.Reservation{}, err
	}
	if res.CoachID != coachID {
		return models.Reservation{}, fmt.Errorf("%w: not your reservation", models.ErrForbidden)
	}
	switch action.Action {
	case "accept":
		if res.Status != models.StatusPending {
			return models.Reservation{}, fmt.Errorf("%w: cannot accept a %s reservation", models.ErrValidation, res.Status)
		}
		return s.confirm(ctx, res, nil, nil)
	case "reschedule":
		if res.Status != models.StatusPending && res.Status != models.StatusConfirmed {
			return models.Reservation{}, fmt.Errorf("%w: cannot reschedule a %s reservation", models.ErrValidation, res.Status)
		}
		if action.StartTime == nil || action.EndTime == nil {
			return models.Reservation{}, fmt.Errorf("%w: reschedule needs new start and end", models.ErrValidation)
		}
		if !action.StartTime.Before(*action.EndTime) {
			return models.Reservation{}, fmt.Errorf("%w: start must precede end", models.ErrValidation)
		}
		return s.confirm(ctx, res, action.StartTime, action.EndTime)
	case "refuse":
		if res.Status != models.StatusPending {
			return models.Reservation{}, fmt.Errorf("%w: cannot refuse a %s reservation", models.ErrValidation, res.Status)
		}
		return s.withdraw(ctx, res, models.StatusRefused, "reservation_refused")
	default:
		return models.Reservation{}, fmt.Errorf("%w: unknown action %q", models.ErrValidation, action.Action)
	}
}

// confirm moves a reservation to confirmed, materializing the event in the
// coach's dedicated calendar first. A hard calendar failure aborts the whole
// transition: the student is never told "confirmed" when the coach's calendar
// write failed. The student-calendar copy is best-effort.
func (s *ScheduleService) confirm(ctx context.Context, res models.Reservation, newStart, newEnd *time.Time) (models.Reservation, error) {
	start, end := res.StartTime, res.EndTime
	if newStart != nil && newEnd != nil {
		start, end = *newStart, *newEnd
	}
	coach, err := s.store.GetUser(ctx, res.CoachID)
	if err != nil {
		return models.Reservation{}, fmt.Errorf("err getting coach: %w", err)
	}
	student, err := s.store.GetUser(ctx, res.StudentID)
	if err != nil {
		return models.Reservation{}, fmt.Errorf("err getting student: %w", err)
	}

	dedicated := deref(coach.DedicatedCalendarID)
	if dedicated == "" {
		if err = s.callCalendar(Critical, "provision dedicated calendar", func() error {
			id, err := s.calendar.EnsureDedicated(ctx, coach.ID)
			dedicated = id
			return err
		}); err != nil {
			return models.Reservation{}, err
		}
	}

	if !start.Equal(res.StartTime) || !end.Equal(res.EndTime) {
		if res, err = s.store.SetReservationTime(ctx, res.ID, start, end); err != nil {
			return models.Reservation{}, err
		}
	}

	ev := s.buildEvent(res, student)
	eventID := deref(res.ExternalEventID)
	create := func() error {
		id, err := s.calendar.CreateEvent(ctx, coach.ID, dedicated, ev)
		eventID = id
		return err
	}
	if eventID == "" {
		err = s.callCalendar(Critical, "create coach event", create)
	} else if uerr := s.calendar.UpdateEvent(ctx, coach.ID, dedicated, eventID, ev); uerr != nil {
		if errors.Is(uerr, models.ErrEventGone) {
			// removed out-of-band; recreate instead of failing the transition
			s.log.Warnf("coach event %s is gone, recreating", eventID)
			err = s.callCalendar(Critical, "create coach event", create)
		} else {
			err = fmt.Errorf("update coach event: %w", uerr)
		}
	}
	if err != nil {
		return models.Reservation{}, err
	}

	confirmed, err := s.store.SetReservationState(ctx, res.ID, models.StatusConfirmed, &eventID)
	if err != nil {
		return models.Reservation{}, err
	}

	_ = s.callCalendar(BestEffort, "create student event", func() error {
		studentCal := deref(student.DedicatedCalendarID)
		if studentCal == "" {
			studentCal = "primary"
		}
		_, err := s.calendar.CreateEvent(ctx, student.ID, studentCal, ev)
		return err
	})

	s.notifyAsync(student.Email, "reservation_confirmed", slotData(confirmed))
	return confirmed, nil
}

// Cancel is the student withdrawing a confirmed future reservation.
func (s *ScheduleService) Cancel(ctx context.Context, studentID, reservationID int) (models.Reservation, error) {
	res, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return models.Reservation{}, err
	}
	if res.StudentID != studentID {
		return models.Reservation{}, fmt.Errorf("%w: not your reservation", models.ErrForbidden)
	}
	if res.Status != models.StatusConfirmed {
		return models.Reservation{}, fmt.Errorf("%w: cannot cancel a %s reservation", models.ErrValidation, res.Status)
	}
	if !res.StartTime.After(s.now()) {
		return models.Reservation{}, fmt.Errorf("%w: only future reservations can be cancelled", models.ErrValidation)
	}
	return s.withdraw(ctx, res, models.StatusCancelled, "reservation_cancelled")
}

// withdraw moves a reservation to a terminal state. Remote cleanup is
// best-effort: the local status change proceeds even if the delete fails, and
// the external event id is cleared regardless.
func (s *ScheduleService) withdraw(ctx context.Context, res models.Reservation, status models.ReservationStatus, template string) (models.Reservation, error) {
	if eventID := deref(res.ExternalEventID); eventID != "" {
		coach, err := s.store.GetUser(ctx, res.CoachID)
		if err != nil {
			return models.Reservation{}, fmt.Errorf("err getting coach: %w", err)
		}
		_ = s.callCalendar(BestEffort, "delete coach event", func() error {
			return s.calendar.DeleteEvent(ctx, coach.ID, deref(coach.DedicatedCalendarID), eventID)
		})
	}
	updated, err := s.store.SetReservationState(ctx, res.ID, status, nil)
	if err != nil {
		return models.Reservation{}, err
	}
	recipient, err := s.counterparty(ctx, res, status)
	if err != nil {
		s.log.Warnf("err resolving notification recipient: %v", err)
		return updated, nil
	}
	s.notifyAsync(recipient, template, slotData(updated))
	return updated, nil
}

// counterparty picks who to notify: refusal goes to the student, cancellation
// to the coach.
func (s *ScheduleService) counterparty(ctx context.Context, res models.Reservation, status models.ReservationStatus) (string, error) {
	id := res.StudentID
	if status == models.StatusCancelled {
		id = res.CoachID
	}
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return "", err
	}
	return user.Email, nil
}

// GetReservation returns one reservation, visible only to its student or coach.
func (s *ScheduleService) GetReservation(ctx context.Context, userID, reservationID int) (models.Reservation, error) {
	res, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return models.Reservation{}, err
	}
	if res.CoachID != userID && res.StudentID != userID {
		return models.Reservation{}, fmt.Errorf("%w: not your reservation", models.ErrForbidden)
	}
	return res, nil
}

// ListReservations returns the caller's reservations by role.
func (s *ScheduleService) ListReservations(ctx context.Context, userID int, role models.Role) ([]models.Reservation, error) {
	if role.CanManageSchedule() {
		return s.store.ReservationsByCoach(ctx, userID)
	}
	return s.store.ReservationsByStudent(ctx, userID)
}

func (s *ScheduleService) buildEvent(res models.Reservation, student models.User) models.Event {
	return models.Event{
		Title:       fmt.Sprintf("Training session with %s %s", student.FirstName, student.LastName),
		Description: fmt.Sprintf("%s session booked via PeakForm. %s", res.SessionType, res.Notes),
		Start:       res.StartTime,
		End:         res.EndTime,
	}
}

func slotData(res models.Reservation) map[string]string {
	return map[string]string{
		"slot":   fmt.Sprintf("%s - %s", res.StartTime.Format(time.RFC3339), res.EndTime.Format(time.RFC3339)),
		"status": string(res.Status),
	}
}
