package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/peakform/schedule/pkg/models"
)

type Notifier interface {
	Notify(ctx context.Context, recipient, template string, data map[string]string) error
}

type Store interface {
	GetUser(ctx context.Context, id int) (models.User, error)
	GetAvailability(ctx context.Context, coachID int) ([]models.CoachAvailability, error)
	ReplaceAvailability(ctx context.Context, coachID int, windows []models.AvailabilityWindow, slotDuration int) ([]models.CoachAvailability, error)
	CreateReservation(ctx context.Context, r models.Reservation) (models.Reservation, error)
	GetReservation(ctx context.Context, id int) (models.Reservation, error)
	ActiveReservationsBetween(ctx context.Context, coachID int, from, to time.Time) ([]models.Reservation, error)
	ReservationsByCoach(ctx context.Context, coachID int) ([]models.Reservation, error)
	ReservationsByStudent(ctx context.Context, studentID int) ([]models.Reservation, error)
	SetReservationState(ctx context.Context, id int, status models.ReservationStatus, externalEventID *string) (models.Reservation, error)
	SetReservationTime(ctx context.Context, id int, start, end time.Time) (models.Reservation, error)
}

type Calendar interface {
	CreateEvent(ctx context.Context, userID int, calendarID string, ev models.Event) (string, error)
	UpdateEvent(ctx context.Context, userID int, calendarID, eventID string, ev models.Event) error
	DeleteEvent(ctx context.Context, userID int, calendarID, eventID string) error
	QueryBusy(ctx context.Context, userID int, from, to time.Time) ([]models.BusyInterval, error)
	EnsureDedicated(ctx context.Context, userID int) (string, error)
}

// Criticality tags each external call site. Critical failures abort the
// enclosing transition; BestEffort failures are logged and swallowed.
type Criticality int

const (
	Critical Criticality = iota
	BestEffort
)

const notifyTimeout = 10 * time.Second

type ScheduleService struct {
	log      *logrus.Entry
	store    Store
	calendar Calendar
	notifier Notifier
	now      func() time.Time
}

func NewScheduleService(log *logrus.Logger, store Store, cal Calendar, notifier Notifier) *ScheduleService {
	return &ScheduleService{
		log:      log.WithField("component", "service"),
		store:    store,
		calendar: cal,
		notifier: notifier,
		now:      time.Now,
	}
}

// callCalendar applies the call-site policy. A gone remote event is always a
// warning: it may have been removed out-of-band.
func (s *ScheduleService) callCalendar(crit Criticality, op string, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrEventGone) {
		s.log.Warnf("%s: %v", op, err)
		return nil
	}
	if crit == BestEffort {
		s.log.Warnf("%s (best effort): %v", op, err)
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// notifyAsync dispatches fire-and-forget: delivery failure or latency never
// delays or fails the enclosing request.
func (s *ScheduleService) notifyAsync(recipient, template string, data map[string]string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, recipient, template, data); err != nil {
			s.log.Errorf("err notifying %s: %v", recipient, err)
		}
	}()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
