package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/peakform/schedule/pkg/models"
)

const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
)

// CreateReservation checks for overlapping active reservations and inserts the
// row in one transaction. The reservations_no_overlap exclusion constraint is
// the backstop against races the row locks do not cover.
func (s *Store) CreateReservation(ctx context.Context, r models.Reservation) (models.Reservation, error) {
	done := observe("CreateReservation")
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		done(true)
		return models.Reservation{}, fmt.Errorf("err starting tx: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Warnf("err rolling back reservation tx: %v", err)
		}
	}()

	var overlapping []int
	lockQuery := `
SELECT id FROM reservations
WHERE coach_id = $1
  AND status IN ('pending', 'confirmed')
  AND start_at < $3 AND end_at > $2
FOR UPDATE;`
	if err = tx.SelectContext(ctx, &overlapping, lockQuery, r.CoachID, r.StartTime, r.EndTime); err != nil {
		done(true)
		return models.Reservation{}, fmt.Errorf("err checking conflicts: %w", err)
	}
	if len(overlapping) > 0 {
		done(false)
		return models.Reservation{}, models.ErrSlotTaken
	}

	var created models.Reservation
	insertQuery := `
INSERT INTO reservations (coach_id, student_id, start_at, end_at, session_type, notes, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING *;`
	err = tx.GetContext(ctx, &created, insertQuery,
		r.CoachID, r.StudentID, r.StartTime, r.EndTime, r.SessionType, r.Notes, r.Status)
	if err != nil {
		done(true)
		if isOverlapViolation(err) {
			return models.Reservation{}, models.ErrSlotTaken
		}
		return models.Reservation{}, fmt.Errorf("err creating reservation: %w", err)
	}
	if err = tx.Commit(); err != nil {
		done(true)
		if isOverlapViolation(err) {
			return models.Reservation{}, models.ErrSlotTaken
		}
		return models.Reservation{}, fmt.Errorf("err committing reservation: %w", err)
	}
	done(false)
	return created, nil
}

func isOverlapViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgExclusionViolation || pgErr.Code == pgUniqueViolation
}

func (s *Store) GetReservation(ctx context.Context, id int) (models.Reservation, error) {
	done := observe("GetReservation")
	var r models.Reservation
	query := `
SELECT * FROM reservations
WHERE id = $1;`
	var err error
	for i := 0; i < retries; i++ {
		err = s.db.GetContext(ctx, &r, query, id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			done(true)
			return models.Reservation{}, ErrReservationNotFound
		case err != nil:
			continue
		}
		done(false)
		return r, nil
	}
	done(true)
	return models.Reservation{}, fmt.Errorf("err getting reservation %d: %w", id, err)
}

// ActiveReservationsBetween returns the coach's pending and confirmed
// reservations overlapping [from, to).
func (s *Store) ActiveReservationsBetween(ctx context.Context, coachID int, from, to time.Time) ([]models.Reservation, error) {
	done := observe("ActiveReservationsBetween")
	var rr []models.Reservation
	query := `
SELECT * FROM reservations
WHERE coach_id = $1
  AND status IN ('pending', 'confirmed')
  AND start_at < $3 AND end_at > $2
ORDER BY start_at;`
	var err error
	for i := 0; i < retries; i++ {
		if err = s.db.SelectContext(ctx, &rr, query, coachID, from, to); err != nil {
			continue
		}
		done(false)
		return rr, nil
	}
	done(true)
	return nil, fmt.Errorf("err listing reservations for coach %d: %w", coachID, err)
}

func (s *Store) ReservationsByCoach(ctx context.Context, coachID int) ([]models.Reservation, error) {
	return s.reservationsBy(ctx, "ReservationsByCoach", `coach_id`, coachID)
}

func (s *Store) ReservationsByStudent(ctx context.Context, studentID int) ([]models.Reservation, error) {
	return s.reservationsBy(ctx, "ReservationsByStudent", `student_id`, studentID)
}

func (s *Store) reservationsBy(ctx context.Context, method, column string, id int) ([]models.Reservation, error) {
	done := observe(method)
	var rr []models.Reservation
	query := fmt.Sprintf(`
SELECT * FROM reservations
WHERE %s = $1
ORDER BY start_at DESC;`, column)
	var err error
	for i := 0; i < retries; i++ {
		if err = s.db.SelectContext(ctx, &rr, query, id); err != nil {
			continue
		}
		done(false)
		return rr, nil
	}
	done(true)
	return nil, fmt.Errorf("err listing reservations: %w", err)
}

// SetReservationState updates status and external event id together:
// external_event_id may be set only while the reservation is confirmed, so the
// two columns always change in one write.
func (s *Store) SetReservationState(ctx context.Context, id int, status models.ReservationStatus, externalEventID *string) (models.Reservation, error) {
	done := observe("SetReservationState")
	var updated models.Reservation
	query := `
UPDATE reservations
SET status = $2,
    external_event_id = $3,
    updated_at = now()
WHERE id = $1
RETURNING *;`
	err := s.db.GetContext(ctx, &updated, query, id, status, externalEventID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		done(true)
		return models.Reservation{}, ErrReservationNotFound
	case err != nil:
		done(true)
		return models.Reservation{}, fmt.Errorf("err updating reservation %d: %w", id, err)
	}
	done(false)
	return updated, nil
}

func (s *Store) SetReservationTime(ctx context.Context, id int, start, end time.Time) (models.Reservation, error) {
	done := observe("SetReservationTime")
	var updated models.Reservation
	query := `
UPDATE reservations
SET start_at = $2,
    end_at = $3,
    updated_at = now()
WHERE id = $1
RETURNING *;`
	err := s.db.GetContext(ctx, &updated, query, id, start, end)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		done(true)
		return models.Reservation{}, ErrReservationNotFound
	case err != nil:
		done(true)
		if isOverlapViolation(err) {
			return models.Reservation{}, models.ErrSlotTaken
		}
		return models.Reservation{}, fmt.Errorf("err moving reservation %d: %w", id, err)
	}
	done(false)
	return updated, nil
}

// UpcomingReminders lists confirmed reservations starting within the horizon
// whose students have not been reminded yet.
func (s *Store) UpcomingReminders(ctx context.Context, horizon time.Duration) ([]models.ReservationReminder, error) {
	done := observe("UpcomingReminders")
	var rr []models.ReservationReminder
	query := `
SELECT r.id AS reservation_id, u.email AS student_email, r.start_at
FROM reservations r
JOIN users u ON u.id = r.student_id
WHERE r.status = 'confirmed'
  AND NOT r.reminder_sent
  AND r.start_at BETWEEN now() AND now() + $1::interval
ORDER BY r.start_at;`
	interval := fmt.Sprintf("%d seconds", int(horizon.Seconds()))
	var err error
	for i := 0; i < retries; i++ {
		if err = s.db.SelectContext(ctx, &rr, query, interval); err != nil {
			continue
		}
		done(false)
		return rr, nil
	}
	done(true)
	return nil, fmt.Errorf("err listing upcoming reminders: %w", err)
}

func (s *Store) MarkReminded(ctx context.Context, reservationID int) error {
	done := observe("MarkReminded")
	_, err := s.db.ExecContext(ctx, `UPDATE reservations SET reminder_sent = TRUE WHERE id = $1`, reservationID)
	if err != nil {
		done(true)
		return fmt.Errorf("err marking reservation %d reminded: %w", reservationID, err)
	}
	done(false)
	return nil
}
