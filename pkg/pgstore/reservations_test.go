package pgstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peakform/schedule/pkg/logger"
	"github.com/peakform/schedule/pkg/models"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(logger.New("debug"), sqlx.NewDb(db, "sqlmock")), mock
}

var reservationColumns = []string{
	"id", "coach_id", "student_id", "start_at", "end_at",
	"session_type", "notes", "status", "external_event_id", "reminder_sent",
	"created_at", "updated_at",
}

func reservationRow(mock sqlmock.Sqlmock, r models.Reservation) *sqlmock.Rows {
	return mock.NewRows(reservationColumns).AddRow(
		r.ID, r.CoachID, r.StudentID, r.StartTime, r.EndTime,
		r.SessionType, r.Notes, r.Status, r.ExternalEventID, r.ReminderSent,
		r.CreatedAt, r.UpdatedAt,
	)
}

func sampleReservation() models.Reservation {
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	return models.Reservation{
		ID:          1,
		CoachID:     1,
		StudentID:   2,
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		SessionType: "gym",
		Status:      models.StatusPending,
	}
}

func TestCreateReservation(t *testing.T) {
	store, mock := newMockStore(t)
	want := sampleReservation()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM reservations`).
		WithArgs(want.CoachID, want.StartTime, want.EndTime).
		WillReturnRows(mock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO reservations`).
		WithArgs(want.CoachID, want.StudentID, want.StartTime, want.EndTime,
			want.SessionType, want.Notes, want.Status).
		WillReturnRows(reservationRow(mock, want))
	mock.ExpectCommit()

	created, err := store.CreateReservation(context.Background(), want)
	require.NoError(t, err)
	assert.Equal(t, want.ID, created.ID)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReservationOverlapLocked(t *testing.T) {
	store, mock := newMockStore(t)
	want := sampleReservation()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM reservations`).
		WithArgs(want.CoachID, want.StartTime, want.EndTime).
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectRollback()

	_, err := store.CreateReservation(context.Background(), want)
	assert.ErrorIs(t, err, models.ErrSlotTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReservationExclusionViolation(t *testing.T) {
	store, mock := newMockStore(t)
	want := sampleReservation()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM reservations`).
		WillReturnRows(mock.NewRows([]string{"id"}))
	mock.ExpectQuery(`INSERT INTO reservations`).
		WillReturnError(&pgconn.PgError{Code: "23P01", ConstraintName: "reservations_no_overlap"})
	mock.ExpectRollback()

	_, err := store.CreateReservation(context.Background(), want)
	assert.ErrorIs(t, err, models.ErrSlotTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReservationNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM reservations`).
		WithArgs(42).
		WillReturnRows(mock.NewRows(reservationColumns))

	_, err := store.GetReservation(context.Background(), 42)
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestSetReservationState(t *testing.T) {
	store, mock := newMockStore(t)
	want := sampleReservation()
	want.Status = models.StatusConfirmed
	eventID := "evt-1"
	want.ExternalEventID = &eventID

	mock.ExpectQuery(`UPDATE reservations`).
		WithArgs(want.ID, models.StatusConfirmed, &eventID).
		WillReturnRows(reservationRow(mock, want))

	updated, err := store.SetReservationState(context.Background(), want.ID, models.StatusConfirmed, &eventID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, updated.Status)
	require.NotNil(t, updated.ExternalEventID)
	assert.Equal(t, "evt-1", *updated.ExternalEventID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetReservationTimeOverlap(t *testing.T) {
	store, mock := newMockStore(t)
	want := sampleReservation()

	mock.ExpectQuery(`UPDATE reservations`).
		WillReturnError(&pgconn.PgError{Code: "23P01"})

	_, err := store.SetReservationTime(context.Background(), want.ID, want.StartTime, want.EndTime)
	assert.ErrorIs(t, err, models.ErrSlotTaken)
}

func TestUpcomingReminders(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`JOIN users u ON`).
		WithArgs("3600 seconds").
		WillReturnRows(mock.NewRows([]string{"reservation_id", "student_email", "start_at"}).
			AddRow(1, "student@example.com", start))

	reminders, err := store.UpcomingReminders(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.Equal(t, "student@example.com", reminders[0].StudentEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}
