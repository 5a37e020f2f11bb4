package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"

	"github.com/peakform/schedule/pkg/metrics"
	"github.com/peakform/schedule/pkg/models"
)

//go:embed migrations
var migrations embed.FS

const retries = 3

var (
	ErrUserNotFound        = fmt.Errorf("user not found")
	ErrReservationNotFound = fmt.Errorf("reservation not found")
)

type Store struct {
	log *logrus.Entry
	db  *sqlx.DB
}

func New(ctx context.Context, log *logrus.Logger, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &Store{
		log: log.WithField("component", "pgstore"),
		db:  db,
	}, nil
}

// NewWithDB wraps an existing connection, used by tests.
func NewWithDB(log *logrus.Logger, db *sqlx.DB) *Store {
	return &Store{
		log: log.WithField("component", "pgstore"),
		db:  db,
	}
}

func (s *Store) Migrate(direction migrate.MigrationDirection) error {
	assetDir := func() func(string) ([]string, error) {
		return func(path string) ([]string, error) {
			dirEntry, er := migrations.ReadDir(path)
			if er != nil {
				return nil, er
			}
			entries := make([]string, 0)
			for _, e := range dirEntry {
				entries = append(entries, e.Name())
			}
			return entries, nil
		}
	}()
	asset := migrate.AssetMigrationSource{
		Asset:    migrations.ReadFile,
		AssetDir: assetDir,
		Dir:      "migrations",
	}
	_, err := migrate.Exec(s.db.DB, "postgres", asset, direction)
	return err
}

func observe(method string) func(failed bool) {
	start := time.Now()
	return func(failed bool) {
		metrics.PgDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		if failed {
			metrics.PgErrCount.WithLabelValues(method).Inc()
		}
	}
}

func (s *Store) GetUser(ctx context.Context, id int) (models.User, error) {
	done := observe("GetUser")
	var user models.User
	query := `
SELECT * FROM users
WHERE id = $1 AND NOT deleted;`
	var err error
	for i := 0; i < retries; i++ {
		err = s.db.GetContext(ctx, &user, query, id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			done(true)
			return models.User{}, ErrUserNotFound
		case err != nil:
			continue
		}
		done(false)
		return user, nil
	}
	done(true)
	return models.User{}, fmt.Errorf("err getting user %d: %w", id, err)
}

// UpdateTokens persists a rotated OAuth credential. Called from the token
// source before the request that triggered the refresh returns.
func (s *Store) UpdateTokens(ctx context.Context, userID int, access, refresh string, expiry time.Time) error {
	done := observe("UpdateTokens")
	query := `
UPDATE users
SET access_token = $2,
    refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
    token_expiry = $4,
    updated_at = now()
WHERE id = $1;`
	res, err := s.db.ExecContext(ctx, query, userID, access, refresh, expiry)
	if err != nil {
		done(true)
		return fmt.Errorf("err updating tokens for user %d: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		done(true)
		return ErrUserNotFound
	}
	done(false)
	return nil
}

func (s *Store) SetCalendarIDs(ctx context.Context, userID int, primary, dedicated string) error {
	done := observe("SetCalendarIDs")
	query := `
UPDATE users
SET calendar_id = COALESCE(NULLIF($2, ''), calendar_id),
    dedicated_calendar_id = COALESCE(NULLIF($3, ''), dedicated_calendar_id),
    updated_at = now()
WHERE id = $1;`
	res, err := s.db.ExecContext(ctx, query, userID, primary, dedicated)
	if err != nil {
		done(true)
		return fmt.Errorf("err setting calendar ids for user %d: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		done(true)
		return ErrUserNotFound
	}
	done(false)
	return nil
}

func (s *Store) GetAvailability(ctx context.Context, coachID int) ([]models.CoachAvailability, error) {
	done := observe("GetAvailability")
	var rows []models.CoachAvailability
	query := `
SELECT * FROM coach_availability
WHERE coach_id = $1
ORDER BY day_of_week, start_time;`
	var err error
	for i := 0; i < retries; i++ {
		if err = s.db.SelectContext(ctx, &rows, query, coachID); err != nil {
			continue
		}
		done(false)
		return rows, nil
	}
	done(true)
	return nil, fmt.Errorf("err getting availability for coach %d: %w", coachID, err)
}

// ReplaceAvailability swaps the coach's full availability set and slot duration
// in one transaction. Concurrent edits by the same coach are last-write-wins.
func (s *Store) ReplaceAvailability(ctx context.Context, coachID int, windows []models.AvailabilityWindow, slotDuration int) ([]models.CoachAvailability, error) {
	done := observe("ReplaceAvailability")
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		done(true)
		return nil, fmt.Errorf("err starting tx: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Warnf("err rolling back availability tx: %v", err)
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE users SET slot_duration = $2, updated_at = now() WHERE id = $1`, coachID, slotDuration); err != nil {
		done(true)
		return nil, fmt.Errorf("err updating slot duration: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM coach_availability WHERE coach_id = $1`, coachID); err != nil {
		done(true)
		return nil, fmt.Errorf("err clearing availability: %w", err)
	}
	saved := make([]models.CoachAvailability, 0, len(windows))
	query := `
INSERT INTO coach_availability (coach_id, day_of_week, start_time, end_time, is_active)
VALUES ($1, $2, $3, $4, $5)
RETURNING *;`
	for _, w := range windows {
		var row models.CoachAvailability
		if err = tx.GetContext(ctx, &row, query, coachID, w.DayOfWeek, w.StartTime, w.EndTime, w.IsActive); err != nil {
			done(true)
			return nil, fmt.Errorf("err inserting availability: %w", err)
		}
		saved = append(saved, row)
	}
	if err = tx.Commit(); err != nil {
		done(true)
		return nil, fmt.Errorf("err committing availability: %w", err)
	}
	done(false)
	return saved, nil
}
