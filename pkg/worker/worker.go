package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/peakform/schedule/pkg/models"
)

const pollInterval = time.Minute

type Store interface {
	UpcomingReminders(ctx context.Context, horizon time.Duration) ([]models.ReservationReminder, error)
	MarkReminded(ctx context.Context, reservationID int) error
}

type Notifier interface {
	Notify(ctx context.Context, recipient, template string, data map[string]string) error
}

// Worker reminds students about confirmed sessions starting within the horizon.
type Worker struct {
	log      *logrus.Entry
	store    Store
	notifier Notifier
	horizon  time.Duration
}

func New(log *logrus.Logger, store Store, notifier Notifier, horizon time.Duration) *Worker {
	return &Worker{
		log:      log.WithField("component", "worker"),
		store:    store,
		notifier: notifier,
		horizon:  horizon,
	}
}

// Run polls until the context is cancelled. Delivery failures are logged and
// retried on the next tick since the reservation stays unmarked.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if err := w.remindOnce(ctx); err != nil {
			return fmt.Errorf("reminder pass faild: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Worker) remindOnce(ctx context.Context) error {
	reminders, err := w.store.UpcomingReminders(ctx, w.horizon)
	if err != nil {
		return err
	}
	for _, r := range reminders {
		data := map[string]string{"slot": r.StartAt.Format(time.RFC3339)}
		if err = w.notifier.Notify(ctx, r.StudentEmail, "reservation_reminder", data); err != nil {
			w.log.Warnf("err reminding %s: %v", r.StudentEmail, err)
			continue
		}
		if err = w.store.MarkReminded(ctx, r.ReservationID); err != nil {
			return err
		}
	}
	return nil
}
