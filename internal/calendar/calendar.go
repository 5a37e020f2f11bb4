package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/peakform/schedule/pkg/metrics"
	"github.com/peakform/schedule/pkg/models"
)

// Calendar is the adapter over the provider's event and free/busy APIs, acting
// on behalf of one user per call via the Connector's credential lifecycle.
type Calendar struct {
	log       *logrus.Entry
	connector *Connector
	timeout   time.Duration
}

func New(log *logrus.Logger, connector *Connector, timeout time.Duration) *Calendar {
	return &Calendar{
		log:       log.WithField("component", "calendar"),
		connector: connector,
		timeout:   timeout,
	}
}

// CreateEvent inserts ev into the given calendar and returns the remote event
// id. Creation is not idempotent; the caller tracks the returned id to avoid
// duplicates on retry.
func (c *Calendar) CreateEvent(ctx context.Context, userID int, calendarID string, ev models.Event) (string, error) {
	done := observeCalendar("CreateEvent")
	srv, user, err := c.connector.serviceFor(ctx, userID)
	if err != nil {
		done(true)
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	created, err := srv.Events.Insert(calendarID, c.serialize(ev, user)).Context(ctx).Do()
	if err != nil {
		done(true)
		return "", fmt.Errorf("%w: event insert: %v", models.ErrCalendar, err)
	}
	done(false)
	return created.Id, nil
}

func (c *Calendar) UpdateEvent(ctx context.Context, userID int, calendarID, eventID string, ev models.Event) error {
	done := observeCalendar("UpdateEvent")
	srv, user, err := c.connector.serviceFor(ctx, userID)
	if err != nil {
		done(true)
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err = srv.Events.Update(calendarID, eventID, c.serialize(ev, user)).Context(ctx).Do()
	if err != nil {
		done(true)
		if isGone(err) {
			return fmt.Errorf("%w: %s", models.ErrEventGone, eventID)
		}
		return fmt.Errorf("%w: event update: %v", models.ErrCalendar, err)
	}
	done(false)
	return nil
}

func (c *Calendar) DeleteEvent(ctx context.Context, userID int, calendarID, eventID string) error {
	done := observeCalendar("DeleteEvent")
	srv, _, err := c.connector.serviceFor(ctx, userID)
	if err != nil {
		done(true)
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err = srv.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		done(true)
		if isGone(err) {
			return fmt.Errorf("%w: %s", models.ErrEventGone, eventID)
		}
		return fmt.Errorf("%w: event delete: %v", models.ErrCalendar, err)
	}
	done(false)
	return nil
}

// QueryBusy reports the user's occupied intervals across their linked calendars
// within [from, to).
func (c *Calendar) QueryBusy(ctx context.Context, userID int, from, to time.Time) ([]models.BusyInterval, error) {
	done := observeCalendar("QueryBusy")
	srv, user, err := c.connector.serviceFor(ctx, userID)
	if err != nil {
		done(true)
		return nil, err
	}
	items := []*gcal.FreeBusyRequestItem{{Id: "primary"}}
	if user.DedicatedCalendarID != nil && *user.DedicatedCalendarID != "" {
		items = append(items, &gcal.FreeBusyRequestItem{Id: *user.DedicatedCalendarID})
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := srv.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: from.Format(time.RFC3339),
		TimeMax: to.Format(time.RFC3339),
		Items:   items,
	}).Context(ctx).Do()
	if err != nil {
		done(true)
		return nil, fmt.Errorf("%w: freebusy query: %v", models.ErrCalendar, err)
	}
	var busy []models.BusyInterval
	for _, cal := range resp.Calendars {
		for _, period := range cal.Busy {
			interval, err := parseBusy(period)
			if err != nil {
				c.log.Warnf("skipping unparsable busy period: %v", err)
				continue
			}
			busy = append(busy, interval)
		}
	}
	done(false)
	return busy, nil
}

// EnsureDedicated exposes dedicated-calendar provisioning on the adapter surface.
func (c *Calendar) EnsureDedicated(ctx context.Context, userID int) (string, error) {
	return c.connector.EnsureDedicated(ctx, userID)
}

// serialize renders datetimes as local wall-clock plus an explicit IANA zone.
// The provider interprets the timestamp in the declared zone, so a bare UTC
// instant with a non-UTC zone label would shift the event by the zone offset.
func (c *Calendar) serialize(ev models.Event, user models.User) *gcal.Event {
	loc := user.Location()
	return &gcal.Event{
		Summary:     ev.Title,
		Description: ev.Description,
		Start: &gcal.EventDateTime{
			DateTime: ev.Start.In(loc).Format("2006-01-02T15:04:05"),
			TimeZone: user.Timezone,
		},
		End: &gcal.EventDateTime{
			DateTime: ev.End.In(loc).Format("2006-01-02T15:04:05"),
			TimeZone: user.Timezone,
		},
	}
}

func parseBusy(p *gcal.TimePeriod) (models.BusyInterval, error) {
	start, err := time.Parse(time.RFC3339, p.Start)
	if err != nil {
		return models.BusyInterval{}, err
	}
	end, err := time.Parse(time.RFC3339, p.End)
	if err != nil {
		return models.BusyInterval{}, err
	}
	return models.BusyInterval{Start: start, End: end}, nil
}

func isGone(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == 404 || apiErr.Code == 410
}

func observeCalendar(op string) func(failed bool) {
	start := time.Now()
	return func(failed bool) {
		metrics.CalendarDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if failed {
			metrics.CalendarErrCount.WithLabelValues(op).Inc()
		}
	}
}
