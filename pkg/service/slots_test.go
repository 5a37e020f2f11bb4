package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peakform/schedule/pkg/models"
)

// 2024-03-04 is a Monday.
var monday = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func mondayWindow(f *fixture, start, end string) {
	f.store.availability[1] = []models.CoachAvailability{
		{ID: 1, CoachID: 1, DayOfWeek: 1, StartTime: start, EndTime: end, IsActive: true},
	}
}

func TestAvailableSlots(t *testing.T) {
	f := newFixture(t)
	mondayWindow(f, "09:00", "12:00")

	slots, err := f.svc.AvailableSlots(context.Background(), 1, monday)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.True(t, slots[0].Start.Equal(monday.Add(9*time.Hour)))
	assert.True(t, slots[2].End.Equal(monday.Add(12*time.Hour)))
}

func TestAvailableSlotsNotACoach(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AvailableSlots(context.Background(), 2, monday)
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestAvailableSlotsFiltersReservations(t *testing.T) {
	f := newFixture(t)
	mondayWindow(f, "09:00", "12:00")
	f.store.reservations[1] = models.Reservation{
		ID: 1, CoachID: 1, StudentID: 2, Status: models.StatusConfirmed,
		StartTime: monday.Add(10 * time.Hour), EndTime: monday.Add(11 * time.Hour),
	}

	slots, err := f.svc.AvailableSlots(context.Background(), 1, monday)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.True(t, slots[0].Start.Equal(monday.Add(9*time.Hour)))
	assert.True(t, slots[1].Start.Equal(monday.Add(11*time.Hour)))
}

func TestAvailableSlotsFiltersExternalBusy(t *testing.T) {
	f := newFixture(t)
	mondayWindow(f, "09:00", "12:00")
	f.calendar.busy = []models.BusyInterval{
		{Start: monday.Add(9 * time.Hour), End: monday.Add(10 * time.Hour)},
	}

	slots, err := f.svc.AvailableSlots(context.Background(), 1, monday)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.True(t, slots[0].Start.Equal(monday.Add(10*time.Hour)))
}

func TestAvailableSlotsSurvivesBusyLookupFailure(t *testing.T) {
	f := newFixture(t)
	mondayWindow(f, "09:00", "12:00")
	f.calendar.busyErr = fmt.Errorf("%w: freebusy timed out", models.ErrCalendar)

	slots, err := f.svc.AvailableSlots(context.Background(), 1, monday)
	require.NoError(t, err)
	assert.Len(t, slots, 3)
}

func TestAvailableSlotsWestOfUTC(t *testing.T) {
	f := newFixture(t)
	u := f.store.users[1]
	u.Timezone = "America/New_York"
	f.store.users[1] = u
	mondayWindow(f, "09:00", "12:00")

	// the handler parses the date parameter into a UTC midnight; the coach's
	// local Monday must still be the requested Monday
	date, err := time.Parse("2006-01-02", "2024-03-04")
	require.NoError(t, err)

	slots, err := f.svc.AvailableSlots(context.Background(), 1, date)
	require.NoError(t, err)
	require.Len(t, slots, 3)

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	assert.True(t, slots[0].Start.Equal(time.Date(2024, 3, 4, 9, 0, 0, 0, loc)))
	assert.True(t, slots[2].End.Equal(time.Date(2024, 3, 4, 12, 0, 0, 0, loc)))
}

func TestAvailableSlotsEmptyDay(t *testing.T) {
	f := newFixture(t)
	mondayWindow(f, "09:00", "12:00")

	tuesday := monday.AddDate(0, 0, 1)
	slots, err := f.svc.AvailableSlots(context.Background(), 1, tuesday)
	require.NoError(t, err)
	assert.Empty(t, slots)
	assert.NotNil(t, slots)
}

func TestReplaceAvailability(t *testing.T) {
	f := newFixture(t)
	windows := []models.AvailabilityWindow{
		{DayOfWeek: 1, StartTime: "09:00", EndTime: "12:00", IsActive: true},
		{DayOfWeek: 3, StartTime: "14:00", EndTime: "18:00", IsActive: true},
	}
	saved, err := f.svc.ReplaceAvailability(context.Background(), 1, windows, 45)
	require.NoError(t, err)
	assert.Len(t, saved, 2)
	assert.Equal(t, 45, f.store.users[1].SlotDuration)
	// dedicated calendar already provisioned, no extra call
	assert.Zero(t, f.calendar.ensureHits)
}

func TestReplaceAvailabilityProvisionsDedicated(t *testing.T) {
	f := newFixture(t)
	u := f.store.users[1]
	u.DedicatedCalendarID = nil
	f.store.users[1] = u

	_, err := f.svc.ReplaceAvailability(context.Background(), 1, nil, 60)
	require.NoError(t, err)
	assert.Equal(t, 1, f.calendar.ensureHits)
}

func TestReplaceAvailabilityByStudent(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ReplaceAvailability(context.Background(), 2, nil, 60)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestReplaceAvailabilityRejectsBadWindows(t *testing.T) {
	for name, w := range map[string]models.AvailabilityWindow{
		"bad day":       {DayOfWeek: 7, StartTime: "09:00", EndTime: "12:00"},
		"bad start":     {DayOfWeek: 1, StartTime: "9am", EndTime: "12:00"},
		"bad end":       {DayOfWeek: 1, StartTime: "09:00", EndTime: "25:00"},
		"empty window":  {DayOfWeek: 1, StartTime: "12:00", EndTime: "12:00"},
		"inverted":      {DayOfWeek: 1, StartTime: "13:00", EndTime: "12:00"},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.ReplaceAvailability(context.Background(), 1, []models.AvailabilityWindow{w}, 60)
			assert.ErrorIs(t, err, models.ErrValidation)
		})
	}
}

func TestReplaceAvailabilityBadSlotDuration(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ReplaceAvailability(context.Background(), 1, nil, 0)
	assert.ErrorIs(t, err, models.ErrValidation)
}
