// Package scheduler expands recurring coach availability into bookable slots
// and strips candidates that collide with reservations or busy intervals.
// All functions are pure; callers own data access.
package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/peakform/schedule/pkg/models"
)

const wallClockLayout = "15:04"

// Grid expands the active availability windows matching date's weekday into an
// ordered, non-overlapping sequence of slots of slotDuration each. Slots step
// through a window until the remainder no longer fits. No active windows for
// the weekday yields an empty sequence, which is a valid, common case.
func Grid(windows []models.CoachAvailability, slotDuration time.Duration, date time.Time, loc *time.Location) ([]models.Slot, error) {
	if slotDuration <= 0 {
		return nil, fmt.Errorf("%w: slot duration must be positive", models.ErrValidation)
	}
	day := date.In(loc)
	weekday := int(day.Weekday())

	matched := make([]models.CoachAvailability, 0, len(windows))
	for _, w := range windows {
		if w.IsActive && w.DayOfWeek == weekday {
			matched = append(matched, w)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].StartTime < matched[j].StartTime })

	slots := make([]models.Slot, 0)
	for _, w := range matched {
		start, err := atWallClock(day, w.StartTime, loc)
		if err != nil {
			return nil, err
		}
		end, err := atWallClock(day, w.EndTime, loc)
		if err != nil {
			return nil, err
		}
		for cur := start; !cur.Add(slotDuration).After(end); cur = cur.Add(slotDuration) {
			slots = append(slots, models.Slot{Start: cur, End: cur.Add(slotDuration)})
		}
	}
	return slots, nil
}

// FilterConflicts drops every slot overlapping a reservation that still claims
// the coach's time, or an externally reported busy interval. Overlap is
// half-open: slots touching a boundary do not conflict.
func FilterConflicts(slots []models.Slot, reservations []models.Reservation, busy []models.BusyInterval) []models.Slot {
	free := make([]models.Slot, 0, len(slots))
	for _, s := range slots {
		if conflicts(s, reservations, busy) {
			continue
		}
		free = append(free, s)
	}
	return free
}

// Overlaps implements half-open interval intersection.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

func conflicts(s models.Slot, reservations []models.Reservation, busy []models.BusyInterval) bool {
	for _, r := range reservations {
		if !r.Status.Active() {
			continue
		}
		if Overlaps(s.Start, s.End, r.StartTime, r.EndTime) {
			return true
		}
	}
	for _, b := range busy {
		if Overlaps(s.Start, s.End, b.Start, b.End) {
			return true
		}
	}
	return false
}

func atWallClock(day time.Time, clock string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(wallClockLayout, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad time %q", models.ErrValidation, clock)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
}
