// Package slots enumerates bookable appointment start times. It is a pure
// read path: every function computes from the snapshot it is handed and
// performs no I/O, so callers may invoke it concurrently and re-run it
// after state changes.
package slots

import (
	"time"

	"consultorio/internal/model"
)

// Slot is one bookable candidate.
type Slot struct {
	Start string `json:"start"` // "10:00"
	End   string `json:"end"`   // "10:30"
}

// AvailableDates returns the dates strictly after `from` within the horizon
// whose weekday is enabled for the practitioner and which are not in the
// blocked set. Dates are "YYYY-MM-DD", ascending.
func AvailableDates(schedule model.WeekSchedule, blocked map[string]struct{}, from time.Time, horizonDays int) []string {
	if horizonDays <= 0 {
		horizonDays = 30
	}

	dates := make([]string, 0, horizonDays)
	for i := 1; i <= horizonDays; i++ {
		d := from.AddDate(0, 0, i)
		if !schedule.RuleFor(d.Weekday()).Enabled {
			continue
		}
		key := d.Format(model.DateFormat)
		if _, isBlocked := blocked[key]; isBlocked {
			continue
		}
		dates = append(dates, key)
	}
	return dates
}

// AvailableSlots enumerates unblocked start times for one practitioner,
// date and service. Candidates start at the weekday rule's opening time and
// advance by stepMinutes; a candidate survives only if its full service
// duration fits before closing and collides with no confirmed appointment.
//
// A disabled weekday, a blocked date, or a service owned by another
// practitioner yields an empty result, never an error: absence of
// availability is a valid answer.
func AvailableSlots(
	practitioner model.PractitionerID,
	schedule model.WeekSchedule,
	blocked map[string]struct{},
	date string,
	svc model.Service,
	appointments []model.Appointment,
	stepMinutes int,
) []Slot {
	if stepMinutes <= 0 {
		stepMinutes = model.DefaultSlotMinutes
	}
	if svc.Practitioner != practitioner || svc.DurationMinutes <= 0 {
		return nil
	}
	if _, isBlocked := blocked[date]; isBlocked {
		return nil
	}

	day, err := model.ParseDate(date)
	if err != nil {
		return nil
	}
	rule := schedule.RuleFor(day.Weekday())
	if !rule.Enabled {
		return nil
	}

	open, err := model.MinutesOfDay(rule.Start)
	if err != nil {
		return nil
	}
	closing, err := model.MinutesOfDay(rule.End)
	if err != nil {
		return nil
	}

	duration := svc.DurationMinutes

	var result []Slot
	for t := open; t+duration <= closing; t += stepMinutes {
		end := t + duration

		colliding := false
		for i := range appointments {
			a := &appointments[i]
			if a.Practitioner != "" && a.Practitioner != practitioner {
				continue
			}
			if a.Date != date {
				continue
			}
			if a.Blocks(t, end) {
				colliding = true
				break
			}
		}
		if colliding {
			continue
		}

		result = append(result, Slot{
			Start: model.FormatMinutes(t),
			End:   model.FormatMinutes(end),
		})
	}
	return result
}

// StartTimes flattens slots to their start times.
func StartTimes(in []Slot) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = s.Start
	}
	return out
}
