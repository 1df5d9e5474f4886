package model

import (
	"fmt"
	"time"
)

// PractitionerID identifies a practitioner. Schedules, blocked dates and
// services are all keyed by it rather than by display name.
type PractitionerID string

// Practitioner is a bookable calendar resource (a doctor).
type Practitioner struct {
	ID        PractitionerID `json:"id"`
	Name      string         `json:"name"`
	IsActive  bool           `json:"is_active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// WeekdayRule is the recurring open/closed window for one day of the week.
type WeekdayRule struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"` // "09:00"
	End     string `json:"end"`   // "18:00"
}

// Validate checks that an enabled rule has a well-formed, non-empty window.
func (r WeekdayRule) Validate() error {
	if !r.Enabled {
		return nil
	}
	start, err := MinutesOfDay(r.Start)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	end, err := MinutesOfDay(r.End)
	if err != nil {
		return fmt.Errorf("end: %w", err)
	}
	if start >= end {
		return fmt.Errorf("start %s must be before end %s", r.Start, r.End)
	}
	return nil
}

// WeekSchedule maps Go weekdays (Sunday = 0) to their rule.
// A missing weekday counts as disabled.
type WeekSchedule map[time.Weekday]WeekdayRule

// RuleFor returns the rule for a weekday; absent days are disabled.
func (s WeekSchedule) RuleFor(day time.Weekday) WeekdayRule {
	if rule, ok := s[day]; ok {
		return rule
	}
	return WeekdayRule{Enabled: false}
}

// Validate checks every enabled rule in the schedule.
func (s WeekSchedule) Validate() error {
	for day, rule := range s {
		if day < time.Sunday || day > time.Saturday {
			return fmt.Errorf("invalid weekday %d", day)
		}
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("%s: %w", day, err)
		}
	}
	return nil
}
