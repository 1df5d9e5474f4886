package model

import (
	"fmt"
	"time"
)

// Service is a bookable treatment with a fixed duration, owned by exactly
// one practitioner. The duration is frozen into an appointment's end time
// at booking; later catalog edits never move existing appointments.
type Service struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	DurationMinutes int            `json:"duration_minutes"`
	PriceCents      int64          `json:"price_cents"`
	Practitioner    PractitionerID `json:"practitioner"`
	Description     string         `json:"description,omitempty"`
	IsActive        bool           `json:"is_active"`
	SortOrder       int            `json:"sort_order"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// Validate rejects catalog entries that would break slot arithmetic.
func (s Service) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("service id is required")
	}
	if s.DurationMinutes <= 0 {
		return fmt.Errorf("service %s: duration must be positive, got %d", s.ID, s.DurationMinutes)
	}
	if s.Practitioner == "" {
		return fmt.Errorf("service %s: practitioner is required", s.ID)
	}
	return nil
}
