package model

import "time"

// AppointmentStatus is the lifecycle state of an appointment.
// Appointments are never deleted; cancellation and reactivation both go
// through status updates.
type AppointmentStatus string

const (
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// DefaultSlotMinutes is the fixed slot granularity. Candidate starts are
// calendar-aligned to this step regardless of service duration, and an
// appointment with a missing or malformed end time is assumed to occupy
// exactly one step.
const DefaultSlotMinutes = 30

// Appointment is one committed ledger entry. End is computed once from the
// service duration at admission time and stored; it is never recomputed.
type Appointment struct {
	ID           string            `json:"id"`
	ServiceID    string            `json:"service_id"`
	Practitioner PractitionerID    `json:"practitioner"`
	PatientName  string            `json:"patient_name"`
	PatientEmail string            `json:"patient_email"`
	PatientPhone string            `json:"patient_phone"`
	Date         string            `json:"date"`  // "2026-01-15"
	Start        string            `json:"start"` // "10:00"
	End          string            `json:"end"`   // "10:30"
	Status       AppointmentStatus `json:"status"`
	Notes        string            `json:"notes,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// StartMinutes returns the start as minutes since midnight, or -1 if the
// stored value is malformed.
func (a *Appointment) StartMinutes() int {
	m, err := MinutesOfDay(a.Start)
	if err != nil {
		return -1
	}
	return m
}

// EndMinutes returns the end as minutes since midnight. A missing or
// malformed end falls back to one slot step after the start, so a damaged
// row still blocks its own slot instead of poisoning the whole day.
func (a *Appointment) EndMinutes() int {
	m, err := MinutesOfDay(a.End)
	if err != nil {
		return a.StartMinutes() + DefaultSlotMinutes
	}
	return m
}

// Blocks reports whether this appointment obstructs the half-open candidate
// interval [start, end) in minutes since midnight. Touching endpoints do
// not overlap: an appointment ending at 10:00 never blocks a 10:00 start.
func (a *Appointment) Blocks(start, end int) bool {
	if a.Status == StatusCancelled {
		return false
	}
	aStart := a.StartMinutes()
	if aStart < 0 {
		return false
	}
	return start < a.EndMinutes() && end > aStart
}

// OverlapsWith reports whether two appointments occupy intersecting
// half-open intervals on the same date.
func (a *Appointment) OverlapsWith(other *Appointment) bool {
	if a.Status == StatusCancelled {
		return false
	}
	if a.Date != other.Date || a.Practitioner != other.Practitioner {
		return false
	}
	return other.Blocks(a.StartMinutes(), a.EndMinutes())
}
