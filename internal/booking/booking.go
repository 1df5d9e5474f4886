package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"consultorio/internal/database"
	"consultorio/internal/events"
	"consultorio/internal/lock"
	"consultorio/internal/metrics"
	"consultorio/internal/model"
	"consultorio/internal/slots"
)

// Rejection kinds. Policy rejections describe why the request cannot be
// honored; anything else that goes wrong is a transient storage failure
// and is reported as such, never disguised as a policy answer.
var (
	ErrInvalidRequest      = errors.New("invalid booking request")
	ErrServiceNotFound     = errors.New("service not found")
	ErrPractitionerUnknown = errors.New("practitioner not found")
	ErrServiceMismatch     = errors.New("service belongs to another practitioner")
	ErrDayUnavailable      = errors.New("practitioner does not attend on that date")
	ErrSlotTaken           = errors.New("slot already taken")
	ErrNotFound            = errors.New("appointment not found")

	// ErrStorageUnavailable marks transient storage failures. Callers may
	// retry; it never means "no availability".
	ErrStorageUnavailable = errors.New("storage unavailable")
)

func storageFailure(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrStorageUnavailable, err))
}

// Repository is the slice of storage the booking service needs.
// GetDaySnapshot must return one consistent view of the schedule,
// blocked set and day ledger; the slot computation never mixes reads
// from different moments.
type Repository interface {
	GetPractitioner(ctx context.Context, id model.PractitionerID) (*model.Practitioner, error)
	GetDaySnapshot(ctx context.Context, practitioner model.PractitionerID, date string) (*database.DaySnapshot, error)
	GetService(ctx context.Context, id string) (*model.Service, error)
	ListDayAppointments(ctx context.Context, practitioner model.PractitionerID, date string) ([]model.Appointment, error)
	CreateAppointmentChecked(ctx context.Context, a *model.Appointment) error
	UpdateAppointmentStatus(ctx context.Context, id string, status model.AppointmentStatus) (*model.Appointment, error)
	GetAppointment(ctx context.Context, id string) (*model.Appointment, error)
	FindConfirmedOverlaps(ctx context.Context, practitioner model.PractitionerID, date string) ([][2]model.Appointment, error)
	InsertEvent(ctx context.Context, eventType, appointmentID string, payload []byte) error
}

// Request describes one booking attempt.
type Request struct {
	ServiceID    string
	Practitioner model.PractitionerID
	Date         string
	Start        string
	PatientName  string
	PatientEmail string
	PatientPhone string
	Notes        string
}

// Service admits bookings into the ledger and answers availability
// queries. Admission for one practitioner-day is serialized by the
// locker and backed by an atomic check inside the storage transaction.
type Service struct {
	repo        Repository
	locker      lock.Locker
	bus         *events.Bus
	logger      *zerolog.Logger
	horizonDays int
	stepMinutes int
}

// NewService wires the admission controller.
func NewService(repo Repository, locker lock.Locker, bus *events.Bus, logger *zerolog.Logger, horizonDays, stepMinutes int) *Service {
	if horizonDays <= 0 {
		horizonDays = 30
	}
	if stepMinutes <= 0 {
		stepMinutes = model.DefaultSlotMinutes
	}
	return &Service{
		repo:        repo,
		locker:      locker,
		bus:         bus,
		logger:      logger,
		horizonDays: horizonDays,
		stepMinutes: stepMinutes,
	}
}

// AvailableDates lists bookable dates after from, within the horizon.
func (s *Service) AvailableDates(ctx context.Context, practitioner model.PractitionerID, from time.Time) ([]string, error) {
	if _, err := s.activePractitioner(ctx, practitioner); err != nil {
		return nil, err
	}

	snap, err := s.repo.GetDaySnapshot(ctx, practitioner, "")
	if err != nil {
		return nil, storageFailure("load schedule snapshot", err)
	}

	return slots.AvailableDates(snap.Schedule, snap.BlockedDates, from, s.horizonDays), nil
}

// AvailableSlots lists open slots for one service on one date. A date
// the practitioner does not attend, or a service of another
// practitioner, yields an empty list, not an error.
func (s *Service) AvailableSlots(ctx context.Context, practitioner model.PractitionerID, serviceID, date string) ([]slots.Slot, error) {
	if _, err := s.activePractitioner(ctx, practitioner); err != nil {
		return nil, err
	}
	svc, err := s.repo.GetService(ctx, serviceID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrServiceNotFound
		}
		return nil, storageFailure("load service", err)
	}

	open, _, err := s.slotsForDay(ctx, practitioner, *svc, date)
	return open, err
}

func (s *Service) slotsForDay(ctx context.Context, practitioner model.PractitionerID, svc model.Service, date string) ([]slots.Slot, *database.DaySnapshot, error) {
	snap, err := s.repo.GetDaySnapshot(ctx, practitioner, date)
	if err != nil {
		return nil, nil, storageFailure("load day snapshot", err)
	}

	open := slots.AvailableSlots(practitioner, snap.Schedule, snap.BlockedDates, date, svc, snap.Appointments, s.stepMinutes)
	return open, snap, nil
}

// Book admits one appointment. The requested slot is re-validated under
// the practitioner-day lock against the current ledger; a second
// conflict check runs inside the insert transaction, so two concurrent
// requests for the same interval can never both land.
func (s *Service) Book(ctx context.Context, req Request) (*model.Appointment, error) {
	if err := validateRequest(req); err != nil {
		metrics.IncAppointmentRejected("invalid_request")
		return nil, err
	}

	svc, err := s.repo.GetService(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			metrics.IncAppointmentRejected("service_not_found")
			return nil, ErrServiceNotFound
		}
		return nil, storageFailure("load service", err)
	}
	if !svc.IsActive {
		metrics.IncAppointmentRejected("service_not_found")
		return nil, ErrServiceNotFound
	}

	practitioner := req.Practitioner
	if practitioner == "" {
		practitioner = svc.Practitioner
	}
	if practitioner != svc.Practitioner {
		metrics.IncAppointmentRejected("service_mismatch")
		return nil, ErrServiceMismatch
	}
	if _, err := s.activePractitioner(ctx, practitioner); err != nil {
		metrics.IncAppointmentRejected("practitioner_unknown")
		return nil, err
	}

	start, err := model.MinutesOfDay(req.Start)
	if err != nil {
		metrics.IncAppointmentRejected("invalid_request")
		return nil, fmt.Errorf("%w: start time %q", ErrInvalidRequest, req.Start)
	}
	// Canonical "HH:MM" so "9:30" matches the generated slot starts.
	req.Start = model.FormatMinutes(start)

	appointment := &model.Appointment{
		ID:           uuid.NewString(),
		ServiceID:    svc.ID,
		Practitioner: practitioner,
		PatientName:  req.PatientName,
		PatientEmail: req.PatientEmail,
		PatientPhone: req.PatientPhone,
		Date:         req.Date,
		Start:        req.Start,
		End:          model.FormatMinutes(start + svc.DurationMinutes),
		Status:       model.StatusConfirmed,
		Notes:        req.Notes,
	}

	err = s.locker.WithDayLock(ctx, practitioner, req.Date, func(ctx context.Context) error {
		open, snap, err := s.slotsForDay(ctx, practitioner, *svc, req.Date)
		if err != nil {
			return err
		}
		if len(open) == 0 {
			if dayClosed(snap, req.Date) {
				metrics.IncAppointmentRejected("day_unavailable")
				return ErrDayUnavailable
			}
			metrics.IncAppointmentRejected("slot_taken")
			return ErrSlotTaken
		}

		found := false
		for _, slot := range open {
			if slot.Start == req.Start {
				found = true
				break
			}
		}
		if !found {
			metrics.IncAppointmentRejected("slot_taken")
			return ErrSlotTaken
		}

		if err := s.repo.CreateAppointmentChecked(ctx, appointment); err != nil {
			if errors.Is(err, database.ErrSlotTaken) {
				metrics.IncAppointmentRejected("slot_taken")
				return ErrSlotTaken
			}
			return storageFailure("store appointment", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncAppointmentCreated()
	s.publish(ctx, events.TypeAppointmentCreated, appointment)

	s.logger.Info().
		Str("appointment_id", appointment.ID).
		Str("practitioner", string(practitioner)).
		Str("date", appointment.Date).
		Str("start", appointment.Start).
		Msg("appointment booked")

	return appointment, nil
}

// SetStatus sets an appointment's status unconditionally. Reactivating
// a cancelled appointment does not re-check collisions; if the change
// leaves two confirmed appointments overlapping, the pair is flagged
// loudly but the change stands.
func (s *Service) SetStatus(ctx context.Context, id string, status model.AppointmentStatus) (*model.Appointment, error) {
	if status != model.StatusConfirmed && status != model.StatusCancelled {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidRequest, status)
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storageFailure("update status", err)
	}

	metrics.IncStatusChanged(string(status))
	s.publish(ctx, events.TypeAppointmentStatusChanged, updated)

	if status == model.StatusConfirmed {
		s.flagOverlaps(ctx, updated)
	}

	return updated, nil
}

// GetAppointment looks up one ledger entry.
func (s *Service) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// DayAppointments returns the full ledger for one practitioner-day.
func (s *Service) DayAppointments(ctx context.Context, practitioner model.PractitionerID, date string) ([]model.Appointment, error) {
	if _, err := model.ParseDate(date); err != nil {
		return nil, fmt.Errorf("%w: date %q", ErrInvalidRequest, date)
	}
	if _, err := s.activePractitioner(ctx, practitioner); err != nil {
		return nil, err
	}
	return s.repo.ListDayAppointments(ctx, practitioner, date)
}

func (s *Service) activePractitioner(ctx context.Context, id model.PractitionerID) (*model.Practitioner, error) {
	if id == "" {
		return nil, ErrPractitionerUnknown
	}
	p, err := s.repo.GetPractitioner(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrPractitionerUnknown
		}
		return nil, storageFailure("load practitioner", err)
	}
	if !p.IsActive {
		return nil, ErrPractitionerUnknown
	}
	return p, nil
}

// dayClosed reports whether the date is outside the weekly template or
// inside the blocked set, as opposed to merely fully booked. It reads
// from the same snapshot the slot computation used.
func dayClosed(snap *database.DaySnapshot, date string) bool {
	day, err := model.ParseDate(date)
	if err != nil {
		return true
	}
	if !snap.Schedule.RuleFor(day.Weekday()).Enabled {
		return true
	}
	_, isBlocked := snap.BlockedDates[date]
	return isBlocked
}

func (s *Service) flagOverlaps(ctx context.Context, a *model.Appointment) {
	pairs, err := s.repo.FindConfirmedOverlaps(ctx, a.Practitioner, a.Date)
	if err != nil {
		s.logger.Error().Err(err).
			Str("practitioner", string(a.Practitioner)).
			Str("date", a.Date).
			Msg("overlap scan failed")
		return
	}
	for _, pair := range pairs {
		metrics.IncOverlapDetected()
		s.logger.Error().
			Str("practitioner", string(a.Practitioner)).
			Str("date", a.Date).
			Str("first", pair[0].ID).
			Str("second", pair[1].ID).
			Msg("confirmed appointments overlap after reactivation")
		s.publish(ctx, events.TypeOverlapDetected, &pair[1])
	}
}

func (s *Service) publish(ctx context.Context, eventType string, a *model.Appointment) {
	e := events.NewAppointmentEvent(eventType, a)
	if err := s.repo.InsertEvent(ctx, e.Type, e.AppointmentID, e.Payload); err != nil {
		s.logger.Error().Err(err).Str("event", e.Type).Msg("persist event")
	}
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

func validateRequest(req Request) error {
	if req.ServiceID == "" {
		return fmt.Errorf("%w: service id required", ErrInvalidRequest)
	}
	if req.PatientName == "" {
		return fmt.Errorf("%w: patient name required", ErrInvalidRequest)
	}
	if _, err := model.ParseDate(req.Date); err != nil {
		return fmt.Errorf("%w: date %q", ErrInvalidRequest, req.Date)
	}
	if req.Start == "" {
		return fmt.Errorf("%w: start time required", ErrInvalidRequest)
	}
	return nil
}
