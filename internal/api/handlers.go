package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"consultorio/internal/booking"
	"consultorio/internal/model"
	"consultorio/internal/slots"
)

// PractitionerResponse represents a practitioner in API responses.
type PractitionerResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ServiceResponse represents a catalog entry in API responses.
type ServiceResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
	Practitioner    string `json:"practitioner_id"`
	Description     string `json:"description,omitempty"`
}

// BookAppointmentRequest is the request body for POST /api/appointments.
type BookAppointmentRequest struct {
	ServiceID    string `json:"service_id"`
	Practitioner string `json:"practitioner_id,omitempty"`
	Date         string `json:"date"`       // Format: YYYY-MM-DD
	Start        string `json:"start_time"` // Format: HH:MM
	PatientName  string `json:"patient_name"`
	PatientEmail string `json:"patient_email,omitempty"`
	PatientPhone string `json:"patient_phone,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// AppointmentResponse represents a ledger entry in API responses.
type AppointmentResponse struct {
	ID           string `json:"id"`
	ServiceID    string `json:"service_id"`
	Practitioner string `json:"practitioner_id"`
	Date         string `json:"date"`
	Start        string `json:"start_time"`
	End          string `json:"end_time,omitempty"`
	Status       string `json:"status"`
	PatientName  string `json:"patient_name"`
	PatientEmail string `json:"patient_email,omitempty"`
	PatientPhone string `json:"patient_phone,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

func toAppointmentResponse(a *model.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:           a.ID,
		ServiceID:    a.ServiceID,
		Practitioner: string(a.Practitioner),
		Date:         a.Date,
		Start:        a.Start,
		End:          a.End,
		Status:       string(a.Status),
		PatientName:  a.PatientName,
		PatientEmail: a.PatientEmail,
		PatientPhone: a.PatientPhone,
		Notes:        a.Notes,
	}
}

// handleListPractitioners returns active practitioners.
// GET /api/practitioners
func (s *HTTPServer) handleListPractitioners(w http.ResponseWriter, r *http.Request) {
	practitioners, err := s.db.ListPractitioners(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("list practitioners")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}

	out := make([]PractitionerResponse, 0, len(practitioners))
	for _, p := range practitioners {
		out = append(out, PractitionerResponse{ID: string(p.ID), Name: p.Name})
	}
	writeJSON(w, http.StatusOK, map[string]any{"practitioners": out})
}

// handleListServices returns the active catalog.
// GET /api/services?practitioner=dr-deboeck
func (s *HTTPServer) handleListServices(w http.ResponseWriter, r *http.Request) {
	practitioner := model.PractitionerID(r.URL.Query().Get("practitioner"))

	services, err := s.db.ListServices(r.Context(), practitioner)
	if err != nil {
		s.logger.Error().Err(err).Msg("list services")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}

	out := make([]ServiceResponse, 0, len(services))
	for _, svc := range services {
		out = append(out, ServiceResponse{
			ID:              svc.ID,
			Name:            svc.Name,
			DurationMinutes: svc.DurationMinutes,
			PriceCents:      svc.PriceCents,
			Practitioner:    string(svc.Practitioner),
			Description:     svc.Description,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": out})
}

// handleAvailableDates lists bookable dates within the horizon.
// GET /api/availability/dates?practitioner=dr-deboeck&from=YYYY-MM-DD
func (s *HTTPServer) handleAvailableDates(w http.ResponseWriter, r *http.Request) {
	practitioner := model.PractitionerID(r.URL.Query().Get("practitioner"))
	if practitioner == "" {
		writeError(w, http.StatusBadRequest, "practitioner is required")
		return
	}

	from := time.Now()
	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		parsed, err := model.ParseDate(fromStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date; expected YYYY-MM-DD")
			return
		}
		from = parsed
	}

	dates, err := s.booking.AvailableDates(r.Context(), practitioner, from)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	if dates == nil {
		dates = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"dates": dates})
}

// handleAvailableSlots lists open slots for one service on one date.
// GET /api/availability/slots?practitioner=dr-deboeck&service=consulta&date=YYYY-MM-DD
func (s *HTTPServer) handleAvailableSlots(w http.ResponseWriter, r *http.Request) {
	practitioner := model.PractitionerID(r.URL.Query().Get("practitioner"))
	serviceID := r.URL.Query().Get("service")
	date := r.URL.Query().Get("date")

	if practitioner == "" || serviceID == "" {
		writeError(w, http.StatusBadRequest, "practitioner and service are required")
		return
	}
	if _, err := model.ParseDate(date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date; expected YYYY-MM-DD")
		return
	}

	open, err := s.booking.AvailableSlots(r.Context(), practitioner, serviceID, date)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":  date,
		"slots": slots.StartTimes(open),
	})
}

// handleBookAppointment admits one booking.
// POST /api/appointments
func (s *HTTPServer) handleBookAppointment(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "too many booking requests")
		return
	}

	var req BookAppointmentRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	a, err := s.booking.Book(r.Context(), booking.Request{
		ServiceID:    req.ServiceID,
		Practitioner: model.PractitionerID(req.Practitioner),
		Date:         req.Date,
		Start:        req.Start,
		PatientName:  req.PatientName,
		PatientEmail: req.PatientEmail,
		PatientPhone: req.PatientPhone,
		Notes:        req.Notes,
	})
	if err != nil {
		s.writeBookingError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(a))
}

// handleGetAppointment looks up one ledger entry.
// GET /api/appointments/{id}
func (s *HTTPServer) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	a, err := s.booking.GetAppointment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(a))
}

// handleDayAppointments returns the full ledger for one practitioner-day.
// GET /api/appointments?practitioner=dr-deboeck&date=YYYY-MM-DD
func (s *HTTPServer) handleDayAppointments(w http.ResponseWriter, r *http.Request) {
	practitioner := model.PractitionerID(r.URL.Query().Get("practitioner"))
	date := r.URL.Query().Get("date")
	if practitioner == "" || date == "" {
		writeError(w, http.StatusBadRequest, "practitioner and date are required")
		return
	}

	appointments, err := s.booking.DayAppointments(r.Context(), practitioner, date)
	if err != nil {
		s.writeBookingError(w, err)
		return
	}

	out := make([]AppointmentResponse, 0, len(appointments))
	for i := range appointments {
		out = append(out, toAppointmentResponse(&appointments[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

// SetStatusRequest is the request body for PATCH /api/appointments/{id}/status.
type SetStatusRequest struct {
	Status string `json:"status"` // "confirmed" or "cancelled"
}

// handleSetStatus sets an appointment's status.
// PATCH /api/appointments/{id}/status
func (s *HTTPServer) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req SetStatusRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	a, err := s.booking.SetStatus(r.Context(), chi.URLParam(r, "id"), model.AppointmentStatus(req.Status))
	if err != nil {
		s.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(a))
}

// writeBookingError maps service errors to HTTP answers. Policy
// rejections get specific 4xx codes; anything else is a 500.
func (s *HTTPServer) writeBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service not found")
	case errors.Is(err, booking.ErrPractitionerUnknown):
		writeError(w, http.StatusNotFound, "practitioner not found")
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment not found")
	case errors.Is(err, booking.ErrServiceMismatch):
		writeError(w, http.StatusUnprocessableEntity, "service belongs to another practitioner")
	case errors.Is(err, booking.ErrDayUnavailable):
		writeError(w, http.StatusConflict, "practitioner does not attend on that date")
	case errors.Is(err, booking.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot already taken")
	case errors.Is(err, booking.ErrStorageUnavailable):
		s.logger.Error().Err(err).Msg("storage unavailable")
		writeError(w, http.StatusServiceUnavailable, "storage unavailable; retry")
	default:
		s.logger.Error().Err(err).Msg("booking request failed")
		writeError(w, http.StatusInternalServerError, "storage failure")
	}
}
