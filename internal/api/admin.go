package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"consultorio/internal/database"
	"consultorio/internal/export"
	"consultorio/internal/model"
)

// UpdateWeekdayRuleRequest is the body for PUT
// /api/admin/practitioners/{id}/schedule/{day}.
type UpdateWeekdayRuleRequest struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start,omitempty"` // Format: HH:MM
	End     string `json:"end,omitempty"`   // Format: HH:MM
}

// handleUpdateWeekdayRule overwrites one weekday of a practitioner's
// template. Day numbering follows time.Weekday (0 = Sunday).
func (s *HTTPServer) handleUpdateWeekdayRule(w http.ResponseWriter, r *http.Request) {
	practitioner := model.PractitionerID(chi.URLParam(r, "id"))
	day, err := strconv.Atoi(chi.URLParam(r, "day"))
	if err != nil || day < 0 || day > 6 {
		writeError(w, http.StatusBadRequest, "day must be 0 (Sunday) through 6 (Saturday)")
		return
	}

	var req UpdateWeekdayRuleRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if _, err := s.db.GetPractitioner(r.Context(), practitioner); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "practitioner not found")
			return
		}
		s.logger.Error().Err(err).Msg("load practitioner")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}

	rule := model.WeekdayRule{Enabled: req.Enabled, Start: req.Start, End: req.End}
	if err := s.db.UpsertWeekdayRule(r.Context(), practitioner, time.Weekday(day), rule); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info().
		Str("practitioner", string(practitioner)).
		Int("day", day).
		Bool("enabled", req.Enabled).
		Msg("weekday rule updated")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// AddBlockedDateRequest is the body for POST
// /api/admin/practitioners/{id}/blocked-dates.
type AddBlockedDateRequest struct {
	Date   string `json:"date"` // Format: YYYY-MM-DD
	Reason string `json:"reason,omitempty"`
}

// handleAddBlockedDate adds a date to a practitioner's blocked set.
func (s *HTTPServer) handleAddBlockedDate(w http.ResponseWriter, r *http.Request) {
	practitioner := model.PractitionerID(chi.URLParam(r, "id"))

	var req AddBlockedDateRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if _, err := s.db.GetPractitioner(r.Context(), practitioner); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "practitioner not found")
			return
		}
		s.logger.Error().Err(err).Msg("load practitioner")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}

	if err := s.db.AddBlockedDate(r.Context(), practitioner, req.Date, req.Reason); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleRemoveBlockedDate removes a date from the blocked set.
// Removing an absent date succeeds.
func (s *HTTPServer) handleRemoveBlockedDate(w http.ResponseWriter, r *http.Request) {
	practitioner := model.PractitionerID(chi.URLParam(r, "id"))
	date := chi.URLParam(r, "date")

	if _, err := model.ParseDate(date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date; expected YYYY-MM-DD")
		return
	}

	if err := s.db.RemoveBlockedDate(r.Context(), practitioner, date); err != nil {
		s.logger.Error().Err(err).Msg("remove blocked date")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// UpsertServiceRequest is the body for PUT /api/admin/services/{id}.
type UpsertServiceRequest struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
	Practitioner    string `json:"practitioner_id"`
	Description     string `json:"description,omitempty"`
	IsActive        bool   `json:"is_active"`
	SortOrder       int    `json:"sort_order"`
}

// handleUpsertService creates or updates a catalog entry. Existing
// appointments keep the end times they were booked with.
func (s *HTTPServer) handleUpsertService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpsertServiceRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	practitioner := model.PractitionerID(req.Practitioner)
	if _, err := s.db.GetPractitioner(r.Context(), practitioner); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "practitioner not found")
			return
		}
		s.logger.Error().Err(err).Msg("load practitioner")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}

	svc := model.Service{
		ID:              id,
		Name:            req.Name,
		DurationMinutes: req.DurationMinutes,
		PriceCents:      req.PriceCents,
		Practitioner:    practitioner,
		Description:     req.Description,
		IsActive:        req.IsActive,
		SortOrder:       req.SortOrder,
	}
	if err := s.db.UpsertService(r.Context(), svc); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info().Str("service", id).Msg("service upserted")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleAppointmentsRange lists the ledger within [from, to] inclusive.
// GET /api/admin/appointments?from=YYYY-MM-DD&to=YYYY-MM-DD&practitioner=dr-deboeck
func (s *HTTPServer) handleAppointmentsRange(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	practitioner := model.PractitionerID(r.URL.Query().Get("practitioner"))

	if _, err := model.ParseDate(from); err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date; expected YYYY-MM-DD")
		return
	}
	if _, err := model.ParseDate(to); err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date; expected YYYY-MM-DD")
		return
	}

	appointments, err := s.db.ListAppointmentsRange(r.Context(), practitioner, from, to)
	if err != nil {
		s.logger.Error().Err(err).Msg("list appointments range")
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}

	out := make([]AppointmentResponse, 0, len(appointments))
	for i := range appointments {
		out = append(out, toAppointmentResponse(&appointments[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": out})
}

// handleExport streams the appointment book as an Excel workbook.
// GET /api/admin/export?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	if _, err := model.ParseDate(from); err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date; expected YYYY-MM-DD")
		return
	}
	if _, err := model.ParseDate(to); err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date; expected YYYY-MM-DD")
		return
	}
	if from > to {
		writeError(w, http.StatusBadRequest, "from must be before or equal to to")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(from, to)))

	if err := s.exporter.WriteBook(r.Context(), from, to, w); err != nil {
		// Headers may already be out; log and give up on the body.
		s.logger.Error().Err(err).Msg("export failed")
	}
}
