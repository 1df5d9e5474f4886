package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"consultorio/internal/booking"
	"consultorio/internal/database"
	"consultorio/internal/export"
	"consultorio/internal/metrics"
)

// HTTPServer serves the public booking API and the admin surface.
type HTTPServer struct {
	server   *http.Server
	booking  *booking.Service
	db       *database.DB
	exporter *export.Exporter
	logger   *zerolog.Logger
	limiter  *rate.Limiter
}

// NewHTTPServer wires routes and middleware. bookingRate limits booking
// admissions per second across all clients; zero disables the limit.
func NewHTTPServer(port int, bookingSvc *booking.Service, db *database.DB, exporter *export.Exporter, logger *zerolog.Logger, bookingRate float64) *HTTPServer {
	s := &HTTPServer{
		booking:  bookingSvc,
		db:       db,
		exporter: exporter,
		logger:   logger,
	}
	if bookingRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(bookingRate), int(bookingRate)+1)
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/health/live", s.handleLiveness)
	r.Get("/health/ready", s.handleReadiness)

	r.Route("/api", func(r chi.Router) {
		r.Get("/practitioners", s.handleListPractitioners)
		r.Get("/services", s.handleListServices)
		r.Get("/availability/dates", s.handleAvailableDates)
		r.Get("/availability/slots", s.handleAvailableSlots)

		r.Post("/appointments", s.handleBookAppointment)
		r.Get("/appointments", s.handleDayAppointments)
		r.Get("/appointments/{id}", s.handleGetAppointment)
		r.Patch("/appointments/{id}/status", s.handleSetStatus)

		r.Route("/admin", func(r chi.Router) {
			r.Put("/practitioners/{id}/schedule/{day}", s.handleUpdateWeekdayRule)
			r.Post("/practitioners/{id}/blocked-dates", s.handleAddBlockedDate)
			r.Delete("/practitioners/{id}/blocked-dates/{date}", s.handleRemoveBlockedDate)
			r.Put("/services/{id}", s.handleUpsertService)
			r.Get("/appointments", s.handleAppointmentsRange)
			r.Get("/export", s.handleExport)
		})
	})

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start blocks serving HTTP until the listener fails or Shutdown runs.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type contextKey string

const requestIDKey contextKey = "request_id"

func (s *HTTPServer) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		metrics.IncHTTPRequest(r.URL.Path, strconv.Itoa(wrapped.statusCode))
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Str("request_id", requestID(r.Context())).
			Msg("http request")
	})
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *HTTPServer) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
