package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	appointmentCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "consultorio",
			Name:      "appointment_created_total",
			Help:      "Count of appointments admitted into the ledger.",
		},
	)

	appointmentRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "consultorio",
			Name:      "appointment_rejected_total",
			Help:      "Count of booking requests rejected, by reason.",
		},
		[]string{"reason"},
	)

	statusChanged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "consultorio",
			Name:      "appointment_status_changed_total",
			Help:      "Count of appointment status transitions, by new status.",
		},
		[]string{"status"},
	)

	overlapDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "consultorio",
			Name:      "appointment_overlap_detected_total",
			Help:      "Count of confirmed-overlap pairs found after permissive reactivations.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "consultorio",
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests, by handler and status code.",
		},
		[]string{"handler", "code"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(appointmentCreated, appointmentRejected, statusChanged, overlapDetected, httpRequests)
	})
}

func IncAppointmentCreated() {
	appointmentCreated.Inc()
}

func IncAppointmentRejected(reason string) {
	appointmentRejected.WithLabelValues(reason).Inc()
}

func IncStatusChanged(status string) {
	statusChanged.WithLabelValues(status).Inc()
}

func IncOverlapDetected() {
	overlapDetected.Inc()
}

func IncHTTPRequest(handler, code string) {
	httpRequests.WithLabelValues(handler, code).Inc()
}
