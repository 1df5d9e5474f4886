package events

import (
	"encoding/json"
	"sync"
	"time"

	"consultorio/internal/model"
)

// Event types published by the booking service.
const (
	TypeAppointmentCreated       = "appointment.created"
	TypeAppointmentStatusChanged = "appointment.status_changed"
	TypeOverlapDetected          = "appointment.overlap_detected"
)

// Event is a lightweight domain event.
type Event struct {
	Type          string
	AppointmentID string
	Payload       []byte
	CreatedAt     time.Time
}

// AppointmentPayload is the JSON body attached to appointment events.
type AppointmentPayload struct {
	AppointmentID string               `json:"appointment_id"`
	ServiceID     string               `json:"service_id"`
	Practitioner  model.PractitionerID `json:"practitioner_id"`
	Date          string               `json:"date"`
	Start         string               `json:"start"`
	End           string               `json:"end,omitempty"`
	Status        string               `json:"status"`
}

// NewAppointmentEvent builds an event carrying the appointment snapshot.
func NewAppointmentEvent(eventType string, a *model.Appointment) Event {
	payload, _ := json.Marshal(AppointmentPayload{
		AppointmentID: a.ID,
		ServiceID:     a.ServiceID,
		Practitioner:  a.Practitioner,
		Date:          a.Date,
		Start:         a.Start,
		End:           a.End,
		Status:        string(a.Status),
	})
	return Event{
		Type:          eventType,
		AppointmentID: a.ID,
		Payload:       payload,
		CreatedAt:     time.Now(),
	}
}

// Handler reacts to an event.
type Handler func(event Event) error

// Bus provides in-process pub/sub for domain events.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}
