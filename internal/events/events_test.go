package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consultorio/internal/model"
)

func TestBus_PublishReachesSubscribers(t *testing.T) {
	bus := NewBus()

	var got []Event
	bus.Subscribe(TypeAppointmentCreated, func(e Event) error {
		got = append(got, e)
		return nil
	})
	bus.Subscribe(TypeAppointmentStatusChanged, func(e Event) error {
		t.Fatal("wrong type delivered")
		return nil
	})

	bus.Publish(Event{Type: TypeAppointmentCreated, AppointmentID: "a-1"})

	require.Len(t, got, 1)
	assert.Equal(t, "a-1", got[0].AppointmentID)
	assert.False(t, got[0].CreatedAt.IsZero())
}

func TestBus_HandlerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewBus()

	second := false
	bus.Subscribe(TypeAppointmentCreated, func(Event) error {
		return errors.New("boom")
	})
	bus.Subscribe(TypeAppointmentCreated, func(Event) error {
		second = true
		return nil
	})

	bus.Publish(Event{Type: TypeAppointmentCreated})
	assert.True(t, second)
}

func TestNewAppointmentEvent(t *testing.T) {
	a := &model.Appointment{
		ID:           "a-1",
		ServiceID:    "consulta",
		Practitioner: "dr-deboeck",
		Date:         "2026-01-19",
		Start:        "10:00",
		End:          "10:30",
		Status:       model.StatusConfirmed,
	}

	e := NewAppointmentEvent(TypeAppointmentCreated, a)
	assert.Equal(t, TypeAppointmentCreated, e.Type)
	assert.Equal(t, "a-1", e.AppointmentID)

	var p AppointmentPayload
	require.NoError(t, json.Unmarshal(e.Payload, &p))
	assert.Equal(t, "a-1", p.AppointmentID)
	assert.Equal(t, model.PractitionerID("dr-deboeck"), p.Practitioner)
	assert.Equal(t, "confirmed", p.Status)
}
