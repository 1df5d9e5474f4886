package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consultorio/internal/booking"
	"consultorio/internal/config"
	"consultorio/internal/database"
	"consultorio/internal/events"
	"consultorio/internal/export"
	"consultorio/internal/lock"
)

// 2026-01-15 is a Thursday, 2026-01-18 a Sunday.
const (
	thursday = "2026-01-15"
	sunday   = "2026-01-18"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func testPractitionersConfig() *config.PractitionersConfig {
	return &config.PractitionersConfig{
		DefaultPractitioner: "dr-deboeck",
		Practitioners: []config.PractitionerConfig{
			{
				ID:       "dr-deboeck",
				Name:     "Dr. De Boeck",
				IsActive: true,
				Schedule: map[int]config.WeekdayRuleConfig{
					1: {Enabled: true, Start: "09:00", End: "18:00"},
					2: {Enabled: true, Start: "09:00", End: "18:00"},
					3: {Enabled: true, Start: "09:00", End: "18:00"},
					4: {Enabled: true, Start: "09:00", End: "11:00"},
					5: {Enabled: true, Start: "09:00", End: "18:00"},
				},
				BlockedDates: []string{"2026-01-16"},
			},
		},
		Services: []config.ServiceConfig{
			{ID: "consulta", Name: "Consulta general", DurationMinutes: 30, PriceCents: 2500000, Practitioner: "dr-deboeck"},
			{ID: "limpieza", Name: "Limpieza dental", DurationMinutes: 60, PriceCents: 4500000, Practitioner: "dr-deboeck"},
		},
	}
}

func setupTestServer(t *testing.T) (*httptest.Server, *database.DB) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.SyncFromConfig(t.Context(), testPractitionersConfig()))

	bookingSvc := booking.NewService(db, lock.NewMutexLocker(), events.NewBus(), &logger, 30, 30)
	exporter := export.NewExporter(db, export.NewExcelizeWriter, &logger)
	server := NewHTTPServer(0, bookingSvc, db, exporter, &logger, 0)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, db
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func bookRequest() map[string]any {
	return map[string]any{
		"service_id":    "consulta",
		"date":          thursday,
		"start_time":    "09:30",
		"patient_name":  "Ana Paz",
		"patient_email": "ana@example.com",
	}
}

func TestHealthEndpoints(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/health/live")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/health/ready")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestListPractitionersAndServices(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/practitioners")
	require.NoError(t, err)
	body := decodeBody[map[string][]PractitionerResponse](t, resp)
	require.Len(t, body["practitioners"], 1)
	assert.Equal(t, "Dr. De Boeck", body["practitioners"][0].Name)

	resp, err = http.Get(ts.URL + "/api/services?practitioner=dr-deboeck")
	require.NoError(t, err)
	services := decodeBody[map[string][]ServiceResponse](t, resp)
	require.Len(t, services["services"], 2)
}

func TestAvailableDates(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/availability/dates?practitioner=dr-deboeck&from=" + thursday)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string][]string](t, resp)

	dates := body["dates"]
	require.NotEmpty(t, dates)
	assert.NotContains(t, dates, thursday, "from date is exclusive")
	assert.NotContains(t, dates, "2026-01-16", "blocked date excluded")
	assert.NotContains(t, dates, sunday, "disabled weekday excluded")
	assert.Equal(t, "2026-01-19", dates[0]) // next Monday

	resp, err = http.Get(ts.URL + "/api/availability/dates?practitioner=dr-nadie")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAvailableSlots(t *testing.T) {
	ts, _ := setupTestServer(t)

	// Thursday 09:00-11:00 with a 60-min service: 09:00, 09:30, 10:00.
	resp, err := http.Get(ts.URL + "/api/availability/slots?practitioner=dr-deboeck&service=limpieza&date=" + thursday)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[struct {
		Date  string   `json:"date"`
		Slots []string `json:"slots"`
	}](t, resp)
	assert.Equal(t, []string{"09:00", "09:30", "10:00"}, body.Slots)

	// Sunday yields an empty list, not an error.
	resp, err = http.Get(ts.URL + "/api/availability/slots?practitioner=dr-deboeck&service=consulta&date=" + sunday)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody[struct {
		Date  string   `json:"date"`
		Slots []string `json:"slots"`
	}](t, resp)
	assert.Empty(t, body.Slots)

	resp, err = http.Get(ts.URL + "/api/availability/slots?practitioner=dr-deboeck&service=consulta&date=15-01-2026")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestBookAppointment(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp := postJSON(t, ts.URL+"/api/appointments", bookRequest())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[AppointmentResponse](t, resp)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "09:30", created.Start)
	assert.Equal(t, "10:00", created.End)
	assert.Equal(t, "confirmed", created.Status)
	assert.Equal(t, "dr-deboeck", created.Practitioner)

	// Same slot again conflicts.
	resp = postJSON(t, ts.URL+"/api/appointments", bookRequest())
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	errBody := decodeBody[ErrorResponse](t, resp)
	assert.Equal(t, "slot already taken", errBody.Error)

	// The booked slot disappears from availability.
	availResp, err := http.Get(ts.URL + "/api/availability/slots?practitioner=dr-deboeck&service=consulta&date=" + thursday)
	require.NoError(t, err)
	avail := decodeBody[struct {
		Slots []string `json:"slots"`
	}](t, availResp)
	assert.NotContains(t, avail.Slots, "09:30")
	assert.Contains(t, avail.Slots, "09:00")
	assert.Contains(t, avail.Slots, "10:00")
}

func TestBookAppointment_Validation(t *testing.T) {
	ts, _ := setupTestServer(t)

	tests := []struct {
		name       string
		mutate     func(map[string]any)
		wantStatus int
	}{
		{"unknown service", func(m map[string]any) { m["service_id"] = "cirugia" }, http.StatusNotFound},
		{"missing patient name", func(m map[string]any) { delete(m, "patient_name") }, http.StatusBadRequest},
		{"bad date", func(m map[string]any) { m["date"] = "15/01/2026" }, http.StatusBadRequest},
		{"blocked date", func(m map[string]any) { m["date"] = "2026-01-16" }, http.StatusConflict},
		{"disabled weekday", func(m map[string]any) { m["date"] = sunday }, http.StatusConflict},
		{"outside hours", func(m map[string]any) { m["start_time"] = "20:00" }, http.StatusConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body := bookRequest()
			tc.mutate(body)
			resp := postJSON(t, ts.URL+"/api/appointments", body)
			assert.Equal(t, tc.wantStatus, resp.StatusCode)
			resp.Body.Close()
		})
	}

	resp, err := http.Post(ts.URL+"/api/appointments", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestStatusLifecycle(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp := postJSON(t, ts.URL+"/api/appointments", bookRequest())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[AppointmentResponse](t, resp)

	// Cancel.
	req, err := http.NewRequest(http.MethodPatch,
		ts.URL+"/api/appointments/"+created.ID+"/status",
		bytes.NewReader([]byte(`{"status":"cancelled"}`)))
	require.NoError(t, err)
	patchResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, patchResp.StatusCode)
	cancelled := decodeBody[AppointmentResponse](t, patchResp)
	assert.Equal(t, "cancelled", cancelled.Status)

	// Cancelled slot is free again.
	resp = postJSON(t, ts.URL+"/api/appointments", bookRequest())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Unknown status is rejected.
	req, err = http.NewRequest(http.MethodPatch,
		ts.URL+"/api/appointments/"+created.ID+"/status",
		bytes.NewReader([]byte(`{"status":"pending"}`)))
	require.NoError(t, err)
	patchResp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, patchResp.StatusCode)
	patchResp.Body.Close()

	// Unknown id.
	req, err = http.NewRequest(http.MethodPatch,
		ts.URL+"/api/appointments/no-such-id/status",
		bytes.NewReader([]byte(`{"status":"cancelled"}`)))
	require.NoError(t, err)
	patchResp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, patchResp.StatusCode)
	patchResp.Body.Close()
}

func TestGetAndListAppointments(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp := postJSON(t, ts.URL+"/api/appointments", bookRequest())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[AppointmentResponse](t, resp)

	getResp, err := http.Get(ts.URL + "/api/appointments/" + created.ID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	fetched := decodeBody[AppointmentResponse](t, getResp)
	assert.Equal(t, created.ID, fetched.ID)

	listResp, err := http.Get(ts.URL + "/api/appointments?practitioner=dr-deboeck&date=" + thursday)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, listResp.StatusCode)
	ledger := decodeBody[map[string][]AppointmentResponse](t, listResp)
	assert.Len(t, ledger["appointments"], 1)

	missingResp, err := http.Get(ts.URL + "/api/appointments/no-such-id")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, missingResp.StatusCode)
	missingResp.Body.Close()
}

func TestAdminScheduleAndBlockedDates(t *testing.T) {
	ts, _ := setupTestServer(t)

	// Disable Thursdays.
	req, err := http.NewRequest(http.MethodPut,
		ts.URL+"/api/admin/practitioners/dr-deboeck/schedule/4",
		bytes.NewReader([]byte(`{"enabled":false}`)))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	bookResp := postJSON(t, ts.URL+"/api/appointments", bookRequest())
	assert.Equal(t, http.StatusConflict, bookResp.StatusCode)
	bookResp.Body.Close()

	// Block next Monday, then unblock it.
	blockResp := postJSON(t, ts.URL+"/api/admin/practitioners/dr-deboeck/blocked-dates",
		map[string]string{"date": "2026-01-19", "reason": "congreso"})
	require.Equal(t, http.StatusOK, blockResp.StatusCode)
	blockResp.Body.Close()

	datesResp, err := http.Get(ts.URL + "/api/availability/dates?practitioner=dr-deboeck&from=" + thursday)
	require.NoError(t, err)
	dates := decodeBody[map[string][]string](t, datesResp)
	assert.NotContains(t, dates["dates"], "2026-01-19")

	req, err = http.NewRequest(http.MethodDelete,
		ts.URL+"/api/admin/practitioners/dr-deboeck/blocked-dates/2026-01-19", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	datesResp, err = http.Get(ts.URL + "/api/availability/dates?practitioner=dr-deboeck&from=" + thursday)
	require.NoError(t, err)
	dates = decodeBody[map[string][]string](t, datesResp)
	assert.Contains(t, dates["dates"], "2026-01-19")

	// Invalid day index.
	req, err = http.NewRequest(http.MethodPut,
		ts.URL+"/api/admin/practitioners/dr-deboeck/schedule/7",
		bytes.NewReader([]byte(`{"enabled":false}`)))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Unknown practitioner.
	blockResp = postJSON(t, ts.URL+"/api/admin/practitioners/dr-nadie/blocked-dates",
		map[string]string{"date": "2026-01-19"})
	assert.Equal(t, http.StatusNotFound, blockResp.StatusCode)
	blockResp.Body.Close()
}

func TestAdminUpsertService(t *testing.T) {
	ts, _ := setupTestServer(t)

	// New 45-minute service appears in the catalog and in availability.
	req, err := http.NewRequest(http.MethodPut,
		ts.URL+"/api/admin/services/ortodoncia",
		bytes.NewReader([]byte(`{"name":"Ortodoncia","duration_minutes":45,"price_cents":3500000,"practitioner_id":"dr-deboeck","is_active":true,"sort_order":3}`)))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	listResp, err := http.Get(ts.URL + "/api/services?practitioner=dr-deboeck")
	require.NoError(t, err)
	services := decodeBody[map[string][]ServiceResponse](t, listResp)
	require.Len(t, services["services"], 3)

	// Thursday 09:00-11:00, 45-min duration: starts 09:00, 09:30, 10:00.
	slotsResp, err := http.Get(ts.URL + "/api/availability/slots?practitioner=dr-deboeck&service=ortodoncia&date=" + thursday)
	require.NoError(t, err)
	slots := decodeBody[struct {
		Slots []string `json:"slots"`
	}](t, slotsResp)
	assert.Equal(t, []string{"09:00", "09:30", "10:00"}, slots.Slots)

	// Zero duration is rejected.
	req, err = http.NewRequest(http.MethodPut,
		ts.URL+"/api/admin/services/gratis",
		bytesReader(`{"name":"Gratis","duration_minutes":0,"practitioner_id":"dr-deboeck","is_active":true}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	// Unknown practitioner is rejected.
	req, err = http.NewRequest(http.MethodPut,
		ts.URL+"/api/admin/services/otro",
		bytesReader(`{"name":"Otro","duration_minutes":30,"practitioner_id":"dr-nadie","is_active":true}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func bytesReader(s string) *bytes.Reader {
	return bytes.NewReader([]byte(s))
}

func TestAdminAppointmentsRange(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp := postJSON(t, ts.URL+"/api/appointments", bookRequest())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	rangeResp, err := http.Get(ts.URL + "/api/admin/appointments?from=2026-01-01&to=2026-01-31&practitioner=dr-deboeck")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rangeResp.StatusCode)
	ledger := decodeBody[map[string][]AppointmentResponse](t, rangeResp)
	assert.Len(t, ledger["appointments"], 1)

	emptyResp, err := http.Get(ts.URL + "/api/admin/appointments?from=2026-02-01&to=2026-02-28")
	require.NoError(t, err)
	empty := decodeBody[map[string][]AppointmentResponse](t, emptyResp)
	assert.Empty(t, empty["appointments"])

	badResp, err := http.Get(ts.URL + "/api/admin/appointments?from=bad&to=2026-01-31")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, badResp.StatusCode)
	badResp.Body.Close()
}

func TestExportDownload(t *testing.T) {
	ts, _ := setupTestServer(t)

	resp := postJSON(t, ts.URL+"/api/appointments", bookRequest())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	exportResp, err := http.Get(ts.URL + "/api/admin/export?from=2026-01-01&to=2026-01-31")
	require.NoError(t, err)
	defer exportResp.Body.Close()
	require.Equal(t, http.StatusOK, exportResp.StatusCode)
	assert.Contains(t, exportResp.Header.Get("Content-Disposition"), "agenda_2026-01-01_2026-01-31.xlsx")

	data, err := io.ReadAll(exportResp.Body)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	badResp, err := http.Get(ts.URL + "/api/admin/export?from=2026-02-01&to=2026-01-01")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, badResp.StatusCode)
	badResp.Body.Close()
}

func TestBookingRateLimit(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "rate.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.SyncFromConfig(t.Context(), testPractitionersConfig()))

	bookingSvc := booking.NewService(db, lock.NewMutexLocker(), events.NewBus(), &logger, 30, 30)
	exporter := export.NewExporter(db, export.NewExcelizeWriter, &logger)
	server := NewHTTPServer(0, bookingSvc, db, exporter, &logger, 1)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	limited := false
	for i := 0; i < 10; i++ {
		resp := postJSON(t, ts.URL+"/api/appointments", bookRequest())
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
		}
		resp.Body.Close()
	}
	assert.True(t, limited, "burst of bookings should hit the rate limit")
}
