package scheduling

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/booking/internal/platform/httpapi"
)

func newTestServer(t *testing.T) (*fixture, *echo.Echo) {
	t.Helper()
	f := newFixture(t)
	e := echo.New()
	e.HTTPErrorHandler = httpapi.ErrorHandler(zerolog.Nop())
	e.Validator = httpapi.NewValidator()
	NewHandler(f.svc, f.agg, f.booker).RegisterRoutes(e.Group("/api/v1"))
	return f, e
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func bookingBody(f *fixture, start, phone string) string {
	return fmt.Sprintf(`{"doctorId":%q,"appointmentTypeId":%q,"startUtc":%q,"patient":{"fullName":"Ayse Kaya","phone":%q}}`,
		f.doctor.ID, f.visit.ID, start, phone)
}

func TestHandler_GetAvailability_Slots(t *testing.T) {
	f, e := newTestServer(t)
	path := fmt.Sprintf("/api/v1/availability?doctorId=%s&date=2025-03-03&appointmentTypeId=%s", f.doctor.ID, f.visit.ID)

	rec := do(e, http.MethodGet, path, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Slots []Slot `json:"slots"`
	}
	decode(t, rec, &body)
	if len(body.Slots) != 9 {
		t.Errorf("expected 9 slots, got %d", len(body.Slots))
	}
	if strings.Contains(rec.Body.String(), "isBooked") {
		t.Error("booking view must not include isBooked")
	}
}

func TestHandler_GetAvailability_IncludeBooked(t *testing.T) {
	f, e := newTestServer(t)
	f.book(t, local(monday, 10, 0), "+905550000001")
	path := fmt.Sprintf("/api/v1/availability?doctorId=%s&date=2025-03-03&appointmentTypeId=%s&includeBooked=true", f.doctor.ID, f.visit.ID)

	rec := do(e, http.MethodGet, path, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Slots []Slot `json:"slots"`
	}
	decode(t, rec, &body)
	if len(body.Slots) != 9 {
		t.Fatalf("expected 9 slots, got %d", len(body.Slots))
	}
	booked := 0
	for _, s := range body.Slots {
		if s.IsBooked != nil && *s.IsBooked {
			booked++
		}
	}
	if booked != 1 {
		t.Errorf("expected 1 booked slot, got %d", booked)
	}
}

func TestHandler_GetAvailability_Ranges(t *testing.T) {
	f, e := newTestServer(t)
	tests := []struct {
		name  string
		query string
		days  int
	}{
		{"week", "weekStart=2025-03-03&weekEnd=2025-03-09", 7},
		{"range", "start=2025-03-03&end=2025-03-04", 2},
		{"month", "month=2025-03", 31},
		{"month with type", "month=2025-02&appointmentTypeId=" + f.visit.ID.String(), 28},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodGet, "/api/v1/availability?doctorId="+f.doctor.ID.String()+"&"+tt.query, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			var body struct {
				Availability []DaySummary `json:"availability"`
			}
			decode(t, rec, &body)
			if len(body.Availability) != tt.days {
				t.Errorf("expected %d days, got %d", tt.days, len(body.Availability))
			}
		})
	}
}

func TestHandler_GetAvailability_Errors(t *testing.T) {
	f, e := newTestServer(t)
	doc := "doctorId=" + f.doctor.ID.String()
	typ := "&appointmentTypeId=" + f.visit.ID.String()

	tests := []struct {
		name  string
		query string
		code  int
	}{
		{"missing doctor", "date=2025-03-03" + typ, http.StatusBadRequest},
		{"bad doctor", "doctorId=abc&date=2025-03-03" + typ, http.StatusBadRequest},
		{"missing type", doc + "&date=2025-03-03", http.StatusBadRequest},
		{"bad date", doc + "&date=03-03-2025" + typ, http.StatusBadRequest},
		{"bad includeBooked", doc + "&date=2025-03-03&includeBooked=maybe" + typ, http.StatusBadRequest},
		{"no mode", doc, http.StatusBadRequest},
		{"half range", doc + "&weekStart=2025-03-03", http.StatusBadRequest},
		{"inverted range", doc + "&start=2025-03-09&end=2025-03-03", http.StatusBadRequest},
		{"bad month", doc + "&month=2025-3", http.StatusBadRequest},
		{"unknown type", doc + "&date=2025-03-03&appointmentTypeId=" + uuid.New().String(), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodGet, "/api/v1/availability?"+tt.query, "")
			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
			var body httpapi.ErrorBody
			decode(t, rec, &body)
			if body.OK || body.Error == "" {
				t.Errorf("expected error envelope, got %s", rec.Body.String())
			}
		})
	}
}

func TestHandler_BookAppointment(t *testing.T) {
	f, e := newTestServer(t)

	rec := do(e, http.MethodPost, "/api/v1/appointments", bookingBody(f, "2025-03-03T07:00:00Z", "+905550000001"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created bookingResponse
	decode(t, rec, &created)
	if !created.OK || created.Appointment == nil || created.Appointment.Status != StatusConfirmed {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	rec = do(e, http.MethodPost, "/api/v1/appointments", bookingBody(f, "2025-03-03T07:00:00Z", "+905550000002"))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	var taken bookingResponse
	decode(t, rec, &taken)
	if taken.OK || taken.Error != SlotTakenMessage {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_BookAppointment_BadRequest(t *testing.T) {
	f, e := newTestServer(t)
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing doctor", fmt.Sprintf(`{"appointmentTypeId":%q,"startUtc":"2025-03-03T07:00:00Z","patient":{"fullName":"Ayse","phone":"+905550000001"}}`, f.visit.ID)},
		{"bad uuid", fmt.Sprintf(`{"doctorId":"nope","appointmentTypeId":%q,"startUtc":"2025-03-03T07:00:00Z","patient":{"fullName":"Ayse","phone":"+905550000001"}}`, f.visit.ID)},
		{"missing start", fmt.Sprintf(`{"doctorId":%q,"appointmentTypeId":%q,"patient":{"fullName":"Ayse","phone":"+905550000001"}}`, f.doctor.ID, f.visit.ID)},
		{"short name", fmt.Sprintf(`{"doctorId":%q,"appointmentTypeId":%q,"startUtc":"2025-03-03T07:00:00Z","patient":{"fullName":"A","phone":"+905550000001"}}`, f.doctor.ID, f.visit.ID)},
		{"no patient", fmt.Sprintf(`{"doctorId":%q,"appointmentTypeId":%q,"startUtc":"2025-03-03T07:00:00Z"}`, f.doctor.ID, f.visit.ID)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodPost, "/api/v1/appointments", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandler_AppointmentLifecycle(t *testing.T) {
	f, e := newTestServer(t)
	a := f.book(t, local(monday, 10, 0), "+905550000001").Appointment
	base := "/api/v1/appointments/" + a.ID.String()

	rec := do(e, http.MethodGet, base, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}

	rec = do(e, http.MethodPatch, base, `{"startUtc":"2025-03-03T08:00:00Z","notes":"moved by phone"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var patched struct {
		Appointment Appointment `json:"appointment"`
	}
	decode(t, rec, &patched)
	if patched.Appointment.StartTime.Hour() != 8 || patched.Appointment.Notes == nil {
		t.Errorf("unexpected appointment %+v", patched.Appointment)
	}

	rec = do(e, http.MethodPatch, base, `{"status":"LATE"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad status: expected 400, got %d", rec.Code)
	}

	rec = do(e, http.MethodPost, base+"/cancel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(e, http.MethodPost, base+"/no-show", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("no-show after cancel: expected 409, got %d", rec.Code)
	}
	rec = do(e, http.MethodPatch, base, `{"startUtc":"2025-03-03T09:00:00Z"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("reschedule cancelled: expected 409, got %d", rec.Code)
	}

	rec = do(e, http.MethodDelete, base, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"success":true`) {
		t.Errorf("delete: expected 200 success, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(e, http.MethodDelete, base, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", rec.Code)
	}

	rec = do(e, http.MethodGet, "/api/v1/appointments/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", rec.Code)
	}
}

func TestHandler_UpdateAppointment_SlotTaken(t *testing.T) {
	f, e := newTestServer(t)
	a := f.book(t, local(monday, 9, 0), "+905550000001").Appointment
	f.book(t, local(monday, 10, 0), "+905550000002")

	rec := do(e, http.MethodPatch, "/api/v1/appointments/"+a.ID.String(), `{"startUtc":"2025-03-03T07:00:00Z"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), SlotTakenMessage) {
		t.Errorf("expected slot taken message, got %s", rec.Body.String())
	}
}

func TestHandler_ListAppointments(t *testing.T) {
	f, e := newTestServer(t)
	f.book(t, local(monday, 9, 0), "+905550000001")
	f.book(t, local(monday, 9, 20), "+905550000002")

	rec := do(e, http.MethodGet, "/api/v1/appointments?doctorId="+f.doctor.ID.String()+"&status=CONFIRMED&limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var page struct {
		Data    []Appointment `json:"data"`
		Total   int           `json:"total"`
		HasMore bool          `json:"has_more"`
	}
	decode(t, rec, &page)
	if page.Total != 2 || len(page.Data) != 1 {
		t.Errorf("expected 1 of 2, got %d of %d", len(page.Data), page.Total)
	}

	for _, q := range []string{"status=LATE", "from=yesterday", "patientId=xyz"} {
		if rec := do(e, http.MethodGet, "/api/v1/appointments?"+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestHandler_DoctorCRUD(t *testing.T) {
	_, e := newTestServer(t)

	if rec := do(e, http.MethodPost, "/api/v1/doctors", `{"displayName":"A"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("short name: expected 400, got %d", rec.Code)
	}

	rec := do(e, http.MethodPost, "/api/v1/doctors", `{"displayName":"Dr. Yilmaz","specialties":"cardiology"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var d Doctor
	decode(t, rec, &d)

	rec = do(e, http.MethodPut, "/api/v1/doctors/"+d.ID.String(), `{"displayName":"Dr. Y. Yilmaz"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodGet, "/api/v1/doctors/"+d.ID.String(), "")
	var got Doctor
	decode(t, rec, &got)
	if got.DisplayName != "Dr. Y. Yilmaz" {
		t.Errorf("expected updated name, got %s", got.DisplayName)
	}

	rec = do(e, http.MethodGet, "/api/v1/doctors", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"total":2`) {
		t.Errorf("list: unexpected %d %s", rec.Code, rec.Body.String())
	}

	if rec := do(e, http.MethodDelete, "/api/v1/doctors/"+d.ID.String(), ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/api/v1/doctors/"+d.ID.String(), ""); rec.Code != http.StatusNotFound {
		t.Errorf("get deleted: expected 404, got %d", rec.Code)
	}
}

func TestHandler_AppointmentTypeDefaults(t *testing.T) {
	f, e := newTestServer(t)
	rec := do(e, http.MethodPost, "/api/v1/appointment-types", `{"name":"Follow-up"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var typ AppointmentType
	decode(t, rec, &typ)
	if typ.DurationMin != 20 || typ.BufferBeforeMin != 0 || typ.BufferAfterMin != 5 {
		t.Errorf("unexpected defaults %+v", typ)
	}

	f.book(t, local(monday, 9, 0), "+905550000001")
	if rec := do(e, http.MethodDelete, "/api/v1/appointment-types/"+f.visit.ID.String(), ""); rec.Code != http.StatusConflict {
		t.Errorf("delete in use: expected 409, got %d", rec.Code)
	}
}

func TestHandler_WeeklyAvailability(t *testing.T) {
	f, e := newTestServer(t)
	body := func(day string) string {
		return fmt.Sprintf(`{"doctorId":%q%s,"startTime":"09:00","endTime":"17:00"}`, f.doctor.ID, day)
	}

	rec := do(e, http.MethodPost, "/api/v1/availabilities", body(`,"dayOfWeek":0`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("sunday: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var w WeeklyAvailability
	decode(t, rec, &w)
	if w.DayOfWeek != 0 || w.SlotSizeMin != DefaultSlotSizeMin {
		t.Errorf("unexpected row %+v", w)
	}

	for name, b := range map[string]string{
		"missing day": body(""),
		"day 7":       body(`,"dayOfWeek":7`),
		"tiny slots":  body(`,"dayOfWeek":1,"slotSizeMin":4`),
	} {
		if rec := do(e, http.MethodPost, "/api/v1/availabilities", b); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, rec.Code)
		}
	}

	rec = do(e, http.MethodGet, "/api/v1/availabilities?doctorId="+f.doctor.ID.String(), "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"total":2`) {
		t.Errorf("list: unexpected %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_Exceptions(t *testing.T) {
	f, e := newTestServer(t)

	bad := fmt.Sprintf(`{"doctorId":%q,"date":"2025-03-03","windows":"10:00-09:00"}`, f.doctor.ID)
	if rec := do(e, http.MethodPost, "/api/v1/availability-exceptions", bad); rec.Code != http.StatusBadRequest {
		t.Errorf("bad windows: expected 400, got %d", rec.Code)
	}

	closed := fmt.Sprintf(`{"doctorId":%q,"date":"2025-03-03","isClosed":true,"note":"holiday"}`, f.doctor.ID)
	rec := do(e, http.MethodPost, "/api/v1/availability-exceptions", closed)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(e, http.MethodPost, "/api/v1/availability-exceptions", closed); rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate: expected 400, got %d", rec.Code)
	}

	path := fmt.Sprintf("/api/v1/availability?doctorId=%s&date=2025-03-03&appointmentTypeId=%s", f.doctor.ID, f.visit.ID)
	rec = do(e, http.MethodGet, path, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"slots":[]`) {
		t.Errorf("closed day: unexpected %d %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_DailyAvailability(t *testing.T) {
	f, e := newTestServer(t)
	body := fmt.Sprintf(`{"doctorId":%q,"date":"2025-03-03","startTime":"13:00","endTime":"14:00","slotSizeMin":30}`, f.doctor.ID)
	rec := do(e, http.MethodPost, "/api/v1/daily-availabilities", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	path := fmt.Sprintf("/api/v1/availability?doctorId=%s&date=2025-03-03&appointmentTypeId=%s", f.doctor.ID, f.visit.ID)
	var slots struct {
		Slots []Slot `json:"slots"`
	}
	decode(t, do(e, http.MethodGet, path, ""), &slots)
	if len(slots.Slots) != 2 {
		t.Errorf("expected daily override to give 2 slots, got %d", len(slots.Slots))
	}

	bad := fmt.Sprintf(`{"doctorId":%q,"date":"March 3","startTime":"13:00","endTime":"14:00"}`, f.doctor.ID)
	if rec := do(e, http.MethodPost, "/api/v1/daily-availabilities", bad); rec.Code != http.StatusBadRequest {
		t.Errorf("bad date: expected 400, got %d", rec.Code)
	}
}
