package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/booking/internal/platform/events"
)

func TestService_CreateDoctor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := &Doctor{DisplayName: "  Dr. Demir  "}
	if err := f.svc.CreateDoctor(ctx, d); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ID == uuid.Nil || d.DisplayName != "Dr. Demir" {
		t.Errorf("unexpected doctor %+v", d)
	}
	if err := f.svc.CreateDoctor(ctx, &Doctor{DisplayName: "   "}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}

	items, total, err := f.svc.ListDoctors(ctx, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("expected 2 doctors, got %d (total %d)", len(items), total)
	}
}

func TestService_DeleteDoctorCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.book(t, local(monday, 10, 0), "+905550000001")

	if err := f.svc.DeleteDoctor(ctx, f.doctor.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.GetAppointment(ctx, res.Appointment.ID); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected appointment removed with doctor, got %v", err)
	}
	if _, err := f.svc.GetDoctor(ctx, f.doctor.ID); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("expected doctor gone, got %v", err)
	}
}

func TestService_AppointmentTypeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, typ := range []*AppointmentType{
		{Name: "", DurationMin: 20},
		{Name: "Zero", DurationMin: 0},
		{Name: "Neg", DurationMin: 20, BufferBeforeMin: -1},
		{Name: "Neg", DurationMin: 20, BufferAfterMin: -5},
	} {
		if err := f.svc.CreateAppointmentType(ctx, typ); !errors.Is(err, ErrValidation) {
			t.Errorf("%+v: expected validation error, got %v", typ, err)
		}
	}
}

func TestService_DeleteAppointmentTypeInUse(t *testing.T) {
	f := newFixture(t)
	f.book(t, local(monday, 10, 0), "+905550000001")
	if err := f.svc.DeleteAppointmentType(context.Background(), f.visit.ID); !errors.Is(err, ErrInUse) {
		t.Errorf("expected ErrInUse, got %v", err)
	}
}

func TestService_WeeklyValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := func() *WeeklyAvailability {
		return &WeeklyAvailability{DoctorID: f.doctor.ID, DayOfWeek: 2, StartTime: "09:00", EndTime: "17:00"}
	}

	ok := base()
	if err := f.svc.CreateWeeklyAvailability(ctx, ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok.SlotSizeMin != DefaultSlotSizeMin {
		t.Errorf("expected default slot size, got %d", ok.SlotSizeMin)
	}

	tests := []struct {
		name   string
		mutate func(w *WeeklyAvailability)
	}{
		{"missing doctor", func(w *WeeklyAvailability) { w.DoctorID = uuid.Nil }},
		{"day too high", func(w *WeeklyAvailability) { w.DayOfWeek = 7 }},
		{"day negative", func(w *WeeklyAvailability) { w.DayOfWeek = -1 }},
		{"bad start", func(w *WeeklyAvailability) { w.StartTime = "9am" }},
		{"end before start", func(w *WeeklyAvailability) { w.EndTime = "08:00" }},
		{"slot too small", func(w *WeeklyAvailability) { w.SlotSizeMin = 3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := base()
			tt.mutate(w)
			if err := f.svc.CreateWeeklyAvailability(ctx, w); !errors.Is(err, ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	if err := f.svc.CreateWeeklyAvailability(ctx, &WeeklyAvailability{DoctorID: uuid.New(), DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"}); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("expected doctor not found, got %v", err)
	}
}

func TestService_Exceptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	blank := &AvailabilityException{DoctorID: f.doctor.ID, Date: monday, Windows: strPtr("   ")}
	if err := f.svc.CreateException(ctx, blank); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if blank.Windows != nil {
		t.Errorf("expected blank windows to be cleared, got %q", *blank.Windows)
	}

	dup := &AvailabilityException{DoctorID: f.doctor.ID, Date: monday, IsClosed: true}
	if err := f.svc.CreateException(ctx, dup); !errors.Is(err, ErrValidation) {
		t.Errorf("expected duplicate date to be rejected, got %v", err)
	}

	bad := &AvailabilityException{DoctorID: f.doctor.ID, Date: monday.AddDays(1), Windows: strPtr("10:00-9:00")}
	if err := f.svc.CreateException(ctx, bad); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for bad windows, got %v", err)
	}

	blank.IsClosed = true
	if err := f.svc.UpdateException(ctx, blank); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := f.svc.GetException(ctx, blank.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsClosed {
		t.Error("expected update to persist")
	}

	items, total, err := f.svc.ListExceptions(ctx, &f.doctor.ID, 10, 0)
	if err != nil || total != 1 || len(items) != 1 {
		t.Errorf("expected 1 exception, got %d (total %d, err %v)", len(items), total, err)
	}

	if err := f.svc.DeleteException(ctx, blank.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.GetException(ctx, blank.ID); !errors.Is(err, ErrExceptionNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_CancelFreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := local(monday, 10, 0)
	res := f.book(t, start, "+905550000001")

	cancelled, err := f.svc.CancelAppointment(ctx, res.Appointment.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", cancelled.Status)
	}

	again := f.book(t, start, "+905550000002")
	if again.Outcome != OutcomeConfirmed {
		t.Errorf("expected cancelled slot to be bookable, got %s", again.Outcome)
	}

	want := []string{events.AppointmentBooked, events.AppointmentCancelled, events.AppointmentBooked}
	got := f.pub.types()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestService_TerminalStatesAreFinal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cancelled := f.book(t, local(monday, 9, 0), "+905550000001").Appointment
	noShow := f.book(t, local(monday, 9, 20), "+905550000002").Appointment

	if _, err := f.svc.CancelAppointment(ctx, cancelled.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := f.svc.MarkNoShow(ctx, noShow.ID); err != nil {
		t.Fatalf("no-show: %v", err)
	}

	for _, id := range []uuid.UUID{cancelled.ID, noShow.ID} {
		if _, err := f.svc.CancelAppointment(ctx, id); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("cancel: expected ErrInvalidTransition, got %v", err)
		}
		if _, err := f.svc.MarkNoShow(ctx, id); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("no-show: expected ErrInvalidTransition, got %v", err)
		}
		confirmed := StatusConfirmed
		if _, err := f.svc.UpdateAppointment(ctx, id, AppointmentPatch{Status: &confirmed}); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("reopen: expected ErrInvalidTransition, got %v", err)
		}
		later := local(monday, 11, 0)
		if _, err := f.svc.UpdateAppointment(ctx, id, AppointmentPatch{StartUTC: &later}); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("reschedule: expected ErrInvalidTransition, got %v", err)
		}
	}

	note := "called to apologise"
	res, err := f.svc.UpdateAppointment(ctx, cancelled.ID, AppointmentPatch{Notes: &note})
	if err != nil {
		t.Fatalf("notes on cancelled appointment: %v", err)
	}
	if res.Appointment.Notes == nil || *res.Appointment.Notes != note || res.Appointment.Status != StatusCancelled {
		t.Errorf("unexpected appointment %+v", res.Appointment)
	}
}

func TestService_UpdateAppointment_KeepsIntervalUnlessRescheduled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.book(t, local(monday, 9, 0), "+905550000001").Appointment
	second := f.book(t, local(monday, 9, 20), "+905550000002").Appointment
	third := f.book(t, local(monday, 9, 40), "+905550000003").Appointment

	longer := *f.visit
	longer.DurationMin = 40
	if err := f.svc.UpdateAppointmentType(ctx, &longer); err != nil {
		t.Fatalf("update type: %v", err)
	}

	note := "bring previous results"
	res, err := f.svc.UpdateAppointment(ctx, first.ID, AppointmentPatch{Notes: &note})
	if err != nil {
		t.Fatalf("notes patch: %v", err)
	}
	if res.Outcome != OutcomeConfirmed {
		t.Fatalf("a note edit must not collide with the next booking, got %s", res.Outcome)
	}
	if !res.Appointment.EndTime.Equal(first.EndTime) {
		t.Errorf("note edit moved the end from %s to %s", first.EndTime, res.Appointment.EndTime)
	}

	cancelled := StatusCancelled
	res, err = f.svc.UpdateAppointment(ctx, second.ID, AppointmentPatch{Status: &cancelled})
	if err != nil {
		t.Fatalf("status patch: %v", err)
	}
	if !res.Appointment.EndTime.Equal(second.EndTime) {
		t.Errorf("status change moved the end from %s to %s", second.EndTime, res.Appointment.EndTime)
	}
	res, err = f.svc.UpdateAppointment(ctx, second.ID, AppointmentPatch{Notes: &note})
	if err != nil {
		t.Fatalf("notes on cancelled appointment: %v", err)
	}
	if !res.Appointment.EndTime.Equal(second.EndTime) {
		t.Errorf("note edit on a cancelled row moved the end to %s", res.Appointment.EndTime)
	}

	// Moving the start picks up the new duration.
	start := local(monday, 11, 0)
	res, err = f.svc.UpdateAppointment(ctx, third.ID, AppointmentPatch{StartUTC: &start})
	if err != nil || res.Outcome != OutcomeConfirmed {
		t.Fatalf("reschedule: %+v %v", res, err)
	}
	if want := start.Add(40 * time.Minute); !res.Appointment.EndTime.Equal(want) {
		t.Errorf("expected end %s, got %s", want, res.Appointment.EndTime)
	}
}

func TestService_Reschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, local(monday, 9, 0), "+905550000001").Appointment
	f.book(t, local(monday, 10, 0), "+905550000002")

	long := &AppointmentType{Name: "Long", DurationMin: 40}
	if err := f.svc.CreateAppointmentType(ctx, long); err != nil {
		t.Fatalf("create type: %v", err)
	}

	taken := local(monday, 10, 10)
	res, err := f.svc.UpdateAppointment(ctx, a.ID, AppointmentPatch{StartUTC: &taken})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeSlotTaken {
		t.Errorf("expected SLOT_TAKEN, got %s", res.Outcome)
	}
	stored, _ := f.svc.GetAppointment(ctx, a.ID)
	if !stored.StartTime.Equal(a.StartTime) {
		t.Error("failed reschedule must leave the appointment unchanged")
	}

	free := local(monday, 11, 0)
	res, err = f.svc.UpdateAppointment(ctx, a.ID, AppointmentPatch{StartUTC: &free, AppointmentTypeID: &long.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Outcome != OutcomeConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", res.Outcome)
	}
	if !res.Appointment.EndTime.Equal(free.Add(40 * time.Minute)) {
		t.Errorf("expected end recomputed from new type, got %s", res.Appointment.EndTime)
	}
	if got := f.pub.types(); got[len(got)-1] != events.AppointmentRescheduled {
		t.Errorf("expected rescheduled event, got %v", got)
	}

	// Moving within its own old interval does not conflict with itself.
	nudge := local(monday, 11, 10)
	if res, err := f.svc.UpdateAppointment(ctx, a.ID, AppointmentPatch{StartUTC: &nudge}); err != nil || res.Outcome != OutcomeConfirmed {
		t.Errorf("expected self-overlapping move to succeed, got %v %v", res, err)
	}
}

func TestService_UpdateAppointment_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, local(monday, 9, 0), "+905550000001").Appointment

	missingType := uuid.New()
	if _, err := f.svc.UpdateAppointment(ctx, a.ID, AppointmentPatch{AppointmentTypeID: &missingType}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for unknown type, got %v", err)
	}
	bogus := AppointmentStatus("DONE")
	if _, err := f.svc.UpdateAppointment(ctx, a.ID, AppointmentPatch{Status: &bogus}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for bad status, got %v", err)
	}
	if _, err := f.svc.UpdateAppointment(ctx, uuid.New(), AppointmentPatch{}); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	missingDoctor := uuid.New()
	if _, err := f.svc.UpdateAppointment(ctx, a.ID, AppointmentPatch{DoctorID: &missingDoctor}); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("expected doctor not found, got %v", err)
	}
}

func TestService_DeleteAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, local(monday, 9, 0), "+905550000001").Appointment

	if err := f.svc.DeleteAppointment(ctx, a.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.svc.GetAppointment(ctx, a.ID); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
	if err := f.svc.DeleteAppointment(ctx, a.ID); !errors.Is(err, ErrAppointmentNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
	if got := f.pub.types(); got[len(got)-1] != events.AppointmentDeleted {
		t.Errorf("expected deleted event, got %v", got)
	}
}

func TestService_ListAppointments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.book(t, local(monday, 9, 0), "+905550000001").Appointment
	f.book(t, local(monday, 9, 20), "+905550000002")
	f.book(t, local(monday, 9, 40), "+905550000003")
	f.svc.CancelAppointment(ctx, first.ID)

	st := StatusConfirmed
	items, total, err := f.svc.ListAppointments(ctx, AppointmentFilter{DoctorID: &f.doctor.ID, Status: &st}, 1, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(items) != 1 {
		t.Errorf("expected page of 1 out of 2, got %d of %d", len(items), total)
	}
	if !items[0].StartTime.Equal(local(monday, 9, 20)) {
		t.Errorf("expected ordering by start time, got %s", items[0].StartTime)
	}

	from := local(monday, 9, 30)
	items, _, err = f.svc.ListAppointments(ctx, AppointmentFilter{From: &from}, 10, 0)
	if err != nil || len(items) != 1 {
		t.Errorf("expected 1 appointment after 09:30, got %d (%v)", len(items), err)
	}

	bogus := AppointmentStatus("LATE")
	if _, _, err := f.svc.ListAppointments(ctx, AppointmentFilter{Status: &bogus}, 10, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
