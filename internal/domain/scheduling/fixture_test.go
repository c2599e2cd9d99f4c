package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/booking/internal/platform/events"
)

// clinicTZ is a fixed UTC+3 zone so tests do not depend on tzdata.
var clinicTZ = time.FixedZone("UTC+3", 3*60*60)

// monday is 2025-03-03.
var monday = LocalDate{Year: 2025, Month: time.March, Day: 3}

type fixture struct {
	store    *MemoryStore
	parser   *WindowParser
	resolver *Resolver
	agg      *Aggregator
	booker   *Committer
	svc      *Service
	pub      *recordingPublisher
	doctor   *Doctor
	visit    *AppointmentType
}

// newFixture seeds one doctor who works Mondays 09:00-12:00 in 20 minute
// steps and a 20 minute visit type with no buffers.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := NewMemoryStore()
	parser, err := NewWindowParser(32)
	if err != nil {
		t.Fatalf("window parser: %v", err)
	}
	pub := &recordingPublisher{}
	f := &fixture{store: store, parser: parser, pub: pub}

	f.resolver = NewResolver(store.Availability(), parser, clinicTZ)
	f.agg = NewAggregator(f.resolver, store.Appointments(), store.AppointmentTypes(), 4, 62)
	f.booker = NewCommitter(store, store.Patients(), store.AppointmentTypes(), store.Appointments(), nil, pub, zerolog.Nop())
	f.svc = NewService(store.Doctors(), store.AppointmentTypes(), store.Availability(), store.Appointments(), store, parser, pub, zerolog.Nop())

	f.doctor = &Doctor{DisplayName: "Dr. Aydin"}
	if err := f.svc.CreateDoctor(ctx, f.doctor); err != nil {
		t.Fatalf("create doctor: %v", err)
	}
	f.visit = &AppointmentType{Name: "Checkup", DurationMin: 20}
	if err := f.svc.CreateAppointmentType(ctx, f.visit); err != nil {
		t.Fatalf("create type: %v", err)
	}
	w := &WeeklyAvailability{
		DoctorID:    f.doctor.ID,
		DayOfWeek:   int(time.Monday),
		StartTime:   "09:00",
		EndTime:     "12:00",
		SlotSizeMin: 20,
	}
	if err := f.svc.CreateWeeklyAvailability(ctx, w); err != nil {
		t.Fatalf("create weekly: %v", err)
	}
	return f
}

// local returns the UTC instant of hh:mm on date in the clinic zone.
func local(date LocalDate, hh, mm int) time.Time {
	return date.At(hh*60+mm, clinicTZ).UTC()
}

func (f *fixture) book(t *testing.T, start time.Time, phone string) *BookingResult {
	t.Helper()
	res, err := f.booker.Book(context.Background(), BookingRequest{
		DoctorID:          f.doctor.ID,
		AppointmentTypeID: f.visit.ID,
		StartUTC:          start,
		Patient:           &PatientInput{FullName: "Patient " + phone, Phone: phone},
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	return res
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type recordingLocker struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (l *recordingLocker) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	if l.err != nil {
		return nil, l.err
	}
	return func() {}, nil
}

// failingAvailability fails every read.
type failingAvailability struct {
	AvailabilityRepository
}

var errStoreDown = errors.New("store down")

func (failingAvailability) GetException(context.Context, uuid.UUID, LocalDate) (*AvailabilityException, error) {
	return nil, errStoreDown
}
