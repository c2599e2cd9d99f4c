package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/booking/pkg/pagination"
)

// MemoryStore keeps every table in maps behind one mutex. Appointment
// writes check for overlapping CONFIRMED rows under the lock, which gives
// the same guarantee as the database exclusion constraint.
//
// Transactions run one at a time: WithinTx holds txMu until the function
// returns and any rollback has been applied, so no other transaction sees
// rows that may still be undone. Writes made outside a transaction are
// final immediately.
type MemoryStore struct {
	txMu       sync.Mutex
	mu         sync.RWMutex
	doctors    map[uuid.UUID]*Doctor
	patients   map[uuid.UUID]*Patient
	types      map[uuid.UUID]*AppointmentType
	weekly     map[uuid.UUID]*WeeklyAvailability
	daily      map[uuid.UUID]*DailyAvailability
	exceptions map[uuid.UUID]*AvailabilityException
	appts      map[uuid.UUID]*Appointment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		doctors:    make(map[uuid.UUID]*Doctor),
		patients:   make(map[uuid.UUID]*Patient),
		types:      make(map[uuid.UUID]*AppointmentType),
		weekly:     make(map[uuid.UUID]*WeeklyAvailability),
		daily:      make(map[uuid.UUID]*DailyAvailability),
		exceptions: make(map[uuid.UUID]*AvailabilityException),
		appts:      make(map[uuid.UUID]*Appointment),
	}
}

func (s *MemoryStore) Doctors() DoctorRepository                   { return memDoctors{s} }
func (s *MemoryStore) Patients() PatientRepository                 { return memPatients{s} }
func (s *MemoryStore) AppointmentTypes() AppointmentTypeRepository { return memTypes{s} }
func (s *MemoryStore) Availability() AvailabilityRepository        { return memAvailability{s} }
func (s *MemoryStore) Appointments() AppointmentRepository         { return memAppointments{s} }

// Ping lets the memory store stand in for a pool in health checks.
func (s *MemoryStore) Ping(context.Context) error { return nil }

type memTxKey struct{}

type memTx struct{ undo []func() }

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{}
	err := fn(context.WithValue(ctx, memTxKey{}, tx))
	if err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
	}
	return err
}

// onRollback registers f to run (with s.mu held) if the surrounding
// transaction fails. Outside a transaction writes are final.
func (s *MemoryStore) onRollback(ctx context.Context, f func()) {
	if tx, ok := ctx.Value(memTxKey{}).(*memTx); ok {
		tx.undo = append(tx.undo, f)
	}
}

func page[T any](items []T, limit, offset int) ([]T, int) {
	if items == nil {
		items = []T{}
	}
	start, end := pagination.Params{Limit: limit, Offset: offset}.Window(len(items))
	return items[start:end], len(items)
}

// -- Doctors --

type memDoctors struct{ s *MemoryStore }

func (r memDoctors) Create(ctx context.Context, d *Doctor) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d.ID = uuid.New()
	d.CreatedAt = time.Now().UTC()
	cp := *d
	r.s.doctors[d.ID] = &cp
	r.s.onRollback(ctx, func() { delete(r.s.doctors, cp.ID) })
	return nil
}

func (r memDoctors) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (r memDoctors) Update(ctx context.Context, d *Doctor) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.doctors[d.ID]
	if !ok {
		return ErrDoctorNotFound
	}
	d.CreatedAt = prev.CreatedAt
	cp := *d
	r.s.doctors[d.ID] = &cp
	r.s.onRollback(ctx, func() { r.s.doctors[prev.ID] = prev })
	return nil
}

// Delete cascades to the doctor's availability and appointments, as the
// schema's foreign keys do.
func (r memDoctors) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.doctors[id]; !ok {
		return ErrDoctorNotFound
	}
	delete(r.s.doctors, id)
	for k, w := range r.s.weekly {
		if w.DoctorID == id {
			delete(r.s.weekly, k)
		}
	}
	for k, d := range r.s.daily {
		if d.DoctorID == id {
			delete(r.s.daily, k)
		}
	}
	for k, e := range r.s.exceptions {
		if e.DoctorID == id {
			delete(r.s.exceptions, k)
		}
	}
	for k, a := range r.s.appts {
		if a.DoctorID == id {
			delete(r.s.appts, k)
		}
	}
	return nil
}

func (r memDoctors) List(_ context.Context, limit, offset int) ([]*Doctor, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	items := make([]*Doctor, 0, len(r.s.doctors))
	for _, d := range r.s.doctors {
		cp := *d
		items = append(items, &cp)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].DisplayName != items[j].DisplayName {
			return items[i].DisplayName < items[j].DisplayName
		}
		return items[i].ID.String() < items[j].ID.String()
	})
	out, total := page(items, limit, offset)
	return out, total, nil
}

// -- Patients --

type memPatients struct{ s *MemoryStore }

func (r memPatients) FindByPhone(_ context.Context, phone string) (*Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if p := r.s.patientByPhone(phone); p != nil {
		cp := *p
		return &cp, nil
	}
	return nil, ErrPatientNotFound
}

func (s *MemoryStore) patientByPhone(phone string) *Patient {
	for _, p := range s.patients {
		if p.Phone == phone {
			return p
		}
	}
	return nil
}

func (r memPatients) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (r memPatients) Create(ctx context.Context, p *Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing := r.s.patientByPhone(p.Phone); existing != nil {
		*p = *existing
		return nil
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now().UTC()
	cp := *p
	r.s.patients[p.ID] = &cp
	r.s.onRollback(ctx, func() { delete(r.s.patients, cp.ID) })
	return nil
}

// -- Appointment types --

type memTypes struct{ s *MemoryStore }

func (r memTypes) Create(ctx context.Context, t *AppointmentType) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t.ID = uuid.New()
	t.CreatedAt = time.Now().UTC()
	cp := *t
	r.s.types[t.ID] = &cp
	r.s.onRollback(ctx, func() { delete(r.s.types, cp.ID) })
	return nil
}

func (r memTypes) GetByID(_ context.Context, id uuid.UUID) (*AppointmentType, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.types[id]
	if !ok {
		return nil, ErrAppointmentTypeNotFound
	}
	cp := *t
	return &cp, nil
}

func (r memTypes) Update(ctx context.Context, t *AppointmentType) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.types[t.ID]
	if !ok {
		return ErrAppointmentTypeNotFound
	}
	t.CreatedAt = prev.CreatedAt
	cp := *t
	r.s.types[t.ID] = &cp
	r.s.onRollback(ctx, func() { r.s.types[prev.ID] = prev })
	return nil
}

func (r memTypes) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.types[id]; !ok {
		return ErrAppointmentTypeNotFound
	}
	for _, a := range r.s.appts {
		if a.AppointmentTypeID == id {
			return ErrInUse
		}
	}
	delete(r.s.types, id)
	return nil
}

func (r memTypes) List(_ context.Context, limit, offset int) ([]*AppointmentType, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	items := make([]*AppointmentType, 0, len(r.s.types))
	for _, t := range r.s.types {
		cp := *t
		items = append(items, &cp)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID.String() < items[j].ID.String()
	})
	out, total := page(items, limit, offset)
	return out, total, nil
}

// -- Availability --

type memAvailability struct{ s *MemoryStore }

func (r memAvailability) ListWeekly(_ context.Context, doctorID uuid.UUID, day time.Weekday) ([]*WeeklyAvailability, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*WeeklyAvailability
	for _, w := range r.s.weekly {
		if w.DoctorID == doctorID && w.DayOfWeek == int(day) {
			cp := *w
			out = append(out, &cp)
		}
	}
	sortWeekly(out)
	return out, nil
}

func sortWeekly(items []*WeeklyAvailability) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.DoctorID != b.DoctorID {
			return a.DoctorID.String() < b.DoctorID.String()
		}
		if a.DayOfWeek != b.DayOfWeek {
			return a.DayOfWeek < b.DayOfWeek
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID.String() < b.ID.String()
	})
}

func (r memAvailability) ListDaily(_ context.Context, doctorID uuid.UUID, date LocalDate) ([]*DailyAvailability, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*DailyAvailability
	for _, d := range r.s.daily {
		if d.DoctorID == doctorID && d.Date == date {
			cp := *d
			out = append(out, &cp)
		}
	}
	sortDaily(out)
	return out, nil
}

func sortDaily(items []*DailyAvailability) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Date != b.Date {
			return a.Date.Before(b.Date)
		}
		if a.DoctorID != b.DoctorID {
			return a.DoctorID.String() < b.DoctorID.String()
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID.String() < b.ID.String()
	})
}

func (r memAvailability) GetException(_ context.Context, doctorID uuid.UUID, date LocalDate) (*AvailabilityException, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, e := range r.s.exceptions {
		if e.DoctorID == doctorID && e.Date == date {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memAvailability) CreateWeekly(ctx context.Context, w *WeeklyAvailability) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.doctors[w.DoctorID]; !ok {
		return ErrDoctorNotFound
	}
	w.ID = uuid.New()
	w.CreatedAt = time.Now().UTC()
	cp := *w
	r.s.weekly[w.ID] = &cp
	r.s.onRollback(ctx, func() { delete(r.s.weekly, cp.ID) })
	return nil
}

func (r memAvailability) GetWeekly(_ context.Context, id uuid.UUID) (*WeeklyAvailability, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	w, ok := r.s.weekly[id]
	if !ok {
		return nil, ErrAvailabilityNotFound
	}
	cp := *w
	return &cp, nil
}

func (r memAvailability) UpdateWeekly(ctx context.Context, w *WeeklyAvailability) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.weekly[w.ID]
	if !ok {
		return ErrAvailabilityNotFound
	}
	if _, ok := r.s.doctors[w.DoctorID]; !ok {
		return ErrDoctorNotFound
	}
	w.CreatedAt = prev.CreatedAt
	cp := *w
	r.s.weekly[w.ID] = &cp
	r.s.onRollback(ctx, func() { r.s.weekly[prev.ID] = prev })
	return nil
}

func (r memAvailability) DeleteWeekly(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.weekly[id]; !ok {
		return ErrAvailabilityNotFound
	}
	delete(r.s.weekly, id)
	return nil
}

func (r memAvailability) SearchWeekly(_ context.Context, doctorID *uuid.UUID, limit, offset int) ([]*WeeklyAvailability, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var items []*WeeklyAvailability
	for _, w := range r.s.weekly {
		if doctorID == nil || w.DoctorID == *doctorID {
			cp := *w
			items = append(items, &cp)
		}
	}
	sortWeekly(items)
	out, total := page(items, limit, offset)
	return out, total, nil
}

func (r memAvailability) CreateDaily(ctx context.Context, d *DailyAvailability) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.doctors[d.DoctorID]; !ok {
		return ErrDoctorNotFound
	}
	d.ID = uuid.New()
	d.CreatedAt = time.Now().UTC()
	cp := *d
	r.s.daily[d.ID] = &cp
	r.s.onRollback(ctx, func() { delete(r.s.daily, cp.ID) })
	return nil
}

func (r memAvailability) GetDaily(_ context.Context, id uuid.UUID) (*DailyAvailability, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.daily[id]
	if !ok {
		return nil, ErrAvailabilityNotFound
	}
	cp := *d
	return &cp, nil
}

func (r memAvailability) UpdateDaily(ctx context.Context, d *DailyAvailability) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.daily[d.ID]
	if !ok {
		return ErrAvailabilityNotFound
	}
	if _, ok := r.s.doctors[d.DoctorID]; !ok {
		return ErrDoctorNotFound
	}
	d.CreatedAt = prev.CreatedAt
	cp := *d
	r.s.daily[d.ID] = &cp
	r.s.onRollback(ctx, func() { r.s.daily[prev.ID] = prev })
	return nil
}

func (r memAvailability) DeleteDaily(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.daily[id]; !ok {
		return ErrAvailabilityNotFound
	}
	delete(r.s.daily, id)
	return nil
}

func (r memAvailability) SearchDaily(_ context.Context, doctorID *uuid.UUID, limit, offset int) ([]*DailyAvailability, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var items []*DailyAvailability
	for _, d := range r.s.daily {
		if doctorID == nil || d.DoctorID == *doctorID {
			cp := *d
			items = append(items, &cp)
		}
	}
	sortDaily(items)
	out, total := page(items, limit, offset)
	return out, total, nil
}

func (s *MemoryStore) exceptionTaken(e *AvailabilityException) bool {
	for _, other := range s.exceptions {
		if other.ID != e.ID && other.DoctorID == e.DoctorID && other.Date == e.Date {
			return true
		}
	}
	return false
}

func (r memAvailability) CreateException(ctx context.Context, e *AvailabilityException) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.doctors[e.DoctorID]; !ok {
		return ErrDoctorNotFound
	}
	if r.s.exceptionTaken(e) {
		return errDuplicateException
	}
	e.ID = uuid.New()
	e.CreatedAt = time.Now().UTC()
	cp := *e
	r.s.exceptions[e.ID] = &cp
	r.s.onRollback(ctx, func() { delete(r.s.exceptions, cp.ID) })
	return nil
}

func (r memAvailability) GetExceptionByID(_ context.Context, id uuid.UUID) (*AvailabilityException, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	e, ok := r.s.exceptions[id]
	if !ok {
		return nil, ErrExceptionNotFound
	}
	cp := *e
	return &cp, nil
}

func (r memAvailability) UpdateException(ctx context.Context, e *AvailabilityException) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.exceptions[e.ID]
	if !ok {
		return ErrExceptionNotFound
	}
	if _, ok := r.s.doctors[e.DoctorID]; !ok {
		return ErrDoctorNotFound
	}
	if r.s.exceptionTaken(e) {
		return errDuplicateException
	}
	e.CreatedAt = prev.CreatedAt
	cp := *e
	r.s.exceptions[e.ID] = &cp
	r.s.onRollback(ctx, func() { r.s.exceptions[prev.ID] = prev })
	return nil
}

func (r memAvailability) DeleteException(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.exceptions[id]; !ok {
		return ErrExceptionNotFound
	}
	delete(r.s.exceptions, id)
	return nil
}

func (r memAvailability) SearchExceptions(_ context.Context, doctorID *uuid.UUID, limit, offset int) ([]*AvailabilityException, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var items []*AvailabilityException
	for _, e := range r.s.exceptions {
		if doctorID == nil || e.DoctorID == *doctorID {
			cp := *e
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Date != items[j].Date {
			return items[i].Date.Before(items[j].Date)
		}
		return items[i].ID.String() < items[j].ID.String()
	})
	out, total := page(items, limit, offset)
	return out, total, nil
}

// -- Appointments --

type memAppointments struct{ s *MemoryStore }

func sortAppointments(items []*Appointment) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].StartTime.Equal(items[j].StartTime) {
			return items[i].StartTime.Before(items[j].StartTime)
		}
		return items[i].ID.String() < items[j].ID.String()
	})
}

func (r memAppointments) ListConfirmedInRange(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*Appointment
	for _, a := range r.s.appts {
		if a.DoctorID == doctorID && a.Status == StatusConfirmed && a.Overlaps(from, to) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sortAppointments(out)
	return out, nil
}

// checkWrite enforces foreign keys and the non-overlap rule for a. Callers
// hold s.mu.
func (s *MemoryStore) checkWrite(a *Appointment) error {
	if _, ok := s.doctors[a.DoctorID]; !ok {
		return ErrDoctorNotFound
	}
	if _, ok := s.patients[a.PatientID]; !ok {
		return ErrPatientNotFound
	}
	if _, ok := s.types[a.AppointmentTypeID]; !ok {
		return ErrAppointmentTypeNotFound
	}
	if !a.EndTime.After(a.StartTime) {
		return validationf("appointment must end after it starts")
	}
	if a.Status != StatusConfirmed {
		return nil
	}
	for _, other := range s.appts {
		if other.ID == a.ID || other.DoctorID != a.DoctorID || other.Status != StatusConfirmed {
			continue
		}
		if other.Overlaps(a.StartTime, a.EndTime) {
			return ErrOverlap
		}
	}
	return nil
}

func (r memAppointments) Create(ctx context.Context, a *Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if err := r.s.checkWrite(a); err != nil {
		return err
	}
	a.CreatedAt = time.Now().UTC()
	cp := *a
	r.s.appts[a.ID] = &cp
	r.s.onRollback(ctx, func() { delete(r.s.appts, cp.ID) })
	return nil
}

func (r memAppointments) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r memAppointments) Update(ctx context.Context, a *Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.appts[a.ID]
	if !ok {
		return ErrAppointmentNotFound
	}
	if err := r.s.checkWrite(a); err != nil {
		return err
	}
	a.CreatedAt = prev.CreatedAt
	cp := *a
	r.s.appts[a.ID] = &cp
	r.s.onRollback(ctx, func() { r.s.appts[prev.ID] = prev })
	return nil
}

func (r memAppointments) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.appts[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(r.s.appts, id)
	return nil
}

func (r memAppointments) Search(_ context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var items []*Appointment
	for _, a := range r.s.appts {
		if f.Matches(a) {
			cp := *a
			items = append(items, &cp)
		}
	}
	sortAppointments(items)
	out, total := page(items, limit, offset)
	return out, total, nil
}
