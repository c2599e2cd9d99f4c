package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/booking/internal/platform/db"
)

const (
	pgExclusionViolation  = "23P01"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"

	overlapConstraint = "appointments_no_overlap"
)

// mapPgError translates constraint violations into domain errors. Anything
// unrecognised is returned unchanged.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgExclusionViolation:
		if pgErr.ConstraintName == overlapConstraint {
			return ErrOverlap
		}
	case pgForeignKeyViolation:
		switch {
		case strings.Contains(pgErr.ConstraintName, "doctor_id"):
			return ErrDoctorNotFound
		case strings.Contains(pgErr.ConstraintName, "patient_id"):
			return ErrPatientNotFound
		case strings.Contains(pgErr.ConstraintName, "appointment_type_id"):
			return ErrAppointmentTypeNotFound
		}
	case pgUniqueViolation:
		if pgErr.ConstraintName == "avail_exc_doctor_date_key" {
			return errDuplicateException
		}
	case pgCheckViolation:
		return fmt.Errorf("%w: %s", ErrValidation, pgErr.Message)
	}
	return err
}

func notFound(err, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return err
}

func expectOne(tag pgconn.CommandTag, err error, sentinel error) error {
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel
	}
	return nil
}

func localDateFromDB(t time.Time) LocalDate { return LocalDateOf(t) }

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const doctorCols = `id, display_name, specialties, languages, created_at`

func (r *doctorRepoPG) scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.DisplayName, &d.Specialties, &d.Languages, &d.CreatedAt)
	return &d, err
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctors (id, display_name, specialties, languages)
		VALUES ($1,$2,$3,$4) RETURNING created_at`,
		d.ID, d.DisplayName, d.Specialties, d.Languages).Scan(&d.CreatedAt)
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := r.scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctors WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, ErrDoctorNotFound)
	}
	return d, nil
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctors SET display_name=$2, specialties=$3, languages=$4
		WHERE id = $1 RETURNING created_at`,
		d.ID, d.DisplayName, d.Specialties, d.Languages).Scan(&d.CreatedAt)
	return notFound(err, ErrDoctorNotFound)
}

func (r *doctorRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctors WHERE id = $1`, id)
	return expectOne(tag, err, ErrDoctorNotFound)
}

func (r *doctorRepoPG) List(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctors`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+doctorCols+` FROM doctors ORDER BY display_name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []*Doctor{}
	for rows.Next() {
		d, err := r.scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const patientCols = `id, full_name, phone, email, created_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FullName, &p.Phone, &p.Email, &p.CreatedAt)
	return &p, err
}

func (r *patientRepoPG) FindByPhone(ctx context.Context, phone string) (*Patient, error) {
	p, err := r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE phone = $1`, phone))
	if err != nil {
		return nil, notFound(err, ErrPatientNotFound)
	}
	return p, nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, ErrPatientNotFound)
	}
	return p, nil
}

// Create relies on the unique phone index: a conflicting insert becomes a
// no-op update that returns the existing row, so the transaction is never
// aborted by a concurrent first booking from the same phone.
func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	created, err := r.scanPatient(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, full_name, phone, email)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (phone) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING `+patientCols,
		uuid.New(), p.FullName, p.Phone, p.Email))
	if err != nil {
		return mapPgError(err)
	}
	*p = *created
	return nil
}

// =========== Appointment Type Repository ===========

type appointmentTypeRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentTypeRepoPG(pool *pgxpool.Pool) AppointmentTypeRepository {
	return &appointmentTypeRepoPG{pool: pool}
}

func (r *appointmentTypeRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const typeCols = `id, name, duration_min, buffer_before_min, buffer_after_min,
	price_minor_unit, currency, created_at`

func (r *appointmentTypeRepoPG) scanType(row pgx.Row) (*AppointmentType, error) {
	var t AppointmentType
	err := row.Scan(&t.ID, &t.Name, &t.DurationMin, &t.BufferBeforeMin, &t.BufferAfterMin,
		&t.PriceMinorUnit, &t.Currency, &t.CreatedAt)
	return &t, err
}

func (r *appointmentTypeRepoPG) Create(ctx context.Context, t *AppointmentType) error {
	t.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment_types (id, name, duration_min, buffer_before_min, buffer_after_min,
			price_minor_unit, currency)
		VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING created_at`,
		t.ID, t.Name, t.DurationMin, t.BufferBeforeMin, t.BufferAfterMin,
		t.PriceMinorUnit, t.Currency).Scan(&t.CreatedAt)
	return mapPgError(err)
}

func (r *appointmentTypeRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*AppointmentType, error) {
	t, err := r.scanType(r.conn(ctx).QueryRow(ctx, `SELECT `+typeCols+` FROM appointment_types WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, ErrAppointmentTypeNotFound)
	}
	return t, nil
}

func (r *appointmentTypeRepoPG) Update(ctx context.Context, t *AppointmentType) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment_types SET name=$2, duration_min=$3, buffer_before_min=$4,
			buffer_after_min=$5, price_minor_unit=$6, currency=$7
		WHERE id = $1 RETURNING created_at`,
		t.ID, t.Name, t.DurationMin, t.BufferBeforeMin, t.BufferAfterMin,
		t.PriceMinorUnit, t.Currency).Scan(&t.CreatedAt)
	return mapPgError(notFound(err, ErrAppointmentTypeNotFound))
}

func (r *appointmentTypeRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment_types WHERE id = $1`, id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return ErrInUse
	}
	return expectOne(tag, err, ErrAppointmentTypeNotFound)
}

func (r *appointmentTypeRepoPG) List(ctx context.Context, limit, offset int) ([]*AppointmentType, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment_types`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+typeCols+` FROM appointment_types ORDER BY name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []*AppointmentType{}
	for rows.Next() {
		t, err := r.scanType(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

// =========== Availability Repository ===========

type availabilityRepoPG struct{ pool *pgxpool.Pool }

func NewAvailabilityRepoPG(pool *pgxpool.Pool) AvailabilityRepository {
	return &availabilityRepoPG{pool: pool}
}

func (r *availabilityRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const weeklyCols = `id, doctor_id, day_of_week, to_char(start_time, 'HH24:MI'),
	to_char(end_time, 'HH24:MI'), slot_size_min, created_at`

func (r *availabilityRepoPG) scanWeekly(row pgx.Row) (*WeeklyAvailability, error) {
	var w WeeklyAvailability
	err := row.Scan(&w.ID, &w.DoctorID, &w.DayOfWeek, &w.StartTime, &w.EndTime, &w.SlotSizeMin, &w.CreatedAt)
	return &w, err
}

const dailyCols = `id, doctor_id, date, to_char(start_time, 'HH24:MI'),
	to_char(end_time, 'HH24:MI'), slot_size_min, created_at`

func (r *availabilityRepoPG) scanDaily(row pgx.Row) (*DailyAvailability, error) {
	var d DailyAvailability
	var date time.Time
	err := row.Scan(&d.ID, &d.DoctorID, &date, &d.StartTime, &d.EndTime, &d.SlotSizeMin, &d.CreatedAt)
	d.Date = localDateFromDB(date)
	return &d, err
}

const exceptionCols = `id, doctor_id, date, is_closed, windows, note, created_at`

func (r *availabilityRepoPG) scanException(row pgx.Row) (*AvailabilityException, error) {
	var e AvailabilityException
	var date time.Time
	err := row.Scan(&e.ID, &e.DoctorID, &date, &e.IsClosed, &e.Windows, &e.Note, &e.CreatedAt)
	e.Date = localDateFromDB(date)
	return &e, err
}

func (r *availabilityRepoPG) ListWeekly(ctx context.Context, doctorID uuid.UUID, day time.Weekday) ([]*WeeklyAvailability, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+weeklyCols+` FROM availabilities
		WHERE doctor_id = $1 AND day_of_week = $2 ORDER BY start_time, id`, doctorID, int(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*WeeklyAvailability
	for rows.Next() {
		w, err := r.scanWeekly(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

func (r *availabilityRepoPG) ListDaily(ctx context.Context, doctorID uuid.UUID, date LocalDate) ([]*DailyAvailability, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+dailyCols+` FROM daily_availabilities
		WHERE doctor_id = $1 AND date = $2::date ORDER BY start_time, id`, doctorID, date.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*DailyAvailability
	for rows.Next() {
		d, err := r.scanDaily(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *availabilityRepoPG) GetException(ctx context.Context, doctorID uuid.UUID, date LocalDate) (*AvailabilityException, error) {
	e, err := r.scanException(r.conn(ctx).QueryRow(ctx, `SELECT `+exceptionCols+` FROM availability_exceptions
		WHERE doctor_id = $1 AND date = $2::date`, doctorID, date.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *availabilityRepoPG) CreateWeekly(ctx context.Context, w *WeeklyAvailability) error {
	w.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO availabilities (id, doctor_id, day_of_week, start_time, end_time, slot_size_min)
		VALUES ($1,$2,$3,$4::time,$5::time,$6) RETURNING created_at`,
		w.ID, w.DoctorID, w.DayOfWeek, w.StartTime, w.EndTime, w.SlotSizeMin).Scan(&w.CreatedAt)
	return mapPgError(err)
}

func (r *availabilityRepoPG) GetWeekly(ctx context.Context, id uuid.UUID) (*WeeklyAvailability, error) {
	w, err := r.scanWeekly(r.conn(ctx).QueryRow(ctx, `SELECT `+weeklyCols+` FROM availabilities WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, ErrAvailabilityNotFound)
	}
	return w, nil
}

func (r *availabilityRepoPG) UpdateWeekly(ctx context.Context, w *WeeklyAvailability) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE availabilities SET doctor_id=$2, day_of_week=$3, start_time=$4::time,
			end_time=$5::time, slot_size_min=$6
		WHERE id = $1 RETURNING created_at`,
		w.ID, w.DoctorID, w.DayOfWeek, w.StartTime, w.EndTime, w.SlotSizeMin).Scan(&w.CreatedAt)
	return mapPgError(notFound(err, ErrAvailabilityNotFound))
}

func (r *availabilityRepoPG) DeleteWeekly(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM availabilities WHERE id = $1`, id)
	return expectOne(tag, err, ErrAvailabilityNotFound)
}

func (r *availabilityRepoPG) SearchWeekly(ctx context.Context, doctorID *uuid.UUID, limit, offset int) ([]*WeeklyAvailability, int, error) {
	where, args := doctorFilter(doctorID)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM availabilities`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + weeklyCols + ` FROM availabilities` + where +
		fmt.Sprintf(` ORDER BY doctor_id, day_of_week, start_time, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []*WeeklyAvailability{}
	for rows.Next() {
		w, err := r.scanWeekly(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, w)
	}
	return items, total, rows.Err()
}

func doctorFilter(doctorID *uuid.UUID) (string, []interface{}) {
	if doctorID == nil {
		return "", nil
	}
	return ` WHERE doctor_id = $1`, []interface{}{*doctorID}
}

func (r *availabilityRepoPG) CreateDaily(ctx context.Context, d *DailyAvailability) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO daily_availabilities (id, doctor_id, date, start_time, end_time, slot_size_min)
		VALUES ($1,$2,$3::date,$4::time,$5::time,$6) RETURNING created_at`,
		d.ID, d.DoctorID, d.Date.String(), d.StartTime, d.EndTime, d.SlotSizeMin).Scan(&d.CreatedAt)
	return mapPgError(err)
}

func (r *availabilityRepoPG) GetDaily(ctx context.Context, id uuid.UUID) (*DailyAvailability, error) {
	d, err := r.scanDaily(r.conn(ctx).QueryRow(ctx, `SELECT `+dailyCols+` FROM daily_availabilities WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, ErrAvailabilityNotFound)
	}
	return d, nil
}

func (r *availabilityRepoPG) UpdateDaily(ctx context.Context, d *DailyAvailability) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE daily_availabilities SET doctor_id=$2, date=$3::date, start_time=$4::time,
			end_time=$5::time, slot_size_min=$6
		WHERE id = $1 RETURNING created_at`,
		d.ID, d.DoctorID, d.Date.String(), d.StartTime, d.EndTime, d.SlotSizeMin).Scan(&d.CreatedAt)
	return mapPgError(notFound(err, ErrAvailabilityNotFound))
}

func (r *availabilityRepoPG) DeleteDaily(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM daily_availabilities WHERE id = $1`, id)
	return expectOne(tag, err, ErrAvailabilityNotFound)
}

func (r *availabilityRepoPG) SearchDaily(ctx context.Context, doctorID *uuid.UUID, limit, offset int) ([]*DailyAvailability, int, error) {
	where, args := doctorFilter(doctorID)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM daily_availabilities`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + dailyCols + ` FROM daily_availabilities` + where +
		fmt.Sprintf(` ORDER BY date, doctor_id, start_time, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []*DailyAvailability{}
	for rows.Next() {
		d, err := r.scanDaily(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *availabilityRepoPG) CreateException(ctx context.Context, e *AvailabilityException) error {
	e.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO availability_exceptions (id, doctor_id, date, is_closed, windows, note)
		VALUES ($1,$2,$3::date,$4,$5,$6) RETURNING created_at`,
		e.ID, e.DoctorID, e.Date.String(), e.IsClosed, e.Windows, e.Note).Scan(&e.CreatedAt)
	return mapPgError(err)
}

func (r *availabilityRepoPG) GetExceptionByID(ctx context.Context, id uuid.UUID) (*AvailabilityException, error) {
	e, err := r.scanException(r.conn(ctx).QueryRow(ctx, `SELECT `+exceptionCols+` FROM availability_exceptions WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, ErrExceptionNotFound)
	}
	return e, nil
}

func (r *availabilityRepoPG) UpdateException(ctx context.Context, e *AvailabilityException) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE availability_exceptions SET doctor_id=$2, date=$3::date, is_closed=$4, windows=$5, note=$6
		WHERE id = $1 RETURNING created_at`,
		e.ID, e.DoctorID, e.Date.String(), e.IsClosed, e.Windows, e.Note).Scan(&e.CreatedAt)
	return mapPgError(notFound(err, ErrExceptionNotFound))
}

func (r *availabilityRepoPG) DeleteException(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM availability_exceptions WHERE id = $1`, id)
	return expectOne(tag, err, ErrExceptionNotFound)
}

func (r *availabilityRepoPG) SearchExceptions(ctx context.Context, doctorID *uuid.UUID, limit, offset int) ([]*AvailabilityException, int, error) {
	where, args := doctorFilter(doctorID)
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM availability_exceptions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + exceptionCols + ` FROM availability_exceptions` + where +
		fmt.Sprintf(` ORDER BY date, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []*AvailabilityException{}
	for rows.Next() {
		e, err := r.scanException(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const apptCols = `id, patient_id, doctor_id, appointment_type_id, start_time, end_time,
	status, notes, created_at`

func (r *appointmentRepoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.AppointmentTypeID, &a.StartTime, &a.EndTime,
		&status, &a.Notes, &a.CreatedAt)
	a.Status = AppointmentStatus(status)
	a.StartTime, a.EndTime, a.CreatedAt = a.StartTime.UTC(), a.EndTime.UTC(), a.CreatedAt.UTC()
	return &a, err
}

func (r *appointmentRepoPG) collect(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	items := []*Appointment{}
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *appointmentRepoPG) ListConfirmedInRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointments
		WHERE doctor_id = $1 AND status = 'CONFIRMED' AND end_time > $2 AND start_time < $3
		ORDER BY start_time, id`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_type_id,
			start_time, end_time, status, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING created_at`,
		a.ID, a.PatientID, a.DoctorID, a.AppointmentTypeID,
		a.StartTime, a.EndTime, string(a.Status), a.Notes).Scan(&a.CreatedAt)
	return mapPgError(err)
}

// GetByID locks the row when called inside a transaction, so a status
// change and a reschedule of the same appointment cannot interleave.
func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	query := `SELECT ` + apptCols + ` FROM appointments WHERE id = $1`
	if db.TxFromContext(ctx) != nil {
		query += ` FOR UPDATE`
	}
	a, err := r.scanAppointment(r.conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, ErrAppointmentNotFound)
	}
	return a, nil
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments SET doctor_id=$2, appointment_type_id=$3, start_time=$4,
			end_time=$5, status=$6, notes=$7
		WHERE id = $1 RETURNING created_at`,
		a.ID, a.DoctorID, a.AppointmentTypeID, a.StartTime, a.EndTime,
		string(a.Status), a.Notes).Scan(&a.CreatedAt)
	return mapPgError(notFound(err, ErrAppointmentNotFound))
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	return expectOne(tag, err, ErrAppointmentNotFound)
}

func (r *appointmentRepoPG) Search(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.DoctorID != nil {
		where += fmt.Sprintf(` AND doctor_id = $%d`, idx)
		args = append(args, *f.DoctorID)
		idx++
	}
	if f.PatientID != nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.Status != nil {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, string(*f.Status))
		idx++
	}
	if f.From != nil {
		where += fmt.Sprintf(` AND start_time >= $%d`, idx)
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where += fmt.Sprintf(` AND start_time < $%d`, idx)
		args = append(args, *f.To)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + apptCols + ` FROM appointments` + where +
		fmt.Sprintf(` ORDER BY start_time, id LIMIT $%d OFFSET $%d`, idx, idx+1)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := r.collect(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
