package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Lookups return an error wrapping ErrNotFound (or one of its specific
// forms) when no row matches. Deletes do the same when nothing was removed.

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Doctor, int, error)
}

type PatientRepository interface {
	FindByPhone(ctx context.Context, phone string) (*Patient, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	// Create inserts p. If a patient with the same phone already exists, p is
	// overwritten with that row instead, so concurrent first bookings from
	// one phone converge on a single patient.
	Create(ctx context.Context, p *Patient) error
}

type AppointmentTypeRepository interface {
	Create(ctx context.Context, t *AppointmentType) error
	GetByID(ctx context.Context, id uuid.UUID) (*AppointmentType, error)
	Update(ctx context.Context, t *AppointmentType) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*AppointmentType, int, error)
}

type AvailabilityRepository interface {
	// Read path used by the resolver.
	ListWeekly(ctx context.Context, doctorID uuid.UUID, dayOfWeek time.Weekday) ([]*WeeklyAvailability, error)
	ListDaily(ctx context.Context, doctorID uuid.UUID, date LocalDate) ([]*DailyAvailability, error)
	// GetException returns (nil, nil) when the date has no exception.
	GetException(ctx context.Context, doctorID uuid.UUID, date LocalDate) (*AvailabilityException, error)

	CreateWeekly(ctx context.Context, w *WeeklyAvailability) error
	GetWeekly(ctx context.Context, id uuid.UUID) (*WeeklyAvailability, error)
	UpdateWeekly(ctx context.Context, w *WeeklyAvailability) error
	DeleteWeekly(ctx context.Context, id uuid.UUID) error
	SearchWeekly(ctx context.Context, doctorID *uuid.UUID, limit, offset int) ([]*WeeklyAvailability, int, error)

	CreateDaily(ctx context.Context, d *DailyAvailability) error
	GetDaily(ctx context.Context, id uuid.UUID) (*DailyAvailability, error)
	UpdateDaily(ctx context.Context, d *DailyAvailability) error
	DeleteDaily(ctx context.Context, id uuid.UUID) error
	SearchDaily(ctx context.Context, doctorID *uuid.UUID, limit, offset int) ([]*DailyAvailability, int, error)

	CreateException(ctx context.Context, e *AvailabilityException) error
	GetExceptionByID(ctx context.Context, id uuid.UUID) (*AvailabilityException, error)
	UpdateException(ctx context.Context, e *AvailabilityException) error
	DeleteException(ctx context.Context, id uuid.UUID) error
	SearchExceptions(ctx context.Context, doctorID *uuid.UUID, limit, offset int) ([]*AvailabilityException, int, error)
}

type AppointmentRepository interface {
	// ListConfirmedInRange returns the doctor's CONFIRMED appointments that
	// intersect [from, to), ordered by start.
	ListConfirmedInRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Appointment, error)
	// Create and Update return ErrOverlap when a CONFIRMED row would overlap
	// another CONFIRMED row of the same doctor.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
}

// TxRunner runs fn in a transaction carried by the context passed to fn.
// An error from fn rolls back every write made through that context.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
