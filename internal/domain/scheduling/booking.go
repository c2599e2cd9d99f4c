package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/booking/internal/platform/events"
	"github.com/clinic/booking/internal/platform/lock"
)

type Outcome string

const (
	OutcomeConfirmed Outcome = "CONFIRMED"
	OutcomeSlotTaken Outcome = "SLOT_TAKEN"
)

// BookingResult reports how a booking or reschedule ended. Losing a race
// for the slot is an outcome, not an error.
type BookingResult struct {
	Outcome     Outcome
	Appointment *Appointment
}

type PatientInput struct {
	FullName string
	Phone    string
	Email    *string
}

// BookingRequest names the patient either by PatientID or by Patient
// details; exactly one must be set.
type BookingRequest struct {
	DoctorID          uuid.UUID
	AppointmentTypeID uuid.UUID
	StartUTC          time.Time
	PatientID         *uuid.UUID
	Patient           *PatientInput
	Notes             *string
}

func (r BookingRequest) validate() error {
	if r.DoctorID == uuid.Nil {
		return validationf("doctorId is required")
	}
	if r.AppointmentTypeID == uuid.Nil {
		return validationf("appointmentTypeId is required")
	}
	if r.StartUTC.IsZero() {
		return validationf("startUtc is required")
	}
	switch {
	case r.PatientID != nil && r.Patient != nil:
		return validationf("give either patientId or patient, not both")
	case r.PatientID == nil && r.Patient == nil:
		return validationf("patientId or patient is required")
	case r.PatientID != nil && *r.PatientID == uuid.Nil:
		return validationf("patientId is required")
	case r.Patient != nil:
		if strings.TrimSpace(r.Patient.FullName) == "" {
			return validationf("patient fullName is required")
		}
		if strings.TrimSpace(r.Patient.Phone) == "" {
			return validationf("patient phone is required")
		}
	}
	return nil
}

// Committer writes bookings. Availability is not re-derived here: the
// store's non-overlap guarantee is the only arbiter between concurrent
// requests for the same time.
type Committer struct {
	tx       TxRunner
	patients PatientRepository
	types    AppointmentTypeRepository
	appts    AppointmentRepository
	locker   lock.Locker
	events   events.Publisher
	logger   zerolog.Logger
}

func NewCommitter(tx TxRunner, patients PatientRepository, types AppointmentTypeRepository, appts AppointmentRepository, locker lock.Locker, pub events.Publisher, logger zerolog.Logger) *Committer {
	if locker == nil {
		locker = lock.Nop()
	}
	if pub == nil {
		pub = events.Nop()
	}
	return &Committer{
		tx:       tx,
		patients: patients,
		types:    types,
		appts:    appts,
		locker:   locker,
		events:   pub,
		logger:   logger.With().Str("component", "booking").Logger(),
	}
}

// SlotLockKey identifies one doctor's start instant for the advisory lock.
func SlotLockKey(doctorID uuid.UUID, start time.Time) string {
	return "booking:slot:" + doctorID.String() + ":" + start.UTC().Format(time.RFC3339)
}

// Book creates a CONFIRMED appointment, or reports OutcomeSlotTaken when an
// overlapping confirmed appointment wins. Patient creation and the insert
// share one transaction, so a call leaves either both rows or neither.
func (c *Committer) Book(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	start := req.StartUTC.UTC()

	unlock, err := c.locker.Lock(ctx, SlotLockKey(req.DoctorID, start))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Warn().Err(err).Msg("booking lock unavailable, relying on store constraint")
		unlock = func() {}
	}
	defer unlock()

	var appt *Appointment
	err = c.tx.WithinTx(ctx, func(ctx context.Context) error {
		typ, err := c.types.GetByID(ctx, req.AppointmentTypeID)
		if errors.Is(err, ErrNotFound) {
			return ErrAppointmentTypeNotFound
		}
		if err != nil {
			return fmt.Errorf("load appointment type: %w", err)
		}

		patientID, err := c.resolvePatient(ctx, req)
		if err != nil {
			return err
		}

		appt = &Appointment{
			PatientID:         patientID,
			DoctorID:          req.DoctorID,
			AppointmentTypeID: typ.ID,
			StartTime:         start,
			EndTime:           start.Add(time.Duration(typ.DurationMin) * time.Minute),
			Status:            StatusConfirmed,
			Notes:             req.Notes,
		}
		return c.appts.Create(ctx, appt)
	})

	log := c.logger.With().
		Str("doctor_id", req.DoctorID.String()).
		Time("start", start).
		Logger()

	if errors.Is(err, ErrOverlap) {
		log.Info().Msg("booking.slot_taken")
		return &BookingResult{Outcome: OutcomeSlotTaken}, nil
	}
	if err != nil {
		if !errors.Is(err, ErrValidation) && !errors.Is(err, ErrNotFound) {
			log.Error().Err(err).Msg("booking failed")
		}
		return nil, err
	}

	log.Info().Str("appointment_id", appt.ID.String()).Msg("booking.confirmed")
	publish(ctx, c.events, c.logger, events.AppointmentBooked, appt)
	return &BookingResult{Outcome: OutcomeConfirmed, Appointment: appt}, nil
}

func (c *Committer) resolvePatient(ctx context.Context, req BookingRequest) (uuid.UUID, error) {
	if req.PatientID != nil {
		p, err := c.patients.GetByID(ctx, *req.PatientID)
		if errors.Is(err, ErrNotFound) {
			return uuid.Nil, ErrPatientNotFound
		}
		if err != nil {
			return uuid.Nil, fmt.Errorf("load patient: %w", err)
		}
		return p.ID, nil
	}

	phone := strings.TrimSpace(req.Patient.Phone)
	existing, err := c.patients.FindByPhone(ctx, phone)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return uuid.Nil, fmt.Errorf("find patient by phone: %w", err)
	}

	p := &Patient{
		FullName: strings.TrimSpace(req.Patient.FullName),
		Phone:    phone,
		Email:    req.Patient.Email,
	}
	if err := c.patients.Create(ctx, p); err != nil {
		return uuid.Nil, fmt.Errorf("create patient: %w", err)
	}
	return p.ID, nil
}

func publish(ctx context.Context, pub events.Publisher, logger zerolog.Logger, eventType string, a *Appointment) {
	e := events.New(eventType, a)
	e.Subject = a.DoctorID.String()
	if err := pub.Publish(ctx, e); err != nil {
		logger.Warn().Err(err).
			Str("event", eventType).
			Str("appointment_id", a.ID.String()).
			Msg("publish event")
	}
}
