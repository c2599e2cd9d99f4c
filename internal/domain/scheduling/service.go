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
)

// Service covers staff-side management: doctors, appointment types, the
// three availability layers, and the appointment lifecycle after booking.
type Service struct {
	doctors DoctorRepository
	types   AppointmentTypeRepository
	avail   AvailabilityRepository
	appts   AppointmentRepository
	tx      TxRunner
	windows *WindowParser
	events  events.Publisher
	logger  zerolog.Logger
}

func NewService(doctors DoctorRepository, types AppointmentTypeRepository, avail AvailabilityRepository, appts AppointmentRepository, tx TxRunner, windows *WindowParser, pub events.Publisher, logger zerolog.Logger) *Service {
	if pub == nil {
		pub = events.Nop()
	}
	return &Service{
		doctors: doctors,
		types:   types,
		avail:   avail,
		appts:   appts,
		tx:      tx,
		windows: windows,
		events:  pub,
		logger:  logger.With().Str("component", "scheduling").Logger(),
	}
}

// -- Doctor --

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	d.DisplayName = strings.TrimSpace(d.DisplayName)
	if d.DisplayName == "" {
		return validationf("displayName is required")
	}
	return s.doctors.Create(ctx, d)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) UpdateDoctor(ctx context.Context, d *Doctor) error {
	d.DisplayName = strings.TrimSpace(d.DisplayName)
	if d.DisplayName == "" {
		return validationf("displayName is required")
	}
	return s.doctors.Update(ctx, d)
}

func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	return s.doctors.Delete(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, limit, offset)
}

// -- Appointment type --

func validateType(t *AppointmentType) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return validationf("name is required")
	}
	if t.DurationMin < 1 {
		return validationf("durationMin must be at least 1")
	}
	if t.BufferBeforeMin < 0 || t.BufferAfterMin < 0 {
		return validationf("buffers must not be negative")
	}
	return nil
}

func (s *Service) CreateAppointmentType(ctx context.Context, t *AppointmentType) error {
	if err := validateType(t); err != nil {
		return err
	}
	return s.types.Create(ctx, t)
}

func (s *Service) GetAppointmentType(ctx context.Context, id uuid.UUID) (*AppointmentType, error) {
	return s.types.GetByID(ctx, id)
}

func (s *Service) UpdateAppointmentType(ctx context.Context, t *AppointmentType) error {
	if err := validateType(t); err != nil {
		return err
	}
	return s.types.Update(ctx, t)
}

func (s *Service) DeleteAppointmentType(ctx context.Context, id uuid.UUID) error {
	return s.types.Delete(ctx, id)
}

func (s *Service) ListAppointmentTypes(ctx context.Context, limit, offset int) ([]*AppointmentType, int, error) {
	return s.types.List(ctx, limit, offset)
}

// -- Availability --

func validateHours(start, end string, slotSize int) error {
	sm, err := parseClock(start)
	if err != nil {
		return fmt.Errorf("%w: startTime: %v", ErrValidation, err)
	}
	em, err := parseClock(end)
	if err != nil {
		return fmt.Errorf("%w: endTime: %v", ErrValidation, err)
	}
	if em <= sm {
		return validationf("endTime must be after startTime")
	}
	if slotSize < MinSlotSizeMin {
		return validationf("slotSizeMin must be at least %d", MinSlotSizeMin)
	}
	return nil
}

func validateWeekly(w *WeeklyAvailability) error {
	if w.DoctorID == uuid.Nil {
		return validationf("doctorId is required")
	}
	if w.DayOfWeek < 0 || w.DayOfWeek > 6 {
		return validationf("dayOfWeek must be between 0 and 6")
	}
	if w.SlotSizeMin == 0 {
		w.SlotSizeMin = DefaultSlotSizeMin
	}
	return validateHours(w.StartTime, w.EndTime, w.SlotSizeMin)
}

func (s *Service) CreateWeeklyAvailability(ctx context.Context, w *WeeklyAvailability) error {
	if err := validateWeekly(w); err != nil {
		return err
	}
	return s.avail.CreateWeekly(ctx, w)
}

func (s *Service) GetWeeklyAvailability(ctx context.Context, id uuid.UUID) (*WeeklyAvailability, error) {
	return s.avail.GetWeekly(ctx, id)
}

func (s *Service) UpdateWeeklyAvailability(ctx context.Context, w *WeeklyAvailability) error {
	if err := validateWeekly(w); err != nil {
		return err
	}
	return s.avail.UpdateWeekly(ctx, w)
}

func (s *Service) DeleteWeeklyAvailability(ctx context.Context, id uuid.UUID) error {
	return s.avail.DeleteWeekly(ctx, id)
}

func (s *Service) ListWeeklyAvailability(ctx context.Context, doctorID *uuid.UUID, limit, offset int) ([]*WeeklyAvailability, int, error) {
	return s.avail.SearchWeekly(ctx, doctorID, limit, offset)
}

func validateDaily(d *DailyAvailability) error {
	if d.DoctorID == uuid.Nil {
		return validationf("doctorId is required")
	}
	if d.Date.IsZero() {
		return validationf("date is required")
	}
	if d.SlotSizeMin == 0 {
		d.SlotSizeMin = DefaultSlotSizeMin
	}
	return validateHours(d.StartTime, d.EndTime, d.SlotSizeMin)
}

func (s *Service) CreateDailyAvailability(ctx context.Context, d *DailyAvailability) error {
	if err := validateDaily(d); err != nil {
		return err
	}
	return s.avail.CreateDaily(ctx, d)
}

func (s *Service) GetDailyAvailability(ctx context.Context, id uuid.UUID) (*DailyAvailability, error) {
	return s.avail.GetDaily(ctx, id)
}

func (s *Service) UpdateDailyAvailability(ctx context.Context, d *DailyAvailability) error {
	if err := validateDaily(d); err != nil {
		return err
	}
	return s.avail.UpdateDaily(ctx, d)
}

func (s *Service) DeleteDailyAvailability(ctx context.Context, id uuid.UUID) error {
	return s.avail.DeleteDaily(ctx, id)
}

func (s *Service) ListDailyAvailability(ctx context.Context, doctorID *uuid.UUID, limit, offset int) ([]*DailyAvailability, int, error) {
	return s.avail.SearchDaily(ctx, doctorID, limit, offset)
}

func (s *Service) validateException(e *AvailabilityException) error {
	if e.DoctorID == uuid.Nil {
		return validationf("doctorId is required")
	}
	if e.Date.IsZero() {
		return validationf("date is required")
	}
	if e.Windows != nil {
		trimmed := strings.TrimSpace(*e.Windows)
		if trimmed == "" {
			e.Windows = nil
			return nil
		}
		e.Windows = &trimmed
		if _, err := s.windows.Parse(trimmed); err != nil {
			return fmt.Errorf("%w: windows: %v", ErrValidation, err)
		}
	}
	return nil
}

func (s *Service) CreateException(ctx context.Context, e *AvailabilityException) error {
	if err := s.validateException(e); err != nil {
		return err
	}
	return s.avail.CreateException(ctx, e)
}

func (s *Service) GetException(ctx context.Context, id uuid.UUID) (*AvailabilityException, error) {
	return s.avail.GetExceptionByID(ctx, id)
}

func (s *Service) UpdateException(ctx context.Context, e *AvailabilityException) error {
	if err := s.validateException(e); err != nil {
		return err
	}
	return s.avail.UpdateException(ctx, e)
}

func (s *Service) DeleteException(ctx context.Context, id uuid.UUID) error {
	return s.avail.DeleteException(ctx, id)
}

func (s *Service) ListExceptions(ctx context.Context, doctorID *uuid.UUID, limit, offset int) ([]*AvailabilityException, int, error) {
	return s.avail.SearchExceptions(ctx, doctorID, limit, offset)
}

// -- Appointment --

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appts.GetByID(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	if f.Status != nil && !f.Status.Valid() {
		return nil, 0, validationf("invalid status %q", *f.Status)
	}
	return s.appts.Search(ctx, f, limit, offset)
}

// AppointmentPatch holds the fields a PATCH may change. Nil means keep.
type AppointmentPatch struct {
	DoctorID          *uuid.UUID
	AppointmentTypeID *uuid.UUID
	StartUTC          *time.Time
	Status            *AppointmentStatus
	Notes             *string
}

func (p AppointmentPatch) changesSchedule() bool {
	return p.reschedules() || p.Status != nil
}

func (p AppointmentPatch) reschedules() bool {
	return p.DoctorID != nil || p.AppointmentTypeID != nil || p.StartUTC != nil
}

// UpdateAppointment applies a patch to a CONFIRMED appointment. Moving the
// doctor, type or start recomputes the end from the effective type; other
// edits leave the booked interval alone. Appointments that are CANCELLED or
// NO_SHOW accept only note edits.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, p AppointmentPatch) (*BookingResult, error) {
	if p.Status != nil && !p.Status.Valid() {
		return nil, validationf("invalid status %q", *p.Status)
	}
	if p.DoctorID != nil && *p.DoctorID == uuid.Nil {
		return nil, validationf("doctorId must not be empty")
	}
	if p.StartUTC != nil && p.StartUTC.IsZero() {
		return nil, validationf("startUtc must not be empty")
	}

	var (
		updated *Appointment
		before  AppointmentStatus
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.appts.GetByID(ctx, id)
		if err != nil {
			return err
		}
		before = a.Status
		if a.Status != StatusConfirmed && p.changesSchedule() {
			return fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, a.Status)
		}

		if p.DoctorID != nil {
			a.DoctorID = *p.DoctorID
		}
		if p.AppointmentTypeID != nil {
			a.AppointmentTypeID = *p.AppointmentTypeID
		}
		if p.StartUTC != nil {
			a.StartTime = p.StartUTC.UTC()
		}
		if p.Status != nil {
			a.Status = *p.Status
		}
		if p.Notes != nil {
			a.Notes = p.Notes
		}

		if p.reschedules() {
			typ, err := s.types.GetByID(ctx, a.AppointmentTypeID)
			if errors.Is(err, ErrNotFound) {
				return validationf("invalid appointment type")
			}
			if err != nil {
				return fmt.Errorf("load appointment type: %w", err)
			}
			a.EndTime = a.StartTime.Add(time.Duration(typ.DurationMin) * time.Minute)
		}

		if err := s.appts.Update(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if errors.Is(err, ErrOverlap) {
		return &BookingResult{Outcome: OutcomeSlotTaken}, nil
	}
	if err != nil {
		return nil, err
	}

	eventType := events.AppointmentRescheduled
	if before == StatusConfirmed {
		switch updated.Status {
		case StatusCancelled:
			eventType = events.AppointmentCancelled
		case StatusNoShow:
			eventType = events.AppointmentNoShow
		}
	}
	if p.changesSchedule() {
		publish(ctx, s.events, s.logger, eventType, updated)
	}
	return &BookingResult{Outcome: OutcomeConfirmed, Appointment: updated}, nil
}

// CancelAppointment moves a CONFIRMED appointment to CANCELLED.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCancelled, events.AppointmentCancelled)
}

// MarkNoShow moves a CONFIRMED appointment to NO_SHOW.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusNoShow, events.AppointmentNoShow)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to AppointmentStatus, eventType string) (*Appointment, error) {
	var updated *Appointment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.appts.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if a.Status != StatusConfirmed {
			return fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, a.Status)
		}
		a.Status = to
		if err := s.appts.Update(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("status", string(to)).
		Msg("appointment status changed")
	publish(ctx, s.events, s.logger, eventType, updated)
	return updated, nil
}

// DeleteAppointment removes the row outright, whatever its status.
func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	a, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.appts.Delete(ctx, id); err != nil {
		return err
	}
	publish(ctx, s.events, s.logger, events.AppointmentDeleted, a)
	return nil
}
