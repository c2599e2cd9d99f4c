package scheduling

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks caller mistakes. Wrap it with detail:
	// fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation).
	ErrValidation = errors.New("validation failed")

	// ErrInvalidWindow is returned by the exception-window parser.
	ErrInvalidWindow = errors.New("invalid availability window")

	ErrNotFound                = errors.New("not found")
	ErrDoctorNotFound          = fmt.Errorf("doctor %w", ErrNotFound)
	ErrPatientNotFound         = fmt.Errorf("patient %w", ErrNotFound)
	ErrAppointmentTypeNotFound = fmt.Errorf("appointment type %w", ErrNotFound)
	ErrAppointmentNotFound     = fmt.Errorf("appointment %w", ErrNotFound)
	ErrAvailabilityNotFound    = fmt.Errorf("availability %w", ErrNotFound)
	ErrExceptionNotFound       = fmt.Errorf("availability exception %w", ErrNotFound)

	// ErrOverlap is the store's report that a CONFIRMED appointment would
	// overlap another CONFIRMED appointment of the same doctor.
	ErrOverlap = errors.New("appointment overlaps an existing confirmed appointment")

	ErrInvalidTransition = errors.New("appointment is no longer confirmed")

	// ErrInUse is returned when deleting a row that appointments still reference.
	ErrInUse = errors.New("still referenced by appointments")
)

var errDuplicateException = fmt.Errorf("%w: an exception already exists for this doctor and date", ErrValidation)

// SlotTakenMessage is shown to the caller when a booking loses the race.
const SlotTakenMessage = "This time slot has just been taken. Please pick another."

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
