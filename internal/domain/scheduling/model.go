package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusCancelled AppointmentStatus = "CANCELLED"
	StatusNoShow    AppointmentStatus = "NO_SHOW"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusConfirmed, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Default granularity and exception-window step, in minutes.
const (
	DefaultSlotSizeMin      = 10
	ExceptionGranularityMin = 10
	MinSlotSizeMin          = 5
)

type Doctor struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"displayName"`
	Specialties *string   `json:"specialties,omitempty"`
	Languages   *string   `json:"languages,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Patient struct {
	ID        uuid.UUID `json:"id"`
	FullName  string    `json:"fullName"`
	Phone     string    `json:"phone"`
	Email     *string   `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AppointmentType sets how long a visit lasts and how much idle time it
// needs around it. Price fields are stored but not interpreted.
type AppointmentType struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	DurationMin     int       `json:"durationMin"`
	BufferBeforeMin int       `json:"bufferBeforeMin"`
	BufferAfterMin  int       `json:"bufferAfterMin"`
	PriceMinorUnit  *int      `json:"priceMinorUnit,omitempty"`
	Currency        *string   `json:"currency,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// WeeklyAvailability is one recurring opening window. DayOfWeek follows
// time.Weekday (0 = Sunday); StartTime/EndTime are clinic-local "HH:MM".
type WeeklyAvailability struct {
	ID          uuid.UUID `json:"id"`
	DoctorID    uuid.UUID `json:"doctorId"`
	DayOfWeek   int       `json:"dayOfWeek"`
	StartTime   string    `json:"startTime"`
	EndTime     string    `json:"endTime"`
	SlotSizeMin int       `json:"slotSizeMin"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DailyAvailability replaces the weekly template on one date.
type DailyAvailability struct {
	ID          uuid.UUID `json:"id"`
	DoctorID    uuid.UUID `json:"doctorId"`
	Date        LocalDate `json:"date"`
	StartTime   string    `json:"startTime"`
	EndTime     string    `json:"endTime"`
	SlotSizeMin int       `json:"slotSizeMin"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AvailabilityException overrides everything else on its date: either the
// doctor is closed, or Windows ("HH:MM-HH:MM[,...]") lists the open hours.
type AvailabilityException struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctorId"`
	Date      LocalDate `json:"date"`
	IsClosed  bool      `json:"isClosed"`
	Windows   *string   `json:"windows,omitempty"`
	Note      *string   `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Appointment struct {
	ID                uuid.UUID         `json:"id"`
	PatientID         uuid.UUID         `json:"patientId"`
	DoctorID          uuid.UUID         `json:"doctorId"`
	AppointmentTypeID uuid.UUID         `json:"appointmentTypeId"`
	StartTime         time.Time         `json:"startTime"`
	EndTime           time.Time         `json:"endTime"`
	Status            AppointmentStatus `json:"status"`
	Notes             *string           `json:"notes,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
}

// Overlaps reports whether a intersects the half-open interval [from, to).
// Touching intervals do not overlap.
func (a *Appointment) Overlaps(from, to time.Time) bool {
	return a.EndTime.After(from) && a.StartTime.Before(to)
}

// Slot is a bookable start time. IsBooked is only set by display queries.
type Slot struct {
	StartUTC time.Time `json:"startUtc"`
	EndUTC   time.Time `json:"endUtc"`
	IsBooked *bool     `json:"isBooked,omitempty"`
}

type DaySummary struct {
	Date       LocalDate `json:"date"`
	TotalSlots int       `json:"totalSlots"`
	FreeSlots  int       `json:"freeSlots"`
	HasSlots   bool      `json:"hasSlots"`
}

// AppointmentFilter narrows appointment listings. Zero values match all.
type AppointmentFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Status    *AppointmentStatus
	From      *time.Time
	To        *time.Time
}

func (f AppointmentFilter) Matches(a *Appointment) bool {
	if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
		return false
	}
	if f.PatientID != nil && a.PatientID != *f.PatientID {
		return false
	}
	if f.Status != nil && a.Status != *f.Status {
		return false
	}
	if f.From != nil && a.StartTime.Before(*f.From) {
		return false
	}
	if f.To != nil && !a.StartTime.Before(*f.To) {
		return false
	}
	return true
}
