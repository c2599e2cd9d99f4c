package scheduling

import (
	"fmt"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// LocalDate is a calendar date in the clinic's timezone, with no instant
// attached. It converts to instants only through At and Bounds.
type LocalDate struct {
	Year  int
	Month time.Month
	Day   int
}

func ParseLocalDate(s string) (LocalDate, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return LocalDate{}, validationf("date must be YYYY-MM-DD, got %q", s)
	}
	return LocalDateOf(t), nil
}

// LocalDateOf takes the calendar date of t in t's own location.
func LocalDateOf(t time.Time) LocalDate {
	y, m, d := t.Date()
	return LocalDate{Year: y, Month: m, Day: d}
}

// ParseMonth returns the first and last day of a "YYYY-MM" month.
func ParseMonth(s string) (LocalDate, LocalDate, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return LocalDate{}, LocalDate{}, validationf("month must be YYYY-MM, got %q", s)
	}
	first := LocalDateOf(t)
	last := LocalDateOf(t.AddDate(0, 1, -1))
	return first, last, nil
}

func (d LocalDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d LocalDate) IsZero() bool { return d == LocalDate{} }

func (d LocalDate) civil() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d LocalDate) AddDays(n int) LocalDate {
	return LocalDateOf(d.civil().AddDate(0, 0, n))
}

func (d LocalDate) Weekday() time.Weekday { return d.civil().Weekday() }

func (d LocalDate) Before(o LocalDate) bool { return d.civil().Before(o.civil()) }

func (d LocalDate) After(o LocalDate) bool { return d.civil().After(o.civil()) }

// DaysUntil counts calendar days from d to o (negative if o is earlier).
func (d LocalDate) DaysUntil(o LocalDate) int {
	return int(o.civil().Sub(d.civil()).Hours() / 24)
}

// At returns the instant minute minutes past local midnight of d in loc.
// Minutes past 24h roll into the next day; DST gaps resolve the way
// time.Date does.
func (d LocalDate) At(minute int, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, minute, 0, 0, loc)
}

// Bounds returns [local midnight, next local midnight) of d as UTC instants.
// On DST transition days the span is 23 or 25 hours.
func (d LocalDate) Bounds(loc *time.Location) (time.Time, time.Time) {
	return d.At(0, loc).UTC(), d.AddDays(1).At(0, loc).UTC()
}

func (d LocalDate) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *LocalDate) UnmarshalText(b []byte) error {
	parsed, err := ParseLocalDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
