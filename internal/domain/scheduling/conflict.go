package scheduling

import (
	"time"
)

type FilterMode int

const (
	// FilterDrop removes conflicting candidates (booking flow).
	FilterDrop FilterMode = iota
	// FilterFlag keeps them with IsBooked=true (calendar display).
	FilterFlag
)

// Candidate is a possible appointment start with the duration it would
// occupy.
type Candidate struct {
	Start       time.Time
	DurationMin int
}

func (c Candidate) End() time.Time {
	return c.Start.Add(time.Duration(c.DurationMin) * time.Minute)
}

// ConflictFilter checks candidates against confirmed appointments. A
// candidate's blocked interval is [start-before, start+duration+after); it
// conflicts with an appointment that intersects that interval.
type ConflictFilter struct {
	BufferBeforeMin int
	BufferAfterMin  int
	Mode            FilterMode
}

func (f ConflictFilter) Blocked(c Candidate) (time.Time, time.Time) {
	from := c.Start.Add(-time.Duration(f.BufferBeforeMin) * time.Minute)
	to := c.End().Add(time.Duration(f.BufferAfterMin) * time.Minute)
	return from, to
}

func (f ConflictFilter) Conflicts(c Candidate, booked []*Appointment) bool {
	from, to := f.Blocked(c)
	for _, a := range booked {
		if a.Status == StatusConfirmed && a.Overlaps(from, to) {
			return true
		}
	}
	return false
}

// Apply keeps candidate order. The result is never nil.
func (f ConflictFilter) Apply(candidates []Candidate, booked []*Appointment) []Slot {
	out := make([]Slot, 0, len(candidates))
	for _, c := range candidates {
		taken := f.Conflicts(c, booked)
		if taken && f.Mode == FilterDrop {
			continue
		}
		s := Slot{StartUTC: c.Start, EndUTC: c.End()}
		if f.Mode == FilterFlag {
			b := taken
			s.IsBooked = &b
		}
		out = append(out, s)
	}
	return out
}

// Span returns the smallest interval covering every candidate's blocked
// interval, for fetching only the appointments that can matter.
func (f ConflictFilter) Span(candidates []Candidate) (time.Time, time.Time) {
	var from, to time.Time
	for i, c := range candidates {
		bf, bt := f.Blocked(c)
		if i == 0 || bf.Before(from) {
			from = bf
		}
		if i == 0 || bt.After(to) {
			to = bt
		}
	}
	return from, to
}
