package scheduling

import (
	"time"
)

// Window is an open interval of a local day, in minutes past midnight,
// together with the step between candidate start times.
type Window struct {
	Date           LocalDate
	StartMin       int
	EndMin         int
	GranularityMin int
}

// Expand returns a lazy cursor over the window's candidate starts:
// start, start+g, ... strictly before end. A window whose end is not after
// its start yields nothing.
func (w Window) Expand(loc *time.Location) (*Expansion, error) {
	if w.GranularityMin <= 0 {
		return nil, validationf("granularity must be positive, got %d", w.GranularityMin)
	}
	return &Expansion{w: w, loc: loc, cursor: w.StartMin}, nil
}

// Expansion walks one Window. It is finite and can be restarted with Reset.
type Expansion struct {
	w      Window
	loc    *time.Location
	cursor int
}

// Next returns the next candidate start in UTC, or false once the window is
// exhausted.
func (e *Expansion) Next() (time.Time, bool) {
	if e.cursor >= e.w.EndMin {
		return time.Time{}, false
	}
	t := e.w.Date.At(e.cursor, e.loc).UTC()
	e.cursor += e.w.GranularityMin
	return t, true
}

func (e *Expansion) Reset() { e.cursor = e.w.StartMin }

// All drains a fresh pass over the window.
func (e *Expansion) All() []time.Time {
	e.Reset()
	var out []time.Time
	for t, ok := e.Next(); ok; t, ok = e.Next() {
		out = append(out, t)
	}
	return out
}
