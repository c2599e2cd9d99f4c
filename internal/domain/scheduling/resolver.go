package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Resolver decides which local windows a doctor is open on a date.
//
// Precedence, highest first:
//   - an exception on the date: closed means no windows; a windows string
//     means exactly those windows at ExceptionGranularityMin
//   - daily availability rows for the date
//   - the weekly template for the date's weekday
type Resolver struct {
	avail  AvailabilityRepository
	parser *WindowParser
	loc    *time.Location
}

func NewResolver(avail AvailabilityRepository, parser *WindowParser, loc *time.Location) *Resolver {
	return &Resolver{avail: avail, parser: parser, loc: loc}
}

func (r *Resolver) Location() *time.Location { return r.loc }

func (r *Resolver) Resolve(ctx context.Context, doctorID uuid.UUID, date LocalDate) ([]Window, error) {
	exc, err := r.avail.GetException(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load exception for %s: %w", date, err)
	}
	if exc != nil {
		if exc.IsClosed {
			return nil, nil
		}
		if exc.Windows != nil && strings.TrimSpace(*exc.Windows) != "" {
			ranges, err := r.parser.Parse(*exc.Windows)
			if err != nil {
				// Stored data, not request input: keep it out of ErrValidation.
				return nil, fmt.Errorf("exception %s on %s has unusable windows: %v", exc.ID, date, err)
			}
			windows := make([]Window, 0, len(ranges))
			for _, cr := range ranges {
				windows = append(windows, Window{
					Date:           date,
					StartMin:       cr.StartMin,
					EndMin:         cr.EndMin,
					GranularityMin: ExceptionGranularityMin,
				})
			}
			return windows, nil
		}
	}

	daily, err := r.avail.ListDaily(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load daily availability for %s: %w", date, err)
	}
	if len(daily) > 0 {
		windows := make([]Window, 0, len(daily))
		for _, d := range daily {
			w, err := rowWindow(date, d.StartTime, d.EndTime, d.SlotSizeMin)
			if err != nil {
				return nil, fmt.Errorf("daily availability %s: %v", d.ID, err)
			}
			windows = append(windows, w)
		}
		return windows, nil
	}

	weekly, err := r.avail.ListWeekly(ctx, doctorID, date.Weekday())
	if err != nil {
		return nil, fmt.Errorf("load weekly availability for %s: %w", date, err)
	}
	windows := make([]Window, 0, len(weekly))
	for _, wa := range weekly {
		w, err := rowWindow(date, wa.StartTime, wa.EndTime, wa.SlotSizeMin)
		if err != nil {
			return nil, fmt.Errorf("weekly availability %s: %v", wa.ID, err)
		}
		windows = append(windows, w)
	}
	return windows, nil
}

func rowWindow(date LocalDate, start, end string, slotSize int) (Window, error) {
	sm, err := parseClock(start)
	if err != nil {
		return Window{}, err
	}
	em, err := parseClock(end)
	if err != nil {
		return Window{}, err
	}
	if slotSize <= 0 {
		return Window{}, fmt.Errorf("slot size %d is not positive", slotSize)
	}
	return Window{Date: date, StartMin: sm, EndMin: em, GranularityMin: slotSize}, nil
}
