package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type SlotQuery struct {
	DoctorID          uuid.UUID
	Date              LocalDate
	AppointmentTypeID uuid.UUID
	Mode              FilterMode
}

// RangeQuery covers From..To inclusive. Without an appointment type each
// window's granularity is used as the duration and buffers are zero.
type RangeQuery struct {
	DoctorID          uuid.UUID
	From              LocalDate
	To                LocalDate
	AppointmentTypeID *uuid.UUID
}

// Aggregator turns resolved windows into slots for one date, or into
// per-day summaries for a date range.
type Aggregator struct {
	resolver     *Resolver
	appts        AppointmentRepository
	types        AppointmentTypeRepository
	workers      int
	maxRangeDays int
}

func NewAggregator(resolver *Resolver, appts AppointmentRepository, types AppointmentTypeRepository, workers, maxRangeDays int) *Aggregator {
	if workers <= 0 {
		workers = 1
	}
	return &Aggregator{
		resolver:     resolver,
		appts:        appts,
		types:        types,
		workers:      workers,
		maxRangeDays: maxRangeDays,
	}
}

func (a *Aggregator) SlotsForDate(ctx context.Context, q SlotQuery) ([]Slot, error) {
	if q.DoctorID == uuid.Nil {
		return nil, validationf("doctorId is required")
	}
	if q.Date.IsZero() {
		return nil, validationf("date is required")
	}
	if q.AppointmentTypeID == uuid.Nil {
		return nil, validationf("appointmentTypeId is required")
	}
	typ, err := a.loadType(ctx, q.AppointmentTypeID)
	if err != nil {
		return nil, err
	}
	return a.day(ctx, q.DoctorID, q.Date, typ, q.Mode)
}

func (a *Aggregator) Summaries(ctx context.Context, q RangeQuery) ([]DaySummary, error) {
	if q.DoctorID == uuid.Nil {
		return nil, validationf("doctorId is required")
	}
	if q.From.IsZero() || q.To.IsZero() {
		return nil, validationf("start and end dates are required")
	}
	if q.To.Before(q.From) {
		return nil, validationf("end %s is before start %s", q.To, q.From)
	}
	days := q.From.DaysUntil(q.To) + 1
	if a.maxRangeDays > 0 && days > a.maxRangeDays {
		return nil, validationf("range of %d days exceeds the limit of %d", days, a.maxRangeDays)
	}

	var typ *AppointmentType
	if q.AppointmentTypeID != nil {
		t, err := a.loadType(ctx, *q.AppointmentTypeID)
		if err != nil {
			return nil, err
		}
		typ = t
	}

	out := make([]DaySummary, days)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i := 0; i < days; i++ {
		date := q.From.AddDays(i)
		g.Go(func() error {
			slots, err := a.day(gctx, q.DoctorID, date, typ, FilterFlag)
			if err != nil {
				return err
			}
			out[i] = summarize(date, slots)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func summarize(date LocalDate, slots []Slot) DaySummary {
	free := 0
	for _, s := range slots {
		if s.IsBooked == nil || !*s.IsBooked {
			free++
		}
	}
	return DaySummary{
		Date:       date,
		TotalSlots: len(slots),
		FreeSlots:  free,
		HasSlots:   free > 0,
	}
}

func (a *Aggregator) loadType(ctx context.Context, id uuid.UUID) (*AppointmentType, error) {
	t, err := a.types.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrAppointmentTypeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load appointment type %s: %w", id, err)
	}
	return t, nil
}

func (a *Aggregator) day(ctx context.Context, doctorID uuid.UUID, date LocalDate, typ *AppointmentType, mode FilterMode) ([]Slot, error) {
	windows, err := a.resolver.Resolve(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}

	filter := ConflictFilter{Mode: mode}
	if typ != nil {
		filter.BufferBeforeMin = typ.BufferBeforeMin
		filter.BufferAfterMin = typ.BufferAfterMin
	}

	var candidates []Candidate
	for _, w := range windows {
		exp, err := w.Expand(a.resolver.Location())
		if err != nil {
			return nil, fmt.Errorf("expand window on %s: %w", date, err)
		}
		dur := w.GranularityMin
		if typ != nil {
			dur = typ.DurationMin
		}
		for t, ok := exp.Next(); ok; t, ok = exp.Next() {
			candidates = append(candidates, Candidate{Start: t, DurationMin: dur})
		}
	}
	if len(candidates) == 0 {
		return []Slot{}, nil
	}

	from, to := filter.Span(candidates)
	booked, err := a.appts.ListConfirmedInRange(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load appointments for %s: %w", date, err)
	}
	return filter.Apply(candidates, booked), nil
}
