/*
Package availability resolves when a service is open and how much capacity
is left.

PURPOSE:
  Turns layered rules (weekly windows, one-off date exceptions, closure
  periods) into the effective open windows of a day, generates bookable
  slots for slot-mode services, and decides whether a requested interval
  can be admitted given the bookings already on the books.

PRECEDENCE (per service and date, highest first):
  1. ClosurePeriod covering the date  -> closed, nothing else consulted
  2. DateException for the date       -> its windows replace the weekly ones
  3. RecurringWindow rows for weekday -> union of non-closed rows
  4. nothing configured               -> closed

CAPACITY FALLBACK (per window, highest first):
  slot override -> window max -> day-level default -> service default -> unbounded

KEY CONCEPTS:
  - ResolvedDay: effective windows of one date plus where they came from
  - Slot: fixed-length unit cut from a window; a trailing remainder shorter
    than the slot length is dropped
  - Chain: windows joined end-to-start (A.Close == B.Open); a time-range
    request may span a chain if every segment has room

The resolver never mutates rules it reads and reports "no availability" as
false or an empty list, never as an error.

SEE ALSO:
  - capacity.go: Occupancy sweep and remaining capacity
  - booking.go: Atomic admission under lock
*/
package availability

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/warp/schedule-engine/generic"
)

// DaySource names the rule layer that decided a day.
type DaySource string

const (
	SourceClosure   DaySource = "closure"
	SourceException DaySource = "exception"
	SourceRecurring DaySource = "recurring"
	SourceNone      DaySource = "none"
)

// ResolvedDay is the effective opening of one service on one date.
type ResolvedDay struct {
	ServiceID   generic.ServiceID `json:"service_id"`
	Date        generic.Date      `json:"date"`
	IsClosed    bool              `json:"is_closed"`
	Source      DaySource         `json:"source"`
	Reason      string            `json:"reason,omitempty"`
	Windows     []generic.Window  `json:"windows"`
	DayCapacity *int              `json:"day_capacity,omitempty"`
}

type Resolver struct {
	store  generic.Store
	logger zerolog.Logger
}

func NewResolver(store generic.Store, logger zerolog.Logger) *Resolver {
	return &Resolver{store: store, logger: logger.With().Str("component", "availability").Logger()}
}

// WithStore returns a resolver reading through s, e.g. a transaction view.
func (r *Resolver) WithStore(s generic.Store) *Resolver {
	return &Resolver{store: s, logger: r.logger}
}

// =============================================================================
// DAY RESOLUTION
// =============================================================================

// ResolveDay returns the effective windows of the service on date.
func (r *Resolver) ResolveDay(ctx context.Context, tenant generic.TenantID, service generic.ServiceID, date generic.Date) (ResolvedDay, error) {
	svc, err := r.store.GetService(ctx, tenant, service)
	if err != nil {
		return ResolvedDay{}, err
	}
	return r.resolveDay(ctx, svc, date)
}

func (r *Resolver) resolveDay(ctx context.Context, svc *generic.Service, date generic.Date) (ResolvedDay, error) {
	day := ResolvedDay{ServiceID: svc.ID, Date: date, Windows: []generic.Window{}}

	closures, err := r.store.ClosuresCovering(ctx, svc.TenantID, svc.ID, date)
	if err != nil {
		return ResolvedDay{}, fmt.Errorf("load closures: %w", err)
	}
	if len(closures) > 0 {
		day.IsClosed = true
		day.Source = SourceClosure
		day.Reason = closures[0].Reason
		return day, nil
	}

	exception, err := r.store.DateException(ctx, svc.TenantID, svc.ID, date)
	if err != nil {
		return ResolvedDay{}, fmt.Errorf("load date exception: %w", err)
	}
	if exception != nil {
		day.Source = SourceException
		day.Reason = exception.Reason
		day.DayCapacity = exception.DayCapacity
		if day.DayCapacity == nil {
			day.DayCapacity = weekdayCapacity(svc, date)
		}
		if exception.IsClosed || len(exception.Windows) == 0 {
			day.IsClosed = true
			return day, nil
		}
		day.Windows = generic.NormalizeWindows(exception.Windows)
		return day, nil
	}

	rows, err := r.store.RecurringWindows(ctx, svc.TenantID, svc.ID, date.Weekday())
	if err != nil {
		return ResolvedDay{}, fmt.Errorf("load recurring windows: %w", err)
	}
	if len(rows) == 0 {
		day.IsClosed = true
		day.Source = SourceNone
		return day, nil
	}

	day.Source = SourceRecurring
	day.DayCapacity = weekdayCapacity(svc, date)
	var open []generic.Window
	for _, row := range rows {
		if !row.IsClosed {
			open = append(open, row.Window)
		}
	}
	if len(open) == 0 {
		day.IsClosed = true
		return day, nil
	}
	day.Windows = generic.NormalizeWindows(open)
	return day, nil
}

func weekdayCapacity(svc *generic.Service, date generic.Date) *int {
	if n, ok := svc.DayCapacities[date.Weekday()]; ok {
		return generic.IntPtr(n)
	}
	return nil
}

// =============================================================================
// SLOTS
// =============================================================================

// ResolveSlots returns the bookable slots of a slot-mode service on date.
func (r *Resolver) ResolveSlots(ctx context.Context, tenant generic.TenantID, service generic.ServiceID, date generic.Date) ([]generic.Slot, error) {
	svc, err := r.store.GetService(ctx, tenant, service)
	if err != nil {
		return nil, err
	}
	if svc.Mode != generic.ModeSlot {
		return nil, fmt.Errorf("service %s: %w", svc.ID, generic.ErrNotSlotMode)
	}
	day, err := r.resolveDay(ctx, svc, date)
	if err != nil {
		return nil, err
	}
	if len(day.Windows) == 0 && !positive(svc.SlotDurationMinutes) {
		return nil, &generic.ConfigurationError{
			ServiceID: svc.ID,
			Setting:   "slot_duration_minutes",
			Message:   fmt.Sprintf("slot service has no slot duration (%s)", day.Date),
		}
	}
	return slotsFor(svc, day)
}

func positive(n *int) bool { return n != nil && *n > 0 }

// slotsFor cuts every window into slots of the effective duration. A slot
// whose end would pass the window close is not produced.
func slotsFor(svc *generic.Service, day ResolvedDay) ([]generic.Slot, error) {
	slots := []generic.Slot{}
	for _, w := range day.Windows {
		duration := w.SlotDurationMinutes
		if duration == nil {
			duration = svc.SlotDurationMinutes
		}
		if !positive(duration) {
			return nil, &generic.ConfigurationError{
				ServiceID: svc.ID,
				Setting:   "slot_duration_minutes",
				Message:   fmt.Sprintf("no slot duration for window %s on %s", w.Range(), day.Date),
			}
		}
		for start := w.Open; start.Add(*duration) <= w.Close; start = start.Add(*duration) {
			slots = append(slots, generic.Slot{
				Start:    start,
				End:      start.Add(*duration),
				Capacity: configuredCapacity(svc, day, w, &start),
			})
		}
	}
	return slots, nil
}

// configuredCapacity applies the fallback chain for one window, or for one
// slot of it when slotStart is set.
func configuredCapacity(svc *generic.Service, day ResolvedDay, w generic.Window, slotStart *generic.ClockTime) generic.Capacity {
	if slotStart != nil {
		if n, ok := w.SlotCapacities[*slotStart]; ok {
			return generic.Limited(n)
		}
	}
	if w.MaxCapacity != nil {
		return generic.Limited(*w.MaxCapacity)
	}
	if day.DayCapacity != nil {
		return generic.Limited(*day.DayCapacity)
	}
	return generic.CapacityOf(svc.DefaultCapacity)
}
