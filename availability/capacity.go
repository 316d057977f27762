package availability

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/warp/schedule-engine/generic"
)

// =============================================================================
// OCCUPANCY - Peak concurrent party size
// =============================================================================

// PeakOccupancy returns the largest total party size of seat-holding
// bookings that are simultaneously active anywhere inside target. Bookings
// that only touch target's edges do not count.
func PeakOccupancy(bookings []generic.Booking, target generic.TimeRange) int {
	type event struct {
		at    generic.ClockTime
		delta int
	}
	var events []event
	for _, b := range bookings {
		if !b.Status.HoldsCapacity() {
			continue
		}
		part, ok := b.Range().Intersect(target)
		if !ok {
			continue
		}
		events = append(events, event{part.Start, b.PartySize}, event{part.End, -b.PartySize})
	}
	// Ends sort before starts at the same instant: [a, b) and [b, c) never coexist.
	slices.SortFunc(events, func(a, b event) int {
		if c := cmp.Compare(a.at, b.at); c != 0 {
			return c
		}
		return cmp.Compare(a.delta, b.delta)
	})

	peak, current := 0, 0
	for _, e := range events {
		current += e.delta
		peak = max(peak, current)
	}
	return peak
}

// =============================================================================
// REMAINING CAPACITY
// =============================================================================

// RemainingCapacity returns configured capacity minus peak occupancy for
// target, which should be a slot or lie within a window. A target that is
// not inside any open window has zero capacity. When several windows or
// slots contain target, the most generous one is reported.
func (r *Resolver) RemainingCapacity(ctx context.Context, tenant generic.TenantID, service generic.ServiceID, date generic.Date, target generic.TimeRange) (generic.Capacity, error) {
	if !target.Valid() {
		return generic.Capacity{}, generic.Invalid("range", "%s is not a valid interval", target)
	}
	svc, err := r.store.GetService(ctx, tenant, service)
	if err != nil {
		return generic.Capacity{}, err
	}
	day, err := r.resolveDay(ctx, svc, date)
	if err != nil {
		return generic.Capacity{}, err
	}
	if day.IsClosed {
		return generic.Limited(0), nil
	}
	bookings, err := r.store.BookingsOn(ctx, tenant, service, date)
	if err != nil {
		return generic.Capacity{}, fmt.Errorf("load bookings: %w", err)
	}

	best, found := generic.Limited(0), false
	consider := func(c generic.Capacity) {
		if !found || c.Greater(best) {
			best, found = c, true
		}
	}

	if svc.Mode == generic.ModeSlot {
		slots, err := slotsFor(svc, day)
		if err != nil {
			return generic.Capacity{}, err
		}
		for _, s := range slots {
			if s.Range() == target {
				consider(s.Capacity.Consume(PeakOccupancy(bookings, target)))
			}
		}
		if found {
			return best, nil
		}
	}

	for i, w := range day.Windows {
		if w.Range().Contains(target) {
			occupied := PeakOccupancy(seatedIn(day.Windows, i, bookings), target)
			consider(configuredCapacity(svc, day, w, nil).Consume(occupied))
		}
	}
	return best, nil
}

// =============================================================================
// ADMISSION CHECK
// =============================================================================

// IsAvailable reports whether a party can be admitted for [start, end).
// Slot-mode services only admit exact slots. Time-range services admit an
// interval inside one window, or spanning a chain of contiguous windows
// when every segment has room.
func (r *Resolver) IsAvailable(ctx context.Context, tenant generic.TenantID, service generic.ServiceID, date generic.Date, start, end generic.ClockTime, partySize int) (bool, error) {
	target := generic.TimeRange{Start: start, End: end}
	if !target.Valid() {
		return false, generic.Invalid("range", "%s is not a valid interval", target)
	}
	if partySize <= 0 {
		return false, generic.Invalid("party_size", "must be positive, got %d", partySize)
	}

	svc, err := r.store.GetService(ctx, tenant, service)
	if err != nil {
		return false, err
	}
	day, err := r.resolveDay(ctx, svc, date)
	if err != nil {
		return false, err
	}
	if day.IsClosed {
		r.logger.Debug().Str("service", string(service)).Stringer("date", date).Str("source", string(day.Source)).
			Msg("day closed")
		return false, nil
	}

	bookings, err := r.store.BookingsOn(ctx, tenant, service, date)
	if err != nil {
		return false, fmt.Errorf("load bookings: %w", err)
	}

	if svc.Mode == generic.ModeSlot {
		slots, err := slotsFor(svc, day)
		if err != nil {
			return false, err
		}
		for _, s := range slots {
			if s.Range() == target && s.Capacity.Consume(PeakOccupancy(bookings, target)).Fits(partySize) {
				return true, nil
			}
		}
		return false, nil
	}

	for _, chain := range coveringChains(day.Windows, target) {
		if chainFits(svc, day, chain, target, bookings, partySize) {
			return true, nil
		}
	}
	return false, nil
}

// coveringChains returns every sequence of windows, joined end-to-start,
// that together cover target. A single containing window is a chain of one.
// Chains are returned as indexes into windows.
func coveringChains(windows []generic.Window, target generic.TimeRange) [][]int {
	var chains [][]int
	var extend func(chain []int)
	extend = func(chain []int) {
		last := windows[chain[len(chain)-1]]
		if last.Close >= target.End {
			chains = append(chains, slices.Clone(chain))
			return
		}
		for j, next := range windows {
			if next.Open == last.Close {
				extend(append(chain, j))
			}
		}
	}
	for i, w := range windows {
		if w.Open <= target.Start && target.Start < w.Close {
			extend([]int{i})
		}
	}
	return chains
}

// seatedIn returns the bookings that window i can be holding: those that
// lie inside it, or inside a contiguous chain that runs through it. A
// booking that only overlaps window i while running past its edges belongs
// to another window and does not consume i's capacity.
func seatedIn(windows []generic.Window, i int, bookings []generic.Booking) []generic.Booking {
	var out []generic.Booking
	for _, b := range bookings {
		if !b.Status.HoldsCapacity() || !b.Range().Overlaps(windows[i].Range()) {
			continue
		}
		for _, chain := range coveringChains(windows, b.Range()) {
			if slices.Contains(chain, i) {
				out = append(out, b)
				break
			}
		}
	}
	return out
}

func chainFits(svc *generic.Service, day ResolvedDay, chain []int, target generic.TimeRange, bookings []generic.Booking, partySize int) bool {
	for _, i := range chain {
		w := day.Windows[i]
		segment, ok := w.Range().Intersect(target)
		if !ok {
			continue
		}
		occupied := PeakOccupancy(seatedIn(day.Windows, i, bookings), segment)
		if !configuredCapacity(svc, day, w, nil).Consume(occupied).Fits(partySize) {
			return false
		}
	}
	return true
}
