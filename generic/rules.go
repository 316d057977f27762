package generic

import (
	"maps"
	"slices"
	"time"
)

// =============================================================================
// WINDOW - One open interval of a day
// =============================================================================

// Window is an open interval [Open, Close) with optional capacity and slot
// overrides. SlotCapacities is keyed by slot start.
type Window struct {
	Open                ClockTime         `json:"open"`
	Close               ClockTime         `json:"close"`
	MaxCapacity         *int              `json:"max_capacity,omitempty"`
	SlotDurationMinutes *int              `json:"slot_duration_minutes,omitempty"`
	SlotCapacities      map[ClockTime]int `json:"slot_capacities,omitempty"`
}

func (w Window) Range() TimeRange { return TimeRange{Start: w.Open, End: w.Close} }

func (w Window) Validate() error {
	if !w.Open.Valid() || !w.Close.Valid() {
		return Invalid("window", "times must be between 00:00 and 24:00")
	}
	if w.Open >= w.Close {
		return Invalid("window", "open %s must be before close %s", w.Open, w.Close)
	}
	if w.MaxCapacity != nil && *w.MaxCapacity < 0 {
		return Invalid("window.max_capacity", "must not be negative")
	}
	if w.SlotDurationMinutes != nil && *w.SlotDurationMinutes <= 0 {
		return Invalid("window.slot_duration_minutes", "must be positive")
	}
	for start, n := range w.SlotCapacities {
		if n < 0 {
			return Invalid("window.slot_capacities", "%s must not be negative", start)
		}
	}
	return nil
}

// Equal reports whether two windows are identical in every field.
func (w Window) Equal(o Window) bool {
	return w.Open == o.Open && w.Close == o.Close &&
		intPtrEqual(w.MaxCapacity, o.MaxCapacity) &&
		intPtrEqual(w.SlotDurationMinutes, o.SlotDurationMinutes) &&
		maps.Equal(w.SlotCapacities, o.SlotCapacities)
}

// Clone returns a copy that shares no mutable state with w.
func (w Window) Clone() Window {
	c := w
	if w.MaxCapacity != nil {
		c.MaxCapacity = IntPtr(*w.MaxCapacity)
	}
	if w.SlotDurationMinutes != nil {
		c.SlotDurationMinutes = IntPtr(*w.SlotDurationMinutes)
	}
	c.SlotCapacities = maps.Clone(w.SlotCapacities)
	return c
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// NormalizeWindows sorts windows by open time and drops exact duplicates.
// Overlapping but different windows are kept.
func NormalizeWindows(in []Window) []Window {
	out := make([]Window, 0, len(in))
	for _, w := range in {
		if slices.ContainsFunc(out, w.Equal) {
			continue
		}
		out = append(out, w.Clone())
	}
	slices.SortStableFunc(out, func(a, b Window) int {
		if a.Open != b.Open {
			return int(a.Open - b.Open)
		}
		return int(a.Close - b.Close)
	})
	return out
}

// =============================================================================
// RULES - Recurring windows, date exceptions, closure periods
// =============================================================================

// RecurringWindow applies every week on DayOfWeek. An IsClosed row marks the
// weekday closed and contributes no window.
type RecurringWindow struct {
	ID        RuleID       `json:"id"`
	TenantID  TenantID     `json:"tenant_id"`
	ServiceID ServiceID    `json:"service_id"`
	DayOfWeek time.Weekday `json:"day_of_week"`
	Window
	IsClosed bool `json:"is_closed"`
}

func (r RecurringWindow) Validate() error {
	if r.ID == "" || r.TenantID == "" || r.ServiceID == "" {
		return Invalid("recurring_window", "id, tenant and service are required")
	}
	if r.DayOfWeek < time.Sunday || r.DayOfWeek > time.Saturday {
		return Invalid("recurring_window.day_of_week", "must be 0-6, got %d", r.DayOfWeek)
	}
	if r.IsClosed {
		return nil
	}
	return r.Window.Validate()
}

// DateException replaces the recurring rules for one date. A closed
// exception, or one with no windows, closes the day.
type DateException struct {
	ID          RuleID    `json:"id"`
	TenantID    TenantID  `json:"tenant_id"`
	ServiceID   ServiceID `json:"service_id"`
	Date        Date      `json:"date"`
	IsClosed    bool      `json:"is_closed"`
	Windows     []Window  `json:"windows,omitempty"`
	DayCapacity *int      `json:"day_capacity,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

func (e DateException) Validate() error {
	if e.ID == "" || e.TenantID == "" || e.ServiceID == "" {
		return Invalid("date_exception", "id, tenant and service are required")
	}
	if e.Date.IsZero() {
		return Invalid("date_exception.date", "required")
	}
	if e.DayCapacity != nil && *e.DayCapacity < 0 {
		return Invalid("date_exception.day_capacity", "must not be negative")
	}
	for _, w := range e.Windows {
		if err := w.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (e DateException) Clone() DateException {
	c := e
	c.Windows = make([]Window, len(e.Windows))
	for i, w := range e.Windows {
		c.Windows[i] = w.Clone()
	}
	if e.DayCapacity != nil {
		c.DayCapacity = IntPtr(*e.DayCapacity)
	}
	return c
}

// ClosurePeriod closes an inclusive date range. A nil ServiceID closes every
// service of the tenant.
type ClosurePeriod struct {
	ID        RuleID     `json:"id"`
	TenantID  TenantID   `json:"tenant_id"`
	ServiceID *ServiceID `json:"service_id,omitempty"`
	Period
	Reason string `json:"reason,omitempty"`
}

func (c ClosurePeriod) Validate() error {
	if c.ID == "" || c.TenantID == "" {
		return Invalid("closure", "id and tenant are required")
	}
	if c.End.Before(c.Start) {
		return Invalid("closure", "end %s is before start %s", c.End, c.Start)
	}
	return nil
}

// AppliesTo reports whether the closure covers the service on the date.
func (c ClosurePeriod) AppliesTo(service ServiceID, d Date) bool {
	if c.ServiceID != nil && *c.ServiceID != service {
		return false
	}
	return c.Contains(d)
}

// Slot is one bookable unit generated from a window.
type Slot struct {
	Start    ClockTime `json:"start"`
	End      ClockTime `json:"end"`
	Capacity Capacity  `json:"capacity"`
}

func (s Slot) Range() TimeRange { return TimeRange{Start: s.Start, End: s.End} }
