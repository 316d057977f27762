/*
Package generic provides the core scheduling engine types.

PURPOSE:
  This package contains the tenant-scoped entities and value types shared by
  the availability resolver, the capacity ledger, the shift conflict checker
  and the attendance classifier. Nothing here talks to a database or the
  network; persistence goes through the Store interface in store.go.

KEY CONCEPTS IN THIS FILE (types.go):
  - IDs: Type-safe identifiers (tenant, service, booking, ...)
  - Capacity: Bounded count or explicitly unbounded
  - Service: A bookable offering with its booking mode and defaults
  - Booking: A customer reservation occupying capacity

DESIGN PRINCIPLES:
  1. Tenant scoping: every entity carries its TenantID
  2. Explicit unboundedness: "no limit" is a state, never a sentinel number
  3. Type Safety: distinct ID types prevent mixing services and employees

USAGE:
  svc := generic.Service{
      ID:              "svc-dinner",
      TenantID:        "tenant-1",
      Mode:            generic.ModeSlot,
      DefaultCapacity: generic.IntPtr(20),
  }

SEE ALSO:
  - rules.go: Recurring windows, exceptions and closures
  - workforce.go: Employees, shifts, leave and working-hours limits
  - store.go: Persistence interface
*/
package generic

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	TenantID   string
	ServiceID  string
	RuleID     string
	BookingID  string
	EmployeeID string
	ShiftID    string
	LeaveID    string
	LimitID    string
)

// NewID returns a random identifier for newly created entities.
func NewID() string { return uuid.NewString() }

// StableID derives a deterministic identifier from its parts so that seeding
// the same definition twice writes the same rows.
func StableID(parts ...string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(strings.Join(parts, "/"))).String()
}

func IntPtr(n int) *int { return &n }

// =============================================================================
// CAPACITY - Bounded count or unbounded
// =============================================================================

// Capacity is either a non-negative count or unbounded. The zero value is
// unbounded.
type Capacity struct {
	limit   int
	bounded bool
}

func Unbounded() Capacity { return Capacity{} }

func Limited(n int) Capacity {
	if n < 0 {
		n = 0
	}
	return Capacity{limit: n, bounded: true}
}

// CapacityOf converts an optional configured limit. nil means unbounded.
func CapacityOf(n *int) Capacity {
	if n == nil {
		return Unbounded()
	}
	return Limited(*n)
}

func (c Capacity) IsUnbounded() bool { return !c.bounded }
func (c Capacity) IsExhausted() bool { return c.bounded && c.limit == 0 }

// Remaining returns the count and whether it is meaningful.
func (c Capacity) Remaining() (int, bool) { return c.limit, c.bounded }

// Fits reports whether a party of the given size can be admitted.
func (c Capacity) Fits(party int) bool {
	return !c.bounded || party <= c.limit
}

// Consume subtracts used seats, never going below zero.
func (c Capacity) Consume(used int) Capacity {
	if !c.bounded {
		return c
	}
	return Limited(c.limit - used)
}

// Greater reports whether c admits strictly more than other.
func (c Capacity) Greater(other Capacity) bool {
	if !c.bounded {
		return other.bounded
	}
	return other.bounded && c.limit > other.limit
}

func (c Capacity) String() string {
	if !c.bounded {
		return "unbounded"
	}
	return strconv.Itoa(c.limit)
}

type capacityJSON struct {
	Unbounded bool `json:"unbounded"`
	Remaining *int `json:"remaining,omitempty"`
}

func (c Capacity) MarshalJSON() ([]byte, error) {
	if !c.bounded {
		return json.Marshal(capacityJSON{Unbounded: true})
	}
	n := c.limit
	return json.Marshal(capacityJSON{Remaining: &n})
}

func (c *Capacity) UnmarshalJSON(b []byte) error {
	var raw capacityJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Unbounded || raw.Remaining == nil {
		*c = Unbounded()
		return nil
	}
	*c = Limited(*raw.Remaining)
	return nil
}

// =============================================================================
// SERVICE - Bookable offering
// =============================================================================

// BookingMode selects how a service admits bookings.
type BookingMode string

const (
	// ModeSlot: bookings must match a generated slot exactly.
	ModeSlot BookingMode = "slot"
	// ModeTimeRange: bookings are arbitrary intervals inside open windows.
	ModeTimeRange BookingMode = "time_range"
)

func (m BookingMode) Valid() bool { return m == ModeSlot || m == ModeTimeRange }

type Service struct {
	ID       ServiceID   `json:"id"`
	TenantID TenantID    `json:"tenant_id"`
	Name     string      `json:"name"`
	Mode     BookingMode `json:"mode"`

	// SlotDurationMinutes is the service-wide default for slot mode.
	SlotDurationMinutes *int `json:"slot_duration_minutes,omitempty"`

	// DefaultCapacity applies when neither the window nor the day sets one.
	DefaultCapacity *int `json:"default_capacity,omitempty"`

	// DayCapacities holds per-weekday capacity defaults.
	DayCapacities map[time.Weekday]int `json:"day_capacities,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (s Service) Validate() error {
	if s.ID == "" {
		return Invalid("service.id", "required")
	}
	if s.TenantID == "" {
		return Invalid("service.tenant_id", "required")
	}
	if !s.Mode.Valid() {
		return Invalid("service.mode", "unknown booking mode %q", s.Mode)
	}
	if s.SlotDurationMinutes != nil && *s.SlotDurationMinutes <= 0 {
		return Invalid("service.slot_duration_minutes", "must be positive")
	}
	if s.DefaultCapacity != nil && *s.DefaultCapacity < 0 {
		return Invalid("service.default_capacity", "must not be negative")
	}
	for wd, n := range s.DayCapacities {
		if n < 0 {
			return Invalid("service.day_capacities", "%s must not be negative", wd)
		}
	}
	return nil
}

// =============================================================================
// BOOKING - Reservation occupying capacity
// =============================================================================

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingNoShow    BookingStatus = "no_show"
	BookingCompleted BookingStatus = "completed"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingNoShow, BookingCompleted:
		return true
	}
	return false
}

// HoldsCapacity reports whether bookings in this status occupy seats.
func (s BookingStatus) HoldsCapacity() bool {
	return s == BookingPending || s == BookingConfirmed
}

type Booking struct {
	ID        BookingID     `json:"id"`
	TenantID  TenantID      `json:"tenant_id"`
	ServiceID ServiceID     `json:"service_id"`
	Date      Date          `json:"date"`
	Start     ClockTime     `json:"start"`
	End       ClockTime     `json:"end"`
	PartySize int           `json:"party_size"`
	Status    BookingStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

func (b Booking) Range() TimeRange { return TimeRange{Start: b.Start, End: b.End} }
