/*
store.go - Persistence interface for services, rules, bookings and shifts

PURPOSE:
  Defines the interface between the scheduling logic and the database.
  The resolver and the conflict checker only read through these methods;
  writes happen through the booker, the assigner and the seeding paths.

KEY INTERFACES:
  ServiceStore:   Bookable services
  RuleStore:      Recurring windows, date exceptions, closure periods
  BookingStore:   Bookings and their status transitions
  WorkforceStore: Employees, shifts, leave requests, working-hours limits
  TxStore:        Atomic read-then-write

TENANT SCOPING:
  Every method takes the tenant explicitly. Looking up an entity that belongs
  to another tenant returns ErrNotFound, never the entity.

ATOMIC READ-THEN-WRITE:
  Admitting a booking reads current occupancy and then inserts. WithTx runs
  both against the same view and commits only if fn returns nil. Callers
  still take a per-service-day lock (see lock/) so concurrent admissions
  serialize instead of failing.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - availability/booking.go: Booking admission under lock + WithTx
  - shifts/assign.go: Shift assignment under lock + WithTx
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Tenant-scoped persistence
// =============================================================================

type ServiceStore interface {
	GetService(ctx context.Context, tenant TenantID, id ServiceID) (*Service, error)
	ListServices(ctx context.Context, tenant TenantID) ([]Service, error)
	SaveService(ctx context.Context, svc Service) error
}

type RuleStore interface {
	// RecurringWindows returns the rows for one weekday, closed rows included.
	RecurringWindows(ctx context.Context, tenant TenantID, service ServiceID, day time.Weekday) ([]RecurringWindow, error)

	// DateException returns the exception for the date, or nil if none.
	DateException(ctx context.Context, tenant TenantID, service ServiceID, date Date) (*DateException, error)

	// ClosuresCovering returns closures covering the date for the service,
	// including tenant-wide closures.
	ClosuresCovering(ctx context.Context, tenant TenantID, service ServiceID, date Date) ([]ClosurePeriod, error)

	SaveRecurringWindow(ctx context.Context, w RecurringWindow) error
	SaveDateException(ctx context.Context, e DateException) error
	SaveClosure(ctx context.Context, c ClosurePeriod) error
}

type BookingStore interface {
	// BookingsOn returns every booking of the service on the date, any status.
	BookingsOn(ctx context.Context, tenant TenantID, service ServiceID, date Date) ([]Booking, error)
	GetBooking(ctx context.Context, tenant TenantID, id BookingID) (*Booking, error)
	CreateBooking(ctx context.Context, b Booking) error
	UpdateBookingStatus(ctx context.Context, tenant TenantID, id BookingID, status BookingStatus) error
}

type WorkforceStore interface {
	GetEmployee(ctx context.Context, tenant TenantID, id EmployeeID) (*Employee, error)
	SaveEmployee(ctx context.Context, e Employee) error

	GetShift(ctx context.Context, tenant TenantID, id ShiftID) (*ShiftAssignment, error)
	// ShiftsInRange returns the employee's shifts whose Date is in [from, to], any status.
	ShiftsInRange(ctx context.Context, tenant TenantID, employee EmployeeID, from, to Date) ([]ShiftAssignment, error)
	CreateShift(ctx context.Context, s ShiftAssignment) error
	// SaveShift inserts or replaces a shift, used for swaps and cancellation.
	SaveShift(ctx context.Context, s ShiftAssignment) error

	// LeavesOverlapping returns leave requests sharing a day with [from, to], any status.
	LeavesOverlapping(ctx context.Context, tenant TenantID, employee EmployeeID, from, to Date) ([]LeaveRequest, error)
	SaveLeave(ctx context.Context, l LeaveRequest) error

	LimitsFor(ctx context.Context, tenant TenantID, employee EmployeeID) ([]WorkingHoursLimit, error)
	SaveLimit(ctx context.Context, l WorkingHoursLimit) error
}

type Store interface {
	ServiceStore
	RuleStore
	BookingStore
	WorkforceStore
}

// TxStore runs fn atomically. If fn returns an error nothing it wrote is kept.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
