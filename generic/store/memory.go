// Package store provides Store implementations.
package store

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/warp/schedule-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu    sync.RWMutex
	state *memoryState
}

// scoped keys every entity by tenant so IDs never collide across tenants.
type scoped[T ~string] struct {
	tenant generic.TenantID
	id     T
}

type memoryState struct {
	services   map[scoped[generic.ServiceID]]generic.Service
	recurring  map[scoped[generic.RuleID]]generic.RecurringWindow
	exceptions map[scoped[generic.RuleID]]generic.DateException
	closures   map[scoped[generic.RuleID]]generic.ClosurePeriod
	bookings   map[scoped[generic.BookingID]]generic.Booking
	employees  map[scoped[generic.EmployeeID]]generic.Employee
	shifts     map[scoped[generic.ShiftID]]generic.ShiftAssignment
	leaves     map[scoped[generic.LeaveID]]generic.LeaveRequest
	limits     map[scoped[generic.LimitID]]generic.WorkingHoursLimit
}

func NewMemory() *Memory {
	return &Memory{state: newMemoryState()}
}

func newMemoryState() *memoryState {
	return &memoryState{
		services:   make(map[scoped[generic.ServiceID]]generic.Service),
		recurring:  make(map[scoped[generic.RuleID]]generic.RecurringWindow),
		exceptions: make(map[scoped[generic.RuleID]]generic.DateException),
		closures:   make(map[scoped[generic.RuleID]]generic.ClosurePeriod),
		bookings:   make(map[scoped[generic.BookingID]]generic.Booking),
		employees:  make(map[scoped[generic.EmployeeID]]generic.Employee),
		shifts:     make(map[scoped[generic.ShiftID]]generic.ShiftAssignment),
		leaves:     make(map[scoped[generic.LeaveID]]generic.LeaveRequest),
		limits:     make(map[scoped[generic.LimitID]]generic.WorkingHoursLimit),
	}
}

// snapshot copies every map. Values are treated as immutable once stored, so
// a shallow copy of each map is enough to roll back.
func (s *memoryState) snapshot() *memoryState {
	return &memoryState{
		services:   maps.Clone(s.services),
		recurring:  maps.Clone(s.recurring),
		exceptions: maps.Clone(s.exceptions),
		closures:   maps.Clone(s.closures),
		bookings:   maps.Clone(s.bookings),
		employees:  maps.Clone(s.employees),
		shifts:     maps.Clone(s.shifts),
		leaves:     maps.Clone(s.leaves),
		limits:     maps.Clone(s.limits),
	}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(generic.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.snapshot()
	if err := fn(m.state); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func read[R any](m *Memory, fn func(*memoryState) (R, error)) (R, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(m.state)
}

func write(m *Memory, fn func(*memoryState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.state)
}

// =============================================================================
// LOCKED FACADE
// =============================================================================

func (m *Memory) GetService(ctx context.Context, tenant generic.TenantID, id generic.ServiceID) (*generic.Service, error) {
	return read(m, func(s *memoryState) (*generic.Service, error) { return s.GetService(ctx, tenant, id) })
}

func (m *Memory) ListServices(ctx context.Context, tenant generic.TenantID) ([]generic.Service, error) {
	return read(m, func(s *memoryState) ([]generic.Service, error) { return s.ListServices(ctx, tenant) })
}

func (m *Memory) SaveService(ctx context.Context, svc generic.Service) error {
	return write(m, func(s *memoryState) error { return s.SaveService(ctx, svc) })
}

func (m *Memory) RecurringWindows(ctx context.Context, tenant generic.TenantID, service generic.ServiceID, day time.Weekday) ([]generic.RecurringWindow, error) {
	return read(m, func(s *memoryState) ([]generic.RecurringWindow, error) {
		return s.RecurringWindows(ctx, tenant, service, day)
	})
}

func (m *Memory) DateException(ctx context.Context, tenant generic.TenantID, service generic.ServiceID, date generic.Date) (*generic.DateException, error) {
	return read(m, func(s *memoryState) (*generic.DateException, error) {
		return s.DateException(ctx, tenant, service, date)
	})
}

func (m *Memory) ClosuresCovering(ctx context.Context, tenant generic.TenantID, service generic.ServiceID, date generic.Date) ([]generic.ClosurePeriod, error) {
	return read(m, func(s *memoryState) ([]generic.ClosurePeriod, error) {
		return s.ClosuresCovering(ctx, tenant, service, date)
	})
}

func (m *Memory) SaveRecurringWindow(ctx context.Context, w generic.RecurringWindow) error {
	return write(m, func(s *memoryState) error { return s.SaveRecurringWindow(ctx, w) })
}

func (m *Memory) SaveDateException(ctx context.Context, e generic.DateException) error {
	return write(m, func(s *memoryState) error { return s.SaveDateException(ctx, e) })
}

func (m *Memory) SaveClosure(ctx context.Context, c generic.ClosurePeriod) error {
	return write(m, func(s *memoryState) error { return s.SaveClosure(ctx, c) })
}

func (m *Memory) BookingsOn(ctx context.Context, tenant generic.TenantID, service generic.ServiceID, date generic.Date) ([]generic.Booking, error) {
	return read(m, func(s *memoryState) ([]generic.Booking, error) { return s.BookingsOn(ctx, tenant, service, date) })
}

func (m *Memory) GetBooking(ctx context.Context, tenant generic.TenantID, id generic.BookingID) (*generic.Booking, error) {
	return read(m, func(s *memoryState) (*generic.Booking, error) { return s.GetBooking(ctx, tenant, id) })
}

func (m *Memory) CreateBooking(ctx context.Context, b generic.Booking) error {
	return write(m, func(s *memoryState) error { return s.CreateBooking(ctx, b) })
}

func (m *Memory) UpdateBookingStatus(ctx context.Context, tenant generic.TenantID, id generic.BookingID, status generic.BookingStatus) error {
	return write(m, func(s *memoryState) error { return s.UpdateBookingStatus(ctx, tenant, id, status) })
}

func (m *Memory) GetEmployee(ctx context.Context, tenant generic.TenantID, id generic.EmployeeID) (*generic.Employee, error) {
	return read(m, func(s *memoryState) (*generic.Employee, error) { return s.GetEmployee(ctx, tenant, id) })
}

func (m *Memory) SaveEmployee(ctx context.Context, e generic.Employee) error {
	return write(m, func(s *memoryState) error { return s.SaveEmployee(ctx, e) })
}

func (m *Memory) GetShift(ctx context.Context, tenant generic.TenantID, id generic.ShiftID) (*generic.ShiftAssignment, error) {
	return read(m, func(s *memoryState) (*generic.ShiftAssignment, error) { return s.GetShift(ctx, tenant, id) })
}

func (m *Memory) ShiftsInRange(ctx context.Context, tenant generic.TenantID, employee generic.EmployeeID, from, to generic.Date) ([]generic.ShiftAssignment, error) {
	return read(m, func(s *memoryState) ([]generic.ShiftAssignment, error) {
		return s.ShiftsInRange(ctx, tenant, employee, from, to)
	})
}

func (m *Memory) CreateShift(ctx context.Context, sh generic.ShiftAssignment) error {
	return write(m, func(s *memoryState) error { return s.CreateShift(ctx, sh) })
}

func (m *Memory) SaveShift(ctx context.Context, sh generic.ShiftAssignment) error {
	return write(m, func(s *memoryState) error { return s.SaveShift(ctx, sh) })
}

func (m *Memory) LeavesOverlapping(ctx context.Context, tenant generic.TenantID, employee generic.EmployeeID, from, to generic.Date) ([]generic.LeaveRequest, error) {
	return read(m, func(s *memoryState) ([]generic.LeaveRequest, error) {
		return s.LeavesOverlapping(ctx, tenant, employee, from, to)
	})
}

func (m *Memory) SaveLeave(ctx context.Context, l generic.LeaveRequest) error {
	return write(m, func(s *memoryState) error { return s.SaveLeave(ctx, l) })
}

func (m *Memory) LimitsFor(ctx context.Context, tenant generic.TenantID, employee generic.EmployeeID) ([]generic.WorkingHoursLimit, error) {
	return read(m, func(s *memoryState) ([]generic.WorkingHoursLimit, error) { return s.LimitsFor(ctx, tenant, employee) })
}

func (m *Memory) SaveLimit(ctx context.Context, l generic.WorkingHoursLimit) error {
	return write(m, func(s *memoryState) error { return s.SaveLimit(ctx, l) })
}

// =============================================================================
// UNLOCKED STATE - Callers hold Memory.mu
// =============================================================================

func (s *memoryState) GetService(_ context.Context, tenant generic.TenantID, id generic.ServiceID) (*generic.Service, error) {
	svc, ok := s.services[scoped[generic.ServiceID]{tenant, id}]
	if !ok {
		return nil, generic.NotFound("service", id)
	}
	svc.DayCapacities = maps.Clone(svc.DayCapacities)
	return &svc, nil
}

func (s *memoryState) ListServices(_ context.Context, tenant generic.TenantID) ([]generic.Service, error) {
	var out []generic.Service
	for k, svc := range s.services {
		if k.tenant == tenant {
			out = append(out, svc)
		}
	}
	slices.SortFunc(out, func(a, b generic.Service) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out, nil
}

func (s *memoryState) SaveService(_ context.Context, svc generic.Service) error {
	if err := svc.Validate(); err != nil {
		return err
	}
	svc.DayCapacities = maps.Clone(svc.DayCapacities)
	s.services[scoped[generic.ServiceID]{svc.TenantID, svc.ID}] = svc
	return nil
}

func (s *memoryState) RecurringWindows(_ context.Context, tenant generic.TenantID, service generic.ServiceID, day time.Weekday) ([]generic.RecurringWindow, error) {
	var out []generic.RecurringWindow
	for k, w := range s.recurring {
		if k.tenant == tenant && w.ServiceID == service && w.DayOfWeek == day {
			w.Window = w.Window.Clone()
			out = append(out, w)
		}
	}
	slices.SortFunc(out, func(a, b generic.RecurringWindow) int {
		if a.Open != b.Open {
			return int(a.Open - b.Open)
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return out, nil
}

func (s *memoryState) DateException(_ context.Context, tenant generic.TenantID, service generic.ServiceID, date generic.Date) (*generic.DateException, error) {
	for k, e := range s.exceptions {
		if k.tenant == tenant && e.ServiceID == service && e.Date.Equal(date) {
			c := e.Clone()
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memoryState) ClosuresCovering(_ context.Context, tenant generic.TenantID, service generic.ServiceID, date generic.Date) ([]generic.ClosurePeriod, error) {
	var out []generic.ClosurePeriod
	for k, c := range s.closures {
		if k.tenant == tenant && c.AppliesTo(service, date) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b generic.ClosurePeriod) int { return strings.Compare(string(a.ID), string(b.ID)) })
	return out, nil
}

func (s *memoryState) SaveRecurringWindow(_ context.Context, w generic.RecurringWindow) error {
	if err := w.Validate(); err != nil {
		return err
	}
	w.Window = w.Window.Clone()
	s.recurring[scoped[generic.RuleID]{w.TenantID, w.ID}] = w
	return nil
}

// SaveDateException keeps at most one exception per service and date.
func (s *memoryState) SaveDateException(_ context.Context, e generic.DateException) error {
	if err := e.Validate(); err != nil {
		return err
	}
	for k, existing := range s.exceptions {
		if k.tenant == e.TenantID && existing.ServiceID == e.ServiceID && existing.Date.Equal(e.Date) {
			delete(s.exceptions, k)
		}
	}
	s.exceptions[scoped[generic.RuleID]{e.TenantID, e.ID}] = e.Clone()
	return nil
}

func (s *memoryState) SaveClosure(_ context.Context, c generic.ClosurePeriod) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.closures[scoped[generic.RuleID]{c.TenantID, c.ID}] = c
	return nil
}

func (s *memoryState) BookingsOn(_ context.Context, tenant generic.TenantID, service generic.ServiceID, date generic.Date) ([]generic.Booking, error) {
	var out []generic.Booking
	for k, b := range s.bookings {
		if k.tenant == tenant && b.ServiceID == service && b.Date.Equal(date) {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b generic.Booking) int {
		if a.Start != b.Start {
			return int(a.Start - b.Start)
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return out, nil
}

func (s *memoryState) GetBooking(_ context.Context, tenant generic.TenantID, id generic.BookingID) (*generic.Booking, error) {
	b, ok := s.bookings[scoped[generic.BookingID]{tenant, id}]
	if !ok {
		return nil, generic.NotFound("booking", id)
	}
	return &b, nil
}

func (s *memoryState) CreateBooking(_ context.Context, b generic.Booking) error {
	k := scoped[generic.BookingID]{b.TenantID, b.ID}
	if _, exists := s.bookings[k]; exists {
		return generic.ErrDuplicateID
	}
	s.bookings[k] = b
	return nil
}

func (s *memoryState) UpdateBookingStatus(_ context.Context, tenant generic.TenantID, id generic.BookingID, status generic.BookingStatus) error {
	k := scoped[generic.BookingID]{tenant, id}
	b, ok := s.bookings[k]
	if !ok {
		return generic.NotFound("booking", id)
	}
	b.Status = status
	s.bookings[k] = b
	return nil
}

func (s *memoryState) GetEmployee(_ context.Context, tenant generic.TenantID, id generic.EmployeeID) (*generic.Employee, error) {
	e, ok := s.employees[scoped[generic.EmployeeID]{tenant, id}]
	if !ok {
		return nil, generic.NotFound("employee", id)
	}
	return &e, nil
}

func (s *memoryState) SaveEmployee(_ context.Context, e generic.Employee) error {
	if e.ID == "" || e.TenantID == "" {
		return generic.Invalid("employee", "id and tenant are required")
	}
	s.employees[scoped[generic.EmployeeID]{e.TenantID, e.ID}] = e
	return nil
}

func (s *memoryState) GetShift(_ context.Context, tenant generic.TenantID, id generic.ShiftID) (*generic.ShiftAssignment, error) {
	sh, ok := s.shifts[scoped[generic.ShiftID]{tenant, id}]
	if !ok {
		return nil, generic.NotFound("shift", id)
	}
	return &sh, nil
}

func (s *memoryState) ShiftsInRange(_ context.Context, tenant generic.TenantID, employee generic.EmployeeID, from, to generic.Date) ([]generic.ShiftAssignment, error) {
	var out []generic.ShiftAssignment
	for k, sh := range s.shifts {
		if k.tenant == tenant && sh.EmployeeID == employee &&
			sh.Date.AfterOrEqual(from) && sh.Date.BeforeOrEqual(to) {
			out = append(out, sh)
		}
	}
	slices.SortFunc(out, func(a, b generic.ShiftAssignment) int {
		if c := a.Date.Time.Compare(b.Date.Time); c != 0 {
			return c
		}
		return int(a.Start - b.Start)
	})
	return out, nil
}

func (s *memoryState) CreateShift(_ context.Context, sh generic.ShiftAssignment) error {
	k := scoped[generic.ShiftID]{sh.TenantID, sh.ID}
	if _, exists := s.shifts[k]; exists {
		return generic.ErrDuplicateID
	}
	s.shifts[k] = sh
	return nil
}

func (s *memoryState) SaveShift(_ context.Context, sh generic.ShiftAssignment) error {
	s.shifts[scoped[generic.ShiftID]{sh.TenantID, sh.ID}] = sh
	return nil
}

func (s *memoryState) LeavesOverlapping(_ context.Context, tenant generic.TenantID, employee generic.EmployeeID, from, to generic.Date) ([]generic.LeaveRequest, error) {
	want := generic.Period{Start: from, End: to}
	var out []generic.LeaveRequest
	for k, l := range s.leaves {
		if k.tenant == tenant && l.EmployeeID == employee && l.Overlaps(want) {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b generic.LeaveRequest) int { return a.Start.Time.Compare(b.Start.Time) })
	return out, nil
}

func (s *memoryState) SaveLeave(_ context.Context, l generic.LeaveRequest) error {
	if l.ID == "" || l.TenantID == "" || l.EmployeeID == "" {
		return generic.Invalid("leave", "id, tenant and employee are required")
	}
	if !l.Status.Valid() {
		return generic.Invalid("leave.status", "unknown status %q", l.Status)
	}
	s.leaves[scoped[generic.LeaveID]{l.TenantID, l.ID}] = l
	return nil
}

func (s *memoryState) LimitsFor(_ context.Context, tenant generic.TenantID, employee generic.EmployeeID) ([]generic.WorkingHoursLimit, error) {
	var out []generic.WorkingHoursLimit
	for k, l := range s.limits {
		if k.tenant == tenant && l.EmployeeID == employee {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b generic.WorkingHoursLimit) int { return a.ValidFrom.Time.Compare(b.ValidFrom.Time) })
	return out, nil
}

func (s *memoryState) SaveLimit(_ context.Context, l generic.WorkingHoursLimit) error {
	if err := l.Validate(); err != nil {
		return err
	}
	s.limits[scoped[generic.LimitID]{l.TenantID, l.ID}] = l
	return nil
}
