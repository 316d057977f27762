/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.TxStore using SQLite. Queries are assembled with
  squirrel so the same builders port to PostgreSQL by switching the
  placeholder format.

KEY TABLES:
  services:             Bookable services and their capacity defaults
  recurring_windows:    Weekly opening hours per service
  date_exceptions:      One-off overrides, at most one per service and date
  closure_periods:      Inclusive closed date ranges (service or tenant wide)
  bookings:             Customer reservations
  employees, shifts:    Workforce schedule
  leave_requests:       Employee leave
  working_hours_limits: Versioned hour ceilings per employee

TENANT SCOPING:
  Every primary key is (tenant_id, id) and every query filters on tenant_id.
  A row belonging to another tenant is indistinguishable from a missing one.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WithTx holds the write lock for the
  whole read-then-write, and the transactional view reads through the same
  *sql.Tx so it sees its own writes.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/schedule.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/warp/schedule-engine/generic"
)

// Store implements generic.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
	q  queries
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.Contains(dbPath, ":memory:") {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, q: queries{ex: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS services (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		mode TEXT NOT NULL,
		slot_duration_minutes INTEGER,
		default_capacity INTEGER,
		day_capacities_json TEXT,
		created_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE TABLE IF NOT EXISTS recurring_windows (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		service_id TEXT NOT NULL,
		day_of_week INTEGER NOT NULL,
		open_minute INTEGER NOT NULL,
		close_minute INTEGER NOT NULL,
		max_capacity INTEGER,
		slot_duration_minutes INTEGER,
		slot_capacities_json TEXT,
		is_closed INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_recurring_windows_service_day
		ON recurring_windows(tenant_id, service_id, day_of_week);

	-- At most one exception per service and date
	CREATE TABLE IF NOT EXISTS date_exceptions (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		service_id TEXT NOT NULL,
		date TEXT NOT NULL,
		is_closed INTEGER NOT NULL DEFAULT 0,
		windows_json TEXT,
		day_capacity INTEGER,
		reason TEXT,
		PRIMARY KEY (tenant_id, id),
		UNIQUE (tenant_id, service_id, date)
	);

	-- service_id NULL closes every service of the tenant
	CREATE TABLE IF NOT EXISTS closure_periods (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		service_id TEXT,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		reason TEXT,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_closure_periods_range
		ON closure_periods(tenant_id, start_date, end_date);

	CREATE TABLE IF NOT EXISTS bookings (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		service_id TEXT NOT NULL,
		date TEXT NOT NULL,
		start_minute INTEGER NOT NULL,
		end_minute INTEGER NOT NULL,
		party_size INTEGER NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_bookings_service_date
		ON bookings(tenant_id, service_id, date);

	CREATE TABLE IF NOT EXISTS employees (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE TABLE IF NOT EXISTS shifts (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		start_minute INTEGER NOT NULL,
		end_minute INTEGER NOT NULL,
		break_minutes INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_shifts_employee_date
		ON shifts(tenant_id, employee_id, date);

	CREATE TABLE IF NOT EXISTS leave_requests (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_leave_requests_employee
		ON leave_requests(tenant_id, employee_id, start_date, end_date);

	-- Hours are stored as decimal strings
	CREATE TABLE IF NOT EXISTS working_hours_limits (
		tenant_id TEXT NOT NULL,
		id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		max_hours_per_day TEXT,
		max_hours_per_week TEXT,
		max_hours_per_month TEXT,
		min_hours_per_week TEXT,
		min_hours_per_month TEXT,
		allow_overtime INTEGER NOT NULL DEFAULT 0,
		max_overtime_per_week TEXT,
		max_overtime_per_month TEXT,
		valid_from TEXT NOT NULL,
		valid_to TEXT,
		created_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_working_hours_limits_employee
		ON working_hours_limits(tenant_id, employee_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{ex: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return mapError("commit", err)
	}
	return nil
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"bookings", "date_exceptions", "closure_periods", "recurring_windows", "services",
		"shifts", "leave_requests", "working_hours_limits", "employees",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// LOCKED FACADE (generic.Store interface)
// =============================================================================

func (s *Store) GetService(ctx context.Context, tenant generic.TenantID, id generic.ServiceID) (*generic.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetService(ctx, tenant, id)
}

func (s *Store) ListServices(ctx context.Context, tenant generic.TenantID) ([]generic.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListServices(ctx, tenant)
}

func (s *Store) SaveService(ctx context.Context, svc generic.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SaveService(ctx, svc)
}

func (s *Store) RecurringWindows(ctx context.Context, tenant generic.TenantID, service generic.ServiceID, day time.Weekday) ([]generic.RecurringWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.RecurringWindows(ctx, tenant, service, day)
}

func (s *Store) DateException(ctx context.Context, tenant generic.TenantID, service generic.ServiceID, date generic.Date) (*generic.DateException, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.DateException(ctx, tenant, service, date)
}

func (s *Store) ClosuresCovering(ctx context.Context, tenant generic.TenantID, service generic.ServiceID, date generic.Date) ([]generic.ClosurePeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ClosuresCovering(ctx, tenant, service, date)
}

func (s *Store) SaveRecurringWindow(ctx context.Context, w generic.RecurringWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SaveRecurringWindow(ctx, w)
}

func (s *Store) SaveDateException(ctx context.Context, e generic.DateException) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SaveDateException(ctx, e)
}

func (s *Store) SaveClosure(ctx context.Context, c generic.ClosurePeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SaveClosure(ctx, c)
}

func (s *Store) BookingsOn(ctx context.Context, tenant generic.TenantID, service generic.ServiceID, date generic.Date) ([]generic.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.BookingsOn(ctx, tenant, service, date)
}

func (s *Store) GetBooking(ctx context.Context, tenant generic.TenantID, id generic.BookingID) (*generic.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetBooking(ctx, tenant, id)
}

func (s *Store) CreateBooking(ctx context.Context, b generic.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.CreateBooking(ctx, b)
}

func (s *Store) UpdateBookingStatus(ctx context.Context, tenant generic.TenantID, id generic.BookingID, status generic.BookingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.UpdateBookingStatus(ctx, tenant, id, status)
}

func (s *Store) GetEmployee(ctx context.Context, tenant generic.TenantID, id generic.EmployeeID) (*generic.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetEmployee(ctx, tenant, id)
}

func (s *Store) SaveEmployee(ctx context.Context, e generic.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SaveEmployee(ctx, e)
}

func (s *Store) GetShift(ctx context.Context, tenant generic.TenantID, id generic.ShiftID) (*generic.ShiftAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetShift(ctx, tenant, id)
}

func (s *Store) ShiftsInRange(ctx context.Context, tenant generic.TenantID, employee generic.EmployeeID, from, to generic.Date) ([]generic.ShiftAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ShiftsInRange(ctx, tenant, employee, from, to)
}

func (s *Store) CreateShift(ctx context.Context, sh generic.ShiftAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.CreateShift(ctx, sh)
}

func (s *Store) SaveShift(ctx context.Context, sh generic.ShiftAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SaveShift(ctx, sh)
}

func (s *Store) LeavesOverlapping(ctx context.Context, tenant generic.TenantID, employee generic.EmployeeID, from, to generic.Date) ([]generic.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.LeavesOverlapping(ctx, tenant, employee, from, to)
}

func (s *Store) SaveLeave(ctx context.Context, l generic.LeaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SaveLeave(ctx, l)
}

func (s *Store) LimitsFor(ctx context.Context, tenant generic.TenantID, employee generic.EmployeeID) ([]generic.WorkingHoursLimit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.LimitsFor(ctx, tenant, employee)
}

func (s *Store) SaveLimit(ctx context.Context, l generic.WorkingHoursLimit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SaveLimit(ctx, l)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// mapError translates driver errors into the generic sentinels.
func mapError(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrConstraint:
			return fmt.Errorf("%s: %w", op, generic.ErrDuplicateID)
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%s: %w", op, generic.ErrConcurrencyConflict)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
