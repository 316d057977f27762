package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"github.com/warp/schedule-engine/generic"
)

// executor is satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements generic.Store against an executor without locking.
type queries struct {
	ex executor
}

const dateLayout = "2006-01-02"

func (q queries) exec(ctx context.Context, op string, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s: %w", op, err)
	}
	res, err := q.ex.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	return res, nil
}

func (q queries) query(ctx context.Context, op string, b sq.SelectBuilder) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s: %w", op, err)
	}
	rows, err := q.ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	return rows, nil
}

// =============================================================================
// SERVICES
// =============================================================================

var serviceColumns = []string{
	"tenant_id", "id", "name", "mode", "slot_duration_minutes", "default_capacity",
	"day_capacities_json", "created_at",
}

func (q queries) GetService(ctx context.Context, tenant generic.TenantID, id generic.ServiceID) (*generic.Service, error) {
	services, err := q.selectServices(ctx, sq.Eq{"tenant_id": string(tenant), "id": string(id)})
	if err != nil {
		return nil, err
	}
	if len(services) == 0 {
		return nil, generic.NotFound("service", id)
	}
	return &services[0], nil
}

func (q queries) ListServices(ctx context.Context, tenant generic.TenantID) ([]generic.Service, error) {
	return q.selectServices(ctx, sq.Eq{"tenant_id": string(tenant)})
}

func (q queries) selectServices(ctx context.Context, where sq.Sqlizer) ([]generic.Service, error) {
	rows, err := q.query(ctx, "query services",
		sq.Select(serviceColumns...).From("services").Where(where).OrderBy("id"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []generic.Service
	for rows.Next() {
		var (
			svc       generic.Service
			slotDur   sql.NullInt64
			defCap    sql.NullInt64
			dayCaps   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&svc.TenantID, &svc.ID, &svc.Name, &svc.Mode, &slotDur, &defCap, &dayCaps, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		svc.SlotDurationMinutes = intFromNull(slotDur)
		svc.DefaultCapacity = intFromNull(defCap)
		if dayCaps.Valid && dayCaps.String != "" {
			if err := json.Unmarshal([]byte(dayCaps.String), &svc.DayCapacities); err != nil {
				return nil, fmt.Errorf("failed to decode day capacities of %s: %w", svc.ID, err)
			}
		}
		svc.CreatedAt = parseTime(createdAt)
		out = append(out, svc)
	}
	return out, rows.Err()
}

func (q queries) SaveService(ctx context.Context, svc generic.Service) error {
	if err := svc.Validate(); err != nil {
		return err
	}
	var dayCaps any
	if len(svc.DayCapacities) > 0 {
		raw, err := json.Marshal(svc.DayCapacities)
		if err != nil {
			return fmt.Errorf("failed to encode day capacities: %w", err)
		}
		dayCaps = string(raw)
	}
	_, err := q.exec(ctx, "save service", sq.Insert("services").Options("OR REPLACE").
		Columns(serviceColumns...).
		Values(string(svc.TenantID), string(svc.ID), svc.Name, string(svc.Mode),
			intArg(svc.SlotDurationMinutes), intArg(svc.DefaultCapacity), dayCaps, formatTime(svc.CreatedAt)))
	return err
}

// =============================================================================
// RULES
// =============================================================================

var recurringColumns = []string{
	"tenant_id", "id", "service_id", "day_of_week", "open_minute", "close_minute",
	"max_capacity", "slot_duration_minutes", "slot_capacities_json", "is_closed",
}

func (q queries) RecurringWindows(ctx context.Context, tenant generic.TenantID, service generic.ServiceID, day time.Weekday) ([]generic.RecurringWindow, error) {
	rows, err := q.query(ctx, "query recurring windows", sq.Select(recurringColumns...).
		From("recurring_windows").
		Where(sq.Eq{"tenant_id": string(tenant), "service_id": string(service), "day_of_week": int(day)}).
		OrderBy("open_minute", "id"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []generic.RecurringWindow
	for rows.Next() {
		var (
			w        generic.RecurringWindow
			maxCap   sql.NullInt64
			slotDur  sql.NullInt64
			slotCaps sql.NullString
		)
		if err := rows.Scan(&w.TenantID, &w.ID, &w.ServiceID, &w.DayOfWeek, &w.Open, &w.Close,
			&maxCap, &slotDur, &slotCaps, &w.IsClosed); err != nil {
			return nil, fmt.Errorf("failed to scan recurring window: %w", err)
		}
		w.MaxCapacity = intFromNull(maxCap)
		w.SlotDurationMinutes = intFromNull(slotDur)
		if slotCaps.Valid && slotCaps.String != "" {
			if err := json.Unmarshal([]byte(slotCaps.String), &w.SlotCapacities); err != nil {
				return nil, fmt.Errorf("failed to decode slot capacities of %s: %w", w.ID, err)
			}
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (q queries) SaveRecurringWindow(ctx context.Context, w generic.RecurringWindow) error {
	if err := w.Validate(); err != nil {
		return err
	}
	var slotCaps any
	if len(w.SlotCapacities) > 0 {
		raw, err := json.Marshal(w.SlotCapacities)
		if err != nil {
			return fmt.Errorf("failed to encode slot capacities: %w", err)
		}
		slotCaps = string(raw)
	}
	_, err := q.exec(ctx, "save recurring window", sq.Insert("recurring_windows").Options("OR REPLACE").
		Columns(recurringColumns...).
		Values(string(w.TenantID), string(w.ID), string(w.ServiceID), int(w.DayOfWeek), int(w.Open), int(w.Close),
			intArg(w.MaxCapacity), intArg(w.SlotDurationMinutes), slotCaps, w.IsClosed))
	return err
}

func (q queries) DateException(ctx context.Context, tenant generic.TenantID, service generic.ServiceID, date generic.Date) (*generic.DateException, error) {
	rows, err := q.query(ctx, "query date exception", sq.
		Select("tenant_id", "id", "service_id", "date", "is_closed", "windows_json", "day_capacity", "reason").
		From("date_exceptions").
		Where(sq.Eq{"tenant_id": string(tenant), "service_id": string(service), "date": date.String()}))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var (
		e       generic.DateException
		day     string
		windows sql.NullString
		dayCap  sql.NullInt64
		reason  sql.NullString
	)
	if err := rows.Scan(&e.TenantID, &e.ID, &e.ServiceID, &day, &e.IsClosed, &windows, &dayCap, &reason); err != nil {
		return nil, fmt.Errorf("failed to scan date exception: %w", err)
	}
	e.Date = parseDate(day)
	e.DayCapacity = intFromNull(dayCap)
	e.Reason = reason.String
	if windows.Valid && windows.String != "" {
		if err := json.Unmarshal([]byte(windows.String), &e.Windows); err != nil {
			return nil, fmt.Errorf("failed to decode windows of exception %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

// SaveDateException replaces any existing exception for the same date.
func (q queries) SaveDateException(ctx context.Context, e generic.DateException) error {
	if err := e.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(e.Windows)
	if err != nil {
		return fmt.Errorf("failed to encode exception windows: %w", err)
	}
	_, err = q.exec(ctx, "save date exception", sq.Insert("date_exceptions").Options("OR REPLACE").
		Columns("tenant_id", "id", "service_id", "date", "is_closed", "windows_json", "day_capacity", "reason").
		Values(string(e.TenantID), string(e.ID), string(e.ServiceID), e.Date.String(), e.IsClosed,
			string(raw), intArg(e.DayCapacity), e.Reason))
	return err
}

func (q queries) ClosuresCovering(ctx context.Context, tenant generic.TenantID, service generic.ServiceID, date generic.Date) ([]generic.ClosurePeriod, error) {
	day := date.String()
	rows, err := q.query(ctx, "query closures", sq.
		Select("tenant_id", "id", "service_id", "start_date", "end_date", "reason").
		From("closure_periods").
		Where(sq.Eq{"tenant_id": string(tenant)}).
		Where(sq.Or{sq.Eq{"service_id": nil}, sq.Eq{"service_id": string(service)}}).
		Where(sq.LtOrEq{"start_date": day}).
		Where(sq.GtOrEq{"end_date": day}).
		OrderBy("id"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []generic.ClosurePeriod
	for rows.Next() {
		var (
			c          generic.ClosurePeriod
			serviceID  sql.NullString
			start, end string
			reason     sql.NullString
		)
		if err := rows.Scan(&c.TenantID, &c.ID, &serviceID, &start, &end, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan closure: %w", err)
		}
		if serviceID.Valid {
			sid := generic.ServiceID(serviceID.String)
			c.ServiceID = &sid
		}
		c.Start, c.End = parseDate(start), parseDate(end)
		c.Reason = reason.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q queries) SaveClosure(ctx context.Context, c generic.ClosurePeriod) error {
	if err := c.Validate(); err != nil {
		return err
	}
	var serviceID any
	if c.ServiceID != nil {
		serviceID = string(*c.ServiceID)
	}
	_, err := q.exec(ctx, "save closure", sq.Insert("closure_periods").Options("OR REPLACE").
		Columns("tenant_id", "id", "service_id", "start_date", "end_date", "reason").
		Values(string(c.TenantID), string(c.ID), serviceID, c.Start.String(), c.End.String(), c.Reason))
	return err
}

// =============================================================================
// BOOKINGS
// =============================================================================

var bookingColumns = []string{
	"tenant_id", "id", "service_id", "date", "start_minute", "end_minute", "party_size", "status", "created_at",
}

func (q queries) BookingsOn(ctx context.Context, tenant generic.TenantID, service generic.ServiceID, date generic.Date) ([]generic.Booking, error) {
	return q.selectBookings(ctx, sq.Eq{"tenant_id": string(tenant), "service_id": string(service), "date": date.String()})
}

func (q queries) GetBooking(ctx context.Context, tenant generic.TenantID, id generic.BookingID) (*generic.Booking, error) {
	bookings, err := q.selectBookings(ctx, sq.Eq{"tenant_id": string(tenant), "id": string(id)})
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return nil, generic.NotFound("booking", id)
	}
	return &bookings[0], nil
}

func (q queries) selectBookings(ctx context.Context, where sq.Sqlizer) ([]generic.Booking, error) {
	rows, err := q.query(ctx, "query bookings",
		sq.Select(bookingColumns...).From("bookings").Where(where).OrderBy("start_minute", "id"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []generic.Booking
	for rows.Next() {
		var (
			b              generic.Booking
			day, createdAt string
		)
		if err := rows.Scan(&b.TenantID, &b.ID, &b.ServiceID, &day, &b.Start, &b.End, &b.PartySize, &b.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		b.Date = parseDate(day)
		b.CreatedAt = parseTime(createdAt)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (q queries) CreateBooking(ctx context.Context, b generic.Booking) error {
	_, err := q.exec(ctx, "create booking", sq.Insert("bookings").
		Columns(bookingColumns...).
		Values(string(b.TenantID), string(b.ID), string(b.ServiceID), b.Date.String(), int(b.Start), int(b.End),
			b.PartySize, string(b.Status), formatTime(b.CreatedAt)))
	return err
}

func (q queries) UpdateBookingStatus(ctx context.Context, tenant generic.TenantID, id generic.BookingID, status generic.BookingStatus) error {
	res, err := q.exec(ctx, "update booking status", sq.Update("bookings").
		Set("status", string(status)).
		Where(sq.Eq{"tenant_id": string(tenant), "id": string(id)}))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.NotFound("booking", id)
	}
	return nil
}

// =============================================================================
// WORKFORCE
// =============================================================================

func (q queries) GetEmployee(ctx context.Context, tenant generic.TenantID, id generic.EmployeeID) (*generic.Employee, error) {
	var e generic.Employee
	query, args, err := sq.Select("tenant_id", "id", "name").From("employees").
		Where(sq.Eq{"tenant_id": string(tenant), "id": string(id)}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build get employee: %w", err)
	}
	err = q.ex.QueryRowContext(ctx, query, args...).Scan(&e.TenantID, &e.ID, &e.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.NotFound("employee", id)
	}
	if err != nil {
		return nil, mapError("get employee", err)
	}
	return &e, nil
}

func (q queries) SaveEmployee(ctx context.Context, e generic.Employee) error {
	if e.ID == "" || e.TenantID == "" {
		return generic.Invalid("employee", "id and tenant are required")
	}
	_, err := q.exec(ctx, "save employee", sq.Insert("employees").Options("OR REPLACE").
		Columns("tenant_id", "id", "name").
		Values(string(e.TenantID), string(e.ID), e.Name))
	return err
}

var shiftColumns = []string{
	"tenant_id", "id", "employee_id", "date", "start_minute", "end_minute", "break_minutes", "status", "created_at",
}

func (q queries) GetShift(ctx context.Context, tenant generic.TenantID, id generic.ShiftID) (*generic.ShiftAssignment, error) {
	shifts, err := q.selectShifts(ctx, sq.Eq{"tenant_id": string(tenant), "id": string(id)})
	if err != nil {
		return nil, err
	}
	if len(shifts) == 0 {
		return nil, generic.NotFound("shift", id)
	}
	return &shifts[0], nil
}

func (q queries) ShiftsInRange(ctx context.Context, tenant generic.TenantID, employee generic.EmployeeID, from, to generic.Date) ([]generic.ShiftAssignment, error) {
	return q.selectShifts(ctx, sq.And{
		sq.Eq{"tenant_id": string(tenant), "employee_id": string(employee)},
		sq.GtOrEq{"date": from.String()},
		sq.LtOrEq{"date": to.String()},
	})
}

func (q queries) selectShifts(ctx context.Context, where sq.Sqlizer) ([]generic.ShiftAssignment, error) {
	rows, err := q.query(ctx, "query shifts",
		sq.Select(shiftColumns...).From("shifts").Where(where).OrderBy("date", "start_minute"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []generic.ShiftAssignment
	for rows.Next() {
		var (
			s              generic.ShiftAssignment
			day, createdAt string
		)
		if err := rows.Scan(&s.TenantID, &s.ID, &s.EmployeeID, &day, &s.Start, &s.End, &s.BreakMinutes, &s.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan shift: %w", err)
		}
		s.Date = parseDate(day)
		s.CreatedAt = parseTime(createdAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (q queries) CreateShift(ctx context.Context, s generic.ShiftAssignment) error {
	return q.writeShift(ctx, sq.Insert("shifts"), "create shift", s)
}

func (q queries) SaveShift(ctx context.Context, s generic.ShiftAssignment) error {
	return q.writeShift(ctx, sq.Insert("shifts").Options("OR REPLACE"), "save shift", s)
}

func (q queries) writeShift(ctx context.Context, b sq.InsertBuilder, op string, s generic.ShiftAssignment) error {
	_, err := q.exec(ctx, op, b.Columns(shiftColumns...).
		Values(string(s.TenantID), string(s.ID), string(s.EmployeeID), s.Date.String(), int(s.Start), int(s.End),
			s.BreakMinutes, string(s.Status), formatTime(s.CreatedAt)))
	return err
}

func (q queries) LeavesOverlapping(ctx context.Context, tenant generic.TenantID, employee generic.EmployeeID, from, to generic.Date) ([]generic.LeaveRequest, error) {
	rows, err := q.query(ctx, "query leave requests", sq.
		Select("tenant_id", "id", "employee_id", "start_date", "end_date", "status", "reason").
		From("leave_requests").
		Where(sq.Eq{"tenant_id": string(tenant), "employee_id": string(employee)}).
		Where(sq.LtOrEq{"start_date": to.String()}).
		Where(sq.GtOrEq{"end_date": from.String()}).
		OrderBy("start_date", "id"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []generic.LeaveRequest
	for rows.Next() {
		var (
			l          generic.LeaveRequest
			start, end string
			reason     sql.NullString
		)
		if err := rows.Scan(&l.TenantID, &l.ID, &l.EmployeeID, &start, &end, &l.Status, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan leave request: %w", err)
		}
		l.Start, l.End = parseDate(start), parseDate(end)
		l.Reason = reason.String
		out = append(out, l)
	}
	return out, rows.Err()
}

func (q queries) SaveLeave(ctx context.Context, l generic.LeaveRequest) error {
	if l.ID == "" || l.TenantID == "" || l.EmployeeID == "" {
		return generic.Invalid("leave", "id, tenant and employee are required")
	}
	if !l.Status.Valid() {
		return generic.Invalid("leave.status", "unknown status %q", l.Status)
	}
	_, err := q.exec(ctx, "save leave request", sq.Insert("leave_requests").Options("OR REPLACE").
		Columns("tenant_id", "id", "employee_id", "start_date", "end_date", "status", "reason").
		Values(string(l.TenantID), string(l.ID), string(l.EmployeeID), l.Start.String(), l.End.String(),
			string(l.Status), l.Reason))
	return err
}

var limitColumns = []string{
	"tenant_id", "id", "employee_id",
	"max_hours_per_day", "max_hours_per_week", "max_hours_per_month",
	"min_hours_per_week", "min_hours_per_month",
	"allow_overtime", "max_overtime_per_week", "max_overtime_per_month",
	"valid_from", "valid_to", "created_at",
}

func (q queries) LimitsFor(ctx context.Context, tenant generic.TenantID, employee generic.EmployeeID) ([]generic.WorkingHoursLimit, error) {
	rows, err := q.query(ctx, "query working hours limits", sq.Select(limitColumns...).
		From("working_hours_limits").
		Where(sq.Eq{"tenant_id": string(tenant), "employee_id": string(employee)}).
		OrderBy("valid_from", "id"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []generic.WorkingHoursLimit
	for rows.Next() {
		var (
			l                           generic.WorkingHoursLimit
			maxDay, maxWeek, maxMonth   decimal.NullDecimal
			minWeek, minMonth           decimal.NullDecimal
			overtimeWeek, overtimeMonth decimal.NullDecimal
			validFrom, createdAt        string
			validTo                     sql.NullString
		)
		if err := rows.Scan(&l.TenantID, &l.ID, &l.EmployeeID,
			&maxDay, &maxWeek, &maxMonth, &minWeek, &minMonth,
			&l.AllowOvertime, &overtimeWeek, &overtimeMonth,
			&validFrom, &validTo, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan working hours limit: %w", err)
		}
		l.MaxHoursPerDay = decimalFromNull(maxDay)
		l.MaxHoursPerWeek = decimalFromNull(maxWeek)
		l.MaxHoursPerMonth = decimalFromNull(maxMonth)
		l.MinHoursPerWeek = decimalFromNull(minWeek)
		l.MinHoursPerMonth = decimalFromNull(minMonth)
		l.MaxOvertimePerWeek = decimalFromNull(overtimeWeek)
		l.MaxOvertimePerMonth = decimalFromNull(overtimeMonth)
		l.ValidFrom = parseDate(validFrom)
		if validTo.Valid && validTo.String != "" {
			d := parseDate(validTo.String)
			l.ValidTo = &d
		}
		l.CreatedAt = parseTime(createdAt)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (q queries) SaveLimit(ctx context.Context, l generic.WorkingHoursLimit) error {
	if err := l.Validate(); err != nil {
		return err
	}
	var validTo any
	if l.ValidTo != nil {
		validTo = l.ValidTo.String()
	}
	_, err := q.exec(ctx, "save working hours limit", sq.Insert("working_hours_limits").Options("OR REPLACE").
		Columns(limitColumns...).
		Values(string(l.TenantID), string(l.ID), string(l.EmployeeID),
			decimalArg(l.MaxHoursPerDay), decimalArg(l.MaxHoursPerWeek), decimalArg(l.MaxHoursPerMonth),
			decimalArg(l.MinHoursPerWeek), decimalArg(l.MinHoursPerMonth),
			l.AllowOvertime, decimalArg(l.MaxOvertimePerWeek), decimalArg(l.MaxOvertimePerMonth),
			l.ValidFrom.String(), validTo, formatTime(l.CreatedAt)))
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func intArg(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func intFromNull(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func decimalArg(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func decimalFromNull(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseDate(s string) generic.Date {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return generic.Date{}
	}
	return generic.DateOf(t)
}
