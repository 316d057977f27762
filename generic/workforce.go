package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EMPLOYEE & SHIFT
// =============================================================================

type Employee struct {
	ID       EmployeeID `json:"id"`
	TenantID TenantID   `json:"tenant_id"`
	Name     string     `json:"name"`
}

type ShiftStatus string

const (
	ShiftActive    ShiftStatus = "active"
	ShiftCancelled ShiftStatus = "cancelled"
)

// ShiftAssignment is a scheduled shift. When End is not after Start the
// shift crosses midnight and ends on the following day.
type ShiftAssignment struct {
	ID           ShiftID     `json:"id"`
	TenantID     TenantID    `json:"tenant_id"`
	EmployeeID   EmployeeID  `json:"employee_id"`
	Date         Date        `json:"date"`
	Start        ClockTime   `json:"start"`
	End          ClockTime   `json:"end"`
	BreakMinutes int         `json:"break_minutes"`
	Status       ShiftStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
}

func (s ShiftAssignment) IsActive() bool        { return s.Status == ShiftActive }
func (s ShiftAssignment) CrossesMidnight() bool { return s.End <= s.Start }

// Interval returns the absolute [start, end) instants of the shift.
func (s ShiftAssignment) Interval() (time.Time, time.Time) {
	end := s.End
	if s.CrossesMidnight() {
		end += MinutesPerDay
	}
	return s.Date.At(s.Start), s.Date.At(end)
}

// DurationMinutes is the scheduled length including the break.
func (s ShiftAssignment) DurationMinutes() int {
	start, end := s.Interval()
	return int(end.Sub(start) / time.Minute)
}

// NetMinutes is the scheduled working time, break excluded.
func (s ShiftAssignment) NetMinutes() int {
	return max(0, s.DurationMinutes()-s.BreakMinutes)
}

// Days returns the calendar days the shift touches.
func (s ShiftAssignment) Days() Period {
	_, end := s.Interval()
	last := DateOf(end.Add(-time.Minute))
	return Period{Start: s.Date, End: last}
}

func (s ShiftAssignment) Validate() error {
	if s.Date.IsZero() {
		return Invalid("shift.date", "required")
	}
	if !s.Start.Valid() || !s.End.Valid() || s.Start == MinutesPerDay {
		return Invalid("shift", "start and end must be valid clock times")
	}
	if s.Start == s.End {
		return Invalid("shift", "start and end must differ")
	}
	if s.BreakMinutes < 0 {
		return Invalid("shift.break_minutes", "must not be negative")
	}
	if s.BreakMinutes >= s.DurationMinutes() {
		return Invalid("shift.break_minutes", "break of %d minutes does not fit a %d minute shift",
			s.BreakMinutes, s.DurationMinutes())
	}
	return nil
}

// =============================================================================
// LEAVE
// =============================================================================

type LeaveStatus string

const (
	LeavePending   LeaveStatus = "pending"
	LeaveApproved  LeaveStatus = "approved"
	LeaveRejected  LeaveStatus = "rejected"
	LeaveCancelled LeaveStatus = "cancelled"
)

func (s LeaveStatus) Valid() bool {
	switch s {
	case LeavePending, LeaveApproved, LeaveRejected, LeaveCancelled:
		return true
	}
	return false
}

// LeaveRequest covers the inclusive range [Start, End].
type LeaveRequest struct {
	ID         LeaveID    `json:"id"`
	TenantID   TenantID   `json:"tenant_id"`
	EmployeeID EmployeeID `json:"employee_id"`
	Period
	Status LeaveStatus `json:"status"`
	Reason string      `json:"reason,omitempty"`
}

// =============================================================================
// WORKING HOURS LIMIT
// =============================================================================

// WorkingHoursLimit caps scheduled hours per day, ISO week and month. It is
// in effect for ValidFrom <= date < ValidTo; a nil ValidTo is open ended.
type WorkingHoursLimit struct {
	ID         LimitID    `json:"id"`
	TenantID   TenantID   `json:"tenant_id"`
	EmployeeID EmployeeID `json:"employee_id"`

	MaxHoursPerDay   *decimal.Decimal `json:"max_hours_per_day,omitempty"`
	MaxHoursPerWeek  *decimal.Decimal `json:"max_hours_per_week,omitempty"`
	MaxHoursPerMonth *decimal.Decimal `json:"max_hours_per_month,omitempty"`
	MinHoursPerWeek  *decimal.Decimal `json:"min_hours_per_week,omitempty"`
	MinHoursPerMonth *decimal.Decimal `json:"min_hours_per_month,omitempty"`

	AllowOvertime       bool             `json:"allow_overtime"`
	MaxOvertimePerWeek  *decimal.Decimal `json:"max_overtime_per_week,omitempty"`
	MaxOvertimePerMonth *decimal.Decimal `json:"max_overtime_per_month,omitempty"`

	ValidFrom Date      `json:"valid_from"`
	ValidTo   *Date     `json:"valid_to,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (l WorkingHoursLimit) InEffect(d Date) bool {
	if d.Before(l.ValidFrom) {
		return false
	}
	return l.ValidTo == nil || d.Before(*l.ValidTo)
}

// MaxHours returns the ceiling for the period kind, or nil.
func (l WorkingHoursLimit) MaxHours(kind PeriodKind) *decimal.Decimal {
	switch kind {
	case PeriodDay:
		return l.MaxHoursPerDay
	case PeriodWeek:
		return l.MaxHoursPerWeek
	case PeriodMonth:
		return l.MaxHoursPerMonth
	}
	return nil
}

// MinHours returns the floor for the period kind, or nil. Days have none.
func (l WorkingHoursLimit) MinHours(kind PeriodKind) *decimal.Decimal {
	switch kind {
	case PeriodWeek:
		return l.MinHoursPerWeek
	case PeriodMonth:
		return l.MinHoursPerMonth
	}
	return nil
}

// MaxOvertime returns the overtime allowance above MaxHours, or nil when the
// overtime is uncapped.
func (l WorkingHoursLimit) MaxOvertime(kind PeriodKind) *decimal.Decimal {
	switch kind {
	case PeriodWeek:
		return l.MaxOvertimePerWeek
	case PeriodMonth:
		return l.MaxOvertimePerMonth
	}
	return nil
}

func (l WorkingHoursLimit) Validate() error {
	if l.ID == "" || l.TenantID == "" || l.EmployeeID == "" {
		return Invalid("limit", "id, tenant and employee are required")
	}
	if l.ValidFrom.IsZero() {
		return Invalid("limit.valid_from", "required")
	}
	if l.ValidTo != nil && !l.ValidFrom.Before(*l.ValidTo) {
		return Invalid("limit.valid_to", "must be after valid_from")
	}
	for _, h := range []*decimal.Decimal{
		l.MaxHoursPerDay, l.MaxHoursPerWeek, l.MaxHoursPerMonth,
		l.MinHoursPerWeek, l.MinHoursPerMonth,
		l.MaxOvertimePerWeek, l.MaxOvertimePerMonth,
	} {
		if h != nil && h.IsNegative() {
			return Invalid("limit", "hours must not be negative")
		}
	}
	return nil
}

// ActiveLimit picks the limit in effect on d. When several overlap the most
// recently created wins, then the greatest ID.
func ActiveLimit(limits []WorkingHoursLimit, d Date) *WorkingHoursLimit {
	var best *WorkingHoursLimit
	for i := range limits {
		l := &limits[i]
		if !l.InEffect(d) {
			continue
		}
		if best == nil ||
			l.CreatedAt.After(best.CreatedAt) ||
			(l.CreatedAt.Equal(best.CreatedAt) && l.ID > best.ID) {
			best = l
		}
	}
	return best
}

// HoursToMinutes converts decimal hours to decimal minutes.
func HoursToMinutes(h decimal.Decimal) decimal.Decimal {
	return h.Mul(decimal.NewFromInt(60))
}
