/*
dto.go - Request and response bodies for the HTTP API

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers
  - *DTO: Listing entries

Domain types that already carry JSON tags (generic.Booking, shifts.Conflict,
attendance.Classification, ...) are returned as they are. Dates travel as
"YYYY-MM-DD" and clock times as "HH:MM".

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/schedule-engine/availability"
	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/shifts"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response. Conflicts is set when
// a booking or shift was rejected so the client sees every reason.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Details   string            `json:"details,omitempty"`
	Conflicts []shifts.Conflict `json:"conflicts,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
}

// =============================================================================
// AVAILABILITY
// =============================================================================

type SlotsResponse struct {
	ServiceID generic.ServiceID `json:"service_id"`
	Date      generic.Date      `json:"date"`
	Slots     []generic.Slot    `json:"slots"`
}

type AvailabilityResponse struct {
	ServiceID generic.ServiceID `json:"service_id"`
	Date      generic.Date      `json:"date"`
	Start     generic.ClockTime `json:"start"`
	End       generic.ClockTime `json:"end"`
	PartySize int               `json:"party_size"`
	Available bool              `json:"available"`
}

type CapacityResponse struct {
	ServiceID generic.ServiceID `json:"service_id"`
	Date      generic.Date      `json:"date"`
	Start     generic.ClockTime `json:"start"`
	End       generic.ClockTime `json:"end"`
	Remaining generic.Capacity  `json:"remaining"`
}

type CreateBookingRequest struct {
	Date      generic.Date          `json:"date"`
	Start     generic.ClockTime     `json:"start"`
	End       generic.ClockTime     `json:"end"`
	PartySize int                   `json:"party_size"`
	Status    generic.BookingStatus `json:"status,omitempty"`
}

func (r CreateBookingRequest) toDomain(tenant generic.TenantID, service generic.ServiceID) availability.BookingRequest {
	return availability.BookingRequest{
		TenantID:  tenant,
		ServiceID: service,
		Date:      r.Date,
		Start:     r.Start,
		End:       r.End,
		PartySize: r.PartySize,
		Status:    r.Status,
	}
}

// =============================================================================
// WORKFORCE
// =============================================================================

type CreateEmployeeRequest struct {
	ID   generic.EmployeeID `json:"id"`
	Name string             `json:"name"`
}

type CreateLeaveRequest struct {
	ID     generic.LeaveID     `json:"id,omitempty"`
	Start  generic.Date        `json:"start"`
	End    generic.Date        `json:"end"`
	Status generic.LeaveStatus `json:"status"`
	Reason string              `json:"reason,omitempty"`
}

// ShiftRequest proposes or assigns a shift. AllowSoft accepts an
// assignment whose only conflicts are warnings.
type ShiftRequest struct {
	ID           generic.ShiftID   `json:"id,omitempty"`
	Date         generic.Date      `json:"date"`
	Start        generic.ClockTime `json:"start"`
	End          generic.ClockTime `json:"end"`
	BreakMinutes int               `json:"break_minutes"`
	AllowSoft    bool              `json:"allow_soft,omitempty"`
}

func (r ShiftRequest) toDomain(tenant generic.TenantID, employee generic.EmployeeID) generic.ShiftAssignment {
	return generic.ShiftAssignment{
		ID:           r.ID,
		TenantID:     tenant,
		EmployeeID:   employee,
		Date:         r.Date,
		Start:        r.Start,
		End:          r.End,
		BreakMinutes: r.BreakMinutes,
		Status:       generic.ShiftActive,
	}
}

type AssignShiftResponse struct {
	Shift  *generic.ShiftAssignment `json:"shift"`
	Result shifts.ValidationResult  `json:"result"`
}

type SwapRequest struct {
	First     generic.ShiftID `json:"first"`
	Second    generic.ShiftID `json:"second"`
	AllowSoft bool            `json:"allow_soft,omitempty"`
}

type HoursResponse struct {
	EmployeeID generic.EmployeeID    `json:"employee_id"`
	Date       generic.Date          `json:"date"`
	Periods    []shifts.HoursSummary `json:"periods"`
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// ClassifyRequest carries the recorded punches. Omitted punches are missing.
type ClassifyRequest struct {
	CheckIn      *time.Time `json:"check_in,omitempty"`
	CheckOut     *time.Time `json:"check_out,omitempty"`
	BreakMinutes *int       `json:"break_minutes,omitempty"`
}

type CorrectionRequest struct {
	Punch time.Time `json:"punch"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string           `json:"scenario_id"`
	TenantID   generic.TenantID `json:"tenant_id,omitempty"`
}

type LoadScenarioResponse struct {
	ScenarioID string           `json:"scenario_id"`
	TenantID   generic.TenantID `json:"tenant_id"`
	Services   int              `json:"services"`
	Employees  int              `json:"employees"`
}
