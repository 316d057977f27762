/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Seeds a tenant with realistic services, employees and shifts so the API
	can be explored without writing setup requests by hand.

AVAILABLE SCENARIOS:

	salon:     Slot-mode haircut service and a time-range tennis court with
	           contiguous windows, a training-day exception and a closure
	staffing:  Two employees with hour limits, a week of shifts and leave

HOW SCENARIOS WORK:
 1. Services are built through the factory, as a merchant would send them
 2. Every ID is derived from tenant and name, so loading twice is harmless
 3. Nothing is reset; existing bookings and shifts stay untouched

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "salon", "tenant_id": "demo"}

SEE ALSO:
  - factory/service_config.go: Service JSON definitions
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/schedule-engine/factory"
	"github.com/warp/schedule-engine/generic"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "salon",
		Name:        "Salon & Courts",
		Description: "Slot-mode haircuts and a time-range tennis court with exceptions and a closure",
	},
	{
		ID:          "staffing",
		Name:        "Staffing Week",
		Description: "Two employees with working-hour limits, a scheduled week and leave",
	},
}

const defaultScenarioTenant generic.TenantID = "demo"

// ListScenarios returns available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario seeds a tenant with the named scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TenantID == "" {
		req.TenantID = defaultScenarioTenant
	}
	resp, err := Bootstrap(r.Context(), h.Store, req.TenantID, req.ScenarioID, generic.DateOf(h.clock.Now()))
	if err != nil {
		h.writeDomainError(w, r, "Failed to load scenario", err)
		return
	}
	h.logger.Info().Str("scenario", req.ScenarioID).Str("tenant", string(req.TenantID)).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, resp)
}

// Bootstrap seeds tenant with a scenario. Dates are placed around today so
// the data is always current. Loading the same scenario again rewrites the
// same rows.
func Bootstrap(ctx context.Context, store generic.TxStore, tenant generic.TenantID, scenarioID string, today generic.Date) (LoadScenarioResponse, error) {
	resp := LoadScenarioResponse{ScenarioID: scenarioID, TenantID: tenant}
	switch scenarioID {
	case "salon":
		defs, err := salonServices(tenant, today)
		if err != nil {
			return resp, err
		}
		for _, def := range defs {
			if err := factory.Apply(ctx, store, def); err != nil {
				return resp, err
			}
		}
		resp.Services = len(defs)
	case "staffing":
		n, err := loadStaffing(ctx, store, tenant, today)
		if err != nil {
			return resp, err
		}
		resp.Employees = n
	default:
		return resp, generic.Invalid("scenario_id", "unknown scenario %q", scenarioID)
	}
	return resp, nil
}

// =============================================================================
// SALON
// =============================================================================

func salonServices(tenant generic.TenantID, today generic.Date) ([]*factory.Definition, error) {
	var weekly []factory.WeeklyConfig
	for _, day := range []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday"} {
		weekly = append(weekly,
			factory.WeeklyConfig{Day: day, WindowConfig: factory.WindowConfig{Open: "09:00", Close: "12:00"}},
			factory.WeeklyConfig{Day: day, WindowConfig: factory.WindowConfig{Open: "13:00", Close: "18:00"}},
		)
	}
	weekly = append(weekly, factory.WeeklyConfig{Day: "sunday", Closed: true})

	training := today.AddDays(7)
	summer := today.AddDays(30)
	haircut := factory.ServiceConfig{
		ID:              "haircut",
		Name:            "Haircut",
		Category:        "slot",
		Slot:            &factory.SlotConfig{DurationMinutes: 30},
		DefaultCapacity: generic.IntPtr(2),
		DayCapacities:   map[string]int{"saturday": 3},
		Weekly:          weekly,
		Exceptions: []factory.ExceptionConfig{{
			Date:    training.String(),
			Windows: []factory.WindowConfig{{Open: "14:00", Close: "18:00"}},
			Reason:  "Staff training in the morning",
		}},
		Closures: []factory.ClosureConfig{{
			Start:  summer.String(),
			End:    summer.AddDays(6).String(),
			Reason: "Summer break",
		}},
	}

	var courtWeekly []factory.WeeklyConfig
	for _, day := range []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"} {
		courtWeekly = append(courtWeekly,
			factory.WeeklyConfig{Day: day, WindowConfig: factory.WindowConfig{Open: "07:00", Close: "12:00", MaxCapacity: generic.IntPtr(4)}},
			factory.WeeklyConfig{Day: day, WindowConfig: factory.WindowConfig{Open: "12:00", Close: "22:00", MaxCapacity: generic.IntPtr(2)}},
		)
	}
	court := factory.ServiceConfig{
		ID:       "tennis-court",
		Name:     "Tennis Court",
		Category: "time_range",
		Weekly:   courtWeekly,
	}

	var defs []*factory.Definition
	for _, cfg := range []factory.ServiceConfig{haircut, court} {
		def, err := factory.FromConfig(tenant, cfg)
		if err != nil {
			return nil, fmt.Errorf("scenario service %s: %w", cfg.ID, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// =============================================================================
// STAFFING
// =============================================================================

func loadStaffing(ctx context.Context, store generic.TxStore, tenant generic.TenantID, today generic.Date) (int, error) {
	monday := today.StartOfISOWeek()
	employees := []generic.Employee{
		{ID: "alice", TenantID: tenant, Name: "Alice Martin"},
		{ID: "bob", TenantID: tenant, Name: "Bob Nguyen"},
	}
	hours := func(s string) *decimal.Decimal {
		d := decimal.RequireFromString(s)
		return &d
	}
	limits := []generic.WorkingHoursLimit{
		{
			ID: "alice-limit", TenantID: tenant, EmployeeID: "alice",
			MaxHoursPerDay: hours("9"), MaxHoursPerWeek: hours("40"), MinHoursPerWeek: hours("20"),
			AllowOvertime: true, MaxOvertimePerWeek: hours("5"),
			ValidFrom: monday.StartOfMonth(),
		},
		{
			ID: "bob-limit", TenantID: tenant, EmployeeID: "bob",
			MaxHoursPerWeek: hours("30"), MaxHoursPerMonth: hours("120"),
			ValidFrom: monday.StartOfMonth(),
		},
	}
	leaves := []generic.LeaveRequest{
		{
			ID: "bob-friday", TenantID: tenant, EmployeeID: "bob",
			Period: generic.Period{Start: monday.AddDays(4), End: monday.AddDays(4)},
			Status: generic.LeaveApproved, Reason: "Medical appointment",
		},
		{
			ID: "alice-next-monday", TenantID: tenant, EmployeeID: "alice",
			Period: generic.Period{Start: monday.AddDays(7), End: monday.AddDays(7)},
			Status: generic.LeavePending, Reason: "Moving day",
		},
	}

	var shiftsToSave []generic.ShiftAssignment
	for i := range 5 {
		day := monday.AddDays(i)
		shiftsToSave = append(shiftsToSave, generic.ShiftAssignment{
			ID:           generic.ShiftID(generic.StableID(string(tenant), "alice", day.String())),
			TenantID:     tenant,
			EmployeeID:   "alice",
			Date:         day,
			Start:        generic.MustParseClockTime("09:00"),
			End:          generic.MustParseClockTime("17:30"),
			BreakMinutes: 30,
			Status:       generic.ShiftActive,
			CreatedAt:    day.At(0).Add(-7 * 24 * time.Hour),
		})
	}
	for _, i := range []int{0, 1, 2} {
		day := monday.AddDays(i)
		shiftsToSave = append(shiftsToSave, generic.ShiftAssignment{
			ID:           generic.ShiftID(generic.StableID(string(tenant), "bob", day.String())),
			TenantID:     tenant,
			EmployeeID:   "bob",
			Date:         day,
			Start:        generic.MustParseClockTime("22:00"),
			End:          generic.MustParseClockTime("06:00"),
			BreakMinutes: 45,
			Status:       generic.ShiftActive,
			CreatedAt:    day.At(0).Add(-7 * 24 * time.Hour),
		})
	}

	err := store.WithTx(ctx, func(tx generic.Store) error {
		for _, e := range employees {
			if err := tx.SaveEmployee(ctx, e); err != nil {
				return err
			}
		}
		for _, l := range limits {
			if err := tx.SaveLimit(ctx, l); err != nil {
				return err
			}
		}
		for _, l := range leaves {
			if err := tx.SaveLeave(ctx, l); err != nil {
				return err
			}
		}
		for _, s := range shiftsToSave {
			if err := tx.SaveShift(ctx, s); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("load staffing scenario: %w", err)
	}
	return len(employees), nil
}
