package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/schedule-engine/api"
	"github.com/warp/schedule-engine/attendance"
	"github.com/warp/schedule-engine/availability"
	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/generic/store"
	"github.com/warp/schedule-engine/lock"
	"github.com/warp/schedule-engine/shifts"
)

const tenant = "t1"

// Monday 2025-03-10 08:00 UTC.
var now = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)

func newServer(t *testing.T, opts api.RouterOptions) http.Handler {
	t.Helper()
	h := api.NewHandler(store.NewMemory(), lock.NewKeyed(time.Second), generic.NewFixedClock(now),
		attendance.DefaultPolicy(), zerolog.Nop())
	return api.NewRouter(h, opts)
}

func do(t *testing.T, srv http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func load(t *testing.T, srv http.Handler, scenario string) {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: scenario, TenantID: tenant})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// =============================================================================
// AVAILABILITY & BOOKING
// =============================================================================

func TestSlotBookingFlow(t *testing.T) {
	// GIVEN: the salon scenario; haircuts default to 2 per slot
	srv := newServer(t, api.RouterOptions{})
	load(t, srv, "salon")

	rec := do(t, srv, http.MethodGet, "/api/tenants/t1/services/haircut/days/2025-03-11/slots", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	slots := decode[api.SlotsResponse](t, rec)
	assert.Len(t, slots.Slots, 6+10)

	booking := api.CreateBookingRequest{
		Date:      generic.MustParseDate("2025-03-11"),
		Start:     generic.MustParseClockTime("09:00"),
		End:       generic.MustParseClockTime("09:30"),
		PartySize: 2,
	}

	// WHEN: the slot is filled
	rec = do(t, srv, http.MethodPost, "/api/tenants/t1/services/haircut/bookings", booking)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[generic.Booking](t, rec)
	assert.Equal(t, generic.BookingConfirmed, first.Status)

	// THEN: the next booking is rejected and capacity reads zero
	booking.PartySize = 1
	rec = do(t, srv, http.MethodPost, "/api/tenants/t1/services/haircut/bookings", booking)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/tenants/t1/services/haircut/capacity?date=2025-03-11&start=09:00&end=09:30", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	capacity := decode[api.CapacityResponse](t, rec)
	assert.True(t, capacity.Remaining.IsExhausted())

	// AND: cancelling frees the slot again
	rec = do(t, srv, http.MethodPost, "/api/tenants/t1/bookings/"+string(first.ID)+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, srv, http.MethodPost, "/api/tenants/t1/services/haircut/bookings", booking)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestAvailabilityAcrossContiguousWindows(t *testing.T) {
	srv := newServer(t, api.RouterOptions{})
	load(t, srv, "salon")

	// 07:00-12:00 holds 4 and 12:00-22:00 holds 2.
	rec := do(t, srv, http.MethodGet, "/api/tenants/t1/services/tennis-court/availability?date=2025-03-12&start=11:00&end=13:00&party=2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[api.AvailabilityResponse](t, rec).Available)

	rec = do(t, srv, http.MethodGet, "/api/tenants/t1/services/tennis-court/availability?date=2025-03-12&start=11:00&end=13:00&party=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[api.AvailabilityResponse](t, rec).Available)
}

func TestResolvedDay(t *testing.T) {
	srv := newServer(t, api.RouterOptions{})
	load(t, srv, "salon")

	rec := do(t, srv, http.MethodGet, "/api/tenants/t1/services/haircut/days/2025-03-17", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	day := decode[availability.ResolvedDay](t, rec)
	assert.Equal(t, availability.SourceException, day.Source, "training day a week after load")
	assert.Len(t, day.Windows, 1)

	rec = do(t, srv, http.MethodGet, "/api/tenants/t1/services/haircut/days/2025-03-16", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[availability.ResolvedDay](t, rec).IsClosed, "sunday")
}

func TestErrorMapping(t *testing.T) {
	srv := newServer(t, api.RouterOptions{})
	load(t, srv, "salon")

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"slots of time range service", "/api/tenants/t1/services/tennis-court/days/2025-03-11/slots", http.StatusBadRequest},
		{"unknown service", "/api/tenants/t1/services/massage/days/2025-03-11", http.StatusNotFound},
		{"other tenant", "/api/tenants/t2/services/haircut/days/2025-03-11", http.StatusNotFound},
		{"bad date", "/api/tenants/t1/services/haircut/days/11-03-2025", http.StatusBadRequest},
		{"bad clock time", "/api/tenants/t1/services/haircut/capacity?date=2025-03-11&start=9am&end=10:00", http.StatusBadRequest},
		{"bad party", "/api/tenants/t1/services/haircut/availability?date=2025-03-11&start=09:00&end=09:30&party=many", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[api.ErrorResponse](t, rec).Error)
		})
	}
}

func TestCreateService(t *testing.T) {
	srv := newServer(t, api.RouterOptions{})

	body := map[string]any{
		"id":       "yoga",
		"name":     "Yoga class",
		"category": "slot",
		"slot":     map[string]int{"duration_minutes": 60},
		"weekly":   []map[string]any{{"day": "tuesday", "open": "18:00", "close": "20:00", "max_capacity": 12}},
	}
	rec := do(t, srv, http.MethodPost, "/api/tenants/t1/services", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/tenants/t1/services/yoga/days/2025-03-11/slots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[api.SlotsResponse](t, rec).Slots, 2)

	body["category"] = "queue"
	rec = do(t, srv, http.MethodPost, "/api/tenants/t1/services", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// SHIFTS
// =============================================================================

func TestShiftValidationAndAssignment(t *testing.T) {
	// GIVEN: alice works 09:00-17:30 Monday to Friday, max 40h/week with
	// up to 5h overtime
	srv := newServer(t, api.RouterOptions{})
	load(t, srv, "staffing")

	overlapping := api.ShiftRequest{
		Date:  generic.MustParseDate("2025-03-11"),
		Start: generic.MustParseClockTime("16:00"),
		End:   generic.MustParseClockTime("20:00"),
	}

	t.Run("validate reports without storing", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/api/tenants/t1/employees/alice/shifts/validate", overlapping)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		result := decode[shifts.ValidationResult](t, rec)
		assert.False(t, result.OK)
		require.NotEmpty(t, result.Conflicts)
		assert.Equal(t, shifts.ConflictOverlap, result.Conflicts[0].Kind)
	})

	t.Run("assign rejects with every conflict", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/api/tenants/t1/employees/alice/shifts", overlapping)
		require.Equal(t, http.StatusConflict, rec.Code)
		resp := decode[api.ErrorResponse](t, rec)
		assert.NotEmpty(t, resp.Conflicts)
	})

	saturday := api.ShiftRequest{
		Date:  generic.MustParseDate("2025-03-15"),
		Start: generic.MustParseClockTime("10:00"),
		End:   generic.MustParseClockTime("14:00"),
	}

	t.Run("overtime needs consent", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/api/tenants/t1/employees/alice/shifts", saturday)
		require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
		assert.Equal(t, shifts.ConflictOvertime, decode[api.ErrorResponse](t, rec).Conflicts[0].Kind)

		saturday.AllowSoft = true
		rec = do(t, srv, http.MethodPost, "/api/tenants/t1/employees/alice/shifts", saturday)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		resp := decode[api.AssignShiftResponse](t, rec)
		assert.True(t, resp.Result.OK)
		assert.NotEmpty(t, resp.Shift.ID)
	})

	t.Run("hours summary", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/tenants/t1/employees/alice/hours?date=2025-03-12", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[api.HoursResponse](t, rec)
		require.Len(t, resp.Periods, 3)
		assert.Equal(t, 44*60, resp.Periods[1].ScheduledMinutes)
		assert.True(t, resp.Periods[1].AboveMaximum)
	})

	t.Run("unknown employee", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/api/tenants/t1/employees/carol/shifts/validate", saturday)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSwapValidation(t *testing.T) {
	srv := newServer(t, api.RouterOptions{})
	load(t, srv, "staffing")

	aliceMonday := generic.ShiftID(generic.StableID(tenant, "alice", "2025-03-10"))
	bobMonday := generic.ShiftID(generic.StableID(tenant, "bob", "2025-03-10"))

	rec := do(t, srv, http.MethodPost, "/api/tenants/t1/shifts/swap/validate", api.SwapRequest{First: aliceMonday, Second: bobMonday})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[shifts.SwapResult](t, rec).OK)

	rec = do(t, srv, http.MethodPost, "/api/tenants/t1/shifts/swap", api.SwapRequest{First: aliceMonday, Second: bobMonday})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodPost, "/api/tenants/t1/shifts/swap/validate", api.SwapRequest{First: aliceMonday, Second: "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func TestClassifyShift(t *testing.T) {
	srv := newServer(t, api.RouterOptions{})
	load(t, srv, "staffing")

	shiftID := generic.StableID(tenant, "alice", "2025-03-10")
	checkIn := time.Date(2025, time.March, 10, 9, 10, 0, 0, time.UTC)
	checkOut := time.Date(2025, time.March, 10, 18, 30, 0, 0, time.UTC)

	rec := do(t, srv, http.MethodPost, "/api/tenants/t1/shifts/"+shiftID+"/classify",
		api.ClassifyRequest{CheckIn: &checkIn, CheckOut: &checkOut})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[attendance.Classification](t, rec)
	assert.Equal(t, 50, result.OvertimeMinutes)
	assert.Equal(t, attendance.OvertimePending, result.OvertimeStatus)
	require.Len(t, result.Anomalies, 2)
	assert.Equal(t, attendance.LateCheckIn, result.Anomalies[0].Kind)
	assert.Equal(t, attendance.LateCheckOut, result.Anomalies[1].Kind)
}

func TestReviewCorrection(t *testing.T) {
	srv := newServer(t, api.RouterOptions{})

	rec := do(t, srv, http.MethodPost, "/api/tenants/t1/corrections/review", api.CorrectionRequest{Punch: now.Add(-24 * time.Hour)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, attendance.CorrectionAutoApproved, decode[attendance.CorrectionDecision](t, rec).Status)

	rec = do(t, srv, http.MethodPost, "/api/tenants/t1/corrections/review", api.CorrectionRequest{Punch: now.Add(-24*time.Hour - time.Second)})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, attendance.CorrectionPendingMerchant, decode[attendance.CorrectionDecision](t, rec).Status)
}

// =============================================================================
// OUTER LAYER
// =============================================================================

func TestTenantRateLimit(t *testing.T) {
	srv := newServer(t, api.RouterOptions{RateLimitRPS: 0.001, RateLimitBurst: 1})

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/tenants/t1/services", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, srv, http.MethodGet, "/api/tenants/t1/services", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/tenants/t2/services", nil).Code, "budgets are per tenant")
}

func TestScenarios(t *testing.T) {
	srv := newServer(t, api.RouterOptions{MetricsPath: "/metrics"})

	rec := do(t, srv, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.ScenarioDTO](t, rec), 2)

	load(t, srv, "staffing")
	load(t, srv, "staffing")

	rec = do(t, srv, http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/metrics", nil).Code)
}
