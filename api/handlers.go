/*
handlers.go - HTTP API handlers for the scheduling engine

PURPOSE:
  Exposes availability, booking, shift validation and attendance
  classification over REST. Handlers parse the request, call the engine and
  serialise the result. No scheduling logic lives here.

ENDPOINTS:
  Services & availability (under /api/tenants/{tenant}):
    GET  /services                                   List services
    POST /services                                   Create from JSON config
    GET  /services/{service}/days/{date}             Resolved day
    GET  /services/{service}/days/{date}/slots       Slots (slot mode)
    GET  /services/{service}/availability            ?date&start&end&party
    GET  /services/{service}/capacity                ?date&start&end
    POST /services/{service}/bookings                Capacity-safe booking
    POST /bookings/{booking}/cancel                  Cancel and free capacity

  Workforce:
    POST /employees                                  Create employee
    POST /employees/{employee}/leave                 Record leave
    POST /employees/{employee}/limits                Record hour limit
    POST /employees/{employee}/shifts/validate       Dry-run validation
    POST /employees/{employee}/shifts                Validate and assign
    GET  /employees/{employee}/hours                 ?date summary
    POST /shifts/swap/validate                       Dry-run swap
    POST /shifts/swap                                Validate and swap

  Attendance:
    POST /shifts/{shift}/classify                    Overtime and anomalies
    POST /corrections/review                         24h correction rule

ERROR HANDLING:
  - 400: Validation errors, not a slot service
  - 404: Unknown tenant entity (another tenant's data is also 404)
  - 409: Capacity exhausted, or assignment rejected with every conflict
  - 429: Tenant rate limit
  - 503: Lock contention, retry
  - 500: Configuration or internal errors

SEE ALSO:
  - dto.go: Request/response bodies
  - server.go: Router and middleware
  - scenarios.go: Demo data
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/warp/schedule-engine/attendance"
	"github.com/warp/schedule-engine/availability"
	"github.com/warp/schedule-engine/factory"
	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/lock"
	"github.com/warp/schedule-engine/shifts"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds the engine components used by the HTTP handlers.
type Handler struct {
	Store       generic.TxStore
	Resolver    *availability.Resolver
	Booker      *availability.Booker
	Checker     *shifts.Checker
	Assigner    *shifts.Assigner
	Classifier  *attendance.Classifier
	Corrections *attendance.Corrections

	clock  generic.Clock
	logger zerolog.Logger
}

// NewHandler wires the engine on top of store.
func NewHandler(store generic.TxStore, locker lock.Locker, clock generic.Clock, policy attendance.Policy, logger zerolog.Logger) *Handler {
	resolver := availability.NewResolver(store, logger)
	checker := shifts.NewChecker(store, logger)
	return &Handler{
		Store:       store,
		Resolver:    resolver,
		Booker:      availability.NewBooker(store, resolver, locker, clock, logger),
		Checker:     checker,
		Assigner:    shifts.NewAssigner(store, checker, locker, clock, logger),
		Classifier:  attendance.NewClassifier(policy, clock, logger),
		Corrections: attendance.NewCorrections(clock, logger),
		clock:       clock,
		logger:      logger.With().Str("component", "api").Logger(),
	}
}

func tenantParam(r *http.Request) generic.TenantID {
	return generic.TenantID(chi.URLParam(r, "tenant"))
}

func serviceParam(r *http.Request) generic.ServiceID {
	return generic.ServiceID(chi.URLParam(r, "service"))
}

func employeeParam(r *http.Request) generic.EmployeeID {
	return generic.EmployeeID(chi.URLParam(r, "employee"))
}

// =============================================================================
// SERVICE HANDLERS
// =============================================================================

// ListServices returns the tenant's services.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.Store.ListServices(r.Context(), tenantParam(r))
	if err != nil {
		h.writeDomainError(w, r, "Failed to list services", err)
		return
	}
	if services == nil {
		services = []generic.Service{}
	}
	writeJSON(w, http.StatusOK, services)
}

// CreateService stores a service and its rules from a JSON configuration.
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var cfg factory.ServiceConfig
	if !decodeBody(w, r, &cfg) {
		return
	}
	def, err := factory.FromConfig(tenantParam(r), cfg)
	if err != nil {
		h.writeDomainError(w, r, "Invalid service configuration", err)
		return
	}
	def.Service.CreatedAt = h.clock.Now()
	if err := factory.Apply(r.Context(), h.Store, def); err != nil {
		h.writeDomainError(w, r, "Failed to save service", err)
		return
	}
	writeJSON(w, http.StatusCreated, def)
}

// GetDay returns the resolved rules for one date.
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	date, err := generic.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		h.writeDomainError(w, r, "Invalid date", err)
		return
	}
	day, err := h.Resolver.ResolveDay(r.Context(), tenantParam(r), serviceParam(r), date)
	if err != nil {
		h.writeDomainError(w, r, "Failed to resolve day", err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

// GetSlots returns the slots of a slot-mode service.
func (h *Handler) GetSlots(w http.ResponseWriter, r *http.Request) {
	date, err := generic.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		h.writeDomainError(w, r, "Invalid date", err)
		return
	}
	slots, err := h.Resolver.ResolveSlots(r.Context(), tenantParam(r), serviceParam(r), date)
	if err != nil {
		h.writeDomainError(w, r, "Failed to resolve slots", err)
		return
	}
	writeJSON(w, http.StatusOK, SlotsResponse{ServiceID: serviceParam(r), Date: date, Slots: slots})
}

// CheckAvailability answers whether a party fits the requested range.
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	q, err := parseRangeQuery(r, true)
	if err != nil {
		h.writeDomainError(w, r, "Invalid query", err)
		return
	}
	ok, err := h.Resolver.IsAvailable(r.Context(), tenantParam(r), serviceParam(r), q.date, q.start, q.end, q.party)
	if err != nil {
		h.writeDomainError(w, r, "Failed to check availability", err)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityResponse{
		ServiceID: serviceParam(r),
		Date:      q.date,
		Start:     q.start,
		End:       q.end,
		PartySize: q.party,
		Available: ok,
	})
}

// GetCapacity returns the remaining capacity for a range.
func (h *Handler) GetCapacity(w http.ResponseWriter, r *http.Request) {
	q, err := parseRangeQuery(r, false)
	if err != nil {
		h.writeDomainError(w, r, "Invalid query", err)
		return
	}
	target := generic.TimeRange{Start: q.start, End: q.end}
	remaining, err := h.Resolver.RemainingCapacity(r.Context(), tenantParam(r), serviceParam(r), q.date, target)
	if err != nil {
		h.writeDomainError(w, r, "Failed to compute capacity", err)
		return
	}
	writeJSON(w, http.StatusOK, CapacityResponse{
		ServiceID: serviceParam(r),
		Date:      q.date,
		Start:     q.start,
		End:       q.end,
		Remaining: remaining,
	})
}

// =============================================================================
// BOOKING HANDLERS
// =============================================================================

// CreateBooking admits a booking if capacity allows.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	booking, err := h.Booker.Book(r.Context(), req.toDomain(tenantParam(r), serviceParam(r)))
	if err != nil {
		h.writeDomainError(w, r, "Booking rejected", err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// CancelBooking cancels a pending or confirmed booking.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id := generic.BookingID(chi.URLParam(r, "booking"))
	booking, err := h.Booker.Cancel(r.Context(), tenantParam(r), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to cancel booking", err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// =============================================================================
// WORKFORCE HANDLERS
// =============================================================================

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" {
		req.ID = generic.EmployeeID(generic.NewID())
	}
	emp := generic.Employee{ID: req.ID, TenantID: tenantParam(r), Name: req.Name}
	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		h.writeDomainError(w, r, "Failed to save employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, emp)
}

func (h *Handler) CreateLeave(w http.ResponseWriter, r *http.Request) {
	var req CreateLeaveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := h.Store.GetEmployee(r.Context(), tenantParam(r), employeeParam(r)); err != nil {
		h.writeDomainError(w, r, "Unknown employee", err)
		return
	}
	period, err := generic.NewPeriod(req.Start, req.End)
	if err != nil {
		h.writeDomainError(w, r, "Invalid leave period", err)
		return
	}
	if req.ID == "" {
		req.ID = generic.LeaveID(generic.NewID())
	}
	leave := generic.LeaveRequest{
		ID:         req.ID,
		TenantID:   tenantParam(r),
		EmployeeID: employeeParam(r),
		Period:     period,
		Status:     req.Status,
		Reason:     req.Reason,
	}
	if err := h.Store.SaveLeave(r.Context(), leave); err != nil {
		h.writeDomainError(w, r, "Failed to save leave", err)
		return
	}
	writeJSON(w, http.StatusCreated, leave)
}

func (h *Handler) CreateLimit(w http.ResponseWriter, r *http.Request) {
	var limit generic.WorkingHoursLimit
	if !decodeBody(w, r, &limit) {
		return
	}
	if _, err := h.Store.GetEmployee(r.Context(), tenantParam(r), employeeParam(r)); err != nil {
		h.writeDomainError(w, r, "Unknown employee", err)
		return
	}
	if limit.ID == "" {
		limit.ID = generic.LimitID(generic.NewID())
	}
	limit.TenantID = tenantParam(r)
	limit.EmployeeID = employeeParam(r)
	limit.CreatedAt = h.clock.Now()
	if err := h.Store.SaveLimit(r.Context(), limit); err != nil {
		h.writeDomainError(w, r, "Failed to save limit", err)
		return
	}
	writeJSON(w, http.StatusCreated, limit)
}

// ValidateShift reports every conflict without storing anything.
func (h *Handler) ValidateShift(w http.ResponseWriter, r *http.Request) {
	var req ShiftRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tenant, employee := tenantParam(r), employeeParam(r)
	result, err := h.Checker.ValidateAssignment(r.Context(), tenant, employee, req.toDomain(tenant, employee))
	if err != nil {
		h.writeDomainError(w, r, "Failed to validate shift", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// AssignShift validates and stores a shift.
func (h *Handler) AssignShift(w http.ResponseWriter, r *http.Request) {
	var req ShiftRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tenant, employee := tenantParam(r), employeeParam(r)
	shift, result, err := h.Assigner.Assign(r.Context(), tenant, employee, req.toDomain(tenant, employee),
		shifts.AssignOptions{AllowSoft: req.AllowSoft})
	if err != nil {
		h.writeDomainError(w, r, "Shift assignment rejected", err)
		return
	}
	writeJSON(w, http.StatusCreated, AssignShiftResponse{Shift: shift, Result: result})
}

func (h *Handler) ValidateSwap(w http.ResponseWriter, r *http.Request) {
	var req SwapRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.Checker.ValidateSwap(r.Context(), tenantParam(r), req.First, req.Second)
	if err != nil {
		h.writeDomainError(w, r, "Failed to validate swap", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Swap(w http.ResponseWriter, r *http.Request) {
	var req SwapRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.Assigner.Swap(r.Context(), tenantParam(r), req.First, req.Second,
		shifts.AssignOptions{AllowSoft: req.AllowSoft})
	if err != nil {
		h.writeDomainError(w, r, "Swap rejected", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetHours summarises scheduled hours around ?date.
func (h *Handler) GetHours(w http.ResponseWriter, r *http.Request) {
	date, err := generic.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		h.writeDomainError(w, r, "Invalid date", err)
		return
	}
	summary, err := h.Checker.Summarize(r.Context(), tenantParam(r), employeeParam(r), date)
	if err != nil {
		h.writeDomainError(w, r, "Failed to summarise hours", err)
		return
	}
	writeJSON(w, http.StatusOK, HoursResponse{EmployeeID: employeeParam(r), Date: date, Periods: summary})
}

// =============================================================================
// ATTENDANCE HANDLERS
// =============================================================================

// ClassifyShift compares recorded punches with a stored shift.
func (h *Handler) ClassifyShift(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	shift, err := h.Store.GetShift(r.Context(), tenantParam(r), generic.ShiftID(chi.URLParam(r, "shift")))
	if err != nil {
		h.writeDomainError(w, r, "Unknown shift", err)
		return
	}
	result, err := h.Classifier.Classify(*shift, req.CheckIn, req.CheckOut, req.BreakMinutes)
	if err != nil {
		h.writeDomainError(w, r, "Failed to classify shift", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ReviewCorrection applies the 24 hour auto-approval rule.
func (h *Handler) ReviewCorrection(w http.ResponseWriter, r *http.Request) {
	var req CorrectionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	decision, err := h.Corrections.Review(req.Punch)
	if err != nil {
		h.writeDomainError(w, r, "Invalid correction", err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// =============================================================================
// HELPERS
// =============================================================================

type rangeQuery struct {
	date       generic.Date
	start, end generic.ClockTime
	party      int
}

func parseRangeQuery(r *http.Request, withParty bool) (rangeQuery, error) {
	q := r.URL.Query()
	var out rangeQuery
	var err error
	if out.date, err = generic.ParseDate(q.Get("date")); err != nil {
		return out, err
	}
	if out.start, err = generic.ParseClockTime(q.Get("start")); err != nil {
		return out, err
	}
	if out.end, err = generic.ParseClockTime(q.Get("end")); err != nil {
		return out, err
	}
	if !withParty {
		return out, nil
	}
	out.party = 1
	if p := q.Get("party"); p != "" {
		if out.party, err = strconv.Atoi(p); err != nil {
			return out, generic.Invalid("party", "expected an integer, got %q", p)
		}
	}
	return out, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors to HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	resp := ErrorResponse{Error: message, Details: err.Error()}
	status := http.StatusInternalServerError

	var rejected *shifts.RejectedError
	switch {
	case errors.As(err, &rejected):
		status = http.StatusConflict
		resp.Conflicts = rejected.Result.Conflicts
	case generic.IsNotFound(err):
		status = http.StatusNotFound
	case generic.IsClientError(err):
		status = http.StatusBadRequest
	case generic.IsConflict(err):
		status = http.StatusConflict
	case generic.IsRetryable(err):
		status = http.StatusServiceUnavailable
		resp.Retryable = true
		w.Header().Set("Retry-After", "1")
	}

	evt := h.logger.Debug()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		evt = h.logger.Error()
	}
	evt.Err(err).
		Str("path", r.URL.Path).
		Int("status", status).
		Msgf("request failed: %s", message)
	writeJSON(w, status, resp)
}
