/*
Package shifts validates shift assignments against an employee's schedule.

PURPOSE:
  Before a shift is assigned, the checker collects every conflict it would
  cause. All checks run and the full set is returned so the caller can show
  every problem at once.

CHECKS:
  1. Overlap: another active shift of the employee intersects the proposed
     one. Shifts are compared as absolute intervals, so a shift crossing
     midnight is compared against the neighbouring days too. Touching
     shifts (one ends when the next starts) do not overlap, and breaks are
     not carved out of a shift's interval.
  2. Leave: approved leave on any day the shift touches is a hard conflict;
     pending leave is a soft warning.
  3. Hour limits: net scheduled minutes (duration minus break) for the
     day, ISO week and calendar month, counted on the shift's start date,
     against the limit active on that date.

SEVERITY:
  hard - the assignment must be rejected
  soft - the assignment may proceed; the warning is for the caller

SEE ALSO:
  - limits.go: Hour limit evaluation and summaries
  - swap.go: Validating a shift exchange between two employees
  - assign.go: Locked validate-then-create
*/
package shifts

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/metrics"
)

// =============================================================================
// CONFLICTS
// =============================================================================

type ConflictKind string

const (
	ConflictOverlap       ConflictKind = "overlap"
	ConflictLeave         ConflictKind = "leave"
	ConflictLimitExceeded ConflictKind = "limit_exceeded"
	ConflictOvertime      ConflictKind = "overtime"
)

type Severity string

const (
	SeverityHard Severity = "hard"
	SeveritySoft Severity = "soft"
)

// Conflict describes one problem with a proposed shift. Only the fields
// relevant to Kind are set.
type Conflict struct {
	Kind     ConflictKind `json:"kind"`
	Severity Severity     `json:"severity"`
	Message  string       `json:"message"`

	ShiftID generic.ShiftID `json:"shift_id,omitempty"`
	LeaveID generic.LeaveID `json:"leave_id,omitempty"`

	Period           generic.PeriodKind `json:"period,omitempty"`
	ScheduledMinutes int                `json:"scheduled_minutes,omitempty"`
	LimitMinutes     int                `json:"limit_minutes,omitempty"`
}

// ValidationResult is OK when no conflict is hard.
type ValidationResult struct {
	OK        bool       `json:"ok"`
	Conflicts []Conflict `json:"conflicts"`
}

func newResult(conflicts []Conflict) ValidationResult {
	if conflicts == nil {
		conflicts = []Conflict{}
	}
	r := ValidationResult{OK: true, Conflicts: conflicts}
	for _, c := range conflicts {
		if c.Severity == SeverityHard {
			r.OK = false
		}
	}
	return r
}

func (r ValidationResult) Hard() []Conflict { return r.filter(SeverityHard) }
func (r ValidationResult) Soft() []Conflict { return r.filter(SeveritySoft) }

func (r ValidationResult) filter(s Severity) []Conflict {
	var out []Conflict
	for _, c := range r.Conflicts {
		if c.Severity == s {
			out = append(out, c)
		}
	}
	return out
}

// =============================================================================
// CHECKER
// =============================================================================

type Checker struct {
	store  generic.Store
	logger zerolog.Logger
}

func NewChecker(store generic.Store, logger zerolog.Logger) *Checker {
	return &Checker{store: store, logger: logger.With().Str("component", "shift_checker").Logger()}
}

// WithStore returns a checker reading through s, e.g. a transaction view.
func (c *Checker) WithStore(s generic.Store) *Checker {
	return &Checker{store: s, logger: c.logger}
}

// ValidateAssignment returns every conflict the proposed shift would cause
// for the employee. The proposal's own ID is ignored when loading existing
// shifts so re-validating a stored shift does not flag itself.
func (c *Checker) ValidateAssignment(ctx context.Context, tenant generic.TenantID, employee generic.EmployeeID, proposed generic.ShiftAssignment) (ValidationResult, error) {
	return c.validate(ctx, tenant, employee, proposed, nil)
}

func (c *Checker) validate(ctx context.Context, tenant generic.TenantID, employee generic.EmployeeID, proposed generic.ShiftAssignment, ignore map[generic.ShiftID]bool) (ValidationResult, error) {
	proposed.TenantID = tenant
	proposed.EmployeeID = employee
	if err := proposed.Validate(); err != nil {
		return ValidationResult{}, err
	}
	if _, err := c.store.GetEmployee(ctx, tenant, employee); err != nil {
		return ValidationResult{}, err
	}

	existing, err := c.scheduledAround(ctx, tenant, employee, proposed, ignore)
	if err != nil {
		return ValidationResult{}, err
	}

	var conflicts []Conflict
	conflicts = append(conflicts, overlapConflicts(proposed, existing)...)

	leaves, err := c.leaveConflicts(ctx, tenant, employee, proposed)
	if err != nil {
		return ValidationResult{}, err
	}
	conflicts = append(conflicts, leaves...)

	limits, err := c.store.LimitsFor(ctx, tenant, employee)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("load working hours limits: %w", err)
	}
	if active := generic.ActiveLimit(limits, proposed.Date); active != nil {
		conflicts = append(conflicts, limitConflicts(*active, proposed, existing)...)
	}

	for _, conflict := range conflicts {
		metrics.IncShiftConflict(string(conflict.Kind), string(conflict.Severity))
	}
	result := newResult(conflicts)
	c.logger.Debug().
		Str("tenant", string(tenant)).
		Str("employee", string(employee)).
		Stringer("date", proposed.Date).
		Bool("ok", result.OK).
		Int("conflicts", len(result.Conflicts)).
		Msg("assignment validated")
	return result, nil
}

// scheduledAround loads active shifts from the day before the proposal
// through the end of its ISO week and month, whichever reaches further.
func (c *Checker) scheduledAround(ctx context.Context, tenant generic.TenantID, employee generic.EmployeeID, proposed generic.ShiftAssignment, ignore map[generic.ShiftID]bool) ([]generic.ShiftAssignment, error) {
	from, to := proposed.Date.AddDays(-1), proposed.Date.AddDays(1)
	for _, kind := range generic.AggregationKinds {
		p := generic.PeriodFor(kind, proposed.Date)
		if p.Start.Before(from) {
			from = p.Start
		}
		if p.End.After(to) {
			to = p.End
		}
	}

	shifts, err := c.store.ShiftsInRange(ctx, tenant, employee, from, to)
	if err != nil {
		return nil, fmt.Errorf("load shifts: %w", err)
	}
	active := shifts[:0]
	for _, s := range shifts {
		if !s.IsActive() || (proposed.ID != "" && s.ID == proposed.ID) || ignore[s.ID] {
			continue
		}
		active = append(active, s)
	}
	return active, nil
}

// =============================================================================
// OVERLAP & LEAVE
// =============================================================================

// Overlaps reports whether two shifts share any instant. It is symmetric.
func Overlaps(a, b generic.ShiftAssignment) bool {
	aStart, aEnd := a.Interval()
	bStart, bEnd := b.Interval()
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func overlapConflicts(proposed generic.ShiftAssignment, existing []generic.ShiftAssignment) []Conflict {
	var out []Conflict
	for _, s := range existing {
		if s.Date.Before(proposed.Date.AddDays(-1)) || s.Date.After(proposed.Date.AddDays(1)) {
			continue
		}
		if Overlaps(proposed, s) {
			out = append(out, Conflict{
				Kind:     ConflictOverlap,
				Severity: SeverityHard,
				ShiftID:  s.ID,
				Message: fmt.Sprintf("overlaps shift %s on %s %s-%s",
					s.ID, s.Date, s.Start, s.End),
			})
		}
	}
	return out
}

func (c *Checker) leaveConflicts(ctx context.Context, tenant generic.TenantID, employee generic.EmployeeID, proposed generic.ShiftAssignment) ([]Conflict, error) {
	days := proposed.Days()
	leaves, err := c.store.LeavesOverlapping(ctx, tenant, employee, days.Start, days.End)
	if err != nil {
		return nil, fmt.Errorf("load leave requests: %w", err)
	}

	var out []Conflict
	for _, l := range leaves {
		var severity Severity
		switch l.Status {
		case generic.LeaveApproved:
			severity = SeverityHard
		case generic.LeavePending:
			severity = SeveritySoft
		default:
			continue
		}
		out = append(out, Conflict{
			Kind:     ConflictLeave,
			Severity: severity,
			LeaveID:  l.ID,
			Message:  fmt.Sprintf("%s leave %s covers %s", l.Status, l.Period, proposed.Date),
		})
	}
	return out, nil
}
