package shifts

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/schedule-engine/generic"
)

// =============================================================================
// HOUR LIMITS
// =============================================================================

// scheduledMinutes sums net minutes of shifts starting inside p.
func scheduledMinutes(shifts []generic.ShiftAssignment, p generic.Period) int {
	total := 0
	for _, s := range shifts {
		if p.Contains(s.Date) {
			total += s.NetMinutes()
		}
	}
	return total
}

// limitConflicts checks the day, week and month totals including the
// proposed shift.
//
//	total <= max                                 -> fine
//	total >  max, overtime not allowed           -> hard limit_exceeded
//	total <= max + overtime allowance (or none)  -> soft overtime
//	total >  max + overtime allowance            -> hard limit_exceeded
func limitConflicts(limit generic.WorkingHoursLimit, proposed generic.ShiftAssignment, existing []generic.ShiftAssignment) []Conflict {
	var out []Conflict
	for _, kind := range generic.AggregationKinds {
		maxHours := limit.MaxHours(kind)
		if maxHours == nil {
			continue
		}
		period := generic.PeriodFor(kind, proposed.Date)
		total := scheduledMinutes(existing, period) + proposed.NetMinutes()
		totalMinutes := decimal.NewFromInt(int64(total))
		maxMinutes := generic.HoursToMinutes(*maxHours)
		if !totalMinutes.GreaterThan(maxMinutes) {
			continue
		}

		conflict := Conflict{
			Period:           kind,
			ScheduledMinutes: total,
			LimitMinutes:     int(maxMinutes.IntPart()),
		}
		allowance := limit.MaxOvertime(kind)
		switch {
		case !limit.AllowOvertime:
			conflict.Kind, conflict.Severity = ConflictLimitExceeded, SeverityHard
			conflict.Message = fmt.Sprintf("%s total of %s exceeds the %sh maximum",
				kind, formatHours(total), maxHours.String())
		case allowance == nil || !totalMinutes.GreaterThan(maxMinutes.Add(generic.HoursToMinutes(*allowance))):
			conflict.Kind, conflict.Severity = ConflictOvertime, SeveritySoft
			conflict.Message = fmt.Sprintf("%s total of %s is %s over the %sh maximum",
				kind, formatHours(total), formatHours(int(totalMinutes.Sub(maxMinutes).IntPart())), maxHours.String())
		default:
			ceiling := maxMinutes.Add(generic.HoursToMinutes(*allowance))
			conflict.Kind, conflict.Severity = ConflictLimitExceeded, SeverityHard
			conflict.LimitMinutes = int(ceiling.IntPart())
			conflict.Message = fmt.Sprintf("%s total of %s exceeds the %sh maximum plus %sh overtime",
				kind, formatHours(total), maxHours.String(), allowance.String())
		}
		out = append(out, conflict)
	}
	return out
}

func formatHours(minutes int) string {
	return fmt.Sprintf("%dh%02dm", minutes/60, minutes%60)
}

// =============================================================================
// SUMMARY
// =============================================================================

// HoursSummary reports scheduled time for one aggregation period against
// the active limit.
type HoursSummary struct {
	Period           generic.PeriodKind `json:"period"`
	Range            generic.Period     `json:"range"`
	ScheduledMinutes int                `json:"scheduled_minutes"`
	MinMinutes       *int               `json:"min_minutes,omitempty"`
	MaxMinutes       *int               `json:"max_minutes,omitempty"`
	BelowMinimum     bool               `json:"below_minimum"`
	AboveMaximum     bool               `json:"above_maximum"`
}

// Summarize reports the day, week and month containing date for the
// employee, flagging totals outside the active limit's bounds.
func (c *Checker) Summarize(ctx context.Context, tenant generic.TenantID, employee generic.EmployeeID, date generic.Date) ([]HoursSummary, error) {
	if _, err := c.store.GetEmployee(ctx, tenant, employee); err != nil {
		return nil, err
	}
	month := generic.PeriodFor(generic.PeriodMonth, date)
	week := generic.PeriodFor(generic.PeriodWeek, date)
	from, to := month.Start, month.End
	if week.Start.Before(from) {
		from = week.Start
	}
	if week.End.After(to) {
		to = week.End
	}

	shifts, err := c.store.ShiftsInRange(ctx, tenant, employee, from, to)
	if err != nil {
		return nil, fmt.Errorf("load shifts: %w", err)
	}
	var active []generic.ShiftAssignment
	for _, s := range shifts {
		if s.IsActive() {
			active = append(active, s)
		}
	}
	limits, err := c.store.LimitsFor(ctx, tenant, employee)
	if err != nil {
		return nil, fmt.Errorf("load working hours limits: %w", err)
	}
	limit := generic.ActiveLimit(limits, date)

	out := make([]HoursSummary, 0, len(generic.AggregationKinds))
	for _, kind := range generic.AggregationKinds {
		p := generic.PeriodFor(kind, date)
		s := HoursSummary{Period: kind, Range: p, ScheduledMinutes: scheduledMinutes(active, p)}
		if limit != nil {
			if h := limit.MinHours(kind); h != nil {
				n := int(generic.HoursToMinutes(*h).IntPart())
				s.MinMinutes = &n
				s.BelowMinimum = s.ScheduledMinutes < n
			}
			if h := limit.MaxHours(kind); h != nil {
				n := int(generic.HoursToMinutes(*h).IntPart())
				s.MaxMinutes = &n
				s.AboveMaximum = s.ScheduledMinutes > n
			}
		}
		out = append(out, s)
	}
	return out, nil
}
