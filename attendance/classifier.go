/*
Package attendance classifies what actually happened on a shift.

PURPOSE:
  After check-out, the recorded punches are compared with the scheduled
  shift. The result is the overtime worked and a list of timing anomalies
  for review. Nothing here persists; the caller stores the classification.

KEY CONCEPTS:
  Overtime:
    worked    = check-out - check-in
    overtime  = max(0, worked - break - scheduled net minutes)
    The break is the recorded one when present, else the scheduled one.
    Overtime starts out pending until a person reclassifies it as paid,
    banked or recovered. A policy may auto-approve small amounts.

  Anomalies:
    Each rule is evaluated on its own and carries the severity (1-5) the
    policy assigns to it. A missing punch is only reported once the shift
    end plus the grace period has passed on the injected clock.

SEE ALSO:
  - correction.go: 24 hour auto-approval of punch corrections
*/
package attendance

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/metrics"
)

// =============================================================================
// POLICY
// =============================================================================

type AnomalyKind string

const (
	LateCheckIn     AnomalyKind = "late_check_in"
	EarlyCheckIn    AnomalyKind = "early_check_in"
	LateCheckOut    AnomalyKind = "late_check_out"
	EarlyCheckOut   AnomalyKind = "early_check_out"
	MissingCheckIn  AnomalyKind = "missing_check_in"
	MissingCheckOut AnomalyKind = "missing_check_out"
	ExtendedBreak   AnomalyKind = "extended_break"
)

// AnomalyKinds lists every rule in evaluation order.
var AnomalyKinds = []AnomalyKind{
	MissingCheckIn, LateCheckIn, EarlyCheckIn,
	MissingCheckOut, LateCheckOut, EarlyCheckOut,
	ExtendedBreak,
}

// Policy holds the tolerances and severities used by the classifier.
// Tolerances are in minutes and a deviation must exceed them to count.
type Policy struct {
	LateCheckInMinutes    int `yaml:"late_check_in_minutes" json:"late_check_in_minutes"`
	EarlyCheckInMinutes   int `yaml:"early_check_in_minutes" json:"early_check_in_minutes"`
	LateCheckOutMinutes   int `yaml:"late_check_out_minutes" json:"late_check_out_minutes"`
	EarlyCheckOutMinutes  int `yaml:"early_check_out_minutes" json:"early_check_out_minutes"`
	BreakToleranceMinutes int `yaml:"break_tolerance_minutes" json:"break_tolerance_minutes"`
	MissingGraceMinutes   int `yaml:"missing_grace_minutes" json:"missing_grace_minutes"`

	Severities map[AnomalyKind]int `yaml:"severities" json:"severities"`

	// OvertimeAutoApproveMinutes approves overtime up to this many minutes
	// without review. Nil disables auto-approval.
	OvertimeAutoApproveMinutes *int `yaml:"overtime_auto_approve_minutes" json:"overtime_auto_approve_minutes,omitempty"`
}

func DefaultPolicy() Policy {
	return Policy{
		LateCheckInMinutes:    5,
		EarlyCheckInMinutes:   30,
		LateCheckOutMinutes:   15,
		EarlyCheckOutMinutes:  5,
		BreakToleranceMinutes: 10,
		MissingGraceMinutes:   60,
		Severities: map[AnomalyKind]int{
			LateCheckIn:     3,
			EarlyCheckIn:    1,
			LateCheckOut:    2,
			EarlyCheckOut:   3,
			MissingCheckIn:  5,
			MissingCheckOut: 4,
			ExtendedBreak:   2,
		},
	}
}

// Severity returns the configured severity for kind, defaulting to 3.
func (p Policy) Severity(kind AnomalyKind) int {
	if s, ok := p.Severities[kind]; ok {
		return s
	}
	return 3
}

func (p Policy) Validate() error {
	for name, v := range map[string]int{
		"late_check_in_minutes":   p.LateCheckInMinutes,
		"early_check_in_minutes":  p.EarlyCheckInMinutes,
		"late_check_out_minutes":  p.LateCheckOutMinutes,
		"early_check_out_minutes": p.EarlyCheckOutMinutes,
		"break_tolerance_minutes": p.BreakToleranceMinutes,
		"missing_grace_minutes":   p.MissingGraceMinutes,
	} {
		if v < 0 {
			return generic.Invalid("attendance."+name, "must not be negative")
		}
	}
	for kind, s := range p.Severities {
		if s < 1 || s > 5 {
			return generic.Invalid("attendance.severities."+string(kind), "severity %d outside 1-5", s)
		}
	}
	if p.OvertimeAutoApproveMinutes != nil && *p.OvertimeAutoApproveMinutes < 0 {
		return generic.Invalid("attendance.overtime_auto_approve_minutes", "must not be negative")
	}
	return nil
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

type Anomaly struct {
	Kind     AnomalyKind `json:"kind"`
	Severity int         `json:"severity"`
	Minutes  int         `json:"minutes,omitempty"`
	Message  string      `json:"message"`
}

type OvertimeStatus string

const (
	OvertimeNone         OvertimeStatus = "none"
	OvertimePending      OvertimeStatus = "pending"
	OvertimeAutoApproved OvertimeStatus = "auto_approved"
	OvertimePaid         OvertimeStatus = "paid"
	OvertimeBanked       OvertimeStatus = "banked"
	OvertimeRecovered    OvertimeStatus = "recovered"
)

type Classification struct {
	ShiftID         generic.ShiftID `json:"shift_id"`
	WorkedMinutes   int             `json:"worked_minutes"`
	OvertimeMinutes int             `json:"overtime_minutes"`
	OvertimeStatus  OvertimeStatus  `json:"overtime_status"`
	Anomalies       []Anomaly       `json:"anomalies"`
}

// Reclassify settles pending or auto-approved overtime as paid, banked or
// recovered.
func (c Classification) Reclassify(to OvertimeStatus) (Classification, error) {
	switch to {
	case OvertimePaid, OvertimeBanked, OvertimeRecovered:
	default:
		return c, generic.Invalid("overtime_status", "cannot reclassify overtime as %q", to)
	}
	if c.OvertimeStatus != OvertimePending && c.OvertimeStatus != OvertimeAutoApproved {
		return c, generic.Invalid("overtime_status", "overtime in status %q cannot be reclassified", c.OvertimeStatus)
	}
	c.OvertimeStatus = to
	return c, nil
}

// =============================================================================
// CLASSIFIER
// =============================================================================

type Classifier struct {
	policy Policy
	clock  generic.Clock
	logger zerolog.Logger
}

func NewClassifier(policy Policy, clock generic.Clock, logger zerolog.Logger) *Classifier {
	return &Classifier{
		policy: policy,
		clock:  clock,
		logger: logger.With().Str("component", "attendance").Logger(),
	}
}

func (c *Classifier) Policy() Policy { return c.policy }

// Classify compares the punches with the scheduled shift. Nil punches are
// missing; a nil actualBreak means the scheduled break was taken.
func (c *Classifier) Classify(shift generic.ShiftAssignment, checkIn, checkOut *time.Time, actualBreak *int) (Classification, error) {
	if err := shift.Validate(); err != nil {
		return Classification{}, err
	}
	if checkIn != nil && checkOut != nil && checkOut.Before(*checkIn) {
		return Classification{}, generic.Invalid("check_out", "check-out %s is before check-in %s",
			checkOut.Format(time.RFC3339), checkIn.Format(time.RFC3339))
	}
	if actualBreak != nil && *actualBreak < 0 {
		return Classification{}, generic.Invalid("break_minutes", "must not be negative")
	}

	start, end := shift.Interval()
	overdue := c.clock.Now().After(end.Add(minutes(c.policy.MissingGraceMinutes)))
	p := c.policy
	var anomalies []Anomaly
	flag := func(kind AnomalyKind, mins int, format string, args ...any) {
		anomalies = append(anomalies, Anomaly{
			Kind:     kind,
			Severity: p.Severity(kind),
			Minutes:  mins,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	switch {
	case checkIn == nil:
		if overdue {
			flag(MissingCheckIn, 0, "no check-in recorded for shift starting %s", start.Format(time.RFC3339))
		}
	case checkIn.Sub(start) > minutes(p.LateCheckInMinutes):
		late := wholeMinutes(checkIn.Sub(start))
		flag(LateCheckIn, late, "checked in %d minutes late", late)
	case start.Sub(*checkIn) > minutes(p.EarlyCheckInMinutes):
		early := wholeMinutes(start.Sub(*checkIn))
		flag(EarlyCheckIn, early, "checked in %d minutes early", early)
	}

	switch {
	case checkOut == nil:
		if overdue {
			flag(MissingCheckOut, 0, "no check-out recorded for shift ending %s", end.Format(time.RFC3339))
		}
	case checkOut.Sub(end) > minutes(p.LateCheckOutMinutes):
		late := wholeMinutes(checkOut.Sub(end))
		flag(LateCheckOut, late, "checked out %d minutes late", late)
	case end.Sub(*checkOut) > minutes(p.EarlyCheckOutMinutes):
		early := wholeMinutes(end.Sub(*checkOut))
		flag(EarlyCheckOut, early, "checked out %d minutes early", early)
	}

	breakTaken := shift.BreakMinutes
	if actualBreak != nil {
		breakTaken = *actualBreak
		if extra := breakTaken - shift.BreakMinutes; extra > p.BreakToleranceMinutes {
			flag(ExtendedBreak, extra, "break ran %d minutes over the scheduled %d", extra, shift.BreakMinutes)
		}
	}

	result := Classification{ShiftID: shift.ID, OvertimeStatus: OvertimeNone, Anomalies: anomalies}
	if result.Anomalies == nil {
		result.Anomalies = []Anomaly{}
	}
	if checkIn != nil && checkOut != nil {
		result.WorkedMinutes = wholeMinutes(checkOut.Sub(*checkIn))
		result.OvertimeMinutes = max(0, result.WorkedMinutes-breakTaken-shift.NetMinutes())
	}
	if result.OvertimeMinutes > 0 {
		result.OvertimeStatus = OvertimePending
		if limit := p.OvertimeAutoApproveMinutes; limit != nil && result.OvertimeMinutes <= *limit {
			result.OvertimeStatus = OvertimeAutoApproved
		}
	}

	for _, a := range result.Anomalies {
		metrics.IncAnomaly(string(a.Kind))
	}
	c.logger.Debug().
		Str("shift", string(shift.ID)).
		Int("overtime_minutes", result.OvertimeMinutes).
		Str("overtime_status", string(result.OvertimeStatus)).
		Int("anomalies", len(result.Anomalies)).
		Msg("shift classified")
	return result, nil
}

func minutes(n int) time.Duration { return time.Duration(n) * time.Minute }

func wholeMinutes(d time.Duration) int { return int(d / time.Minute) }
