package shifts

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/lock"
	"github.com/warp/schedule-engine/metrics"
)

// RejectedError carries the conflicts that blocked an assignment.
type RejectedError struct {
	Result ValidationResult
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("shift assignment rejected with %d conflict(s)", len(e.Result.Conflicts))
}

func (e *RejectedError) Unwrap() error { return generic.ErrAssignmentRejected }

type AssignOptions struct {
	// AllowSoft accepts assignments whose only conflicts are soft.
	AllowSoft bool
}

// Assigner validates and stores shifts under a per-employee lock.
type Assigner struct {
	store   generic.TxStore
	checker *Checker
	locker  lock.Locker
	clock   generic.Clock
	logger  zerolog.Logger
}

func NewAssigner(store generic.TxStore, checker *Checker, locker lock.Locker, clock generic.Clock, logger zerolog.Logger) *Assigner {
	return &Assigner{
		store:   store,
		checker: checker,
		locker:  locker,
		clock:   clock,
		logger:  logger.With().Str("component", "shift_assigner").Logger(),
	}
}

// Assign validates the shift and creates it if acceptable. Hard conflicts
// always reject; soft conflicts reject unless opts.AllowSoft. The returned
// result is populated in both cases.
func (a *Assigner) Assign(ctx context.Context, tenant generic.TenantID, employee generic.EmployeeID, shift generic.ShiftAssignment, opts AssignOptions) (*generic.ShiftAssignment, ValidationResult, error) {
	started := time.Now()
	unlock, err := a.locker.Lock(ctx, lock.ShiftKey(tenant, employee))
	metrics.ObserveLockWait("shift", started, err)
	if err != nil {
		return nil, ValidationResult{}, err
	}
	defer unlock()

	if shift.ID == "" {
		shift.ID = generic.ShiftID(generic.NewID())
	}
	shift.TenantID = tenant
	shift.EmployeeID = employee
	if shift.Status == "" {
		shift.Status = generic.ShiftActive
	}
	shift.CreatedAt = a.clock.Now()

	var result ValidationResult
	err = a.store.WithTx(ctx, func(tx generic.Store) error {
		var err error
		result, err = a.checker.WithStore(tx).ValidateAssignment(ctx, tenant, employee, shift)
		if err != nil {
			return err
		}
		if !result.OK || (len(result.Soft()) > 0 && !opts.AllowSoft) {
			return &RejectedError{Result: result}
		}
		return tx.CreateShift(ctx, shift)
	})
	if err != nil {
		metrics.IncShiftDecision("rejected")
		return nil, result, err
	}

	metrics.IncShiftDecision("assigned")
	a.logger.Info().
		Str("tenant", string(tenant)).
		Str("employee", string(employee)).
		Str("shift", string(shift.ID)).
		Stringer("date", shift.Date).
		Int("warnings", len(result.Soft())).
		Msg("shift assigned")
	return &shift, result, nil
}

// Swap exchanges the employees of two shifts after validating both sides.
func (a *Assigner) Swap(ctx context.Context, tenant generic.TenantID, first, second generic.ShiftID, opts AssignOptions) (SwapResult, error) {
	firstShift, err := a.store.GetShift(ctx, tenant, first)
	if err != nil {
		return SwapResult{}, err
	}
	secondShift, err := a.store.GetShift(ctx, tenant, second)
	if err != nil {
		return SwapResult{}, err
	}

	if firstShift.EmployeeID == secondShift.EmployeeID {
		return SwapResult{}, generic.Invalid("swap", "both shifts belong to employee %s", firstShift.EmployeeID)
	}

	// Lock in a stable order so two opposite swaps cannot deadlock.
	keys := []string{lock.ShiftKey(tenant, firstShift.EmployeeID), lock.ShiftKey(tenant, secondShift.EmployeeID)}
	if keys[1] < keys[0] {
		keys[0], keys[1] = keys[1], keys[0]
	}
	for _, key := range keys {
		unlock, err := a.locker.Lock(ctx, key)
		if err != nil {
			return SwapResult{}, err
		}
		defer unlock()
	}

	var result SwapResult
	err = a.store.WithTx(ctx, func(tx generic.Store) error {
		var err error
		result, err = a.checker.WithStore(tx).ValidateSwap(ctx, tenant, first, second)
		if err != nil {
			return err
		}
		soft := len(result.ForFirst.Soft()) + len(result.ForSecond.Soft())
		if !result.OK || (soft > 0 && !opts.AllowSoft) {
			combined := append(append([]Conflict{}, result.ForFirst.Conflicts...), result.ForSecond.Conflicts...)
			return &RejectedError{Result: ValidationResult{OK: result.OK, Conflicts: combined}}
		}
		x, err := tx.GetShift(ctx, tenant, first)
		if err != nil {
			return err
		}
		y, err := tx.GetShift(ctx, tenant, second)
		if err != nil {
			return err
		}
		x.EmployeeID, y.EmployeeID = y.EmployeeID, x.EmployeeID
		if err := tx.SaveShift(ctx, *x); err != nil {
			return err
		}
		return tx.SaveShift(ctx, *y)
	})
	if err != nil {
		return result, err
	}
	a.logger.Info().Str("tenant", string(tenant)).Str("first", string(first)).Str("second", string(second)).
		Msg("shifts swapped")
	return result, nil
}
