package shifts

import (
	"context"

	"github.com/warp/schedule-engine/generic"
)

// SwapResult validates each side of an exchange. ForFirst is the second
// shift checked against the first shift's employee, and vice versa.
type SwapResult struct {
	OK        bool             `json:"ok"`
	ForFirst  ValidationResult `json:"for_first"`
	ForSecond ValidationResult `json:"for_second"`
}

// ValidateSwap checks whether two employees can exchange shifts. Both
// shifts are left out of the existing schedule so each employee is judged
// as if they had already given theirs away.
func (c *Checker) ValidateSwap(ctx context.Context, tenant generic.TenantID, first, second generic.ShiftID) (SwapResult, error) {
	a, err := c.store.GetShift(ctx, tenant, first)
	if err != nil {
		return SwapResult{}, err
	}
	b, err := c.store.GetShift(ctx, tenant, second)
	if err != nil {
		return SwapResult{}, err
	}
	if !a.IsActive() || !b.IsActive() {
		return SwapResult{}, generic.Invalid("swap", "only active shifts can be swapped")
	}
	if a.EmployeeID == b.EmployeeID {
		return SwapResult{}, generic.Invalid("swap", "both shifts belong to employee %s", a.EmployeeID)
	}

	ignore := map[generic.ShiftID]bool{a.ID: true, b.ID: true}
	forFirst, err := c.validate(ctx, tenant, a.EmployeeID, *b, ignore)
	if err != nil {
		return SwapResult{}, err
	}
	forSecond, err := c.validate(ctx, tenant, b.EmployeeID, *a, ignore)
	if err != nil {
		return SwapResult{}, err
	}
	return SwapResult{
		OK:        forFirst.OK && forSecond.OK,
		ForFirst:  forFirst,
		ForSecond: forSecond,
	}, nil
}
