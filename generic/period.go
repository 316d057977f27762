package generic

import "fmt"

// =============================================================================
// PERIOD - Inclusive calendar date range
// =============================================================================

// Period is the inclusive date range [Start, End]. Closures, leave requests
// and working-hours aggregation all use it.
type Period struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

func NewPeriod(start, end Date) (Period, error) {
	if end.Before(start) {
		return Period{}, &ValidationError{Field: "end", Message: fmt.Sprintf("%s is before %s", end, start)}
	}
	return Period{Start: start, End: end}, nil
}

// Contains returns true if the date is within the period [Start, End]
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Overlaps reports whether the two inclusive ranges share at least one day.
func (p Period) Overlaps(other Period) bool {
	return p.Start.BeforeOrEqual(other.End) && other.Start.BeforeOrEqual(p.End)
}

// Days returns every day in the period.
func (p Period) Days() []Date {
	var days []Date
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// AGGREGATION PERIODS - Day, ISO week, calendar month
// =============================================================================

// PeriodKind names the window hours are aggregated over when checking limits.
type PeriodKind string

const (
	PeriodDay   PeriodKind = "day"
	PeriodWeek  PeriodKind = "week"
	PeriodMonth PeriodKind = "month"
)

// AggregationKinds lists the kinds in the order limits are evaluated.
var AggregationKinds = []PeriodKind{PeriodDay, PeriodWeek, PeriodMonth}

// PeriodFor returns the period of the given kind that contains date. Weeks
// are ISO weeks starting Monday.
func PeriodFor(kind PeriodKind, date Date) Period {
	switch kind {
	case PeriodWeek:
		start := date.StartOfISOWeek()
		return Period{Start: start, End: start.AddDays(6)}
	case PeriodMonth:
		return Period{Start: date.StartOfMonth(), End: date.EndOfMonth()}
	default:
		return Period{Start: date, End: date}
	}
}
