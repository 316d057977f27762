package generic

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// DATE - A calendar day in the merchant's local calendar
// =============================================================================

// Date is a calendar day. The wrapped time is always midnight UTC so that
// dates compare and hash consistently regardless of where they came from.
type Date struct {
	Time time.Time
}

const dateLayout = "2006-01-02"

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, &ValidationError{Field: "date", Message: fmt.Sprintf("expected YYYY-MM-DD, got %q", s)}
	}
	return DateOf(t), nil
}

func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{Time: d.Time.AddDate(0, n, 0)} }

// DaysUntil returns the number of calendar days from d to other.
func (d Date) DaysUntil(other Date) int {
	return int(other.Time.Sub(d.Time).Hours() / 24)
}

// Properties
func (d Date) Year() int             { return d.Time.Year() }
func (d Date) Month() time.Month     { return d.Time.Month() }
func (d Date) Day() int              { return d.Time.Day() }
func (d Date) Weekday() time.Weekday { return d.Time.Weekday() }
func (d Date) IsZero() bool          { return d.Time.IsZero() }
func (d Date) String() string        { return d.Time.Format(dateLayout) }

// At returns the absolute instant of clock time c on day d. Clock times at or
// past 24:00 land on the following day.
func (d Date) At(c ClockTime) time.Time {
	return d.Time.Add(time.Duration(c) * time.Minute)
}

// StartOfISOWeek returns the Monday of d's ISO week.
func (d Date) StartOfISOWeek() Date {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}

func (d Date) StartOfMonth() Date { return NewDate(d.Year(), d.Month(), 1) }
func (d Date) EndOfMonth() Date   { return d.StartOfMonth().AddMonths(1).AddDays(-1) }

func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte(""), nil
	}
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// CLOCK TIME - Minutes after local midnight
// =============================================================================

// ClockTime is a time of day measured in minutes after midnight. 24:00 is a
// valid closing time.
type ClockTime int

const MinutesPerDay = 24 * 60

func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClockTime parses "HH:MM".
func ParseClockTime(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, &ValidationError{Field: "time", Message: fmt.Sprintf("expected HH:MM, got %q", s)}
	}
	h, errH := strconv.Atoi(hh)
	m, errM := strconv.Atoi(mm)
	if errH != nil || errM != nil || h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, &ValidationError{Field: "time", Message: fmt.Sprintf("expected HH:MM, got %q", s)}
	}
	return NewClockTime(h, m), nil
}

func MustParseClockTime(s string) ClockTime {
	c, err := ParseClockTime(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c ClockTime) Hour() int                 { return int(c) / 60 }
func (c ClockTime) Minute() int               { return int(c) % 60 }
func (c ClockTime) Add(minutes int) ClockTime { return c + ClockTime(minutes) }
func (c ClockTime) Valid() bool               { return c >= 0 && c <= MinutesPerDay }
func (c ClockTime) String() string            { return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute()) }

func (c ClockTime) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *ClockTime) UnmarshalText(b []byte) error {
	parsed, err := ParseClockTime(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// =============================================================================
// TIME RANGE - Half-open interval of clock times on one day
// =============================================================================

// TimeRange is [Start, End) within a single day.
type TimeRange struct {
	Start ClockTime `json:"start"`
	End   ClockTime `json:"end"`
}

func NewTimeRange(start, end ClockTime) TimeRange { return TimeRange{Start: start, End: end} }

func (r TimeRange) Minutes() int { return int(r.End - r.Start) }
func (r TimeRange) Valid() bool  { return r.Start.Valid() && r.End.Valid() && r.Start < r.End }

// Contains reports whether other lies entirely inside r.
func (r TimeRange) Contains(other TimeRange) bool {
	return r.Start <= other.Start && other.End <= r.End
}

// Overlaps uses strict inequality: ranges that only touch do not overlap.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start < other.End && other.Start < r.End
}

// Intersect returns the common part of r and other, or false when they do
// not overlap.
func (r TimeRange) Intersect(other TimeRange) (TimeRange, bool) {
	if !r.Overlaps(other) {
		return TimeRange{}, false
	}
	return TimeRange{Start: max(r.Start, other.Start), End: min(r.End, other.End)}, true
}

func (r TimeRange) String() string { return r.Start.String() + "-" + r.End.String() }
