/*
Package factory converts JSON service configuration into engine rules.

PURPOSE:
  Merchants describe a bookable service in one JSON document. The factory
  validates it and produces the generic.Service plus the recurring windows,
  date exceptions and closures the resolver reads. This keeps service setup
  a data change instead of a code change.

JSON SCHEMA:
  The document is a tagged variant on "category":

  {
    "id": "haircut",
    "name": "Haircut",
    "category": "slot",                 // or "time_range"
    "slot": {"duration_minutes": 30},   // required for slot, rejected otherwise
    "default_capacity": 2,
    "day_capacities": {"saturday": 4},
    "weekly": [
      {"day": "monday", "open": "09:00", "close": "12:00", "max_capacity": 3},
      {"day": "monday", "open": "13:00", "close": "17:00",
       "slot_duration_minutes": 20, "slot_capacities": {"13:00": 1}},
      {"day": "sunday", "closed": true}
    ],
    "exceptions": [
      {"date": "2025-12-24", "windows": [{"open": "09:00", "close": "12:00"}],
       "day_capacity": 1, "reason": "Christmas Eve"},
      {"date": "2025-12-31", "closed": true}
    ],
    "closures": [
      {"start": "2025-08-01", "end": "2025-08-15", "reason": "Summer"},
      {"start": "2025-12-25", "end": "2025-12-26", "all_services": true}
    ]
  }

  Rule IDs are derived from the tenant, service and rule position, so
  applying the same document twice stores the same rows.

USAGE:
  def, err := factory.ParseServiceConfig("tenant-1", data)
  err = factory.Apply(ctx, store, def)

SEE ALSO:
  - generic/rules.go: Window, RecurringWindow, DateException, ClosurePeriod
  - availability/resolver.go: How the rules are resolved
*/
package factory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/warp/schedule-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ServiceConfig is the JSON representation of a service and its rules.
type ServiceConfig struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Category        string            `json:"category"`
	Slot            *SlotConfig       `json:"slot,omitempty"`
	DefaultCapacity *int              `json:"default_capacity,omitempty"`
	DayCapacities   map[string]int    `json:"day_capacities,omitempty"`
	Weekly          []WeeklyConfig    `json:"weekly,omitempty"`
	Exceptions      []ExceptionConfig `json:"exceptions,omitempty"`
	Closures        []ClosureConfig   `json:"closures,omitempty"`
}

type SlotConfig struct {
	DurationMinutes int `json:"duration_minutes"`
}

// WindowConfig is one open interval.
type WindowConfig struct {
	Open                string         `json:"open"`
	Close               string         `json:"close"`
	MaxCapacity         *int           `json:"max_capacity,omitempty"`
	SlotDurationMinutes *int           `json:"slot_duration_minutes,omitempty"`
	SlotCapacities      map[string]int `json:"slot_capacities,omitempty"`
}

type WeeklyConfig struct {
	Day    string `json:"day"`
	Closed bool   `json:"closed,omitempty"`
	WindowConfig
}

type ExceptionConfig struct {
	Date        string         `json:"date"`
	Closed      bool           `json:"closed,omitempty"`
	Windows     []WindowConfig `json:"windows,omitempty"`
	DayCapacity *int           `json:"day_capacity,omitempty"`
	Reason      string         `json:"reason,omitempty"`
}

type ClosureConfig struct {
	Start       string `json:"start"`
	End         string `json:"end"`
	AllServices bool   `json:"all_services,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Definition is a validated service with every rule it owns.
type Definition struct {
	Service    generic.Service           `json:"service"`
	Weekly     []generic.RecurringWindow `json:"weekly"`
	Exceptions []generic.DateException   `json:"exceptions"`
	Closures   []generic.ClosurePeriod   `json:"closures"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseServiceConfig decodes and validates a JSON service document.
func ParseServiceConfig(tenant generic.TenantID, data []byte) (*Definition, error) {
	var cfg ServiceConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, generic.Invalid("service_config", "failed to parse JSON: %v", err)
	}
	return FromConfig(tenant, cfg)
}

// FromConfig converts a decoded document into a Definition.
func FromConfig(tenant generic.TenantID, cfg ServiceConfig) (*Definition, error) {
	if tenant == "" {
		return nil, generic.Invalid("tenant", "required")
	}
	if cfg.ID == "" {
		return nil, generic.Invalid("service_config.id", "required")
	}
	svcID := generic.ServiceID(cfg.ID)

	svc := generic.Service{
		ID:              svcID,
		TenantID:        tenant,
		Name:            cfg.Name,
		DefaultCapacity: cfg.DefaultCapacity,
	}
	switch cfg.Category {
	case string(generic.ModeSlot):
		if cfg.Slot == nil || cfg.Slot.DurationMinutes <= 0 {
			return nil, &generic.ConfigurationError{
				ServiceID: svcID,
				Setting:   "slot.duration_minutes",
				Message:   "slot services need a positive slot duration",
			}
		}
		svc.Mode = generic.ModeSlot
		svc.SlotDurationMinutes = generic.IntPtr(cfg.Slot.DurationMinutes)
	case string(generic.ModeTimeRange):
		if cfg.Slot != nil {
			return nil, generic.Invalid("service_config.slot", "not allowed for time_range services")
		}
		svc.Mode = generic.ModeTimeRange
	default:
		return nil, generic.Invalid("service_config.category", "unknown category %q", cfg.Category)
	}

	if len(cfg.DayCapacities) > 0 {
		svc.DayCapacities = make(map[time.Weekday]int, len(cfg.DayCapacities))
		for name, n := range cfg.DayCapacities {
			wd, err := parseWeekday(name)
			if err != nil {
				return nil, err
			}
			svc.DayCapacities[wd] = n
		}
	}
	if err := svc.Validate(); err != nil {
		return nil, err
	}

	def := &Definition{Service: svc}
	for i, wc := range cfg.Weekly {
		rw, err := parseWeekly(tenant, svcID, i, wc)
		if err != nil {
			return nil, err
		}
		def.Weekly = append(def.Weekly, rw)
	}
	for _, ec := range cfg.Exceptions {
		ex, err := parseException(tenant, svcID, ec)
		if err != nil {
			return nil, err
		}
		def.Exceptions = append(def.Exceptions, ex)
	}
	for _, cc := range cfg.Closures {
		cl, err := parseClosure(tenant, svcID, cc)
		if err != nil {
			return nil, err
		}
		def.Closures = append(def.Closures, cl)
	}
	return def, nil
}

func parseWeekly(tenant generic.TenantID, svc generic.ServiceID, index int, wc WeeklyConfig) (generic.RecurringWindow, error) {
	wd, err := parseWeekday(wc.Day)
	if err != nil {
		return generic.RecurringWindow{}, err
	}
	rw := generic.RecurringWindow{
		ID:        generic.RuleID(generic.StableID(string(tenant), string(svc), "weekly", fmt.Sprint(index))),
		TenantID:  tenant,
		ServiceID: svc,
		DayOfWeek: wd,
		IsClosed:  wc.Closed,
	}
	if !wc.Closed {
		w, err := parseWindow(wc.WindowConfig)
		if err != nil {
			return generic.RecurringWindow{}, fmt.Errorf("weekly[%d]: %w", index, err)
		}
		rw.Window = w
	}
	if err := rw.Validate(); err != nil {
		return generic.RecurringWindow{}, fmt.Errorf("weekly[%d]: %w", index, err)
	}
	return rw, nil
}

func parseException(tenant generic.TenantID, svc generic.ServiceID, ec ExceptionConfig) (generic.DateException, error) {
	d, err := generic.ParseDate(ec.Date)
	if err != nil {
		return generic.DateException{}, generic.Invalid("exceptions.date", "%v", err)
	}
	ex := generic.DateException{
		ID:          generic.RuleID(generic.StableID(string(tenant), string(svc), "exception", d.String())),
		TenantID:    tenant,
		ServiceID:   svc,
		Date:        d,
		IsClosed:    ec.Closed,
		DayCapacity: ec.DayCapacity,
		Reason:      ec.Reason,
	}
	for _, wc := range ec.Windows {
		w, err := parseWindow(wc)
		if err != nil {
			return generic.DateException{}, fmt.Errorf("exception %s: %w", d, err)
		}
		ex.Windows = append(ex.Windows, w)
	}
	if err := ex.Validate(); err != nil {
		return generic.DateException{}, fmt.Errorf("exception %s: %w", d, err)
	}
	return ex, nil
}

func parseClosure(tenant generic.TenantID, svc generic.ServiceID, cc ClosureConfig) (generic.ClosurePeriod, error) {
	start, err := generic.ParseDate(cc.Start)
	if err != nil {
		return generic.ClosurePeriod{}, generic.Invalid("closures.start", "%v", err)
	}
	end, err := generic.ParseDate(cc.End)
	if err != nil {
		return generic.ClosurePeriod{}, generic.Invalid("closures.end", "%v", err)
	}
	scope := string(svc)
	cl := generic.ClosurePeriod{
		TenantID: tenant,
		Period:   generic.Period{Start: start, End: end},
		Reason:   cc.Reason,
	}
	if cc.AllServices {
		scope = "*"
	} else {
		cl.ServiceID = &svc
	}
	cl.ID = generic.RuleID(generic.StableID(string(tenant), scope, "closure", start.String(), end.String()))
	if err := cl.Validate(); err != nil {
		return generic.ClosurePeriod{}, err
	}
	return cl, nil
}

func parseWindow(wc WindowConfig) (generic.Window, error) {
	open, err := generic.ParseClockTime(wc.Open)
	if err != nil {
		return generic.Window{}, generic.Invalid("window.open", "%v", err)
	}
	closeAt, err := generic.ParseClockTime(wc.Close)
	if err != nil {
		return generic.Window{}, generic.Invalid("window.close", "%v", err)
	}
	w := generic.Window{
		Open:                open,
		Close:               closeAt,
		MaxCapacity:         wc.MaxCapacity,
		SlotDurationMinutes: wc.SlotDurationMinutes,
	}
	if len(wc.SlotCapacities) > 0 {
		w.SlotCapacities = make(map[generic.ClockTime]int, len(wc.SlotCapacities))
		for k, n := range wc.SlotCapacities {
			at, err := generic.ParseClockTime(k)
			if err != nil {
				return generic.Window{}, generic.Invalid("window.slot_capacities", "%v", err)
			}
			w.SlotCapacities[at] = n
		}
	}
	return w, w.Validate()
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

func parseWeekday(s string) (time.Weekday, error) {
	wd, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, generic.Invalid("day", "unknown weekday %q", s)
	}
	return wd, nil
}

// =============================================================================
// APPLY
// =============================================================================

// Apply stores the service and all its rules in one transaction.
func Apply(ctx context.Context, store generic.TxStore, def *Definition) error {
	return store.WithTx(ctx, func(tx generic.Store) error {
		if err := tx.SaveService(ctx, def.Service); err != nil {
			return fmt.Errorf("save service %s: %w", def.Service.ID, err)
		}
		for _, rw := range def.Weekly {
			if err := tx.SaveRecurringWindow(ctx, rw); err != nil {
				return fmt.Errorf("save weekly window: %w", err)
			}
		}
		for _, ex := range def.Exceptions {
			if err := tx.SaveDateException(ctx, ex); err != nil {
				return fmt.Errorf("save exception %s: %w", ex.Date, err)
			}
		}
		for _, cl := range def.Closures {
			if err := tx.SaveClosure(ctx, cl); err != nil {
				return fmt.Errorf("save closure %s: %w", cl.Period, err)
			}
		}
		return nil
	})
}
