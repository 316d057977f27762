package availability_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/schedule-engine/availability"
	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/generic/store"
)

const tenant generic.TenantID = "tenant-1"

var (
	monday    = generic.NewDate(2025, time.March, 10)
	christmas = generic.NewDate(2025, time.December, 25) // Thursday
)

type fixture struct {
	ctx      context.Context
	store    *store.Memory
	resolver *availability.Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMemory()
	return &fixture{
		ctx:      context.Background(),
		store:    s,
		resolver: availability.NewResolver(s, zerolog.Nop()),
	}
}

func (f *fixture) service(t *testing.T, id generic.ServiceID, mode generic.BookingMode, opts ...func(*generic.Service)) {
	t.Helper()
	svc := generic.Service{ID: id, TenantID: tenant, Name: string(id), Mode: mode}
	for _, opt := range opts {
		opt(&svc)
	}
	require.NoError(t, f.store.SaveService(f.ctx, svc))
}

func (f *fixture) weekly(t *testing.T, service generic.ServiceID, day time.Weekday, open, close string, opts ...func(*generic.Window)) {
	t.Helper()
	w := generic.Window{Open: generic.MustParseClockTime(open), Close: generic.MustParseClockTime(close)}
	for _, opt := range opts {
		opt(&w)
	}
	require.NoError(t, f.store.SaveRecurringWindow(f.ctx, generic.RecurringWindow{
		ID:        generic.RuleID(generic.NewID()),
		TenantID:  tenant,
		ServiceID: service,
		DayOfWeek: day,
		Window:    w,
	}))
}

func (f *fixture) book(t *testing.T, service generic.ServiceID, date generic.Date, start, end string, party int, status generic.BookingStatus) {
	t.Helper()
	require.NoError(t, f.store.CreateBooking(f.ctx, generic.Booking{
		ID:        generic.BookingID(generic.NewID()),
		TenantID:  tenant,
		ServiceID: service,
		Date:      date,
		Start:     generic.MustParseClockTime(start),
		End:       generic.MustParseClockTime(end),
		PartySize: party,
		Status:    status,
	}))
}

func withSlotDuration(n int) func(*generic.Service) {
	return func(s *generic.Service) { s.SlotDurationMinutes = generic.IntPtr(n) }
}

func withMaxCapacity(n int) func(*generic.Window) {
	return func(w *generic.Window) { w.MaxCapacity = generic.IntPtr(n) }
}

func ct(s string) generic.ClockTime { return generic.MustParseClockTime(s) }

// =============================================================================
// RESOLVE DAY
// =============================================================================

func TestResolveDay_ClosureWinsOverEverything(t *testing.T) {
	// GIVEN: Thursdays open 09:00-18:00, an exception reopening Dec 25,
	// and a holiday closure Dec 24-26
	f := newFixture(t)
	f.service(t, "svc", generic.ModeTimeRange)
	f.weekly(t, "svc", time.Thursday, "09:00", "18:00")
	require.NoError(t, f.store.SaveDateException(f.ctx, generic.DateException{
		ID: "exc", TenantID: tenant, ServiceID: "svc", Date: christmas,
		Windows: []generic.Window{{Open: ct("10:00"), Close: ct("14:00")}},
	}))
	require.NoError(t, f.store.SaveClosure(f.ctx, generic.ClosurePeriod{
		ID: "holidays", TenantID: tenant,
		Period: generic.Period{Start: generic.NewDate(2025, time.December, 24), End: generic.NewDate(2025, time.December, 26)},
		Reason: "Holidays",
	}))

	// WHEN
	day, err := f.resolver.ResolveDay(f.ctx, tenant, "svc", christmas)

	// THEN
	require.NoError(t, err)
	assert.True(t, day.IsClosed)
	assert.Equal(t, availability.SourceClosure, day.Source)
	assert.Equal(t, "Holidays", day.Reason)
	assert.Empty(t, day.Windows)

	// The day after the closure is open again.
	after, err := f.resolver.ResolveDay(f.ctx, tenant, "svc", generic.NewDate(2026, time.January, 1))
	require.NoError(t, err)
	assert.False(t, after.IsClosed)
}

func TestResolveDay_ClosureScopedToOtherServiceDoesNotApply(t *testing.T) {
	f := newFixture(t)
	f.service(t, "a", generic.ModeTimeRange)
	f.service(t, "b", generic.ModeTimeRange)
	f.weekly(t, "a", time.Monday, "09:00", "12:00")
	other := generic.ServiceID("b")
	require.NoError(t, f.store.SaveClosure(f.ctx, generic.ClosurePeriod{
		ID: "b-maintenance", TenantID: tenant, ServiceID: &other,
		Period: generic.Period{Start: monday, End: monday},
	}))

	day, err := f.resolver.ResolveDay(f.ctx, tenant, "a", monday)
	require.NoError(t, err)
	assert.False(t, day.IsClosed)
	assert.Equal(t, availability.SourceRecurring, day.Source)
}

func TestResolveDay_ExceptionReplacesRecurring(t *testing.T) {
	// GIVEN: Monday has two weekly windows, the exception only one
	f := newFixture(t)
	f.service(t, "svc", generic.ModeTimeRange)
	f.weekly(t, "svc", time.Monday, "09:00", "12:00")
	f.weekly(t, "svc", time.Monday, "14:00", "18:00")
	require.NoError(t, f.store.SaveDateException(f.ctx, generic.DateException{
		ID: "short-day", TenantID: tenant, ServiceID: "svc", Date: monday,
		Windows: []generic.Window{{Open: ct("10:00"), Close: ct("11:00")}},
		Reason:  "Inventory",
	}))

	day, err := f.resolver.ResolveDay(f.ctx, tenant, "svc", monday)

	require.NoError(t, err)
	assert.False(t, day.IsClosed)
	assert.Equal(t, availability.SourceException, day.Source)
	require.Len(t, day.Windows, 1, "exception must not merge with weekly windows")
	assert.Equal(t, ct("10:00"), day.Windows[0].Open)
	assert.Equal(t, ct("11:00"), day.Windows[0].Close)
}

func TestResolveDay_ClosedOrEmptyExceptionClosesDay(t *testing.T) {
	f := newFixture(t)
	f.service(t, "svc", generic.ModeTimeRange)
	f.weekly(t, "svc", time.Monday, "09:00", "12:00")
	require.NoError(t, f.store.SaveDateException(f.ctx, generic.DateException{
		ID: "closed", TenantID: tenant, ServiceID: "svc", Date: monday, IsClosed: true,
	}))
	nextMonday := monday.AddDays(7)
	require.NoError(t, f.store.SaveDateException(f.ctx, generic.DateException{
		ID: "empty", TenantID: tenant, ServiceID: "svc", Date: nextMonday,
	}))

	for _, d := range []generic.Date{monday, nextMonday} {
		day, err := f.resolver.ResolveDay(f.ctx, tenant, "svc", d)
		require.NoError(t, err)
		assert.True(t, day.IsClosed, d.String())
		assert.Equal(t, availability.SourceException, day.Source)
	}
}

func TestResolveDay_WeeklyRules(t *testing.T) {
	f := newFixture(t)
	f.service(t, "svc", generic.ModeTimeRange)
	require.NoError(t, f.store.SaveRecurringWindow(f.ctx, generic.RecurringWindow{
		ID: "tue-closed", TenantID: tenant, ServiceID: "svc", DayOfWeek: time.Tuesday, IsClosed: true,
	}))

	t.Run("all rows closed", func(t *testing.T) {
		day, err := f.resolver.ResolveDay(f.ctx, tenant, "svc", monday.AddDays(1))
		require.NoError(t, err)
		assert.True(t, day.IsClosed)
		assert.Equal(t, availability.SourceRecurring, day.Source)
	})

	t.Run("no rows", func(t *testing.T) {
		day, err := f.resolver.ResolveDay(f.ctx, tenant, "svc", monday.AddDays(2))
		require.NoError(t, err)
		assert.True(t, day.IsClosed)
		assert.Equal(t, availability.SourceNone, day.Source)
	})

	t.Run("identical windows collapse", func(t *testing.T) {
		f.weekly(t, "svc", time.Friday, "09:00", "12:00")
		f.weekly(t, "svc", time.Friday, "09:00", "12:00")
		f.weekly(t, "svc", time.Friday, "08:00", "09:00")
		day, err := f.resolver.ResolveDay(f.ctx, tenant, "svc", monday.AddDays(4))
		require.NoError(t, err)
		require.Len(t, day.Windows, 2)
		assert.Equal(t, ct("08:00"), day.Windows[0].Open, "windows are ordered by open time")
	})
}

func TestResolveDay_UnknownOrForeignService(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SaveService(f.ctx, generic.Service{
		ID: "svc", TenantID: "tenant-2", Mode: generic.ModeTimeRange,
	}))

	_, err := f.resolver.ResolveDay(f.ctx, tenant, "svc", monday)
	assert.True(t, generic.IsNotFound(err))
}

// =============================================================================
// RESOLVE SLOTS
// =============================================================================

func TestResolveSlots_DropsTrailingPartialSlot(t *testing.T) {
	// GIVEN: 09:00-10:00 with 40 minute slots
	f := newFixture(t)
	f.service(t, "svc", generic.ModeSlot, withSlotDuration(40))
	f.weekly(t, "svc", time.Monday, "09:00", "10:00")

	slots, err := f.resolver.ResolveSlots(f.ctx, tenant, "svc", monday)

	// THEN: exactly one slot, the last 20 minutes are not bookable
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, ct("09:00"), slots[0].Start)
	assert.Equal(t, ct("09:40"), slots[0].End)
}

func TestResolveSlots_WindowOverridesServiceDuration(t *testing.T) {
	f := newFixture(t)
	f.service(t, "svc", generic.ModeSlot, withSlotDuration(30))
	f.weekly(t, "svc", time.Monday, "09:00", "10:00")
	f.weekly(t, "svc", time.Monday, "14:00", "15:00", func(w *generic.Window) {
		w.SlotDurationMinutes = generic.IntPtr(15)
	})

	slots, err := f.resolver.ResolveSlots(f.ctx, tenant, "svc", monday)

	require.NoError(t, err)
	require.Len(t, slots, 6)
	assert.Equal(t, ct("09:30"), slots[1].Start)
	assert.Equal(t, ct("14:45"), slots[5].Start)
	assert.Equal(t, ct("15:00"), slots[5].End)
}

func TestResolveSlots_MissingDurationIsConfigurationError(t *testing.T) {
	f := newFixture(t)
	f.service(t, "svc", generic.ModeSlot)
	f.weekly(t, "svc", time.Monday, "09:00", "10:00")

	_, err := f.resolver.ResolveSlots(f.ctx, tenant, "svc", monday)

	require.Error(t, err)
	var cfgErr *generic.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
	assert.True(t, generic.IsConfiguration(err))
}

func TestResolveSlots_ClosedDayHasNoSlots(t *testing.T) {
	f := newFixture(t)
	f.service(t, "svc", generic.ModeSlot, withSlotDuration(30))

	slots, err := f.resolver.ResolveSlots(f.ctx, tenant, "svc", monday)

	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestResolveSlots_MissingDurationFailsOnClosedDayToo(t *testing.T) {
	// GIVEN: a slot service with no duration anywhere and no Tuesday window
	f := newFixture(t)
	f.service(t, "svc", generic.ModeSlot)
	f.weekly(t, "svc", time.Monday, "09:00", "10:00", func(w *generic.Window) {
		w.SlotDurationMinutes = generic.IntPtr(30)
	})

	// WHEN/THEN: Monday's window supplies its own duration
	slots, err := f.resolver.ResolveSlots(f.ctx, tenant, "svc", monday)
	require.NoError(t, err)
	assert.Len(t, slots, 2)

	// WHEN/THEN: the closed day still reports the broken configuration
	_, err = f.resolver.ResolveSlots(f.ctx, tenant, "svc", monday.AddDays(1))
	assert.True(t, generic.IsConfiguration(err))
}

func TestResolveSlots_TimeRangeServiceRejected(t *testing.T) {
	f := newFixture(t)
	f.service(t, "svc", generic.ModeTimeRange)

	_, err := f.resolver.ResolveSlots(f.ctx, tenant, "svc", monday)

	assert.ErrorIs(t, err, generic.ErrNotSlotMode)
}

func TestResolveSlots_CapacityFallbackChain(t *testing.T) {
	// GIVEN: service default 10, Monday default 8, one window with max 6 and
	// a slot override of 2 for 09:00
	f := newFixture(t)
	f.service(t, "svc", generic.ModeSlot, withSlotDuration(60), func(s *generic.Service) {
		s.DefaultCapacity = generic.IntPtr(10)
		s.DayCapacities = map[time.Weekday]int{time.Monday: 8}
	})
	f.weekly(t, "svc", time.Monday, "09:00", "11:00", withMaxCapacity(6), func(w *generic.Window) {
		w.SlotCapacities = map[generic.ClockTime]int{ct("09:00"): 2}
	})
	f.weekly(t, "svc", time.Monday, "12:00", "13:00")
	f.weekly(t, "svc", time.Tuesday, "12:00", "13:00")
	f.service(t, "open", generic.ModeSlot, withSlotDuration(60))
	f.weekly(t, "open", time.Monday, "09:00", "10:00")

	slots, err := f.resolver.ResolveSlots(f.ctx, tenant, "svc", monday)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, generic.Limited(2), slots[0].Capacity, "slot override")
	assert.Equal(t, generic.Limited(6), slots[1].Capacity, "window max")
	assert.Equal(t, generic.Limited(8), slots[2].Capacity, "weekday default")

	tuesday, err := f.resolver.ResolveSlots(f.ctx, tenant, "svc", monday.AddDays(1))
	require.NoError(t, err)
	assert.Equal(t, generic.Limited(10), tuesday[0].Capacity, "service default")

	open, err := f.resolver.ResolveSlots(f.ctx, tenant, "open", monday)
	require.NoError(t, err)
	assert.True(t, open[0].Capacity.IsUnbounded())
}
