package availability_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/schedule-engine/availability"
	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/lock"
	"github.com/warp/schedule-engine/store/sqlite"
)

func TestPeakOccupancy(t *testing.T) {
	bookings := []generic.Booking{
		{Start: ct("09:00"), End: ct("10:00"), PartySize: 2, Status: generic.BookingConfirmed},
		{Start: ct("10:00"), End: ct("11:00"), PartySize: 3, Status: generic.BookingPending},
		{Start: ct("09:30"), End: ct("10:30"), PartySize: 1, Status: generic.BookingConfirmed},
		{Start: ct("09:00"), End: ct("11:00"), PartySize: 9, Status: generic.BookingCancelled},
		{Start: ct("09:00"), End: ct("11:00"), PartySize: 9, Status: generic.BookingNoShow},
	}

	assert.Equal(t, 4, availability.PeakOccupancy(bookings, generic.NewTimeRange(ct("09:00"), ct("11:00"))),
		"back-to-back bookings do not stack; 10:00-10:30 holds 3+1")
	assert.Equal(t, 3, availability.PeakOccupancy(bookings, generic.NewTimeRange(ct("09:00"), ct("10:00"))))
	assert.Equal(t, 0, availability.PeakOccupancy(bookings, generic.NewTimeRange(ct("11:00"), ct("12:00"))),
		"touching the edge is not occupying")
}

func TestRemainingCapacity(t *testing.T) {
	f := newFixture(t)
	f.service(t, "svc", generic.ModeTimeRange)
	f.weekly(t, "svc", time.Monday, "09:00", "12:00", withMaxCapacity(5))
	f.service(t, "free", generic.ModeTimeRange)
	f.weekly(t, "free", time.Monday, "09:00", "12:00")

	f.book(t, "svc", monday, "09:00", "10:00", 2, generic.BookingConfirmed)
	f.book(t, "svc", monday, "09:30", "10:30", 1, generic.BookingPending)
	f.book(t, "svc", monday, "09:00", "12:00", 4, generic.BookingCancelled)

	t.Run("bounded", func(t *testing.T) {
		c, err := f.resolver.RemainingCapacity(f.ctx, tenant, "svc", monday, generic.NewTimeRange(ct("09:00"), ct("12:00")))
		require.NoError(t, err)
		n, bounded := c.Remaining()
		assert.True(t, bounded)
		assert.Equal(t, 2, n)
	})

	t.Run("sub-interval", func(t *testing.T) {
		c, err := f.resolver.RemainingCapacity(f.ctx, tenant, "svc", monday, generic.NewTimeRange(ct("11:00"), ct("12:00")))
		require.NoError(t, err)
		assert.Equal(t, generic.Limited(5), c)
	})

	t.Run("unbounded", func(t *testing.T) {
		c, err := f.resolver.RemainingCapacity(f.ctx, tenant, "free", monday, generic.NewTimeRange(ct("09:00"), ct("10:00")))
		require.NoError(t, err)
		assert.True(t, c.IsUnbounded())
	})

	t.Run("outside every window", func(t *testing.T) {
		c, err := f.resolver.RemainingCapacity(f.ctx, tenant, "free", monday, generic.NewTimeRange(ct("11:00"), ct("13:00")))
		require.NoError(t, err)
		assert.True(t, c.IsExhausted())
	})

	t.Run("closed day", func(t *testing.T) {
		c, err := f.resolver.RemainingCapacity(f.ctx, tenant, "svc", monday.AddDays(1), generic.NewTimeRange(ct("09:00"), ct("10:00")))
		require.NoError(t, err)
		assert.True(t, c.IsExhausted())
	})

	t.Run("invalid range", func(t *testing.T) {
		_, err := f.resolver.RemainingCapacity(f.ctx, tenant, "svc", monday, generic.NewTimeRange(ct("10:00"), ct("09:00")))
		assert.True(t, generic.IsClientError(err))
	})
}

func TestRemainingCapacity_NeverNegative(t *testing.T) {
	// GIVEN: capacity lowered after bookings were taken
	f := newFixture(t)
	f.service(t, "svc", generic.ModeTimeRange)
	f.weekly(t, "svc", time.Monday, "09:00", "12:00", withMaxCapacity(1))
	f.book(t, "svc", monday, "09:00", "10:00", 3, generic.BookingConfirmed)

	c, err := f.resolver.RemainingCapacity(f.ctx, tenant, "svc", monday, generic.NewTimeRange(ct("09:00"), ct("10:00")))

	require.NoError(t, err)
	assert.Equal(t, generic.Limited(0), c)
}

// =============================================================================
// IS AVAILABLE
// =============================================================================

func TestIsAvailable_SlotScenario(t *testing.T) {
	// GIVEN: Monday 09:00-12:00 capacity 5 in 30 minute slots, three
	// confirmed bookings in the 10:00 slot
	f := newFixture(t)
	f.service(t, "svc", generic.ModeSlot, withSlotDuration(30))
	f.weekly(t, "svc", time.Monday, "09:00", "12:00", withMaxCapacity(5))
	for i := 0; i < 3; i++ {
		f.book(t, "svc", monday, "10:00", "10:30", 1, generic.BookingConfirmed)
	}

	// WHEN/THEN: a party of 2 fits exactly
	ok, err := f.resolver.IsAvailable(f.ctx, tenant, "svc", monday, ct("10:00"), ct("10:30"), 2)
	require.NoError(t, err)
	assert.True(t, ok)

	// WHEN/THEN: a party of 3 would exceed 5
	ok, err = f.resolver.IsAvailable(f.ctx, tenant, "svc", monday, ct("10:00"), ct("10:30"), 3)
	require.NoError(t, err)
	assert.False(t, ok)

	// Other slots are untouched.
	remaining, err := f.resolver.RemainingCapacity(f.ctx, tenant, "svc", monday, generic.NewTimeRange(ct("10:30"), ct("11:00")))
	require.NoError(t, err)
	assert.Equal(t, generic.Limited(5), remaining)
}

func TestIsAvailable_SlotModeRequiresExactSlot(t *testing.T) {
	f := newFixture(t)
	f.service(t, "svc", generic.ModeSlot, withSlotDuration(30))
	f.weekly(t, "svc", time.Monday, "09:00", "12:00")

	tests := []struct {
		name       string
		start, end string
		want       bool
	}{
		{"exact slot", "09:30", "10:00", true},
		{"misaligned", "09:15", "09:45", false},
		{"two slots", "09:00", "10:00", false},
		{"outside", "12:00", "12:30", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := f.resolver.IsAvailable(f.ctx, tenant, "svc", monday, ct(tt.start), ct(tt.end), 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestIsAvailable_TimeRangeWindows(t *testing.T) {
	// GIVEN: 09:00-12:00 (cap 4) and 12:00-14:00 (cap 2) are contiguous;
	// 15:00-17:00 is separated by a gap
	f := newFixture(t)
	f.service(t, "svc", generic.ModeTimeRange)
	f.weekly(t, "svc", time.Monday, "09:00", "12:00", withMaxCapacity(4))
	f.weekly(t, "svc", time.Monday, "12:00", "14:00", withMaxCapacity(2))
	f.weekly(t, "svc", time.Monday, "15:00", "17:00")

	tests := []struct {
		name       string
		start, end string
		party      int
		want       bool
	}{
		{"inside first window", "09:30", "11:00", 4, true},
		{"spans contiguous windows", "11:00", "13:00", 2, true},
		{"second segment too small", "11:00", "13:00", 3, false},
		{"spans a gap", "13:00", "16:00", 1, false},
		{"starts before open", "08:30", "09:30", 1, false},
		{"ends after close", "16:00", "17:30", 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := f.resolver.IsAvailable(f.ctx, tenant, "svc", monday, ct(tt.start), ct(tt.end), tt.party)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestIsAvailable_UsesPeakNotSum(t *testing.T) {
	// GIVEN: capacity 2 with two sequential bookings of 2
	f := newFixture(t)
	f.service(t, "svc", generic.ModeTimeRange)
	f.weekly(t, "svc", time.Monday, "09:00", "12:00", withMaxCapacity(2))
	f.book(t, "svc", monday, "09:00", "10:00", 2, generic.BookingConfirmed)
	f.book(t, "svc", monday, "10:00", "11:00", 2, generic.BookingConfirmed)

	ok, err := f.resolver.IsAvailable(f.ctx, tenant, "svc", monday, ct("11:00"), ct("12:00"), 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.resolver.IsAvailable(f.ctx, tenant, "svc", monday, ct("09:30"), ct("10:30"), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsAvailable_OverlappingWindowsAreIndependent(t *testing.T) {
	// GIVEN: 09:00-12:00 and 11:00-14:00 each hold 2, and a party of 2 sits
	// 11:30-13:30, which only the second window can seat
	f := newFixture(t)
	f.service(t, "svc", generic.ModeTimeRange)
	f.weekly(t, "svc", time.Monday, "09:00", "12:00", withMaxCapacity(2))
	f.weekly(t, "svc", time.Monday, "11:00", "14:00", withMaxCapacity(2))
	f.book(t, "svc", monday, "11:30", "13:30", 2, generic.BookingConfirmed)

	// WHEN/THEN: the first window is untouched
	ok, err := f.resolver.IsAvailable(f.ctx, tenant, "svc", monday, ct("09:00"), ct("12:00"), 1)
	require.NoError(t, err)
	assert.True(t, ok)

	remaining, err := f.resolver.RemainingCapacity(f.ctx, tenant, "svc", monday, generic.NewTimeRange(ct("09:00"), ct("12:00")))
	require.NoError(t, err)
	assert.Equal(t, generic.Limited(2), remaining)

	// WHEN/THEN: the second window is full
	ok, err = f.resolver.IsAvailable(f.ctx, tenant, "svc", monday, ct("12:00"), ct("14:00"), 1)
	require.NoError(t, err)
	assert.False(t, ok)

	// 11:30-12:00 fits both windows: the first still has room.
	ok, err = f.resolver.IsAvailable(f.ctx, tenant, "svc", monday, ct("11:30"), ct("12:00"), 2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsAvailable_ChainBookingCountsInEverySegment(t *testing.T) {
	// GIVEN: contiguous 09:00-12:00 and 12:00-14:00 hold 2 each, plus a
	// separate 11:00-13:00 window; one party of 2 spans the chain
	f := newFixture(t)
	f.service(t, "svc", generic.ModeTimeRange)
	f.weekly(t, "svc", time.Monday, "09:00", "12:00", withMaxCapacity(2))
	f.weekly(t, "svc", time.Monday, "12:00", "14:00", withMaxCapacity(2))
	f.weekly(t, "svc", time.Monday, "11:00", "13:00", withMaxCapacity(2))
	f.book(t, "svc", monday, "10:00", "13:00", 2, generic.BookingConfirmed)

	tests := []struct {
		name       string
		start, end string
		want       bool
	}{
		{"first segment", "09:30", "10:30", false},
		{"second segment", "12:30", "13:30", false},
		{"before the booking", "09:00", "10:00", true},
		{"after the booking", "13:00", "14:00", true},
		{"independent window", "11:00", "13:00", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := f.resolver.IsAvailable(f.ctx, tenant, "svc", monday, ct(tt.start), ct(tt.end), 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestIsAvailable_InvalidRequest(t *testing.T) {
	f := newFixture(t)
	f.service(t, "svc", generic.ModeTimeRange)

	_, err := f.resolver.IsAvailable(f.ctx, tenant, "svc", monday, ct("10:00"), ct("10:00"), 1)
	assert.True(t, generic.IsClientError(err))

	_, err = f.resolver.IsAvailable(f.ctx, tenant, "svc", monday, ct("10:00"), ct("11:00"), 0)
	assert.True(t, generic.IsClientError(err))
}

// =============================================================================
// BOOKER
// =============================================================================

func TestBooker_AdmitsExactlyCapacityUnderRace(t *testing.T) {
	const capacity, requests = 5, 25

	stores := map[string]func(t *testing.T) generic.TxStore{
		"memory": func(t *testing.T) generic.TxStore { return newFixture(t).store },
		"sqlite": func(t *testing.T) generic.TxStore {
			s, err := sqlite.New(":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			// GIVEN: a window with capacity 5
			ctx := context.Background()
			s := newStore(t)
			require.NoError(t, s.SaveService(ctx, generic.Service{ID: "svc", TenantID: tenant, Mode: generic.ModeTimeRange}))
			require.NoError(t, s.SaveRecurringWindow(ctx, generic.RecurringWindow{
				ID: "mon", TenantID: tenant, ServiceID: "svc", DayOfWeek: time.Monday,
				Window: generic.Window{Open: ct("09:00"), Close: ct("12:00"), MaxCapacity: generic.IntPtr(capacity)},
			}))
			resolver := availability.NewResolver(s, zerolog.Nop())
			booker := availability.NewBooker(s, resolver, lock.NewKeyed(0), generic.SystemClock{}, zerolog.Nop())

			// WHEN: many requests race for the same interval
			var (
				wg                 sync.WaitGroup
				mu                 sync.Mutex
				admitted, rejected int
			)
			for i := 0; i < requests; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := booker.Book(ctx, availability.BookingRequest{
						TenantID: tenant, ServiceID: "svc", Date: monday,
						Start: ct("10:00"), End: ct("11:00"), PartySize: 1,
					})
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						admitted++
					case errors.Is(err, generic.ErrCapacityExhausted):
						rejected++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			wg.Wait()

			// THEN: exactly capacity admitted
			assert.Equal(t, capacity, admitted)
			assert.Equal(t, requests-capacity, rejected)

			remaining, err := resolver.RemainingCapacity(ctx, tenant, "svc", monday, generic.NewTimeRange(ct("10:00"), ct("11:00")))
			require.NoError(t, err)
			assert.True(t, remaining.IsExhausted())
		})
	}
}

func TestBooker_CancelFreesCapacity(t *testing.T) {
	f := newFixture(t)
	f.service(t, "svc", generic.ModeTimeRange)
	f.weekly(t, "svc", time.Monday, "09:00", "12:00", withMaxCapacity(1))
	clock := generic.NewFixedClock(time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC))
	booker := availability.NewBooker(f.store, f.resolver, lock.NewKeyed(time.Second), clock, zerolog.Nop())
	req := availability.BookingRequest{
		TenantID: tenant, ServiceID: "svc", Date: monday, Start: ct("09:00"), End: ct("10:00"), PartySize: 1,
	}

	first, err := booker.Book(f.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, generic.BookingConfirmed, first.Status)
	assert.Equal(t, clock.Now(), first.CreatedAt)

	_, err = booker.Book(f.ctx, req)
	assert.True(t, generic.IsConflict(err))

	cancelled, err := booker.Cancel(f.ctx, tenant, first.ID)
	require.NoError(t, err)
	assert.Equal(t, generic.BookingCancelled, cancelled.Status)

	_, err = booker.Book(f.ctx, req)
	assert.NoError(t, err)

	_, err = booker.Cancel(f.ctx, tenant, first.ID)
	assert.True(t, generic.IsClientError(err), "cancelling twice is rejected")

	_, err = booker.Cancel(f.ctx, "tenant-2", first.ID)
	assert.True(t, generic.IsNotFound(err))
}

func TestBooker_RejectsInvalidRequest(t *testing.T) {
	f := newFixture(t)
	booker := availability.NewBooker(f.store, f.resolver, lock.NewKeyed(0), generic.SystemClock{}, zerolog.Nop())

	_, err := booker.Book(f.ctx, availability.BookingRequest{
		TenantID: tenant, ServiceID: "svc", Date: monday, Start: ct("10:00"), End: ct("11:00"), PartySize: -1,
	})
	assert.True(t, generic.IsClientError(err))

	_, err = booker.Book(f.ctx, availability.BookingRequest{
		TenantID: tenant, ServiceID: "svc", Date: monday, Start: ct("10:00"), End: ct("11:00"), PartySize: 1,
		Status: generic.BookingCancelled,
	})
	assert.True(t, generic.IsClientError(err))
}
