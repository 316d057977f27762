package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/schedule-engine/generic"
	"github.com/warp/schedule-engine/lock"
	"github.com/warp/schedule-engine/metrics"
)

// =============================================================================
// BOOKER - Atomic check-then-insert
// =============================================================================

// BookingRequest asks for seats on one service and date.
type BookingRequest struct {
	TenantID  generic.TenantID      `json:"tenant_id"`
	ServiceID generic.ServiceID     `json:"service_id"`
	Date      generic.Date          `json:"date"`
	Start     generic.ClockTime     `json:"start"`
	End       generic.ClockTime     `json:"end"`
	PartySize int                   `json:"party_size"`
	Status    generic.BookingStatus `json:"status,omitempty"`
}

func (r BookingRequest) Validate() error {
	if r.TenantID == "" || r.ServiceID == "" {
		return generic.Invalid("booking", "tenant and service are required")
	}
	if r.Date.IsZero() {
		return generic.Invalid("booking.date", "required")
	}
	if !(generic.TimeRange{Start: r.Start, End: r.End}).Valid() {
		return generic.Invalid("booking", "start %s must be before end %s", r.Start, r.End)
	}
	if r.PartySize <= 0 {
		return generic.Invalid("booking.party_size", "must be positive, got %d", r.PartySize)
	}
	if r.Status != "" && !r.Status.HoldsCapacity() {
		return generic.Invalid("booking.status", "new bookings must be pending or confirmed")
	}
	return nil
}

// Booker admits bookings so that concurrent requests for the same service
// and date never oversubscribe capacity.
type Booker struct {
	store    generic.TxStore
	resolver *Resolver
	locker   lock.Locker
	clock    generic.Clock
	logger   zerolog.Logger
}

func NewBooker(store generic.TxStore, resolver *Resolver, locker lock.Locker, clock generic.Clock, logger zerolog.Logger) *Booker {
	return &Booker{
		store:    store,
		resolver: resolver,
		locker:   locker,
		clock:    clock,
		logger:   logger.With().Str("component", "booker").Logger(),
	}
}

// Book re-checks availability and inserts the booking as one atomic step
// under the service-day lock. Returns ErrCapacityExhausted if the request
// no longer fits.
func (b *Booker) Book(ctx context.Context, req BookingRequest) (*generic.Booking, error) {
	if err := req.Validate(); err != nil {
		metrics.IncBookingDecision("invalid")
		return nil, err
	}
	status := req.Status
	if status == "" {
		status = generic.BookingConfirmed
	}

	key := lock.BookingKey(req.TenantID, req.ServiceID, req.Date)
	started := time.Now()
	unlock, err := b.locker.Lock(ctx, key)
	metrics.ObserveLockWait("booking", started, err)
	if err != nil {
		metrics.IncBookingDecision("contention")
		return nil, err
	}
	defer unlock()

	var booking generic.Booking
	err = b.store.WithTx(ctx, func(tx generic.Store) error {
		ok, err := b.resolver.WithStore(tx).IsAvailable(ctx, req.TenantID, req.ServiceID, req.Date, req.Start, req.End, req.PartySize)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s %s-%s for party of %d: %w",
				req.Date, req.Start, req.End, req.PartySize, generic.ErrCapacityExhausted)
		}
		booking = generic.Booking{
			ID:        generic.BookingID(generic.NewID()),
			TenantID:  req.TenantID,
			ServiceID: req.ServiceID,
			Date:      req.Date,
			Start:     req.Start,
			End:       req.End,
			PartySize: req.PartySize,
			Status:    status,
			CreatedAt: b.clock.Now(),
		}
		return tx.CreateBooking(ctx, booking)
	})
	if err != nil {
		if generic.IsConflict(err) {
			metrics.IncBookingDecision("rejected")
		} else {
			metrics.IncBookingDecision("error")
		}
		return nil, err
	}

	metrics.IncBookingDecision("admitted")
	b.logger.Info().
		Str("tenant", string(booking.TenantID)).
		Str("service", string(booking.ServiceID)).
		Str("booking", string(booking.ID)).
		Stringer("date", booking.Date).
		Int("party_size", booking.PartySize).
		Msg("booking admitted")
	return &booking, nil
}

// Cancel releases the seats held by a pending or confirmed booking.
func (b *Booker) Cancel(ctx context.Context, tenant generic.TenantID, id generic.BookingID) (*generic.Booking, error) {
	existing, err := b.store.GetBooking(ctx, tenant, id)
	if err != nil {
		return nil, err
	}

	unlock, err := b.locker.Lock(ctx, lock.BookingKey(tenant, existing.ServiceID, existing.Date))
	if err != nil {
		return nil, err
	}
	defer unlock()

	var cancelled generic.Booking
	err = b.store.WithTx(ctx, func(tx generic.Store) error {
		current, err := tx.GetBooking(ctx, tenant, id)
		if err != nil {
			return err
		}
		if !current.Status.HoldsCapacity() {
			return generic.Invalid("booking.status", "cannot cancel a %s booking", current.Status)
		}
		if err := tx.UpdateBookingStatus(ctx, tenant, id, generic.BookingCancelled); err != nil {
			return err
		}
		cancelled = *current
		cancelled.Status = generic.BookingCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncBookingCancelled()
	b.logger.Info().Str("tenant", string(tenant)).Str("booking", string(id)).Msg("booking cancelled")
	return &cancelled, nil
}
