// Package lock serializes read-then-write sections per key, either inside
// one process or across replicas through Redis.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warp/schedule-engine/generic"
)

// Locker acquires an exclusive lock on key. The returned function releases
// it and is safe to call once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// BookingKey scopes admission to one service on one date.
func BookingKey(tenant generic.TenantID, service generic.ServiceID, date generic.Date) string {
	return fmt.Sprintf("booking:%s:%s:%s", tenant, service, date)
}

// ShiftKey scopes assignment to one employee.
func ShiftKey(tenant generic.TenantID, employee generic.EmployeeID) string {
	return fmt.Sprintf("shift:%s:%s", tenant, employee)
}

// =============================================================================
// KEYED - In-process mutex per key
// =============================================================================

// Keyed hands out one mutex per key and drops it when nobody holds or waits.
type Keyed struct {
	mu    sync.Mutex
	slots map[string]*slot
	wait  time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyed returns a Keyed locker. A positive wait bounds how long Lock
// blocks before failing with ErrConcurrencyConflict.
func NewKeyed(wait time.Duration) *Keyed {
	return &Keyed{slots: make(map[string]*slot), wait: wait}
}

func (k *Keyed) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	k.mu.Unlock()

	if k.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, k.wait)
		defer cancel()
	}

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				k.release(key, s)
			})
		}, nil
	case <-ctx.Done():
		k.release(key, s)
		return nil, fmt.Errorf("lock %s: %w: %v", key, generic.ErrConcurrencyConflict, ctx.Err())
	}
}

func (k *Keyed) release(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

// held reports how many keys are currently tracked.
func (k *Keyed) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
