package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/schedule-engine/generic"
)

func TestKeyed_SerializesSameKey(t *testing.T) {
	locker := NewKeyed(0)
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "booking:t1:svc:2025-03-10")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, locker.held(), "slots are dropped once nobody holds them")
}

func TestKeyed_DifferentKeysDoNotBlock(t *testing.T) {
	locker := NewKeyed(50 * time.Millisecond)

	unlockA, err := locker.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := locker.Lock(context.Background(), "b")
	require.NoError(t, err)
	unlockB()
}

func TestKeyed_WaitTimeout(t *testing.T) {
	// GIVEN: a held key
	locker := NewKeyed(20 * time.Millisecond)
	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	// WHEN: another caller tries the same key
	_, err = locker.Lock(context.Background(), "k")

	// THEN: it gives up with a retryable error
	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrConcurrencyConflict)
	assert.True(t, generic.IsRetryable(err))

	unlock()
	unlock() // second call is a no-op

	again, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}

func newTestRedis(t *testing.T, opts RedisOptions) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client, opts, zerolog.Nop()), mr
}

func TestRedis_AcquireAndRelease(t *testing.T) {
	locker, mr := newTestRedis(t, RedisOptions{Wait: 30 * time.Millisecond, Retry: 5 * time.Millisecond})
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "shift:t1:emp-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("schedule:lock:shift:t1:emp-1"))

	_, err = locker.Lock(ctx, "shift:t1:emp-1")
	assert.ErrorIs(t, err, generic.ErrConcurrencyConflict)

	unlock()
	assert.False(t, mr.Exists("schedule:lock:shift:t1:emp-1"))

	unlock2, err := locker.Lock(ctx, "shift:t1:emp-1")
	require.NoError(t, err)
	unlock2()
}

func TestRedis_ExpiredLockIsNotReleasedByOldHolder(t *testing.T) {
	// GIVEN: a lock that outlives its TTL
	locker, mr := newTestRedis(t, RedisOptions{TTL: time.Second, Wait: 30 * time.Millisecond, Retry: 5 * time.Millisecond})
	ctx := context.Background()

	staleUnlock, err := locker.Lock(ctx, "k")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	// WHEN: a new holder takes it and the old holder unlocks late
	freshUnlock, err := locker.Lock(ctx, "k")
	require.NoError(t, err)
	staleUnlock()

	// THEN: the new holder still owns the key
	assert.True(t, mr.Exists("schedule:lock:k"))
	freshUnlock()
	assert.False(t, mr.Exists("schedule:lock:k"))
}

func TestRedis_HeldLockIsRenewed(t *testing.T) {
	// GIVEN: a held lock about to reach its TTL
	locker, mr := newTestRedis(t, RedisOptions{TTL: 300 * time.Millisecond, Wait: 30 * time.Millisecond, Retry: 5 * time.Millisecond})
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k")
	require.NoError(t, err)
	mr.FastForward(250 * time.Millisecond)

	// THEN: the holder pushes the expiry back out
	assert.Eventually(t, func() bool {
		return mr.TTL("schedule:lock:k") > 200*time.Millisecond
	}, time.Second, 5*time.Millisecond)

	mr.FastForward(250 * time.Millisecond)
	assert.True(t, mr.Exists("schedule:lock:k"), "still held past the original TTL")

	_, err = locker.Lock(ctx, "k")
	assert.ErrorIs(t, err, generic.ErrConcurrencyConflict)

	// WHEN: released, renewal stops with it
	unlock()
	unlock()
	assert.False(t, mr.Exists("schedule:lock:k"))
	require.NoError(t, mr.Set("schedule:lock:k", "someone-else"))
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, time.Duration(0), mr.TTL("schedule:lock:k"), "old holder no longer touches the key")
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "booking:t1:svc-1:2025-03-10",
		BookingKey("t1", "svc-1", generic.NewDate(2025, time.March, 10)))
	assert.Equal(t, "shift:t1:emp-9", ShiftKey("t1", "emp-9"))
}
