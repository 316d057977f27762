package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/warp/schedule-engine/generic"
)

// =============================================================================
// REDIS - Lock shared by every replica
// =============================================================================

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by someone else is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// renewScript pushes the expiry back only while the key still holds our token.
var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

type RedisOptions struct {
	Prefix string
	// TTL bounds how long a crashed holder blocks the key. A live holder
	// renews it every third of TTL until it unlocks.
	TTL time.Duration
	// Wait bounds how long Lock retries before ErrConcurrencyConflict.
	Wait  time.Duration
	Retry time.Duration
}

// RedisClient is the subset of *redis.Client the lock needs.
type RedisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

type Redis struct {
	client RedisClient
	opts   RedisOptions
	logger zerolog.Logger
}

func NewRedis(client RedisClient, opts RedisOptions, logger zerolog.Logger) *Redis {
	if opts.Prefix == "" {
		opts.Prefix = "schedule:lock:"
	}
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Second
	}
	if opts.Wait <= 0 {
		opts.Wait = 2 * time.Second
	}
	if opts.Retry <= 0 {
		opts.Retry = 25 * time.Millisecond
	}
	return &Redis{client: client, opts: opts, logger: logger.With().Str("component", "redis_lock").Logger()}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	name := r.opts.Prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(r.opts.Wait)

	for {
		ok, err := r.client.SetNX(ctx, name, token, r.opts.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			stop := make(chan struct{})
			go r.keepAlive(name, token, stop)
			var once sync.Once
			return func() {
				once.Do(func() {
					close(stop)
					r.release(name, token)
				})
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock %s: %w: held by another holder", key, generic.ErrConcurrencyConflict)
		}

		timer := time.NewTimer(r.opts.Retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("lock %s: %w: %v", key, generic.ErrConcurrencyConflict, ctx.Err())
		case <-timer.C:
		}
	}
}

// keepAlive extends the key's TTL until stop is closed. It stops early when
// the key no longer carries token, since exclusivity is already gone.
func (r *Redis) keepAlive(name, token string, stop <-chan struct{}) {
	interval := max(r.opts.TTL/3, time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		n, err := renewScript.Run(ctx, r.client, []string{name}, token, r.opts.TTL.Milliseconds()).Int()
		cancel()
		if err != nil {
			r.logger.Warn().Err(err).Str("key", name).Msg("failed to renew lock")
			continue
		}
		if n == 0 {
			r.logger.Error().Str("key", name).Msg("lock expired while held")
			return
		}
	}
}

func (r *Redis) release(name, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := releaseScript.Run(ctx, r.client, []string{name}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		r.logger.Warn().Err(err).Str("key", name).Msg("failed to release lock")
	}
}
