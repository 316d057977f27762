package api

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/warp/schedule-engine/generic"
)

// maxTrackedTenants caps the bucket map. The tenant comes from the URL, so
// unknown names must not grow it without bound.
const maxTrackedTenants = 10000

type tenantBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// tenantLimiter keeps one token bucket per tenant so a noisy tenant cannot
// starve the others. Buckets idle long enough to refill are dropped.
type tenantLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	max       int
	now       func() time.Time
	lastSweep time.Time
	buckets   map[generic.TenantID]*tenantBucket
}

func newTenantLimiter(rps float64, burst int) *tenantLimiter {
	idle := time.Minute
	if rps > 0 {
		// After burst/rps without traffic a bucket is full again, so a new
		// one behaves the same.
		idle = max(idle, time.Duration(float64(burst)/rps*float64(time.Second)))
	}
	return &tenantLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idle:    idle,
		max:     maxTrackedTenants,
		now:     time.Now,
		buckets: make(map[generic.TenantID]*tenantBucket),
	}
}

func (l *tenantLimiter) get(tenant generic.TenantID) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[tenant]
	if !ok {
		if len(l.buckets) >= l.max || now.Sub(l.lastSweep) >= l.idle {
			l.sweep(now)
		}
		b = &tenantBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[tenant] = b
	}
	b.lastSeen = now
	return b.limiter
}

// sweep drops idle buckets. When the map is still full, the least recently
// seen bucket goes too.
func (l *tenantLimiter) sweep(now time.Time) {
	l.lastSweep = now

	var (
		oldest     generic.TenantID
		oldestSeen time.Time
		found      bool
	)
	for id, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.idle {
			delete(l.buckets, id)
			continue
		}
		if !found || b.lastSeen.Before(oldestSeen) {
			oldest, oldestSeen, found = id, b.lastSeen, true
		}
	}
	if found && len(l.buckets) >= l.max {
		delete(l.buckets, oldest)
	}
}

// Middleware rejects requests over the tenant's budget with 429. It must
// be mounted below the {tenant} route parameter.
func (l *tenantLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.get(tenantParam(r)).Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
