// Package limiter provides the sliding-window attempt limiter that
// guards the login endpoint. The shared mutable counter state lives
// behind this interface so the rest of the system stays stateless;
// implementations exist for Redis (multi-instance deployments) and
// for plain process memory.
package limiter

import (
	"context"
	"time"
)

// AttemptLimiter answers whether one more attempt from a source key
// is inside the configured ceiling. retryAfter is only meaningful
// when allowed is false.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}
