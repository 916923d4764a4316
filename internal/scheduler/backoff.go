package scheduler

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// InitializeBackoff returns an exponential policy doubling from base up to
// maxDelay. Elapsed time is unbounded; the attempt count is the only limit.
func InitializeBackoff(base, maxDelay time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.MaxInterval = maxDelay
	b.MaxElapsedTime = 0
	b.Reset()

	return b
}
