package websocket

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newBackoff builds the reconnect schedule: delays double from base up to
// cap and stay there until a successful connect resets them. Randomization
// is disabled so the schedule is deterministic.
func newBackoff(base, cap time.Duration) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = base
	bo.MaxInterval = cap
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}
