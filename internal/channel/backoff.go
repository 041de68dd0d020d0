package channel

import (
	"math/rand"
	"time"
)

// backoffDelay returns the wait before reconnect attempt n (1-based):
// base doubled per attempt, capped at max, with a symmetric jitter
// fraction so a fleet of walls does not stampede the server after an
// outage.
func backoffDelay(base, max time.Duration, jitter float64, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if attempt < 1 {
		attempt = 1
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			d = max
			break
		}
	}
	if max > 0 && d > max {
		d = max
	}

	if jitter > 0 {
		// Spread over [d*(1-jitter), d*(1+jitter)]
		spread := float64(d) * jitter
		d += time.Duration((rand.Float64()*2 - 1) * spread)
		if d < 0 {
			d = 0
		}
	}
	return d
}
