// ABOUTME: Retry delay policy for failed jobs. Exponential doubling from a
// ABOUTME: 30s base with a 1h cap; the constants are tunable, not a contract.
package jobs

import "time"

const (
	backoffBase = 30 * time.Second
	backoffMax  = time.Hour
)

// Backoff returns the delay before the next retry after the given attempt
// count (1-indexed: attempt 1 is the first failure). The delay doubles per
// attempt until the cap, so it is always strictly positive and
// non-decreasing in attempts.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Shift overflow guard: past 2^20 the cap has long been hit anyway.
	if attempt > 20 {
		return backoffMax
	}
	d := backoffBase << (attempt - 1)
	if d > backoffMax {
		return backoffMax
	}
	return d
}
