package feed

import "time"

// Backoff returns base * 2^attempt, capped at ceiling. attempt 0 yields base.
func Backoff(base, ceiling time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if attempt <= 0 {
		return min(base, ceiling)
	}
	// 2^30 seconds is far past any sensible cap; stop shifting before overflow.
	if attempt > 30 {
		return ceiling
	}
	d := base * time.Duration(1<<attempt)
	if d <= 0 || d > ceiling {
		return ceiling
	}
	return d
}
