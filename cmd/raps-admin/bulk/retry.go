package bulk

import (
	"math/rand/v2"
	"strings"
	"time"
)

// MaxBackoffDelay caps every computed retry delay.
const MaxBackoffDelay = 60 * time.Second

// BackoffDelay computes the sleep before retry number attempt (zero-indexed).
// The delay is min(max, base*2^attempt) plus uniform jitter in [0, base/2),
// clamped so it never exceeds max.
func BackoffDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max <= 0 {
		max = MaxBackoffDelay
	}

	delay := max
	if attempt < 63 {
		if d := base << uint(attempt); d > 0 && d < max {
			delay = d
		}
	}

	if half := int64(base / 2); half > 0 {
		delay += time.Duration(rand.Int64N(half))
	}
	if delay > max {
		delay = max
	}
	return delay
}

// retryableMarkers are the transient-failure substrings recognized in
// upstream error text. The upstream API exposes errors only as strings, so
// classification is substring-based.
var retryableMarkers = []string{
	"429",
	"rate limit",
	"too many requests",
	"503",
	"service unavailable",
	"502",
	"bad gateway",
	"timeout",
	"connection",
}

// IsRetryableError reports whether an upstream error string describes a
// transient condition worth retrying.
func IsRetryableError(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	for _, marker := range retryableMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
