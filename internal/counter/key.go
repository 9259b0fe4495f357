package counter

import (
	"fmt"
	"time"
)

// keyPrefix namespaces all admission counters in a shared backend.
const keyPrefix = "ratelimit"

// Key builds the fixed-window counter key for a tier/scope pair:
// ratelimit:{tier}:{scope}:{bucket} with bucket = floor(unix / windowSeconds).
// Keys are created lazily on first increment and expire with the window.
func Key(tier, scope string, windowSeconds int64, now time.Time) string {
	bucket := now.Unix() / windowSeconds
	return fmt.Sprintf("%s:%s:%s:%d", keyPrefix, tier, scope, bucket)
}

// WindowEnd returns the instant the current window for windowSeconds rolls
// over, i.e. the reset time reported to callers.
func WindowEnd(windowSeconds int64, now time.Time) time.Time {
	bucket := now.Unix() / windowSeconds
	return time.Unix((bucket+1)*windowSeconds, 0)
}
