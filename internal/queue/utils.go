package queue

import (
	"fmt"
	"math"
	"time"
)

// MaxBackoffSeconds caps exponential retry backoff regardless of
// retry_delay and attempt count.
const MaxBackoffSeconds = 3600

// CalculateBackoff returns base * 2^(attempt-1) seconds, capped at
// MaxBackoffSeconds. attempt is the 1-indexed retry number (the first
// retry is attempt 1). No jitter is applied.
func CalculateBackoff(attempt int, baseDelaySeconds int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if baseDelaySeconds <= 0 {
		baseDelaySeconds = 1
	}

	delay := float64(baseDelaySeconds) * math.Pow(2, float64(attempt-1))
	if delay > float64(MaxBackoffSeconds) {
		delay = float64(MaxBackoffSeconds)
	}

	return time.Duration(delay) * time.Second
}

// FormatQueueKey formats a namespaced Redis key for a queue's broker
// state: pending:{queue}, delayed:{queue}, inflight:{queue}, etc.
func FormatQueueKey(queueName, suffix string) string {
	if suffix == "" {
		return queueName
	}
	return fmt.Sprintf("%s:%s", suffix, queueName)
}
