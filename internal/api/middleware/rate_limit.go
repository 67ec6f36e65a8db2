package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Quota is one rate-limit budget: at most Requests per Window, keyed
// per caller.
type Quota struct {
	Requests int
	Window   time.Duration
}

// Quotas for the submission surface. Test mode relaxes every budget
// so suites are never throttled.
func SubmitQuota(testMode bool) Quota   { return quota(testMode, 60, time.Minute) }
func ReadQuota(testMode bool) Quota     { return quota(testMode, 300, time.Minute) }
func AuthQuota(testMode bool) Quota     { return quota(testMode, 10, time.Hour) }
func RegisterQuota(testMode bool) Quota { return quota(testMode, 5, time.Hour) }
func RefreshQuota(testMode bool) Quota  { return quota(testMode, 100, time.Hour) }

func quota(testMode bool, requests int, window time.Duration) Quota {
	if testMode {
		return Quota{Requests: 100000, Window: window}
	}
	return Quota{Requests: requests, Window: window}
}

// slidingWindow counts request timestamps per key and prunes them as
// the window slides.
type slidingWindow struct {
	mu    sync.Mutex
	seen  map[string][]time.Time
	quota Quota
}

func newSlidingWindow(q Quota) *slidingWindow {
	return &slidingWindow{seen: make(map[string][]time.Time), quota: q}
}

func (w *slidingWindow) allow(key string, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.quota.Window)
	kept := w.seen[key][:0]
	for _, ts := range w.seen[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= w.quota.Requests {
		w.seen[key] = kept
		return false
	}

	w.seen[key] = append(kept, now)
	return true
}

// prune drops keys with no recent activity, bounding memory for
// long-lived processes.
func (w *slidingWindow) prune(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.quota.Window)
	for key, stamps := range w.seen {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(w.seen, key)
		}
	}
}

// RateLimit throttles by authenticated producer when one is set on
// the context, falling back to client IP for anonymous requests.
func RateLimit(q Quota, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	window := newSlidingWindow(q)

	go func() {
		ticker := time.NewTicker(q.Window)
		defer ticker.Stop()
		for range ticker.C {
			window.prune(time.Now())
		}
	}()

	return func(c *gin.Context) {
		key := c.ClientIP()
		if producerID, exists := c.Get(producerIDContextKey); exists {
			if id, ok := producerID.(uuid.UUID); ok {
				key = id.String()
			}
		}

		if !window.allow(key, time.Now()) {
			logger.Warn("rate limit exceeded",
				"key", key,
				"limit", q.Requests,
				"window", q.Window)
			c.Header("Retry-After", q.Window.String())
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": int(q.Window.Seconds()),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
