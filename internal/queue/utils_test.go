package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		name     string
		attempt  int
		base     int
		expected time.Duration
	}{
		{"first retry uses base delay", 1, 60, 60 * time.Second},
		{"second retry doubles", 2, 60, 120 * time.Second},
		{"third retry doubles again", 3, 60, 240 * time.Second},
		{"capped at ceiling", 10, 60, MaxBackoffSeconds * time.Second},
		{"zero attempt treated as first", 0, 30, 30 * time.Second},
		{"zero base treated as one second", 1, 0, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CalculateBackoff(tt.attempt, tt.base))
		})
	}
}

func TestCalculateBackoffMonotonic(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		delay := CalculateBackoff(attempt, 5)
		assert.GreaterOrEqual(t, delay, prev, "attempt %d", attempt)
		prev = delay
	}
}

func TestFormatQueueKey(t *testing.T) {
	assert.Equal(t, "pending:default", FormatQueueKey("default", "pending"))
	assert.Equal(t, "delayed:emails", FormatQueueKey("emails", "delayed"))
	assert.Equal(t, "default", FormatQueueKey("default", ""))
}
