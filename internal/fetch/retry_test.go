package fetch

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rightslens/bhrrc-harvester/internal/harvest"
)

func TestShouldRetry(t *testing.T) {
	policy := DefaultRetryPolicy()

	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{name: "nil error", err: nil, attempt: 1, want: false},
		{name: "budget exhausted", err: errors.New("boom"), attempt: 3, want: false},
		{name: "context canceled", err: context.Canceled, attempt: 1, want: false},
		{
			name:    "server error",
			err:     &harvest.FetchError{Kind: harvest.FetchHTTPStatus, Status: http.StatusBadGateway},
			attempt: 1,
			want:    true,
		},
		{
			name:    "rate limited",
			err:     &harvest.FetchError{Kind: harvest.FetchHTTPStatus, Status: http.StatusTooManyRequests},
			attempt: 1,
			want:    true,
		},
		{
			name:    "not found",
			err:     &harvest.FetchError{Kind: harvest.FetchHTTPStatus, Status: http.StatusNotFound},
			attempt: 1,
			want:    false,
		},
		{
			name:    "forbidden",
			err:     &harvest.FetchError{Kind: harvest.FetchHTTPStatus, Status: http.StatusForbidden},
			attempt: 1,
			want:    false,
		},
		{
			name:    "timeout",
			err:     &harvest.FetchError{Kind: harvest.FetchTimeout, Err: errors.New("deadline")},
			attempt: 1,
			want:    true,
		},
		{
			name:    "connection reset",
			err:     &harvest.FetchError{Kind: harvest.FetchConnectionFailed, Err: errors.New("reset")},
			attempt: 2,
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.ShouldRetry(tt.err, tt.attempt))
		})
	}
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	policy := NewRetryPolicy(5, 100*time.Millisecond, time.Second)

	prevCeiling := time.Duration(0)
	for attempt := 0; attempt < 5; attempt++ {
		d := policy.Backoff(attempt)
		assert.Greater(t, d, time.Duration(0))
		// Jitter keeps each delay within [half, full] of the schedule value.
		assert.LessOrEqual(t, d, time.Second)
		if attempt > 0 {
			assert.GreaterOrEqual(t, d, prevCeiling/4)
		}
		prevCeiling = d
	}
}

func TestNewRetryPolicyDefaults(t *testing.T) {
	policy := NewRetryPolicy(0, 0, 0)
	assert.Equal(t, DefaultMaxAttempts, policy.MaxAttempts())
}
