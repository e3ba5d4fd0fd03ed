package generation

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

func apiError(status int) error {
	return &openai.APIError{HTTPStatusCode: status}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", apiError(http.StatusTooManyRequests), true},
		{"server error", apiError(http.StatusInternalServerError), true},
		{"bad request", apiError(http.StatusBadRequest), false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"network failure", errors.New("connection reset"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := retryable(tc.err); got != tc.want {
				t.Errorf("retryable() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBackoffDelay_Capped(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 0; attempt < 10; attempt++ {
		d := backoffDelay(attempt)
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > 8*time.Second {
			t.Fatalf("delay above cap at attempt %d: %v", attempt, d)
		}
		prev = d
	}
}
