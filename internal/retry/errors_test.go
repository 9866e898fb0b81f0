package retry

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/spetersoncode/tally"
	"github.com/stretchr/testify/assert"
)

type apiError struct {
	code int
}

func (e *apiError) Error() string   { return fmt.Sprintf("api error %d", e.code) }
func (e *apiError) StatusCode() int { return e.code }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"categorized transient", tally.NewTransientError("busy", 503, nil), true},
		{"categorized permanent wins over text", tally.NewPermanentError("timeout in config", 401, nil), false},
		{"status 429", &apiError{code: 429}, true},
		{"status 502", &apiError{code: 502}, true},
		{"status 400", &apiError{code: 400}, false},
		{"googleapi 503", errors.New("googleapi: Error 503: backend error"), true},
		{"googleapi 404", errors.New("googleapi: Error 404: not found"), false},
		{"net timeout", &timeoutError{msg: "read tcp: i/o timeout"}, true},
		{"connection reset errno", fmt.Errorf("dial: %w", syscall.ECONNRESET), true},
		{"rate limit text", errors.New("Rate limit reached"), true},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", fmt.Errorf("call: %w", context.DeadlineExceeded), false},
		{"plain", errors.New("invalid amount"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTransient(tt.err))
		})
	}
}
