package openai

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/openai/openai-go"
	"github.com/spetersoncode/tally"
)

// wrapError categorizes SDK errors by status code and keeps any Retry-After
// hint. Errors that are not API errors pass through for heuristic handling.
func wrapError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	return tally.NewStatusError("openai: request failed", apiErr.StatusCode, parseRetryAfter(apiErr.Response), err)
}

// parseRetryAfter reads Retry-After as seconds or as an HTTP date.
func parseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if delay := time.Until(t); delay > 0 {
			return delay
		}
	}
	return 0
}
