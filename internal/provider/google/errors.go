package google

import (
	"errors"

	"github.com/spetersoncode/tally"
	"google.golang.org/genai"
)

// wrapError categorizes genai API errors by status code. genai.APIError
// exposes no headers, so there is no Retry-After hint.
func wrapError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	return tally.NewStatusError("google: request failed", apiErr.Code, 0, err)
}
