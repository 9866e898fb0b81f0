package retry

import (
	"context"
	"errors"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"github.com/spetersoncode/tally"
)

// statusCoder matches SDK errors exposing an HTTP status.
type statusCoder interface {
	StatusCode() int
}

// googleStatusPattern matches the "Error 503" fragment of googleapi errors.
var googleStatusPattern = regexp.MustCompile(`googleapi: Error (\d{3})`)

// transientPhrases are matched against uncategorized error text as a last resort.
var transientPhrases = []string{
	"connection reset",
	"connection refused",
	"timeout",
	"temporary failure",
	"service unavailable",
	"too many requests",
	"rate limit",
	"bad gateway",
	"gateway timeout",
	"overloaded",
}

// IsTransient reports whether err is worth retrying. Categorized errors are
// trusted as-is; everything else is judged by status code, network error type
// and finally message text. Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var ce tally.CategorizedError
	if errors.As(err, &ce) {
		return ce.Category() == tally.ErrorTransient
	}

	var sc statusCoder
	if errors.As(err, &sc) && transientStatus(sc.StatusCode()) {
		return true
	}
	if m := googleStatusPattern.FindStringSubmatch(err.Error()); m != nil {
		if code, _ := strconv.Atoi(m[1]); transientStatus(code) {
			return true
		}
	}

	return transientNetwork(err)
}

func transientStatus(code int) bool {
	return code == 429 || (code >= 500 && code < 600)
}

func transientNetwork(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ETIMEDOUT:
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, phrase := range transientPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
