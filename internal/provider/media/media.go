// Package media fetches remote images for providers that only accept inline
// image data.
package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MaxImageBytes bounds the size of a fetched image.
const MaxImageBytes = 20 << 20

// Fetch downloads url and returns its bytes and MIME type.
func Fetch(ctx context.Context, client *http.Client, url string) ([]byte, string, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("media: build request: %w", err)
	}
	req.Header.Set("User-Agent", "tally/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("media: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media: fetch %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("media: read %s: %w", url, err)
	}
	if len(data) > MaxImageBytes {
		return nil, "", fmt.Errorf("media: %s exceeds %d bytes", url, MaxImageBytes)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = MimeFromURL(url)
	}
	return data, mimeType, nil
}

// MimeFromURL guesses an image MIME type from the URL extension.
func MimeFromURL(url string) string {
	lower := strings.ToLower(url)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// IsHTTP reports whether url uses an http or https scheme.
func IsHTTP(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}
