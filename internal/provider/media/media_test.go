package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/receipt.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("png-bytes"))
		case "/raw.webp":
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write([]byte("webp-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	t.Run("uses content type header", func(t *testing.T) {
		data, mime, err := Fetch(context.Background(), srv.Client(), srv.URL+"/receipt.png")
		require.NoError(t, err)
		assert.Equal(t, "png-bytes", string(data))
		assert.Equal(t, "image/png", mime)
	})

	t.Run("infers type for octet stream", func(t *testing.T) {
		_, mime, err := Fetch(context.Background(), srv.Client(), srv.URL+"/raw.webp")
		require.NoError(t, err)
		assert.Equal(t, "image/webp", mime)
	})

	t.Run("non 200 is an error", func(t *testing.T) {
		_, _, err := Fetch(context.Background(), srv.Client(), srv.URL+"/missing.jpg")
		assert.ErrorContains(t, err, "status 404")
	})
}

func TestMimeFromURL(t *testing.T) {
	assert.Equal(t, "image/png", MimeFromURL("https://x/a.PNG?sig=1"))
	assert.Equal(t, "image/gif", MimeFromURL("https://x/a.gif"))
	assert.Equal(t, "image/jpeg", MimeFromURL("https://x/a"))
	assert.True(t, IsHTTP("https://x"))
	assert.False(t, IsHTTP("gs://bucket/a.jpg"))
}
