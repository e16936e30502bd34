package wayback

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg.SaveEndpoint = srv.URL + "/save"
	cfg.CDXEndpoint = srv.URL + "/cdx"
	return New(cfg, srv.Client(), nil)
}

func TestLatestSnapshot_ReturnsNewestCapture(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/cdx", r.URL.Path)
		require.Equal(t, "https://example.com/a", r.URL.Query().Get("url"))
		require.Equal(t, "json", r.URL.Query().Get("output"))
		require.Equal(t, "-1", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[["urlkey","timestamp","original","mimetype","statuscode","digest","length"],
			["com,example)/a","20240102030405","https://example.com/a","text/html","200","ABC","123"]]`))
	}, Config{})

	ts, err := client.LatestSnapshot(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), ts)
}

func TestLatestSnapshot_NoCaptures(t *testing.T) {
	t.Parallel()

	for _, body := range []string{``, `[]`, `[["urlkey","timestamp"]]`} {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(body))
		}, Config{})
		_, err := client.LatestSnapshot(context.Background(), "https://example.com")
		require.ErrorIs(t, err, ErrNoSnapshot, body)
	}
}

func TestLatestSnapshot_Errors(t *testing.T) {
	t.Parallel()

	limited := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}, Config{})
	_, err := limited.LatestSnapshot(context.Background(), "https://example.com")
	require.ErrorIs(t, err, ErrRateLimited)

	broken := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, Config{})
	_, err = broken.LatestSnapshot(context.Background(), "https://example.com")
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNoSnapshot))

	garbled := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[["urlkey","timestamp"],["k","yesterday"]]`))
	}, Config{})
	_, err = garbled.LatestSnapshot(context.Background(), "https://example.com")
	require.ErrorContains(t, err, "parse cdx timestamp")
}

func TestSave_SendsAuthAndUserAgent(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/save/https://example.com/a", r.URL.Path)
		require.Equal(t, "LOW key:secret", r.Header.Get("Authorization"))
		require.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Location", "/web/20240102030405/https://example.com/a")
		w.WriteHeader(http.StatusOK)
	}, Config{AccessKey: "key", SecretKey: "secret", UserAgent: func() string { return "test-agent" }})

	require.NoError(t, client.Save(context.Background(), "https://example.com/a"))
}

func TestSave_Anonymous(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}, Config{AccessKey: "key"})

	require.NoError(t, client.Save(context.Background(), "https://example.com/a"))
}

func TestSave_RateLimited(t *testing.T) {
	t.Parallel()

	byStatus := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}, Config{})
	require.ErrorIs(t, byStatus.Save(context.Background(), "https://example.com"), ErrRateLimited)

	byText := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<p>Sorry. Save Page Now limits saving to 15 URLs per minute.</p>`))
	}, Config{})
	require.ErrorIs(t, byText.Save(context.Background(), "https://example.com"), ErrRateLimited)
}

func TestSave_ServerError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, Config{})
	err := client.Save(context.Background(), "https://example.com")
	require.ErrorContains(t, err, "unexpected status 502")
	require.False(t, errors.Is(err, ErrRateLimited))
}

func TestSave_HonorsContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}, Config{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := client.Save(ctx, "https://example.com")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
