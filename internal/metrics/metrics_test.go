package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserversRecord(t *testing.T) {
	Init()
	Init()

	ObservePage("https://metrics-test.example/a", true, "ok")
	if val := testutil.ToFloat64(pagesTotal.WithLabelValues("metrics-test.example", "headless", "ok")); val != 1 {
		t.Errorf("expected one headless page, got %f", val)
	}

	before := testutil.ToFloat64(archiveOutcomesTotal.WithLabelValues("archived"))
	ObserveArchiveOutcome("archived")
	if val := testutil.ToFloat64(archiveOutcomesTotal.WithLabelValues("archived")); val != before+1 {
		t.Errorf("expected archived counter to grow by one, got %f", val-before)
	}

	IncActiveWorkers("metrics-test")
	IncActiveWorkers("metrics-test")
	DecActiveWorkers("metrics-test")
	if val := testutil.ToFloat64(activeWorkers.WithLabelValues("metrics-test")); val != 1 {
		t.Errorf("expected one active worker, got %f", val)
	}

	SetQueueDepth("metrics-test", 7)
	if val := testutil.ToFloat64(queueDepth.WithLabelValues("metrics-test")); val != 7 {
		t.Errorf("expected queue depth 7, got %f", val)
	}

	ObserveRateLimitDelay("metrics-test", 2*time.Second)
	if val := testutil.CollectAndCount(rateLimitDelaysSeconds); val <= 0 {
		t.Errorf("expected rate limit delay to be observed, got %d", val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
