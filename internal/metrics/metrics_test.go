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
		{"just host", "example.com", "example.com"},
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

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if sourceRequestsTotal == nil || sourceBytesTotal == nil ||
		httpRequestsTotal == nil || erasTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveRequest(t *testing.T) {
	ObserveRequest("https://observe.example/page", "html", 200, 512, time.Second)
	ObserveRequest("https://observe.example/page", "html", 0, 0, time.Second)

	if val := testutil.ToFloat64(sourceRequestsTotal.WithLabelValues("observe.example", "html", "200")); val != 1 {
		t.Errorf("Expected one 200 request, got %f", val)
	}
	if val := testutil.ToFloat64(sourceRequestsTotal.WithLabelValues("observe.example", "html", "0")); val != 1 {
		t.Errorf("Expected one failed request, got %f", val)
	}
	if val := testutil.ToFloat64(sourceBytesTotal.WithLabelValues("observe.example")); val != 512 {
		t.Errorf("Expected 512 bytes, got %f", val)
	}
}

func TestObserveEra(t *testing.T) {
	ObserveEra("observe-test", true)
	ObserveEra("observe-test", false)
	ObserveEra("observe-test", false)

	if val := testutil.ToFloat64(erasTotal.WithLabelValues("observe-test", "failure")); val != 2 {
		t.Errorf("Expected two failures, got %f", val)
	}
}

func TestObserveRobotsFallback(t *testing.T) {
	ObserveRobotsFallback("https://robots.example/robots.txt")

	if val := testutil.ToFloat64(robotsFallbacksTotal.WithLabelValues("robots.example")); val != 1 {
		t.Errorf("Expected one fallback, got %f", val)
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
