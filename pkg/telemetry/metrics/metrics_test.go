package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRequestMetrics_Record(t *testing.T) {
	c := NewCollector("")
	c.Requests().RecordRequest("POST /v1/enforcement/check", http.MethodPost, http.StatusOK, 2*time.Millisecond)
	c.Requests().RecordRequest("POST /v1/enforcement/check", http.MethodPost, http.StatusOK, 3*time.Millisecond)

	got := testutil.ToFloat64(c.requests.requestsTotal.WithLabelValues("POST /v1/enforcement/check", http.MethodPost, "200"))
	if got != 2 {
		t.Errorf("Expected 2 requests, got %v", got)
	}
	if c.Namespace() != "spendcap" {
		t.Errorf("Expected default namespace spendcap, got %s", c.Namespace())
	}
}

func TestHandler_Exposes(t *testing.T) {
	c := NewCollector("spendcap")
	c.Requests().RecordRequest("GET /health", http.MethodGet, http.StatusOK, time.Millisecond)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"spendcap_http_requests_total", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Expected %s in scrape output", want)
		}
	}
}
