package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNew_DefaultTimeout(t *testing.T) {
	c := New(0)
	if c.checkTimeout != 5*time.Second {
		t.Errorf("Expected default timeout 5s, got %v", c.checkTimeout)
	}
}

func TestCheckReadiness_NoChecks(t *testing.T) {
	status := New(time.Second).CheckReadiness(context.Background())
	if status.Status != "ready" {
		t.Errorf("Expected ready, got %s", status.Status)
	}
}

func TestCheckReadiness_Mixed(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("store", func(context.Context) error { return nil })
	c.RegisterCheck("budget_snapshot", func(context.Context) error { return errors.New("snapshot is 10m old") })

	status := c.CheckReadiness(context.Background())
	if status.Status != "degraded" {
		t.Errorf("Expected degraded, got %s", status.Status)
	}
	if status.Checks["store"].Status != "ok" {
		t.Errorf("Expected store ok, got %+v", status.Checks["store"])
	}
	if got := status.Checks["budget_snapshot"]; got.Status != "unhealthy" || got.Message != "snapshot is 10m old" {
		t.Errorf("Unexpected snapshot result: %+v", got)
	}
	if names := c.ListChecks(); len(names) != 2 || names[0] != "budget_snapshot" {
		t.Errorf("Expected sorted check names, got %v", names)
	}
}

func TestCheckReadiness_Timeout(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.RegisterCheck("slow", func(context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})

	status := c.CheckReadiness(context.Background())
	if got := status.Checks["slow"]; got.Status != "unhealthy" || got.Message != ErrCheckTimeout.Error() {
		t.Errorf("Expected timeout result, got %+v", got)
	}
}

func TestReadinessHandler(t *testing.T) {
	c := New(time.Second)
	c.RegisterCheck("store", func(context.Context) error { return errors.New("connection refused") })

	rec := httptest.NewRecorder()
	c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if status.Status != "degraded" {
		t.Errorf("Expected degraded, got %s", status.Status)
	}
}

func TestLivenessAndVersionHandlers(t *testing.T) {
	rec := httptest.NewRecorder()
	New(time.Second).LivenessHandler()(rec, httptest.NewRequest(http.MethodHead, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("Expected empty 200 for HEAD, got %d with %d bytes", rec.Code, rec.Body.Len())
	}

	rec = httptest.NewRecorder()
	VersionHandler("1.2.3", "abc", "today")(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	var info VersionInfo
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if info.Version != "1.2.3" || info.GoVersion == "" {
		t.Errorf("Unexpected version info: %+v", info)
	}
}
