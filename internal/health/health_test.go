package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandler_AllHealthy(t *testing.T) {
	t.Parallel()

	handler := NewHandler("1.0.0")
	handler.RegisterFunc("postgres", func() error { return nil })
	handler.RegisterFunc("kafka", func() error { return nil })

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}

	var response Response
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if response.Status != StatusHealthy {
		t.Fatalf("unexpected overall status: %s", response.Status)
	}
	if response.Version != "1.0.0" {
		t.Fatalf("unexpected version: %s", response.Version)
	}
	if len(response.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(response.Checks))
	}
}

func TestHandler_UnhealthyComponent(t *testing.T) {
	t.Parallel()

	handler := NewHandler("1.0.0")
	handler.RegisterFunc("postgres", func() error { return errors.New("connection refused") })
	handler.RegisterFunc("kafka", func() error { return nil })

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}

	var response Response
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if response.Status != StatusUnhealthy {
		t.Fatalf("unexpected overall status: %s", response.Status)
	}
	if response.Checks["postgres"].Message != "connection refused" {
		t.Fatalf("unexpected check message: %q", response.Checks["postgres"].Message)
	}
}

func TestHandler_DegradedDoesNotFailReadiness(t *testing.T) {
	t.Parallel()

	handler := NewHandler("1.0.0")
	handler.RegisterChecker("outbox", checkerFunc(func() Check {
		return Check{Name: "outbox", Status: StatusDegraded, Message: "backlog growing"}
	}))

	rec := httptest.NewRecorder()
	handler.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("degraded component should not fail readiness: %d", rec.Code)
	}
}

func TestHandler_ReadinessUnhealthy(t *testing.T) {
	t.Parallel()

	handler := NewHandler("1.0.0")
	handler.RegisterFunc("postgres", func() error { return errors.New("down") })

	rec := httptest.NewRecorder()
	handler.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected readiness code: %d", rec.Code)
	}
}

func TestLivenessHandler(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected liveness code: %d", rec.Code)
	}
}

type checkerFunc func() Check

func (f checkerFunc) Check() Check { return f() }
