package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"weatherapi/internal/config"
)

func newHealthServer(t *testing.T, probes ...HealthProbe) *Server {
	t.Helper()
	srv, err := NewServer(&config.Config{Build: config.BuildInfo{Version: "1.4.0"}}, discardLogger())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	srv.HealthProbes = probes
	return srv
}

func doHealth(t *testing.T, srv *Server) (int, healthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode health body: %v", err)
	}
	return rec.Code, resp
}

func TestHandleHealth_NoProbes(t *testing.T) {
	code, resp := doHealth(t, newHealthServer(t))

	if code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
	if resp.Status != "healthy" {
		t.Errorf("expected healthy, got %q", resp.Status)
	}
	if resp.Version != "1.4.0" {
		t.Errorf("expected version 1.4.0, got %q", resp.Version)
	}
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	srv := newHealthServer(t,
		&MockHealthProbe{ProbeName: "mongo"},
		&MockHealthProbe{ProbeName: "mqtt"},
	)
	code, resp := doHealth(t, srv)

	if code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
	for _, name := range []string{"mongo", "mqtt"} {
		if resp.Components[name].Status != "healthy" {
			t.Errorf("component %s: expected healthy, got %+v", name, resp.Components[name])
		}
	}
}

func TestHandleHealth_FailingProbe(t *testing.T) {
	srv := newHealthServer(t,
		&MockHealthProbe{ProbeName: "mongo", Err: errors.New("server selection timeout")},
		&MockHealthProbe{ProbeName: "mqtt"},
	)
	code, resp := doHealth(t, srv)

	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	if resp.Status != "unhealthy" {
		t.Errorf("expected unhealthy, got %q", resp.Status)
	}
	mongo := resp.Components["mongo"]
	if mongo.Status != "unhealthy" || mongo.Message != "server selection timeout" {
		t.Errorf("unexpected mongo component: %+v", mongo)
	}
	if resp.Components["mqtt"].Status != "healthy" {
		t.Errorf("mqtt should stay healthy: %+v", resp.Components["mqtt"])
	}
}

func TestHandleHealth_PanickingProbe(t *testing.T) {
	srv := newHealthServer(t, &MockHealthProbe{ProbeName: "mongo", Panic: "nil client"})
	code, resp := doHealth(t, srv)

	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	if resp.Components["mongo"].Status != "unhealthy" {
		t.Errorf("panicking probe should be unhealthy: %+v", resp.Components["mongo"])
	}
}
