package core

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"weatherapi/internal/config"
	"weatherapi/internal/types"
)

// newTestServerForRoutes creates a Server with a permissive rate limiter and
// one probe, then mounts the routes.
func newTestServerForRoutes(t *testing.T, registrars ...func(chi.Router)) *Server {
	t.Helper()

	cfg := &config.Config{
		Environment: "local",
		Security: config.SecurityConfig{
			CorsAllowedOrigins: []string{"*"},
		},
	}
	srv, err := NewServer(cfg, discardLogger())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	srv.RateLimitStore = &MockRateLimitStore{
		Result: RateLimitResult{Allowed: true, Limit: 40, Remaining: 39, ResetAt: time.Now().Add(time.Second)},
	}
	srv.HealthProbes = []HealthProbe{&MockHealthProbe{ProbeName: "mongo"}}
	srv.V1RouteRegistrars = registrars

	srv.MountRoutes()
	return srv
}

// TestMountRoutes_MiddlewareCount guards the global chain length.
func TestMountRoutes_MiddlewareCount(t *testing.T) {
	srv := newTestServerForRoutes(t)

	if got := len(srv.Router().Middlewares()); got != 7 {
		t.Errorf("expected 7 global middleware, got %d", got)
	}
}

func TestMountRoutes_HealthEndpoint(t *testing.T) {
	srv := newTestServerForRoutes(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp.Components["mongo"].Status != "healthy" {
		t.Errorf("expected mongo probe in response, got %+v", resp.Components)
	}
}

func TestMountRoutes_V1Registrar(t *testing.T) {
	srv := newTestServerForRoutes(t, func(r chi.Router) {
		r.Get("/weather", func(w http.ResponseWriter, r *http.Request) {
			JSON(w, r, http.StatusOK, APIResponse{Data: []string{}})
		})
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/weather", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from registered route, got %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "40" {
		t.Error("v1 routes should pass through the rate limiter")
	}
}

func TestMountRoutes_UnknownRoute404(t *testing.T) {
	srv := newTestServerForRoutes(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestMountRoutes_SecurityHeaders(t *testing.T) {
	srv := newTestServerForRoutes(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on every response")
	}
}

func TestMountRoutes_RequestIDGenerated(t *testing.T) {
	srv := newTestServerForRoutes(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if len(rec.Header().Get("X-Request-Id")) != 36 {
		t.Errorf("expected a UUID request id, got %q", rec.Header().Get("X-Request-Id"))
	}
}

func TestMountRoutes_RequestIDPropagated(t *testing.T) {
	var seen string
	srv := newTestServerForRoutes(t, func(r chi.Router) {
		r.Get("/echo", func(w http.ResponseWriter, r *http.Request) {
			seen = types.GetRequestID(r.Context())
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/echo", nil)
	req.Header.Set("X-Request-Id", "req_client_1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if seen != "req_client_1" {
		t.Errorf("handler saw request id %q", seen)
	}
	if rec.Header().Get("X-Request-Id") != "req_client_1" {
		t.Errorf("response header = %q", rec.Header().Get("X-Request-Id"))
	}
}

func TestMountRoutes_RecovererCatchesHandlerPanic(t *testing.T) {
	srv := newTestServerForRoutes(t, func(r chi.Router) {
		r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/boom", nil)
	req.Header.Set("X-Request-Id", "req_panic")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp.Error.RequestID != "req_panic" {
		t.Errorf("expected request id in panic body, got %q", resp.Error.RequestID)
	}
}

func TestMountRoutes_CORSHeaders(t *testing.T) {
	srv := newTestServerForRoutes(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS header on response")
	}
}

func TestMountRoutes_RateLimited(t *testing.T) {
	srv := newTestServerForRoutes(t, func(r chi.Router) {
		r.Get("/weather", func(w http.ResponseWriter, r *http.Request) {})
	})
	srv.RateLimitStore.(*MockRateLimitStore).Result = RateLimitResult{Allowed: false, ResetAt: time.Now().Add(time.Second)}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/weather", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
}

func TestContextTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	handler := ContextTimeoutMiddleware(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !ok {
		t.Fatal("expected a deadline on the request context")
	}
	if time.Until(deadline) > 50*time.Millisecond {
		t.Errorf("deadline too far in the future: %v", deadline)
	}
}

func TestContextTimeoutMiddleware_Cancellation(t *testing.T) {
	var ctxErr error
	handler := ContextTimeoutMiddleware(10 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		ctxErr = r.Context().Err()
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if ctxErr != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", ctxErr)
	}
}
