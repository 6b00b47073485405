// Package core provides the HTTP chassis for the weather API: a chi router,
// the global middleware chain, the JSON envelope helpers and the health
// endpoint. Domain handlers attach themselves through V1RouteRegistrars.
package core

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"

	"weatherapi/internal/config"
)

// Server holds the router and the cross-cutting dependencies shared by every
// request.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// RateLimitStore is optional; a nil store disables rate limiting.
	RateLimitStore RateLimitStore

	// HealthProbes are checked by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars mount domain handlers under /v1. They are appended by
	// main before MountRoutes is called.
	V1RouteRegistrars []func(r chi.Router)

	router         *chi.Mux
	trustedProxies []netip.Prefix
}

// NewServer validates its inputs and prepares an empty router. Routes are
// mounted separately by MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	proxies := make([]netip.Prefix, 0, len(cfg.Security.TrustedProxies))
	for _, cidr := range cfg.Security.TrustedProxies {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", cidr, err)
		}
		proxies = append(proxies, prefix.Masked())
	}

	return &Server{
		Config:         cfg,
		Logger:         logger,
		Validator:      NewValidator(logger),
		router:         chi.NewRouter(),
		trustedProxies: proxies,
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi.Mux for tests and custom mounting.
func (s *Server) Router() *chi.Mux {
	return s.router
}
