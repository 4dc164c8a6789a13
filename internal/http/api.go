package http

import (
	"log/slog"
	"net/http"

	"github.com/Flarenzy/smart-ipam/internal/auth"
	"github.com/Flarenzy/smart-ipam/internal/domain"
)

type API struct {
	Logger  *slog.Logger
	Health  domain.HealthChecker
	Service domain.NetworkService
	Auth    auth.Authenticator

	metrics   http.Handler
	writeRole string
}

type Option func(*API)

// WithMetricsHandler serves h on /metrics, outside authentication.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *API) {
		a.metrics = h
	}
}

// WithWriteRole requires role on every state-changing request when auth is on.
func WithWriteRole(role string) Option {
	return func(a *API) {
		a.writeRole = role
	}
}

func NewAPI(logger *slog.Logger, health domain.HealthChecker, service domain.NetworkService, authenticator auth.Authenticator, opts ...Option) *API {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &API{
		Logger:  logger,
		Health:  health,
		Service: service,
		Auth:    authenticator,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *API) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)
	if a.metrics != nil {
		mux.Handle("GET /metrics", a.metrics)
	}

	mux.HandleFunc("GET /api/v1/subnets", a.handleListSubnets)
	mux.HandleFunc("POST /api/v1/subnets", a.handleCreateSubnet)
	mux.HandleFunc("GET /api/v1/subnets/{ref...}", a.handleSubnetPath)
	mux.HandleFunc("POST /api/v1/subnets/{ref...}", a.handleSubnetPath)
	mux.HandleFunc("GET /api/v1/allocations/{address}", a.handleGetAllocation)
	mux.HandleFunc("DELETE /api/v1/allocations/{address}", a.handleDeallocate)
	mux.HandleFunc("POST /api/v1/discovery", a.handleDiscover)
	mux.HandleFunc("GET /api/v1/conflicts", a.handleCheckConflicts)
	mux.HandleFunc("GET /api/v1/utilization", a.handleUtilization)

	return a.authMiddleware(mux)
}
