// Package api serves the authorization service over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kylo-io/hadoop-authz/pkg/authz"
	"github.com/kylo-io/hadoop-authz/pkg/ledger"
)

// BasePath is the prefix of every API route.
const BasePath = "/api/authz/v1"

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Server exposes an authz.Service and its policy ledger.
type Server struct {
	service     authz.Service
	ledger      *ledger.Store
	adminGroups []string
	identity    func(http.Handler) http.Handler
	gatherer    prometheus.Gatherer
	checks      map[string]ReadinessCheck
	corsOrigins []string
	logger      *slog.Logger
	startedAt   time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLedger enables the /policies and /events routes.
func WithLedger(store *ledger.Store) Option {
	return func(s *Server) { s.ledger = store }
}

// WithAdminGroups restricts mutating routes to members of groups.
func WithAdminGroups(groups []string) Option {
	return func(s *Server) { s.adminGroups = groups }
}

// WithIdentityMiddleware replaces the default X-Remote-User header identity.
func WithIdentityMiddleware(mw func(http.Handler) http.Handler) Option {
	return func(s *Server) { s.identity = mw }
}

// WithGatherer sets the registry served on /metrics. Defaults to
// prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithReadinessCheck adds a named check to /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a Server for service.
func NewServer(service authz.Service, opts ...Option) *Server {
	s := &Server{
		service:     service,
		identity:    authz.IdentityMiddleware(),
		gatherer:    prometheus.DefaultGatherer,
		checks:      map[string]ReadinessCheck{},
		corsOrigins: []string{"https://*", "http://*"},
		logger:      slog.Default(),
		startedAt:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP handler.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Remote-User", "X-Remote-Group"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.healthHandler)
	r.Get("/livez", s.healthHandler)
	r.Get("/readyz", s.readyHandler)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route(BasePath, func(r chi.Router) {
		r.Use(otelhttp.NewMiddleware("authz-api"))
		r.Use(s.identity)

		r.Get("/type", s.typeHandler)
		r.Get("/groups", s.listGroupsHandler)
		r.Get("/groups/{name}", s.getGroupHandler)

		r.Group(func(r chi.Router) {
			r.Use(RequireGroups(s.adminGroups))
			r.Put("/policies/hive", s.reconcileHiveHandler)
			r.Put("/policies/hdfs", s.reconcileHdfsHandler)
			r.Delete("/policies/hive/{category}/{feed}", s.deleteHiveHandler)
			r.Delete("/policies/hdfs/{category}/{feed}", s.deleteHdfsHandler)
			r.Put("/feeds/{category}/{feed}/groups", s.updateFeedGroupsHandler)
		})

		r.Get("/policies", s.listPoliciesHandler)
		r.Get("/policies/{name}", s.getPolicyHandler)
		r.Get("/events", s.listEventsHandler)
	})

	return r
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "alive",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// readyHandler runs every readiness check and reports 503 if any fails.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ready := true
	checks := make(map[string]map[string]string, len(names))
	for _, name := range names {
		status := map[string]string{"status": "up"}
		if err := s.checks[name](ctx); err != nil {
			status["status"] = "down"
			status["error"] = err.Error()
			ready = false
		}
		checks[name] = status
	}

	code, overall := http.StatusOK, "ready"
	if !ready {
		code, overall = http.StatusServiceUnavailable, "not_ready"
	}
	writeJSON(w, code, map[string]any{
		"status":  overall,
		"backend": s.service.Type(),
		"checks":  checks,
	})
}
