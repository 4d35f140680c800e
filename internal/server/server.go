// Package server exposes checks, results and configuration entities over a
// JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/blackwhitehere/acme-data-dash/internal/check"
	"github.com/blackwhitehere/acme-data-dash/internal/connection"
	"github.com/blackwhitehere/acme-data-dash/internal/runner"
	"github.com/blackwhitehere/acme-data-dash/internal/storage"
)

// ResultStore defines the result queries the server needs.
type ResultStore interface {
	LatestStatuses(ctx context.Context) (map[string]storage.LatestStatus, error)
	Recent(ctx context.Context, limit int) ([]storage.Record, error)
	CheckHistory(ctx context.Context, checkID string, limit, offset int) ([]storage.Record, int, error)
	SuccessRate(ctx context.Context, checkID string, last int) (float64, error)
}

// ConfigStore defines the configuration entity operations the server needs.
type ConfigStore interface {
	Profiles(ctx context.Context) ([]connection.Profile, error)
	SaveProfile(ctx context.Context, p connection.Profile) error
	DeleteProfile(ctx context.Context, name string) error

	SecretKeys(ctx context.Context) ([]string, error)
	SaveSecret(ctx context.Context, key, value string) error
	DeleteSecret(ctx context.Context, key string) error

	DataSources(ctx context.Context) ([]storage.DataSource, error)
	SaveDataSource(ctx context.Context, name, connectionName, secretKey string) (storage.DataSource, error)
	DeleteDataSource(ctx context.Context, name string) error

	UnixGroups(ctx context.Context) ([]storage.UnixGroup, error)
	SaveUnixGroup(ctx context.Context, g storage.UnixGroup) error
	DeleteUnixGroup(ctx context.Context, groupName string) error
}

// Store is everything the server reads and writes.
type Store interface {
	ResultStore
	ConfigStore
}

// Executor runs a registered check.
type Executor interface {
	Run(ctx context.Context, id string, params check.Params) (runner.Outcome, error)
}

// Options holds optional server features.
type Options struct {
	// CORSOrigins lists allowed origins. Empty allows any origin.
	CORSOrigins []string
	// JWTSecret enables HS256 bearer auth on check execution, mutating
	// config routes and secret listing.
	JWTSecret string
	// JWTIssuer, when set, must match the token's iss claim.
	JWTIssuer string
	// Metrics is mounted at MetricsPath when non-nil.
	Metrics     http.Handler
	MetricsPath string
}

// Server holds the chi router and its dependencies.
type Server struct {
	registry *check.Registry
	exec     Executor
	store    Store
	opts     Options
	router   chi.Router
	logger   *slog.Logger
}

// New creates a new Server and registers all routes.
func New(registry *check.Registry, exec Executor, store Store, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		registry: registry,
		exec:     exec,
		store:    store,
		opts:     opts,
		router:   chi.NewRouter(),
		logger:   logger,
	}
	s.registerRoutes()
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(s.corsHandler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/checks", s.handleListChecks)
		r.Get("/checks/{id}", s.handleGetCheck)
		r.Get("/checks/{id}/history", s.handleCheckHistory)
		r.Get("/history", s.handleHistory)
		r.Get("/status", s.handleStatus)

		r.Get("/connections", s.handleListConnections)
		r.Get("/datasources", s.handleListDataSources)
		r.Get("/unix-groups", s.handleListUnixGroups)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Post("/checks/{id}/execute", s.handleExecuteCheck)

			r.Put("/connections/{name}", s.handlePutConnection)
			r.Delete("/connections/{name}", s.handleDeleteConnection)

			r.Get("/secrets", s.handleListSecrets)
			r.Put("/secrets/{key}", s.handlePutSecret)
			r.Delete("/secrets/{key}", s.handleDeleteSecret)

			r.Put("/datasources/{name}", s.handlePutDataSource)
			r.Delete("/datasources/{name}", s.handleDeleteDataSource)

			r.Put("/unix-groups/{name}", s.handlePutUnixGroup)
			r.Delete("/unix-groups/{name}", s.handleDeleteUnixGroup)
		})
	})

	if s.opts.Metrics != nil {
		path := s.opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, s.opts.Metrics)
	}
}

func (s *Server) corsHandler() func(http.Handler) http.Handler {
	if len(s.opts.CORSOrigins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	})
}

// --- Response helpers ---

type envelope struct {
	Data  any    `json:"data"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
