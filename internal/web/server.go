// Package web exposes the table engine and user administration over a JSON
// HTTP API for the dashboard and editor front end.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"

	"github.com/JonMunkholm/tablekit/internal/access"
	"github.com/JonMunkholm/tablekit/internal/config"
	"github.com/JonMunkholm/tablekit/internal/core"
	"github.com/JonMunkholm/tablekit/internal/core/tables"
	"github.com/JonMunkholm/tablekit/internal/metrics"
	"github.com/JonMunkholm/tablekit/internal/web/middleware"
)

// multipartOverhead is allowed on top of the import size limit for the
// multipart envelope.
const multipartOverhead = 1 << 20

// Deps are the services the HTTP layer orchestrates.
type Deps struct {
	Tables   *tables.Service
	Users    *access.Users
	Audit    *core.AuditLog
	Metrics  *metrics.Metrics
	Verifier *middleware.TokenVerifier
}

// Server is the HTTP server for the table API.
type Server struct {
	cfg      *config.Config
	tables   *tables.Service
	users    *access.Users
	audit    *core.AuditLog
	metrics  *metrics.Metrics
	verifier *middleware.TokenVerifier

	router   *chi.Mux
	server   *http.Server
	limiters []*middleware.RateLimiter
	now      func() time.Time
}

// NewServer creates a new Server instance.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:      cfg,
		tables:   deps.Tables,
		users:    deps.Users,
		audit:    deps.Audit,
		metrics:  deps.Metrics,
		verifier: deps.Verifier,
		router:   chi.NewRouter(),
		now:      time.Now,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	if s.metrics != nil {
		s.router.Use(middleware.Metrics(s.metrics))
	}
	s.router.Use(chimw.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	s.router.Use(middleware.SecurityHeaders(s.cfg.Security.EnableCSP))
	s.router.Use(render.SetContentType(render.ContentTypeJSON))

	if s.cfg.Rate.Enabled {
		s.router.Use(s.rateLimit(s.cfg.Rate.RequestsPerMinute))
	}
}

func (s *Server) rateLimit(perMinute int) func(http.Handler) http.Handler {
	rl := middleware.NewRateLimiter(perMinute, time.Minute)
	s.limiters = append(s.limiters, rl)
	return rl.Handler(s.respondError)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/internal/metrics", s.metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Authenticate(s.verifier, s.users, s.respondError))

		// Transfer routes run under the import timeout and rate limit.
		r.Group(func(r chi.Router) {
			if s.cfg.Rate.Enabled {
				r.Use(s.rateLimit(s.cfg.Rate.ImportLimit))
			}
			r.Use(chimw.Timeout(s.cfg.Import.Timeout))
			r.Post("/tables/{tableID}/import", s.handleImport)
			r.Post("/preview", s.handlePreview)
		})

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))

			// Session
			r.Get("/me", s.handleMe)
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)

			r.Get("/column-types", s.handleColumnTypes)

			// Tables
			r.Get("/tables", s.handleListTables)
			r.Post("/tables", s.handleCreateTable)
			r.Get("/tables/{tableID}", s.handleGetTable)
			r.Delete("/tables/{tableID}", s.handleDeleteTable)
			r.Get("/tables/{tableID}/export", s.handleExport)
			r.Get("/tables/{tableID}/audit", s.handleTableAudit)

			r.Post("/tables/{tableID}/rows", s.handleAddRow)
			r.Delete("/tables/{tableID}/rows/{rowID}", s.handleDeleteRow)
			r.Put("/tables/{tableID}/rows/{rowID}/cells/{columnID}", s.handleUpdateCell)

			r.Post("/tables/{tableID}/columns", s.handleAddColumn)
			r.Delete("/tables/{tableID}/columns/{columnID}", s.handleDeleteColumn)

			// Administration
			r.Get("/admin/users", s.handleListUsers)
			r.Put("/admin/users/{userID}/status", s.handleSetStatus)
			r.Put("/admin/users/{userID}/role", s.handleSetRole)
			r.Get("/admin/tables", s.handleListAllTables)
			r.Get("/admin/orphans", s.handleOrphans)
			r.Get("/admin/audit", s.handleAuditLog)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, rl := range s.limiters {
		rl.Close()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}
