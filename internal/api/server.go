// Package api provides the HTTP server and routing.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pgcrud/pgcrud/internal/api/handlers"
	"github.com/pgcrud/pgcrud/internal/auth"
	"github.com/pgcrud/pgcrud/internal/config"
	"github.com/pgcrud/pgcrud/internal/gateway"
	"github.com/pgcrud/pgcrud/internal/metrics"
)

// Server represents the HTTP server.
type Server struct {
	config  *config.Config
	core    *gateway.Dispatcher
	router  chi.Router
	server  *http.Server
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Options carries the collaborators the server wires together.
type Options struct {
	Core    *gateway.Dispatcher
	Metrics *metrics.Metrics
	// Agent is the agent-protocol handler mounted at /mcp; nil disables it.
	Agent http.Handler
	Build handlers.Config
}

// NewServer creates a new HTTP server.
func NewServer(cfg *config.Config, logger *slog.Logger, opts Options) *Server {
	s := &Server{
		config:  cfg,
		core:    opts.Core,
		logger:  logger,
		metrics: opts.Metrics,
	}
	s.setupRouter(opts)
	return s
}

// setupRouter configures the HTTP router.
func (s *Server) setupRouter(opts Options) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(s.metrics.Middleware)
	r.Use(middleware.Recoverer)

	if origins := s.config.CORSAllowedOrigins(); origins != nil {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "Mcp-Session-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	h := handlers.New(s.core, opts.Build)

	// Public routes: health and metrics bypass the credential check.
	r.Get("/api/_health", h.Health)
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		s.metrics.Handler().ServeHTTP(w, req)
	})

	// Interactive docs are a development aid, off by default.
	if s.config.Server.DocsEnabled {
		r.Get("/docs", handleSwaggerUI)
		r.Get("/openapi.json", h.OpenAPI)
	}

	// Everything else is credential-gated when auth is enabled.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(time.Duration(s.config.Server.WriteTimeout) * time.Second))
		r.Use(s.authMiddleware)
		r.Use(s.bodyLimitMiddleware)

		r.Get("/api/_meta/tables", h.MetaTables)
		r.Get("/api/_meta/tables/{table}", h.MetaTable)
		r.Get("/api/_schema", h.Schema)
		r.Get("/api/_schema/{table}", h.SchemaTable)

		r.Get("/api/{table}", h.List)
		r.Post("/api/{table}", h.Create)
		r.Get("/api/{table}/{id}", h.Get)
		r.Put("/api/{table}/{id}", h.Replace)
		r.Patch("/api/{table}/{id}", h.Patch)
		r.Delete("/api/{table}/{id}", h.Delete)
	})

	// The agent endpoint carries long-lived server-to-client streams: it is
	// credential-gated like the REST routes but must not sit behind the
	// request timeout, and every writer wrapping it stays flushable.
	if opts.Agent != nil {
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Use(s.bodyLimitMiddleware)
			r.Handle("/mcp", opts.Agent)
		})
	}

	s.router = r
}

// authMiddleware verifies the presented credential and attaches the parsed
// token to the request context. With auth disabled, requests pass through
// with no token, which means full access.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	if !s.config.Auth.Enabled {
		return next
	}
	secret := []byte(s.config.Auth.Secret)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.metrics.AuthAttempts.WithLabelValues("rest").Inc()

		cred := auth.CredentialFromRequest(r)
		if cred == "" {
			s.metrics.AuthFailures.WithLabelValues("rest", "missing").Inc()
			unauthenticated(w)
			return
		}
		tok, err := auth.Verify(secret, cred)
		if err != nil {
			s.metrics.AuthFailures.WithLabelValues("rest", "invalid").Inc()
			unauthenticated(w)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithToken(r.Context(), tok)))
	})
}

func unauthenticated(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprint(w, `{"error":"unauthenticated","message":"Missing or invalid credential"}`)
}

// bodyLimitMiddleware caps request body size.
func (s *Server) bodyLimitMiddleware(next http.Handler) http.Handler {
	limit := s.config.Server.MaxBodyBytes
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && limit > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote", r.RemoteAddr),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := s.config.Address()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.Server.WriteTimeout) * time.Second,
	}

	s.logger.Info("starting server", slog.String("address", addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the HTTP router for testing.
func (s *Server) Router() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
