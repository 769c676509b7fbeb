// Package web provides the HTTP JSON API of the CSV sharing service.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/JonMunkholm/csvshare/internal/config"
	"github.com/JonMunkholm/csvshare/internal/core"
	"github.com/JonMunkholm/csvshare/internal/web/middleware"
)

// multipartOverhead is the body allowance above UPLOAD_MAX_FILE_SIZE for
// multipart boundaries and part headers.
const multipartOverhead = 1 << 20

const defaultRequestTimeout = 30 * time.Second

// Server is the HTTP server for the CSV sharing service.
type Server struct {
	service *core.Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new Server instance.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
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
	s.router.Use(middleware.Metrics)
	s.router.Use(chimw.Recoverer)

	if origins := s.cfg.Security.CORSOrigins; len(origins) > 0 {
		s.router.Use(cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			ExposedHeaders: []string{"X-Request-Id", "Retry-After"},
			MaxAge:         300,
		}).Handler)
	}

	// Security hardening
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		limiter := middleware.NewRateLimiter(s.cfg.Rate.RequestsPerMinute)
		s.router.Use(limiter.Middleware(s.respondError))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, r, core.ErrNotFound, http.StatusNotFound)
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, r, core.ErrInvalidInput, http.StatusMethodNotAllowed)
	})

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	auth := middleware.BearerAuth(s.service, s.respondError)
	timeout := chimw.Timeout(s.requestTimeout())

	s.router.Route("/auth", func(r chi.Router) {
		r.Use(timeout)
		r.Post("/register", s.handleRegister)
		r.Post("/token", s.handleToken)
		r.With(auth).Delete("/me", s.handleDeleteAccount)
	})

	s.router.Route("/files", func(r chi.Router) {
		r.Use(auth)

		// Uploads run under UPLOAD_TIMEOUT inside the service instead of the
		// request timeout, and get their own stricter rate limit.
		upload := r.With()
		if s.cfg.Rate.Enabled {
			upload = r.With(middleware.NewRateLimiter(s.cfg.Rate.UploadLimit).Middleware(s.respondError))
		}
		upload.Post("/upload", s.handleUpload)

		r.Group(func(r chi.Router) {
			r.Use(timeout)

			r.Get("/", s.handleListFiles)
			r.Get("/{fileID}", s.handleGetFile)
			r.Delete("/{fileID}", s.handleDeleteFile)

			r.Get("/{fileID}/access", s.handleListAccess)
			r.Put("/{fileID}/access/{username}", s.handleGrantAccess)
			r.Delete("/{fileID}/access/{username}", s.handleRevokeAccess)
		})
	})
}

func (s *Server) requestTimeout() time.Duration {
	if t := s.cfg.Server.RequestTimeout; t > 0 {
		return t
	}
	return defaultRequestTimeout
}

// Start begins listening for HTTP requests on the configured address.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("server listening", "addr", ln.Addr().String())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, then waits for uploads still
// holding a limiter slot.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return err
		}
	}
	return s.service.WaitForUploads(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")

			// JSON only: nothing may be loaded or framed.
			if enableCSP {
				h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}

			next.ServeHTTP(w, r)
		})
	}
}
