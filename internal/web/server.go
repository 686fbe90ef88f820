package web

import (
	"context"
	"crypto/rand"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"github.com/rs/zerolog"

	"github.com/mailflow-app/mailflow/internal/config"
	"github.com/mailflow-app/mailflow/internal/triage"
)

//go:embed static/*
var staticFS embed.FS

//go:embed templates/*
var templatesFS embed.FS

type Server struct {
	config      *config.Config
	classifier  *triage.Classifier
	version     string
	log         zerolog.Logger
	index       *template.Template
	httpServer  *http.Server
	csrfKey     []byte
	rateLimiter *RateLimiter
}

func NewServer(cfg *config.Config, classifier *triage.Classifier, version string, log zerolog.Logger) (*Server, error) {
	csrfKey := make([]byte, 32)
	if _, err := rand.Read(csrfKey); err != nil {
		return nil, fmt.Errorf("failed to generate CSRF key: %w", err)
	}
	if classifier == nil {
		classifier = triage.New(nil)
	}

	index, err := template.ParseFS(templatesFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	return &Server{
		config:      cfg,
		classifier:  classifier,
		version:     version,
		log:         log.With().Str("component", "web").Logger(),
		index:       index,
		csrfKey:     csrfKey,
		rateLimiter: NewRateLimiter(cfg.Server.RequestsPerWindow(), cfg.Server.RateWindow),
	}, nil
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.config.Server.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.log.Info().Str("addr", "http://"+s.httpServer.Addr).Msg("starting web UI")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the routed application with all middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	if s.config.Server.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(requestLogger(s.log))
	r.Use(s.recoverer)
	r.Use(middleware.Compress(5))
	r.Use(securityHeaders)

	if s.config.Server.CSRFEnabled() {
		port := s.config.Server.Port
		r.Use(plaintextCSRF)
		r.Use(csrfUnlessAPIClient(csrf.Protect(
			s.csrfKey,
			csrf.CookieName(csrfCookieName),
			csrf.Secure(false), // Plain HTTP on the loopback listener
			csrf.Path("/"),
			csrf.HttpOnly(true),
			csrf.SameSite(csrf.SameSiteStrictMode),
			csrf.RequestHeader("X-CSRF-Token"),
			csrf.TrustedOrigins([]string{
				fmt.Sprintf("localhost:%d", port),
				fmt.Sprintf("127.0.0.1:%d", port),
			}),
			csrf.ErrorHandler(http.HandlerFunc(s.handleCSRFFailure)),
		)))
	}

	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleMethodNotAllowed)

	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// Routes
	r.Get("/", s.handleIndex)
	r.Get("/healthz", handleHealthz)
	r.Get("/diag", s.handleDiag)
	r.With(s.rateLimit).Post("/processar_email", s.handleProcessEmail)

	return r
}
