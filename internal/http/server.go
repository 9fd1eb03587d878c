// Package http exposes the ledger over a JSON API with chart and export
// downloads.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"speza/internal/log"
	"speza/internal/middleware/ratelimit"
	"speza/internal/middleware/security"
	"speza/internal/middleware/trace"
	"speza/internal/services"
)

// Options tunes NewServer. Zero values are usable.
type Options struct {
	Logger             *log.Logger
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	svc          *services.LedgerService
	logger       *log.Logger
	limiter      *ratelimit.Limiter
	detector     *security.Detector
	tracer       *trace.Middleware
	shutdownOnce sync.Once
}

// NewServer wires the routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, svc *services.LedgerService, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	limits := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		limits.RequestsPerMinute = opts.RateLimitPerMinute
	}

	detector := security.NewDetector()
	s := &Server{
		svc:      svc,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(limits),
		detector: detector,
		tracer:   trace.NewMiddleware(logger, detector.ExtractClientIP),
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.tracer.Middleware)
	r.Use(chimw.Recoverer)
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(s.detector.Middleware)
	r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Compress(5, "application/json", "text/csv"))

		r.Route("/api/transactions", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.Post("/", s.handleCreate)
			r.Put("/{index}", s.handleEdit)
			r.Post("/{index}/edit", s.handleEdit)
			r.Delete("/{index}", s.handleDelete)
			r.Post("/{index}/delete", s.handleDelete)
			r.Put("/id/{id}", s.handleEditByID)
			r.Delete("/id/{id}", s.handleDeleteByID)
		})
		r.Get("/api/dashboard", s.handleDashboard)
		r.Post("/clear_data", s.handleClear)
		r.Get("/export/transactions.csv", s.handleExport(services.FormatCSV))
		r.Get("/export/transactions.xlsx", s.handleExport(services.FormatXLSX))
	})

	r.Get("/charts/expenses.png", s.handleChart(services.ChartExpenses))
	r.Get("/charts/monthly.png", s.handleChart(services.ChartMonthly))

	return r
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded, try again later"})
}

// Shutdown stops background cleanup and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready once the ledger can be read.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := s.svc.List(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Readiness check failed", log.FieldError, err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
