package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"cpswap/native/discount"
	"cpswap/native/fees"
	"cpswap/observability"
	"cpswap/services/discountd/audit"
	"cpswap/services/discountd/middleware"
)

// AuditScope is the token scope required to read the audit trail.
const AuditScope = "discount:audit"

// Ledger is the subset of the discount engine the HTTP layer drives.
type Ledger interface {
	Authorize(caller [20]byte) error
	CreateUserDiscount(ctx context.Context, payer, user [20]byte) (discount.Address, error)
	UpdateUserDiscount(ctx context.Context, req discount.UpdateRequest) error
	UserDiscount(ctx context.Context, user [20]byte) (discount.Address, discount.UserDiscount, error)
	EffectiveFee(ctx context.Context, user [20]byte, baseFee uint64) (fees.DiscountResult, error)
	Schedule() fees.Schedule
}

// ReplayGuard tracks signed update digests until they expire.
type ReplayGuard interface {
	Claim(digest []byte, expiry, now int64) (bool, error)
	Release(digest []byte) error
}

// History serves the audit trail. A nil History disables the endpoint.
type History interface {
	History(ctx context.Context, user [20]byte, limit int) ([]audit.Entry, error)
}

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress   string
	SignatureMaxAge time.Duration
	RateLimit       middleware.RateLimit
	Auth            middleware.AuthConfig
	// Replay must outlive the process so accepted updates cannot be
	// resubmitted after a restart.
	Replay ReplayGuard
}

// Server hosts the discount admin API.
type Server struct {
	cfg     Config
	ledger  Ledger
	history History
	logger  *slog.Logger
	metrics *observability.HTTPMetrics
	replay  ReplayGuard
	now     func() time.Time
	router  http.Handler
}

// New constructs the server and its router.
func New(cfg Config, ledger Ledger, history History, logger *slog.Logger) (*Server, error) {
	if ledger == nil {
		return nil, errors.New("discountd: ledger required")
	}
	if cfg.Replay == nil {
		return nil, errors.New("discountd: replay guard required")
	}
	if cfg.SignatureMaxAge <= 0 {
		return nil, errors.New("discountd: signature max age must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":7081"
	}
	srv := &Server{
		cfg:     cfg,
		ledger:  ledger,
		history: history,
		logger:  logger,
		metrics: observability.HTTP(),
		replay:  cfg.Replay,
		now:     time.Now,
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// SetNowFunc overrides the clock used to check signature expiry.
func (s *Server) SetNowFunc(now func() time.Time) {
	if s == nil || now == nil {
		return
	}
	s.now = now
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	limiter := middleware.NewRateLimiter(s.cfg.RateLimit, s.metrics, s.logger)
	auth := middleware.NewAuthenticator(s.cfg.Auth, s.logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.instrument)

	r.Method(http.MethodGet, "/healthz", otelhttp.NewHandler(http.HandlerFunc(s.handleHealth), "discountd.health"))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/discounts/{user}", func(dr chi.Router) {
		dr.Use(limiter.Middleware("discounts"))
		dr.Method(http.MethodGet, "/", otelhttp.NewHandler(http.HandlerFunc(s.handleGet), "discountd.get"))
		dr.Method(http.MethodPost, "/", otelhttp.NewHandler(http.HandlerFunc(s.handleCreate), "discountd.create"))
		dr.Method(http.MethodPut, "/", otelhttp.NewHandler(http.HandlerFunc(s.handleUpdate), "discountd.update"))
		dr.Method(http.MethodGet, "/fee", otelhttp.NewHandler(http.HandlerFunc(s.handleFee), "discountd.fee"))
		dr.With(auth.Middleware(AuditScope)).
			Method(http.MethodGet, "/history", otelhttp.NewHandler(http.HandlerFunc(s.handleHistory), "discountd.history"))
	})
	return r
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		elapsed := time.Since(start)
		s.metrics.Observe(route, r.Method, status, elapsed)
		s.logger.InfoContext(r.Context(), "discountd: request",
			"request_id", middleware.RequestIDFrom(r.Context()),
			"method", r.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds())
	})
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("discountd: http server listening", "address", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
