package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stablebond/native/stable"
	"stablebond/observability/metrics"
	"stablebond/services/stabled/indexer"
	"stablebond/services/stabled/storage"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	RateLimit     RateLimit
}

// FeedReader exposes the latest aggregated oracle readings.
type FeedReader interface {
	Snapshot(feed string) (storage.Snapshot, bool)
}

// EventLister serves indexed engine events.
type EventLister interface {
	List(ctx context.Context, q indexer.Query) ([]indexer.Record, error)
}

// KYCRegistry records depositor eligibility.
type KYCRegistry interface {
	SetKYC(ctx context.Context, account common.Address, verified bool, reference string, now time.Time) error
}

// Runtime bundles the components the handlers operate on. Only Engine is
// required; routes backed by a nil component answer 501.
type Runtime struct {
	Engine  *stable.Engine
	Feeds   FeedReader
	Events  EventLister
	KYC     KYCRegistry
	Now     func() time.Time
	Limiter *RateLimiter
}

// Server hosts the stabled HTTP API.
type Server struct {
	cfg     Config
	engine  *stable.Engine
	feeds   FeedReader
	events  EventLister
	kyc     KYCRegistry
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger
	now     func() time.Time
}

// New constructs a new HTTP server.
func New(cfg Config, rt Runtime, auth *Authenticator, logger *slog.Logger) (*Server, error) {
	if rt.Engine == nil {
		return nil, fmt.Errorf("engine required")
	}
	if auth == nil {
		return nil, fmt.Errorf("authenticator required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":7081"
	}
	srv := &Server{
		cfg:     cfg,
		engine:  rt.Engine,
		feeds:   rt.Feeds,
		events:  rt.Events,
		kyc:     rt.KYC,
		auth:    auth,
		limiter: rt.Limiter,
		logger:  logger,
		now:     rt.Now,
	}
	if srv.limiter == nil {
		srv.limiter = NewRateLimiter(cfg.RateLimit)
	}
	if srv.now == nil {
		srv.now = time.Now
	}
	return srv, nil
}

// Handler returns the routed API wrapped in tracing.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/protocol", s.handleProtocol)
		r.Get("/assets", s.handleAssets)
		r.Get("/bonds", s.handleBonds)
		r.Get("/bonds/{bond}", s.handleBond)
		r.Get("/feeds/{feed}", s.handleFeed)

		r.Route("/assets/{asset}", func(r chi.Router) {
			r.Get("/", s.handleAsset)
			r.Get("/shares", s.handleShares)
			r.Get("/shares/{depositor}", s.handleShare)
			r.Get("/events", s.handleEvents)

			r.Group(func(r chi.Router) {
				r.Use(s.auth.Middleware())
				r.With(s.limiter.Middleware("mint")).Post("/mint", s.handleMint)
				r.With(s.limiter.Middleware("burn")).Post("/burn", s.handleBurn)
			})
			r.Group(func(r chi.Router) {
				r.Use(s.auth.Middleware(ScopeCollector))
				r.Post("/rebase", s.handleRebase)
				r.Post("/rate", s.handleRefreshRate)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.Middleware(ScopeAdmin))
			r.Patch("/protocol", s.handleUpdateProtocol)
			r.Post("/protocol/pause", s.handleProtocolPause(true))
			r.Post("/protocol/resume", s.handleProtocolPause(false))
			r.Post("/assets", s.handleCreateAsset)
			r.Patch("/assets/{asset}", s.handleUpdateAsset)
			r.Post("/assets/{asset}/pause", s.handleAssetPause(true))
			r.Post("/assets/{asset}/resume", s.handleAssetPause(false))
			r.Post("/bonds", s.handleAddBond)
			r.Patch("/bonds/{bond}", s.handleUpdateBond)
			r.Delete("/bonds/{bond}", s.handleRemoveBond)
			r.Post("/kyc", s.handleKYC)
		})
	})

	return otelhttp.NewHandler(r, "stabled.http",
		otelhttp.WithSpanNameFormatter(func(operation string, req *http.Request) string {
			return operation + " " + req.Method + " " + req.URL.Path
		}))
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("stabled: http server listening", "addr", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTP().Observe(route, status, time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{"error": message})
}

// writeEngineError maps an engine failure onto an HTTP status.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("stabled: request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}
