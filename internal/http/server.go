// Package http exposes the sales dashboard operations as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"pilotage/internal/auth"
	"pilotage/internal/cache"
	"pilotage/internal/core"
	"pilotage/internal/log"
	"pilotage/internal/services"
)

// SalesAPI is the part of services.SalesService the handlers use.
type SalesAPI interface {
	Load(ctx context.Context) (core.Dataset, error)
	Summary(ctx context.Context, q core.SummaryQuery) (core.MonthlyTable, error)
	KPI(ctx context.Context, q services.KPIQuery) (core.KPI, error)
	Catalog(ctx context.Context) (services.Catalog, error)
	AppendRecord(ctx context.Context, r core.SalesRecord) (services.MutationResult, error)
	DeleteAt(ctx context.Context, pos int) (services.MutationResult, error)
	DeleteLast(ctx context.Context) (services.MutationResult, error)
	DeleteMatching(ctx context.Context, key core.RecordKey) (services.MutationResult, error)
	InitializeOutlet(ctx context.Context, name string) (services.MutationResult, error)
}

// SessionGate checks the shared access password and the sessions it opens.
type SessionGate interface {
	Login(password string) (auth.Session, error)
	Validate(token string) (auth.Session, error)
	Logout(token string)
}

// Options tune a Server. Zero values are usable.
type Options struct {
	// RequestsPerMinute bounds mutating requests per client IP.
	RequestsPerMinute int
	// Ready, when set, backs /readyz.
	Ready         func(ctx context.Context) error
	SecureCookies bool
	Logger        *log.Logger
}

// Server is the HTTP entry point of the dashboard.
type Server struct {
	http.Server
	sales         SalesAPI
	gate          SessionGate
	ready         func(ctx context.Context) error
	rateLimiter   *rateLimiter
	secureCookies bool
	logger        *log.Logger
	structured    *log.StructuredLogger
	now           func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, sales SalesAPI, gate SessionGate, opts Options) *Server {
	logger := log.OrDiscard(opts.Logger).WithComponent(log.ComponentHTTP)
	s := &Server{
		sales:         sales,
		gate:          gate,
		ready:         opts.Ready,
		rateLimiter:   newRateLimiter(opts.RequestsPerMinute),
		secureCookies: opts.SecureCookies,
		logger:        logger,
		structured:    log.NewStructuredLogger(logger),
		now:           time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/session", s.handleLogin)
	mux.HandleFunc("DELETE /api/session", s.handleLogout)

	mux.Handle("GET /api/catalog", s.protected(s.handleCatalog))
	mux.Handle("GET /api/summary", s.protected(s.handleSummary))
	mux.Handle("GET /api/kpi", s.protected(s.handleKPI))
	mux.Handle("GET /api/records", s.protected(s.handleListRecords))
	mux.Handle("POST /api/records", s.protected(s.handleAppendRecord))
	mux.Handle("DELETE /api/records/last", s.protected(s.handleDeleteLast))
	mux.Handle("DELETE /api/records/{position}", s.protected(s.handleDeleteAt))
	mux.Handle("POST /api/records/delete-matching", s.protected(s.handleDeleteMatching))
	mux.Handle("POST /api/outlets", s.protected(s.handleInitializeOutlet))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// RateLimiter exposes the per-client limiter so idle clients can be swept.
func (s *Server) RateLimiter() cache.Cleaner {
	return s.rateLimiter
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContextOr(r.Context(), s.logger).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			writeErrorCode(w, http.StatusServiceUnavailable, CodeStoreUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
