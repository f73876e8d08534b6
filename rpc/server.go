package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"grantchain/core"
	"grantchain/core/types"
	"grantchain/indexer"
	"grantchain/native/allocations"
	"grantchain/native/membership"
)

// Ledger is the read side of the runtime served by the API.
type Ledger interface {
	Height() (uint64, error)
	Account(addr [20]byte) (*types.AccountView, error)
	Members(role membership.Role) ([][20]byte, error)
	AllocationStats() (*core.AllocationStats, error)
	Allocation(seq uint64) (*allocations.Record, error)
	Grant(addr [20]byte, at *uint64) (*core.GrantView, error)
	Grantees() ([][20]byte, error)
}

// AuditLog serves indexed allocation history.
type AuditLog interface {
	Allocations(grantee string) ([]indexer.Allocation, error)
}

// Config tunes the server. Optional parts stay disabled when nil: Audit
// without an indexer, Events without a hub, and the call API unless both
// Submitter and Auth.Secret are set.
type Config struct {
	RateLimit RateLimit
	// Tracing wraps the router with otelhttp.
	Tracing   bool
	Audit     AuditLog
	Events    *EventHub
	Submitter Submitter
	Auth      AuthConfig
}

// Server is the HTTP API: read-only queries plus the authenticated call
// endpoints.
type Server struct {
	ledger    Ledger
	audit     AuditLog
	hub       *EventHub
	submitter Submitter
	logger    *slog.Logger
	handler   http.Handler
	http      *http.Server
}

// NewServer builds the router.
func NewServer(ledger Ledger, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ledger:    ledger,
		audit:     cfg.Audit,
		hub:       cfg.Events,
		submitter: cfg.Submitter,
		logger:    logger.With("component", "rpc"),
	}
	auth := NewAuthenticator(cfg.Auth)

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(s.logger))
	r.Use(NewRateLimiter(cfg.RateLimit).Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/allocations", s.handleAllocationStats)
		r.Get("/allocations/{seq}", s.handleAllocation)
		r.Get("/members/{role}", s.handleMembers)
		r.Get("/accounts/{address}", s.handleAccount)
		r.Get("/grants", s.handleGrantees)
		r.Get("/grants/{address}", s.handleGrant)
		r.Get("/audit/allocations/{address}", s.handleAuditAllocations)
		r.Get("/events/ws", s.handleEventsWS)
		if auth != nil && s.submitter != nil {
			r.Route("/calls", func(r chi.Router) {
				r.Use(auth.Middleware)
				s.mountCalls(r)
			})
		}
	})

	var handler http.Handler = r
	if cfg.Tracing {
		handler = otelhttp.NewHandler(r, "grantchain.rpc")
	}
	s.handler = handler
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info("query api listening", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
