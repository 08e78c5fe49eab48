// Package api exposes the classification and cash lifecycle over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fintrax/pettyflow/internal/auth"
	"github.com/fintrax/pettyflow/internal/disburse"
	"github.com/fintrax/pettyflow/internal/engine"
	"github.com/fintrax/pettyflow/internal/ledger"
	"github.com/fintrax/pettyflow/internal/storage"
	"github.com/fintrax/pettyflow/internal/voucher"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr      string
	JWTSecret string
}

// Server wires the domain services behind a gorilla/mux router. Every
// /api/v1 route requires a bearer token; /metrics and /healthz do not.
type Server struct {
	store     *storage.SQLiteStorage
	engine    *engine.Engine
	lifecycle *disburse.Service
	cashbook  *ledger.Cashbook
	poster    *voucher.Poster
	logger    *slog.Logger
	httpSrv   *http.Server
}

// NewServer assembles the router and returns a server ready to listen.
func NewServer(
	cfg Config,
	store *storage.SQLiteStorage,
	eng *engine.Engine,
	lifecycle *disburse.Service,
	cashbook *ledger.Cashbook,
	poster *voucher.Poster,
	logger *slog.Logger,
) *Server {
	s := &Server{
		store:     store,
		engine:    eng,
		lifecycle: lifecycle,
		cashbook:  cashbook,
		poster:    poster,
		logger:    logger,
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	authed := router.PathPrefix("/api/v1").Subrouter()
	authed.Use(auth.NewMiddleware([]byte(cfg.JWTSecret)).Wrap)
	authed.Use(s.logRequests)

	authed.HandleFunc("/classify", s.handleClassifySingle).Methods(http.MethodPost)
	authed.HandleFunc("/classify/batch", s.handleClassifyBatch).Methods(http.MethodPost)

	authed.HandleFunc("/requisitions", s.handleCreateRequisition).Methods(http.MethodPost)
	authed.HandleFunc("/requisitions/{id}", s.handleGetRequisition).Methods(http.MethodGet)
	authed.HandleFunc("/requisitions/{id}/submit", s.handleSubmitRequisition).Methods(http.MethodPost)
	authed.HandleFunc("/requisitions/{id}/authorise", s.handleAuthoriseRequisition).Methods(http.MethodPost)
	authed.HandleFunc("/requisitions/{id}/reject", s.handleRejectRequisition).Methods(http.MethodPost)
	authed.HandleFunc("/requisitions/{id}/accounts", s.handleConfirmAccount).Methods(http.MethodPost)
	authed.HandleFunc("/requisitions/{id}/disburse", s.handleDisburse).Methods(http.MethodPost)
	authed.HandleFunc("/requisitions/{id}/receive", s.handleAcknowledgeReceipt).Methods(http.MethodPost)
	authed.HandleFunc("/requisitions/{id}/expenses", s.handleTrackExpenses).Methods(http.MethodPost)
	authed.HandleFunc("/requisitions/{id}/change", s.handleSubmitChange).Methods(http.MethodPost)
	authed.HandleFunc("/requisitions/{id}/change/confirm", s.handleConfirmChange).Methods(http.MethodPost)
	authed.HandleFunc("/requisitions/{id}/voucher", s.handleVoucherPost).Methods(http.MethodPost)

	authed.HandleFunc("/cashbook/balance", s.handleBalance).Methods(http.MethodGet)
	authed.HandleFunc("/cashbook/entries", s.handleEntries).Methods(http.MethodGet)
	authed.HandleFunc("/cashbook/inflow", s.handleCashInflow).Methods(http.MethodPost)
	authed.HandleFunc("/cashbook/reconcile", s.handleReconcile).Methods(http.MethodPost)
	authed.HandleFunc("/cashbook/close", s.handleCloseBook).Methods(http.MethodPost)

	s.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.httpSrv.Addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// logRequests logs each authenticated request with its actor.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		}
		if actor, ok := auth.ActorFromContext(r.Context()); ok {
			attrs = append(attrs, "actor_id", actor.ID, "role", actor.Role)
		}
		s.logger.Debug("request handled", attrs...)
	})
}
