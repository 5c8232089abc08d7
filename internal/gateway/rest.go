// Package gateway exposes the metered-API companion service: user
// registration, balance reads, the service listings catalog and the paid
// query flow that issues a request-scoped credential after an atomic debit.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"deposit-bridge-go/internal/ledger"
	"deposit-bridge-go/internal/listings"
	"deposit-bridge-go/internal/models"
)

// Server is the gateway HTTP front end.
type Server struct {
	ledger   *ledger.Transactor
	listings *listings.Registry
	creds    *CredentialIssuer
	srv      *http.Server
}

// NewServer wires the router and handlers.
func NewServer(cfg models.GatewayConfig, t *ledger.Transactor, reg *listings.Registry) *Server {
	s := &Server{
		ledger:   t,
		listings: reg,
		creds:    NewCredentialIssuer(cfg.CredentialTTL),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/v1/users", s.handleRegisterUser).Methods(http.MethodPost)
	r.HandleFunc("/v1/users/{address}/balance", s.handleBalance).Methods(http.MethodGet)
	r.HandleFunc("/v1/services", s.handleListServices).Methods(http.MethodGet)
	r.HandleFunc("/v1/services/{id}/query", s.handleQuery).Methods(http.MethodPost)

	s.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Start serves until Shutdown is called; it returns the terminal error from
// the listener (http.ErrServerClosed on clean shutdown).
func (s *Server) Start() error {
	zap.L().Info("Gateway listening", zap.String("addr", s.srv.Addr))
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
