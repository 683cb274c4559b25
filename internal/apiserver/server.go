// Package apiserver exposes internal/api.Service over HTTP: a chi router
// with a standard middleware chain behind a graceful-shutdown-capable
// http.Server. It also serves the Prometheus /metrics endpoint and a
// JWT-backed admin session on top of the per-request SIWE signatures
// internal/api's mutating admin calls already require, so a browser
// dashboard doesn't need to re-sign every read-only request.
package apiserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chainrelay/publisher/internal/api"
	"github.com/chainrelay/publisher/internal/metrics"
)

// Server wraps an http.Server built around a chi router.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// Config is Server's construction-time configuration.
type Config struct {
	Addr        string
	ReadTimeout time.Duration
	JWTSecret   []byte // signs admin session tokens issued by POST /admin/login
}

// New builds the router and wraps it in an http.Server, not yet listening.
func New(cfg Config, svc *api.Service, metricsReg *metrics.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(zapRequestLogger(logger))
	r.Use(middleware.Recoverer)
	if cfg.ReadTimeout > 0 {
		r.Use(middleware.Timeout(cfg.ReadTimeout))
	}

	r.Get("/metrics", promhttp.HandlerFor(metricsReg.Gatherer(), promhttp.HandlerOpts{}).ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	sessions := newSessionIssuer(cfg.JWTSecret)

	h := &handlers{svc: svc, sessions: sessions, logger: logger}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/deposit", h.deposit)
		r.Post("/withdraw", h.withdraw)
		r.Post("/subscribe", h.subscribe)
		r.Post("/subscriptions/{chainID}/{subID}/stop", h.stopSubscription)
		r.Post("/subscriptions/{chainID}/{subID}/start", h.startSubscription)
		r.Post("/subscriptions/{chainID}/{subID}/gas-limit", h.updateGasLimit)
		r.Post("/subscriptions/stop-all", h.stopAllOwned)
		r.Post("/subscriptions/remove-all", h.removeAllOwned)
		r.Get("/balance/{chainID}/{address}", h.getBalance)

		r.Post("/admin/login", h.adminLogin)

		r.Group(func(r chi.Router) {
			r.Use(sessions.middleware)
			r.Get("/admin/subscriptions", h.listSubscriptions)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/chains", h.addChain)
			r.Delete("/chains/{chainID}", h.removeChain)
			r.Patch("/chains/{chainID}/rpc", h.updateChainRPC)
			r.Patch("/chains/{chainID}/min-balance", h.updateChainMinBalance)
			r.Patch("/tx-fee", h.updateTxFee)
			r.Patch("/subs-limit/wallet", h.updateSubsLimitWallet)
			r.Patch("/subs-limit/total", h.updateSubsLimitTotal)
			r.Patch("/timer-frequency", h.updateTimerFrequency)
			r.Post("/jobs/publisher", h.executePublisherJob)
			r.Post("/jobs/withdraw", h.executeWithdrawJob)
			r.Post("/timer/stop", h.stopTimer)
			r.Post("/balance/{chainID}/{address}/clear", h.clearBalance)
			r.Post("/balance/{chainID}/withdraw-fee", h.withdrawFee)
			r.Post("/balance/{chainID}/{address}/withdraw-all", h.withdrawAllBalance)
			r.Post("/whitelist/{address}", h.whitelistAdd)
			r.Delete("/whitelist/{address}", h.whitelistRemove)
			r.Post("/whitelist/{address}/blacklist", h.whitelistBlacklist)
			r.Post("/whitelist/{address}/unblacklist", h.whitelistUnblacklist)
		})
	})

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.ReadTimeout,
		},
		logger: logger,
	}
}

// Run listens until ctx is canceled, then drains in-flight requests for up
// to 10s before returning.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("apiserver listening", zap.String("addr", s.httpServer.Addr))
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
