// Package server exposes the admin and trading HTTP API. Read endpoints are
// open; everything that moves collateral or drives the lifecycle sits behind
// the API key.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tdeu/truthmarket/internal/dispute"
	"github.com/tdeu/truthmarket/internal/domain"
	"github.com/tdeu/truthmarket/internal/lifecycle"
	"github.com/tdeu/truthmarket/internal/monitor"
	"github.com/tdeu/truthmarket/internal/pricing"
	"github.com/tdeu/truthmarket/internal/syncer"
)

// Config holds HTTP server parameters.
type Config struct {
	Port        int
	APIKey      string
	CORSOrigins []string
}

// Server wires the engine's services onto HTTP routes.
type Server struct {
	cfg         Config
	engine      *pricing.Engine
	lifecycle   *lifecycle.Service
	disputeSvc  *dispute.Service
	monitor     *monitor.Monitor
	syncer      *syncer.Syncer
	ledger      domain.Ledger
	markets     domain.MarketStore
	resolutions domain.ResolutionStore
	disputes    domain.DisputeStore
	audit       domain.AuditStore
	logger      *slog.Logger

	httpServer *http.Server
}

// New creates a Server.
func New(
	cfg Config,
	engine *pricing.Engine,
	lifecycleSvc *lifecycle.Service,
	disputeSvc *dispute.Service,
	mon *monitor.Monitor,
	sync *syncer.Syncer,
	ldg domain.Ledger,
	markets domain.MarketStore,
	resolutions domain.ResolutionStore,
	disputes domain.DisputeStore,
	audit domain.AuditStore,
	logger *slog.Logger,
) *Server {
	s := &Server{
		cfg:         cfg,
		engine:      engine,
		lifecycle:   lifecycleSvc,
		disputeSvc:  disputeSvc,
		monitor:     mon,
		syncer:      sync,
		ledger:      ldg,
		markets:     markets,
		resolutions: resolutions,
		disputes:    disputes,
		audit:       audit,
		logger:      logger.With(slog.String("component", "http_server")),
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// routes assembles the mux. Mutating routes require the API key.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)

	mux.HandleFunc("GET /api/v1/markets", s.handleListMarkets)
	mux.HandleFunc("GET /api/v1/markets/{id}", s.handleGetMarket)
	mux.HandleFunc("GET /api/v1/markets/{id}/quote", s.handleQuote)
	mux.HandleFunc("GET /api/v1/markets/{id}/disputes", s.handleListDisputes)
	mux.HandleFunc("GET /api/v1/markets/{id}/positions/{account}", s.handleGetPosition)

	protected := func(h http.HandlerFunc) http.Handler {
		return withAuth(s.cfg.APIKey, h)
	}
	mux.Handle("POST /api/v1/markets", protected(s.handleCreateMarket))
	mux.Handle("POST /api/v1/markets/{id}/approve", protected(s.handleApproveMarket))
	mux.Handle("POST /api/v1/markets/{id}/cancel", protected(s.handleCancelMarket))
	mux.Handle("POST /api/v1/markets/{id}/buy", protected(s.handleBuy))
	mux.Handle("POST /api/v1/markets/{id}/sell", protected(s.handleSell))
	mux.Handle("POST /api/v1/markets/{id}/transfer", protected(s.handleTransfer))
	mux.Handle("POST /api/v1/markets/{id}/redeem", protected(s.handleRedeem))
	mux.Handle("POST /api/v1/markets/{id}/disputes", protected(s.handleSubmitDispute))
	mux.Handle("POST /api/v1/markets/{id}/finalize", protected(s.handleFinalizeMarket))
	mux.Handle("POST /api/v1/disputes/{id}/validate", protected(s.handleValidateDispute))
	mux.Handle("POST /api/v1/disputes/{id}/resolve", protected(s.handleResolveDispute))
	mux.Handle("POST /api/v1/sync", protected(s.handleTriggerSync))
	mux.Handle("GET /api/v1/audit", protected(s.handleListAudit))

	return withLogging(s.logger, withCORS(s.cfg.CORSOrigins, mux))
}

// Run serves until ctx is canceled, then drains with a grace period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "http server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return ctx.Err()
}
