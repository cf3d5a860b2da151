// Package api exposes the trading core over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"virtual-trading-sim/internal/config"
	"virtual-trading-sim/internal/ledger"
	"virtual-trading-sim/internal/models"
	"virtual-trading-sim/internal/portfolio"
	"virtual-trading-sim/internal/pricefeed"
	"virtual-trading-sim/internal/trading"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Trader executes orders and manages accounts.
type Trader interface {
	Execute(ctx context.Context, order trading.Order) (*trading.ExecutionResult, error)
	OpenAccount(ctx context.Context, userID uint64, capital decimal.Decimal) (*models.Account, error)
	Verify(ctx context.Context, userID uint64) (*trading.ReplayState, error)
}

// Portfolios serves read-only account views.
type Portfolios interface {
	Project(ctx context.Context, userID uint64) (*portfolio.View, error)
	History(ctx context.Context, userID uint64, page, size int) (*portfolio.HistoryPage, error)
	Summary(ctx context.Context, userID uint64, now time.Time) (*portfolio.PnLSummary, error)
}

// Market serves simulated prices.
type Market interface {
	Prices() map[uint]decimal.Decimal
	Quotes() []pricefeed.Quote
	Movers(n int) []pricefeed.Quote
}

// Instruments looks up the catalog.
type Instruments interface {
	ListInstruments(ctx context.Context, filter ledger.InstrumentFilter) ([]models.Instrument, error)
	GetInstrumentBySymbol(ctx context.Context, symbol string) (*models.Instrument, error)
}

// Deps are the components the API serves. Stream is optional.
type Deps struct {
	Trader      Trader
	Portfolios  Portfolios
	Market      Market
	Instruments Instruments
	Stream      http.Handler
}

// Server provides an HTTP interface for the simulator.
type Server struct {
	server  *http.Server
	deps    Deps
	logger  *zap.Logger
	limiter *userLimiter
	now     func() time.Time
}

// NewServer creates a new Server listening on cfg.Port.
func NewServer(logger *zap.Logger, cfg config.Server, deps Deps) *Server {
	s := &Server{
		deps:    deps,
		logger:  logger.Named("api"),
		limiter: newUserLimiter(cfg.RateLimit, cfg.RateLimitBurst),
		now:     func() time.Time { return time.Now().UTC() },
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	mux.Handle("POST /api/accounts", s.withUser(s.openAccountHandler))
	mux.Handle("POST /api/trade/execute", s.withUser(s.limited(s.executeHandler)))

	mux.Handle("GET /api/portfolio", s.withUser(s.portfolioHandler))
	mux.Handle("GET /api/portfolio/history", s.withUser(s.historyHandler))
	mux.Handle("GET /api/portfolio/statistics", s.withUser(s.statisticsHandler))
	mux.Handle("GET /api/portfolio/verify", s.withUser(s.verifyHandler))

	mux.HandleFunc("GET /api/market/prices", s.pricesHandler)
	mux.HandleFunc("GET /api/market/instruments", s.instrumentsHandler)
	mux.HandleFunc("GET /api/market/instruments/{symbol}", s.instrumentHandler)
	mux.HandleFunc("GET /api/market/movers", s.moversHandler)

	if s.deps.Stream != nil {
		mux.Handle("GET /ws/prices", s.deps.Stream)
	}

	return s.recoverer(s.logRequests(mux))
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

// Run serves until ctx is cancelled, then shuts down within ten seconds.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Stop(shutdownCtx)
}
