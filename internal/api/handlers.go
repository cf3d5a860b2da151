package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"virtual-trading-sim/internal/ledger"
	"virtual-trading-sim/internal/models"
	"virtual-trading-sim/internal/trading"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.ok(w, map[string]any{
		"status":      "UP",
		"instruments": len(s.deps.Market.Quotes()),
	})
}

type openAccountRequest struct {
	InitialCapital decimal.Decimal `json:"initialCapital"`
}

func (s *Server) openAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	account, err := s.deps.Trader.OpenAccount(r.Context(), userFrom(r.Context()), req.InitialCapital)
	if err != nil {
		s.failErr(w, err)
		return
	}
	s.respond(w, http.StatusCreated, true, "account opened", account)
}

type tradeRequest struct {
	InstrumentID uint             `json:"instrumentId"`
	Symbol       string           `json:"symbol"`
	Side         string           `json:"side"`
	OrderType    string           `json:"orderType"`
	Quantity     decimal.Decimal  `json:"quantity"`
	LimitPrice   *decimal.Decimal `json:"limitPrice"`
}

func (s *Server) executeHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	side, err := models.ParseSide(req.Side)
	if err != nil {
		s.failErr(w, err)
		return
	}
	kind, err := models.ParseOrderKind(req.OrderType)
	if err != nil {
		s.failErr(w, err)
		return
	}

	instrumentID := req.InstrumentID
	if instrumentID == 0 {
		if req.Symbol == "" {
			s.fail(w, http.StatusBadRequest, "instrumentId or symbol is required")
			return
		}
		instrument, err := s.deps.Instruments.GetInstrumentBySymbol(ctx, strings.ToUpper(req.Symbol))
		if err != nil {
			s.failErr(w, err)
			return
		}
		instrumentID = instrument.ID
	}

	result, err := s.deps.Trader.Execute(ctx, trading.Order{
		UserID:       userFrom(ctx),
		InstrumentID: instrumentID,
		Side:         side,
		Kind:         kind,
		Quantity:     req.Quantity,
		LimitPrice:   req.LimitPrice,
	})
	if err != nil && result == nil {
		s.failErr(w, err)
		return
	}
	s.respond(w, statusOf(result.Outcome), result.Success, result.Message, result)
}

func (s *Server) portfolioHandler(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Portfolios.Project(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.failErr(w, err)
		return
	}
	s.ok(w, view)
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	page, err := intParam(r, "page")
	if err != nil {
		s.failErr(w, err)
		return
	}
	size, err := intParam(r, "size")
	if err != nil {
		s.failErr(w, err)
		return
	}

	history, err := s.deps.Portfolios.History(r.Context(), userFrom(r.Context()), page, size)
	if err != nil {
		s.failErr(w, err)
		return
	}
	s.ok(w, history)
}

func (s *Server) statisticsHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := s.deps.Portfolios.Summary(r.Context(), userFrom(r.Context()), s.now())
	if err != nil {
		s.failErr(w, err)
		return
	}
	s.ok(w, summary)
}

type verifyResponse struct {
	Consistent  bool            `json:"consistent"`
	Detail      string          `json:"detail,omitempty"`
	Cash        decimal.Decimal `json:"cash"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	Positions   int             `json:"positions"`
}

func (s *Server) verifyHandler(w http.ResponseWriter, r *http.Request) {
	userID := userFrom(r.Context())
	state, err := s.deps.Trader.Verify(r.Context(), userID)
	switch {
	case errors.Is(err, trading.ErrLedgerDrift):
		s.logger.Warn("Ledger drift detected", zap.Uint64("user_id", userID), zap.Error(err))
		s.respond(w, http.StatusConflict, false, "journal and balances disagree", verifyResponse{Detail: err.Error()})
	case err != nil:
		s.failErr(w, err)
	default:
		s.ok(w, verifyResponse{
			Consistent:  true,
			Cash:        state.Cash,
			RealizedPnL: state.RealizedPnL,
			Positions:   len(state.Positions),
		})
	}
}

func (s *Server) pricesHandler(w http.ResponseWriter, r *http.Request) {
	s.ok(w, s.deps.Market.Prices())
}

func (s *Server) instrumentsHandler(w http.ResponseWriter, r *http.Request) {
	filter := ledger.InstrumentFilter{
		Search:     strings.TrimSpace(r.URL.Query().Get("search")),
		ActiveOnly: true,
	}
	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind, err := models.ParseInstrumentKind(raw)
		if err != nil {
			s.failErr(w, err)
			return
		}
		filter.Kind = kind
	}

	instruments, err := s.deps.Instruments.ListInstruments(r.Context(), filter)
	if err != nil {
		s.failErr(w, err)
		return
	}
	s.ok(w, instruments)
}

func (s *Server) instrumentHandler(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	instrument, err := s.deps.Instruments.GetInstrumentBySymbol(r.Context(), symbol)
	if err != nil {
		s.failErr(w, err)
		return
	}
	s.ok(w, instrument)
}

func (s *Server) moversHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		s.failErr(w, err)
		return
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}
	s.ok(w, s.deps.Market.Movers(limit))
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", models.ErrInvalidOrder, name)
	}
	return v, nil
}
