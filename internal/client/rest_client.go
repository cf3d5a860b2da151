// Package client is a REST client for the simulator API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"virtual-trading-sim/internal/config"
	"virtual-trading-sim/internal/models"
	"virtual-trading-sim/internal/portfolio"
	"virtual-trading-sim/internal/pricefeed"
	"virtual-trading-sim/internal/trading"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	maxRetries = 3
	userHeader = "X-User-ID"
)

// APIError is a non-retryable error answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
}

// envelope mirrors the server's {success, message, data} reply.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// RestClient talks to the simulator on behalf of one user.
type RestClient struct {
	client  *resty.Client
	userID  uint64
	logger  *zap.Logger
	limiter *rate.Limiter
	backoff func(attempt int) time.Duration
}

// NewRestClient creates a new simulator REST client.
func NewRestClient(cfg *config.Client, logger *zap.Logger) *RestClient {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}

	return &RestClient{
		client:  resty.New().SetBaseURL(cfg.BaseURL).SetHeader("Accept", "application/json"),
		userID:  cfg.UserID,
		logger:  logger.Named("client"),
		limiter: rate.NewLimiter(limit, burst),
		backoff: exponentialBackoff,
	}
}

// exponentialBackoff waits 1s, 2s, 4s...
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

func (c *RestClient) request(ctx context.Context) *resty.Request {
	req := c.client.R().SetContext(ctx)
	if c.userID != 0 {
		req.SetHeader(userHeader, strconv.FormatUint(c.userID, 10))
	}
	return req
}

// doRequest executes req with rate limiting, retrying throttled, server-side
// and network failures. Any other error status is returned as *APIError.
func (c *RestClient) doRequest(ctx context.Context, method, path string, req *resty.Request) (*envelope, error) {
	var (
		resp *resty.Response
		err  error
	)

	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("path", path))
		resp, err = req.Execute(method, path)

		var retryAfter time.Duration
		if err == nil {
			status := resp.StatusCode()
			switch {
			case status < 300:
				return decodeEnvelope(resp)
			case status == http.StatusTooManyRequests:
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			case status < 500:
				env, decodeErr := decodeEnvelope(resp)
				if decodeErr != nil {
					return nil, &APIError{Status: status, Message: resp.String()}
				}
				return env, &APIError{Status: status, Message: env.Message}
			}
			err = fmt.Errorf("server answered %s", resp.Status())
		} else if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if i == maxRetries-1 {
			break
		}
		if retryAfter == 0 {
			retryAfter = c.backoff(i)
		}
		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

func decodeEnvelope(resp *resty.Response) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &env, nil
}

func (c *RestClient) get(ctx context.Context, path string, query url.Values, out any) error {
	req := c.request(ctx)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	env, err := c.doRequest(ctx, http.MethodGet, path, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Health checks that the simulator is up.
func (c *RestClient) Health(ctx context.Context) error {
	if _, err := c.doRequest(ctx, http.MethodGet, "/health", c.request(ctx)); err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}
	return nil
}

// OpenAccount funds the client's account with capital.
func (c *RestClient) OpenAccount(ctx context.Context, capital decimal.Decimal) (*models.Account, error) {
	req := c.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]decimal.Decimal{"initialCapital": capital})

	env, err := c.doRequest(ctx, http.MethodPost, "/api/accounts", req)
	if err != nil {
		return nil, fmt.Errorf("failed to open account: %w", err)
	}
	var account models.Account
	if err := json.Unmarshal(env.Data, &account); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	return &account, nil
}

// TradeRequest is an order as the API accepts it. Symbol is used when
// InstrumentID is zero.
type TradeRequest struct {
	InstrumentID uint             `json:"instrumentId,omitempty"`
	Symbol       string           `json:"symbol,omitempty"`
	Side         string           `json:"side"`
	OrderType    string           `json:"orderType,omitempty"`
	Quantity     decimal.Decimal  `json:"quantity"`
	LimitPrice   *decimal.Decimal `json:"limitPrice,omitempty"`
}

// ExecuteTrade places an order. A business rejection (insufficient cash or
// holdings) comes back as a result with Success false and a nil error.
func (c *RestClient) ExecuteTrade(ctx context.Context, trade TradeRequest) (*trading.ExecutionResult, error) {
	req := c.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(trade)

	env, err := c.doRequest(ctx, http.MethodPost, "/api/trade/execute", req)
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnprocessableEntity || env == nil {
			c.logger.Error("Failed to execute trade", zap.Error(err), zap.String("symbol", trade.Symbol))
			return nil, fmt.Errorf("failed to execute trade: %w", err)
		}
	}

	var result trading.ExecutionResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return nil, fmt.Errorf("decode execution result: %w", err)
	}
	return &result, nil
}

// Portfolio returns the valued portfolio.
func (c *RestClient) Portfolio(ctx context.Context) (*portfolio.View, error) {
	var view portfolio.View
	if err := c.get(ctx, "/api/portfolio", nil, &view); err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	return &view, nil
}

// History returns one page of trades, newest first.
func (c *RestClient) History(ctx context.Context, page, size int) (*portfolio.HistoryPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("size", strconv.Itoa(size))

	var history portfolio.HistoryPage
	if err := c.get(ctx, "/api/portfolio/history", query, &history); err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	return &history, nil
}

// Statistics returns realized P&L statistics.
func (c *RestClient) Statistics(ctx context.Context) (*portfolio.PnLSummary, error) {
	var summary portfolio.PnLSummary
	if err := c.get(ctx, "/api/portfolio/statistics", nil, &summary); err != nil {
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}
	return &summary, nil
}

// Verify asks the server to replay the journal against stored balances.
// A disagreement is reported as consistent == false with the server's detail.
func (c *RestClient) Verify(ctx context.Context) (consistent bool, detail string, err error) {
	env, err := c.doRequest(ctx, http.MethodGet, "/api/portfolio/verify", c.request(ctx))
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict && env != nil {
		var body struct {
			Detail string `json:"detail"`
		}
		_ = json.Unmarshal(env.Data, &body)
		return false, body.Detail, nil
	}
	if err != nil {
		return false, "", fmt.Errorf("failed to verify ledger: %w", err)
	}
	return true, "", nil
}

// Prices returns the current price of every active instrument by id.
func (c *RestClient) Prices(ctx context.Context) (map[uint]decimal.Decimal, error) {
	var prices map[uint]decimal.Decimal
	if err := c.get(ctx, "/api/market/prices", nil, &prices); err != nil {
		return nil, fmt.Errorf("failed to get prices: %w", err)
	}
	return prices, nil
}

// Instruments lists active instruments, optionally filtered by kind and a search term.
func (c *RestClient) Instruments(ctx context.Context, kind, search string) ([]models.Instrument, error) {
	query := url.Values{}
	if kind != "" {
		query.Set("kind", kind)
	}
	if search != "" {
		query.Set("search", search)
	}

	var instruments []models.Instrument
	if err := c.get(ctx, "/api/market/instruments", query, &instruments); err != nil {
		return nil, fmt.Errorf("failed to list instruments: %w", err)
	}
	return instruments, nil
}

// Movers returns the n instruments that moved most from their base price.
func (c *RestClient) Movers(ctx context.Context, n int) ([]pricefeed.Quote, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(n))

	var movers []pricefeed.Quote
	if err := c.get(ctx, "/api/market/movers", query, &movers); err != nil {
		return nil, fmt.Errorf("failed to get movers: %w", err)
	}
	return movers, nil
}
