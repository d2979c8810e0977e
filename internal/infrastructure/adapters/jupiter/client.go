package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	domainerrors "github.com/rebalance-service/rebalance_service/internal/domain/errors"
	"github.com/rebalance-service/rebalance_service/pkg/metrics"
)

const (
	defaultTimeout  = 30 * time.Second
	maxErrorBodyLen = 512
)

// Config represents Jupiter client configuration
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit int // requests per second
}

// Client is a Jupiter v6 HTTP client. It does not retry; every call is a fresh
// request and callers layer retries on top.
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	rateLimiter    *rate.Limiter
	logger         *zap.Logger
}

// NewClient creates a new Jupiter API client
func NewClient(config Config, logger *zap.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.RateLimit <= 0 {
		config.RateLimit = MaxRequestsPerSecond
	}

	cbSettings := gobreaker.Settings{
		Name:        "JupiterAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Jupiter circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &Client{
		config:         config,
		httpClient:     &http.Client{Timeout: config.Timeout},
		circuitBreaker: gobreaker.NewCircuitBreaker(cbSettings),
		rateLimiter:    rate.NewLimiter(rate.Limit(config.RateLimit), config.RateLimit),
		logger:         logger,
	}
}

// Quote fetches a route for an exact-in swap
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error) {
	params := url.Values{}
	params.Set("inputMint", req.InputMint)
	params.Set("outputMint", req.OutputMint)
	params.Set("amount", strconv.FormatInt(req.Amount, 10))
	params.Set("slippageBps", strconv.Itoa(req.SlippageBps))

	var resp QuoteResponse
	if err := c.doRequest(ctx, "quote", http.MethodGet, "/quote?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	c.logger.Info("Quote received",
		zap.String("input_mint", req.InputMint),
		zap.String("output_mint", req.OutputMint),
		zap.String("in_amount", resp.InAmount),
		zap.String("out_amount", resp.OutAmount),
		zap.Int("slippage_bps", req.SlippageBps))

	return &resp, nil
}

// Swap builds the swap transaction for a quote
func (c *Client) Swap(ctx context.Context, req SwapRequest) (*SwapResponse, error) {
	if req.QuoteResponse == nil {
		return nil, &domainerrors.UpstreamError{Op: "swap", Err: errors.New("missing quote")}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &domainerrors.UpstreamError{Op: "swap", Err: fmt.Errorf("marshal request: %w", err)}
	}

	var resp SwapResponse
	if err := c.doRequest(ctx, "swap", http.MethodPost, "/swap", body, &resp); err != nil {
		return nil, err
	}
	if resp.SwapTransaction == "" {
		return nil, &domainerrors.UpstreamError{Op: "swap", Err: errors.New("empty swap transaction")}
	}

	c.logger.Info("Swap transaction built", zap.String("user", req.UserPublicKey))
	return &resp, nil
}

// Close releases idle keep-alive connections
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) doRequest(ctx context.Context, op, method, endpoint string, body []byte, response interface{}) error {
	started := time.Now()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		metrics.RecordAggregatorRequest(op, "rate_limited", started)
		return &domainerrors.UpstreamError{Op: op, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, c.doRequestInternal(ctx, op, method, endpoint, body, response)
	})
	if err == nil {
		metrics.RecordAggregatorRequest(op, "ok", started)
		return nil
	}

	var upstream *domainerrors.UpstreamError
	if !errors.As(err, &upstream) {
		// breaker open or too many half-open requests
		upstream = &domainerrors.UpstreamError{Op: op, Err: err}
	}
	status := "error"
	if upstream.StatusCode != 0 {
		status = strconv.Itoa(upstream.StatusCode)
	}
	metrics.RecordAggregatorRequest(op, status, started)
	return upstream
}

func (c *Client) doRequestInternal(ctx context.Context, op, method, endpoint string, body []byte, response interface{}) error {
	fullURL := c.config.BaseURL + endpoint

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return &domainerrors.UpstreamError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Jupiter API request failed", zap.String("op", op), zap.Error(err))
		return &domainerrors.UpstreamError{Op: op, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domainerrors.UpstreamError{Op: op, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("Jupiter API error",
			zap.String("op", op),
			zap.String("method", method),
			zap.Int("status", resp.StatusCode))
		return &domainerrors.UpstreamError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       errorBody(respBody),
		}
	}

	if err := json.Unmarshal(respBody, response); err != nil {
		return &domainerrors.UpstreamError{Op: op, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	return nil
}

func errorBody(body []byte) string {
	var errResp ErrorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return errResp.Error
	}
	s := string(body)
	if len(s) > maxErrorBodyLen {
		s = s[:maxErrorBodyLen]
	}
	return s
}
