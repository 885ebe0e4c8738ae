// Package betfair is a client for the Betfair Exchange JSON-RPC API. It
// implements the domain market-data, order, account and session gateways.
package betfair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/alanyoungcy/laybot/internal/domain"
)

// Default endpoints.
const (
	DefaultIdentityURL = "https://identitysso.betfair.com/api"
	DefaultBettingURL  = "https://api.betfair.com/exchange/betting/json-rpc/v1"
	DefaultAccountURL  = "https://api.betfair.com/exchange/account/json-rpc/v1"
)

// SessionLifetime is how long a login token stays valid without keep-alive.
const SessionLifetime = 4 * time.Hour

// Config holds client parameters.
type Config struct {
	AppKey      string
	IdentityURL string
	BettingURL  string
	AccountURL  string
	Timeout     time.Duration
	// Per-market request budget for book and order calls.
	RateLimit  int
	RateWindow time.Duration
	RateWait   time.Duration
}

// Client talks to the exchange. It holds the session token and is safe for
// concurrent use.
type Client struct {
	cfg     Config
	http    *resty.Client
	limiter domain.RateLimiter
	logger  *slog.Logger

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// NewClient creates a Client. limiter may be nil, which disables per-market
// rate limiting.
func NewClient(cfg Config, limiter domain.RateLimiter, logger *slog.Logger) *Client {
	if cfg.IdentityURL == "" {
		cfg.IdentityURL = DefaultIdentityURL
	}
	if cfg.BettingURL == "" {
		cfg.BettingURL = DefaultBettingURL
	}
	if cfg.AccountURL == "" {
		cfg.AccountURL = DefaultAccountURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Second
	}
	if cfg.RateWait <= 0 {
		cfg.RateWait = 5 * time.Second
	}

	rc := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("X-Application", cfg.AppKey).
		SetHeader("Accept", "application/json")

	return &Client{
		cfg:     cfg,
		http:    rc,
		limiter: limiter,
		logger:  logger.With(slog.String("component", "betfair")),
	}
}

// SetToken installs an existing session token, e.g. one supplied by an
// operator through the API.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.expiresAt = time.Now().Add(SessionLifetime)
}

// LoggedIn reports whether a session token is held.
func (c *Client) LoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

// ExpiresAt returns when the current session is expected to lapse.
func (c *Client) ExpiresAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiresAt
}

func (c *Client) sessionToken() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return "", domain.ErrNoSession
	}
	return c.token, nil
}

// acquire waits for a per-market request slot.
func (c *Client) acquire(ctx context.Context, key string) error {
	if c.limiter == nil || key == "" {
		return nil
	}
	wctx, cancel := context.WithTimeout(ctx, c.cfg.RateWait)
	defer cancel()
	if err := c.limiter.Wait(wctx, "betfair:"+key, c.cfg.RateLimit, c.cfg.RateWindow); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("betfair: %s: %w", key, domain.ErrRateLimited)
	}
	return nil
}

// call performs one JSON-RPC request and decodes the result into out.
func (c *Client) call(ctx context.Context, endpoint, method string, params, out any, rateKey string) error {
	token, err := c.sessionToken()
	if err != nil {
		return err
	}
	if err := c.acquire(ctx, rateKey); err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Authentication", token).
		SetHeader("Content-Type", "application/json").
		SetBody(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1}).
		Post(endpoint)
	if err != nil {
		return fmt.Errorf("betfair: %s: %w", method, err)
	}
	if err := checkStatus(method, resp.StatusCode(), resp.Body()); err != nil {
		return err
	}

	var env rpcResponse
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("betfair: %s: decode envelope: %w", method, err)
	}
	if env.Error != nil {
		apiErr := newAPIError(method, env.Error)
		c.logger.WarnContext(ctx, "api error",
			slog.String("method", method),
			slog.String("error_code", apiErr.ErrorCode),
			slog.Int("code", apiErr.Code),
		)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("betfair: %s: decode result: %w", method, err)
	}
	return nil
}

// checkStatus maps non-2xx HTTP status codes to errors.
func checkStatus(method string, statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("betfair: %s: %w: %s", method, domain.ErrUnauthorized, snippet)
	case http.StatusTooManyRequests:
		return fmt.Errorf("betfair: %s: %w", method, domain.ErrRateLimited)
	default:
		return fmt.Errorf("betfair: %s: unexpected status %d: %s", method, statusCode, snippet)
	}
}

func bettingMethod(name string) string { return "SportsAPING/v1.0/" + name }
func accountMethod(name string) string { return "AccountAPING/v1.0/" + name }

// isUnauthorized reports whether err means the session is gone.
func isUnauthorized(err error) bool {
	return errors.Is(err, domain.ErrUnauthorized) || errors.Is(err, domain.ErrNoSession)
}
