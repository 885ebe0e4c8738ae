package betfair

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/laybot/internal/domain"
)

// Login authenticates with the identity service and stores the session
// token.
func (c *Client) Login(ctx context.Context, username, password string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(map[string]string{
			"username": username,
			"password": password,
		}).
		Post(c.cfg.IdentityURL + "/login")
	if err != nil {
		return fmt.Errorf("betfair: login: %w", err)
	}
	if err := checkStatus("login", resp.StatusCode(), resp.Body()); err != nil {
		return err
	}

	var ir identityResponse
	if err := json.Unmarshal(resp.Body(), &ir); err != nil {
		return fmt.Errorf("betfair: login: decode: %w", err)
	}
	if ir.Status != "SUCCESS" || ir.Token == "" {
		return fmt.Errorf("betfair: login: %w: %s", domain.ErrUnauthorized, ir.Error)
	}

	c.SetToken(ir.Token)
	c.logger.InfoContext(ctx, "logged in", slog.Time("expires_at", c.ExpiresAt()))
	return nil
}

// KeepAlive extends the current session.
func (c *Client) KeepAlive(ctx context.Context) error {
	ir, err := c.identityCall(ctx, "keepAlive")
	if err != nil {
		return err
	}
	if ir.Status != "SUCCESS" {
		c.clearToken()
		return fmt.Errorf("betfair: keepAlive: %w: %s", domain.ErrUnauthorized, ir.Error)
	}
	c.mu.Lock()
	if ir.Token != "" {
		c.token = ir.Token
	}
	c.expiresAt = time.Now().Add(SessionLifetime)
	c.mu.Unlock()
	return nil
}

// Logout ends the session. The local token is dropped even if the exchange
// call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.clearToken()
	ir, err := c.identityCall(ctx, "logout")
	if err != nil {
		return err
	}
	if ir.Status != "SUCCESS" {
		return fmt.Errorf("betfair: logout: %s", ir.Error)
	}
	c.logger.InfoContext(ctx, "logged out")
	return nil
}

func (c *Client) identityCall(ctx context.Context, path string) (identityResponse, error) {
	token, err := c.sessionToken()
	if err != nil {
		return identityResponse{}, err
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Authentication", token).
		Get(c.cfg.IdentityURL + "/" + path)
	if err != nil {
		return identityResponse{}, fmt.Errorf("betfair: %s: %w", path, err)
	}
	if err := checkStatus(path, resp.StatusCode(), resp.Body()); err != nil {
		return identityResponse{}, err
	}
	var ir identityResponse
	if err := json.Unmarshal(resp.Body(), &ir); err != nil {
		return identityResponse{}, fmt.Errorf("betfair: %s: decode: %w", path, err)
	}
	return ir, nil
}

func (c *Client) clearToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}

// Credentials let the keep-alive loop log in again after the session lapses.
type Credentials struct {
	Username string
	Password string
}

// Valid reports whether both fields are set.
func (cr Credentials) Valid() bool {
	return cr.Username != "" && cr.Password != ""
}

// KeepAliveLoop refreshes the session every interval until ctx is done. With
// valid credentials it logs in again when the session is missing or
// rejected.
func (c *Client) KeepAliveLoop(ctx context.Context, interval time.Duration, creds Credentials) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		err := c.KeepAlive(ctx)
		if err == nil {
			c.logger.DebugContext(ctx, "session kept alive")
			continue
		}
		if !isUnauthorized(err) || !creds.Valid() {
			c.logger.WarnContext(ctx, "keep-alive failed", slog.String("error", err.Error()))
			continue
		}
		if err := c.Login(ctx, creds.Username, creds.Password); err != nil {
			c.logger.ErrorContext(ctx, "re-login failed", slog.String("error", err.Error()))
		}
	}
}

var _ domain.SessionGateway = (*Client)(nil)
