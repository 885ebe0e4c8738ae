// Package server is the operator HTTP + WebSocket API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/laybot/internal/domain"
	"github.com/alanyoungcy/laybot/internal/server/handler"
	"github.com/alanyoungcy/laybot/internal/server/middleware"
	"github.com/alanyoungcy/laybot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// RateLimit is the number of requests per minute allowed per client IP.
	// Zero disables rate limiting.
	RateLimit int
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Nil handlers leave their routes unregistered.
type Handlers struct {
	Health  *handler.HealthHandler
	Auth    *handler.AuthHandler
	Markets *handler.MarketHandler
	Orders  *handler.OrderHandler
	Account *handler.AccountHandler
	Engine  *handler.EngineHandler
	Bets    *handler.BetHandler
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// The middleware chain runs CORS, then request logging, then rate limiting,
// then auth.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	h := Routes(cfg, handlers, wsHub, limiter, logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// Routes builds the full handler tree.
func Routes(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}

	if a := handlers.Auth; a != nil {
		mux.HandleFunc("POST /api/auth/login", a.Login)
		mux.HandleFunc("POST /api/auth/keepalive", a.KeepAlive)
		mux.HandleFunc("POST /api/auth/logout", a.Logout)
	}

	if m := handlers.Markets; m != nil {
		mux.HandleFunc("POST /api/markets/catalogue", m.Catalogue)
		mux.HandleFunc("POST /api/markets/book", m.Book)
	}

	if o := handlers.Orders; o != nil {
		mux.HandleFunc("POST /api/orders/place", o.Place)
		mux.HandleFunc("POST /api/orders/cancel", o.Cancel)
		mux.HandleFunc("GET /api/orders/current", o.Current)
	}

	if a := handlers.Account; a != nil {
		mux.HandleFunc("GET /api/account/funds", a.Funds)
	}

	if e := handlers.Engine; e != nil {
		mux.HandleFunc("GET /api/engine", e.Status)
		mux.HandleFunc("POST /api/engine/start", e.Start)
		mux.HandleFunc("POST /api/engine/stop", e.Stop)
		mux.HandleFunc("GET /api/engine/settings", e.GetSettings)
		mux.HandleFunc("PUT /api/engine/settings", e.PutSettings)
		mux.HandleFunc("GET /api/engine/rules", e.GetRules)
		mux.HandleFunc("PUT /api/engine/rules", e.PutRules)
		mux.HandleFunc("GET /api/engine/activity", e.Activity)
	}

	if b := handlers.Bets; b != nil {
		mux.HandleFunc("GET /api/bets", b.List)
		mux.HandleFunc("GET /api/bets/summary", b.Summary)
		mux.HandleFunc("POST /api/bets/{id}/settle", b.Settle)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, time.Minute, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Serve accepts connections on l. It exists for callers that bind their own
// listener.
func (s *Server) Serve(l net.Listener) error {
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
