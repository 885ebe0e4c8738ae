package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/laybot/internal/engine"
	"github.com/alanyoungcy/laybot/internal/pipeline"
	"github.com/alanyoungcy/laybot/internal/platform/betfair"
	"github.com/alanyoungcy/laybot/internal/rules"
	"github.com/alanyoungcy/laybot/internal/server"
	"github.com/alanyoungcy/laybot/internal/server/handler"
	"github.com/alanyoungcy/laybot/internal/server/ws"
	"github.com/alanyoungcy/laybot/internal/service"
)

// shutdownTimeout bounds graceful shutdown steps.
const shutdownTimeout = 5 * time.Second

// FullMode runs the auto-betting engine, the exchange keep-alive loop, the
// ledger writer, the notifier, the HTTP server and the daily archiver.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.runExchange(ctx, deps, true)
}

// ManualMode runs the HTTP server and ledger for operator betting only. The
// engine is built so settings and the per-bet cap apply, but it never runs.
func (a *App) ManualMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting manual mode")
	return a.runExchange(ctx, deps, false)
}

// ArchiveMode runs one archive pass and returns.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	job := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
	n, err := job.Run(ctx)
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	a.logger.InfoContext(ctx, "archive complete", slog.Int64("bets_archived", n))
	return nil
}

func (a *App) runExchange(ctx context.Context, deps *Dependencies, auto bool) error {
	g, ctx := errgroup.WithContext(ctx)

	eng := a.newEngine(deps)
	if err := eng.Restore(ctx); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	creds := betfair.Credentials{Username: a.cfg.Betfair.Username, Password: deps.Password}
	if err := deps.Exchange.Login(ctx, creds.Username, creds.Password); err != nil {
		// The keep-alive loop and the login endpoint both retry.
		a.logger.ErrorContext(ctx, "initial exchange login failed", slog.String("error", err.Error()))
	}
	g.Go(func() error {
		return ignoreCanceled(deps.Exchange.KeepAliveLoop(ctx, a.cfg.Betfair.KeepAliveInterval.Duration, creds))
	})

	g.Go(func() error { return deps.Ledger.Run(ctx) })
	g.Go(func() error { return deps.Notifier.Run(ctx) })

	if auto {
		g.Go(func() error { return ignoreCanceled(eng.Run(ctx)) })

		if deps.Archiver != nil {
			job := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
			g.Go(func() error { return job.RunCron(ctx, a.cfg.Archive.Cron) })
		}
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, eng, auto)
	}

	return g.Wait()
}

func (a *App) newEngine(deps *Dependencies) *engine.Engine {
	ec := a.cfg.Engine
	return engine.New(engine.Config{
		Interval:       ec.Interval.Duration,
		PreRaceWindow:  ec.PreRaceWindow.Duration,
		Countries:      ec.Countries,
		Selection:      engine.SelectionPolicy(ec.Selection),
		MaxResults:     ec.MaxResults,
		ActivityLimit:  ec.ActivityLimit,
		LockKey:        engine.DefaultConfig().LockKey,
		LockTTL:        ec.LockTTL.Duration,
		PublishTimeout: engine.DefaultConfig().PublishTimeout,
		Settings:       a.cfg.Settings,
	}, engine.Deps{
		Markets: deps.Exchange,
		Orders:  deps.Exchange,
		Ledger:  deps.Ledger,
		Rules:   rules.DefaultRegistry(),
		State:   deps.State,
		Audit:   deps.Audit,
		Bus:     deps.Bus,
		Alerts:  deps.Notifier,
		Locks:   deps.Locks,
	}, a.logger)
}

// startHTTPServer registers the API and WebSocket hub and serves until ctx
// is done. Engine control routes are only exposed when the engine runs.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *engine.Engine, auto bool) {
	markets := service.NewMarketService(deps.Exchange, a.cfg.Engine.Countries, a.logger)
	orders := service.NewOrderService(deps.Exchange, deps.Ledger, eng, deps.Bus, deps.Audit, a.logger)

	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(handler.HealthSource{Session: deps.Exchange, Engine: eng}, a.logger),
		Auth:    handler.NewAuthHandler(deps.Exchange, a.cfg.Betfair.Username, deps.Password, a.logger),
		Markets: handler.NewMarketHandler(markets, a.logger),
		Orders:  handler.NewOrderHandler(orders, a.logger),
		Account: handler.NewAccountHandler(deps.Exchange, a.logger),
		Bets:    handler.NewBetHandler(deps.Ledger, a.logger),
	}
	if auto {
		handlers.Engine = handler.NewEngineHandler(eng, a.logger)
	}

	hub := ws.NewHub(deps.Bus, ws.Config{
		Snapshot:       func() any { return eng.Status() },
		ReplayCount:    a.cfg.Engine.ActivityLimit,
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	}, a.logger)
	g.Go(func() error { return hub.Run(ctx) })

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
