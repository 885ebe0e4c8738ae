package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	s3blob "github.com/alanyoungcy/laybot/internal/blob/s3"
	"github.com/alanyoungcy/laybot/internal/cache/memory"
	"github.com/alanyoungcy/laybot/internal/cache/redis"
	"github.com/alanyoungcy/laybot/internal/config"
	"github.com/alanyoungcy/laybot/internal/crypto"
	"github.com/alanyoungcy/laybot/internal/domain"
	"github.com/alanyoungcy/laybot/internal/notify"
	"github.com/alanyoungcy/laybot/internal/platform/betfair"
	"github.com/alanyoungcy/laybot/internal/service"
	"github.com/alanyoungcy/laybot/internal/store/badger"
	"github.com/alanyoungcy/laybot/internal/store/postgres"
	"github.com/alanyoungcy/laybot/internal/store/sqlite"
)

// notifyQueueSize bounds pending alerts.
const notifyQueueSize = 64

// Dependencies bundles every domain-level dependency that the application
// modes need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores
	Bets  domain.BetStore
	Audit domain.AuditStore
	State domain.StateStore

	// Coordination
	RateLimiter domain.RateLimiter
	Locks       domain.LockManager
	Bus         domain.SignalBus

	// Exchange is nil in archive mode.
	Exchange *betfair.Client
	Password string

	// Archiver is nil unless archiving is enabled.
	Archiver domain.Archiver

	Ledger   *service.LedgerService
	Notifier *notify.AsyncNotifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}

	// --- PostgreSQL (when the ledger or state lives there) ---
	var pg *postgres.Client
	if cfg.UsesPostgres() {
		p := cfg.Postgres
		client, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      p.DSN,
			Host:     p.Host,
			Port:     p.Port,
			Database: p.Database,
			User:     p.User,
			Password: p.Password,
			SSLMode:  p.SSLMode,
			MaxConns: p.PoolMaxConns,
			MinConns: p.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, client.Close)
		if p.RunMigrations {
			if err := client.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		pg = client
	}

	// --- Ledger ---
	switch cfg.Ledger.Backend {
	case "postgres":
		deps.Bets = postgres.NewBetStore(pg.Pool())
		deps.Audit = postgres.NewAuditStore(pg.Pool())
	default:
		db, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return fail(fmt.Errorf("wire: sqlite: %w", err))
		}
		closers = append(closers, func() { _ = db.Close() })
		deps.Bets = sqlite.NewBetStore(db)
		deps.Audit = sqlite.NewAuditStore(db)
	}

	// --- Engine state (not needed to archive) ---
	if cfg.Mode != "archive" {
		switch cfg.State.Backend {
		case "postgres":
			deps.State = postgres.NewStateStore(pg.Pool())
		default:
			opts := badger.Options{Path: cfg.State.Path, InMemory: cfg.State.InMemory}
			if cfg.State.EncryptionPassphrase != "" {
				key, err := crypto.DeriveStoreKey(cfg.State.EncryptionPassphrase)
				if err != nil {
					return fail(fmt.Errorf("wire: state key: %w", err))
				}
				opts.EncryptionKey = key
			}
			store, err := badger.Open(opts)
			if err != nil {
				return fail(fmt.Errorf("wire: state: %w", err))
			}
			closers = append(closers, func() { _ = store.Close() })
			deps.State = store
		}
	}

	// --- Redis, or in-process coordination ---
	if cfg.Redis.Enabled {
		r := cfg.Redis
		client, err := redis.New(ctx, redis.ClientConfig{
			URL:        r.URL,
			Addr:       r.Addr,
			Password:   r.Password,
			DB:         r.DB,
			PoolSize:   r.PoolSize,
			MaxRetries: r.MaxRetries,
			TLSEnabled: r.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = client.Close() })
		deps.RateLimiter = redis.NewRateLimiter(client)
		deps.Locks = redis.NewLockManager(client)
		deps.Bus = redis.NewSignalBus(client)
	} else {
		deps.RateLimiter = memory.NewRateLimiter()
		deps.Locks = memory.NewLockManager()
		deps.Bus = memory.NewSignalBus(0)
	}

	// --- Exchange ---
	if cfg.NeedsExchange() {
		b := cfg.Betfair
		password, err := crypto.LoadSecret(b.Password, b.EncryptedPasswordPath, b.PasswordKey)
		if err != nil {
			return fail(fmt.Errorf("wire: betfair password: %w", err))
		}
		deps.Password = password
		deps.Exchange = betfair.NewClient(betfair.Config{
			AppKey:      b.AppKey,
			IdentityURL: b.IdentityURL,
			BettingURL:  b.BettingURL,
			AccountURL:  b.AccountURL,
			Timeout:     b.Timeout.Duration,
			RateLimit:   b.RateLimit,
			RateWindow:  b.RateWindow.Duration,
			RateWait:    b.RateWait.Duration,
		}, deps.RateLimiter, logger)
		closers = append(closers, func() {
			if !deps.Exchange.LoggedIn() {
				return
			}
			lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := deps.Exchange.Logout(lctx); err != nil {
				logger.Warn("betfair logout failed", slog.String("error", err.Error()))
			}
		})
	}

	// --- S3 archive ---
	if cfg.Archive.Enabled || cfg.Mode == "archive" {
		s := cfg.S3
		client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       s.Endpoint,
			Region:         s.Region,
			Bucket:         s.Bucket,
			AccessKey:      s.AccessKey,
			SecretKey:      s.SecretKey,
			UseSSL:         s.UseSSL,
			ForcePathStyle: s.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		if err := client.Health(ctx); err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewBetArchiver(s3blob.NewObjects(client), deps.Bets, deps.Audit, logger)
	}

	// --- Ledger writer ---
	deps.Ledger = service.NewLedgerService(deps.Bets, deps.Bus, deps.Audit, service.LedgerConfig{
		QueueSize:    cfg.Ledger.QueueSize,
		WriteTimeout: cfg.Ledger.WriteTimeout.Duration,
		Commission:   decimal.NewFromFloat(cfg.Betfair.Commission),
	}, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewAsyncNotifier(
		notify.NewNotifier(senders, cfg.Notify.Events, logger),
		notifyQueueSize,
		cfg.Notify.MinInterval.Duration,
		logger,
	)

	return deps, cleanup, nil
}
