// Package config defines the laybot configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/laybot/internal/domain"
)

// Config is the root configuration. Fields are populated from a TOML file and
// then optionally overridden by LAYBOT_* environment variables.
type Config struct {
	Betfair  BetfairConfig   `toml:"betfair"`
	Engine   EngineConfig    `toml:"engine"`
	Settings domain.Settings `toml:"settings"`
	Ledger   LedgerConfig    `toml:"ledger"`
	SQLite   SQLiteConfig    `toml:"sqlite"`
	Postgres PostgresConfig  `toml:"postgres"`
	State    StateConfig     `toml:"state"`
	Redis    RedisConfig     `toml:"redis"`
	S3       S3Config        `toml:"s3"`
	Archive  ArchiveConfig   `toml:"archive"`
	Server   ServerConfig    `toml:"server"`
	Notify   NotifyConfig    `toml:"notify"`
	Log      LogConfig       `toml:"log"`
	Mode     string          `toml:"mode"`
	LogLevel string          `toml:"log_level"`
}

// BetfairConfig holds exchange credentials and endpoints.
type BetfairConfig struct {
	AppKey   string `toml:"app_key"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	// EncryptedPasswordPath points at a file written by secretkit; it is
	// used when Password is empty.
	EncryptedPasswordPath string   `toml:"encrypted_password_path"`
	PasswordKey           string   `toml:"password_key"`
	IdentityURL           string   `toml:"identity_url"`
	BettingURL            string   `toml:"betting_url"`
	AccountURL            string   `toml:"account_url"`
	Timeout               duration `toml:"timeout"`
	RateLimit             int      `toml:"rate_limit"`
	RateWindow            duration `toml:"rate_window"`
	RateWait              duration `toml:"rate_wait"`
	KeepAliveInterval     duration `toml:"keep_alive_interval"`
	// Commission is the market base rate charged on net winnings, as a
	// fraction.
	Commission float64 `toml:"commission"`
}

// EngineConfig holds the fixed parameters of the auto-betting loop.
type EngineConfig struct {
	Interval      duration `toml:"interval"`
	PreRaceWindow duration `toml:"pre_race_window"`
	Countries     []string `toml:"countries"`
	Selection     string   `toml:"selection"`
	MaxResults    int      `toml:"max_results"`
	ActivityLimit int      `toml:"activity_limit"`
	LockTTL       duration `toml:"lock_ttl"`
}

// LedgerConfig selects and tunes the bet history store.
type LedgerConfig struct {
	Backend      string   `toml:"backend"`
	QueueSize    int      `toml:"queue_size"`
	WriteTimeout duration `toml:"write_timeout"`
}

// SQLiteConfig locates the local ledger database.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// StateConfig selects where user settings and active rules persist.
type StateConfig struct {
	Backend  string `toml:"backend"`
	Path     string `toml:"path"`
	InMemory bool   `toml:"in_memory"`
	// EncryptionPassphrase, when set, encrypts the badger store at rest.
	EncryptionPassphrase string `toml:"encryption_passphrase"`
}

// RedisConfig holds Redis connection parameters. When disabled, rate limits,
// the engine lock and the event bus run in process.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	URL        string `toml:"url"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls moving settled bets to S3.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
}

// duration wraps time.Duration so TOML can carry strings like "15s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey, when set, is required as a Bearer token or X-API-Key header.
	APIKey string `toml:"api_key"`
	// RateLimit is the number of requests per minute allowed per client IP.
	RateLimit int `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    int64    `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	MinInterval       duration `toml:"min_interval"`
}

// LogConfig enables a rotating log file next to stdout.
type LogConfig struct {
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// Defaults returns a Config populated with the values in
// config.example.toml.
func Defaults() Config {
	return Config{
		Betfair: BetfairConfig{
			IdentityURL:       "https://identitysso.betfair.com/api",
			BettingURL:        "https://api.betfair.com/exchange/betting/json-rpc/v1",
			AccountURL:        "https://api.betfair.com/exchange/account/json-rpc/v1",
			Timeout:           duration{15 * time.Second},
			RateLimit:         5,
			RateWindow:        duration{time.Second},
			RateWait:          duration{5 * time.Second},
			KeepAliveInterval: duration{time.Hour},
			Commission:        0.05,
		},
		Engine: EngineConfig{
			Interval:      duration{15 * time.Second},
			PreRaceWindow: duration{5 * time.Minute},
			Countries:     []string{"GB", "IE"},
			Selection:     "catalogue",
			MaxResults:    100,
			ActivityLimit: 10,
			LockTTL:       duration{2 * time.Minute},
		},
		Settings: domain.DefaultSettings(),
		Ledger: LedgerConfig{
			Backend:      "sqlite",
			QueueSize:    256,
			WriteTimeout: duration{5 * time.Second},
		},
		SQLite: SQLiteConfig{Path: "data/laybot.db"},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "laybot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		State: StateConfig{
			Backend: "badger",
			Path:    "data/state",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
			Cron:          "30 4 * * *",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
		},
		Notify: NotifyConfig{
			Events:      []string{"engine_stopped", "bet_placed", "placement_failed", "budget_exhausted"},
			MinInterval: duration{2 * time.Second},
		},
		Log: LogConfig{
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"full":    true,
	"manual":  true,
	"archive": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// NeedsExchange reports whether the mode talks to Betfair.
func (c *Config) NeedsExchange() bool {
	return c.Mode != "archive"
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[c.Mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, manual, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.NeedsExchange() {
		b := c.Betfair
		if b.AppKey == "" {
			errs = append(errs, "betfair: app_key is required")
		}
		if b.Username == "" {
			errs = append(errs, "betfair: username is required")
		}
		if b.Password == "" && b.EncryptedPasswordPath == "" {
			errs = append(errs, "betfair: either password or encrypted_password_path must be set")
		}
		if b.Password == "" && b.EncryptedPasswordPath != "" && b.PasswordKey == "" {
			errs = append(errs, "betfair: password_key is required when encrypted_password_path is set")
		}
		if b.RateLimit < 1 {
			errs = append(errs, "betfair: rate_limit must be >= 1")
		}
		if b.KeepAliveInterval.Duration <= 0 {
			errs = append(errs, "betfair: keep_alive_interval must be > 0")
		}
	}
	if c.Betfair.Commission < 0 || c.Betfair.Commission >= 1 {
		errs = append(errs, "betfair: commission must be in [0, 1)")
	}

	if c.Engine.Interval.Duration < time.Second {
		errs = append(errs, "engine: interval must be >= 1s")
	}
	if c.Engine.LockTTL.Duration <= c.Engine.Interval.Duration {
		errs = append(errs, "engine: lock_ttl must be greater than interval")
	}
	if c.Engine.PreRaceWindow.Duration <= 0 {
		errs = append(errs, "engine: pre_race_window must be > 0")
	}
	if c.Engine.Selection != "catalogue" && c.Engine.Selection != "soonest" {
		errs = append(errs, fmt.Sprintf("engine: unknown selection %q (valid: catalogue, soonest)", c.Engine.Selection))
	}
	if c.Engine.MaxResults < 1 || c.Engine.MaxResults > 1000 {
		errs = append(errs, "engine: max_results must be 1-1000")
	}

	if err := c.Settings.Validate(); err != nil {
		errs = append(errs, "settings: "+strings.ReplaceAll(err.Error(), "\n  - ", "; "))
	}

	switch c.Ledger.Backend {
	case "sqlite":
		if c.SQLite.Path == "" {
			errs = append(errs, "sqlite: path must not be empty")
		}
	case "postgres":
	default:
		errs = append(errs, fmt.Sprintf("ledger: unknown backend %q (valid: sqlite, postgres)", c.Ledger.Backend))
	}

	switch c.State.Backend {
	case "badger":
		if c.State.Path == "" && !c.State.InMemory {
			errs = append(errs, "state: path must not be empty unless in_memory is set")
		}
	case "postgres":
	default:
		errs = append(errs, fmt.Sprintf("state: unknown backend %q (valid: badger, postgres)", c.State.Backend))
	}

	if c.UsesPostgres() {
		p := c.Postgres
		if p.DSN == "" {
			if p.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if p.Port < 1 || p.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", p.Port))
			}
			if p.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if p.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if p.PoolMinConns < 0 || p.PoolMinConns > p.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be in [0, pool_max_conns]")
		}
	}

	if c.Redis.Enabled && c.Redis.URL == "" && c.Redis.Addr == "" {
		errs = append(errs, "redis: url or addr must be set when enabled")
	}

	if c.Archive.Enabled || c.Mode == "archive" {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archiving")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when archiving")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
	}
	if c.Archive.Enabled {
		if _, err := cron.ParseStandard(c.Archive.Cron); err != nil {
			errs = append(errs, fmt.Sprintf("archive: invalid cron %q: %v", c.Archive.Cron, err))
		}
	}

	if c.Server.Enabled && c.Mode != "archive" {
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == 0 {
		errs = append(errs, "notify: telegram_chat_id is required with telegram_token")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// UsesPostgres reports whether any store is backed by PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return c.Ledger.Backend == "postgres" || c.State.Backend == "postgres"
}
