package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LAYBOT_"

// Load decodes the TOML file at path over Defaults(), loads .env when
// present, and applies LAYBOT_* overrides. An empty path skips the file. The
// result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides lets operators inject secrets and deploy-time settings
// without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// Betfair
	setStr(&cfg.Betfair.AppKey, "BETFAIR_APP_KEY")
	setStr(&cfg.Betfair.Username, "BETFAIR_USERNAME")
	setStr(&cfg.Betfair.Password, "BETFAIR_PASSWORD")
	setStr(&cfg.Betfair.EncryptedPasswordPath, "BETFAIR_ENCRYPTED_PASSWORD_PATH")
	setStr(&cfg.Betfair.PasswordKey, "BETFAIR_PASSWORD_KEY")
	setStr(&cfg.Betfair.IdentityURL, "BETFAIR_IDENTITY_URL")
	setStr(&cfg.Betfair.BettingURL, "BETFAIR_BETTING_URL")
	setStr(&cfg.Betfair.AccountURL, "BETFAIR_ACCOUNT_URL")
	setDuration(&cfg.Betfair.KeepAliveInterval, "BETFAIR_KEEP_ALIVE_INTERVAL")
	setFloat64(&cfg.Betfair.Commission, "BETFAIR_COMMISSION")

	// Engine
	setDuration(&cfg.Engine.Interval, "ENGINE_INTERVAL")
	setDuration(&cfg.Engine.PreRaceWindow, "ENGINE_PRE_RACE_WINDOW")
	setStringSlice(&cfg.Engine.Countries, "ENGINE_COUNTRIES")
	setStr(&cfg.Engine.Selection, "ENGINE_SELECTION")

	// Ledger and stores
	setStr(&cfg.Ledger.Backend, "LEDGER_BACKEND")
	setStr(&cfg.SQLite.Path, "SQLITE_PATH")
	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")
	setStr(&cfg.State.Backend, "STATE_BACKEND")
	setStr(&cfg.State.Path, "STATE_PATH")
	setStr(&cfg.State.EncryptionPassphrase, "STATE_ENCRYPTION_PASSPHRASE")

	// Redis
	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setStr(&cfg.Redis.URL, "REDIS_URL")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")

	// S3 and archive
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")
	setBool(&cfg.Archive.Enabled, "ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "ARCHIVE_CRON")

	// Server
	setBool(&cfg.Server.Enabled, "SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SERVER_API_KEY")

	// Notify
	setStr(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	setInt64(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NOTIFY_EVENTS")

	// Log and top level
	setStr(&cfg.Log.File, "LOG_FILE")
	setStr(&cfg.Mode, "MODE")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
}

// Typed env helpers. Each mutates the target only when the variable is set
// and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
