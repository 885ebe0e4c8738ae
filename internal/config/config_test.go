package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "laybot.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func validConfig() Config {
	cfg := Defaults()
	cfg.Betfair.AppKey = "app"
	cfg.Betfair.Username = "alice"
	cfg.Betfair.Password = "secret"
	return cfg
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeTOML(t, `
mode = "manual"

[betfair]
app_key = "key-1"
username = "alice"
password = "pw"
keep_alive_interval = "30m"

[engine]
interval = "20s"
countries = ["GB"]
selection = "soonest"

[settings]
max_races = 3
max_stake = 4.0

[settings.odds_band]
min_odds = 3.0
max_odds = 6.0
sweet_min = 3.5
sweet_max = 5.0
max_liability = 15.0
prime_window_minutes = 60
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "manual", cfg.Mode)
	assert.Equal(t, 30*time.Minute, cfg.Betfair.KeepAliveInterval.Duration)
	assert.Equal(t, 20*time.Second, cfg.Engine.Interval.Duration)
	assert.Equal(t, []string{"GB"}, cfg.Engine.Countries)
	assert.Equal(t, 3, cfg.Settings.MaxRaces)
	assert.Equal(t, 4.0, cfg.Settings.MaxStake)
	assert.Equal(t, 1.0, cfg.Settings.MinStake, "untouched settings keep defaults")
	assert.Equal(t, 6.0, cfg.Settings.OddsBand.MaxOdds)
	assert.Equal(t, "sqlite", cfg.Ledger.Backend)
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeTOML(t, "[betfair]\napp_kee = \"typo\"\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "betfair.app_kee")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LAYBOT_BETFAIR_PASSWORD", "from-env")
	t.Setenv("LAYBOT_ENGINE_COUNTRIES", "GB, IE ,FR")
	t.Setenv("LAYBOT_NOTIFY_TELEGRAM_CHAT_ID", "-100123")
	t.Setenv("LAYBOT_ENGINE_INTERVAL", "not-a-duration")
	t.Setenv("LAYBOT_REDIS_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Betfair.Password)
	assert.Equal(t, []string{"GB", "IE", "FR"}, cfg.Engine.Countries)
	assert.Equal(t, int64(-100123), cfg.Notify.TelegramChatID)
	assert.Equal(t, 15*time.Second, cfg.Engine.Interval.Duration, "bad values are ignored")
	assert.True(t, cfg.Redis.Enabled)
}

func TestValidateAggregatesProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "yolo"
	cfg.Engine.Selection = "random"
	cfg.Ledger.Backend = "mongo"
	cfg.Settings.MaxRaces = 0

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		`unknown mode "yolo"`,
		"betfair: app_key is required",
		"betfair: either password or encrypted_password_path",
		`engine: unknown selection "random"`,
		`ledger: unknown backend "mongo"`,
		"settings: invalid settings",
		"max_races must be >= 1",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidateModeSpecific(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "archive"
	err := cfg.Validate()
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "betfair", "archive mode needs no exchange credentials")
	assert.Contains(t, err.Error(), "s3: bucket must not be empty")

	cfg.S3.Bucket = "laybot-archive"
	require.NoError(t, cfg.Validate())

	cfg = validConfig()
	cfg.Betfair.Password = ""
	cfg.Betfair.EncryptedPasswordPath = "/etc/laybot/betfair.json"
	require.ErrorContains(t, cfg.Validate(), "password_key is required")

	cfg = validConfig()
	cfg.Ledger.Backend = "postgres"
	cfg.Postgres.Host = ""
	require.ErrorContains(t, cfg.Validate(), "postgres: host")
	cfg.Postgres.DSN = "postgres://u:p@db/laybot"
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.UsesPostgres())
}

func TestValidateLockTTLOutlivesInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.Interval = duration{5 * time.Minute}
	cfg.Engine.LockTTL = duration{2 * time.Minute}
	require.ErrorContains(t, cfg.Validate(), "engine: lock_ttl must be greater than interval")

	cfg.Engine.LockTTL = duration{5 * time.Minute}
	require.ErrorContains(t, cfg.Validate(), "lock_ttl")

	cfg.Engine.LockTTL = duration{10 * time.Minute}
	require.NoError(t, cfg.Validate())
}

func TestValidateArchiveCron(t *testing.T) {
	cfg := validConfig()
	cfg.Archive.Enabled = true
	cfg.S3.Bucket = "laybot-archive"
	cfg.Archive.Cron = "61 4 * * *"
	require.ErrorContains(t, cfg.Validate(), `archive: invalid cron "61 4 * * *"`)

	cfg.Archive.Cron = "@daily"
	require.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Notify.TelegramToken = "tg"
	cfg.Server.APIKey = "api"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Betfair.Password)
	assert.Equal(t, "***", out.Betfair.AppKey)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Empty(t, out.S3.SecretKey, "empty secrets stay empty")
	assert.Equal(t, "alice", out.Betfair.Username)

	out.Engine.Countries[0] = "XX"
	assert.Equal(t, "GB", cfg.Engine.Countries[0])
	assert.Equal(t, "secret", cfg.Betfair.Password)
}
