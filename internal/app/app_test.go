package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/laybot/internal/cache/memory"
	"github.com/alanyoungcy/laybot/internal/config"
	"github.com/alanyoungcy/laybot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	dir := t.TempDir()
	cfg.Mode = "manual"
	cfg.SQLite.Path = filepath.Join(dir, "ledger.db")
	cfg.State.Path = filepath.Join(dir, "state")
	cfg.Betfair.AppKey = "app"
	cfg.Betfair.Username = "user"
	cfg.Betfair.Password = "pw"
	return &cfg
}

func TestWireLocalBackends(t *testing.T) {
	cfg := localConfig(t)
	cfg.State.EncryptionPassphrase = "state passphrase"

	deps, cleanup, err := Wire(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, deps.Bets)
	assert.NotNil(t, deps.Audit)
	assert.NotNil(t, deps.State)
	assert.NotNil(t, deps.Exchange)
	assert.Nil(t, deps.Archiver)
	assert.Equal(t, "pw", deps.Password)
	assert.IsType(t, &memory.SignalBus{}, deps.Bus)
	assert.IsType(t, &memory.RateLimiter{}, deps.RateLimiter)

	ctx := context.Background()
	require.NoError(t, deps.State.SaveActiveRules(ctx, []string{"odds_band_lay"}))
	ids, err := deps.State.LoadActiveRules(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"odds_band_lay"}, ids)
}

func TestWireMissingPasswordFile(t *testing.T) {
	cfg := localConfig(t)
	cfg.Betfair.Password = ""
	cfg.Betfair.EncryptedPasswordPath = filepath.Join(t.TempDir(), "missing.enc")
	cfg.Betfair.PasswordKey = "k"

	_, _, err := Wire(context.Background(), cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "betfair password")
}

func TestNewEngineAppliesConfig(t *testing.T) {
	cfg := localConfig(t)
	cfg.Engine.ActivityLimit = 3

	deps, cleanup, err := Wire(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	a := New(cfg, testLogger())
	eng := a.newEngine(deps)
	require.NoError(t, eng.Restore(context.Background()))

	assert.False(t, eng.IsRunning())
	assert.Equal(t, cfg.Settings, eng.Settings())
	assert.Len(t, eng.Rules(), 4)
}

type fakeArchiver struct {
	before time.Time
	n      int64
	err    error
}

func (f *fakeArchiver) ArchiveBets(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return f.n, f.err
}

var _ domain.Archiver = (*fakeArchiver)(nil)

func TestArchiveMode(t *testing.T) {
	cfg := localConfig(t)
	cfg.Archive.RetentionDays = 30
	a := New(cfg, testLogger())

	arch := &fakeArchiver{n: 12}
	require.NoError(t, a.ArchiveMode(context.Background(), &Dependencies{Archiver: arch}))
	assert.WithinDuration(t, time.Now().UTC().Add(-30*24*time.Hour), arch.before, time.Minute)

	arch.err = errors.New("bucket gone")
	err := a.ArchiveMode(context.Background(), &Dependencies{Archiver: arch})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket gone")
}

func TestRunRejectsUnknownMode(t *testing.T) {
	cfg := localConfig(t)
	cfg.Mode = "scrape"

	a := New(cfg, testLogger())
	defer a.Close()
	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported mode")
}

func TestIgnoreCanceled(t *testing.T) {
	assert.NoError(t, ignoreCanceled(context.Canceled))
	assert.NoError(t, ignoreCanceled(nil))
	boom := errors.New("boom")
	assert.Equal(t, boom, ignoreCanceled(boom))
}
