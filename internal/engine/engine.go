// Package engine runs the auto-betting loop: it polls the exchange on a fixed
// cadence, evaluates the active rules against one eligible market per cycle,
// sizes and places lay bets, and stops itself when a session limit is hit.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/laybot/internal/domain"
	"github.com/alanyoungcy/laybot/internal/rules"
)

var (
	ErrNoActiveRules  = errors.New("engine: no active rules")
	ErrAlreadyRunning = errors.New("engine: already running")
	ErrEngineRunning  = errors.New("engine: stop the engine before changing its configuration")
	ErrUnknownRule    = errors.New("engine: unknown rule")
)

// SelectionPolicy picks one market from the eligible set.
type SelectionPolicy string

const (
	// SelectCatalogue takes the first eligible market in catalogue order.
	SelectCatalogue SelectionPolicy = "catalogue"
	// SelectSoonest takes the eligible market with the earliest start.
	SelectSoonest SelectionPolicy = "soonest"
)

// Config holds the engine's fixed parameters.
type Config struct {
	Interval       time.Duration
	PreRaceWindow  time.Duration
	Countries      []string
	Selection      SelectionPolicy
	MaxResults     int
	ActivityLimit  int
	LockKey        string
	LockTTL        time.Duration
	PublishTimeout time.Duration
	// Settings seeds the user settings when none are stored. The zero value
	// means domain.DefaultSettings.
	Settings domain.Settings
}

// DefaultConfig returns the production cadence and windows.
func DefaultConfig() Config {
	return Config{
		Interval:       15 * time.Second,
		PreRaceWindow:  5 * time.Minute,
		Countries:      []string{"GB", "IE"},
		Selection:      SelectCatalogue,
		MaxResults:     100,
		ActivityLimit:  10,
		LockKey:        "laybot:engine",
		LockTTL:        2 * time.Minute,
		PublishTimeout: 2 * time.Second,
	}
}

// Alerter delivers user-facing notifications.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Deps are the engine's collaborators. Markets, Orders, Ledger and Rules are
// required; the rest may be nil.
type Deps struct {
	Markets domain.MarketDataGateway
	Orders  domain.OrderGateway
	Ledger  domain.Ledger
	Rules   *rules.Registry
	State   domain.StateStore
	Audit   domain.AuditStore
	Bus     domain.SignalBus
	Alerts  Alerter
	Locks   domain.LockManager
	Clock   Clock
}

// Engine is the auto-betting state machine. Session counters live only in
// memory; a new Engine always starts Stopped.
type Engine struct {
	cfg     Config
	markets domain.MarketDataGateway
	orders  domain.OrderGateway
	ledger  domain.Ledger
	rules   *rules.Registry
	state   domain.StateStore
	audit   domain.AuditStore
	bus     domain.SignalBus
	alerts  Alerter
	locks   domain.LockManager
	clock   Clock
	trail   *Trail
	logger  *slog.Logger

	// cycleMu serialises cycles; a tick that cannot take it is dropped.
	cycleMu sync.Mutex
	wake    chan struct{}

	mu       sync.Mutex
	run      State
	gen      uint64
	settings domain.Settings
	active   map[string]bool
	sess     session
	lease    domain.Lease
}

// New creates a stopped Engine with default settings and no active rules.
func New(cfg Config, deps Deps, logger *slog.Logger) *Engine {
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultConfig().LockTTL
	}
	// The lease is refreshed once per cycle, so it must outlive the gap
	// between two ticks.
	if floor := 2 * cfg.Interval; cfg.LockTTL < floor {
		cfg.LockTTL = floor
	}
	if cfg.Selection == "" {
		cfg.Selection = SelectCatalogue
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	if cfg.Settings == (domain.Settings{}) {
		cfg.Settings = domain.DefaultSettings()
	}
	return &Engine{
		cfg:      cfg,
		markets:  deps.Markets,
		orders:   deps.Orders,
		ledger:   deps.Ledger,
		rules:    deps.Rules,
		state:    deps.State,
		audit:    deps.Audit,
		bus:      deps.Bus,
		alerts:   deps.Alerts,
		locks:    deps.Locks,
		clock:    deps.Clock,
		trail:    NewTrail(cfg.ActivityLimit),
		logger:   logger.With(slog.String("component", "engine")),
		wake:     make(chan struct{}, 1),
		run:      StateStopped,
		settings: cfg.Settings,
		active:   make(map[string]bool),
		sess:     newSession(time.Time{}),
	}
}

// Restore loads persisted settings and active rules. Missing state keeps the
// defaults. Rule IDs that are no longer registered are dropped.
func (e *Engine) Restore(ctx context.Context) error {
	if e.state == nil {
		return nil
	}
	settings, err := e.state.LoadSettings(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		settings = e.cfg.Settings
	case err != nil:
		return fmt.Errorf("engine: load settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		e.logger.WarnContext(ctx, "stored settings invalid, using defaults", slog.String("error", err.Error()))
		settings = e.cfg.Settings
	}

	ids, err := e.state.LoadActiveRules(ctx)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("engine: load active rules: %w", err)
	}
	active := make(map[string]bool, len(ids))
	for _, id := range ids {
		if e.rules.Has(id) {
			active[id] = true
		}
	}

	e.mu.Lock()
	e.settings = settings
	e.active = active
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "engine state restored",
		slog.Int("active_rules", len(active)),
		slog.Int("max_races", settings.MaxRaces),
		slog.Float64("total_limit", settings.TotalLimit),
	)
	return nil
}

// Start begins a new run. The session counters are reset and a cycle is
// requested immediately.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.run == StateRunning {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	if len(e.active) == 0 {
		e.mu.Unlock()
		return ErrNoActiveRules
	}
	if err := e.settings.Validate(); err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	var lease domain.Lease
	if e.locks != nil {
		l, err := e.locks.Acquire(ctx, e.cfg.LockKey, e.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("engine: acquire run lock: %w", err)
		}
		lease = l
	}

	e.mu.Lock()
	if e.run == StateRunning {
		e.mu.Unlock()
		if lease != nil {
			lease.Release()
		}
		return ErrAlreadyRunning
	}
	e.gen++
	e.run = StateRunning
	e.sess = newSession(e.clock.Now())
	e.lease = lease
	settings := e.settings
	activeIDs := e.activeIDsLocked()
	e.mu.Unlock()

	e.record(ctx, domain.ActivityInfo, "engine_started", "",
		fmt.Sprintf("Engine started with %d rule(s), max %d races, limit %.2f", len(activeIDs), settings.MaxRaces, settings.TotalLimit))
	e.writeAudit(ctx, "engine.started", map[string]any{
		"rules":       activeIDs,
		"max_races":   settings.MaxRaces,
		"total_limit": settings.TotalLimit,
	})
	e.publishSession(ctx)
	e.kick()
	return nil
}

// Stop ends the current run. It is a no-op when the engine is already
// stopped. Orders already placed are left alone.
func (e *Engine) Stop(ctx context.Context, reason string) {
	e.mu.Lock()
	gen := e.gen
	e.mu.Unlock()
	if reason == "" {
		reason = "Stopped by user"
	}
	e.halt(ctx, gen, reason, domain.ActivityInfo)
}

// halt stops the run identified by gen. Stale generations are ignored.
func (e *Engine) halt(ctx context.Context, gen uint64, reason string, level domain.ActivityLevel) bool {
	e.mu.Lock()
	if e.run != StateRunning || e.gen != gen {
		e.mu.Unlock()
		return false
	}
	e.run = StateStopped
	e.sess.stoppedAt = e.clock.Now()
	e.sess.stopReason = reason
	lease := e.lease
	e.lease = nil
	snap := e.sess.snapshot()
	e.mu.Unlock()

	if lease != nil {
		lease.Release()
	}
	e.kick()

	e.record(ctx, level, "engine_stopped", "", reason)
	e.alert(ctx, "engine_stopped", "Auto-betting stopped",
		fmt.Sprintf("%s. %d bet(s), %s staked over %d race(s).",
			reason, snap.BetsPlaced, snap.TotalStaked.StringFixed(2), snap.RacesProcessed))
	e.writeAudit(ctx, "engine.stopped", map[string]any{
		"reason":          reason,
		"bets_placed":     snap.BetsPlaced,
		"total_staked":    snap.TotalStaked.String(),
		"races_processed": snap.RacesProcessed,
	})
	e.publishSession(ctx)
	return true
}

// IsRunning reports whether a run is active.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run == StateRunning
}

// Status is a point-in-time view of the engine.
type Status struct {
	State       State           `json:"state"`
	Session     SessionSnapshot `json:"session"`
	Settings    domain.Settings `json:"settings"`
	ActiveRules []string        `json:"active_rules"`
}

// Status returns the current state, counters and configuration.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		State:       e.run,
		Session:     e.sess.snapshot(),
		Settings:    e.settings,
		ActiveRules: e.activeIDsLocked(),
	}
}

// Settings returns the current settings.
func (e *Engine) Settings() domain.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// UpdateSettings validates and persists new settings. It is rejected while
// a run is active.
func (e *Engine) UpdateSettings(ctx context.Context, s domain.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	if e.run == StateRunning {
		e.mu.Unlock()
		return ErrEngineRunning
	}
	e.settings = s
	e.mu.Unlock()

	if e.state != nil {
		if err := e.state.SaveSettings(ctx, s); err != nil {
			return fmt.Errorf("engine: save settings: %w", err)
		}
	}
	e.writeAudit(ctx, "settings.updated", map[string]any{
		"max_races":   s.MaxRaces,
		"min_stake":   s.MinStake,
		"max_stake":   s.MaxStake,
		"total_limit": s.TotalLimit,
	})
	return nil
}

// ActiveRules returns the active rule IDs in priority order.
func (e *Engine) ActiveRules() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeIDsLocked()
}

// SetActiveRules replaces the active rule set. Unknown IDs are rejected.
func (e *Engine) SetActiveRules(ctx context.Context, ids []string) error {
	active := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !e.rules.Has(id) {
			return fmt.Errorf("%w: %q", ErrUnknownRule, id)
		}
		active[id] = true
	}

	e.mu.Lock()
	if e.run == StateRunning {
		e.mu.Unlock()
		return ErrEngineRunning
	}
	e.active = active
	ordered := e.activeIDsLocked()
	e.mu.Unlock()

	if e.state != nil {
		if err := e.state.SaveActiveRules(ctx, ordered); err != nil {
			return fmt.Errorf("engine: save active rules: %w", err)
		}
	}
	e.writeAudit(ctx, "rules.updated", map[string]any{"active": ordered})
	return nil
}

// Rules lists every registered rule in priority order.
func (e *Engine) Rules() []rules.Info {
	return e.rules.List()
}

// Activity returns up to limit trail entries, newest first.
func (e *Engine) Activity(limit int) []domain.Activity {
	return e.trail.Recent(limit)
}

// activeIDsLocked returns active IDs in registry priority order.
func (e *Engine) activeIDsLocked() []string {
	ids := make([]string, 0, len(e.active))
	for _, info := range e.rules.List() {
		if e.active[info.ID] {
			ids = append(ids, info.ID)
		}
	}
	return ids
}

// Run owns the engine's timeline until ctx is done. Ticks come from the
// interval ticker while running and from Start; a tick that arrives while a
// cycle is in progress is dropped.
func (e *Engine) Run(ctx context.Context) error {
	var (
		ticker   Ticker
		tickC    <-chan time.Time
		armedGen uint64
	)
	disarm := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tickC = nil, nil
		}
	}
	defer disarm()

	for {
		e.mu.Lock()
		running, gen := e.run == StateRunning, e.gen
		e.mu.Unlock()

		switch {
		case running && (ticker == nil || armedGen != gen):
			disarm()
			ticker = e.clock.NewTicker(e.cfg.Interval)
			tickC = ticker.C()
			armedGen = gen
		case !running:
			disarm()
		}

		select {
		case <-ctx.Done():
			e.Stop(context.WithoutCancel(ctx), "Shutting down")
			return ctx.Err()
		case <-e.wake:
			e.Tick(ctx)
		case <-tickC:
			e.Tick(ctx)
		}
	}
}

// Tick runs one cycle unless another is in progress. It reports whether a
// cycle ran.
func (e *Engine) Tick(ctx context.Context) bool {
	if !e.cycleMu.TryLock() {
		e.logger.DebugContext(ctx, "tick dropped, cycle in progress")
		return false
	}
	defer e.cycleMu.Unlock()
	e.cycle(ctx)
	return true
}

func (e *Engine) kick() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// record appends to the trail, logs, and publishes the entry.
func (e *Engine) record(ctx context.Context, level domain.ActivityLevel, kind, marketID, msg string) {
	a := domain.Activity{
		Time:     e.clock.Now(),
		Level:    level,
		Kind:     kind,
		MarketID: marketID,
		Message:  msg,
	}
	e.trail.Add(a)

	attrs := []any{slog.String("kind", kind), slog.String("message", msg)}
	if marketID != "" {
		attrs = append(attrs, slog.String("market_id", marketID))
	}
	switch level {
	case domain.ActivityError:
		e.logger.ErrorContext(ctx, "engine activity", attrs...)
	case domain.ActivityWarning:
		e.logger.WarnContext(ctx, "engine activity", attrs...)
	default:
		e.logger.InfoContext(ctx, "engine activity", attrs...)
	}

	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.PublishTimeout)
	defer cancel()
	if err := e.bus.Publish(pctx, domain.ChannelActivity, payload); err != nil {
		e.logger.WarnContext(ctx, "publish activity failed", slog.String("error", err.Error()))
	}
	if err := e.bus.StreamAppend(pctx, domain.StreamActivity, payload); err != nil {
		e.logger.WarnContext(ctx, "append activity failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) publishSession(ctx context.Context) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(e.Status())
	if err != nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.PublishTimeout)
	defer cancel()
	if err := e.bus.Publish(pctx, domain.ChannelSession, payload); err != nil {
		e.logger.WarnContext(ctx, "publish session failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) alert(ctx context.Context, event, title, msg string) {
	if e.alerts == nil {
		return
	}
	if err := e.alerts.Notify(ctx, event, title, msg); err != nil {
		e.logger.WarnContext(ctx, "notify failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}

func (e *Engine) writeAudit(ctx context.Context, event string, detail map[string]any) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, "audit log failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}
