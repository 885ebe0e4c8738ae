package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/laybot/internal/domain"
	"github.com/alanyoungcy/laybot/internal/rules"
)

var t0 = time.Date(2026, 3, 14, 13, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	ticker *fakeTicker
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticker = &fakeTicker{ch: make(chan time.Time, 1)}
	return c.ticker
}

type fakeTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

type placeCall struct {
	order domain.LayOrder
}

type fakeExchange struct {
	mu           sync.Mutex
	markets      []domain.Market
	books        map[string]domain.MarketBook
	catalogueErr error
	bookErr      error
	catalogueN   int
	bookIDs      []string
	placed       []placeCall
	// placeFn overrides the default successful placement.
	placeFn func(n int, o domain.LayOrder) (domain.PlaceResult, error)
	// catalogueGate, when set, blocks FetchCatalogue until closed.
	catalogueGate chan struct{}
	entered       chan struct{}
}

func (f *fakeExchange) FetchCatalogue(ctx context.Context, _ domain.CatalogueFilter) ([]domain.Market, error) {
	f.mu.Lock()
	gate, entered := f.catalogueGate, f.entered
	f.catalogueN++
	f.mu.Unlock()
	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.catalogueErr != nil {
		return nil, f.catalogueErr
	}
	out := make([]domain.Market, len(f.markets))
	copy(out, f.markets)
	return out, nil
}

func (f *fakeExchange) FetchBook(_ context.Context, ids []string) ([]domain.MarketBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookIDs = append(f.bookIDs, ids...)
	if f.bookErr != nil {
		return nil, f.bookErr
	}
	var out []domain.MarketBook
	for _, id := range ids {
		if b, ok := f.books[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeExchange) PlaceLayOrder(_ context.Context, o domain.LayOrder) (domain.PlaceResult, error) {
	f.mu.Lock()
	n := len(f.placed)
	f.placed = append(f.placed, placeCall{order: o})
	fn := f.placeFn
	f.mu.Unlock()
	if fn != nil {
		return fn(n, o)
	}
	return domain.PlaceResult{Status: domain.PlaceStatusSuccess, BetID: "bet-" + o.MarketID, SizeMatched: 0}, nil
}

func (f *fakeExchange) CancelOrder(context.Context, string, string) (domain.CancelResult, error) {
	return domain.CancelResult{Status: domain.PlaceStatusSuccess}, nil
}

func (f *fakeExchange) CurrentOrders(context.Context, []string) ([]domain.CurrentOrder, error) {
	return nil, nil
}

func (f *fakeExchange) orders() []domain.LayOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.LayOrder, 0, len(f.placed))
	for _, p := range f.placed {
		out = append(out, p.order)
	}
	return out
}

func (f *fakeExchange) bookFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.bookIDs)
}

type fakeLedger struct {
	mu   sync.Mutex
	bets []domain.BetRecord
}

func (l *fakeLedger) RecordBet(_ context.Context, rec domain.BetRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bets = append(l.bets, rec)
}

func (l *fakeLedger) RecordSettlement(context.Context, string, domain.BetResult) error {
	return nil
}

func (l *fakeLedger) records() []domain.BetRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.BetRecord(nil), l.bets...)
}

type fakeAlerts struct {
	mu     sync.Mutex
	events []string
}

func (a *fakeAlerts) Notify(_ context.Context, event, _, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *fakeAlerts) has(event string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.events {
		if e == event {
			return true
		}
	}
	return false
}

type fakeState struct {
	mu       sync.Mutex
	settings *domain.Settings
	active   []string
}

func (s *fakeState) LoadSettings(context.Context) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return domain.Settings{}, domain.ErrNotFound
	}
	return *s.settings, nil
}

func (s *fakeState) SaveSettings(_ context.Context, st domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &st
	return nil
}

func (s *fakeState) LoadActiveRules(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, domain.ErrNotFound
	}
	return append([]string(nil), s.active...), nil
}

func (s *fakeState) SaveActiveRules(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = append([]string(nil), ids...)
	return nil
}

type fakeLocks struct {
	mu   sync.Mutex
	held bool
}

type fakeLease struct{ l *fakeLocks }

func (f *fakeLocks) Acquire(context.Context, string, time.Duration) (domain.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held {
		return nil, domain.ErrLockHeld
	}
	f.held = true
	return fakeLease{l: f}, nil
}

func (l fakeLease) Refresh(context.Context) error { return nil }

func (l fakeLease) Release() {
	l.l.mu.Lock()
	defer l.l.mu.Unlock()
	l.l.held = false
}

var errTransport = errors.New("connection reset")

// fixture wires an engine with fakes.
type fixture struct {
	eng    *Engine
	ex     *fakeExchange
	ledger *fakeLedger
	alerts *fakeAlerts
	state  *fakeState
	clock  *fakeClock
}

func newFixture(markets ...domain.Market) *fixture {
	return newFixtureWithConfig(DefaultConfig(), markets...)
}

func newFixtureWithConfig(cfg Config, markets ...domain.Market) *fixture {
	ex := &fakeExchange{books: map[string]domain.MarketBook{}}
	for _, m := range markets {
		ex.markets = append(ex.markets, catalogueView(m))
		ex.books[m.ID] = bookFor(m)
	}
	f := &fixture{
		ex:     ex,
		ledger: &fakeLedger{},
		alerts: &fakeAlerts{},
		state:  &fakeState{},
		clock:  newFakeClock(),
	}
	f.eng = New(cfg, Deps{
		Markets: ex,
		Orders:  ex,
		Ledger:  f.ledger,
		Rules:   rules.DefaultRegistry(),
		State:   f.state,
		Alerts:  f.alerts,
		Clock:   f.clock,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

// raceMarket builds a GB market starting in startIn with lay prices.
func raceMarket(id, name string, startIn time.Duration, lays ...float64) domain.Market {
	m := domain.Market{
		ID:          id,
		Name:        name,
		Venue:       "Ascot",
		CountryCode: "GB",
		StartTime:   t0.Add(startIn),
		Grade:       domain.ClassifyGrade(name),
	}
	for i, p := range lays {
		m.Runners = append(m.Runners, domain.Runner{
			SelectionID: int64(100 + i),
			Name:        "Horse" + string(rune('A'+i)),
			Status:      domain.RunnerStatusActive,
			Lay:         []domain.PriceSize{{Price: p, Size: 100}},
		})
	}
	return m
}

func catalogueView(m domain.Market) domain.Market {
	out := m
	out.Runners = make([]domain.Runner, len(m.Runners))
	for i, r := range m.Runners {
		r.Lay, r.Back = nil, nil
		out.Runners[i] = r
	}
	return out
}

func bookFor(m domain.Market) domain.MarketBook {
	b := domain.MarketBook{MarketID: m.ID, Status: "OPEN"}
	for _, r := range m.Runners {
		b.Runners = append(b.Runners, domain.RunnerBook{
			SelectionID: r.SelectionID,
			Status:      r.Status,
			Lay:         r.Lay,
		})
	}
	return b
}

func baseSettings() domain.Settings {
	s := domain.DefaultSettings()
	s.MinStake = 1
	s.MaxStake = 2
	s.TotalLimit = 10
	s.DailyLiabilityCap = 50
	s.OnlyPreRace = true
	return s
}
