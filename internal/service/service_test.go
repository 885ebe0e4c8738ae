package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/laybot/internal/cache/memory"
	"github.com/alanyoungcy/laybot/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memBets struct {
	mu      sync.Mutex
	recs    map[string]domain.BetRecord
	failIns error
	block   chan struct{}
}

func newMemBets() *memBets { return &memBets{recs: map[string]domain.BetRecord{}} }

func (m *memBets) Insert(ctx context.Context, rec domain.BetRecord) error {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIns != nil {
		return m.failIns
	}
	if _, ok := m.recs[rec.BetID]; ok {
		return domain.ErrAlreadyExists
	}
	m.recs[rec.BetID] = rec
	return nil
}

func (m *memBets) Settle(_ context.Context, betID string, s domain.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[betID]
	if !ok {
		return domain.ErrNotFound
	}
	if rec.Result != domain.BetResultPending {
		return domain.ErrAlreadySettled
	}
	rec.Result, rec.Returns, rec.ProfitLoss, rec.SettledAt = s.Result, s.Returns, s.ProfitLoss, &s.SettledAt
	m.recs[betID] = rec
	return nil
}

func (m *memBets) GetByBetID(_ context.Context, betID string) (domain.BetRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[betID]
	if !ok {
		return domain.BetRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (m *memBets) List(context.Context, domain.ListOpts) ([]domain.BetRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.BetRecord, 0, len(m.recs))
	for _, r := range m.recs {
		out = append(out, r)
	}
	return out, nil
}

func (m *memBets) ListSettledBefore(context.Context, time.Time) ([]domain.BetRecord, error) {
	return nil, nil
}

func (m *memBets) DeleteSettledBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func (m *memBets) Summary(context.Context) (domain.LedgerSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.LedgerSummary{Bets: int64(len(m.recs))}, nil
}

func (m *memBets) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func pendingBet(id, stake, odds string) domain.BetRecord {
	s := decimal.RequireFromString(stake)
	o := decimal.RequireFromString(odds)
	return domain.BetRecord{
		ID: "rec-" + id, BetID: id, MarketID: "1.1", SelectionID: 5,
		Side: domain.OrderSideLay, Stake: s, Odds: o,
		Liability: s.Mul(o.Sub(decimal.NewFromInt(1))),
		Result:    domain.BetResultPending, PlacedAt: time.Now(),
	}
}

func TestLedgerRecordBetIsAsync(t *testing.T) {
	bets := newMemBets()
	bus := memory.NewSignalBus(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Subscribe(ctx, domain.ChannelBets)
	require.NoError(t, err)

	svc := NewLedgerService(bets, bus, nil, LedgerConfig{}, discardLogger())
	svc.RecordBet(ctx, pendingBet("b1", "2", "3.8"))
	assert.Equal(t, 0, bets.count(), "nothing is written before the worker runs")

	done := make(chan struct{})
	go func() {
		_ = svc.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return bets.count() == 1 }, time.Second, 5*time.Millisecond)
	select {
	case msg := <-events:
		assert.Contains(t, string(msg), "bet_recorded")
	case <-time.After(time.Second):
		t.Fatal("no bet event")
	}

	cancel()
	<-done
}

func TestLedgerFullQueueWritesInline(t *testing.T) {
	bets := newMemBets()
	svc := NewLedgerService(bets, nil, nil, LedgerConfig{QueueSize: 1}, discardLogger())
	ctx := context.Background()

	svc.RecordBet(ctx, pendingBet("b1", "2", "3"))
	svc.RecordBet(ctx, pendingBet("b2", "2", "3"))
	assert.Equal(t, 1, bets.count(), "overflow record written synchronously")

	svc.flush()
	assert.Equal(t, 2, bets.count())
}

func TestLedgerWriteFailureIsSwallowed(t *testing.T) {
	bets := newMemBets()
	bets.failIns = errors.New("disk full")
	svc := NewLedgerService(bets, nil, nil, LedgerConfig{QueueSize: 1}, discardLogger())

	assert.NotPanics(t, func() {
		svc.RecordBet(context.Background(), pendingBet("b1", "2", "3"))
		svc.flush()
	})
	assert.Equal(t, 0, bets.count())
}

func TestLedgerRunFlushesOnShutdown(t *testing.T) {
	bets := newMemBets()
	svc := NewLedgerService(bets, nil, nil, LedgerConfig{}, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())

	for _, id := range []string{"a", "b", "c"} {
		svc.RecordBet(ctx, pendingBet(id, "1", "4"))
	}
	cancel()
	require.NoError(t, svc.Run(ctx))
	assert.Equal(t, 3, bets.count())
}

func TestLedgerRecordSettlement(t *testing.T) {
	bets := newMemBets()
	audit := &memAudit{}
	svc := NewLedgerService(bets, nil, audit, LedgerConfig{Commission: decimal.RequireFromString("0.05")}, discardLogger())
	ctx := context.Background()

	for _, b := range []domain.BetRecord{
		pendingBet("won", "2", "3.8"),
		pendingBet("lost", "2", "3.8"),
		pendingBet("void", "2", "3.8"),
	} {
		require.NoError(t, bets.Insert(ctx, b))
	}

	require.NoError(t, svc.RecordSettlement(ctx, "won", domain.BetResultWon))
	require.NoError(t, svc.RecordSettlement(ctx, "lost", domain.BetResultLost))
	require.NoError(t, svc.RecordSettlement(ctx, "void", domain.BetResultVoid))

	// Stake 2 at 3.8 holds 5.6 liability.
	won, _ := bets.GetByBetID(ctx, "won")
	assert.True(t, won.ProfitLoss.Equal(decimal.RequireFromString("1.9")), won.ProfitLoss.String())
	assert.True(t, won.Returns.Equal(decimal.RequireFromString("7.5")), won.Returns.String())
	lost, _ := bets.GetByBetID(ctx, "lost")
	assert.True(t, lost.ProfitLoss.Equal(decimal.RequireFromString("-5.6")), lost.ProfitLoss.String())
	assert.True(t, lost.Returns.IsZero(), lost.Returns.String())
	void, _ := bets.GetByBetID(ctx, "void")
	assert.True(t, void.ProfitLoss.IsZero())
	assert.True(t, void.Returns.Equal(decimal.RequireFromString("5.6")), void.Returns.String())

	require.ErrorIs(t, svc.RecordSettlement(ctx, "won", domain.BetResultLost), domain.ErrAlreadySettled)
	require.ErrorIs(t, svc.RecordSettlement(ctx, "missing", domain.BetResultWon), domain.ErrNotFound)
	require.Error(t, svc.RecordSettlement(ctx, "void", domain.BetResultPending))
	assert.Equal(t, []string{"bet.settled", "bet.settled", "bet.settled"}, audit.events)
}

type fakeOrders struct {
	placed []domain.LayOrder
	result domain.PlaceResult
	err    error
}

func (f *fakeOrders) PlaceLayOrder(_ context.Context, o domain.LayOrder) (domain.PlaceResult, error) {
	f.placed = append(f.placed, o)
	return f.result, f.err
}

func (f *fakeOrders) CancelOrder(_ context.Context, marketID, betID string) (domain.CancelResult, error) {
	return domain.CancelResult{Status: domain.PlaceStatusSuccess, SizeCancelled: 1}, nil
}

func (f *fakeOrders) CurrentOrders(context.Context, []string) ([]domain.CurrentOrder, error) {
	return []domain.CurrentOrder{{BetID: "1"}}, nil
}

type recordingLedger struct {
	recs []domain.BetRecord
}

func (l *recordingLedger) RecordBet(_ context.Context, rec domain.BetRecord) {
	l.recs = append(l.recs, rec)
}

func (l *recordingLedger) RecordSettlement(context.Context, string, domain.BetResult) error {
	return nil
}

type staticSettings domain.Settings

func (s staticSettings) Settings() domain.Settings { return domain.Settings(s) }

func TestOrderServicePlaceLay(t *testing.T) {
	orders := &fakeOrders{result: domain.PlaceResult{Status: domain.PlaceStatusSuccess, BetID: "77", PlacedAt: time.Now()}}
	ledger := &recordingLedger{}
	audit := &memAudit{}
	svc := NewOrderService(orders, ledger, staticSettings(domain.DefaultSettings()), nil, audit, discardLogger())

	res, err := svc.PlaceLay(context.Background(), ManualLay{MarketID: "1.1", SelectionID: 3, Odds: 4.2, Stake: 2})
	require.NoError(t, err)
	assert.True(t, res.OK())
	require.Len(t, orders.placed, 1)
	assert.Len(t, orders.placed[0].CustomerRef, 32)

	require.Len(t, ledger.recs, 1)
	rec := ledger.recs[0]
	assert.Equal(t, ManualRuleID, rec.RuleID)
	assert.True(t, rec.Liability.Equal(decimal.RequireFromString("6.4")))
	assert.Equal(t, []string{"order.placed"}, audit.events)
}

func TestOrderServiceRejectsOverCap(t *testing.T) {
	orders := &fakeOrders{}
	ledger := &recordingLedger{}
	svc := NewOrderService(orders, ledger, staticSettings(domain.DefaultSettings()), nil, nil, discardLogger())

	_, err := svc.PlaceLay(context.Background(), ManualLay{MarketID: "1.1", SelectionID: 3, Odds: 12, Stake: 2})
	require.ErrorIs(t, err, domain.ErrInvalidOrder)
	assert.Empty(t, orders.placed)

	_, err = svc.PlaceLay(context.Background(), ManualLay{MarketID: "1.1", SelectionID: 3, Odds: 1, Stake: 2})
	require.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestOrderServiceRejectedBetNotRecorded(t *testing.T) {
	orders := &fakeOrders{result: domain.PlaceResult{Status: domain.PlaceStatusFailure, ErrorCode: "INSUFFICIENT_FUNDS"}}
	ledger := &recordingLedger{}
	svc := NewOrderService(orders, ledger, nil, nil, nil, discardLogger())

	res, err := svc.PlaceLay(context.Background(), ManualLay{MarketID: "1.1", SelectionID: 3, Odds: 4, Stake: 2})
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Empty(t, ledger.recs)

	orders.err = errors.New("connection reset")
	_, err = svc.PlaceLay(context.Background(), ManualLay{MarketID: "1.1", SelectionID: 3, Odds: 4, Stake: 2})
	require.Error(t, err)
	assert.Empty(t, ledger.recs)
}

type fakeMarkets struct {
	filter domain.CatalogueFilter
	out    []domain.Market
}

func (f *fakeMarkets) FetchCatalogue(_ context.Context, filter domain.CatalogueFilter) ([]domain.Market, error) {
	f.filter = filter
	return f.out, nil
}

func (f *fakeMarkets) FetchBook(_ context.Context, ids []string) ([]domain.MarketBook, error) {
	out := make([]domain.MarketBook, len(ids))
	for i, id := range ids {
		out[i] = domain.MarketBook{MarketID: id}
	}
	return out, nil
}

func TestMarketServiceCatalogue(t *testing.T) {
	now := time.Date(2026, 3, 1, 22, 30, 0, 0, time.UTC)
	gw := &fakeMarkets{out: []domain.Market{
		{ID: "1.3", StartTime: now.Add(2 * time.Hour)},
		{ID: "1.2", StartTime: now.Add(time.Hour)},
		{ID: "1.1", StartTime: now.Add(time.Hour)},
	}}
	svc := NewMarketService(gw, []string{"GB", "IE"}, discardLogger())
	svc.now = func() time.Time { return now }

	markets, err := svc.Catalogue(context.Background(), CatalogueRequest{})
	require.NoError(t, err)
	ids := []string{markets[0].ID, markets[1].ID, markets[2].ID}
	assert.Equal(t, []string{"1.1", "1.2", "1.3"}, ids)

	f := gw.filter
	assert.Equal(t, []string{"7"}, f.EventTypeIDs)
	assert.Equal(t, []string{"WIN"}, f.MarketTypes)
	assert.Equal(t, []string{"GB", "IE"}, f.Countries)
	assert.Equal(t, DefaultMaxResults, f.MaxResults)
	assert.True(t, f.From.Equal(now))
	assert.True(t, f.To.Equal(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)))

	_, err = svc.Catalogue(context.Background(), CatalogueRequest{Countries: []string{"FR"}, MaxResults: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"FR"}, gw.filter.Countries)
	assert.Equal(t, 5, gw.filter.MaxResults)
}

func TestMarketServiceBooks(t *testing.T) {
	svc := NewMarketService(&fakeMarkets{}, nil, discardLogger())
	_, err := svc.Books(context.Background(), nil)
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	books, err := svc.Books(context.Background(), []string{"1.1"})
	require.NoError(t, err)
	require.Len(t, books, 1)
}
