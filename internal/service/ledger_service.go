package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/laybot/internal/domain"
)

// LedgerConfig tunes the ledger writer.
type LedgerConfig struct {
	QueueSize int
	// WriteTimeout bounds a single store write.
	WriteTimeout time.Duration
	// Commission is the exchange commission on net winnings, as a fraction.
	Commission decimal.Decimal
}

// LedgerService is the engine's write path into bet history. RecordBet
// queues the record for a background writer so placement never waits on
// storage; when the queue is full it falls back to a bounded synchronous
// write.
type LedgerService struct {
	bets   domain.BetStore
	bus    domain.SignalBus
	audit  domain.AuditStore
	cfg    LedgerConfig
	queue  chan domain.BetRecord
	now    func() time.Time
	logger *slog.Logger
}

// NewLedgerService creates a LedgerService. bus and audit may be nil.
func NewLedgerService(
	bets domain.BetStore,
	bus domain.SignalBus,
	audit domain.AuditStore,
	cfg LedgerConfig,
	logger *slog.Logger,
) *LedgerService {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &LedgerService{
		bets:   bets,
		bus:    bus,
		audit:  audit,
		cfg:    cfg,
		queue:  make(chan domain.BetRecord, cfg.QueueSize),
		now:    time.Now,
		logger: logger.With(slog.String("component", "ledger")),
	}
}

// RecordBet queues rec for persistence. It never returns an error; write
// failures are logged.
func (s *LedgerService) RecordBet(ctx context.Context, rec domain.BetRecord) {
	select {
	case s.queue <- rec:
		return
	default:
	}

	s.logger.WarnContext(ctx, "ledger queue full, writing inline", slog.String("bet_id", rec.BetID))
	s.write(context.WithoutCancel(ctx), rec)
}

// Run drains the queue until ctx is done, then flushes what is left.
func (s *LedgerService) Run(ctx context.Context) error {
	for {
		select {
		case rec := <-s.queue:
			s.write(ctx, rec)
		case <-ctx.Done():
			s.flush()
			return nil
		}
	}
}

func (s *LedgerService) flush() {
	ctx := context.Background()
	for {
		select {
		case rec := <-s.queue:
			s.write(ctx, rec)
		default:
			return
		}
	}
}

func (s *LedgerService) write(ctx context.Context, rec domain.BetRecord) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
	defer cancel()

	if err := s.bets.Insert(wctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "ledger insert failed",
			slog.String("bet_id", rec.BetID),
			slog.String("market_id", rec.MarketID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.publish(wctx, "bet_recorded", rec)
}

// RecordSettlement settles a pending bet and computes its profit or loss
// from the stored stake and liability.
func (s *LedgerService) RecordSettlement(ctx context.Context, betID string, result domain.BetResult) error {
	if !result.Valid() || result == domain.BetResultPending {
		return fmt.Errorf("ledger: invalid settlement result %q", result)
	}

	rec, err := s.bets.GetByBetID(ctx, betID)
	if err != nil {
		return fmt.Errorf("ledger: settle %s: %w", betID, err)
	}
	if rec.Result != domain.BetResultPending {
		return fmt.Errorf("ledger: settle %s: %w", betID, domain.ErrAlreadySettled)
	}

	settledAt := s.now().UTC()
	st := domain.Settlement{
		Result:     result,
		Returns:    domain.LayReturns(rec.Stake, rec.Liability, result, s.cfg.Commission),
		ProfitLoss: domain.SettleLay(rec.Stake, rec.Liability, result, s.cfg.Commission),
		SettledAt:  settledAt,
	}
	if err := s.bets.Settle(ctx, betID, st); err != nil {
		return fmt.Errorf("ledger: settle %s: %w", betID, err)
	}

	rec.Result = st.Result
	rec.Returns = st.Returns
	rec.ProfitLoss = st.ProfitLoss
	rec.SettledAt = &settledAt
	s.publish(ctx, "bet_settled", rec)

	if s.audit != nil {
		if err := s.audit.Log(ctx, "bet.settled", map[string]any{
			"bet_id":      betID,
			"result":      string(result),
			"returns":     st.Returns.String(),
			"profit_loss": st.ProfitLoss.String(),
		}); err != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	s.logger.InfoContext(ctx, "bet settled",
		slog.String("bet_id", betID),
		slog.String("result", string(result)),
		slog.String("returns", st.Returns.String()),
		slog.String("profit_loss", st.ProfitLoss.String()),
	)
	return nil
}

// Get returns one bet by exchange bet ID.
func (s *LedgerService) Get(ctx context.Context, betID string) (domain.BetRecord, error) {
	rec, err := s.bets.GetByBetID(ctx, betID)
	if err != nil {
		return domain.BetRecord{}, fmt.Errorf("ledger: get %s: %w", betID, err)
	}
	return rec, nil
}

// List returns ledger rows, newest first.
func (s *LedgerService) List(ctx context.Context, opts domain.ListOpts) ([]domain.BetRecord, error) {
	recs, err := s.bets.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	return recs, nil
}

// Summary aggregates the ledger.
func (s *LedgerService) Summary(ctx context.Context) (domain.LedgerSummary, error) {
	sum, err := s.bets.Summary(ctx)
	if err != nil {
		return domain.LedgerSummary{}, fmt.Errorf("ledger: summary: %w", err)
	}
	return sum, nil
}

func (s *LedgerService) publish(ctx context.Context, event string, rec domain.BetRecord) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{"event": event, "bet": rec})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelBets, payload); err != nil {
		s.logger.WarnContext(ctx, "publish bet event failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

var _ domain.Ledger = (*LedgerService)(nil)
