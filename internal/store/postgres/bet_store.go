package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/laybot/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL. Money columns are
// NUMERIC and cross the wire as text so no precision is lost.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a BetStore backed by the given pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

const betSelectCols = `id, bet_id, market_id, market_name, venue, start_time,
	selection_id, selection_name, side, stake::text, odds::text, liability::text,
	rule_id, result, returns::text, profit_loss::text, placed_at, settled_at`

// Insert adds a new ledger row. A duplicate bet ID returns
// domain.ErrAlreadyExists.
func (s *BetStore) Insert(ctx context.Context, rec domain.BetRecord) error {
	const query = `
		INSERT INTO bets (
			id, bet_id, market_id, market_name, venue, start_time,
			selection_id, selection_name, side, stake, odds, liability,
			rule_id, result, returns, profit_loss, placed_at, settled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10::numeric, $11::numeric, $12::numeric,
			$13, $14, $15::numeric, $16::numeric, $17, $18
		)`

	var startTime *time.Time
	if !rec.StartTime.IsZero() {
		startTime = &rec.StartTime
	}
	result := rec.Result
	if result == "" {
		result = domain.BetResultPending
	}

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.BetID, rec.MarketID, rec.MarketName, rec.Venue, startTime,
		rec.SelectionID, rec.SelectionName, string(rec.Side),
		rec.Stake.String(), rec.Odds.String(), rec.Liability.String(),
		rec.RuleID, string(result), rec.Returns.String(), rec.ProfitLoss.String(), rec.PlacedAt, rec.SettledAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: insert bet %s: %w", rec.BetID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: insert bet %s: %w", rec.BetID, err)
	}
	return nil
}

// Settle applies a settlement to a pending bet.
func (s *BetStore) Settle(ctx context.Context, betID string, st domain.Settlement) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bets SET result = $1, returns = $2::numeric, profit_loss = $3::numeric, settled_at = $4
		WHERE bet_id = $5 AND result = 'pending'`,
		string(st.Result), st.Returns.String(), st.ProfitLoss.String(), st.SettledAt, betID,
	)
	if err != nil {
		return fmt.Errorf("postgres: settle bet %s: %w", betID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM bets WHERE bet_id = $1)`, betID).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: settle bet %s: %w", betID, err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return domain.ErrAlreadySettled
}

// GetByBetID returns the ledger row for an exchange bet ID.
func (s *BetStore) GetByBetID(ctx context.Context, betID string) (domain.BetRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+betSelectCols+` FROM bets WHERE bet_id = $1`, betID)
	rec, err := scanBet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BetRecord{}, domain.ErrNotFound
		}
		return domain.BetRecord{}, fmt.Errorf("postgres: get bet %s: %w", betID, err)
	}
	return rec, nil
}

// List returns bets newest first, filtered by placement time.
func (s *BetStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.BetRecord, error) {
	query, args := withListOpts(`SELECT `+betSelectCols+` FROM bets WHERE 1=1`, nil,
		"placed_at", "placed_at DESC, id DESC", opts)
	return s.query(ctx, "list bets", query, args...)
}

// ListSettledBefore returns settled bets whose settlement is older than
// before, oldest first.
func (s *BetStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.BetRecord, error) {
	return s.query(ctx, "list settled bets",
		`SELECT `+betSelectCols+` FROM bets
		 WHERE settled_at IS NOT NULL AND settled_at < $1
		 ORDER BY settled_at, id`, before)
}

// DeleteSettledBefore removes settled bets older than before.
func (s *BetStore) DeleteSettledBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM bets WHERE settled_at IS NOT NULL AND settled_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete settled bets: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Summary aggregates the whole ledger.
func (s *BetStore) Summary(ctx context.Context) (domain.LedgerSummary, error) {
	const query = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE result = 'pending'),
			COUNT(*) FILTER (WHERE result = 'won'),
			COUNT(*) FILTER (WHERE result = 'lost'),
			COUNT(*) FILTER (WHERE result = 'void'),
			COALESCE(SUM(stake), 0)::text,
			COALESCE(SUM(liability), 0)::text,
			COALESCE(SUM(profit_loss), 0)::text
		FROM bets`

	var sum domain.LedgerSummary
	var staked, liability, pl string
	if err := s.pool.QueryRow(ctx, query).Scan(
		&sum.Bets, &sum.Pending, &sum.Won, &sum.Lost, &sum.Void,
		&staked, &liability, &pl,
	); err != nil {
		return domain.LedgerSummary{}, fmt.Errorf("postgres: bet summary: %w", err)
	}

	var err error
	if sum.TotalStaked, err = decimal.NewFromString(staked); err != nil {
		return domain.LedgerSummary{}, fmt.Errorf("postgres: bet summary: %w", err)
	}
	if sum.TotalLiability, err = decimal.NewFromString(liability); err != nil {
		return domain.LedgerSummary{}, fmt.Errorf("postgres: bet summary: %w", err)
	}
	if sum.ProfitLoss, err = decimal.NewFromString(pl); err != nil {
		return domain.LedgerSummary{}, fmt.Errorf("postgres: bet summary: %w", err)
	}
	return sum, nil
}

func (s *BetStore) query(ctx context.Context, op, query string, args ...any) ([]domain.BetRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.BetRecord
	for rows.Next() {
		rec, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: %s: scan: %w", op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return out, nil
}

func scanBet(scanner interface{ Scan(dest ...any) error }) (domain.BetRecord, error) {
	var rec domain.BetRecord
	var startTime *time.Time
	var side, result, stake, odds, liability, returns, pl string

	err := scanner.Scan(
		&rec.ID, &rec.BetID, &rec.MarketID, &rec.MarketName, &rec.Venue, &startTime,
		&rec.SelectionID, &rec.SelectionName, &side, &stake, &odds, &liability,
		&rec.RuleID, &result, &returns, &pl, &rec.PlacedAt, &rec.SettledAt,
	)
	if err != nil {
		return domain.BetRecord{}, err
	}
	if startTime != nil {
		rec.StartTime = *startTime
	}
	rec.Side = domain.OrderSide(side)
	rec.Result = domain.BetResult(result)

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&rec.Stake, stake}, {&rec.Odds, odds}, {&rec.Liability, liability},
		{&rec.Returns, returns}, {&rec.ProfitLoss, pl},
	} {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return domain.BetRecord{}, fmt.Errorf("parse decimal %q: %w", f.src, err)
		}
		*f.dst = d
	}
	return rec, nil
}

var _ domain.BetStore = (*BetStore)(nil)
