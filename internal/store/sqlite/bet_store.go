package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/laybot/internal/domain"
)

// BetStore implements domain.BetStore on SQLite. Money is stored as decimal
// text.
type BetStore struct {
	db *sql.DB
}

// NewBetStore returns a BetStore on d.
func NewBetStore(d *DB) *BetStore {
	return &BetStore{db: d.db}
}

const betSelectCols = `id, bet_id, market_id, market_name, venue, start_time,
	selection_id, selection_name, side, stake, odds, liability,
	rule_id, result, returns, profit_loss, placed_at, settled_at`

// Insert adds a new ledger row. A duplicate bet ID returns
// domain.ErrAlreadyExists.
func (s *BetStore) Insert(ctx context.Context, rec domain.BetRecord) error {
	var startTime, settledAt sql.NullInt64
	if !rec.StartTime.IsZero() {
		startTime = sql.NullInt64{Int64: toMillis(rec.StartTime), Valid: true}
	}
	if rec.SettledAt != nil {
		settledAt = sql.NullInt64{Int64: toMillis(*rec.SettledAt), Valid: true}
	}
	result := rec.Result
	if result == "" {
		result = domain.BetResultPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bets (`+betSelectCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.BetID, rec.MarketID, rec.MarketName, rec.Venue, startTime,
		rec.SelectionID, rec.SelectionName, string(rec.Side),
		rec.Stake.String(), rec.Odds.String(), rec.Liability.String(),
		rec.RuleID, string(result), rec.Returns.String(), rec.ProfitLoss.String(), toMillis(rec.PlacedAt), settledAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("sqlite: insert bet %s: %w", rec.BetID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("sqlite: insert bet %s: %w", rec.BetID, err)
	}
	return nil
}

// Settle applies a settlement to a pending bet.
func (s *BetStore) Settle(ctx context.Context, betID string, st domain.Settlement) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bets SET result = ?, returns = ?, profit_loss = ?, settled_at = ?
		WHERE bet_id = ? AND result = 'pending'`,
		string(st.Result), st.Returns.String(), st.ProfitLoss.String(), toMillis(st.SettledAt), betID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: settle bet %s: %w", betID, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM bets WHERE bet_id = ?`, betID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("sqlite: settle bet %s: %w", betID, err)
	}
	return domain.ErrAlreadySettled
}

// GetByBetID returns the ledger row for an exchange bet ID.
func (s *BetStore) GetByBetID(ctx context.Context, betID string) (domain.BetRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+betSelectCols+` FROM bets WHERE bet_id = ?`, betID)
	rec, err := scanBet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BetRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.BetRecord{}, fmt.Errorf("sqlite: get bet %s: %w", betID, err)
	}
	return rec, nil
}

// List returns bets newest first, filtered by placement time.
func (s *BetStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.BetRecord, error) {
	query, args := withListOpts(`SELECT `+betSelectCols+` FROM bets WHERE 1=1`,
		"placed_at", "placed_at DESC, id DESC", opts)
	return s.query(ctx, "list bets", query, args...)
}

// ListSettledBefore returns settled bets older than before, oldest first.
func (s *BetStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.BetRecord, error) {
	return s.query(ctx, "list settled bets",
		`SELECT `+betSelectCols+` FROM bets
		 WHERE settled_at IS NOT NULL AND settled_at < ?
		 ORDER BY settled_at, id`, toMillis(before))
}

// DeleteSettledBefore removes settled bets older than before.
func (s *BetStore) DeleteSettledBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM bets WHERE settled_at IS NOT NULL AND settled_at < ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete settled bets: %w", err)
	}
	return res.RowsAffected()
}

// Summary aggregates the whole ledger. Sums are done in decimal on the Go
// side; SQLite has no exact numeric type.
func (s *BetStore) Summary(ctx context.Context) (domain.LedgerSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT result, stake, liability, profit_loss FROM bets`)
	if err != nil {
		return domain.LedgerSummary{}, fmt.Errorf("sqlite: bet summary: %w", err)
	}
	defer rows.Close()

	sum := domain.LedgerSummary{
		TotalStaked:    decimal.Zero,
		TotalLiability: decimal.Zero,
		ProfitLoss:     decimal.Zero,
	}
	for rows.Next() {
		var result, stake, liability, pl string
		if err := rows.Scan(&result, &stake, &liability, &pl); err != nil {
			return domain.LedgerSummary{}, fmt.Errorf("sqlite: bet summary scan: %w", err)
		}
		sum.Bets++
		switch domain.BetResult(result) {
		case domain.BetResultPending:
			sum.Pending++
		case domain.BetResultWon:
			sum.Won++
		case domain.BetResultLost:
			sum.Lost++
		case domain.BetResultVoid:
			sum.Void++
		}
		sum.TotalStaked = sum.TotalStaked.Add(decimal.RequireFromString(stake))
		sum.TotalLiability = sum.TotalLiability.Add(decimal.RequireFromString(liability))
		sum.ProfitLoss = sum.ProfitLoss.Add(decimal.RequireFromString(pl))
	}
	if err := rows.Err(); err != nil {
		return domain.LedgerSummary{}, fmt.Errorf("sqlite: bet summary rows: %w", err)
	}
	return sum, nil
}

func (s *BetStore) query(ctx context.Context, op, query string, args ...any) ([]domain.BetRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.BetRecord
	for rows.Next() {
		rec, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %s: scan: %w", op, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %s rows: %w", op, err)
	}
	return out, nil
}

func scanBet(scanner interface{ Scan(dest ...any) error }) (domain.BetRecord, error) {
	var rec domain.BetRecord
	var startTime, settledAt sql.NullInt64
	var placedAt int64
	var side, result, stake, odds, liability, returns, pl string

	if err := scanner.Scan(
		&rec.ID, &rec.BetID, &rec.MarketID, &rec.MarketName, &rec.Venue, &startTime,
		&rec.SelectionID, &rec.SelectionName, &side, &stake, &odds, &liability,
		&rec.RuleID, &result, &returns, &pl, &placedAt, &settledAt,
	); err != nil {
		return domain.BetRecord{}, err
	}

	rec.Side = domain.OrderSide(side)
	rec.Result = domain.BetResult(result)
	rec.PlacedAt = fromMillis(placedAt)
	if startTime.Valid {
		rec.StartTime = fromMillis(startTime.Int64)
	}
	if settledAt.Valid {
		t := fromMillis(settledAt.Int64)
		rec.SettledAt = &t
	}

	var err error
	if rec.Stake, err = decimal.NewFromString(stake); err != nil {
		return domain.BetRecord{}, err
	}
	if rec.Odds, err = decimal.NewFromString(odds); err != nil {
		return domain.BetRecord{}, err
	}
	if rec.Liability, err = decimal.NewFromString(liability); err != nil {
		return domain.BetRecord{}, err
	}
	if rec.Returns, err = decimal.NewFromString(returns); err != nil {
		return domain.BetRecord{}, err
	}
	if rec.ProfitLoss, err = decimal.NewFromString(pl); err != nil {
		return domain.BetRecord{}, err
	}
	return rec, nil
}

// withListOpts appends time window, order and paging to a query that
// already has a WHERE clause. col holds Unix milliseconds.
func withListOpts(query, col, order string, opts domain.ListOpts) (string, []any) {
	var args []any
	if opts.Since != nil {
		query += " AND " + col + " >= ?"
		args = append(args, toMillis(*opts.Since))
	}
	if opts.Until != nil {
		query += " AND " + col + " <= ?"
		args = append(args, toMillis(*opts.Until))
	}
	query += " ORDER BY " + order
	switch {
	case opts.Limit > 0:
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	case opts.Offset > 0:
		query += " LIMIT -1"
	}
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}
	return query, args
}

var _ domain.BetStore = (*BetStore)(nil)
