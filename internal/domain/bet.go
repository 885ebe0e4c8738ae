package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BetResult is the settlement state of a ledger record, seen from the layer.
type BetResult string

const (
	BetResultPending BetResult = "pending"
	BetResultWon     BetResult = "won"  // laid selection lost
	BetResultLost    BetResult = "lost" // laid selection won
	BetResultVoid    BetResult = "void"
)

// Valid reports whether r is a known result.
func (r BetResult) Valid() bool {
	switch r {
	case BetResultPending, BetResultWon, BetResultLost, BetResultVoid:
		return true
	}
	return false
}

// BetRecord is one placed lay bet in the history ledger.
type BetRecord struct {
	ID            string          `json:"id"`
	BetID         string          `json:"bet_id"`
	MarketID      string          `json:"market_id"`
	MarketName    string          `json:"market_name"`
	Venue         string          `json:"venue"`
	StartTime     time.Time       `json:"start_time"`
	SelectionID   int64           `json:"selection_id"`
	SelectionName string          `json:"selection_name"`
	Side          OrderSide       `json:"side"`
	Stake         decimal.Decimal `json:"stake"`
	Odds          decimal.Decimal `json:"odds"`
	Liability     decimal.Decimal `json:"liability"`
	RuleID        string          `json:"rule_id"`
	Result        BetResult       `json:"result"`
	Returns       decimal.Decimal `json:"returns"`
	ProfitLoss    decimal.Decimal `json:"profit_loss"`
	PlacedAt      time.Time       `json:"placed_at"`
	SettledAt     *time.Time      `json:"settled_at,omitempty"`
}

// Settlement is a settlement outcome to apply to a pending record.
type Settlement struct {
	Result     BetResult
	Returns    decimal.Decimal
	ProfitLoss decimal.Decimal
	SettledAt  time.Time
}

// SettleLay computes the profit or loss of a lay bet for the given result.
// commission is a fraction applied to winnings only.
func SettleLay(stake, liability decimal.Decimal, result BetResult, commission decimal.Decimal) decimal.Decimal {
	switch result {
	case BetResultWon:
		return stake.Mul(decimal.NewFromInt(1).Sub(commission)).Round(2)
	case BetResultLost:
		return liability.Neg().Round(2)
	default:
		return decimal.Zero
	}
}

// LayReturns is the amount credited back to the account when a lay bet
// settles: the released liability plus the profit or loss. A won lay returns
// liability plus net winnings, a lost lay returns nothing and a void lay
// refunds the liability.
func LayReturns(stake, liability decimal.Decimal, result BetResult, commission decimal.Decimal) decimal.Decimal {
	if result == BetResultPending {
		return decimal.Zero
	}
	return liability.Add(SettleLay(stake, liability, result, commission)).Round(2)
}

// LedgerSummary aggregates the ledger.
type LedgerSummary struct {
	Bets           int64           `json:"bets"`
	Pending        int64           `json:"pending"`
	Won            int64           `json:"won"`
	Lost           int64           `json:"lost"`
	Void           int64           `json:"void"`
	TotalStaked    decimal.Decimal `json:"total_staked"`
	TotalLiability decimal.Decimal `json:"total_liability"`
	ProfitLoss     decimal.Decimal `json:"profit_loss"`
}
