package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// BetStore persists the bet ledger.
type BetStore interface {
	Insert(ctx context.Context, rec BetRecord) error
	// Settle moves a pending record to a final result. It returns
	// ErrNotFound for an unknown bet and ErrAlreadySettled when the record
	// has already left the pending state.
	Settle(ctx context.Context, betID string, s Settlement) error
	GetByBetID(ctx context.Context, betID string) (BetRecord, error)
	List(ctx context.Context, opts ListOpts) ([]BetRecord, error)
	ListSettledBefore(ctx context.Context, before time.Time) ([]BetRecord, error)
	DeleteSettledBefore(ctx context.Context, before time.Time) (int64, error)
	Summary(ctx context.Context) (LedgerSummary, error)
}

// Ledger is the engine's write path into bet history. Calls must not block
// the caller on storage I/O.
type Ledger interface {
	RecordBet(ctx context.Context, rec BetRecord)
	RecordSettlement(ctx context.Context, betID string, result BetResult) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// StateStore persists the user's engine configuration between runs. Session
// counters and the running flag are never stored.
type StateStore interface {
	LoadSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
	LoadActiveRules(ctx context.Context) ([]string, error)
	SaveActiveRules(ctx context.Context, ids []string) error
}
