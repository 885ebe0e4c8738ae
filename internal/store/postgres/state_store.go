package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/laybot/internal/domain"
)

const (
	stateKeySettings    = "settings"
	stateKeyActiveRules = "active_rules"
)

// StateStore implements domain.StateStore on the engine_state key/value
// table. Values are JSONB.
type StateStore struct {
	pool *pgxpool.Pool
}

// NewStateStore creates a StateStore backed by the given pool.
func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{pool: pool}
}

// LoadSettings returns domain.ErrNotFound when nothing has been saved.
func (s *StateStore) LoadSettings(ctx context.Context) (domain.Settings, error) {
	var st domain.Settings
	if err := s.get(ctx, stateKeySettings, &st); err != nil {
		return domain.Settings{}, err
	}
	return st, nil
}

func (s *StateStore) SaveSettings(ctx context.Context, st domain.Settings) error {
	return s.put(ctx, stateKeySettings, st)
}

// LoadActiveRules returns domain.ErrNotFound when nothing has been saved.
func (s *StateStore) LoadActiveRules(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.get(ctx, stateKeyActiveRules, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *StateStore) SaveActiveRules(ctx context.Context, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	return s.put(ctx, stateKeyActiveRules, ids)
}

func (s *StateStore) get(ctx context.Context, key string, out any) error {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM engine_state WHERE key = $1`, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("postgres: get state %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("postgres: unmarshal state %s: %w", key, err)
	}
	return nil
}

func (s *StateStore) put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("postgres: marshal state %s: %w", key, err)
	}
	const query = `
		INSERT INTO engine_state (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			value      = EXCLUDED.value,
			updated_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, key, raw); err != nil {
		return fmt.Errorf("postgres: put state %s: %w", key, err)
	}
	return nil
}

var _ domain.StateStore = (*StateStore)(nil)
