// Package badger persists engine settings and the active rule set in an
// embedded Badger key/value store, optionally encrypted at rest.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/alanyoungcy/laybot/internal/domain"
)

const (
	keySettings    = "engine/settings"
	keyActiveRules = "engine/active_rules"
)

// Options configure Open.
type Options struct {
	Path string
	// InMemory ignores Path and keeps everything in RAM.
	InMemory bool
	// EncryptionKey must be 16, 24 or 32 bytes when set.
	EncryptionKey []byte
}

// StateStore implements domain.StateStore.
type StateStore struct {
	db *badger.DB
}

// Open opens the store.
func Open(opts Options) (*StateStore, error) {
	var bopts badger.Options
	switch {
	case opts.InMemory:
		bopts = badger.DefaultOptions("").WithInMemory(true)
	case strings.TrimSpace(opts.Path) != "":
		bopts = badger.DefaultOptions(opts.Path)
	default:
		return nil, errors.New("badger: path is required")
	}
	bopts = bopts.WithLogger(nil)
	if len(opts.EncryptionKey) > 0 {
		// Encrypted workloads need an index cache.
		bopts = bopts.WithEncryptionKey(opts.EncryptionKey).WithIndexCacheSize(16 << 20)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("badger: open: %w", err)
	}
	return &StateStore{db: db}, nil
}

// Close closes the database.
func (s *StateStore) Close() error {
	return s.db.Close()
}

// LoadSettings returns domain.ErrNotFound when nothing has been saved.
func (s *StateStore) LoadSettings(_ context.Context) (domain.Settings, error) {
	var st domain.Settings
	if err := s.get(keySettings, &st); err != nil {
		return domain.Settings{}, err
	}
	return st, nil
}

func (s *StateStore) SaveSettings(_ context.Context, st domain.Settings) error {
	return s.put(keySettings, st)
}

// LoadActiveRules returns domain.ErrNotFound when nothing has been saved.
func (s *StateStore) LoadActiveRules(_ context.Context) ([]string, error) {
	var ids []string
	if err := s.get(keyActiveRules, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *StateStore) SaveActiveRules(_ context.Context, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	return s.put(keyActiveRules, ids)
}

func (s *StateStore) get(key string, out any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("badger: get %s: %w", key, err)
	}
	return nil
}

func (s *StateStore) put(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("badger: marshal %s: %w", key, err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	}); err != nil {
		return fmt.Errorf("badger: put %s: %w", key, err)
	}
	return nil
}

var _ domain.StateStore = (*StateStore)(nil)
