package engine

import (
	"sync"

	"github.com/alanyoungcy/laybot/internal/domain"
)

// Trail keeps the most recent activity entries in insertion order.
type Trail struct {
	mu      sync.Mutex
	entries []domain.Activity
	limit   int
}

// NewTrail returns a Trail that retains at most limit entries.
func NewTrail(limit int) *Trail {
	if limit <= 0 {
		limit = 10
	}
	return &Trail{limit: limit}
}

// Add appends an entry, evicting the oldest when full.
func (t *Trail) Add(a domain.Activity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, a)
	if over := len(t.entries) - t.limit; over > 0 {
		t.entries = append(t.entries[:0:0], t.entries[over:]...)
	}
}

// Recent returns up to n entries, newest first. n <= 0 returns everything
// retained.
func (t *Trail) Recent(n int) []domain.Activity {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n <= 0 || n > len(t.entries) {
		n = len(t.entries)
	}
	out := make([]domain.Activity, 0, n)
	for i := len(t.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, t.entries[i])
	}
	return out
}
