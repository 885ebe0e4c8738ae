// Package memory provides single-process implementations of the rate
// limiter, lock manager and signal bus. They back the engine when no Redis
// is configured.
package memory

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/laybot/internal/domain"
)

const waitPollInterval = 25 * time.Millisecond

// RateLimiter is a keyed sliding-window limiter.
type RateLimiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

// NewRateLimiter returns an empty RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{hits: make(map[string][]time.Time), now: time.Now}
}

// Allow reports whether one more request for key fits under limit per
// window. An allowed request is counted.
func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-window)
	kept := rl.hits[key][:0]
	for _, t := range rl.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= limit {
		rl.hits[key] = kept
		return false, nil
	}
	rl.hits[key] = append(kept, now)
	return true, nil
}

// Wait polls Allow until a slot opens or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, key string, limit int, window time.Duration) error {
	for {
		ok, err := rl.Allow(ctx, key, limit, window)
		if err != nil || ok {
			return err
		}
		timer := time.NewTimer(waitPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// LockManager hands out process-local leases.
type LockManager struct {
	mu   sync.Mutex
	held map[string]lockEntry
	now  func() time.Time
	seq  uint64
}

type lockEntry struct {
	token   uint64
	expires time.Time
}

// NewLockManager returns an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]lockEntry), now: time.Now}
}

// Acquire takes the lock for key or returns domain.ErrLockHeld.
func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (domain.Lease, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := lm.now()
	if e, ok := lm.held[key]; ok && now.Before(e.expires) {
		return nil, domain.ErrLockHeld
	}
	lm.seq++
	lm.held[key] = lockEntry{token: lm.seq, expires: now.Add(ttl)}
	return &lease{lm: lm, key: key, token: lm.seq, ttl: ttl}, nil
}

type lease struct {
	lm    *LockManager
	key   string
	token uint64
	ttl   time.Duration
}

func (l *lease) Refresh(context.Context) error {
	l.lm.mu.Lock()
	defer l.lm.mu.Unlock()

	now := l.lm.now()
	e, ok := l.lm.held[l.key]
	if !ok || e.token != l.token || !now.Before(e.expires) {
		return domain.ErrLockHeld
	}
	e.expires = now.Add(l.ttl)
	l.lm.held[l.key] = e
	return nil
}

func (l *lease) Release() {
	l.lm.mu.Lock()
	defer l.lm.mu.Unlock()
	if e, ok := l.lm.held[l.key]; ok && e.token == l.token {
		delete(l.lm.held, l.key)
	}
}

// SignalBus fans published payloads out to subscribers and keeps bounded
// in-memory streams.
type SignalBus struct {
	mu      sync.Mutex
	subs    map[int]subscriber
	nextSub int
	streams map[string][]domain.StreamMessage
	seq     map[string]int64
	maxLen  int
}

type subscriber struct {
	pattern string
	ch      chan []byte
}

// NewSignalBus returns a SignalBus whose streams keep at most maxLen entries.
func NewSignalBus(maxLen int) *SignalBus {
	if maxLen <= 0 {
		maxLen = 5000
	}
	return &SignalBus{
		subs:    make(map[int]subscriber),
		streams: make(map[string][]domain.StreamMessage),
		seq:     make(map[string]int64),
		maxLen:  maxLen,
	}
}

// Publish delivers payload to every matching subscriber. Slow subscribers
// drop messages rather than block the publisher.
func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if !matches(s.pattern, channel) {
			continue
		}
		msg := append([]byte(nil), payload...)
		select {
		case s.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe returns payloads published on channel. A trailing "*" matches
// any suffix. The channel closes when ctx is done.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 128)

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = subscriber{pattern: channel, ch: ch}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

func matches(pattern, channel string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(channel, prefix)
	}
	return pattern == channel
}

// StreamAppend adds payload to stream.
func (b *SignalBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq[stream]++
	msgs := append(b.streams[stream], domain.StreamMessage{
		ID:      strconv.FormatInt(b.seq[stream], 10) + "-0",
		Payload: append([]byte(nil), payload...),
	})
	if len(msgs) > b.maxLen {
		msgs = msgs[len(msgs)-b.maxLen:]
	}
	b.streams[stream] = msgs
	return nil
}

// StreamRead returns up to count entries after lastID.
func (b *SignalBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	after := streamSeq(lastID)

	b.mu.Lock()
	defer b.mu.Unlock()

	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		if streamSeq(m.ID) <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

// StreamTail returns the newest count entries, oldest first.
func (b *SignalBus) StreamTail(_ context.Context, stream string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	msgs := b.streams[stream]
	if count > 0 && len(msgs) > count {
		msgs = msgs[len(msgs)-count:]
	}
	return append([]domain.StreamMessage(nil), msgs...), nil
}

func streamSeq(id string) int64 {
	head, _, _ := strings.Cut(id, "-")
	n, err := strconv.ParseInt(head, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

var (
	_ domain.RateLimiter = (*RateLimiter)(nil)
	_ domain.LockManager = (*LockManager)(nil)
	_ domain.SignalBus   = (*SignalBus)(nil)
)
