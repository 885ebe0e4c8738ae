package domain

import (
	"context"
	"time"
)

// RateLimiter provides keyed sliding-window rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Wait blocks until a slot for key is available under limit/window or
	// ctx is done.
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// Lease is a held lock.
type Lease interface {
	// Refresh extends the lease by its original TTL. It returns ErrLockHeld
	// when the lease has been lost.
	Refresh(ctx context.Context) error
	// Release gives the lock up. Safe to call more than once.
	Release()
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Bus channel and stream names.
const (
	ChannelActivity = "laybot:activity"
	ChannelSession  = "laybot:session"
	ChannelBets     = "laybot:bets"
	StreamActivity  = "laybot:activity:log"
)
