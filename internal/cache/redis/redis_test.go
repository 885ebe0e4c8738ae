package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/laybot/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestNewFromURL(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{URL: "redis://" + mr.Addr() + "/0"})
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Ping(context.Background()))

	_, err = New(context.Background(), ClientConfig{URL: "://bad"})
	require.Error(t, err)
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := rl.Allow(ctx, "1.234", 5, time.Second)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "1.234", 5, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// Other keys have their own window.
	ok, err = rl.Allow(ctx, "1.999", 5, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(1100 * time.Millisecond)
	ok, err = rl.Allow(ctx, "1.234", 5, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiterWaitHonoursContext(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, rl.Wait(ctx, "k", 1, time.Minute))

	wctx, cancel := context.WithTimeout(ctx, 120*time.Millisecond)
	defer cancel()
	err := rl.Wait(wctx, "k", 1, time.Minute)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLockLease(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	lease, err := lm.Acquire(ctx, "engine", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "engine", time.Minute)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	mr.FastForward(30 * time.Second)
	require.NoError(t, lease.Refresh(ctx))
	assert.Greater(t, mr.TTL("lock:engine"), 50*time.Second)

	lease.Release()
	lease.Release()
	assert.False(t, mr.Exists("lock:engine"))
	require.ErrorIs(t, lease.Refresh(ctx), domain.ErrLockHeld)

	again, err := lm.Acquire(ctx, "engine", time.Minute)
	require.NoError(t, err)
	again.Release()
}

func TestLockReleaseDoesNotStealNewHolder(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	first, err := lm.Acquire(ctx, "engine", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	second, err := lm.Acquire(ctx, "engine", time.Minute)
	require.NoError(t, err)

	first.Release()
	assert.True(t, mr.Exists("lock:engine"))
	second.Release()
}

func TestSignalBusPubSub(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, "laybot:*")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.ChannelActivity, []byte(`{"kind":"bet_placed"}`)))
	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"kind":"bet_placed"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	assert.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSignalBusStreams(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx := context.Background()

	msgs, err := bus.StreamRead(ctx, domain.StreamActivity, "0", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, bus.StreamAppend(ctx, domain.StreamActivity, []byte(p)))
	}

	msgs, err = bus.StreamRead(ctx, domain.StreamActivity, "0", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", string(msgs[0].Payload))

	rest, err := bus.StreamRead(ctx, domain.StreamActivity, msgs[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "c", string(rest[0].Payload))

	tail, err := bus.StreamTail(ctx, domain.StreamActivity, 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "b", string(tail[0].Payload))
	assert.Equal(t, "c", string(tail[1].Payload))
}
