package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/laybot/internal/cache/memory"
	"github.com/alanyoungcy/laybot/internal/domain"
)

func startHub(t *testing.T, bus *memory.SignalBus, cfg Config) (*websocket.Conn, func()) {
	t.Helper()
	hub := NewHub(bus, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	return conn, func() {
		conn.Close()
		cancel()
		<-done
		srv.Close()
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHubSendsSnapshotAndReplay(t *testing.T) {
	bus := memory.NewSignalBus(100)
	ctx := context.Background()
	for _, msg := range []string{"one", "two", "three"} {
		payload, _ := json.Marshal(domain.Activity{Kind: "cycle", Message: msg})
		require.NoError(t, bus.StreamAppend(ctx, domain.StreamActivity, payload))
	}

	conn, stop := startHub(t, bus, Config{
		Snapshot:    func() any { return map[string]string{"state": "stopped"} },
		ReplayCount: 2,
	})
	defer stop()

	env := readEnvelope(t, conn)
	assert.Equal(t, ChannelStatus, env.Channel)
	assert.JSONEq(t, `{"state":"stopped"}`, string(env.Data))

	var got []string
	for i := 0; i < 2; i++ {
		env = readEnvelope(t, conn)
		assert.Equal(t, domain.ChannelActivity, env.Channel)
		var a domain.Activity
		require.NoError(t, json.Unmarshal(env.Data, &a))
		got = append(got, a.Message)
	}
	assert.Equal(t, []string{"two", "three"}, got)
}

func TestHubForwardsBusMessages(t *testing.T) {
	bus := memory.NewSignalBus(100)
	conn, stop := startHub(t, bus, Config{})
	defer stop()

	// Subscriptions start asynchronously; publish until one arrives.
	ctx := context.Background()
	received := make(chan Envelope, 1)
	go func() {
		var env Envelope
		_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, data, err := conn.ReadMessage()
		if err == nil && json.Unmarshal(data, &env) == nil {
			received <- env
		}
		close(received)
	}()

	deadline := time.After(3 * time.Second)
	for {
		require.NoError(t, bus.Publish(ctx, domain.ChannelBets, []byte(`{"event":"bet_recorded"}`)))
		select {
		case env, ok := <-received:
			require.True(t, ok, "no frame received")
			assert.Equal(t, domain.ChannelBets, env.Channel)
			assert.JSONEq(t, `{"event":"bet_recorded"}`, string(env.Data))
			return
		case <-deadline:
			t.Fatal("timed out waiting for frame")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestEnvelopeWrapsNonJSON(t *testing.T) {
	env := envelope("x", []byte("plain text"))
	assert.Equal(t, `"plain text"`, string(env.Data))

	env = envelope("x", []byte(`{"a":1}`))
	assert.Equal(t, `{"a":1}`, string(env.Data))
}

func TestIsSubscribed(t *testing.T) {
	c := &client{subs: map[string]bool{"laybot:*": true}}
	assert.True(t, c.isSubscribed(domain.ChannelBets))
	assert.False(t, c.isSubscribed("other"))

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"laybot:*"}})
	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{domain.ChannelSession}})
	assert.True(t, c.isSubscribed(domain.ChannelSession))
	assert.False(t, c.isSubscribed(domain.ChannelBets))
}

func TestCheckOrigin(t *testing.T) {
	h := NewHub(memory.NewSignalBus(1), Config{AllowedOrigins: []string{"http://localhost:3000"}}, slog.Default())

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, h.checkOrigin(r))
	r.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, h.checkOrigin(r))
	r.Header.Set("Origin", "http://evil.example")
	assert.False(t, h.checkOrigin(r))
}
