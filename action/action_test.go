package action

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saiset-co/sai-food-admin/cache"
	"github.com/saiset-co/sai-food-admin/config"
	"github.com/saiset-co/sai-food-admin/logger"
	"github.com/saiset-co/sai-food-admin/types"
)

// hub relays every frame to every connected client, the sender included.
type hub struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	conns    []*websocket.Conn
}

func (h *hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.conns = append(h.conns, conn)
	h.mu.Unlock()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		h.mu.Lock()
		for _, c := range h.conns {
			_ = c.WriteMessage(kind, data)
		}
		h.mu.Unlock()
	}
}

func (h *hub) clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func newHub(t *testing.T) (*hub, string) {
	t.Helper()

	h := &hub{}
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.mu.Lock()
		for _, c := range h.conns {
			_ = c.Close()
		}
		h.mu.Unlock()
		srv.Close()
	})

	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newBroker(t *testing.T, url string) *WebSocketBroker {
	t.Helper()

	b, err := NewWebSocketBroker(context.Background(), &types.ActionsConfig{
		Enabled: true,
		Type:    TypeWebSocket,
		Config:  map[string]interface{}{"url": url, "reconnect_delay": "50ms"},
	}, logger.NewNopLogger(), nil)
	require.NoError(t, err)
	return b
}

func startBrokers(t *testing.T, h *hub, brokers ...*WebSocketBroker) {
	t.Helper()

	for _, b := range brokers {
		require.NoError(t, b.Start())
		b := b
		t.Cleanup(func() { _ = b.Stop() })
	}

	require.Eventually(t, func() bool {
		for _, b := range brokers {
			if !b.Connected() {
				return false
			}
		}
		return h.clients() == len(brokers)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewActionBroker_Disabled(t *testing.T) {
	cfg := config.NewLoader().Defaults()

	_, err := NewActionBroker(context.Background(), config.NewStaticManager(context.Background(), cfg), logger.NewNopLogger(), nil)
	assert.True(t, types.IsError(err, types.ErrActionIsDisabled))
}

func TestNewActionBroker_UnknownType(t *testing.T) {
	cfg := config.NewLoader().Defaults()
	cfg.Actions = &types.ActionsConfig{Enabled: true, Type: "nats"}

	_, err := NewActionBroker(context.Background(), config.NewStaticManager(context.Background(), cfg), logger.NewNopLogger(), nil)
	assert.True(t, types.IsError(err, types.ErrActionTypeUnknown))
}

func TestNewWebSocketBroker_InvalidConfig(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"missing url":   {},
		"bad delay":     {"url": "ws://localhost:1/ws", "reconnect_delay": "soon"},
		"negative ping": {"url": "ws://localhost:1/ws", "ping_interval": "-1s"},
		"empty queue":   {"url": "ws://localhost:1/ws", "queue_size": 0},
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewWebSocketBroker(context.Background(), &types.ActionsConfig{Enabled: true, Config: raw}, logger.NewNopLogger(), nil)
			assert.True(t, types.IsError(err, types.ErrActionConfigInvalid), "%v", err)
		})
	}
}

func TestWebSocketBroker_PublishBeforeStart(t *testing.T) {
	b := newBroker(t, "ws://127.0.0.1:1/ws")

	err := b.Publish("anything", nil)
	assert.ErrorIs(t, err, types.ErrActionNotInitialized)
}

func TestWebSocketBroker_StartsWithoutHub(t *testing.T) {
	b := newBroker(t, "ws://127.0.0.1:1/ws")

	require.NoError(t, b.Start())
	assert.True(t, b.IsRunning())
	assert.False(t, b.Connected())
	assert.NoError(t, b.Publish("queued", nil))

	require.NoError(t, b.Stop())
	assert.ErrorIs(t, b.Stop(), types.ErrServerNotRunning)
}

func TestWebSocketBroker_IgnoresOwnMessages(t *testing.T) {
	h, url := newHub(t)
	a, b := newBroker(t, url), newBroker(t, url)
	require.NotEqual(t, a.Source(), b.Source())

	var ownSeen, markerSeen, remoteSeen int32
	require.NoError(t, a.Subscribe("food.touched", func(*types.ActionMessage) error {
		atomic.AddInt32(&ownSeen, 1)
		return nil
	}))
	require.NoError(t, a.Subscribe("marker", func(*types.ActionMessage) error {
		atomic.AddInt32(&markerSeen, 1)
		return nil
	}))

	received := make(chan *types.ActionMessage, 1)
	require.NoError(t, b.Subscribe("food.touched", func(m *types.ActionMessage) error {
		atomic.AddInt32(&remoteSeen, 1)
		received <- m
		return nil
	}))

	startBrokers(t, h, a, b)

	require.NoError(t, a.Publish("food.touched", map[string]string{"id": "42"}))

	select {
	case m := <-received:
		assert.Equal(t, a.Source(), m.Source)
		assert.NotEmpty(t, m.MessageID)
		assert.Equal(t, map[string]interface{}{"id": "42"}, m.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("message was not relayed")
	}

	require.NoError(t, b.Publish("marker", nil))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&markerSeen) == 1 }, 2*time.Second, 10*time.Millisecond)

	assert.Zero(t, atomic.LoadInt32(&ownSeen))
	assert.EqualValues(t, 1, atomic.LoadInt32(&remoteSeen))
}

func TestWebSocketBroker_HandlerPanicIsContained(t *testing.T) {
	h, url := newHub(t)
	a, b := newBroker(t, url), newBroker(t, url)

	var after int32
	require.NoError(t, b.Subscribe("explode", func(*types.ActionMessage) error { panic("boom") }))
	require.NoError(t, b.Subscribe("explode", func(*types.ActionMessage) error {
		atomic.AddInt32(&after, 1)
		return nil
	}))

	startBrokers(t, h, a, b)

	require.NoError(t, a.Publish("explode", nil))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&after) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, b.Connected())
}

func TestWebSocketBroker_Unsubscribe(t *testing.T) {
	b := newBroker(t, "ws://127.0.0.1:1/ws")

	assert.ErrorIs(t, b.Subscribe("", func(*types.ActionMessage) error { return nil }), types.ErrActionConfigInvalid)
	require.NoError(t, b.Subscribe("x", func(*types.ActionMessage) error { return nil }))
	require.NoError(t, b.Unsubscribe("x"))
	assert.True(t, types.IsError(b.Unsubscribe("x"), types.ErrActionConfigInvalid))
}

func TestBridge_PropagatesMutations(t *testing.T) {
	h, url := newHub(t)
	a, b := newBroker(t, url), newBroker(t, url)

	local := cache.New(context.Background(), nil, logger.NewNopLogger(), nil)
	remote := cache.New(context.Background(), nil, logger.NewNopLogger(), nil)
	require.NoError(t, local.Start())
	require.NoError(t, remote.Start())
	t.Cleanup(func() {
		_ = local.Stop()
		_ = remote.Stop()
	})

	require.NoError(t, NewBridge(a, local, logger.NewNopLogger()).Attach())
	require.NoError(t, NewBridge(b, remote, logger.NewNopLogger()).Attach())

	startBrokers(t, h, a, b)

	sub := remote.Query(context.Background(), types.QueryRequest{
		Endpoint: "getFoods",
		Tags:     []types.Tag{types.TagFoods},
		Fetch: func(context.Context) (interface{}, error) {
			return []string{"Apple"}, nil
		},
	})
	state, err := sub.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, types.QueryStatusReady, state.Status)
	sub.Unsubscribe()
	require.Equal(t, 1, remote.Len())

	result := local.Mutate(context.Background(), types.MutationRequest{
		Endpoint:    "deleteFood",
		Invalidates: []types.Tag{types.TagFoods},
		Do: func(context.Context) (interface{}, error) {
			return nil, nil
		},
	})
	require.Equal(t, types.QueryStatusReady, result.Status)

	assert.Eventually(t, func() bool { return remote.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestDecodePayload(t *testing.T) {
	p, err := decodePayload(map[string]interface{}{"endpoint": "updateFood", "tags": []interface{}{"Foods"}})
	require.NoError(t, err)
	assert.Equal(t, "updateFood", p.Endpoint)
	assert.Equal(t, []string{"Foods"}, p.Tags)

	p, err = decodePayload(types.InvalidatePayload{Endpoint: "addFood"})
	require.NoError(t, err)
	assert.Equal(t, "addFood", p.Endpoint)
}
