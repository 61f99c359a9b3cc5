package action

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-food-admin/types"
	"github.com/saiset-co/sai-food-admin/utils"
)

type BrokerState int32

const (
	BrokerStateStopped BrokerState = iota
	BrokerStateStarting
	BrokerStateRunning
	BrokerStateStopping
)

// WebSocketConfig durations are Go duration strings ("2s", "30s").
type WebSocketConfig struct {
	URL            string `json:"url"`
	ReconnectDelay string `json:"reconnect_delay"`
	PingInterval   string `json:"ping_interval"`
	WriteWait      string `json:"write_wait"`
	QueueSize      int    `json:"queue_size"`
}

// WebSocketBroker exchanges ActionMessages with a hub that relays every frame
// to all connected instances. Messages carrying our own source are ignored.
type WebSocketBroker struct {
	ctx            context.Context
	cancel         context.CancelFunc
	logger         types.Logger
	metrics        types.MetricsManager
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	writeWait      time.Duration
	source         string
	subscriptions  map[string][]types.ActionHandler
	subsMu         sync.RWMutex
	send           chan *types.ActionMessage
	connected      int32
	state          atomic.Value
	wg             sync.WaitGroup
}

func NewWebSocketBroker(ctx context.Context, config *types.ActionsConfig, logger types.Logger, metrics types.MetricsManager) (*WebSocketBroker, error) {
	wsConfig := &WebSocketConfig{
		ReconnectDelay: "2s",
		PingInterval:   "30s",
		WriteWait:      "10s",
		QueueSize:      256,
	}

	if config.Config != nil {
		if err := utils.UnmarshalConfig(config.Config, wsConfig); err != nil {
			return nil, types.WrapError(err, "failed to unmarshal websocket config")
		}
	}

	if wsConfig.URL == "" {
		return nil, types.Errorf(types.ErrActionConfigInvalid, "url is required")
	}
	if wsConfig.QueueSize <= 0 {
		return nil, types.Errorf(types.ErrActionConfigInvalid, "queue_size: %d", wsConfig.QueueSize)
	}

	reconnectDelay, err := parseDuration("reconnect_delay", wsConfig.ReconnectDelay)
	if err != nil {
		return nil, err
	}
	pingInterval, err := parseDuration("ping_interval", wsConfig.PingInterval)
	if err != nil {
		return nil, err
	}
	writeWait, err := parseDuration("write_wait", wsConfig.WriteWait)
	if err != nil {
		return nil, err
	}

	broker := &WebSocketBroker{
		ctx:            ctx,
		logger:         logger,
		metrics:        metrics,
		url:            wsConfig.URL,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		writeWait:      writeWait,
		source:         uuid.NewString(),
		subscriptions:  make(map[string][]types.ActionHandler),
		send:           make(chan *types.ActionMessage, wsConfig.QueueSize),
	}
	broker.state.Store(BrokerStateStopped)

	logger.Info("WebSocket broker initialized",
		zap.String("url", wsConfig.URL),
		zap.String("source", broker.source))

	return broker, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, types.Errorf(types.ErrActionConfigInvalid, "%s: %q", field, value)
	}
	return d, nil
}

func (w *WebSocketBroker) Source() string {
	return w.source
}

// Connected reports whether the broker currently holds a hub connection.
func (w *WebSocketBroker) Connected() bool {
	return atomic.LoadInt32(&w.connected) == 1
}

// Start never fails on an unreachable hub; the broker keeps dialing in the
// background and queued messages go out once connected.
func (w *WebSocketBroker) Start() error {
	if !w.transitionState(BrokerStateStopped, BrokerStateStarting) {
		return types.ErrServerAlreadyRunning
	}

	var ctx context.Context
	ctx, w.cancel = context.WithCancel(w.ctx)

	w.wg.Add(1)
	go w.run(ctx)

	w.setState(BrokerStateRunning)
	w.logger.Info("WebSocket broker started")
	return nil
}

func (w *WebSocketBroker) Stop() error {
	if !w.transitionState(BrokerStateRunning, BrokerStateStopping) {
		return types.ErrServerNotRunning
	}
	defer w.setState(BrokerStateStopped)

	w.cancel()
	w.wg.Wait()

	w.logger.Info("WebSocket broker stopped", zap.Int("dropped", len(w.send)))
	return nil
}

func (w *WebSocketBroker) IsRunning() bool {
	return w.getState() == BrokerStateRunning
}

func (w *WebSocketBroker) Publish(action string, payload interface{}) error {
	if !w.IsRunning() {
		return types.ErrActionNotInitialized
	}

	message := &types.ActionMessage{
		Action:    action,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		Source:    w.source,
		MessageID: uuid.NewString(),
	}

	select {
	case w.send <- message:
		w.count("out", action, "queued")
		return nil
	default:
		w.count("out", action, "dropped")
		w.logger.Error("Send queue is full, dropping message",
			zap.String("action", action),
			zap.String("message_id", message.MessageID))
		return types.Errorf(types.ErrActionPublishFailed, "queue full")
	}
}

func (w *WebSocketBroker) Subscribe(action string, handler types.ActionHandler) error {
	if action == "" || handler == nil {
		return types.ErrActionConfigInvalid
	}

	w.subsMu.Lock()
	w.subscriptions[action] = append(w.subscriptions[action], handler)
	w.subsMu.Unlock()

	w.logger.Debug("Subscribed to action", zap.String("action", action))
	return nil
}

func (w *WebSocketBroker) Unsubscribe(action string) error {
	w.subsMu.Lock()
	defer w.subsMu.Unlock()

	if _, ok := w.subscriptions[action]; !ok {
		return types.Errorf(types.ErrActionConfigInvalid, "no subscription for %s", action)
	}
	delete(w.subscriptions, action)
	return nil
}

func (w *WebSocketBroker) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		conn, err := w.dial(ctx)
		if err == nil {
			atomic.StoreInt32(&w.connected, 1)
			w.logger.Info("Connected to action hub", zap.String("url", w.url))
			w.serve(ctx, conn)
			atomic.StoreInt32(&w.connected, 0)
		} else if ctx.Err() == nil {
			w.logger.Warn("Failed to connect to action hub", zap.String("url", w.url), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.reconnectDelay):
		}
	}
}

func (w *WebSocketBroker) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, w.url, nil)
	if err != nil {
		return nil, types.Errorf(types.ErrActionConnectionFailed, "%v", err)
	}
	return conn, nil
}

// serve owns every write on conn; the read side runs in its own goroutine
// and ends the session when the connection drops.
func (w *WebSocketBroker) serve(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.readLoop(conn)
	}()

	ticker := time.NewTicker(w.pingInterval)
	defer ticker.Stop()

	defer func() {
		_ = conn.Close()
		<-done
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(w.writeWait))
			return
		case <-done:
			w.logger.Warn("Action hub connection lost", zap.String("url", w.url))
			return
		case message := <-w.send:
			if err := w.write(conn, message); err != nil {
				w.count("out", message.Action, "failed")
				w.logger.Error("Failed to send action message",
					zap.String("action", message.Action),
					zap.String("message_id", message.MessageID),
					zap.Error(err))
				return
			}
			w.count("out", message.Action, "sent")
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.writeWait)); err != nil {
				w.logger.Warn("Ping to action hub failed", zap.Error(err))
				return
			}
		}
	}
}

func (w *WebSocketBroker) write(conn *websocket.Conn, message *types.ActionMessage) error {
	data, err := utils.Marshal(message)
	if err != nil {
		return err
	}

	_ = conn.SetWriteDeadline(time.Now().Add(w.writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (w *WebSocketBroker) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.logger.Debug("Action hub read failed", zap.Error(err))
			}
			return
		}

		var message types.ActionMessage
		if err := utils.Unmarshal(data, &message); err != nil {
			w.logger.Warn("Discarding malformed action message", zap.Error(err))
			continue
		}

		if message.Source == w.source {
			continue
		}

		w.dispatch(&message)
	}
}

func (w *WebSocketBroker) dispatch(message *types.ActionMessage) {
	w.subsMu.RLock()
	handlers := append([]types.ActionHandler(nil), w.subscriptions[message.Action]...)
	w.subsMu.RUnlock()

	if len(handlers) == 0 {
		w.count("in", message.Action, "ignored")
		return
	}

	for _, handler := range handlers {
		if err := w.invoke(handler, message); err != nil {
			w.count("in", message.Action, "failed")
			w.logger.Error("Action handler failed",
				zap.String("action", message.Action),
				zap.String("message_id", message.MessageID),
				zap.String("source", message.Source),
				zap.Error(err))
			continue
		}
		w.count("in", message.Action, "handled")
	}
}

func (w *WebSocketBroker) invoke(handler types.ActionHandler, message *types.ActionMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.NewErrorf("handler panicked: %v", r)
		}
	}()
	return handler(message)
}

func (w *WebSocketBroker) count(direction, action, result string) {
	if w.metrics == nil {
		return
	}
	w.metrics.Counter("action_messages_total", map[string]string{
		"direction": direction,
		"action":    action,
		"result":    result,
	}).Inc()
}

func (w *WebSocketBroker) getState() BrokerState {
	return w.state.Load().(BrokerState)
}

func (w *WebSocketBroker) setState(newState BrokerState) {
	w.state.Store(newState)
}

func (w *WebSocketBroker) transitionState(from, to BrokerState) bool {
	return w.state.CompareAndSwap(from, to)
}
