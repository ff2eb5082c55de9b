// Package realtime maintains the WebSocket channel carrying chat and presence
// events: connection lifecycle, exponential reconnect, event dispatch, and a
// bounded outbox for messages composed while offline.
package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/afrobizconnect/client-go/internal/app/domain/chat"
	"github.com/afrobizconnect/client-go/pkg/logger"
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	// StateFailed is terminal: the reconnect budget is spent and only an
	// explicit Connect leaves it.
	StateFailed State = "failed"
)

// Handler receives one decoded event. Handlers run on the read goroutine;
// a panicking handler is isolated and never tears down the connection.
type Handler func(chat.Event)

// Config configures the channel manager.
type Config struct {
	// URL is the WebSocket endpoint, e.g. wss://api.afrobizconnect.com/ws.
	URL              string
	HandshakeTimeout time.Duration
	// ReconnectBaseDelay is the first backoff delay; each further attempt
	// doubles it up to ReconnectMaxDelay.
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int
	// OutboxLimit bounds the number of events queued while disconnected.
	// When full the oldest queued event is dropped.
	OutboxLimit int
	Logger      *logger.Logger
}

// Manager owns one WebSocket connection and its reconnect loop.
type Manager struct {
	cfg Config
	log *logger.Logger

	mu        sync.RWMutex
	writeMu   sync.Mutex
	conn      *websocket.Conn
	state     State
	token     string
	attempts  int
	gen       int
	done      chan struct{}
	closed    bool
	outbox    [][]byte
	handlers  map[chat.Kind]map[int]Handler
	nextID    int
	stateSubs map[int]func(State)
}

// New creates a channel manager. It does not connect.
func New(cfg Config) (*Manager, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("realtime: URL is required")
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = time.Second
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = 30 * time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}
	if cfg.OutboxLimit <= 0 {
		cfg.OutboxLimit = 64
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("realtime")
	}
	return &Manager{
		cfg:       cfg,
		log:       log,
		state:     StateDisconnected,
		handlers:  make(map[chat.Kind]map[int]Handler),
		stateSubs: make(map[int]func(State)),
	}, nil
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected reports whether the channel is currently open.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// OnStateChange registers fn to observe state transitions. The returned
// function removes the observer.
func (m *Manager) OnStateChange(fn func(State)) func() {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.stateSubs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.stateSubs, id)
		m.mu.Unlock()
	}
}

// AddHandler registers a handler for one event kind. The returned function
// removes the handler.
func (m *Manager) AddHandler(kind chat.Kind, h Handler) func() {
	m.mu.Lock()
	if m.handlers[kind] == nil {
		m.handlers[kind] = make(map[int]Handler)
	}
	m.nextID++
	id := m.nextID
	m.handlers[kind][id] = h
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.handlers[kind], id)
		m.mu.Unlock()
	}
}

// Connect dials the channel authenticated as token. Calling Connect resets a
// Failed manager and restarts the reconnect budget.
func (m *Manager) Connect(ctx context.Context, token string) error {
	m.mu.Lock()
	if m.state == StateConnected || m.state == StateConnecting {
		m.mu.Unlock()
		return nil
	}
	// A reconnect loop is already dialing; adopt the fresh token and let it
	// finish rather than racing it into a second connection.
	if m.state == StateReconnecting {
		m.token = token
		m.mu.Unlock()
		return nil
	}
	m.token = token
	m.attempts = 0
	m.closed = false
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	if err := m.dial(ctx); err != nil {
		m.mu.Lock()
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()
		return err
	}
	return nil
}

// Close tears the connection down and stops reconnecting.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	conn := m.conn
	m.conn = nil
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	return conn.Close()
}

// Send transmits one event. When offline the event is queued in the outbox
// and transmitted on the next successful (re)connect; when the outbox is full
// the oldest queued event is dropped to make room.
func (m *Manager) Send(ev chat.Event) error {
	payload, err := chat.EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("realtime: encode event: %w", err)
	}

	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected && conn != nil
	if !connected {
		if len(m.outbox) >= m.cfg.OutboxLimit {
			m.log.Debug("outbox full, dropping oldest queued event")
			m.outbox = m.outbox[1:]
		}
		m.outbox = append(m.outbox, payload)
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := m.writeFrame(conn, payload); err != nil {
		return fmt.Errorf("realtime: write event: %w", err)
	}
	return nil
}

// writeFrame serializes writers; the websocket permits only one at a time.
func (m *Manager) writeFrame(conn *websocket.Conn, payload []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (m *Manager) dial(ctx context.Context) error {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()

	dialer := websocket.Dialer{HandshakeTimeout: m.cfg.HandshakeTimeout}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, resp, err := dialer.DialContext(ctx, m.cfg.URL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("realtime: dial %s: %w", m.cfg.URL, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return nil
	}
	m.conn = conn
	m.attempts = 0
	m.gen++
	gen := m.gen
	m.done = make(chan struct{})
	done := m.done
	m.setStateLocked(StateConnected)
	m.mu.Unlock()

	go m.readLoop(conn, gen)
	go m.heartbeat(conn, done)

	m.announcePresence(conn)
	m.flushOutbox(conn)
	return nil
}

// announcePresence tells the server this client is online.
func (m *Manager) announcePresence(conn *websocket.Conn) {
	payload, err := chat.EncodeEvent(chat.PresenceEvent{EventKind: chat.EventUserOnline})
	if err != nil {
		return
	}
	if err := m.writeFrame(conn, payload); err != nil {
		m.log.WithError(err).Debug("announce presence")
	}
}

func (m *Manager) flushOutbox(conn *websocket.Conn) {
	m.mu.Lock()
	queued := m.outbox
	m.outbox = nil
	m.mu.Unlock()

	for _, payload := range queued {
		if err := m.writeFrame(conn, payload); err != nil {
			m.log.WithError(err).Warn("flush queued event")
			return
		}
	}
}

func (m *Manager) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			m.onConnectionLost(gen)
			return
		}
		m.dispatchRaw(message)
	}
}

// dispatchRaw validates one frame and fans it out. Frames that are not valid
// JSON or fail event decoding are logged and dropped; the connection stays up.
func (m *Manager) dispatchRaw(raw []byte) {
	if !gjson.ValidBytes(raw) {
		m.log.Warn("dropping non-JSON frame")
		return
	}
	ev, err := chat.DecodeEvent(raw)
	if err != nil {
		m.log.WithError(err).WithField("event", gjson.GetBytes(raw, "event").String()).
			Warn("dropping malformed event")
		return
	}

	m.mu.RLock()
	registered := m.handlers[ev.Kind()]
	handlers := make([]Handler, 0, len(registered))
	for _, h := range registered {
		handlers = append(handlers, h)
	}
	m.mu.RUnlock()

	for _, h := range handlers {
		m.invoke(h, ev)
	}
}

func (m *Manager) invoke(h Handler, ev chat.Event) {
	defer func() {
		if r := recover(); r != nil {
			m.log.WithField("panic", fmt.Sprintf("%v", r)).Error("event handler panicked")
		}
	}()
	h(ev)
}

func (m *Manager) heartbeat(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (m *Manager) onConnectionLost(gen int) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	if m.done != nil {
		close(m.done)
		m.done = nil
	}
	m.setStateLocked(StateReconnecting)
	m.mu.Unlock()

	go m.reconnectLoop()
}

// reconnectLoop retries with exponential backoff until a dial succeeds, the
// manager is closed, or the attempt budget is spent.
func (m *Manager) reconnectLoop() {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		m.attempts++
		attempt := m.attempts
		if attempt > m.cfg.MaxReconnectAttempts {
			m.setStateLocked(StateFailed)
			m.mu.Unlock()
			m.log.WithField("attempts", attempt-1).Error("reconnect budget exhausted")
			return
		}
		m.mu.Unlock()

		delay := m.backoffDelay(attempt)
		m.log.WithFields(map[string]any{"attempt": attempt, "delay": delay.String()}).
			Info("reconnecting")
		time.Sleep(delay)

		m.mu.RLock()
		closed := m.closed
		m.mu.RUnlock()
		if closed {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
		err := m.dial(ctx)
		cancel()
		if err == nil {
			return
		}
		m.log.WithError(err).Warn("reconnect attempt failed")
	}
}

// backoffDelay doubles the base delay per attempt, capped at the max.
func (m *Manager) backoffDelay(attempt int) time.Duration {
	delay := m.cfg.ReconnectBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.cfg.ReconnectMaxDelay {
			return m.cfg.ReconnectMaxDelay
		}
	}
	if delay > m.cfg.ReconnectMaxDelay {
		delay = m.cfg.ReconnectMaxDelay
	}
	return delay
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	subs := make([]func(State), 0, len(m.stateSubs))
	for _, fn := range m.stateSubs {
		subs = append(subs, fn)
	}
	go func() {
		for _, fn := range subs {
			fn(s)
		}
	}()
}
