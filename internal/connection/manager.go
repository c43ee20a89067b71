package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Manager owns the realtime connection and the channel subscriptions on it.
//
// Callbacks run on the connection's read goroutine, one at a time, in socket
// order. A callback must not call Unsubscribe for its own channel, Subscribe
// for its own channel, or Disconnect: those wait for the running callback.
type Manager interface {
	// Connect starts connecting with token. It returns immediately; progress
	// is observable through State and OnStateChange. Connecting again with the
	// same token while connecting or connected is a no-op.
	Connect(token string)

	// Disconnect closes the connection, cancels any scheduled retry and drops
	// every subscription. Safe to call repeatedly.
	Disconnect()

	// Subscribe registers cb for channel, replacing any previous callback.
	Subscribe(channel string, cb Callback)

	// Unsubscribe removes the callback for channel. After it returns the
	// callback is not running and will not run again.
	Unsubscribe(channel string)

	// State returns the current connection state.
	State() State

	// Stats returns current connection and dispatch statistics.
	Stats() ManagerStats

	// OnStateChange sets a hook invoked after every state transition.
	OnStateChange(fn func(State))
}

// subscription is one registered callback. mu is held while the callback runs.
type subscription struct {
	channel string
	cb      Callback

	mu     sync.Mutex
	closed bool
}

// close marks the subscription closed, waiting out any running invocation.
func (s *subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// dialFunc opens a connected client.
type dialFunc func(ctx context.Context, cfg ClientConfig) (Client, error)

// afterFunc schedules f after d; it matches time.AfterFunc.
type afterFunc func(d time.Duration, f func()) *time.Timer

// manager implements the Manager interface.
type manager struct {
	cfg    ManagerConfig
	logger *slog.Logger
	dial   dialFunc
	after  afterFunc

	mu            sync.Mutex
	state         State
	token         string
	client        Client
	stop          chan struct{} // Closed to stop the current serve goroutine
	gen           uint64        // Bumped on every dial and teardown
	attempts      int
	retry         *time.Timer
	cancelDial    context.CancelFunc
	subs          map[string]*subscription
	onStateChange func(State)

	dispatched atomic.Int64
	malformed  atomic.Int64
	panics     atomic.Int64
}

// NewManager creates a new Manager.
func NewManager(cfg ManagerConfig, logger *slog.Logger) Manager {
	return newManager(cfg, logger)
}

func newManager(cfg ManagerConfig, logger *slog.Logger) *manager {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultManagerConfig()
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = defaults.ReconnectBaseDelay
	}
	switch {
	case cfg.MaxReconnectAttempts == 0:
		cfg.MaxReconnectAttempts = defaults.MaxReconnectAttempts
	case cfg.MaxReconnectAttempts < 0:
		cfg.MaxReconnectAttempts = 0
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaults.HandshakeTimeout
	}

	m := &manager{
		cfg:    cfg,
		logger: logger.With("component", "realtime"),
		after:  time.AfterFunc,
		subs:   make(map[string]*subscription),
	}
	m.dial = m.dialClient
	return m
}

// dialClient creates a client and connects it.
func (m *manager) dialClient(ctx context.Context, cfg ClientConfig) (Client, error) {
	c := NewClient(cfg, m.logger)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (m *manager) clientConfig(token string) ClientConfig {
	return ClientConfig{
		URL:              m.cfg.WSURL,
		Token:            token,
		HandshakeTimeout: m.cfg.HandshakeTimeout,
		PingInterval:     m.cfg.PingInterval,
		PingTimeout:      m.cfg.PingTimeout,
		WriteTimeout:     m.cfg.WriteTimeout,
		BufferSize:       m.cfg.BufferSize,
	}
}

// Connect starts connecting with token.
func (m *manager) Connect(token string) {
	if token == "" {
		m.logger.Warn("connect called without token")
		return
	}

	m.mu.Lock()
	if m.state != StateDisconnected && m.token == token {
		m.mu.Unlock()
		return
	}

	if m.state != StateDisconnected {
		m.logger.Info("token changed, reconnecting")
	}
	m.teardownLocked()
	m.token = token
	m.attempts = 0
	notify := m.setStateLocked(StateConnecting)
	m.dialLocked()
	m.mu.Unlock()

	notify()
}

// Disconnect closes the connection and drops every subscription.
func (m *manager) Disconnect() {
	m.mu.Lock()
	m.teardownLocked()
	m.token = ""
	m.attempts = 0
	subs := m.subs
	m.subs = make(map[string]*subscription)
	notify := m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	notify()
}

// Subscribe registers cb for channel, replacing any previous callback.
func (m *manager) Subscribe(channel string, cb Callback) {
	if channel == "" || cb == nil {
		return
	}

	m.mu.Lock()
	old, existed := m.subs[channel]
	m.subs[channel] = &subscription{channel: channel, cb: cb}
	if !existed && m.state == StateConnected {
		m.sendControlLocked(ActionSubscribe, channel)
	}
	m.mu.Unlock()

	if existed {
		old.close()
		m.logger.Debug("callback replaced", "channel", channel)
	}
}

// Unsubscribe removes the callback for channel.
func (m *manager) Unsubscribe(channel string) {
	m.mu.Lock()
	sub, ok := m.subs[channel]
	if ok {
		delete(m.subs, channel)
		if m.state == StateConnected {
			m.sendControlLocked(ActionUnsubscribe, channel)
		}
	}
	m.mu.Unlock()

	if ok {
		sub.close()
	}
}

// State returns the current connection state.
func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	m.mu.Lock()
	stats := ManagerStats{
		State:             m.state,
		Subscriptions:     len(m.subs),
		ReconnectAttempts: m.attempts,
	}
	m.mu.Unlock()

	stats.Dispatched = m.dispatched.Load()
	stats.Malformed = m.malformed.Load()
	stats.CallbackPanics = m.panics.Load()
	return stats
}

// OnStateChange sets the state transition hook.
func (m *manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// setStateLocked records a transition and returns the hook call to run once
// m.mu is released.
func (m *manager) setStateLocked(s State) func() {
	if m.state == s {
		return func() {}
	}
	m.logger.Debug("state changed", "from", m.state, "to", s)
	m.state = s

	hook := m.onStateChange
	if hook == nil {
		return func() {}
	}
	return func() { hook(s) }
}

// teardownLocked stops the retry timer, abandons any in-flight dial and
// closes the current socket. Subscriptions are kept.
func (m *manager) teardownLocked() {
	m.gen++

	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if m.stop != nil {
		close(m.stop)
		m.stop = nil
	}
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			m.logger.Debug("close connection", "error", err)
		}
		m.client = nil
	}
}

// dialLocked starts one dial attempt in the background.
func (m *manager) dialLocked() {
	m.gen++
	gen := m.gen

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
	m.cancelDial = cancel
	cfg := m.clientConfig(m.token)

	go func() {
		defer cancel()
		client, err := m.dial(ctx, cfg)
		m.dialDone(gen, client, err)
	}()
}

// dialDone applies the result of the dial started for gen.
func (m *manager) dialDone(gen uint64, client Client, err error) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateConnecting {
		m.mu.Unlock()
		if client != nil {
			client.Close()
		}
		return
	}
	m.cancelDial = nil

	if err != nil {
		m.logger.Warn("connect failed", "attempt", m.attempts, "error", err)
		notify := m.scheduleRetryLocked()
		m.mu.Unlock()
		notify()
		return
	}

	m.client = client
	m.attempts = 0
	stop := make(chan struct{})
	m.stop = stop
	notify := m.setStateLocked(StateConnected)
	m.resubscribeLocked()
	m.mu.Unlock()

	m.logger.Info("realtime connected", "channels", m.Stats().Subscriptions)
	notify()

	go m.serve(gen, client, stop)
}

// scheduleRetryLocked schedules the next dial, or gives up once the attempt
// budget is spent.
func (m *manager) scheduleRetryLocked() func() {
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.logger.Error("giving up reconnecting", "attempts", m.attempts)
		return m.setStateLocked(StateDisconnected)
	}

	m.attempts++
	delay := time.Duration(m.attempts) * m.cfg.ReconnectBaseDelay
	gen := m.gen

	m.logger.Info("scheduling reconnect", "attempt", m.attempts, "delay", delay)
	m.retry = m.after(delay, func() { m.retryFire(gen) })

	return m.setStateLocked(StateConnecting)
}

// retryFire runs when a scheduled retry is due.
func (m *manager) retryFire(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.state != StateConnecting {
		return
	}
	m.retry = nil
	m.dialLocked()
}

// resubscribeLocked sends one subscribe frame per registered channel, in name order.
func (m *manager) resubscribeLocked() {
	channels := make([]string, 0, len(m.subs))
	for ch := range m.subs {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	for _, ch := range channels {
		m.sendControlLocked(ActionSubscribe, ch)
	}
}

// sendControlLocked writes a control frame to the current socket.
func (m *manager) sendControlLocked(action, channel string) {
	if m.client == nil {
		return
	}

	data, err := json.Marshal(ControlFrame{Action: action, Channel: channel})
	if err != nil {
		m.logger.Error("encode control frame", "error", err)
		return
	}
	if err := m.client.Send(data); err != nil {
		m.logger.Warn("send control frame failed",
			"action", action,
			"channel", channel,
			"error", err,
		)
	}
}

// serve reads frames from client until it fails or stop is closed.
func (m *manager) serve(gen uint64, client Client, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return

		case err := <-client.Errors():
			m.drain(client, stop)
			m.connectionLost(gen, err)
			return

		case msg := <-client.Messages():
			m.dispatch(msg.Data)
		}
	}
}

// drain dispatches messages that were buffered before the connection failed.
func (m *manager) drain(client Client, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case msg := <-client.Messages():
			m.dispatch(msg.Data)
		default:
			return
		}
	}
}

// connectionLost handles a dropped socket for gen.
func (m *manager) connectionLost(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateConnected {
		m.mu.Unlock()
		return
	}

	m.logger.Warn("realtime connection lost", "error", err)
	m.teardownLocked()
	notify := m.scheduleRetryLocked()
	m.mu.Unlock()

	notify()
}

// dispatch decodes a frame and invokes the channel callback.
func (m *manager) dispatch(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Channel == "" {
		m.malformed.Add(1)
		if err == nil {
			err = fmt.Errorf("%w: missing channel", ErrMalformedMessage)
		} else {
			err = fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		m.logger.Warn("dropping frame", "error", err, "size", len(data))
		return
	}

	m.mu.Lock()
	sub := m.subs[frame.Channel]
	m.mu.Unlock()

	if sub == nil {
		m.logger.Debug("no subscriber for channel", "channel", frame.Channel)
		return
	}

	m.invoke(sub, frame.Payload)
}

// invoke runs the callback unless the subscription was closed, recovering panics.
func (m *manager) invoke(sub *subscription, payload json.RawMessage) {
	sub.mu.Lock()
	defer sub.mu.Unlock()

	if sub.closed {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.panics.Add(1)
			m.logger.Error("channel callback panicked",
				"channel", sub.channel,
				"panic", r,
			)
		}
	}()

	m.dispatched.Add(1)
	sub.cb(payload)
}
