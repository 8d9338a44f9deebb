// Package conn owns the client's transport connection: dialing, the join
// handshake, frame dispatch, and backoff-driven reconnects.
package conn

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mido3801/pokedraft/internal/types"
)

var ErrNotConnected = errors.New("not connected")

// ErrRetriesExhausted is the explicit give-up signal after the reconnect cap
// is hit; callers should surface a non-transient failure.
var ErrRetriesExhausted = errors.New("reconnect attempts exhausted")

// ErrRejected means the server deliberately refused this caller (policy
// violation close or HTTP 403). Reconnecting would be pointless.
var ErrRejected = errors.New("rejected by server")

type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusOpen
	StatusReconnecting
	StatusClosing
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusReconnecting:
		return "reconnecting"
	case StatusClosing:
		return "closing"
	case StatusClosed:
		return "closed"
	}
	return "unknown"
}

// Handler receives the payload of one inbound event.
type Handler func(data json.RawMessage)

// StatusFunc observes lifecycle transitions. err is non-nil for terminal
// transitions (ErrRetriesExhausted, ErrRejected).
type StatusFunc func(s Status, err error)

// Manager drives one websocket connection through
// Idle -> Connecting -> Open -> (Closing|Reconnecting) -> Idle|Closed.
// Exactly one live transport handle is owned at a time.
type Manager struct {
	log    *zap.Logger
	url    string
	policy Policy
	join   types.JoinDraft

	mu          sync.Mutex
	status      Status
	conn        *websocket.Conn
	gen         int // bumped on detach so stale read loops can't reconnect
	attempts    int
	intentional bool
	retry       *time.Timer // the single pending reconnect task
	handlers    map[string]Handler
	observers   []StatusFunc
	notes       chan statusNote

	ctx    context.Context
	cancel context.CancelFunc
}

type statusNote struct {
	status Status
	err    error
}

func New(parent context.Context, url string, join types.JoinDraft, policy Policy, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	m := &Manager{
		log:      log,
		url:      url,
		policy:   policy,
		join:     join,
		handlers: map[string]Handler{},
		// Sized past the transition count any single connection can produce,
		// so enqueueing under mu never blocks.
		notes:  make(chan statusNote, 64),
		ctx:    ctx,
		cancel: cancel,
	}
	go m.notifyLoop()
	return m
}

// notifyLoop is the only goroutine that invokes status observers, so
// transitions are observed in the order they happened.
func (m *Manager) notifyLoop() {
	for {
		select {
		case n := <-m.notes:
			m.deliver(n)
		case <-m.ctx.Done():
			for {
				select {
				case n := <-m.notes:
					m.deliver(n)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) deliver(n statusNote) {
	m.mu.Lock()
	obs := append([]StatusFunc(nil), m.observers...)
	m.mu.Unlock()
	for _, fn := range obs {
		fn(n.status, n.err)
	}
}

// OnEvent registers the handler for one inbound event name. Registration may
// be updated at any time without tearing down the connection.
func (m *Manager) OnEvent(event string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = h
}

// OnStatus registers a lifecycle observer.
func (m *Manager) OnStatus(fn StatusFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Connect opens the transport. A failed initial dial enters the same
// reconnect path as an unexpected drop.
func (m *Manager) Connect() {
	m.dial()
}

func (m *Manager) dial() {
	m.mu.Lock()
	if m.intentional || m.status == StatusClosed {
		m.mu.Unlock()
		return
	}
	// Detach any prior handle before closing it so its read loop cannot
	// trigger the reconnect path.
	old := m.conn
	m.conn = nil
	m.gen++
	gen := m.gen
	m.setStatusLocked(StatusConnecting, nil)
	m.mu.Unlock()

	if old != nil {
		_ = old.Close(websocket.StatusNormalClosure, "superseded")
	}

	dialCtx, cancel := context.WithTimeout(m.ctx, 15*time.Second)
	c, resp, err := websocket.Dial(dialCtx, m.url, nil)
	cancel()
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized) {
			m.log.Warn("server rejected connection", zap.Int("status", resp.StatusCode))
			m.terminate(ErrRejected)
			return
		}
		m.log.Info("dial failed", zap.Error(err))
		m.scheduleReconnect()
		return
	}

	m.mu.Lock()
	if m.intentional {
		m.mu.Unlock()
		_ = c.Close(websocket.StatusNormalClosure, "leaving")
		return
	}
	m.conn = c
	m.attempts = 0
	m.setStatusLocked(StatusOpen, nil)
	m.mu.Unlock()

	if err := m.Send(m.ctx, types.EvtJoinDraft, m.join); err != nil {
		m.log.Warn("join handshake failed", zap.Error(err))
	}
	go m.readLoop(c, gen)
}

func (m *Manager) readLoop(c *websocket.Conn, gen int) {
	for {
		_, data, err := c.Read(m.ctx)
		if err != nil {
			m.handleClosed(gen, err)
			return
		}
		env, err := types.DecodeEnvelope(data)
		if err != nil || env.Event == "" {
			// One bad frame is not worth the connection.
			m.log.Warn("discarding malformed frame", zap.Error(err))
			continue
		}
		m.dispatch(env)
	}
}

func (m *Manager) dispatch(env types.Envelope) {
	m.mu.Lock()
	h := m.handlers[env.Event]
	m.mu.Unlock()
	if h == nil {
		m.log.Debug("no handler for event", zap.String("event", env.Event))
		return
	}
	h(env.Data)
}

func (m *Manager) handleClosed(gen int, err error) {
	m.mu.Lock()
	if gen != m.gen {
		// A newer handle superseded this one; nothing to do.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	if m.intentional {
		m.setStatusLocked(StatusIdle, nil)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if websocket.CloseStatus(err) == websocket.StatusPolicyViolation {
		m.log.Warn("connection closed with policy violation", zap.Error(err))
		m.terminate(ErrRejected)
		return
	}
	m.log.Info("connection dropped", zap.Error(err))
	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.intentional || m.status == StatusClosed {
		m.mu.Unlock()
		return
	}
	if m.attempts >= m.policy.MaxAttempts {
		m.setStatusLocked(StatusClosed, ErrRetriesExhausted)
		m.mu.Unlock()
		return
	}
	delay := m.policy.Delay(m.attempts)
	m.attempts++
	m.setStatusLocked(StatusReconnecting, nil)
	m.log.Info("scheduling reconnect",
		zap.Int("attempt", m.attempts),
		zap.Duration("delay", delay))
	m.retry = time.AfterFunc(delay, m.dial)
	m.mu.Unlock()
}

func (m *Manager) terminate(err error) {
	m.mu.Lock()
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	m.setStatusLocked(StatusClosed, err)
	m.mu.Unlock()
}

// Close is the caller-initiated teardown for leaving a session. The
// intentional flag is set before the transport close so the close handler
// will not reconnect, and the one pending reconnect task is cancelled.
func (m *Manager) Close() {
	m.mu.Lock()
	m.intentional = true
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	c := m.conn
	m.conn = nil
	m.gen++
	if c != nil {
		m.setStatusLocked(StatusClosing, nil)
	}
	m.mu.Unlock()

	if c != nil {
		_ = c.Close(websocket.StatusNormalClosure, "leaving")
	}
	m.mu.Lock()
	if m.status != StatusClosed {
		m.setStatusLocked(StatusIdle, nil)
	}
	m.mu.Unlock()
	m.cancel()
}

// Send marshals an intent and fires it at the server. No response
// correlation; ordering of applied mutations comes from the server alone.
func (m *Manager) Send(ctx context.Context, event string, payload any) error {
	m.mu.Lock()
	c := m.conn
	m.mu.Unlock()
	if c == nil {
		return ErrNotConnected
	}
	env, err := types.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	raw, err := env.Encode()
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.Write(wctx, websocket.MessageText, raw)
}

// setStatusLocked updates status and queues the notification. Callers hold
// mu; delivery happens on notifyLoop, off the lock, so observers can call
// back in.
func (m *Manager) setStatusLocked(s Status, err error) {
	m.status = s
	m.notes <- statusNote{status: s, err: err}
}
