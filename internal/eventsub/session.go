package eventsub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/AndrewBeshay/moblin/internal/logging"
	"github.com/AndrewBeshay/moblin/internal/metrics"
	"github.com/AndrewBeshay/moblin/internal/platform/retry"
)

const (
	defaultEventSubURL      = "wss://eventsub.wss.twitch.tv/ws"
	defaultKeepaliveTimeout = 10 * time.Second
	keepaliveSlack          = 5 * time.Second
	defaultWarnThreshold    = 3
)

// State is the session's position in its connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSubscribing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribing:
		return "subscribing"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Config carries the EventSub session parameters.
type Config struct {
	URL      string
	Identity Identity
	// WarnThreshold is the reconnect attempt after which one user-visible
	// error surfaces. Retrying continues regardless.
	WarnThreshold int
}

// Session maintains one EventSub websocket and its server-side
// subscriptions, reconnecting with backoff for as long as it is started.
// All state lives behind one mutex; async completions carry the generation
// they were dispatched under and drop themselves once it advances.
type Session struct {
	cfg     Config
	handler Handler
	api     subscriptionAPI
	clock   clockwork.Clock
	log     *slog.Logger

	mu         sync.Mutex
	enabled    bool
	generation int
	state      State
	sessionID  string
	attempt    int
	url        string
	keepalive  time.Duration
	conn       *websocket.Conn
	reconnect  clockwork.Timer
	watchdog   clockwork.Timer
	runCtx     context.Context
	cancelRun  context.CancelFunc
}

func NewSession(cfg Config, handler Handler, api subscriptionAPI, clock clockwork.Clock) *Session {
	if cfg.URL == "" {
		cfg.URL = defaultEventSubURL
	}
	if cfg.WarnThreshold <= 0 {
		cfg.WarnThreshold = defaultWarnThreshold
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Session{
		cfg:     cfg,
		handler: handler,
		api:     api,
		clock:   clock,
		log:     logging.WithBroadcaster(cfg.Identity.BroadcasterID),
	}
}

// Start begins connecting. No-op when already started.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		return
	}
	s.enabled = true
	s.attempt = 0
	s.url = s.cfg.URL
	s.generation++
	s.runCtx, s.cancelRun = context.WithCancel(context.Background())
	s.setStateLocked(StateConnecting)
	go s.connect(s.generation)
}

// Stop disconnects and cancels every pending timer. No-op when already
// stopped.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return
	}
	s.enabled = false
	s.generation++
	if s.cancelRun != nil {
		s.cancelRun()
		s.cancelRun = nil
	}
	s.teardownLocked()
	s.setStateLocked(StateDisconnected)
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setStateLocked(state State) {
	if s.state == state {
		return
	}
	s.log.Debug("EventSub session state changed", "from", s.state, "to", state)
	s.state = state
	metrics.EventSubState.Set(float64(state))
}

// stale reports whether work dispatched under the given generation has
// been superseded. Callers hold mu.
func (s *Session) stale(generation int) bool {
	return generation != s.generation || !s.enabled
}

func (s *Session) teardownLocked() {
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.sessionID = ""
}

func (s *Session) connect(generation int) {
	s.mu.Lock()
	if s.stale(generation) {
		s.mu.Unlock()
		return
	}
	url := s.url
	ctx := s.runCtx
	s.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)

	s.mu.Lock()
	if s.stale(generation) {
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		s.log.Warn("EventSub dial failed", "url", url, "error", err)
		s.scheduleReconnectLocked()
		s.mu.Unlock()
		return
	}
	s.conn = conn
	s.setStateLocked(StateConnected)
	s.armWatchdogLocked(generation)
	s.mu.Unlock()

	go s.readLoop(generation, conn)
}

func (s *Session) readLoop(generation int, conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			s.onSocketError(generation, err)
			return
		}
		s.handleFrame(generation, payload)
	}
}

func (s *Session) onSocketError(generation int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale(generation) {
		return
	}
	s.log.Warn("EventSub socket failed", "error", err)
	s.scheduleReconnectLocked()
}

// scheduleReconnectLocked tears the connection down and arms the backoff
// timer. Callers hold mu and have checked staleness.
func (s *Session) scheduleReconnectLocked() {
	s.generation++
	generation := s.generation
	s.teardownLocked()
	s.setStateLocked(StateDisconnected)
	s.attempt++
	metrics.EventSubReconnects.Inc()
	if s.attempt == s.cfg.WarnThreshold {
		s.handler.SessionError("Stream events unavailable, still retrying")
	}
	delay := retry.DefaultReconnect.Delay(s.attempt)
	s.log.Info("EventSub reconnecting", "attempt", s.attempt, "delay", delay)
	s.reconnect = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.stale(generation) {
			return
		}
		s.setStateLocked(StateConnecting)
		go s.connect(generation)
	})
}

func (s *Session) armWatchdogLocked(generation int) {
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	timeout := s.keepalive
	if timeout == 0 {
		timeout = defaultKeepaliveTimeout
	}
	s.watchdog = s.clock.AfterFunc(timeout+keepaliveSlack, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.stale(generation) {
			return
		}
		s.log.Warn("EventSub keepalive timed out")
		s.scheduleReconnectLocked()
	})
}

func (s *Session) handleFrame(generation int, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		s.log.Warn("Dropping undecodable EventSub frame", "error", err)
		return
	}

	s.mu.Lock()
	if s.stale(generation) {
		s.mu.Unlock()
		return
	}
	// Any inbound traffic proves the socket alive.
	s.armWatchdogLocked(generation)
	s.mu.Unlock()

	switch env.Metadata.MessageType {
	case messageTypeWelcome:
		s.handleWelcome(generation, env.Payload)
	case messageTypeKeepalive:
	case messageTypeNotification:
		var notification notificationPayload
		if err := json.Unmarshal(env.Payload, &notification); err != nil {
			s.log.Warn("Dropping undecodable notification payload", "error", err)
			return
		}
		dispatch(s.handler, env.Metadata, notification.Event)
	case messageTypeReconnect:
		s.handleReconnectRequest(generation, env.Payload)
	case messageTypeRevocation:
		s.handleRevocation(generation, env.Payload)
	default:
		s.log.Warn("Ignoring unknown EventSub message type", "message_type", env.Metadata.MessageType)
	}
}

func (s *Session) handleWelcome(generation int, raw json.RawMessage) {
	var payload sessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.log.Warn("Dropping undecodable session welcome", "error", err)
		return
	}

	s.mu.Lock()
	if s.stale(generation) {
		s.mu.Unlock()
		return
	}
	s.sessionID = payload.Session.ID
	// A migration URL is good for one connect only.
	s.url = s.cfg.URL
	if payload.Session.KeepaliveTimeoutSeconds > 0 {
		s.keepalive = time.Duration(payload.Session.KeepaliveTimeoutSeconds) * time.Second
	}
	s.armWatchdogLocked(generation)
	s.setStateLocked(StateSubscribing)
	sessionID := s.sessionID
	ctx := s.runCtx
	s.mu.Unlock()

	s.log.Info("EventSub session established", "session_id", sessionID)
	go s.runReconcile(ctx, generation, sessionID)
}

func (s *Session) runReconcile(ctx context.Context, generation int, sessionID string) {
	err := reconcile(ctx, s.api, s.cfg.Identity, sessionID, s.handler.SessionError)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale(generation) {
		return
	}
	if err != nil {
		s.log.Error("Subscription reconciliation failed", "error", err)
		s.handler.SessionError("Could not subscribe to stream events")
		s.scheduleReconnectLocked()
		return
	}
	s.setStateLocked(StateReady)
	s.attempt = 0
}

// handleReconnectRequest migrates to the server-supplied URL without
// counting it as a failure.
func (s *Session) handleReconnectRequest(generation int, raw json.RawMessage) {
	var payload sessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.log.Warn("Dropping undecodable reconnect request", "error", err)
		return
	}

	s.mu.Lock()
	if s.stale(generation) {
		s.mu.Unlock()
		return
	}
	if payload.Session.ReconnectURL != "" {
		s.url = payload.Session.ReconnectURL
	}
	s.generation++
	next := s.generation
	conn := s.conn
	s.conn = nil
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	s.log.Info("EventSub migrating to new socket", "url", payload.Session.ReconnectURL)
	if conn != nil {
		conn.Close()
	}
	go s.connect(next)
}

// handleRevocation re-creates the one revoked subscription type without
// touching the connection.
func (s *Session) handleRevocation(generation int, raw json.RawMessage) {
	var payload notificationPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.log.Warn("Dropping undecodable revocation", "error", err)
		return
	}
	subType := payload.Subscription.Type

	s.mu.Lock()
	if s.stale(generation) {
		s.mu.Unlock()
		return
	}
	sessionID := s.sessionID
	ctx := s.runCtx
	s.mu.Unlock()

	s.log.Warn("Subscription revoked, resubscribing", "type", subType, "status", payload.Subscription.Status)
	go func() {
		if err := resubscribe(ctx, s.api, s.cfg.Identity, sessionID, subType); err != nil {
			s.log.Warn("Resubscribe after revocation failed", "type", subType, "error", err)
			s.handler.SessionError("Lost access to " + subType + " events")
		}
	}()
}
