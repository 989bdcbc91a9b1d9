package eventsub

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// eventSubServer is a scriptable stand-in for the EventSub endpoint. Each
// accepted connection runs handler on its own goroutine.
type eventSubServer struct {
	url      string
	mu       sync.Mutex
	connects int
}

func startEventSubServer(t *testing.T, handler func(conn *ws.Conn)) *eventSubServer {
	t.Helper()
	server := &eventSubServer{}
	upgrader := ws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		server.mu.Lock()
		server.connects++
		server.mu.Unlock()
		handler(conn)
	}))
	t.Cleanup(srv.Close)
	server.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return server
}

func (s *eventSubServer) connectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

func welcomeFrame(sessionID string) []byte {
	return fmt.Appendf(nil, `{"metadata":{"message_id":"1","message_type":"session_welcome"},`+
		`"payload":{"session":{"id":%q,"status":"connected","keepalive_timeout_seconds":10}}}`, sessionID)
}

func notificationFrame(subType, event string) []byte {
	return fmt.Appendf(nil, `{"metadata":{"message_id":"2","message_type":"notification","subscription_type":%q},`+
		`"payload":{"subscription":{"id":"s1","type":%q,"status":"enabled"},"event":%s}}`, subType, subType, event)
}

func reconnectFrame(url string) []byte {
	return fmt.Appendf(nil, `{"metadata":{"message_id":"3","message_type":"session_reconnect"},`+
		`"payload":{"session":{"id":"abc123","status":"reconnecting","reconnect_url":%q}}}`, url)
}

func revocationFrame(subType string) []byte {
	return fmt.Appendf(nil, `{"metadata":{"message_id":"4","message_type":"revocation","subscription_type":%q},`+
		`"payload":{"subscription":{"id":"s1","type":%q,"status":"authorization_revoked"}}}`, subType, subType)
}

// holdOpen keeps the server side reading until the peer goes away.
func holdOpen(conn *ws.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func currentSessionID(s *Session) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func sessionAttempt(s *Session) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

func testSession(t *testing.T, url string, api *fakeAPI, clock clockwork.Clock) (*Session, *mockHandler) {
	t.Helper()
	handler := &mockHandler{}
	cfg := Config{URL: url, Identity: Identity{BroadcasterID: "123", UserID: "456"}}
	session := NewSession(cfg, handler, api, clock)
	t.Cleanup(session.Stop)
	return session, handler
}

func TestSessionWelcomeTriggersReconcile(t *testing.T) {
	server := startEventSubServer(t, func(conn *ws.Conn) {
		conn.WriteMessage(ws.TextMessage, welcomeFrame("abc123"))
		holdOpen(conn)
	})
	api := &fakeAPI{}
	session, _ := testSession(t, server.url, api, clockwork.NewFakeClock())

	session.Start()

	require.Eventually(t, func() bool { return session.State() == StateReady }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "abc123", currentSessionID(session))
	assert.Equal(t, 1, api.listCount())
	assert.Len(t, api.createdTypes(), len(eventTypes))
}

func TestSessionDispatchesNotifications(t *testing.T) {
	server := startEventSubServer(t, func(conn *ws.Conn) {
		conn.WriteMessage(ws.TextMessage, welcomeFrame("abc123"))
		conn.WriteMessage(ws.TextMessage, notificationFrame("channel.follow", `{"user_name":"Alice"}`))
		holdOpen(conn)
	})
	session, handler := testSession(t, server.url, &fakeAPI{}, clockwork.NewFakeClock())

	session.Start()

	require.Eventually(t, func() bool { return handler.eventCount() == 1 }, time.Second, 5*time.Millisecond)
	follow, ok := handler.event(0).(FollowEvent)
	require.True(t, ok)
	assert.Equal(t, "Alice", follow.UserName)
}

func TestSessionUnknownNotificationKeepsConnection(t *testing.T) {
	server := startEventSubServer(t, func(conn *ws.Conn) {
		conn.WriteMessage(ws.TextMessage, welcomeFrame("abc123"))
		conn.WriteMessage(ws.TextMessage, notificationFrame("channel.someday", `{}`))
		conn.WriteMessage(ws.TextMessage, notificationFrame("channel.cheer", `{"user_name":"Bob","bits":50}`))
		holdOpen(conn)
	})
	session, handler := testSession(t, server.url, &fakeAPI{}, clockwork.NewFakeClock())

	session.Start()

	require.Eventually(t, func() bool { return handler.eventCount() == 1 }, time.Second, 5*time.Millisecond)
	cheer, ok := handler.event(0).(CheerEvent)
	require.True(t, ok)
	assert.Equal(t, 50, cheer.Bits)
}

func TestSessionDisconnectSchedulesReconnect(t *testing.T) {
	clock := clockwork.NewFakeClock()
	dropFirst := make(chan struct{})
	var once sync.Once
	server := startEventSubServer(t, func(conn *ws.Conn) {
		conn.WriteMessage(ws.TextMessage, welcomeFrame("abc123"))
		once.Do(func() {
			go func() {
				<-dropFirst
				conn.Close()
			}()
		})
		holdOpen(conn)
	})
	session, _ := testSession(t, server.url, &fakeAPI{}, clock)

	session.Start()
	require.Eventually(t, func() bool { return session.State() == StateReady }, time.Second, 5*time.Millisecond)

	close(dropFirst)
	require.Eventually(t, func() bool { return session.State() == StateDisconnected }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, sessionAttempt(session))
	assert.Empty(t, currentSessionID(session))

	// The redial happens only after the first backoff interval.
	clock.BlockUntil(1)
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return server.connectCount() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestSessionStartIsIdempotent(t *testing.T) {
	server := startEventSubServer(t, func(conn *ws.Conn) {
		conn.WriteMessage(ws.TextMessage, welcomeFrame("abc123"))
		holdOpen(conn)
	})
	session, _ := testSession(t, server.url, &fakeAPI{}, clockwork.NewFakeClock())

	session.Start()
	session.Start()

	require.Eventually(t, func() bool { return session.State() == StateReady }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, server.connectCount())
}

func TestSessionStopCancelsReconnect(t *testing.T) {
	clock := clockwork.NewFakeClock()
	server := startEventSubServer(t, func(conn *ws.Conn) {
		conn.Close()
	})
	session, _ := testSession(t, server.url, &fakeAPI{}, clock)

	session.Start()
	require.Eventually(t, func() bool { return sessionAttempt(session) >= 1 }, time.Second, 5*time.Millisecond)

	session.Stop()
	session.Stop()
	clock.Advance(time.Minute)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateDisconnected, session.State())
	assert.Equal(t, 1, server.connectCount())
}

func TestSessionReconnectMessageMigrates(t *testing.T) {
	target := startEventSubServer(t, func(conn *ws.Conn) {
		conn.WriteMessage(ws.TextMessage, welcomeFrame("def456"))
		holdOpen(conn)
	})
	origin := startEventSubServer(t, func(conn *ws.Conn) {
		conn.WriteMessage(ws.TextMessage, welcomeFrame("abc123"))
		conn.WriteMessage(ws.TextMessage, reconnectFrame(target.url))
		holdOpen(conn)
	})
	session, _ := testSession(t, origin.url, &fakeAPI{}, clockwork.NewFakeClock())

	session.Start()

	require.Eventually(t, func() bool {
		return target.connectCount() == 1 && session.State() == StateReady
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "def456", currentSessionID(session))
	// Server-directed migration carries no backoff penalty.
	assert.Zero(t, sessionAttempt(session))
}

func TestSessionRevocationResubscribesOneType(t *testing.T) {
	server := startEventSubServer(t, func(conn *ws.Conn) {
		conn.WriteMessage(ws.TextMessage, welcomeFrame("abc123"))
		conn.WriteMessage(ws.TextMessage, revocationFrame("channel.follow"))
		holdOpen(conn)
	})
	api := &fakeAPI{}
	session, _ := testSession(t, server.url, api, clockwork.NewFakeClock())

	session.Start()

	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		count := 0
		for _, call := range api.created {
			if call.subType == "channel.follow" {
				count++
			}
		}
		return count == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, server.connectCount())
	assert.Equal(t, 1, api.listCount())
}

func TestSessionReconcileFailureReconnects(t *testing.T) {
	clock := clockwork.NewFakeClock()
	server := startEventSubServer(t, func(conn *ws.Conn) {
		conn.WriteMessage(ws.TextMessage, welcomeFrame("abc123"))
		holdOpen(conn)
	})
	api := &fakeAPI{listErr: fmt.Errorf("helix down")}
	session, handler := testSession(t, server.url, api, clock)

	session.Start()

	require.Eventually(t, func() bool { return session.State() == StateDisconnected }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, handler.errorCount(), 1)
	assert.Equal(t, 1, sessionAttempt(session))
}

func TestSessionKeepaliveWatchdogForcesReconnect(t *testing.T) {
	clock := clockwork.NewFakeClock()
	server := startEventSubServer(t, func(conn *ws.Conn) {
		conn.WriteMessage(ws.TextMessage, welcomeFrame("abc123"))
		holdOpen(conn)
	})
	session, _ := testSession(t, server.url, &fakeAPI{}, clock)

	session.Start()
	require.Eventually(t, func() bool { return session.State() == StateReady }, time.Second, 5*time.Millisecond)

	// No keepalives for longer than the advertised timeout plus slack.
	clock.Advance(16 * time.Second)
	clock.BlockUntil(1)
	clock.Advance(time.Second)

	require.Eventually(t, func() bool { return server.connectCount() >= 2 }, time.Second, 5*time.Millisecond)
}
