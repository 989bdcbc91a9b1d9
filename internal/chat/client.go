package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/AndrewBeshay/moblin/internal/irc"
	"github.com/AndrewBeshay/moblin/internal/logging"
	"github.com/AndrewBeshay/moblin/internal/metrics"
	"github.com/AndrewBeshay/moblin/internal/platform/retry"
)

const defaultChatURL = "wss://irc-ws.chat.twitch.tv"

// Twitch allows 20 messages per 30 seconds for regular users.
var sendLimit = rate.Every(1500 * time.Millisecond)

const actionPrefix = "\x01ACTION "

var errServerReconnect = errors.New("server requested reconnect")

// Highlight marks a message the UI should call out.
type Highlight struct {
	Kind  string
	Title string
}

const (
	HighlightAnnouncement = "announcement"
	HighlightFirstMessage = "first-message"
)

// Post is one fully resolved chat message, ready to render.
type Post struct {
	Channel           string
	Sender            string
	UserID            string
	Color             string
	Timestamp         time.Time
	Segments          []Segment
	BadgeURLs         []string
	Action            bool
	Subscriber        bool
	Moderator         bool
	Turbo             bool
	Bits              string
	Highlight         *Highlight
	FromSharedChat    bool
	SourceChannelID   string
	SourceDisplayName string
}

// Delegate receives chat traffic. Calls arrive from the client's connection
// goroutine, one at a time.
type Delegate interface {
	ChatMessage(post Post)
	ChatError(message string)
}

// Config carries everything needed to join one channel's chat. An empty
// AccessToken joins read-only with an anonymous justinfan nick.
type Config struct {
	Channel          string
	ChannelID        string
	Nickname         string
	AccessToken      string
	URL              string
	ThirdPartyEmotes EmoteTable
}

// Client maintains a chat connection to one channel, reconnecting forever
// until Stop is called. One reader goroutine owns the connection; delivered
// posts come from that goroutine.
type Client struct {
	cfg      Config
	delegate Delegate
	assets   *AssetStore
	clock    clockwork.Clock
	limiter  *rate.Limiter

	mu         sync.Mutex
	generation int
	cancel     context.CancelFunc

	connMu sync.Mutex
	conn   *websocket.Conn
}

func NewClient(cfg Config, delegate Delegate, assets *AssetStore, clock clockwork.Clock) *Client {
	if cfg.URL == "" {
		cfg.URL = defaultChatURL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		cfg:      cfg,
		delegate: delegate,
		assets:   assets,
		clock:    clock,
		limiter:  rate.NewLimiter(sendLimit, 20),
	}
}

// Start connects in the background. Calling Start on a running client tears
// the old connection down first.
func (c *Client) Start() {
	c.mu.Lock()
	c.stopLocked()
	c.generation++
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	if c.assets != nil {
		c.assets.Start(c.cfg.ChannelID)
	}
	go c.run(ctx)
}

// Stop disconnects and halts reconnection. Safe to call repeatedly.
func (c *Client) Stop() {
	c.mu.Lock()
	c.stopLocked()
	c.generation++
	c.mu.Unlock()

	if c.assets != nil {
		c.assets.Stop()
	}
}

func (c *Client) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

func (c *Client) run(ctx context.Context) {
	log := logging.WithChannel(c.cfg.Channel)
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		err := c.connectAndConsume(ctx, log, func() { attempt = 0 })
		if ctx.Err() != nil {
			return
		}
		attempt++
		metrics.ChatReconnects.Inc()
		delay := retry.DefaultReconnect.Delay(attempt)
		log.Warn("Chat connection lost, reconnecting", "error", err, "attempt", attempt, "delay", delay)
		c.delegate.ChatError("Chat disconnected, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(delay):
		}
	}
}

// connectAndConsume runs one connection lifetime and returns its terminal
// error. onConnected fires once registration succeeds.
func (c *Client) connectAndConsume(ctx context.Context, log *slog.Logger, onConnected func()) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dialing chat: %w", err)
	}
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer func() {
		c.connMu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.connMu.Unlock()
		conn.Close()
	}()

	if err := c.register(); err != nil {
		return fmt.Errorf("registering with chat: %w", err)
	}
	log.Info("Chat connected", "anonymous", c.cfg.AccessToken == "")
	onConnected()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading chat frame: %w", err)
		}
		for _, line := range strings.Split(string(payload), "\r\n") {
			if line == "" {
				continue
			}
			if err := c.handleLine(log, line); err != nil {
				return err
			}
		}
	}
}

// register performs the IRC login handshake on the current connection.
func (c *Client) register() error {
	lines := []string{"CAP REQ :twitch.tv/membership twitch.tv/tags twitch.tv/commands"}
	if c.cfg.AccessToken != "" {
		lines = append(lines,
			"PASS oauth:"+c.cfg.AccessToken,
			"NICK "+c.cfg.Nickname)
	} else {
		lines = append(lines, fmt.Sprintf("NICK justinfan%d", rand.IntN(900000)+100000))
	}
	lines = append(lines, "JOIN #"+c.cfg.Channel)
	for _, line := range lines {
		if err := c.writeLine(line); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) writeLine(line string) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return errors.New("chat not connected")
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

// SendMessage posts text to the joined channel, honoring Twitch's rate
// limit. It fails immediately for anonymous connections.
func (c *Client) SendMessage(ctx context.Context, text string) error {
	if c.cfg.AccessToken == "" {
		return errors.New("cannot send messages on an anonymous connection")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	nonce := uuid.NewString()
	return c.writeLine(fmt.Sprintf("@client-nonce=%s PRIVMSG #%s :%s", nonce, c.cfg.Channel, text))
}

func (c *Client) handleLine(log *slog.Logger, line string) error {
	msg, err := irc.ParseMessage(line)
	if err != nil {
		metrics.ChatLinesReceived.WithLabelValues("parse_error").Inc()
		log.Warn("Dropping unparseable chat line", "error", err)
		return nil
	}

	switch msg.Command {
	case irc.CommandPing:
		return c.writeLine("PONG :" + strings.Join(msg.Parameters, " "))
	case irc.CommandReconnect:
		metrics.ChatLinesReceived.WithLabelValues("handled").Inc()
		return errServerReconnect
	case irc.CommandPrivateMessage, irc.CommandUserNotice:
		chatMsg, ok := irc.NewChatMessage(msg)
		if !ok {
			metrics.ChatLinesReceived.WithLabelValues("ignored").Inc()
			return nil
		}
		metrics.ChatLinesReceived.WithLabelValues("handled").Inc()
		c.deliver(chatMsg)
		return nil
	case irc.CommandNotice:
		metrics.ChatLinesReceived.WithLabelValues("handled").Inc()
		if len(msg.Parameters) >= 2 {
			c.delegate.ChatError(msg.Parameters[len(msg.Parameters)-1])
		}
		return nil
	default:
		metrics.ChatLinesReceived.WithLabelValues("ignored").Inc()
		return nil
	}
}

func (c *Client) deliver(msg irc.ChatMessage) {
	text := msg.Text
	action := false
	if stripped, ok := strings.CutPrefix(text, actionPrefix); ok {
		text = strings.TrimSuffix(stripped, "\x01")
		action = true
	}

	spans := make([]EmoteSpan, 0, len(msg.Emotes))
	for _, emote := range msg.Emotes {
		spans = append(spans, EmoteSpan{URL: emote.URL(), Start: emote.Start, End: emote.End})
	}
	segments := BuildSegments(text, spans, c.cfg.ThirdPartyEmotes, c.cheerTable(), msg.Bits)

	badges := msg.Badges
	if msg.FromSharedChat() {
		badges = msg.SourceBadges
	}
	var badgeURLs []string
	if c.assets != nil {
		for _, badge := range badges {
			if url, ok := c.assets.BadgeURL(badge); ok {
				badgeURLs = append(badgeURLs, url)
			}
		}
	}

	post := Post{
		Channel:           msg.Channel,
		Sender:            msg.Sender,
		UserID:            msg.UserID,
		Color:             msg.Color,
		Timestamp:         msg.Timestamp,
		Segments:          segments,
		BadgeURLs:         badgeURLs,
		Action:            action,
		Subscriber:        msg.Subscriber,
		Moderator:         msg.Moderator,
		Turbo:             msg.Turbo,
		Bits:              msg.Bits,
		Highlight:         classifyHighlight(msg),
		FromSharedChat:    msg.FromSharedChat(),
		SourceChannelID:   msg.SourceRoomID,
		SourceDisplayName: msg.SourceDisplayName,
	}
	metrics.ChatMessagesDelivered.Inc()
	c.delegate.ChatMessage(post)
}

func (c *Client) cheerTable() CheermoteTable {
	if c.assets == nil {
		return nil
	}
	return c.assets
}

func classifyHighlight(msg irc.ChatMessage) *Highlight {
	switch {
	case msg.Announce:
		return &Highlight{Kind: HighlightAnnouncement, Title: "Announcement"}
	case msg.FirstMsg:
		return &Highlight{Kind: HighlightFirstMessage, Title: "First time chatter"}
	default:
		return nil
	}
}
