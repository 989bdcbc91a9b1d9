package eventsub

import (
	"encoding/json"
	"time"
)

// Message types Twitch sends on the EventSub socket.
const (
	messageTypeWelcome      = "session_welcome"
	messageTypeKeepalive    = "session_keepalive"
	messageTypeNotification = "notification"
	messageTypeReconnect    = "session_reconnect"
	messageTypeRevocation   = "revocation"
)

type metadata struct {
	MessageID           string    `json:"message_id"`
	MessageType         string    `json:"message_type"`
	MessageTimestamp    time.Time `json:"message_timestamp"`
	SubscriptionType    string    `json:"subscription_type"`
	SubscriptionVersion string    `json:"subscription_version"`
}

// envelope is the outer frame shape. The payload stays raw until the
// message type selects a decoder.
type envelope struct {
	Metadata metadata        `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`
}

type session struct {
	ID                      string `json:"id"`
	Status                  string `json:"status"`
	KeepaliveTimeoutSeconds int    `json:"keepalive_timeout_seconds"`
	ReconnectURL            string `json:"reconnect_url"`
}

type sessionPayload struct {
	Session session `json:"session"`
}

type notificationPayload struct {
	Subscription struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Version string `json:"version"`
		Status  string `json:"status"`
	} `json:"subscription"`
	Event json.RawMessage `json:"event"`
}
