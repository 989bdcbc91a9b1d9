package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Chat metrics
var (
	// ChatLinesReceived counts raw IRC lines by outcome (handled/ignored/parse_error).
	ChatLinesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_lines_received_total",
			Help: "Raw IRC lines received by parse outcome",
		},
		[]string{"outcome"},
	)

	// ChatMessagesDelivered counts chat messages handed to the delegate.
	ChatMessagesDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_delivered_total",
			Help: "Normalized chat messages delivered to the consumer",
		},
	)

	// ChatReconnects counts chat socket reconnect attempts.
	ChatReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_reconnects_total",
			Help: "Chat socket reconnect attempts",
		},
	)

	// AssetFetchFailures counts badge/cheermote fetch failures by kind.
	AssetFetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_asset_fetch_failures_total",
			Help: "Badge and cheermote fetch failures by asset kind",
		},
		[]string{"kind"},
	)
)

// EventSub metrics
var (
	// EventSubNotifications counts notifications by subscription type and outcome
	// (handled/unknown_type/decode_error).
	EventSubNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_notifications_total",
			Help: "EventSub notifications by subscription type and outcome",
		},
		[]string{"type", "outcome"},
	)

	// EventSubReconnects counts EventSub socket reconnect attempts.
	EventSubReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsub_reconnects_total",
			Help: "EventSub socket reconnect attempts",
		},
	)

	// EventSubState tracks the session state (0=disconnected ... 4=ready).
	EventSubState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventsub_session_state",
			Help: "EventSub session state (0=disconnected, 1=connecting, 2=connected, 3=subscribing, 4=ready)",
		},
	)

	// EventSubSubscriptionsCreated counts subscription creations by type and status.
	EventSubSubscriptionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsub_subscriptions_created_total",
			Help: "EventSub subscription creations by type and status",
		},
		[]string{"type", "status"},
	)
)
