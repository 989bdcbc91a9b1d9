package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	// Verify all metrics are registered without conflicts
	// This test ensures no duplicate metric names

	metrics := []prometheus.Collector{
		ChatLinesReceived,
		ChatMessagesDelivered,
		ChatReconnects,
		AssetFetchFailures,
		EventSubNotifications,
		EventSubReconnects,
		EventSubState,
		EventSubSubscriptionsCreated,
	}

	for _, m := range metrics {
		require.NotNil(t, m)
	}
}

func TestChatLinesReceived(t *testing.T) {
	before := testutil.ToFloat64(ChatLinesReceived.WithLabelValues("ok"))
	ChatLinesReceived.WithLabelValues("ok").Inc()
	after := testutil.ToFloat64(ChatLinesReceived.WithLabelValues("ok"))
	assert.Equal(t, before+1, after)
}

func TestEventSubStateGauge(t *testing.T) {
	EventSubState.Set(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(EventSubState))
	EventSubState.Set(0)
}

func TestMetricNamesFollowConvention(t *testing.T) {
	names := []string{
		"chat_lines_received_total",
		"chat_messages_delivered_total",
		"chat_reconnects_total",
		"chat_asset_fetch_failures_total",
		"eventsub_notifications_total",
		"eventsub_reconnects_total",
		"eventsub_session_state",
		"eventsub_subscriptions_created_total",
	}
	for _, name := range names {
		assert.False(t, strings.Contains(name, "-"), "metric %s must use underscores", name)
	}
}
