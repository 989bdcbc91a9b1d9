package eventsub

import (
	"encoding/json"
	"log/slog"

	"github.com/AndrewBeshay/moblin/internal/helix"
	"github.com/AndrewBeshay/moblin/internal/metrics"
)

// Identity names the channel being observed and the authenticated user
// acting as moderator for the moderator-scoped subscription types.
type Identity struct {
	BroadcasterID string
	UserID        string
}

type dispatchFunc func(h Handler, event json.RawMessage, meta metadata) error

// eventType binds one wire subscription type to its version, its Helix
// condition, and its decoder.
type eventType struct {
	version   string
	condition func(id Identity) helix.Condition
	dispatch  dispatchFunc
}

func broadcasterCondition(id Identity) helix.Condition {
	return helix.Condition{BroadcasterUserID: id.BroadcasterID}
}

func moderatorCondition(id Identity) helix.Condition {
	return helix.Condition{BroadcasterUserID: id.BroadcasterID, ModeratorUserID: id.UserID}
}

func raidCondition(id Identity) helix.Condition {
	return helix.Condition{ToBroadcasterUserID: id.BroadcasterID}
}

// decodeTo builds a dispatchFunc that unmarshals the event into E and
// hands it to deliver.
func decodeTo[E any](deliver func(Handler, E)) dispatchFunc {
	return func(h Handler, raw json.RawMessage, _ metadata) error {
		var event E
		if err := json.Unmarshal(raw, &event); err != nil {
			return err
		}
		deliver(h, event)
		return nil
	}
}

// eventTypes is the registry of supported subscription types and the
// desired set the reconciler establishes each session.
var eventTypes = map[string]eventType{
	"channel.follow": {
		version:   "2",
		condition: moderatorCondition,
		dispatch:  decodeTo(func(h Handler, e FollowEvent) { h.Follow(e) }),
	},
	"channel.subscribe": {
		version:   "1",
		condition: broadcasterCondition,
		dispatch:  decodeTo(func(h Handler, e SubscribeEvent) { h.Subscribe(e) }),
	},
	"channel.subscription.gift": {
		version:   "1",
		condition: broadcasterCondition,
		dispatch:  decodeTo(func(h Handler, e SubscriptionGiftEvent) { h.SubscriptionGift(e) }),
	},
	"channel.subscription.message": {
		version:   "1",
		condition: broadcasterCondition,
		dispatch:  decodeTo(func(h Handler, e SubscriptionMessageEvent) { h.SubscriptionMessage(e) }),
	},
	"channel.raid": {
		version:   "1",
		condition: raidCondition,
		dispatch:  decodeTo(func(h Handler, e RaidEvent) { h.Raid(e) }),
	},
	"channel.cheer": {
		version:   "1",
		condition: broadcasterCondition,
		dispatch:  decodeTo(func(h Handler, e CheerEvent) { h.Cheer(e) }),
	},
	"channel.moderate": {
		version:   "2",
		condition: moderatorCondition,
		dispatch: func(h Handler, raw json.RawMessage, meta metadata) error {
			var event ModerateEvent
			if err := json.Unmarshal(raw, &event); err != nil {
				return err
			}
			event.At = meta.MessageTimestamp
			h.Moderate(event)
			return nil
		},
	},
	"channel.shared_chat.begin": {
		version:   "1",
		condition: broadcasterCondition,
		dispatch:  decodeTo(func(h Handler, e SharedChatBeginEvent) { h.SharedChatBegin(e) }),
	},
	"channel.shared_chat.update": {
		version:   "1",
		condition: broadcasterCondition,
		dispatch:  decodeTo(func(h Handler, e SharedChatUpdateEvent) { h.SharedChatUpdate(e) }),
	},
	"channel.shared_chat.end": {
		version:   "1",
		condition: broadcasterCondition,
		dispatch:  decodeTo(func(h Handler, e SharedChatEndEvent) { h.SharedChatEnd(e) }),
	},
	"channel.hype_train.begin": {
		version:   "1",
		condition: broadcasterCondition,
		dispatch:  decodeTo(func(h Handler, e HypeTrainBeginEvent) { h.HypeTrainBegin(e) }),
	},
	"channel.hype_train.progress": {
		version:   "1",
		condition: broadcasterCondition,
		dispatch:  decodeTo(func(h Handler, e HypeTrainProgressEvent) { h.HypeTrainProgress(e) }),
	},
	"channel.hype_train.end": {
		version:   "1",
		condition: broadcasterCondition,
		dispatch:  decodeTo(func(h Handler, e HypeTrainEndEvent) { h.HypeTrainEnd(e) }),
	},
	"channel.ad_break.begin": {
		version:   "1",
		condition: broadcasterCondition,
		dispatch:  decodeTo(func(h Handler, e AdBreakBeginEvent) { h.AdBreakBegin(e) }),
	},
	"channel.channel_points_custom_reward_redemption.add": {
		version:   "1",
		condition: broadcasterCondition,
		dispatch:  decodeTo(func(h Handler, e RewardRedemptionEvent) { h.RewardRedemption(e) }),
	},
}

// dispatch routes one notification to its typed handler. Unknown types and
// undecodable payloads drop the message and leave the connection alone.
func dispatch(h Handler, meta metadata, raw json.RawMessage) {
	entry, ok := eventTypes[meta.SubscriptionType]
	if !ok {
		metrics.EventSubNotifications.WithLabelValues(meta.SubscriptionType, "unknown_type").Inc()
		slog.Warn("Dropping notification for unknown subscription type", "type", meta.SubscriptionType)
		return
	}
	if err := entry.dispatch(h, raw, meta); err != nil {
		metrics.EventSubNotifications.WithLabelValues(meta.SubscriptionType, "decode_error").Inc()
		slog.Warn("Dropping undecodable notification", "type", meta.SubscriptionType, "error", err)
		return
	}
	metrics.EventSubNotifications.WithLabelValues(meta.SubscriptionType, "handled").Inc()
}
