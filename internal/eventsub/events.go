package eventsub

import "time"

// FollowEvent fires when someone follows the channel.
type FollowEvent struct {
	UserID     string    `json:"user_id"`
	UserLogin  string    `json:"user_login"`
	UserName   string    `json:"user_name"`
	FollowedAt time.Time `json:"followed_at"`
}

// SubscribeEvent fires on a new paid subscription, gifted ones included.
type SubscribeEvent struct {
	UserID    string `json:"user_id"`
	UserLogin string `json:"user_login"`
	UserName  string `json:"user_name"`
	Tier      string `json:"tier"`
	IsGift    bool   `json:"is_gift"`
}

// SubscriptionGiftEvent fires when a viewer gifts subscriptions to others.
type SubscriptionGiftEvent struct {
	UserName        string `json:"user_name"`
	Total           int    `json:"total"`
	Tier            string `json:"tier"`
	CumulativeTotal int    `json:"cumulative_total"`
	IsAnonymous     bool   `json:"is_anonymous"`
}

// SubscriptionMessageEvent is a resub announcement with the viewer's text.
type SubscriptionMessageEvent struct {
	UserName         string `json:"user_name"`
	Tier             string `json:"tier"`
	CumulativeMonths int    `json:"cumulative_months"`
	DurationMonths   int    `json:"duration_months"`
	Message          struct {
		Text string `json:"text"`
	} `json:"message"`
}

// RaidEvent fires when another broadcaster raids the channel.
type RaidEvent struct {
	FromBroadcasterUserLogin string `json:"from_broadcaster_user_login"`
	FromBroadcasterUserName  string `json:"from_broadcaster_user_name"`
	Viewers                  int    `json:"viewers"`
}

// CheerEvent fires when bits are cheered in chat.
type CheerEvent struct {
	UserName    string `json:"user_name"`
	IsAnonymous bool   `json:"is_anonymous"`
	Bits        int    `json:"bits"`
	Message     string `json:"message"`
}

// ModerateUser identifies the user a moderation action applies to.
type ModerateUser struct {
	UserID    string `json:"user_id"`
	UserLogin string `json:"user_login"`
	UserName  string `json:"user_name"`
}

type ModerateTimeout struct {
	ModerateUser
	Reason    string    `json:"reason"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ModerateBan struct {
	ModerateUser
	Reason string `json:"reason"`
}

type ModerateDelete struct {
	ModerateUser
	MessageID   string `json:"message_id"`
	MessageBody string `json:"message_body"`
}

// ModerateEvent carries one moderation action. The affected user sits under
// the field named after the action; At is the server timestamp of the
// notification.
type ModerateEvent struct {
	Action            string           `json:"action"`
	ModeratorUserName string           `json:"moderator_user_name"`
	Timeout           *ModerateTimeout `json:"timeout"`
	Untimeout         *ModerateUser    `json:"untimeout"`
	Ban               *ModerateBan     `json:"ban"`
	Unban             *ModerateUser    `json:"unban"`
	Delete            *ModerateDelete  `json:"delete"`
	At                time.Time        `json:"-"`
}

// Target resolves the affected user through the action-named field.
func (e ModerateEvent) Target() string {
	switch e.Action {
	case "timeout":
		if e.Timeout != nil {
			return e.Timeout.UserLogin
		}
	case "untimeout":
		if e.Untimeout != nil {
			return e.Untimeout.UserLogin
		}
	case "ban":
		if e.Ban != nil {
			return e.Ban.UserLogin
		}
	case "unban":
		if e.Unban != nil {
			return e.Unban.UserLogin
		}
	case "delete":
		if e.Delete != nil {
			return e.Delete.UserLogin
		}
	}
	return ""
}

// TimeoutDuration is how long the timeout runs from the moment the
// notification was sent. Zero for anything but a timeout.
func (e ModerateEvent) TimeoutDuration() time.Duration {
	if e.Action != "timeout" || e.Timeout == nil || e.At.IsZero() {
		return 0
	}
	if d := e.Timeout.ExpiresAt.Sub(e.At); d > 0 {
		return d
	}
	return 0
}

// SharedChatParticipant is one channel taking part in a shared chat
// session.
type SharedChatParticipant struct {
	BroadcasterUserID    string `json:"broadcaster_user_id"`
	BroadcasterUserLogin string `json:"broadcaster_user_login"`
	BroadcasterUserName  string `json:"broadcaster_user_name"`
}

type SharedChatBeginEvent struct {
	SessionID               string                  `json:"session_id"`
	HostBroadcasterUserName string                  `json:"host_broadcaster_user_name"`
	Participants            []SharedChatParticipant `json:"participants"`
}

type SharedChatUpdateEvent struct {
	SessionID               string                  `json:"session_id"`
	HostBroadcasterUserName string                  `json:"host_broadcaster_user_name"`
	Participants            []SharedChatParticipant `json:"participants"`
}

type SharedChatEndEvent struct {
	SessionID               string `json:"session_id"`
	HostBroadcasterUserName string `json:"host_broadcaster_user_name"`
}

type HypeTrainBeginEvent struct {
	Level     int       `json:"level"`
	Total     int       `json:"total"`
	Progress  int       `json:"progress"`
	Goal      int       `json:"goal"`
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type HypeTrainProgressEvent struct {
	Level     int       `json:"level"`
	Total     int       `json:"total"`
	Progress  int       `json:"progress"`
	Goal      int       `json:"goal"`
	ExpiresAt time.Time `json:"expires_at"`
}

type HypeTrainEndEvent struct {
	Level   int       `json:"level"`
	Total   int       `json:"total"`
	EndedAt time.Time `json:"ended_at"`
}

type AdBreakBeginEvent struct {
	DurationSeconds int       `json:"duration_seconds"`
	StartedAt       time.Time `json:"started_at"`
	IsAutomatic     bool      `json:"is_automatic"`
}

// RewardRedemptionEvent fires when a viewer redeems a channel points
// reward.
type RewardRedemptionEvent struct {
	UserName  string `json:"user_name"`
	UserInput string `json:"user_input"`
	Status    string `json:"status"`
	Reward    struct {
		Title  string `json:"title"`
		Cost   int    `json:"cost"`
		Prompt string `json:"prompt"`
	} `json:"reward"`
	RedeemedAt time.Time `json:"redeemed_at"`
}

// Handler receives decoded events and session-level errors. Calls arrive
// from the session's connection goroutine, one at a time.
type Handler interface {
	Follow(FollowEvent)
	Subscribe(SubscribeEvent)
	SubscriptionGift(SubscriptionGiftEvent)
	SubscriptionMessage(SubscriptionMessageEvent)
	Raid(RaidEvent)
	Cheer(CheerEvent)
	Moderate(ModerateEvent)
	SharedChatBegin(SharedChatBeginEvent)
	SharedChatUpdate(SharedChatUpdateEvent)
	SharedChatEnd(SharedChatEndEvent)
	HypeTrainBegin(HypeTrainBeginEvent)
	HypeTrainProgress(HypeTrainProgressEvent)
	HypeTrainEnd(HypeTrainEndEvent)
	AdBreakBegin(AdBreakBeginEvent)
	RewardRedemption(RewardRedemptionEvent)
	SessionError(message string)
}
