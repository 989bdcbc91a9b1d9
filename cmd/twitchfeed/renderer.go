package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/AndrewBeshay/moblin/internal/chat"
	"github.com/AndrewBeshay/moblin/internal/eventsub"
)

// renderer prints chat posts and channel events to the terminal. It is the
// delegate for both the chat client and the EventSub session, so a mutex
// keeps their output lines from interleaving.
type renderer struct {
	mu  sync.Mutex
	out io.Writer

	event     *color.Color
	alert     *color.Color
	highlight *color.Color
	dim       *color.Color
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{
		out:       out,
		event:     color.New(color.FgGreen),
		alert:     color.New(color.FgRed),
		highlight: color.New(color.FgYellow, color.Bold),
		dim:       color.New(color.Faint),
	}
}

func (r *renderer) printf(c *color.Color, format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.Fprintf(r.out, format+"\n", args...)
}

// senderColor maps a Twitch #RRGGBB color tag to a terminal color,
// defaulting to cyan when the tag is absent or malformed.
func senderColor(hex string) *color.Color {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return color.New(color.FgCyan, color.Bold)
	}
	red, err1 := strconv.ParseUint(hex[0:2], 16, 8)
	green, err2 := strconv.ParseUint(hex[2:4], 16, 8)
	blue, err3 := strconv.ParseUint(hex[4:6], 16, 8)
	if err1 != nil || err2 != nil || err3 != nil {
		return color.New(color.FgCyan, color.Bold)
	}
	return color.RGB(int(red), int(green), int(blue)).Add(color.Bold)
}

func renderSegments(segments []chat.Segment) string {
	var sb strings.Builder
	for _, segment := range segments {
		if segment.URL != "" {
			sb.WriteString("▢ ")
			continue
		}
		sb.WriteString(segment.Text)
	}
	return strings.TrimSpace(sb.String())
}

func (r *renderer) ChatMessage(post chat.Post) {
	var marks []string
	if post.Moderator {
		marks = append(marks, "mod")
	}
	if post.Subscriber {
		marks = append(marks, "sub")
	}
	if post.FromSharedChat {
		marks = append(marks, "shared")
	}
	prefix := ""
	if len(marks) > 0 {
		prefix = r.dim.Sprintf("[%s] ", strings.Join(marks, ","))
	}

	name := senderColor(post.Color).Sprint(post.Sender)
	text := renderSegments(post.Segments)
	if post.Action {
		text = r.dim.Sprintf("* %s", text)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if post.Highlight != nil {
		r.highlight.Fprintf(r.out, "── %s ──\n", post.Highlight.Title)
	}
	fmt.Fprintf(r.out, "%s%s: %s\n", prefix, name, text)
}

func (r *renderer) ChatError(message string) {
	r.printf(r.alert, "chat: %s", message)
}

func (r *renderer) Follow(e eventsub.FollowEvent) {
	r.printf(r.event, "%s followed", e.UserName)
}

func (r *renderer) Subscribe(e eventsub.SubscribeEvent) {
	if e.IsGift {
		r.printf(r.event, "%s received a gifted tier %s sub", e.UserName, e.Tier)
		return
	}
	r.printf(r.event, "%s subscribed at tier %s", e.UserName, e.Tier)
}

func (r *renderer) SubscriptionGift(e eventsub.SubscriptionGiftEvent) {
	who := e.UserName
	if e.IsAnonymous {
		who = "An anonymous viewer"
	}
	r.printf(r.event, "%s gifted %d subs", who, e.Total)
}

func (r *renderer) SubscriptionMessage(e eventsub.SubscriptionMessageEvent) {
	r.printf(r.event, "%s resubscribed (%d months): %s", e.UserName, e.CumulativeMonths, e.Message.Text)
}

func (r *renderer) Raid(e eventsub.RaidEvent) {
	r.printf(r.event, "%s raided with %d viewers", e.FromBroadcasterUserName, e.Viewers)
}

func (r *renderer) Cheer(e eventsub.CheerEvent) {
	who := e.UserName
	if e.IsAnonymous {
		who = "Anonymous"
	}
	r.printf(r.event, "%s cheered %d bits", who, e.Bits)
}

func (r *renderer) Moderate(e eventsub.ModerateEvent) {
	target := e.Target()
	switch e.Action {
	case "timeout":
		r.printf(r.event, "%s timed out %s for %s", e.ModeratorUserName, target, e.TimeoutDuration())
	case "ban":
		r.printf(r.event, "%s banned %s", e.ModeratorUserName, target)
	case "delete":
		r.printf(r.event, "%s deleted a message from %s", e.ModeratorUserName, target)
	default:
		r.printf(r.event, "%s: %s %s", e.ModeratorUserName, e.Action, target)
	}
}

func (r *renderer) SharedChatBegin(e eventsub.SharedChatBeginEvent) {
	names := make([]string, 0, len(e.Participants))
	for _, p := range e.Participants {
		names = append(names, p.BroadcasterUserName)
	}
	r.printf(r.event, "Shared chat started with %s", strings.Join(names, ", "))
}

func (r *renderer) SharedChatUpdate(e eventsub.SharedChatUpdateEvent) {
	r.printf(r.event, "Shared chat now has %d channels", len(e.Participants))
}

func (r *renderer) SharedChatEnd(eventsub.SharedChatEndEvent) {
	r.printf(r.event, "Shared chat ended")
}

func (r *renderer) HypeTrainBegin(e eventsub.HypeTrainBeginEvent) {
	r.printf(r.event, "Hype train started at level %d", e.Level)
}

func (r *renderer) HypeTrainProgress(e eventsub.HypeTrainProgressEvent) {
	r.printf(r.event, "Hype train level %d: %d/%d", e.Level, e.Progress, e.Goal)
}

func (r *renderer) HypeTrainEnd(e eventsub.HypeTrainEndEvent) {
	r.printf(r.event, "Hype train ended at level %d", e.Level)
}

func (r *renderer) AdBreakBegin(e eventsub.AdBreakBeginEvent) {
	r.printf(r.dim, "Ad break started (%ds)", e.DurationSeconds)
}

func (r *renderer) RewardRedemption(e eventsub.RewardRedemptionEvent) {
	if e.UserInput != "" {
		r.printf(r.event, "%s redeemed %s: %s", e.UserName, e.Reward.Title, e.UserInput)
		return
	}
	r.printf(r.event, "%s redeemed %s", e.UserName, e.Reward.Title)
}

func (r *renderer) SessionError(message string) {
	r.printf(r.alert, "events: %s", message)
}
