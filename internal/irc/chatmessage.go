package irc

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const emoteURLTemplate = "https://static-cdn.jtvnw.net/emoticons/v2/%s/default/dark/2.0"

// Emote is one occurrence of a Twitch emote inside a message. Start and End
// are inclusive Unicode-scalar offsets into the message text, exactly as the
// server supplies them. Neither ordering nor validity is guaranteed.
type Emote struct {
	ID    string
	Start int
	End   int
}

// URL returns the CDN address of the emote image.
func (e Emote) URL() string {
	return fmt.Sprintf(emoteURLTemplate, e.ID)
}

// ChatMessage is a normalized PRIVMSG or USERNOTICE line. It is built once
// per inbound line and handed to the delegate; nothing retains it afterwards.
type ChatMessage struct {
	Channel     string
	UniqueID    string
	Login       string
	Sender      string
	UserID      string
	Color       string
	Text        string
	Timestamp   time.Time
	Badges      []string
	BadgeInfo   map[string]string
	Emotes      []Emote
	EmoteSets   []string
	RoomID      string
	Bits        string
	Announce    bool
	FirstMsg    bool
	Subscriber  bool
	Moderator   bool
	Turbo       bool

	// Shared-chat origin. A non-empty SourceRoomID is the authoritative
	// signal that the message originated in another channel.
	SourceRoomID      string
	SourceUserID      string
	SourceLogin       string
	SourceDisplayName string
	SourceColor       string
	SourceBadges      []string
}

// FromSharedChat reports whether the message originated in a channel other
// than the joined one.
func (m *ChatMessage) FromSharedChat() bool {
	return m.SourceRoomID != ""
}

// NewChatMessage turns a parsed line into a chat message. Only PRIVMSG and
// USERNOTICE qualify; anything else, and any line without a channel, text,
// and resolvable sender, returns false. That is not an error, just "this
// line is not a chat message".
func NewChatMessage(msg Message) (ChatMessage, bool) {
	if msg.Command != CommandPrivateMessage && msg.Command != CommandUserNotice {
		return ChatMessage{}, false
	}
	if len(msg.Parameters) < 2 {
		return ChatMessage{}, false
	}
	sender, ok := resolveSender(msg)
	if !ok {
		return ChatMessage{}, false
	}

	cm := ChatMessage{
		Channel:           msg.Parameters[0],
		UniqueID:          msg.Tags["id"],
		Login:             msg.Tags["login"],
		Sender:            sender,
		UserID:            msg.Tags["user-id"],
		Color:             msg.Tags["color"],
		Text:              msg.Parameters[len(msg.Parameters)-1],
		Timestamp:         parseTmiSentTs(msg.Tags["tmi-sent-ts"]),
		Badges:            splitList(msg.Tags["badges"]),
		BadgeInfo:         parseBadgeInfo(msg.Tags["badge-info"]),
		Emotes:            ParseEmotes(msg.Tags["emotes"]),
		EmoteSets:         splitList(msg.Tags["emote-sets"]),
		RoomID:            msg.Tags["room-id"],
		Bits:              msg.Tags["bits"],
		SourceRoomID:      msg.Tags["source-room-id"],
		SourceUserID:      msg.Tags["source-user-id"],
		SourceLogin:       msg.Tags["source-login"],
		SourceDisplayName: msg.Tags["source-display-name"],
		SourceColor:       msg.Tags["source-color"],
		SourceBadges:      splitList(msg.Tags["source-badges"]),
	}

	switch msg.Command {
	case CommandPrivateMessage:
		cm.FirstMsg = msg.Tags["first-msg"] == "1"
		cm.Subscriber = msg.Tags["subscriber"] == "1"
		cm.Moderator = msg.Tags["mod"] == "1"
		cm.Turbo = msg.Tags["turbo"] == "1"
	case CommandUserNotice:
		cm.Announce = msg.Tags["msg-id"] == "announcement"
	}

	return cm, true
}

// resolveSender prefers the display-name tag, then the nick part of the
// source prefix ("nick!user@host").
func resolveSender(msg Message) (string, bool) {
	if name := msg.Tags["display-name"]; name != "" {
		return name, true
	}
	if nick, _, found := strings.Cut(msg.Source, "!"); found && nick != "" {
		return nick, true
	}
	return "", false
}

// ParseEmotes parses the "emotes" tag: "id:start-end,start-end/id2:...".
// Malformed individual ranges are dropped; they never invalidate the rest.
func ParseEmotes(tag string) []Emote {
	if tag == "" {
		return nil
	}
	var emotes []Emote
	for _, definition := range strings.Split(tag, "/") {
		id, rangeList, found := strings.Cut(definition, ":")
		if !found || id == "" {
			continue
		}
		for _, r := range strings.Split(rangeList, ",") {
			startStr, endStr, found := strings.Cut(r, "-")
			if !found {
				continue
			}
			start, err := strconv.Atoi(startStr)
			if err != nil {
				continue
			}
			end, err := strconv.Atoi(endStr)
			if err != nil || start > end {
				continue
			}
			emotes = append(emotes, Emote{ID: id, Start: start, End: end})
		}
	}
	return emotes
}

func parseBadgeInfo(tag string) map[string]string {
	if tag == "" {
		return nil
	}
	info := map[string]string{}
	for _, pair := range strings.Split(tag, ",") {
		set, version, found := strings.Cut(pair, "/")
		if !found {
			continue
		}
		info[set] = version
	}
	return info
}

func splitList(tag string) []string {
	if tag == "" {
		return nil
	}
	return strings.Split(tag, ",")
}

func parseTmiSentTs(tag string) time.Time {
	ms, err := strconv.ParseInt(tag, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
