package irc

import (
	"fmt"
	"strings"
)

// Command is the closed set of IRC commands Twitch sends on the chat socket.
// Lines carrying anything else fail to parse with InvalidCommandError.
type Command string

const (
	CommandPrivateMessage  Command = "PRIVMSG"
	CommandUserNotice      Command = "USERNOTICE"
	CommandNotice          Command = "NOTICE"
	CommandPing            Command = "PING"
	CommandPong            Command = "PONG"
	CommandJoin            Command = "JOIN"
	CommandPart            Command = "PART"
	CommandCapability      Command = "CAP"
	CommandUserState       Command = "USERSTATE"
	CommandGlobalUserState Command = "GLOBALUSERSTATE"
	CommandRoomState       Command = "ROOMSTATE"
	CommandClearChat       Command = "CLEARCHAT"
	CommandClearMessage    Command = "CLEARMSG"
	CommandReconnect       Command = "RECONNECT"
	CommandWhisper         Command = "WHISPER"
	CommandHostTarget      Command = "HOSTTARGET"
	CommandWelcome         Command = "001"
	CommandYourHost        Command = "002"
	CommandCreated         Command = "003"
	CommandMyInfo          Command = "004"
	CommandNamesReply      Command = "353"
	CommandEndOfNames      Command = "366"
	CommandMOTD            Command = "372"
	CommandMOTDStart       Command = "375"
	CommandEndOfMOTD       Command = "376"
	CommandUnknownCommand  Command = "421"
)

var knownCommands = map[string]Command{}

func init() {
	for _, c := range []Command{
		CommandPrivateMessage, CommandUserNotice, CommandNotice,
		CommandPing, CommandPong, CommandJoin, CommandPart,
		CommandCapability, CommandUserState, CommandGlobalUserState,
		CommandRoomState, CommandClearChat, CommandClearMessage,
		CommandReconnect, CommandWhisper, CommandHostTarget,
		CommandWelcome, CommandYourHost, CommandCreated, CommandMyInfo,
		CommandNamesReply, CommandEndOfNames,
		CommandMOTD, CommandMOTDStart, CommandEndOfMOTD,
		CommandUnknownCommand,
	} {
		knownCommands[string(c)] = c
	}
}

// MissingCommandError means the line ended before a command token appeared.
type MissingCommandError struct {
	Line string
}

func (e *MissingCommandError) Error() string {
	return fmt.Sprintf("irc: missing command in line %q", e.Line)
}

// InvalidCommandError means the command token is not one Twitch sends.
type InvalidCommandError struct {
	Token string
}

func (e *InvalidCommandError) Error() string {
	return fmt.Sprintf("irc: invalid command %q", e.Token)
}

// Message is one parsed IRC line: @tags, :source, command, parameters.
// It is a value type with no retained references into the input line.
type Message struct {
	Tags       map[string]string
	Source     string
	Command    Command
	Parameters []string
}

// ParseMessage parses a single raw chat line. It is pure and safe to call
// from any goroutine.
//
// Grammar: [@key=val;... ][:source ]COMMAND [param ...][ :trailing].
// Duplicate tag keys keep the last value. A parameter starting with ':'
// swallows the rest of the line as one trailing parameter.
func ParseMessage(line string) (Message, error) {
	rest := line
	msg := Message{Tags: map[string]string{}}

	if strings.HasPrefix(rest, "@") {
		tagsPart, remainder, _ := strings.Cut(rest[1:], " ")
		for _, pair := range strings.Split(tagsPart, ";") {
			if pair == "" {
				continue
			}
			key, value, _ := strings.Cut(pair, "=")
			msg.Tags[key] = value
		}
		rest = remainder
	}

	if strings.HasPrefix(rest, ":") {
		source, remainder, _ := strings.Cut(rest[1:], " ")
		msg.Source = source
		rest = remainder
	}

	tokens := strings.Fields(rest)
	if len(tokens) == 0 {
		return Message{}, &MissingCommandError{Line: line}
	}

	command, ok := knownCommands[tokens[0]]
	if !ok {
		return Message{}, &InvalidCommandError{Token: tokens[0]}
	}
	msg.Command = command

	for i, token := range tokens[1:] {
		if strings.HasPrefix(token, ":") {
			trailing := strings.Join(tokens[1+i:], " ")
			msg.Parameters = append(msg.Parameters, strings.TrimPrefix(trailing, ":"))
			break
		}
		msg.Parameters = append(msg.Parameters, token)
	}

	return msg, nil
}
