// Package irc parses Twitch's IRC dialect.
//
// ParseMessage turns one raw line into tags, source, command, and parameters.
// NewChatMessage normalizes PRIVMSG/USERNOTICE lines into ChatMessage values.
// Both are pure functions with no shared state, safe from any goroutine.
package irc
