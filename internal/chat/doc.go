// Package chat connects to Twitch chat over IRC-on-websocket and turns raw
// lines into render-ready posts: emote and cheermote image segments, badge
// URLs, and highlight markers. The connection reconnects forever with
// backoff until stopped.
package chat
