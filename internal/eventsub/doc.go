// Package eventsub maintains a Twitch EventSub websocket session: it keeps
// the socket connected with backoff, reconciles the server-side
// subscription set against the supported event types, and dispatches
// notifications to a typed handler. Unknown or malformed notifications are
// dropped without disturbing the connection.
package eventsub
