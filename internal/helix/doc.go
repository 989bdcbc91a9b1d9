// Package helix is the REST collaborator for the Twitch Helix API.
//
// It covers exactly what the ingestion core needs: EventSub subscription
// CRUD, chat badges, and cheermotes. Tokens come from a TokenSource; a 401
// maps to ErrUnauthorized and is never retried here.
package helix
