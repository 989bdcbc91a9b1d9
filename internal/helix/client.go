package helix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	helixapi "github.com/nicklaw5/helix/v2"
)

const (
	defaultAPIBaseURL = "https://api.twitch.tv/helix"
	requestTimeout    = 15 * time.Second
)

// ErrUnauthorized is returned on HTTP 401. The credential store owns token
// refresh; callers surface this to the user instead of retrying.
var ErrUnauthorized = errors.New("helix: unauthorized")

// APIError is a non-401 failure response from the Helix API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("helix: status %d: %s", e.StatusCode, e.Message)
}

// TokenSource supplies the bearer token for each request. Refresh and expiry
// live outside this package.
type TokenSource interface {
	AccessToken() string
}

// StaticToken is a TokenSource for a fixed token string.
type StaticToken string

func (t StaticToken) AccessToken() string { return string(t) }

// Client calls the Helix REST API: EventSub subscription CRUD through the
// helix library, chat badges and cheermotes through plain GETs (the library
// does not expose the tiered image maps those responses carry).
type Client struct {
	mu         sync.Mutex
	api        *helixapi.Client
	httpClient *http.Client
	clientID   string
	tokens     TokenSource
	baseURL    string
}

// NewClient builds a client for the given app and user credentials.
func NewClient(clientID string, tokens TokenSource) (*Client, error) {
	api, err := helixapi.NewClient(&helixapi.Options{
		ClientID: clientID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create helix client: %w", err)
	}
	return &Client{
		api:        api,
		httpClient: &http.Client{Timeout: requestTimeout},
		clientID:   clientID,
		tokens:     tokens,
		baseURL:    defaultAPIBaseURL,
	}, nil
}

// Condition selects which channel's events a subscription covers. Zero
// fields are omitted from the request.
type Condition struct {
	BroadcasterUserID   string
	ToBroadcasterUserID string
	ModeratorUserID     string
	UserID              string
}

// Subscription is the slice of the Helix subscription resource this module
// cares about.
type Subscription struct {
	ID     string
	Type   string
	Status string
}

// GetEventSubSubscriptions lists subscriptions with the given status
// ("enabled", "websocket_disconnected", ...), following pagination.
func (c *Client) GetEventSubSubscriptions(ctx context.Context, status string) ([]Subscription, error) {
	params := &helixapi.EventSubSubscriptionsParams{Status: status}
	var subs []Subscription

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.api.SetUserAccessToken(c.tokens.AccessToken())
		resp, err := c.api.GetEventSubSubscriptions(params)
		c.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("failed to list eventsub subscriptions: %w", err)
		}
		if err := checkResponse(&resp.ResponseCommon, http.StatusOK); err != nil {
			return nil, err
		}

		for _, sub := range resp.Data.EventSubSubscriptions {
			subs = append(subs, Subscription{ID: sub.ID, Type: sub.Type, Status: sub.Status})
		}

		if resp.Data.Pagination.Cursor == "" {
			return subs, nil
		}
		params.After = resp.Data.Pagination.Cursor
	}
}

// CreateEventSubSubscription creates one websocket-transport subscription
// bound to the given session and returns its id.
func (c *Client) CreateEventSubSubscription(ctx context.Context, subType, version string, condition Condition, sessionID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.api.SetUserAccessToken(c.tokens.AccessToken())
	resp, err := c.api.CreateEventSubSubscription(&helixapi.EventSubSubscription{
		Type:    subType,
		Version: version,
		Condition: helixapi.EventSubCondition{
			BroadcasterUserID:   condition.BroadcasterUserID,
			ToBroadcasterUserID: condition.ToBroadcasterUserID,
			ModeratorUserID:     condition.ModeratorUserID,
			UserID:              condition.UserID,
		},
		Transport: helixapi.EventSubTransport{
			Method:    "websocket",
			SessionID: sessionID,
		},
	})
	c.mu.Unlock()

	if err != nil {
		return "", fmt.Errorf("failed to create eventsub subscription: %w", err)
	}
	if err := checkResponse(&resp.ResponseCommon, http.StatusAccepted); err != nil {
		return "", err
	}
	if len(resp.Data.EventSubSubscriptions) == 0 {
		return "", &APIError{StatusCode: resp.StatusCode, Message: "no subscription returned"}
	}
	return resp.Data.EventSubSubscriptions[0].ID, nil
}

// DeleteEventSubSubscription removes a subscription by id.
func (c *Client) DeleteEventSubSubscription(ctx context.Context, subscriptionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.api.SetUserAccessToken(c.tokens.AccessToken())
	resp, err := c.api.RemoveEventSubSubscription(subscriptionID)
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to delete eventsub subscription: %w", err)
	}
	return checkResponse(&resp.ResponseCommon, http.StatusNoContent)
}

func checkResponse(rc *helixapi.ResponseCommon, want int) error {
	switch {
	case rc.StatusCode == want:
		return nil
	case rc.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		msg := rc.ErrorMessage
		if msg == "" {
			msg = rc.Error
		}
		return &APIError{StatusCode: rc.StatusCode, Message: msg}
	}
}

// get issues an authenticated GET against the Helix API and decodes the
// body into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.tokens.AccessToken())
	req.Header.Set("Client-Id", c.clientID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
