package helix

import (
	"context"
	"net/url"
)

// BadgeVersion is one version of a badge set, e.g. subscriber/12.
type BadgeVersion struct {
	ID         string `json:"id"`
	ImageURL1x string `json:"image_url_1x"`
	ImageURL2x string `json:"image_url_2x"`
	ImageURL4x string `json:"image_url_4x"`
}

// BadgeSet groups badge versions under a set id like "subscriber".
type BadgeSet struct {
	SetID    string         `json:"set_id"`
	Versions []BadgeVersion `json:"versions"`
}

type badgesResponse struct {
	Data []BadgeSet `json:"data"`
}

// GetGlobalChatBadges fetches the badge sets shared by all channels.
func (c *Client) GetGlobalChatBadges(ctx context.Context) ([]BadgeSet, error) {
	var resp badgesResponse
	if err := c.get(ctx, "/chat/badges/global", &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetChannelChatBadges fetches badge sets specific to one channel, which
// override global sets of the same id.
func (c *Client) GetChannelChatBadges(ctx context.Context, broadcasterID string) ([]BadgeSet, error) {
	var resp badgesResponse
	if err := c.get(ctx, "/chat/badges?broadcaster_id="+url.QueryEscape(broadcasterID), &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// CheermoteImages holds one theme's image variants, keyed by scale.
type CheermoteImages struct {
	Animated map[string]string `json:"animated"`
	Static   map[string]string `json:"static"`
}

// CheermoteTheme is the dark or light rendering of a tier.
type CheermoteTheme struct {
	Dark  CheermoteImages `json:"dark"`
	Light CheermoteImages `json:"light"`
}

// CheermoteTier is one bits threshold of a cheermote.
type CheermoteTier struct {
	MinBits int            `json:"min_bits"`
	ID      string         `json:"id"`
	Images  CheermoteTheme `json:"images"`
}

// Cheermote is a cheer prefix with its tier list.
type Cheermote struct {
	Prefix string          `json:"prefix"`
	Tiers  []CheermoteTier `json:"tiers"`
}

type cheermotesResponse struct {
	Data []Cheermote `json:"data"`
}

// GetCheermotes fetches the cheermotes usable in one channel, global ones
// included.
func (c *Client) GetCheermotes(ctx context.Context, broadcasterID string) ([]Cheermote, error) {
	var resp cheermotesResponse
	if err := c.get(ctx, "/bits/cheermotes?broadcaster_id="+url.QueryEscape(broadcasterID), &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
