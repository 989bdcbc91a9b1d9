package chat

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/AndrewBeshay/moblin/internal/helix"
	"github.com/AndrewBeshay/moblin/internal/metrics"
	"github.com/AndrewBeshay/moblin/internal/platform/retry"
)

const assetRetryDelay = 30 * time.Second

// assetClient is the slice of the Helix API the asset store needs.
type assetClient interface {
	GetGlobalChatBadges(ctx context.Context) ([]helix.BadgeSet, error)
	GetChannelChatBadges(ctx context.Context, broadcasterID string) ([]helix.BadgeSet, error)
	GetCheermotes(ctx context.Context, broadcasterID string) ([]helix.Cheermote, error)
}

type cheerTier struct {
	url     string
	minBits int
}

// AssetStore caches the channel's badge and cheermote images. Start kicks
// off population in the background; lookups are safe immediately and simply
// miss until the fetch lands. A failed fetch is retried once per
// assetRetryDelay until it succeeds or Stop is called.
type AssetStore struct {
	client assetClient
	clock  clockwork.Clock

	mu         sync.RWMutex
	generation int
	badges     map[string]string
	cheermotes map[string][]cheerTier
	cancel     context.CancelFunc
}

func NewAssetStore(client assetClient, clock clockwork.Clock) *AssetStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AssetStore{
		client:     client,
		clock:      clock,
		badges:     map[string]string{},
		cheermotes: map[string][]cheerTier{},
	}
}

// Start begins fetching assets for the given channel. Calling Start again
// abandons any fetch in flight and starts over.
func (s *AssetStore) Start(channelID string) {
	s.mu.Lock()
	s.stopLocked()
	s.generation++
	generation := s.generation
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go s.populate(ctx, generation, channelID)
}

// Stop cancels any fetch or pending retry. Cached entries stay queryable.
func (s *AssetStore) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.generation++
}

func (s *AssetStore) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *AssetStore) populate(ctx context.Context, generation int, channelID string) {
	policy := retry.Policy{
		MaxAttempts:      math.MaxInt,
		InitialBackoff:   assetRetryDelay,
		RateLimitBackoff: assetRetryDelay,
		Clock:            s.clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Chat asset fetch failed, retrying later",
				"channel_id", channelID, "retry_in", backoff, "error", err)
		},
	}
	// Every failure backs off by the same fixed delay.
	transient := func(error) retry.Action { return retry.After }
	_ = retry.DoVoid(ctx, policy, transient, func() error {
		return s.fetchOnce(ctx, generation, channelID)
	})
}

func (s *AssetStore) fetchOnce(ctx context.Context, generation int, channelID string) error {
	s.mu.RLock()
	stale := generation != s.generation
	s.mu.RUnlock()
	if stale {
		return nil
	}

	badges := map[string]string{}
	cheermotes := map[string][]cheerTier{}

	if err := s.fetchBadges(ctx, channelID, badges); err != nil {
		return err
	}
	if err := s.fetchCheermotes(ctx, channelID, cheermotes); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return nil
	}
	s.badges = badges
	s.cheermotes = cheermotes
	slog.Info("Chat assets loaded", "channel_id", channelID,
		"badges", len(badges), "cheermotes", len(cheermotes))
	return nil
}

func (s *AssetStore) fetchBadges(ctx context.Context, channelID string, into map[string]string) error {
	global, err := s.client.GetGlobalChatBadges(ctx)
	if err != nil {
		metrics.AssetFetchFailures.WithLabelValues("global_badges").Inc()
		return err
	}
	channel, err := s.client.GetChannelChatBadges(ctx, channelID)
	if err != nil {
		metrics.AssetFetchFailures.WithLabelValues("channel_badges").Inc()
		return err
	}
	// Channel sets override global sets of the same id.
	for _, set := range global {
		addBadgeSet(into, set)
	}
	for _, set := range channel {
		addBadgeSet(into, set)
	}
	return nil
}

func addBadgeSet(into map[string]string, set helix.BadgeSet) {
	for _, version := range set.Versions {
		into[set.SetID+"/"+version.ID] = version.ImageURL2x
	}
}

func (s *AssetStore) fetchCheermotes(ctx context.Context, channelID string, into map[string][]cheerTier) error {
	cheermotes, err := s.client.GetCheermotes(ctx, channelID)
	if err != nil {
		metrics.AssetFetchFailures.WithLabelValues("cheermotes").Inc()
		return err
	}
	for _, cheermote := range cheermotes {
		prefix := strings.ToLower(cheermote.Prefix)
		tiers := make([]cheerTier, 0, len(cheermote.Tiers))
		for _, tier := range cheermote.Tiers {
			tiers = append(tiers, cheerTier{url: tier.Images.Dark.Static["2"], minBits: tier.MinBits})
		}
		// Highest threshold first, so the first tier at or below the
		// cheered amount wins.
		sort.Slice(tiers, func(i, j int) bool { return tiers[i].minBits > tiers[j].minBits })
		into[prefix] = tiers
	}
	return nil
}

// BadgeURL resolves an IRC badge id like "subscriber/12" to an image URL.
func (s *AssetStore) BadgeURL(badgeID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	url, ok := s.badges[badgeID]
	return url, ok
}

// LookupCheer matches a lowercased word like "cheer100" against cached
// cheermote prefixes and returns the image for the matching tier.
func (s *AssetStore) LookupCheer(word string) (string, int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for prefix, tiers := range s.cheermotes {
		rest, found := strings.CutPrefix(word, prefix)
		if !found || rest == "" {
			continue
		}
		bits, err := strconv.Atoi(rest)
		if err != nil || bits <= 0 {
			continue
		}
		for _, tier := range tiers {
			if bits >= tier.minBits {
				return tier.url, bits, true
			}
		}
	}
	return "", 0, false
}
