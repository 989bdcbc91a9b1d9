package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AndrewBeshay/moblin/internal/helix"
)

type fakeAssetClient struct {
	mu         sync.Mutex
	failures   int
	calls      int
	badges     []helix.BadgeSet
	channel    []helix.BadgeSet
	cheermotes []helix.Cheermote
}

func (c *fakeAssetClient) GetGlobalChatBadges(context.Context) ([]helix.BadgeSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.failures > 0 {
		c.failures--
		return nil, errors.New("boom")
	}
	return c.badges, nil
}

func (c *fakeAssetClient) GetChannelChatBadges(context.Context, string) ([]helix.BadgeSet, error) {
	return c.channel, nil
}

func (c *fakeAssetClient) GetCheermotes(context.Context, string) ([]helix.Cheermote, error) {
	return c.cheermotes, nil
}

func (c *fakeAssetClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func testBadges() []helix.BadgeSet {
	return []helix.BadgeSet{
		{SetID: "subscriber", Versions: []helix.BadgeVersion{
			{ID: "0", ImageURL2x: "https://cdn/sub0"},
			{ID: "12", ImageURL2x: "https://cdn/sub12"},
		}},
	}
}

func testCheermotes() []helix.Cheermote {
	return []helix.Cheermote{
		{Prefix: "Cheer", Tiers: []helix.CheermoteTier{
			{MinBits: 1, Images: helix.CheermoteTheme{Dark: helix.CheermoteImages{Static: map[string]string{"2": "https://cdn/cheer1"}}}},
			{MinBits: 100, Images: helix.CheermoteTheme{Dark: helix.CheermoteImages{Static: map[string]string{"2": "https://cdn/cheer100"}}}},
		}},
	}
}

func TestAssetStorePopulates(t *testing.T) {
	client := &fakeAssetClient{badges: testBadges(), cheermotes: testCheermotes()}
	store := NewAssetStore(client, clockwork.NewFakeClock())
	store.Start("123")
	defer store.Stop()

	assert.Eventually(t, func() bool {
		_, ok := store.BadgeURL("subscriber/12")
		return ok
	}, time.Second, 5*time.Millisecond)

	url, ok := store.BadgeURL("subscriber/12")
	require.True(t, ok)
	assert.Equal(t, "https://cdn/sub12", url)
}

func TestAssetStoreChannelOverridesGlobal(t *testing.T) {
	client := &fakeAssetClient{
		badges: testBadges(),
		channel: []helix.BadgeSet{
			{SetID: "subscriber", Versions: []helix.BadgeVersion{{ID: "12", ImageURL2x: "https://cdn/custom12"}}},
		},
		cheermotes: testCheermotes(),
	}
	store := NewAssetStore(client, clockwork.NewFakeClock())
	store.Start("123")
	defer store.Stop()

	assert.Eventually(t, func() bool {
		url, ok := store.BadgeURL("subscriber/12")
		return ok && url == "https://cdn/custom12"
	}, time.Second, 5*time.Millisecond)
}

func TestAssetStoreMissBeforePopulation(t *testing.T) {
	store := NewAssetStore(&fakeAssetClient{}, clockwork.NewFakeClock())

	_, ok := store.BadgeURL("subscriber/12")
	assert.False(t, ok)
	_, _, ok = store.LookupCheer("cheer100")
	assert.False(t, ok)
}

func TestAssetStoreRetriesAfterFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	client := &fakeAssetClient{failures: 1, badges: testBadges(), cheermotes: testCheermotes()}
	store := NewAssetStore(client, clock)
	store.Start("123")
	defer store.Stop()

	// First attempt fails and arms the retry timer.
	assert.Eventually(t, func() bool {
		return client.callCount() == 1
	}, time.Second, 5*time.Millisecond)
	clock.BlockUntil(1)
	clock.Advance(assetRetryDelay)

	assert.Eventually(t, func() bool {
		_, ok := store.BadgeURL("subscriber/0")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestAssetStoreStopCancelsRetry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	client := &fakeAssetClient{failures: 10}
	store := NewAssetStore(client, clock)
	store.Start("123")

	assert.Eventually(t, func() bool {
		return client.callCount() == 1
	}, time.Second, 5*time.Millisecond)
	store.Stop()
	clock.Advance(assetRetryDelay)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, client.callCount())
}

func TestLookupCheerPicksHighestMatchingTier(t *testing.T) {
	client := &fakeAssetClient{badges: testBadges(), cheermotes: testCheermotes()}
	store := NewAssetStore(client, clockwork.NewFakeClock())
	store.Start("123")
	defer store.Stop()

	assert.Eventually(t, func() bool {
		_, _, ok := store.LookupCheer("cheer1")
		return ok
	}, time.Second, 5*time.Millisecond)

	url, bits, ok := store.LookupCheer("cheer250")
	require.True(t, ok)
	assert.Equal(t, 250, bits)
	assert.Equal(t, "https://cdn/cheer100", url)

	url, bits, ok = store.LookupCheer("cheer5")
	require.True(t, ok)
	assert.Equal(t, 5, bits)
	assert.Equal(t, "https://cdn/cheer1", url)

	_, _, ok = store.LookupCheer("cheer")
	assert.False(t, ok)
	_, _, ok = store.LookupCheer("cheerabc")
	assert.False(t, ok)
}
