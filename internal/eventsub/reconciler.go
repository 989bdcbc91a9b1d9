package eventsub

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/AndrewBeshay/moblin/internal/helix"
	"github.com/AndrewBeshay/moblin/internal/metrics"
)

// subscriptionAPI is the slice of the Helix API the session needs.
type subscriptionAPI interface {
	GetEventSubSubscriptions(ctx context.Context, status string) ([]helix.Subscription, error)
	CreateEventSubSubscription(ctx context.Context, subType, version string, condition helix.Condition, sessionID string) (string, error)
}

const maxConcurrentCreates = 4

// reconcile brings the server-side subscription set up to the registry's
// desired set for the given session. Missing types are created
// concurrently. A failure to list subscriptions fails the whole pass; a
// failure to create one type only warns, since event types are independent
// of each other.
func reconcile(ctx context.Context, api subscriptionAPI, id Identity, sessionID string, warn func(string)) error {
	existing, err := api.GetEventSubSubscriptions(ctx, "enabled")
	if err != nil {
		return fmt.Errorf("listing subscriptions: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, sub := range existing {
		have[sub.Type] = true
	}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentCreates)
	for subType, entry := range eventTypes {
		if have[subType] {
			continue
		}
		group.Go(func() error {
			_, err := api.CreateEventSubSubscription(ctx, subType, entry.version, entry.condition(id), sessionID)
			if err != nil {
				metrics.EventSubSubscriptionsCreated.WithLabelValues(subType, "error").Inc()
				slog.Warn("Failed to create subscription", "type", subType, "error", err)
				warn(fmt.Sprintf("Could not subscribe to %s events", subType))
				return nil
			}
			metrics.EventSubSubscriptionsCreated.WithLabelValues(subType, "created").Inc()
			return nil
		})
	}
	return group.Wait()
}

// resubscribe re-creates a single revoked subscription type.
func resubscribe(ctx context.Context, api subscriptionAPI, id Identity, sessionID, subType string) error {
	entry, ok := eventTypes[subType]
	if !ok {
		return fmt.Errorf("unknown subscription type %q", subType)
	}
	_, err := api.CreateEventSubSubscription(ctx, subType, entry.version, entry.condition(id), sessionID)
	return err
}
