package interfaces

import (
	"context"

	domaintypes "privcal/internal/domain/types"
)

// RelayPublisher sends an event to a set of relays.
type RelayPublisher interface {
	Publish(ctx context.Context, event domaintypes.Event, relayURLs []string) domaintypes.PublishResult
}

// Subscription is a cancellable stream of relay messages.
type Subscription interface {
	Messages() <-chan domaintypes.RelayMessage
	Close()
}

// RelaySubscriber opens live subscriptions.
type RelaySubscriber interface {
	Subscribe(
		ctx context.Context,
		filters []domaintypes.Filter,
		relayURLs []string,
	) (Subscription, error)
}

// RelayQuerier answers one-shot queries for the newest matching event. A
// false found with a nil error means at least one relay answered and none
// had a match; an unreachable relay set is an error.
type RelayQuerier interface {
	FetchLatest(
		ctx context.Context,
		filter domaintypes.Filter,
		relayURLs []string,
	) (domaintypes.Event, bool, error)
}

// AuthInvalidator drops a relay's authentication session.
type AuthInvalidator interface {
	InvalidateAuth(relayURL string)
}

// Transport is everything the services need from the relay pool.
type Transport interface {
	RelayPublisher
	RelaySubscriber
	RelayQuerier
	AuthInvalidator
}
