package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"escrow-market/internal/market"
)

// EventPublisher fans committed market events out on ChannelEvents.
type EventPublisher struct {
	log *logrus.Entry
}

func NewEventPublisher(logger *logrus.Logger) *EventPublisher {
	return &EventPublisher{log: logger.WithField("component", "redis-events")}
}

// Publish implements market.EventSink. Delivery is best effort; the
// operation has already committed.
func (p *EventPublisher) Publish(ctx context.Context, ev market.Event) {
	if err := Publish(ctx, ChannelEvents, ev); err != nil {
		p.log.WithField("type", ev.Type).Warnf("Failed to publish event: %v", err)
	}
}

// DecodeEvent parses an event published on ChannelEvents.
func DecodeEvent(payload string) (market.Event, error) {
	var ev market.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return market.Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if ev.Type == "" {
		return market.Event{}, fmt.Errorf("event without type")
	}
	return ev, nil
}

// RelayEvents forwards the events every instance publishes to sink until ctx
// is done. It lets each instance's websocket clients see trades executed on
// any instance.
func RelayEvents(ctx context.Context, sink market.EventSink, logger *logrus.Logger) error {
	pubsub := Subscribe(ctx, ChannelEvents)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", ChannelEvents, err)
	}
	log := logger.WithField("component", "redis-relay")
	log.Infof("Relaying events from %s", ChannelEvents)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, err := DecodeEvent(msg.Payload)
			if err != nil {
				log.Warn(err)
				continue
			}
			sink.Publish(ctx, ev)
		}
	}
}

// CollectionCache caches resolved asset collections.
type CollectionCache struct{}

func (CollectionCache) GetCollection(ctx context.Context, asset solana.PublicKey) (solana.PublicKey, error) {
	var s string
	if err := Get(ctx, fmt.Sprintf(KeyCollection, asset), &s); err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBase58(s)
}

func (CollectionCache) SetCollection(ctx context.Context, asset, collection solana.PublicKey) error {
	return Set(ctx, fmt.Sprintf(KeyCollection, asset), collection.String(), ExpireCollection)
}

// NonceStore keeps one pending login challenge per wallet.
type NonceStore struct{}

func (NonceStore) Put(ctx context.Context, wallet solana.PublicKey, nonce string, ttl time.Duration) error {
	return Set(ctx, fmt.Sprintf(KeyLoginNonce, wallet), nonce, ttl)
}

// Take returns the pending nonce and deletes it so it cannot be replayed.
func (NonceStore) Take(ctx context.Context, wallet solana.PublicKey) (string, error) {
	var nonce string
	if err := Take(ctx, fmt.Sprintf(KeyLoginNonce, wallet), &nonce); err != nil {
		return "", err
	}
	return nonce, nil
}

// RateLimiter counts requests per key in fixed windows.
type RateLimiter struct {
	Limit  int
	Window time.Duration
}

// Allow records one request and reports whether it is within the limit,
// along with the requests left and the time until the window resets.
func (r RateLimiter) Allow(ctx context.Context, key string) (bool, int, time.Duration, error) {
	k := fmt.Sprintf(KeyRateLimit, key)
	n, err := Increment(ctx, k, r.Window)
	if err != nil {
		return false, 0, 0, err
	}
	ttl, err := TTL(ctx, k)
	if err != nil || ttl < 0 {
		ttl = r.Window
	}
	remaining := r.Limit - int(n)
	if remaining < 0 {
		remaining = 0
	}
	return int(n) <= r.Limit, remaining, ttl, nil
}
