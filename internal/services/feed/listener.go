// Package feed wires backing store change notifications to the cached
// wallet view.
package feed

import (
	"context"
	"sync"

	"github.com/blurttok/wallet_layer/internal/errors"
	"github.com/blurttok/wallet_layer/internal/metrics"
	"github.com/blurttok/wallet_layer/internal/services/balance"
	"github.com/blurttok/wallet_layer/internal/storage"
	"github.com/blurttok/wallet_layer/pkg/logger"
)

// Listener subscribes one user to balance and transaction change events and
// turns each event into a cache refresh trigger. Bursts collapse into the
// cache's single-flight refresh.
type Listener struct {
	feed  storage.ChangeFeed
	cache *balance.Service
	log   *logger.Logger

	mu   sync.Mutex
	subs []storage.Subscription
}

func NewListener(feed storage.ChangeFeed, cache *balance.Service, log *logger.Logger) *Listener {
	if log == nil {
		log = logger.NewDefault("feed")
	}
	return &Listener{feed: feed, cache: cache, log: log}
}

// Subscribe opens the balance and transaction channels for the cache's
// user. Calling it twice without an Unsubscribe stacks subscriptions, so
// callers own the pairing.
func (l *Listener) Subscribe(ctx context.Context) error {
	userID := l.cache.UserID()

	// Events only say that something changed; the refresh re-reads the
	// authoritative state.
	notify := func(ev storage.ChangeEvent) {
		l.log.Debug("change event", "table", ev.Table, "event", ev.Event)
		l.cache.Trigger(context.WithoutCancel(ctx))
	}

	balanceSub, err := l.feed.SubscribeBalanceChanges(ctx, userID, notify)
	if err != nil {
		return errors.DataUnavailable("balance feed subscription failed", err)
	}
	txSub, err := l.feed.SubscribeTransactionInserts(ctx, userID, notify)
	if err != nil {
		balanceSub.Close()
		return errors.DataUnavailable("transaction feed subscription failed", err)
	}

	l.mu.Lock()
	l.subs = append(l.subs, balanceSub, txSub)
	l.mu.Unlock()

	metrics.FeedSubscribed()
	l.log.Info("change feed subscribed", "user_id", userID)
	return nil
}

// Unsubscribe closes every open channel. Safe to call with nothing open.
func (l *Listener) Unsubscribe() error {
	l.mu.Lock()
	subs := l.subs
	l.subs = nil
	l.mu.Unlock()

	if len(subs) == 0 {
		return nil
	}

	var first error
	for _, sub := range subs {
		if err := sub.Close(); err != nil && first == nil {
			first = err
		}
	}
	metrics.FeedUnsubscribed()
	return first
}
