package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// SetPriceFeed binds a payment token to a price feed. Every later bid in that
// token must clear referenceFloor (in the feed's reference currency) at the
// feed's current rate, and is rejected while the feed reports stale data.
// A zero referenceFloor keeps only the staleness check.
func (r *Registry) SetPriceFeed(ctx context.Context, caller, token Identity, feed PriceFeed, referenceFloor decimal.Decimal) error {
	if caller != r.admin {
		return fmt.Errorf("%w: %s", ErrNotAdmin, caller)
	}
	if token == "" || feed == nil {
		return fmt.Errorf("%w: token and feed are required", ErrInvalidParameters)
	}
	if referenceFloor.IsNegative() {
		return fmt.Errorf("%w: reference floor %s must not be negative", ErrInvalidParameters, referenceFloor)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.feeds[token] = &feedConfig{feed: feed, referenceFloor: referenceFloor}
	r.record(Event{
		Type:         EventPriceFeedSet,
		Actor:        caller,
		PaymentToken: token,
		Amount:       referenceFloor,
		Timestamp:    r.clock.Now(),
	})
	r.logger.Info("price feed set", "token", token, "reference_floor", referenceFloor.String())
	return nil
}

// RemovePriceFeed unbinds a payment token; bids in it are then governed by
// the auction's minimum price alone.
func (r *Registry) RemovePriceFeed(ctx context.Context, caller, token Identity) error {
	if caller != r.admin {
		return fmt.Errorf("%w: %s", ErrNotAdmin, caller)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.feeds[token]; !ok {
		return fmt.Errorf("%w: no price feed for %s", ErrInvalidParameters, token)
	}
	delete(r.feeds, token)
	r.record(Event{
		Type:         EventPriceFeedRemoved,
		Actor:        caller,
		PaymentToken: token,
		Timestamp:    r.clock.Now(),
	})
	r.logger.Info("price feed removed", "token", token)
	return nil
}

// HasPriceFeed reports whether bids in token are checked against an oracle.
func (r *Registry) HasPriceFeed(token Identity) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.feeds[token]
	return ok
}
