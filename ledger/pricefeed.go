package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/nftauction/core"
)

// StaticFeed is a settable price feed. A reading is reported stale once it
// is older than MaxAge according to the feed's clock; a zero MaxAge never goes stale.
type StaticFeed struct {
	mu        sync.RWMutex
	value     decimal.Decimal
	decimals  int32
	updatedAt time.Time
	maxAge    time.Duration
	forced    bool
	clock     core.Clock
}

// NewStaticFeed creates a feed reporting value with the given decimals,
// updated now.
func NewStaticFeed(value int64, decimals int32, maxAge time.Duration, clock core.Clock) *StaticFeed {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &StaticFeed{
		value:     decimal.NewFromInt(value),
		decimals:  decimals,
		updatedAt: clock.Now(),
		maxAge:    maxAge,
		clock:     clock,
	}
}

// Update records a new reading.
func (f *StaticFeed) Update(value int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.value = decimal.NewFromInt(value)
	f.updatedAt = f.clock.Now()
}

// ForceStale makes every reading report stale until cleared.
func (f *StaticFeed) ForceStale(stale bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.forced = stale
}

var _ core.PriceFeed = (*StaticFeed)(nil)

// LatestPrice returns the current reading.
func (f *StaticFeed) LatestPrice(_ context.Context) (core.PriceData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	stale := f.forced
	if f.maxAge > 0 && f.clock.Now().Sub(f.updatedAt) > f.maxAge {
		stale = true
	}
	return core.PriceData{
		Value:     f.value,
		Decimals:  f.decimals,
		Stale:     stale,
		UpdatedAt: f.updatedAt,
	}, nil
}
