package core_test

import (
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/nftauction/core"
	"github.com/cloudx-io/nftauction/ledger"
)

// 2000.00000000 reference units per payment token
const ethUSD = 200000000000

func TestSetPriceFeed_AdminOnly(t *testing.T) {
	f := newFixture(t)
	feed := ledger.NewStaticFeed(ethUSD, 8, time.Hour, f.clock)

	err := f.registry.SetPriceFeed(f.ctx, seller, payToken, feed, amt("100"))
	check.True(t, errors.Is(err, core.ErrNotAdmin))
	check.False(t, f.registry.HasPriceFeed(payToken))

	err = f.registry.SetPriceFeed(f.ctx, admin, payToken, nil, amt("100"))
	check.True(t, errors.Is(err, core.ErrInvalidParameters))

	err = f.registry.SetPriceFeed(f.ctx, admin, payToken, feed, amt("-1"))
	check.True(t, errors.Is(err, core.ErrInvalidParameters))

	assert.NoError(t, f.registry.SetPriceFeed(f.ctx, admin, payToken, feed, amt("100")))
	check.True(t, f.registry.HasPriceFeed(payToken))

	err = f.registry.RemovePriceFeed(f.ctx, alice, payToken)
	check.True(t, errors.Is(err, core.ErrNotAdmin))

	assert.NoError(t, f.registry.RemovePriceFeed(f.ctx, admin, payToken))
	check.False(t, f.registry.HasPriceFeed(payToken))

	err = f.registry.RemovePriceFeed(f.ctx, admin, payToken)
	check.True(t, errors.Is(err, core.ErrInvalidParameters))

	check.Equal(t, []core.EventType{core.EventPriceFeedSet, core.EventPriceFeedRemoved}, f.emitter.Types())
}

func TestBid_OracleFloor(t *testing.T) {
	f := newFixture(t)
	feed := ledger.NewStaticFeed(ethUSD, 8, time.Hour, f.clock)
	assert.NoError(t, f.registry.SetPriceFeed(f.ctx, admin, payToken, feed, amt("100")))
	id := f.create(t, 7, "0.01", 2*time.Hour)

	// 100 / 2000 = 0.05 tokens
	err := f.registry.Bid(f.ctx, alice, id, amt("0.04"))
	check.True(t, errors.Is(err, core.ErrBidTooLow))
	check.Equal(t, "10000", f.balance(alice))

	assert.NoError(t, f.registry.Bid(f.ctx, alice, id, amt("0.05")))

	// Price halves, so the token floor doubles
	feed.Update(ethUSD / 2)
	err = f.registry.Bid(f.ctx, bob, id, amt("0.09"))
	check.True(t, errors.Is(err, core.ErrBidTooLow))
	assert.NoError(t, f.registry.Bid(f.ctx, bob, id, amt("0.1")))

	record, _ := f.registry.GetAuction(id)
	check.Equal(t, bob, record.HighestBidder)
}

func TestBid_StalePriceFeed(t *testing.T) {
	f := newFixture(t)
	feed := ledger.NewStaticFeed(ethUSD, 8, 30*time.Minute, f.clock)
	assert.NoError(t, f.registry.SetPriceFeed(f.ctx, admin, payToken, feed, amt("100")))
	id := f.create(t, 7, "1", 2*time.Hour)

	f.clock.Advance(31 * time.Minute)
	err := f.registry.Bid(f.ctx, alice, id, amt("5"))
	check.True(t, errors.Is(err, core.ErrStalePriceFeed))
	check.Equal(t, "10000", f.balance(alice))

	feed.Update(ethUSD)
	assert.NoError(t, f.registry.Bid(f.ctx, alice, id, amt("5")))

	feed.ForceStale(true)
	err = f.registry.Bid(f.ctx, bob, id, amt("6"))
	check.True(t, errors.Is(err, core.ErrStalePriceFeed))

	// Removing the feed falls back to the minimum price alone
	assert.NoError(t, f.registry.RemovePriceFeed(f.ctx, admin, payToken))
	assert.NoError(t, f.registry.Bid(f.ctx, bob, id, amt("6")))
}

func TestBid_ZeroFloorChecksOnlyStaleness(t *testing.T) {
	f := newFixture(t)
	feed := ledger.NewStaticFeed(ethUSD, 8, 30*time.Minute, f.clock)
	assert.NoError(t, f.registry.SetPriceFeed(f.ctx, admin, payToken, feed, decimal.Zero))
	id := f.create(t, 7, "1", 2*time.Hour)

	// Any bid above the minimum price passes while the feed is fresh
	assert.NoError(t, f.registry.Bid(f.ctx, alice, id, amt("1")))

	feed.ForceStale(true)
	err := f.registry.Bid(f.ctx, bob, id, amt("2"))
	check.True(t, errors.Is(err, core.ErrStalePriceFeed))
}

func TestBid_FeedForOtherTokenIgnored(t *testing.T) {
	f := newFixture(t)
	feed := ledger.NewStaticFeed(ethUSD, 8, time.Minute, f.clock)
	feed.ForceStale(true)
	assert.NoError(t, f.registry.SetPriceFeed(f.ctx, admin, "other-token", feed, amt("100")))
	id := f.create(t, 7, "1", time.Hour)

	check.NoError(t, f.registry.Bid(f.ctx, alice, id, amt("2")))
}

func TestJournal_ChainsEveryMutation(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, 7, "100", time.Hour)
	assert.NoError(t, f.registry.Bid(f.ctx, alice, id, amt("200")))
	assert.NoError(t, f.registry.Bid(f.ctx, bob, id, amt("250")))
	f.clock.Advance(2 * time.Hour)
	assert.NoError(t, f.registry.Finalize(f.ctx, carol, id))

	events := f.registry.Events(0)
	assert.Equal(t, 4, len(events))
	assert.NoError(t, core.VerifyEventChain(0, core.GenesisHash, events))

	seq, hash := f.registry.Head()
	check.Equal(t, uint64(4), seq)
	check.Equal(t, events[3].Hash, hash)

	tail := f.registry.Events(2)
	assert.Equal(t, 2, len(tail))
	check.Equal(t, uint64(3), tail[0].Seq)
	assert.NoError(t, core.VerifyEventChain(2, events[1].Hash, tail))

	check.Equal(t, 0, len(f.registry.Events(4)))

	bid := events[2]
	check.Equal(t, bob, bid.Bidder)
	check.Equal(t, alice, bid.PreviousBidder)
	check.Equal(t, "200", bid.PreviousAmount.String())

	ended := events[3]
	check.Equal(t, bob, ended.Winner)
	check.Equal(t, "250", ended.Amount.String())
	check.Equal(t, nft, ended.AssetContract)
}

func TestJournal_EmptyHead(t *testing.T) {
	f := newFixture(t)

	seq, hash := f.registry.Head()
	check.Equal(t, uint64(0), seq)
	check.Equal(t, core.GenesisHash, hash)
}
