package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/nftauction/core"
)

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAssets_ApprovalLifecycle(t *testing.T) {
	a := NewAssets()
	assert.NoError(t, a.Mint("nft", 1, "alice"))

	err := a.Mint("nft", 1, "bob")
	check.True(t, errors.Is(err, ErrAssetExists))

	// Unapproved spender
	err = a.TransferFrom("house", "alice", "bob", "nft", 1)
	check.True(t, errors.Is(err, ErrNotAuthorized))

	assert.NoError(t, a.Approve("alice", "house", "nft", 1))
	view := a.As("house")
	ok, err := view.IsApproved(context.Background(), "nft", 1, "house")
	assert.NoError(t, err)
	check.True(t, ok)

	assert.NoError(t, view.TransferFrom(context.Background(), "nft", "alice", "bob", 1))
	owner, err := view.OwnerOf(context.Background(), "nft", 1)
	assert.NoError(t, err)
	check.Equal(t, core.Identity("bob"), owner)

	// The single-asset approval does not survive a transfer
	ok, err = view.IsApproved(context.Background(), "nft", 1, "house")
	assert.NoError(t, err)
	check.False(t, ok)
}

func TestAssets_OperatorApproval(t *testing.T) {
	a := NewAssets()
	assert.NoError(t, a.Mint("nft", 1, "alice"))
	assert.NoError(t, a.Mint("nft", 2, "alice"))
	a.SetApprovalForAll("alice", "house", true)

	assert.NoError(t, a.TransferFrom("house", "alice", "bob", "nft", 1))
	assert.NoError(t, a.TransferFrom("house", "alice", "bob", "nft", 2))

	// Operator rights are per owner
	err := a.TransferFrom("house", "bob", "carol", "nft", 1)
	check.True(t, errors.Is(err, ErrNotAuthorized))

	a.SetApprovalForAll("bob", "house", true)
	a.SetApprovalForAll("bob", "house", false)
	err = a.TransferFrom("house", "bob", "carol", "nft", 1)
	check.True(t, errors.Is(err, ErrNotAuthorized))
}

func TestAssets_TransferErrors(t *testing.T) {
	a := NewAssets()
	assert.NoError(t, a.Mint("nft", 1, "alice"))

	err := a.TransferFrom("alice", "bob", "carol", "nft", 1)
	check.True(t, errors.Is(err, ErrWrongOwner))

	err = a.TransferFrom("alice", "alice", "carol", "nft", 9)
	check.True(t, errors.Is(err, ErrUnknownAsset))

	_, err = a.OwnerOf("nft", 9)
	check.True(t, errors.Is(err, ErrUnknownAsset))

	err = a.Approve("mallory", "mallory", "nft", 1)
	check.True(t, errors.Is(err, ErrNotAuthorized))
}

func TestTokens_TransferFromConsumesAllowance(t *testing.T) {
	tk := NewTokens()
	assert.NoError(t, tk.Mint("usd", "alice", amt("100")))
	assert.NoError(t, tk.Approve("usd", "alice", "house", amt("60")))

	view := tk.As("house")
	assert.NoError(t, view.TransferFrom(context.Background(), "usd", "alice", "house", amt("40")))
	check.Equal(t, "20", tk.Allowance("usd", "alice", "house").String())
	check.Equal(t, "60", tk.BalanceOf("usd", "alice").String())
	check.Equal(t, "40", tk.BalanceOf("usd", "house").String())

	err := view.TransferFrom(context.Background(), "usd", "alice", "house", amt("21"))
	check.True(t, errors.Is(err, ErrInsufficientAllowance))

	assert.NoError(t, view.Transfer(context.Background(), "usd", "bob", amt("40")))
	check.Equal(t, "40", tk.BalanceOf("usd", "bob").String())
	check.True(t, tk.BalanceOf("usd", "house").IsZero())
}

func TestTokens_Rejections(t *testing.T) {
	tk := NewTokens()
	assert.NoError(t, tk.Mint("usd", "alice", amt("10")))

	err := tk.Transfer("usd", "alice", "bob", amt("11"))
	check.True(t, errors.Is(err, ErrInsufficientBalance))

	err = tk.Transfer("usd", "alice", "bob", amt("-1"))
	check.True(t, errors.Is(err, ErrInvalidAmount))

	check.True(t, errors.Is(tk.Mint("usd", "alice", amt("-1")), ErrInvalidAmount))

	tk.SetFrozen("usd", "bob", true)
	err = tk.Transfer("usd", "alice", "bob", amt("1"))
	check.True(t, errors.Is(err, ErrFrozen))

	// Freezing is per token
	assert.NoError(t, tk.Mint("eur", "alice", amt("10")))
	check.NoError(t, tk.Transfer("eur", "alice", "bob", amt("1")))

	tk.SetFrozen("usd", "bob", false)
	check.NoError(t, tk.Transfer("usd", "alice", "bob", amt("1")))

	// Failed transfers leave balances untouched
	check.Equal(t, "9", tk.BalanceOf("usd", "alice").String())
	check.Equal(t, "1", tk.BalanceOf("usd", "bob").String())
}

func TestStaticFeed_Staleness(t *testing.T) {
	clock := core.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	feed := NewStaticFeed(200000000000, 8, time.Minute, clock)

	price, err := feed.LatestPrice(context.Background())
	assert.NoError(t, err)
	check.False(t, price.Stale)
	check.Equal(t, int32(8), price.Decimals)
	check.Equal(t, "200000000000", price.Value.String())

	clock.Advance(time.Minute + time.Second)
	price, _ = feed.LatestPrice(context.Background())
	check.True(t, price.Stale)

	feed.Update(190000000000)
	price, _ = feed.LatestPrice(context.Background())
	check.False(t, price.Stale)
	check.Equal(t, "190000000000", price.Value.String())

	feed.ForceStale(true)
	price, _ = feed.LatestPrice(context.Background())
	check.True(t, price.Stale)
}

func TestStaticFeed_NoMaxAge(t *testing.T) {
	clock := core.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	feed := NewStaticFeed(1, 0, 0, clock)

	clock.Advance(365 * 24 * time.Hour)
	price, _ := feed.LatestPrice(context.Background())
	check.False(t, price.Stale)
}

func TestSeedDemo(t *testing.T) {
	assets := NewAssets()
	tokens := NewTokens()
	assert.NoError(t, SeedDemo(assets, tokens, "house"))

	owner, err := assets.OwnerOf(DemoAssetContract, DemoAssetCount)
	assert.NoError(t, err)
	check.Equal(t, DemoSeller, owner)
	check.NoError(t, assets.TransferFrom("house", DemoSeller, "alice", DemoAssetContract, 1))

	for _, bidder := range DemoBidders {
		check.True(t, tokens.BalanceOf(DemoPaymentToken, bidder).Equal(DemoBalance))
		check.True(t, tokens.Allowance(DemoPaymentToken, bidder, "house").Equal(DemoBalance))
	}

	// Seeding twice collides on the minted assets
	check.Error(t, SeedDemo(assets, tokens, "house"))
}
