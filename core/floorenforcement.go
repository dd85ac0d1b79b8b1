package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

const tokenPrecision int32 = 18 // fractional digits kept for token-denominated floors

// feedConfig binds a payment token to its price feed and the reference-currency
// floor every bid in that token must clear.
type feedConfig struct {
	feed           PriceFeed
	referenceFloor decimal.Decimal
}

// OracleTokenFloor converts a reference-currency floor into payment-token units
// using an oracle reading: floor * 10^decimals / value, rounded up at tokenPrecision.
func OracleTokenFloor(referenceFloor decimal.Decimal, price PriceData) (decimal.Decimal, error) {
	if !price.Value.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive oracle price %s", price.Value)
	}
	if price.Decimals < 0 {
		return decimal.Zero, fmt.Errorf("negative oracle decimals %d", price.Decimals)
	}

	scaled := referenceFloor.Shift(price.Decimals)
	floor := scaled.DivRound(price.Value, tokenPrecision+1)

	// Round away from the bidder so a bid at the floor is always worth at least referenceFloor.
	return floor.RoundUp(tokenPrecision), nil
}

// BidMeetsFloor returns true if the bid amount meets or exceeds the floor.
// Uses decimal arithmetic with tokenPrecision to avoid rounding drift.
func BidMeetsFloor(amount, floor decimal.Decimal) bool {
	return amount.Round(tokenPrecision).GreaterThanOrEqual(floor.Round(tokenPrecision))
}

// checkOracleFloor consults the feed configured for the payment token, if any.
// It is evaluated on every bid and never cached.
func checkOracleFloor(ctx context.Context, cfg *feedConfig, amount decimal.Decimal) error {
	if cfg == nil {
		return nil
	}

	price, err := cfg.feed.LatestPrice(ctx)
	if err != nil {
		return fmt.Errorf("%w: read price: %v", ErrStalePriceFeed, err)
	}
	if price.Stale {
		return fmt.Errorf("%w: last update %s", ErrStalePriceFeed, price.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
	}

	if !cfg.referenceFloor.IsPositive() {
		if !price.Value.IsPositive() {
			return fmt.Errorf("%w: non-positive price %s", ErrStalePriceFeed, price.Value)
		}
		return nil
	}

	floor, err := OracleTokenFloor(cfg.referenceFloor, price)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStalePriceFeed, err)
	}
	if !BidMeetsFloor(amount, floor) {
		return fmt.Errorf("%w: bid %s below oracle floor %s", ErrBidTooLow, amount, floor)
	}
	return nil
}
