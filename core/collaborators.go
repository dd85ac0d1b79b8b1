package core

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AssetRegistry is the non-fungible ownership registry. Implementations act
// on behalf of the registry's custodian identity.
type AssetRegistry interface {
	// OwnerOf returns the current owner of the asset.
	OwnerOf(ctx context.Context, contract Identity, id uint64) (Identity, error)

	// IsApproved reports whether operator may move the asset on its owner's behalf.
	IsApproved(ctx context.Context, contract Identity, id uint64, operator Identity) (bool, error)

	// TransferFrom moves the asset. It fails unless from has authorized the custodian.
	TransferFrom(ctx context.Context, contract Identity, from, to Identity, id uint64) error
}

// TokenLedger is the fungible payment-token ledger. Implementations act on
// behalf of the registry's custodian identity.
type TokenLedger interface {
	// TransferFrom pulls amount from an account that granted the custodian an allowance.
	TransferFrom(ctx context.Context, token Identity, from, to Identity, amount decimal.Decimal) error

	// Transfer pushes amount out of the custodian's own balance.
	Transfer(ctx context.Context, token Identity, to Identity, amount decimal.Decimal) error
}

// PriceData is a single oracle reading. Value carries Decimals implied
// fractional digits, so the price is Value / 10^Decimals reference units per token.
type PriceData struct {
	Value     decimal.Decimal
	Decimals  int32
	Stale     bool
	UpdatedAt time.Time
}

// PriceFeed reports the current price of one payment token.
type PriceFeed interface {
	LatestPrice(ctx context.Context) (PriceData, error)
}

// Emitter receives committed events. Emit is called while the registry holds
// its lock, so implementations must not block or call back into the registry.
type Emitter interface {
	Emit(event Event)
}

type noopEmitter struct{}

func (noopEmitter) Emit(Event) {}
