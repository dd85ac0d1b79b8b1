package core_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/nftauction/core"
	"github.com/cloudx-io/nftauction/ledger"
)

const (
	custodian core.Identity = "auction-house"
	admin     core.Identity = "admin"
	seller    core.Identity = "seller"
	alice     core.Identity = "alice"
	bob       core.Identity = "bob"
	carol     core.Identity = "carol"
	nft       core.Identity = "nft-contract"
	payToken  core.Identity = "pay-token"
)

var startTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// recordingEmitter captures emitted events for assertions
type recordingEmitter struct {
	mu     sync.Mutex
	events []core.Event
}

func (e *recordingEmitter) Emit(event core.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *recordingEmitter) Types() []core.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	types := make([]core.EventType, 0, len(e.events))
	for _, ev := range e.events {
		types = append(types, ev.Type)
	}
	return types
}

type fixture struct {
	ctx      context.Context
	clock    *core.ManualClock
	assets   *ledger.Assets
	tokens   *ledger.Tokens
	emitter  *recordingEmitter
	registry *core.Registry
}

// newFixture builds a registry over in-memory ledgers. Asset 7 belongs to the
// seller and is approved for the custodian; alice, bob and carol each hold
// 10000 payment tokens fully approved for the custodian.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ctx:     context.Background(),
		clock:   core.NewManualClock(startTime),
		assets:  ledger.NewAssets(),
		tokens:  ledger.NewTokens(),
		emitter: &recordingEmitter{},
	}

	assert.NoError(t, f.assets.Mint(nft, 7, seller))
	assert.NoError(t, f.assets.Approve(seller, custodian, nft, 7))

	for _, bidder := range []core.Identity{alice, bob, carol} {
		assert.NoError(t, f.tokens.Mint(payToken, bidder, amt("10000")))
		assert.NoError(t, f.tokens.Approve(payToken, bidder, custodian, amt("10000")))
	}

	registry, err := core.NewRegistry(custodian, admin, f.assets.As(custodian), f.tokens.As(custodian),
		core.WithClock(f.clock),
		core.WithEmitter(f.emitter),
		core.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	assert.NoError(t, err)
	f.registry = registry
	return f
}

func (f *fixture) create(t *testing.T, assetID uint64, minPrice string, duration time.Duration) uint64 {
	t.Helper()
	id, err := f.registry.Create(f.ctx, seller, core.CreateParams{
		AssetContract: nft,
		AssetID:       assetID,
		PaymentToken:  payToken,
		MinPrice:      amt(minPrice),
		Duration:      duration,
	})
	assert.NoError(t, err)
	return id
}

func (f *fixture) balance(who core.Identity) string {
	return f.tokens.BalanceOf(payToken, who).String()
}

func (f *fixture) owner(t *testing.T, assetID uint64) core.Identity {
	t.Helper()
	owner, err := f.assets.OwnerOf(nft, assetID)
	assert.NoError(t, err)
	return owner
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
