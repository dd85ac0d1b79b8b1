package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Registry owns every auction record and mediates all fund and asset
// movements through the collaborating ledgers.
//
// All mutating operations are serialized by a single lock and run to
// completion or fail without side effects:
//  1. Validate parameters and state
//  2. Move funds / assets through the collaborators
//  3. Commit the record change and journal the event
type Registry struct {
	mu sync.RWMutex // Protects all state below, including collaborator calls made on its behalf.

	custodian Identity // Account that holds escrow and is authorized to move listed assets.
	admin     Identity // Only identity allowed to configure price feeds.

	assets AssetRegistry
	tokens TokenLedger
	clock  Clock

	auctions   map[uint64]*AuctionRecord
	assetIndex map[AssetKey]uint64      // Active auctions by asset.
	feeds      map[Identity]*feedConfig // Oracle floors by payment token.
	nextID     uint64

	journal []Event
	emitter Emitter
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock Clock) Option {
	return func(r *Registry) { r.clock = clock }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithEmitter forwards committed events to emitter.
func WithEmitter(emitter Emitter) Option {
	return func(r *Registry) { r.emitter = emitter }
}

// NewRegistry creates an empty registry. custodian is the identity under
// which the ledgers hold escrowed funds and perform asset transfers; admin is
// the only identity allowed to configure price feeds.
func NewRegistry(custodian, admin Identity, assets AssetRegistry, tokens TokenLedger, opts ...Option) (*Registry, error) {
	if custodian == "" || admin == "" {
		return nil, fmt.Errorf("%w: custodian and admin are required", ErrInvalidParameters)
	}
	if assets == nil || tokens == nil {
		return nil, fmt.Errorf("%w: asset registry and token ledger are required", ErrInvalidParameters)
	}

	r := &Registry{
		custodian:  custodian,
		admin:      admin,
		assets:     assets,
		tokens:     tokens,
		clock:      SystemClock{},
		auctions:   make(map[uint64]*AuctionRecord),
		assetIndex: make(map[AssetKey]uint64),
		feeds:      make(map[Identity]*feedConfig),
		nextID:     1,
		emitter:    noopEmitter{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "registry")
	return r, nil
}

// Custodian returns the identity holding escrow on behalf of bidders.
func (r *Registry) Custodian() Identity { return r.custodian }

// Admin returns the identity allowed to configure price feeds.
func (r *Registry) Admin() Identity { return r.admin }

// Create registers a new auction for an asset owned by caller. The asset
// stays with the seller until settlement; the seller must have approved the
// custodian to move it beforehand.
func (r *Registry) Create(ctx context.Context, caller Identity, p CreateParams) (uint64, error) {
	if caller == "" || p.AssetContract == "" || p.PaymentToken == "" {
		return 0, fmt.Errorf("%w: caller, asset contract and payment token are required", ErrInvalidParameters)
	}
	if !p.MinPrice.IsPositive() {
		return 0, fmt.Errorf("%w: min price %s must be positive", ErrInvalidParameters, p.MinPrice)
	}
	if p.Duration <= 0 {
		return 0, fmt.Errorf("%w: duration %s must be positive", ErrInvalidParameters, p.Duration)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := AssetKey{Contract: p.AssetContract, TokenID: p.AssetID}
	if existing, ok := r.assetIndex[key]; ok {
		return 0, fmt.Errorf("%w: asset %s/%d is in auction %d", ErrDuplicateListing, key.Contract, key.TokenID, existing)
	}

	owner, err := r.assets.OwnerOf(ctx, p.AssetContract, p.AssetID)
	if err != nil {
		return 0, fmt.Errorf("%w: owner of %s/%d: %v", ErrNotAssetOwner, key.Contract, key.TokenID, err)
	}
	if owner != caller {
		return 0, fmt.Errorf("%w: %s/%d is owned by %s", ErrNotAssetOwner, key.Contract, key.TokenID, owner)
	}
	approved, err := r.assets.IsApproved(ctx, p.AssetContract, p.AssetID, r.custodian)
	if err != nil {
		return 0, fmt.Errorf("%w: approval of %s/%d: %v", ErrAssetNotApproved, key.Contract, key.TokenID, err)
	}
	if !approved {
		return 0, fmt.Errorf("%w: %s/%d", ErrAssetNotApproved, key.Contract, key.TokenID)
	}

	now := r.clock.Now()
	record := &AuctionRecord{
		ID:            r.nextID,
		Seller:        caller,
		AssetContract: p.AssetContract,
		AssetID:       p.AssetID,
		PaymentToken:  p.PaymentToken,
		MinPrice:      p.MinPrice,
		CreatedAt:     now,
		Deadline:      now.Add(p.Duration),
		HighestBidder: NoBidder,
		HighestBid:    decimal.Zero,
		State:         StateActive,
	}
	r.nextID++
	r.auctions[record.ID] = record
	r.assetIndex[key] = record.ID

	r.record(Event{
		Type:          EventAuctionCreated,
		AuctionID:     record.ID,
		Actor:         caller,
		Seller:        caller,
		AssetContract: p.AssetContract,
		AssetID:       p.AssetID,
		PaymentToken:  p.PaymentToken,
		Amount:        p.MinPrice,
		Timestamp:     now,
	})
	r.logger.Info("auction created",
		"auction_id", record.ID, "seller", caller, "asset", fmt.Sprintf("%s/%d", key.Contract, key.TokenID),
		"min_price", p.MinPrice.String(), "deadline", record.Deadline)

	return record.ID, nil
}

// LookupActiveAuction returns the active auction for an asset, if any.
func (r *Registry) LookupActiveAuction(contract Identity, assetID uint64) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.assetIndex[AssetKey{Contract: contract, TokenID: assetID}]
	return id, ok
}

// GetAuction returns a copy of an auction record.
func (r *Registry) GetAuction(id uint64) (AuctionRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.auctions[id]
	if !ok {
		return AuctionRecord{}, false
	}
	return *record, true
}

// Auctions returns copies of all records matching filter, ordered by identifier.
func (r *Registry) Auctions(filter AuctionFilter) []AuctionRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]AuctionRecord, 0, len(r.auctions))
	for _, record := range r.auctions {
		if filter.matches(record) {
			result = append(result, *record)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// EscrowBalance returns the funds held for an auction: the highest bid while
// the auction is active and has a bidder, zero otherwise.
func (r *Registry) EscrowBalance(id uint64) decimal.Decimal {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.auctions[id]
	if !ok || record.State != StateActive || !record.HasBids() {
		return decimal.Zero
	}
	return record.HighestBid
}

// lookupActive returns the live record for id. Callers must hold r.mu.
func (r *Registry) lookupActive(id uint64) (*AuctionRecord, error) {
	record, ok := r.auctions[id]
	if !ok {
		return nil, fmt.Errorf("%w: auction %d", ErrAuctionNotFound, id)
	}
	if record.State != StateActive {
		return nil, fmt.Errorf("%w: auction %d is %s", ErrAuctionNotActive, id, record.State)
	}
	return record, nil
}
