// Package ledger provides in-memory asset and token ledgers with the
// approve-then-pull semantics the auction registry relies on.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudx-io/nftauction/core"
)

var (
	// ErrUnknownAsset indicates the asset has not been minted.
	ErrUnknownAsset = errors.New("ledger: unknown asset")

	// ErrAssetExists indicates a mint of an already existing asset.
	ErrAssetExists = errors.New("ledger: asset already exists")

	// ErrNotAuthorized indicates a transfer by a spender the owner never approved.
	ErrNotAuthorized = errors.New("ledger: spender not authorized")

	// ErrWrongOwner indicates a transfer whose from is not the current owner.
	ErrWrongOwner = errors.New("ledger: from is not the owner")
)

// Assets is a non-fungible ownership registry spanning any number of asset
// contracts. Ownership, single-asset approvals and operator approvals follow
// ERC-721: a transfer clears the single-asset approval.
type Assets struct {
	mu        sync.RWMutex
	owners    map[core.AssetKey]core.Identity
	approved  map[core.AssetKey]core.Identity
	operators map[core.Identity]map[core.Identity]bool
}

// NewAssets creates an empty asset registry.
func NewAssets() *Assets {
	return &Assets{
		owners:    make(map[core.AssetKey]core.Identity),
		approved:  make(map[core.AssetKey]core.Identity),
		operators: make(map[core.Identity]map[core.Identity]bool),
	}
}

// Mint creates an asset owned by to.
func (a *Assets) Mint(contract core.Identity, id uint64, to core.Identity) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := core.AssetKey{Contract: contract, TokenID: id}
	if _, ok := a.owners[key]; ok {
		return fmt.Errorf("%w: %s/%d", ErrAssetExists, contract, id)
	}
	a.owners[key] = to
	return nil
}

// Approve lets spender move one asset on behalf of its owner.
func (a *Assets) Approve(owner, spender, contract core.Identity, id uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := core.AssetKey{Contract: contract, TokenID: id}
	current, ok := a.owners[key]
	if !ok {
		return fmt.Errorf("%w: %s/%d", ErrUnknownAsset, contract, id)
	}
	if current != owner && !a.operators[current][owner] {
		return fmt.Errorf("%w: %s cannot approve %s/%d", ErrNotAuthorized, owner, contract, id)
	}
	a.approved[key] = spender
	return nil
}

// SetApprovalForAll grants or revokes operator rights over every asset of owner.
func (a *Assets) SetApprovalForAll(owner, operator core.Identity, approved bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ops, ok := a.operators[owner]
	if !ok {
		ops = make(map[core.Identity]bool)
		a.operators[owner] = ops
	}
	if approved {
		ops[operator] = true
	} else {
		delete(ops, operator)
	}
}

// OwnerOf returns the owner of an asset.
func (a *Assets) OwnerOf(contract core.Identity, id uint64) (core.Identity, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	owner, ok := a.owners[core.AssetKey{Contract: contract, TokenID: id}]
	if !ok {
		return "", fmt.Errorf("%w: %s/%d", ErrUnknownAsset, contract, id)
	}
	return owner, nil
}

func (a *Assets) isApprovedLocked(key core.AssetKey, owner, spender core.Identity) bool {
	return spender == owner || a.approved[key] == spender || a.operators[owner][spender]
}

// TransferFrom moves an asset from its owner to to on behalf of spender.
func (a *Assets) TransferFrom(spender, from, to, contract core.Identity, id uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := core.AssetKey{Contract: contract, TokenID: id}
	owner, ok := a.owners[key]
	if !ok {
		return fmt.Errorf("%w: %s/%d", ErrUnknownAsset, contract, id)
	}
	if owner != from {
		return fmt.Errorf("%w: %s/%d is owned by %s", ErrWrongOwner, contract, id, owner)
	}
	if !a.isApprovedLocked(key, owner, spender) {
		return fmt.Errorf("%w: %s for %s/%d", ErrNotAuthorized, spender, contract, id)
	}
	if to == "" {
		return fmt.Errorf("transfer %s/%d to empty identity", contract, id)
	}

	delete(a.approved, key)
	a.owners[key] = to
	return nil
}

// As returns a view of the registry acting as spender, satisfying core.AssetRegistry.
func (a *Assets) As(spender core.Identity) *AssetView {
	return &AssetView{assets: a, spender: spender}
}

// AssetView performs asset operations on behalf of a fixed spender.
type AssetView struct {
	assets  *Assets
	spender core.Identity
}

var _ core.AssetRegistry = (*AssetView)(nil)

func (v *AssetView) OwnerOf(_ context.Context, contract core.Identity, id uint64) (core.Identity, error) {
	return v.assets.OwnerOf(contract, id)
}

func (v *AssetView) IsApproved(_ context.Context, contract core.Identity, id uint64, operator core.Identity) (bool, error) {
	v.assets.mu.RLock()
	defer v.assets.mu.RUnlock()

	key := core.AssetKey{Contract: contract, TokenID: id}
	owner, ok := v.assets.owners[key]
	if !ok {
		return false, fmt.Errorf("%w: %s/%d", ErrUnknownAsset, contract, id)
	}
	return v.assets.isApprovedLocked(key, owner, operator), nil
}

func (v *AssetView) TransferFrom(_ context.Context, contract core.Identity, from, to core.Identity, id uint64) error {
	return v.assets.TransferFrom(v.spender, from, to, contract, id)
}
