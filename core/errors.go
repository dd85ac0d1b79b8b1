package core

import "errors"

// Failure kinds returned by Registry operations. Callers match them with
// errors.Is; the returned error usually wraps the kind with detail.
var (
	// ErrInvalidParameters indicates a non-positive price or duration, or a malformed identity.
	ErrInvalidParameters = errors.New("auction: invalid parameters")

	// ErrDuplicateListing indicates the asset already has an active auction.
	ErrDuplicateListing = errors.New("auction: asset already listed")

	// ErrAuctionNotFound indicates that no auction exists with the given identifier.
	ErrAuctionNotFound = errors.New("auction: not found")

	// ErrAuctionNotActive indicates the auction has already ended or been cancelled.
	ErrAuctionNotActive = errors.New("auction: not active")

	// ErrAuctionExpired indicates a bid at or after the deadline.
	ErrAuctionExpired = errors.New("auction: expired")

	// ErrTooEarly indicates finalization before the deadline.
	ErrTooEarly = errors.New("auction: deadline not reached")

	// ErrBidTooLow indicates a bid below the minimum price, below the oracle
	// floor, or not strictly greater than the current highest bid.
	ErrBidTooLow = errors.New("auction: bid too low")

	// ErrStalePriceFeed indicates the configured price feed is stale or unusable.
	ErrStalePriceFeed = errors.New("auction: stale price feed")

	// ErrNotSeller indicates a seller-only operation attempted by someone else.
	ErrNotSeller = errors.New("auction: caller is not the seller")

	// ErrBidsAlreadyExist indicates cancellation of an auction that has received a bid.
	ErrBidsAlreadyExist = errors.New("auction: bids already exist")

	// ErrTransferFailed indicates that a token or asset movement was refused by a ledger.
	ErrTransferFailed = errors.New("auction: transfer failed")

	// ErrNotAssetOwner indicates that the creator does not own the asset.
	ErrNotAssetOwner = errors.New("auction: caller does not own the asset")

	// ErrAssetNotApproved indicates that the seller has not authorized the custodian to move the asset.
	ErrAssetNotApproved = errors.New("auction: custodian not approved for asset")

	// ErrNotAdmin indicates an administrative operation by a non-admin caller.
	ErrNotAdmin = errors.New("auction: caller is not the admin")
)
