package auctionapi

import (
	"errors"

	"github.com/cloudx-io/nftauction/core"
)

// Code is the stable machine-readable name of an error kind.
type Code string

const (
	CodeInvalidParameters Code = "invalid_parameters"
	CodeDuplicateListing  Code = "duplicate_listing"
	CodeAuctionNotFound   Code = "auction_not_found"
	CodeAuctionNotActive  Code = "auction_not_active"
	CodeAuctionExpired    Code = "auction_expired"
	CodeTooEarly          Code = "too_early"
	CodeBidTooLow         Code = "bid_too_low"
	CodeStalePriceFeed    Code = "stale_price_feed"
	CodeNotSeller         Code = "not_seller"
	CodeBidsAlreadyExist  Code = "bids_already_exist"
	CodeTransferFailed    Code = "transfer_failed"
	CodeNotAssetOwner     Code = "not_asset_owner"
	CodeAssetNotApproved  Code = "asset_not_approved"
	CodeNotAdmin          Code = "not_admin"
	CodeBadRequest        Code = "bad_request"
	CodeServerBusy        Code = "server_busy"
	CodeInternal          Code = "internal"
)

var errorCodes = []struct {
	err  error
	code Code
}{
	{core.ErrInvalidParameters, CodeInvalidParameters},
	{core.ErrDuplicateListing, CodeDuplicateListing},
	{core.ErrAuctionNotFound, CodeAuctionNotFound},
	{core.ErrAuctionNotActive, CodeAuctionNotActive},
	{core.ErrAuctionExpired, CodeAuctionExpired},
	{core.ErrTooEarly, CodeTooEarly},
	{core.ErrBidTooLow, CodeBidTooLow},
	{core.ErrStalePriceFeed, CodeStalePriceFeed},
	{core.ErrNotSeller, CodeNotSeller},
	{core.ErrBidsAlreadyExist, CodeBidsAlreadyExist},
	{core.ErrTransferFailed, CodeTransferFailed},
	{core.ErrNotAssetOwner, CodeNotAssetOwner},
	{core.ErrAssetNotApproved, CodeAssetNotApproved},
	{core.ErrNotAdmin, CodeNotAdmin},
}

// CodeFor maps a registry error to its code. Unknown errors map to CodeInternal.
func CodeFor(err error) Code {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeInternal
}

// ErrorFor returns the registry error kind named by code, or nil when the
// code does not name one.
func ErrorFor(code Code) error {
	for _, ec := range errorCodes {
		if ec.code == code {
			return ec.err
		}
	}
	return nil
}

// NewErrorResponse builds the wire form of err.
func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{
		Type:    TypeError,
		Code:    CodeFor(err),
		Message: err.Error(),
	}
}
