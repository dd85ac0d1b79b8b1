package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Bid places a bid of amount on an active auction.
//
// Processing flow, all under the registry lock:
//  1. Validate state, deadline, minimum price, strict improvement and oracle floor
//  2. Pull amount from caller into the custodian's escrow
//  3. Refund the displaced bidder (on failure, return the new funds and abort)
//  4. Record caller as the highest bidder
func (r *Registry) Bid(ctx context.Context, caller Identity, id uint64, amount decimal.Decimal) error {
	if caller == "" {
		return fmt.Errorf("%w: bidder is required", ErrInvalidParameters)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := r.lookupActive(id)
	if err != nil {
		return err
	}

	now := r.clock.Now()
	if !now.Before(record.Deadline) {
		return fmt.Errorf("%w: auction %d closed at %s", ErrAuctionExpired, id, record.Deadline)
	}
	if caller == record.Seller {
		return fmt.Errorf("%w: seller cannot bid on auction %d", ErrInvalidParameters, id)
	}
	if caller == r.custodian {
		return fmt.Errorf("%w: custodian cannot bid on auction %d", ErrInvalidParameters, id)
	}
	if amount.LessThan(record.MinPrice) {
		return fmt.Errorf("%w: bid %s below min price %s", ErrBidTooLow, amount, record.MinPrice)
	}
	if !amount.GreaterThan(record.HighestBid) {
		return fmt.Errorf("%w: bid %s does not exceed highest bid %s", ErrBidTooLow, amount, record.HighestBid)
	}
	if err := checkOracleFloor(ctx, r.feeds[record.PaymentToken], amount); err != nil {
		return err
	}

	if err := r.tokens.TransferFrom(ctx, record.PaymentToken, caller, r.custodian, amount); err != nil {
		r.logger.Warn("bid escrow pull refused", "auction_id", id, "bidder", caller, "amount", amount.String(), "error", err)
		return fmt.Errorf("%w: escrow %s from %s: %v", ErrTransferFailed, amount, caller, err)
	}

	previousBidder, previousBid := record.HighestBidder, record.HighestBid
	if previousBidder != NoBidder {
		if err := r.tokens.Transfer(ctx, record.PaymentToken, previousBidder, previousBid); err != nil {
			refundErr := fmt.Errorf("refund %s to %s: %w", previousBid, previousBidder, err)
			if rollbackErr := r.tokens.Transfer(ctx, record.PaymentToken, caller, amount); rollbackErr != nil {
				r.logger.Error("bid rollback failed; escrow holds unrecorded funds",
					"auction_id", id, "bidder", caller, "amount", amount.String(), "error", rollbackErr)
				refundErr = errors.Join(refundErr, fmt.Errorf("return %s to %s: %w", amount, caller, rollbackErr))
			}
			return fmt.Errorf("%w: %v", ErrTransferFailed, refundErr)
		}
	}

	record.HighestBidder = caller
	record.HighestBid = amount
	record.BidCount++

	r.record(Event{
		Type:           EventBidPlaced,
		AuctionID:      id,
		Actor:          caller,
		Seller:         record.Seller,
		Bidder:         caller,
		PreviousBidder: previousBidder,
		PaymentToken:   record.PaymentToken,
		Amount:         amount,
		PreviousAmount: previousBid,
		Timestamp:      now,
	})
	r.logger.Info("bid placed",
		"auction_id", id, "bidder", caller, "amount", amount.String(),
		"previous_bidder", previousBidder, "previous_bid", previousBid.String())

	return nil
}
