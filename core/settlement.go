package core

import (
	"context"
	"errors"
	"fmt"
)

// Finalize settles an auction whose deadline has passed. Anyone may call it,
// so an unresponsive seller or winner cannot hold the listing hostage.
//
// With a winner the asset moves seller -> winner and the escrowed highest bid
// is paid to the seller. If the seller no longer holds the asset or has
// revoked the custodian's authorization, the auction is voided instead: the
// winner is refunded and the asset stays where it is. Without bids the
// listing simply lapses and nothing moves.
func (r *Registry) Finalize(ctx context.Context, caller Identity, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := r.lookupActive(id)
	if err != nil {
		return err
	}

	now := r.clock.Now()
	if now.Before(record.Deadline) {
		return fmt.Errorf("%w: auction %d closes at %s", ErrTooEarly, id, record.Deadline)
	}

	delivered := false
	if record.HasBids() {
		if delivered, err = r.settle(ctx, record); err != nil {
			return err
		}
	}

	record.State = StateEnded
	record.EndedAt = now
	delete(r.assetIndex, record.Asset())

	if record.HasBids() && !delivered {
		record.Voided = true
		r.record(Event{
			Type:          EventAuctionVoided,
			AuctionID:     id,
			Actor:         caller,
			Seller:        record.Seller,
			Bidder:        record.HighestBidder,
			AssetContract: record.AssetContract,
			AssetID:       record.AssetID,
			PaymentToken:  record.PaymentToken,
			Amount:        record.HighestBid,
			Timestamp:     now,
		})
		r.logger.Warn("auction voided; seller could not deliver",
			"auction_id", id, "caller", caller, "refunded", record.HighestBidder, "amount", record.HighestBid.String())
		return nil
	}

	r.record(Event{
		Type:          EventAuctionEnded,
		AuctionID:     id,
		Actor:         caller,
		Seller:        record.Seller,
		Winner:        record.HighestBidder,
		AssetContract: record.AssetContract,
		AssetID:       record.AssetID,
		PaymentToken:  record.PaymentToken,
		Amount:        record.HighestBid,
		Timestamp:     now,
	})
	r.logger.Info("auction ended",
		"auction_id", id, "caller", caller, "winner", record.HighestBidder, "price", record.HighestBid.String())

	return nil
}

// settle exchanges the asset for the escrowed funds and reports whether the
// asset was delivered. The asset moves first because it depends on the
// seller's standing authorization; the payout comes from the custodian's own
// balance. An asset already held by the winner is left in place, so a
// settlement whose rollback failed completes on retry. When the seller can no
// longer deliver, the winner is refunded and settle reports false.
func (r *Registry) settle(ctx context.Context, record *AuctionRecord) (bool, error) {
	winner := record.HighestBidder

	owner, err := r.assets.OwnerOf(ctx, record.AssetContract, record.AssetID)
	if err != nil {
		return false, fmt.Errorf("%w: owner of %s/%d: %v", ErrTransferFailed, record.AssetContract, record.AssetID, err)
	}
	if owner != winner {
		deliverable, err := r.sellerCanDeliver(ctx, record, owner)
		if err != nil {
			return false, err
		}
		if !deliverable {
			if err := r.tokens.Transfer(ctx, record.PaymentToken, winner, record.HighestBid); err != nil {
				r.logger.Error("refund of undeliverable auction failed", "auction_id", record.ID, "winner", winner, "error", err)
				return false, fmt.Errorf("%w: refund %s to %s: %v", ErrTransferFailed, record.HighestBid, winner, err)
			}
			return false, nil
		}
		if err := r.assets.TransferFrom(ctx, record.AssetContract, record.Seller, winner, record.AssetID); err != nil {
			r.logger.Warn("asset transfer refused", "auction_id", record.ID, "seller", record.Seller, "winner", winner, "error", err)
			return false, fmt.Errorf("%w: asset %s/%d to %s: %v", ErrTransferFailed, record.AssetContract, record.AssetID, winner, err)
		}
	}

	if err := r.tokens.Transfer(ctx, record.PaymentToken, record.Seller, record.HighestBid); err != nil {
		payoutErr := fmt.Errorf("payout %s to %s: %w", record.HighestBid, record.Seller, err)
		if rollbackErr := r.assets.TransferFrom(ctx, record.AssetContract, winner, record.Seller, record.AssetID); rollbackErr != nil {
			r.logger.Error("settlement rollback failed; asset delivered without payout",
				"auction_id", record.ID, "winner", winner, "error", rollbackErr)
			payoutErr = errors.Join(payoutErr, fmt.Errorf("return asset to %s: %w", record.Seller, rollbackErr))
		}
		return false, fmt.Errorf("%w: %v", ErrTransferFailed, payoutErr)
	}

	return true, nil
}

// sellerCanDeliver reports whether the seller still owns the asset and the
// custodian is still authorized to move it.
func (r *Registry) sellerCanDeliver(ctx context.Context, record *AuctionRecord, owner Identity) (bool, error) {
	if owner != record.Seller {
		return false, nil
	}
	approved, err := r.assets.IsApproved(ctx, record.AssetContract, record.AssetID, r.custodian)
	if err != nil {
		return false, fmt.Errorf("%w: approval of %s/%d: %v", ErrTransferFailed, record.AssetContract, record.AssetID, err)
	}
	return approved, nil
}

// Cancel withdraws an auction that has never received a bid. Only the seller
// may cancel; nothing was moved, so nothing is reversed.
func (r *Registry) Cancel(ctx context.Context, caller Identity, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := r.lookupActive(id)
	if err != nil {
		return err
	}
	if caller != record.Seller {
		return fmt.Errorf("%w: auction %d belongs to %s", ErrNotSeller, id, record.Seller)
	}
	if record.HasBids() {
		return fmt.Errorf("%w: auction %d has %d bids", ErrBidsAlreadyExist, id, record.BidCount)
	}

	now := r.clock.Now()
	record.State = StateCancelled
	record.EndedAt = now
	delete(r.assetIndex, record.Asset())

	r.record(Event{
		Type:          EventAuctionCancelled,
		AuctionID:     id,
		Actor:         caller,
		Seller:        record.Seller,
		AssetContract: record.AssetContract,
		AssetID:       record.AssetID,
		Timestamp:     now,
	})
	r.logger.Info("auction cancelled", "auction_id", id, "seller", caller)

	return nil
}
