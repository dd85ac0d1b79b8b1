package core

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// GenesisHash is the PrevHash of the first event in a journal.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ComputeEventHash computes the chained hash of an event.
// This is used by the registry (to link journal entries) and validation (to verify chains).
//
// Formula: SHA256 over the fields prev_hash, seq, id, type, auction_id, actor,
// seller, bidder, previous_bidder, winner, asset_contract, asset_id,
// payment_token, amount, previous_amount, unix_nanos, each written as
// len + ":" + value + "|". The length prefix keeps identities containing "|"
// from shifting field boundaries.
//
// Amounts use their canonical decimal string so that equal values hash equally
// regardless of internal exponent.
func ComputeEventHash(e Event) string {
	fields := []string{
		e.PrevHash,
		fmt.Sprintf("%d", e.Seq),
		e.ID,
		string(e.Type),
		fmt.Sprintf("%d", e.AuctionID),
		string(e.Actor),
		string(e.Seller),
		string(e.Bidder),
		string(e.PreviousBidder),
		string(e.Winner),
		string(e.AssetContract),
		fmt.Sprintf("%d", e.AssetID),
		string(e.PaymentToken),
		e.Amount.String(),
		e.PreviousAmount.String(),
		fmt.Sprintf("%d", e.Timestamp.UnixNano()),
	}
	var b strings.Builder
	for _, field := range fields {
		fmt.Fprintf(&b, "%d:%s|", len(field), field)
	}
	hash := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", hash)
}

// VerifyEventChain checks that events form an unbroken hash chain starting
// after prevHash with sequence numbers following prevSeq.
func VerifyEventChain(prevSeq uint64, prevHash string, events []Event) error {
	for _, e := range events {
		if e.Seq != prevSeq+1 {
			return fmt.Errorf("event %s: sequence %d does not follow %d", e.ID, e.Seq, prevSeq)
		}
		if e.PrevHash != prevHash {
			return fmt.Errorf("event %d: prev hash %s does not match %s", e.Seq, e.PrevHash, prevHash)
		}
		if got := ComputeEventHash(e); got != e.Hash {
			return fmt.Errorf("event %d: hash %s does not match computed %s", e.Seq, e.Hash, got)
		}
		prevSeq, prevHash = e.Seq, e.Hash
	}
	return nil
}

// eventTime normalizes timestamps so that hashes survive JSON round trips.
func eventTime(t time.Time) time.Time {
	return t.UTC().Round(0)
}
