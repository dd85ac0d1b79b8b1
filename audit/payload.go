// Package audit signs journal events as COSE receipts and attests the
// journal head from inside a Nitro Enclave.
package audit

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/nftauction/core"
)

// ReceiptPayload is the CBOR body of a receipt. Amounts are canonical
// decimal strings and the timestamp is in Unix nanoseconds, so the payload
// reproduces the event hash exactly.
type ReceiptPayload struct {
	ID             string `cbor:"id"`
	Seq            uint64 `cbor:"seq"`
	Type           string `cbor:"type"`
	AuctionID      uint64 `cbor:"auction_id"`
	Actor          string `cbor:"actor"`
	Seller         string `cbor:"seller"`
	Bidder         string `cbor:"bidder"`
	PreviousBidder string `cbor:"previous_bidder"`
	Winner         string `cbor:"winner"`
	AssetContract  string `cbor:"asset_contract"`
	AssetID        uint64 `cbor:"asset_id"`
	PaymentToken   string `cbor:"payment_token"`
	Amount         string `cbor:"amount"`
	PreviousAmount string `cbor:"previous_amount"`
	Timestamp      int64  `cbor:"timestamp"`
	PrevHash       string `cbor:"prev_hash"`
	Hash           string `cbor:"hash"`
}

var encMode cbor.EncMode

func init() {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("audit: cbor encoding mode: %v", err))
	}
	encMode = mode
}

// NewReceiptPayload captures an event for signing.
func NewReceiptPayload(e core.Event) ReceiptPayload {
	return ReceiptPayload{
		ID:             e.ID,
		Seq:            e.Seq,
		Type:           string(e.Type),
		AuctionID:      e.AuctionID,
		Actor:          string(e.Actor),
		Seller:         string(e.Seller),
		Bidder:         string(e.Bidder),
		PreviousBidder: string(e.PreviousBidder),
		Winner:         string(e.Winner),
		AssetContract:  string(e.AssetContract),
		AssetID:        e.AssetID,
		PaymentToken:   string(e.PaymentToken),
		Amount:         e.Amount.String(),
		PreviousAmount: e.PreviousAmount.String(),
		Timestamp:      e.Timestamp.UnixNano(),
		PrevHash:       e.PrevHash,
		Hash:           e.Hash,
	}
}

// Marshal returns the deterministic CBOR encoding of p.
func (p ReceiptPayload) Marshal() ([]byte, error) {
	return encMode.Marshal(p)
}

// UnmarshalReceiptPayload decodes a receipt body.
func UnmarshalReceiptPayload(data []byte) (ReceiptPayload, error) {
	var p ReceiptPayload
	if err := cbor.Unmarshal(data, &p); err != nil {
		return ReceiptPayload{}, fmt.Errorf("decode receipt payload: %w", err)
	}
	return p, nil
}

// Event rebuilds the journal event carried by p.
func (p ReceiptPayload) Event() (core.Event, error) {
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return core.Event{}, fmt.Errorf("parse amount %q: %w", p.Amount, err)
	}
	previous, err := decimal.NewFromString(p.PreviousAmount)
	if err != nil {
		return core.Event{}, fmt.Errorf("parse previous amount %q: %w", p.PreviousAmount, err)
	}
	return core.Event{
		ID:             p.ID,
		Seq:            p.Seq,
		Type:           core.EventType(p.Type),
		AuctionID:      p.AuctionID,
		Actor:          core.Identity(p.Actor),
		Seller:         core.Identity(p.Seller),
		Bidder:         core.Identity(p.Bidder),
		PreviousBidder: core.Identity(p.PreviousBidder),
		Winner:         core.Identity(p.Winner),
		AssetContract:  core.Identity(p.AssetContract),
		AssetID:        p.AssetID,
		PaymentToken:   core.Identity(p.PaymentToken),
		Amount:         amount,
		PreviousAmount: previous,
		Timestamp:      time.Unix(0, p.Timestamp).UTC(),
		PrevHash:       p.PrevHash,
		Hash:           p.Hash,
	}, nil
}
