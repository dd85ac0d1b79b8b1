package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Identity is an account or contract address known to the collaborating ledgers.
type Identity string

// NoBidder is the HighestBidder value of an auction that has not received a bid.
const NoBidder Identity = ""

// AssetKey identifies a single non-fungible item.
type AssetKey struct {
	Contract Identity `json:"contract"`
	TokenID  uint64   `json:"token_id"`
}

// AuctionState is the lifecycle state of an auction. Active is the only
// initial state; Ended and Cancelled are terminal.
type AuctionState string

const (
	StateActive    AuctionState = "active"
	StateEnded     AuctionState = "ended"
	StateCancelled AuctionState = "cancelled"
)

// Terminal reports whether no further transition is possible from s.
func (s AuctionState) Terminal() bool {
	return s == StateEnded || s == StateCancelled
}

// AuctionRecord is the registry's view of one auction.
type AuctionRecord struct {
	ID            uint64          `json:"id"`
	Seller        Identity        `json:"seller"`
	AssetContract Identity        `json:"asset_contract"`
	AssetID       uint64          `json:"asset_id"`
	PaymentToken  Identity        `json:"payment_token"`
	MinPrice      decimal.Decimal `json:"min_price"`
	CreatedAt     time.Time       `json:"created_at"`
	Deadline      time.Time       `json:"deadline"`
	HighestBidder Identity        `json:"highest_bidder,omitempty"`
	HighestBid    decimal.Decimal `json:"highest_bid"`
	BidCount      int             `json:"bid_count"`
	State         AuctionState    `json:"state"`
	EndedAt       time.Time       `json:"ended_at,omitzero"`
	Voided        bool            `json:"voided,omitempty"` // Ended with the winner refunded.
}

// HasBids reports whether a bid has ever been accepted for the auction.
func (r AuctionRecord) HasBids() bool {
	return r.HighestBidder != NoBidder
}

// Asset returns the key of the item under auction.
func (r AuctionRecord) Asset() AssetKey {
	return AssetKey{Contract: r.AssetContract, TokenID: r.AssetID}
}

// CreateParams holds the seller-supplied parameters of a new auction.
type CreateParams struct {
	AssetContract Identity
	AssetID       uint64
	PaymentToken  Identity
	MinPrice      decimal.Decimal
	Duration      time.Duration
}

// AuctionFilter narrows Auctions listings. Zero values match everything.
type AuctionFilter struct {
	State  AuctionState
	Seller Identity
}

func (f AuctionFilter) matches(r *AuctionRecord) bool {
	if f.State != "" && r.State != f.State {
		return false
	}
	if f.Seller != "" && r.Seller != f.Seller {
		return false
	}
	return true
}

// EventType names an audit event.
type EventType string

const (
	EventAuctionCreated   EventType = "auction_created"
	EventBidPlaced        EventType = "bid_placed"
	EventAuctionEnded     EventType = "auction_ended"
	EventAuctionCancelled EventType = "auction_cancelled"
	EventAuctionVoided    EventType = "auction_voided"
	EventPriceFeedSet     EventType = "price_feed_set"
	EventPriceFeedRemoved EventType = "price_feed_removed"
)

// Event records one committed mutation of the registry. Events are chained:
// Hash covers PrevHash and every other field except Hash itself.
type Event struct {
	ID             string          `json:"id"`
	Seq            uint64          `json:"seq"`
	Type           EventType       `json:"type"`
	AuctionID      uint64          `json:"auction_id,omitempty"`
	Actor          Identity        `json:"actor"`
	Seller         Identity        `json:"seller,omitempty"`
	Bidder         Identity        `json:"bidder,omitempty"`
	PreviousBidder Identity        `json:"previous_bidder,omitempty"`
	Winner         Identity        `json:"winner,omitempty"`
	AssetContract  Identity        `json:"asset_contract,omitempty"`
	AssetID        uint64          `json:"asset_id,omitempty"`
	PaymentToken   Identity        `json:"payment_token,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	PreviousAmount decimal.Decimal `json:"previous_amount"`
	Timestamp      time.Time       `json:"timestamp"`
	PrevHash       string          `json:"prev_hash"`
	Hash           string          `json:"hash"`
}
