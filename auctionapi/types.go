// Package auctionapi defines the JSON wire format shared by the framed
// server, the HTTP API, event sinks and receipt validators.
package auctionapi

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/nftauction/core"
)

// Message types carried in the "type" field of every framed request and response.
const (
	TypePing             = "ping"
	TypePong             = "pong"
	TypeCreateRequest    = "create_request"
	TypeCreateResponse   = "create_response"
	TypeBidRequest       = "bid_request"
	TypeBidResponse      = "bid_response"
	TypeFinalizeRequest  = "finalize_request"
	TypeFinalizeResponse = "finalize_response"
	TypeCancelRequest    = "cancel_request"
	TypeCancelResponse   = "cancel_response"
	TypeAuctionRequest   = "auction_request"
	TypeAuctionResponse  = "auction_response"
	TypeLookupRequest    = "lookup_request"
	TypeLookupResponse   = "lookup_response"
	TypeEventsRequest    = "events_request"
	TypeEventsResponse   = "events_response"
	TypeAttestRequest    = "attest_request"
	TypeAttestResponse   = "attest_response"
	TypeError            = "error"
)

// Request carries only the message type, for dispatch before full decoding.
type Request struct {
	Type string `json:"type"`
}

// CreateAuctionRequest lists an asset. MinPrice and amounts travel as decimal strings.
type CreateAuctionRequest struct {
	Type            string          `json:"type"`
	Caller          core.Identity   `json:"caller"`
	AssetContract   core.Identity   `json:"asset_contract"`
	AssetID         uint64          `json:"asset_id"`
	PaymentToken    core.Identity   `json:"payment_token"`
	MinPrice        decimal.Decimal `json:"min_price"`
	DurationSeconds int64           `json:"duration_seconds"`
}

// MaxDurationSeconds is the longest duration a time.Duration can hold.
const MaxDurationSeconds = math.MaxInt64 / int64(time.Second)

// Params converts the request into registry parameters.
func (r CreateAuctionRequest) Params() (core.CreateParams, error) {
	if r.DurationSeconds > MaxDurationSeconds {
		return core.CreateParams{}, fmt.Errorf("%w: duration %ds exceeds %ds",
			core.ErrInvalidParameters, r.DurationSeconds, MaxDurationSeconds)
	}
	return core.CreateParams{
		AssetContract: r.AssetContract,
		AssetID:       r.AssetID,
		PaymentToken:  r.PaymentToken,
		MinPrice:      r.MinPrice,
		Duration:      time.Duration(r.DurationSeconds) * time.Second,
	}, nil
}

// BidRequest places a bid on behalf of Caller.
type BidRequest struct {
	Type      string          `json:"type"`
	Caller    core.Identity   `json:"caller"`
	AuctionID uint64          `json:"auction_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// FinalizeRequest settles an auction past its deadline.
type FinalizeRequest struct {
	Type      string        `json:"type"`
	Caller    core.Identity `json:"caller"`
	AuctionID uint64        `json:"auction_id"`
}

// CancelRequest withdraws an auction without bids.
type CancelRequest struct {
	Type      string        `json:"type"`
	Caller    core.Identity `json:"caller"`
	AuctionID uint64        `json:"auction_id"`
}

// AuctionRequest reads one auction.
type AuctionRequest struct {
	Type      string `json:"type"`
	AuctionID uint64 `json:"auction_id"`
}

// LookupRequest finds the active auction for an asset.
type LookupRequest struct {
	Type          string        `json:"type"`
	AssetContract core.Identity `json:"asset_contract"`
	AssetID       uint64        `json:"asset_id"`
}

// EventsRequest pages through the journal. A zero AuctionID selects all auctions.
type EventsRequest struct {
	Type      string `json:"type"`
	AfterSeq  uint64 `json:"after_seq"`
	AuctionID uint64 `json:"auction_id,omitempty"`
}

// AttestRequest asks for an attestation over the current journal head.
type AttestRequest struct {
	Type  string `json:"type"`
	Nonce string `json:"nonce,omitempty"`
}

// AuctionView is an auction record with its current escrow.
type AuctionView struct {
	core.AuctionRecord
	Escrow decimal.Decimal `json:"escrow"`
}

// NewAuctionView builds the wire view of a record.
func NewAuctionView(record core.AuctionRecord, escrow decimal.Decimal) AuctionView {
	return AuctionView{AuctionRecord: record, Escrow: escrow}
}

// CreateAuctionResponse reports a newly listed auction.
type CreateAuctionResponse struct {
	Type      string      `json:"type"`
	AuctionID uint64      `json:"auction_id"`
	Auction   AuctionView `json:"auction"`
}

// ActionResponse reports the outcome of bid, finalize and cancel requests.
type ActionResponse struct {
	Type           string      `json:"type"`
	Success        bool        `json:"success"`
	Auction        AuctionView `json:"auction"`
	ProcessingTime int64       `json:"processing_time_ms"`
}

// AuctionResponse carries one auction.
type AuctionResponse struct {
	Type    string      `json:"type"`
	Auction AuctionView `json:"auction"`
}

// AuctionListResponse carries a filtered listing.
type AuctionListResponse struct {
	Auctions []AuctionView `json:"auctions"`
}

// LookupResponse reports the active auction of an asset, if any.
type LookupResponse struct {
	Type      string `json:"type"`
	Found     bool   `json:"found"`
	AuctionID uint64 `json:"auction_id,omitempty"`
}

// EventEnvelope is a journal event with its optional signed receipt.
type EventEnvelope struct {
	Event   core.Event    `json:"event"`
	Receipt ReceiptBase64 `json:"receipt,omitempty"`
}

// EventsResponse carries a page of the journal and the head it was read at.
type EventsResponse struct {
	Type     string          `json:"type"`
	Events   []EventEnvelope `json:"events"`
	HeadSeq  uint64          `json:"head_seq"`
	HeadHash string          `json:"head_hash"`
}

// AttestResponse carries a raw attestation document over the journal head.
type AttestResponse struct {
	Type        string `json:"type"`
	HeadSeq     uint64 `json:"head_seq"`
	HeadHash    string `json:"head_hash"`
	Attestation string `json:"attestation_cose_base64"`
}

// PongResponse answers a ping.
type PongResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ErrorResponse reports a failed request.
type ErrorResponse struct {
	Type    string `json:"type"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
}
