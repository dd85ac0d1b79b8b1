package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudx-io/nftauction/auctionapi"
	"github.com/cloudx-io/nftauction/audit"
	"github.com/cloudx-io/nftauction/core"
)

// ErrAttestationUnavailable is returned for attest requests outside an enclave.
var ErrAttestationUnavailable = errors.New("server: attestation unavailable")

// Handler executes decoded requests against the registry. It is shared by
// the framed server and the HTTP API.
type Handler struct {
	registry *core.Registry
	signer   *audit.Signer
	attester audit.Attester
	logger   *slog.Logger
}

// NewHandler builds a handler. signer and attester may be nil; events are
// then served without receipts and attest requests fail.
func NewHandler(registry *core.Registry, signer *audit.Signer, attester audit.Attester, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: registry,
		signer:   signer,
		attester: attester,
		logger:   logger,
	}
}

// Registry returns the registry requests are executed against.
func (h *Handler) Registry() *core.Registry { return h.registry }

func (h *Handler) view(id uint64) (auctionapi.AuctionView, error) {
	record, ok := h.registry.GetAuction(id)
	if !ok {
		return auctionapi.AuctionView{}, fmt.Errorf("%w: auction %d", core.ErrAuctionNotFound, id)
	}
	return auctionapi.NewAuctionView(record, h.registry.EscrowBalance(id)), nil
}

// Create lists an asset.
func (h *Handler) Create(ctx context.Context, req auctionapi.CreateAuctionRequest) (*auctionapi.CreateAuctionResponse, error) {
	params, err := req.Params()
	if err != nil {
		return nil, err
	}
	id, err := h.registry.Create(ctx, req.Caller, params)
	if err != nil {
		return nil, err
	}
	view, err := h.view(id)
	if err != nil {
		return nil, err
	}
	return &auctionapi.CreateAuctionResponse{
		Type:      auctionapi.TypeCreateResponse,
		AuctionID: id,
		Auction:   view,
	}, nil
}

// Bid places a bid.
func (h *Handler) Bid(ctx context.Context, req auctionapi.BidRequest) (*auctionapi.ActionResponse, error) {
	return h.action(auctionapi.TypeBidResponse, req.AuctionID, func() error {
		return h.registry.Bid(ctx, req.Caller, req.AuctionID, req.Amount)
	})
}

// Finalize settles an auction.
func (h *Handler) Finalize(ctx context.Context, req auctionapi.FinalizeRequest) (*auctionapi.ActionResponse, error) {
	return h.action(auctionapi.TypeFinalizeResponse, req.AuctionID, func() error {
		return h.registry.Finalize(ctx, req.Caller, req.AuctionID)
	})
}

// Cancel withdraws an auction.
func (h *Handler) Cancel(ctx context.Context, req auctionapi.CancelRequest) (*auctionapi.ActionResponse, error) {
	return h.action(auctionapi.TypeCancelResponse, req.AuctionID, func() error {
		return h.registry.Cancel(ctx, req.Caller, req.AuctionID)
	})
}

func (h *Handler) action(respType string, id uint64, run func() error) (*auctionapi.ActionResponse, error) {
	start := time.Now()
	if err := run(); err != nil {
		return nil, err
	}
	view, err := h.view(id)
	if err != nil {
		return nil, err
	}
	return &auctionapi.ActionResponse{
		Type:           respType,
		Success:        true,
		Auction:        view,
		ProcessingTime: time.Since(start).Milliseconds(),
	}, nil
}

// Auction reads one auction.
func (h *Handler) Auction(req auctionapi.AuctionRequest) (*auctionapi.AuctionResponse, error) {
	view, err := h.view(req.AuctionID)
	if err != nil {
		return nil, err
	}
	return &auctionapi.AuctionResponse{Type: auctionapi.TypeAuctionResponse, Auction: view}, nil
}

// Auctions lists auctions matching filter.
func (h *Handler) Auctions(filter core.AuctionFilter) *auctionapi.AuctionListResponse {
	records := h.registry.Auctions(filter)
	views := make([]auctionapi.AuctionView, 0, len(records))
	for _, record := range records {
		views = append(views, auctionapi.NewAuctionView(record, h.registry.EscrowBalance(record.ID)))
	}
	return &auctionapi.AuctionListResponse{Auctions: views}
}

// Lookup finds the active auction of an asset.
func (h *Handler) Lookup(req auctionapi.LookupRequest) *auctionapi.LookupResponse {
	id, found := h.registry.LookupActiveAuction(req.AssetContract, req.AssetID)
	return &auctionapi.LookupResponse{Type: auctionapi.TypeLookupResponse, Found: found, AuctionID: id}
}

// Events returns journal events after req.AfterSeq, each with a fresh receipt
// when a signer is configured.
func (h *Handler) Events(req auctionapi.EventsRequest) (*auctionapi.EventsResponse, error) {
	headSeq, headHash := h.registry.Head()

	var events []core.Event
	if req.AuctionID != 0 {
		for _, e := range h.registry.AuctionEvents(req.AuctionID) {
			if e.Seq > req.AfterSeq {
				events = append(events, e)
			}
		}
	} else {
		events = h.registry.Events(req.AfterSeq)
	}

	envs := make([]auctionapi.EventEnvelope, 0, len(events))
	for _, e := range events {
		env := auctionapi.EventEnvelope{Event: e}
		if h.signer != nil {
			receipt, err := h.signer.Sign(e)
			if err != nil {
				return nil, fmt.Errorf("failed to sign receipt for event %d: %w", e.Seq, err)
			}
			env.Receipt = receipt.EncodeBase64()
		}
		envs = append(envs, env)
	}

	return &auctionapi.EventsResponse{
		Type:     auctionapi.TypeEventsResponse,
		Events:   envs,
		HeadSeq:  headSeq,
		HeadHash: headHash,
	}, nil
}

// Attest attests the current journal head and the receipt key.
func (h *Handler) Attest(req auctionapi.AttestRequest) (*auctionapi.AttestResponse, error) {
	if h.attester == nil || h.signer == nil {
		return nil, ErrAttestationUnavailable
	}

	headSeq, headHash := h.registry.Head()
	att, err := audit.AttestHead(h.attester, h.signer, headSeq, headHash, req.Nonce)
	if err != nil {
		return nil, err
	}
	return &auctionapi.AttestResponse{
		Type:        auctionapi.TypeAttestResponse,
		HeadSeq:     headSeq,
		HeadHash:    headHash,
		Attestation: base64.StdEncoding.EncodeToString(att.Document),
	}, nil
}
