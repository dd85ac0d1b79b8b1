// Package httpapi exposes the registry over REST and streams events over websockets.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/cloudx-io/nftauction/auctionapi"
	"github.com/cloudx-io/nftauction/core"
	"github.com/cloudx-io/nftauction/server"
)

// CallerHeader carries the identity a request acts as.
const CallerHeader = "X-Caller"

var errMissingCaller = errors.New("httpapi: " + CallerHeader + " header is required")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// API serves the registry over HTTP.
type API struct {
	handler *server.Handler
	hub     *Hub
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New builds the API. A non-positive requestsPerSecond disables rate limiting.
func New(handler *server.Handler, hub *Hub, requestsPerSecond float64, burst int, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &API{
		handler: handler,
		hub:     hub,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With("component", "httpapi"),
	}
}

// Routes configures all HTTP routes.
func (a *API) Routes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", a.health).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auctions", a.createAuction).Methods(http.MethodPost)
	api.HandleFunc("/auctions", a.listAuctions).Methods(http.MethodGet)
	api.HandleFunc("/auctions/{id:[0-9]+}", a.getAuction).Methods(http.MethodGet)
	api.HandleFunc("/auctions/{id:[0-9]+}/bids", a.placeBid).Methods(http.MethodPost)
	api.HandleFunc("/auctions/{id:[0-9]+}/finalize", a.finalize).Methods(http.MethodPost)
	api.HandleFunc("/auctions/{id:[0-9]+}/cancel", a.cancel).Methods(http.MethodPost)
	api.HandleFunc("/auctions/{id:[0-9]+}/ws", a.watchAuction).Methods(http.MethodGet)
	api.HandleFunc("/assets/{contract}/{assetID:[0-9]+}/auction", a.lookup).Methods(http.MethodGet)
	api.HandleFunc("/events", a.events).Methods(http.MethodGet)
	api.HandleFunc("/events/ws", a.watchAll).Methods(http.MethodGet)
	api.HandleFunc("/attestation", a.attest).Methods(http.MethodGet)

	router.Use(a.logging)
	api.Use(a.rateLimit)
	return router
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	seq, hash := a.handler.Registry().Head()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"head_seq":  seq,
		"head_hash": hash,
		"time":      time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) createAuction(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		a.respondError(w, err)
		return
	}

	var req auctionapi.CreateAuctionRequest
	if err := decodeBody(w, r, &req); err != nil {
		a.respondError(w, err)
		return
	}
	req.Type = auctionapi.TypeCreateRequest
	req.Caller = caller

	resp, err := a.handler.Create(r.Context(), req)
	if err != nil {
		a.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (a *API) listAuctions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := core.AuctionFilter{
		State:  core.AuctionState(query.Get("state")),
		Seller: core.Identity(query.Get("seller")),
	}
	respondJSON(w, http.StatusOK, a.handler.Auctions(filter))
}

func (a *API) getAuction(w http.ResponseWriter, r *http.Request) {
	id, err := auctionID(r)
	if err != nil {
		a.respondError(w, err)
		return
	}
	resp, err := a.handler.Auction(auctionapi.AuctionRequest{Type: auctionapi.TypeAuctionRequest, AuctionID: id})
	if err != nil {
		a.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

type bidBody struct {
	Amount decimal.Decimal `json:"amount"`
}

func (a *API) placeBid(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		a.respondError(w, err)
		return
	}
	id, err := auctionID(r)
	if err != nil {
		a.respondError(w, err)
		return
	}
	var body bidBody
	if err := decodeBody(w, r, &body); err != nil {
		a.respondError(w, err)
		return
	}

	resp, err := a.handler.Bid(r.Context(), auctionapi.BidRequest{
		Type:      auctionapi.TypeBidRequest,
		Caller:    caller,
		AuctionID: id,
		Amount:    body.Amount,
	})
	if err != nil {
		a.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (a *API) finalize(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		a.respondError(w, err)
		return
	}
	id, err := auctionID(r)
	if err != nil {
		a.respondError(w, err)
		return
	}
	resp, err := a.handler.Finalize(r.Context(), auctionapi.FinalizeRequest{
		Type:      auctionapi.TypeFinalizeRequest,
		Caller:    caller,
		AuctionID: id,
	})
	if err != nil {
		a.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (a *API) cancel(w http.ResponseWriter, r *http.Request) {
	caller, err := callerOf(r)
	if err != nil {
		a.respondError(w, err)
		return
	}
	id, err := auctionID(r)
	if err != nil {
		a.respondError(w, err)
		return
	}
	resp, err := a.handler.Cancel(r.Context(), auctionapi.CancelRequest{
		Type:      auctionapi.TypeCancelRequest,
		Caller:    caller,
		AuctionID: id,
	})
	if err != nil {
		a.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (a *API) lookup(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	assetID, err := strconv.ParseUint(vars["assetID"], 10, 64)
	if err != nil {
		a.respondError(w, badRequestError{fmt.Sprintf("invalid asset id %q", vars["assetID"])})
		return
	}

	resp := a.handler.Lookup(auctionapi.LookupRequest{
		Type:          auctionapi.TypeLookupRequest,
		AssetContract: core.Identity(vars["contract"]),
		AssetID:       assetID,
	})
	if !resp.Found {
		a.respondError(w, fmt.Errorf("%w: no active auction for %s/%d", core.ErrAuctionNotFound, vars["contract"], assetID))
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (a *API) events(w http.ResponseWriter, r *http.Request) {
	req := auctionapi.EventsRequest{Type: auctionapi.TypeEventsRequest}
	query := r.URL.Query()

	var err error
	if v := query.Get("after_seq"); v != "" {
		if req.AfterSeq, err = strconv.ParseUint(v, 10, 64); err != nil {
			a.respondError(w, badRequestError{fmt.Sprintf("invalid after_seq %q", v)})
			return
		}
	}
	if v := query.Get("auction_id"); v != "" {
		if req.AuctionID, err = strconv.ParseUint(v, 10, 64); err != nil {
			a.respondError(w, badRequestError{fmt.Sprintf("invalid auction_id %q", v)})
			return
		}
	}

	resp, err := a.handler.Events(req)
	if err != nil {
		a.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (a *API) attest(w http.ResponseWriter, r *http.Request) {
	resp, err := a.handler.Attest(auctionapi.AttestRequest{
		Type:  auctionapi.TypeAttestRequest,
		Nonce: r.URL.Query().Get("nonce"),
	})
	if err != nil {
		a.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (a *API) watchAuction(w http.ResponseWriter, r *http.Request) {
	id, err := auctionID(r)
	if err != nil {
		a.respondError(w, err)
		return
	}
	if _, ok := a.handler.Registry().GetAuction(id); !ok {
		a.respondError(w, fmt.Errorf("%w: auction %d", core.ErrAuctionNotFound, id))
		return
	}
	a.upgrade(w, r, id)
}

func (a *API) watchAll(w http.ResponseWriter, r *http.Request) {
	a.upgrade(w, r, allAuctions)
}

func (a *API) upgrade(w http.ResponseWriter, r *http.Request, id uint64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		a.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	a.hub.serve(conn, id)
}

func callerOf(r *http.Request) (core.Identity, error) {
	caller := r.Header.Get(CallerHeader)
	if caller == "" {
		return "", errMissingCaller
	}
	return core.Identity(caller), nil
}

func auctionID(r *http.Request) (uint64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, badRequestError{fmt.Sprintf("invalid auction id %q", raw)}
	}
	return id, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return badRequestError{fmt.Sprintf("invalid request body: %v", err)}
	}
	return nil
}
