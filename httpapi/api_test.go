package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/nftauction/auctionapi"
	"github.com/cloudx-io/nftauction/core"
	"github.com/cloudx-io/nftauction/ledger"
	"github.com/cloudx-io/nftauction/server"
)

const custodian core.Identity = "auction-house"

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type testAPI struct {
	clock  *core.ManualClock
	tokens *ledger.Tokens
	hub    *Hub
	api    *API
	router http.Handler
}

func newTestAPI(t *testing.T, requestsPerSecond float64, burst int) *testAPI {
	t.Helper()

	clock := core.NewManualClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	assets := ledger.NewAssets()
	tokens := ledger.NewTokens()
	assert.NoError(t, ledger.SeedDemo(assets, tokens, custodian))

	registry, err := core.NewRegistry(custodian, "admin", assets.As(custodian), tokens.As(custodian),
		core.WithClock(clock), core.WithLogger(quiet))
	assert.NoError(t, err)

	hub := NewHub(quiet)
	t.Cleanup(hub.Close)
	api := New(server.NewHandler(registry, nil, nil, quiet), hub, requestsPerSecond, burst, quiet)
	return &testAPI{clock: clock, tokens: tokens, hub: hub, api: api, router: api.Routes()}
}

func (ta *testAPI) do(t *testing.T, method, path string, caller core.Identity, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		assert.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if caller != "" {
		req.Header.Set(CallerHeader, string(caller))
	}
	rec := httptest.NewRecorder()
	ta.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func createBody(assetID uint64) map[string]any {
	return map[string]any{
		"asset_contract":   ledger.DemoAssetContract,
		"asset_id":         assetID,
		"payment_token":    ledger.DemoPaymentToken,
		"min_price":        "100",
		"duration_seconds": 3600,
	}
}

func TestAPI_AuctionLifecycle(t *testing.T) {
	ta := newTestAPI(t, 0, 0)

	rec := ta.do(t, http.MethodPost, "/api/v1/auctions", ledger.DemoSeller, createBody(1))
	assert.Equal(t, http.StatusCreated, rec.Code)
	created := decode[auctionapi.CreateAuctionResponse](t, rec)
	check.Equal(t, uint64(1), created.AuctionID)
	check.Equal(t, ledger.DemoSeller, created.Auction.Seller)

	rec = ta.do(t, http.MethodPost, "/api/v1/auctions/1/bids", "alice", map[string]string{"amount": "150"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	action := decode[auctionapi.ActionResponse](t, rec)
	check.Equal(t, "150", action.Auction.Escrow.String())

	rec = ta.do(t, http.MethodPost, "/api/v1/auctions/1/bids", "bob", map[string]string{"amount": "120"})
	check.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	check.Equal(t, auctionapi.CodeBidTooLow, decode[auctionapi.ErrorResponse](t, rec).Code)

	rec = ta.do(t, http.MethodGet, "/api/v1/assets/demo-nft/1/auction", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	check.Equal(t, uint64(1), decode[auctionapi.LookupResponse](t, rec).AuctionID)

	rec = ta.do(t, http.MethodPost, "/api/v1/auctions/1/finalize", "carol", nil)
	check.Equal(t, http.StatusConflict, rec.Code)
	check.Equal(t, auctionapi.CodeTooEarly, decode[auctionapi.ErrorResponse](t, rec).Code)

	ta.clock.Advance(2 * time.Hour)
	rec = ta.do(t, http.MethodPost, "/api/v1/auctions/1/finalize", "carol", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	check.Equal(t, core.StateEnded, decode[auctionapi.ActionResponse](t, rec).Auction.State)
	check.Equal(t, "150", ta.tokens.BalanceOf(ledger.DemoPaymentToken, ledger.DemoSeller).String())

	rec = ta.do(t, http.MethodGet, "/api/v1/assets/demo-nft/1/auction", "", nil)
	check.Equal(t, http.StatusNotFound, rec.Code)

	rec = ta.do(t, http.MethodGet, "/api/v1/auctions?state=ended", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	check.Equal(t, 1, len(decode[auctionapi.AuctionListResponse](t, rec).Auctions))

	rec = ta.do(t, http.MethodGet, "/api/v1/auctions?state=active", "", nil)
	check.Equal(t, 0, len(decode[auctionapi.AuctionListResponse](t, rec).Auctions))

	rec = ta.do(t, http.MethodGet, "/api/v1/events?auction_id=1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	events := decode[auctionapi.EventsResponse](t, rec)
	assert.Equal(t, 3, len(events.Events))
	check.Equal(t, core.EventAuctionEnded, events.Events[2].Event.Type)
}

func TestAPI_Cancel(t *testing.T) {
	ta := newTestAPI(t, 0, 0)
	rec := ta.do(t, http.MethodPost, "/api/v1/auctions", ledger.DemoSeller, createBody(2))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = ta.do(t, http.MethodPost, "/api/v1/auctions/1/cancel", "alice", nil)
	check.Equal(t, http.StatusForbidden, rec.Code)

	rec = ta.do(t, http.MethodPost, "/api/v1/auctions/1/cancel", ledger.DemoSeller, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	check.Equal(t, core.StateCancelled, decode[auctionapi.ActionResponse](t, rec).Auction.State)

	rec = ta.do(t, http.MethodPost, "/api/v1/auctions/1/bids", "alice", map[string]string{"amount": "150"})
	check.Equal(t, http.StatusConflict, rec.Code)
	check.Equal(t, auctionapi.CodeAuctionNotActive, decode[auctionapi.ErrorResponse](t, rec).Code)
}

func TestAPI_BadRequests(t *testing.T) {
	ta := newTestAPI(t, 0, 0)

	tests := []struct {
		name   string
		method string
		path   string
		caller core.Identity
		body   any
		status int
		code   auctionapi.Code
	}{
		{"missing caller", http.MethodPost, "/api/v1/auctions", "", createBody(1), http.StatusBadRequest, auctionapi.CodeBadRequest},
		{"unknown field", http.MethodPost, "/api/v1/auctions", "seller", map[string]any{"price": 1}, http.StatusBadRequest, auctionapi.CodeBadRequest},
		{"malformed amount", http.MethodPost, "/api/v1/auctions/1/bids", "alice", map[string]string{"amount": "lots"}, http.StatusBadRequest, auctionapi.CodeBadRequest},
		{"unknown auction", http.MethodGet, "/api/v1/auctions/9", "", nil, http.StatusNotFound, auctionapi.CodeAuctionNotFound},
		{"invalid cursor", http.MethodGet, "/api/v1/events?after_seq=-1", "", nil, http.StatusBadRequest, auctionapi.CodeBadRequest},
		{"zero duration", http.MethodPost, "/api/v1/auctions", "seller", map[string]any{
			"asset_contract": "demo-nft", "asset_id": 1, "payment_token": "demo-usd", "min_price": "1",
		}, http.StatusBadRequest, auctionapi.CodeInvalidParameters},
		{"attestation outside enclave", http.MethodGet, "/api/v1/attestation", "", nil, http.StatusInternalServerError, auctionapi.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ta.do(t, tt.method, tt.path, tt.caller, tt.body)
			check.Equal(t, tt.status, rec.Code)
			check.Equal(t, tt.code, decode[auctionapi.ErrorResponse](t, rec).Code)
		})
	}
}

func TestAPI_RateLimit(t *testing.T) {
	ta := newTestAPI(t, 0.001, 2)

	check.Equal(t, http.StatusOK, ta.do(t, http.MethodGet, "/api/v1/auctions", "", nil).Code)
	check.Equal(t, http.StatusOK, ta.do(t, http.MethodGet, "/api/v1/auctions", "", nil).Code)

	rec := ta.do(t, http.MethodGet, "/api/v1/auctions", "", nil)
	check.Equal(t, http.StatusTooManyRequests, rec.Code)
	check.Equal(t, auctionapi.CodeServerBusy, decode[auctionapi.ErrorResponse](t, rec).Code)

	// Health checks are not limited
	check.Equal(t, http.StatusOK, ta.do(t, http.MethodGet, "/health", "", nil).Code)
}

func TestStatusFor(t *testing.T) {
	check.Equal(t, http.StatusNotFound, StatusFor(auctionapi.CodeAuctionNotFound))
	check.Equal(t, http.StatusForbidden, StatusFor(auctionapi.CodeNotAdmin))
	check.Equal(t, http.StatusServiceUnavailable, StatusFor(auctionapi.CodeStalePriceFeed))
	check.Equal(t, http.StatusInternalServerError, StatusFor(auctionapi.Code("unheard_of")))
}

func waitForSubscribers(t *testing.T, hub *Hub, auctionID uint64, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.SubscriberCount(auctionID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers for auction %d, got %d", n, auctionID, hub.SubscriberCount(auctionID))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	assert.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestHub_StreamsAuctionEvents(t *testing.T) {
	ta := newTestAPI(t, 0, 0)
	srv := httptest.NewServer(ta.router)
	defer srv.Close()

	rec := ta.do(t, http.MethodPost, "/api/v1/auctions", ledger.DemoSeller, createBody(1))
	assert.Equal(t, http.StatusCreated, rec.Code)

	watcher := dial(t, srv, "/api/v1/auctions/1/ws")
	firehose := dial(t, srv, "/api/v1/events/ws")
	waitForSubscribers(t, ta.hub, 1, 1)
	waitForSubscribers(t, ta.hub, allAuctions, 1)

	ctx := context.Background()
	other := auctionapi.EventEnvelope{Event: core.Event{Seq: 2, Type: core.EventAuctionCreated, AuctionID: 2}}
	mine := auctionapi.EventEnvelope{Event: core.Event{Seq: 3, Type: core.EventBidPlaced, AuctionID: 1}}
	assert.NoError(t, ta.hub.Publish(ctx, other))
	assert.NoError(t, ta.hub.Publish(ctx, mine))

	var got auctionapi.EventEnvelope
	assert.NoError(t, watcher.ReadJSON(&got))
	check.Equal(t, uint64(3), got.Event.Seq)

	assert.NoError(t, firehose.ReadJSON(&got))
	check.Equal(t, uint64(2), got.Event.Seq)
	assert.NoError(t, firehose.ReadJSON(&got))
	check.Equal(t, uint64(3), got.Event.Seq)

	_ = watcher.Close()
	waitForSubscribers(t, ta.hub, 1, 0)
}

func TestHub_UnknownAuction(t *testing.T) {
	ta := newTestAPI(t, 0, 0)
	srv := httptest.NewServer(ta.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/auctions/7/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	check.Error(t, err)
	assert.NotNil(t, resp)
	check.Equal(t, http.StatusNotFound, resp.StatusCode)
}
