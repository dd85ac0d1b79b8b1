package httpapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cloudx-io/nftauction/auctionapi"
)

// badRequestError reports a malformed request that never reached the registry.
type badRequestError struct{ msg string }

func (e badRequestError) Error() string { return e.msg }

var statusCodes = map[auctionapi.Code]int{
	auctionapi.CodeInvalidParameters: http.StatusBadRequest,
	auctionapi.CodeBadRequest:        http.StatusBadRequest,
	auctionapi.CodeDuplicateListing:  http.StatusConflict,
	auctionapi.CodeAuctionNotFound:   http.StatusNotFound,
	auctionapi.CodeAuctionNotActive:  http.StatusConflict,
	auctionapi.CodeAuctionExpired:    http.StatusConflict,
	auctionapi.CodeTooEarly:          http.StatusConflict,
	auctionapi.CodeBidsAlreadyExist:  http.StatusConflict,
	auctionapi.CodeBidTooLow:         http.StatusUnprocessableEntity,
	auctionapi.CodeTransferFailed:    http.StatusUnprocessableEntity,
	auctionapi.CodeAssetNotApproved:  http.StatusUnprocessableEntity,
	auctionapi.CodeNotSeller:         http.StatusForbidden,
	auctionapi.CodeNotAssetOwner:     http.StatusForbidden,
	auctionapi.CodeNotAdmin:          http.StatusForbidden,
	auctionapi.CodeStalePriceFeed:    http.StatusServiceUnavailable,
	auctionapi.CodeServerBusy:        http.StatusTooManyRequests,
	auctionapi.CodeInternal:          http.StatusInternalServerError,
}

// StatusFor returns the HTTP status of an error code.
func StatusFor(code auctionapi.Code) int {
	if status, ok := statusCodes[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (a *API) respondError(w http.ResponseWriter, err error) {
	resp := auctionapi.NewErrorResponse(err)

	var bad badRequestError
	if errors.As(err, &bad) || errors.Is(err, errMissingCaller) {
		resp.Code = auctionapi.CodeBadRequest
	}

	status := StatusFor(resp.Code)
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", "error", err)
	}
	respondJSON(w, status, resp)
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack exposes the underlying connection for websocket upgrades.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("httpapi: response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (a *API) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Debug("request served",
			"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

func (a *API) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.limiter.Allow() {
			respondJSON(w, http.StatusTooManyRequests, auctionapi.ErrorResponse{
				Type:    auctionapi.TypeError,
				Code:    auctionapi.CodeServerBusy,
				Message: "rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
