// Package server serves framed JSON requests: one request per connection,
// dispatched on its "type" field, answered with one JSON response.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/mdlayher/vsock"

	"github.com/cloudx-io/nftauction/auctionapi"
)

const (
	defaultReadTimeout = 30 * time.Second
	maxRequestBytes    = 1 << 20
)

// Server accepts connections and runs each on a bounded worker pool.
type Server struct {
	handler     *Handler
	maxWorkers  int
	readTimeout time.Duration
	logger      *slog.Logger
}

// New creates a server running at most maxWorkers requests at once.
func New(handler *Handler, maxWorkers int, logger *slog.Logger) (*Server, error) {
	if handler == nil {
		return nil, errors.New("server: handler is required")
	}
	if maxWorkers <= 0 {
		return nil, fmt.Errorf("server: max workers must be positive, got %d", maxWorkers)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		handler:     handler,
		maxWorkers:  maxWorkers,
		readTimeout: defaultReadTimeout,
		logger:      logger.With("component", "server"),
	}, nil
}

// ListenVsock listens on a vsock port, the only channel into a Nitro enclave.
func ListenVsock(port uint32) (net.Listener, error) {
	listener, err := vsock.Listen(port, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create vsock listener: %w", err)
	}
	return listener, nil
}

// ListenTCP listens on a TCP address, for running outside an enclave.
func ListenTCP(addr string) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create tcp listener: %w", err)
	}
	return listener, nil
}

// Serve accepts connections until ctx is cancelled or the listener fails.
// Connections arriving while every worker is busy are answered with a
// server_busy error and closed.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	s.logger.Info("listening", "addr", listener.Addr().String(), "max_workers", s.maxWorkers)
	semaphore := make(chan struct{}, s.maxWorkers)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Error("failed to accept connection", "error", err)
			continue
		}

		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }()
				s.handleConnection(ctx, c)
			}(conn)
		default:
			s.logger.Warn("no workers available, rejecting connection")
			s.reject(conn)
		}
	}
}

func (s *Server) reject(conn net.Conn) {
	defer func() {
		if err := conn.Close(); err != nil {
			s.logger.Error("failed to close rejected connection", "error", err)
		}
	}()
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = json.NewEncoder(conn).Encode(auctionapi.ErrorResponse{
		Type:    auctionapi.TypeError,
		Code:    auctionapi.CodeServerBusy,
		Message: "no workers available",
	})
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic recovered in handleConnection", "panic", r)
		}
		if err := conn.Close(); err != nil {
			s.logger.Error("failed to close connection", "error", err)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(conn, maxRequestBytes)); err != nil {
		s.logger.Error("failed to read request", "error", err)
		return
	}

	response := s.Dispatch(ctx, buf.Bytes())

	if err := json.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// Dispatch decodes one request and returns its response.
func (s *Server) Dispatch(ctx context.Context, data []byte) any {
	var base auctionapi.Request
	if err := json.Unmarshal(data, &base); err != nil {
		return badRequest(fmt.Sprintf("failed to decode request: %v", err))
	}

	logger := s.logger.With("type", base.Type)
	logger.Debug("received request")

	var (
		response any
		err      error
	)

	switch base.Type {
	case auctionapi.TypePing:
		response = auctionapi.PongResponse{Type: auctionapi.TypePong, Message: "auction server is healthy"}

	case auctionapi.TypeCreateRequest:
		var req auctionapi.CreateAuctionRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return badRequest(fmt.Sprintf("failed to decode create request: %v", err))
		}
		response, err = s.handler.Create(ctx, req)

	case auctionapi.TypeBidRequest:
		var req auctionapi.BidRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return badRequest(fmt.Sprintf("failed to decode bid request: %v", err))
		}
		response, err = s.handler.Bid(ctx, req)

	case auctionapi.TypeFinalizeRequest:
		var req auctionapi.FinalizeRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return badRequest(fmt.Sprintf("failed to decode finalize request: %v", err))
		}
		response, err = s.handler.Finalize(ctx, req)

	case auctionapi.TypeCancelRequest:
		var req auctionapi.CancelRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return badRequest(fmt.Sprintf("failed to decode cancel request: %v", err))
		}
		response, err = s.handler.Cancel(ctx, req)

	case auctionapi.TypeAuctionRequest:
		var req auctionapi.AuctionRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return badRequest(fmt.Sprintf("failed to decode auction request: %v", err))
		}
		response, err = s.handler.Auction(req)

	case auctionapi.TypeLookupRequest:
		var req auctionapi.LookupRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return badRequest(fmt.Sprintf("failed to decode lookup request: %v", err))
		}
		response = s.handler.Lookup(req)

	case auctionapi.TypeEventsRequest:
		var req auctionapi.EventsRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return badRequest(fmt.Sprintf("failed to decode events request: %v", err))
		}
		response, err = s.handler.Events(req)

	case auctionapi.TypeAttestRequest:
		var req auctionapi.AttestRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return badRequest(fmt.Sprintf("failed to decode attest request: %v", err))
		}
		response, err = s.handler.Attest(req)

	default:
		return badRequest(fmt.Sprintf("unknown request type: %s", base.Type))
	}

	if err != nil {
		logger.Warn("request rejected", "error", err)
		return auctionapi.NewErrorResponse(err)
	}
	return response
}

func badRequest(message string) auctionapi.ErrorResponse {
	return auctionapi.ErrorResponse{
		Type:    auctionapi.TypeError,
		Code:    auctionapi.CodeBadRequest,
		Message: message,
	}
}

// Call sends one request over conn and decodes the response into resp.
// The write side is closed after the request so the server sees EOF.
func Call(ctx context.Context, conn net.Conn, req, resp any) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			return fmt.Errorf("failed to close write side: %w", err)
		}
	}

	if err := json.NewDecoder(conn).Decode(resp); err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	return nil
}
