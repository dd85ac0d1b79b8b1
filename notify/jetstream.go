package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/cloudx-io/nftauction/auctionapi"
	"github.com/cloudx-io/nftauction/core"
)

const (
	// StreamName is the JetStream stream holding every published envelope.
	StreamName = "AUCTION_EVENTS"

	// SubjectPrefix is followed by the auction id, or "registry" for events
	// that belong to no auction.
	SubjectPrefix = "auction.events"
)

// scope names the auction an event belongs to.
func scope(e core.Event) string {
	if e.AuctionID == 0 {
		return "registry"
	}
	return strconv.FormatUint(e.AuctionID, 10)
}

// Subject returns the JetStream subject an event is published on.
func Subject(e core.Event) string {
	return SubjectPrefix + "." + scope(e)
}

// JetStreamSink publishes envelopes to a persistent JetStream stream.
type JetStreamSink struct {
	js jetstream.JetStream
}

// NewJetStreamSink ensures the stream exists.
func NewJetStreamSink(ctx context.Context, nc *nats.Conn) (*JetStreamSink, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Auction registry events",
		Subjects:    []string{SubjectPrefix + ".>"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Duplicates:  10 * time.Minute,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}

	return &JetStreamSink{js: js}, nil
}

// JetStream exposes the underlying context, for consumers sharing the connection.
func (s *JetStreamSink) JetStream() jetstream.JetStream { return s.js }

func (*JetStreamSink) Name() string { return "jetstream" }

// Publish sends the envelope with the event id as message id, so a
// redelivered event is deduplicated by the server.
func (s *JetStreamSink) Publish(ctx context.Context, env auctionapi.EventEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if _, err := s.js.Publish(ctx, Subject(env.Event), data, jetstream.WithMsgID(env.Event.ID)); err != nil {
		return fmt.Errorf("failed to publish to JetStream: %w", err)
	}
	return nil
}
