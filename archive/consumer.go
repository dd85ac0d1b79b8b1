package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/cloudx-io/nftauction/auctionapi"
	"github.com/cloudx-io/nftauction/core"
	"github.com/cloudx-io/nftauction/notify"
	"github.com/cloudx-io/nftauction/validation"
)

// errPoison marks a message that can never be archived.
var errPoison = errors.New("archive: malformed envelope")

// message is the subset of jetstream.Msg the consumer acknowledges through.
type message interface {
	Data() []byte
	Ack() error
	Nak() error
	Term() error
}

// Consumer drains the event stream into a Store.
type Consumer struct {
	consumer   jetstream.Consumer
	store      *Store
	receiptKey string
	logger     *slog.Logger
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithReceiptKey verifies receipts against the PEM public key before archiving.
func WithReceiptKey(publicKeyPEM string) ConsumerOption {
	return func(c *Consumer) { c.receiptKey = publicKeyPEM }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) { c.logger = logger }
}

// NewConsumer creates or updates the durable consumer on the event stream.
func NewConsumer(ctx context.Context, js jetstream.JetStream, store *Store, durable string, opts ...ConsumerOption) (*Consumer, error) {
	c := &Consumer{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "archive")

	cons, err := js.CreateOrUpdateConsumer(ctx, notify.StreamName, jetstream.ConsumerConfig{
		Durable:       durable,
		Description:   "Auction event archiver",
		FilterSubject: notify.SubjectPrefix + ".>",
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    10,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	c.consumer = cons
	return c, nil
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	cc, err := c.consumer.Consume(func(msg jetstream.Msg) {
		c.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cc.Stop()

	c.logger.Info("archiving events", "stream", notify.StreamName)
	<-ctx.Done()
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg message) {
	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	inserted, env, err := c.process(dbCtx, msg.Data())
	switch {
	case errors.Is(err, errPoison):
		c.logger.Error("discarding event", "error", err)
		if err := msg.Term(); err != nil {
			c.logger.Error("failed to terminate message", "error", err)
		}
	case err != nil:
		c.logger.Warn("failed to archive event, will retry", "error", err)
		if err := msg.Nak(); err != nil {
			c.logger.Error("failed to nak message", "error", err)
		}
	default:
		if inserted {
			c.logger.Info("archived event", "seq", env.Event.Seq, "type", env.Event.Type, "auction_id", env.Event.AuctionID)
		}
		if err := msg.Ack(); err != nil {
			c.logger.Error("failed to ack message", "error", err)
		}
	}
}

// process validates and stores one envelope. Errors wrapping errPoison must
// not be retried.
func (c *Consumer) process(ctx context.Context, data []byte) (bool, auctionapi.EventEnvelope, error) {
	var env auctionapi.EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return false, env, fmt.Errorf("%w: %v", errPoison, err)
	}

	if computed := core.ComputeEventHash(env.Event); computed != env.Event.Hash {
		return false, env, fmt.Errorf("%w: event %d hash mismatch", errPoison, env.Event.Seq)
	}

	if c.receiptKey != "" {
		if err := c.verifyReceipt(env); err != nil {
			return false, env, err
		}
	}

	inserted, err := c.store.InsertEvent(ctx, env)
	return inserted, env, err
}

func (c *Consumer) verifyReceipt(env auctionapi.EventEnvelope) error {
	if env.Receipt == "" {
		c.logger.Warn("archiving unsigned event", "seq", env.Event.Seq)
		return nil
	}

	receipt, err := env.Receipt.Decode()
	if err != nil {
		return fmt.Errorf("%w: %v", errPoison, err)
	}
	result, err := validation.VerifyReceipt(receipt, c.receiptKey)
	if err != nil {
		return fmt.Errorf("%w: %v", errPoison, err)
	}
	if !result.IsValid() || result.Event.Hash != env.Event.Hash {
		return fmt.Errorf("%w: receipt does not match event %d", errPoison, env.Event.Seq)
	}
	return nil
}
