// Command archiver copies published auction events from JetStream into a
// SQL archive.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/cloudx-io/nftauction/archive"
	"github.com/cloudx-io/nftauction/config"
)

func main() {
	cfg, err := config.LoadArchiver()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("archiver stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Archiver, logger *slog.Logger) error {
	store, err := archive.Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.InitSchema(ctx); err != nil {
		return err
	}

	var opts []archive.ConsumerOption
	opts = append(opts, archive.WithLogger(logger))
	if cfg.ReceiptKeyPath != "" {
		pem, err := os.ReadFile(cfg.ReceiptKeyPath)
		if err != nil {
			return fmt.Errorf("failed to read receipt key: %w", err)
		}
		opts = append(opts, archive.WithReceiptKey(string(pem)))
	}

	nc, err := nats.Connect(cfg.NATSURL, nats.Name("auction-archiver"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	consumer, err := archive.NewConsumer(setupCtx, js, store, cfg.Durable, opts...)
	if err != nil {
		return err
	}

	return consumer.Run(ctx)
}
