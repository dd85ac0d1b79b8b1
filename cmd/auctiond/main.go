// Command auctiond runs the auction registry behind the framed JSON server
// and, optionally, the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/cloudx-io/nftauction/audit"
	"github.com/cloudx-io/nftauction/config"
	"github.com/cloudx-io/nftauction/core"
	"github.com/cloudx-io/nftauction/httpapi"
	"github.com/cloudx-io/nftauction/ledger"
	"github.com/cloudx-io/nftauction/notify"
	"github.com/cloudx-io/nftauction/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("auctiond stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	signer, err := audit.LoadOrCreateSigner(cfg.SigningKeyPath)
	if err != nil {
		return fmt.Errorf("failed to initialize receipt signer: %w", err)
	}
	logger.Info("receipt signer ready", "key_id", signer.KeyID())

	attester, err := newAttester(cfg.Attestation)
	if err != nil {
		return err
	}

	custodian := core.Identity(cfg.Custodian)
	assets := ledger.NewAssets()
	tokens := ledger.NewTokens()
	if cfg.DemoSeed {
		if err := ledger.SeedDemo(assets, tokens, custodian); err != nil {
			return err
		}
		logger.Info("demo ledgers seeded", "asset_contract", ledger.DemoAssetContract, "payment_token", ledger.DemoPaymentToken)
	}

	hub := httpapi.NewHub(logger)
	defer hub.Close()
	sinks := []notify.Sink{hub}

	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("auctiond"))
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Close()

		setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		sink, err := notify.NewJetStreamSink(setupCtx, nc)
		cancel()
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
		logger.Info("publishing events to JetStream", "stream", notify.StreamName)
	}

	if cfg.RedisAddr != "" {
		sink, err := notify.NewRedisSink(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer sink.Close()
		sinks = append(sinks, sink)
		logger.Info("publishing events to Redis", "addr", cfg.RedisAddr)
	}

	dispatcher := notify.NewDispatcher(sinks,
		notify.WithSigner(signer),
		notify.WithQueueSize(cfg.EventQueueSize),
		notify.WithPublishTimeout(cfg.PublishTimeout),
		notify.WithLogger(logger),
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := dispatcher.Close(closeCtx); err != nil {
			logger.Error("failed to drain event queue", "error", err, "dropped", dispatcher.Dropped())
		}
	}()

	registry, err := core.NewRegistry(custodian, core.Identity(cfg.Admin), assets.As(custodian), tokens.As(custodian),
		core.WithEmitter(dispatcher),
		core.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	if cfg.DemoFeedPrice > 0 {
		feed := ledger.NewStaticFeed(cfg.DemoFeedPrice, cfg.DemoFeedDecimals, cfg.DemoFeedMaxAge, core.SystemClock{})
		if err := registry.SetPriceFeed(ctx, core.Identity(cfg.Admin), ledger.DemoPaymentToken, feed, cfg.DemoFloor); err != nil {
			return fmt.Errorf("failed to configure demo price feed: %w", err)
		}
	}

	handler := server.NewHandler(registry, signer, attester, logger)
	srv, err := server.New(handler, cfg.MaxWorkers, logger)
	if err != nil {
		return err
	}

	listener, err := listen(cfg)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() { errCh <- srv.Serve(ctx, listener) }()

	if cfg.HTTPAddr != "" {
		api := httpapi.New(handler, hub, cfg.RateLimit, cfg.RateBurst, logger)
		httpSrv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP API listening", "addr", cfg.HTTPAddr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("HTTP API failed: %w", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

func newAttester(mode string) (audit.Attester, error) {
	switch mode {
	case config.AttestationNitro:
		return audit.NitroAttester()
	case config.AttestationMock:
		return &audit.MockAttester{}, nil
	default:
		return nil, nil
	}
}

func listen(cfg config.Config) (net.Listener, error) {
	if cfg.Listener == config.ListenerVsock {
		return server.ListenVsock(cfg.VsockPort)
	}
	return server.ListenTCP(cfg.TCPAddr)
}
