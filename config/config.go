// Package config loads daemon settings from AUCTION_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

// Listener modes.
const (
	ListenerTCP   = "tcp"
	ListenerVsock = "vsock"
)

// Attestation modes.
const (
	AttestationNone  = "none"
	AttestationMock  = "mock"
	AttestationNitro = "nitro"
)

// Config holds every daemon setting. Empty connection settings disable the
// component they configure.
type Config struct {
	Listener   string `env:"AUCTION_LISTENER" envDefault:"tcp"`
	TCPAddr    string `env:"AUCTION_TCP_ADDR" envDefault:"127.0.0.1:5000"`
	VsockPort  uint32 `env:"AUCTION_VSOCK_PORT" envDefault:"5000"`
	MaxWorkers int    `env:"AUCTION_MAX_WORKERS,required"`
	HTTPAddr   string `env:"AUCTION_HTTP_ADDR"`

	Custodian string `env:"AUCTION_CUSTODIAN" envDefault:"auction-house"`
	Admin     string `env:"AUCTION_ADMIN" envDefault:"admin"`
	DemoSeed  bool   `env:"AUCTION_DEMO_SEED" envDefault:"false"`

	// Demo oracle for the demo payment token. A zero price disables it.
	DemoFeedPrice    int64           `env:"AUCTION_DEMO_FEED_PRICE" envDefault:"0"`
	DemoFeedDecimals int32           `env:"AUCTION_DEMO_FEED_DECIMALS" envDefault:"8"`
	DemoFeedMaxAge   time.Duration   `env:"AUCTION_DEMO_FEED_MAX_AGE" envDefault:"1h"`
	DemoFloor        decimal.Decimal `env:"AUCTION_DEMO_FLOOR" envDefault:"0"`

	SigningKeyPath string `env:"AUCTION_SIGNING_KEY_PATH"`
	Attestation    string `env:"AUCTION_ATTESTATION" envDefault:"none"`

	NATSURL        string        `env:"AUCTION_NATS_URL"`
	RedisAddr      string        `env:"AUCTION_REDIS_ADDR"`
	RedisPassword  string        `env:"AUCTION_REDIS_PASSWORD"`
	RedisDB        int           `env:"AUCTION_REDIS_DB" envDefault:"0"`
	EventQueueSize int           `env:"AUCTION_EVENT_QUEUE_SIZE" envDefault:"1024"`
	PublishTimeout time.Duration `env:"AUCTION_PUBLISH_TIMEOUT" envDefault:"5s"`

	RateLimit float64 `env:"AUCTION_RATE_LIMIT" envDefault:"100"`
	RateBurst int     `env:"AUCTION_RATE_BURST" envDefault:"200"`

	LogLevel slog.Level `env:"AUCTION_LOG_LEVEL" envDefault:"info"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that the parser cannot.
func (c Config) Validate() error {
	var errs []error

	switch c.Listener {
	case ListenerTCP, ListenerVsock:
	default:
		errs = append(errs, fmt.Errorf("AUCTION_LISTENER must be %q or %q, got %q", ListenerTCP, ListenerVsock, c.Listener))
	}
	switch c.Attestation {
	case AttestationNone, AttestationMock, AttestationNitro:
	default:
		errs = append(errs, fmt.Errorf("AUCTION_ATTESTATION must be none, mock or nitro, got %q", c.Attestation))
	}
	if c.MaxWorkers <= 0 {
		errs = append(errs, fmt.Errorf("AUCTION_MAX_WORKERS must be positive, got %d", c.MaxWorkers))
	}
	if c.Custodian == "" || c.Admin == "" {
		errs = append(errs, errors.New("AUCTION_CUSTODIAN and AUCTION_ADMIN must not be empty"))
	}
	if c.DemoFeedPrice < 0 || c.DemoFloor.IsNegative() {
		errs = append(errs, errors.New("demo feed price and floor must not be negative"))
	}
	if c.EventQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("AUCTION_EVENT_QUEUE_SIZE must be positive, got %d", c.EventQueueSize))
	}

	return errors.Join(errs...)
}

// Archiver holds the settings of the event archiver.
type Archiver struct {
	NATSURL string `env:"AUCTION_NATS_URL,required"`
	Driver  string `env:"AUCTION_ARCHIVE_DRIVER" envDefault:"sqlite"`
	DSN     string `env:"AUCTION_ARCHIVE_DSN" envDefault:"auction-archive.db"`
	Durable string `env:"AUCTION_ARCHIVE_DURABLE" envDefault:"auction-archiver"`

	// PEM public key receipts are checked against. Empty skips verification.
	ReceiptKeyPath string `env:"AUCTION_RECEIPT_KEY_PATH"`

	LogLevel slog.Level `env:"AUCTION_LOG_LEVEL" envDefault:"info"`
}

// LoadArchiver parses the archiver settings from the environment.
func LoadArchiver() (Archiver, error) {
	var cfg Archiver
	if err := env.Parse(&cfg); err != nil {
		return Archiver{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Durable == "" {
		return Archiver{}, errors.New("AUCTION_ARCHIVE_DURABLE must not be empty")
	}
	return cfg, nil
}
