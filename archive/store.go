// Package archive persists published auction events in a SQL database.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/cloudx-io/nftauction/auctionapi"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS auction_events (
		id          VARCHAR(64) PRIMARY KEY,
		seq         BIGINT NOT NULL,
		type        VARCHAR(32) NOT NULL,
		auction_id  BIGINT NOT NULL,
		actor       VARCHAR(255) NOT NULL,
		amount      TEXT NOT NULL,
		occurred_at BIGINT NOT NULL,
		prev_hash   CHAR(64) NOT NULL,
		hash        CHAR(64) NOT NULL,
		payload     TEXT NOT NULL,
		receipt     TEXT NOT NULL DEFAULT '',
		archived_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_auction_events_auction_id ON auction_events(auction_id)`,
	`CREATE INDEX IF NOT EXISTS idx_auction_events_seq ON auction_events(seq)`,
}

// Store is an append-only table of event envelopes keyed by event id.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open connects with the given driver and pings the database.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported archive driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite has a single writer, and every ":memory:" connection is a separate database
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// InitSchema creates the events table and its indexes.
func (s *Store) InitSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// InsertEvent stores the envelope unless an event with the same id is
// already archived. It reports whether a row was written.
func (s *Store) InsertEvent(ctx context.Context, env auctionapi.EventEnvelope) (bool, error) {
	e := env.Event
	if e.ID == "" {
		return false, fmt.Errorf("event id is required")
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("failed to marshal event: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO auction_events
			(id, seq, type, auction_id, actor, amount, occurred_at, prev_hash, hash, payload, receipt, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, int64(e.Seq), string(e.Type), int64(e.AuctionID), string(e.Actor), e.Amount.String(),
		e.Timestamp.UnixNano(), e.PrevHash, e.Hash, string(payload), env.Receipt.String(),
		s.now().UTC().UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert event %s: %w", e.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// EventsForAuction returns the archived events of one auction in journal order.
func (s *Store) EventsForAuction(ctx context.Context, auctionID uint64) ([]auctionapi.EventEnvelope, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload, receipt FROM auction_events
		WHERE auction_id = $1
		ORDER BY seq`, int64(auctionID))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return scanEnvelopes(rows)
}

// Events returns up to limit archived events with a sequence number above afterSeq.
func (s *Store) Events(ctx context.Context, afterSeq uint64, limit int) ([]auctionapi.EventEnvelope, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload, receipt FROM auction_events
		WHERE seq > $1
		ORDER BY seq
		LIMIT $2`, int64(afterSeq), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return scanEnvelopes(rows)
}

func scanEnvelopes(rows *sql.Rows) ([]auctionapi.EventEnvelope, error) {
	defer rows.Close()

	var envs []auctionapi.EventEnvelope
	for rows.Next() {
		var payload, receipt string
		if err := rows.Scan(&payload, &receipt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		env := auctionapi.EventEnvelope{Receipt: auctionapi.ReceiptBase64(receipt)}
		if err := json.Unmarshal([]byte(payload), &env.Event); err != nil {
			return nil, fmt.Errorf("failed to decode archived event: %w", err)
		}
		envs = append(envs, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return envs, nil
}
