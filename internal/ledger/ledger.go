// Package ledger persists an append-only audit trail of the operations made
// through internal/api (deposits, withdrawals, chain-admin, subscription and
// whitelist mutations) to a local SQLite file. The scheduler's per-tick
// settlement charges and fee credits are not recorded here. It is a
// recovery/inspection aid, not a source of truth: the
// in-memory state.Store remains authoritative for every balance and
// subscription decision.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	_ "modernc.org/sqlite"
)

// Kind tags one audit event's category.
type Kind string

const (
	KindDeposit      Kind = "deposit"
	KindWithdraw     Kind = "withdraw"
	KindSettle       Kind = "settle"
	KindFeeCredit    Kind = "fee_credit"
	KindWhitelist    Kind = "whitelist"
	KindChainAdmin   Kind = "chain_admin"
	KindSubscription Kind = "subscription"
)

// Event is one recorded audit entry.
type Event struct {
	ID        int64
	Timestamp time.Time
	Kind      Kind
	ChainID   string
	Address   string
	Amount    string // decimal string, empty when not applicable
	SubID     uint64 // zero when not applicable
	Detail    string
}

// Store is a SQLite-backed append-only audit log.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the SQLite database at path and
// ensures its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: ping %s: %w", path, err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER NOT NULL,
	kind TEXT NOT NULL,
	chain_id TEXT NOT NULL,
	address TEXT NOT NULL,
	amount TEXT NOT NULL DEFAULT '',
	sub_id INTEGER NOT NULL DEFAULT 0,
	detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_address ON events(address);
CREATE INDEX IF NOT EXISTS idx_events_chain ON events(chain_id);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one event. now is passed in rather than taken from
// time.Now() so callers keep a single consistent clock read per operation.
func (s *Store) Record(ctx context.Context, now time.Time, kind Kind, chainID *big.Int, address string, amount *big.Int, subID uint64, detail string) error {
	chainKey := ""
	if chainID != nil {
		chainKey = chainID.String()
	}
	amountStr := ""
	if amount != nil {
		amountStr = amount.String()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (ts, kind, chain_id, address, amount, sub_id, detail) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		now.Unix(), string(kind), chainKey, address, amountStr, subID, detail,
	)
	if err != nil {
		return fmt.Errorf("ledger: record %s event: %w", kind, err)
	}
	return nil
}

// Query lists events matching the given optional address/chain filters,
// newest first, bounded by limit (0 means the package default of 100).
func (s *Store) Query(ctx context.Context, address, chainID string, offset, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, kind, chain_id, address, amount, sub_id, detail FROM events
		 WHERE (? = '' OR address = ?) AND (? = '' OR chain_id = ?)
		 ORDER BY id DESC LIMIT ? OFFSET ?`,
		address, address, chainID, chainID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: query: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e  Event
			ts int64
		)
		if err := rows.Scan(&e.ID, &ts, &e.Kind, &e.ChainID, &e.Address, &e.Amount, &e.SubID, &e.Detail); err != nil {
			return nil, fmt.Errorf("ledger: scan row: %w", err)
		}
		e.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
