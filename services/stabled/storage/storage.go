package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/glebarez/sqlite"
)

// Storage wraps the stabled relational store: the KYC registry and the oracle
// reading history.
type Storage struct {
	db *sql.DB
}

var (
	// ErrPathRequired is returned when the backing store path is missing.
	ErrPathRequired = errors.New("stabled storage path must be configured")
	// ErrSnapshotNotFound is returned when a feed has no recorded reading.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(path string) (*Storage, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordSample persists a raw reading returned by one source.
func (s *Storage) RecordSample(ctx context.Context, feed, source string, mantissa int64, observed, recorded time.Time) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO oracle_samples(feed, source, mantissa, observed_at, recorded_at)
        VALUES(?, ?, ?, ?, ?)
    `, feedKey(feed), strings.ToLower(strings.TrimSpace(source)), mantissa, observed.UTC().Unix(), recorded.UTC())
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// RecordSnapshot stores the aggregated reading published for a feed.
func (s *Storage) RecordSnapshot(ctx context.Context, snap Snapshot) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO oracle_snapshots(feed, mantissa, sources, proof_id, observed_at, recorded_at)
        VALUES(?, ?, ?, ?, ?, ?)
    `, feedKey(snap.Feed), snap.Mantissa, strings.Join(snap.Sources, ","), snap.ProofID, snap.ObservedAt.UTC().Unix(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent aggregated reading for the feed.
func (s *Storage) LatestSnapshot(ctx context.Context, feed string) (Snapshot, error) {
	result := Snapshot{}
	if s == nil {
		return result, fmt.Errorf("storage not configured")
	}
	row := s.db.QueryRowContext(ctx, `
        SELECT feed, mantissa, sources, proof_id, observed_at
        FROM oracle_snapshots
        WHERE feed = ?
        ORDER BY id DESC
        LIMIT 1
    `, feedKey(feed))
	var (
		sources  string
		observed int64
	)
	if err := row.Scan(&result.Feed, &result.Mantissa, &sources, &result.ProofID, &observed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, ErrSnapshotNotFound
		}
		return result, fmt.Errorf("query snapshot: %w", err)
	}
	if sources != "" {
		result.Sources = strings.Split(sources, ",")
	}
	result.ObservedAt = time.Unix(observed, 0).UTC()
	return result, nil
}

// Snapshot captures an aggregated oracle reading.
type Snapshot struct {
	Feed       string
	Mantissa   int64
	Sources    []string
	ProofID    string
	ObservedAt time.Time
}

// SetKYC records the eligibility of an account.
func (s *Storage) SetKYC(ctx context.Context, account common.Address, verified bool, reference string, now time.Time) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO kyc_accounts(address, verified, reference, updated_at)
        VALUES(?, ?, ?, ?)
        ON CONFLICT(address) DO UPDATE SET
            verified = excluded.verified,
            reference = excluded.reference,
            updated_at = excluded.updated_at
    `, accountKey(account), verified, strings.TrimSpace(reference), now.UTC())
	if err != nil {
		return fmt.Errorf("upsert kyc: %w", err)
	}
	return nil
}

// Verified reports whether the account passed KYC. Unknown accounts are not
// verified.
func (s *Storage) Verified(ctx context.Context, account common.Address) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("storage not configured")
	}
	var verified bool
	err := s.db.QueryRowContext(ctx, `
        SELECT verified FROM kyc_accounts WHERE address = ?
    `, accountKey(account)).Scan(&verified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query kyc: %w", err)
	}
	return verified, nil
}

func feedKey(feed string) string {
	return strings.ToLower(strings.TrimSpace(feed))
}

func accountKey(account common.Address) string {
	return strings.ToLower(account.Hex())
}

const schema = `
CREATE TABLE IF NOT EXISTS oracle_samples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    feed TEXT NOT NULL,
    source TEXT NOT NULL,
    mantissa INTEGER NOT NULL,
    observed_at INTEGER NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_oracle_samples_feed_ts ON oracle_samples(feed, observed_at);

CREATE TABLE IF NOT EXISTS oracle_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    feed TEXT NOT NULL,
    mantissa INTEGER NOT NULL,
    sources TEXT NOT NULL,
    proof_id TEXT NOT NULL,
    observed_at INTEGER NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_oracle_snapshots_feed_ts ON oracle_snapshots(feed, observed_at);

CREATE TABLE IF NOT EXISTS kyc_accounts (
    address TEXT PRIMARY KEY,
    verified INTEGER NOT NULL,
    reference TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`
