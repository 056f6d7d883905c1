// Package statedb persists local state that must survive restarts: the
// durable upload ledger and per-hash archival records. Backed by SQLite
// with schema migrations embedded in the binary.
package statedb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/codelynx/photolala/internal/photolala"
	"github.com/codelynx/photolala/internal/statedb/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStateStore implements photolala.StateStore using SQLite.
type SQLiteStateStore struct {
	db   *sql.DB
	path string
}

var _ photolala.StateStore = (*SQLiteStateStore)(nil)

// Open opens (and if needed migrates) the state database at path.
// path can be a file path or ":memory:" for an in-memory database.
func Open(path string) (*SQLiteStateStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating state database: %w", err)
	}

	return &SQLiteStateStore{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection with the
// appropriate PRAGMAs. Exported for tools and tests that need a properly
// configured connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// CheckMigrations verifies the schema is at the latest version.
func (s *SQLiteStateStore) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

// RecordUpload marks (contentHash, kind) as uploaded. Idempotent: a
// repeated record keeps the original upload time.
func (s *SQLiteStateStore) RecordUpload(contentHash string, kind photolala.ArtifactKind, at time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO uploads (content_hash, kind, uploaded_at) VALUES (?, ?, ?)
		 ON CONFLICT (content_hash, kind) DO NOTHING`,
		contentHash, string(kind), at.Unix(),
	)
	if err != nil {
		return fmt.Errorf("recording upload: %w", err)
	}
	return nil
}

// HasUpload reports whether (contentHash, kind) was ever uploaded.
func (s *SQLiteStateStore) HasUpload(contentHash string, kind photolala.ArtifactKind) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM uploads WHERE content_hash = ? AND kind = ?`,
		contentHash, string(kind),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying upload ledger: %w", err)
	}
	return true, nil
}

// GetArchivalRecord returns the archival record for a hash, or nil.
func (s *SQLiteStateStore) GetArchivalRecord(contentHash string) (*photolala.ArchivalRecord, error) {
	return s.queryArchivalRecord(`SELECT content_hash, tier, thaw_handle, urgency, requested_at, eta, retention_until
		FROM archival_records WHERE content_hash = ?`, contentHash)
}

// FindArchivalRecordByHandle returns the record carrying the given thaw
// handle, or nil.
func (s *SQLiteStateStore) FindArchivalRecordByHandle(handle string) (*photolala.ArchivalRecord, error) {
	if handle == "" {
		return nil, nil
	}
	return s.queryArchivalRecord(`SELECT content_hash, tier, thaw_handle, urgency, requested_at, eta, retention_until
		FROM archival_records WHERE thaw_handle = ?`, handle)
}

func (s *SQLiteStateStore) queryArchivalRecord(query string, arg any) (*photolala.ArchivalRecord, error) {
	var (
		rec                       photolala.ArchivalRecord
		tier, urgency             string
		requested, eta, retention int64
	)
	err := s.db.QueryRow(query, arg).Scan(
		&rec.ContentHash, &tier, &rec.ThawHandle, &urgency, &requested, &eta, &retention,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying archival record: %w", err)
	}

	rec.Tier = photolala.Tier(tier)
	rec.Urgency = photolala.Urgency(urgency)
	rec.RequestedAt = fromUnix(requested)
	rec.ETA = fromUnix(eta)
	rec.RetentionUntil = fromUnix(retention)
	return &rec, nil
}

// PutArchivalRecord inserts or replaces the record for its hash.
func (s *SQLiteStateStore) PutArchivalRecord(rec *photolala.ArchivalRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO archival_records (content_hash, tier, thaw_handle, urgency, requested_at, eta, retention_until)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (content_hash) DO UPDATE SET
		   tier = excluded.tier,
		   thaw_handle = excluded.thaw_handle,
		   urgency = excluded.urgency,
		   requested_at = excluded.requested_at,
		   eta = excluded.eta,
		   retention_until = excluded.retention_until`,
		rec.ContentHash, string(rec.Tier), rec.ThawHandle, string(rec.Urgency),
		toUnix(rec.RequestedAt), toUnix(rec.ETA), toUnix(rec.RetentionUntil),
	)
	if err != nil {
		return fmt.Errorf("storing archival record: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStateStore) Close() error {
	return s.db.Close()
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
