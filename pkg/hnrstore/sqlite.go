package hnrstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	// Registers the pure-Go "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/eunmann/osm-addr-index/pkg/address"
	"github.com/eunmann/osm-addr-index/pkg/housenumber"
	"github.com/eunmann/osm-addr-index/pkg/logging"
	"github.com/eunmann/osm-addr-index/pkg/region"
)

// Config holds configuration for the SQLite store.
type Config struct {
	// Path is the database file path.
	Path string
	// Synchronous sets the SQLite synchronous pragma: OFF, NORMAL or FULL.
	Synchronous string
	// BusyTimeout is how long a connection waits on a lock held by another
	// process before failing.
	BusyTimeout time.Duration
}

// DefaultConfig returns the default configuration for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:        path,
		Synchronous: "NORMAL",
		BusyTimeout: 5 * time.Second,
	}
}

// Validate checks configuration values and returns an error for invalid settings.
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("path is required")
	}
	switch c.Synchronous {
	case "", "OFF", "NORMAL", "FULL":
	default:
		return fmt.Errorf("invalid Synchronous value %q: must be OFF, NORMAL, or FULL", c.Synchronous)
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("BusyTimeout must be non-negative, got %s", c.BusyTimeout)
	}
	return nil
}

// dsn builds a modernc.org/sqlite DSN that applies the pragmas to every
// pooled connection.
func (c *Config) dsn() string {
	mode := c.Synchronous
	if mode == "" {
		mode = "NORMAL"
	}
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("synchronous(%s)", mode))
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", c.BusyTimeout.Milliseconds()))
	return "file:" + c.Path + "?" + q.Encode()
}

// SQLiteStore persists range lists in a SQLite key-value table.
// It is safe for concurrent use by multiple pipelines.
type SQLiteStore struct {
	db       *sql.DB
	cfg      Config
	resolver region.Resolver
	locks    keyLocks

	// writeMu serializes write transactions from this process.
	writeMu sync.Mutex
	closed  bool
}

// OpenSQLite creates or opens the store at cfg.Path. A nil resolver uses
// region.Default().
func OpenSQLite(cfg Config, res region.Resolver) (*SQLiteStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := logging.WithPhase("store_open")

	db, err := sql.Open("sqlite", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	log.Info().
		Str("db_path", cfg.Path).
		Str("synchronous", cfg.Synchronous).
		Msg("opened house-number range store")

	return &SQLiteStore{
		db:       db,
		cfg:      cfg,
		resolver: resolverOrDefault(res),
	}, nil
}

func createSchema(db *sql.DB) error {
	const createRanges = `
		CREATE TABLE IF NOT EXISTS hnr_ranges (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at TEXT NOT NULL
		)
	`
	if _, err := db.Exec(createRanges); err != nil {
		return fmt.Errorf("create hnr_ranges table: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore) key(r region.WorldRegion, street address.StreetName) (string, error) {
	abbr, err := s.resolver.Abbreviation(r)
	if err != nil {
		return "", err
	}
	return Key(abbr, street), nil
}

// LoadExistingStreetRanges implements RangeLoader.
func (s *SQLiteStore) LoadExistingStreetRanges(ctx context.Context, r region.WorldRegion, street address.StreetName) ([]housenumber.Range, bool, error) {
	key, err := s.key(r, street)
	if err != nil {
		return nil, false, err
	}

	var data []byte
	err = s.db.QueryRowContext(ctx, "SELECT value FROM hnr_ranges WHERE key = ?", key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query %q: %w", key, err)
	}

	ranges, err := DecodeRanges(data)
	if err != nil {
		return nil, false, fmt.Errorf("decode %q: %w", key, err)
	}
	return ranges, true, nil
}

// StoreHouseNumberRanges implements RangeStorer.
func (s *SQLiteStore) StoreHouseNumberRanges(ctx context.Context, r region.WorldRegion, street address.StreetName, ranges []housenumber.Range) error {
	key, err := s.key(r, street)
	if err != nil {
		return err
	}
	data := EncodeRanges(ranges)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO hnr_ranges (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, data, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %q: %w", key, err)
	}
	return nil
}

// LockStreet implements StreetLocker.
func (s *SQLiteStore) LockStreet(r region.WorldRegion, street address.StreetName) func() {
	key, err := s.key(r, street)
	if err != nil {
		return func() {}
	}
	return s.locks.lock(key)
}

// Keys returns the stored keys with the given prefix in sorted order.
func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM hnr_ranges WHERE instr(key, ?) = 1 ORDER BY key", prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}
