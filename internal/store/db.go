// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package store

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/threadsync/internal/logging"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrClosed is returned by operations on a closed database.
var ErrClosed = errors.New("store: closed")

// Config controls how the database is opened.
type Config struct {
	// Path is the on-disk directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM. Used by tests and ephemeral deployments.
	InMemory bool

	// SyncWrites fsyncs every write.
	SyncWrites bool

	// GCInterval is how often value-log GC runs. Zero disables the service loop.
	GCInterval time.Duration

	// GCDiscardRatio is passed to RunValueLogGC.
	GCDiscardRatio float64
}

// DB wraps a badger database.
type DB struct {
	db  *badger.DB
	cfg Config
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("store path is required unless running in memory")
	}
	if cfg.GCDiscardRatio <= 0 || cfg.GCDiscardRatio >= 1 {
		cfg.GCDiscardRatio = 0.5
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Msg("store opened")

	return &DB{db: db, cfg: cfg}, nil
}

// OpenInMemory opens an ephemeral in-memory database.
func OpenInMemory() (*DB, error) {
	return Open(Config{InMemory: true})
}

// Badger exposes the underlying database.
func (d *DB) Badger() *badger.DB {
	return d.db
}

// View runs fn in a read-only transaction.
func (d *DB) View(fn func(txn *badger.Txn) error) error {
	return d.db.View(fn)
}

// Update runs fn in a read-write transaction.
func (d *DB) Update(fn func(txn *badger.Txn) error) error {
	return d.db.Update(fn)
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// TimeKey renders a millisecond timestamp so that key order equals time order.
func TimeKey(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%020d", ms)
}

// ParseTimeKey reverses TimeKey.
func ParseTimeKey(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// GetJSON loads key into v. Returns ErrNotFound when the key is absent.
func GetJSON(txn *badger.Txn, key string, v interface{}) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

// SetJSON stores v under key.
func SetJSON(txn *badger.Txn, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

// SetJSONWithTTL stores v under key with an expiry. A non-positive ttl stores
// the value without expiry.
func SetJSONWithTTL(txn *badger.Txn, key string, v interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		return SetJSON(txn, key, v)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.SetEntry(badger.NewEntry([]byte(key), data).WithTTL(ttl))
}

// Delete removes key, ignoring missing keys.
func Delete(txn *badger.Txn, key string) error {
	if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ScanPrefix calls fn for every key under prefix in ascending order, starting
// at from when it is non-empty. Returning ErrStopScan from fn ends the scan.
func ScanPrefix(txn *badger.Txn, prefix, from string, fn func(key string, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	start := []byte(prefix)
	if from != "" {
		start = []byte(from)
	}
	for it.Seek(start); it.ValidForPrefix([]byte(prefix)); it.Next() {
		if err := visit(it.Item(), fn); err != nil {
			if errors.Is(err, ErrStopScan) {
				return nil
			}
			return err
		}
	}
	return nil
}

// ScanPrefixReverse is ScanPrefix in descending key order.
func ScanPrefixReverse(txn *badger.Txn, prefix string, fn func(key string, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.Reverse = true
	it := txn.NewIterator(opts)
	defer it.Close()

	// Seeking past the last key of the prefix in reverse mode.
	seek := append([]byte(prefix), 0xFF)
	for it.Seek(seek); it.ValidForPrefix([]byte(prefix)); it.Next() {
		if err := visit(it.Item(), fn); err != nil {
			if errors.Is(err, ErrStopScan) {
				return nil
			}
			return err
		}
	}
	return nil
}

// ErrStopScan ends a scan early without error.
var ErrStopScan = errors.New("store: stop scan")

func visit(item *badger.Item, fn func(key string, val []byte) error) error {
	key := string(item.KeyCopy(nil))
	return item.Value(func(val []byte) error {
		return fn(key, val)
	})
}
