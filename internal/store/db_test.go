// Threadsync - Realtime Session Synchronization Server
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadsync

package store

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/threadsync/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Format: "console", Output: io.Discard})
}

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type record struct {
	Name string `json:"name"`
}

func TestGetSetJSON(t *testing.T) {
	db := openTestDB(t)

	err := db.Update(func(txn *badger.Txn) error {
		return SetJSON(txn, "rec:1", record{Name: "one"})
	})
	if err != nil {
		t.Fatalf("SetJSON() error = %v", err)
	}

	var got record
	err = db.View(func(txn *badger.Txn) error {
		return GetJSON(txn, "rec:1", &got)
	})
	if err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if got.Name != "one" {
		t.Errorf("Name = %q, want %q", got.Name, "one")
	}

	err = db.View(func(txn *badger.Txn) error {
		return GetJSON(txn, "rec:missing", &got)
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing key error = %v, want ErrNotFound", err)
	}
}

func TestScanPrefix_Order(t *testing.T) {
	db := openTestDB(t)

	times := []int64{300, 5, 1000, 42}
	err := db.Update(func(txn *badger.Txn) error {
		for _, ts := range times {
			if err := SetJSON(txn, "log:u1:"+TimeKey(ts), ts); err != nil {
				return err
			}
		}
		// Different prefix must not leak into the scan.
		return SetJSON(txn, "log:u2:"+TimeKey(1), int64(1))
	})
	if err != nil {
		t.Fatalf("seed error = %v", err)
	}

	var asc []int64
	_ = db.View(func(txn *badger.Txn) error {
		return ScanPrefix(txn, "log:u1:", "", func(key string, val []byte) error {
			ts, err := ParseTimeKey(key[len("log:u1:"):])
			if err != nil {
				return err
			}
			asc = append(asc, ts)
			return nil
		})
	})
	want := []int64{5, 42, 300, 1000}
	if len(asc) != len(want) {
		t.Fatalf("ascending scan = %v, want %v", asc, want)
	}
	for i := range want {
		if asc[i] != want[i] {
			t.Errorf("asc[%d] = %d, want %d", i, asc[i], want[i])
		}
	}

	var desc []int64
	_ = db.View(func(txn *badger.Txn) error {
		return ScanPrefixReverse(txn, "log:u1:", func(key string, val []byte) error {
			ts, _ := ParseTimeKey(key[len("log:u1:"):])
			desc = append(desc, ts)
			if len(desc) == 2 {
				return ErrStopScan
			}
			return nil
		})
	})
	if len(desc) != 2 || desc[0] != 1000 || desc[1] != 300 {
		t.Errorf("descending scan = %v, want [1000 300]", desc)
	}
}

func TestScanPrefix_From(t *testing.T) {
	db := openTestDB(t)

	_ = db.Update(func(txn *badger.Txn) error {
		for _, ts := range []int64{10, 20, 30} {
			if err := SetJSON(txn, "log:"+TimeKey(ts), ts); err != nil {
				return err
			}
		}
		return nil
	})

	var got []int64
	_ = db.View(func(txn *badger.Txn) error {
		return ScanPrefix(txn, "log:", "log:"+TimeKey(20), func(key string, val []byte) error {
			ts, _ := ParseTimeKey(key[len("log:"):])
			got = append(got, ts)
			return nil
		})
	})
	if len(got) != 2 || got[0] != 20 || got[1] != 30 {
		t.Errorf("scan from 20 = %v, want [20 30]", got)
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Fatal("expected error without path")
	}
}

func TestGCService_StopsOnCancel(t *testing.T) {
	db := openTestDB(t)
	svc := NewGCService(db, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("GC service did not stop")
	}
	if svc.String() != "store-gc" {
		t.Errorf("String() = %q", svc.String())
	}
}

func TestClock_StrictlyIncreasing(t *testing.T) {
	fixed := time.UnixMilli(1000)
	c := NewClockFrom(func() time.Time { return fixed })
	a, b, d := c.Next(), c.Next(), c.Next()
	if a != 1000 || b != 1001 || d != 1002 {
		t.Errorf("Next() = %d, %d, %d", a, b, d)
	}
}
