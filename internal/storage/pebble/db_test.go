package pebblestore

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rzbill/listdb/internal/kv"
	"github.com/rzbill/listdb/internal/kv/kvtest"
)

type testMetrics struct {
	wrote        int
	read         int
	batchCommits int
	batchOps     int
	batchBytes   int
}

func (m *testMetrics) ObserveWrite(d time.Duration, bytes int) { m.wrote += bytes }
func (m *testMetrics) ObserveRead(d time.Duration, bytes int)  { m.read += bytes }
func (m *testMetrics) ObserveBatchCommit(d time.Duration, numOps int, bytes int) {
	m.batchCommits++
	m.batchOps += numOps
	m.batchBytes += bytes
}

func newTestDB(t *testing.T) (*DB, *testMetrics) {
	t.Helper()
	dir := t.TempDir()
	metrics := &testMetrics{}
	db, err := Open(Options{
		DataDir:       dir,
		Fsync:         FsyncModeInterval,
		FsyncInterval: 2 * time.Millisecond,
		Metrics:       metrics,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, metrics
}

func TestPebbleEngine(t *testing.T) {
	kvtest.TestAllCommon(t, func(t *testing.T) kv.Engine {
		db, _ := newTestDB(t)
		return db
	})
}

func TestCRUD(t *testing.T) {
	db, metrics := newTestDB(t)
	ctx := context.Background()

	key := []byte("k1")
	val := []byte("v1")
	if err := kv.Update(ctx, db, func(tx kv.Txn) error { return tx.Set(key, val) }); err != nil {
		t.Fatalf("set: %v", err)
	}

	err := kv.View(ctx, db, func(tx kv.Txn) error {
		got, err := tx.Get(key)
		if err != nil {
			return err
		}
		if string(got) != string(val) {
			t.Fatalf("got %q want %q", got, val)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if metrics.read == 0 {
		t.Fatalf("expected read metrics to record bytes")
	}
	if metrics.wrote == 0 {
		t.Fatalf("expected write metrics to record bytes")
	}

	if err := kv.Update(ctx, db, func(tx kv.Txn) error { return tx.Delete(key) }); err != nil {
		t.Fatalf("delete: %v", err)
	}
	err = kv.View(ctx, db, func(tx kv.Txn) error {
		_, err := tx.Get(key)
		return err
	})
	if !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestBatchCommitMetrics(t *testing.T) {
	db, metrics := newTestDB(t)

	err := kv.Update(context.Background(), db, func(tx kv.Txn) error {
		if err := tx.Set([]byte("a"), []byte("1")); err != nil {
			return err
		}
		return tx.Set([]byte("b"), []byte("2"))
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	if metrics.batchCommits != 1 {
		t.Fatalf("want 1 batch commit, got %d", metrics.batchCommits)
	}
	if metrics.batchOps != 2 {
		t.Fatalf("want 2 batch ops, got %d", metrics.batchOps)
	}
	if metrics.batchBytes <= 0 {
		t.Fatalf("expected positive batch bytes")
	}
}

func TestSnapshotConsistency(t *testing.T) {
	db, _ := newTestDB(t)
	ctx := context.Background()

	key := []byte("k2")
	if err := kv.Update(ctx, db, func(tx kv.Txn) error { return tx.Set(key, []byte("old")) }); err != nil {
		t.Fatalf("set: %v", err)
	}
	snap, err := db.Begin(ctx, false)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer snap.Rollback()

	// mutate after snapshot
	if err := kv.Update(ctx, db, func(tx kv.Txn) error { return tx.Set(key, []byte("new")) }); err != nil {
		t.Fatalf("set: %v", err)
	}

	// read via snapshot should see old
	valOld, err := snap.Get(key)
	if err != nil {
		t.Fatalf("snap get: %v", err)
	}
	if string(valOld) != "old" {
		t.Fatalf("snapshot saw %q want %q", valOld, "old")
	}

	// a fresh read should see new
	err = kv.View(ctx, db, func(tx kv.Txn) error {
		valNew, err := tx.Get(key)
		if err != nil {
			return err
		}
		if string(valNew) != "new" {
			t.Fatalf("db saw %q want %q", valNew, "new")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestDurableAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	db, err := Open(Options{DataDir: dir, Fsync: FsyncModeAlways})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := kv.Update(ctx, db, func(tx kv.Txn) error { return tx.Set([]byte("keep"), []byte("1")) }); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2, err := Open(Options{DataDir: dir, Fsync: FsyncModeAlways})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = db2.Close() })
	err = kv.View(ctx, db2, func(tx kv.Txn) error {
		_, err := tx.Get([]byte("keep"))
		return err
	})
	if err != nil {
		t.Fatalf("expected key after reopen: %v", err)
	}
}

func TestParseFsyncMode(t *testing.T) {
	for in, want := range map[string]FsyncMode{"always": FsyncModeAlways, "interval": FsyncModeInterval, "never": FsyncModeNever, "": FsyncModeUnspecified} {
		got, err := ParseFsyncMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseFsyncMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFsyncMode("sometimes"); err == nil {
		t.Fatalf("expected error")
	}
}
