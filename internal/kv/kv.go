// Package kv defines the transactional, ordered key-value contract the list
// store is written against. It abstracts over the Pebble and in-memory
// engines so the same store logic and tests run on both backends.
package kv

import (
	"context"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNotFound is returned by Get when a key is absent.
	ErrNotFound = errors.New("kv: not found")
	// ErrReadOnly is returned by mutations on a read-only transaction.
	ErrReadOnly = errors.New("kv: read-only transaction")
	// ErrClosed is returned when a transaction or engine is used after it finished.
	ErrClosed = errors.New("kv: closed")
)

// Engine opens transactions over a sorted keyspace.
type Engine interface {
	// Begin opens a transaction. Writable transactions are serialised by the
	// engine: a second writable Begin blocks until the first one commits or
	// rolls back. Read-only transactions never block.
	Begin(ctx context.Context, writable bool) (Txn, error)
	Close() error
}

// Reader is the read half of a transaction.
type Reader interface {
	// Get returns a copy of the value for key, or ErrNotFound.
	Get(key []byte) ([]byte, error)
	// NewCursor opens a cursor over [lower, upper). A nil bound is unbounded.
	// The cursor observes the transaction as of its creation: later writes in
	// the same transaction are not visible to it.
	NewCursor(lower, upper []byte) (Cursor, error)
}

// BatchStats describes the writes pending in the current batch.
type BatchStats struct {
	Ops   int
	Bytes int
}

// Txn is a snapshot plus a write batch. Reads observe earlier writes of the
// same transaction.
type Txn interface {
	Reader
	Writable() bool
	Set(key, value []byte) error
	Delete(key []byte) error
	// Stats reports the size of the batch since Begin or the last Pulse.
	Stats() BatchStats
	// Pulse commits the pending batch and continues with a fresh batch and
	// snapshot. All cursors opened on the transaction must be closed first.
	Pulse(ctx context.Context) error
	Commit(ctx context.Context) error
	// Rollback discards unpulsed writes. It is a no-op after Commit.
	Rollback() error
}

// Cursor is a seekable view over a key range. Iteration is forward only;
// Last positions at the greatest key in the range.
type Cursor interface {
	First() bool
	Last() bool
	SeekGE(key []byte) bool
	Next() bool
	Valid() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}

// Update runs fn in a writable transaction and commits it when fn succeeds.
func Update(ctx context.Context, e Engine, fn func(tx Txn) error) error {
	tx, err := e.Begin(ctx, true)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit(ctx)
}

// View runs fn in a read-only transaction.
func View(ctx context.Context, e Engine, fn func(tx Txn) error) error {
	tx, err := e.Begin(ctx, false)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	return fn(tx)
}

// PrefixEnd returns the smallest key greater than every key with the given
// prefix, or nil when no such key exists.
func PrefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
