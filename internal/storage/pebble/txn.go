package pebblestore

import (
	"context"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/rzbill/listdb/internal/kv"
)

type txn struct {
	db       *DB
	snap     *pebble.Snapshot
	batch    *pebble.Batch
	writable bool
	done     bool
}

func (t *txn) Writable() bool { return t.writable }

func (t *txn) Get(key []byte) ([]byte, error) {
	if t.done {
		return nil, kv.ErrClosed
	}
	start := time.Now()
	var (
		val    []byte
		closer io.Closer
		err    error
	)
	if t.writable {
		val, closer, err = t.batch.Get(key)
	} else {
		val, closer, err = t.snap.Get(key)
	}
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, kv.ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	buf := append([]byte(nil), val...)
	t.db.metrics.ObserveRead(time.Since(start), len(buf))
	return buf, nil
}

// NewCursor returns a raw Pebble iterator; its method set already matches
// kv.Cursor. Batch iterators observe the batch as of creation only.
func (t *txn) NewCursor(lower, upper []byte) (kv.Cursor, error) {
	if t.done {
		return nil, kv.ErrClosed
	}
	opts := &pebble.IterOptions{LowerBound: lower, UpperBound: upper}
	var (
		it  *pebble.Iterator
		err error
	)
	if t.writable {
		it, err = t.batch.NewIter(opts)
	} else {
		it, err = t.snap.NewIter(opts)
	}
	if err != nil {
		return nil, err
	}
	return it, nil
}

func (t *txn) Set(key, value []byte) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	start := time.Now()
	if err := t.batch.Set(key, value, nil); err != nil {
		return err
	}
	t.db.metrics.ObserveWrite(time.Since(start), len(key)+len(value))
	return nil
}

func (t *txn) Delete(key []byte) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	return t.batch.Delete(key, nil)
}

func (t *txn) Stats() kv.BatchStats {
	if !t.writable || t.batch == nil {
		return kv.BatchStats{}
	}
	return kv.BatchStats{Ops: int(t.batch.Count()), Bytes: t.batch.Len()}
}

func (t *txn) Pulse(ctx context.Context) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	if err := t.db.CommitBatch(ctx, t.batch); err != nil {
		return err
	}
	err := t.batch.Close()
	t.batch = t.db.inner.NewIndexedBatch()
	return errors.Wrap(err, "pebble: close pulsed batch")
}

func (t *txn) Commit(ctx context.Context) error {
	if t.done {
		return kv.ErrClosed
	}
	t.done = true
	if !t.writable {
		return t.snap.Close()
	}
	defer func() { <-t.db.writer }()
	defer t.batch.Close()
	return t.db.CommitBatch(ctx, t.batch)
}

func (t *txn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if !t.writable {
		return t.snap.Close()
	}
	defer func() { <-t.db.writer }()
	return t.batch.Close()
}

func (t *txn) checkWritable() error {
	if t.done {
		return kv.ErrClosed
	}
	if !t.writable {
		return kv.ErrReadOnly
	}
	return nil
}
