package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/btree"
	"github.com/rzbill/listdb/internal/kv"
)

const degree = 16

type btreeKV struct {
	k []byte
	v []byte
}

func less(a, b btreeKV) bool { return bytes.Compare(a.k, b.k) < 0 }

// Engine is a kv.Engine held entirely in memory.
type Engine struct {
	// mu guards root and closed. Clone mutates the source tree's
	// copy-on-write bookkeeping, so even snapshotting takes the write lock.
	mu     sync.Mutex
	root   *btree.BTreeG[btreeKV]
	closed bool

	// writer admits one writable transaction at a time.
	writer chan struct{}
}

// New returns an empty engine.
func New() *Engine {
	return &Engine{
		root:   btree.NewG(degree, less),
		writer: make(chan struct{}, 1),
	}
}

// Begin opens a transaction over a clone of the committed tree.
func (e *Engine) Begin(ctx context.Context, writable bool) (kv.Txn, error) {
	if writable {
		select {
		case e.writer <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	tree, err := e.snapshot()
	if err != nil {
		if writable {
			<-e.writer
		}
		return nil, err
	}
	return &txn{engine: e, tree: tree, writable: writable}, nil
}

// Close marks the engine closed. Open transactions may still finish reads.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Len returns the number of committed keys.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.root.Len()
}

func (e *Engine) snapshot() (*btree.BTreeG[btreeKV], error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, kv.ErrClosed
	}
	return e.root.Clone(), nil
}

// publish installs tree as the committed state. Only the single admitted
// writer calls it, so the root cannot have moved since the writer began.
func (e *Engine) publish(tree *btree.BTreeG[btreeKV]) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return kv.ErrClosed
	}
	e.root = tree
	return nil
}

type txn struct {
	engine   *Engine
	tree     *btree.BTreeG[btreeKV]
	writable bool
	done     bool
	stats    kv.BatchStats
}

func (t *txn) Writable() bool { return t.writable }

func (t *txn) Get(key []byte) ([]byte, error) {
	if t.done {
		return nil, kv.ErrClosed
	}
	item, ok := t.tree.Get(btreeKV{k: key})
	if !ok {
		return nil, kv.ErrNotFound
	}
	return append([]byte(nil), item.v...), nil
}

func (t *txn) NewCursor(lower, upper []byte) (kv.Cursor, error) {
	if t.done {
		return nil, kv.ErrClosed
	}
	return &cursor{
		tree:    t.tree.Clone(),
		lower:   append([]byte(nil), lower...),
		upper:   append([]byte(nil), upper...),
		bounded: len(upper) > 0,
	}, nil
}

func (t *txn) Set(key, value []byte) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	// Copy both in case the caller reuses or mutates them.
	t.tree.ReplaceOrInsert(btreeKV{k: append([]byte(nil), key...), v: append([]byte(nil), value...)})
	t.stats.Ops++
	t.stats.Bytes += len(key) + len(value)
	return nil
}

func (t *txn) Delete(key []byte) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	t.tree.Delete(btreeKV{k: key})
	t.stats.Ops++
	t.stats.Bytes += len(key)
	return nil
}

func (t *txn) Stats() kv.BatchStats { return t.stats }

func (t *txn) Pulse(ctx context.Context) error {
	if err := t.checkWritable(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	committed := t.tree
	t.tree = committed.Clone()
	if err := t.engine.publish(committed); err != nil {
		return err
	}
	t.stats = kv.BatchStats{}
	return nil
}

func (t *txn) Commit(ctx context.Context) error {
	if t.done {
		return kv.ErrClosed
	}
	t.done = true
	if !t.writable {
		return nil
	}
	defer func() { <-t.engine.writer }()
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.engine.publish(t.tree)
}

func (t *txn) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if t.writable {
		<-t.engine.writer
	}
	return nil
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
