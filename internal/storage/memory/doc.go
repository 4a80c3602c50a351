// Package memory provides an in-memory kv.Engine backed by a copy-on-write
// B-tree. Snapshots are btree clones, so read-only transactions and cursors
// never observe later writes and never block writers.
//
// Usage:
//
//	e := memory.New()
//	defer e.Close()
//	_ = kv.Update(ctx, e, func(tx kv.Txn) error {
//	    return tx.Set([]byte("k"), []byte("v"))
//	})
package memory
