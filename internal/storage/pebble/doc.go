// Package pebblestore provides the durable kv.Engine: a thin wrapper around
// Pebble with fsync policy, snapshots, indexed batches, and minimal metrics
// hooks.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	// Atomic updates: writable transactions are indexed batches
//	_ = kv.Update(ctx, db, func(tx kv.Txn) error {
//	    return tx.Set([]byte("k"), []byte("v"))
//	})
//
//	// Reads run on a snapshot
//	_ = kv.View(ctx, db, func(tx kv.Txn) error {
//	    v, err := tx.Get([]byte("k"))
//	    _ = v
//	    return err
//	})
package pebblestore
