// Package lists stores named, append-only lists of key/value items on top of
// a transactional ordered key-value engine.
//
// Every Set allocates a fresh etag and writes three entries in the caller's
// transaction: the primary record, a (name, etag) entry that orders the list,
// and a (name, key) pointer to the newest record for that key. Older records
// for a key stay in the list until they are removed explicitly, so a reader
// can catch up on a list's full history with ordered range reads.
//
// The store holds no locks and starts no goroutines. Callers pass the
// transaction to every call, usually through kv.Update or kv.View:
//
//	store, err := lists.Open(ctx, engine, lists.Options{})
//	err = kv.Update(ctx, engine, func(tx kv.Txn) error {
//	    _, err := store.Set(ctx, tx, "orders", "o-1", data, etag.KindLists)
//	    return err
//	})
//
// Bulk removals consult a PulsePolicy after each record and may commit the
// transaction part way through to keep batches bounded.
package lists
