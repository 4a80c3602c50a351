// Package runtime wires config, the storage engine, metrics and the list
// store into a single-process listdb instance. It exposes Open/Close, a
// health check and transaction helpers for commands built on top.
//
// Example:
//
//	cfg := config.Default()
//	cfg.DataDir = "./data"
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg})
//	defer rt.Close()
//	_ = rt.Update(ctx, func(tx kv.Txn) error {
//	    _, err := rt.Store().Set(ctx, tx, "orders", "o-1", []byte(`{"qty":1}`), etag.KindLists)
//	    return err
//	})
package runtime
