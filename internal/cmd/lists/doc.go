// Package listscmd builds the listdb command tree. Every command opens the
// configured engine directly, runs one operation in its own transaction and
// prints JSON lines (items) or short human summaries (counts, prunes).
//
// Example:
//
//	root := listscmd.NewRoot()
//	root.SetArgs([]string{"--data-dir", "./data", "set", "orders", "o-1", `{"qty":1}`})
//	_ = root.ExecuteContext(ctx)
package listscmd
