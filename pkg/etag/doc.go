// Package etag provides the 128-bit, lexicographically sortable identifier
// assigned to every list entry.
//
// # Format
//
// An Etag is 16 bytes big-endian: [8 bytes ms_timestamp][7 bytes sequence][1 byte kind].
// Byte-wise comparison preserves issuance order, and the canonical string
// form (32 lowercase hex digits) preserves it too, so either encoding can be
// used as an ordered index key.
//
// The kind byte trails the sequence. It tags the category of the write for
// downstream consumers without affecting ordering: two etags never share a
// (timestamp, sequence) pair, so the kind never decides a comparison.
//
// # Monotonicity
//
// The Generator ensures per-process monotonicity:
//   - If the system clock regresses, it pins to the last seen millisecond and
//     increments the sequence to avoid going backwards.
//   - If the sequence would overflow within a millisecond, it waits for the
//     next millisecond before emitting the next etag.
//   - Observe raises the generator above an etag read back from storage, so
//     a restarted process never reissues or undercuts a persisted etag.
//
// Usage
//
//	g := etag.NewGenerator()
//	g.Observe(lastPersisted)
//	e := g.Next(etag.KindLists)
//	b := e.Bytes()   // 16-byte representation
//	s := e.String()  // hex string
package etag
