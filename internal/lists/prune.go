package lists

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/rzbill/listdb/internal/kv"
	"github.com/rzbill/listdb/pkg/etag"
	logpkg "github.com/rzbill/listdb/pkg/log"
)

// RemoveAllBefore deletes every record of name with etag <= threshold and
// returns how many were removed. The pulse policy may commit tx part way.
func (s *Store) RemoveAllBefore(ctx context.Context, tx kv.Txn, name string, threshold etag.Etag) (int, error) {
	return s.prune(ctx, tx, name, "remove_before", func(e etag.Etag, _ recordHeader) bool {
		return e.Compare(threshold) > 0
	})
}

// RemoveAllOlderThan deletes records of name in etag order until the first
// one created after cutoff. Records created at exactly cutoff are removed.
// The pulse policy may commit tx part way.
func (s *Store) RemoveAllOlderThan(ctx context.Context, tx kv.Txn, name string, cutoff time.Time) (int, error) {
	// Compare as time: UnixNano wraps for cutoffs outside 1678..2262.
	return s.prune(ctx, tx, name, "remove_older_than", func(_ etag.Etag, h recordHeader) bool {
		return time.Unix(0, h.CreatedAt).After(cutoff)
	})
}

// prune walks name in etag order, deleting records until stop reports true.
// Deletes only touch the entry under the cursor or behind it, and a pulse reopens
// the cursor just past the last deleted entry.
func (s *Store) prune(ctx context.Context, tx kv.Txn, name, op string, stop func(etag.Etag, recordHeader) bool) (int, error) {
	if !tx.Writable() {
		return 0, errors.Wrapf(kv.ErrReadOnly, "lists: %s %q", op, name)
	}
	began := time.Now()
	prefix := keyByNameRange(name)
	upper := kv.PrefixEnd(prefix)

	cur, err := tx.NewCursor(prefix, upper)
	if err != nil {
		return 0, errors.Wrapf(err, "lists: %s %q", op, name)
	}
	defer func() {
		if cur != nil {
			_ = cur.Close()
		}
	}()

	removed, pulses := 0, 0
	ok := cur.First()
	for ok {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		e, err := etagSuffix(cur.Key(), len(prefix))
		if err != nil {
			return removed, s.corrupt(err)
		}
		h, _, err := s.loadHeader(tx, name, e)
		if err != nil {
			return removed, err
		}
		if stop(e, h) {
			break
		}
		if err := s.deleteRecord(tx, name, h.Key, e, true); err != nil {
			return removed, errors.Wrapf(err, "lists: %s %q", op, name)
		}
		removed++

		if !s.pulser.due(tx) {
			ok = cur.Next()
			continue
		}
		if err := cur.Close(); err != nil {
			cur = nil
			return removed, err
		}
		cur = nil
		if err := s.pulser.pulse(ctx, tx); err != nil {
			return removed, errors.Wrapf(err, "lists: %s %q: pulse", op, name)
		}
		pulses++
		s.metrics.ObservePulse(op)
		s.logger.Debug("pulsed bulk removal",
			logpkg.Str("op", op), logpkg.Str("list", name), logpkg.Int("removed", removed))

		cur, err = tx.NewCursor(append(keyByName(name, e), 0), upper)
		if err != nil {
			return removed, errors.Wrapf(err, "lists: %s %q", op, name)
		}
		ok = cur.First()
	}
	if err := cur.Error(); err != nil {
		return removed, errors.Wrapf(err, "lists: %s %q", op, name)
	}

	s.metrics.ObserveRemoved(op, removed)
	if removed > 0 {
		s.logger.Info("pruned list",
			logpkg.Str("op", op),
			logpkg.Str("list", name),
			logpkg.Int("removed", removed),
			logpkg.Int("pulses", pulses),
			logpkg.Dur("took", time.Since(began)))
	}
	return removed, nil
}
