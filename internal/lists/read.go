package lists

import (
	"context"
	"iter"

	"github.com/cockroachdb/errors"

	"github.com/rzbill/listdb/internal/kv"
	"github.com/rzbill/listdb/pkg/etag"
)

// Read yields up to take items of name with start < etag < end, in etag
// order. A nil end is unbounded. Every range over the returned sequence
// opens a fresh cursor on tx. The sequence stops after the first error.
func (s *Store) Read(ctx context.Context, tx kv.Txn, name string, start etag.Etag, end *etag.Etag, take int) iter.Seq2[ListItem, error] {
	return func(yield func(ListItem, error) bool) {
		if take <= 0 {
			return
		}
		prefix := keyByNameRange(name)
		upper := kv.PrefixEnd(prefix)
		if end != nil {
			upper = keyByName(name, *end)
		}
		cur, err := tx.NewCursor(prefix, upper)
		if err != nil {
			yield(ListItem{}, errors.Wrapf(err, "lists: read %q", name))
			return
		}
		defer cur.Close()

		n := 0
		for ok := cur.SeekGE(keyByName(name, start)); ok; ok = cur.Next() {
			if err := ctx.Err(); err != nil {
				yield(ListItem{}, err)
				return
			}
			e, err := etagSuffix(cur.Key(), len(prefix))
			if err != nil {
				yield(ListItem{}, s.corrupt(err))
				return
			}
			if e.Compare(start) <= 0 {
				continue
			}
			if end != nil && e.Compare(*end) >= 0 {
				return
			}
			item, err := s.load(tx, name, e)
			if !yield(item, err) || err != nil {
				return
			}
			if n++; n >= take {
				return
			}
		}
		if err := cur.Error(); err != nil {
			yield(ListItem{}, errors.Wrapf(err, "lists: read %q", name))
		}
	}
}

// ReadAt skips the first start items of name by position and yields up to
// take items after them.
func (s *Store) ReadAt(ctx context.Context, tx kv.Txn, name string, start, take int) iter.Seq2[ListItem, error] {
	return func(yield func(ListItem, error) bool) {
		if take <= 0 {
			return
		}
		prefix := keyByNameRange(name)
		cur, err := tx.NewCursor(prefix, kv.PrefixEnd(prefix))
		if err != nil {
			yield(ListItem{}, errors.Wrapf(err, "lists: read %q", name))
			return
		}
		defer cur.Close()

		ok := cur.First()
		for skipped := 0; ok && skipped < start; skipped++ {
			ok = cur.Next()
		}
		for n := 0; ok && n < take; n++ {
			if err := ctx.Err(); err != nil {
				yield(ListItem{}, err)
				return
			}
			e, err := etagSuffix(cur.Key(), len(prefix))
			if err != nil {
				yield(ListItem{}, s.corrupt(err))
				return
			}
			item, err := s.load(tx, name, e)
			if !yield(item, err) || err != nil {
				return
			}
			ok = cur.Next()
		}
		if err := cur.Error(); err != nil {
			yield(ListItem{}, errors.Wrapf(err, "lists: read %q", name))
		}
	}
}

// Get returns the newest record for (name, key).
func (s *Store) Get(ctx context.Context, tx kv.Txn, name, key string) (ListItem, bool, error) {
	if err := ctx.Err(); err != nil {
		return ListItem{}, false, err
	}
	e, ok, err := s.pointer(tx, name, key)
	if err != nil || !ok {
		return ListItem{}, false, err
	}
	item, err := s.load(tx, name, e)
	if err != nil {
		return ListItem{}, false, err
	}
	return item, true, nil
}

// ReadLast returns the record of name with the greatest etag.
func (s *Store) ReadLast(ctx context.Context, tx kv.Txn, name string) (ListItem, bool, error) {
	if err := ctx.Err(); err != nil {
		return ListItem{}, false, err
	}
	prefix := keyByNameRange(name)
	cur, err := tx.NewCursor(prefix, kv.PrefixEnd(prefix))
	if err != nil {
		return ListItem{}, false, errors.Wrapf(err, "lists: read last %q", name)
	}
	defer cur.Close()
	if !cur.Last() {
		return ListItem{}, false, cur.Error()
	}
	e, err := etagSuffix(cur.Key(), len(prefix))
	if err != nil {
		return ListItem{}, false, s.corrupt(err)
	}
	item, err := s.load(tx, name, e)
	if err != nil {
		return ListItem{}, false, err
	}
	return item, true, nil
}

// Count returns the number of records in name, superseded ones included.
func (s *Store) Count(ctx context.Context, tx kv.Txn, name string) (int, error) {
	prefix := keyByNameRange(name)
	cur, err := tx.NewCursor(prefix, kv.PrefixEnd(prefix))
	if err != nil {
		return 0, err
	}
	defer cur.Close()
	n := 0
	for ok := cur.First(); ok; ok = cur.Next() {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return n, err
			}
		}
		n++
	}
	return n, cur.Error()
}

// Names returns every list name with at least one record, in byte order of
// their encoded form (shorter names first).
func (s *Store) Names(ctx context.Context, tx kv.Txn) ([]string, error) {
	cur, err := tx.NewCursor(byNamePrefix, kv.PrefixEnd(byNamePrefix))
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	var names []string
	for ok := cur.First(); ok; ok = cur.SeekGE(kv.PrefixEnd(keyByNameRange(names[len(names)-1]))) {
		if err := ctx.Err(); err != nil {
			return names, err
		}
		name, err := nameFromByName(cur.Key())
		if err != nil {
			return names, s.corrupt(err)
		}
		names = append(names, name)
	}
	return names, cur.Error()
}
