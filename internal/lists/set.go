package lists

import (
	"bytes"
	"context"

	"github.com/cockroachdb/errors"

	"github.com/rzbill/listdb/internal/kv"
	"github.com/rzbill/listdb/pkg/etag"
)

// Set appends a record for (name, key) and makes it the one Get returns.
// Earlier records for the key stay in the list until pruned.
func (s *Store) Set(ctx context.Context, tx kv.Txn, name, key string, data []byte, kind etag.Kind) (etag.Etag, error) {
	if err := ctx.Err(); err != nil {
		return etag.Etag{}, err
	}
	if !tx.Writable() {
		return etag.Etag{}, errors.Wrapf(kv.ErrReadOnly, "lists: set %q", name)
	}

	e := s.gen.Next(kind)
	codec, payload := s.comp.compress(data)
	rec, err := encodeRecord(recordHeader{
		Name:      name,
		Key:       key,
		Etag:      e.String(),
		CreatedAt: s.now().UnixNano(),
		Codec:     codec,
	}, payload)
	if err != nil {
		return etag.Etag{}, errors.Wrapf(err, "lists: set %q", name)
	}

	if err := tx.Set(keyPrimary(e), rec); err != nil {
		return etag.Etag{}, errors.Wrapf(err, "lists: set %q", name)
	}
	if err := tx.Set(keyByName(name, e), nil); err != nil {
		return etag.Etag{}, errors.Wrapf(err, "lists: set %q", name)
	}
	if err := tx.Set(keyByNameAndKey(name, key), e.Bytes()); err != nil {
		return etag.Etag{}, errors.Wrapf(err, "lists: set %q", name)
	}
	s.metrics.ObserveSet(len(data))
	return e, nil
}

// Remove deletes the newest record for (name, key). Older records for the
// key are left alone. Removing an absent key is a no-op.
func (s *Store) Remove(ctx context.Context, tx kv.Txn, name, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !tx.Writable() {
		return errors.Wrapf(kv.ErrReadOnly, "lists: remove %q", name)
	}
	e, ok, err := s.pointer(tx, name, key)
	if err != nil || !ok {
		return err
	}
	if err := s.deleteRecord(tx, name, key, e, false); err != nil {
		return errors.Wrapf(err, "lists: remove %q/%q", name, key)
	}
	s.metrics.ObserveRemoved("remove", 1)
	return nil
}

// pointer resolves the ByNameAndKey entry of (name, key).
func (s *Store) pointer(tx kv.Txn, name, key string) (etag.Etag, bool, error) {
	v, err := tx.Get(keyByNameAndKey(name, key))
	if errors.Is(err, kv.ErrNotFound) {
		return etag.Etag{}, false, nil
	}
	if err != nil {
		return etag.Etag{}, false, errors.Wrapf(err, "lists: lookup %q/%q", name, key)
	}
	e, err := etag.FromBytes(v)
	if err != nil {
		return etag.Etag{}, false, s.corrupt(structuralCorruption("lists: pointer %q/%q: %v", name, key, err))
	}
	return e, true, nil
}

// deleteRecord removes e from all three structures. With guarded set, the
// (name, key) pointer is only dropped while it still points at e, so pruning
// history never hides a newer live record from Get.
func (s *Store) deleteRecord(tx kv.Txn, name, key string, e etag.Etag, guarded bool) error {
	if err := tx.Delete(keyPrimary(e)); err != nil {
		return err
	}
	if err := tx.Delete(keyByName(name, e)); err != nil {
		return err
	}
	pk := keyByNameAndKey(name, key)
	if guarded {
		v, err := tx.Get(pk)
		if errors.Is(err, kv.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !bytes.Equal(v, e[:]) {
			return nil
		}
	}
	return tx.Delete(pk)
}
