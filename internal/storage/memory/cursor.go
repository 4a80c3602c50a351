package memory

import (
	"bytes"

	"github.com/google/btree"
	"github.com/rzbill/listdb/internal/kv"
)

// cursor walks a private clone of the transaction tree, which gives it the
// snapshot semantics kv.Cursor requires. Each step is a fresh O(log n) seek.
type cursor struct {
	tree    *btree.BTreeG[btreeKV]
	lower   []byte
	upper   []byte
	bounded bool

	cur    btreeKV
	valid  bool
	closed bool
}

var _ kv.Cursor = (*cursor)(nil)

func (c *cursor) First() bool { return c.SeekGE(c.lower) }

func (c *cursor) SeekGE(key []byte) bool {
	if c.closed {
		return false
	}
	if bytes.Compare(key, c.lower) < 0 {
		key = c.lower
	}
	c.valid = false
	c.tree.AscendGreaterOrEqual(btreeKV{k: key}, func(item btreeKV) bool {
		if c.inUpper(item.k) {
			c.cur, c.valid = item, true
		}
		return false
	})
	return c.valid
}

func (c *cursor) Next() bool {
	if !c.valid {
		return false
	}
	// the immediate successor of k in byte order is k+0x00
	succ := append(append([]byte(nil), c.cur.k...), 0)
	return c.SeekGE(succ)
}

func (c *cursor) Last() bool {
	if c.closed {
		return false
	}
	c.valid = false
	visit := func(item btreeKV) bool {
		if !c.inUpper(item.k) {
			return true
		}
		if bytes.Compare(item.k, c.lower) >= 0 {
			c.cur, c.valid = item, true
		}
		return false
	}
	if c.bounded {
		c.tree.DescendLessOrEqual(btreeKV{k: c.upper}, visit)
	} else {
		c.tree.Descend(visit)
	}
	return c.valid
}

func (c *cursor) Valid() bool { return c.valid }

func (c *cursor) Key() []byte {
	if !c.valid {
		return nil
	}
	return c.cur.k
}

func (c *cursor) Value() []byte {
	if !c.valid {
		return nil
	}
	return c.cur.v
}

func (c *cursor) Error() error { return nil }

func (c *cursor) Close() error {
	c.closed = true
	c.valid = false
	c.tree = nil
	return nil
}

func (c *cursor) inUpper(k []byte) bool {
	return !c.bounded || bytes.Compare(k, c.upper) < 0
}
