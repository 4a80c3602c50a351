// Package kvtest holds the behavioural suite every kv.Engine must pass. It is
// called from the engine packages' tests.
package kvtest

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rzbill/listdb/internal/kv"
	"github.com/stretchr/testify/require"
)

// TestAllCommon runs the shared suite against engines built by ctor. Each
// subtest gets a fresh engine.
func TestAllCommon(t *testing.T, ctor func(t *testing.T) kv.Engine) {
	t.Run("point ops", func(t *testing.T) { testPointOps(t, ctor(t)) })
	t.Run("read your own writes", func(t *testing.T) { testReadYourWrites(t, ctor(t)) })
	t.Run("rollback discards", func(t *testing.T) { testRollback(t, ctor(t)) })
	t.Run("cursor bounds", func(t *testing.T) { testCursorBounds(t, ctor(t)) })
	t.Run("cursor snapshot", func(t *testing.T) { testCursorSnapshot(t, ctor(t)) })
	t.Run("read only isolation", func(t *testing.T) { testReadOnlyIsolation(t, ctor(t)) })
	t.Run("pulse commits", func(t *testing.T) { testPulse(t, ctor(t)) })
	t.Run("writers serialised", func(t *testing.T) { testWritersSerialised(t, ctor(t)) })
	t.Run("begin after close", func(t *testing.T) { testBeginAfterClose(t, ctor(t)) })
}

func testPointOps(t *testing.T, e kv.Engine) {
	ctx := context.Background()

	require.NoError(t, kv.Update(ctx, e, func(tx kv.Txn) error {
		return tx.Set([]byte("a"), []byte("1"))
	}))

	require.NoError(t, kv.View(ctx, e, func(tx kv.Txn) error {
		v, err := tx.Get([]byte("a"))
		require.NoError(t, err)
		require.Equal(t, []byte("1"), v)

		_, err = tx.Get([]byte("missing"))
		require.True(t, errors.Is(err, kv.ErrNotFound))

		require.True(t, errors.Is(tx.Set([]byte("b"), nil), kv.ErrReadOnly))
		require.True(t, errors.Is(tx.Delete([]byte("a")), kv.ErrReadOnly))
		return nil
	}))

	require.NoError(t, kv.Update(ctx, e, func(tx kv.Txn) error {
		return tx.Delete([]byte("a"))
	}))
	require.NoError(t, kv.View(ctx, e, func(tx kv.Txn) error {
		_, err := tx.Get([]byte("a"))
		require.True(t, errors.Is(err, kv.ErrNotFound))
		return nil
	}))
}

func testReadYourWrites(t *testing.T, e kv.Engine) {
	ctx := context.Background()
	tx, err := e.Begin(ctx, true)
	require.NoError(t, err)
	defer tx.Rollback()

	require.NoError(t, tx.Set([]byte("k1"), []byte("v1")))
	require.NoError(t, tx.Set([]byte("k2"), []byte("v2")))

	v, err := tx.Get([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)

	cur, err := tx.NewCursor([]byte("k"), []byte("l"))
	require.NoError(t, err)
	require.Equal(t, []string{"k1", "k2"}, collectKeys(cur))
	require.NoError(t, cur.Close())

	stats := tx.Stats()
	require.Equal(t, 2, stats.Ops)
	require.True(t, stats.Bytes > 0)
	require.NoError(t, tx.Commit(ctx))
}

func testRollback(t *testing.T, e kv.Engine) {
	ctx := context.Background()
	tx, err := e.Begin(ctx, true)
	require.NoError(t, err)
	require.NoError(t, tx.Set([]byte("gone"), []byte("x")))
	require.NoError(t, tx.Rollback())

	require.NoError(t, kv.View(ctx, e, func(tx kv.Txn) error {
		_, err := tx.Get([]byte("gone"))
		require.True(t, errors.Is(err, kv.ErrNotFound))
		return nil
	}))

	sentinel := errors.New("boom")
	err = kv.Update(ctx, e, func(tx kv.Txn) error {
		require.NoError(t, tx.Set([]byte("gone"), []byte("y")))
		return sentinel
	})
	require.True(t, errors.Is(err, sentinel))
	require.NoError(t, kv.View(ctx, e, func(tx kv.Txn) error {
		_, err := tx.Get([]byte("gone"))
		require.True(t, errors.Is(err, kv.ErrNotFound))
		return nil
	}))
}

func testCursorBounds(t *testing.T, e kv.Engine) {
	ctx := context.Background()
	require.NoError(t, kv.Update(ctx, e, func(tx kv.Txn) error {
		for _, k := range []string{"p/1", "p/3", "p/5", "q/1", "o/9"} {
			if err := tx.Set([]byte(k), []byte(k)); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, kv.View(ctx, e, func(tx kv.Txn) error {
		cur, err := tx.NewCursor([]byte("p/"), kv.PrefixEnd([]byte("p/")))
		require.NoError(t, err)
		defer cur.Close()

		require.True(t, cur.First())
		require.Equal(t, "p/1", string(cur.Key()))
		require.Equal(t, "p/1", string(cur.Value()))

		require.True(t, cur.SeekGE([]byte("p/2")))
		require.Equal(t, "p/3", string(cur.Key()))
		require.True(t, cur.Next())
		require.Equal(t, "p/5", string(cur.Key()))
		require.False(t, cur.Next())
		require.False(t, cur.Valid())

		require.True(t, cur.Last())
		require.Equal(t, "p/5", string(cur.Key()))

		require.False(t, cur.SeekGE([]byte("p/6")))
		require.NoError(t, cur.Error())
		return nil
	}))

	require.NoError(t, kv.View(ctx, e, func(tx kv.Txn) error {
		cur, err := tx.NewCursor([]byte("x/"), kv.PrefixEnd([]byte("x/")))
		require.NoError(t, err)
		defer cur.Close()
		require.False(t, cur.First())
		require.False(t, cur.Last())
		return nil
	}))
}

func testCursorSnapshot(t *testing.T, e kv.Engine) {
	ctx := context.Background()
	require.NoError(t, kv.Update(ctx, e, func(tx kv.Txn) error {
		for _, k := range []string{"s/1", "s/2", "s/3"} {
			if err := tx.Set([]byte(k), nil); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, kv.Update(ctx, e, func(tx kv.Txn) error {
		cur, err := tx.NewCursor([]byte("s/"), kv.PrefixEnd([]byte("s/")))
		require.NoError(t, err)
		defer cur.Close()

		var seen []string
		for ok := cur.First(); ok; ok = cur.Next() {
			k := append([]byte(nil), cur.Key()...)
			seen = append(seen, string(k))
			// delete what we just visited and add something the cursor must not see
			require.NoError(t, tx.Delete(k))
			require.NoError(t, tx.Set([]byte("s/9"), nil))
		}
		require.NoError(t, cur.Error())
		require.Equal(t, []string{"s/1", "s/2", "s/3"}, seen)
		return nil
	}))

	require.NoError(t, kv.View(ctx, e, func(tx kv.Txn) error {
		cur, err := tx.NewCursor([]byte("s/"), kv.PrefixEnd([]byte("s/")))
		require.NoError(t, err)
		defer cur.Close()
		require.Equal(t, []string{"s/9"}, collectKeys(cur))
		return nil
	}))
}

func testReadOnlyIsolation(t *testing.T, e kv.Engine) {
	ctx := context.Background()
	ro, err := e.Begin(ctx, false)
	require.NoError(t, err)
	defer ro.Rollback()

	require.NoError(t, kv.Update(ctx, e, func(tx kv.Txn) error {
		return tx.Set([]byte("late"), []byte("x"))
	}))

	_, err = ro.Get([]byte("late"))
	require.True(t, errors.Is(err, kv.ErrNotFound))

	require.NoError(t, kv.View(ctx, e, func(tx kv.Txn) error {
		_, err := tx.Get([]byte("late"))
		require.NoError(t, err)
		return nil
	}))
}

func testPulse(t *testing.T, e kv.Engine) {
	ctx := context.Background()
	tx, err := e.Begin(ctx, true)
	require.NoError(t, err)

	require.NoError(t, tx.Set([]byte("p1"), []byte("x")))
	require.NoError(t, tx.Pulse(ctx))
	require.Equal(t, 0, tx.Stats().Ops)
	// a second pulse releases the batch the first one opened
	require.NoError(t, tx.Pulse(ctx))

	// pulsed writes are visible to readers while the transaction continues
	require.NoError(t, kv.View(ctx, e, func(r kv.Txn) error {
		_, err := r.Get([]byte("p1"))
		require.NoError(t, err)
		return nil
	}))

	// the transaction still reads its own history after a pulse
	v, err := tx.Get([]byte("p1"))
	require.NoError(t, err)
	require.Equal(t, []byte("x"), v)

	require.NoError(t, tx.Set([]byte("p2"), []byte("y")))
	require.NoError(t, tx.Rollback())

	require.NoError(t, kv.View(ctx, e, func(r kv.Txn) error {
		_, err := r.Get([]byte("p1"))
		require.NoError(t, err)
		_, err = r.Get([]byte("p2"))
		require.True(t, errors.Is(err, kv.ErrNotFound))
		return nil
	}))
}

func testWritersSerialised(t *testing.T, e kv.Engine) {
	ctx := context.Background()
	first, err := e.Begin(ctx, true)
	require.NoError(t, err)

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		done <- kv.Update(ctx, e, func(tx kv.Txn) error {
			return tx.Set([]byte("second"), []byte("2"))
		})
	}()
	<-started

	select {
	case <-done:
		t.Fatalf("second writer must wait for the first")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Set([]byte("first"), []byte("1")))
	require.NoError(t, first.Commit(ctx))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("second writer never ran")
	}
}

func collectKeys(cur kv.Cursor) []string {
	var out []string
	for ok := cur.First(); ok; ok = cur.Next() {
		out = append(out, string(cur.Key()))
	}
	return out
}

func testBeginAfterClose(t *testing.T, e kv.Engine) {
	ctx := context.Background()
	require.NoError(t, kv.Update(ctx, e, func(tx kv.Txn) error {
		return tx.Set([]byte("a"), []byte("1"))
	}))
	require.NoError(t, e.Close())

	for _, writable := range []bool{false, true} {
		tx, err := e.Begin(ctx, writable)
		require.True(t, errors.Is(err, kv.ErrClosed), "writable=%v: %v", writable, err)
		require.Nil(t, tx)
	}
	// Close is idempotent
	require.NoError(t, e.Close())
}
