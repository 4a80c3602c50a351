package lists

import (
	"context"
	"fmt"
	"iter"
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/rzbill/listdb/internal/kv"
	"github.com/rzbill/listdb/internal/storage/memory"
	pebblestore "github.com/rzbill/listdb/internal/storage/pebble"
	"github.com/rzbill/listdb/pkg/etag"
)

// forEachEngine runs fn against a fresh memory engine and a fresh Pebble DB.
func forEachEngine(t *testing.T, fn func(t *testing.T, e kv.Engine)) {
	t.Run("memory", func(t *testing.T) {
		e := memory.New()
		t.Cleanup(func() { _ = e.Close() })
		fn(t, e)
	})
	t.Run("pebble", func(t *testing.T) {
		db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
		if err != nil {
			t.Fatalf("open pebble: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })
		fn(t, db)
	})
}

func openStore(t *testing.T, e kv.Engine, opts Options) *Store {
	t.Helper()
	s, err := Open(context.Background(), e, opts)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustSet(t *testing.T, e kv.Engine, s *Store, name, key, data string) etag.Etag {
	t.Helper()
	var out etag.Etag
	err := kv.Update(context.Background(), e, func(tx kv.Txn) error {
		var err error
		out, err = s.Set(context.Background(), tx, name, key, []byte(data), etag.KindLists)
		return err
	})
	if err != nil {
		t.Fatalf("set %s/%s: %v", name, key, err)
	}
	return out
}

func mustGet(t *testing.T, e kv.Engine, s *Store, name, key string) (ListItem, bool) {
	t.Helper()
	var item ListItem
	var ok bool
	err := kv.View(context.Background(), e, func(tx kv.Txn) error {
		var err error
		item, ok, err = s.Get(context.Background(), tx, name, key)
		return err
	})
	if err != nil {
		t.Fatalf("get %s/%s: %v", name, key, err)
	}
	return item, ok
}

func collect(t *testing.T, seq iter.Seq2[ListItem, error]) []ListItem {
	t.Helper()
	var out []ListItem
	for item, err := range seq {
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		out = append(out, item)
	}
	return out
}

func readAll(t *testing.T, e kv.Engine, s *Store, name string) []ListItem {
	t.Helper()
	var out []ListItem
	_ = kv.View(context.Background(), e, func(tx kv.Txn) error {
		out = collect(t, s.Read(context.Background(), tx, name, etag.Zero, nil, 1<<30))
		return nil
	})
	return out
}

func etagsOf(items []ListItem) []etag.Etag {
	out := make([]etag.Etag, len(items))
	for i, it := range items {
		out[i] = it.Etag
	}
	return out
}

func sameEtags(t *testing.T, got []ListItem, want ...etag.Etag) {
	t.Helper()
	g := etagsOf(got)
	if len(g) != len(want) {
		t.Fatalf("items: got %v want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("item %d: got %s want %s", i, g[i], want[i])
		}
	}
}

func TestSetGetRoundtrip(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e kv.Engine) {
		s := openStore(t, e, Options{})
		e1 := mustSet(t, e, s, "orders", "o-1", `{"qty":1}`)
		e2 := mustSet(t, e, s, "orders", "o-2", `{"qty":2}`)
		e3 := mustSet(t, e, s, "orders", "o-3", `{"qty":3}`)
		if !(e1.Compare(e2) < 0 && e2.Compare(e3) < 0) {
			t.Fatalf("etags not increasing: %s %s %s", e1, e2, e3)
		}
		if e1.Kind() != etag.KindLists {
			t.Fatalf("kind: %v", e1.Kind())
		}

		item, ok := mustGet(t, e, s, "orders", "o-2")
		if !ok {
			t.Fatalf("o-2 missing")
		}
		if item.Name != "orders" || item.Key != "o-2" || item.Etag != e2 || string(item.Data) != `{"qty":2}` {
			t.Fatalf("unexpected item: %+v", item)
		}
		if item.CreatedAt.IsZero() {
			t.Fatalf("createdAt not set")
		}

		if _, ok := mustGet(t, e, s, "orders", "nope"); ok {
			t.Fatalf("absent key found")
		}
		if _, ok := mustGet(t, e, s, "other", "o-2"); ok {
			t.Fatalf("key leaked across lists")
		}
	})
}

func TestReadYourWritesInTxn(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e kv.Engine) {
		s := openStore(t, e, Options{})
		ctx := context.Background()
		err := kv.Update(ctx, e, func(tx kv.Txn) error {
			et, err := s.Set(ctx, tx, "l", "k", []byte("v"), etag.KindLists)
			if err != nil {
				return err
			}
			item, ok, err := s.Get(ctx, tx, "l", "k")
			if err != nil || !ok || item.Etag != et {
				return fmt.Errorf("get in txn: %+v %v %v", item, ok, err)
			}
			got := collect(t, s.Read(ctx, tx, "l", etag.Zero, nil, 10))
			if len(got) != 1 {
				return fmt.Errorf("read in txn: %d items", len(got))
			}
			return nil
		})
		if err != nil {
			t.Fatalf("%v", err)
		}
	})
}

func TestReadRange(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e kv.Engine) {
		s := openStore(t, e, Options{})
		var es []etag.Etag
		for i := 0; i < 10; i++ {
			es = append(es, mustSet(t, e, s, "l", fmt.Sprintf("k%d", i), "v"))
		}
		mustSet(t, e, s, "l2", "k", "v")
		ctx := context.Background()

		_ = kv.View(ctx, e, func(tx kv.Txn) error {
			all := collect(t, s.Read(ctx, tx, "l", etag.Zero, nil, 100))
			sameEtags(t, all, es...)

			// start is exclusive, end is exclusive
			mid := collect(t, s.Read(ctx, tx, "l", es[2], &es[6], 100))
			sameEtags(t, mid, es[3], es[4], es[5])

			capped := collect(t, s.Read(ctx, tx, "l", es[2], nil, 2))
			sameEtags(t, capped, es[3], es[4])

			if got := collect(t, s.Read(ctx, tx, "l", es[9], nil, 5)); len(got) != 0 {
				t.Fatalf("read past end: %d items", len(got))
			}
			if got := collect(t, s.Read(ctx, tx, "l", etag.Zero, nil, 0)); len(got) != 0 {
				t.Fatalf("take 0: %d items", len(got))
			}
			if got := collect(t, s.Read(ctx, tx, "empty", etag.Zero, nil, 5)); len(got) != 0 {
				t.Fatalf("empty list: %d items", len(got))
			}

			// each range over the sequence starts over
			seq := s.Read(ctx, tx, "l", etag.Zero, nil, 3)
			sameEtags(t, collect(t, seq), es[0], es[1], es[2])
			sameEtags(t, collect(t, seq), es[0], es[1], es[2])
			return nil
		})
	})
}

func TestReadAt(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e kv.Engine) {
		s := openStore(t, e, Options{})
		var es []etag.Etag
		for i := 0; i < 8; i++ {
			es = append(es, mustSet(t, e, s, "l", fmt.Sprintf("k%d", i), "v"))
		}
		ctx := context.Background()
		_ = kv.View(ctx, e, func(tx kv.Txn) error {
			sameEtags(t, collect(t, s.ReadAt(ctx, tx, "l", 3, 4)), es[3], es[4], es[5], es[6])
			sameEtags(t, collect(t, s.ReadAt(ctx, tx, "l", 6, 10)), es[6], es[7])
			sameEtags(t, collect(t, s.ReadAt(ctx, tx, "l", 0, 1)), es[0])
			if got := collect(t, s.ReadAt(ctx, tx, "l", 8, 10)); len(got) != 0 {
				t.Fatalf("offset past end: %d items", len(got))
			}
			if got := collect(t, s.ReadAt(ctx, tx, "none", 0, 10)); len(got) != 0 {
				t.Fatalf("empty list: %d items", len(got))
			}
			return nil
		})
	})
}

func TestRemove(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e kv.Engine) {
		s := openStore(t, e, Options{})
		ctx := context.Background()
		mustSet(t, e, s, "l", "a", "1")
		eb := mustSet(t, e, s, "l", "b", "1")

		for i := 0; i < 2; i++ {
			if err := kv.Update(ctx, e, func(tx kv.Txn) error { return s.Remove(ctx, tx, "l", "a") }); err != nil {
				t.Fatalf("remove #%d: %v", i, err)
			}
		}
		if err := kv.Update(ctx, e, func(tx kv.Txn) error { return s.Remove(ctx, tx, "nope", "a") }); err != nil {
			t.Fatalf("remove absent list: %v", err)
		}
		if _, ok := mustGet(t, e, s, "l", "a"); ok {
			t.Fatalf("a still readable")
		}
		sameEtags(t, readAll(t, e, s, "l"), eb)
	})
}

func TestHistoryRetention(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e kv.Engine) {
		s := openStore(t, e, Options{})
		ctx := context.Background()
		e1 := mustSet(t, e, s, "l", "k", "v1")
		e2 := mustSet(t, e, s, "l", "k", "v2")

		item, ok := mustGet(t, e, s, "l", "k")
		if !ok || item.Etag != e2 || string(item.Data) != "v2" {
			t.Fatalf("latest: %+v ok=%v", item, ok)
		}
		hist := readAll(t, e, s, "l")
		sameEtags(t, hist, e1, e2)
		if string(hist[0].Data) != "v1" || string(hist[1].Data) != "v2" {
			t.Fatalf("history data: %q %q", hist[0].Data, hist[1].Data)
		}

		// Remove drops only the newest record
		if err := kv.Update(ctx, e, func(tx kv.Txn) error { return s.Remove(ctx, tx, "l", "k") }); err != nil {
			t.Fatalf("remove: %v", err)
		}
		if _, ok := mustGet(t, e, s, "l", "k"); ok {
			t.Fatalf("k readable after remove")
		}
		sameEtags(t, readAll(t, e, s, "l"), e1)
	})
}

func TestRemoveAllBefore(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e kv.Engine) {
		s := openStore(t, e, Options{})
		ctx := context.Background()
		e1 := mustSet(t, e, s, "l", "k1", "a")
		e2 := mustSet(t, e, s, "l", "k2", "a")
		e3 := mustSet(t, e, s, "l", "k1", "b")
		e4 := mustSet(t, e, s, "l", "k3", "a")
		other := mustSet(t, e, s, "m", "k1", "a")

		var n int
		err := kv.Update(ctx, e, func(tx kv.Txn) error {
			var err error
			n, err = s.RemoveAllBefore(ctx, tx, "l", e2)
			return err
		})
		if err != nil {
			t.Fatalf("remove before: %v", err)
		}
		if n != 2 {
			t.Fatalf("removed: got %d want 2", n)
		}
		sameEtags(t, readAll(t, e, s, "l"), e3, e4)
		sameEtags(t, readAll(t, e, s, "m"), other)
		for _, item := range readAll(t, e, s, "l") {
			if item.Etag == e1 || item.Etag == e2 {
				t.Fatalf("pruned etag %s still listed", item.Etag)
			}
		}

		// k1's pointer moved to e3 before the prune and must survive it
		if item, ok := mustGet(t, e, s, "l", "k1"); !ok || item.Etag != e3 {
			t.Fatalf("k1 after prune: %+v ok=%v", item, ok)
		}
		if _, ok := mustGet(t, e, s, "l", "k2"); ok {
			t.Fatalf("k2 readable after prune")
		}

		// threshold below everything is a no-op
		err = kv.Update(ctx, e, func(tx kv.Txn) error {
			var err error
			n, err = s.RemoveAllBefore(ctx, tx, "l", etag.Zero)
			return err
		})
		if err != nil || n != 0 {
			t.Fatalf("zero threshold: n=%d err=%v", n, err)
		}
	})
}

func TestRemoveAllOlderThan(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e kv.Engine) {
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		clock := base
		s := openStore(t, e, Options{Now: func() time.Time { return clock }})
		ctx := context.Background()

		t1, t2, t3 := base, base.Add(time.Second), base.Add(2*time.Second)
		clock = t1
		mustSet(t, e, s, "l", "a", "1")
		clock = t2
		mustSet(t, e, s, "l", "b", "2")
		clock = t3
		e3 := mustSet(t, e, s, "l", "c", "3")

		var n int
		err := kv.Update(ctx, e, func(tx kv.Txn) error {
			var err error
			n, err = s.RemoveAllOlderThan(ctx, tx, "l", t2)
			return err
		})
		if err != nil {
			t.Fatalf("remove older: %v", err)
		}
		if n != 2 {
			t.Fatalf("removed: got %d want 2", n)
		}
		rest := readAll(t, e, s, "l")
		sameEtags(t, rest, e3)
		if !rest[0].CreatedAt.Equal(t3) {
			t.Fatalf("createdAt: got %v want %v", rest[0].CreatedAt, t3)
		}

		// a cutoff past the int64 nanosecond range still covers everything
		far := time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC)
		err = kv.Update(ctx, e, func(tx kv.Txn) error {
			var err error
			n, err = s.RemoveAllOlderThan(ctx, tx, "l", far)
			return err
		})
		if err != nil {
			t.Fatalf("remove older than %v: %v", far, err)
		}
		if n != 1 {
			t.Fatalf("far cutoff removed: got %d want 1", n)
		}
		sameEtags(t, readAll(t, e, s, "l"))
	})
}

func TestReadLast(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e kv.Engine) {
		s := openStore(t, e, Options{})
		ctx := context.Background()
		last := func(name string) (ListItem, bool) {
			var item ListItem
			var ok bool
			if err := kv.View(ctx, e, func(tx kv.Txn) error {
				var err error
				item, ok, err = s.ReadLast(ctx, tx, name)
				return err
			}); err != nil {
				t.Fatalf("read last: %v", err)
			}
			return item, ok
		}
		if _, ok := last("l"); ok {
			t.Fatalf("empty list has a last item")
		}
		mustSet(t, e, s, "l", "a", "1")
		e2 := mustSet(t, e, s, "l", "b", "2")
		mustSet(t, e, s, "l2", "a", "x")
		item, ok := last("l")
		if !ok || item.Etag != e2 || item.Key != "b" {
			t.Fatalf("last: %+v ok=%v", item, ok)
		}
	})
}

func TestNamesAndCount(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e kv.Engine) {
		s := openStore(t, e, Options{})
		ctx := context.Background()
		mustSet(t, e, s, "a", "k", "1")
		mustSet(t, e, s, "a", "k", "2")
		mustSet(t, e, s, "ab", "k", "1")
		mustSet(t, e, s, "b", "k", "1")

		_ = kv.View(ctx, e, func(tx kv.Txn) error {
			names, err := s.Names(ctx, tx)
			if err != nil {
				t.Fatalf("names: %v", err)
			}
			if fmt.Sprint(names) != "[a b ab]" {
				t.Fatalf("names: %v", names)
			}
			for name, want := range map[string]int{"a": 2, "ab": 1, "b": 1, "zz": 0} {
				n, err := s.Count(ctx, tx, name)
				if err != nil || n != want {
					t.Fatalf("count %s: got %d err=%v want %d", name, n, err, want)
				}
			}
			return nil
		})
	})
}

func TestReadOnlyTxnRejectsWrites(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e kv.Engine) {
		s := openStore(t, e, Options{})
		ctx := context.Background()
		_ = kv.View(ctx, e, func(tx kv.Txn) error {
			if _, err := s.Set(ctx, tx, "l", "k", nil, etag.KindLists); !errors.Is(err, kv.ErrReadOnly) {
				t.Fatalf("set: %v", err)
			}
			if err := s.Remove(ctx, tx, "l", "k"); !errors.Is(err, kv.ErrReadOnly) {
				t.Fatalf("remove: %v", err)
			}
			if _, err := s.RemoveAllBefore(ctx, tx, "l", etag.Max); !errors.Is(err, kv.ErrReadOnly) {
				t.Fatalf("remove before: %v", err)
			}
			return nil
		})
	})
}

func TestPulseCommitsPartway(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e kv.Engine) {
		// each record delete is three ops, so this pulses every second record
		s := openStore(t, e, Options{Pulse: PulseEvery(6)})
		ctx := context.Background()
		for i := 0; i < 9; i++ {
			mustSet(t, e, s, "l", fmt.Sprintf("k%d", i), "v")
		}

		tx, err := e.Begin(ctx, true)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		n, err := s.RemoveAllBefore(ctx, tx, "l", etag.Max)
		if err != nil {
			t.Fatalf("remove before: %v", err)
		}
		if n != 9 {
			t.Fatalf("removed: %d", n)
		}
		// eight deletes were pulsed and are visible outside tx
		if got := len(readAll(t, e, s, "l")); got != 1 {
			t.Fatalf("visible before rollback: %d", got)
		}
		if err := tx.Rollback(); err != nil {
			t.Fatalf("rollback: %v", err)
		}
		rest := readAll(t, e, s, "l")
		if len(rest) != 1 || rest[0].Key != "k8" {
			t.Fatalf("after rollback: %+v", rest)
		}
	})
}

func TestRemoveOlderThanStopsOnCancel(t *testing.T) {
	e := memory.New()
	s := openStore(t, e, Options{})
	for i := 0; i < 3; i++ {
		mustSet(t, e, s, "l", fmt.Sprintf("k%d", i), "v")
	}
	ctx, cancel := context.WithCancel(context.Background())
	tx, err := e.Begin(ctx, true)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	cancel()
	if _, err := s.RemoveAllOlderThan(ctx, tx, "l", time.Now().Add(time.Hour)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestGeneratorSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	prev := etag.NowMs
	t.Cleanup(func() { etag.NowMs = prev })

	etag.NowMs = func() int64 { return 5000 }
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s, err := Open(context.Background(), db, Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	before := mustSet(t, db, s, "l", "k", "v")
	_ = s.Close()
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// the wall clock moved backwards across the restart
	etag.NowMs = func() int64 { return 1000 }
	db, err = pebblestore.Open(pebblestore.Options{DataDir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	s = openStore(t, db, Options{})
	after := mustSet(t, db, s, "l", "k", "v2")
	if after.Compare(before) <= 0 {
		t.Fatalf("etag went backwards across restart: %s <= %s", after, before)
	}
	sameEtags(t, readAll(t, db, s, "l"), before, after)
}

type pulseCounter struct {
	NoopMetrics
	pulses int
}

func (p *pulseCounter) ObservePulse(string) { p.pulses++ }

func TestPulseEveryCountsKVOps(t *testing.T) {
	forEachEngine(t, func(t *testing.T, e kv.Engine) {
		// three deletes per record meet the threshold on every record
		m := &pulseCounter{}
		s := openStore(t, e, Options{Pulse: PulseEvery(3), Metrics: m})
		ctx := context.Background()
		for i := 0; i < 4; i++ {
			mustSet(t, e, s, "l", fmt.Sprintf("k%d", i), "v")
		}

		var n int
		err := kv.Update(ctx, e, func(tx kv.Txn) error {
			var err error
			n, err = s.RemoveAllBefore(ctx, tx, "l", etag.Max)
			return err
		})
		if err != nil {
			t.Fatalf("remove before: %v", err)
		}
		if n != 4 || m.pulses != 4 {
			t.Fatalf("removed=%d pulses=%d, want 4 and 4", n, m.pulses)
		}
	})
}
