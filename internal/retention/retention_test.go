package retention

import (
	"context"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/listdb/internal/config"
	"github.com/rzbill/listdb/internal/kv"
	"github.com/rzbill/listdb/internal/lists"
	"github.com/rzbill/listdb/internal/storage/memory"
	"github.com/rzbill/listdb/pkg/etag"
)

func TestRunOncePrunesConfiguredLists(t *testing.T) {
	ctx := context.Background()
	e := memory.New()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	store, err := lists.Open(ctx, e, lists.Options{Now: func() time.Time { return clock }})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	set := func(name, key string, at time.Time) {
		clock = at
		if err := kv.Update(ctx, e, func(tx kv.Txn) error {
			_, err := store.Set(ctx, tx, name, key, []byte("{}"), etag.KindLists)
			return err
		}); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	set("orders", "old", now.Add(-48*time.Hour))
	set("orders", "edge", now.Add(-24*time.Hour))
	set("orders", "new", now.Add(-time.Hour))
	set("audit", "old", now.Add(-48*time.Hour))
	set("keep", "old", now.Add(-48*time.Hour))

	m := New(e, store, cfgpkg.RetentionConfig{
		Enabled: true,
		Cron:    "0 2 * * *",
		Lists: []cfgpkg.RetentionList{
			{Name: "orders", MaxAge: cfgpkg.Duration(24 * time.Hour)},
			{Name: "audit", MaxAge: cfgpkg.Duration(72 * time.Hour)},
		},
	}, nil)
	m.now = func() time.Time { return now }

	rep, err := m.RunOnce(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Removed["orders"] != 2 || rep.Removed["audit"] != 0 || rep.Total != 2 {
		t.Fatalf("report: %+v", rep)
	}

	_ = kv.View(ctx, e, func(tx kv.Txn) error {
		for name, want := range map[string]int{"orders": 1, "audit": 1, "keep": 1} {
			n, err := store.Count(ctx, tx, name)
			if err != nil || n != want {
				t.Fatalf("count %s: %d (%v), want %d", name, n, err, want)
			}
		}
		item, ok, err := store.Get(ctx, tx, "orders", "new")
		if err != nil || !ok || item.Key != "new" {
			t.Fatalf("new record lost: %+v %v %v", item, ok, err)
		}
		return nil
	})
}

func TestRunDisabledReturns(t *testing.T) {
	m := New(memory.New(), nil, cfgpkg.RetentionConfig{Enabled: false}, nil)
	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	m := New(memory.New(), nil, cfgpkg.RetentionConfig{Enabled: true, Cron: "0 0 1 1 *"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}

func TestRunRejectsBadCron(t *testing.T) {
	m := New(memory.New(), nil, cfgpkg.RetentionConfig{Enabled: true, Cron: "whenever"}, nil)
	if err := m.Run(context.Background()); err == nil {
		t.Fatalf("expected cron error")
	}
}
