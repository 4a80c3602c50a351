package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rzbill/listdb/internal/kv"
	"github.com/rzbill/listdb/internal/lists"
	pebblestore "github.com/rzbill/listdb/internal/storage/pebble"
	"github.com/rzbill/listdb/pkg/etag"
	logpkg "github.com/rzbill/listdb/pkg/log"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Outputs: []string{"null"}})
	m, err := New(logger)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	return m
}

func TestHooksRecordActivity(t *testing.T) {
	m := newTestMetrics(t)
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever, Metrics: m})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	s, err := lists.Open(ctx, db, lists.Options{Metrics: m, Pulse: lists.PulseEvery(3)})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	err = kv.Update(ctx, db, func(tx kv.Txn) error {
		for _, k := range []string{"a", "b", "c"} {
			if _, err := s.Set(ctx, tx, "l", k, []byte("12345"), etag.KindLists); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	err = kv.Update(ctx, db, func(tx kv.Txn) error {
		_, err := s.RemoveAllBefore(ctx, tx, "l", etag.Max)
		return err
	})
	if err != nil {
		t.Fatalf("prune: %v", err)
	}

	if got := testutil.ToFloat64(m.sets); got != 3 {
		t.Fatalf("sets: %v", got)
	}
	if got := testutil.ToFloat64(m.setBytes); got != 15 {
		t.Fatalf("set bytes: %v", got)
	}
	if got := testutil.ToFloat64(m.removed.WithLabelValues("remove_before")); got != 3 {
		t.Fatalf("removed: %v", got)
	}
	if got := testutil.ToFloat64(m.pulses.WithLabelValues("remove_before")); got != 3 {
		t.Fatalf("pulses: %v", got)
	}
	if got := testutil.ToFloat64(m.kvOps.WithLabelValues("commit")); got < 2 {
		t.Fatalf("commits: %v", got)
	}
}

func TestCorruptionLabels(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveCorruption(false)
	m.ObserveCorruption(true)
	m.ObserveCorruption(true)
	if got := testutil.ToFloat64(m.corruptions.WithLabelValues("structural")); got != 2 {
		t.Fatalf("structural: %v", got)
	}
	if got := testutil.ToFloat64(m.corruptions.WithLabelValues("data")); got != 1 {
		t.Fatalf("data: %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := newTestMetrics(t)
	m.ObserveBatchCommit(time.Millisecond, 4, 256)
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{"listdb_kv_batch_ops", "listdb_kv_ops_total", "go_goroutines"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("metric %s missing from scrape", name)
		}
	}
}
