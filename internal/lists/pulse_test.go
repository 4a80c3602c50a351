package lists

import (
	"context"
	"testing"
	"time"

	"github.com/rzbill/listdb/internal/kv"
	"github.com/rzbill/listdb/internal/storage/memory"
)

func TestPulsePolicies(t *testing.T) {
	cases := []struct {
		name   string
		policy PulsePolicy
		stats  kv.BatchStats
		want   bool
	}{
		{"never", NeverPulse, kv.BatchStats{Ops: 1 << 20, Bytes: 1 << 30}, false},
		{"every below", PulseEvery(10), kv.BatchStats{Ops: 9}, false},
		{"every at", PulseEvery(10), kv.BatchStats{Ops: 10}, true},
		{"every zero", PulseEvery(0), kv.BatchStats{Ops: 100}, false},
		{"bytes below", PulseAtBytes(1024), kv.BatchStats{Bytes: 1023}, false},
		{"bytes at", PulseAtBytes(1024), kv.BatchStats{Bytes: 1024}, true},
		{"any ops", AnyPulse(PulseEvery(5), PulseAtBytes(1024)), kv.BatchStats{Ops: 5}, true},
		{"any bytes", AnyPulse(PulseEvery(5), PulseAtBytes(1024)), kv.BatchStats{Ops: 1, Bytes: 4096}, true},
		{"any none", AnyPulse(PulseEvery(5), nil), kv.BatchStats{Ops: 1}, false},
	}
	for _, tc := range cases {
		if got := tc.policy.ShouldPulse(tc.stats); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestPulserSkipsReadOnly(t *testing.T) {
	e := memory.New()
	p := newPulser(PulseEvery(1), 0)
	_ = kv.View(context.Background(), e, func(tx kv.Txn) error {
		if p.due(tx) {
			t.Fatalf("read-only txn due for pulse")
		}
		return nil
	})
}

func TestPulserRateLimit(t *testing.T) {
	e := memory.New()
	p := newPulser(PulseEvery(1), 20) // one pulse per 50ms after the first
	ctx := context.Background()
	tx, err := e.Begin(ctx, true)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := tx.Set([]byte{byte(i)}, nil); err != nil {
			t.Fatalf("set: %v", err)
		}
		if err := p.pulse(ctx, tx); err != nil {
			t.Fatalf("pulse: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("pulses not throttled: %v", elapsed)
	}
	if e.Len() != 3 {
		t.Fatalf("pulsed keys: %d", e.Len())
	}
}
