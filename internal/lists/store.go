package lists

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/rzbill/listdb/internal/kv"
	"github.com/rzbill/listdb/pkg/etag"
	logpkg "github.com/rzbill/listdb/pkg/log"
)

// ListItem is one stored entry of a list.
type ListItem struct {
	Name      string
	Key       string
	Etag      etag.Etag
	Data      []byte
	CreatedAt time.Time
}

// MetricsHook observes list store activity.
type MetricsHook interface {
	ObserveSet(payloadBytes int)
	ObserveRemoved(op string, n int)
	ObservePulse(op string)
	ObserveCorruption(structural bool)
}

// NoopMetrics discards observations.
type NoopMetrics struct{}

func (NoopMetrics) ObserveSet(int)            {}
func (NoopMetrics) ObserveRemoved(string, int) {}
func (NoopMetrics) ObservePulse(string)        {}
func (NoopMetrics) ObserveCorruption(bool)     {}

// Options configures a Store. The zero value stores payloads uncompressed
// and never pulses.
type Options struct {
	// Generator issues etags. Share one generator between every store of a
	// process; nil creates a private one.
	Generator *etag.Generator
	// Codec compresses payloads of at least CompressMinBytes bytes.
	Codec            Codec
	CompressMinBytes int
	// Pulse decides when bulk removals commit part way through.
	Pulse PulsePolicy
	// PulsesPerSecond caps the commit rate of bulk removals. Zero is unlimited.
	PulsesPerSecond float64
	Logger          logpkg.Logger
	Metrics         MetricsHook
	// Now stamps createdAt; defaults to time.Now.
	Now func() time.Time
}

// Store implements the list operations. It is safe for concurrent use as
// long as each goroutine uses its own transaction.
type Store struct {
	gen     *etag.Generator
	comp    *compressor
	pulser  *pulser
	logger  logpkg.Logger
	metrics MetricsHook
	now     func() time.Time
}

// Open builds a Store over engine and seeds the etag generator from the
// largest persisted record so new etags sort after everything on disk.
func Open(ctx context.Context, engine kv.Engine, opts Options) (*Store, error) {
	codec, err := ParseCodec(string(opts.Codec))
	if err != nil {
		return nil, err
	}
	comp, err := newCompressor(codec, opts.CompressMinBytes)
	if err != nil {
		return nil, err
	}
	s := &Store{
		gen:     opts.Generator,
		comp:    comp,
		pulser:  newPulser(opts.Pulse, opts.PulsesPerSecond),
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	if s.gen == nil {
		s.gen = etag.NewGenerator()
	}
	if s.logger == nil {
		s.logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	s.logger = s.logger.With(logpkg.Component("lists"))
	if s.metrics == nil {
		s.metrics = NoopMetrics{}
	}
	if s.now == nil {
		s.now = time.Now
	}

	var last etag.Etag
	err = kv.View(ctx, engine, func(tx kv.Txn) error {
		var err error
		last, err = s.lastPersisted(tx)
		return err
	})
	if err != nil {
		comp.close()
		return nil, errors.Wrap(err, "lists: seed etag generator")
	}
	if !last.IsZero() {
		s.gen.Observe(last)
		s.logger.Debug("etag generator seeded", logpkg.Str("last", last.String()))
	}
	return s, nil
}

// Close releases codec resources. It does not close the engine.
func (s *Store) Close() error {
	s.comp.close()
	return nil
}

func (s *Store) lastPersisted(tx kv.Txn) (etag.Etag, error) {
	cur, err := tx.NewCursor(primaryPrefix, kv.PrefixEnd(primaryPrefix))
	if err != nil {
		return etag.Etag{}, err
	}
	defer cur.Close()
	if !cur.Last() {
		return etag.Etag{}, cur.Error()
	}
	return etagSuffix(cur.Key(), len(primaryPrefix))
}

// loadHeader fetches and validates the primary record of e, which the ByName
// index of name points at.
func (s *Store) loadHeader(tx kv.Txn, name string, e etag.Etag) (recordHeader, []byte, error) {
	raw, err := tx.Get(keyPrimary(e))
	if errors.Is(err, kv.ErrNotFound) {
		return recordHeader{}, nil, s.corrupt(dataCorruption("lists: %q indexes %s but the record is missing", name, e))
	}
	if err != nil {
		return recordHeader{}, nil, err
	}
	h, stored, payload, err := decodeRecord(raw)
	if err != nil {
		return h, nil, s.corrupt(errors.Wrapf(err, "lists: record %s", e))
	}
	if stored != e || h.Name != name {
		return h, nil, s.corrupt(dataCorruption("lists: record %s belongs to %q/%s, indexed under %q", e, h.Name, stored, name))
	}
	return h, payload, nil
}

func (s *Store) load(tx kv.Txn, name string, e etag.Etag) (ListItem, error) {
	h, payload, err := s.loadHeader(tx, name, e)
	if err != nil {
		return ListItem{}, err
	}
	data, err := s.comp.decompress(h.Codec, payload)
	if err != nil {
		return ListItem{}, s.corrupt(errors.Wrapf(err, "lists: record %s", e))
	}
	return ListItem{
		Name:      h.Name,
		Key:       h.Key,
		Etag:      e,
		Data:      data,
		CreatedAt: time.Unix(0, h.CreatedAt).UTC(),
	}, nil
}

func (s *Store) corrupt(err error) error {
	structural := errors.Is(err, ErrStructuralCorruption)
	s.metrics.ObserveCorruption(structural)
	s.logger.Error("corrupt list entry", logpkg.Err(err), logpkg.Bool("structural", structural))
	return err
}
