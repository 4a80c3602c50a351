package runtime

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	cfgpkg "github.com/rzbill/listdb/internal/config"
	"github.com/rzbill/listdb/internal/kv"
	"github.com/rzbill/listdb/internal/lists"
	"github.com/rzbill/listdb/internal/metrics"
	"github.com/rzbill/listdb/internal/storage/memory"
	pebblestore "github.com/rzbill/listdb/internal/storage/pebble"
	"github.com/rzbill/listdb/pkg/etag"
	logpkg "github.com/rzbill/listdb/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger logpkg.Logger
	// Metrics is optional; nil disables instrumentation.
	Metrics *metrics.Metrics
	// Now overrides the store clock, for tests.
	Now func() time.Time
}

// Runtime wires storage, config, and the list store for a single process.
type Runtime struct {
	engine  kv.Engine
	store   *lists.Store
	config  cfgpkg.Config
	logger  logpkg.Logger
	metrics *metrics.Metrics
}

// Open initializes the configured engine and list store.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	logger = logger.With(logpkg.Component("runtime"))

	engine, err := openEngine(cfg, opts.Metrics)
	if err != nil {
		return nil, err
	}

	codec, err := lists.ParseCodec(cfg.Compression)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}
	sopts := lists.Options{
		Generator:        etag.NewGenerator(),
		Codec:            codec,
		CompressMinBytes: cfg.CompressMinBytes.Int(),
		Pulse: lists.AnyPulse(
			lists.PulseEvery(cfg.Pulse.EveryOps),
			lists.PulseAtBytes(cfg.Pulse.MaxBatchBytes.Int()),
		),
		PulsesPerSecond: cfg.Pulse.PerSecond,
		Logger:          logger,
		Now:             opts.Now,
	}
	if opts.Metrics != nil {
		sopts.Metrics = opts.Metrics
	}
	store, err := lists.Open(ctx, engine, sopts)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}

	logger.Info("runtime opened",
		logpkg.Str("engine", cfg.Engine),
		logpkg.Str("data_dir", cfg.DataDir),
		logpkg.Str("compression", string(codec)))
	return &Runtime{engine: engine, store: store, config: cfg, logger: logger, metrics: opts.Metrics}, nil
}

func openEngine(cfg cfgpkg.Config, m *metrics.Metrics) (kv.Engine, error) {
	switch cfg.Engine {
	case "memory":
		return memory.New(), nil
	case "pebble", "":
		fsync, err := pebblestore.ParseFsyncMode(cfg.Fsync)
		if err != nil {
			return nil, err
		}
		popts := pebblestore.Options{
			DataDir:       cfg.DataDir,
			Fsync:         fsync,
			FsyncInterval: time.Duration(cfg.FsyncIntervalMs) * time.Millisecond,
		}
		if m != nil {
			popts.Metrics = m
		}
		return pebblestore.Open(popts)
	}
	return nil, errors.Newf("runtime: unknown engine %q", cfg.Engine)
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.engine == nil {
		return nil
	}
	err := r.store.Close()
	if cerr := r.engine.Close(); cerr != nil && err == nil {
		err = cerr
	}
	r.engine = nil
	return err
}

// CheckHealth opens and releases a read transaction.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.engine == nil {
		return errors.New("runtime: engine not open")
	}
	return kv.View(ctx, r.engine, func(tx kv.Txn) error {
		_, err := tx.Get([]byte("health"))
		if errors.Is(err, kv.ErrNotFound) {
			return nil
		}
		return err
	})
}

// Update runs fn in a writable transaction.
func (r *Runtime) Update(ctx context.Context, fn func(tx kv.Txn) error) error {
	return kv.Update(ctx, r.engine, fn)
}

// View runs fn in a read-only transaction.
func (r *Runtime) View(ctx context.Context, fn func(tx kv.Txn) error) error {
	return kv.View(ctx, r.engine, fn)
}

// Engine exposes the underlying engine (internal use only).
func (r *Runtime) Engine() kv.Engine { return r.engine }

// Store returns the list store.
func (r *Runtime) Store() *lists.Store { return r.store }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Metrics returns the metrics sink, or nil.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Logger returns the runtime logger.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }
