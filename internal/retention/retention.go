// Package retention prunes configured lists by age on a cron schedule.
// It runs outside the list store, each pass in its own transactions.
package retention

import (
	"context"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/cockroachdb/errors"

	cfgpkg "github.com/rzbill/listdb/internal/config"
	"github.com/rzbill/listdb/internal/kv"
	"github.com/rzbill/listdb/internal/lists"
	logpkg "github.com/rzbill/listdb/pkg/log"
)

// Report summarises one retention pass.
type Report struct {
	Started time.Time
	Removed map[string]int
	Total   int
}

// Manager prunes the configured lists by age, once via RunOnce or on the
// configured cron schedule via Run. Run skips a tick while a pass is running.
type Manager struct {
	engine kv.Engine
	store  *lists.Store
	cfg    cfgpkg.RetentionConfig
	logger logpkg.Logger
	now    func() time.Time

	mu      sync.Mutex
	running bool
}

// New returns a Manager that prunes store through engine per cfg. A nil
// logger discards output.
func New(engine kv.Engine, store *lists.Store, cfg cfgpkg.RetentionConfig, logger logpkg.Logger) *Manager {
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	return &Manager{
		engine: engine,
		store:  store,
		cfg:    cfg,
		logger: logger.With(logpkg.Component("retention")),
		now:    time.Now,
	}
}

// RunOnce prunes every configured list once. A failing list does not stop
// the others; their errors are combined.
func (m *Manager) RunOnce(ctx context.Context) (Report, error) {
	rep := Report{Started: m.now(), Removed: make(map[string]int, len(m.cfg.Lists))}
	m.logger.Info("retention run start", logpkg.Int("lists", len(m.cfg.Lists)))

	var errs error
	for _, l := range m.cfg.Lists {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		cutoff := rep.Started.Add(-l.MaxAge.Duration())
		var n int
		err := kv.Update(ctx, m.engine, func(tx kv.Txn) error {
			var err error
			n, err = m.store.RemoveAllOlderThan(ctx, tx, l.Name, cutoff)
			return err
		})
		// pulsed deletes are committed even when the pass fails
		rep.Removed[l.Name] = n
		rep.Total += n
		if err != nil {
			m.logger.Error("retention list failed", logpkg.Str("list", l.Name), logpkg.Err(err))
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "retention: %s", l.Name))
			continue
		}
		m.logger.Debug("retention list done",
			logpkg.Str("list", l.Name),
			logpkg.Int("removed", n),
			logpkg.Str("cutoff", cutoff.Format(time.RFC3339)))
	}
	m.logger.Info("retention run done",
		logpkg.Int("removed", rep.Total),
		logpkg.Dur("took", m.now().Sub(rep.Started)))
	return rep, errs
}

// Run blocks, running a pass at every tick of the configured cron
// expression until ctx is done. Disabled retention returns immediately.
func (m *Manager) Run(ctx context.Context) error {
	if !m.cfg.Enabled {
		m.logger.Info("retention disabled")
		return nil
	}
	if !gronx.IsValid(m.cfg.Cron) {
		return errors.Newf("retention: invalid cron expression: %s", m.cfg.Cron)
	}
	m.logger.Info("retention enabled", logpkg.Str("cron", m.cfg.Cron))
	for {
		next, err := gronx.NextTickAfter(m.cfg.Cron, m.now(), false)
		if err != nil {
			m.logger.Error("retention next tick failed", logpkg.Str("cron", m.cfg.Cron), logpkg.Err(err))
			if !sleep(ctx, 30*time.Second) {
				return nil
			}
			continue
		}
		if !sleep(ctx, next.Sub(m.now())) {
			return nil
		}
		m.runJob(ctx)
	}
}

func (m *Manager) runJob(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	if _, err := m.RunOnce(ctx); err != nil && ctx.Err() == nil {
		m.logger.Error("retention run error", logpkg.Err(err))
	}
}

// sleep waits for d or ctx; it reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
