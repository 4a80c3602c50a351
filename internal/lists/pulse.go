package lists

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/rzbill/listdb/internal/kv"
)

// PulsePolicy decides, after each record of a bulk removal, whether the
// transaction should commit what it has and continue in a fresh batch.
// Pulsing bounds batch memory at the cost of whole-operation atomicity.
type PulsePolicy interface {
	ShouldPulse(stats kv.BatchStats) bool
}

// PulseFunc adapts a function to PulsePolicy.
type PulseFunc func(kv.BatchStats) bool

func (f PulseFunc) ShouldPulse(s kv.BatchStats) bool { return f(s) }

// NeverPulse keeps the whole operation in one batch.
var NeverPulse PulsePolicy = PulseFunc(func(kv.BatchStats) bool { return false })

// PulseEvery pulses once the batch holds at least n kv operations. A pruned
// record costs three: primary, ByName and (usually) ByNameAndKey.
func PulseEvery(n int) PulsePolicy {
	if n <= 0 {
		return NeverPulse
	}
	return PulseFunc(func(s kv.BatchStats) bool { return s.Ops >= n })
}

// PulseAtBytes pulses once the batch holds at least n bytes of keys and values.
func PulseAtBytes(n int) PulsePolicy {
	if n <= 0 {
		return NeverPulse
	}
	return PulseFunc(func(s kv.BatchStats) bool { return s.Bytes >= n })
}

// AnyPulse pulses when any of the given policies would.
func AnyPulse(policies ...PulsePolicy) PulsePolicy {
	return PulseFunc(func(s kv.BatchStats) bool {
		for _, p := range policies {
			if p != nil && p.ShouldPulse(s) {
				return true
			}
		}
		return false
	})
}

// pulser applies a policy and an optional rate limit between commits.
type pulser struct {
	policy  PulsePolicy
	limiter *rate.Limiter
}

func newPulser(policy PulsePolicy, perSecond float64) *pulser {
	if policy == nil {
		policy = NeverPulse
	}
	p := &pulser{policy: policy}
	if perSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return p
}

func (p *pulser) due(tx kv.Txn) bool {
	return tx.Writable() && p.policy.ShouldPulse(tx.Stats())
}

// pulse commits and restarts tx, waiting on the limiter first.
func (p *pulser) pulse(ctx context.Context, tx kv.Txn) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return tx.Pulse(ctx)
}
