// Package keymanager owns the pools of API tokens used to call the
// DigitalOcean API, each tagged with a types.KeyPurpose, and picks the token
// with the most headroom for a given purpose, falling back to the default
// pool when the requested purpose has no tokens or no headroom.
package keymanager

import (
	"errors"
	"sync"
	"time"

	"github.com/cuemby/droxporter/pkg/log"
	"github.com/cuemby/droxporter/pkg/metrics"
	"github.com/cuemby/droxporter/pkg/ratelimit"
	"github.com/cuemby/droxporter/pkg/types"
	"github.com/rs/zerolog"
)

// ErrKeyNotFound is returned when both the requested pool and default are empty.
var ErrKeyNotFound = errors.New("key not found")

// ErrLimitExceeded is returned when no token in the requested or default pool
// currently has headroom.
var ErrLimitExceeded = errors.New("limit exceeded")

// token pairs an opaque API key string with its own per-tier rate state.
type token struct {
	value string
	state *ratelimit.State
}

// TierSpec describes one tier of the leaky bucket shared by every token,
// e.g. {Capacity: 250, Window: time.Minute}.
type TierSpec struct {
	Capacity uint
	Window   time.Duration
}

// Manager is the pool of tokens per purpose, guarded by a single mutex so
// token selection is linearizable: two concurrent acquirers never pick the
// same marginal capacity.
type Manager struct {
	mu           sync.Mutex
	pools        map[types.KeyPurpose][]*token
	tiers        []TierSpec
	vectors      *metrics.Vectors
	recordLimits bool
	logger       zerolog.Logger
	nowMS        func() int64
}

// New builds a Manager from a purpose->token-values map (callers must
// include a "default" entry, possibly empty) and the tier specs applied to
// every new token. recordLimits gates remaining_limits_by_key,
// keys_count_by_status, and keys_errors, per spec.md §4.2 ("enabled iff
// self-metrics include limits") — independent of vectors being nil, which
// only guards against a caller that built no registry at all (e.g. tests).
func New(pools map[types.KeyPurpose][]string, tiers []TierSpec, vectors *metrics.Vectors, recordLimits bool) *Manager {
	m := &Manager{
		pools:        make(map[types.KeyPurpose][]*token),
		tiers:        tiers,
		vectors:      vectors,
		recordLimits: recordLimits,
		logger:       log.WithComponent("keymanager"),
		nowMS:        func() int64 { return time.Now().UnixMilli() },
	}
	for purpose, values := range pools {
		for _, v := range values {
			m.pools[purpose] = append(m.pools[purpose], newToken(v, tiers))
		}
	}
	return m
}

func newToken(value string, tiers []TierSpec) *token {
	rlTiers := make([]ratelimit.Tier, len(tiers))
	for i, t := range tiers {
		rlTiers[i] = ratelimit.NewTier(t.Capacity, t.Window.Milliseconds())
	}
	return &token{value: value, state: ratelimit.NewState(rlTiers...)}
}

// Acquire implements C2's operation exactly: try the requested purpose's
// pool, and on a configuration miss or an exhausted pool, recurse exactly
// once into the default pool. The keys_errors counter uses the originally
// requested purpose's label, and is incremented even when the fallback
// succeeds (spec.md §4.2, a preserved source quirk, not re-derived here);
// the per-pool usage gauges are labelled with the pool actually drawn from.
func (m *Manager) Acquire(purpose types.KeyPurpose) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquireLocked(purpose, purpose, 0)
}

func (m *Manager) acquireLocked(requested, purpose types.KeyPurpose, depth int) (string, error) {
	pool, configured := m.pools[purpose]

	if !configured {
		if purpose == types.PurposeDefault {
			if _, requestedConfigured := m.pools[requested]; requestedConfigured {
				m.recordFailure(requested, "limit exceeded")
				return "", ErrLimitExceeded
			}
			m.recordFailure(requested, "key not found")
			return "", ErrKeyNotFound
		}
		return m.acquireLocked(requested, types.PurposeDefault, depth+1)
	}

	now := m.nowMS()
	best := selectBest(pool, now)
	if best == nil {
		if purpose == types.PurposeDefault {
			m.recordFailure(requested, "limit exceeded")
			return "", ErrLimitExceeded
		}
		m.recordFailure(requested, "limit exceeded")
		return m.acquireLocked(requested, types.PurposeDefault, depth+1)
	}

	best.state.Acquire(now)
	m.recordUsage(purpose)
	return best.value, nil
}

// selectBest picks, among tokens with headroom, the one maximizing the sum
// of estimated remaining across tiers. Ties resolve to the first-found
// token, i.e. stable w.r.t. pool order.
func selectBest(pool []*token, now int64) *token {
	var best *token
	var bestSum uint
	for _, tok := range pool {
		if !tok.state.CanAcquire(now) {
			continue
		}
		sum := ratelimit.Sum(tok.state.EstimateRemaining(now))
		if best == nil || sum > bestSum {
			best = tok
			bestSum = sum
		}
	}
	return best
}

func (m *Manager) recordFailure(purpose types.KeyPurpose, reason string) {
	m.logger.Warn().Str("purpose", string(purpose)).Str("reason", reason).Msg("key acquisition failed")
	if m.vectors == nil || !m.recordLimits {
		return
	}
	m.vectors.KeysErrors.WithLabelValues(string(purpose), reason).Inc()
}

func (m *Manager) recordUsage(purpose types.KeyPurpose) {
	if m.vectors == nil || !m.recordLimits {
		return
	}
	pool := m.pools[purpose]
	now := m.nowMS()
	active, exceeded := 0, 0
	for _, tok := range pool {
		if tok.state.CanAcquire(now) {
			active++
		} else {
			exceeded++
		}
	}
	m.vectors.KeysCountByStatus.WithLabelValues(string(purpose), "active").Set(float64(active))
	m.vectors.KeysCountByStatus.WithLabelValues(string(purpose), "exceeded").Set(float64(exceeded))

	if len(pool) == 0 {
		return
	}
	tierCount := len(pool[0].state.Tiers())
	for tier := 0; tier < tierCount; tier++ {
		var sum float32
		for _, tok := range pool {
			tiers := tok.state.Tiers()
			if tier < len(tiers) {
				sum += tiers[tier].Remaining()
			}
		}
		m.vectors.RemainingLimitsByKey.WithLabelValues(string(purpose), tierLabel(tier)).Set(float64(sum))
	}
}

func tierLabel(i int) string {
	switch i {
	case 0:
		return "minute"
	case 1:
		return "hour"
	default:
		return "tier"
	}
}
