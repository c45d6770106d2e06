// Package metrics records gate events for the stats endpoint and Prometheus.
package metrics

import (
	"container/list"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"github.com/KanavDutta/errorfence/gate"
)

const (
	// topIdentities is how many identities a snapshot lists.
	topIdentities = 10

	// DefaultMaxIdentities bounds per-identity stats. Beyond it the least
	// recently seen identity is evicted.
	DefaultMaxIdentities = 10000
)

// Metrics tracks error budget statistics in memory
type Metrics struct {
	totalRequests   atomic.Int64
	admitted        atomic.Int64
	throttled       atomic.Int64
	unauthenticated atomic.Int64
	unavailable     atomic.Int64
	charges         atomic.Int64
	clamps          atomic.Int64
	refilledTokens  atomic.Int64

	// Per-identity stats, most recently seen at the front of recent
	mu            sync.RWMutex
	identityStats map[string]*list.Element
	recent        *list.List
	maxIdentities int
	evicted       atomic.Int64

	clock     clock.PassiveClock
	startTime time.Time
}

// Ensure Metrics implements gate.Recorder
var _ gate.Recorder = (*Metrics)(nil)

// IdentityStats tracks statistics for a specific identity
type IdentityStats struct {
	Identity        string    `json:"identity"`
	TotalRequests   int64     `json:"total_requests"`
	Admitted        int64     `json:"admitted"`
	Throttled       int64     `json:"throttled"`
	Charges         int64     `json:"charges"`
	RemainingTokens int64     `json:"remaining_tokens"` // After the latest charge
	RefilledTokens  int64     `json:"refilled_tokens"`
	LastRequestAt   time.Time `json:"last_request_at"`
	FirstRequestAt  time.Time `json:"first_request_at"`
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return NewMetricsWithClock(clock.RealClock{})
}

// NewMetricsWithClock creates a metrics tracker driven by c
func NewMetricsWithClock(c clock.PassiveClock) *Metrics {
	return NewMetricsWithLimit(c, DefaultMaxIdentities)
}

// NewMetricsWithLimit creates a metrics tracker that keeps stats for at most
// maxIdentities identities. Totals are never affected by eviction.
func NewMetricsWithLimit(c clock.PassiveClock, maxIdentities int) *Metrics {
	if maxIdentities <= 0 {
		maxIdentities = DefaultMaxIdentities
	}
	return &Metrics{
		identityStats: make(map[string]*list.Element),
		recent:        list.New(),
		maxIdentities: maxIdentities,
		clock:         c,
		startTime:     c.Now(),
	}
}

// RecordDecision counts one admission decision
func (m *Metrics) RecordDecision(identity string, state gate.State) {
	m.totalRequests.Add(1)

	switch state {
	case gate.Admitted:
		m.admitted.Add(1)
	case gate.Throttled:
		m.throttled.Add(1)
	case gate.Unauthenticated:
		m.unauthenticated.Add(1)
	case gate.Unavailable:
		m.unavailable.Add(1)
	}

	// Unauthenticated requests have no identity to attribute
	if identity == "" {
		return
	}

	m.update(identity, func(stats *IdentityStats) {
		stats.TotalRequests++
		switch state {
		case gate.Admitted:
			stats.Admitted++
		case gate.Throttled:
			stats.Throttled++
		}
	})
}

// RecordCharge counts one spent token
func (m *Metrics) RecordCharge(identity string, remaining int64) {
	m.charges.Add(1)
	m.update(identity, func(stats *IdentityStats) {
		stats.Charges++
		stats.RemainingTokens = remaining
	})
}

// RecordClamp counts one underflow that was reset to zero
func (m *Metrics) RecordClamp(string) {
	m.clamps.Add(1)
}

// RecordRefill counts restored tokens
func (m *Metrics) RecordRefill(identity string, added int64) {
	m.refilledTokens.Add(added)
	m.update(identity, func(stats *IdentityStats) {
		stats.RefilledTokens += added
	})
}

func (m *Metrics) update(identity string, fn func(*IdentityStats)) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var stats *IdentityStats
	if elem, exists := m.identityStats[identity]; exists {
		m.recent.MoveToFront(elem)
		stats = elem.Value.(*IdentityStats)
	} else {
		if m.recent.Len() >= m.maxIdentities {
			oldest := m.recent.Back()
			m.recent.Remove(oldest)
			delete(m.identityStats, oldest.Value.(*IdentityStats).Identity)
			m.evicted.Add(1)
		}
		stats = &IdentityStats{
			Identity:       identity,
			FirstRequestAt: now,
		}
		m.identityStats[identity] = m.recent.PushFront(stats)
	}
	fn(stats)
	stats.LastRequestAt = now
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() *Snapshot {
	m.mu.RLock()
	top := make([]*IdentityStats, 0, len(m.identityStats))
	for elem := m.recent.Front(); elem != nil; elem = elem.Next() {
		copied := *elem.Value.(*IdentityStats)
		top = append(top, &copied)
	}
	unique := int64(len(m.identityStats))
	m.mu.RUnlock()

	// Most charged first; ties broken by traffic, then name for a stable order
	sort.Slice(top, func(i, j int) bool {
		if top[i].Charges != top[j].Charges {
			return top[i].Charges > top[j].Charges
		}
		if top[i].TotalRequests != top[j].TotalRequests {
			return top[i].TotalRequests > top[j].TotalRequests
		}
		return top[i].Identity < top[j].Identity
	})
	if len(top) > topIdentities {
		top = top[:topIdentities]
	}

	return &Snapshot{
		TotalRequests:     m.totalRequests.Load(),
		Admitted:          m.admitted.Load(),
		Throttled:         m.throttled.Load(),
		Unauthenticated:   m.unauthenticated.Load(),
		Unavailable:       m.unavailable.Load(),
		Charges:           m.charges.Load(),
		Clamps:            m.clamps.Load(),
		RefilledTokens:    m.refilledTokens.Load(),
		UniqueIdentities:  unique,
		EvictedIdentities: m.evicted.Load(),
		TopIdentities:     top,
		UptimeSeconds:     int64(m.clock.Since(m.startTime).Seconds()),
		StartTime:         m.startTime,
	}
}

// Snapshot represents a point-in-time view of metrics
type Snapshot struct {
	TotalRequests     int64            `json:"total_requests"`
	Admitted          int64            `json:"admitted"`
	Throttled         int64            `json:"throttled"`
	Unauthenticated   int64            `json:"unauthenticated"`
	Unavailable       int64            `json:"unavailable"`
	Charges           int64            `json:"charges"`
	Clamps            int64            `json:"clamps"`
	RefilledTokens    int64            `json:"refilled_tokens"`
	UniqueIdentities  int64            `json:"unique_identities"` // Currently tracked
	EvictedIdentities int64            `json:"evicted_identities"`
	TopIdentities     []*IdentityStats `json:"top_identities"`
	UptimeSeconds     int64            `json:"uptime_seconds"`
	StartTime         time.Time        `json:"start_time"`
}
