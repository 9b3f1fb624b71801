// Package registry implements service discovery: the Tars query-protocol
// registrar with per-node circuit breaking and failover, an etcd-backed
// registry for self-registration, and the endpoint manager that feeds
// proxies with refreshed endpoint lists.
package registry

import (
	"sync"
	"sync/atomic"
	"time"
)

// The registry path is intolerant of failures — many nodes exist, so one
// failure is enough to route around a node.
const (
	failThreshold   int32 = 1
	recoverInterval int64 = 30 // seconds
)

// nowSecs is replaceable in tests.
var nowSecs = func() int64 { return time.Now().Unix() }

// NodeBreaker is the availability state of one registry node.
type NodeBreaker struct {
	address string

	available       atomic.Bool
	failCount       atomic.Int32 // consecutive
	lastFailTime    atomic.Int64
	lastSuccessTime atomic.Int64
	circuitOpenTime atomic.Int64
}

// NewNodeBreaker creates a breaker for the node address, initially
// available.
func NewNodeBreaker(address string) *NodeBreaker {
	b := &NodeBreaker{address: address}
	b.available.Store(true)
	b.lastSuccessTime.Store(nowSecs())
	return b
}

// Address returns the node address.
func (b *NodeBreaker) Address() string { return b.address }

// IsAvailable reports whether the node may be used: either the circuit is
// closed, or it has been open long enough that a half-open probe is due.
func (b *NodeBreaker) IsAvailable() bool {
	if b.available.Load() {
		return true
	}
	return nowSecs()-b.circuitOpenTime.Load() >= recoverInterval
}

// RecordSuccess closes the circuit and clears the failure streak.
func (b *NodeBreaker) RecordSuccess() {
	b.available.Store(true)
	b.failCount.Store(0)
	b.lastSuccessTime.Store(nowSecs())
}

// RecordFailure counts one failure and opens the circuit at the
// threshold. Returns true exactly when this call opened the circuit.
func (b *NodeBreaker) RecordFailure() bool {
	count := b.failCount.Add(1)
	b.lastFailTime.Store(nowSecs())

	if count >= failThreshold {
		// Only the caller that flips available wins the transition.
		if b.available.CompareAndSwap(true, false) {
			b.circuitOpenTime.Store(nowSecs())
			return true
		}
	}
	return false
}

// Reset restores the breaker to its initial closed state.
func (b *NodeBreaker) Reset() {
	b.available.Store(true)
	b.failCount.Store(0)
	b.circuitOpenTime.Store(0)
}

// Breakers manages one NodeBreaker per node address.
type Breakers struct {
	mu       sync.Mutex
	breakers map[string]*NodeBreaker
}

// NewBreakers creates an empty manager.
func NewBreakers() *Breakers {
	return &Breakers{breakers: map[string]*NodeBreaker{}}
}

// Get returns the breaker for an address, creating it on first use.
func (m *Breakers) Get(address string) *NodeBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[address]
	if !ok {
		b = NewNodeBreaker(address)
		m.breakers[address] = b
	}
	return b
}

// FilterAvailable returns the subset of addresses whose breakers allow
// use. Addresses with no breaker yet count as available.
func (m *Breakers) FilterAvailable(addresses []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if b, ok := m.breakers[addr]; !ok || b.IsAvailable() {
			out = append(out, addr)
		}
	}
	return out
}

// AvailableCount returns how many of the addresses are usable.
func (m *Breakers) AvailableCount(addresses []string) int {
	return len(m.FilterAvailable(addresses))
}

// ResetAll restores every breaker.
func (m *Breakers) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.breakers {
		b.Reset()
	}
}
