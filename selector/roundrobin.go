package selector

import (
	"sync"
	"sync/atomic"

	"tars-rpc/endpoint"
)

// RoundRobin cycles through endpoints in order using an atomic counter, so
// concurrent callers distribute evenly without serializing on Select.
type RoundRobin struct {
	mu    sync.RWMutex
	nodes []endpoint.Endpoint
	index atomic.Uint64
}

// NewRoundRobin creates an empty round-robin selector.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// NewRoundRobinWith creates a round-robin selector over nodes.
func NewRoundRobinWith(nodes []endpoint.Endpoint) *RoundRobin {
	rr := NewRoundRobin()
	rr.Refresh(nodes)
	return rr
}

// Select returns the next endpoint in the cycle.
func (s *RoundRobin) Select(_ Message) (endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.nodes) == 0 {
		return endpoint.Endpoint{}, errNoEndpoint
	}
	idx := s.index.Add(1) % uint64(len(s.nodes))
	return s.nodes[idx], nil
}

// Refresh replaces the endpoint list.
func (s *RoundRobin) Refresh(nodes []endpoint.Endpoint) {
	snapshot := make([]endpoint.Endpoint, len(nodes))
	copy(snapshot, nodes)
	s.mu.Lock()
	s.nodes = snapshot
	s.mu.Unlock()
}

// Add appends a node unless it is already present.
func (s *RoundRobin) Add(node endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !containsEndpoint(s.nodes, node) {
		s.nodes = append(s.nodes, node)
	}
	return nil
}

// Remove drops a node by identity.
func (s *RoundRobin) Remove(node endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = removeEndpoint(s.nodes, node)
	return nil
}

// All returns a copy of the current list.
func (s *RoundRobin) All() []endpoint.Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]endpoint.Endpoint, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Len returns the current endpoint count.
func (s *RoundRobin) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

func containsEndpoint(nodes []endpoint.Endpoint, node endpoint.Endpoint) bool {
	for i := range nodes {
		if nodes[i].Equal(node) {
			return true
		}
	}
	return false
}

func removeEndpoint(nodes []endpoint.Endpoint, node endpoint.Endpoint) []endpoint.Endpoint {
	out := nodes[:0]
	for i := range nodes {
		if !nodes[i].Equal(node) {
			out = append(out, nodes[i])
		}
	}
	return out
}
