package selector

import (
	"math/rand"
	"sync"

	"tars-rpc/endpoint"
)

// Random picks uniformly over the current list.
type Random struct {
	mu    sync.RWMutex
	nodes []endpoint.Endpoint
}

// NewRandom creates an empty random selector.
func NewRandom() *Random {
	return &Random{}
}

// NewRandomWith creates a random selector over nodes.
func NewRandomWith(nodes []endpoint.Endpoint) *Random {
	r := NewRandom()
	r.Refresh(nodes)
	return r
}

// Select returns a uniformly random endpoint.
func (s *Random) Select(_ Message) (endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.nodes) == 0 {
		return endpoint.Endpoint{}, errNoEndpoint
	}
	return s.nodes[rand.Intn(len(s.nodes))], nil
}

// Refresh replaces the endpoint list.
func (s *Random) Refresh(nodes []endpoint.Endpoint) {
	snapshot := make([]endpoint.Endpoint, len(nodes))
	copy(snapshot, nodes)
	s.mu.Lock()
	s.nodes = snapshot
	s.mu.Unlock()
}

// Add appends a node unless it is already present.
func (s *Random) Add(node endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !containsEndpoint(s.nodes, node) {
		s.nodes = append(s.nodes, node)
	}
	return nil
}

// Remove drops a node by identity.
func (s *Random) Remove(node endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = removeEndpoint(s.nodes, node)
	return nil
}

// All returns a copy of the current list.
func (s *Random) All() []endpoint.Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]endpoint.Endpoint, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Len returns the current endpoint count.
func (s *Random) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}
