package selector

import (
	"sync"

	"tars-rpc/endpoint"
)

// ModHash routes a message to nodes[hash mod len]. The mapping is stable
// while the list is stable, but any list change remaps most keys — use
// ConsistentHash when that matters.
type ModHash struct {
	mu    sync.RWMutex
	nodes []endpoint.Endpoint
}

// NewModHash creates an empty mod-hash selector.
func NewModHash() *ModHash {
	return &ModHash{}
}

// NewModHashWith creates a mod-hash selector over nodes.
func NewModHashWith(nodes []endpoint.Endpoint) *ModHash {
	m := NewModHash()
	m.Refresh(nodes)
	return m
}

// Select returns the endpoint at the message's hash code modulo the list
// length.
func (s *ModHash) Select(msg Message) (endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.nodes) == 0 {
		return endpoint.Endpoint{}, errNoEndpoint
	}
	idx := int(msg.HashCode() % uint32(len(s.nodes)))
	return s.nodes[idx], nil
}

// Refresh replaces the endpoint list.
func (s *ModHash) Refresh(nodes []endpoint.Endpoint) {
	snapshot := make([]endpoint.Endpoint, len(nodes))
	copy(snapshot, nodes)
	s.mu.Lock()
	s.nodes = snapshot
	s.mu.Unlock()
}

// Add appends a node unless it is already present.
func (s *ModHash) Add(node endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !containsEndpoint(s.nodes, node) {
		s.nodes = append(s.nodes, node)
	}
	return nil
}

// Remove drops a node by identity.
func (s *ModHash) Remove(node endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = removeEndpoint(s.nodes, node)
	return nil
}

// All returns a copy of the current list.
func (s *ModHash) All() []endpoint.Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]endpoint.Endpoint, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Len returns the current endpoint count.
func (s *ModHash) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}
