package selector

import (
	"fmt"
	"hash/crc32"
	"sort"
	"sync"

	"tars-rpc/endpoint"
)

// VirtualNodes is the number of ring positions each endpoint occupies.
//
// Without virtual nodes a handful of endpoints can cluster on the ring and
// skew the load badly; 100 positions per endpoint gives a statistically
// even spread.
const VirtualNodes = 100

// ConsistentHash maps hash codes onto a ring of virtual nodes so that
// adding an endpoint to a ring of k reassigns only about 1/(k+1) of the
// keys.
//
//	       0
//	     ╱   ╲
//	B ●         ● A
//	  │  key ◆──►     clockwise to the next node
//	C ●         ● A'  (virtual node of A)
//	     ╲   ╱
type ConsistentHash struct {
	mu sync.RWMutex
	// ring maps a virtual-node hash to its endpoint; keys holds the same
	// hashes sorted for binary search.
	ring  map[uint32]endpoint.Endpoint
	keys  []uint32
	nodes []endpoint.Endpoint
}

// NewConsistentHash creates an empty ring.
func NewConsistentHash() *ConsistentHash {
	return &ConsistentHash{ring: map[uint32]endpoint.Endpoint{}}
}

// NewConsistentHashWith creates a ring over nodes.
func NewConsistentHashWith(nodes []endpoint.Endpoint) *ConsistentHash {
	c := NewConsistentHash()
	c.Refresh(nodes)
	return c
}

// virtualKey hashes the i-th virtual node of an endpoint address.
func virtualKey(addr string, i int) uint32 {
	return crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", addr, i)))
}

// rebuild recomputes the whole ring. Caller holds the write lock.
func (s *ConsistentHash) rebuild() {
	s.ring = make(map[uint32]endpoint.Endpoint, len(s.nodes)*VirtualNodes)
	s.keys = s.keys[:0]
	for _, node := range s.nodes {
		for i := 0; i < VirtualNodes; i++ {
			key := virtualKey(node.Address(), i)
			s.ring[key] = node
			s.keys = append(s.keys, key)
		}
	}
	sort.Slice(s.keys, func(i, j int) bool { return s.keys[i] < s.keys[j] })
}

// Select walks the ring clockwise from the message's hash code to the
// first virtual node, wrapping past the end.
func (s *ConsistentHash) Select(msg Message) (endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.keys) == 0 {
		return endpoint.Endpoint{}, errNoEndpoint
	}
	hash := msg.HashCode()
	idx := sort.Search(len(s.keys), func(i int) bool { return s.keys[i] >= hash })
	if idx == len(s.keys) {
		idx = 0
	}
	return s.ring[s.keys[idx]], nil
}

// Refresh replaces the node set and rebuilds the ring.
func (s *ConsistentHash) Refresh(nodes []endpoint.Endpoint) {
	snapshot := make([]endpoint.Endpoint, len(nodes))
	copy(snapshot, nodes)
	s.mu.Lock()
	s.nodes = snapshot
	s.rebuild()
	s.mu.Unlock()
}

// Add inserts a node's virtual nodes without rebuilding the rest of the
// ring, then re-sorts the key array.
func (s *ConsistentHash) Add(node endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if containsEndpoint(s.nodes, node) {
		return nil
	}
	s.nodes = append(s.nodes, node)
	for i := 0; i < VirtualNodes; i++ {
		key := virtualKey(node.Address(), i)
		s.ring[key] = node
		s.keys = append(s.keys, key)
	}
	sort.Slice(s.keys, func(i, j int) bool { return s.keys[i] < s.keys[j] })
	return nil
}

// Remove drops a node and rebuilds the ring; removal cannot be done
// incrementally because virtual keys can collide.
func (s *ConsistentHash) Remove(node endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = removeEndpoint(s.nodes, node)
	s.rebuild()
	return nil
}

// All returns a copy of the node set.
func (s *ConsistentHash) All() []endpoint.Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]endpoint.Endpoint, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Len returns the node count (real nodes, not virtual).
func (s *ConsistentHash) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}
