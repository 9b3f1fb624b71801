package selector

import (
	"sync"
	"sync/atomic"

	"tars-rpc/endpoint"
)

// Static weight normalization clamps max/min to this range so one huge
// weight cannot explode the selection list.
const (
	minStaticWeightLimit = 10
	maxStaticWeightLimit = 100
)

// BuildStaticWeightList turns a set of statically weighted endpoints into
// a selection list of endpoint indices. Heavier endpoints appear more
// often, and smooth weighted round-robin interleaves them instead of
// bursting one endpoint repeatedly.
//
// Returns nil when the list is empty or any endpoint does not use static
// weights.
func BuildStaticWeightList(endpoints []endpoint.Endpoint) []int {
	if len(endpoints) == 0 {
		return nil
	}
	for i := range endpoints {
		if !endpoints[i].IsStaticWeight() {
			return nil
		}
	}

	// Weight range, with weights clamped to at least 1.
	minWeight, maxWeight := int32(1<<31-1), int32(-1<<31)
	for i := range endpoints {
		w := int32(endpoints[i].Weight)
		if w < 1 {
			w = 1
		}
		if w < minWeight {
			minWeight = w
		}
		if w > maxWeight {
			maxWeight = w
		}
	}

	maxRange := maxWeight / minWeight
	if maxRange < minStaticWeightLimit {
		maxRange = minStaticWeightLimit
	}
	if maxRange > maxStaticWeightLimit {
		maxRange = maxStaticWeightLimit
	}

	normalized := make([]int32, len(endpoints))
	for i := range endpoints {
		n := int32(endpoints[i].Weight) * maxRange / maxWeight
		if n < 1 {
			n = 1
		}
		normalized[i] = n
	}

	return buildWeightedList(normalized)
}

// buildWeightedList reduces the weights by their GCD and lays out the
// selection order with smooth weighted round-robin.
func buildWeightedList(weights []int32) []int {
	divisor := int32(0)
	for _, w := range weights {
		divisor = gcd(divisor, w)
	}
	if divisor == 0 {
		return nil
	}

	reduced := make([]int32, len(weights))
	total := int32(0)
	for i, w := range weights {
		reduced[i] = w / divisor
		total += reduced[i]
	}

	list := make([]int, 0, total)
	current := make([]int32, len(reduced))
	for n := int32(0); n < total; n++ {
		maxIdx := 0
		for i := range reduced {
			current[i] += reduced[i]
			if current[i] > current[maxIdx] {
				maxIdx = i
			}
		}
		current[maxIdx] -= total
		list = append(list, maxIdx)
	}
	return list
}

func gcd(a, b int32) int32 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Weighted selects with static weights via the precomputed list, falling
// back to plain round-robin when the endpoints are not statically
// weighted.
type Weighted struct {
	mu    sync.RWMutex
	nodes []endpoint.Endpoint
	list  []int // selection order into nodes, nil when weights don't apply
	index atomic.Uint64
}

// NewWeighted creates an empty weighted selector.
func NewWeighted() *Weighted {
	return &Weighted{}
}

// NewWeightedWith creates a weighted selector over nodes.
func NewWeightedWith(nodes []endpoint.Endpoint) *Weighted {
	w := NewWeighted()
	w.Refresh(nodes)
	return w
}

// Select returns the next endpoint in the weighted order.
func (s *Weighted) Select(_ Message) (endpoint.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.nodes) == 0 {
		return endpoint.Endpoint{}, errNoEndpoint
	}
	n := s.index.Add(1)
	if len(s.list) > 0 {
		return s.nodes[s.list[n%uint64(len(s.list))]], nil
	}
	return s.nodes[n%uint64(len(s.nodes))], nil
}

// Refresh replaces the endpoint list and rebuilds the weighted order.
func (s *Weighted) Refresh(nodes []endpoint.Endpoint) {
	snapshot := make([]endpoint.Endpoint, len(nodes))
	copy(snapshot, nodes)
	list := BuildStaticWeightList(snapshot)
	s.mu.Lock()
	s.nodes = snapshot
	s.list = list
	s.mu.Unlock()
}

// Add appends a node and rebuilds the weighted order.
func (s *Weighted) Add(node endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !containsEndpoint(s.nodes, node) {
		s.nodes = append(s.nodes, node)
		s.list = BuildStaticWeightList(s.nodes)
	}
	return nil
}

// Remove drops a node and rebuilds the weighted order.
func (s *Weighted) Remove(node endpoint.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = removeEndpoint(s.nodes, node)
	s.list = BuildStaticWeightList(s.nodes)
	return nil
}

// All returns a copy of the current list.
func (s *Weighted) All() []endpoint.Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]endpoint.Endpoint, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Len returns the current endpoint count.
func (s *Weighted) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}
