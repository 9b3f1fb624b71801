// Package selector provides endpoint-selection strategies for distributing
// RPC requests across service instances.
//
// Five strategies are implemented:
//   - RoundRobin:     default; cycles through endpoints with an atomic counter
//   - Random:         uniform pick over the current list
//   - ModHash:        index = hash code mod list length
//   - ConsistentHash: CRC32 ring with virtual nodes, for cache affinity
//   - Weighted:       smooth weighted round-robin over static weights
//
// Every strategy tolerates concurrent Select/Refresh/Add/Remove: reads take
// a snapshot under a read lock, mutations swap or rebuild under the write
// lock.
package selector

import (
	"strings"

	"tars-rpc/endpoint"
	"tars-rpc/protocol"
)

// HashType selects between the two hash routing modes.
type HashType int

const (
	// ModHashType routes by hash code modulo endpoint count.
	ModHashType HashType = iota
	// ConsistentHashType routes on the virtual-node ring.
	ConsistentHashType
)

func (h HashType) String() string {
	if h == ConsistentHashType {
		return "ConsistentHash"
	}
	return "ModHash"
}

// Message is what a selector sees of an invocation: whether the caller
// requested hash routing, and with which code.
type Message interface {
	HashCode() uint32
	HashType() HashType
	IsHash() bool
}

// Selector picks an endpoint for each message and tracks the live list.
// Select is called on every RPC and must be goroutine-safe.
type Selector interface {
	Select(msg Message) (endpoint.Endpoint, error)
	Refresh(nodes []endpoint.Endpoint)
	Add(node endpoint.Endpoint) error
	Remove(node endpoint.Endpoint) error
	All() []endpoint.Endpoint
	Len() int
}

// KeyMessage is a plain Message carrying explicit hash routing values.
type KeyMessage struct {
	Code uint32
	Type HashType
	Hash bool
}

// WithHash builds a hash-routed KeyMessage.
func WithHash(code uint32, ty HashType) *KeyMessage {
	return &KeyMessage{Code: code, Type: ty, Hash: true}
}

func (m *KeyMessage) HashCode() uint32   { return m.Code }
func (m *KeyMessage) HashType() HashType { return m.Type }
func (m *KeyMessage) IsHash() bool       { return m.Hash }

// New returns a selector by strategy name; unrecognized names fall back to
// round-robin.
func New(strategy string) Selector {
	switch strings.ToLower(strategy) {
	case "random":
		return NewRandom()
	case "modhash":
		return NewModHash()
	case "consistenthash", "ch":
		return NewConsistentHash()
	case "weighted":
		return NewWeighted()
	}
	return NewRoundRobin()
}

// errNoEndpoint is what every strategy returns on an empty list.
var errNoEndpoint = protocol.ErrNoEndpoint
