// Package protocol defines the Tars request/response envelopes, the wire
// constants shared by client and server, and the payload structures of the
// framework services (registry query, remote log, statistics).
//
// A packet on the wire is a 4-byte big-endian total length (prefix included)
// followed by the envelope fields TLV-encoded in tag order:
//
//	┌──────────────┬──────────────────────────────────────────┐
//	│ total length │ TLV fields (version, type, id, name, …)  │
//	│   uint32     │                                          │
//	└──────────────┴──────────────────────────────────────────┘
package protocol

// Protocol versions carried in the version field of every packet.
const (
	TarsVersion int16 = 1
	TupVersion  int16 = 2
	JSONVersion int16 = 3
)

// Packet types.
const (
	PacketNormal int8 = 0 // request expects a response
	PacketOneway int8 = 1 // fire-and-forget, no response
)

// Message type flag bits.
const (
	MessageTypeNull  int32 = 0
	MessageTypeDyed  int32 = 4
	MessageTypeTrace int32 = 8
)

// Server return codes.
const (
	ServerSuccess      int32 = 0
	ServerDecodeErr    int32 = -1
	ServerQueueTimeout int32 = -2
	InvokeTimeout      int32 = -3
	ServerUnknownErr   int32 = -99
)

// Status map keys set alongside the dyed/trace flag bits.
const (
	StatusDyedKey  = "STATUS_DYED_KEY"
	StatusTraceKey = "STATUS_TRACE_KEY"
)

// ReconnectMsg is the result description of a server push (request id 0)
// asking the client to re-establish its connection.
const ReconnectMsg = "_reconnect_"

// Well-known framework servants.
const (
	RegistryServant = "tars.tarsregistry.QueryObj"
	LogServant      = "tars.tarslog.LogObj"
	StatServant     = "tars.tarsstat.StatObj"
)
