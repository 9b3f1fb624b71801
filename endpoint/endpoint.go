// Package endpoint defines the addressable service location used across
// selection, adapters, and the registry, plus the endpoint-string and
// object-name grammars.
package endpoint

import (
	"fmt"
	"strconv"
	"strings"
)

// Transport protocol codes, matching the registry's istcp field.
const (
	ProtoUDP int32 = 0
	ProtoTCP int32 = 1
	ProtoSSL int32 = 2
)

// Weight types.
const (
	// WeightLoop means plain round-robin, weight ignored.
	WeightLoop int32 = 0
	// WeightStatic means the static-weight list strategy applies.
	WeightStatic int32 = 1
)

// Endpoint is one service location. Identity — equality, hashing, adapter
// map keys — depends on (Host, Port, Proto) only; the remaining fields are
// routing attributes.
type Endpoint struct {
	Host       string
	Port       uint16
	Timeout    int64 // milliseconds
	Proto      int32 // ProtoUDP, ProtoTCP, ProtoSSL
	Grid       int32
	QOS        int32
	Weight     uint32
	WeightType int32
	AuthType   int32
	SetID      string // setname.setarea.setgroup
}

// Key is the comparable identity of an endpoint, usable as a map key.
type Key struct {
	Host  string
	Port  uint16
	Proto int32
}

// New creates a TCP endpoint with default attributes.
func New(host string, port uint16) Endpoint {
	return Endpoint{
		Host:    host,
		Port:    port,
		Timeout: 3000,
		Proto:   ProtoTCP,
		Weight:  100,
	}
}

// TCP creates a TCP endpoint.
func TCP(host string, port uint16) Endpoint {
	return New(host, port)
}

// UDP creates a UDP endpoint.
func UDP(host string, port uint16) Endpoint {
	ep := New(host, port)
	ep.Proto = ProtoUDP
	return ep
}

// SSL creates a TLS endpoint.
func SSL(host string, port uint16) Endpoint {
	ep := New(host, port)
	ep.Proto = ProtoSSL
	return ep
}

// Key returns the endpoint's identity.
func (e Endpoint) Key() Key {
	return Key{Host: e.Host, Port: e.Port, Proto: e.Proto}
}

// Equal reports identity equality: host, port, and transport.
func (e Endpoint) Equal(other Endpoint) bool {
	return e.Key() == other.Key()
}

// Address returns "host:port".
func (e Endpoint) Address() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// IsTCP reports whether the transport is plain TCP.
func (e Endpoint) IsTCP() bool { return e.Proto == ProtoTCP }

// IsUDP reports whether the transport is UDP.
func (e Endpoint) IsUDP() bool { return e.Proto == ProtoUDP }

// IsSSL reports whether the transport is TLS.
func (e Endpoint) IsSSL() bool { return e.Proto == ProtoSSL }

// IsStaticWeight reports whether the endpoint opted into static weights.
func (e Endpoint) IsStaticWeight() bool { return e.WeightType == WeightStatic }

// ProtoString returns the transport name used in endpoint strings.
func (e Endpoint) ProtoString() string {
	switch e.Proto {
	case ProtoUDP:
		return "udp"
	case ProtoSSL:
		return "ssl"
	}
	return "tcp"
}

// String formats the endpoint in the "-h -p -t" grammar.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s -h %s -p %d -t %d", e.ProtoString(), e.Host, e.Port, e.Timeout)
}

// protoFromString maps a transport token to its code.
func protoFromString(s string) (int32, bool) {
	switch strings.ToLower(s) {
	case "tcp":
		return ProtoTCP, true
	case "udp":
		return ProtoUDP, true
	case "ssl":
		return ProtoSSL, true
	}
	return 0, false
}

// Parse parses one endpoint spec: "<proto> -h <host> -p <port> [-t <ms>]".
// Unknown tokens are ignored. Returns false when the proto, host, or port
// is missing or malformed.
func Parse(s string) (Endpoint, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Endpoint{}, false
	}
	proto, ok := protoFromString(fields[0])
	if !ok {
		return Endpoint{}, false
	}

	ep := New("", 0)
	ep.Proto = proto
	for i := 1; i < len(fields); i++ {
		switch fields[i] {
		case "-h":
			if i+1 < len(fields) {
				ep.Host = fields[i+1]
				i++
			}
		case "-p":
			if i+1 < len(fields) {
				port, err := strconv.ParseUint(fields[i+1], 10, 16)
				if err != nil {
					return Endpoint{}, false
				}
				ep.Port = uint16(port)
				i++
			}
		case "-t":
			if i+1 < len(fields) {
				if ms, err := strconv.ParseInt(fields[i+1], 10, 64); err == nil {
					ep.Timeout = ms
				}
				i++
			}
		}
	}
	if ep.Host == "" || ep.Port == 0 {
		return Endpoint{}, false
	}
	return ep, true
}

// ParseList parses colon-separated endpoint specs:
// "tcp -h A -p 1:tcp -h B -p 2". Specs that fail to parse are dropped.
func ParseList(s string) []Endpoint {
	var out []Endpoint
	for _, part := range strings.Split(s, ":") {
		if ep, ok := Parse(strings.TrimSpace(part)); ok {
			out = append(out, ep)
		}
	}
	return out
}

// ParseObjName splits an object name into the servant name and any direct
// endpoints: "App.Server.Obj" or "App.Server.Obj@tcp -h H -p P[:spec]*".
func ParseObjName(objName string) (string, []Endpoint) {
	name, specs, found := strings.Cut(objName, "@")
	if !found {
		return name, nil
	}
	return name, ParseList(specs)
}
