package protocol

import (
	"encoding/binary"

	"tars-rpc/codec"
)

// RequestPacket is the client→server envelope. Field comments give the
// wire tags; every field decodes as optional, so a missing field reads as
// its zero value.
type RequestPacket struct {
	Version     int16             // tag 1
	PacketType  int8              // tag 2: PacketNormal or PacketOneway
	MessageType int32             // tag 3: flag bitset (dyed, trace)
	RequestID   int32             // tag 4
	ServantName string            // tag 5
	FuncName    string            // tag 6
	Buffer      []byte            // tag 7: method payload as simple-list
	Timeout     int32             // tag 8: milliseconds
	Context     map[string]string // tag 9
	Status      map[string]string // tag 10
}

// NewRequest creates a request with the default version, type, and timeout.
func NewRequest() *RequestPacket {
	return &RequestPacket{
		Version:    TarsVersion,
		PacketType: PacketNormal,
		Timeout:    3000,
		Context:    map[string]string{},
		Status:     map[string]string{},
	}
}

// HasMessageType reports whether the given flag bit is set.
func (p *RequestPacket) HasMessageType(flag int32) bool {
	return p.MessageType&flag != 0
}

// AddMessageType sets a flag bit.
func (p *RequestPacket) AddMessageType(flag int32) {
	p.MessageType |= flag
}

// IsOneway reports whether the request expects no response.
func (p *RequestPacket) IsOneway() bool {
	return p.PacketType == PacketOneway
}

// WriteTo encodes the fields into buf without the length prefix.
func (p *RequestPacket) WriteTo(buf *codec.Buffer) {
	buf.WriteInt16(p.Version, 1)
	buf.WriteInt8(p.PacketType, 2)
	buf.WriteInt32(p.MessageType, 3)
	buf.WriteInt32(p.RequestID, 4)
	buf.WriteString(p.ServantName, 5)
	buf.WriteString(p.FuncName, 6)
	buf.WriteBytes(p.Buffer, 7)
	buf.WriteInt32(p.Timeout, 8)
	buf.WriteStringMap(p.Context, 9)
	buf.WriteStringMap(p.Status, 10)
}

// Encode returns the length-prefixed wire bytes.
func (p *RequestPacket) Encode() []byte {
	buf := codec.NewBufferCapacity(256)
	p.WriteTo(buf)
	return buf.BytesWithLength()
}

// DecodeRequest parses a request packet. The input may carry the 4-byte
// length prefix; it is skipped when it matches the slice length exactly.
func DecodeRequest(data []byte) (*RequestPacket, error) {
	return readRequest(codec.NewReader(stripLength(data)))
}

func readRequest(r *codec.Reader) (*RequestPacket, error) {
	p := NewRequest()
	var err error
	if p.Version, err = r.ReadInt16(1, false); err != nil {
		return nil, err
	}
	if p.PacketType, err = r.ReadInt8(2, false); err != nil {
		return nil, err
	}
	if p.MessageType, err = r.ReadInt32(3, false); err != nil {
		return nil, err
	}
	if p.RequestID, err = r.ReadInt32(4, false); err != nil {
		return nil, err
	}
	if p.ServantName, err = r.ReadString(5, false); err != nil {
		return nil, err
	}
	if p.FuncName, err = r.ReadString(6, false); err != nil {
		return nil, err
	}
	if p.Buffer, err = r.ReadBytes(7, false); err != nil {
		return nil, err
	}
	if p.Timeout, err = r.ReadInt32(8, false); err != nil {
		return nil, err
	}
	if p.Context, err = r.ReadStringMap(9, false); err != nil {
		return nil, err
	}
	if p.Status, err = r.ReadStringMap(10, false); err != nil {
		return nil, err
	}
	return p, nil
}

// ResponsePacket is the server→client envelope. A RequestID of 0 marks a
// server-initiated push, not a reply.
type ResponsePacket struct {
	Version     int16             // tag 1
	PacketType  int8              // tag 2
	RequestID   int32             // tag 3
	MessageType int32             // tag 4
	Ret         int32             // tag 5: ServerSuccess on success
	Buffer      []byte            // tag 6: method result as simple-list
	Status      map[string]string // tag 7
	ResultDesc  string            // tag 8
	Context     map[string]string // tag 9
}

// NewResponse creates an empty response with the default version and type.
func NewResponse() *ResponsePacket {
	return &ResponsePacket{
		Version:    TarsVersion,
		PacketType: PacketNormal,
		Status:     map[string]string{},
		Context:    map[string]string{},
	}
}

// Success builds a successful response for the given request.
func Success(requestID int32, buffer []byte) *ResponsePacket {
	rsp := NewResponse()
	rsp.RequestID = requestID
	rsp.Buffer = buffer
	return rsp
}

// Error builds a failed response with an arbitrary return code.
func Error(requestID int32, ret int32, desc string) *ResponsePacket {
	rsp := NewResponse()
	rsp.RequestID = requestID
	rsp.Ret = ret
	rsp.ResultDesc = desc
	return rsp
}

// Timeout builds the response substituted when a handler misses its
// deadline.
func Timeout(requestID int32) *ResponsePacket {
	return Error(requestID, ServerQueueTimeout, "server invoke timeout")
}

// IsSuccess reports whether the return code is ServerSuccess.
func (p *ResponsePacket) IsSuccess() bool {
	return p.Ret == ServerSuccess
}

// IsPush reports whether the packet is a server-initiated push.
func (p *ResponsePacket) IsPush() bool {
	return p.RequestID == 0
}

// WriteTo encodes the fields into buf without the length prefix.
func (p *ResponsePacket) WriteTo(buf *codec.Buffer) {
	buf.WriteInt16(p.Version, 1)
	buf.WriteInt8(p.PacketType, 2)
	buf.WriteInt32(p.RequestID, 3)
	buf.WriteInt32(p.MessageType, 4)
	buf.WriteInt32(p.Ret, 5)
	buf.WriteBytes(p.Buffer, 6)
	buf.WriteStringMap(p.Status, 7)
	buf.WriteString(p.ResultDesc, 8)
	buf.WriteStringMap(p.Context, 9)
}

// Encode returns the length-prefixed wire bytes.
func (p *ResponsePacket) Encode() []byte {
	buf := codec.NewBufferCapacity(256)
	p.WriteTo(buf)
	return buf.BytesWithLength()
}

// DecodeResponse parses a response packet, with or without the length
// prefix.
func DecodeResponse(data []byte) (*ResponsePacket, error) {
	r := codec.NewReader(stripLength(data))
	p := NewResponse()
	var err error
	if p.Version, err = r.ReadInt16(1, false); err != nil {
		return nil, err
	}
	if p.PacketType, err = r.ReadInt8(2, false); err != nil {
		return nil, err
	}
	if p.RequestID, err = r.ReadInt32(3, false); err != nil {
		return nil, err
	}
	if p.MessageType, err = r.ReadInt32(4, false); err != nil {
		return nil, err
	}
	if p.Ret, err = r.ReadInt32(5, false); err != nil {
		return nil, err
	}
	if p.Buffer, err = r.ReadBytes(6, false); err != nil {
		return nil, err
	}
	if p.Status, err = r.ReadStringMap(7, false); err != nil {
		return nil, err
	}
	if p.ResultDesc, err = r.ReadString(8, false); err != nil {
		return nil, err
	}
	if p.Context, err = r.ReadStringMap(9, false); err != nil {
		return nil, err
	}
	return p, nil
}

// stripLength drops the 4-byte length prefix when the declared total
// matches the slice length exactly; otherwise the input is taken as a bare
// body.
func stripLength(data []byte) []byte {
	if len(data) >= 4 {
		if int(binary.BigEndian.Uint32(data)) == len(data) {
			return data[4:]
		}
	}
	return data
}
