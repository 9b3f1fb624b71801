package protocol

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tars-rpc/codec"
)

func TestRequestRoundTrip(t *testing.T) {
	req := NewRequest()
	req.Version = 1
	req.PacketType = PacketNormal
	req.RequestID = 12345
	req.ServantName = "A.B.C"
	req.FuncName = "f"
	req.Buffer = []byte{1, 2, 3}
	req.Timeout = 3000
	req.Context = map[string]string{"k": "v"}

	data := req.Encode()

	// The frame starts with the 4-byte big-endian total length.
	require.GreaterOrEqual(t, len(data), 4)
	assert.Equal(t, uint32(len(data)), binary.BigEndian.Uint32(data))

	got, err := DecodeRequest(data)
	require.NoError(t, err)
	assert.Equal(t, req.Version, got.Version)
	assert.Equal(t, req.PacketType, got.PacketType)
	assert.Equal(t, req.MessageType, got.MessageType)
	assert.Equal(t, req.RequestID, got.RequestID)
	assert.Equal(t, req.ServantName, got.ServantName)
	assert.Equal(t, req.FuncName, got.FuncName)
	assert.Equal(t, req.Buffer, got.Buffer)
	assert.Equal(t, req.Timeout, got.Timeout)
	assert.Equal(t, req.Context, got.Context)
	assert.Equal(t, req.Status, got.Status)
}

func TestRequestDecodeWithoutPrefix(t *testing.T) {
	req := NewRequest()
	req.RequestID = 77
	req.ServantName = "Test.Echo.EchoObj"
	data := req.Encode()

	got, err := DecodeRequest(data[4:])
	require.NoError(t, err)
	assert.Equal(t, int32(77), got.RequestID)
	assert.Equal(t, "Test.Echo.EchoObj", got.ServantName)
}

func TestRequestMessageFlags(t *testing.T) {
	req := NewRequest()
	assert.False(t, req.HasMessageType(MessageTypeDyed))

	req.AddMessageType(MessageTypeDyed)
	assert.True(t, req.HasMessageType(MessageTypeDyed))
	assert.False(t, req.HasMessageType(MessageTypeTrace))

	req.AddMessageType(MessageTypeTrace)
	assert.True(t, req.HasMessageType(MessageTypeDyed))
	assert.True(t, req.HasMessageType(MessageTypeTrace))
}

func TestRequestOneway(t *testing.T) {
	req := NewRequest()
	assert.False(t, req.IsOneway())
	req.PacketType = PacketOneway
	assert.True(t, req.IsOneway())
}

func TestResponseSuccess(t *testing.T) {
	rsp := Success(7, []byte{9, 9})
	data := rsp.Encode()

	got, err := DecodeResponse(data)
	require.NoError(t, err)
	assert.True(t, got.IsSuccess())
	assert.Equal(t, int32(0), got.Ret)
	assert.Equal(t, int32(7), got.RequestID)
	assert.Equal(t, []byte{9, 9}, got.Buffer)
}

func TestResponseError(t *testing.T) {
	rsp := Error(123, ServerUnknownErr, "boom")
	got, err := DecodeResponse(rsp.Encode())
	require.NoError(t, err)
	assert.False(t, got.IsSuccess())
	assert.Equal(t, ServerUnknownErr, got.Ret)
	assert.Equal(t, "boom", got.ResultDesc)
}

func TestResponseTimeout(t *testing.T) {
	rsp := Timeout(42)
	assert.Equal(t, ServerQueueTimeout, rsp.Ret)
	assert.Equal(t, "server invoke timeout", rsp.ResultDesc)
	assert.Equal(t, int32(42), rsp.RequestID)
}

func TestResponsePush(t *testing.T) {
	rsp := Success(0, nil)
	assert.True(t, rsp.IsPush())
	rsp = Success(1, nil)
	assert.False(t, rsp.IsPush())
}

func TestMissingFieldsDecodeAsZero(t *testing.T) {
	// A body carrying only the request id still decodes.
	buf := codec.NewBuffer()
	buf.WriteInt32(99, 4)
	got, err := DecodeRequest(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, int32(99), got.RequestID)
	assert.Equal(t, int16(0), got.Version)
	assert.Empty(t, got.ServantName)
	assert.Empty(t, got.Buffer)
}

func TestEndpointFRoundTrip(t *testing.T) {
	ep := EndpointF{
		Host:       "10.0.0.1",
		Port:       8080,
		Timeout:    3000,
		IsTCP:      1,
		SetID:      "test.1.1",
		Weight:     100,
		WeightType: 1,
	}

	buf := codec.NewBuffer()
	ep.WriteTo(buf)

	var got EndpointF
	require.NoError(t, got.ReadFrom(codec.NewReader(buf.Bytes())))
	assert.Equal(t, ep, got)
}

func TestEndpointListRoundTrip(t *testing.T) {
	eps := []EndpointF{
		{Host: "10.0.0.1", Port: 10000, Timeout: 3000, IsTCP: 1},
		{Host: "10.0.0.2", Port: 10001, Timeout: 3000, IsTCP: 2, SetID: "sz.a.1"},
	}
	buf := codec.NewBuffer()
	buf.WriteInt32(0, 0) // registry return code
	EncodeEndpointList(buf, eps, 2)
	EncodeEndpointList(buf, nil, 3)

	r := codec.NewReader(buf.Bytes())
	ret, err := r.ReadInt32(0, true)
	require.NoError(t, err)
	assert.Equal(t, int32(0), ret)

	active, err := DecodeEndpointList(r, 2, true)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, eps[0], active[0])
	assert.Equal(t, eps[1], active[1])

	inactive, err := DecodeEndpointList(r, 3, false)
	require.NoError(t, err)
	assert.Empty(t, inactive)
}

func TestStatBodyDistribution(t *testing.T) {
	body := NewStatBody()
	body.AddResponseTime(3)
	body.AddResponseTime(7)
	body.AddResponseTime(9999)

	assert.Equal(t, int32(1), body.IntervalCount[5])
	assert.Equal(t, int32(1), body.IntervalCount[10])
	assert.Equal(t, int32(1), body.IntervalCount[3000])
	assert.Equal(t, int64(3+7+9999), body.TotalRspTime)
	assert.Equal(t, int32(9999), body.MaxRspTime)
	assert.Equal(t, int32(3), body.MinRspTime)
}

func TestStatBodyMerge(t *testing.T) {
	a := NewStatBody()
	a.Count = 2
	a.AddResponseTime(10)
	b := NewStatBody()
	b.TimeoutCount = 1
	b.AddResponseTime(600)

	a.Merge(b)
	assert.Equal(t, int32(2), a.Count)
	assert.Equal(t, int32(1), a.TimeoutCount)
	assert.Equal(t, int32(600), a.MaxRspTime)
	assert.Equal(t, int32(10), a.MinRspTime)
	assert.Equal(t, int32(1), a.IntervalCount[50])
	assert.Equal(t, int32(1), a.IntervalCount[1000])
}

func TestLogPayloadEncodes(t *testing.T) {
	info := NewLogInfo("App", "Server", "app.log")
	payload := EncodeLogPayload(info, []string{"line one", "line two"})
	require.NotEmpty(t, payload)

	r := codec.NewReader(payload)
	found, err := r.ReadStructBegin(0, true)
	require.NoError(t, err)
	require.True(t, found)
	app, err := r.ReadString(0, true)
	require.NoError(t, err)
	assert.Equal(t, "App", app)
	require.NoError(t, r.SkipToStructEnd())

	lines, err := r.ReadStringList(1, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"line one", "line two"}, lines)
}
