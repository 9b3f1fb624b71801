package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tars-rpc/codec"
	"tars-rpc/endpoint"
	"tars-rpc/protocol"
)

func TestParseLocatorSingleNode(t *testing.T) {
	r := NewTarsRegistry("tars.tarsregistry.QueryObj@tcp -h 192.168.1.1 -p 17890")
	require.Len(t, r.Nodes(), 1)
	assert.Equal(t, "192.168.1.1:17890", r.Nodes()[0])
}

func TestParseLocatorMultipleNodes(t *testing.T) {
	r := NewTarsRegistry("tars.tarsregistry.QueryObj@tcp -h 192.168.1.1 -p 17890:tcp -h 192.168.1.2 -p 17891")
	require.Len(t, r.Nodes(), 2)
	assert.Contains(t, r.Nodes(), "192.168.1.1:17890")
	assert.Contains(t, r.Nodes(), "192.168.1.2:17891")
}

func TestParseLocatorNoEndpoints(t *testing.T) {
	assert.Empty(t, NewTarsRegistry("tars.tarsregistry.QueryObj").Nodes())
}

func TestConvertEndpoint(t *testing.T) {
	f := protocol.EndpointF{
		Host:       "10.0.0.1",
		Port:       8080,
		Timeout:    3000,
		IsTCP:      1,
		SetID:      "test.1.1",
		Weight:     100,
		WeightType: 1,
	}
	ep := convertEndpoint(&f)
	assert.Equal(t, "10.0.0.1", ep.Host)
	assert.Equal(t, uint16(8080), ep.Port)
	assert.Equal(t, int64(3000), ep.Timeout)
	assert.True(t, ep.IsTCP())
	assert.Equal(t, "test.1.1", ep.SetID)
	assert.Equal(t, uint32(100), ep.Weight)
	assert.Equal(t, endpoint.WeightStatic, ep.WeightType)

	f.IsTCP = 2
	assert.True(t, convertEndpoint(&f).IsSSL())
	f.IsTCP = 0
	assert.True(t, convertEndpoint(&f).IsUDP())
}

// fakeQueryClient scripts one node's responses.
type fakeQueryClient struct {
	rsp *protocol.ResponsePacket
	err error
}

func (f *fakeQueryClient) Invoke(*protocol.RequestPacket) (*protocol.ResponsePacket, error) {
	return f.rsp, f.err
}

func (f *fakeQueryClient) Close() {}

// queryResponse encodes a registry reply with the given active endpoints.
func queryResponse(active []protocol.EndpointF) *protocol.ResponsePacket {
	body := codec.NewBuffer()
	body.WriteInt32(0, 0)
	protocol.EncodeEndpointList(body, active, 2)
	protocol.EncodeEndpointList(body, nil, 3)
	return protocol.Success(1, body.Bytes())
}

func TestQueryServantSuccess(t *testing.T) {
	fakeClock(t)
	r := NewTarsRegistry("tars.tarsregistry.QueryObj@tcp -h 10.0.0.1 -p 17890")
	r.dial = func(address string, _ time.Duration) (queryClient, error) {
		return &fakeQueryClient{rsp: queryResponse([]protocol.EndpointF{
			{Host: "10.1.0.1", Port: 10000, Timeout: 3000, IsTCP: 1},
			{Host: "10.1.0.2", Port: 10000, Timeout: 3000, IsTCP: 1},
		})}, nil
	}

	active, inactive, err := r.QueryServant("Test.Hello.HelloObj")
	require.NoError(t, err)
	assert.Len(t, active, 2)
	assert.Empty(t, inactive)
	assert.Equal(t, 1, r.AvailableNodeCount())
}

func TestQueryServantFailover(t *testing.T) {
	fakeClock(t)
	r := NewTarsRegistry("Obj@tcp -h 10.0.0.1 -p 1:tcp -h 10.0.0.2 -p 2")

	dialed := map[string]int{}
	r.dial = func(address string, _ time.Duration) (queryClient, error) {
		dialed[address]++
		if address == "10.0.0.1:1" {
			return nil, errors.New("connection refused")
		}
		return &fakeQueryClient{rsp: queryResponse([]protocol.EndpointF{
			{Host: "10.1.0.1", Port: 10000, Timeout: 3000, IsTCP: 1},
		})}, nil
	}

	// Run enough queries to hit the bad node at least once.
	for i := 0; i < 4; i++ {
		active, _, err := r.QueryServant("Test.Hello.HelloObj")
		require.NoError(t, err)
		require.Len(t, active, 1)
	}

	assert.Greater(t, dialed["10.0.0.2:2"], 0)
	// The failed node's breaker is open, so it is no longer selected.
	assert.Equal(t, 1, r.AvailableNodeCount())
}

func TestQueryServantAllNodesFail(t *testing.T) {
	fakeClock(t)
	r := NewTarsRegistry("Obj@tcp -h 10.0.0.1 -p 1:tcp -h 10.0.0.2 -p 2")
	boom := errors.New("boom")
	r.dial = func(string, time.Duration) (queryClient, error) { return nil, boom }

	_, _, err := r.QueryServant("Test.Hello.HelloObj")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, r.AvailableNodeCount())
}

func TestQueryServantForcedProbeWhenAllOpen(t *testing.T) {
	fakeClock(t)
	r := NewTarsRegistry("Obj@tcp -h 10.0.0.1 -p 1")
	r.breakers.Get("10.0.0.1:1").RecordFailure()
	require.Equal(t, 0, r.AvailableNodeCount())

	// Even with every breaker open, a probe still goes out.
	probed := false
	r.dial = func(address string, _ time.Duration) (queryClient, error) {
		probed = true
		return &fakeQueryClient{rsp: queryResponse(nil)}, nil
	}

	_, _, err := r.QueryServant("Test.Hello.HelloObj")
	require.NoError(t, err)
	assert.True(t, probed)
	// The successful probe closed the circuit again.
	assert.Equal(t, 1, r.AvailableNodeCount())
}

func TestQueryServantServerError(t *testing.T) {
	fakeClock(t)
	r := NewTarsRegistry("Obj@tcp -h 10.0.0.1 -p 1")
	r.dial = func(string, time.Duration) (queryClient, error) {
		return &fakeQueryClient{rsp: protocol.Error(1, -1, "no such object")}, nil
	}

	_, _, err := r.QueryServant("Test.Missing.Obj")
	var se *protocol.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, int32(-1), se.Code)
}

func TestDirectRegistrar(t *testing.T) {
	eps := []endpoint.Endpoint{
		endpoint.TCP("127.0.0.1", 10000),
		endpoint.TCP("127.0.0.1", 10001),
	}
	d := NewDirect(eps)

	active, inactive, err := d.QueryServant("Test.Hello.HelloObj")
	require.NoError(t, err)
	assert.Len(t, active, 2)
	assert.Empty(t, inactive)

	require.NoError(t, d.Register(nil))
	require.NoError(t, d.Deregister(nil))
}

func TestManagerRefreshPublishes(t *testing.T) {
	eps := []endpoint.Endpoint{endpoint.TCP("127.0.0.1", 10000)}
	m := NewManager("Test.Hello.HelloObj", NewDirect(eps))

	var published []endpoint.Endpoint
	m.OnUpdate(func(active []endpoint.Endpoint) { published = active })

	require.NoError(t, m.Refresh())
	assert.Equal(t, eps, m.Active())
	assert.Empty(t, m.Inactive())
	assert.Equal(t, eps, published)
}

func TestServantInstanceObjectName(t *testing.T) {
	inst := NewServantInstance("Test", "HelloServer", "HelloObj", endpoint.TCP("127.0.0.1", 10000))
	assert.Equal(t, "Test.HelloServer.HelloObj", inst.ObjectName())
}
