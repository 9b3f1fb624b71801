package servant

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tars-rpc/endpoint"
	"tars-rpc/protocol"
	"tars-rpc/transport"
)

func TestGenRequestIDDistinctNonZero(t *testing.T) {
	const n = 1_000_000
	seen := make(map[int32]struct{}, n)
	for i := 0; i < n; i++ {
		id := GenRequestID()
		require.NotZero(t, id)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %d", id)
		seen[id] = struct{}{}
	}
}

func TestGenRequestIDConcurrent(t *testing.T) {
	const workers, perWorker = 8, 10000
	var mu sync.Mutex
	seen := make(map[int32]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int32, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, GenRequestID())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				seen[id] = struct{}{}
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*perWorker)
}

func TestProxyBasics(t *testing.T) {
	p := NewProxy("Test.HelloServer.HelloObj", nil, transport.DefaultClientConfig())
	defer p.Close()

	assert.Equal(t, "Test.HelloServer.HelloObj", p.Name())
	assert.Equal(t, 3*time.Second, p.Timeout())

	p.SetTimeout(5 * time.Second)
	assert.Equal(t, 5*time.Second, p.Timeout())
}

func TestInvokeNoEndpoint(t *testing.T) {
	p := NewProxy("Test.HelloServer.HelloObj", nil, transport.DefaultClientConfig())
	defer p.Close()

	_, err := p.Invoke(context.Background(), "echo", []byte{1}, nil, nil)
	assert.ErrorIs(t, err, protocol.ErrNoEndpoint)
}

func TestBuildRequestFields(t *testing.T) {
	p := NewProxy("Test.HelloServer.HelloObj", nil, transport.DefaultClientConfig())
	defer p.Close()
	p.SetTimeout(1500 * time.Millisecond)

	req := p.buildRequest(context.Background(), "doThing", []byte{1, 2},
		map[string]string{"s": "1"}, map[string]string{"c": "2"})

	assert.Equal(t, protocol.TarsVersion, req.Version)
	assert.NotZero(t, req.RequestID)
	assert.Equal(t, "Test.HelloServer.HelloObj", req.ServantName)
	assert.Equal(t, "doThing", req.FuncName)
	assert.Equal(t, []byte{1, 2}, req.Buffer)
	assert.Equal(t, int32(1500), req.Timeout)
	assert.Equal(t, "1", req.Status["s"])
	assert.Equal(t, "2", req.Context["c"])
	assert.Equal(t, int32(0), req.MessageType)
}

func TestBuildRequestDyeingAndTrace(t *testing.T) {
	p := NewProxy("Test.HelloServer.HelloObj", nil, transport.DefaultClientConfig())
	defer p.Close()

	ctx := WithDyeingKey(context.Background(), "dye-1")
	ctx = WithTraceKey(ctx, "trace-1")

	req := p.buildRequest(ctx, "f", nil, nil, nil)
	assert.True(t, req.HasMessageType(protocol.MessageTypeDyed))
	assert.True(t, req.HasMessageType(protocol.MessageTypeTrace))
	assert.Equal(t, "dye-1", req.Status[protocol.StatusDyedKey])
	assert.Equal(t, "trace-1", req.Status[protocol.StatusTraceKey])
}

func TestRefreshEndpointsClosesRemoved(t *testing.T) {
	eps := []endpoint.Endpoint{
		endpoint.TCP("127.0.0.1", 29001),
		endpoint.TCP("127.0.0.1", 29002),
	}
	p := NewProxy("Test.HelloServer.HelloObj", eps, transport.DefaultClientConfig())
	defer p.Close()
	require.Len(t, p.Adapters(), 2)

	p.RefreshEndpoints(eps[:1])
	adapters := p.Adapters()
	require.Len(t, adapters, 1)
	assert.Equal(t, uint16(29001), adapters[0].Endpoint().Port)
}
