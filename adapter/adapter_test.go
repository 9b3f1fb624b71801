package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tars-rpc/endpoint"
	"tars-rpc/protocol"
	"tars-rpc/transport"
)

// fakeClock pins nowSecs for a test and restores it afterwards.
func fakeClock(t *testing.T) *int64 {
	t.Helper()
	now := int64(1_000_000)
	old := nowSecs
	nowSecs = func() int64 { return now }
	t.Cleanup(func() { nowSecs = old })
	return &now
}

func newTestProxy(t *testing.T) *Proxy {
	t.Helper()
	// The port is never listened on; tests here exercise state, not I/O.
	p := New(endpoint.TCP("127.0.0.1", 29999), transport.DefaultClientConfig())
	t.Cleanup(p.Close)
	return p
}

func TestNewProxyState(t *testing.T) {
	fakeClock(t)
	p := newTestProxy(t)
	assert.True(t, p.IsActive())
	assert.False(t, p.IsClosed())
	assert.Equal(t, uint16(29999), p.Endpoint().Port)
}

func TestCounters(t *testing.T) {
	fakeClock(t)
	p := newTestProxy(t)

	p.SuccessAdd()
	p.SuccessAdd()
	p.FailAdd()

	assert.Equal(t, int32(2), p.successCount.Load())
	assert.Equal(t, int32(1), p.failCount.Load())
	assert.Equal(t, int32(1), p.lastFailCount.Load())

	// Success clears the consecutive streak but not the total.
	p.SuccessAdd()
	assert.Equal(t, int32(0), p.lastFailCount.Load())
	assert.Equal(t, int32(1), p.failCount.Load())
}

func TestCheckActiveConsecutiveFailures(t *testing.T) {
	now := fakeClock(t)
	p := newTestProxy(t)

	// Five consecutive failures alone do not block while the last success
	// is recent.
	for i := 0; i < 5; i++ {
		p.FailAdd()
	}
	first, probe := p.CheckActive()
	assert.False(t, first)
	assert.False(t, probe)
	assert.True(t, p.IsActive())

	// Once the last success is old enough, the same streak blocks.
	*now += failInterval
	first, probe = p.CheckActive()
	assert.True(t, first)
	assert.False(t, probe)
	assert.False(t, p.IsActive())

	// The transition reports only once.
	first, _ = p.CheckActive()
	assert.False(t, first)
}

func TestCheckActiveFailureRatio(t *testing.T) {
	now := fakeClock(t)
	p := newTestProxy(t)

	// 2 failures out of 3 sends crosses the 0.5 ratio with >= 2 failures,
	// checked only when the periodic window elapses.
	p.sendCount.Store(3)
	p.failCount.Store(2)
	p.SuccessAdd() // keep the consecutive trigger quiet

	first, _ := p.CheckActive()
	assert.False(t, first)

	*now += checkTime
	first, _ = p.CheckActive()
	assert.True(t, first)
	assert.False(t, p.IsActive())
}

func TestCheckActiveProbeWindow(t *testing.T) {
	now := fakeClock(t)
	p := newTestProxy(t)

	// Block it.
	for i := 0; i < 5; i++ {
		p.FailAdd()
	}
	*now += failInterval
	first, _ := p.CheckActive()
	require.True(t, first)

	// No probe before the retry window.
	_, probe := p.CheckActive()
	assert.False(t, probe)

	// Probe is offered once per window, without flipping active.
	*now += tryTimeInterval
	_, probe = p.CheckActive()
	assert.True(t, probe)
	assert.False(t, p.IsActive())
	_, probe = p.CheckActive()
	assert.False(t, probe)

	// A successful probe reactivates.
	p.SuccessAdd()
	p.Activate()
	assert.True(t, p.IsActive())
	assert.Equal(t, int32(0), p.lastFailCount.Load())
}

func TestCheckActiveClosed(t *testing.T) {
	fakeClock(t)
	p := newTestProxy(t)
	p.Close()
	first, probe := p.CheckActive()
	assert.False(t, first)
	assert.False(t, probe)
}

func TestReset(t *testing.T) {
	now := fakeClock(t)
	p := newTestProxy(t)

	for i := 0; i < 5; i++ {
		p.FailAdd()
	}
	*now += failInterval
	p.CheckActive()
	require.False(t, p.IsActive())

	p.Reset()
	assert.True(t, p.IsActive())
	assert.Equal(t, int32(0), p.failCount.Load())
	assert.Equal(t, int32(0), p.sendCount.Load())
}

func TestDeliverFulfilsPending(t *testing.T) {
	fakeClock(t)
	p := newTestProxy(t)

	ch := p.RegisterResponse(42)
	p.deliver(protocol.Success(42, []byte{1}))

	rsp := <-ch
	require.NotNil(t, rsp)
	assert.Equal(t, int32(42), rsp.RequestID)

	// A second delivery for the same id finds no completer and is dropped.
	p.deliver(protocol.Success(42, []byte{2}))
}

func TestDeliverUnknownIDDropped(t *testing.T) {
	fakeClock(t)
	p := newTestProxy(t)
	// Nothing registered: must not panic or block.
	p.deliver(protocol.Success(7, nil))
}

func TestUnregisterIsIdempotent(t *testing.T) {
	fakeClock(t)
	p := newTestProxy(t)
	p.RegisterResponse(9)
	p.UnregisterResponse(9)
	p.UnregisterResponse(9)
}

func TestPushCallback(t *testing.T) {
	fakeClock(t)
	p := newTestProxy(t)

	var got []byte
	p.SetPushCallback(func(payload []byte) { got = payload })

	p.deliver(protocol.Success(0, []byte{7, 7}))
	assert.Equal(t, []byte{7, 7}, got)
}

func TestReconnectPush(t *testing.T) {
	fakeClock(t)
	p := newTestProxy(t)

	rsp := protocol.Success(0, nil)
	rsp.ResultDesc = protocol.ReconnectMsg
	p.deliver(rsp)

	select {
	case <-p.Reconnect():
	default:
		t.Fatal("reconnect signal not delivered")
	}
}
