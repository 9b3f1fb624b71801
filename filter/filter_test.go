package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tars-rpc/protocol"
)

func TestClientChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) ClientMiddleware {
		return func(next ClientFilter) ClientFilter {
			return func(ctx context.Context, msg *Message, invoke Invoke, timeout time.Duration) error {
				order = append(order, name+".before")
				err := next(ctx, msg, invoke, timeout)
				order = append(order, name+".after")
				return err
			}
		}
	}

	f := New()
	f.UseClient(mw("A"))
	f.UseClient(mw("B"))

	chain := f.BuildClient(func(ctx context.Context, msg *Message, timeout time.Duration) error {
		order = append(order, "invoke")
		return nil
	})

	require.NoError(t, chain(context.Background(), NewMessage(), nil, time.Second))
	assert.Equal(t, []string{"A.before", "B.before", "invoke", "B.after", "A.after"}, order)
}

func TestClientChainEmptyCallsInvoke(t *testing.T) {
	called := false
	chain := New().BuildClient(func(ctx context.Context, msg *Message, timeout time.Duration) error {
		called = true
		return nil
	})
	require.NoError(t, chain(context.Background(), NewMessage(), nil, time.Second))
	assert.True(t, called)
}

func TestClientShortCircuit(t *testing.T) {
	f := New()
	f.UseClient(func(next ClientFilter) ClientFilter {
		return func(ctx context.Context, msg *Message, invoke Invoke, timeout time.Duration) error {
			// Never calls next: the invoke must not run.
			return protocol.ErrQueueFull
		}
	})

	invoked := false
	chain := f.BuildClient(func(ctx context.Context, msg *Message, timeout time.Duration) error {
		invoked = true
		return nil
	})

	err := chain(context.Background(), NewMessage(), nil, time.Second)
	assert.ErrorIs(t, err, protocol.ErrQueueFull)
	assert.False(t, invoked)
}

func TestServerChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) ServerMiddleware {
		return func(next ServerFilter) ServerFilter {
			return func(ctx context.Context, req *protocol.RequestPacket, dispatch Dispatch) (*protocol.ResponsePacket, error) {
				order = append(order, name)
				return next(ctx, req, dispatch)
			}
		}
	}

	f := New()
	f.UseServer(mw("outer"))
	f.UseServer(mw("inner"))

	chain := f.BuildServer(func(ctx context.Context, req *protocol.RequestPacket) (*protocol.ResponsePacket, error) {
		order = append(order, "dispatch")
		return protocol.Success(req.RequestID, nil), nil
	})

	rsp, err := chain(context.Background(), protocol.NewRequest(), nil)
	require.NoError(t, err)
	assert.True(t, rsp.IsSuccess())
	assert.Equal(t, []string{"outer", "inner", "dispatch"}, order)
}

func TestRateLimitServer(t *testing.T) {
	f := New()
	f.UseServer(RateLimitServer(1, 2))

	dispatched := 0
	chain := f.BuildServer(func(ctx context.Context, req *protocol.RequestPacket) (*protocol.ResponsePacket, error) {
		dispatched++
		return protocol.Success(req.RequestID, nil), nil
	})

	req := protocol.NewRequest()
	req.RequestID = 5

	// Burst of 2 passes, the third is rejected without dispatching.
	for i := 0; i < 2; i++ {
		rsp, err := chain(context.Background(), req, nil)
		require.NoError(t, err)
		assert.True(t, rsp.IsSuccess())
	}
	rsp, err := chain(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, protocol.ServerUnknownErr, rsp.Ret)
	assert.Equal(t, int32(5), rsp.RequestID)
	assert.Equal(t, 2, dispatched)
}

func TestMessageTiming(t *testing.T) {
	msg := NewMessage()
	assert.Greater(t, msg.BeginTime, int64(0))
	assert.Equal(t, int64(0), msg.EndTime)

	msg.End()
	assert.GreaterOrEqual(t, msg.EndTime, msg.BeginTime)
	assert.GreaterOrEqual(t, msg.ElapsedMillis(), int64(0))
}
