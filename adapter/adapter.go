// Package adapter implements the per-endpoint client container: one
// transport connection, the pending-response table keyed by request id,
// and the health counters that drive endpoint blocking and probing.
package adapter

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tars-rpc/codec"
	"tars-rpc/endpoint"
	"tars-rpc/logger"
	"tars-rpc/protocol"
	"tars-rpc/transport"
)

// Health thresholds, in seconds unless noted.
const (
	// failInterval + failN: block when the last success is this old and
	// this many consecutive failures piled up.
	failInterval int64 = 5
	failN        int32 = 5
	// checkTime: period of the failure-ratio check.
	checkTime int64 = 60
	// overN + failRatio: block when at least overN failures make up this
	// fraction of sends since the last reset.
	overN     int32   = 2
	failRatio float32 = 0.5
	// tryTimeInterval: how long a blocked endpoint waits before a probe.
	tryTimeInterval int64 = 30
)

// nowSecs is replaceable in tests.
var nowSecs = func() int64 { return time.Now().Unix() }

// Proxy owns the connection to a single endpoint.
//
// The failure ratio uses running counters that only Reset clears, matching
// the reference behavior: over a long-lived connection the ratio biases
// toward blocking. Time-windowed counters would be the improvement.
type Proxy struct {
	ep     endpoint.Endpoint
	client *transport.Client
	log    *zap.Logger

	// pending maps request id → chan *protocol.ResponsePacket (cap 1).
	pending sync.Map

	sendCount     atomic.Int32
	successCount  atomic.Int32
	failCount     atomic.Int32
	lastFailCount atomic.Int32 // consecutive
	lastSuccess   atomic.Int64
	lastBlock     atomic.Int64
	lastCheck     atomic.Int64
	active        atomic.Bool
	closed        atomic.Bool

	// pushCB receives the payload of server pushes (request id 0).
	pushMu sync.RWMutex
	pushCB func([]byte)

	// reconnectCh carries the server's _reconnect_ control pushes.
	reconnectCh chan struct{}
}

// New creates a proxy and its transport client for the endpoint.
func New(ep endpoint.Endpoint, config transport.ClientConfig) *Proxy {
	if ep.IsSSL() {
		config.Proto = transport.ProtoSSL
	} else if ep.IsUDP() {
		config.Proto = transport.ProtoUDP
	}
	now := nowSecs()
	p := &Proxy{
		ep:          ep,
		log:         logger.Named("adapter").With(zap.String("endpoint", ep.Address())),
		reconnectCh: make(chan struct{}, 1),
	}
	p.lastSuccess.Store(now)
	p.lastBlock.Store(now)
	p.lastCheck.Store(now)
	p.active.Store(true)
	p.client = transport.NewClient(ep.Address(), (*clientProtocol)(p), config)
	return p
}

// Endpoint returns the endpoint this proxy serves.
func (p *Proxy) Endpoint() endpoint.Endpoint { return p.ep }

// IsActive reports whether the endpoint is currently unblocked.
func (p *Proxy) IsActive() bool { return p.active.Load() }

// IsClosed reports whether Close ran.
func (p *Proxy) IsClosed() bool { return p.closed.Load() }

// SetPushCallback installs the receiver for server pushes.
func (p *Proxy) SetPushCallback(cb func([]byte)) {
	p.pushMu.Lock()
	p.pushCB = cb
	p.pushMu.Unlock()
}

// Reconnect returns the channel signalled by _reconnect_ pushes.
func (p *Proxy) Reconnect() <-chan struct{} { return p.reconnectCh }

// Send encodes and enqueues one request.
func (p *Proxy) Send(req *protocol.RequestPacket) error {
	p.sendCount.Add(1)
	return p.client.Send(req.Encode())
}

// RegisterResponse installs a single-shot completer for the request id and
// returns the channel the caller waits on.
func (p *Proxy) RegisterResponse(requestID int32) <-chan *protocol.ResponsePacket {
	ch := make(chan *protocol.ResponsePacket, 1)
	p.pending.Store(requestID, ch)
	p.client.AddInvoke()
	return ch
}

// UnregisterResponse removes the completer; idempotent, called on every
// outcome (response, timeout, send error).
func (p *Proxy) UnregisterResponse(requestID int32) {
	if _, loaded := p.pending.LoadAndDelete(requestID); loaded {
		p.client.DoneInvoke()
	}
}

// deliver routes one decoded response: pushes go to the push path, replies
// fulfil their pending completer exactly once. A reply with no completer
// (late arrival after a timeout) is dropped.
func (p *Proxy) deliver(rsp *protocol.ResponsePacket) {
	if rsp.IsPush() {
		p.handlePush(rsp)
		return
	}
	if ch, loaded := p.pending.LoadAndDelete(rsp.RequestID); loaded {
		p.client.DoneInvoke()
		ch.(chan *protocol.ResponsePacket) <- rsp
	} else {
		p.log.Debug("no pending caller for response", zap.Int32("requestID", rsp.RequestID))
	}
}

// handlePush dispatches a server push: the reconnect control message goes
// to the control channel, everything else to the push callback.
func (p *Proxy) handlePush(rsp *protocol.ResponsePacket) {
	if rsp.ResultDesc == protocol.ReconnectMsg {
		p.log.Debug("reconnect requested by server")
		select {
		case p.reconnectCh <- struct{}{}:
		default:
		}
		return
	}
	p.pushMu.RLock()
	cb := p.pushCB
	p.pushMu.RUnlock()
	if cb != nil {
		cb(rsp.Buffer)
	}
}

// SuccessAdd records a successful call and clears the consecutive-failure
// streak.
func (p *Proxy) SuccessAdd() {
	p.lastSuccess.Store(nowSecs())
	p.successCount.Add(1)
	p.lastFailCount.Store(0)
}

// FailAdd records a failed call.
func (p *Proxy) FailAdd() {
	p.lastFailCount.Add(1)
	p.failCount.Add(1)
}

// CheckActive runs the health state machine.
//
// Active→blocked on either trigger: a consecutive-failure streak with no
// recent success, or the periodic failure-ratio check. Returns
// firstBlocked=true on that transition. A blocked endpoint reports
// needProbe=true once per tryTimeInterval; the active flag stays false
// until a probe succeeds (SuccessAdd plus Activate by the prober).
func (p *Proxy) CheckActive() (firstBlocked, needProbe bool) {
	if p.closed.Load() {
		return false, false
	}
	now := nowSecs()

	if p.active.Load() {
		if now-p.lastSuccess.Load() >= failInterval && p.lastFailCount.Load() >= failN {
			p.block(now)
			return true, false
		}
		if now-p.lastCheck.Load() >= checkTime {
			p.lastCheck.Store(now)
			fails := p.failCount.Load()
			sends := p.sendCount.Load()
			if fails >= overN && sends > 0 && float32(fails)/float32(sends) >= failRatio {
				p.block(now)
				return true, false
			}
		}
		return false, false
	}

	if now-p.lastBlock.Load() >= tryTimeInterval {
		p.lastBlock.Store(now)
		return false, true
	}
	return false, false
}

func (p *Proxy) block(now int64) {
	p.active.Store(false)
	p.lastBlock.Store(now)
	p.log.Warn("endpoint blocked",
		zap.Int32("consecutiveFails", p.lastFailCount.Load()),
		zap.Int32("fails", p.failCount.Load()),
		zap.Int32("sends", p.sendCount.Load()))
}

// Activate flips the endpoint back to active after a successful probe.
func (p *Proxy) Activate() {
	p.lastFailCount.Store(0)
	p.active.Store(true)
}

// Reset clears all counters and unblocks the endpoint.
func (p *Proxy) Reset() {
	now := nowSecs()
	p.sendCount.Store(0)
	p.successCount.Store(0)
	p.failCount.Store(0)
	p.lastFailCount.Store(0)
	p.lastBlock.Store(now)
	p.lastCheck.Store(now)
	p.active.Store(true)
}

// Close marks the proxy closed and cancels the transport client; pending
// completers are dropped and their callers observe ErrConnectionClosed.
func (p *Proxy) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.client.Close()
}

// clientProtocol adapts Proxy to the transport.ClientProtocol interface
// without exposing those methods on the Proxy API.
type clientProtocol Proxy

func (cp *clientProtocol) ParsePackage(data []byte) (int, codec.PackageStatus) {
	return codec.ParsePackage(data)
}

func (cp *clientProtocol) Recv(pkg []byte) {
	p := (*Proxy)(cp)
	rsp, err := protocol.DecodeResponse(pkg)
	if err != nil {
		p.log.Error("response decode error", zap.Error(err))
		return
	}
	p.deliver(rsp)
}

// OnClose fails every pending caller when the connection ends for good.
func (cp *clientProtocol) OnClose(err error) {
	p := (*Proxy)(cp)
	p.pending.Range(func(key, value any) bool {
		if _, loaded := p.pending.LoadAndDelete(key); loaded {
			p.client.DoneInvoke()
			close(value.(chan *protocol.ResponsePacket))
		}
		return true
	})
}
