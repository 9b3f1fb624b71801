// Package servant implements the client-side RPC proxy: request building,
// endpoint selection, pending-response demultiplexing, and the filter
// chain around the invoke path.
package servant

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tars-rpc/adapter"
	"tars-rpc/endpoint"
	"tars-rpc/filter"
	"tars-rpc/logger"
	"tars-rpc/protocol"
	"tars-rpc/selector"
	"tars-rpc/transport"
)

// defaultQueueMax caps in-flight invokes per proxy.
const defaultQueueMax int32 = 10000

// Proxy is the multi-endpoint client façade for one servant.
type Proxy struct {
	name   string
	log    *zap.Logger
	config transport.ClientConfig

	sel selector.Selector

	mu       sync.RWMutex
	adapters map[endpoint.Key]*adapter.Proxy

	timeoutMs atomic.Int64
	queueLen  atomic.Int32
	queueMax  int32
	version   int16

	invoke filter.ClientFilter

	stopOnce sync.Once
	stopCh   chan struct{}
}

// healthCheckInterval paces the adapter health sweep.
const healthCheckInterval = time.Second

// NewProxy creates a proxy over a fixed endpoint list with a round-robin
// selector and no middlewares.
func NewProxy(name string, endpoints []endpoint.Endpoint, config transport.ClientConfig) *Proxy {
	return NewProxyWith(name, endpoints, config, selector.NewRoundRobin(), filter.New())
}

// NewProxyWith creates a proxy with an explicit selector and filter set.
// The filter chain is built here; middlewares registered on filters after
// construction do not apply to this proxy.
func NewProxyWith(name string, endpoints []endpoint.Endpoint, config transport.ClientConfig,
	sel selector.Selector, filters *filter.Filters) *Proxy {
	p := &Proxy{
		name:     name,
		log:      logger.Named("servant").With(zap.String("obj", name)),
		config:   config,
		sel:      sel,
		adapters: map[endpoint.Key]*adapter.Proxy{},
		queueMax: defaultQueueMax,
		version:  protocol.TarsVersion,
	}
	p.stopCh = make(chan struct{})
	p.timeoutMs.Store(3000)
	p.sel.Refresh(endpoints)
	for _, ep := range endpoints {
		p.getOrCreateAdapter(ep)
	}
	p.invoke = filters.BuildClient(p.doInvoke)
	go p.healthLoop()
	return p
}

// healthLoop sweeps the adapters: an endpoint that just blocked leaves the
// selector, and a blocked endpoint whose probe window elapsed is
// re-admitted so the next caller probes it. A successful probe response
// reactivates the adapter in doInvoke; otherwise the next sweep finds it
// still inactive and removes it from selection again.
func (p *Proxy) healthLoop() {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, adp := range p.Adapters() {
				firstBlocked, needProbe := adp.CheckActive()
				switch {
				case firstBlocked:
					p.log.Warn("removing blocked endpoint from selection",
						zap.String("endpoint", adp.Endpoint().Address()))
					p.sel.Remove(adp.Endpoint())
				case needProbe:
					p.log.Info("re-admitting endpoint for probe",
						zap.String("endpoint", adp.Endpoint().Address()))
					p.sel.Add(adp.Endpoint())
				case !adp.IsActive():
					// Still blocked after its probe window: keep it out of
					// selection until the next window.
					p.sel.Remove(adp.Endpoint())
				}
			}
		case <-p.stopCh:
			return
		}
	}
}

// Name returns the servant name.
func (p *Proxy) Name() string { return p.name }

// SetTimeout sets the per-invoke timeout.
func (p *Proxy) SetTimeout(d time.Duration) {
	p.timeoutMs.Store(d.Milliseconds())
}

// Timeout returns the per-invoke timeout.
func (p *Proxy) Timeout() time.Duration {
	return time.Duration(p.timeoutMs.Load()) * time.Millisecond
}

// RefreshEndpoints swaps the live endpoint list: the selector refreshes,
// adapters for removed endpoints close, adapters for new ones are created
// on first use.
func (p *Proxy) RefreshEndpoints(endpoints []endpoint.Endpoint) {
	p.sel.Refresh(endpoints)

	keep := make(map[endpoint.Key]bool, len(endpoints))
	for _, ep := range endpoints {
		keep[ep.Key()] = true
	}

	p.mu.Lock()
	for key, adp := range p.adapters {
		if !keep[key] {
			adp.Close()
			delete(p.adapters, key)
		}
	}
	p.mu.Unlock()
}

// Adapters returns a snapshot of the live adapters.
func (p *Proxy) Adapters() []*adapter.Proxy {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*adapter.Proxy, 0, len(p.adapters))
	for _, adp := range p.adapters {
		out = append(out, adp)
	}
	return out
}

// Close stops the health loop and shuts down every adapter.
func (p *Proxy) Close() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, adp := range p.adapters {
		adp.Close()
		delete(p.adapters, key)
	}
}

// getOrCreateAdapter resolves the adapter for an endpoint, creating it on
// first reference. Double-checked under the write lock so concurrent
// callers share one adapter.
func (p *Proxy) getOrCreateAdapter(ep endpoint.Endpoint) *adapter.Proxy {
	key := ep.Key()
	p.mu.RLock()
	adp, ok := p.adapters[key]
	p.mu.RUnlock()
	if ok {
		return adp
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if adp, ok := p.adapters[key]; ok {
		return adp
	}
	adp = adapter.New(ep, p.config)
	p.adapters[key] = adp
	return adp
}

// buildRequest assembles the envelope for one call, applying the dyeing
// and trace tags from the context.
func (p *Proxy) buildRequest(ctx context.Context, funcName string, buf []byte,
	status, reqContext map[string]string) *protocol.RequestPacket {
	req := protocol.NewRequest()
	req.Version = p.version
	req.RequestID = GenRequestID()
	req.ServantName = p.name
	req.FuncName = funcName
	req.Buffer = buf
	req.Timeout = int32(p.timeoutMs.Load())
	if status != nil {
		req.Status = status
	}
	if reqContext != nil {
		req.Context = reqContext
	}

	if key, ok := DyeingKey(ctx); ok {
		req.Status[protocol.StatusDyedKey] = key
		req.AddMessageType(protocol.MessageTypeDyed)
	}
	if key, ok := TraceKey(ctx); ok {
		req.Status[protocol.StatusTraceKey] = key
		req.AddMessageType(protocol.MessageTypeTrace)
	}
	return req
}

// Invoke performs one RPC and returns the peer's response.
func (p *Proxy) Invoke(ctx context.Context, funcName string, buf []byte,
	status, reqContext map[string]string) (*protocol.ResponsePacket, error) {
	msg := filter.NewMessage()
	msg.Req = p.buildRequest(ctx, funcName, buf, status, reqContext)

	err := p.invoke(ctx, msg, nil, p.Timeout())
	msg.End()
	if err != nil {
		return nil, err
	}
	return msg.Resp, nil
}

// InvokeOneway fires a request without awaiting a response. Only send-side
// errors surface; a unique request id is still assigned.
func (p *Proxy) InvokeOneway(ctx context.Context, funcName string, buf []byte,
	status, reqContext map[string]string) error {
	req := p.buildRequest(ctx, funcName, buf, status, reqContext)
	req.PacketType = protocol.PacketOneway

	msg := filter.NewMessage()
	msg.Req = req

	adp, err := p.selectAdapter(msg)
	if err != nil {
		return err
	}
	if err := adp.Send(req); err != nil {
		adp.FailAdd()
		return err
	}
	adp.SuccessAdd()
	return nil
}

// InvokeHash performs one RPC with hash-constrained endpoint selection.
func (p *Proxy) InvokeHash(ctx context.Context, funcName string, buf []byte,
	hashCode uint32, hashType selector.HashType) (*protocol.ResponsePacket, error) {
	msg := filter.NewMessage()
	msg.Req = p.buildRequest(ctx, funcName, buf, nil, nil)
	msg.Code = hashCode
	msg.Type = hashType
	msg.Hash = true

	err := p.invoke(ctx, msg, nil, p.Timeout())
	msg.End()
	if err != nil {
		return nil, err
	}
	return msg.Resp, nil
}

// selectAdapter asks the selector for an endpoint and resolves its
// adapter.
func (p *Proxy) selectAdapter(msg selector.Message) (*adapter.Proxy, error) {
	ep, err := p.sel.Select(msg)
	if err != nil {
		return nil, err
	}
	return p.getOrCreateAdapter(ep), nil
}

// doInvoke is the base invoker under the filter chain: enforce the
// in-flight cap, select, register the completer, send, and wait bounded
// by the timeout.
func (p *Proxy) doInvoke(ctx context.Context, msg *filter.Message, timeout time.Duration) error {
	if p.queueLen.Add(1) > p.queueMax {
		p.queueLen.Add(-1)
		return protocol.ErrQueueFull
	}
	defer p.queueLen.Add(-1)

	adp, err := p.selectAdapter(msg)
	if err != nil {
		return err
	}

	// Record where the call went for middlewares and the stat path.
	ep := adp.Endpoint()
	msg.Req.Context["SERVER_IP"] = ep.Host
	msg.Req.Context["SERVER_PORT"] = strconv.Itoa(int(ep.Port))

	requestID := msg.Req.RequestID
	ch := adp.RegisterResponse(requestID)

	if err := adp.Send(msg.Req); err != nil {
		adp.UnregisterResponse(requestID)
		adp.FailAdd()
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case rsp, ok := <-ch:
		adp.UnregisterResponse(requestID)
		if !ok {
			adp.FailAdd()
			return protocol.ErrConnectionClosed
		}
		adp.SuccessAdd()
		if !adp.IsActive() {
			// A successful response doubles as a probe result.
			adp.Activate()
		}
		if !rsp.IsSuccess() {
			return &protocol.ServerError{Code: rsp.Ret, Message: rsp.ResultDesc}
		}
		msg.Resp = rsp
		return nil
	case <-timer.C:
		adp.UnregisterResponse(requestID)
		adp.FailAdd()
		return &protocol.TimeoutError{Millis: timeout.Milliseconds()}
	case <-ctx.Done():
		adp.UnregisterResponse(requestID)
		adp.FailAdd()
		return ctx.Err()
	}
}
