// Package filter implements the middleware chains wrapped around client
// invokes and server dispatches.
//
// A middleware takes a filter and returns a new filter that wraps it —
// the onion model:
//
//	Chain(A, B, C)(base)  →  A(B(C(base)))
//
//	invoke:   A.before → B.before → C.before → base
//	return:   base → C.after → B.after → A.after
//
// Registration order is outermost-first: the chain is folded in reverse so
// the earliest-registered middleware runs first on the way in and last on
// the way out. A filter must call its continuation at most once; not
// calling it short-circuits with the filter's own result.
package filter

import (
	"context"
	"time"

	"tars-rpc/protocol"
	"tars-rpc/selector"
)

// Message is the unit a client filter sees: the request, the response once
// it exists, timing, and the hash-routing request for the selector.
type Message struct {
	Req  *protocol.RequestPacket
	Resp *protocol.ResponsePacket

	BeginTime int64 // unix ms
	EndTime   int64 // unix ms, 0 until End

	Code uint32
	Type selector.HashType
	Hash bool
}

// NewMessage creates a message with a fresh request and start timestamp.
func NewMessage() *Message {
	return &Message{
		Req:       protocol.NewRequest(),
		BeginTime: time.Now().UnixMilli(),
	}
}

// End stamps the completion time.
func (m *Message) End() {
	m.EndTime = time.Now().UnixMilli()
}

// ElapsedMillis returns the call duration so far, or the final duration
// after End.
func (m *Message) ElapsedMillis() int64 {
	if m.EndTime > 0 {
		return m.EndTime - m.BeginTime
	}
	return time.Now().UnixMilli() - m.BeginTime
}

// HashCode implements selector.Message.
func (m *Message) HashCode() uint32 { return m.Code }

// HashType implements selector.Message.
func (m *Message) HashType() selector.HashType { return m.Type }

// IsHash implements selector.Message.
func (m *Message) IsHash() bool { return m.Hash }

// Invoke is the innermost client operation: select, send, wait.
type Invoke func(ctx context.Context, msg *Message, timeout time.Duration) error

// ClientFilter wraps an Invoke; next performs the rest of the chain.
type ClientFilter func(ctx context.Context, msg *Message, next Invoke, timeout time.Duration) error

// ClientMiddleware builds a ClientFilter around the next one.
type ClientMiddleware func(next ClientFilter) ClientFilter

// Dispatch is the innermost server operation: decode and run the handler.
type Dispatch func(ctx context.Context, req *protocol.RequestPacket) (*protocol.ResponsePacket, error)

// ServerFilter wraps a Dispatch.
type ServerFilter func(ctx context.Context, req *protocol.RequestPacket, next Dispatch) (*protocol.ResponsePacket, error)

// ServerMiddleware builds a ServerFilter around the next one.
type ServerMiddleware func(next ServerFilter) ServerFilter

// Filters holds the registered middlewares for both sides.
type Filters struct {
	client []ClientMiddleware
	server []ServerMiddleware
}

// New creates an empty filter registry.
func New() *Filters {
	return &Filters{}
}

// UseClient appends a client middleware; earlier registrations run
// outermost.
func (f *Filters) UseClient(mw ClientMiddleware) {
	f.client = append(f.client, mw)
}

// UseServer appends a server middleware; earlier registrations run
// outermost.
func (f *Filters) UseServer(mw ServerMiddleware) {
	f.server = append(f.server, mw)
}

// BuildClient folds the client middlewares around the base invoker.
func (f *Filters) BuildClient(invoke Invoke) ClientFilter {
	base := ClientFilter(func(ctx context.Context, msg *Message, next Invoke, timeout time.Duration) error {
		return next(ctx, msg, timeout)
	})
	chain := base
	for i := len(f.client) - 1; i >= 0; i-- {
		chain = f.client[i](chain)
	}
	// The returned filter ignores its next argument and passes the real
	// invoker down the chain, so every layer sees the same continuation.
	final := chain
	return func(ctx context.Context, msg *Message, _ Invoke, timeout time.Duration) error {
		return final(ctx, msg, invoke, timeout)
	}
}

// BuildServer folds the server middlewares around the base dispatcher.
func (f *Filters) BuildServer(dispatch Dispatch) ServerFilter {
	base := ServerFilter(func(ctx context.Context, req *protocol.RequestPacket, next Dispatch) (*protocol.ResponsePacket, error) {
		return next(ctx, req)
	})
	chain := base
	for i := len(f.server) - 1; i >= 0; i-- {
		chain = f.server[i](chain)
	}
	final := chain
	return func(ctx context.Context, req *protocol.RequestPacket, _ Dispatch) (*protocol.ResponsePacket, error) {
		return final(ctx, req, dispatch)
	}
}
