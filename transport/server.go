package transport

import (
	"context"
	"crypto/tls"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tars-rpc/codec"
	"tars-rpc/logger"
)

// ServerHandler is the protocol layer above a server connection: frame
// boundaries, request dispatch, the substitute payload for handlers that
// miss their deadline, and the shutdown close message.
type ServerHandler interface {
	ParsePackage(data []byte) (int, codec.PackageStatus)
	// Invoke handles one complete frame and returns the response bytes;
	// an empty return means nothing is written (oneway).
	Invoke(ctx context.Context, pkg []byte) []byte
	// InvokeTimeout is used in place of Invoke's result when the handle
	// timeout expires; it typically encodes a queue-timeout response with
	// the request id from pkg.
	InvokeTimeout(pkg []byte) []byte
	// CloseMsg is written to live connections during graceful shutdown.
	CloseMsg() []byte
	// DoClose runs when a connection ends.
	DoClose(ctx context.Context)
}

// clientAddrKey carries the peer address through the handler context.
type clientAddrKey struct{}

// WithClientAddr attaches the peer address to a context.
func WithClientAddr(ctx context.Context, addr net.Addr) context.Context {
	return context.WithValue(ctx, clientAddrKey{}, addr)
}

// ClientAddr returns the peer address attached by the server loop, or nil.
func ClientAddr(ctx context.Context) net.Addr {
	addr, _ := ctx.Value(clientAddrKey{}).(net.Addr)
	return addr
}

// shutdownGrace bounds how long Shutdown waits for in-flight invokes.
const shutdownGrace = 30 * time.Second

// Server accepts connections and runs one read/dispatch/write loop per
// connection, under a global concurrency cap.
type Server struct {
	config  ServerConfig
	handler ServerHandler
	log     *zap.Logger

	listener  net.Listener
	closed    atomic.Bool
	numConn   atomic.Int32
	numInvoke atomic.Int32
}

// NewServer creates a server; Serve starts it.
func NewServer(handler ServerHandler, config ServerConfig) *Server {
	return &Server{
		config:  config,
		handler: handler,
		log:     logger.Named("transport.server").With(zap.String("address", config.Address)),
	}
}

// Serve listens and accepts until Shutdown. Accept deadline expiry is
// non-fatal; other accept errors end the loop.
func (s *Server) Serve() error {
	var listener net.Listener
	var err error
	if s.config.TLS != nil {
		listener, err = tls.Listen("tcp", s.config.Address, s.config.TLS)
	} else {
		listener, err = net.Listen("tcp", s.config.Address)
	}
	if err != nil {
		return err
	}
	s.listener = listener
	s.log.Info("server listening")

	for {
		if s.closed.Load() {
			return nil
		}
		if dl, ok := listener.(interface{ SetDeadline(time.Time) error }); ok && s.config.AcceptTimeout > 0 {
			dl.SetDeadline(time.Now().Add(s.config.AcceptTimeout))
		}
		conn, err := listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			// Shutdown closes the listener; only report unexpected errors.
			if s.closed.Load() {
				return nil
			}
			return err
		}
		s.numConn.Add(1)
		go func() {
			defer s.numConn.Add(-1)
			s.handleConn(conn)
		}()
	}
}

// Addr returns the bound listener address, nil before Serve.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ConnCount returns the live connection count.
func (s *Server) ConnCount() int32 { return s.numConn.Load() }

// InvokeCount returns the in-flight invoke count.
func (s *Server) InvokeCount() int32 { return s.numInvoke.Load() }

// IsClosed reports whether Shutdown has started.
func (s *Server) IsClosed() bool { return s.closed.Load() }

// handleConn runs one connection: read under deadline, assemble frames,
// dispatch under the concurrency cap, write responses.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr()
	log := s.log.With(zap.Stringer("peer", remote))
	log.Debug("connection accepted")

	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(s.config.TCPNoDelay)
	}

	ctx := WithClientAddr(context.Background(), remote)
	defer s.handler.DoClose(ctx)

	buf := make([]byte, s.config.TCPReadBuffer)
	var acc []byte
	lastFrame := time.Now()

	for {
		if s.closed.Load() {
			// Graceful shutdown: tell the peer before hanging up.
			if msg := s.handler.CloseMsg(); len(msg) > 0 {
				conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				conn.Write(msg)
			}
			return
		}

		if s.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}
		n, err := conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if time.Since(lastFrame) > s.config.IdleTimeout {
					log.Debug("connection idle, closing")
					return
				}
				continue
			}
			log.Debug("read ended", zap.Error(err))
			return
		}

		acc = append(acc, buf[:n]...)
		for {
			pkgLen, status := s.handler.ParsePackage(acc)
			if status == codec.PackageLess {
				break
			}
			if status == codec.PackageError {
				log.Error("package parse error, dropping connection")
				return
			}
			pkg := make([]byte, pkgLen)
			copy(pkg, acc[:pkgLen])
			acc = acc[pkgLen:]
			lastFrame = time.Now()

			if s.numInvoke.Load() >= s.config.MaxInvoke {
				// Over the cap: shed this frame, keep the connection.
				log.Warn("max invoke limit reached, dropping request")
				continue
			}
			s.numInvoke.Add(1)
			response := s.invokeWithTimeout(ctx, pkg)
			s.numInvoke.Add(-1)

			if len(response) > 0 {
				if s.config.WriteTimeout > 0 {
					conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
				}
				if _, err := conn.Write(response); err != nil {
					log.Error("write error", zap.Error(err))
					return
				}
			}
		}
	}
}

// invokeWithTimeout dispatches one frame, substituting the handler's
// timeout payload when HandleTimeout expires. The handler goroutine keeps
// running to completion; its late result is discarded.
func (s *Server) invokeWithTimeout(ctx context.Context, pkg []byte) []byte {
	if s.config.HandleTimeout <= 0 {
		return s.handler.Invoke(ctx, pkg)
	}
	hctx, cancel := context.WithTimeout(ctx, s.config.HandleTimeout)
	defer cancel()

	done := make(chan []byte, 1)
	go func() {
		done <- s.handler.Invoke(hctx, pkg)
	}()
	select {
	case rsp := <-done:
		return rsp
	case <-hctx.Done():
		return s.handler.InvokeTimeout(pkg)
	}
}

// Shutdown stops accepting, lets connections send the close message, and
// waits up to the grace period for in-flight invokes.
func (s *Server) Shutdown() {
	s.log.Info("shutting down")
	// Flag first so the accept error after Close is recognized as ours.
	s.closed.Store(true)
	if s.listener != nil {
		s.listener.Close()
	}

	deadline := time.Now().Add(shutdownGrace)
	for s.numInvoke.Load() > 0 {
		if time.Now().After(deadline) {
			s.log.Warn("shutdown grace expired, forcing close",
				zap.Int32("inflight", s.numInvoke.Load()))
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	s.log.Info("shutdown complete")
}
