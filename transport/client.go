// Package transport implements the framed connection layer: the
// multiplexed client connection, the accept/dispatch server, and a simple
// blocking client for framework services.
//
// Framing is the 4-byte length prefix probed by codec.ParsePackage. The
// transport never looks inside a frame; complete frames are handed to the
// protocol handler, which owns demultiplexing.
package transport

import (
	"crypto/tls"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tars-rpc/codec"
	"tars-rpc/logger"
	"tars-rpc/protocol"
)

// ClientProtocol is what the client connection needs from the layer above:
// frame boundaries, delivery of complete frames, and a close notification
// so pending callers can be failed.
type ClientProtocol interface {
	ParsePackage(data []byte) (int, codec.PackageStatus)
	Recv(pkg []byte)
	OnClose(err error)
}

// Reconnect policy: 100 ms × attempt backoff, then give up for good.
const (
	maxConnectRetries = 3
	reconnectBackoff  = 100 * time.Millisecond
)

// Client is one multiplexed connection to a remote endpoint.
//
// A background goroutine owns the connection lifecycle: dial (with TLS
// upgrade for ssl), a reader goroutine assembling frames, and a writer
// draining the bounded send queue. Writes preserve caller order within the
// connection; responses demultiplex by request id in the layer above.
type Client struct {
	address string
	config  ClientConfig
	proto   ClientProtocol
	log     *zap.Logger

	sendCh    chan []byte
	done      chan struct{}
	closed    atomic.Bool
	invokeNum atomic.Int32
}

// NewClient creates a client and starts its connection loop.
func NewClient(address string, proto ClientProtocol, config ClientConfig) *Client {
	c := &Client{
		address: address,
		config:  config,
		proto:   proto,
		log:     logger.Named("transport.client").With(zap.String("remote", address)),
		sendCh:  make(chan []byte, config.QueueLen),
		done:    make(chan struct{}),
	}
	go c.connectionLoop()
	return c
}

// Send enqueues one encoded packet. The bounded queue applies
// back-pressure; a closed client fails immediately.
func (c *Client) Send(data []byte) error {
	if c.closed.Load() {
		return protocol.ErrConnectionClosed
	}
	select {
	case c.sendCh <- data:
		return nil
	case <-c.done:
		return protocol.ErrConnectionClosed
	}
}

// AddInvoke records one in-flight invoke; the idle timer will not close
// the connection while any remain.
func (c *Client) AddInvoke() { c.invokeNum.Add(1) }

// DoneInvoke retires one in-flight invoke.
func (c *Client) DoneInvoke() { c.invokeNum.Add(-1) }

// InvokeCount returns the in-flight invoke count.
func (c *Client) InvokeCount() int32 { return c.invokeNum.Load() }

// IsClosed reports whether the client has shut down permanently.
func (c *Client) IsClosed() bool { return c.closed.Load() }

// Close shuts the client down. Pending sends fail; the protocol handler
// receives OnClose once the loop exits.
func (c *Client) Close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.done)
	}
}

// connectionLoop dials and serves the connection, reconnecting with
// backoff on errors. A clean idle close parks the loop until the next
// outbound packet instead of redialing an idle link.
func (c *Client) connectionLoop() {
	defer func() {
		// Unblock senders even when the loop gives up on its own.
		if c.closed.CompareAndSwap(false, true) {
			close(c.done)
		}
		c.proto.OnClose(protocol.ErrConnectionClosed)
	}()

	var stash []byte // first packet to write after an idle reconnect
	attempt := 0
	for {
		if c.closed.Load() {
			return
		}
		connected, idle, err := c.serveConn(stash)
		stash = nil
		if connected {
			// A successful dial starts a fresh retry budget.
			attempt = 0
		}
		if c.closed.Load() {
			return
		}
		if err == nil && idle {
			// Idle close: wait for work before reconnecting.
			select {
			case data := <-c.sendCh:
				stash = data
				attempt = 0
				continue
			case <-c.done:
				return
			}
		}
		if err == nil {
			attempt = 0
			continue
		}
		attempt++
		if attempt > maxConnectRetries {
			c.log.Error("giving up after repeated connection failures", zap.Error(err))
			return
		}
		c.log.Warn("connection error, retrying", zap.Error(err), zap.Int("attempt", attempt))
		select {
		case <-time.After(reconnectBackoff * time.Duration(attempt)):
		case <-c.done:
			return
		}
	}
}

// dial connects within DialTimeout, performing the TLS handshake inside
// the same budget for ssl endpoints.
func (c *Client) dial() (net.Conn, error) {
	if c.config.IsSSL() {
		cfg := c.config.TLS
		if cfg == nil {
			cfg = &tls.Config{}
		}
		if cfg.ServerName == "" {
			cfg = cfg.Clone()
			cfg.ServerName = serverNameFromAddress(c.address)
		}
		dialer := &net.Dialer{Timeout: c.config.DialTimeout}
		return tls.DialWithDialer(dialer, "tcp", c.address, cfg)
	}
	conn, err := net.DialTimeout(c.config.network(), c.address, c.config.DialTimeout)
	if err != nil {
		return nil, err
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	return conn, nil
}

// serveConn runs one connection to completion. Returns connected=true
// once the dial succeeded, idle=true on a clean idle close, and a non-nil
// error on dial or I/O failure.
func (c *Client) serveConn(stash []byte) (connected, idle bool, _ error) {
	conn, err := c.dial()
	if err != nil {
		return false, false, err
	}
	defer conn.Close()
	c.log.Debug("connected")

	readerErr := make(chan error, 1)
	go c.readLoop(conn, readerErr)

	if stash != nil {
		if err := c.writePacket(conn, stash); err != nil {
			return true, false, err
		}
	}

	idleTimer := time.NewTimer(c.config.IdleTimeout)
	defer idleTimer.Stop()
	for {
		select {
		case data := <-c.sendCh:
			if err := c.writePacket(conn, data); err != nil {
				return true, false, err
			}
			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(c.config.IdleTimeout)
		case err := <-readerErr:
			return true, false, err
		case <-idleTimer.C:
			if c.invokeNum.Load() == 0 {
				c.log.Debug("connection idle, closing")
				return true, true, nil
			}
			idleTimer.Reset(c.config.IdleTimeout)
		case <-c.done:
			return true, false, nil
		}
	}
}

// writePacket writes one frame under the write timeout.
func (c *Client) writePacket(conn net.Conn, data []byte) error {
	if c.config.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}
	_, err := conn.Write(data)
	return err
}

// readLoop accumulates bytes and delivers complete frames to the protocol
// handler. It exits (reporting on readerErr) on I/O or framing errors; a
// read deadline expiry just re-arms, since silence is handled by the idle
// timer on the write side.
func (c *Client) readLoop(conn net.Conn, readerErr chan<- error) {
	buf := make([]byte, 4096)
	var acc []byte
	for {
		if c.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}
		n, err := conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			readerErr <- err
			return
		}
		acc = append(acc, buf[:n]...)
		for {
			pkgLen, status := c.proto.ParsePackage(acc)
			if status == codec.PackageLess {
				break
			}
			if status == codec.PackageError {
				c.log.Error("package parse error, dropping connection")
				readerErr <- protocol.ErrConnectionClosed
				return
			}
			pkg := make([]byte, pkgLen)
			copy(pkg, acc[:pkgLen])
			acc = acc[pkgLen:]
			c.proto.Recv(pkg)
		}
	}
}

// serverNameFromAddress extracts the host part of "host:port" for SNI.
func serverNameFromAddress(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[:i]
	}
	return addr
}
