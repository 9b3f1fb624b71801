package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"tars-rpc/codec"
	"tars-rpc/protocol"
)

// SimpleClient is a blocking request/response client for the framework
// services (registry, remote log, statistics). One request is in flight
// at a time; the connection is dropped and re-dialed on any error.
type SimpleClient struct {
	mu      sync.Mutex
	address string
	conn    net.Conn

	dialTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// DialSimple connects to address with the default 5 s dial timeout.
func DialSimple(address string) (*SimpleClient, error) {
	return DialSimpleTimeout(address, 5*time.Second)
}

// DialSimpleTimeout connects to address with an explicit dial timeout.
func DialSimpleTimeout(address string, timeout time.Duration) (*SimpleClient, error) {
	c := &SimpleClient{
		address:      address,
		dialTimeout:  timeout,
		readTimeout:  30 * time.Second,
		writeTimeout: 30 * time.Second,
	}
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}
	return c, nil
}

// Address returns the remote address.
func (c *SimpleClient) Address() string { return c.address }

// ensureConnected dials when there is no live connection. Caller holds mu.
func (c *SimpleClient) ensureConnected() error {
	if c.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", c.address, c.dialTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.address, err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	c.conn = conn
	return nil
}

// drop discards the connection after an error. Caller holds mu.
func (c *SimpleClient) drop() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Invoke sends a request and blocks for the matching response.
func (c *SimpleClient) Invoke(req *protocol.RequestPacket) (*protocol.ResponsePacket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		return nil, err
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if _, err := c.conn.Write(req.Encode()); err != nil {
		c.drop()
		return nil, fmt.Errorf("write request: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	var header [4]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		c.drop()
		return nil, fmt.Errorf("read response header: %w", err)
	}
	total := int(binary.BigEndian.Uint32(header[:]))
	if total <= 4 || total > codec.MaxPackageLength {
		c.drop()
		return nil, fmt.Errorf("invalid response length %d", total)
	}

	body := make([]byte, total-4)
	if _, err := io.ReadFull(c.conn, body); err != nil {
		c.drop()
		return nil, fmt.Errorf("read response body: %w", err)
	}

	full := append(header[:], body...)
	return protocol.DecodeResponse(full)
}

// SendOneway sends a request without waiting for any response.
func (c *SimpleClient) SendOneway(req *protocol.RequestPacket) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if _, err := c.conn.Write(req.Encode()); err != nil {
		c.drop()
		return fmt.Errorf("write oneway request: %w", err)
	}
	return nil
}

// Close drops the connection; a later call re-dials.
func (c *SimpleClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drop()
}
