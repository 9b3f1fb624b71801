package transport

import (
	"crypto/tls"
	"time"
)

// Transport protocol names.
const (
	ProtoTCP = "tcp"
	ProtoUDP = "udp"
	ProtoSSL = "ssl"
)

// ClientConfig configures one client connection.
type ClientConfig struct {
	// Proto is "tcp", "udp", or "ssl".
	Proto string
	// QueueLen bounds the outbound send queue.
	QueueLen int
	// IdleTimeout closes the connection after this long with no outbound
	// activity and no in-flight invokes.
	IdleTimeout time.Duration
	// ReadTimeout re-arms before every read.
	ReadTimeout time.Duration
	// WriteTimeout bounds each queued write.
	WriteTimeout time.Duration
	// DialTimeout bounds connect plus, for SSL, the TLS handshake.
	DialTimeout time.Duration
	// TLS is required when Proto is "ssl".
	TLS *tls.Config
}

// DefaultClientConfig returns the TCP defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Proto:        ProtoTCP,
		QueueLen:     10000,
		IdleTimeout:  600 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DialTimeout:  3 * time.Second,
	}
}

// IsSSL reports whether the client dials with TLS.
func (c ClientConfig) IsSSL() bool { return c.Proto == ProtoSSL }

// IsUDP reports whether the client dials UDP.
func (c ClientConfig) IsUDP() bool { return c.Proto == ProtoUDP }

// network returns the net.Dial network name.
func (c ClientConfig) network() string {
	if c.IsUDP() {
		return "udp"
	}
	return "tcp"
}

// ServerConfig configures a listener.
type ServerConfig struct {
	// Address is the bind address, e.g. "0.0.0.0:10000".
	Address string
	// MaxInvoke caps concurrently dispatched requests; frames beyond the
	// cap are dropped and logged, the connection stays up.
	MaxInvoke int32
	// AcceptTimeout re-arms before each Accept; expiry is non-fatal.
	AcceptTimeout time.Duration
	// ReadTimeout re-arms before every read.
	ReadTimeout time.Duration
	// WriteTimeout bounds each response write.
	WriteTimeout time.Duration
	// HandleTimeout bounds one handler invocation; on expiry the handler's
	// timeout payload is written instead.
	HandleTimeout time.Duration
	// IdleTimeout closes a connection that produced no frame for this long.
	IdleTimeout time.Duration
	// QueueCap is carried for configuration only: the server does not read
	// it, and frames are dispatched inline as they are parsed, with no
	// per-connection backlog.
	QueueCap int
	// TCPReadBuffer sizes the per-connection read buffer.
	TCPReadBuffer int
	// TCPNoDelay sets TCP_NODELAY on accepted connections.
	TCPNoDelay bool
	// TLS enables a TLS listener when set.
	TLS *tls.Config
}

// DefaultServerConfig returns the TCP defaults for the given address.
func DefaultServerConfig(address string) ServerConfig {
	return ServerConfig{
		Address:       address,
		MaxInvoke:     200000,
		AcceptTimeout: 10 * time.Second,
		ReadTimeout:   60 * time.Second,
		WriteTimeout:  60 * time.Second,
		HandleTimeout: 60 * time.Second,
		IdleTimeout:   600 * time.Second,
		QueueCap:      10000,
		TCPReadBuffer: 128 * 1024,
	}
}
