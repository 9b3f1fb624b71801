// Package config defines the client and server configuration surfaces and
// loads them from files through viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Client configures the client-side runtime. All durations are
// milliseconds in the file and converted through the *Duration accessors.
type Client struct {
	// Locator is the registry address string.
	Locator string `mapstructure:"locator"`
	// Stat is the statistics service address string.
	Stat string `mapstructure:"stat"`
	// Property is the property reporting service address string.
	Property string `mapstructure:"property"`
	// AsyncInvokeTimeout is the default per-proxy invoke timeout.
	AsyncInvokeTimeout int64 `mapstructure:"async-invoke-timeout"`
	// RefreshEndpointInterval is the registry refresh period.
	RefreshEndpointInterval int64 `mapstructure:"refresh-endpoint-interval"`
	// ReportInterval is the stat flush period.
	ReportInterval int64 `mapstructure:"report-interval"`
	// DialTimeout bounds connect plus TLS handshake.
	DialTimeout int64 `mapstructure:"dial-timeout"`
	// IdleTimeout closes idle client connections.
	IdleTimeout int64 `mapstructure:"idle-timeout"`
	// ReadTimeout re-arms before every read.
	ReadTimeout int64 `mapstructure:"read-timeout"`
	// WriteTimeout bounds each queued write.
	WriteTimeout int64 `mapstructure:"write-timeout"`
	// QueueLen bounds the transport outbound queue.
	QueueLen int `mapstructure:"queue-len"`
	// ObjQueueMax caps in-flight invokes per proxy.
	ObjQueueMax int32 `mapstructure:"obj-queue-max"`
}

// DefaultClient returns the client defaults.
func DefaultClient() Client {
	return Client{
		AsyncInvokeTimeout:      3000,
		RefreshEndpointInterval: 60000,
		ReportInterval:          10000,
		DialTimeout:             3000,
		IdleTimeout:             600000,
		ReadTimeout:             3000,
		WriteTimeout:            3000,
		QueueLen:                10000,
		ObjQueueMax:             10000,
	}
}

func (c Client) AsyncInvokeTimeoutDuration() time.Duration {
	return time.Duration(c.AsyncInvokeTimeout) * time.Millisecond
}

func (c Client) RefreshEndpointIntervalDuration() time.Duration {
	return time.Duration(c.RefreshEndpointInterval) * time.Millisecond
}

func (c Client) ReportIntervalDuration() time.Duration {
	return time.Duration(c.ReportInterval) * time.Millisecond
}

func (c Client) DialTimeoutDuration() time.Duration {
	return time.Duration(c.DialTimeout) * time.Millisecond
}

func (c Client) IdleTimeoutDuration() time.Duration {
	return time.Duration(c.IdleTimeout) * time.Millisecond
}

func (c Client) ReadTimeoutDuration() time.Duration {
	return time.Duration(c.ReadTimeout) * time.Millisecond
}

func (c Client) WriteTimeoutDuration() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Millisecond
}

// Server configures the server-side runtime.
type Server struct {
	// App and Name identify the process as App.Name.
	App  string `mapstructure:"app"`
	Name string `mapstructure:"server"`
	// Local is the bind address.
	Local string `mapstructure:"local"`
	// LogLevel selects the process log level.
	LogLevel string `mapstructure:"log-level"`
	// EnableSet and SetDivision configure SET routing.
	EnableSet   bool   `mapstructure:"enable-set"`
	SetDivision string `mapstructure:"set-division"`
	// AcceptTimeout re-arms before each accept.
	AcceptTimeout int64 `mapstructure:"accept-timeout"`
	// ReadTimeout re-arms before every read.
	ReadTimeout int64 `mapstructure:"read-timeout"`
	// WriteTimeout bounds each response write.
	WriteTimeout int64 `mapstructure:"write-timeout"`
	// HandleTimeout bounds one handler invocation.
	HandleTimeout int64 `mapstructure:"handle-timeout"`
	// IdleTimeout closes connections with no frames.
	IdleTimeout int64 `mapstructure:"idle-timeout"`
	// MaxInvoke caps concurrent dispatches.
	MaxInvoke int32 `mapstructure:"max-invoke"`
	// QueueCap is loaded but not applied by the transport server, which
	// keeps no inbound frame backlog.
	QueueCap int `mapstructure:"queue-cap"`
	// TCPReadBuffer and TCPWriteBuffer size the socket buffers.
	TCPReadBuffer  int `mapstructure:"tcp-read-buffer"`
	TCPWriteBuffer int `mapstructure:"tcp-write-buffer"`
	// TCPNoDelay sets TCP_NODELAY on accepted connections.
	TCPNoDelay bool `mapstructure:"tcp-no-delay"`
}

// DefaultServer returns the server defaults.
func DefaultServer() Server {
	return Server{
		LogLevel:       "info",
		AcceptTimeout:  10000,
		ReadTimeout:    60000,
		WriteTimeout:   60000,
		HandleTimeout:  60000,
		IdleTimeout:    600000,
		MaxInvoke:      200000,
		QueueCap:       10000,
		TCPReadBuffer:  128 * 1024,
		TCPWriteBuffer: 128 * 1024,
	}
}

func (s Server) AcceptTimeoutDuration() time.Duration {
	return time.Duration(s.AcceptTimeout) * time.Millisecond
}

func (s Server) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Millisecond
}

func (s Server) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Millisecond
}

func (s Server) HandleTimeoutDuration() time.Duration {
	return time.Duration(s.HandleTimeout) * time.Millisecond
}

func (s Server) IdleTimeoutDuration() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Millisecond
}

// setClientDefaults seeds viper with the client defaults so absent keys
// fall through to them.
func setClientDefaults(v *viper.Viper) {
	d := DefaultClient()
	v.SetDefault("async-invoke-timeout", d.AsyncInvokeTimeout)
	v.SetDefault("refresh-endpoint-interval", d.RefreshEndpointInterval)
	v.SetDefault("report-interval", d.ReportInterval)
	v.SetDefault("dial-timeout", d.DialTimeout)
	v.SetDefault("idle-timeout", d.IdleTimeout)
	v.SetDefault("read-timeout", d.ReadTimeout)
	v.SetDefault("write-timeout", d.WriteTimeout)
	v.SetDefault("queue-len", d.QueueLen)
	v.SetDefault("obj-queue-max", d.ObjQueueMax)
}

func setServerDefaults(v *viper.Viper) {
	d := DefaultServer()
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("accept-timeout", d.AcceptTimeout)
	v.SetDefault("read-timeout", d.ReadTimeout)
	v.SetDefault("write-timeout", d.WriteTimeout)
	v.SetDefault("handle-timeout", d.HandleTimeout)
	v.SetDefault("idle-timeout", d.IdleTimeout)
	v.SetDefault("max-invoke", d.MaxInvoke)
	v.SetDefault("queue-cap", d.QueueCap)
	v.SetDefault("tcp-read-buffer", d.TCPReadBuffer)
	v.SetDefault("tcp-write-buffer", d.TCPWriteBuffer)
	v.SetDefault("tcp-no-delay", d.TCPNoDelay)
}

// LoadClient reads a client config file (any format viper recognizes by
// extension).
func LoadClient(path string) (Client, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setClientDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return Client{}, fmt.Errorf("read client config: %w", err)
	}
	var c Client
	if err := v.Unmarshal(&c); err != nil {
		return Client{}, fmt.Errorf("parse client config: %w", err)
	}
	return c, nil
}

// LoadServer reads a server config file.
func LoadServer(path string) (Server, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setServerDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return Server{}, fmt.Errorf("read server config: %w", err)
	}
	var s Server
	if err := v.Unmarshal(&s); err != nil {
		return Server{}, fmt.Errorf("parse server config: %w", err)
	}
	return s, nil
}
