package protocol

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the client and server paths.
var (
	// ErrNoEndpoint means the selector had no endpoint to offer.
	ErrNoEndpoint = errors.New("no available endpoint")
	// ErrQueueFull means the per-proxy in-flight cap was hit.
	ErrQueueFull = errors.New("invoke queue full")
	// ErrConnectionClosed means a pending call was abandoned because the
	// underlying connection ended.
	ErrConnectionClosed = errors.New("connection closed")
)

// TimeoutError reports an operation that exceeded its deadline.
type TimeoutError struct {
	Millis int64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation timed out after %dms", e.Millis)
}

// ServerError carries a non-zero return code from the peer.
type ServerError struct {
	Code    int32
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: code=%d, message=%s", e.Code, e.Message)
}

// ServiceNotFoundError means an object name resolved to nothing, neither a
// direct endpoint list nor a registry entry.
type ServiceNotFoundError struct {
	Name string
}

func (e *ServiceNotFoundError) Error() string {
	return fmt.Sprintf("service not found: %s", e.Name)
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
