package servant

import "context"

// Context keys for the request-tagging mechanisms. Both set a status-map
// key and a message-flag bit on the outgoing request.
type (
	dyeingKey struct{}
	traceKey  struct{}
)

// WithDyeingKey marks the call graph rooted at this context as dyed.
func WithDyeingKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, dyeingKey{}, key)
}

// DyeingKey returns the dyeing key, if any.
func DyeingKey(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(dyeingKey{}).(string)
	return v, ok
}

// WithTraceKey attaches a trace key to the context.
func WithTraceKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, traceKey{}, key)
}

// TraceKey returns the trace key, if any.
func TraceKey(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(traceKey{}).(string)
	return v, ok
}
