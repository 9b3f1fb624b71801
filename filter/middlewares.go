package filter

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tars-rpc/logger"
	"tars-rpc/protocol"
)

// LoggingClient logs every invoke with its duration and outcome.
func LoggingClient() ClientMiddleware {
	log := logger.Named("filter.client")
	return func(next ClientFilter) ClientFilter {
		return func(ctx context.Context, msg *Message, invoke Invoke, timeout time.Duration) error {
			err := next(ctx, msg, invoke, timeout)
			fields := []zap.Field{
				zap.String("servant", msg.Req.ServantName),
				zap.String("func", msg.Req.FuncName),
				zap.Int64("costMs", msg.ElapsedMillis()),
			}
			if err != nil {
				log.Warn("invoke failed", append(fields, zap.Error(err))...)
			} else {
				log.Debug("invoke done", fields...)
			}
			return err
		}
	}
}

// LoggingServer logs every dispatch with its duration and return code.
func LoggingServer() ServerMiddleware {
	log := logger.Named("filter.server")
	return func(next ServerFilter) ServerFilter {
		return func(ctx context.Context, req *protocol.RequestPacket, dispatch Dispatch) (*protocol.ResponsePacket, error) {
			start := time.Now()
			rsp, err := next(ctx, req, dispatch)
			fields := []zap.Field{
				zap.String("servant", req.ServantName),
				zap.String("func", req.FuncName),
				zap.Duration("cost", time.Since(start)),
			}
			if err != nil {
				log.Warn("dispatch failed", append(fields, zap.Error(err))...)
			} else if rsp != nil && !rsp.IsSuccess() {
				log.Warn("dispatch returned error code", append(fields, zap.Int32("ret", rsp.Ret))...)
			} else {
				log.Debug("dispatch done", fields...)
			}
			return rsp, err
		}
	}
}

// RateLimitServer rejects dispatches beyond a token-bucket budget with a
// ServerUnknownErr response, short-circuiting without calling the handler.
//
// The limiter lives in the middleware closure, shared by every request;
// building it per request would hand each call a fresh full bucket.
func RateLimitServer(perSecond float64, burst int) ServerMiddleware {
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	return func(next ServerFilter) ServerFilter {
		return func(ctx context.Context, req *protocol.RequestPacket, dispatch Dispatch) (*protocol.ResponsePacket, error) {
			if !limiter.Allow() {
				return protocol.Error(req.RequestID, protocol.ServerUnknownErr, "rate limit exceeded"), nil
			}
			return next(ctx, req, dispatch)
		}
	}
}
