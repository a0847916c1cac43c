package receiver

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnaryInterceptor returns a gRPC UnaryServerInterceptor that logs each call
// with its status code and latency, and converts a panic in the handler into
// codes.Internal instead of crashing the server.
func UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		start := time.Now()

		defer func() {
			if r := recover(); r != nil {
				slog.Error("receiver: panic in grpc handler",
					"method", info.FullMethod,
					"panic", r,
				)
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}

			code := status.Code(err)
			level := slog.LevelDebug
			if code != codes.OK {
				level = slog.LevelWarn
			}
			slog.Log(ctx, level, "receiver: grpc call",
				"method", info.FullMethod,
				"code", code.String(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}()

		return handler(ctx, req)
	}
}
