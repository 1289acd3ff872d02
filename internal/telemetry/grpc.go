package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// GRPCServerInterceptor logs and measures every unary call. extra interceptors
// run after the telemetry ones, closest to the handler.
func GRPCServerInterceptor(extra ...grpc.UnaryServerInterceptor) grpc.ServerOption {
	opts := []logging.Option{
		logging.WithLogOnEvents(logging.StartCall, logging.FinishCall),
	}

	chain := []grpc.UnaryServerInterceptor{
		logging.UnaryServerInterceptor(grpcServerLogger(slog.Default()), opts...),
		grpcMetrics,
	}

	return grpc.ChainUnaryInterceptor(append(chain, extra...)...)
}

func grpcServerLogger(l *slog.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		l.Log(ctx, slog.Level(lvl), msg, fields...)
	})
}

func grpcMetrics(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	grpcRequestDuration.
		WithLabelValues(info.FullMethod, status.Code(err).String()).
		Observe(time.Since(start).Seconds())

	return resp, err
}
