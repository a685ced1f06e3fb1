// Package observability provides gRPC interceptors and the metrics HTTP server.
package observability

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"ai-live-transcription-service/internal/observability/logging"
	"ai-live-transcription-service/internal/observability/metrics"
)

// probes are polled constantly; they log at trace level only.
const healthPrefix = "/grpc.health.v1.Health/"

type callObserver struct {
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

func newCallObserver(m *metrics.Metrics) callObserver {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return callObserver{metrics: m, logger: logging.WithComponent("grpc")}
}

func (o callObserver) observe(ctx context.Context, method string, start time.Time, err error) {
	elapsed := time.Since(start)
	code := status.Code(err).String()
	o.metrics.RecordGRPC(method, code, elapsed.Seconds())

	level := zerolog.DebugLevel
	switch {
	case strings.HasPrefix(method, healthPrefix):
		level = zerolog.TraceLevel
	case err != nil:
		level = zerolog.WarnLevel
	}

	ev := o.logger.WithLevel(level).
		Str("method", method).
		Str("code", code).
		Dur("duration", elapsed)
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		ev = ev.Str("peer", p.Addr.String())
	}
	ev.Msg("gRPC call completed")
}

// UnaryServerInterceptor records latency and status for unary calls.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	o := newCallObserver(m)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		o.observe(ctx, info.FullMethod, start, err)
		return resp, err
	}
}

// StreamServerInterceptor records latency and status for streaming calls,
// such as health Watch.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	o := newCallObserver(m)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		o.observe(ss.Context(), info.FullMethod, start, err)
		return err
	}
}
