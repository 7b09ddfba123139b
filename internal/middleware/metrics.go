package middleware

import (
	"context"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/SyedDaiam9101/cropdoc/internal/metrics"
)

// UnaryMetricsInterceptor records Prometheus histogram metrics for gRPC unary calls.
// It measures the duration of each call and records it with method and status code labels.
func UnaryMetricsInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		metrics.RecordGRPCLatency(info.FullMethod, statusCode(err), time.Since(start).Seconds())
		return resp, err
	}
}

// UnaryLoggingInterceptor logs one line per call with the request ID, method, status code
// and latency. It must run after UnaryRequestIDInterceptor in the chain.
func UnaryLoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		latencyMs := float64(time.Since(start).Microseconds()) / 1000.0
		if err != nil {
			log.Printf("[%s] %s: code=%s, total_ms=%.2f, error=%v",
				RequestIDOrUnknown(ctx), info.FullMethod, statusCode(err), latencyMs, err)
		} else {
			log.Printf("[%s] %s: code=OK, total_ms=%.2f", RequestIDOrUnknown(ctx), info.FullMethod, latencyMs)
		}
		return resp, err
	}
}

func statusCode(err error) string {
	if err == nil {
		return "OK"
	}
	if st, ok := status.FromError(err); ok {
		return st.Code().String()
	}
	return "Unknown"
}
