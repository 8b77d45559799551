package metrics

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observe(info.FullMethod, start, err)
		return resp, err
	}
}

// StreamServerInterceptor records a stream once it ends, e.g. a health Watch.
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		err := handler(srv, ss)
		observe(info.FullMethod, start, err)
		return err
	}
}

func observe(fullMethod string, start time.Time, err error) {
	service, method := splitMethodName(fullMethod)
	GRPCRequestsTotal.WithLabelValues(service, method, status.Code(err).String()).Inc()
	GRPCRequestDuration.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
}

func splitMethodName(fullMethod string) (string, string) {
	if len(fullMethod) == 0 {
		return "unknown", "unknown"
	}
	if fullMethod[0] == '/' {
		fullMethod = fullMethod[1:]
	}
	for i := 0; i < len(fullMethod); i++ {
		if fullMethod[i] == '/' {
			return fullMethod[:i], fullMethod[i+1:]
		}
	}
	return "unknown", fullMethod
}
