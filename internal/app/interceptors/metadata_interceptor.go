package interceptors

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// MetadataInterceptor logs the method and incoming metadata of every call at debug level
func MetadataInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		const op = "interceptors.MetadataInterceptor"
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return handler(ctx, req)
		}
		pairs := make([]string, 0, md.Len())
		for k, v := range md {
			if k == "authorization" {
				v = []string{"[redacted]"}
			}
			pairs = append(pairs, fmt.Sprintf("%s: %s", k, strings.Join(v, ",")))
		}
		logger.With(slog.String("op", op), slog.String("method", info.FullMethod)).
			Debug(strings.Join(pairs, "; "))
		return handler(ctx, req)
	}
}
