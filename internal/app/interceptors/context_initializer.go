package interceptors

import (
	"context"
	"net/http"

	"google.golang.org/grpc"
)

const (
	EnvDev   = "dev"
	EnvLocal = "local"
	EnvProd  = "prod"
)

type contextKey string

const EnvKey contextKey = "env"

// WithEnv stores the env key in ctx
func WithEnv(ctx context.Context, env string) context.Context {
	return context.WithValue(ctx, EnvKey, env)
}

// EnvUnaryInterceptor middleware for initializing context by env key-value
func EnvUnaryInterceptor(env string) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		return handler(WithEnv(ctx, env), req)
	}
}

// EnvMiddleware is the http counterpart of EnvUnaryInterceptor
func EnvMiddleware(env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithEnv(r.Context(), env)))
		})
	}
}
