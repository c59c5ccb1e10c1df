package utilities

import (
	"context"

	"passport/internal/app/interceptors"
)

// EnvFromContext extracts env key from context, an unset env counts as prod
func EnvFromContext(ctx context.Context) string {
	if env, ok := ctx.Value(interceptors.EnvKey).(string); ok {
		return env
	}
	return interceptors.EnvProd
}
