package httpapp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"passport/internal/app/interceptors"
	"passport/internal/http/authenticate"
	"passport/internal/http/authorize"
	"passport/internal/http/middleware"
	"passport/internal/http/respond"
	"passport/internal/http/token"
	"passport/internal/lib/cookie"
	"passport/internal/lib/logger/sl"
	"passport/internal/metrics"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers are the collaborators behind the routes
type Handlers struct {
	Authorizer    authorize.Authorizer
	Authenticator authenticate.Authenticator
	Grants        token.Grants
	Keys          token.KeySource
	Cookies       *cookie.Manager
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer
	Probes        map[string]Pinger
}

// NewRouter mounts every passport route behind the shared middlewares
func NewRouter(log *slog.Logger, env string, h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		interceptors.EnvMiddleware(env),
		middleware.Logger(log),
		middleware.Metrics(h.Metrics),
	)

	authorize.Register(r, log, h.Authorizer, h.Cookies, h.Metrics)
	authenticate.Register(r, log, h.Authenticator, h.Authorizer, h.Cookies, h.Metrics)
	token.Register(r, log, h.Grants, h.Keys, h.Authorizer, h.Cookies, h.Metrics)

	r.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", healthz(log, h.Probes))

	return r
}

func healthz(log *slog.Logger, probes map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{}
		healthy := true
		for name, p := range probes {
			if err := p.Ping(r.Context()); err != nil {
				log.Warn("probe failed", slog.String("probe", name), sl.Err(err))
				status[name] = "down"
				healthy = false
				continue
			}
			status[name] = "up"
		}
		if !healthy {
			respond.JSON(w, http.StatusServiceUnavailable, status)
			return
		}
		respond.JSON(w, http.StatusOK, status)
	}
}
