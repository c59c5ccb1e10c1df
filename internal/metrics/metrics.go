package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors of the passport
type Metrics struct {
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// outcome is one of consent, preauthorized, authenticate, signout, confirmed, cancelled, error
	AuthorizeOutcomes *prometheus.CounterVec
	TokenExchanges    *prometheus.CounterVec
	Logins            *prometheus.CounterVec
}

// New registers every collector with registry
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passport_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "passport_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		AuthorizeOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passport_authorize_outcomes_total",
				Help: "Authorization requests by outcome",
			},
			[]string{"outcome"},
		),
		TokenExchanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passport_token_exchanges_total",
				Help: "Token endpoint exchanges by grant type",
			},
			[]string{"grant_type", "success"},
		),
		Logins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passport_logins_total",
				Help: "Logins by method",
			},
			[]string{"method", "success"},
		),
	}
}

// ObserveRequest records a served HTTP request
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

func (m *Metrics) AuthorizeOutcome(outcome string) {
	m.AuthorizeOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TokenExchange(grantType string, success bool) {
	m.TokenExchanges.WithLabelValues(grantType, strconv.FormatBool(success)).Inc()
}

func (m *Metrics) Login(method string, success bool) {
	m.Logins.WithLabelValues(method, strconv.FormatBool(success)).Inc()
}
