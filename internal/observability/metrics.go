package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cognito_auth"

// Metrics holds the Prometheus collectors of the service.
type Metrics struct {
	// VerificationsTotal counts Verify calls by result (ok or an error kind)
	VerificationsTotal *prometheus.CounterVec
	// VerificationDuration observes Verify latency by result
	VerificationDuration *prometheus.HistogramVec
	// JWKSFetchesTotal counts key set fetches by result
	JWKSFetchesTotal *prometheus.CounterVec
	// JWKSFetchDuration observes key set fetch latency by result
	JWKSFetchDuration *prometheus.HistogramVec
	// CachedKeys is the number of keys in the last successfully fetched set
	CachedKeys prometheus.Gauge
	// LastRefresh is the unix time of the last successful fetch
	LastRefresh prometheus.Gauge
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		VerificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_verifications_total",
				Help:      "Total number of token verifications",
			},
			[]string{"result"}, // result: ok, invalid_jwt, unknown_key, signature, token_expired, ...
		),
		VerificationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "token_verification_duration_seconds",
				Help:      "Duration of token verification in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		JWKSFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jwks_fetches_total",
				Help:      "Total number of JWKS fetches",
			},
			[]string{"result"}, // result: ok, jwks_fetch, jwks_parse
		),
		JWKSFetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "jwks_fetch_duration_seconds",
				Help:      "Duration of JWKS fetches in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		CachedKeys: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jwks_cached_keys",
			Help:      "Number of signing keys currently cached",
		}),
		LastRefresh: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jwks_last_refresh_timestamp_seconds",
			Help:      "Unix time of the last successful JWKS fetch",
		}),
	}
}

// JWKSFetched records a key set fetch.
func (m *Metrics) JWKSFetched(result string, duration time.Duration, keys int) {
	m.JWKSFetchesTotal.WithLabelValues(result).Inc()
	m.JWKSFetchDuration.WithLabelValues(result).Observe(duration.Seconds())
	if result == "ok" {
		m.CachedKeys.Set(float64(keys))
		m.LastRefresh.SetToCurrentTime()
	}
}

// TokenVerified records a verification outcome.
func (m *Metrics) TokenVerified(result string, duration time.Duration) {
	m.VerificationsTotal.WithLabelValues(result).Inc()
	m.VerificationDuration.WithLabelValues(result).Observe(duration.Seconds())
}
