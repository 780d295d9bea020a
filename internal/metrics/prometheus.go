package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	TokenRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "glass_token_refresh_total",
		Help: "Total number of access token exchanges, by result.",
	}, []string{"result"})

	CacheRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "glass_cache_requests_total",
		Help: "Total number of cache lookups, by cache and result (hit, miss, error).",
	}, []string{"cache", "result"})

	ReportRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "glass_report_requests_total",
		Help: "Total number of upstream report requests, by report and result.",
	}, []string{"report", "result"})

	ReportDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "glass_report_duration_seconds",
		Help:    "Latency of upstream report requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"report"})
)

// InitCustomMetrics registers the custom Prometheus metrics.
// It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	if reg == nil {
		log.Error().Msg("Prometheus registry is nil, cannot register custom metrics.")
		return
	}

	collectors := map[string]prometheus.Collector{
		"TokenRefreshTotal":   TokenRefreshTotal,
		"CacheRequestsTotal":  CacheRequestsTotal,
		"ReportRequestsTotal": ReportRequestsTotal,
		"ReportDuration":      ReportDuration,
	}
	for name, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msgf("Failed to register %s metric", name)
		}
	}
	log.Info().Msg("Custom Prometheus metrics registered.")
}
