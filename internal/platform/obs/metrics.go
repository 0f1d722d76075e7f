package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	routeOptimizations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_route_optimizations_total",
		Help: "Route optimizations completed, by the strategy that produced the result.",
	}, []string{"strategy"})

	providerFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delivery_route_provider_fallbacks_total",
		Help: "Provider failures recovered by the nearest-neighbor fallback.",
	})

	optimizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "delivery_route_optimize_duration_seconds",
		Help:    "Time spent in route optimization, including provider calls.",
		Buckets: prometheus.DefBuckets,
	})

	trackingPhaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_tracking_phase_transitions_total",
		Help: "Tracking session phase transitions, by target phase.",
	}, []string{"phase"})

	realtimePublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_realtime_published_total",
		Help: "Row changes published to the realtime transport, by table.",
	}, []string{"table"})
)

func ObserveOptimization(strategy string, dur time.Duration) {
	routeOptimizations.WithLabelValues(strategy).Inc()
	optimizeDuration.Observe(dur.Seconds())
}

func IncProviderFallback() { providerFallbacks.Inc() }

func IncTrackingPhase(phase string) { trackingPhaseTransitions.WithLabelValues(phase).Inc() }

func IncPublished(table string) { realtimePublished.WithLabelValues(table).Inc() }
