// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ClipRequests       *prometheus.CounterVec // by outcome kind
	LiveProbes         *prometheus.CounterVec // live | offline | failed
	MeteredLookups     *prometheus.CounterVec // ok | unavailable | error
	StartTimeCacheHits prometheus.Counter
	StartTimeCacheMiss prometheus.Counter
	Notifications      *prometheus.CounterVec // sent | failed
	Signups            *prometheus.CounterVec // ok | invalid | error

	// Histograms (seconds)
	ClipDuration  prometheus.Observer
	ProbeDuration prometheus.Observer

	// Gauges
	NotificationsInFlight prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ClipRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "clip_requests_total", Help: "Clip requests by outcome"}, []string{"outcome"})
		LiveProbes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "clip_live_probes_total", Help: "Zero-quota live probes by result"}, []string{"result"})
		MeteredLookups = promauto.NewCounterVec(prometheus.CounterOpts{Name: "clip_metered_lookups_total", Help: "YouTube Data API start time lookups by result"}, []string{"result"})
		StartTimeCacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_start_time_cache_hits_total", Help: "Start time cache hits"})
		StartTimeCacheMiss = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_start_time_cache_misses_total", Help: "Start time cache misses"})
		Notifications = promauto.NewCounterVec(prometheus.CounterOpts{Name: "clip_notifications_total", Help: "Webhook notifications by result"}, []string{"result"})
		Signups = promauto.NewCounterVec(prometheus.CounterOpts{Name: "clip_signups_total", Help: "Signup requests by result"}, []string{"result"})
		ClipDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "clip_request_duration_seconds", Help: "End-to-end clip request duration seconds", Buckets: prometheus.DefBuckets})
		ProbeDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "clip_live_probe_duration_seconds", Help: "Live probe duration seconds", Buckets: prometheus.DefBuckets})
		NotificationsInFlight = promauto.NewGauge(prometheus.GaugeOpts{Name: "clip_notifications_in_flight", Help: "Webhook deliveries currently running"})
	})
}

// The helpers below are no-ops until Init has run so packages stay usable in tests without metrics.

// CountClip records one clip request outcome.
func CountClip(outcome string) { inc(ClipRequests, outcome) }

// CountProbe records one live probe result.
func CountProbe(result string) { inc(LiveProbes, result) }

// CountLookup records one metered lookup result.
func CountLookup(result string) { inc(MeteredLookups, result) }

// CountNotification records one webhook delivery result.
func CountNotification(result string) { inc(Notifications, result) }

// CountSignup records one signup result.
func CountSignup(result string) { inc(Signups, result) }

// CountCache records a start time cache hit or miss.
func CountCache(hit bool) {
	if hit {
		if StartTimeCacheHits != nil {
			StartTimeCacheHits.Inc()
		}
		return
	}
	if StartTimeCacheMiss != nil {
		StartTimeCacheMiss.Inc()
	}
}

// AddInFlight adjusts the in-flight notification gauge.
func AddInFlight(delta float64) {
	if NotificationsInFlight != nil {
		NotificationsInFlight.Add(delta)
	}
}

func inc(v *prometheus.CounterVec, label string) {
	if v != nil {
		v.WithLabelValues(label).Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
