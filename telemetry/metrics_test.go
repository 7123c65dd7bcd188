package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsInitialized(t *testing.T) {
	Init()
	Init() // idempotent

	if ClipRequests == nil || LiveProbes == nil || MeteredLookups == nil || Notifications == nil || Signups == nil {
		t.Fatal("counter vectors not initialized")
	}
	if StartTimeCacheHits == nil || StartTimeCacheMiss == nil {
		t.Fatal("cache counters not initialized")
	}
	if ClipDuration == nil || ProbeDuration == nil {
		t.Fatal("histograms not initialized")
	}
	if NotificationsInFlight == nil {
		t.Fatal("in-flight gauge not initialized")
	}
}

func TestCounterHelpers(t *testing.T) {
	Init()

	tests := []struct {
		name  string
		vec   *prometheus.CounterVec
		label string
		inc   func(string)
	}{
		{"clip", ClipRequests, "ok", CountClip},
		{"probe", LiveProbes, "offline", CountProbe},
		{"lookup", MeteredLookups, "unavailable", CountLookup},
		{"notification", Notifications, "failed", CountNotification},
		{"signup", Signups, "invalid", CountSignup},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(tt.vec.WithLabelValues(tt.label))
			tt.inc(tt.label)
			after := testutil.ToFloat64(tt.vec.WithLabelValues(tt.label))
			if after-before != 1 {
				t.Errorf("%s counter delta = %v, want 1", tt.name, after-before)
			}
		})
	}
}

func TestCountCache(t *testing.T) {
	Init()

	hits := testutil.ToFloat64(StartTimeCacheHits)
	misses := testutil.ToFloat64(StartTimeCacheMiss)
	CountCache(true)
	CountCache(false)
	CountCache(false)
	if d := testutil.ToFloat64(StartTimeCacheHits) - hits; d != 1 {
		t.Errorf("hits delta = %v, want 1", d)
	}
	if d := testutil.ToFloat64(StartTimeCacheMiss) - misses; d != 2 {
		t.Errorf("misses delta = %v, want 2", d)
	}
}

func TestAddInFlight(t *testing.T) {
	Init()

	before := testutil.ToFloat64(NotificationsInFlight)
	AddInFlight(1)
	if got := testutil.ToFloat64(NotificationsInFlight); got != before+1 {
		t.Errorf("in flight = %v, want %v", got, before+1)
	}
	AddInFlight(-1)
	if got := testutil.ToFloat64(NotificationsInFlight); got != before {
		t.Errorf("in flight = %v, want %v", got, before)
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})

	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram == nil || metric.Histogram.GetSampleCount() == 0 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation(empty) = %q", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("GetCorrelation() = %q, want abc-123", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
