// Package metrics exports native call counters and live handle gauges to
// Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bryanchriswhite/VAProbe/internal/logger"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi"
	"github.com/bryanchriswhite/VAProbe/internal/vaapi/native"
)

const namespace = "vaprobe"

// StatsSource is anything that can snapshot a display's handle table.
type StatsSource interface {
	Stats() vaapi.Stats
}

// Metrics is a vaapi.Observer backed by its own registry.
type Metrics struct {
	registry *prometheus.Registry
	calls    *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New creates the collectors and registers them together with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "native_calls_total",
			Help:      "libva calls by function and returned status.",
		}, []string{"function", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "native_call_seconds",
			Help:      "Time spent inside libva per function.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"function"}),
	}
	m.registry.MustRegister(
		m.calls,
		m.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveCall implements vaapi.Observer.
func (m *Metrics) ObserveCall(fn string, status native.Status, elapsed time.Duration) {
	m.calls.WithLabelValues(fn, status.Text()).Inc()
	m.latency.WithLabelValues(fn).Observe(elapsed.Seconds())
}

// WatchDisplay exports the live handle counts of src. It may be called once
// per Metrics.
func (m *Metrics) WatchDisplay(src StatsSource) error {
	kinds := []struct {
		kind vaapi.ResourceKind
		get  func(vaapi.Stats) int
	}{
		{vaapi.KindConfig, func(s vaapi.Stats) int { return s.Configs }},
		{vaapi.KindContext, func(s vaapi.Stats) int { return s.Contexts }},
		{vaapi.KindSurface, func(s vaapi.Stats) int { return s.Surfaces }},
		{vaapi.KindBuffer, func(s vaapi.Stats) int { return s.Buffers }},
		{vaapi.KindImage, func(s vaapi.Stats) int { return s.Images }},
	}
	for _, k := range kinds {
		get := k.get
		g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "live_handles",
			Help:        "Handles currently owned by the display.",
			ConstLabels: prometheus.Labels{"kind": string(k.kind)},
		}, func() float64 { return float64(get(src.Stats())) })
		if err := m.registry.Register(g); err != nil {
			return err
		}
	}

	closed := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "display_closed",
		Help:      "1 once the display has been closed.",
	}, func() float64 {
		if src.Stats().Closed {
			return 1
		}
		return 0
	})
	if err := m.registry.Register(closed); err != nil {
		return err
	}
	logger.WithComponent("metrics").Debug().Msg("display gauges registered")
	return nil
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
