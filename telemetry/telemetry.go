package telemetry

import (
	"net/http"
	"strconv"

	"github.com/oracle/coherence-js-client-sub001/cfg"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// registry is nil until InitializeTelemetry; constructors then hand out no-ops.
var registry *prometheus.Registry

type Counter interface {
	Inc()
	Add(float64)
}

type Gauge interface {
	Set(float64)
	Inc()
	Dec()
}

type Histogram interface {
	Observe(float64)
}

type CounterVec interface {
	With(labels ...string) Counter
}

type GaugeVec interface {
	With(labels ...string) Gauge
}

type HistogramVec interface {
	With(labels ...string) Histogram
}

// NoopStat satisfies every metric interface and records nothing.
type NoopStat struct{}

func (NoopStat) Inc()            {}
func (NoopStat) Dec()            {}
func (NoopStat) Add(float64)     {}
func (NoopStat) Set(float64)     {}
func (NoopStat) Observe(float64) {}

type noopCounterVec struct{}
type noopGaugeVec struct{}
type noopHistogramVec struct{}

func (noopCounterVec) With(...string) Counter     { return NoopStat{} }
func (noopGaugeVec) With(...string) Gauge         { return NoopStat{} }
func (noopHistogramVec) With(...string) Histogram { return NoopStat{} }

// labeled turns a prometheus vector lookup into one of the Vec interfaces.
type labeled[T any] func(labels ...string) T

func (l labeled[T]) With(labels ...string) T { return l(labels...) }

func opts(name, help string) prometheus.Opts {
	o := prometheus.Opts{Namespace: "cache", Subsystem: "client", Name: name, Help: help}
	if cfg.Config != nil {
		o.ConstLabels = prometheus.Labels{"client_id": strconv.FormatUint(cfg.Config.Session.ClientID, 10)}
	}
	return o
}

func histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	o := opts(name, help)
	return prometheus.HistogramOpts{
		Namespace:   o.Namespace,
		Subsystem:   o.Subsystem,
		Name:        o.Name,
		Help:        o.Help,
		ConstLabels: o.ConstLabels,
		Buckets:     buckets,
	}
}

func register[C prometheus.Collector](c C) C {
	registry.MustRegister(c)
	return c
}

func NewCounter(name, help string) Counter {
	if registry == nil {
		return NoopStat{}
	}
	return register(prometheus.NewCounter(prometheus.CounterOpts(opts(name, help))))
}

func NewGauge(name, help string) Gauge {
	if registry == nil {
		return NoopStat{}
	}
	return register(prometheus.NewGauge(prometheus.GaugeOpts(opts(name, help))))
}

func NewHistogramWithBuckets(name, help string, buckets []float64) Histogram {
	if registry == nil {
		return NoopStat{}
	}
	return register(prometheus.NewHistogram(histogramOpts(name, help, buckets)))
}

func NewCounterVec(name, help string, labels []string) CounterVec {
	if registry == nil {
		return noopCounterVec{}
	}
	vec := register(prometheus.NewCounterVec(prometheus.CounterOpts(opts(name, help)), labels))
	return labeled[Counter](func(values ...string) Counter { return vec.WithLabelValues(values...) })
}

func NewGaugeVec(name, help string, labels []string) GaugeVec {
	if registry == nil {
		return noopGaugeVec{}
	}
	vec := register(prometheus.NewGaugeVec(prometheus.GaugeOpts(opts(name, help)), labels))
	return labeled[Gauge](func(values ...string) Gauge { return vec.WithLabelValues(values...) })
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) HistogramVec {
	if registry == nil {
		return noopHistogramVec{}
	}
	vec := register(prometheus.NewHistogramVec(histogramOpts(name, help, buckets), labels))
	return labeled[Histogram](func(values ...string) Histogram { return vec.WithLabelValues(values...) })
}

// InitializeTelemetry creates the registry and registers all client metrics.
// Metrics stay no-ops when Prometheus is disabled or this is never called.
func InitializeTelemetry() {
	if cfg.Config == nil || !cfg.Config.Prometheus.Enabled || registry != nil {
		return
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	initMetrics()

	log.Info().Msg("Prometheus metrics enabled")
}

// GetMetricsHandler returns the Prometheus scrape handler, nil when metrics are disabled.
func GetMetricsHandler() http.Handler {
	if registry == nil {
		return nil
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
