// Package metrics exposes print ledger counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chequebook"

// Metrics owns a private registry so tests can create as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	prints        *prometheus.CounterVec
	unitsPrinted  *prometheus.CounterVec
	reprints      *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	retries       *prometheus.CounterVec
	stockUnits    *prometheus.GaugeVec
	httpDurations *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		prints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prints_total",
			Help:      "Committed print batches.",
		}, []string{"instrument_type"}),
		unitsPrinted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_printed_total",
			Help:      "Serials committed by print and reprint batches.",
		}, []string{"operation"}),
		reprints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reprints_total",
			Help:      "Committed reprint batches.",
		}, []string{"reason"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Rejected ledger operations by error kind.",
		}, []string{"operation", "kind"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_retries_total",
			Help:      "Whole-operation retries after transient store failures.",
		}, []string{"operation"}),
		stockUnits: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stock_units",
			Help:      "Paper units on hand after the last stock change.",
		}, []string{"category"}),
		httpDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		m.prints, m.unitsPrinted, m.reprints, m.rejections, m.retries, m.stockUnits, m.httpDurations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) PrintCommitted(instrumentType string, units int64) {
	m.prints.WithLabelValues(instrumentType).Inc()
	m.unitsPrinted.WithLabelValues("print").Add(float64(units))
}

func (m *Metrics) ReprintCommitted(reason string, units int64) {
	m.reprints.WithLabelValues(reason).Inc()
	m.unitsPrinted.WithLabelValues("reprint").Add(float64(units))
}

func (m *Metrics) Rejected(operation, kind string) {
	if kind == "" {
		kind = "INTERNAL"
	}
	m.rejections.WithLabelValues(operation, kind).Inc()
}

func (m *Metrics) Retried(operation string) {
	m.retries.WithLabelValues(operation).Inc()
}

func (m *Metrics) StockLevel(category string, quantity int64) {
	m.stockUnits.WithLabelValues(category).Set(float64(quantity))
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpDurations.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
