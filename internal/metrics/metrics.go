// Package metrics exposes pipeline and retrieval metrics on a private registry.
// All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	queueItems     *prometheus.CounterVec
	batchDuration  *prometheus.HistogramVec
	queueDepth     *prometheus.GaugeVec
	searchRequests *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	aiFallbacks    *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
}

func New(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	wrapped := prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, registry)

	m := &Metrics{
		Registry:       registry,
		queueItems:     createCounterVec("embedding_queue_items_total", "Processed queue items by outcome.", []string{"outcome"}),
		batchDuration:  createHistogramVec("embedding_batch_duration_seconds", "Wall time of one worker batch.", []string{}, prometheus.DefBuckets),
		queueDepth:     createGaugeVec("embedding_queue_entries", "Queue entries by state.", []string{"state"}),
		searchRequests: createCounterVec("search_requests_total", "Retrieval requests by kind and status.", []string{"kind", "status"}),
		searchDuration: createHistogramVec("search_duration_seconds", "Retrieval latency by kind.", []string{"kind"}, []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30}),
		aiFallbacks:    createCounterVec("ai_enrichment_total", "AI enrichment results by operation and status.", []string{"operation", "status"}),
		httpRequests:   createCounterVec("http_requests_total", "HTTP requests by route and status class.", []string{"method", "route", "code"}),
	}

	wrapped.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.queueItems,
		m.batchDuration,
		m.queueDepth,
		m.searchRequests,
		m.searchDuration,
		m.aiFallbacks,
		m.httpRequests,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ItemProcessed(outcome string) {
	if m == nil {
		return
	}
	m.queueItems.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BatchDone(d time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.WithLabelValues().Observe(d.Seconds())
}

func (m *Metrics) QueueDepth(live, dead int64) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues("live").Set(float64(live))
	m.queueDepth.WithLabelValues("dead").Set(float64(dead))
}

func (m *Metrics) Search(kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.searchRequests.WithLabelValues(kind, status).Inc()
	m.searchDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) Enrichment(operation, status string) {
	if m == nil {
		return
	}
	m.aiFallbacks.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) HTTPRequest(method, route, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, code).Inc()
}

func createCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
}

func createHistogramVec(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labels)
}

func createGaugeVec(name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
}
