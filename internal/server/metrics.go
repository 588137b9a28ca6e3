package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Occupancy is what the lot gauges read on every scrape.
type Occupancy interface {
	Counts() (stack, queue int)
	Capacity() int
}

// Metrics owns a private registry so several servers (and tests) can coexist
// in one process.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics(lot Occupancy) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.duration,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "parking_occupied_spots",
			Help:        "Cars currently parked, by section.",
			ConstLabels: prometheus.Labels{"section": "stack"},
		}, func() float64 {
			stack, _ := lot.Counts()
			return float64(stack)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        "parking_occupied_spots",
			Help:        "Cars currently parked, by section.",
			ConstLabels: prometheus.Labels{"section": "queue"},
		}, func() float64 {
			_, queue := lot.Counts()
			return float64(queue)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "parking_capacity_spots",
			Help: "Capacity of each section.",
		}, func() float64 {
			return float64(lot.Capacity())
		}),
	)

	return m
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := routePattern(r)
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
