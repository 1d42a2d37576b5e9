package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dkeye/proximity-voice/internal/core"
)

type Metrics struct {
	registry   *prometheus.Registry
	namespace  string
	linkage    *prometheus.CounterVec
	unlinks    prometheus.Counter
	flushed    prometheus.Counter
	dropped    prometheus.Counter
	events     *prometheus.CounterVec
	httpReqCnt *prometheus.CounterVec
	httpDur    *prometheus.HistogramVec
}

func New(namespace string) *Metrics {
	ns := namespace
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	linkage := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "linkage_requests_total"}, []string{"reason"})
	unlinks := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "unlinks_total"})
	flushed := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "location_updates_flushed_total"})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "location_updates_dropped_total"})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "events_total"}, []string{"kind"})
	r.MustRegister(linkage, unlinks, flushed, dropped, events)

	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: prometheus.DefBuckets}, []string{"method", "route", "status"})
	r.MustRegister(httpReqCnt, httpDur)

	return &Metrics{
		registry:   r,
		namespace:  ns,
		linkage:    linkage,
		unlinks:    unlinks,
		flushed:    flushed,
		dropped:    dropped,
		events:     events,
		httpReqCnt: httpReqCnt,
		httpDur:    httpDur,
	}
}

// Gauge exposes a value computed at scrape time.
func (m *Metrics) Gauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Namespace: m.namespace, Name: name, Help: help}, fn))
}

// Counter exposes a monotonic value owned elsewhere.
func (m *Metrics) Counter(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{Namespace: m.namespace, Name: name, Help: help}, fn))
}

func (m *Metrics) ObserveLinkage(reason core.LinkageReason) {
	m.linkage.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) ObserveUnlink() { m.unlinks.Inc() }

func (m *Metrics) ObserveFlushed(n int) { m.flushed.Add(float64(n)) }

func (m *Metrics) ObserveDropped(n int) { m.dropped.Add(float64(n)) }

// OnEvent is an events listener counting notifications by kind.
func (m *Metrics) OnEvent(ev core.Event) {
	m.events.WithLabelValues(string(ev.Kind)).Inc()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
