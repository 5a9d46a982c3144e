// Package metrics exposes prometheus metrics of the HTTP server and the editing sessions.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/vitrine/core/page"
)

const namespace = "vitrine"

// SessionStats reports the live state of the editing sessions.
type SessionStats interface {
	ActiveSessions() int
	UploadsInFlight() int
}

type Metrics struct {
	Registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	blockChanges *prometheus.CounterVec
	uploads      *prometheus.CounterVec
	saves        prometheus.Counter
}

func New(stats SessionStats) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "path"}),
		blockChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "editor",
			Name:      "block_changes_total",
			Help:      "Total number of block store changes.",
		}, []string{"op", "type"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "editor",
			Name:      "uploads_total",
			Help:      "Total number of finished asset uploads.",
		}, []string{"result"}),
		saves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "editor",
			Name:      "saves_total",
			Help:      "Total number of saved pages.",
		}),
	}

	m.Registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.blockChanges,
		m.uploads,
		m.saves,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "editor",
			Name:      "active_sessions",
			Help:      "Current number of editing sessions.",
		}, func() float64 { return float64(stats.ActiveSessions()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "editor",
			Name:      "uploads_in_flight",
			Help:      "Current number of running asset uploads.",
		}, func() float64 { return float64(stats.UploadsInFlight()) }),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler returns an HTTP handler exposing the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Middleware records HTTP metrics, labelled by route rather than raw path.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			m.httpInFlight.Inc()
			defer m.httpInFlight.Dec()

			// the error is handled here, so the recorded status is the one sent
			if err := next(c); err != nil {
				c.Error(err)
			}
			status := c.Response().Status
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			method := strings.ToUpper(c.Request().Method)
			m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			m.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// Record counts an editing session event.
func (m *Metrics) Record(ev page.Event) {
	switch ev.Kind {
	case page.EventBlock:
		if ev.Change != nil {
			m.blockChanges.WithLabelValues(string(ev.Change.Op), string(ev.Change.Type)).Inc()
		}
	case page.EventUploadDone:
		m.uploads.WithLabelValues("done").Inc()
	case page.EventUploadFailed:
		m.uploads.WithLabelValues("failed").Inc()
	case page.EventUploadOrphaned:
		m.uploads.WithLabelValues("orphaned").Inc()
	case page.EventSaved:
		m.saves.Inc()
	}
}

// Watch records the events of all sessions until the returned func is called.
func (m *Metrics) Watch(events *page.Emitter) (stop func()) {
	ch, unsubscribe := events.Subscribe("", 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			m.Record(ev)
		}
	}()
	return func() {
		unsubscribe()
		<-done
	}
}
