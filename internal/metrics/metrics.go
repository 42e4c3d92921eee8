// Package metrics exposes Prometheus collectors for HTTP traffic and image
// renders.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// UnmatchedPath labels requests that no route handled.
const UnmatchedPath = "unmatched"

// Render outcomes recorded by ObserveRender.
const (
	OutcomeRendered = "rendered"
	OutcomeCacheHit = "cache_hit"
	OutcomeFailed   = "failed"
	OutcomeTimeout  = "timeout"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requestCount   *prometheus.CounterVec
	renderTotal    *prometheus.CounterVec
	renderDuration prometheus.Histogram
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests processed.",
			},
			[]string{"method", "path", "status"},
		),
		renderTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "og_image_renders_total",
				Help: "Image requests by outcome.",
			},
			[]string{"outcome"},
		),
		renderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "og_image_render_duration_seconds",
			Help:    "Time spent producing a screenshot.",
			Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 15},
		}),
	}

	for _, c := range []prometheus.Collector{m.requestCount, m.renderTotal, m.renderDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler counts requests by method, route pattern and status.
func (m *Metrics) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil || c.Path() == "/metrics" {
			return c.Next()
		}

		err := c.Next()

		// Route pattern keeps titles out of label values. c.Path() is
		// backed by the request buffer and must never become a label.
		path := c.Route().Path
		if path == "" || path == "/" {
			path = UnmatchedPath
		}

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if fiberErr, ok := err.(*fiber.Error); ok {
				status = fiberErr.Code
			}
		}

		m.requestCount.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
		return err
	}
}

// ObserveRender records one image request.
func (m *Metrics) ObserveRender(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.renderTotal.WithLabelValues(outcome).Inc()
	if outcome != OutcomeCacheHit {
		m.renderDuration.Observe(d.Seconds())
	}
}
