// Package metrics exposes the bot's Prometheus metrics on a private
// registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	SessionOps      *prometheus.CounterVec
	ActivePlayers   prometheus.Gauge
	BotCommands     *prometheus.CounterVec
	PollsOpen       prometheus.Gauge
	ModsInstalled   prometheus.Counter
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SessionOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zomboid_session_operations_total",
			Help: "Session lifecycle operations by outcome",
		}, []string{"session", "op", "outcome"}),
		ActivePlayers: f.NewGauge(prometheus.GaugeOpts{
			Name: "zomboid_active_players",
			Help: "Players online according to the latest user log",
		}),
		BotCommands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zomboid_bot_commands_total",
			Help: "Telegram commands handled by result",
		}, []string{"command", "result"}),
		PollsOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "zomboid_mod_polls_open",
			Help: "Mod polls waiting to close",
		}),
		ModsInstalled: f.NewCounter(prometheus.CounterOpts{
			Name: "zomboid_mods_installed_total",
			Help: "Workshop items added to the server",
		}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "zomboid_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zomboid_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SessionObserver counts lifecycle operations of one session.
func (m *Metrics) SessionObserver(session string) func(op, outcome string) {
	return func(op, outcome string) {
		m.SessionOps.WithLabelValues(session, op, outcome).Inc()
	}
}

// Middleware records request counts and latency by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
