// Package fsqmetrics exposes an optional Prometheus /metrics endpoint with
// counters for session and queue activity.
package fsqmetrics

import (
	"net/http"

	"github.com/GSI-HPC/fsqd/internal/fsqlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the counters/gauges the daemon updates as it runs.
type Registry struct {
	reg *prometheus.Registry

	sessionsOpen   prometheus.Gauge
	sessionsTotal  prometheus.Counter
	queueDepth     prometheus.GaugeFunc
	transitions    *prometheus.CounterVec
	itemsPoisoned  prometheus.Counter
}

// New returns a Registry with every metric registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		sessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fsqd", Name: "sessions_open", Help: "Number of currently open session threads.",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fsqd", Name: "sessions_total", Help: "Total number of sessions accepted.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fsqd", Name: "action_item_transitions_total", Help: "Action Item state transitions, by resulting state.",
		}, []string{"state"}),
		itemsPoisoned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fsqd", Name: "action_items_poisoned_total", Help: "Action Items that reached FILE_OMITTED.",
		}),
	}
	reg.MustRegister(r.sessionsOpen, r.sessionsTotal, r.transitions, r.itemsPoisoned)
	return r
}

// SetQueueDepthFunc registers a gauge backed by fn, called whenever
// /metrics is scraped (typically queue.Queue.Size).
func (r *Registry) SetQueueDepthFunc(fn func() float64) {
	r.queueDepth = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "fsqd", Name: "queue_depth", Help: "Current number of Action Items waiting in the work queue.",
	}, fn)
	r.reg.MustRegister(r.queueDepth)
}

// SessionOpened increments the open/total session counters.
func (r *Registry) SessionOpened() {
	r.sessionsOpen.Inc()
	r.sessionsTotal.Inc()
}

// SessionClosed decrements the open-session gauge.
func (r *Registry) SessionClosed() {
	r.sessionsOpen.Dec()
}

// Transition records an Action Item reaching state.
func (r *Registry) Transition(state string) {
	r.transitions.WithLabelValues(state).Inc()
}

// Poisoned records an Action Item reaching FILE_OMITTED.
func (r *Registry) Poisoned() {
	r.itemsPoisoned.Inc()
}

// Serve starts an HTTP server exposing /metrics on addr in the background.
func (r *Registry) Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			fsqlog.Errorf("fsqmetrics: serving on %s: %v", addr, err)
		}
	}()
}
