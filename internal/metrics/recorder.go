package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ephemcp/internal/api"
)

const namespace = "ephemcp"

// Operation result labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Recorder receives lifecycle measurements.
type Recorder interface {
	// Transition records an entry moving from one state to another. A zero
	// from means the entry was just inserted; a zero to means it was evicted.
	Transition(from, to api.State)
	Operation(operation string, err error)
	ReadyLatency(d time.Duration)
	Retry(op string)
	Reaped(reason string)
}

// Nop discards all measurements.
type Nop struct{}

func (Nop) Transition(api.State, api.State) {}
func (Nop) Operation(string, error)         {}
func (Nop) ReadyLatency(time.Duration)      {}
func (Nop) Retry(string)                    {}
func (Nop) Reaped(string)                   {}

// Prometheus records into its own registry.
type Prometheus struct {
	registry    *prometheus.Registry
	servers     *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	operations  *prometheus.CounterVec
	readyTime   prometheus.Histogram
	retries     *prometheus.CounterVec
	reaped      *prometheus.CounterVec
}

// NewPrometheus creates a recorder and registers its collectors.
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		servers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "servers",
			Help:      "Number of managed MCP servers per lifecycle state.",
		}, []string{"state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Lifecycle state transitions.",
		}, []string{"from", "to"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Lifecycle operations by outcome.",
		}, []string{"operation", "result"}),
		readyTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ready_seconds",
			Help:      "Time from spawn until the server passed readiness.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_plane_retries_total",
			Help:      "Retried transient control-plane calls.",
		}, []string{"op"}),
		reaped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaped_total",
			Help:      "Servers deleted by the lifetime and idle reaper.",
		}, []string{"reason"}),
	}

	p.registry.MustRegister(
		p.servers, p.transitions, p.operations, p.readyTime, p.retries, p.reaped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// Registry returns the registry holding the collectors.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *Prometheus) Transition(from, to api.State) {
	if from != "" {
		p.servers.WithLabelValues(string(from)).Dec()
	}
	if to != "" {
		p.servers.WithLabelValues(string(to)).Inc()
	}
	if from != "" && to != "" {
		p.transitions.WithLabelValues(string(from), string(to)).Inc()
	}
}

func (p *Prometheus) Operation(operation string, err error) {
	result := ResultSuccess
	if err != nil {
		result = string(api.KindOf(err))
		if result == "" {
			result = ResultError
		}
	}
	p.operations.WithLabelValues(operation, result).Inc()
}

func (p *Prometheus) ReadyLatency(d time.Duration) {
	p.readyTime.Observe(d.Seconds())
}

func (p *Prometheus) Retry(op string) {
	p.retries.WithLabelValues(op).Inc()
}

func (p *Prometheus) Reaped(reason string) {
	p.reaped.WithLabelValues(reason).Inc()
}
