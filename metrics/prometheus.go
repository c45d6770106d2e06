package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/KanavDutta/errorfence/gate"
)

// Prometheus exports gate events as Prometheus metrics.
type Prometheus struct {
	decisions *prometheus.CounterVec
	charges   prometheus.Counter
	clamps    prometheus.Counter
	refilled  prometheus.Counter
	remaining prometheus.Histogram
}

var _ gate.Recorder = (*Prometheus)(nil)

// NewPrometheus registers the errorfence metrics with reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	f := promauto.With(reg)
	return &Prometheus{
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "errorfence_decisions_total",
			Help: "Number of admission decisions, by resulting state.",
		}, []string{"state"}),
		charges: f.NewCounter(prometheus.CounterOpts{
			Name: "errorfence_charges_total",
			Help: "Number of tokens spent on failed downstream calls.",
		}),
		clamps: f.NewCounter(prometheus.CounterOpts{
			Name: "errorfence_clamps_total",
			Help: "Number of negative token counts reset to zero.",
		}),
		refilled: f.NewCounter(prometheus.CounterOpts{
			Name: "errorfence_refilled_tokens_total",
			Help: "Number of tokens restored by refill.",
		}),
		remaining: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "errorfence_remaining_tokens",
			Help:    "Tokens left in a bucket after a charge.",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		}),
	}
}

// RecordDecision implements gate.Recorder.
func (p *Prometheus) RecordDecision(_ string, state gate.State) {
	p.decisions.WithLabelValues(state.String()).Inc()
}

// RecordCharge implements gate.Recorder.
func (p *Prometheus) RecordCharge(_ string, remaining int64) {
	p.charges.Inc()
	p.remaining.Observe(float64(remaining))
}

// RecordClamp implements gate.Recorder.
func (p *Prometheus) RecordClamp(string) {
	p.clamps.Inc()
}

// RecordRefill implements gate.Recorder.
func (p *Prometheus) RecordRefill(_ string, added int64) {
	p.refilled.Add(float64(added))
}

// Tee fans every event out to several recorders.
type Tee []gate.Recorder

var _ gate.Recorder = Tee(nil)

func (t Tee) RecordDecision(identity string, state gate.State) {
	for _, r := range t {
		r.RecordDecision(identity, state)
	}
}

func (t Tee) RecordCharge(identity string, remaining int64) {
	for _, r := range t {
		r.RecordCharge(identity, remaining)
	}
}

func (t Tee) RecordClamp(identity string) {
	for _, r := range t {
		r.RecordClamp(identity)
	}
}

func (t Tee) RecordRefill(identity string, added int64) {
	for _, r := range t {
		r.RecordRefill(identity, added)
	}
}
