package engine

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// Metrics are the counters of one Analyzer.
type Metrics struct {
	set *metrics.Set

	functions      *metrics.Counter
	loweringFailed *metrics.Counter
	ssaFailed      *metrics.Counter
	unstable       *metrics.Counter
	operations     *metrics.Counter
	phis           *metrics.Counter
	ssaDuration    *metrics.Histogram
}

func newMetrics() *Metrics {
	s := metrics.NewSet()
	return &Metrics{
		set:            s,
		functions:      s.NewCounter(`smartfast_functions_analyzed_total`),
		loweringFailed: s.NewCounter(`smartfast_functions_degraded_total{stage="lowering"}`),
		ssaFailed:      s.NewCounter(`smartfast_functions_degraded_total{stage="ssa"}`),
		unstable:       s.NewCounter(`smartfast_unstable_summaries_total`),
		operations:     s.NewCounter(`smartfast_ir_operations_total`),
		phis:           s.NewCounter(`smartfast_phi_operations_total`),
		ssaDuration:    s.NewHistogram(`smartfast_ssa_duration_seconds`),
	}
}

// WritePrometheus writes the metrics in Prometheus text format.
func (m *Metrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}

func (m *Metrics) Functions() uint64      { return m.functions.Get() }
func (m *Metrics) LoweringFailed() uint64 { return m.loweringFailed.Get() }
func (m *Metrics) SSAFailed() uint64      { return m.ssaFailed.Get() }
func (m *Metrics) Operations() uint64     { return m.operations.Get() }
func (m *Metrics) Phis() uint64           { return m.phis.Get() }
