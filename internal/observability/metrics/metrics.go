package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for the inbound reply pipeline.
type PipelineMetrics struct {
	bufferOutcomes   *prometheus.CounterVec
	scheduleTotal    *prometheus.CounterVec
	classifications  *prometheus.CounterVec
	dispatchTotal    *prometheus.CounterVec
	leadScores       *prometheus.HistogramVec
	processDuration  *prometheus.HistogramVec
	inboundTotal     *prometheus.CounterVec
	knowledgeResults prometheus.Histogram
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		bufferOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadpipeline",
			Subsystem: "buffer",
			Name:      "process_outcomes_total",
			Help:      "Buffer processor invocations by outcome",
		}, []string{"outcome"}),
		scheduleTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadpipeline",
			Subsystem: "buffer",
			Name:      "schedule_total",
			Help:      "Delayed invocations scheduled by path",
		}, []string{"path"}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadpipeline",
			Subsystem: "classifier",
			Name:      "decisions_total",
			Help:      "Classification decisions by category and method",
		}, []string{"category", "method"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadpipeline",
			Subsystem: "dispatch",
			Name:      "replies_total",
			Help:      "Outbound replies by status",
		}, []string{"status"}),
		leadScores: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadpipeline",
			Subsystem: "leads",
			Name:      "score",
			Help:      "Distribution of computed lead scores",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}, []string{"method"}),
		processDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadpipeline",
			Subsystem: "buffer",
			Name:      "process_duration_seconds",
			Help:      "Latency of buffer processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadpipeline",
			Subsystem: "webhook",
			Name:      "inbound_total",
			Help:      "Inbound webhook messages by status",
		}, []string{"status"}),
		knowledgeResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "leadpipeline",
			Subsystem: "knowledge",
			Name:      "results",
			Help:      "Number of knowledge chunks returned per retrieval",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 8},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bufferOutcomes, m.scheduleTotal, m.classifications, m.dispatchTotal,
		m.leadScores, m.processDuration, m.inboundTotal, m.knowledgeResults)
	return m
}

func (m *PipelineMetrics) ObserveBufferOutcome(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.bufferOutcomes.WithLabelValues(outcome).Inc()
	m.processDuration.WithLabelValues(outcome).Observe(seconds)
}

func (m *PipelineMetrics) ObserveSchedule(path string) {
	if m == nil {
		return
	}
	m.scheduleTotal.WithLabelValues(path).Inc()
}

func (m *PipelineMetrics) ObserveClassification(category, method string) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(category, method).Inc()
}

func (m *PipelineMetrics) ObserveDispatch(status string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(status).Inc()
}

func (m *PipelineMetrics) ObserveLeadScore(method string, score int) {
	if m == nil {
		return
	}
	m.leadScores.WithLabelValues(method).Observe(float64(score))
}

func (m *PipelineMetrics) ObserveInbound(status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(status).Inc()
}

func (m *PipelineMetrics) ObserveKnowledgeResults(n int) {
	if m == nil {
		return
	}
	m.knowledgeResults.Observe(float64(n))
}
