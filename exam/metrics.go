package exam

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts attempt state transitions. A nil *Metrics records nothing.
type Metrics struct {
	started   prometheus.Counter
	answers   prometheus.Counter
	finalized *prometheus.CounterVec
	scores    prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mcsh",
			Name:      "exam_attempts_started_total",
			Help:      "Exam attempts started by students.",
		}),
		answers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mcsh",
			Name:      "exam_answers_submitted_total",
			Help:      "Answers written, including batch submissions.",
		}),
		finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mcsh",
			Name:      "exam_attempts_finalized_total",
			Help:      "Attempts completed, by trigger.",
		}, []string{"trigger"}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mcsh",
			Name:      "exam_attempt_score_percent",
			Help:      "Final attempt scores.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
	}
	reg.MustRegister(m.started, m.answers, m.finalized, m.scores)
	return m
}

func (m *Metrics) attemptStarted() {
	if m != nil {
		m.started.Inc()
	}
}

func (m *Metrics) answersWritten(n int) {
	if m != nil {
		m.answers.Add(float64(n))
	}
}

func (m *Metrics) attemptFinalized(trigger string, score float64) {
	if m != nil {
		m.finalized.WithLabelValues(trigger).Inc()
		m.scores.Observe(score)
	}
}
