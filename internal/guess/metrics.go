package guess

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is optional; a nil *Metrics records nothing.
type Metrics struct {
	placed       prometheus.Counter
	rejected     *prometheus.CounterVec
	settled      *prometheus.CounterVec
	noops        *prometheus.CounterVec
	expired      *prometheus.CounterVec
	fetchRetries prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		placed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bitpredict",
			Name:      "guesses_placed_total",
			Help:      "Guesses accepted by intake",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bitpredict",
			Name:      "guesses_rejected_total",
			Help:      "Guesses rejected by intake",
		}, []string{"reason"}),
		settled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bitpredict",
			Name:      "guesses_settled_total",
			Help:      "Guesses scored by the resolver",
		}, []string{"outcome"}),
		noops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bitpredict",
			Name:      "resolver_noop_total",
			Help:      "Resolver runs that changed nothing",
		}, []string{"reason"}),
		expired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bitpredict",
			Name:      "guesses_expired_total",
			Help:      "Overdue guesses cleared without scoring",
		}, []string{"path"}),
		fetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bitpredict",
			Name:      "resolver_fetch_retries_total",
			Help:      "Reference value fetch retries during settlement",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.placed, m.rejected, m.settled, m.noops, m.expired, m.fetchRetries)
	}
	return m
}

func (m *Metrics) incPlaced() {
	if m == nil {
		return
	}
	m.placed.Inc()
}

func (m *Metrics) incRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) incSettled(o Outcome) {
	if m == nil {
		return
	}
	m.settled.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) incNoop(reason string) {
	if m == nil {
		return
	}
	m.noops.WithLabelValues(reason).Inc()
}

func (m *Metrics) incExpired(path string) {
	if m == nil {
		return
	}
	m.expired.WithLabelValues(path).Inc()
}

func (m *Metrics) incFetchRetry() {
	if m == nil {
		return
	}
	m.fetchRetries.Inc()
}
