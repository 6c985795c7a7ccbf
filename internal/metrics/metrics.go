package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal    *prometheus.CounterVec
	votesTotal           *prometheus.CounterVec
	reconciliationsTotal *prometheus.CounterVec
	registerOnce         sync.Once
)

// Register initializes Prometheus metrics on the default registry.
func Register() {
	registerOnce.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pollengine",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests processed by the poll engine API.",
		}, []string{"method", "path", "status"})

		votesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pollengine",
			Name:      "votes_total",
			Help:      "Votes accepted, by kind (new or changed).",
		}, []string{"kind"})

		reconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pollengine",
			Name:      "tally_reconciliations_total",
			Help:      "Tally recomputations from the vote ledger, by outcome.",
		}, []string{"outcome"})
	})
}

// IncRequest increments the http_requests_total counter with the given labels.
func IncRequest(method, path string, status int) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

// IncVote counts an accepted vote; kind is "new" or "changed".
func IncVote(kind string) {
	if votesTotal == nil {
		return
	}
	votesTotal.WithLabelValues(kind).Inc()
}

// IncReconciliation counts a ledger sweep; outcome is "clean" or "repaired".
func IncReconciliation(outcome string) {
	if reconciliationsTotal == nil {
		return
	}
	reconciliationsTotal.WithLabelValues(outcome).Inc()
}
