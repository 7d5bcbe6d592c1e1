package bid

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Query-level instrumentation for the relational BID form, grounded on the
// same promauto pattern claircore's indexer/controller uses for per-stage
// timing: one histogram per logical query/operation so an operator can see
// which part of a large load/save is actually slow.
var (
	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "atbu",
		Subsystem: "bid",
		Name:      "query_duration_seconds",
		Help:      "Duration of relational BID queries by operation and dialect.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "dialect"})

	queryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atbu",
		Subsystem: "bid",
		Name:      "query_errors_total",
		Help:      "Relational BID query failures by operation and dialect.",
	}, []string{"operation", "dialect"})
)

// observeQuery times fn and records it under operation/dialect, counting
// a failure separately so dashboards can distinguish "slow" from "broken".
func observeQuery(operation string, d dialect, fn func() error) error {
	start := time.Now()
	err := fn()
	queryDuration.WithLabelValues(operation, dialectLabel(d)).Observe(time.Since(start).Seconds())
	if err != nil {
		queryErrors.WithLabelValues(operation, dialectLabel(d)).Inc()
	}
	return err
}

func dialectLabel(d dialect) string {
	if d == dialectPostgres {
		return "postgres"
	}
	return "sqlite"
}
