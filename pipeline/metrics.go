package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Per-stage instrumentation, grounded on the same promauto idiom bid uses
// for query timing: one histogram/counter pair keyed by stage name and
// kind so an operator can tell a slow compression stage from a slow
// upload stage without reading logs.
var (
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "atbu",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Duration of one pipeline stage invocation by stage name and kind.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage", "kind"})

	stageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atbu",
		Subsystem: "pipeline",
		Name:      "stage_errors_total",
		Help:      "Pipeline stage failures by stage name and kind.",
	}, []string{"stage", "kind"})

	stageInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "atbu",
		Subsystem: "pipeline",
		Name:      "items_in_flight",
		Help:      "Work items currently occupying a pipeline worker slot.",
	})
)

func observeStage[T any](s *Stage[T], fn func() (T, error)) (T, error) {
	start := time.Now()
	result, err := fn()
	stageDuration.WithLabelValues(s.Name, s.Kind.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		stageErrors.WithLabelValues(s.Name, s.Kind.String()).Inc()
	}
	return result, err
}
