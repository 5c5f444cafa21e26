// Package metrics records LLM and interview activity with Prometheus collectors.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/spigell/prism/internal/ai"
)

const namespace = "prism"

// Recorder holds the collectors on a private registry. It satisfies
// ai.Observer and interview.Observer.
type Recorder struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	turnsTotal      *prometheus.CounterVec
	followUpsTotal  prometheus.Counter
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_requests_total",
				Help:      "Total number of LLM attempts by provider, model, purpose and status",
			},
			[]string{"provider", "model", "purpose", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_duration_seconds",
				Help:      "Duration of LLM attempts in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider", "model", "purpose"},
		),
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "interview_turns_total",
				Help:      "Recorded interview turns by kind",
			},
			[]string{"kind"},
		),
		followUpsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "interview_follow_ups_total",
				Help:      "Generated follow-up questions",
			},
		),
	}
}

// ObserveLLMCall records one provider attempt.
func (r *Recorder) ObserveLLMCall(provider, model, purpose string, err error, duration time.Duration) {
	status := "success"
	switch {
	case err == nil:
	case ai.IsTransient(err):
		status = "transient"
	default:
		status = "error"
	}

	r.requestsTotal.WithLabelValues(provider, model, purpose, status).Inc()
	r.requestDuration.WithLabelValues(provider, model, purpose).Observe(duration.Seconds())
}

// ObserveTurn counts a recorded turn.
func (r *Recorder) ObserveTurn(kind string) {
	r.turnsTotal.WithLabelValues(kind).Inc()
}

// ObserveFollowUp counts a generated follow-up.
func (r *Recorder) ObserveFollowUp() {
	r.followUpsTotal.Inc()
}

// Registry exposes the private registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// WriteTextfile writes all metrics in text exposition format for the
// node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
