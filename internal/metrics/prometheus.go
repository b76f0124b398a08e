package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	taskTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_task_transitions_total",
		Help: "Task status transitions applied",
	}, []string{"status"})
	dispatchResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orderflow_dispatch_total",
		Help: "Dispatch submissions by outcome",
	}, []string{"outcome"})
	dispatchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orderflow_dispatch_retries_total",
		Help: "Dispatch submission retries",
	})
	dispatchLatency = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "orderflow_dispatch_duration_seconds",
		Help: "Duration of dispatch submissions including retries",
	})
	sweepScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orderflow_sweep_tasks_scanned_total",
		Help: "Stale tasks examined by the reconciliation sweep",
	})
)

type prometheusObserver struct{}

func NewPrometheusObserver() Observer {
	return &prometheusObserver{}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (p *prometheusObserver) TaskTransition(status string) {
	taskTransitions.WithLabelValues(status).Inc()
}

func (p *prometheusObserver) DispatchResult(outcome string) {
	dispatchResults.WithLabelValues(outcome).Inc()
}

func (p *prometheusObserver) DispatchRetry() {
	dispatchRetries.Inc()
}

func (p *prometheusObserver) ObserveDispatchLatency(seconds float64) {
	dispatchLatency.Observe(seconds)
}

func (p *prometheusObserver) SweepRun(scanned int) {
	sweepScanned.Add(float64(scanned))
}
