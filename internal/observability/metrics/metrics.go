package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics captures reconciliation and notification health signals.
type Metrics struct {
	webhookEvents    *prometheus.CounterVec
	webhookUnmatched prometheus.Counter
	gatewayRequests  *prometheus.CounterVec
	gatewayDuration  *prometheus.HistogramVec
	dispatchOutcomes *prometheus.CounterVec
	dispatchDuration prometheus.Observer
	planTransitions  *prometheus.CounterVec
	schedulerRuns    *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// Default returns the singleton metrics registry.
func Default() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			webhookEvents: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "beneflow_webhook_events_total",
				Help: "Webhook events applied, by resulting receivable status.",
			}, []string{"status"}),
			webhookUnmatched: promauto.NewCounter(prometheus.CounterOpts{
				Name: "beneflow_webhook_unmatched_total",
				Help: "Webhook events with no matching local receivable.",
			}),
			gatewayRequests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "beneflow_gateway_requests_total",
				Help: "Outbound payment gateway calls, by operation and outcome.",
			}, []string{"operation", "outcome"}),
			gatewayDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "beneflow_gateway_request_seconds",
				Help:    "Latency of outbound payment gateway calls.",
				Buckets: prometheus.DefBuckets,
			}, []string{"operation"}),
			dispatchOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "beneflow_notification_dispatch_total",
				Help: "Notification dispatch outcomes (sent, skipped, failed).",
			}, []string{"channel", "outcome"}),
			dispatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "beneflow_notification_dispatch_run_seconds",
				Help:    "Duration of a full dispatch run.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
			}),
			planTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "beneflow_plan_status_transitions_total",
				Help: "Customer plan status transitions applied by sync.",
			}, []string{"to"}),
			schedulerRuns: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "beneflow_scheduler_runs_total",
				Help: "Scheduler sweep runs, by job and outcome.",
			}, []string{"job", "outcome"}),
		}
	})
	return metrics
}

func (m *Metrics) IncWebhookEvent(status string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(status).Inc()
}

func (m *Metrics) IncWebhookUnmatched() {
	if m == nil {
		return
	}
	m.webhookUnmatched.Inc()
}

func (m *Metrics) ObserveGatewayRequest(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(operation, outcome).Inc()
	m.gatewayDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) IncDispatchOutcome(channel, outcome string) {
	if m == nil {
		return
	}
	m.dispatchOutcomes.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) ObserveDispatchRun(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.dispatchDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) IncPlanTransition(to string) {
	if m == nil {
		return
	}
	m.planTransitions.WithLabelValues(to).Inc()
}

func (m *Metrics) IncSchedulerRun(job, outcome string) {
	if m == nil {
		return
	}
	m.schedulerRuns.WithLabelValues(job, outcome).Inc()
}
