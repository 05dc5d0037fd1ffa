// Package metrics exposes the service's Prometheus counters on a private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsNamespace = "safecall"
	labelStatus      = "status"
	labelOutcome     = "outcome"

	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// Recorder owns the registry and the counters the handlers update.
type Recorder struct {
	registry         *prometheus.Registry
	alertsDispatched *prometheus.CounterVec
	contactsNotified prometheus.Counter
	accountDecisions *prometheus.CounterVec
	signUps          *prometheus.CounterVec
	flowsSwept       prometheus.Counter
	flowsActive      prometheus.Gauge
	alertLogsPruned  prometheus.Counter
}

// NewRecorder registers the counters together with the Go runtime collectors.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	recorder := &Recorder{
		registry: registry,
		alertsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "alerts_dispatched_total",
			Help:      "SOS alerts processed, by outcome.",
		}, []string{labelOutcome}),
		contactsNotified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "contacts_notified_total",
			Help:      "Emergency contacts notified by SOS alerts.",
		}),
		accountDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "account_decisions_total",
			Help:      "Administrator decisions on pending accounts, by resulting status.",
		}, []string{labelStatus}),
		signUps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "signups_total",
			Help:      "Registered accounts, by initial status.",
		}, []string{labelStatus}),
		flowsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sos_flows_swept_total",
			Help:      "Idle SOS flows removed from memory.",
		}),
		flowsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sos_flows_active",
			Help:      "SOS flows held in memory after the last sweep.",
		}),
		alertLogsPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "alert_logs_pruned_total",
			Help:      "Alert log rows removed by the retention job.",
		}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		recorder.alertsDispatched,
		recorder.contactsNotified,
		recorder.accountDecisions,
		recorder.signUps,
		recorder.flowsSwept,
		recorder.flowsActive,
		recorder.alertLogsPruned,
	)
	return recorder
}

// Handler serves the registry in the Prometheus exposition format.
func (recorder *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(recorder.registry, promhttp.HandlerOpts{Registry: recorder.registry})
}

// Registry returns the underlying registry.
func (recorder *Recorder) Registry() *prometheus.Registry {
	return recorder.registry
}

func (recorder *Recorder) AlertDispatched(contactsNotified int) {
	if recorder == nil {
		return
	}
	recorder.alertsDispatched.WithLabelValues(OutcomeSucceeded).Inc()
	if contactsNotified > 0 {
		recorder.contactsNotified.Add(float64(contactsNotified))
	}
}

func (recorder *Recorder) AlertFailed() {
	if recorder == nil {
		return
	}
	recorder.alertsDispatched.WithLabelValues(OutcomeFailed).Inc()
}

func (recorder *Recorder) AccountDecision(status string) {
	if recorder == nil {
		return
	}
	recorder.accountDecisions.WithLabelValues(status).Inc()
}

func (recorder *Recorder) SignUp(status string) {
	if recorder == nil {
		return
	}
	recorder.signUps.WithLabelValues(status).Inc()
}

func (recorder *Recorder) FlowsSwept(count int) {
	if recorder == nil || count <= 0 {
		return
	}
	recorder.flowsSwept.Add(float64(count))
}

func (recorder *Recorder) FlowsActive(count int) {
	if recorder == nil {
		return
	}
	recorder.flowsActive.Set(float64(count))
}

func (recorder *Recorder) AlertLogsPruned(count int64) {
	if recorder == nil || count <= 0 {
		return
	}
	recorder.alertLogsPruned.Add(float64(count))
}
