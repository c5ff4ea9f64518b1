// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bookrent"

// Metrics implements gateway.Observer and queue.TaskObserver and records
// webhook and reconciler activity. A nil *Metrics is a no-op.
type Metrics struct {
	gatewayRequests   *prometheus.CounterVec
	gatewayDuration   *prometheus.HistogramVec
	callbacks         *prometheus.CounterVec
	callbackDuration  prometheus.Histogram
	tasks             *prometheus.CounterVec
	taskDuration      *prometheus.HistogramVec
	reconcileChecked  prometheus.Counter
	reconcileResolved prometheus.Counter
	reconcileErrors   prometheus.Counter
}

// New registers the collectors with reg. Collectors that are already
// registered are reused so New may be called more than once per registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "requests_total",
			Help: "Payment gateway API calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "gateway", Name: "request_duration_seconds",
			Help: "Payment gateway API call latency.", Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "webhook", Name: "callbacks_total",
			Help: "Gateway callbacks by processing outcome.",
		}, []string{"outcome"}),
		callbackDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "webhook", Name: "callback_duration_seconds",
			Help: "Time to process one gateway callback.", Buckets: prometheus.DefBuckets,
		}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "queue", Name: "tasks_total",
			Help: "Finished queue tasks by name and outcome.",
		}, []string{"task", "outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "queue", Name: "task_duration_seconds",
			Help: "Queue task handler latency.", Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
		reconcileChecked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reconciler", Name: "checked_total",
			Help: "Stale pending requests checked against the gateway.",
		}),
		reconcileResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reconciler", Name: "resolved_total",
			Help: "Stale pending requests moved to a terminal state by the reconciler.",
		}),
		reconcileErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reconciler", Name: "errors_total",
			Help: "Reconciler checks that failed.",
		}),
	}

	var err error
	if m.gatewayRequests, err = register(reg, m.gatewayRequests); err != nil {
		return nil, err
	}
	if m.gatewayDuration, err = register(reg, m.gatewayDuration); err != nil {
		return nil, err
	}
	if m.callbacks, err = register(reg, m.callbacks); err != nil {
		return nil, err
	}
	if m.callbackDuration, err = register(reg, m.callbackDuration); err != nil {
		return nil, err
	}
	if m.tasks, err = register(reg, m.tasks); err != nil {
		return nil, err
	}
	if m.taskDuration, err = register(reg, m.taskDuration); err != nil {
		return nil, err
	}
	if m.reconcileChecked, err = register(reg, m.reconcileChecked); err != nil {
		return nil, err
	}
	if m.reconcileResolved, err = register(reg, m.reconcileResolved); err != nil {
		return nil, err
	}
	if m.reconcileErrors, err = register(reg, m.reconcileErrors); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RegisterRuntime adds the Go runtime and process collectors.
func RegisterRuntime(reg prometheus.Registerer) {
	_, _ = register(reg, collectors.NewGoCollector())
	_, _ = register(reg, collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveGatewayCall(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(op, outcome).Inc()
	m.gatewayDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *Metrics) ObserveCallback(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(outcome).Inc()
	m.callbackDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveTask(name, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(name, outcome).Inc()
	m.taskDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) ObserveReconcile(checked, resolved, failed int) {
	if m == nil {
		return
	}
	m.reconcileChecked.Add(float64(checked))
	m.reconcileResolved.Add(float64(resolved))
	m.reconcileErrors.Add(float64(failed))
}
