// Package metrics holds the prometheus collectors for policy reconciliation.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kylo-io/hadoop-authz/pkg/authz"
)

var (
	ReconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_reconcile_total",
		Help: "Total number of policy reconciles by backend, repository and outcome",
	}, []string{"backend", "repository", "outcome"})

	ReconcileDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authz_reconcile_duration_seconds",
		Help:    "Duration of policy reconciles",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "repository"})

	StoreCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_store_calls_total",
		Help: "Total number of policy store calls by operation and outcome",
	}, []string{"operation", "outcome"})
)

var registerOnce sync.Once

// Register adds the collectors to reg. Only the first call has an effect.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(ReconcileTotal, ReconcileDuration, StoreCallsTotal)
	})
}

// ObserveReconcile records one reconcile.
func ObserveReconcile(backend authz.Type, repository string, err error, d time.Duration) {
	ReconcileTotal.WithLabelValues(string(backend), repository, Outcome(err)).Inc()
	ReconcileDuration.WithLabelValues(string(backend), repository).Observe(d.Seconds())
}

// ObserveStoreCall records one policy store call.
func ObserveStoreCall(operation string, err error) {
	StoreCallsTotal.WithLabelValues(operation, Outcome(err)).Inc()
}

// Outcome is the label value for err: "success", the error kind, or "error".
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	if k := authz.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
