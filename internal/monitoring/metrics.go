// Package monitoring はPrometheusメトリクスを提供する。
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wallet_custody"

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "operations",
		Name:      "total",
		Help:      "Total number of audited operations by result",
	}, []string{"operation", "result"})

	chainCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "chain",
		Name:      "call_duration_seconds",
		Help:      "Latency of blockchain and explorer calls",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"call", "status"})

	rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter",
	})
)

// RecordOperation は監査対象操作の結果を記録する。
func RecordOperation(operation, result string) {
	operationsTotal.WithLabelValues(operation, result).Inc()
}

// ObserveChainCall はブロックチェーン呼び出しの所要時間を記録する。
func ObserveChainCall(call string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	chainCallDuration.WithLabelValues(call, status).Observe(time.Since(start).Seconds())
}

// RecordRateLimited はレート制限による拒否を記録する。
func RecordRateLimited() {
	rateLimitedTotal.Inc()
}
