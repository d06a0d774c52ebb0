// Package metrics records ledger and delivery metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// Collector defines the interface for collecting service metrics.
type Collector interface {
	RecordOperationDuration(operation string, duration time.Duration)
	RecordOperationResult(operation, result string)
	RecordError(operation, errType string)
	RecordTransaction(txType string, amount decimal.Decimal)
	RecordPaymentTransition(status string)
	RecordWebhookAttempt(result string)
}

// NoopCollector is a no-op implementation of Collector
type NoopCollector struct{}

func (NoopCollector) RecordOperationDuration(string, time.Duration) {}
func (NoopCollector) RecordOperationResult(string, string)          {}
func (NoopCollector) RecordError(string, string)                    {}
func (NoopCollector) RecordTransaction(string, decimal.Decimal)     {}
func (NoopCollector) RecordPaymentTransition(string)                {}
func (NoopCollector) RecordWebhookAttempt(string)                   {}

// PrometheusCollector exports everything under the cardpay namespace.
type PrometheusCollector struct {
	opDuration  *prometheus.HistogramVec
	opResults   *prometheus.CounterVec
	errors      *prometheus.CounterVec
	txCount     *prometheus.CounterVec
	txVolume    *prometheus.CounterVec
	payments    *prometheus.CounterVec
	webhookRuns *prometheus.CounterVec
}

func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	f := promauto.With(reg)
	return &PrometheusCollector{
		opDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cardpay",
			Name:      "operation_duration_seconds",
			Help:      "Duration of ledger operations",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"operation"}),
		opResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardpay",
			Name:      "operation_results_total",
			Help:      "Ledger operation outcomes",
		}, []string{"operation", "result"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardpay",
			Name:      "errors_total",
			Help:      "Errors by operation and kind",
		}, []string{"operation", "type"}),
		txCount: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardpay",
			Name:      "transactions_total",
			Help:      "Completed transactions",
		}, []string{"type"}),
		txVolume: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardpay",
			Name:      "transaction_volume",
			Help:      "Absolute amount moved by completed transactions",
		}, []string{"type"}),
		payments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardpay",
			Name:      "payment_request_transitions_total",
			Help:      "Payment request terminal transitions",
		}, []string{"status"}),
		webhookRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardpay",
			Name:      "webhook_attempts_total",
			Help:      "Webhook delivery attempts by result",
		}, []string{"result"}),
	}
}

func (p *PrometheusCollector) RecordOperationDuration(operation string, d time.Duration) {
	p.opDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (p *PrometheusCollector) RecordOperationResult(operation, result string) {
	p.opResults.WithLabelValues(operation, result).Inc()
}

func (p *PrometheusCollector) RecordError(operation, errType string) {
	p.errors.WithLabelValues(operation, errType).Inc()
}

func (p *PrometheusCollector) RecordTransaction(txType string, amount decimal.Decimal) {
	p.txCount.WithLabelValues(txType).Inc()
	p.txVolume.WithLabelValues(txType).Add(amount.Abs().InexactFloat64())
}

func (p *PrometheusCollector) RecordPaymentTransition(status string) {
	p.payments.WithLabelValues(status).Inc()
}

func (p *PrometheusCollector) RecordWebhookAttempt(result string) {
	p.webhookRuns.WithLabelValues(result).Inc()
}
