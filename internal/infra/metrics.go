package infra

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics はフィールド保護に関するPrometheusメトリクスを保持する。
type Metrics struct {
	cipherOps       *prometheus.CounterVec
	accessDecisions *prometheus.CounterVec
	keyEvents       *prometheus.CounterVec
}

// NewMetrics は指定レジストリにメトリクスを登録する。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		cipherOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "field_protection",
			Name:      "cipher_operations_total",
			Help:      "Field cipher operations by operation, data type and result.",
		}, []string{"operation", "data_type", "result"}),
		accessDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "field_protection",
			Name:      "access_decisions_total",
			Help:      "ABAC decisions by resource type, action and outcome.",
		}, []string{"resource_type", "action", "allowed"}),
		keyEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "field_protection",
			Name:      "key_events_total",
			Help:      "Field encryption key lifecycle events.",
		}, []string{"event"}),
	}
}

// CipherOperation は暗号操作を記録する。
func (m *Metrics) CipherOperation(operation, dataType string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.cipherOps.WithLabelValues(operation, dataType, result).Inc()
}

// AccessDecision はアクセス判定を記録する。
func (m *Metrics) AccessDecision(resourceType, action string, allowed bool) {
	outcome := "false"
	if allowed {
		outcome = "true"
	}
	m.accessDecisions.WithLabelValues(resourceType, action, outcome).Inc()
}

// KeyEvent は鍵のライフサイクルイベントを記録する。
func (m *Metrics) KeyEvent(event string) {
	m.keyEvents.WithLabelValues(event).Inc()
}
