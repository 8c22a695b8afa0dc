package usecase

// Metrics はユースケースが記録する計測値のインターフェース。
type Metrics interface {
	CipherOperation(operation, dataType string, err error)
	AccessDecision(resourceType, action string, allowed bool)
	KeyEvent(event string)
}

type nopMetrics struct{}

func (nopMetrics) CipherOperation(string, string, error) {}
func (nopMetrics) AccessDecision(string, string, bool)    {}
func (nopMetrics) KeyEvent(string)                        {}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
