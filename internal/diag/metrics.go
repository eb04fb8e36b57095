package diag

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry 为进程级指标注册表；--metrics-file 时整体导出为文本格式。
var Registry = prometheus.NewRegistry()

// 指标：
// - op_total{comp,stage,result}
// - error_total{comp,code}
// - op_duration_ms{comp,stage}
// - numbers_scanned_total / primes_found_total
var (
	opTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "primescan",
		Name:      "op_total",
		Help:      "Operations by component, stage and result.",
	}, []string{"comp", "stage", "result"})

	errorTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "primescan",
		Name:      "error_total",
		Help:      "Errors by component and classified code.",
	}, []string{"comp", "code"})

	opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "primescan",
		Name:      "op_duration_ms",
		Help:      "Stage duration in milliseconds.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	}, []string{"comp", "stage"})

	numbersScanned = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "primescan",
		Name:      "numbers_scanned_total",
		Help:      "Elements read and tested.",
	})

	primesFound = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "primescan",
		Name:      "primes_found_total",
		Help:      "Elements the oracle reported prime.",
	})
)

func init() {
	Registry.MustRegister(opTotal, errorTotal, opDuration, numbersScanned, primesFound)
}

// IncOp 累加操作计数（result=success|error|cancel）。
func IncOp(comp, stage, result string) {
	opTotal.WithLabelValues(comp, stage, result).Inc()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	errorTotal.WithLabelValues(comp, code).Inc()
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	opDuration.WithLabelValues(comp, stage).Observe(float64(durMS))
}

// AddScanned 累加已扫描元素与其中的素数个数。
func AddScanned(numbers, primes int) {
	if numbers > 0 {
		numbersScanned.Add(float64(numbers))
	}
	if primes > 0 {
		primesFound.Add(float64(primes))
	}
}

// WriteMetricsFile 以 Prometheus 文本格式导出全部指标到 path。
func WriteMetricsFile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
