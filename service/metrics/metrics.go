/*
 * @module service/metrics/metrics
 * @description 对账分析的 Prometheus 指标：判定分布、规则耗时、分析运行结果、总分
 * @architecture 观察者 - 实现 reconcile.Observer，由引擎在每条规则结束时回调
 * @documentReference DESIGN.md
 * @stateFlow 规则结束 -> 计数/直方图；分析结束 -> 运行计数/总分
 * @rules 标签只使用有限取值（维度、状态、结果），不使用实体编码
 * @dependencies github.com/prometheus/client_golang
 * @refs service/analysis/analysis_service.go, main.go
 */

package metrics

import (
	"time"

	"siconfi-service/service/reconcile"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "siconfi"

// Metrics 指标集合
type Metrics struct {
	verdicts     *prometheus.CounterVec
	ruleDuration *prometheus.HistogramVec
	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	overall      *prometheus.GaugeVec
	cleaned      prometheus.Counter
}

// New 在给定注册器上创建指标
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rule",
			Name:      "verdicts_total",
			Help:      "Rule verdicts by dimension and status",
		}, []string{"dimension", "status"}),
		ruleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rule",
			Name:      "duration_seconds",
			Help:      "Rule evaluation latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"dimension"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "runs_total",
			Help:      "Analysis runs by outcome",
		}, []string{"outcome"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "End-to-end analysis latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 3, 10),
		}),
		overall: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "overall_score",
			Help:      "Overall score of the latest completed analysis by entity type",
		}, []string{"entity_type"}),
		cleaned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cleanup",
			Name:      "deleted_runs_total",
			Help:      "Analysis runs deleted by the retention job",
		}),
	}
}

var _ reconcile.Observer = (*Metrics)(nil)

// RuleFinished 记录规则判定；跳过的规则不计入耗时
func (m *Metrics) RuleFinished(v reconcile.Verdict, state reconcile.RuleState, elapsed time.Duration) {
	m.verdicts.WithLabelValues(v.Dimension, string(v.Status)).Inc()
	if state == reconcile.StateFinished {
		m.ruleDuration.WithLabelValues(v.Dimension).Observe(elapsed.Seconds())
	}
}

// RunFinished 记录一次分析运行
func (m *Metrics) RunFinished(outcome string, entityType string, overall *float64, elapsed time.Duration) {
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(elapsed.Seconds())
	if overall != nil {
		m.overall.WithLabelValues(entityType).Set(*overall)
	}
}

// RunsCleaned 记录清理任务删除的运行数
func (m *Metrics) RunsCleaned(n int64) {
	m.cleaned.Add(float64(n))
}
