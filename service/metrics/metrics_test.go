package metrics

import (
	"testing"
	"time"

	"siconfi-service/service/reconcile"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRuleFinishedCountsVerdicts(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RuleFinished(reconcile.Verdict{Dimension: "D1", Status: reconcile.StatusOK}, reconcile.StateFinished, 2*time.Millisecond)
	m.RuleFinished(reconcile.Verdict{Dimension: "D1", Status: reconcile.StatusOK}, reconcile.StateFinished, time.Millisecond)
	m.RuleFinished(reconcile.Verdict{Dimension: "D2", Status: reconcile.StatusNotApplicable}, reconcile.StateSkipped, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.verdicts.WithLabelValues("D1", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verdicts.WithLabelValues("D2", "NOT_APPLICABLE")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ruleDuration), "跳过的规则不记录耗时")
}

func TestRunFinishedSetsOverall(t *testing.T) {
	m := New(prometheus.NewRegistry())
	overall := 0.75

	m.RunFinished("completed", "MUNICIPALITY", &overall, time.Second)
	m.RunFinished("failed", "STATE", nil, time.Second)
	m.RunsCleaned(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("completed")))
	assert.Equal(t, 0.75, testutil.ToFloat64(m.overall.WithLabelValues("MUNICIPALITY")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.overall))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.cleaned))
}
