/*
 * @module service/reconcile/engine_test
 * @description 引擎测试：门控隔离、按期间计分、异常隔离、确定性、取消
 * @architecture 测试层
 * @documentReference DESIGN.md
 * @stateFlow 构造注册表 -> 执行维度 -> 验证判定
 * @rules 不依赖数据库与外部服务
 * @dependencies testing, github.com/stretchr/testify
 * @refs engine.go, gate.go, scorer.go, report.go
 */

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siconfi-service/service/tabular"
)

func months(from, to int) []int {
	var out []int
	for m := from; m <= to; m++ {
		out = append(out, m)
	}
	return out
}

func testContext(t *testing.T) *AnalysisContext {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.RegisterDataset("msc", tabular.New("msc", []string{"conta", "mes", "valor"}, []tabular.Row{
		{"conta": "111", "mes": 1, "valor": 10.0},
		{"conta": "111", "mes": 2, "valor": -3.0},
		{"conta": "211", "mes": 1, "valor": 7.5},
	})))
	require.NoError(t, reg.SetAvailability("msc", NewAvailability(months(1, 12), months(1, 5))))
	require.NoError(t, reg.SetAvailability("rreo", NewAvailability(months(1, 6), nil)))
	require.NoError(t, reg.SetAvailability("dca", NewAvailability([]int{1}, []int{1})))
	return NewAnalysisContext(reg, Params{FiscalYear: 2022, EntityType: EntityMunicipality})
}

func okRule(code string, calls *int) Rule {
	return Rule{Code: code, Description: "regra " + code, Scoring: SingleShot, Check: func(*RuleContext) (Result, error) {
		if calls != nil {
			*calls++
		}
		return StatusResult(StatusOK, "", nil), nil
	}}
}

func TestUnavailablePrerequisiteMarksEveryRuleNotApplicable(t *testing.T) {
	ac := testContext(t)
	calls := 0
	dim := Dimension{Code: "D3", Requires: []string{"msc", "rreo"}}
	for i := 1; i <= 5; i++ {
		dim.Rules = append(dim.Rules, okRule(fmt.Sprintf("D3_%05d", i), &calls))
	}

	out := NewEngine().RunDimension(context.Background(), dim, ac)
	require.Len(t, out, 5)
	assert.Equal(t, 0, calls)
	for _, o := range out {
		assert.Equal(t, StatusNotApplicable, o.Verdict.Status)
		assert.Nil(t, o.Verdict.Score)
		assert.Contains(t, o.Verdict.Note, "rreo")
	}
}

func TestUnavailableDimensionDoesNotAffectOthers(t *testing.T) {
	ac := testContext(t)
	dims := []Dimension{
		{Code: "D3", Requires: []string{"rreo"}, Rules: []Rule{okRule("D3_00001", nil)}},
		{Code: "D2", Requires: []string{"dca"}, Rules: []Rule{okRule("D2_00001", nil)}},
	}
	report, err := NewEngine().RunAll(context.Background(), dims, ac)
	require.NoError(t, err)
	require.Len(t, report.Rows, 2)
	assert.Equal(t, StatusNotApplicable, report.Rows[0].Status)
	assert.Equal(t, StatusOK, report.Rows[1].Status)
	require.NotNil(t, report.Overall)
	assert.Equal(t, 1.0, *report.Overall)
}

func TestPartialDeliveryScoresOverPresentPeriods(t *testing.T) {
	ac := testContext(t)
	rule := Rule{Code: "D1_00010", Scoring: PerPeriod, Check: func(rc *RuleContext) (Result, error) {
		return rc.PerPeriod(rc.Periods("msc"), func(p int) (Status, error) {
			if p == 3 {
				return StatusError, nil
			}
			return StatusOK, nil
		})
	}}
	out := NewEngine().RunDimension(context.Background(), Dimension{Code: "D1", Requires: []string{"msc"}, Rules: []Rule{rule}}, ac)
	require.Len(t, out, 1)
	v := out[0].Verdict
	assert.Equal(t, StatusError, v.Status)
	require.NotNil(t, v.Score)
	assert.Equal(t, 0.8, *v.Score)
	assert.Contains(t, v.Note, "divergence in 1 of 5 periods: [3]")
	assert.Contains(t, v.Note, "partial delivery: msc (5/12 periods)")
}

func TestRuleLevelRequirementOnlySkipsThatRule(t *testing.T) {
	ac := testContext(t)
	closing := okRule("D1_00050", nil)
	closing.Requires = []string{"msc_encerramento"}
	dim := Dimension{Code: "D1", Requires: []string{"msc"}, Rules: []Rule{okRule("D1_00001", nil), closing}}

	out := NewEngine().RunDimension(context.Background(), dim, ac)
	require.Len(t, out, 2)
	assert.Equal(t, StatusOK, out[0].Verdict.Status)
	assert.Equal(t, StatusNotApplicable, out[1].Verdict.Status)
	assert.Contains(t, out[1].Verdict.Note, "msc_encerramento")
}

func TestYearAndEntityApplicability(t *testing.T) {
	ac := testContext(t)
	fromYear := okRule("D3_00020", nil)
	fromYear.MinYear = 2023
	stateOnly := okRule("D4_00030", nil)
	stateOnly.Entities = []EntityType{EntityState}

	out := NewEngine().RunDimension(context.Background(), Dimension{Code: "DX", Rules: []Rule{fromYear, stateOnly}}, ac)
	assert.Equal(t, StatusNotApplicable, out[0].Verdict.Status)
	assert.Contains(t, out[0].Verdict.Note, "2023")
	assert.Equal(t, StatusNotApplicable, out[1].Verdict.Status)
	assert.Contains(t, out[1].Verdict.Note, "MUNICIPALITY")
}

func TestSchemaErrorBecomesErrorVerdict(t *testing.T) {
	ac := testContext(t)
	bad := Rule{Code: "D1_00099", Check: func(rc *RuleContext) (Result, error) {
		ds, err := rc.Dataset("msc")
		if err != nil {
			return Result{}, err
		}
		_, err = ds.GroupSum([]string{"natureza"}, "valor")
		return Result{}, err
	}}
	dim := Dimension{Code: "D1", Requires: []string{"msc"}, Rules: []Rule{bad, okRule("D1_00100", nil)}}

	out := NewEngine().RunDimension(context.Background(), dim, ac)
	require.Len(t, out, 2)
	assert.Equal(t, StatusError, out[0].Verdict.Status)
	require.NotNil(t, out[0].Verdict.Score)
	assert.Equal(t, 0.0, *out[0].Verdict.Score)
	assert.Contains(t, out[0].Verdict.Note, "schema error: missing column natureza")
	assert.Equal(t, StatusOK, out[1].Verdict.Status)
}

func TestPanicAndMissingDatasetAreIsolated(t *testing.T) {
	ac := testContext(t)
	dim := Dimension{Code: "D1", Rules: []Rule{
		{Code: "P", Check: func(*RuleContext) (Result, error) { panic("boom") }},
		{Code: "M", Check: func(rc *RuleContext) (Result, error) {
			_, err := rc.Dataset("rgf")
			return Result{}, err
		}},
		okRule("OK", nil),
	}}
	out := NewEngine().RunDimension(context.Background(), dim, ac)
	require.Len(t, out, 3)
	assert.Equal(t, StatusError, out[0].Verdict.Status)
	assert.Contains(t, out[0].Verdict.Note, "unexpected error: boom")
	assert.Equal(t, StatusError, out[1].Verdict.Status)
	assert.Contains(t, out[1].Verdict.Note, "dataset missing")
	assert.Equal(t, StatusOK, out[2].Verdict.Status)
}

func TestZeroCheckedPeriodsIsNotApplicable(t *testing.T) {
	ac := testContext(t)
	rule := Rule{Code: "R", Check: func(rc *RuleContext) (Result, error) {
		return rc.PerPeriod(nil, func(int) (Status, error) { return StatusOK, nil })
	}}
	out := NewEngine().RunDimension(context.Background(), Dimension{Code: "D1", Rules: []Rule{rule}}, ac)
	assert.Equal(t, StatusNotApplicable, out[0].Verdict.Status)
	assert.Nil(t, out[0].Verdict.Score)
}

func TestInconsistentFailureCountIsError(t *testing.T) {
	ac := testContext(t)
	tooMany := Rule{Code: "R1", Check: func(*RuleContext) (Result, error) {
		return Result{Checked: 2, Failed: 5, Note: "x"}, nil
	}}
	negative := Rule{Code: "R2", Check: func(*RuleContext) (Result, error) {
		return Result{Checked: 3, Failed: -1}, nil
	}}
	out := NewEngine().RunDimension(context.Background(), Dimension{Code: "D1", Rules: []Rule{tooMany, negative}}, ac)
	require.Len(t, out, 2)

	assert.Equal(t, StatusError, out[0].Verdict.Status)
	assert.Equal(t, "rule reported 5 failures over 2 periods; x", out[0].Verdict.Note)
	require.NotNil(t, out[0].Verdict.Score)
	assert.Zero(t, *out[0].Verdict.Score)

	assert.Equal(t, StatusError, out[1].Verdict.Status)
	assert.Contains(t, out[1].Verdict.Note, "-1 failures over 3 periods")
}

func TestRegistrySealedAfterRun(t *testing.T) {
	ac := testContext(t)
	NewEngine().RunDimension(context.Background(), Dimension{Code: "D1"}, ac)
	err := ac.Registry.RegisterDataset("late", tabular.Empty("late"))
	assert.True(t, errors.Is(err, ErrRegistrySealed))
}

func TestRuleCannotMutateRegistryData(t *testing.T) {
	ac := testContext(t)
	mutate := Rule{Code: "W", Check: func(rc *RuleContext) (Result, error) {
		ds, err := rc.Dataset("msc")
		if err != nil {
			return Result{}, err
		}
		ds.Rows()[0]["valor"] = 999.0
		return StatusResult(StatusOK, "", nil), nil
	}}
	NewEngine().RunDimension(context.Background(), Dimension{Code: "D1", Rules: []Rule{mutate}}, ac)

	ds, err := ac.Registry.Dataset("msc")
	require.NoError(t, err)
	assert.Equal(t, 10.0, ds.Row(0).Number("valor"))
}

func TestRunAllIsDeterministic(t *testing.T) {
	dims := []Dimension{
		{Code: "D1", Requires: []string{"msc"}, Rules: []Rule{
			{Code: "A", Scoring: PerPeriod, Check: func(rc *RuleContext) (Result, error) {
				return rc.PerPeriod(rc.Periods("msc"), func(p int) (Status, error) {
					if p%2 == 0 {
						return StatusOKWithRounding, nil
					}
					return StatusOK, nil
				})
			}},
			okRule("B", nil),
		}},
	}
	first, err := NewEngine().RunAll(context.Background(), dims, testContext(t))
	require.NoError(t, err)
	second, err := NewEngine().RunAll(context.Background(), dims, testContext(t))
	require.NoError(t, err)
	assert.Equal(t, first.Rows, second.Rows)
	assert.Equal(t, StatusOKWithRounding, first.Rows[0].Status)
}

func TestValidateRejectsDuplicateCodes(t *testing.T) {
	dims := []Dimension{
		{Code: "D1", Rules: []Rule{okRule("X", nil)}},
		{Code: "D2", Rules: []Rule{okRule("X", nil)}},
	}
	_, err := NewEngine().RunAll(context.Background(), dims, testContext(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "X")
}

type cancelObserver struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	seen   []string
}

func (o *cancelObserver) RuleFinished(v Verdict, _ RuleState, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, v.Code)
	o.cancel()
}

func TestCancellationStopsAtDimensionBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	obs := &cancelObserver{cancel: cancel}
	dims := []Dimension{
		{Code: "D1", Rules: []Rule{okRule("A", nil), okRule("B", nil)}},
		{Code: "D2", Rules: []Rule{okRule("C", nil)}},
	}

	report, err := NewEngine(WithObserver(obs)).RunAll(ctx, dims, testContext(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, report)
	// the running dimension finishes, the next one never starts
	require.Len(t, report.Rows, 2)
	assert.Equal(t, []string{"A", "B"}, obs.seen)
}

func TestScorerExcludesNotApplicable(t *testing.T) {
	vs := []Verdict{
		{Dimension: "D1", Code: "a", Status: StatusOK, Score: scorePtr(1)},
		{Dimension: "D1", Code: "b", Status: StatusError, Score: scorePtr(0.5)},
		{Dimension: "D2", Code: "c", Status: StatusNotApplicable},
		{Dimension: "D2", Code: "d", Status: StatusOKWithRounding, Score: scorePtr(1)},
	}
	withRounding := Scorer{RoundingAsPass: true}.Overall(vs)
	require.NotNil(t, withRounding)
	assert.InDelta(t, 2.0/3.0, *withRounding, 1e-9)

	strict := Scorer{}.Overall(vs)
	require.NotNil(t, strict)
	assert.InDelta(t, 1.0/3.0, *strict, 1e-9)

	assert.Nil(t, Scorer{}.Overall(vs[2:3]))

	sums := Scorer{RoundingAsPass: true}.Dimensions(vs)
	require.Len(t, sums, 2)
	assert.Equal(t, DimensionSummary{Dimension: "D1", Total: 2, Passed: 1, Failed: 1, Score: scorePtr(0.5)}, sums[0])
	assert.Equal(t, 1, sums[1].NotApplicable)
	assert.Equal(t, 1, sums[1].Rounding)
}

func TestReportKeepsRegistrationOrder(t *testing.T) {
	dims := []Dimension{
		{Code: "D1", Rules: []Rule{
			{Code: "Z", Check: func(*RuleContext) (Result, error) {
				ev := tabular.New("ev", []string{"conta"}, []tabular.Row{{"conta": "111"}})
				return StatusResult(StatusError, "falhou", ev), nil
			}},
			okRule("A", nil),
		}},
	}
	report, err := NewEngine().RunAll(context.Background(), dims, testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "Z", report.Rows[0].Code)
	assert.Equal(t, "A", report.Rows[1].Code)

	table := report.Table()
	assert.Equal(t, []string{ColDimension, ColCode, ColStatus, ColDescription, ColScore, ColNote}, table.Columns())
	assert.Equal(t, "ERROR", table.Row(0).Text(ColStatus))
	assert.Equal(t, 0.0, table.Row(0).Number(ColScore))

	ev, ok := report.EvidenceFor("Z")
	require.True(t, ok)
	assert.Equal(t, 1, ev.Len())
	_, ok = report.EvidenceFor("A")
	assert.False(t, ok)
}

func TestToleranceClassify(t *testing.T) {
	tol := DefaultTolerance()
	assert.Equal(t, StatusOK, tol.Classify(0.01))
	assert.Equal(t, StatusOKWithRounding, tol.Classify(0.02))
	assert.Equal(t, StatusOKWithRounding, tol.Classify(-1.0))
	assert.Equal(t, StatusError, tol.Classify(1.01))

	strict := Tolerance{Primary: 0.01}
	assert.Equal(t, StatusError, strict.Classify(0.5))
}

func TestRuleToleranceOverride(t *testing.T) {
	ac := testContext(t)
	loose := Tolerance{Primary: 5}
	rule := Rule{Code: "T", Tolerance: &loose, Check: func(rc *RuleContext) (Result, error) {
		return StatusResult(rc.Classify(3), "", nil), nil
	}}
	out := NewEngine().RunDimension(context.Background(), Dimension{Code: "D1", Rules: []Rule{rule}}, ac)
	assert.Equal(t, StatusOK, out[0].Verdict.Status)
}
