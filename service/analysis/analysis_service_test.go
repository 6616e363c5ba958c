package analysis

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"siconfi-service/service/distributed_lock"
	"siconfi-service/service/metrics"
	"siconfi-service/service/models"
	"siconfi-service/service/reconcile"
	"siconfi-service/testutil"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const rowCountScript = `package main

func Check(data map[string][]map[string]interface{}, params map[string]interface{}) (int, int, string) {
	return len(data["msc"]), 0, ""
}
`

const spinningScript = `package main

func Check(data map[string][]map[string]interface{}, params map[string]interface{}) (int, int, string) {
	for len(data) >= 0 {
	}
	return 0, 0, ""
}
`

type countingCache struct {
	mu    sync.Mutex
	items map[string]*models.AnalysisRun
	hits  int
}

func (c *countingCache) Get(_ context.Context, id string, dst interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	run, ok := c.items[id]
	if !ok {
		return false, nil
	}
	c.hits++
	*dst.(*models.AnalysisRun) = *run
	return true, nil
}

func (c *countingCache) Set(_ context.Context, id string, v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	run := *v.(*models.AnalysisRun)
	c.items[id] = &run
	return nil
}

func (c *countingCache) Delete(_ context.Context, ids ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.items, id)
	}
	return nil
}

// AnalysisServiceTestSuite 分析服务测试套件
type AnalysisServiceTestSuite struct {
	suite.Suite
	db       *testutil.TestDB
	factory  *testutil.TestDataFactory
	svc      *Service
	notifier *testutil.MockNotifier
	lock     *distributed_lock.MemoryLock
	cache    *countingCache
	ctx      context.Context
}

// SetupTest 每个测试使用独立的内存库、锁、缓存与事件发布器
func (suite *AnalysisServiceTestSuite) SetupTest() {
	suite.db = testutil.NewTestDB()
	suite.factory = testutil.NewTestDataFactory(suite.db.DB)
	suite.notifier = &testutil.MockNotifier{}
	suite.notifier.On("Publish", mock.Anything, mock.Anything).Return(nil)
	suite.lock = distributed_lock.NewMemoryLock()
	suite.cache = &countingCache{items: make(map[string]*models.AnalysisRun)}
	suite.ctx = context.Background()
	suite.svc = suite.newService()
}

// TearDownTest 关闭数据库
func (suite *AnalysisServiceTestSuite) TearDownTest() {
	suite.db.Close()
}

func (suite *AnalysisServiceTestSuite) newService(extra ...Option) *Service {
	opts := []Option{
		WithNotifier(suite.notifier),
		WithLock(suite.lock, time.Minute),
		WithCache(suite.cache),
		WithMetrics(metrics.New(prometheus.NewRegistry())),
		WithLoadConcurrency(2),
	}
	return NewService(suite.db.DB, append(opts, extra...)...)
}

func mscRequest() *AnalysisRequest {
	return &AnalysisRequest{
		EntityCode: "3550308",
		EntityName: "São Paulo",
		EntityType: "M",
		FiscalYear: 2024,
		Deliveries: testutil.Deliveries("MSC Agregada", 2024, testutil.Months(1, 12)...),
		Datasets: map[string][]map[string]interface{}{
			"msc": testutil.BalancedTrialBalance(testutil.Months(1, 12)...),
		},
	}
}

func verdictByCode(run *models.AnalysisRun, code string) *models.VerdictRecord {
	for i := range run.Verdicts {
		if run.Verdicts[i].Code == code {
			return &run.Verdicts[i]
		}
	}
	return nil
}

func statuses(run *models.AnalysisRun) map[string]string {
	out := make(map[string]string, len(run.Verdicts))
	for _, v := range run.Verdicts {
		out[v.Code] = v.Status
	}
	return out
}

func (suite *AnalysisServiceTestSuite) TestSubmitPersistsReport() {
	run, err := suite.svc.Submit(suite.ctx, mscRequest())
	suite.Require().NoError(err)

	suite.Equal(models.RunStatusCompleted, run.Status)
	suite.Equal("MUNICIPALITY", run.EntityType)
	suite.Equal(11, run.TotalRules)
	suite.Equal(4, run.Passed)
	suite.Equal(7, run.NotApplicable)
	suite.Require().NotNil(run.Overall)
	suite.Equal(1.0, *run.Overall)
	suite.NotNil(run.FinishedAt)

	suite.Require().Len(run.Verdicts, 11)
	suite.Equal("D1_00010", run.Verdicts[0].Code)
	suite.Equal("D4_00020", run.Verdicts[10].Code)
	for i, v := range run.Verdicts {
		suite.Equal(i, v.Seq)
		suite.Equal(v.Status == string(reconcile.StatusNotApplicable), v.Score == nil, v.Code)
	}
	suite.Equal("NOT_APPLICABLE", verdictByCode(run, "D1_00050").Status)

	var snaps int64
	suite.db.DB.Model(&models.DatasetSnapshot{}).Where("run_id = ?", run.ID).Count(&snaps)
	suite.Equal(int64(2), snaps, "交付记录与矩阵各一份快照")

	events := suite.notifier.Published()
	suite.Require().Len(events, 1)
	suite.Equal(run.ID, events[0].RunID)
	suite.Equal(models.RunStatusCompleted, events[0].Status)
	suite.Len(events[0].Dimensions, 4)
}

func (suite *AnalysisServiceTestSuite) TestFinishLogCarriesOverallValue() {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	_, err := suite.svc.Submit(suite.ctx, mscRequest())
	suite.Require().NoError(err)
	suite.Contains(buf.String(), "overall=1")
	suite.NotContains(buf.String(), "overall=0x")
}

func (suite *AnalysisServiceTestSuite) TestSubmitRejectsInvalidRequest() {
	req := mscRequest()
	req.Datasets["siafi"] = nil
	_, err := suite.svc.Submit(suite.ctx, req)
	suite.ErrorIs(err, ErrInvalidRequest)

	req = mscRequest()
	req.EntityType = "X"
	_, err = suite.svc.Submit(suite.ctx, req)
	suite.ErrorIs(err, ErrInvalidRequest)

	req = mscRequest()
	req.Datasets["msc"] = []map[string]interface{}{{"conta_contabil": "1", "mes_referencia": 14, "valor": 1}}
	_, err = suite.svc.Submit(suite.ctx, req)
	suite.ErrorIs(err, ErrInvalidRequest)

	var runs int64
	suite.db.DB.Model(&models.AnalysisRun{}).Count(&runs)
	suite.Zero(runs, "无效请求不创建运行")
}

func (suite *AnalysisServiceTestSuite) TestSubmitRejectsConcurrentRunForSameEntity() {
	ok, err := suite.lock.TryLock(suite.ctx, lockKey("3550308", 2024), time.Minute)
	suite.Require().NoError(err)
	suite.Require().True(ok)

	_, err = suite.svc.Submit(suite.ctx, mscRequest())
	suite.ErrorIs(err, ErrLockHeld)

	other := mscRequest()
	other.FiscalYear = 2023
	other.Deliveries = testutil.Deliveries("MSC Agregada", 2023, 1)
	_, err = suite.svc.Submit(suite.ctx, other)
	suite.NoError(err, "其他年度不受影响")
}

func (suite *AnalysisServiceTestSuite) TestEvidenceLookup() {
	run, err := suite.svc.Submit(suite.ctx, mscRequest())
	suite.Require().NoError(err)

	ev, err := suite.svc.Evidence(suite.ctx, run.ID, "D1_00010")
	suite.Require().NoError(err)
	suite.Equal(12, ev.RowCount)
	suite.Contains([]string(ev.Columns), "mes_referencia")

	_, err = suite.svc.Evidence(suite.ctx, run.ID, "D2_00010")
	suite.ErrorIs(err, ErrEvidenceNotFound)

	_, err = suite.svc.Evidence(suite.ctx, "00000000-0000-0000-0000-000000000000", "D1_00010")
	suite.ErrorIs(err, ErrRunNotFound)
}

func (suite *AnalysisServiceTestSuite) TestGetServesFinishedRunsFromCache() {
	run, err := suite.svc.Submit(suite.ctx, mscRequest())
	suite.Require().NoError(err)

	_, err = suite.svc.Get(suite.ctx, run.ID)
	suite.Require().NoError(err)
	suite.GreaterOrEqual(suite.cache.hits, 1)

	_, err = suite.svc.Get(suite.ctx, "missing")
	suite.ErrorIs(err, ErrRunNotFound)
}

func (suite *AnalysisServiceTestSuite) TestRerunPicksUpScriptRules() {
	run, err := suite.svc.Submit(suite.ctx, mscRequest())
	suite.Require().NoError(err)
	suite.Require().Nil(verdictByCode(run, "DX_00010"))

	suite.factory.CreateScriptRule("DX_00010", rowCountScript)

	rerun, err := suite.svc.Rerun(suite.ctx, run.ID)
	suite.Require().NoError(err)
	suite.Equal(run.ID, rerun.ID)
	suite.Equal(12, rerun.TotalRules)
	v := verdictByCode(rerun, "DX_00010")
	suite.Require().NotNil(v)
	suite.Equal("DX", v.Dimension)
	suite.Equal("OK", v.Status)

	var verdicts int64
	suite.db.DB.Model(&models.VerdictRecord{}).Where("run_id = ?", run.ID).Count(&verdicts)
	suite.Equal(int64(12), verdicts, "重跑覆盖原有判定")
	suite.Len(suite.notifier.Published(), 2)
}

func (suite *AnalysisServiceTestSuite) TestRerunKeepsRequestTolerance() {
	req := mscRequest()
	for _, r := range req.Datasets["msc"] {
		if r["conta_contabil"] == "211110100" && r["mes_referencia"] == 3 && r["tipo_valor"] == "ending_balance" {
			r["valor"] = 100.5
		}
	}
	req.Tolerance = &reconcile.Tolerance{Primary: 1, Rounding: 1}

	run, err := suite.svc.Submit(suite.ctx, req)
	suite.Require().NoError(err)
	suite.Equal("OK", verdictByCode(run, "D1_00040").Status, "差额在请求容差之内")

	rerun, err := suite.svc.Rerun(suite.ctx, run.ID)
	suite.Require().NoError(err)
	suite.Equal(statuses(run), statuses(rerun), "重跑沿用首次执行的容差")

	report, err := suite.svc.RunDimension(suite.ctx, run.ID, "D1")
	suite.Require().NoError(err)
	for _, row := range report.Rows {
		suite.Equal(verdictByCode(run, row.Code).Status, string(row.Status), row.Code)
	}
}

func (suite *AnalysisServiceTestSuite) TestBrokenScriptRuleStillReported() {
	suite.factory.CreateScriptRule("DX_00099", "package main\nfunc Check( {")

	run, err := suite.svc.Submit(suite.ctx, mscRequest())
	suite.Require().NoError(err)
	suite.Equal(models.RunStatusCompleted, run.Status)
	suite.Equal(12, run.TotalRules, "每条启用的规则都有一行")

	v := verdictByCode(run, "DX_00099")
	suite.Require().NotNil(v)
	suite.Equal("DX", v.Dimension)
	suite.Equal("ERROR", v.Status)
	suite.Contains(v.Note, "unexpected error")
	suite.Equal(1, run.Failed)
}

func (suite *AnalysisServiceTestSuite) TestSpinningScriptRuleDoesNotBlockAnalysis() {
	compiler := reconcile.NewScriptCompiler(reconcile.WithScriptTimeout(200 * time.Millisecond))
	svc := suite.newService(WithScriptCompiler(compiler), WithTimeout(5*time.Second))
	suite.factory.CreateScriptRule("DX_00098", spinningScript)

	done := make(chan struct{})
	var run *models.AnalysisRun
	var err error
	go func() {
		defer close(done)
		run, err = svc.Submit(suite.ctx, mscRequest())
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		suite.FailNow("脚本规则阻塞了分析")
	}

	suite.Require().NoError(err)
	suite.Equal(models.RunStatusCompleted, run.Status)
	v := verdictByCode(run, "DX_00098")
	suite.Require().NotNil(v)
	suite.Equal("ERROR", v.Status)
	suite.Contains(v.Note, "script timed out")

	// 锁已释放，同一实体年度可以再次提交
	ok, lockErr := suite.lock.TryLock(suite.ctx, lockKey("3550308", 2024), time.Minute)
	suite.Require().NoError(lockErr)
	suite.True(ok)
}

func (suite *AnalysisServiceTestSuite) TestRunDimensionDoesNotPersist() {
	run, err := suite.svc.Submit(suite.ctx, mscRequest())
	suite.Require().NoError(err)

	report, err := suite.svc.RunDimension(suite.ctx, run.ID, "D1")
	suite.Require().NoError(err)
	suite.Require().Len(report.Rows, 5)
	suite.Require().NotNil(report.Overall)
	suite.Equal(1.0, *report.Overall)

	_, err = suite.svc.RunDimension(suite.ctx, run.ID, "D9")
	suite.ErrorIs(err, ErrDimensionNotFound)
	_, err = suite.svc.RunDimension(suite.ctx, "missing", "D1")
	suite.ErrorIs(err, ErrRunNotFound)
}

func (suite *AnalysisServiceTestSuite) TestListFiltersAndPaginates() {
	for _, year := range []int{2021, 2022, 2023} {
		year := year
		suite.factory.CreateAnalysisRun(func(r *models.AnalysisRun) { r.FiscalYear = year })
	}
	suite.factory.CreateAnalysisRun(func(r *models.AnalysisRun) { r.EntityCode = "3304557" })

	runs, total, err := suite.svc.List(suite.ctx, ListQuery{EntityCode: "3550308", Page: 1, Size: 2})
	suite.Require().NoError(err)
	suite.Equal(int64(3), total)
	suite.Len(runs, 2)

	runs, total, err = suite.svc.List(suite.ctx, ListQuery{FiscalYear: 2022})
	suite.Require().NoError(err)
	suite.Equal(int64(1), total)
	suite.Equal(2022, runs[0].FiscalYear)
}

func TestAnalysisService(t *testing.T) {
	suite.Run(t, new(AnalysisServiceTestSuite))
}
