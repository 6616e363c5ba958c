/*
 * @module api/controllers/analysis_controller_test
 * @description 对账分析、规则目录、脚本规则与配置接口测试
 * @architecture 测试层
 * @documentReference DESIGN.md
 * @stateFlow 测试用例 -> 接口调用 -> 结果验证
 * @rules 使用内存数据库与真实服务，覆盖状态码映射
 * @dependencies testing, net/http/httptest, github.com/stretchr/testify
 * @refs api/controllers/analysis_controller.go
 */

package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"siconfi-service/service/analysis"
	"siconfi-service/service/config"
	"siconfi-service/service/models"
	"siconfi-service/testutil"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router *chi.Mux
	http   *testutil.HTTPTestHelper
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := testutil.NewTestDB()
	t.Cleanup(db.Close)

	cfg, err := config.Load()
	require.NoError(t, err)
	cfgService := config.NewConfigService(db.DB, cfg)
	svc := analysis.NewService(db.DB, analysis.WithToleranceSource(cfgService))

	analysisController := NewAnalysisController(svc)
	catalogueController := NewCatalogueController(svc)
	scriptRuleController := NewScriptRuleController(analysis.NewScriptRuleService(db.DB, svc.Compiler()))
	configController := NewConfigController(cfgService)
	healthController := NewHealthController(db.DB)

	r := chi.NewRouter()
	r.Get("/ready", healthController.Ready)
	r.Get("/catalogue", catalogueController.GetCatalogue)
	r.Post("/analyses", analysisController.Submit)
	r.Get("/analyses", analysisController.List)
	r.Get("/analyses/{id}", analysisController.Get)
	r.Get("/analyses/{id}/evidence/{code}", analysisController.Evidence)
	r.Post("/analyses/{id}/rerun", analysisController.Rerun)
	r.Post("/analyses/{id}/dimensions/{code}", analysisController.RunDimension)
	r.Post("/script-rules", scriptRuleController.Create)
	r.Post("/script-rules/validate", scriptRuleController.Validate)
	r.Get("/config", configController.GetAllConfigs)
	r.Put("/config/{key}", configController.UpdateConfig)
	return &testServer{router: r, http: testutil.NewHTTPTestHelper()}
}

func (s *testServer) do(t *testing.T, method, url string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req, err := s.http.CreateJSONRequest(method, url, body)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func submitBody() map[string]interface{} {
	return map[string]interface{}{
		"entity_code": "3550308",
		"entity_type": "MUNICIPALITY",
		"fiscal_year": 2024,
		"deliveries":  testutil.Deliveries("MSC Agregada", 2024, testutil.Months(1, 12)...),
		"datasets": map[string]interface{}{
			"msc": testutil.BalancedTrialBalance(testutil.Months(1, 12)...),
		},
	}
}

func TestAnalysisEndpoints(t *testing.T) {
	s := newTestServer(t)

	data := s.http.DecodeResponse(t, s.do(t, http.MethodPost, "/analyses", submitBody()), http.StatusOK)
	var run models.AnalysisRun
	require.NoError(t, json.Unmarshal(data, &run))
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	require.Len(t, run.Verdicts, 11)

	data = s.http.DecodeResponse(t, s.do(t, http.MethodGet, "/analyses/"+run.ID, nil), http.StatusOK)
	var got models.AnalysisRun
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, run.ID, got.ID)

	data = s.http.DecodeResponse(t, s.do(t, http.MethodGet, "/analyses/"+run.ID+"/evidence/D1_00010", nil), http.StatusOK)
	var ev models.EvidenceRecord
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, 12, ev.RowCount)

	s.http.DecodeResponse(t, s.do(t, http.MethodPost, "/analyses/"+run.ID+"/dimensions/D1", nil), http.StatusOK)
	s.http.DecodeResponse(t, s.do(t, http.MethodPost, "/analyses/"+run.ID+"/dimensions/D7", nil), http.StatusNotFound)
	s.http.DecodeResponse(t, s.do(t, http.MethodPost, "/analyses/"+run.ID+"/rerun", nil), http.StatusOK)

	w := s.do(t, http.MethodGet, "/analyses?entity_code=3550308&page=1&size=10", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var page PaginatedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 10, page.Size)
}

func TestAnalysisErrorMapping(t *testing.T) {
	s := newTestServer(t)

	body := submitBody()
	body["entity_type"] = "COUNTRY"
	s.http.DecodeResponse(t, s.do(t, http.MethodPost, "/analyses", body), http.StatusBadRequest)

	req := httptest.NewRequest(http.MethodPost, "/analyses", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.http.DecodeResponse(t, s.do(t, http.MethodGet, "/analyses/does-not-exist", nil), http.StatusNotFound)
	s.http.DecodeResponse(t, s.do(t, http.MethodGet, "/analyses/does-not-exist/evidence/D1_00010", nil), http.StatusNotFound)
}

func TestCatalogueAndScriptRules(t *testing.T) {
	s := newTestServer(t)

	data := s.http.DecodeResponse(t, s.do(t, http.MethodGet, "/catalogue", nil), http.StatusOK)
	var cat CatalogueResponse
	require.NoError(t, json.Unmarshal(data, &cat))
	require.Len(t, cat.Dimensions, 4)
	assert.Equal(t, "D1", cat.Dimensions[0].Code)
	assert.Len(t, cat.Families, 5)

	source := "package main\n\nfunc Check(data map[string][]map[string]interface{}, params map[string]interface{}) (int, int, string) {\n\treturn 1, 0, \"\"\n}\n"
	s.http.DecodeResponse(t, s.do(t, http.MethodPost, "/script-rules/validate", map[string]string{"source": source}), http.StatusOK)
	s.http.DecodeResponse(t, s.do(t, http.MethodPost, "/script-rules/validate", map[string]string{"source": "func ("}), http.StatusBadRequest)

	rule := map[string]interface{}{"code": "DX_00010", "source": source, "datasets": []string{"msc"}}
	s.http.DecodeResponse(t, s.do(t, http.MethodPost, "/script-rules", rule), http.StatusOK)
	s.http.DecodeResponse(t, s.do(t, http.MethodPost, "/script-rules", rule), http.StatusConflict)

	data = s.http.DecodeResponse(t, s.do(t, http.MethodGet, "/catalogue", nil), http.StatusOK)
	require.NoError(t, json.Unmarshal(data, &cat))
	require.Len(t, cat.Dimensions, 5)
	assert.Equal(t, "DX", cat.Dimensions[4].Code)
}

func TestConfigEndpoints(t *testing.T) {
	s := newTestServer(t)

	s.http.DecodeResponse(t, s.do(t, http.MethodPut, "/config/analysis.retention_days", map[string]string{"value": "30"}), http.StatusOK)
	s.http.DecodeResponse(t, s.do(t, http.MethodPut, "/config/analysis.retention_days", map[string]string{"value": "-3"}), http.StatusBadRequest)
	s.http.DecodeResponse(t, s.do(t, http.MethodPut, "/config/analysis.unknown", map[string]string{"value": "1"}), http.StatusNotFound)

	data := s.http.DecodeResponse(t, s.do(t, http.MethodGet, "/config", nil), http.StatusOK)
	var items []models.SystemConfigItem
	require.NoError(t, json.Unmarshal(data, &items))
	require.Len(t, items, 3)
	for _, it := range items {
		if it.Key == config.ConfigKeyRetentionDays {
			assert.Equal(t, "30", it.Value)
		}
	}
}

func TestReady(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
