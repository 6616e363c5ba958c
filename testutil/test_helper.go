/*
 * @module testutil/test_helper
 * @description 测试工具和辅助函数：内存数据库、SICONFI 样例数据、事件发布器替身、HTTP 辅助
 * @architecture 测试基础设施 - 提供测试通用工具和数据工厂
 * @documentReference DESIGN.md
 * @stateFlow 测试环境初始化 -> 测试数据创建 -> 测试执行 -> 清理资源
 * @rules 提供可重用的测试工具，确保测试环境的一致性
 * @dependencies gorm, sqlite, testify
 * @refs service/models, service/analysis
 */

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"siconfi-service/service/database"
	"siconfi-service/service/event"
	"siconfi-service/service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 测试数据库配置
type TestDB struct {
	DB *gorm.DB
}

// NewTestDB 创建测试数据库，每次调用得到独立的内存库
func NewTestDB() *TestDB {
	dsn := fmt.Sprintf("file:testdb_%s?mode=memory&cache=shared", generateSuffix())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}

	if err := database.AutoMigrate(db); err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}

	return &TestDB{DB: db}
}

// CleanDB 清理数据库
func (tdb *TestDB) CleanDB() {
	tables := []string{
		"verdict_records",
		"evidence_records",
		"dataset_snapshots",
		"analysis_runs",
		"script_rules",
		"system_configs",
	}
	for _, table := range tables {
		tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
	}
}

// Close 关闭数据库连接
func (tdb *TestDB) Close() {
	if db, err := tdb.DB.DB(); err == nil {
		db.Close()
	}
}

var (
	suffixMu sync.Mutex
	suffixN  int
)

func generateSuffix() string {
	suffixMu.Lock()
	defer suffixMu.Unlock()
	suffixN++
	return fmt.Sprintf("%d", suffixN)
}

// TestDataFactory 测试数据工厂
type TestDataFactory struct {
	DB *gorm.DB
}

// NewTestDataFactory 创建测试数据工厂
func NewTestDataFactory(db *gorm.DB) *TestDataFactory {
	return &TestDataFactory{DB: db}
}

// AnalysisRunOption 分析运行选项函数类型
type AnalysisRunOption func(*models.AnalysisRun)

// CreateAnalysisRun 创建已完成的分析运行
func (f *TestDataFactory) CreateAnalysisRun(opts ...AnalysisRunOption) *models.AnalysisRun {
	overall := 1.0
	run := &models.AnalysisRun{
		EntityCode: "3550308",
		EntityType: "MUNICIPALITY",
		FiscalYear: 2024,
		Status:     models.RunStatusCompleted,
		Overall:    &overall,
		CreatedBy:  "test",
		UpdatedBy:  "test",
	}
	for _, opt := range opts {
		opt(run)
	}
	if err := f.DB.Create(run).Error; err != nil {
		panic(fmt.Sprintf("failed to create test analysis run: %v", err))
	}
	return run
}

// ScriptRuleOption 脚本规则选项函数类型
type ScriptRuleOption func(*models.ScriptRule)

// CreateScriptRule 创建脚本规则
func (f *TestDataFactory) CreateScriptRule(code, source string, opts ...ScriptRuleOption) *models.ScriptRule {
	rule := &models.ScriptRule{
		Code:        code,
		Description: "Regra de teste",
		Source:      source,
		Datasets:    []string{"msc"},
		Requires:    []string{"msc"},
		Scoring:     "per_period",
		IsEnabled:   true,
		CreatedBy:   "test",
		UpdatedBy:   "test",
	}
	for _, opt := range opts {
		opt(rule)
	}
	if err := f.DB.Create(rule).Error; err != nil {
		panic(fmt.Sprintf("failed to create test script rule: %v", err))
	}
	return rule
}

// Deliveries 交付记录，每个期间一条已 homologado 的记录
func Deliveries(label string, year int, periods ...int) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(periods))
	for _, p := range periods {
		out = append(out, map[string]interface{}{
			"entregavel":       label,
			"exercicio":        year,
			"periodo":          p,
			"status_relatorio": "HO",
		})
	}
	return out
}

// Months 闭区间内的月份
func Months(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for m := from; m <= to; m++ {
		out = append(out, m)
	}
	return out
}

// BalancedTrialBalance 每月一个借方科目与一个贷方科目，期初等于上月期末，借贷相等
func BalancedTrialBalance(months ...int) []map[string]interface{} {
	var out []map[string]interface{}
	for _, m := range months {
		for _, acc := range []struct {
			code, nature string
		}{{"111110100", "D"}, {"211110100", "C"}} {
			out = append(out,
				map[string]interface{}{"conta_contabil": acc.code, "mes_referencia": m, "tipo_valor": "beginning_balance", "natureza_conta": acc.nature, "valor": 100.0},
				map[string]interface{}{"conta_contabil": acc.code, "mes_referencia": m, "tipo_valor": "ending_balance", "natureza_conta": acc.nature, "valor": 100.0},
			)
		}
	}
	return out
}

// MockNotifier 事件发布器替身
type MockNotifier struct {
	mock.Mock
	mu     sync.Mutex
	Events []*event.AnalysisCompletedEvent
}

func (m *MockNotifier) Publish(ctx context.Context, evt *event.AnalysisCompletedEvent) error {
	m.mu.Lock()
	m.Events = append(m.Events, evt)
	m.mu.Unlock()
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func (m *MockNotifier) Close() error {
	return nil
}

// Published 已发布的事件副本
func (m *MockNotifier) Published() []*event.AnalysisCompletedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*event.AnalysisCompletedEvent(nil), m.Events...)
}

// HTTPTestHelper HTTP测试辅助工具
type HTTPTestHelper struct{}

// NewHTTPTestHelper 创建HTTP测试辅助工具
func NewHTTPTestHelper() *HTTPTestHelper {
	return &HTTPTestHelper{}
}

// CreateJSONRequest 创建JSON请求
func (h *HTTPTestHelper) CreateJSONRequest(method, url string, body interface{}) (*http.Request, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// DecodeResponse 解码统一响应结构，返回 data 字段的原始 JSON
func (h *HTTPTestHelper) DecodeResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int) json.RawMessage {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, w.Body.String())

	var body struct {
		Status int             `json:"status"`
		Msg    string          `json:"msg"`
		Data   json.RawMessage `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Data
}
