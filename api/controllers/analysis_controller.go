/*
 * @module api/controllers/analysis_controller
 * @description 对账分析控制器，提供分析提交、查询、证据下载、重跑与单维度执行的HTTP接口
 * @architecture MVC架构 - 控制器层
 * @documentReference DESIGN.md
 * @stateFlow 请求接收 -> 参数解析 -> 分析服务 -> 统一响应
 * @rules 业务错误映射为 400/404/409，其余为 500
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs service/analysis
 */

package controllers

import (
	"encoding/json"
	"net/http"

	"siconfi-service/service/analysis"
	"siconfi-service/service/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// AnalysisController 对账分析控制器
type AnalysisController struct {
	service *analysis.Service
}

// NewAnalysisController 创建对账分析控制器实例
func NewAnalysisController(s *analysis.Service) *AnalysisController {
	return &AnalysisController{service: s}
}

// Submit 提交分析
// @Summary 提交对账分析
// @Description 提交一个实体一个年度的交付记录与数据集，同步执行全部规则并返回报告
// @Description
// @Description **运行状态:**
// @Description - running → completed (全部规则已执行)
// @Description - running → cancelled (超时或请求取消，已完成的判定仍然保存)
// @Description - running → failed (数据加载或持久化失败)
// @Tags 对账分析
// @Accept json
// @Produce json
// @Param request body analysis.AnalysisRequest true "分析请求"
// @Success 200 {object} APIResponse{data=models.AnalysisRun}
// @Failure 400 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /analyses [post]
func (c *AnalysisController) Submit(w http.ResponseWriter, r *http.Request) {
	var req analysis.AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "请求参数解析失败: "+err.Error())
		return
	}

	run, err := c.service.Submit(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, "提交分析失败", err)
		return
	}
	writeSuccess(w, r, "分析执行完成", run)
}

// List 分页查询分析
// @Summary 获取分析列表
// @Description 分页获取分析运行，按创建时间倒序，不含判定明细
// @Tags 对账分析
// @Produce json
// @Param page query int false "页码" default(1)
// @Param size query int false "每页数量" default(20)
// @Param entity_code query string false "IBGE 实体编码"
// @Param fiscal_year query int false "年度"
// @Param status query string false "运行状态"
// @Success 200 {object} PaginatedResponse{data=[]models.AnalysisRun}
// @Failure 500 {object} APIResponse
// @Router /analyses [get]
func (c *AnalysisController) List(w http.ResponseWriter, r *http.Request) {
	q := analysis.ListQuery{
		Page:       queryInt(r, "page", 1),
		Size:       queryInt(r, "size", 20),
		EntityCode: r.URL.Query().Get("entity_code"),
		FiscalYear: queryInt(r, "fiscal_year", 0),
		Status:     r.URL.Query().Get("status"),
	}
	runs, total, err := c.service.List(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, "获取分析列表失败", err)
		return
	}
	if runs == nil {
		runs = []models.AnalysisRun{}
	}
	render.JSON(w, r, &PaginatedResponse{
		Status: 0,
		Msg:    "获取分析列表成功",
		Data:   runs,
		Total:  total,
		Page:   q.Page,
		Size:   q.Size,
	})
}

// Get 获取分析报告
// @Summary 获取分析报告
// @Description 获取分析运行及按目录顺序排列的全部判定
// @Tags 对账分析
// @Produce json
// @Param id path string true "分析ID"
// @Success 200 {object} APIResponse{data=models.AnalysisRun}
// @Failure 404 {object} APIResponse
// @Router /analyses/{id} [get]
func (c *AnalysisController) Get(w http.ResponseWriter, r *http.Request) {
	run, err := c.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, "获取分析报告失败", err)
		return
	}
	writeSuccess(w, r, "获取分析报告成功", run)
}

// Evidence 获取规则证据
// @Summary 获取规则证据
// @Description 获取某条规则保存的证据表
// @Tags 对账分析
// @Produce json
// @Param id path string true "分析ID"
// @Param code path string true "规则编码" example(D1_00020)
// @Success 200 {object} APIResponse{data=models.EvidenceRecord}
// @Failure 404 {object} APIResponse
// @Router /analyses/{id}/evidence/{code} [get]
func (c *AnalysisController) Evidence(w http.ResponseWriter, r *http.Request) {
	ev, err := c.service.Evidence(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "code"))
	if err != nil {
		writeServiceError(w, r, "获取规则证据失败", err)
		return
	}
	writeSuccess(w, r, "获取规则证据成功", ev)
}

// Rerun 重新执行分析
// @Summary 重新执行分析
// @Description 使用保存的快照、当前容差与当前脚本规则重新评估，覆盖原有判定
// @Tags 对账分析
// @Produce json
// @Param id path string true "分析ID"
// @Success 200 {object} APIResponse{data=models.AnalysisRun}
// @Failure 404 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Router /analyses/{id}/rerun [post]
func (c *AnalysisController) Rerun(w http.ResponseWriter, r *http.Request) {
	run, err := c.service.Rerun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, "重新执行分析失败", err)
		return
	}
	writeSuccess(w, r, "重新执行分析完成", run)
}

// RunDimension 执行单个维度
// @Summary 执行单个维度
// @Description 对保存的快照只执行一个维度，结果不保存
// @Tags 对账分析
// @Produce json
// @Param id path string true "分析ID"
// @Param code path string true "维度编码" example(D1)
// @Success 200 {object} APIResponse{data=reconcile.Report}
// @Failure 404 {object} APIResponse
// @Router /analyses/{id}/dimensions/{code} [post]
func (c *AnalysisController) RunDimension(w http.ResponseWriter, r *http.Request) {
	report, err := c.service.RunDimension(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "code"))
	if err != nil {
		writeServiceError(w, r, "执行维度失败", err)
		return
	}
	writeSuccess(w, r, "执行维度完成", report)
}
