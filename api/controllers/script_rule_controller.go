/*
 * @module api/controllers/script_rule_controller
 * @description 脚本规则控制器，管理 DX 维度中的自定义规则
 * @architecture MVC架构 - 控制器层
 * @documentReference DESIGN.md
 * @stateFlow HTTP请求 -> 编译校验 -> 保存 -> 统一响应
 * @rules 规则保存前必须编译通过；编码不可与内置规则重复
 * @dependencies github.com/go-chi/chi/v5
 * @refs service/analysis/script_rule_service.go
 */

package controllers

import (
	"encoding/json"
	"net/http"

	"siconfi-service/service/analysis"
	"siconfi-service/service/models"

	"github.com/go-chi/chi/v5"
)

// ScriptRuleController 脚本规则控制器
type ScriptRuleController struct {
	service *analysis.ScriptRuleService
}

// NewScriptRuleController 创建脚本规则控制器实例
func NewScriptRuleController(s *analysis.ScriptRuleService) *ScriptRuleController {
	return &ScriptRuleController{service: s}
}

// ValidateScriptRequest 脚本校验请求
type ValidateScriptRequest struct {
	Source string `json:"source"`
}

// SetEnabledRequest 启停请求
type SetEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// List 获取脚本规则
// @Summary 获取脚本规则列表
// @Tags 脚本规则
// @Produce json
// @Success 200 {object} APIResponse{data=[]models.ScriptRule}
// @Router /script-rules [get]
func (c *ScriptRuleController) List(w http.ResponseWriter, r *http.Request) {
	rules, err := c.service.List(r.Context())
	if err != nil {
		writeServiceError(w, r, "获取脚本规则失败", err)
		return
	}
	if rules == nil {
		rules = []models.ScriptRule{}
	}
	writeSuccess(w, r, "获取脚本规则成功", rules)
}

// Create 创建脚本规则
// @Summary 创建脚本规则
// @Description 脚本须为 package main 并定义 Check(data, params) (passed, total int, note string)
// @Tags 脚本规则
// @Accept json
// @Produce json
// @Param rule body analysis.ScriptRuleRequest true "脚本规则"
// @Success 200 {object} APIResponse{data=models.ScriptRule}
// @Failure 400 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Router /script-rules [post]
func (c *ScriptRuleController) Create(w http.ResponseWriter, r *http.Request) {
	var req analysis.ScriptRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "请求参数解析失败: "+err.Error())
		return
	}
	rule, err := c.service.Create(r.Context(), &req)
	if err != nil {
		writeServiceError(w, r, "创建脚本规则失败", err)
		return
	}
	writeSuccess(w, r, "脚本规则创建成功", rule)
}

// Validate 校验脚本
// @Summary 校验脚本
// @Description 只编译，不保存
// @Tags 脚本规则
// @Accept json
// @Produce json
// @Param request body ValidateScriptRequest true "脚本"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Router /script-rules/validate [post]
func (c *ScriptRuleController) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateScriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "请求参数解析失败: "+err.Error())
		return
	}
	if err := c.service.Validate(req.Source); err != nil {
		writeServiceError(w, r, "脚本校验失败", err)
		return
	}
	writeSuccess(w, r, "脚本校验通过", nil)
}

// SetEnabled 启用或停用脚本规则
// @Summary 启用或停用脚本规则
// @Tags 脚本规则
// @Accept json
// @Produce json
// @Param code path string true "规则编码"
// @Param request body SetEnabledRequest true "是否启用"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /script-rules/{code}/enabled [put]
func (c *ScriptRuleController) SetEnabled(w http.ResponseWriter, r *http.Request) {
	var req SetEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "请求参数解析失败: "+err.Error())
		return
	}
	if err := c.service.SetEnabled(r.Context(), chi.URLParam(r, "code"), req.Enabled); err != nil {
		writeServiceError(w, r, "更新脚本规则失败", err)
		return
	}
	writeSuccess(w, r, "脚本规则已更新", nil)
}
