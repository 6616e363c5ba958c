/*
 * @module api/controllers/catalogue_controller
 * @description 规则目录控制器，列出内置维度、脚本规则维度与数据族
 * @architecture MVC架构 - 控制器层
 * @documentReference DESIGN.md
 * @stateFlow HTTP请求 -> 目录描述 -> 统一响应
 * @rules 目录顺序即报告顺序
 * @dependencies github.com/go-chi/render
 * @refs service/siconfi/catalogue.go
 */

package controllers

import (
	"net/http"

	"siconfi-service/service/analysis"
	"siconfi-service/service/reconcile"
	"siconfi-service/service/siconfi"
)

// CatalogueController 规则目录控制器
type CatalogueController struct {
	service *analysis.Service
}

// NewCatalogueController 创建规则目录控制器实例
func NewCatalogueController(s *analysis.Service) *CatalogueController {
	return &CatalogueController{service: s}
}

// CatalogueResponse 规则目录
type CatalogueResponse struct {
	Dimensions []siconfi.DimensionInfo `json:"dimensions"`
	Families   []siconfi.Family        `json:"families"`
}

// GetCatalogue 获取规则目录
// @Summary 获取规则目录
// @Description 按执行顺序列出维度与规则，以及可提交的数据族和各自的预期期间
// @Tags 规则目录
// @Produce json
// @Success 200 {object} APIResponse{data=CatalogueResponse}
// @Failure 500 {object} APIResponse
// @Router /catalogue [get]
func (c *CatalogueController) GetCatalogue(w http.ResponseWriter, r *http.Request) {
	dims, err := c.service.Dimensions(r.Context(), reconcile.Params{})
	if err != nil {
		writeServiceError(w, r, "获取规则目录失败", err)
		return
	}
	writeSuccess(w, r, "获取规则目录成功", &CatalogueResponse{
		Dimensions: siconfi.Describe(dims),
		Families:   siconfi.Families(),
	})
}
