/*
 * @module api/controllers/config_controller
 * @description 配置管理控制器，提供运行期配置（保存天数、容差）的HTTP接口
 * @architecture RESTful API架构
 * @documentReference DESIGN.md
 * @stateFlow HTTP请求 -> 控制器 -> 配置服务 -> 数据库
 * @rules 遵循RESTful API设计规范
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs service/config
 */

package controllers

import (
	"net/http"

	"siconfi-service/service/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// ConfigController 配置控制器
type ConfigController struct {
	service *config.ConfigService
}

// NewConfigController 创建配置控制器实例
func NewConfigController(s *config.ConfigService) *ConfigController {
	return &ConfigController{service: s}
}

// ConfigValue 单个配置值
type ConfigValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GetAllConfigs 获取所有配置
// @Summary 获取所有系统配置
// @Description 获取所有可调整的配置项，未设置的返回环境变量默认值
// @Tags 系统配置
// @Produce json
// @Success 200 {object} APIResponse{data=[]models.SystemConfigItem}
// @Router /config [get]
func (c *ConfigController) GetAllConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := c.service.GetAllSystemConfigs()
	if err != nil {
		writeServiceError(w, r, "获取配置失败", err)
		return
	}
	writeSuccess(w, r, "获取配置成功", configs)
}

// GetConfig 获取单个配置
// @Summary 获取单个配置
// @Tags 系统配置
// @Produce json
// @Param key path string true "配置键"
// @Success 200 {object} APIResponse{data=ConfigValue}
// @Failure 404 {object} APIResponse
// @Router /config/{key} [get]
func (c *ConfigController) GetConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, err := c.service.GetSystemConfig(key)
	if err != nil {
		writeServiceError(w, r, "获取配置失败", err)
		return
	}
	writeSuccess(w, r, "获取配置成功", &ConfigValue{Key: key, Value: value})
}

// UpdateConfigRequest 更新配置请求
type UpdateConfigRequest struct {
	Value string `json:"value"`
}

// UpdateConfig 更新配置
// @Summary 更新配置
// @Description 更新指定键的配置值，下一次分析开始生效
// @Tags 系统配置
// @Accept json
// @Produce json
// @Param key path string true "配置键"
// @Param request body UpdateConfigRequest true "更新配置请求"
// @Success 200 {object} APIResponse{data=ConfigValue}
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /config/{key} [put]
func (c *ConfigController) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	var req UpdateConfigRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "请求参数错误: "+err.Error())
		return
	}

	if err := c.service.SetSystemConfig(key, req.Value); err != nil {
		writeServiceError(w, r, "更新配置失败", err)
		return
	}
	writeSuccess(w, r, "更新配置成功", &ConfigValue{Key: key, Value: req.Value})
}
