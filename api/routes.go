/*
 * @module api/routes
 * @description API路由配置模块，负责初始化和配置所有HTTP路由
 * @architecture RESTful API架构
 * @documentReference DESIGN.md
 * @stateFlow 无状态HTTP请求处理
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 * @refs api/controllers
 */

package api

import (
	"siconfi-service/api/controllers"
	apimw "siconfi-service/api/middleware"
	"siconfi-service/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// InitRoute 初始化所有API路由
func InitRoute(r *chi.Mux) {
	// 基础中间件
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// CORS配置
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// 健康检查
	healthController := controllers.NewHealthController(service.DB)
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)

	// 规则目录
	catalogueController := controllers.NewCatalogueController(service.GlobalAnalysisService)
	r.Get("/catalogue", catalogueController.GetCatalogue)

	// 对账分析
	r.Route("/analyses", func(r chi.Router) {
		analysisController := controllers.NewAnalysisController(service.GlobalAnalysisService)
		if service.GlobalSubmitLimiter != nil {
			r.With(apimw.RateLimit(service.GlobalSubmitLimiter, apimw.ClientIP)).Post("/", analysisController.Submit)
		} else {
			r.Post("/", analysisController.Submit)
		}
		r.Get("/", analysisController.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", analysisController.Get)
			r.Get("/evidence/{code}", analysisController.Evidence)
			r.Post("/rerun", analysisController.Rerun)
			r.Post("/dimensions/{code}", analysisController.RunDimension)
		})
	})

	// 脚本规则
	r.Route("/script-rules", func(r chi.Router) {
		scriptRuleController := controllers.NewScriptRuleController(service.GlobalScriptRuleService)
		r.Get("/", scriptRuleController.List)
		r.Post("/", scriptRuleController.Create)
		r.Post("/validate", scriptRuleController.Validate)
		r.Put("/{code}/enabled", scriptRuleController.SetEnabled)
	})

	// 系统配置
	r.Route("/config", func(r chi.Router) {
		configController := controllers.NewConfigController(service.GlobalConfigService)
		r.Get("/", configController.GetAllConfigs)
		r.Get("/{key}", configController.GetConfig)
		r.Put("/{key}", configController.UpdateConfig)
	})
}
