package main

import (
	"log"
	"net/http"
	"strconv"

	"siconfi-service/api"
	"siconfi-service/api/controllers"
	_ "siconfi-service/docs"
	"siconfi-service/service"

	"github.com/dapr/go-sdk/service/common"
	daprd "github.com/dapr/go-sdk/service/http"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title SICONFI 对账服务 API
// @version 1.0
// @description 基于规则目录的 SICONFI 财政数据一致性分析服务，按维度输出判定、证据与得分
// @BasePath /swagger/siconfi-service
func main() {
	cfg := service.Config
	mux := chi.NewRouter()

	// 如果有BASE_CONTEXT，则在该路径下挂载所有路由
	if cfg.BaseContext != "" {
		mux.Route(cfg.BaseContext, func(r chi.Router) {
			// 创建子路由器并初始化路由
			subMux := r.(*chi.Mux)
			api.InitRoute(subMux)
			r.Handle("/metrics", promhttp.Handler())
			r.Handle("/swagger*", httpSwagger.WrapHandler)
		})
	} else {
		api.InitRoute(mux)
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/swagger*", httpSwagger.WrapHandler)
	}

	s := daprd.NewServiceWithMux(":"+strconv.Itoa(cfg.ListenPort), mux)

	eventController := controllers.NewEventController(service.GlobalAnalysisService)
	sub := &common.Subscription{
		PubsubName: cfg.PubSub.Name,
		Topic:      cfg.PubSub.Topic,
		Route:      cfg.PubSub.Route,
	}
	if err := s.AddTopicEventHandler(sub, eventController.HandleAnalysisRequest); err != nil {
		log.Fatalf("error adding topic subscription: %v", err)
	}

	defer service.Shutdown()
	if err := s.Start(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("error: %v", err)
	}
}
