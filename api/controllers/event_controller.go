/*
 * @module api/controllers/event_controller
 * @description 分析请求订阅处理：从 dapr pubsub 接收分析请求并提交给分析服务
 * @architecture 事件驱动 - 订阅者
 * @documentReference DESIGN.md
 * @stateFlow pubsub 消息 -> 解码 -> 提交分析 -> 确认/重试
 * @rules 无效请求直接丢弃不重试；实体正在分析时要求重投
 * @dependencies github.com/dapr/go-sdk/service/common
 * @refs main.go, service/analysis
 */

package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"siconfi-service/service/analysis"

	"github.com/dapr/go-sdk/service/common"
)

// EventController 分析请求订阅处理器
type EventController struct {
	service *analysis.Service
}

// NewEventController 创建事件控制器实例
func NewEventController(s *analysis.Service) *EventController {
	return &EventController{service: s}
}

// HandleAnalysisRequest 处理 pubsub 投递的分析请求
func (c *EventController) HandleAnalysisRequest(ctx context.Context, e *common.TopicEvent) (retry bool, err error) {
	var req analysis.AnalysisRequest
	if err := json.Unmarshal(eventPayload(e), &req); err != nil {
		slog.Error("分析请求消息解析失败", "topic", e.Topic, "id", e.ID, "error", err)
		return false, err
	}

	run, err := c.service.Submit(ctx, &req)
	switch {
	case errors.Is(err, analysis.ErrInvalidRequest):
		slog.Warn("丢弃无效的分析请求", "id", e.ID, "entity_code", req.EntityCode, "error", err)
		return false, err
	case err != nil:
		slog.Warn("分析请求处理失败，等待重投", "id", e.ID, "entity_code", req.EntityCode, "error", err)
		return true, err
	}
	slog.Info("分析请求处理完成", "id", e.ID, "run_id", run.ID, "status", run.Status)
	return false, nil
}

// eventPayload 优先使用原始数据，云事件中已解析的 data 重新序列化
func eventPayload(e *common.TopicEvent) []byte {
	if len(e.RawData) > 0 {
		return e.RawData
	}
	switch d := e.Data.(type) {
	case []byte:
		return d
	case string:
		return []byte(d)
	}
	b, _ := json.Marshal(e.Data)
	return b
}
