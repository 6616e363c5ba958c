package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"siconfi-service/service/analysis"
	"siconfi-service/service/config"

	"github.com/go-chi/render"
	"gorm.io/gorm"
)

// APIResponse 统一API响应结构
type APIResponse struct {
	Status int         `json:"status" example:"0"`
	Msg    string      `json:"msg" example:"操作成功"`
	Data   interface{} `json:"data,omitempty"`
}

// PaginatedResponse 分页响应结构
type PaginatedResponse struct {
	Status int         `json:"status" example:"0"`
	Msg    string      `json:"msg" example:"操作成功"`
	Data   interface{} `json:"data"`
	Total  int64       `json:"total" example:"100"`
	Page   int         `json:"page" example:"1"`
	Size   int         `json:"size" example:"10"`
}

func writeSuccess(w http.ResponseWriter, r *http.Request, msg string, data interface{}) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, &APIResponse{Status: 0, Msg: msg, Data: data})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, &APIResponse{Status: 1, Msg: msg})
}

// writeServiceError 按业务错误类型选择 HTTP 状态码
func writeServiceError(w http.ResponseWriter, r *http.Request, prefix string, err error) {
	writeError(w, r, errorStatus(err), prefix+": "+err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, analysis.ErrInvalidRequest), errors.Is(err, config.ErrInvalidConfigValue):
		return http.StatusBadRequest
	case errors.Is(err, analysis.ErrRunNotFound),
		errors.Is(err, analysis.ErrEvidenceNotFound),
		errors.Is(err, analysis.ErrDimensionNotFound),
		errors.Is(err, config.ErrUnknownConfig),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, analysis.ErrLockHeld), errors.Is(err, analysis.ErrScriptRuleExists):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
