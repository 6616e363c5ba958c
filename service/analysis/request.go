package analysis

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"siconfi-service/service/distributed_lock"
	"siconfi-service/service/reconcile"
	"siconfi-service/service/siconfi"
)

var (
	// ErrRunNotFound 分析运行不存在
	ErrRunNotFound = errors.New("分析运行不存在")
	// ErrEvidenceNotFound 规则没有证据
	ErrEvidenceNotFound = errors.New("规则证据不存在")
	// ErrDimensionNotFound 维度不存在
	ErrDimensionNotFound = errors.New("维度不存在")
	// ErrInvalidRequest 请求参数无效
	ErrInvalidRequest = errors.New("请求参数无效")
	// ErrLockHeld 同一实体同一年度的分析正在执行
	ErrLockHeld = distributed_lock.ErrLockHeld
)

// DeliveriesSnapshot 交付记录快照使用的数据族名称
const DeliveriesSnapshot = "entregas"

// AnalysisRequest 提交分析的请求
type AnalysisRequest struct {
	EntityCode      string `json:"entity_code" example:"3550308"`
	EntityName      string `json:"entity_name,omitempty" example:"São Paulo"`
	EntityType      string `json:"entity_type" example:"MUNICIPALITY"`
	FiscalYear      int    `json:"fiscal_year" example:"2024"`
	ReferencePeriod int    `json:"reference_period,omitempty"`
	// Deliveries 交付记录（extrato de entregas）
	Deliveries []map[string]interface{} `json:"deliveries"`
	// Datasets 按数据族提供的原始记录
	Datasets map[string][]map[string]interface{} `json:"datasets"`
	// Tolerance 覆盖默认容差
	Tolerance *reconcile.Tolerance `json:"tolerance,omitempty"`
	CreatedBy string               `json:"created_by,omitempty"`
}

// Params 校验请求并生成规则参数
func (r *AnalysisRequest) Params() (reconcile.Params, error) {
	if strings.TrimSpace(r.EntityCode) == "" {
		return reconcile.Params{}, fmt.Errorf("%w: entity_code 不能为空", ErrInvalidRequest)
	}
	if r.FiscalYear < 2000 || r.FiscalYear > 2100 {
		return reconcile.Params{}, fmt.Errorf("%w: fiscal_year 超出范围: %d", ErrInvalidRequest, r.FiscalYear)
	}
	et, err := reconcile.ParseEntityType(r.EntityType)
	if err != nil {
		return reconcile.Params{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	for family := range r.Datasets {
		if _, ok := siconfi.FamilyByCode(family); !ok {
			return reconcile.Params{}, fmt.Errorf("%w: 未知的数据族 %s", ErrInvalidRequest, family)
		}
	}
	if t := r.Tolerance; t != nil && (t.Primary < 0 || t.Rounding < 0) {
		return reconcile.Params{}, fmt.Errorf("%w: 容差不能为负数", ErrInvalidRequest)
	}
	return reconcile.Params{
		FiscalYear:      r.FiscalYear,
		EntityType:      et,
		ReferencePeriod: r.ReferencePeriod,
	}, nil
}

// families 请求中的数据族，按名称排序
func (r *AnalysisRequest) families() []string {
	out := make([]string, 0, len(r.Datasets))
	for f := range r.Datasets {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// ListQuery 分析列表查询条件
type ListQuery struct {
	Page       int
	Size       int
	EntityCode string
	FiscalYear int
	Status     string
}

func (q *ListQuery) normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Size < 1 {
		q.Size = 20
	}
	if q.Size > 200 {
		q.Size = 200
	}
}
