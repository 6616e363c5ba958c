package reconcile

import (
	"fmt"
	"math"
	"strings"

	"siconfi-service/service/tabular"
)

// EntityType 实体类型，州或市
type EntityType string

const (
	EntityState        EntityType = "STATE"
	EntityMunicipality EntityType = "MUNICIPALITY"
)

// ParseEntityType 解析实体类型，兼容 SICONFI 的 E/M 简写
func ParseEntityType(s string) (EntityType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STATE", "E", "ESTADO", "UF":
		return EntityState, nil
	case "MUNICIPALITY", "M", "MUNICIPIO", "MUNICÍPIO":
		return EntityMunicipality, nil
	}
	return "", fmt.Errorf("未知的实体类型: %q", s)
}

// Params 规则可见的标量参数
type Params struct {
	FiscalYear      int        `json:"fiscal_year"`
	EntityType      EntityType `json:"entity_type"`
	ReferencePeriod int        `json:"reference_period,omitempty"` // 0 表示未指定
}

// Tolerance 数值容差策略
type Tolerance struct {
	Primary  float64 `json:"primary"`  // 差额不超过该值视为相等
	Rounding float64 `json:"rounding"` // 差额不超过该值降级为 OK_WITH_ROUNDING
}

// 默认容差
const (
	DefaultPrimaryTolerance  = 0.01
	DefaultRoundingTolerance = 1.0
)

// DefaultTolerance 默认容差策略
func DefaultTolerance() Tolerance {
	return Tolerance{Primary: DefaultPrimaryTolerance, Rounding: DefaultRoundingTolerance}
}

// Classify 按容差对差额分级
func (t Tolerance) Classify(diff float64) Status {
	if math.IsNaN(diff) {
		return StatusError
	}
	if tabular.NumericClose(diff, 0, t.Primary) {
		return StatusOK
	}
	if t.Rounding > t.Primary && tabular.NumericClose(diff, 0, t.Rounding) {
		return StatusOKWithRounding
	}
	return StatusError
}
