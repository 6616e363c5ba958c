/*
 * @module service/siconfi/catalogue
 * @description 内置维度目录：D1 数据质量、D2 决算、D3 RREO、D4 RGF
 * @architecture 配置数据 - 规则即数据，引擎不理解会计语义
 * @documentReference DESIGN.md
 * @stateFlow 参数 -> 维度列表（声明顺序）
 * @rules 规则编码全局唯一；报告顺序即此处的声明顺序
 * @dependencies siconfi-service/service/reconcile
 * @refs quality.go, cross.go, families.go
 */

package siconfi

import "siconfi-service/service/reconcile"

// Catalogue 按声明顺序返回内置维度。参数只影响规则适用范围的判断，维度结构保持稳定。
func Catalogue(_ reconcile.Params) []reconcile.Dimension {
	return []reconcile.Dimension{
		quality(),
		annualStatement(),
		budgetExecution(),
		fiscalManagement(),
	}
}

// RuleInfo 规则描述，用于目录接口
type RuleInfo struct {
	Code        string   `json:"code"`
	Description string   `json:"description"`
	Scoring     string   `json:"scoring"`
	Requires    []string `json:"requires,omitempty"`
	MinYear     int      `json:"min_year,omitempty"`
	MaxYear     int      `json:"max_year,omitempty"`
}

// DimensionInfo 维度描述
type DimensionInfo struct {
	Code     string     `json:"code"`
	Name     string     `json:"name"`
	Requires []string   `json:"requires"`
	Rules    []RuleInfo `json:"rules"`
}

// Describe 生成维度目录描述
func Describe(dims []reconcile.Dimension) []DimensionInfo {
	out := make([]DimensionInfo, 0, len(dims))
	for _, d := range dims {
		info := DimensionInfo{Code: d.Code, Name: d.Name, Requires: d.Requires}
		for _, r := range d.Rules {
			info.Rules = append(info.Rules, RuleInfo{
				Code:        r.Code,
				Description: r.Description,
				Scoring:     r.Scoring.String(),
				Requires:    r.Requires,
				MinYear:     r.MinYear,
				MaxYear:     r.MaxYear,
			})
		}
		out = append(out, info)
	}
	return out
}
