/*
 * @module service/reconcile/verdict
 * @description 规则判定结果：状态、得分、说明和证据
 * @architecture 值对象
 * @documentReference DESIGN.md
 * @stateFlow 规则执行 -> 结果 -> 判定 -> 报告行
 * @rules 得分为空当且仅当状态为 NOT_APPLICABLE；OK_WITH_ROUNDING 视为通过但需审计
 * @dependencies siconfi-service/service/tabular
 * @refs engine.go, report.go
 */

package reconcile

import "siconfi-service/service/tabular"

// Status 判定状态
type Status string

const (
	StatusOK             Status = "OK"
	StatusError          Status = "ERROR"
	StatusNotApplicable  Status = "NOT_APPLICABLE"
	StatusOKWithRounding Status = "OK_WITH_ROUNDING"
)

// Passing OK 与 OK_WITH_ROUNDING 视为通过
func (s Status) Passing() bool {
	return s == StatusOK || s == StatusOKWithRounding
}

// Valid 是否为已知状态
func (s Status) Valid() bool {
	switch s {
	case StatusOK, StatusError, StatusNotApplicable, StatusOKWithRounding:
		return true
	}
	return false
}

func (s Status) severity() int {
	switch s {
	case StatusOK:
		return 0
	case StatusOKWithRounding:
		return 1
	case StatusError:
		return 2
	}
	return -1
}

// Worse 返回两个状态中更严重的一个，NOT_APPLICABLE 不参与比较
func Worse(a, b Status) Status {
	if a.severity() >= b.severity() {
		return a
	}
	return b
}

// Verdict 单条规则的判定
type Verdict struct {
	Dimension   string   `json:"dimension"`
	Code        string   `json:"dimension_code"`
	Status      Status   `json:"status"`
	Score       *float64 `json:"score"`
	Description string   `json:"description"`
	Note        string   `json:"note"`
}

// Scored 是否计入得分（非 NOT_APPLICABLE）
func (v Verdict) Scored() bool {
	return v.Score != nil
}

// Outcome 判定及其证据
type Outcome struct {
	Verdict  Verdict
	Evidence *tabular.Dataset
}

func scorePtr(f float64) *float64 {
	return &f
}

// newVerdict 构造判定并保证得分与状态的不变式
func newVerdict(dim Dimension, rule *Rule, status Status, score float64, note string) Verdict {
	v := Verdict{
		Dimension:   dim.Code,
		Code:        rule.Code,
		Status:      status,
		Description: rule.Description,
		Note:        note,
	}
	if status != StatusNotApplicable {
		v.Score = scorePtr(clamp01(score))
	}
	return v
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
