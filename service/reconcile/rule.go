/*
 * @module service/reconcile/rule
 * @description 规则抽象：一个独立的会计恒等式检查，纯函数 (RuleContext) -> (Result, error)
 * @architecture 策略模式 - 每条规则独立实现检查逻辑
 * @documentReference DESIGN.md
 * @stateFlow PENDING -> 门控 -> SKIPPED_NOT_APPLICABLE | RUNNING -> OK | OK_WITH_ROUNDING | ERROR
 * @rules 规则不得有 I/O 或全局状态；空聚合结果的含义必须在规则内显式声明
 * @dependencies siconfi-service/service/tabular
 * @refs engine.go, compare.go, script.go
 */

package reconcile

import (
	"fmt"
	"log/slog"
	"sort"

	"siconfi-service/service/tabular"
)

// Scoring 计分方式
type Scoring int

const (
	// PerPeriod 按期间计分：(期间数-失败期间数)/期间数
	PerPeriod Scoring = iota
	// SingleShot 整体通过/失败：1 或 0
	SingleShot
)

func (s Scoring) String() string {
	if s == SingleShot {
		return "single_shot"
	}
	return "per_period"
}

// ParseScoring 解析计分方式，空字符串视为按期间计分
func ParseScoring(s string) (Scoring, error) {
	switch s {
	case "", "per_period":
		return PerPeriod, nil
	case "single_shot":
		return SingleShot, nil
	}
	return PerPeriod, fmt.Errorf("未知的计分方式: %q", s)
}

// RuleState 单次规则调用的状态
type RuleState string

const (
	StatePending  RuleState = "PENDING"
	StateSkipped  RuleState = "SKIPPED_NOT_APPLICABLE"
	StateRunning  RuleState = "RUNNING"
	StateFinished RuleState = "FINISHED"
)

// CheckFunc 规则检查函数
type CheckFunc func(rc *RuleContext) (Result, error)

// Rule 规则定义
type Rule struct {
	Code        string
	Description string
	Scoring     Scoring
	// Requires 在维度前置条件之外，本规则额外需要的数据族
	Requires []string
	// Tolerance 覆盖引擎默认容差
	Tolerance *Tolerance
	// MinYear/MaxYear 适用年度范围，0 表示不限
	MinYear int
	MaxYear int
	// Entities 适用实体类型，为空表示全部
	Entities []EntityType
	Check    CheckFunc
}

// appliesTo 判断规则是否适用于给定参数
func (r *Rule) appliesTo(p Params) (bool, string) {
	if r.MinYear > 0 && p.FiscalYear < r.MinYear {
		return false, fmt.Sprintf("rule applies from fiscal year %d", r.MinYear)
	}
	if r.MaxYear > 0 && p.FiscalYear > r.MaxYear {
		return false, fmt.Sprintf("rule applies through fiscal year %d", r.MaxYear)
	}
	if len(r.Entities) > 0 {
		for _, e := range r.Entities {
			if e == p.EntityType {
				return true, ""
			}
		}
		return false, fmt.Sprintf("rule does not apply to entity type %s", p.EntityType)
	}
	return true, ""
}

// Result 规则检查的原始结果，由引擎转换为判定
type Result struct {
	Checked       int  // 检查的期间数（SingleShot 通常为 1）
	Failed        int  // 失败的期间数
	Rounding      bool // 存在仅在舍入容差内的差异
	NotApplicable bool
	Note          string
	Evidence      *tabular.Dataset
}

// NotApplicable 构造不适用结果
func NotApplicable(note string) Result {
	return Result{NotApplicable: true, Note: note}
}

// StatusResult 由单一状态构造整体结果
func StatusResult(status Status, note string, evidence *tabular.Dataset) Result {
	switch status {
	case StatusNotApplicable:
		return Result{NotApplicable: true, Note: note, Evidence: evidence}
	case StatusError:
		return Result{Checked: 1, Failed: 1, Note: note, Evidence: evidence}
	case StatusOKWithRounding:
		return Result{Checked: 1, Rounding: true, Note: note, Evidence: evidence}
	}
	return Result{Checked: 1, Note: note, Evidence: evidence}
}

// RuleContext 规则执行上下文，只读
type RuleContext struct {
	ac        *AnalysisContext
	tolerance Tolerance
	logger    *slog.Logger
}

// NewRuleContext 构造规则上下文，供单独测试规则使用
func NewRuleContext(ac *AnalysisContext, tolerance Tolerance) *RuleContext {
	return &RuleContext{ac: ac, tolerance: tolerance, logger: slog.Default()}
}

// Dataset 返回数据集副本
func (c *RuleContext) Dataset(name string) (*tabular.Dataset, error) {
	return c.ac.Registry.Dataset(name)
}

// Availability 数据族可用性
func (c *RuleContext) Availability(family string) AvailabilityInfo {
	info, _ := c.ac.Registry.Availability(family)
	return info
}

// Periods 数据族已交付的期间（升序）
func (c *RuleContext) Periods(family string) []int {
	return c.Availability(family).PeriodsPresent
}

// Params 标量参数
func (c *RuleContext) Params() Params {
	return c.ac.Params
}

// Tolerance 本规则生效的容差
func (c *RuleContext) Tolerance() Tolerance {
	return c.tolerance
}

// Logger 规则日志
func (c *RuleContext) Logger() *slog.Logger {
	return c.logger
}

// Close 主容差下是否相等
func (c *RuleContext) Close(a, b interface{}) bool {
	return tabular.NumericClose(a, b, c.tolerance.Primary)
}

// Classify 按本规则容差对差额分级
func (c *RuleContext) Classify(diff float64) Status {
	return c.tolerance.Classify(diff)
}

// PerPeriod 逐期间检查。fn 返回 NOT_APPLICABLE 的期间不计入分母。
func (c *RuleContext) PerPeriod(periods []int, fn func(period int) (Status, error)) (Result, error) {
	ps := sortedUnique(periods)
	var res Result
	var failed []int
	for _, p := range ps {
		status, err := fn(p)
		if err != nil {
			return Result{}, err
		}
		switch status {
		case StatusNotApplicable:
			continue
		case StatusError:
			res.Failed++
			failed = append(failed, p)
		case StatusOKWithRounding:
			res.Rounding = true
		}
		res.Checked++
	}
	if len(failed) > 0 {
		res.Note = fmt.Sprintf("divergence in %d of %d periods: %v", len(failed), res.Checked, failed)
	}
	return res, nil
}

// DistinctPeriods 读取数据集中某一期间列的全部取值（升序）
func DistinctPeriods(ds *tabular.Dataset, col string) ([]int, error) {
	values, err := ds.Distinct(col)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(values))
	for _, v := range values {
		if tabular.NullValue(v) {
			continue
		}
		out = append(out, tabular.Int(v))
	}
	sort.Ints(out)
	return sortedUnique(out), nil
}
