/*
 * @module service/reconcile/gate
 * @description 可用性门控：维度级默认前置条件 + 规则级额外前置条件的两级判断
 * @architecture 分层架构 - 执行前置检查
 * @documentReference DESIGN.md
 * @stateFlow 读取可用性 -> 维度判断 -> 规则判断 -> 执行/跳过
 * @rules 任一前置数据族完全不可用则整体跳过；部分交付仍执行，由规则按已交付期间计算分母
 * @dependencies fmt, strings
 * @refs registry.go, engine.go
 */

package reconcile

import (
	"fmt"
	"strings"
)

// Dimension 维度：共享前置条件的一组有序规则
type Dimension struct {
	Code     string
	Name     string
	Requires []string
	Rules    []Rule
}

// GateDecision 门控结果
type GateDecision struct {
	Run     bool
	Missing []string // 完全不可用的数据族
	Partial []string // 部分交付的数据族
	Note    string
}

// Gate 可用性门控
type Gate struct {
	reg *Registry
}

// NewGate 创建门控
func NewGate(reg *Registry) Gate {
	return Gate{reg: reg}
}

// Check 检查一组数据族
func (g Gate) Check(families []string) GateDecision {
	var d GateDecision
	for _, f := range families {
		info, ok := g.reg.Availability(f)
		switch {
		case !ok || !info.Available:
			d.Missing = append(d.Missing, f)
		case !info.Complete:
			d.Partial = append(d.Partial, fmt.Sprintf("%s (%d/%d periods)", f, len(info.PeriodsPresent), len(info.Expected)))
		}
	}
	d.Run = len(d.Missing) == 0
	if !d.Run {
		d.Note = "prerequisite dataset unavailable: " + strings.Join(d.Missing, ", ")
	} else if len(d.Partial) > 0 {
		d.Note = "partial delivery: " + strings.Join(d.Partial, ", ")
	}
	return d
}

// Dimension 维度级判断
func (g Gate) Dimension(dim Dimension) GateDecision {
	return g.Check(dim.Requires)
}

// Rule 规则级判断：先看适用范围，再检查规则额外要求的数据族
func (g Gate) Rule(dim Dimension, rule *Rule, p Params) GateDecision {
	if ok, why := rule.appliesTo(p); !ok {
		return GateDecision{Run: false, Note: why}
	}
	inDim := make(map[string]bool, len(dim.Requires))
	for _, f := range dim.Requires {
		inDim[f] = true
	}
	var extra []string
	for _, f := range rule.Requires {
		if !inDim[f] {
			extra = append(extra, f)
		}
	}
	return g.Check(extra)
}
