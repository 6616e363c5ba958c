/*
 * @module service/reconcile/engine
 * @description 对账规则引擎：按维度顺序执行规则，门控、异常隔离、计分与报告组装
 * @architecture 管道模式 - 维度 -> 门控 -> 规则 -> 判定 -> 报告
 * @documentReference DESIGN.md
 * @stateFlow 封存注册表 -> 逐维度门控 -> 逐规则执行 -> 组装报告
 * @rules 单线程顺序执行；只在维度边界检查取消；每条声明的规则在报告中恰好一行
 * @dependencies log/slog, siconfi-service/service/tabular
 * @refs gate.go, rule.go, scorer.go, report.go
 */

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"siconfi-service/service/tabular"
)

// Observer 规则执行观察者，用于指标采集
type Observer interface {
	RuleFinished(v Verdict, state RuleState, elapsed time.Duration)
}

// Option 引擎配置项
type Option func(*Engine)

// WithTolerance 设置默认容差
func WithTolerance(t Tolerance) Option {
	return func(e *Engine) { e.tolerance = t }
}

// WithLogger 设置日志记录器
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver 设置执行观察者
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithRoundingAsPass 总分计算时 OK_WITH_ROUNDING 是否计为通过
func WithRoundingAsPass(b bool) Option {
	return func(e *Engine) { e.scorer.RoundingAsPass = b }
}

// Engine 对账规则引擎
type Engine struct {
	tolerance Tolerance
	logger    *slog.Logger
	observer  Observer
	scorer    Scorer
}

// NewEngine 创建引擎实例
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		tolerance: DefaultTolerance(),
		logger:    slog.Default(),
		scorer:    Scorer{RoundingAsPass: true},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scorer 引擎使用的计分器
func (e *Engine) Scorer() Scorer {
	return e.scorer
}

// Validate 校验维度定义：编码非空且全局唯一，规则必须有检查函数
func Validate(dims []Dimension) error {
	seen := make(map[string]string)
	for _, d := range dims {
		if d.Code == "" {
			return errors.New("维度编码不能为空")
		}
		for _, r := range d.Rules {
			if r.Code == "" {
				return fmt.Errorf("维度 %s 存在编码为空的规则", d.Code)
			}
			if prev, ok := seen[r.Code]; ok {
				return fmt.Errorf("规则编码重复: %s（维度 %s 与 %s）", r.Code, prev, d.Code)
			}
			seen[r.Code] = d.Code
		}
	}
	return nil
}

// RunDimension 执行单个维度，返回与规则声明顺序一致的结果
func (e *Engine) RunDimension(ctx context.Context, dim Dimension, ac *AnalysisContext) []Outcome {
	ac.Registry.Seal()
	gate := NewGate(ac.Registry)
	decision := gate.Dimension(dim)

	logger := e.logger.With("dimension", dim.Code)
	if !decision.Run {
		logger.InfoContext(ctx, "维度前置数据不可用，全部规则判定为不适用", "missing", decision.Missing)
	} else if len(decision.Partial) > 0 {
		logger.InfoContext(ctx, "维度前置数据部分交付，按已交付期间计分", "partial", decision.Partial)
	}

	outcomes := make([]Outcome, 0, len(dim.Rules))
	for i := range dim.Rules {
		rule := &dim.Rules[i]
		if !decision.Run {
			outcomes = append(outcomes, e.skip(dim, rule, decision.Note))
			continue
		}
		if rd := gate.Rule(dim, rule, ac.Params); !rd.Run {
			outcomes = append(outcomes, e.skip(dim, rule, rd.Note))
			continue
		}
		out := e.execute(dim, rule, ac)
		if decision.Note != "" && out.Verdict.Status != StatusNotApplicable {
			out.Verdict.Note = joinNotes(out.Verdict.Note, decision.Note)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// RunAll 顺序执行所有维度并组装报告。取消只在维度边界生效，此时返回已完成部分的报告和 ctx 错误。
func (e *Engine) RunAll(ctx context.Context, dims []Dimension, ac *AnalysisContext) (*Report, error) {
	if err := Validate(dims); err != nil {
		return nil, err
	}
	start := time.Now()
	var outcomes []Outcome
	for _, d := range dims {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("分析被取消", "next_dimension", d.Code, "error", err)
			return Assemble(outcomes, e.scorer), fmt.Errorf("分析在维度 %s 之前被取消: %w", d.Code, err)
		}
		outcomes = append(outcomes, e.RunDimension(ctx, d, ac)...)
	}
	report := Assemble(outcomes, e.scorer)
	e.logger.Info("对账分析完成",
		"rules", len(report.Rows),
		"fiscal_year", ac.Params.FiscalYear,
		"entity_type", ac.Params.EntityType,
		"duration_ms", time.Since(start).Milliseconds())
	return report, nil
}

func (e *Engine) skip(dim Dimension, rule *Rule, note string) Outcome {
	v := newVerdict(dim, rule, StatusNotApplicable, 0, note)
	e.finish(v, StateSkipped, 0)
	return Outcome{Verdict: v}
}

// execute 在规则边界执行单条规则：错误和 panic 都转换为 ERROR 判定，不影响其他规则
func (e *Engine) execute(dim Dimension, rule *Rule, ac *AnalysisContext) (out Outcome) {
	start := time.Now()
	tol := e.tolerance
	if rule.Tolerance != nil {
		tol = *rule.Tolerance
	}
	rc := &RuleContext{
		ac:        ac,
		tolerance: tol,
		logger:    e.logger.With("dimension", dim.Code, "rule", rule.Code),
	}

	defer func() {
		if p := recover(); p != nil {
			rc.logger.Error("规则执行发生panic", "panic", p, "stack", string(debug.Stack()))
			out = Outcome{Verdict: newVerdict(dim, rule, StatusError, 0, fmt.Sprintf("unexpected error: %v", p))}
		}
		e.finish(out.Verdict, StateFinished, time.Since(start))
	}()

	rc.logger.Debug("规则开始执行", "state", StateRunning)
	if rule.Check == nil {
		return Outcome{Verdict: newVerdict(dim, rule, StatusError, 0, "rule has no check function")}
	}
	res, err := rule.Check(rc)
	if err != nil {
		rc.logger.Warn("规则执行失败", "error", err)
		return Outcome{Verdict: newVerdict(dim, rule, StatusError, 0, ErrorNote(err))}
	}
	return Outcome{Verdict: verdictFromResult(dim, rule, res), Evidence: res.Evidence}
}

func (e *Engine) finish(v Verdict, state RuleState, elapsed time.Duration) {
	if e.observer != nil {
		e.observer.RuleFinished(v, state, elapsed)
	}
}

// verdictFromResult 将规则结果转换为判定
func verdictFromResult(dim Dimension, rule *Rule, res Result) Verdict {
	if res.NotApplicable {
		return newVerdict(dim, rule, StatusNotApplicable, 0, res.Note)
	}
	if res.Checked <= 0 {
		return newVerdict(dim, rule, StatusNotApplicable, 0, joinNotes(res.Note, "no period available to evaluate"))
	}

	failed := res.Failed
	if failed < 0 || failed > res.Checked {
		note := fmt.Sprintf("rule reported %d failures over %d periods", res.Failed, res.Checked)
		return newVerdict(dim, rule, StatusError, 0, joinNotes(note, res.Note))
	}

	var score float64
	switch rule.Scoring {
	case SingleShot:
		if failed == 0 {
			score = 1
		}
	default:
		score = tabular.Round(float64(res.Checked-failed)/float64(res.Checked), 2)
	}

	status := StatusOK
	switch {
	case failed > 0:
		status = StatusError
	case res.Rounding:
		status = StatusOKWithRounding
	}
	return newVerdict(dim, rule, status, score, res.Note)
}

// ErrorNote 将规则错误转换为报告中的诊断说明
func ErrorNote(err error) string {
	var se *tabular.SchemaError
	if errors.As(err, &se) {
		return fmt.Sprintf("schema error: missing column %s (%s on %s)", se.Column, se.Op, se.Dataset)
	}
	var ce *tabular.CardinalityError
	if errors.As(err, &ce) {
		return fmt.Sprintf("cardinality error: expected %d row(s) in %s, got %d", ce.Want, ce.Dataset, ce.Got)
	}
	if errors.Is(err, ErrDatasetMissing) {
		return "dataset missing: " + err.Error()
	}
	return "unexpected error: " + err.Error()
}

func joinNotes(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "; " + b
}
