/*
 * @module service/reconcile/compare
 * @description 声明式对比规则：两侧数据集过滤、分组求和、外连接后按期间分级
 * @architecture 模板方法 - 对比规则共享同一执行骨架
 * @documentReference DESIGN.md
 * @stateFlow 读取两侧 -> 过滤 -> 分组求和 -> 外连接 -> 逐期间分级 -> 证据
 * @rules 单侧存在的行按另一侧为零处理，超出容差即为差异；两侧均无数据的期间不计入分母
 * @dependencies siconfi-service/service/tabular
 * @refs rule.go
 */

package reconcile

import (
	"fmt"

	"siconfi-service/service/tabular"
)

// 对比结果列
const (
	ColLeftValue  = "left_value"
	ColRightValue = "right_value"
	ColDiff       = "diff"
)

// Side 对比的一侧
type Side struct {
	Dataset string
	Filter  tabular.Predicate
	// Keys 本侧的分组列，按位置对应 Comparison.On；为空时直接使用 On
	Keys  []string
	Value string
	// Scale 取值乘数，0 视为 1；用于符号翻转或单位换算
	Scale float64
	// Derive 过滤前追加的派生列，各派生函数只能读取原始列
	Derive map[string]func(tabular.Row) interface{}
}

// Comparison 两侧对比规则
type Comparison struct {
	Left  Side
	Right Side
	On    []string
	// PeriodColumn 为空时整体计一次分
	PeriodColumn string
	// Family 非空时期间取该数据族的已交付期间，否则取连接结果中出现的期间
	Family string
	// Periods 非空时优先于 Family，用于两侧交付期间需要对齐的场景
	Periods func(rc *RuleContext) []int
	// EvidenceAll 为 true 时证据包含全部行，否则只包含非 OK 行
	EvidenceAll bool
}

// Check 实现 CheckFunc
func (c Comparison) Check(rc *RuleContext) (Result, error) {
	if len(c.On) == 0 {
		return Result{}, fmt.Errorf("对比规则缺少连接键")
	}
	left, err := c.prepare(rc, c.Left, ColLeftValue)
	if err != nil {
		return Result{}, err
	}
	right, err := c.prepare(rc, c.Right, ColRightValue)
	if err != nil {
		return Result{}, err
	}
	joined, err := left.Join(right, c.On, tabular.OuterJoin)
	if err != nil {
		return Result{}, err
	}

	joined = joined.
		WithColumn(ColDiff, func(r tabular.Row) interface{} {
			return tabular.Diff(r[ColLeftValue], r[ColRightValue])
		}).
		WithColumn(ColStatus, func(r tabular.Row) interface{} {
			return string(rc.Classify(r.Number(ColDiff)))
		})
	joined, err = joined.SortBy(c.On...)
	if err != nil {
		return Result{}, err
	}

	var res Result
	if c.PeriodColumn == "" {
		res = c.whole(joined)
	} else {
		res, err = c.perPeriod(rc, joined)
		if err != nil {
			return Result{}, err
		}
	}
	res.Evidence, err = c.evidence(joined)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// prepare 派生、过滤、重命名键并分组求和，输出 On + valueCol
func (c Comparison) prepare(rc *RuleContext, s Side, valueCol string) (*tabular.Dataset, error) {
	ds, err := rc.Dataset(s.Dataset)
	if err != nil {
		return nil, err
	}
	for col, fn := range s.Derive {
		ds = ds.WithColumn(col, fn)
	}
	ds, err = ds.Filter(s.Filter)
	if err != nil {
		return nil, err
	}

	keys := s.Keys
	if len(keys) == 0 {
		keys = c.On
	}
	if len(keys) != len(c.On) {
		return nil, fmt.Errorf("数据集 %s 的分组列数量 %d 与连接键数量 %d 不一致", s.Dataset, len(keys), len(c.On))
	}
	if err := ds.Require("compare", append(append([]string{}, keys...), s.Value)...); err != nil {
		return nil, err
	}

	scale := s.Scale
	if scale == 0 {
		scale = 1
	}
	ds = ds.WithColumn(valueCol, func(r tabular.Row) interface{} {
		if tabular.NullValue(r[s.Value]) {
			return nil
		}
		return r.Number(s.Value) * scale
	})
	for i, k := range keys {
		if k != c.On[i] {
			src := k
			ds = ds.WithColumn(c.On[i], func(r tabular.Row) interface{} { return r[src] })
		}
	}
	ds, err = ds.Select(append(append([]string{}, c.On...), valueCol)...)
	if err != nil {
		return nil, err
	}
	return ds.GroupSum(c.On, valueCol)
}

func worstOf(ds *tabular.Dataset) Status {
	status := StatusOK
	ds.Each(func(_ int, r tabular.Row) {
		status = Worse(status, Status(r.Text(ColStatus)))
	})
	return status
}

func (c Comparison) whole(joined *tabular.Dataset) Result {
	if joined.IsEmpty() {
		return NotApplicable("no rows to compare")
	}
	status := worstOf(joined)
	note := ""
	if status == StatusError {
		bad, _ := joined.Filter(tabular.Eq(ColStatus, string(StatusError)))
		note = fmt.Sprintf("divergence in %d of %d keys", bad.Len(), joined.Len())
	}
	return StatusResult(status, note, nil)
}

func (c Comparison) perPeriod(rc *RuleContext, joined *tabular.Dataset) (Result, error) {
	var periods []int
	switch {
	case c.Periods != nil:
		periods = c.Periods(rc)
	case c.Family != "":
		periods = rc.Periods(c.Family)
	default:
		ps, err := DistinctPeriods(joined, c.PeriodColumn)
		if err != nil {
			return Result{}, err
		}
		periods = ps
	}
	return rc.PerPeriod(periods, func(period int) (Status, error) {
		rows, err := joined.Filter(tabular.Eq(c.PeriodColumn, period))
		if err != nil {
			return "", err
		}
		if rows.IsEmpty() {
			return StatusNotApplicable, nil
		}
		return worstOf(rows), nil
	})
}

func (c Comparison) evidence(joined *tabular.Dataset) (*tabular.Dataset, error) {
	if c.EvidenceAll {
		return joined, nil
	}
	bad, err := joined.Filter(tabular.NotEq(ColStatus, string(StatusOK)))
	if err != nil {
		return nil, err
	}
	if bad.IsEmpty() {
		return nil, nil
	}
	return bad, nil
}
