/*
 * @module service/tabular/ops
 * @description 关系运算：分组求和、连接（含匹配标识）
 * @architecture 函数式运算 - 输入数据集不变，输出新数据集
 * @documentReference DESIGN.md
 * @stateFlow 列校验 -> 规范化键 -> 聚合/匹配 -> 输出数据集
 * @rules 缺列必须返回 SchemaError；外连接必须保留 left_only/right_only/both 标识
 * @dependencies github.com/shopspring/decimal
 * @refs dataset.go
 */

package tabular

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// JoinType 连接方式
type JoinType string

const (
	InnerJoin JoinType = "inner"
	LeftJoin  JoinType = "left"
	OuterJoin JoinType = "outer"
)

// MergeColumn 连接结果中的匹配标识列
const MergeColumn = "_merge"

// 匹配标识取值
const (
	LeftOnly  = "left_only"
	RightOnly = "right_only"
	Both      = "both"
)

// 列名冲突时的后缀
const (
	LeftSuffix  = "_left"
	RightSuffix = "_right"
)

// GroupSum 按键列分组并对数值列求和，重复键的值累加，空值按 0 计
func (d *Dataset) GroupSum(keys []string, value string) (*Dataset, error) {
	if err := d.Require("group_sum", append(append([]string(nil), keys...), value)...); err != nil {
		return nil, err
	}

	type group struct {
		key Row
		sum decimal.Decimal
	}
	var order []string
	groups := make(map[string]*group)

	for _, r := range d.rows {
		k := rowKey(r, keys)
		v, err := toDecimal(r[value])
		if err != nil {
			return nil, &ValueError{Column: value, Value: r[value], Err: err}
		}
		g, ok := groups[k]
		if !ok {
			g = &group{key: project(r, keys), sum: decimal.Zero}
			groups[k] = g
			order = append(order, k)
		}
		g.sum = g.sum.Add(v)
	}

	cols := append(append([]string(nil), keys...), value)
	out := &Dataset{name: d.name, columns: uniqueColumns(cols), rows: make([]Row, 0, len(order))}
	for _, k := range order {
		g := groups[k]
		r := g.key.Clone()
		r[value] = g.sum.InexactFloat64()
		out.rows = append(out.rows, r)
	}
	return out, nil
}

// Join 关系连接。结果列为：连接键、左侧非键列、右侧非键列、MergeColumn；
// 外连接中缺失一侧的列为 nil。两侧同名的非键列以及输入中已有的 MergeColumn 加左右后缀。
func (d *Dataset) Join(right *Dataset, on []string, how JoinType) (*Dataset, error) {
	if len(on) == 0 {
		return nil, fmt.Errorf("连接键不能为空")
	}
	switch how {
	case InnerJoin, LeftJoin, OuterJoin:
	default:
		return nil, fmt.Errorf("不支持的连接方式: %s", how)
	}
	if err := d.Require("join", on...); err != nil {
		return nil, err
	}
	if err := right.Require("join", on...); err != nil {
		return nil, err
	}

	isKey := make(map[string]bool, len(on))
	for _, c := range on {
		if c == MergeColumn {
			return nil, fmt.Errorf("连接键不能是 %s", MergeColumn)
		}
		isKey[c] = true
	}
	leftCols := nonKey(d.columns, isKey)
	rightCols := nonKey(right.columns, isKey)

	leftSet := make(map[string]bool, len(leftCols))
	for _, c := range leftCols {
		leftSet[c] = true
	}
	rightSet := make(map[string]bool, len(rightCols))
	for _, c := range rightCols {
		rightSet[c] = true
	}
	// 输入中已有的 MergeColumn（连接结果再次连接）与新的标识列冲突，同样加后缀
	leftName := make(map[string]string, len(leftCols))
	for _, c := range leftCols {
		leftName[c] = c
		if rightSet[c] || c == MergeColumn {
			leftName[c] = c + LeftSuffix
		}
	}
	rightName := make(map[string]string, len(rightCols))
	for _, c := range rightCols {
		rightName[c] = c
		if leftSet[c] || c == MergeColumn {
			rightName[c] = c + RightSuffix
		}
	}

	cols := append([]string(nil), on...)
	for _, c := range leftCols {
		cols = append(cols, leftName[c])
	}
	for _, c := range rightCols {
		cols = append(cols, rightName[c])
	}
	cols = append(cols, MergeColumn)

	index := make(map[string][]int)
	for j, r := range right.rows {
		k := rowKey(r, on)
		index[k] = append(index[k], j)
	}

	build := func(l, r Row, merge string) Row {
		out := make(Row, len(cols))
		for _, c := range on {
			if l != nil {
				out[c] = l[c]
			} else {
				out[c] = r[c]
			}
		}
		for _, c := range leftCols {
			if l != nil {
				out[leftName[c]] = l[c]
			} else {
				out[leftName[c]] = nil
			}
		}
		for _, c := range rightCols {
			if r != nil {
				out[rightName[c]] = r[c]
			} else {
				out[rightName[c]] = nil
			}
		}
		out[MergeColumn] = merge
		return out
	}

	name := d.name
	if right.name != "" && right.name != d.name {
		name = d.name + "+" + right.name
	}
	out := &Dataset{name: name, columns: uniqueColumns(cols)}
	matched := make([]bool, len(right.rows))
	for _, l := range d.rows {
		hits := index[rowKey(l, on)]
		if len(hits) == 0 {
			if how != InnerJoin {
				out.rows = append(out.rows, build(l, nil, LeftOnly))
			}
			continue
		}
		for _, j := range hits {
			matched[j] = true
			out.rows = append(out.rows, build(l, right.rows[j], Both))
		}
	}
	if how == OuterJoin {
		for j, r := range right.rows {
			if !matched[j] {
				out.rows = append(out.rows, build(nil, r, RightOnly))
			}
		}
	}
	return out, nil
}

func rowKey(r Row, keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = canonicalKey(r[k])
	}
	return strings.Join(parts, "\x1f")
}

func nonKey(cols []string, isKey map[string]bool) []string {
	var out []string
	for _, c := range cols {
		if !isKey[c] {
			out = append(out, c)
		}
	}
	return out
}
