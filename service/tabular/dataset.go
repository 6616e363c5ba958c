/*
 * @module service/tabular/dataset
 * @description 表格数据集，规则引擎所有计算的基础数据结构
 * @architecture 不可变数据结构 - 所有操作返回新的数据集
 * @documentReference DESIGN.md
 * @stateFlow 外部加载器创建 -> 注册表持有 -> 规则只读派生
 * @rules 同一数据集内所有行共享相同的列集合（允许空值）；访问器返回副本，规则无法修改共享数据
 * @dependencies github.com/shopspring/decimal
 * @refs ops.go, predicate.go
 */

package tabular

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Row 数据行，列名到单元格值的映射
type Row map[string]interface{}

// Clone 复制数据行
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Number 读取数值列，空值为 0
func (r Row) Number(col string) float64 {
	return Number(r[col])
}

// Text 读取文本列
func (r Row) Text(col string) string {
	return Text(r[col])
}

// Int 读取整数列
func (r Row) Int(col string) int {
	return Int(r[col])
}

// Dataset 表格数据集
type Dataset struct {
	name    string
	columns []string
	rows    []Row
}

// New 创建数据集，行中缺失的列补为 nil，多余的键被丢弃
func New(name string, columns []string, rows []Row) *Dataset {
	cols := uniqueColumns(columns)
	d := &Dataset{
		name:    name,
		columns: cols,
		rows:    make([]Row, 0, len(rows)),
	}
	for _, r := range rows {
		d.rows = append(d.rows, project(r, cols))
	}
	return d
}

// Empty 创建只有列定义的空数据集
func Empty(name string, columns ...string) *Dataset {
	return New(name, columns, nil)
}

// FromRecords 从记录列表创建数据集，列集合取所有记录键的并集并排序
func FromRecords(name string, records []map[string]interface{}) *Dataset {
	seen := make(map[string]bool)
	var cols []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, Row(rec))
	}
	return New(name, cols, rows)
}

// Name 数据集名称
func (d *Dataset) Name() string {
	return d.name
}

// WithName 返回重命名后的副本
func (d *Dataset) WithName(name string) *Dataset {
	out := d.Clone()
	out.name = name
	return out
}

// Columns 列名列表（副本）
func (d *Dataset) Columns() []string {
	return append([]string(nil), d.columns...)
}

// Len 行数
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.rows)
}

// IsEmpty 是否没有任何行
func (d *Dataset) IsEmpty() bool {
	return d.Len() == 0
}

// HasColumn 是否包含指定列
func (d *Dataset) HasColumn(col string) bool {
	for _, c := range d.columns {
		if c == col {
			return true
		}
	}
	return false
}

// Require 校验所需列均存在，否则返回 SchemaError
func (d *Dataset) Require(op string, cols ...string) error {
	for _, c := range cols {
		if !d.HasColumn(c) {
			return &SchemaError{Op: op, Column: c, Dataset: d.name}
		}
	}
	return nil
}

// Row 返回第 i 行的副本
func (d *Dataset) Row(i int) Row {
	return d.rows[i].Clone()
}

// Rows 返回所有行的副本
func (d *Dataset) Rows() []Row {
	out := make([]Row, len(d.rows))
	for i, r := range d.rows {
		out[i] = r.Clone()
	}
	return out
}

// Records 以通用记录形式导出，用于 JSON 序列化和脚本规则
func (d *Dataset) Records() []map[string]interface{} {
	out := make([]map[string]interface{}, len(d.rows))
	for i, r := range d.rows {
		out[i] = map[string]interface{}(r.Clone())
	}
	return out
}

// Clone 深拷贝数据集
func (d *Dataset) Clone() *Dataset {
	return &Dataset{
		name:    d.name,
		columns: d.Columns(),
		rows:    d.Rows(),
	}
}

// Each 按顺序遍历行，回调收到的是副本
func (d *Dataset) Each(fn func(i int, r Row)) {
	for i, r := range d.rows {
		fn(i, r.Clone())
	}
}

// Filter 按谓词过滤，返回新数据集（可能为空）
func (d *Dataset) Filter(p Predicate) (*Dataset, error) {
	if err := d.Require("filter", p.Columns()...); err != nil {
		return nil, err
	}
	out := &Dataset{name: d.name, columns: d.Columns()}
	for _, r := range d.rows {
		if p.Match(r) {
			out.rows = append(out.rows, r.Clone())
		}
	}
	return out, nil
}

// Select 只保留指定列
func (d *Dataset) Select(cols ...string) (*Dataset, error) {
	if err := d.Require("select", cols...); err != nil {
		return nil, err
	}
	return New(d.name, cols, d.rows), nil
}

// WithColumn 追加（或覆盖）一个派生列
func (d *Dataset) WithColumn(col string, fn func(r Row) interface{}) *Dataset {
	cols := d.Columns()
	if !d.HasColumn(col) {
		cols = append(cols, col)
	}
	out := &Dataset{name: d.name, columns: cols, rows: make([]Row, 0, len(d.rows))}
	for _, r := range d.rows {
		nr := r.Clone()
		nr[col] = fn(r.Clone())
		out.rows = append(out.rows, nr)
	}
	return out
}

// Sum 对数值列求和，空值视为 0
func (d *Dataset) Sum(col string) (float64, error) {
	if err := d.Require("sum", col); err != nil {
		return 0, err
	}
	total := decimal.Zero
	for _, r := range d.rows {
		v, err := toDecimal(r[col])
		if err != nil {
			return 0, &ValueError{Column: col, Value: r[col], Err: err}
		}
		total = total.Add(v)
	}
	return total.InexactFloat64(), nil
}

// Distinct 返回列的去重取值，按首次出现顺序
func (d *Dataset) Distinct(col string) ([]interface{}, error) {
	if err := d.Require("distinct", col); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []interface{}
	for _, r := range d.rows {
		k := canonicalKey(r[col])
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r[col])
	}
	return out, nil
}

// SortBy 按指定列稳定排序，数值按大小比较，其余按文本比较
func (d *Dataset) SortBy(cols ...string) (*Dataset, error) {
	if err := d.Require("sort", cols...); err != nil {
		return nil, err
	}
	out := d.Clone()
	sort.SliceStable(out.rows, func(i, j int) bool {
		for _, c := range cols {
			if cmp := compareValues(out.rows[i][c], out.rows[j][c]); cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
	return out, nil
}

// Single 断言恰好一行并返回该行
func (d *Dataset) Single() (Row, error) {
	if len(d.rows) != 1 {
		return nil, &CardinalityError{Dataset: d.name, Want: 1, Got: len(d.rows)}
	}
	return d.rows[0].Clone(), nil
}

// First 返回第一行，数据集为空时 ok=false
func (d *Dataset) First() (Row, bool) {
	if len(d.rows) == 0 {
		return nil, false
	}
	return d.rows[0].Clone(), true
}

// Concat 纵向拼接多个数据集，列取并集
func Concat(name string, sets ...*Dataset) *Dataset {
	var cols []string
	var rows []Row
	for _, s := range sets {
		if s == nil {
			continue
		}
		cols = append(cols, s.columns...)
		rows = append(rows, s.rows...)
	}
	return New(name, cols, rows)
}

func uniqueColumns(columns []string) []string {
	seen := make(map[string]bool, len(columns))
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func project(r Row, cols []string) Row {
	out := make(Row, len(cols))
	for _, c := range cols {
		out[c] = r[c]
	}
	return out
}

func compareValues(a, b interface{}) int {
	aNull, bNull := NullValue(a), NullValue(b)
	switch {
	case aNull && bNull:
		return 0
	case aNull:
		return -1
	case bNull:
		return 1
	}
	if isNumeric(a) && isNumeric(b) {
		da, _ := toDecimal(a)
		db, _ := toDecimal(b)
		return da.Cmp(db)
	}
	return strings.Compare(Text(a), Text(b))
}
