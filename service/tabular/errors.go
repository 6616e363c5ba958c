package tabular

import "fmt"

// SchemaError 数据集缺少操作所需的列
type SchemaError struct {
	Op      string // 触发错误的操作，例如 group_sum、join
	Column  string // 缺失的列名
	Dataset string // 数据集名称
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("数据集 %s 执行 %s 时缺少列: %s", e.Dataset, e.Op, e.Column)
}

// CardinalityError 行数断言失败，例如期望恰好一行
type CardinalityError struct {
	Dataset string
	Want    int
	Got     int
}

func (e *CardinalityError) Error() string {
	return fmt.Sprintf("数据集 %s 期望 %d 行，实际 %d 行", e.Dataset, e.Want, e.Got)
}

// ValueError 单元格无法转换为数值
type ValueError struct {
	Column string
	Value  interface{}
	Err    error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("列 %s 的值 %v 不是数值: %v", e.Column, e.Value, e.Err)
}

func (e *ValueError) Unwrap() error {
	return e.Err
}
