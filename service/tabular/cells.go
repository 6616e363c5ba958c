/*
 * @module service/tabular/cells
 * @description 单元格取值工具：数值转换、文本转换、空值判断、容差比较、文本折叠
 * @architecture 工具层
 * @documentReference DESIGN.md
 * @stateFlow 原始单元格 -> 类型转换 -> 比较/计算
 * @rules 空值按 0 参与数值计算；金额比较使用十进制避免浮点误差
 * @dependencies github.com/spf13/cast, github.com/shopspring/decimal, golang.org/x/text
 * @refs dataset.go, ops.go
 */

package tabular

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NullValue 判断单元格是否为空（nil 或 NaN）
func NullValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(t)
	case float32:
		return math.IsNaN(float64(t))
	}
	return false
}

// toDecimal 将单元格转换为十进制数，空值和空字符串视为 0
func toDecimal(v interface{}) (decimal.Decimal, error) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return t, nil
	case float64:
		if math.IsNaN(t) {
			return decimal.Zero, nil
		}
		if math.IsInf(t, 0) {
			return decimal.Zero, errors.New("无穷大数值")
		}
		return decimal.NewFromFloat(t), nil
	case float32:
		return toDecimal(float64(t))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return decimal.NewFromInt(cast.ToInt64(t)), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(s)
	case bool:
		return decimal.Zero, fmt.Errorf("布尔值不能作为数值: %v", t)
	}

	f, err := cast.ToFloat64E(v)
	if err != nil {
		return decimal.Zero, err
	}
	return toDecimal(f)
}

// NumberE 将单元格转换为 float64，空值视为 0
func NumberE(v interface{}) (float64, error) {
	d, err := toDecimal(v)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

// Number 将单元格转换为 float64，无法转换时返回 0
func Number(v interface{}) float64 {
	f, err := NumberE(v)
	if err != nil {
		return 0
	}
	return f
}

// Int 将单元格转换为整数（四舍五入），常用于月份、双月等期间列
func Int(v interface{}) int {
	return int(math.Round(Number(v)))
}

// Text 将单元格转换为字符串，空值返回空串
func Text(v interface{}) string {
	if NullValue(v) {
		return ""
	}
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case decimal.Decimal:
		return t.String()
	}
	return cast.ToString(v)
}

// NumericClose 判断 |a-b| <= tolerance，空值按 0 处理，边界包含在内
func NumericClose(a, b interface{}, tolerance float64) bool {
	da, err := toDecimal(a)
	if err != nil {
		return false
	}
	db, err := toDecimal(b)
	if err != nil {
		return false
	}
	return da.Sub(db).Abs().LessThanOrEqual(decimal.NewFromFloat(math.Abs(tolerance)))
}

// Diff 返回 a-b 的十进制精确差值
func Diff(a, b interface{}) float64 {
	da, _ := toDecimal(a)
	db, _ := toDecimal(b)
	return da.Sub(db).InexactFloat64()
}

// Round 按十进制规则保留指定位小数
func Round(f float64, places int32) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	return decimal.NewFromFloat(f).Round(places).InexactFloat64()
}

// Fold 去除重音、统一大小写并压缩空白，用于比较葡萄牙语科目名称和附表标题
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(cases.Fold().String(stripped)), " ")
}

// canonicalKey 生成分组/连接用的规范化键，数值类型统一格式，避免 3 与 3.0 不匹配
func canonicalKey(v interface{}) string {
	if NullValue(v) {
		return "\x00"
	}
	switch t := v.(type) {
	case string:
		return "s:" + t
	case bool:
		return "b:" + strconv.FormatBool(t)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, decimal.Decimal:
		d, err := toDecimal(t)
		if err == nil {
			return "n:" + d.String()
		}
	}
	return "v:" + fmt.Sprint(v)
}

// valuesEqual 比较两个单元格：均为数值时按十进制比较，否则按规范化键比较
func valuesEqual(a, b interface{}) bool {
	if isNumeric(a) && isNumeric(b) {
		da, errA := toDecimal(a)
		db, errB := toDecimal(b)
		if errA == nil && errB == nil {
			return da.Equal(db)
		}
	}
	return canonicalKey(a) == canonicalKey(b)
}

func isNumeric(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, decimal.Decimal:
		return true
	}
	return false
}
