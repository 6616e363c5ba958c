package tabular

import "strings"

// Predicate 行谓词，声明其读取的列，以便过滤前进行列校验
type Predicate struct {
	columns []string
	match   func(Row) bool
}

// Where 用自定义函数构造谓词，columns 为函数读取的列
func Where(fn func(Row) bool, columns ...string) Predicate {
	return Predicate{columns: uniqueColumns(columns), match: fn}
}

// All 匹配所有行
func All() Predicate {
	return Predicate{}
}

// Columns 谓词读取的列
func (p Predicate) Columns() []string {
	return append([]string(nil), p.columns...)
}

// Match 判断行是否满足谓词，零值谓词匹配所有行
func (p Predicate) Match(r Row) bool {
	if p.match == nil {
		return true
	}
	return p.match(r)
}

// Eq 列等于给定值，数值按十进制比较
func Eq(col string, value interface{}) Predicate {
	return Where(func(r Row) bool { return valuesEqual(r[col], value) }, col)
}

// NotEq 列不等于给定值
func NotEq(col string, value interface{}) Predicate {
	return Not(Eq(col, value))
}

// In 列取值属于集合
func In(col string, values ...interface{}) Predicate {
	keys := make(map[string]bool, len(values))
	for _, v := range values {
		keys[canonicalKey(v)] = true
	}
	return Where(func(r Row) bool { return keys[canonicalKey(r[col])] }, col)
}

// HasPrefix 文本列以任一前缀开头，用于层级科目编码
func HasPrefix(col string, prefixes ...string) Predicate {
	return Where(func(r Row) bool {
		s := Text(r[col])
		for _, p := range prefixes {
			if strings.HasPrefix(s, p) {
				return true
			}
		}
		return false
	}, col)
}

// IsNull 列为空
func IsNull(col string) Predicate {
	return Where(func(r Row) bool { return NullValue(r[col]) }, col)
}

// NotNull 列非空
func NotNull(col string) Predicate {
	return Not(IsNull(col))
}

// Gt 列数值 > x，空值不匹配
func Gt(col string, x float64) Predicate {
	return numeric(col, func(v float64) bool { return v > x })
}

// Gte 列数值 >= x
func Gte(col string, x float64) Predicate {
	return numeric(col, func(v float64) bool { return v >= x })
}

// Lt 列数值 < x
func Lt(col string, x float64) Predicate {
	return numeric(col, func(v float64) bool { return v < x })
}

// Lte 列数值 <= x
func Lte(col string, x float64) Predicate {
	return numeric(col, func(v float64) bool { return v <= x })
}

// EqualFold 文本列忽略大小写和重音后相等
func EqualFold(col, s string) Predicate {
	want := Fold(s)
	return Where(func(r Row) bool { return Fold(Text(r[col])) == want }, col)
}

// FoldPrefix 文本列忽略大小写和重音后以给定前缀开头，用于报表中带编号后缀的科目名称
func FoldPrefix(col, prefix string) Predicate {
	want := Fold(prefix)
	return Where(func(r Row) bool { return strings.HasPrefix(Fold(Text(r[col])), want) }, col)
}

// And 所有谓词同时满足
func And(ps ...Predicate) Predicate {
	return Where(func(r Row) bool {
		for _, p := range ps {
			if !p.Match(r) {
				return false
			}
		}
		return true
	}, columnsOf(ps)...)
}

// Or 任一谓词满足
func Or(ps ...Predicate) Predicate {
	return Where(func(r Row) bool {
		for _, p := range ps {
			if p.Match(r) {
				return true
			}
		}
		return false
	}, columnsOf(ps)...)
}

// Not 谓词取反
func Not(p Predicate) Predicate {
	return Where(func(r Row) bool { return !p.Match(r) }, p.columns...)
}

func numeric(col string, fn func(float64) bool) Predicate {
	return Where(func(r Row) bool {
		v := r[col]
		if NullValue(v) {
			return false
		}
		f, err := NumberE(v)
		if err != nil {
			return false
		}
		return fn(f)
	}, col)
}

func columnsOf(ps []Predicate) []string {
	var cols []string
	for _, p := range ps {
		cols = append(cols, p.columns...)
	}
	return cols
}
