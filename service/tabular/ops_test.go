/*
 * @module service/tabular/ops_test
 * @description 关系运算测试：分组求和、连接标识、容差比较、列校验
 * @architecture 测试层
 * @documentReference DESIGN.md
 * @stateFlow 构造数据集 -> 执行运算 -> 验证结果
 * @rules 分组结果按多重集比较，不依赖行顺序
 * @dependencies testing, github.com/stretchr/testify
 * @refs ops.go, dataset.go, cells.go
 */

package tabular

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func balances() *Dataset {
	return New("msc", []string{"conta", "mes", "valor"}, []Row{
		{"conta": "A", "mes": 1, "valor": 10.0},
		{"conta": "A", "mes": 1, "valor": 5.0},
		{"conta": "B", "mes": 1, "valor": 3.0},
	})
}

func TestGroupSumSumsDuplicateKeys(t *testing.T) {
	out, err := balances().GroupSum([]string{"conta"}, "valor")
	require.NoError(t, err)

	got := map[string]float64{}
	out.Each(func(_ int, r Row) {
		got[r.Text("conta")] = r.Number("valor")
	})
	assert.Equal(t, map[string]float64{"A": 15, "B": 3}, got)
	assert.Equal(t, []string{"conta", "valor"}, out.Columns())
}

func TestGroupSumIgnoresInputOrder(t *testing.T) {
	a, err := balances().GroupSum([]string{"conta", "mes"}, "valor")
	require.NoError(t, err)

	reversed := balances().Rows()
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	b, err := New("msc", []string{"conta", "mes", "valor"}, reversed).GroupSum([]string{"conta", "mes"}, "valor")
	require.NoError(t, err)

	assert.ElementsMatch(t, a.Records(), b.Records())
}

func TestGroupSumNullsCountAsZero(t *testing.T) {
	ds := New("x", []string{"k", "v"}, []Row{{"k": "A", "v": nil}, {"k": "A", "v": 2}})
	out, err := ds.GroupSum([]string{"k"}, "v")
	require.NoError(t, err)
	row, err := out.Single()
	require.NoError(t, err)
	assert.Equal(t, 2.0, row.Number("v"))
}

func TestGroupSumExactDecimal(t *testing.T) {
	ds := New("x", []string{"k", "v"}, []Row{{"k": "A", "v": 0.1}, {"k": "A", "v": 0.2}})
	out, err := ds.GroupSum([]string{"k"}, "v")
	require.NoError(t, err)
	row, _ := out.First()
	assert.Equal(t, 0.3, row.Number("v"))
}

func TestGroupSumMissingColumn(t *testing.T) {
	_, err := balances().GroupSum([]string{"poder"}, "valor")
	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "group_sum", se.Op)
	assert.Equal(t, "poder", se.Column)
}

func TestGroupSumNonNumericValue(t *testing.T) {
	ds := New("x", []string{"k", "v"}, []Row{{"k": "A", "v": "abc"}})
	_, err := ds.GroupSum([]string{"k"}, "v")
	var ve *ValueError
	assert.True(t, errors.As(err, &ve))
}

func TestOuterJoinClassifiesRows(t *testing.T) {
	prev := New("sf", []string{"conta", "valor"}, []Row{
		{"conta": "1000", "valor": 500.0},
		{"conta": "2000", "valor": 10.0},
	})
	curr := New("si", []string{"conta", "valor"}, []Row{
		{"conta": "2000", "valor": 10.0},
		{"conta": "3000", "valor": 7.0},
	})

	out, err := prev.Join(curr, []string{"conta"}, OuterJoin)
	require.NoError(t, err)
	assert.Equal(t, []string{"conta", "valor_left", "valor_right", MergeColumn}, out.Columns())
	require.Equal(t, 3, out.Len())

	byAccount := map[string]Row{}
	out.Each(func(_ int, r Row) { byAccount[r.Text("conta")] = r })

	assert.Equal(t, LeftOnly, byAccount["1000"][MergeColumn])
	assert.Nil(t, byAccount["1000"]["valor_right"])
	assert.Equal(t, 500.0, byAccount["1000"]["valor_left"])
	assert.Equal(t, Both, byAccount["2000"][MergeColumn])
	assert.Equal(t, RightOnly, byAccount["3000"][MergeColumn])
	assert.Nil(t, byAccount["3000"]["valor_left"])
}

func TestInnerAndLeftJoin(t *testing.T) {
	l := New("l", []string{"k", "a"}, []Row{{"k": 1, "a": "x"}, {"k": 2, "a": "y"}})
	r := New("r", []string{"k", "b"}, []Row{{"k": 1.0, "b": "z"}, {"k": 1, "b": "w"}})

	inner, err := l.Join(r, []string{"k"}, InnerJoin)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.Len(), "数值键 1 与 1.0 应视为相同，并产生笛卡尔积")

	left, err := l.Join(r, []string{"k"}, LeftJoin)
	require.NoError(t, err)
	assert.Equal(t, 3, left.Len())
	only, err := left.Filter(Eq(MergeColumn, LeftOnly))
	require.NoError(t, err)
	row, err := only.Single()
	require.NoError(t, err)
	assert.Equal(t, "y", row["a"])
	assert.Nil(t, row["b"])
}

func TestJoinKeepsInheritedMergeColumn(t *testing.T) {
	a := New("a", []string{"k", "x"}, []Row{{"k": 1, "x": 1.0}, {"k": 2, "x": 2.0}})
	b := New("b", []string{"k", "y"}, []Row{{"k": 1, "y": 1.0}})
	c := New("c", []string{"k", "z"}, []Row{{"k": 2, "z": 3.0}})

	ab, err := a.Join(b, []string{"k"}, LeftJoin)
	require.NoError(t, err)
	abc, err := ab.Join(c, []string{"k"}, OuterJoin)
	require.NoError(t, err)
	assert.Equal(t, []string{"k", "x", "y", MergeColumn + LeftSuffix, "z", MergeColumn}, abc.Columns())

	byKey := map[int]Row{}
	abc.Each(func(_ int, r Row) { byKey[r.Int("k")] = r })
	assert.Equal(t, Both, byKey[1][MergeColumn+LeftSuffix])
	assert.Equal(t, LeftOnly, byKey[1][MergeColumn])
	assert.Equal(t, LeftOnly, byKey[2][MergeColumn+LeftSuffix])
	assert.Equal(t, Both, byKey[2][MergeColumn])

	_, err = ab.Join(ab, []string{MergeColumn}, InnerJoin)
	assert.Error(t, err)
}

func TestJoinMissingColumn(t *testing.T) {
	l := New("l", []string{"k"}, nil)
	r := New("r", []string{"x"}, nil)
	_, err := l.Join(r, []string{"k"}, OuterJoin)
	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "join", se.Op)
	assert.Equal(t, "r", se.Dataset)
}

func TestJoinRejectsUnknownType(t *testing.T) {
	l := New("l", []string{"k"}, nil)
	_, err := l.Join(l, []string{"k"}, JoinType("cross"))
	assert.Error(t, err)
}

func TestNumericCloseBoundary(t *testing.T) {
	assert.True(t, NumericClose(100.00, 100.01, 0.01))
	assert.False(t, NumericClose(100.00, 100.02, 0.01))
	assert.True(t, NumericClose(nil, 0.0, 0.01))
	assert.True(t, NumericClose(nil, "0.005", 0.01))
	assert.False(t, NumericClose("abc", 0, 0.01))
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.85, Round(11.0/13.0, 2))
	assert.Equal(t, 0.8, Round(8.0/10.0, 2))
}
