package tabular

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func accounts() *Dataset {
	return New("msc", []string{"conta", "descricao", "valor", "natureza"}, []Row{
		{"conta": "111110100", "descricao": "Caixa e Equivalentes", "valor": 100.0, "natureza": "D"},
		{"conta": "111110200", "descricao": "Bancos Conta Movimento", "valor": -5.0, "natureza": "D"},
		{"conta": "211110100", "descricao": "Obrigações Trabalhistas", "valor": 40.0, "natureza": "C"},
		{"conta": "311110100", "descricao": "Remuneração a Pessoal", "valor": nil, "natureza": "D"},
	})
}

func TestNewFillsMissingColumns(t *testing.T) {
	ds := New("x", []string{"a", "b"}, []Row{{"a": 1}, {"a": 2, "b": 3, "c": 4}})
	assert.Equal(t, 2, ds.Len())
	assert.Nil(t, ds.Row(0)["b"])
	_, hasC := ds.Row(1)["c"]
	assert.False(t, hasC)
}

func TestFromRecordsInfersSortedColumns(t *testing.T) {
	ds := FromRecords("x", []map[string]interface{}{{"b": 1}, {"a": 2}})
	assert.Equal(t, []string{"a", "b"}, ds.Columns())
}

func TestAccessorsReturnCopies(t *testing.T) {
	ds := accounts()
	r := ds.Row(0)
	r["valor"] = 999.0
	rows := ds.Rows()
	rows[0]["conta"] = "x"
	assert.Equal(t, 100.0, ds.Row(0)["valor"])
	assert.Equal(t, "111110100", ds.Row(0)["conta"])
}

func TestFilterCompoundPredicates(t *testing.T) {
	ds := accounts()

	out, err := ds.Filter(And(HasPrefix("conta", "1", "2"), Eq("natureza", "D")))
	require.NoError(t, err)
	assert.Equal(t, 2, out.Len())

	neg, err := ds.Filter(Lt("valor", 0))
	require.NoError(t, err)
	assert.Equal(t, 1, neg.Len())

	nulls, err := ds.Filter(IsNull("valor"))
	require.NoError(t, err)
	assert.Equal(t, 1, nulls.Len())

	set, err := ds.Filter(Or(In("natureza", "C"), Gte("valor", 100)))
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())

	notD, err := ds.Filter(NotEq("natureza", "D"))
	require.NoError(t, err)
	assert.Equal(t, 1, notD.Len())

	assert.Equal(t, 4, ds.Len(), "过滤不应修改输入")
}

func TestFilterEmptyResult(t *testing.T) {
	out, err := accounts().Filter(HasPrefix("conta", "9"))
	require.NoError(t, err)
	assert.True(t, out.IsEmpty())
	_, ok := out.First()
	assert.False(t, ok)
}

func TestFilterMissingColumn(t *testing.T) {
	_, err := accounts().Filter(Eq("poder_orgao", "10131"))
	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "filter", se.Op)
	assert.Equal(t, "poder_orgao", se.Column)
}

func TestEqualFoldIgnoresAccents(t *testing.T) {
	out, err := accounts().Filter(EqualFold("descricao", "OBRIGACOES  trabalhistas"))
	require.NoError(t, err)
	assert.Equal(t, 1, out.Len())
	assert.Equal(t, "remuneracao a pessoal", Fold("Remuneração a  Pessoal"))
}

func TestSingleCardinality(t *testing.T) {
	_, err := accounts().Single()
	var ce *CardinalityError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 4, ce.Got)
}

func TestSumDistinctSort(t *testing.T) {
	ds := accounts()
	total, err := ds.Sum("valor")
	require.NoError(t, err)
	assert.Equal(t, 135.0, total)

	nat, err := ds.Distinct("natureza")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"D", "C"}, nat)

	sorted, err := ds.SortBy("valor")
	require.NoError(t, err)
	assert.Nil(t, sorted.Row(0)["valor"])
	assert.Equal(t, 100.0, sorted.Row(3)["valor"])
}

func TestWithColumnAndConcat(t *testing.T) {
	ds := accounts().WithColumn("dobro", func(r Row) interface{} { return r.Number("valor") * 2 })
	assert.True(t, ds.HasColumn("dobro"))
	assert.Equal(t, 200.0, ds.Row(0)["dobro"])

	all := Concat("all", accounts(), New("extra", []string{"conta", "poder"}, []Row{{"conta": "9", "poder": "x"}}))
	assert.Equal(t, 5, all.Len())
	assert.True(t, all.HasColumn("poder"))
	assert.Nil(t, all.Row(0)["poder"])
}

func TestCellHelpers(t *testing.T) {
	assert.Equal(t, 3, Int("3"))
	assert.Equal(t, 8, Int("08"))
	assert.Equal(t, 12, Int(12.0))
	assert.Equal(t, "12", Text(12.0))
	assert.Equal(t, "", Text(nil))
	assert.Equal(t, 0.0, Number("x"))
	assert.True(t, NullValue(nil))
	assert.False(t, NullValue(""))
}
