package optimize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRangeValuesEndExclusive(t *testing.T) {
	assert.Equal(t, []int{1, 3, 5}, Range{Start: 1, End: 7, Step: 2}.Values())
	assert.Equal(t, []int{5, 10, 15, 20, 25}, Range{Start: 5, End: 30, Step: 5}.Values())
	// Step 缺省为 1
	assert.Equal(t, []int{3, 4}, Range{Start: 3, End: 5}.Values())
	assert.Empty(t, Range{Start: 5, End: 5}.Values())
	assert.Empty(t, Range{Start: 7, End: 5}.Values())
}

func TestGridExpandCartesianProduct(t *testing.T) {
	g := Grid{
		"fast": {Range: &Range{Start: 5, End: 15, Step: 5}}, // 5, 10
		"slow": {Range: &Range{Start: 20, End: 50, Step: 10}}, // 20, 30, 40
		"mode": {Values: []interface{}{"atr", "percent"}},
	}
	combos, err := g.Expand()
	require.NoError(t, err)
	assert.Len(t, combos, 2*3*2)

	// 参数名按字典序, 首组合取各轴第一个值
	first := combos[0]
	assert.Equal(t, 5, first["fast"])
	assert.Equal(t, "atr", first["mode"])
	assert.Equal(t, 20, first["slow"])

	// 同一网格两次展开顺序完全一致
	again, err := g.Expand()
	require.NoError(t, err)
	assert.Equal(t, combos, again)
}

func TestGridExpandSingleAxis(t *testing.T) {
	combos, err := Grid{"p": {Values: []interface{}{1, 2, 3}}}.Expand()
	require.NoError(t, err)
	require.Len(t, combos, 3)
	assert.Equal(t, 2, combos[1]["p"])
}

func TestGridExpandErrors(t *testing.T) {
	_, err := Grid{}.Expand()
	assert.Error(t, err)

	_, err = Grid{"p": {}}.Expand()
	assert.Error(t, err, "既无 range 也无 values")

	_, err = Grid{"a": {Values: []interface{}{1}}, "b": {Range: &Range{Start: 5, End: 5}}}.Expand()
	assert.Error(t, err, "range 展开为空")
}
