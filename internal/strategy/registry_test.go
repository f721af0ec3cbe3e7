package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinRegistered(t *testing.T) {
	names := Names()
	assert.Contains(t, names, "sma_cross")
	assert.Contains(t, names, "macd_peak")
	assert.Contains(t, names, "macd_peak_risk")
}

func TestLookupCaseInsensitive(t *testing.T) {
	f, ok := Lookup(" SMA_Cross ")
	require.True(t, ok)
	assert.Equal(t, "sma_cross", f.Name)

	_, ok = Lookup("不存在的策略")
	assert.False(t, ok)
}

func TestFactoryBuildAppliesDefaults(t *testing.T) {
	f, ok := Lookup("sma_cross")
	require.True(t, ok)

	eng, err := f.Build(nil)
	require.NoError(t, err)
	assert.Equal(t, "sma_cross", eng.Name())
	assert.Equal(t, 50, eng.Warmup(), "缺省慢线周期")

	eng, err = f.Build(Params{"slow_ma": 100})
	require.NoError(t, err)
	assert.Equal(t, 100, eng.Warmup())
}

func TestValidateParamsSchema(t *testing.T) {
	f, ok := Lookup("sma_cross")
	require.True(t, ok)

	assert.NoError(t, f.ValidateParams(Merge(f.Defaults, Params{"fast_ma": 5})))
	assert.Error(t, f.ValidateParams(Merge(f.Defaults, Params{"fast_ma": 0})), "低于下限")
	assert.Error(t, f.ValidateParams(Merge(f.Defaults, Params{"fast_ma": 2.5})), "非整数周期")
}

func TestValidateParamsRiskVariant(t *testing.T) {
	f, ok := Lookup("macd_peak_risk")
	require.True(t, ok)

	assert.NoError(t, f.ValidateParams(Merge(f.Defaults, Params{"sl_mode": "percent"})))
	assert.Error(t, f.ValidateParams(Merge(f.Defaults, Params{"risk_fraction": 1.5})))
	assert.Error(t, f.ValidateParams(Merge(f.Defaults, Params{"sl_mode": "移动止损"})))
}

func TestParseParamsJSON(t *testing.T) {
	f, ok := Lookup("sma_cross")
	require.True(t, ok)

	p, err := f.ParseParamsJSON([]byte(`{"fast_ma": 5, "slow_ma": 20}`))
	require.NoError(t, err)
	assert.Equal(t, 5.0, p.Float("fast_ma", 0))
	assert.Equal(t, 20, p.Int("slow_ma", 0))

	// 空输入等价于全缺省
	p, err = f.ParseParamsJSON(nil)
	require.NoError(t, err)
	assert.Empty(t, p)

	_, err = f.ParseParamsJSON([]byte(`{"fast_ma": `))
	assert.Error(t, err)
	_, err = f.ParseParamsJSON([]byte(`[1, 2, 3]`))
	assert.Error(t, err)
	_, err = f.ParseParamsJSON([]byte(`{"fast_ma": 0}`))
	assert.Error(t, err, "合并缺省后仍需通过 schema")
}

func TestParamsAccessors(t *testing.T) {
	p := Params{"a": 1.5, "b": 7, "mode": "percent", "blank": "  "}
	assert.Equal(t, 1.5, p.Float("a", 0))
	assert.Equal(t, 7, p.Int("b", 0))
	assert.Equal(t, 3, p.Int("missing", 3))
	assert.Equal(t, "percent", p.Str("mode", "atr"))
	assert.Equal(t, "atr", p.Str("blank", "atr"), "空白字符串回退缺省")

	merged := Merge(Params{"a": 1, "b": 2}, Params{"b": 9})
	assert.Equal(t, 9, merged["b"])
	assert.Equal(t, 1, merged["a"])
}
