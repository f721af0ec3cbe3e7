package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMAWarmupMasked(t *testing.T) {
	out, err := SMA([]float64{1, 2, 3, 4, 5}, 3)
	require.NoError(t, err)
	require.Len(t, out, 5)

	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 2.0, out[2], 1e-9)
	assert.InDelta(t, 3.0, out[3], 1e-9)
	assert.InDelta(t, 4.0, out[4], 1e-9)
}

func TestSMAShortInputAllNaN(t *testing.T) {
	out, err := SMA([]float64{1, 2}, 5)
	require.NoError(t, err)
	require.Len(t, out, 2)
	for _, v := range out {
		assert.False(t, Defined(v))
	}
}

func TestSMAInvalidPeriod(t *testing.T) {
	_, err := SMA([]float64{1, 2, 3}, 0)
	assert.Error(t, err)
}

func TestMACDWarmupAndAlignment(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	out, err := MACD(closes, 5, 20, 9)
	require.NoError(t, err)
	require.Len(t, out.Line, 60)
	require.Len(t, out.Signal, 60)
	require.Len(t, out.Hist, 60)

	lookback := 20 + 9 - 2
	for i := 0; i < lookback; i++ {
		assert.False(t, Defined(out.Line[i]), "bar %d 应处于预热期", i)
	}
	for i := lookback; i < 60; i++ {
		assert.True(t, Defined(out.Line[i]), "bar %d 应已定义", i)
		assert.True(t, Defined(out.Signal[i]))
		assert.InDelta(t, out.Line[i]-out.Signal[i], out.Hist[i], 1e-9)
	}
}

func TestMACDFastMustBeLessThanSlow(t *testing.T) {
	_, err := MACD(make([]float64, 100), 20, 5, 9)
	assert.Error(t, err)
}

func TestATRWarmup(t *testing.T) {
	n := 30
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		closes[i] = 100
		highs[i] = 102
		lows[i] = 98
	}
	out, err := ATR(highs, lows, closes, 14)
	require.NoError(t, err)
	for i := 0; i <= 13; i++ {
		assert.False(t, Defined(out[i]))
	}
	// 固定振幅下 ATR 收敛到 high-low
	assert.InDelta(t, 4.0, out[n-1], 1e-6)
}

func TestATRLengthMismatch(t *testing.T) {
	_, err := ATR(make([]float64, 10), make([]float64, 9), make([]float64, 10), 5)
	assert.Error(t, err)
}

func TestCrossSign(t *testing.T) {
	fast := []float64{1, 3, 1, 3}
	slow := []float64{2, 2, 2, 2}
	out := CrossSign(fast, slow)
	assert.Equal(t, []int{0, 1, -1, 1}, out)
}

func TestCrossSignSkipsUndefined(t *testing.T) {
	fast := []float64{math.NaN(), 3, 1}
	slow := []float64{2, 2, 2}
	out := CrossSign(fast, slow)
	assert.Equal(t, 0, out[1], "前一根未定义时不算交叉")
	assert.Equal(t, -1, out[2])
}

func TestCrossSignTouchThenBreak(t *testing.T) {
	// 相等后突破也算交叉
	fast := []float64{2, 3}
	slow := []float64{2, 2}
	out := CrossSign(fast, slow)
	assert.Equal(t, 1, out[1])
}

func TestIsPeak(t *testing.T) {
	values := []float64{1.0, 1.5, 2.0, 1.8, 1.2}
	peaks := make([]bool, len(values))
	for i := range values {
		peaks[i] = IsPeak(values, i)
	}
	assert.Equal(t, []bool{false, false, false, true, false}, peaks)
}

func TestIsPeakBoundariesAndNaN(t *testing.T) {
	assert.False(t, IsPeak([]float64{1, 2, 1}, 5))
	assert.False(t, IsPeak([]float64{math.NaN(), 2, 1}, 2))
	// 平台不算峰
	assert.False(t, IsPeak([]float64{2, 2, 1}, 2))
}
