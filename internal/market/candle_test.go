package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hourMs = int64(3600000)

func hourlyCandles(n int) []Candle {
	out := make([]Candle, n)
	for i := range out {
		open := int64(i+1) * hourMs
		out[i] = Candle{
			OpenTime:  open,
			CloseTime: open + hourMs - 1,
			Open:      100, High: 101, Low: 99, Close: float64(100 + i),
			Volume: 10,
		}
	}
	return out
}

func TestFilterRangeInclusive(t *testing.T) {
	out, err := FilterRange(hourlyCandles(10), 2*hourMs, 5*hourMs)
	require.NoError(t, err)
	require.Len(t, out, 4, "端点均包含")
	assert.Equal(t, 2*hourMs, out[0].OpenTime)
	assert.Equal(t, 5*hourMs, out[3].OpenTime)
}

func TestFilterRangeEmptyIsError(t *testing.T) {
	// 过滤后为空必须报错, 不允许静默空跑
	_, err := FilterRange(hourlyCandles(5), 100*hourMs, 200*hourMs)
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestFilterRangeInvalidBounds(t *testing.T) {
	_, err := FilterRange(hourlyCandles(5), 10*hourMs, 5*hourMs)
	assert.Error(t, err)
}

func TestClip(t *testing.T) {
	candles := hourlyCandles(5)

	out, err := clip(candles, 0, 0)
	require.NoError(t, err)
	assert.Len(t, out, 5, "无边界时原样返回")

	out, err = clip(candles, 0, 2*hourMs)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	_, err = clip(nil, 0, 0)
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestEnsureAscending(t *testing.T) {
	candles := hourlyCandles(5)
	assert.NoError(t, EnsureAscending(candles))

	candles[3].OpenTime = candles[2].OpenTime
	assert.Error(t, EnsureAscending(candles), "相等时间戳同样非法")
}

func TestSeriesExtraction(t *testing.T) {
	candles := hourlyCandles(3)
	assert.Equal(t, []float64{100, 101, 102}, Closes(candles))
	assert.Equal(t, []float64{101, 101, 101}, Highs(candles))
	assert.Equal(t, []float64{99, 99, 99}, Lows(candles))
}
