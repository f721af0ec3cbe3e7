package market

import (
	"errors"
	"fmt"
)

// ErrDataUnavailable 表示请求区间内没有任何可用 K 线（文件缺失或过滤后为空）。
var ErrDataUnavailable = errors.New("market data unavailable")

// Candle 表示一根已收盘的 K 线，时间为毫秒时间戳。
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

// Closes 提取收盘价序列，供指标计算使用。
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Highs 提取最高价序列。
func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

// Lows 提取最低价序列。
func Lows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}

// FilterRange 截取 [start, end]（毫秒，含端点）区间内的 K 线。
// 过滤后为空视为错误而不是静默空跑。
func FilterRange(candles []Candle, start, end int64) ([]Candle, error) {
	if end > 0 && start > end {
		return nil, fmt.Errorf("invalid range: start=%d end=%d", start, end)
	}
	out := make([]Candle, 0, len(candles))
	for _, c := range candles {
		if start > 0 && c.OpenTime < start {
			continue
		}
		if end > 0 && c.OpenTime > end {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty range after filtering [%d, %d]", ErrDataUnavailable, start, end)
	}
	return out, nil
}

// EnsureAscending 校验 K 线按开盘时间严格递增。
func EnsureAscending(candles []Candle) error {
	for i := 1; i < len(candles); i++ {
		if candles[i].OpenTime <= candles[i-1].OpenTime {
			return fmt.Errorf("candles out of order at index %d: %d <= %d",
				i, candles[i].OpenTime, candles[i-1].OpenTime)
		}
	}
	return nil
}
