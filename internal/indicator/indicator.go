package indicator

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
)

// 所有序列与输入等长，预热期内的值为 NaN，调用方必须用 Defined 判断后再使用。

// Defined 判断指标值是否已过预热期。
func Defined(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func maskWarmup(values []float64, lookback int) []float64 {
	if lookback > len(values) {
		lookback = len(values)
	}
	for i := 0; i < lookback; i++ {
		values[i] = math.NaN()
	}
	return values
}

// SMA 简单移动平均，前 period-1 根为 NaN。
func SMA(closes []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("sma period 非法: %d", period)
	}
	if len(closes) < period {
		return maskWarmup(make([]float64, len(closes)), len(closes)), nil
	}
	return maskWarmup(talib.Sma(closes, period), period-1), nil
}

// EMA 指数移动平均，前 period-1 根为 NaN。
func EMA(closes []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("ema period 非法: %d", period)
	}
	if len(closes) < period {
		return maskWarmup(make([]float64, len(closes)), len(closes)), nil
	}
	return maskWarmup(talib.Ema(closes, period), period-1), nil
}

// MACDSeries 持有一组 MACD 输出（均与输入对齐）。
type MACDSeries struct {
	Line   []float64
	Signal []float64
	Hist   []float64
}

// MACD 计算 MACD 线/信号线/柱体，预热期为 slow+signal-2 根。
func MACD(closes []float64, fast, slow, signal int) (MACDSeries, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return MACDSeries{}, fmt.Errorf("macd 参数非法: %d/%d/%d", fast, slow, signal)
	}
	if fast >= slow {
		return MACDSeries{}, fmt.Errorf("macd fast(%d) 必须小于 slow(%d)", fast, slow)
	}
	lookback := slow + signal - 2
	if len(closes) <= lookback {
		n := len(closes)
		return MACDSeries{
			Line:   maskWarmup(make([]float64, n), n),
			Signal: maskWarmup(make([]float64, n), n),
			Hist:   maskWarmup(make([]float64, n), n),
		}, nil
	}
	line, sig, hist := talib.Macd(closes, fast, slow, signal)
	return MACDSeries{
		Line:   maskWarmup(line, lookback),
		Signal: maskWarmup(sig, lookback),
		Hist:   maskWarmup(hist, lookback),
	}, nil
}

// ATR 平均真实波幅，前 period 根为 NaN。
func ATR(highs, lows, closes []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("atr period 非法: %d", period)
	}
	if len(closes) != len(highs) || len(closes) != len(lows) {
		return nil, fmt.Errorf("atr 输入长度不一致: %d/%d/%d", len(highs), len(lows), len(closes))
	}
	if len(closes) <= period {
		return maskWarmup(make([]float64, len(closes)), len(closes)), nil
	}
	return maskWarmup(talib.Atr(highs, lows, closes, period), period), nil
}

// CrossSign 计算两条序列的交叉方向：+1 上穿、-1 下穿、0 无交叉或未定义。
func CrossSign(fast, slow []float64) []int {
	n := len(fast)
	if len(slow) < n {
		n = len(slow)
	}
	out := make([]int, n)
	for t := 1; t < n; t++ {
		if !Defined(fast[t]) || !Defined(slow[t]) || !Defined(fast[t-1]) || !Defined(slow[t-1]) {
			continue
		}
		switch {
		case fast[t] > slow[t] && fast[t-1] <= slow[t-1]:
			out[t] = 1
		case fast[t] < slow[t] && fast[t-1] >= slow[t-1]:
			out[t] = -1
		}
	}
	return out
}

// IsPeak 判断 t-1 处是否为严格局部峰值：v[t-2] < v[t-1] > v[t]。
// 序列边界（t<2）或任一值未定义时返回 false。
func IsPeak(values []float64, t int) bool {
	if t < 2 || t >= len(values) {
		return false
	}
	a, b, c := values[t-2], values[t-1], values[t]
	if !Defined(a) || !Defined(b) || !Defined(c) {
		return false
	}
	return a < b && b > c
}
