package analysis

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Input 是绩效分析所需的最小原始数据：资金曲线、已实现盈亏与周期信息。
type Input struct {
	InitialValue   float64
	FinalValue     float64
	EquityValues   []float64
	TradePnLs      []float64
	StartTS        int64 // 毫秒
	EndTS          int64 // 毫秒
	PeriodsPerYear float64
}

// Metrics 是一次完整回测的汇总指标。
// Incomplete 表示分析过程中出现异常，相关指标被置零而不是丢弃整个 run。
type Metrics struct {
	TotalReturnPct float64 `json:"total_return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	WinRatePct     float64 `json:"win_rate_pct"`
	ProfitFactor   float64 `json:"profit_factor"`
	CAGRPct        float64 `json:"cagr_pct"`
	Calmar         float64 `json:"calmar"`
	TradesPerMonth float64 `json:"trades_per_month"`
	TotalTrades    int     `json:"total_trades"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	FinalValue     float64 `json:"final_value"`
	Incomplete     bool    `json:"incomplete,omitempty"`
}

// Compute 从原始数据推导全部指标。输入异常时返回置零指标 + Incomplete 标记，
// 并附带错误供调用方记录，不会让整批任务失败。
func Compute(in Input) (Metrics, error) {
	m := Metrics{FinalValue: in.FinalValue, TotalTrades: len(in.TradePnLs)}
	if in.InitialValue <= 0 || len(in.EquityValues) == 0 {
		m.Incomplete = true
		return m, fmt.Errorf("analysis: 输入不完整 (initial=%v, equity=%d)", in.InitialValue, len(in.EquityValues))
	}

	totalReturn := in.FinalValue/in.InitialValue - 1
	m.TotalReturnPct = totalReturn * 100
	m.MaxDrawdownPct = maxDrawdownPct(in.EquityValues)
	m.SharpeRatio = sharpe(in.EquityValues, in.PeriodsPerYear)

	// 盈亏恰好为 0 的交易计入亏损侧
	wins, losses := 0, 0
	grossProfit, grossLoss := 0.0, 0.0
	for _, pnl := range in.TradePnLs {
		if pnl > 0 {
			wins++
			grossProfit += pnl
		} else {
			losses++
			grossLoss += -pnl
		}
	}
	m.Wins, m.Losses = wins, losses
	if m.TotalTrades > 0 {
		m.WinRatePct = float64(wins) / float64(m.TotalTrades) * 100
	}
	if grossLoss > 0 {
		m.ProfitFactor = grossProfit / grossLoss
	}

	days := float64(in.EndTS-in.StartTS) / float64(24*time.Hour.Milliseconds())
	if days > 0 {
		m.CAGRPct = (math.Pow(1+totalReturn, 365.25/days) - 1) * 100
		m.TradesPerMonth = float64(m.TotalTrades) / (days / 30.44)
	} else {
		m.CAGRPct = m.TotalReturnPct
	}
	if m.MaxDrawdownPct != 0 {
		m.Calmar = m.TotalReturnPct / math.Abs(m.MaxDrawdownPct)
	}

	// 非有限值一律归零并打上不完整标记
	for _, v := range []*float64{&m.TotalReturnPct, &m.MaxDrawdownPct, &m.SharpeRatio,
		&m.WinRatePct, &m.ProfitFactor, &m.CAGRPct, &m.Calmar, &m.TradesPerMonth} {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			*v = 0
			m.Incomplete = true
		}
	}
	return m, nil
}

// maxDrawdownPct 计算峰谷最大回撤（百分比，正数表示有回撤）。
func maxDrawdownPct(equity []float64) float64 {
	peak := math.Inf(-1)
	maxDD := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (peak - v) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD * 100
}

// sharpe 基于逐棒收益率计算年化夏普（无风险利率取 0）。
func sharpe(equity []float64, periodsPerYear float64) float64 {
	if len(equity) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] <= 0 {
			continue
		}
		returns = append(returns, equity[i]/equity[i-1]-1)
	}
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	s := mean / std
	if periodsPerYear > 0 {
		s *= math.Sqrt(periodsPerYear)
	}
	return s
}

// ByName 按指标名取值，用于参数寻优排序。未知名称返回 false。
func (m Metrics) ByName(name string) (float64, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "total_return_pct", "return", "total_return":
		return m.TotalReturnPct, true
	case "max_drawdown_pct", "drawdown":
		return m.MaxDrawdownPct, true
	case "sharpe_ratio", "sharpe":
		return m.SharpeRatio, true
	case "win_rate_pct", "win_rate":
		return m.WinRatePct, true
	case "profit_factor":
		return m.ProfitFactor, true
	case "cagr_pct", "cagr":
		return m.CAGRPct, true
	case "calmar":
		return m.Calmar, true
	case "trades_per_month":
		return m.TradesPerMonth, true
	case "final_value":
		return m.FinalValue, true
	default:
		return 0, false
	}
}

// KnownMetrics 返回可用作排序目标的指标名。
func KnownMetrics() []string {
	return []string{
		"total_return_pct", "max_drawdown_pct", "sharpe_ratio", "win_rate_pct",
		"profit_factor", "cagr_pct", "calmar", "trades_per_month", "final_value",
	}
}
