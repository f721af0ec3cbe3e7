package backtest

import (
	"time"

	"marlin/internal/analysis"
	"marlin/internal/market"
	"marlin/internal/strategy"
)

// Config 记录一次模拟的参数快照，便于重放。
type Config struct {
	Symbol       string           `json:"symbol"`
	Timeframe    market.Timeframe `json:"-"`
	TimeframeKey string           `json:"timeframe"`
	InitialCash  float64          `json:"initial_cash"`
	Commission   float64          `json:"commission"`
	SlippageBps  float64          `json:"slippage_bps"`
	// 未显式给出数量的买入按可用现金比例定量（backtrader PercentSizer 95 的习惯）。
	CashFraction float64 `json:"cash_fraction"`
}

func (c Config) withDefaults() Config {
	if c.InitialCash <= 0 {
		c.InitialCash = 10000
	}
	if c.Commission < 0 {
		c.Commission = 0
	}
	if c.SlippageBps < 0 {
		c.SlippageBps = 0
	}
	if c.CashFraction <= 0 || c.CashFraction > 1 {
		c.CashFraction = 0.95
	}
	if c.TimeframeKey == "" {
		c.TimeframeKey = c.Timeframe.Key
	}
	return c
}

// Trade 记录一次成交（开仓或减仓/平仓），一经产生不再修改。
type Trade struct {
	ID          int64   `json:"id"`
	TS          int64   `json:"ts"`
	BarIndex    int     `json:"bar_index"`
	Action      string  `json:"action"` // buy/sell/close
	Price       float64 `json:"price"`
	Quantity    float64 `json:"quantity"`
	Notional    float64 `json:"notional"`
	Fee         float64 `json:"fee"`
	RealizedPnL float64 `json:"realized_pnl"`
	Reason      string  `json:"reason"`
}

// EquityPoint 是资金曲线上的一个点。
type EquityPoint struct {
	TS     int64   `json:"ts"`
	Equity float64 `json:"equity"`
}

// Result 是一次完整回测的只读产出。
type Result struct {
	ID          string            `json:"id"`
	Symbol      string            `json:"symbol"`
	Timeframe   string            `json:"timeframe"`
	Strategy    string            `json:"strategy"`
	Params      strategy.Params   `json:"params"`
	StartTS     int64             `json:"start_ts"`
	EndTS       int64             `json:"end_ts"`
	InitialCash float64           `json:"initial_cash"`
	FinalValue  float64           `json:"final_value"`
	Metrics     analysis.Metrics  `json:"metrics"`
	Trades      []Trade           `json:"trades"`
	Equity      []EquityPoint     `json:"equity"`
	CreatedAt   time.Time         `json:"created_at"`
}
