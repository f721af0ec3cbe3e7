package strategy

import (
	"math"
	"strings"
)

// StopMode 表示止损距离的计算方式。
type StopMode string

const (
	StopModeATR     StopMode = "ATR"
	StopModePercent StopMode = "Percent"
	StopModeTicks   StopMode = "Ticks"
)

// ParseStopMode 宽松解析止损模式，未知输入回退 ATR。
func ParseStopMode(s string) StopMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "percent", "pct":
		return StopModePercent
	case "ticks", "tick":
		return StopModeTicks
	default:
		return StopModeATR
	}
}

// SizerConfig 配置风险仓位计算。RiskFraction 为每笔交易愿意承担的
// 权益比例（0 < r < 1）。
type SizerConfig struct {
	Mode         StopMode
	RiskFraction float64
	ATRMult      float64
	SLPercent    float64
	SLTicks      float64
	TickSize     float64
	MinQty       float64
	// 止损距离为 0 时的保底仓位（权益比例）。
	FallbackFraction float64
}

// Sizer 把入场价与止损距离换算成订单数量。
// 任何计算失败都返回最小下单量，绝不向上传播错误。
type Sizer struct {
	cfg SizerConfig
}

// NewSizer 构造 Sizer 并补齐缺省值。
func NewSizer(cfg SizerConfig) *Sizer {
	if cfg.Mode == "" {
		cfg.Mode = StopModeATR
	}
	if cfg.RiskFraction <= 0 || cfg.RiskFraction >= 1 {
		cfg.RiskFraction = 0.01
	}
	if cfg.ATRMult <= 0 {
		cfg.ATRMult = 2.0
	}
	if cfg.SLPercent <= 0 {
		cfg.SLPercent = 1.5
	}
	if cfg.SLTicks <= 0 {
		cfg.SLTicks = 50
	}
	if cfg.TickSize <= 0 {
		cfg.TickSize = 0.01
	}
	if cfg.MinQty <= 0 {
		cfg.MinQty = 0.0001
	}
	if cfg.FallbackFraction <= 0 {
		cfg.FallbackFraction = 0.02
	}
	return &Sizer{cfg: cfg}
}

// StopDistance 按配置模式计算止损距离。ATR 模式需要当根 ATR 值，
// ATR 未定义时返回 0（调用方会落入保底仓位分支）。
func (s *Sizer) StopDistance(entryPrice, atr float64) float64 {
	switch s.cfg.Mode {
	case StopModePercent:
		if entryPrice <= 0 {
			return 0
		}
		return entryPrice * s.cfg.SLPercent / 100
	case StopModeTicks:
		return s.cfg.SLTicks * s.cfg.TickSize
	default:
		if !finitePositive(atr) {
			return 0
		}
		return atr * s.cfg.ATRMult
	}
}

// PositionSize 按风险预算计算下单数量，永不返回非正值。
func (s *Sizer) PositionSize(entryPrice, stopDistance, equity float64) float64 {
	if !finitePositive(entryPrice) || !finitePositive(equity) {
		return s.cfg.MinQty
	}
	var size float64
	if finitePositive(stopDistance) {
		riskCash := equity * s.cfg.RiskFraction
		size = riskCash / stopDistance / entryPrice
	} else {
		size = equity * s.cfg.FallbackFraction / entryPrice
	}
	if !finitePositive(size) {
		return s.cfg.MinQty
	}
	return math.Max(size, s.cfg.MinQty)
}

// MinQty 返回配置的最小下单量。
func (s *Sizer) MinQty() float64 { return s.cfg.MinQty }

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
