package strategy

import (
	"fmt"
	"math"
	"strings"

	"marlin/internal/market"
)

// Level 表示持仓层级。层级只能按策略定义的顺序迁移，
// 止损是唯一允许从 Full/Half 直接跳回 Flat 的路径。
type Level int

const (
	LevelFlat Level = 0
	LevelHalf Level = 1
	LevelFull Level = 2
)

func (l Level) String() string {
	switch l {
	case LevelHalf:
		return "half"
	case LevelFull:
		return "full"
	default:
		return "flat"
	}
}

// PositionState 是单个策略实例独占的持仓状态，只在收到成交回报时变更。
// StopPrice 仅在 Level > Flat 时有定义。
type PositionState struct {
	Level      Level
	Size       float64
	EntryPrice float64
	StopPrice  float64
	PeakSeen   bool
}

// Flat 判断是否空仓。
func (p PositionState) Flat() bool { return p.Level == LevelFlat || p.Size <= 0 }

// IntentKind 表示订单意图类型。
type IntentKind int

const (
	IntentBuy IntentKind = iota + 1
	IntentSell
	IntentClose
)

func (k IntentKind) String() string {
	switch k {
	case IntentBuy:
		return "buy"
	case IntentSell:
		return "sell"
	case IntentClose:
		return "close"
	default:
		return "unknown"
	}
}

// OrderIntent 是策略在某根 K 线上给出的唯一订单意图。
// Size<=0 的 Buy 表示交由模拟引擎按资金比例自动定量。
type OrderIntent struct {
	Kind     IntentKind
	Size     float64
	Reason   string
	BarIndex int
}

// Fill 是模拟引擎对一次意图的回报。Rejected 时持仓不变，
// Remaining 为成交后的持仓数量。
type Fill struct {
	BarIndex  int
	Kind      IntentKind
	Price     float64
	Size      float64
	Remaining float64
	Rejected  bool
}

// Engine 是策略决策状态机的统一接口。
// Prepare 在回测窗口开始前预计算指标；OnBar 对每根 K 线至多给出一个意图，
// 并返回（可能更新的）持仓状态；OnFill 在成交/拒单后被调用。
type Engine interface {
	Name() string
	Warmup() int
	Prepare(candles []market.Candle) error
	OnBar(idx int, equity float64, pos PositionState, pending bool) (*OrderIntent, PositionState)
	OnFill(fill Fill, pos PositionState) PositionState
}

// Params 是策略参数集合，值可能是数字或字符串（如 sl_mode）。
type Params map[string]any

// Float 读取数值参数，缺失或类型不符时返回 def。
func (p Params) Float(name string, def float64) float64 {
	v, ok := p[name]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return def
	}
}

// Int 读取整型参数，非整数值向下取整。
func (p Params) Int(name string, def int) int {
	f := p.Float(name, math.NaN())
	if math.IsNaN(f) {
		return def
	}
	return int(f)
}

// Str 读取字符串参数。
func (p Params) Str(name string, def string) string {
	if v, ok := p[name]; ok {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return def
}

// Merge 返回 base 与 override 合并后的新参数集，override 优先。
func Merge(base, override Params) Params {
	out := make(Params, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// guards 聚合所有策略共享的防护状态：
// 同一根 K 线不重复评估、同一根 K 线不重复发信号。
type guards struct {
	lastProcessed int
	lastSignalBar int
}

func newGuards() guards {
	return guards{lastProcessed: -1, lastSignalBar: -1}
}

// shouldSkip 对重复调用与未决订单做统一拦截。
func (g *guards) shouldSkip(idx int, pending bool) bool {
	if pending {
		return true
	}
	if idx <= g.lastProcessed {
		return true
	}
	g.lastProcessed = idx
	return g.lastSignalBar == idx
}

func (g *guards) markSignal(idx int) {
	g.lastSignalBar = idx
}

func validateCandles(candles []market.Candle, warmup int, name string) error {
	if len(candles) == 0 {
		return fmt.Errorf("%s: 没有可用 K 线", name)
	}
	if len(candles) <= warmup {
		return fmt.Errorf("%s: K 线不足以完成预热，需要 > %d 根，只有 %d 根", name, warmup, len(candles))
	}
	return nil
}
