package strategy

import (
	"fmt"

	"marlin/internal/indicator"
	"marlin/internal/market"
)

// MACDPeakRisk 在 MACDPeak 的信号逻辑之上加入风险管理：
//   - 每根 K 线先检查止损（收盘价 <= 止损价即市价全平，当根不再评估其他信号）；
//   - 买入成交确认后记录止损价 entry - stopDistance(entry)；
//   - 进场数量由 Sizer 按风险预算计算；
//   - 全部状态只有在持仓完全平掉（确认数量为 0）后才清空。
type MACDPeakRisk struct {
	inner *MACDPeak
	sizer *Sizer

	atrPeriod int
	atr       []float64
	closes    []float64
}

// NewMACDPeakRisk 按参数构造实例。
func NewMACDPeakRisk(p Params) (Engine, error) {
	base, err := NewMACDPeak(p)
	if err != nil {
		return nil, err
	}
	atrPeriod := p.Int("atr_len", 14)
	if atrPeriod <= 0 {
		return nil, fmt.Errorf("macd_peak_risk: atr_len 非法: %d", atrPeriod)
	}
	sizer := NewSizer(SizerConfig{
		Mode:         ParseStopMode(p.Str("sl_mode", string(StopModeATR))),
		RiskFraction: p.Float("risk_fraction", 0.01),
		ATRMult:      p.Float("atr_mult", 2.0),
		SLPercent:    p.Float("sl_percent", 1.5),
		SLTicks:      p.Float("sl_ticks", 50),
		TickSize:     p.Float("tick_size", 0.01),
		MinQty:       p.Float("min_qty", 0.0001),
	})
	return &MACDPeakRisk{
		inner:     base.(*MACDPeak),
		sizer:     sizer,
		atrPeriod: atrPeriod,
	}, nil
}

func (m *MACDPeakRisk) Name() string { return "macd_peak_risk" }

// Warmup 取信号预热与 ATR 预热中的较大者。
func (m *MACDPeakRisk) Warmup() int {
	w := m.inner.Warmup()
	if m.atrPeriod+1 > w {
		w = m.atrPeriod + 1
	}
	return w
}

func (m *MACDPeakRisk) Prepare(candles []market.Candle) error {
	if err := validateCandles(candles, m.Warmup(), m.Name()); err != nil {
		return err
	}
	if err := m.inner.Prepare(candles); err != nil {
		return err
	}
	m.closes = market.Closes(candles)
	var err error
	m.atr, err = indicator.ATR(market.Highs(candles), market.Lows(candles), m.closes, m.atrPeriod)
	return err
}

func (m *MACDPeakRisk) OnBar(idx int, equity float64, pos PositionState, pending bool) (*OrderIntent, PositionState) {
	if m.inner.shouldSkip(idx, pending) {
		return nil, pos
	}

	// 止损优先于一切信号
	if !pos.Flat() && pos.StopPrice > 0 && idx < len(m.closes) && m.closes[idx] <= pos.StopPrice {
		m.inner.markSignal(idx)
		return &OrderIntent{Kind: IntentClose, Reason: "stop_loss", BarIndex: idx}, pos
	}

	if !m.inner.ready(idx) {
		return nil, pos
	}

	rising := m.inner.macd1.Line[idx] > m.inner.macd1.Line[idx-1] &&
		m.inner.macd2.Line[idx] > m.inner.macd2.Line[idx-1] &&
		m.inner.macd3.Line[idx] > m.inner.macd3.Line[idx-1]
	aboveZero := m.inner.macd2.Line[idx] > 0

	if pos.Flat() {
		if rising && aboveZero {
			entry := m.closes[idx]
			stopDist := m.sizer.StopDistance(entry, m.atrAt(idx))
			size := m.sizer.PositionSize(entry, stopDist, equity)
			m.inner.markSignal(idx)
			return &OrderIntent{Kind: IntentBuy, Size: size, Reason: "triple_macd_uptrend", BarIndex: idx}, pos
		}
		return nil, pos
	}

	if pos.Level == LevelFull && indicator.IsPeak(m.inner.macd2.Line, idx) && !pos.PeakSeen {
		m.inner.markSignal(idx)
		return &OrderIntent{Kind: IntentSell, Size: pos.Size * 0.5, Reason: "macd_line_peak", BarIndex: idx}, pos
	}

	if pos.Level > LevelFlat && m.inner.cross[idx] < 0 {
		m.inner.markSignal(idx)
		return &OrderIntent{Kind: IntentClose, Reason: "macd_cross_down", BarIndex: idx}, pos
	}
	return nil, pos
}

// OnFill 在买入确认时落定止损价；只有确认持仓归零才清空全部状态。
func (m *MACDPeakRisk) OnFill(fill Fill, pos PositionState) PositionState {
	if fill.Rejected {
		return pos
	}
	switch fill.Kind {
	case IntentBuy:
		pos.Level = LevelFull
		pos.Size = fill.Remaining
		pos.EntryPrice = fill.Price
		pos.PeakSeen = false
		stopDist := m.sizer.StopDistance(fill.Price, m.atrAt(fill.BarIndex))
		if stopDist > 0 {
			pos.StopPrice = fill.Price - stopDist
		} else {
			pos.StopPrice = 0
		}
	case IntentSell:
		pos.Size = fill.Remaining
		if fill.Remaining <= 0 {
			return PositionState{}
		}
		pos.Level = LevelHalf
		pos.PeakSeen = true
	case IntentClose:
		pos.Size = fill.Remaining
		if fill.Remaining <= 0 {
			return PositionState{}
		}
	}
	return pos
}

func (m *MACDPeakRisk) atrAt(idx int) float64 {
	if idx < 0 || idx >= len(m.atr) {
		return 0
	}
	return m.atr[idx]
}
