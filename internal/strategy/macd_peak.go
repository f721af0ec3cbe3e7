package strategy

import (
	"fmt"

	"marlin/internal/indicator"
	"marlin/internal/market"
)

// MACDPeak 是三重 MACD 趋势确认 + MACD 线峰值分段清仓策略（仅做多）。
//
// 进场（仅空仓时）：三组 MACD 线同时逐棒上行，且信号组（第二组）MACD 线在零轴上方。
// 清仓分两段：
//  1. 信号组 MACD 线出现局部峰值（v[t-2] < v[t-1] > v[t]）时卖出一半，仅在
//     满仓且峰值未标记时触发一次；
//  2. 信号组 MACD 线下穿其信号线时平掉剩余仓位（Half 或 Full 均可触发）。
type MACDPeak struct {
	guards

	fast1, slow1 int
	fast2, slow2 int
	fast3, slow3 int
	signal       int

	macd1 indicator.MACDSeries
	macd2 indicator.MACDSeries
	macd3 indicator.MACDSeries
	cross []int
}

// NewMACDPeak 按参数构造实例，参数缺省值沿用经典的 5/20、5/40、20/40 组合。
func NewMACDPeak(p Params) (Engine, error) {
	m := &MACDPeak{
		guards: newGuards(),
		fast1:  p.Int("p_fast1", 5),
		slow1:  p.Int("p_slow1", 20),
		fast2:  p.Int("p_fast2", 5),
		slow2:  p.Int("p_slow2", 40),
		fast3:  p.Int("p_fast3", 20),
		slow3:  p.Int("p_slow3", 40),
		signal: p.Int("p_signal", 9),
	}
	if err := m.checkPeriods(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MACDPeak) checkPeriods() error {
	pairs := [][2]int{{m.fast1, m.slow1}, {m.fast2, m.slow2}, {m.fast3, m.slow3}}
	for i, pr := range pairs {
		if pr[0] <= 0 || pr[1] <= 0 || pr[0] >= pr[1] {
			return fmt.Errorf("macd_peak: 第 %d 组 MACD 周期非法: %d/%d", i+1, pr[0], pr[1])
		}
	}
	if m.signal <= 0 {
		return fmt.Errorf("macd_peak: signal 周期非法: %d", m.signal)
	}
	return nil
}

func (m *MACDPeak) Name() string { return "macd_peak" }

// Warmup 返回信号组 MACD 稳定所需的最少 K 线数。
func (m *MACDPeak) Warmup() int {
	slowest := m.slow1
	if m.slow2 > slowest {
		slowest = m.slow2
	}
	if m.slow3 > slowest {
		slowest = m.slow3
	}
	return slowest + m.signal
}

func (m *MACDPeak) Prepare(candles []market.Candle) error {
	if err := validateCandles(candles, m.Warmup(), m.Name()); err != nil {
		return err
	}
	closes := market.Closes(candles)
	var err error
	if m.macd1, err = indicator.MACD(closes, m.fast1, m.slow1, m.signal); err != nil {
		return err
	}
	if m.macd2, err = indicator.MACD(closes, m.fast2, m.slow2, m.signal); err != nil {
		return err
	}
	if m.macd3, err = indicator.MACD(closes, m.fast3, m.slow3, m.signal); err != nil {
		return err
	}
	m.cross = indicator.CrossSign(m.macd2.Line, m.macd2.Signal)
	m.guards = newGuards()
	return nil
}

// ready 判断三组 MACD 与趋势判断所需的前一棒是否都已定义。
func (m *MACDPeak) ready(idx int) bool {
	if idx < 1 || idx >= len(m.macd2.Line) {
		return false
	}
	for _, s := range []indicator.MACDSeries{m.macd1, m.macd2, m.macd3} {
		if !indicator.Defined(s.Line[idx]) || !indicator.Defined(s.Line[idx-1]) {
			return false
		}
	}
	return indicator.Defined(m.macd2.Signal[idx])
}

func (m *MACDPeak) OnBar(idx int, _ float64, pos PositionState, pending bool) (*OrderIntent, PositionState) {
	if m.shouldSkip(idx, pending) {
		return nil, pos
	}
	if !m.ready(idx) {
		return nil, pos
	}

	rising := m.macd1.Line[idx] > m.macd1.Line[idx-1] &&
		m.macd2.Line[idx] > m.macd2.Line[idx-1] &&
		m.macd3.Line[idx] > m.macd3.Line[idx-1]
	aboveZero := m.macd2.Line[idx] > 0
	peaked := indicator.IsPeak(m.macd2.Line, idx)
	crossDown := m.cross[idx] < 0

	if pos.Flat() {
		if rising && aboveZero {
			m.markSignal(idx)
			return &OrderIntent{Kind: IntentBuy, Reason: "triple_macd_uptrend", BarIndex: idx}, pos
		}
		return nil, pos
	}

	// 第一段：峰值减半，只触发一次
	if pos.Level == LevelFull && peaked && !pos.PeakSeen {
		m.markSignal(idx)
		return &OrderIntent{Kind: IntentSell, Size: pos.Size * 0.5, Reason: "macd_line_peak", BarIndex: idx}, pos
	}

	// 第二段：死叉清仓（Half 或仍在 Full 都适用）
	if pos.Level > LevelFlat && crossDown {
		m.markSignal(idx)
		return &OrderIntent{Kind: IntentClose, Reason: "macd_cross_down", BarIndex: idx}, pos
	}
	return nil, pos
}

func (m *MACDPeak) OnFill(fill Fill, pos PositionState) PositionState {
	if fill.Rejected {
		return pos
	}
	switch fill.Kind {
	case IntentBuy:
		pos.Level = LevelFull
		pos.Size = fill.Remaining
		pos.EntryPrice = fill.Price
		pos.PeakSeen = false
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
