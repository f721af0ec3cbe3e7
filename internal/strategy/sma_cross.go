package strategy

import (
	"fmt"

	"marlin/internal/indicator"
	"marlin/internal/market"
)

// SMACross 是双均线交叉策略：金叉满仓做多，死叉全部平仓。
// 状态只有 Flat 与 Full 两档。
type SMACross struct {
	guards

	fastPeriod int
	slowPeriod int

	fast  []float64
	slow  []float64
	cross []int
}

// NewSMACross 按参数构造实例。
func NewSMACross(p Params) (Engine, error) {
	fast := p.Int("fast_ma", 10)
	slow := p.Int("slow_ma", 50)
	if fast <= 0 || slow <= 0 {
		return nil, fmt.Errorf("sma_cross: 均线周期必须为正: fast=%d slow=%d", fast, slow)
	}
	if fast >= slow {
		return nil, fmt.Errorf("sma_cross: fast(%d) 必须小于 slow(%d)", fast, slow)
	}
	return &SMACross{
		guards:     newGuards(),
		fastPeriod: fast,
		slowPeriod: slow,
	}, nil
}

func (s *SMACross) Name() string { return "sma_cross" }

// Warmup 返回慢线稳定所需的最少 K 线数。
func (s *SMACross) Warmup() int { return s.slowPeriod }

func (s *SMACross) Prepare(candles []market.Candle) error {
	if err := validateCandles(candles, s.Warmup(), s.Name()); err != nil {
		return err
	}
	closes := market.Closes(candles)
	var err error
	if s.fast, err = indicator.SMA(closes, s.fastPeriod); err != nil {
		return err
	}
	if s.slow, err = indicator.SMA(closes, s.slowPeriod); err != nil {
		return err
	}
	s.cross = indicator.CrossSign(s.fast, s.slow)
	s.guards = newGuards()
	return nil
}

func (s *SMACross) OnBar(idx int, _ float64, pos PositionState, pending bool) (*OrderIntent, PositionState) {
	if s.shouldSkip(idx, pending) {
		return nil, pos
	}
	if idx >= len(s.cross) || !indicator.Defined(s.fast[idx]) || !indicator.Defined(s.slow[idx]) {
		return nil, pos
	}

	if pos.Flat() {
		if s.cross[idx] > 0 {
			s.markSignal(idx)
			return &OrderIntent{Kind: IntentBuy, Reason: "golden_cross", BarIndex: idx}, pos
		}
		return nil, pos
	}
	if s.cross[idx] < 0 {
		s.markSignal(idx)
		return &OrderIntent{Kind: IntentClose, Reason: "dead_cross", BarIndex: idx}, pos
	}
	return nil, pos
}

func (s *SMACross) OnFill(fill Fill, pos PositionState) PositionState {
	if fill.Rejected {
		return pos
	}
	switch fill.Kind {
	case IntentBuy:
		pos.Level = LevelFull
		pos.Size = fill.Remaining
		pos.EntryPrice = fill.Price
	case IntentSell, IntentClose:
		pos.Size = fill.Remaining
		if fill.Remaining <= 0 {
			pos = PositionState{}
		}
	}
	return pos
}
