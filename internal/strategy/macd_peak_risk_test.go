package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func injectedMACDPeakRisk(line []float64, cross []int, closes, atr []float64) *MACDPeakRisk {
	return &MACDPeakRisk{
		inner:     injectedMACDPeak(line, cross),
		sizer:     NewSizer(SizerConfig{Mode: StopModeATR, RiskFraction: 0.01, ATRMult: 2.0}),
		atrPeriod: 14,
		atr:       atr,
		closes:    closes,
	}
}

func TestMACDPeakRiskStopLossBeforeSignals(t *testing.T) {
	line := peakScriptLine()
	cross := make([]int, len(line))
	cross[16] = -1 // 同一根 K 线上止损先于死叉
	closes := constSeries(len(line), 100)
	closes[16] = 94
	m := injectedMACDPeakRisk(line, cross, closes, constSeries(len(line), 1))

	pos := PositionState{Level: LevelFull, Size: 1, EntryPrice: 100, StopPrice: 95}
	intent, _ := m.OnBar(16, 10000, pos, false)
	require.NotNil(t, intent)
	assert.Equal(t, IntentClose, intent.Kind)
	assert.Equal(t, "stop_loss", intent.Reason)
}

func TestMACDPeakRiskStopNotHitAbovePrice(t *testing.T) {
	line := peakScriptLine()
	closes := constSeries(len(line), 100)
	m := injectedMACDPeakRisk(line, make([]int, len(line)), closes, constSeries(len(line), 1))

	pos := PositionState{Level: LevelFull, Size: 1, EntryPrice: 100, StopPrice: 95, PeakSeen: true}
	intent, _ := m.OnBar(17, 10000, pos, false)
	assert.Nil(t, intent, "收盘价高于止损价时不触发")
}

func TestMACDPeakRiskSizedEntry(t *testing.T) {
	line := peakScriptLine()
	closes := constSeries(len(line), 100)
	atr := constSeries(len(line), 1.0)
	m := injectedMACDPeakRisk(line, make([]int, len(line)), closes, atr)

	// idx=10 三线同升且在零轴上方，数量 = 10000*1% / (1*2) / 100
	intent, _ := m.OnBar(10, 10000, PositionState{}, false)
	require.NotNil(t, intent)
	assert.Equal(t, IntentBuy, intent.Kind)
	assert.Equal(t, "triple_macd_uptrend", intent.Reason)
	assert.InDelta(t, 0.5, intent.Size, 1e-9)
}

func TestMACDPeakRiskBuyFillSetsStop(t *testing.T) {
	line := peakScriptLine()
	atr := constSeries(len(line), 1.5)
	m := injectedMACDPeakRisk(line, make([]int, len(line)), constSeries(len(line), 100), atr)

	pos := m.OnFill(Fill{BarIndex: 10, Kind: IntentBuy, Price: 100, Size: 0.5, Remaining: 0.5}, PositionState{})
	assert.Equal(t, LevelFull, pos.Level)
	// 止损价 = 成交价 - atr*mult = 100 - 1.5*2
	assert.InDelta(t, 97.0, pos.StopPrice, 1e-9)
	assert.False(t, pos.PeakSeen)
}

func TestMACDPeakRiskCloseFillClearsState(t *testing.T) {
	line := peakScriptLine()
	m := injectedMACDPeakRisk(line, make([]int, len(line)), constSeries(len(line), 100), constSeries(len(line), 1))

	pos := PositionState{Level: LevelHalf, Size: 0.25, EntryPrice: 100, StopPrice: 95, PeakSeen: true}
	flat := m.OnFill(Fill{Kind: IntentClose, Price: 94, Size: 0.25, Remaining: 0}, pos)
	assert.Equal(t, PositionState{}, flat)
}

func TestNewMACDPeakRiskValidation(t *testing.T) {
	_, err := NewMACDPeakRisk(Params{"atr_len": 0})
	assert.Error(t, err)
	_, err = NewMACDPeakRisk(Params{"p_fast1": 40, "p_slow1": 5})
	assert.Error(t, err)
}
