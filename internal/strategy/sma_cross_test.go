package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marlin/internal/market"
)

func constSeries(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func injectedSMACross(cross []int) *SMACross {
	n := len(cross)
	return &SMACross{
		guards: newGuards(),
		fast:   constSeries(n, 1),
		slow:   constSeries(n, 2),
		cross:  cross,
	}
}

func TestNewSMACrossRejectsBadPeriods(t *testing.T) {
	_, err := NewSMACross(Params{"fast_ma": 0, "slow_ma": 10})
	assert.Error(t, err)
	_, err = NewSMACross(Params{"fast_ma": 50, "slow_ma": 10})
	assert.Error(t, err)
	_, err = NewSMACross(Params{"fast_ma": 10, "slow_ma": 10})
	assert.Error(t, err)
}

func TestSMACrossGoldenCrossBuysWhenFlat(t *testing.T) {
	s := injectedSMACross([]int{0, 0, 1, 0})

	intent, pos := s.OnBar(2, 10000, PositionState{}, false)
	require.NotNil(t, intent)
	assert.Equal(t, IntentBuy, intent.Kind)
	assert.Equal(t, "golden_cross", intent.Reason)
	assert.Equal(t, 2, intent.BarIndex)
	assert.True(t, pos.Flat(), "持仓只在成交回报后变更")
}

func TestSMACrossDeadCrossClosesPosition(t *testing.T) {
	s := injectedSMACross([]int{0, 0, -1, 0})
	pos := PositionState{Level: LevelFull, Size: 1, EntryPrice: 100}

	intent, _ := s.OnBar(2, 10000, pos, false)
	require.NotNil(t, intent)
	assert.Equal(t, IntentClose, intent.Kind)
	assert.Equal(t, "dead_cross", intent.Reason)
}

func TestSMACrossIgnoresDeadCrossWhenFlat(t *testing.T) {
	s := injectedSMACross([]int{0, -1, 0})
	intent, _ := s.OnBar(1, 10000, PositionState{}, false)
	assert.Nil(t, intent)
}

func TestSMACrossGuards(t *testing.T) {
	s := injectedSMACross([]int{0, 1, 1, 1})

	// 未决订单期间不评估
	intent, _ := s.OnBar(1, 10000, PositionState{}, true)
	assert.Nil(t, intent)

	intent, _ = s.OnBar(1, 10000, PositionState{}, false)
	require.NotNil(t, intent)

	// 同一根 K 线重复调用不再发信号
	intent, _ = s.OnBar(1, 10000, PositionState{}, false)
	assert.Nil(t, intent)

	// 旧 K 线不回放
	intent, _ = s.OnBar(0, 10000, PositionState{}, false)
	assert.Nil(t, intent)
}

func TestSMACrossOnFill(t *testing.T) {
	s := injectedSMACross([]int{0})

	pos := s.OnFill(Fill{Kind: IntentBuy, Price: 100, Size: 2, Remaining: 2}, PositionState{})
	assert.Equal(t, LevelFull, pos.Level)
	assert.Equal(t, 2.0, pos.Size)
	assert.Equal(t, 100.0, pos.EntryPrice)

	// 拒单不改变持仓
	same := s.OnFill(Fill{Kind: IntentBuy, Rejected: true}, pos)
	assert.Equal(t, pos, same)

	// 全部平掉后回到空仓
	flat := s.OnFill(Fill{Kind: IntentClose, Price: 110, Size: 2, Remaining: 0}, pos)
	assert.Equal(t, PositionState{}, flat)
}

func TestSMACrossPrepareNeedsEnoughCandles(t *testing.T) {
	eng, err := NewSMACross(Params{"fast_ma": 3, "slow_ma": 5})
	require.NoError(t, err)

	candles := make([]market.Candle, 4)
	for i := range candles {
		candles[i] = market.Candle{OpenTime: int64(i) * 60000, Open: 100, High: 101, Low: 99, Close: 100}
	}
	assert.Error(t, eng.Prepare(candles))
}
