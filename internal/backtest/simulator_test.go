package backtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marlin/internal/market"
	"marlin/internal/strategy"
)

// scriptEngine 按脚本在指定 K 线上给出意图，用来单独验证撮合逻辑。
type scriptEngine struct {
	intents map[int]*strategy.OrderIntent
}

func (e *scriptEngine) Name() string                            { return "script" }
func (e *scriptEngine) Warmup() int                             { return 0 }
func (e *scriptEngine) Prepare(_ []market.Candle) error         { return nil }

func (e *scriptEngine) OnBar(idx int, _ float64, pos strategy.PositionState, _ bool) (*strategy.OrderIntent, strategy.PositionState) {
	if intent, ok := e.intents[idx]; ok {
		return intent, pos
	}
	return nil, pos
}

func (e *scriptEngine) OnFill(fill strategy.Fill, pos strategy.PositionState) strategy.PositionState {
	if fill.Rejected {
		return pos
	}
	switch fill.Kind {
	case strategy.IntentBuy:
		pos.Level = strategy.LevelFull
		pos.Size = fill.Remaining
		pos.EntryPrice = fill.Price
	default:
		pos.Size = fill.Remaining
		if fill.Remaining <= 0 {
			pos = strategy.PositionState{}
		}
	}
	return pos
}

func flatCandles(closes ...float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		open := int64(i+1) * 3600000
		out[i] = market.Candle{
			OpenTime:  open,
			CloseTime: open + 3599999,
			Open:      c, High: c, Low: c, Close: c,
		}
	}
	return out
}

func testConfig() Config {
	tf, _ := market.ParseTimeframe("1h")
	return Config{
		Symbol:       "BTCUSDT",
		Timeframe:    tf,
		InitialCash:  10000,
		Commission:   0,
		SlippageBps:  0,
		CashFraction: 0.95,
	}
}

func TestSimulatorBuyThenClose(t *testing.T) {
	sim := NewSimulator(testConfig())
	eng := &scriptEngine{intents: map[int]*strategy.OrderIntent{
		1: {Kind: strategy.IntentBuy, Size: 1, Reason: "entry", BarIndex: 1},
		3: {Kind: strategy.IntentClose, Reason: "exit", BarIndex: 3},
	}}

	res, err := sim.Run(context.Background(), eng, flatCandles(100, 100, 110, 120, 120))
	require.NoError(t, err)

	require.Len(t, res.Trades, 2)
	assert.Equal(t, "buy", res.Trades[0].Action)
	assert.InDelta(t, 100.0, res.Trades[0].Price, 1e-9)
	assert.Equal(t, "close", res.Trades[1].Action)
	assert.InDelta(t, 120.0, res.Trades[1].Price, 1e-9)
	assert.InDelta(t, 20.0, res.Trades[1].RealizedPnL, 1e-9)

	assert.Len(t, res.Equity, 5, "每根 K 线一个资金点")
	assert.InDelta(t, 10020.0, res.FinalValue, 1e-9)
	assert.InDelta(t, 10010.0, res.Equity[2].Equity, 1e-9, "持仓期间按市价计权益")
	assert.Equal(t, 10000.0, res.InitialCash)
	assert.Equal(t, 1, res.Metrics.TotalTrades)
	assert.Equal(t, 1, res.Metrics.Wins)
}

func TestSimulatorCommissionAndSlippage(t *testing.T) {
	cfg := testConfig()
	cfg.Commission = 0.001
	cfg.SlippageBps = 10 // 0.1%
	sim := NewSimulator(cfg)
	eng := &scriptEngine{intents: map[int]*strategy.OrderIntent{
		0: {Kind: strategy.IntentBuy, Size: 1, Reason: "entry"},
		2: {Kind: strategy.IntentClose, Reason: "exit"},
	}}

	res, err := sim.Run(context.Background(), eng, flatCandles(100, 100, 100))
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)

	// 买入滑点向上: 100 * 1.001 = 100.1, 手续费 = 100.1 * 0.001
	assert.InDelta(t, 100.1, res.Trades[0].Price, 1e-9)
	assert.InDelta(t, 0.1001, res.Trades[0].Fee, 1e-9)
	// 卖出滑点向下: 100 * 0.999 = 99.9
	assert.InDelta(t, 99.9, res.Trades[1].Price, 1e-9)
	// pnl = (99.9 - 100.1) * 1 - 0.0999
	assert.InDelta(t, -0.2999, res.Trades[1].RealizedPnL, 1e-9)
}

func TestSimulatorAutoSizedBuyUsesCashFraction(t *testing.T) {
	sim := NewSimulator(testConfig())
	eng := &scriptEngine{intents: map[int]*strategy.OrderIntent{
		0: {Kind: strategy.IntentBuy, Reason: "entry"}, // Size 0 → 按现金比例定量
	}}

	res, err := sim.Run(context.Background(), eng, flatCandles(100, 100))
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)
	assert.InDelta(t, 95.0, res.Trades[0].Quantity, 1e-9, "10000*0.95/100")
}

func TestSimulatorRejectsUnaffordableBuy(t *testing.T) {
	sim := NewSimulator(testConfig())
	eng := &scriptEngine{intents: map[int]*strategy.OrderIntent{
		0: {Kind: strategy.IntentBuy, Size: 1000, Reason: "entry"}, // 需要 10 万现金
	}}

	res, err := sim.Run(context.Background(), eng, flatCandles(100, 100))
	require.NoError(t, err)
	assert.Empty(t, res.Trades, "拒单不产生成交记录")
	assert.InDelta(t, 10000.0, res.FinalValue, 1e-9)
}

func TestSimulatorForcedCloseAtEndOfData(t *testing.T) {
	sim := NewSimulator(testConfig())
	eng := &scriptEngine{intents: map[int]*strategy.OrderIntent{
		0: {Kind: strategy.IntentBuy, Size: 1, Reason: "entry"},
	}}

	res, err := sim.Run(context.Background(), eng, flatCandles(100, 105, 110))
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)
	last := res.Trades[1]
	assert.Equal(t, "close", last.Action)
	assert.Equal(t, "end_of_data", last.Reason)
	assert.InDelta(t, 110.0, last.Price, 1e-9)
	assert.InDelta(t, 10010.0, res.FinalValue, 1e-9)
}

func TestSimulatorPartialSell(t *testing.T) {
	sim := NewSimulator(testConfig())
	eng := &scriptEngine{intents: map[int]*strategy.OrderIntent{
		0: {Kind: strategy.IntentBuy, Size: 2, Reason: "entry"},
		1: {Kind: strategy.IntentSell, Size: 1, Reason: "scale_out"},
	}}

	res, err := sim.Run(context.Background(), eng, flatCandles(100, 110, 110))
	require.NoError(t, err)
	require.Len(t, res.Trades, 3)
	assert.Equal(t, "sell", res.Trades[1].Action)
	assert.InDelta(t, 1.0, res.Trades[1].Quantity, 1e-9)
	assert.InDelta(t, 10.0, res.Trades[1].RealizedPnL, 1e-9)
	assert.Equal(t, "end_of_data", res.Trades[2].Reason)
}

func TestSimulatorCancelledContext(t *testing.T) {
	sim := NewSimulator(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sim.Run(ctx, &scriptEngine{}, flatCandles(100, 100))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulatorRejectsUnorderedCandles(t *testing.T) {
	sim := NewSimulator(testConfig())
	candles := flatCandles(100, 100)
	candles[0].OpenTime, candles[1].OpenTime = candles[1].OpenTime, candles[0].OpenTime

	_, err := sim.Run(context.Background(), &scriptEngine{}, candles)
	assert.Error(t, err)
}
