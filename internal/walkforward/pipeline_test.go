package walkforward

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marlin/internal/analysis"
	"marlin/internal/backtest"
	"marlin/internal/market"
	"marlin/internal/optimize"
	"marlin/internal/strategy"
)

func TestWindowsSlicing(t *testing.T) {
	wins := windows(400, 200, 50)
	require.Len(t, wins, 4)

	first := wins[0]
	assert.Equal(t, 0, first.trainStart)
	assert.Equal(t, 200, first.trainEnd)
	assert.Equal(t, 200, first.testStart, "测试段紧跟训练段")
	assert.Equal(t, 250, first.testEnd)

	for i := 1; i < len(wins); i++ {
		// 每个周期整体前移一个测试段, 测试段首尾相接不重叠
		assert.Equal(t, wins[i-1].trainStart+50, wins[i].trainStart)
		assert.Equal(t, wins[i-1].testEnd, wins[i].testStart)
	}
	last := wins[len(wins)-1]
	assert.Equal(t, 400, last.testEnd, "最后一个周期正好用尽数据")
}

func TestWindowsInsufficientData(t *testing.T) {
	assert.Empty(t, windows(249, 200, 50))
	assert.Len(t, windows(250, 200, 50), 1)
}

func TestSummarizeSampleStdDev(t *testing.T) {
	cycles := []CycleResult{
		{TestMetrics: analysis.Metrics{TotalReturnPct: 1}},
		{TestMetrics: analysis.Metrics{TotalReturnPct: 2}},
		{TestMetrics: analysis.Metrics{TotalReturnPct: 3}},
	}
	stats := summarize(cycles)
	ret := stats["total_return_pct"]
	assert.InDelta(t, 2.0, ret.Mean, 1e-9)
	assert.InDelta(t, 1.0, ret.StdDev, 1e-9, "样本标准差 n-1")
}

func TestSummarizeSingleCycle(t *testing.T) {
	stats := summarize([]CycleResult{{TestMetrics: analysis.Metrics{SharpeRatio: 1.5}}})
	s := stats["sharpe_ratio"]
	assert.Equal(t, 1.5, s.Mean)
	assert.Zero(t, s.StdDev)
}

func wfCandles(n int) []market.Candle {
	out := make([]market.Candle, n)
	price := 100.0
	for i := range out {
		if i%9 == 0 {
			price -= 2.0
		} else {
			price += 0.6
		}
		open := int64(i+1) * 3600000
		out[i] = market.Candle{
			OpenTime:  open,
			CloseTime: open + 3599999,
			Open:      price, High: price + 1, Low: price - 1, Close: price,
			Volume: 10,
		}
	}
	return out
}

func wfRequest() Request {
	tf, _ := market.ParseTimeframe("1h")
	return Request{
		Strategy: "sma_cross",
		Grid: optimize.Grid{
			"fast_ma": {Values: []interface{}{3, 5}},
			"slow_ma": {Values: []interface{}{10}},
		},
		Metric:    "total_return_pct",
		TrainBars: 100,
		TestBars:  40,
		Backtest:  backtest.Config{Symbol: "BTCUSDT", Timeframe: tf, InitialCash: 10000},
	}
}

func TestRunProducesCyclesAndSummary(t *testing.T) {
	rep, err := Run(context.Background(), wfRequest(), wfCandles(220))
	require.NoError(t, err)

	require.Len(t, rep.Cycles, 3) // (220-140)/40 + 1
	assert.NotEmpty(t, rep.SessionID)
	assert.Equal(t, "sma_cross", rep.Strategy)

	for i, c := range rep.Cycles {
		assert.Equal(t, i, c.Index)
		assert.NotEmpty(t, c.BestParams)
		assert.Less(t, c.TrainEndTS, c.TestStartTS, "训练段与测试段不重叠")
		assert.Equal(t, c.BestParams, c.TestResult.Params)
		// 测试段只有 TestBars 根 K 线
		assert.Len(t, c.TestResult.Equity, 40)
	}
	assert.Contains(t, rep.Summary, "total_return_pct")
	assert.Contains(t, rep.Summary, "sharpe_ratio")
}

func TestRunValidation(t *testing.T) {
	req := wfRequest()
	req.TrainBars = 0
	_, err := Run(context.Background(), req, wfCandles(220))
	assert.Error(t, err)

	req = wfRequest()
	_, err = Run(context.Background(), req, wfCandles(120))
	assert.Error(t, err, "放不下一个完整周期")
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, wfRequest(), wfCandles(220))
	assert.Error(t, err)
}

func TestRunInvalidComboDoesNotAbort(t *testing.T) {
	// 单个无法构造的组合只在排名里垫底, 周期照常产出
	req := wfRequest()
	req.Grid = optimize.Grid{
		"fast_ma": {Values: []interface{}{3, 50}},
		"slow_ma": {Values: []interface{}{10}},
	}
	rep, err := Run(context.Background(), req, wfCandles(220))
	require.NoError(t, err)
	require.Len(t, rep.Cycles, 3)
	for _, c := range rep.Cycles {
		assert.EqualValues(t, 3, c.BestParams["fast_ma"], "无效组合不会当选")
	}
}

func TestRunAllTrainWindowsInvalid(t *testing.T) {
	// 训练段寻优全无有效结果时逐周期跳过, 全部失败才整体报错
	req := wfRequest()
	req.Grid = optimize.Grid{
		"fast_ma": {Values: []interface{}{50}},
		"slow_ma": {Values: []interface{}{10}},
	}
	rep, err := Run(context.Background(), req, wfCandles(220))
	assert.Nil(t, rep)
	assert.ErrorIs(t, err, optimize.ErrNoValidResult)
}

// stallEngine 不产生交易意图, 在第 haltAt 次 Prepare 时取消上下文。
type stallEngine struct {
	cancel   context.CancelFunc
	prepared *atomic.Int32
	haltAt   int32
}

func (s *stallEngine) Name() string { return "stalling" }
func (s *stallEngine) Warmup() int  { return 0 }

func (s *stallEngine) Prepare([]market.Candle) error {
	if s.prepared.Add(1) >= s.haltAt {
		s.cancel()
	}
	return nil
}

func (s *stallEngine) OnBar(_ int, _ float64, pos strategy.PositionState, _ bool) (*strategy.OrderIntent, strategy.PositionState) {
	return nil, pos
}

func (s *stallEngine) OnFill(_ strategy.Fill, pos strategy.PositionState) strategy.PositionState {
	return pos
}

func TestRunCancelKeepsCompletedCycles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	prepared := &atomic.Int32{}
	strategy.Register(strategy.Factory{
		Name: "stall_in_second_cycle",
		New: func(strategy.Params) (strategy.Engine, error) {
			// 周期 0 触发两次 Prepare (训练寻优 + 测试复测), 第三次已是周期 1
			return &stallEngine{cancel: cancel, prepared: prepared, haltAt: 3}, nil
		},
	})

	req := wfRequest()
	req.Strategy = "stall_in_second_cycle"
	req.Grid = optimize.Grid{"n": {Values: []interface{}{1}}}
	rep, err := Run(ctx, req, wfCandles(220))
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep, "已完成的周期随错误一并返回")
	require.Len(t, rep.Cycles, 1)
	assert.Equal(t, 0, rep.Cycles[0].Index)
	assert.Contains(t, rep.Summary, "total_return_pct")
}
