package walkforward

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"marlin/internal/analysis"
	"marlin/internal/backtest"
	"marlin/internal/logger"
	"marlin/internal/market"
	"marlin/internal/optimize"
	"marlin/internal/strategy"
)

// Request 描述一次滚动前推验证。
type Request struct {
	Strategy  string
	Grid      optimize.Grid
	Metric    string
	TrainBars int
	TestBars  int
	// Parallel 限制同时推进的周期数, <=0 时串行。
	Parallel int
	Backtest backtest.Config
}

// window 是一个周期的 K 线下标区间, 均为左闭右开。
type window struct {
	trainStart, trainEnd int
	testStart, testEnd   int
}

// CycleResult 是单个周期的产出: 训练段选出的参数及其在两段上的表现。
type CycleResult struct {
	Index        int
	TrainStartTS int64
	TrainEndTS   int64
	TestStartTS  int64
	TestEndTS    int64
	BestParams   strategy.Params
	TrainMetrics analysis.Metrics
	TestMetrics  analysis.Metrics
	TestResult   backtest.Result
}

// Stat 是一个指标在全部周期上的均值与样本标准差。
type Stat struct {
	Mean   float64
	StdDev float64
}

// Report 是一次完整验证的产出。
type Report struct {
	SessionID string
	Strategy  string
	Cycles    []CycleResult
	Summary   map[string]Stat
}

// windows 按固定步长切分训练/测试区间。测试段紧跟训练段,
// 下一周期向前滑动一个测试段, 测试段之间不重叠。
func windows(n, trainBars, testBars int) []window {
	var out []window
	for cursor := 0; cursor+trainBars+testBars <= n; cursor += testBars {
		trainEnd := cursor + trainBars
		out = append(out, window{
			trainStart: cursor,
			trainEnd:   trainEnd,
			testStart:  trainEnd,
			testEnd:    trainEnd + testBars,
		})
	}
	return out
}

// Run 执行完整的滚动前推验证: 每个周期在训练段上做网格寻优,
// 用选出的参数在未参与寻优的测试段上复测。
// ctx 取消或某周期出错时, 已完成的周期仍随错误一并返回。
func Run(ctx context.Context, req Request, candles []market.Candle) (*Report, error) {
	if req.TrainBars <= 0 || req.TestBars <= 0 {
		return nil, fmt.Errorf("训练段与测试段长度必须为正: train=%d test=%d", req.TrainBars, req.TestBars)
	}
	if err := market.EnsureAscending(candles); err != nil {
		return nil, err
	}
	wins := windows(len(candles), req.TrainBars, req.TestBars)
	if len(wins) == 0 {
		return nil, fmt.Errorf("数据不足: %d 根 K 线放不下一个 %d+%d 的周期", len(candles), req.TrainBars, req.TestBars)
	}
	logger.Infof("[walkforward] 策略 %s: %d 根 K 线切出 %d 个周期 (train=%d test=%d)",
		req.Strategy, len(candles), len(wins), req.TrainBars, req.TestBars)

	results := make([]*CycleResult, len(wins))
	group, gctx := errgroup.WithContext(ctx)
	if req.Parallel > 1 {
		group.SetLimit(req.Parallel)
	} else {
		group.SetLimit(1)
	}
	for i, win := range wins {
		i, win := i, win
		group.Go(func() error {
			cycle, err := runCycle(gctx, req, candles, i, win)
			if err != nil {
				// 训练段寻不出有效参数只作废本周期, 不拖垮整个会话。
				if errors.Is(err, optimize.ErrNoValidResult) {
					logger.Warnf("[walkforward] 周期 %d 训练段寻优无有效结果, 跳过", i)
					return nil
				}
				return fmt.Errorf("周期 %d: %w", i, err)
			}
			results[i] = &cycle
			return nil
		})
	}
	waitErr := group.Wait()

	cycles := make([]CycleResult, 0, len(results))
	for _, c := range results {
		if c != nil {
			cycles = append(cycles, *c)
		}
	}
	if waitErr != nil {
		if len(cycles) == 0 {
			return nil, waitErr
		}
		logger.Warnf("[walkforward] 提前终止: %v, 保留已完成的 %d/%d 个周期", waitErr, len(cycles), len(wins))
		return &Report{
			SessionID: uuid.NewString(),
			Strategy:  req.Strategy,
			Cycles:    cycles,
			Summary:   summarize(cycles),
		}, waitErr
	}
	if len(cycles) == 0 {
		return nil, fmt.Errorf("全部 %d 个周期的训练段寻优均失败: %w", len(wins), optimize.ErrNoValidResult)
	}

	return &Report{
		SessionID: uuid.NewString(),
		Strategy:  req.Strategy,
		Cycles:    cycles,
		Summary:   summarize(cycles),
	}, nil
}

func runCycle(ctx context.Context, req Request, candles []market.Candle, idx int, win window) (CycleResult, error) {
	train := candles[win.trainStart:win.trainEnd]
	test := candles[win.testStart:win.testEnd]

	ranked, err := optimize.Search(ctx, optimize.Request{
		Strategy: req.Strategy,
		Grid:     req.Grid,
		Metric:   req.Metric,
		Backtest: req.Backtest,
	}, train)
	if err != nil {
		return CycleResult{}, err
	}
	// 排序把 NaN 垫底, 但正常分数也可能全为 NaN, 只认成功跑完的组合
	best := ranked[0]
	for _, c := range ranked {
		if c.Err == nil {
			best = c
			break
		}
	}
	logger.Infof("[walkforward] 周期 %d 训练段最优参数 %v (score=%.4f)", idx, best.Params, best.Score)

	factory, ok := strategy.Lookup(req.Strategy)
	if !ok {
		return CycleResult{}, fmt.Errorf("未注册的策略 %q", req.Strategy)
	}
	eng, err := factory.Build(best.Params)
	if err != nil {
		return CycleResult{}, err
	}
	testRes, err := backtest.NewSimulator(req.Backtest).Run(ctx, eng, test)
	if err != nil {
		return CycleResult{}, err
	}
	testRes.Params = best.Params

	return CycleResult{
		Index:        idx,
		TrainStartTS: train[0].OpenTime,
		TrainEndTS:   train[len(train)-1].CloseTime,
		TestStartTS:  test[0].OpenTime,
		TestEndTS:    test[len(test)-1].CloseTime,
		BestParams:   best.Params,
		TrainMetrics: best.Result.Metrics,
		TestMetrics:  testRes.Metrics,
		TestResult:   testRes,
	}, nil
}

// summarize 逐指标统计测试段表现。标准差为样本标准差(n-1),
// 只有一个周期时记 0。
func summarize(cycles []CycleResult) map[string]Stat {
	out := make(map[string]Stat)
	for _, name := range analysis.KnownMetrics() {
		values := make([]float64, 0, len(cycles))
		for _, c := range cycles {
			if v, ok := c.TestMetrics.ByName(name); ok && !math.IsNaN(v) {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		var sum float64
		for _, v := range values {
			sum += v
		}
		mean := sum / float64(len(values))
		var stddev float64
		if len(values) > 1 {
			var ss float64
			for _, v := range values {
				d := v - mean
				ss += d * d
			}
			stddev = math.Sqrt(ss / float64(len(values)-1))
		}
		out[name] = Stat{Mean: mean, StdDev: stddev}
	}
	return out
}
