package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"marlin/internal/analysis"
	"marlin/internal/backtest"
	"marlin/internal/logger"
	"marlin/internal/market"
	"marlin/internal/strategy"
)

// DefaultMetric 是寻优的缺省排序目标。
const DefaultMetric = "sharpe_ratio"

// ErrNoValidResult 表示没有任何参数组合成功完成回测。
var ErrNoValidResult = errors.New("optimize: no valid result")

// Request 描述一次网格寻优。
type Request struct {
	Strategy string
	Grid     Grid
	Metric   string
	// Parallel 限制并发回测数, <=0 时取 CPU 数。
	Parallel int
	Backtest backtest.Config
}

// Candidate 是一个参数组合的寻优结果。
// Err 非空表示该组合构造或回测失败, Score 记 NaN 排在末尾。
type Candidate struct {
	Params strategy.Params
	Score  float64
	Result backtest.Result
	Err    error
}

// Search 对网格内每个参数组合各跑一次回测, 并按目标指标降序排列。
// 每个组合使用独立的策略实例, 组合之间无共享状态, 可以安全并行。
// 构造或回测失败的组合不会中断整批: 它以 NaN 得分保留在结果末尾,
// 只有当所有组合都失败时才返回 ErrNoValidResult。
// ctx 取消时返回 ctx.Err() 以及已完成的部分结果。
func Search(ctx context.Context, req Request, candles []market.Candle) ([]Candidate, error) {
	factory, ok := strategy.Lookup(req.Strategy)
	if !ok {
		return nil, fmt.Errorf("未注册的策略 %q, 可选: %v", req.Strategy, strategy.Names())
	}
	combos, err := req.Grid.Expand()
	if err != nil {
		return nil, err
	}
	metric := req.Metric
	if metric == "" {
		metric = DefaultMetric
	}
	if _, ok := (analysis.Metrics{}).ByName(metric); !ok {
		return nil, fmt.Errorf("未知排序指标 %q, 可选: %v", metric, analysis.KnownMetrics())
	}

	parallel := req.Parallel
	if parallel <= 0 {
		parallel = runtime.NumCPU()
	}
	logger.Infof("[optimize] 策略 %s: %d 个组合, 并发 %d, 指标 %s", req.Strategy, len(combos), parallel, metric)

	results := make([]*Candidate, len(combos))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(parallel)
	for i, params := range combos {
		i, params := i, params
		group.Go(func() error {
			eng, err := factory.Build(params)
			if err != nil {
				logger.Warnf("[optimize] 组合 %v 构造失败, 记 NaN 垫底: %v", params, err)
				results[i] = &Candidate{Params: params, Score: math.NaN(), Err: err}
				return nil
			}
			res, err := backtest.NewSimulator(req.Backtest).Run(gctx, eng, candles)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warnf("[optimize] 组合 %v 回测失败, 记 NaN 垫底: %v", params, err)
				results[i] = &Candidate{Params: params, Score: math.NaN(), Err: err}
				return nil
			}
			res.Params = params
			score, _ := res.Metrics.ByName(metric)
			results[i] = &Candidate{Params: params, Score: score, Result: res}
			return nil
		})
	}
	waitErr := group.Wait()

	out := make([]Candidate, 0, len(results))
	valid := 0
	for _, c := range results {
		if c != nil {
			out = append(out, *c)
			if c.Err == nil {
				valid++
			}
		}
	}
	rank(out)
	if waitErr != nil {
		return out, waitErr
	}
	if valid == 0 {
		return out, ErrNoValidResult
	}
	return out, nil
}

// rank 按得分降序稳定排序, NaN 永远排在最后。
func rank(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i].Score, cands[j].Score
		an, bn := math.IsNaN(a), math.IsNaN(b)
		if an || bn {
			return !an && bn
		}
		return a > b
	})
}
