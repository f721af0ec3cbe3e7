package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"marlin/internal/app"
	"marlin/internal/backtest"
	mcfg "marlin/internal/config"
	cfgloader "marlin/internal/config/loader"
	"marlin/internal/logger"
	"marlin/internal/market"
	"marlin/internal/optimize"
	"marlin/internal/report"
	"marlin/internal/store/model"
	"marlin/internal/store/sqlite"
	"marlin/internal/strategy"
	"marlin/internal/walkforward"
)

func runServe(ctx context.Context, cfg *mcfg.Config) error {
	a, err := app.NewApp(cfg)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

// dataFlags 注册所有子命令共用的数据范围覆盖项。
func dataFlags(fs *flag.FlagSet, cfg *mcfg.Config) {
	fs.StringVar(&cfg.Data.Symbol, "symbol", cfg.Data.Symbol, "交易对, 如 BTCUSDT")
	fs.StringVar(&cfg.Data.Timeframe, "timeframe", cfg.Data.Timeframe, "K 线周期")
	fs.StringVar(&cfg.Data.Start, "start", cfg.Data.Start, "起始时间 (RFC3339 或 2006-01-02)")
	fs.StringVar(&cfg.Data.End, "end", cfg.Data.End, "结束时间")
}

func runBacktest(ctx context.Context, cfg *mcfg.Config, args []string) error {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	name := fs.String("strategy", cfg.Strategy.Name, "策略名")
	paramsJSON := fs.String("params", "", "参数覆盖 (JSON 对象)")
	outDir := fs.String("out", cfg.Report.OutDir, "报表输出目录")
	png := fs.Bool("png", cfg.Report.RenderPNG, "额外渲染 PNG (需要无头浏览器)")
	save := fs.Bool("save", true, "结果写入数据库")
	dataFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}

	factory, params, err := resolveStrategy(cfg, *name, *paramsJSON)
	if err != nil {
		return err
	}
	base, spec, err := app.ResolveRunContext(cfg)
	if err != nil {
		return err
	}
	candles, err := market.LoadCandles(ctx, spec)
	if err != nil {
		return err
	}
	eng, err := factory.Build(params)
	if err != nil {
		return err
	}
	res, err := backtest.NewSimulator(base).Run(ctx, eng, candles)
	if err != nil {
		return err
	}
	res.Params = strategy.Merge(factory.Defaults, params)

	printResult(res)

	if *save {
		st, err := sqlite.NewSqliteStore(cfg.App.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()
		row, err := backtest.ToRunModel(res, model.RunStatusDone)
		if err != nil {
			return err
		}
		if err := st.Runs().Save(ctx, row); err != nil {
			return err
		}
		logger.Infof("结果已入库: run %s", res.ID)
	}
	return writeBacktestReport(ctx, res, *outDir, *png)
}

func runOptimize(ctx context.Context, cfg *mcfg.Config, args []string) error {
	fs := flag.NewFlagSet("optimize", flag.ExitOnError)
	name := fs.String("strategy", cfg.Strategy.Name, "策略名")
	metric := fs.String("metric", cfg.Optimize.Metric, "排序指标")
	top := fs.Int("top", 5, "输出前 N 个组合")
	parallel := fs.Int("parallel", cfg.Optimize.Parallel, "并发回测数")
	dataFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}

	grid, err := resolveGrid(cfg, *name)
	if err != nil {
		return err
	}
	base, spec, err := app.ResolveRunContext(cfg)
	if err != nil {
		return err
	}
	candles, err := market.LoadCandles(ctx, spec)
	if err != nil {
		return err
	}
	ranked, runErr := optimize.Search(ctx, optimize.Request{
		Strategy: *name,
		Grid:     grid,
		Metric:   *metric,
		Parallel: *parallel,
		Backtest: base,
	}, candles)
	if len(ranked) == 0 {
		return runErr
	}
	if runErr != nil {
		logger.Warnf("寻优未完整结束: %v, 仅输出已完成的 %d 个组合", runErr, len(ranked))
	}

	n := *top
	if n <= 0 || n > len(ranked) {
		n = len(ranked)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Top %d / %d 组合 (按 %s 降序)\n", n, len(ranked), *metric)
	for i := 0; i < n; i++ {
		c := ranked[i]
		if c.Err != nil {
			fmt.Fprintf(&b, "%2d. 无效组合 params=%v: %v\n", i+1, c.Params, c.Err)
			continue
		}
		fmt.Fprintf(&b, "%2d. score=%.4f return=%.2f%% dd=%.2f%% trades=%d params=%v\n",
			i+1, c.Score, c.Result.Metrics.TotalReturnPct, c.Result.Metrics.MaxDrawdownPct,
			c.Result.Metrics.TotalTrades, c.Params)
	}
	logger.InfoBlock(b.String())
	return runErr
}

func runWalkForward(ctx context.Context, cfg *mcfg.Config, args []string) error {
	fs := flag.NewFlagSet("walkforward", flag.ExitOnError)
	name := fs.String("strategy", cfg.Strategy.Name, "策略名")
	metric := fs.String("metric", cfg.Optimize.Metric, "训练段排序指标")
	train := fs.Int("train", cfg.WalkForward.TrainBars, "训练段 K 线数")
	test := fs.Int("test", cfg.WalkForward.TestBars, "测试段 K 线数")
	parallel := fs.Int("parallel", cfg.WalkForward.Parallel, "并发周期数")
	outDir := fs.String("out", cfg.Report.OutDir, "报表输出目录")
	png := fs.Bool("png", cfg.Report.RenderPNG, "额外渲染 PNG")
	save := fs.Bool("save", true, "周期明细写入数据库")
	dataFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}

	grid, err := resolveGrid(cfg, *name)
	if err != nil {
		return err
	}
	base, spec, err := app.ResolveRunContext(cfg)
	if err != nil {
		return err
	}
	candles, err := market.LoadCandles(ctx, spec)
	if err != nil {
		return err
	}
	rep, runErr := walkforward.Run(ctx, walkforward.Request{
		Strategy:  *name,
		Grid:      grid,
		Metric:    *metric,
		TrainBars: *train,
		TestBars:  *test,
		Parallel:  *parallel,
		Backtest:  base,
	}, candles)
	if rep == nil {
		return runErr
	}
	if runErr != nil {
		logger.Warnf("验证提前终止: %v, 仅输出已完成的 %d 个周期", runErr, len(rep.Cycles))
	}

	printWalkForward(rep)

	if *save {
		st, err := sqlite.NewSqliteStore(cfg.App.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := walkforward.Persist(ctx, st.Cycles(), rep); err != nil {
			return err
		}
		logger.Infof("周期明细已入库: session %s", rep.SessionID)
	}
	if err := exportCyclesCSV(rep, *outDir); err != nil {
		return err
	}
	if err := writeWalkForwardReport(ctx, rep, *outDir, *png); err != nil {
		return err
	}
	return runErr
}

func runFetch(ctx context.Context, cfg *mcfg.Config, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	dataFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.Data.Source = "binance"
	_, spec, err := app.ResolveRunContext(cfg)
	if err != nil {
		return err
	}
	if spec.Start <= 0 || spec.End <= 0 {
		return fmt.Errorf("fetch 需要 -start 与 -end")
	}
	candles, err := market.LoadCandles(ctx, spec)
	if err != nil {
		return err
	}
	logger.Infof("✓ 已缓存 %s %s K 线 %d 根 → %s", spec.Symbol, spec.Timeframe.Key, len(candles), spec.CachePath)

	st, err := market.NewStore(spec.CachePath)
	if err != nil {
		return err
	}
	defer st.Close()
	manifest, err := st.DatasetManifest(ctx, spec.Symbol, spec.Timeframe.Key)
	if err != nil {
		return err
	}
	logger.Infof("数据集现状: %d 行, %s ~ %s", manifest.Rows,
		time.UnixMilli(manifest.MinTime).UTC().Format(time.RFC3339),
		time.UnixMilli(manifest.MaxTime).UTC().Format(time.RFC3339))
	return nil
}

// resolveStrategy 合并配置文件与命令行的参数来源。
func resolveStrategy(cfg *mcfg.Config, name, paramsJSON string) (strategy.Factory, strategy.Params, error) {
	factory, ok := strategy.Lookup(name)
	if !ok {
		return strategy.Factory{}, nil, fmt.Errorf("未注册的策略 %q, 可选: %v", name, strategy.Names())
	}
	params := make(strategy.Params)
	if name == strings.ToLower(strings.TrimSpace(cfg.Strategy.Name)) {
		for k, v := range cfg.Strategy.Params {
			params[k] = v
		}
	}
	if paramsJSON != "" {
		override, err := factory.ParseParamsJSON([]byte(paramsJSON))
		if err != nil {
			return strategy.Factory{}, nil, err
		}
		params = strategy.Merge(params, override)
	}
	if err := factory.ValidateParams(strategy.Merge(factory.Defaults, params)); err != nil {
		return strategy.Factory{}, nil, err
	}
	return factory, params, nil
}

func resolveGrid(cfg *mcfg.Config, name string) (optimize.Grid, error) {
	if len(cfg.Optimize.Grid) > 0 {
		return cfg.Optimize.Grid, nil
	}
	if path := strings.TrimSpace(cfg.Optimize.GridPath); path != "" {
		gl, err := cfgloader.NewGridLoader(path)
		if err != nil {
			return nil, err
		}
		if g, ok := gl.GridFor(name); ok {
			return g, nil
		}
		return nil, fmt.Errorf("网格文件 %s 中没有策略 %q", path, name)
	}
	return nil, fmt.Errorf("缺少寻优网格: 配置 optimize.grid 或 optimize.grid_path")
}

func printResult(res backtest.Result) {
	m := res.Metrics
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s · %s\n", res.Symbol, res.Timeframe, res.Strategy)
	fmt.Fprintf(&b, "参数          %v\n", res.Params)
	fmt.Fprintf(&b, "初始资金      %.2f\n", res.InitialCash)
	fmt.Fprintf(&b, "期末价值      %.2f\n", res.FinalValue)
	fmt.Fprintf(&b, "总收益        %.2f%%\n", m.TotalReturnPct)
	fmt.Fprintf(&b, "CAGR          %.2f%%\n", m.CAGRPct)
	fmt.Fprintf(&b, "最大回撤      %.2f%%\n", m.MaxDrawdownPct)
	fmt.Fprintf(&b, "Sharpe        %.2f\n", m.SharpeRatio)
	fmt.Fprintf(&b, "Calmar        %.2f\n", m.Calmar)
	fmt.Fprintf(&b, "胜率          %.2f%% (%d 笔)\n", m.WinRatePct, m.TotalTrades)
	fmt.Fprintf(&b, "盈亏比        %.2f\n", m.ProfitFactor)
	fmt.Fprintf(&b, "月均交易      %.2f\n", m.TradesPerMonth)
	if m.Incomplete {
		fmt.Fprintf(&b, "注: 部分指标因数据不足记为 0\n")
	}
	logger.InfoBlock(b.String())
}

func printWalkForward(rep *walkforward.Report) {
	var b strings.Builder
	fmt.Fprintf(&b, "滚动前推验证 · %s · %d 个周期\n", rep.Strategy, len(rep.Cycles))
	for _, c := range rep.Cycles {
		fmt.Fprintf(&b, "周期 %d: train=%.2f%% test=%.2f%% sharpe=%.2f params=%v\n",
			c.Index, c.TrainMetrics.TotalReturnPct, c.TestMetrics.TotalReturnPct,
			c.TestMetrics.SharpeRatio, c.BestParams)
	}
	for _, name := range []string{"total_return_pct", "sharpe_ratio", "max_drawdown_pct", "win_rate_pct"} {
		if s, ok := rep.Summary[name]; ok {
			fmt.Fprintf(&b, "%-18s mean=%.4f std=%.4f\n", name, s.Mean, s.StdDev)
		}
	}
	logger.InfoBlock(b.String())
}

func exportCyclesCSV(rep *walkforward.Report, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(outDir, fmt.Sprintf("walkforward_%s.csv", rep.SessionID))
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	header := []string{"cycle", "train_start", "train_end", "test_start", "test_end",
		"train_return_pct", "test_return_pct", "test_sharpe", "test_max_dd_pct", "best_params"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, c := range rep.Cycles {
		row := []string{
			fmt.Sprintf("%d", c.Index),
			fmt.Sprintf("%d", c.TrainStartTS),
			fmt.Sprintf("%d", c.TrainEndTS),
			fmt.Sprintf("%d", c.TestStartTS),
			fmt.Sprintf("%d", c.TestEndTS),
			fmt.Sprintf("%.4f", c.TrainMetrics.TotalReturnPct),
			fmt.Sprintf("%.4f", c.TestMetrics.TotalReturnPct),
			fmt.Sprintf("%.4f", c.TestMetrics.SharpeRatio),
			fmt.Sprintf("%.4f", c.TestMetrics.MaxDrawdownPct),
			fmt.Sprintf("%v", c.BestParams),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	logger.Infof("周期明细已导出: %s", path)
	return nil
}

func writeBacktestReport(ctx context.Context, res backtest.Result, outDir string, png bool) error {
	html, err := report.BuildBacktestHTML(res)
	if err != nil {
		return err
	}
	return writeReportFiles(ctx, html, outDir, fmt.Sprintf("backtest_%s", res.ID), png)
}

func writeWalkForwardReport(ctx context.Context, rep *walkforward.Report, outDir string, png bool) error {
	html, err := report.BuildWalkForwardHTML(rep)
	if err != nil {
		return err
	}
	return writeReportFiles(ctx, html, outDir, fmt.Sprintf("walkforward_%s", rep.SessionID), png)
}

func writeReportFiles(ctx context.Context, html []byte, outDir, stem string, png bool) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	htmlPath := filepath.Join(outDir, stem+".html")
	if err := os.WriteFile(htmlPath, html, 0o644); err != nil {
		return err
	}
	logger.Infof("报表已生成: %s", htmlPath)
	if !png {
		return nil
	}
	shot, err := report.RenderPNG(ctx, html, 1600, 1200)
	if err != nil {
		logger.Warnf("PNG 渲染失败 (已保留 HTML): %v", err)
		return nil
	}
	pngPath := filepath.Join(outDir, stem+".png")
	if err := os.WriteFile(pngPath, shot, 0o644); err != nil {
		return err
	}
	logger.Infof("报表已生成: %s", pngPath)
	return nil
}
