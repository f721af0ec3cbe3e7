package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"marlin/internal/backtest"
	mcfg "marlin/internal/config"
	cfgloader "marlin/internal/config/loader"
	"marlin/internal/logger"
	"marlin/internal/market"
	"marlin/internal/store"
	"marlin/internal/store/sqlite"
	resthttp "marlin/internal/transport/http"
	"marlin/internal/walkforward"
)

type AppBuilder struct {
	cfg *mcfg.Config

	storeFn func(string) (store.Store, error)
	gridFn  func(string) (*cfgloader.GridLoader, error)

	storeOverride store.Store
}

type AppBuilderOption func(*AppBuilder)

// WithStore 注入现成的存储实例, 测试时指向内存库。
func WithStore(st store.Store) AppBuilderOption {
	return func(b *AppBuilder) { b.storeOverride = st }
}

func NewAppBuilder(cfg *mcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:     cfg,
		storeFn: func(path string) (store.Store, error) { return sqlite.NewSqliteStore(path) },
		gridFn:  cfgloader.NewGridLoader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := b.cfg

	base, spec, err := ResolveRunContext(cfg)
	if err != nil {
		return nil, err
	}

	st := b.storeOverride
	if st == nil {
		st, err = b.storeFn(cfg.App.DBPath)
		if err != nil {
			return nil, fmt.Errorf("初始化存储失败: %w", err)
		}
	}

	runs := backtest.NewService(base, spec, st, cfg.Optimize.Parallel)
	wf := walkforward.NewService(spec, st)

	var grids *cfgloader.GridLoader
	if path := strings.TrimSpace(cfg.Optimize.GridPath); path != "" {
		grids, err = b.gridFn(path)
		if err != nil {
			return nil, err
		}
		grids.Subscribe(func(snap cfgloader.GridSnapshot) {
			logger.Infof("[app] 寻优网格已热更新 (version=%d, 策略数=%d)", snap.Version, len(snap.Grids))
		})
	}

	server, err := resthttp.NewServer(resthttp.Config{
		Addr:  cfg.App.HTTPAddr,
		Runs:  runs,
		WF:    wf,
		Grids: grids,
		WFBase: walkforward.Request{
			Metric:    cfg.Optimize.Metric,
			Grid:      cfg.Optimize.Grid,
			TrainBars: cfg.WalkForward.TrainBars,
			TestBars:  cfg.WalkForward.TestBars,
			Parallel:  cfg.WalkForward.Parallel,
			Backtest:  base,
		},
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:    cfg,
		store:  st,
		runs:   runs,
		wf:     wf,
		server: server,
	}, nil
}

// ResolveRunContext 把配置转成回测配置与数据加载规格。
func ResolveRunContext(cfg *mcfg.Config) (backtest.Config, market.LoadSpec, error) {
	tf, err := market.ParseTimeframe(cfg.Data.Timeframe)
	if err != nil {
		return backtest.Config{}, market.LoadSpec{}, err
	}
	start, err := parseTimeBound(cfg.Data.Start)
	if err != nil {
		return backtest.Config{}, market.LoadSpec{}, fmt.Errorf("data.start: %w", err)
	}
	end, err := parseTimeBound(cfg.Data.End)
	if err != nil {
		return backtest.Config{}, market.LoadSpec{}, fmt.Errorf("data.end: %w", err)
	}
	base := backtest.Config{
		Symbol:       cfg.Data.Symbol,
		Timeframe:    tf,
		TimeframeKey: tf.Key,
		InitialCash:  cfg.Backtest.InitialCash,
		Commission:   cfg.Backtest.Commission,
		SlippageBps:  cfg.Backtest.SlippageBps,
		CashFraction: cfg.Backtest.CashFraction,
	}
	spec := market.LoadSpec{
		Source:      cfg.Data.Source,
		Dir:         cfg.Data.Dir,
		CachePath:   cfg.Data.CachePath,
		RESTBaseURL: cfg.Data.RESTBaseURL,
		Symbol:      cfg.Data.Symbol,
		Timeframe:   tf,
		Start:       start,
		End:         end,
	}
	return base, spec, nil
}

var timeBoundLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimeBound(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	for _, layout := range timeBoundLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("无法解析时间 %q", s)
}
