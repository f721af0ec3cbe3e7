package config

import (
	"strings"

	"marlin/internal/optimize"
)

// Config 是 Marlin 的主配置载体。
type Config struct {
	App         AppConfig         `yaml:"app"`
	Data        DataConfig        `yaml:"data"`
	Backtest    BacktestConfig    `yaml:"backtest"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Optimize    OptimizeConfig    `yaml:"optimize"`
	WalkForward WalkForwardConfig `yaml:"walkforward"`
	Report      ReportConfig      `yaml:"report"`
}

type AppConfig struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	HTTPAddr string `yaml:"http_addr"`
	LogPath  string `yaml:"log_path"`
	DBPath   string `yaml:"db_path"`
}

// DataConfig 描述回测数据的来源与范围。
type DataConfig struct {
	Source      string `yaml:"source"` // "csv" | "binance"
	Dir         string `yaml:"dir"`
	CachePath   string `yaml:"cache_path"`
	RESTBaseURL string `yaml:"rest_base_url"`
	Symbol      string `yaml:"symbol"`
	Timeframe   string `yaml:"timeframe"`
	Start       string `yaml:"start"` // RFC3339 或 2006-01-02, 空表示全量
	End         string `yaml:"end"`
}

type BacktestConfig struct {
	InitialCash  float64 `yaml:"initial_cash"`
	Commission   float64 `yaml:"commission"`
	SlippageBps  float64 `yaml:"slippage_bps"`
	CashFraction float64 `yaml:"cash_fraction"`
}

type StrategyConfig struct {
	Name   string                 `yaml:"name"`
	Params map[string]interface{} `yaml:"params"`
}

type OptimizeConfig struct {
	Metric   string        `yaml:"metric"`
	Parallel int           `yaml:"parallel"`
	Grid     optimize.Grid `yaml:"grid"`
	// GridPath 指向独立的网格文件, serve 模式下支持热更新。
	GridPath string `yaml:"grid_path"`
}

type WalkForwardConfig struct {
	TrainBars int `yaml:"train_bars"`
	TestBars  int `yaml:"test_bars"`
	Parallel  int `yaml:"parallel"`
}

type ReportConfig struct {
	OutDir    string `yaml:"out_dir"`
	RenderPNG bool   `yaml:"render_png"`
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
