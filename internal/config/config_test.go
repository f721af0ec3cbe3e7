package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
app:
  env: prod
data:
  symbol: btcusdt
`))
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":8881", cfg.App.HTTPAddr)
	assert.Equal(t, "data/marlin.db", cfg.App.DBPath)

	assert.Equal(t, "csv", cfg.Data.Source)
	assert.Equal(t, "1h", cfg.Data.Timeframe)
	assert.Equal(t, "BTCUSDT", cfg.Data.Symbol, "symbol 统一大写")

	assert.Equal(t, 10000.0, cfg.Backtest.InitialCash)
	assert.Equal(t, 0.001, cfg.Backtest.Commission)
	assert.Equal(t, 0.95, cfg.Backtest.CashFraction)
	assert.Equal(t, "sharpe_ratio", cfg.Optimize.Metric)
	assert.Equal(t, "reports", cfg.Report.OutDir)
}

func TestLoadExplicitZeroCommissionKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
backtest:
  commission: 0
`))
	require.NoError(t, err)
	assert.Zero(t, cfg.Backtest.Commission, "显式写 0 不被默认值覆盖")
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
app:
  http_addr: ":9000"
data:
  source: binance
  symbol: ETHUSDT
  timeframe: 4h
  start: "2024-01-01"
  end: "2024-06-30"
backtest:
  initial_cash: 50000
  slippage_bps: 2
strategy:
  name: macd_peak_risk
  params:
    risk_fraction: 0.02
optimize:
  metric: total_return_pct
  parallel: 4
  grid:
    fast_ma:
      range: {start: 5, end: 30, step: 5}
walkforward:
  train_bars: 400
  test_bars: 100
`))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.App.HTTPAddr)
	assert.Equal(t, "binance", cfg.Data.Source)
	assert.Equal(t, "4h", cfg.Data.Timeframe)
	assert.Equal(t, 50000.0, cfg.Backtest.InitialCash)
	assert.Equal(t, "macd_peak_risk", cfg.Strategy.Name)
	assert.Equal(t, 4, cfg.Optimize.Parallel)
	assert.Equal(t, 400, cfg.WalkForward.TrainBars)

	axis, ok := cfg.Optimize.Grid["fast_ma"]
	require.True(t, ok)
	require.NotNil(t, axis.Range)
	assert.Equal(t, []int{5, 10, 15, 20, 25}, axis.Range.Values())
}

func TestLoadValidationErrors(t *testing.T) {
	cases := map[string]string{
		"unknown source": `
data:
  source: ftp
`,
		"unknown timeframe": `
data:
  timeframe: 7m
`,
		"negative commission": `
backtest:
  commission: -0.1
`,
		"cash fraction above 1": `
backtest:
  cash_fraction: 1.5
`,
		"walkforward half set": `
walkforward:
  train_bars: 400
`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
	_, err = Load("  ")
	assert.Error(t, err)
}
