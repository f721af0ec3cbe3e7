package config

import "strings"

// 默认值常量
const (
	defaultAppEnv       = "dev"
	defaultAppLogLevel  = "info"
	defaultAppHTTPAddr  = ":8881"
	defaultAppLogPath   = "data/logs/marlin.log"
	defaultAppDBPath    = "data/marlin.db"
	defaultDataSource   = "csv"
	defaultDataDir      = "data/csv"
	defaultDataCache    = "data/klines.db"
	defaultDataREST     = "https://fapi.binance.com"
	defaultDataTF       = "1h"
	defaultInitialCash  = 10000.0
	defaultCommission   = 0.001
	defaultCashFraction = 0.95
	defaultMetric       = "sharpe_ratio"
	defaultReportDir    = "reports"
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Data.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	c.Optimize.applyDefaults(keys)
	c.Report.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.db_path", &a.DBPath, defaultAppDBPath),
	)
}

func (d *DataConfig) applyDefaults(keys keySet) {
	if d == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("data.source", &d.Source, defaultDataSource),
		stringFieldDefault("data.dir", &d.Dir, defaultDataDir),
		stringFieldDefault("data.cache_path", &d.CachePath, defaultDataCache),
		stringFieldDefault("data.rest_base_url", &d.RESTBaseURL, defaultDataREST),
		stringFieldDefault("data.timeframe", &d.Timeframe, defaultDataTF),
	)
	d.Source = strings.ToLower(strings.TrimSpace(d.Source))
	d.Symbol = strings.ToUpper(strings.TrimSpace(d.Symbol))
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "backtest.initial_cash",
			need:  func() bool { return b.InitialCash <= 0 },
			apply: func() { b.InitialCash = defaultInitialCash },
		},
		fieldDefault{
			key:   "backtest.commission",
			need:  func() bool { return b.Commission == 0 },
			apply: func() { b.Commission = defaultCommission },
		},
		fieldDefault{
			key:   "backtest.cash_fraction",
			need:  func() bool { return b.CashFraction <= 0 },
			apply: func() { b.CashFraction = defaultCashFraction },
		},
	)
}

func (o *OptimizeConfig) applyDefaults(keys keySet) {
	if o == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("optimize.metric", &o.Metric, defaultMetric),
	)
}

func (r *ReportConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("report.out_dir", &r.OutDir, defaultReportDir),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
