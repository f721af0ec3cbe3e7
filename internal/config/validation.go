package config

import (
	"fmt"

	"marlin/internal/market"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Data.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	if err := c.WalkForward.validate(); err != nil {
		return err
	}
	return nil
}

func (d *DataConfig) validate() error {
	switch d.Source {
	case "csv", "binance":
	default:
		return fmt.Errorf("data.source must be csv or binance, got %q", d.Source)
	}
	if _, err := market.ParseTimeframe(d.Timeframe); err != nil {
		return fmt.Errorf("data.timeframe: %w", err)
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if b.Commission < 0 {
		return fmt.Errorf("backtest.commission must be >= 0")
	}
	if b.SlippageBps < 0 {
		return fmt.Errorf("backtest.slippage_bps must be >= 0")
	}
	if b.CashFraction <= 0 || b.CashFraction > 1 {
		return fmt.Errorf("backtest.cash_fraction must be in (0, 1]")
	}
	return nil
}

func (w *WalkForwardConfig) validate() error {
	if w.TrainBars < 0 || w.TestBars < 0 {
		return fmt.Errorf("walkforward.train_bars/test_bars must be >= 0")
	}
	if (w.TrainBars > 0) != (w.TestBars > 0) {
		return fmt.Errorf("walkforward.train_bars and test_bars must be set together")
	}
	return nil
}
