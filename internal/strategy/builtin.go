package strategy

const periodSchema = `{"type":"integer","minimum":1,"maximum":500}`

func init() {
	Register(Factory{
		Name:        "sma_cross",
		Description: "双均线交叉：金叉满仓做多，死叉全平",
		Defaults: Params{
			"fast_ma": 10,
			"slow_ma": 50,
		},
		Schema: `{
			"type": "object",
			"properties": {
				"fast_ma": ` + periodSchema + `,
				"slow_ma": ` + periodSchema + `
			},
			"additionalProperties": true
		}`,
		New: NewSMACross,
	})

	macdDefaults := Params{
		"p_fast1": 5, "p_slow1": 20,
		"p_fast2": 5, "p_slow2": 40,
		"p_fast3": 20, "p_slow3": 40,
		"p_signal": 9,
	}
	macdProperties := `
		"p_fast1": ` + periodSchema + `,
		"p_slow1": ` + periodSchema + `,
		"p_fast2": ` + periodSchema + `,
		"p_slow2": ` + periodSchema + `,
		"p_fast3": ` + periodSchema + `,
		"p_slow3": ` + periodSchema + `,
		"p_signal": ` + periodSchema

	Register(Factory{
		Name:        "macd_peak",
		Description: "三重 MACD 趋势确认 + MACD 线峰值分段清仓（仅做多）",
		Defaults:    macdDefaults,
		Schema: `{
			"type": "object",
			"properties": {` + macdProperties + `},
			"additionalProperties": true
		}`,
		New: NewMACDPeak,
	})

	riskDefaults := Merge(macdDefaults, Params{
		"risk_fraction": 0.01,
		"sl_mode":       string(StopModeATR),
		"atr_len":       14,
		"atr_mult":      2.0,
		"sl_percent":    1.5,
		"sl_ticks":      50,
		"tick_size":     0.01,
		"min_qty":       0.0001,
	})
	Register(Factory{
		Name:        "macd_peak_risk",
		Description: "三重 MACD + 风险仓位 + 动态止损的三段式清仓（仅做多）",
		Defaults:    riskDefaults,
		Schema: `{
			"type": "object",
			"properties": {` + macdProperties + `,
				"risk_fraction": {"type": "number", "exclusiveMinimum": 0, "exclusiveMaximum": 1},
				"sl_mode": {"type": "string", "enum": ["ATR", "Percent", "Ticks", "atr", "percent", "ticks"]},
				"atr_len": ` + periodSchema + `,
				"atr_mult": {"type": "number", "exclusiveMinimum": 0},
				"sl_percent": {"type": "number", "exclusiveMinimum": 0},
				"sl_ticks": {"type": "number", "exclusiveMinimum": 0},
				"tick_size": {"type": "number", "exclusiveMinimum": 0},
				"min_qty": {"type": "number", "exclusiveMinimum": 0}
			},
			"additionalProperties": true
		}`,
		New: NewMACDPeakRisk,
	})
}
