package report

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"marlin/internal/backtest"
	"marlin/internal/walkforward"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorEquity        = "#3b82f6"
	colorDrawdown      = "#f87171"
	colorWin           = "#34d399"
	colorLoss          = "#f87171"

	chartWidthPx    = 1600
	equityHeightPx  = 600
	panelHeightPx   = 300
	summaryHeightPx = 420
)

// BuildBacktestHTML 将一次回测的资金曲线、回撤与逐笔盈亏渲染为 HTML 页面。
func BuildBacktestHTML(res backtest.Result) ([]byte, error) {
	if len(res.Equity) == 0 {
		return nil, fmt.Errorf("回测 %s 没有资金曲线可渲染", res.ID)
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)

	xAxis := make([]string, len(res.Equity))
	values := make([]float64, len(res.Equity))
	for i, p := range res.Equity {
		xAxis[i] = time.UnixMilli(p.TS).UTC().Format("01-02 15:04")
		values[i] = p.Equity
	}

	page.AddCharts(
		buildEquityChart(res, xAxis, values),
		buildDrawdownChart(xAxis, values),
	)
	if len(res.Trades) > 0 {
		page.AddCharts(buildTradePnLChart(res.Trades))
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildWalkForwardHTML 渲染各周期测试段表现的对比图。
func BuildWalkForwardHTML(rep *walkforward.Report) ([]byte, error) {
	if rep == nil || len(rep.Cycles) == 0 {
		return nil, fmt.Errorf("没有周期可渲染")
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(buildCycleChart(rep))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildEquityChart(res backtest.Result, xAxis []string, values []float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", equityHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         fmt.Sprintf("%s %s · %s", res.Symbol, res.Timeframe, res.Strategy),
			Subtitle:      fmt.Sprintf("初始 %.2f → 期末 %.2f | 收益 %.2f%% | Sharpe %.2f", res.InitialCash, res.FinalValue, res.Metrics.TotalReturnPct, res.Metrics.SharpeRatio),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("Equity", toLineData(values),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	return line
}

func buildDrawdownChart(xAxis []string, equity []float64) *charts.Line {
	dd := make([]float64, len(equity))
	peak := math.Inf(-1)
	for i, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd[i] = (v - peak) / peak * 100
		}
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", panelHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Drawdown %", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("Drawdown", toLineData(dd),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorDrawdown, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithAreaStyleOpts(opts.AreaStyle{Color: colorDrawdown, Opacity: opts.Float(0.2)}),
	)
	return line
}

func buildTradePnLChart(trades []backtest.Trade) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", panelHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{Title: "Trade PnL", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	xAxis := make([]string, 0, len(trades))
	data := make([]opts.BarData, 0, len(trades))
	for _, t := range trades {
		if t.Action == "buy" {
			continue
		}
		color := colorLoss
		if t.RealizedPnL >= 0 {
			color = colorWin
		}
		xAxis = append(xAxis, fmt.Sprintf("#%d %s", t.ID, t.Reason))
		data = append(data, opts.BarData{
			Value:     round(t.RealizedPnL, 4),
			ItemStyle: &opts.ItemStyle{Color: color, Opacity: opts.Float(0.8)},
		})
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("PnL", data)
	return bar
}

func buildCycleChart(rep *walkforward.Report) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", summaryHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         fmt.Sprintf("Walk-Forward · %s", rep.Strategy),
			Subtitle:      cycleSubtitle(rep),
			Left:          "left",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextSecondary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Color: colorTextSecondary}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	xAxis := make([]string, len(rep.Cycles))
	trainRet := make([]opts.BarData, len(rep.Cycles))
	testRet := make([]opts.BarData, len(rep.Cycles))
	for i, c := range rep.Cycles {
		xAxis[i] = fmt.Sprintf("cycle %d", c.Index)
		trainRet[i] = opts.BarData{Value: round(c.TrainMetrics.TotalReturnPct, 4)}
		testRet[i] = opts.BarData{Value: round(c.TestMetrics.TotalReturnPct, 4)}
	}
	bar.SetXAxis(xAxis)
	bar.AddSeries("Train Return %", trainRet, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorEquity, Opacity: opts.Float(0.8)}))
	bar.AddSeries("Test Return %", testRet, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorWin, Opacity: opts.Float(0.8)}))
	return bar
}

func cycleSubtitle(rep *walkforward.Report) string {
	ret, okR := rep.Summary["total_return_pct"]
	sharpe, okS := rep.Summary["sharpe_ratio"]
	if !okR || !okS {
		return fmt.Sprintf("%d 个周期", len(rep.Cycles))
	}
	return fmt.Sprintf("%d 个周期 | 测试段收益 %.2f%%±%.2f | Sharpe %.2f±%.2f",
		len(rep.Cycles), ret.Mean, ret.StdDev, sharpe.Mean, sharpe.StdDev)
}

func toLineData(series []float64) []opts.LineData {
	data := make([]opts.LineData, len(series))
	for i, v := range series {
		if math.IsNaN(v) {
			data[i] = opts.LineData{Value: nil}
			continue
		}
		data[i] = opts.LineData{Value: round(v, 4)}
	}
	return data
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}
