package market

import (
	"context"
	"fmt"
	"strings"

	"marlin/internal/logger"
)

// LoadSpec 描述一次数据加载: 来源、标的与可选的时间范围。
// Start/End 为毫秒时间戳, 0 表示不裁剪对应端。
type LoadSpec struct {
	Source      string
	Dir         string
	CachePath   string
	RESTBaseURL string
	Symbol      string
	Timeframe   Timeframe
	Start       int64
	End         int64
}

// LoadCandles 按来源加载 K 线并裁剪到请求范围。
// binance 来源优先读本地缓存, 缺口从远端补齐后回写。
func LoadCandles(ctx context.Context, spec LoadSpec) ([]Candle, error) {
	symbol := strings.ToUpper(strings.TrimSpace(spec.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	switch strings.ToLower(spec.Source) {
	case "csv":
		candles, err := NewCSVSource(spec.Dir).Load(symbol, spec.Timeframe)
		if err != nil {
			return nil, err
		}
		return clip(candles, spec.Start, spec.End)
	case "binance":
		return loadBinance(ctx, spec, symbol)
	default:
		return nil, fmt.Errorf("未知数据来源 %q", spec.Source)
	}
}

func loadBinance(ctx context.Context, spec LoadSpec, symbol string) ([]Candle, error) {
	if spec.Start <= 0 || spec.End <= 0 {
		return nil, fmt.Errorf("binance 来源需要明确的时间范围")
	}
	start, end := spec.Timeframe.AlignRange(spec.Start, spec.End)
	store, err := NewStore(spec.CachePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	tfKey := spec.Timeframe.Key
	cached, err := store.RangeCandles(ctx, symbol, tfKey, start, end)
	if err != nil {
		return nil, err
	}
	if int64(len(cached)) >= spec.Timeframe.ExpectedCandles(start, end) {
		return cached, nil
	}

	logger.Infof("[market] 缓存不完整 (%d/%d), 从远端拉取 %s %s",
		len(cached), spec.Timeframe.ExpectedCandles(start, end), symbol, tfKey)
	fetched, err := NewBinanceSource(spec.RESTBaseURL).FetchRange(ctx, symbol, spec.Timeframe, start, end)
	if err != nil {
		return nil, err
	}
	if _, err := store.UpsertCandles(ctx, symbol, tfKey, fetched); err != nil {
		return nil, err
	}
	return store.RangeCandles(ctx, symbol, tfKey, start, end)
}

func clip(candles []Candle, start, end int64) ([]Candle, error) {
	if len(candles) == 0 {
		return nil, ErrDataUnavailable
	}
	if start <= 0 && end <= 0 {
		return candles, nil
	}
	lo, hi := start, end
	if lo <= 0 {
		lo = candles[0].OpenTime
	}
	if hi <= 0 {
		hi = candles[len(candles)-1].CloseTime
	}
	return FilterRange(candles, lo, hi)
}
