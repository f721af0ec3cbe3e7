package market

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/tidwall/gjson"

	"marlin/internal/logger"
)

const maxKlineLimit = 1500

// BinanceSource 基于 go-binance 合约 SDK 拉取历史 K 线。
type BinanceSource struct {
	client *futures.Client
}

// NewBinanceSource 构造数据源，baseURL 为空时使用 SDK 默认地址。
func NewBinanceSource(baseURL string) *BinanceSource {
	client := futures.NewClient("", "")
	if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
		client.BaseURL = trimmed
	}
	client.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	return &BinanceSource{client: client}
}

func (s *BinanceSource) Name() string { return "binance" }

// FetchRange 拉取 [start, end]（毫秒）区间的全部 K 线，内部自动分页。
func (s *BinanceSource) FetchRange(ctx context.Context, symbol string, tf Timeframe, start, end int64) ([]Candle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	if end <= start {
		return nil, fmt.Errorf("start/end 非法: %d ~ %d", start, end)
	}
	var out []Candle
	cursor := start
	for cursor <= end {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		batch, err := s.fetchBatch(ctx, symbol, tf.SourceInterval, cursor, end)
		if err != nil {
			return out, err
		}
		if len(batch) == 0 {
			break
		}
		out = append(out, batch...)
		next := batch[len(batch)-1].OpenTime + tf.DurationMillis()
		if next <= cursor {
			break
		}
		cursor = next
		if len(batch) < maxKlineLimit {
			break
		}
	}
	logger.Debugf("[binance] %s %s 拉取 %d 条 (%d ~ %d)", symbol, tf.Key, len(out), start, end)
	return out, nil
}

func (s *BinanceSource) fetchBatch(ctx context.Context, symbol, interval string, start, end int64) ([]Candle, error) {
	svc := s.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		StartTime(start).
		EndTime(end).
		Limit(maxKlineLimit)
	kls, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines failed: %w", err)
	}
	out := make([]Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	return out, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

// ParseKlinePayload 解析交易所原始 kline JSON 数组（行内为数值/字符串混排）。
// 供导入落盘文件或测试夹具使用。
func ParseKlinePayload(raw []byte) ([]Candle, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("kline payload 不是合法 JSON")
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("kline payload 根节点必须是数组")
	}
	var out []Candle
	parsed.ForEach(func(_, row gjson.Result) bool {
		cells := row.Array()
		if len(cells) < 7 {
			return true
		}
		c := Candle{
			OpenTime:  cells[0].Int(),
			Open:      cells[1].Float(),
			High:      cells[2].Float(),
			Low:       cells[3].Float(),
			Close:     cells[4].Float(),
			Volume:    cells[5].Float(),
			CloseTime: cells[6].Int(),
		}
		if len(cells) > 8 {
			c.Trades = cells[8].Int()
		}
		out = append(out, c)
		return true
	})
	if len(out) == 0 {
		return nil, fmt.Errorf("kline payload 为空")
	}
	return out, nil
}
