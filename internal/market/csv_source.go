package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// CSVSource 从本地 CSV 文件读取 K 线，文件名约定为 {SYMBOL}_{timeframe}.csv。
// 首行为表头，至少包含 timestamp/open/high/low/close/volume 列。
// CSV 缺失时退回读取同名 .json 文件（交易所原始 kline 数组落盘格式）。
type CSVSource struct {
	dir string
}

func NewCSVSource(dir string) *CSVSource {
	if dir == "" {
		dir = "data/ohlcv"
	}
	return &CSVSource{dir: dir}
}

func (s *CSVSource) Name() string { return "csv" }

// Load 读取指定 symbol/timeframe 的全部 K 线并按时间升序返回。
func (s *CSVSource) Load(symbol string, tf Timeframe) ([]Candle, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s.csv", strings.ToUpper(symbol), tf.Key))
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s.loadRawPayload(symbol, tf, path)
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header failed (%s): %w", path, err)
	}
	cols, err := resolveColumns(header)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var candles []Candle
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv row %d failed (%s): %w", line, path, err)
		}
		line++
		c, err := parseRow(record, cols, tf)
		if err != nil {
			return nil, fmt.Errorf("csv row %d invalid (%s): %w", line, path, err)
		}
		candles = append(candles, c)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: %s has no rows", ErrDataUnavailable, path)
	}
	if err := EnsureAscending(candles); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return candles, nil
}

// loadRawPayload 读取 {SYMBOL}_{timeframe}.json 原始 kline 数组。
// csvPath 是先前未命中的 CSV 路径，两个文件都缺时用它报错。
func (s *CSVSource) loadRawPayload(symbol string, tf Timeframe, csvPath string) ([]Candle, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", strings.ToUpper(symbol), tf.Key))
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDataUnavailable, csvPath)
		}
		return nil, err
	}
	candles, err := ParseKlinePayload(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := EnsureAscending(candles); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return candles, nil
}

type columnIndex struct {
	ts, open, high, low, close, volume int
}

func resolveColumns(header []string) (columnIndex, error) {
	idx := columnIndex{ts: -1, open: -1, high: -1, low: -1, close: -1, volume: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "timestamp", "time", "date", "datetime", "open_time":
			idx.ts = i
		case "open":
			idx.open = i
		case "high":
			idx.high = i
		case "low":
			idx.low = i
		case "close":
			idx.close = i
		case "volume", "vol":
			idx.volume = i
		}
	}
	if idx.ts < 0 || idx.open < 0 || idx.high < 0 || idx.low < 0 || idx.close < 0 {
		return idx, fmt.Errorf("csv header missing required columns: %v", header)
	}
	return idx, nil
}

func parseRow(record []string, cols columnIndex, tf Timeframe) (Candle, error) {
	get := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	ts, err := parseTimestamp(get(cols.ts))
	if err != nil {
		return Candle{}, err
	}
	open, err := strconv.ParseFloat(get(cols.open), 64)
	if err != nil {
		return Candle{}, fmt.Errorf("open: %w", err)
	}
	high, err := strconv.ParseFloat(get(cols.high), 64)
	if err != nil {
		return Candle{}, fmt.Errorf("high: %w", err)
	}
	low, err := strconv.ParseFloat(get(cols.low), 64)
	if err != nil {
		return Candle{}, fmt.Errorf("low: %w", err)
	}
	closePrice, err := strconv.ParseFloat(get(cols.close), 64)
	if err != nil {
		return Candle{}, fmt.Errorf("close: %w", err)
	}
	volume := 0.0
	if v := get(cols.volume); v != "" {
		volume, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return Candle{}, fmt.Errorf("volume: %w", err)
		}
	}
	return Candle{
		OpenTime:  ts,
		CloseTime: ts + tf.DurationMillis() - 1,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, nil
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTimestamp 兼容毫秒/秒时间戳与常见日期格式。
func parseTimestamp(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 1e12 {
			n *= 1000
		}
		return n, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized timestamp %q", s)
}
