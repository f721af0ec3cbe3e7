package market

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDataFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestCSVSourceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, "BTCUSDT_1h.csv",
		"timestamp,open,high,low,close,volume\n"+
			"1700000000000,100,101,99,100.5,12\n"+
			"1700003600000,100.5,102,100,101,8\n")

	tf, _ := ParseTimeframe("1h")
	candles, err := NewCSVSource(dir).Load("btcusdt", tf)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, int64(1700000000000), candles[0].OpenTime)
	assert.Equal(t, int64(1700000000000)+hourMs-1, candles[0].CloseTime)
	assert.Equal(t, 100.5, candles[0].Close)
	assert.Equal(t, 8.0, candles[1].Volume)
}

func TestCSVSourceSecondTimestamps(t *testing.T) {
	dir := t.TempDir()
	// 秒级时间戳与别名表头同样可读
	writeDataFile(t, dir, "BTCUSDT_1h.csv",
		"time,open,high,low,close,vol\n"+
			"1700000000,100,101,99,100.5,12\n")

	tf, _ := ParseTimeframe("1h")
	candles, err := NewCSVSource(dir).Load("BTCUSDT", tf)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, int64(1700000000000), candles[0].OpenTime)
}

func TestCSVSourceMissingFile(t *testing.T) {
	tf, _ := ParseTimeframe("1h")
	_, err := NewCSVSource(t.TempDir()).Load("BTCUSDT", tf)
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestCSVSourceNoRows(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, "BTCUSDT_1h.csv", "timestamp,open,high,low,close,volume\n")

	tf, _ := ParseTimeframe("1h")
	_, err := NewCSVSource(dir).Load("BTCUSDT", tf)
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestCSVSourceMissingColumns(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, "BTCUSDT_1h.csv", "timestamp,open,high,low\n1700000000000,1,2,0.5\n")

	tf, _ := ParseTimeframe("1h")
	_, err := NewCSVSource(dir).Load("BTCUSDT", tf)
	assert.Error(t, err)
}

func TestCSVSourceOutOfOrder(t *testing.T) {
	dir := t.TempDir()
	writeDataFile(t, dir, "BTCUSDT_1h.csv",
		"timestamp,open,high,low,close,volume\n"+
			"1700003600000,100,101,99,100.5,12\n"+
			"1700000000000,100.5,102,100,101,8\n")

	tf, _ := ParseTimeframe("1h")
	_, err := NewCSVSource(dir).Load("BTCUSDT", tf)
	assert.Error(t, err)
}

func TestCSVSourceRawPayloadFallback(t *testing.T) {
	dir := t.TempDir()
	// CSV 缺失时读取交易所原始 kline 数组落盘文件
	writeDataFile(t, dir, "ETHUSDT_1h.json",
		`[[1700000000000,"2000.5","2010","1995","2005.25","123.4",1700003599999,"0",42],
		[1700003600000,"2005.25","2015","2000","2010","98.7",1700007199999,"0",37]]`)

	tf, _ := ParseTimeframe("1h")
	candles, err := NewCSVSource(dir).Load("ethusdt", tf)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, int64(1700000000000), candles[0].OpenTime)
	assert.Equal(t, int64(1700003599999), candles[0].CloseTime)
	assert.Equal(t, 2005.25, candles[0].Close)
	assert.Equal(t, int64(42), candles[0].Trades)
	assert.Equal(t, int64(37), candles[1].Trades)
}

func TestParseKlinePayloadErrors(t *testing.T) {
	_, err := ParseKlinePayload([]byte(`{"not":"array"}`))
	assert.Error(t, err)

	_, err = ParseKlinePayload([]byte(`[]`))
	assert.Error(t, err)

	_, err = ParseKlinePayload([]byte(`not json`))
	assert.Error(t, err)
}
