package market

import (
	"fmt"
	"strconv"
)

// Schema 标记缓存行的列式结构。上游行要么是 6 列基础 OHLCV，
// 要么是交易所返回的 12 列扩展形式；读取时按显式标签还原，
// 不再依赖 len(row) 猜测。
type Schema string

const (
	SchemaOHLCV    Schema = "ohlcv6"
	SchemaExtended Schema = "extended12"
)

func (s Schema) Columns() int {
	switch s {
	case SchemaOHLCV:
		return 6
	case SchemaExtended:
		return 12
	default:
		return 0
	}
}

func (s Schema) Valid() bool {
	return s == SchemaOHLCV || s == SchemaExtended
}

// SchemaForArity 根据首行列数推断 schema，仅在写入时调用一次。
func SchemaForArity(n int) (Schema, error) {
	switch n {
	case 6:
		return SchemaOHLCV, nil
	case 12:
		return SchemaExtended, nil
	default:
		return "", fmt.Errorf("unsupported row arity %d (want 6 or 12)", n)
	}
}

// DecodeRows 将字符串行解析为 Candles。
func DecodeRows(schema Schema, rows [][]string) (Candles, error) {
	if !schema.Valid() {
		return nil, fmt.Errorf("invalid schema tag: %q", schema)
	}
	want := schema.Columns()
	out := make(Candles, 0, len(rows))
	for i, row := range rows {
		if len(row) < want {
			return nil, fmt.Errorf("row %d: have %d columns, schema %s wants %d", i, len(row), schema, want)
		}
		c, err := decodeRow(schema, row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func decodeRow(schema Schema, row []string) (Candle, error) {
	ts, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return Candle{}, fmt.Errorf("timestamp: %w", err)
	}
	var c Candle
	c.OpenTime = ts
	vals := make([]float64, 0, 5)
	for _, s := range row[1:6] {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Candle{}, fmt.Errorf("numeric column %q: %w", s, err)
		}
		vals = append(vals, v)
	}
	c.Open, c.High, c.Low, c.Close, c.Volume = vals[0], vals[1], vals[2], vals[3], vals[4]
	if schema == SchemaOHLCV {
		return c, nil
	}
	closeTime, err := strconv.ParseInt(row[6], 10, 64)
	if err != nil {
		return Candle{}, fmt.Errorf("close_time: %w", err)
	}
	c.CloseTime = closeTime
	if c.QuoteVolume, err = strconv.ParseFloat(row[7], 64); err != nil {
		return Candle{}, fmt.Errorf("quote_volume: %w", err)
	}
	if c.Trades, err = strconv.ParseInt(row[8], 10, 64); err != nil {
		return Candle{}, fmt.Errorf("trades: %w", err)
	}
	if c.TakerBuyBase, err = strconv.ParseFloat(row[9], 64); err != nil {
		return Candle{}, fmt.Errorf("taker_buy_base: %w", err)
	}
	if c.TakerBuyQuote, err = strconv.ParseFloat(row[10], 64); err != nil {
		return Candle{}, fmt.Errorf("taker_buy_quote: %w", err)
	}
	return c, nil
}

// EncodeRows 将 Candles 还原为上游行形态。时间戳输出为整数字符串，
// 数值列不带多余的小数零，与写入前的交易所格式一致。
func EncodeRows(schema Schema, cs Candles) [][]string {
	out := make([][]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, encodeRow(schema, c))
	}
	return out
}

func encodeRow(schema Schema, c Candle) []string {
	row := []string{
		strconv.FormatInt(c.OpenTime, 10),
		formatNum(c.Open),
		formatNum(c.High),
		formatNum(c.Low),
		formatNum(c.Close),
		formatNum(c.Volume),
	}
	if schema == SchemaOHLCV {
		return row
	}
	return append(row,
		strconv.FormatInt(c.CloseTime, 10),
		formatNum(c.QuoteVolume),
		strconv.FormatInt(c.Trades, 10),
		formatNum(c.TakerBuyBase),
		formatNum(c.TakerBuyQuote),
		"0",
	)
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
