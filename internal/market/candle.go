package market

import "time"

// Candle 单根 K 线。OpenTime 为毫秒时间戳，同一 (symbol, interval) 下唯一。
type Candle struct {
	OpenTime      int64   `json:"open_time"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	Volume        float64 `json:"volume"`
	CloseTime     int64   `json:"close_time,omitempty"`
	QuoteVolume   float64 `json:"quote_volume,omitempty"`
	Trades        int64   `json:"trades,omitempty"`
	TakerBuyBase  float64 `json:"taker_buy_base,omitempty"`
	TakerBuyQuote float64 `json:"taker_buy_quote,omitempty"`
}

type Candles []Candle

// OpenAt 返回开盘时间（UTC）。
func (c Candle) OpenAt() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}

// Valid 检查 OHLC 自洽：high ≥ max(open, close)，low ≤ min(open, close)，high ≥ low。
func (c Candle) Valid() bool {
	hi := c.Open
	if c.Close > hi {
		hi = c.Close
	}
	lo := c.Open
	if c.Close < lo {
		lo = c.Close
	}
	return c.High >= hi && c.Low <= lo && c.High >= c.Low
}

// Sorted 判断序列是否按 OpenTime 严格递增（无重复）。
func (cs Candles) Sorted() bool {
	for i := 1; i < len(cs); i++ {
		if cs[i].OpenTime <= cs[i-1].OpenTime {
			return false
		}
	}
	return true
}

// Closes 抽取收盘价序列，供指标计算使用。
func (cs Candles) Closes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}
