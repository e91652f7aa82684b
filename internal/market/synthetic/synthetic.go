// Package synthetic 生成随机游走 K 线，仅供测试使用，
// 严禁接入生产数据路径。
package synthetic

import (
	"math"
	"math/rand"

	"stratlab/internal/market"
)

// Config 控制随机游走的形态。
type Config struct {
	Seed       int64
	StartPrice float64
	Drift      float64 // 每根 K 线的对数漂移
	Volatility float64 // 每根 K 线的对数波动
	Volume     float64
	StartTS    int64
	IntervalMs int64
}

func (c Config) withDefaults() Config {
	if c.StartPrice <= 0 {
		c.StartPrice = 45000
	}
	if c.Volatility <= 0 {
		c.Volatility = 0.01
	}
	if c.Volume <= 0 {
		c.Volume = 100
	}
	if c.IntervalMs <= 0 {
		c.IntervalMs = 60_000
	}
	if c.StartTS <= 0 {
		c.StartTS = 1_700_000_000_000
	}
	return c
}

// Walk 生成 n 根自洽的 K 线（high/low 包住 open/close，时间严格递增）。
func Walk(n int, cfg Config) market.Candles {
	cfg = cfg.withDefaults()
	rng := rand.New(rand.NewSource(cfg.Seed))
	out := make(market.Candles, 0, n)
	price := cfg.StartPrice
	for i := 0; i < n; i++ {
		open := price
		ret := cfg.Drift + cfg.Volatility*rng.NormFloat64()
		close := open * math.Exp(ret)
		hi := math.Max(open, close) * (1 + 0.3*cfg.Volatility*rng.Float64())
		lo := math.Min(open, close) * (1 - 0.3*cfg.Volatility*rng.Float64())
		ts := cfg.StartTS + int64(i)*cfg.IntervalMs
		out = append(out, market.Candle{
			OpenTime:  ts,
			Open:      open,
			High:      hi,
			Low:       lo,
			Close:     close,
			Volume:    cfg.Volume * (0.5 + rng.Float64()),
			CloseTime: ts + cfg.IntervalMs - 1,
		})
		price = close
	}
	return out
}

// Flat 生成收盘价恒定的序列，便于构造精确场景。
func Flat(n int, price float64, startTS, intervalMs int64) market.Candles {
	out := make(market.Candles, 0, n)
	for i := 0; i < n; i++ {
		ts := startTS + int64(i)*intervalMs
		out = append(out, market.Candle{
			OpenTime:  ts,
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    1,
			CloseTime: ts + intervalMs - 1,
		})
	}
	return out
}
