package fetch

import (
	"context"
	"errors"
	"time"

	"stratlab/internal/dataset"
	"stratlab/internal/logger"
	"stratlab/internal/market"

	"golang.org/x/time/rate"
)

// Config 控制分页拉取行为。
type Config struct {
	Category        string  // bybit category，默认 spot
	MaxBatch        int     // 单页上限（交易所约束，默认 1000）
	RateLimitPerMin float64 // 每分钟请求数，默认 480（约 125ms 间隔）
	SampleStride    int     // OHLC 抽样校验步长，默认 25
}

func (c Config) withDefaults() Config {
	if c.Category == "" {
		c.Category = "spot"
	}
	if c.MaxBatch <= 0 || c.MaxBatch > 1000 {
		c.MaxBatch = 1000
	}
	if c.RateLimitPerMin <= 0 {
		c.RateLimitPerMin = 480
	}
	if c.SampleStride <= 0 {
		c.SampleStride = 25
	}
	return c
}

// Fetcher 负责把一个时间窗口拆页拉取、限速、抽样校验并透写缓存。
type Fetcher struct {
	source  Source
	cache   *dataset.Cache
	cfg     Config
	limiter *rate.Limiter
}

func NewFetcher(source Source, cache *dataset.Cache, cfg Config) *Fetcher {
	cfg = cfg.withDefaults()
	return &Fetcher{
		source:  source,
		cache:   cache,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMin)/60.0), 1),
	}
}

// Fetch 返回 [startTS, endTS) 内按时间升序、无重复的 K 线。
// 缓存命中直接返回；否则逐页拉取：空页或传输错误即停止并返回已累积前缀
// （部分成功策略，错误仅记日志），截断结果不透写缓存；
// 完整性校验失败则中止并返回错误。
func (f *Fetcher) Fetch(ctx context.Context, symbol string, iv market.Interval, startTS, endTS int64) (market.Candles, error) {
	startTS, endTS = iv.AlignRange(startTS, endTS)
	if endTS <= startTS {
		return nil, nil
	}
	startDate := time.UnixMilli(startTS).UTC()
	endDate := time.UnixMilli(endTS).UTC()

	if f.cache != nil {
		if candles, schema, ok := f.cache.GetCandles(symbol, iv.Key, startDate, endDate); ok {
			logger.Infof("[fetch] 缓存命中 %s %s（%d 根，schema=%s）", symbol, iv.Key, len(candles), schema)
			return candles, nil
		}
	}

	step := iv.Millis()
	var all market.Candles
	truncated := false
	current := startTS
	for current < endTS {
		remaining := int((endTS - current) / step)
		if remaining <= 0 {
			break
		}
		limit := remaining
		if limit > f.cfg.MaxBatch {
			limit = f.cfg.MaxBatch
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return all, err
		}
		batchEnd := current + int64(limit)*step
		if batchEnd > endTS {
			batchEnd = endTS
		}
		page, err := f.source.Fetch(ctx, Request{
			Category: f.cfg.Category,
			Symbol:   symbol,
			Interval: iv,
			Start:    current,
			End:      batchEnd,
			Limit:    limit,
		})
		if err != nil {
			logger.Warnf("[fetch] %s %s 页拉取失败，返回已累积 %d 根: %v", symbol, iv.Key, len(all), err)
			truncated = true
			break
		}
		if len(page) == 0 {
			logger.Warnf("[fetch] %s %s 区间 [%d,%d) 为空页，提前结束", symbol, iv.Key, current, batchEnd)
			truncated = true
			break
		}
		// 页边界可能重叠：丢弃不晚于已接收最后一根的 K 线。
		var lastTS int64 = -1
		if len(all) > 0 {
			lastTS = all[len(all)-1].OpenTime
		}
		appended := 0
		for _, c := range page {
			if c.OpenTime <= lastTS || c.OpenTime >= endTS {
				continue
			}
			all = append(all, c)
			lastTS = c.OpenTime
			appended++
		}
		if err := f.validateSample(symbol, page); err != nil {
			return nil, err
		}
		if appended == 0 {
			truncated = true
			break
		}
		current = page[len(page)-1].OpenTime + step
	}

	// 窗口没拉满就不落缓存：条目只写一次，截断的前缀会把后续请求
	// 永远钉在短序列上。下次重拉即可补全。
	if len(all) > 0 && !truncated && f.cache != nil {
		rows := market.EncodeRows(f.source.Schema(), all)
		if err := f.cache.Save(symbol, iv.Key, startDate, endDate, rows); err != nil && !errors.Is(err, dataset.ErrEntryExists) {
			logger.Warnf("[fetch] 缓存写入失败（不影响本次结果）: %v", err)
		}
	}
	return all, nil
}

// validateSample 按步长抽样校验 OHLC 自洽性，首尾必查。
func (f *Fetcher) validateSample(symbol string, page market.Candles) error {
	if len(page) == 0 {
		return nil
	}
	check := func(c market.Candle) error {
		if !c.Valid() {
			return &IntegrityError{Symbol: symbol, TS: c.OpenTime, Reason: "high/low 未包住 open/close"}
		}
		return nil
	}
	if err := check(page[0]); err != nil {
		return err
	}
	if err := check(page[len(page)-1]); err != nil {
		return err
	}
	for i := f.cfg.SampleStride; i < len(page)-1; i += f.cfg.SampleStride {
		if err := check(page[i]); err != nil {
			return err
		}
	}
	return nil
}
