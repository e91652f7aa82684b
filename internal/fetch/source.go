package fetch

import (
	"context"
	"fmt"

	"stratlab/internal/market"
)

// Request 描述一次远端 K 线分页请求。
type Request struct {
	Category string // bybit 专用：spot / linear / inverse
	Symbol   string
	Interval market.Interval
	Start    int64 // Unix ms
	End      int64 // Unix ms（0 表示不限制）
	Limit    int
}

// Source 统一不同交易所的单页拉取行为。返回按时间升序的 K 线。
type Source interface {
	Fetch(ctx context.Context, req Request) (market.Candles, error)
	Name() string
	// Schema 标记该源产出的行形态（6 列基础 / 12 列扩展），
	// 写入缓存时随元数据一起落盘。
	Schema() market.Schema
}

// IntegrityError 表示 OHLC 自洽性校验失败。脏数据会污染所有下游指标，
// 因此该错误向上传播并中止本次拉取，由调用方决定重试或放弃。
type IntegrityError struct {
	Symbol string
	TS     int64
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("kline integrity violation: %s @%d: %s", e.Symbol, e.TS, e.Reason)
}
