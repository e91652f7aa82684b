package market

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Interval 描述 K 线周期：内部 key、时长与各数据源的 interval 代码。
type Interval struct {
	Key         string
	Duration    time.Duration
	BybitCode   string
	BinanceCode string
}

var supportedIntervals = map[string]Interval{
	"1m":  {Key: "1m", Duration: time.Minute, BybitCode: "1", BinanceCode: "1m"},
	"3m":  {Key: "3m", Duration: 3 * time.Minute, BybitCode: "3", BinanceCode: "3m"},
	"5m":  {Key: "5m", Duration: 5 * time.Minute, BybitCode: "5", BinanceCode: "5m"},
	"15m": {Key: "15m", Duration: 15 * time.Minute, BybitCode: "15", BinanceCode: "15m"},
	"30m": {Key: "30m", Duration: 30 * time.Minute, BybitCode: "30", BinanceCode: "30m"},
	"1h":  {Key: "1h", Duration: time.Hour, BybitCode: "60", BinanceCode: "1h"},
	"4h":  {Key: "4h", Duration: 4 * time.Hour, BybitCode: "240", BinanceCode: "4h"},
	"1d":  {Key: "1d", Duration: 24 * time.Hour, BybitCode: "D", BinanceCode: "1d"},
	"1w":  {Key: "1w", Duration: 7 * 24 * time.Hour, BybitCode: "W", BinanceCode: "1w"},
}

// ParseInterval 返回标准化的周期定义。
func ParseInterval(input string) (Interval, error) {
	key := strings.ToLower(strings.TrimSpace(input))
	iv, ok := supportedIntervals[key]
	if !ok {
		return Interval{}, fmt.Errorf("unsupported interval: %s", input)
	}
	return iv, nil
}

// SupportedIntervals 返回全部支持的 key（排序后）。
func SupportedIntervals() []string {
	keys := make([]string, 0, len(supportedIntervals))
	for k := range supportedIntervals {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (iv Interval) Millis() int64 {
	return iv.Duration.Milliseconds()
}

func alignDown(ts, step int64) int64 {
	if step <= 0 {
		return ts
	}
	rem := ts % step
	if rem < 0 {
		rem += step
	}
	return ts - rem
}

// AlignRange 将毫秒时间对齐到周期网格，保证 start<=end。
func (iv Interval) AlignRange(start, end int64) (int64, int64) {
	step := iv.Millis()
	if end < start {
		start, end = end, start
	}
	alStart := alignDown(start, step)
	alEnd := alignDown(end, step)
	if alEnd < alStart {
		alEnd = alStart
	}
	return alStart, alEnd
}

// ExpectedBars 计算 [start, end) 区间应有的 K 线数量。
func (iv Interval) ExpectedBars(start, end int64) int64 {
	if end <= start {
		return 0
	}
	step := iv.Millis()
	if step == 0 {
		return 0
	}
	n := (end - start) / step
	if (end-start)%step != 0 {
		n++
	}
	return n
}
