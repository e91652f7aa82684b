package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stratlab/internal/dataset"
	"stratlab/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minuteMs = int64(60_000)

var baseTS = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

// stubSource 按请求窗口切片返回预生成序列，并记录页数。
type stubSource struct {
	candles market.Candles
	pages   int
	failOn  int // 第 N 页返回错误（1 起），0 不失败
	err     error
}

func (s *stubSource) Name() string          { return "stub" }
func (s *stubSource) Schema() market.Schema { return market.SchemaOHLCV }

func (s *stubSource) Fetch(ctx context.Context, req Request) (market.Candles, error) {
	s.pages++
	if s.failOn > 0 && s.pages >= s.failOn {
		if s.err != nil {
			return nil, s.err
		}
		return nil, fmt.Errorf("stub: 传输失败")
	}
	var out market.Candles
	for _, c := range s.candles {
		if c.OpenTime >= req.Start && c.OpenTime < req.End && len(out) < req.Limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func minuteCandles(n int) market.Candles {
	out := make(market.Candles, 0, n)
	price := 100.0
	for i := 0; i < n; i++ {
		out = append(out, market.Candle{
			OpenTime: baseTS + int64(i)*minuteMs,
			Open:     price,
			High:     price + 1,
			Low:      price - 1,
			Close:    price + 0.5,
			Volume:   10,
		})
		price += 0.5
	}
	return out
}

func oneMinute(t *testing.T) market.Interval {
	t.Helper()
	iv, err := market.ParseInterval("1m")
	require.NoError(t, err)
	return iv
}

func newTestFetcher(t *testing.T, src Source) (*Fetcher, *dataset.Cache) {
	t.Helper()
	cache, err := dataset.Open(t.TempDir())
	require.NoError(t, err)
	f := NewFetcher(src, cache, Config{MaxBatch: 10, RateLimitPerMin: 600000, SampleStride: 3})
	return f, cache
}

func TestFetchPaginatesAndOrders(t *testing.T) {
	src := &stubSource{candles: minuteCandles(25)}
	f, _ := newTestFetcher(t, src)

	got, err := f.Fetch(context.Background(), "BTCUSDT", oneMinute(t), baseTS, baseTS+25*minuteMs)
	require.NoError(t, err)
	require.Len(t, got, 25)
	// MaxBatch=10 → 3 页
	assert.Equal(t, 3, src.pages)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].OpenTime, got[i-1].OpenTime, "严格递增，无重复")
	}
}

func TestFetchWriteThroughCache(t *testing.T) {
	src := &stubSource{candles: minuteCandles(12)}
	f, cache := newTestFetcher(t, src)
	iv := oneMinute(t)

	_, err := f.Fetch(context.Background(), "BTCUSDT", iv, baseTS, baseTS+12*minuteMs)
	require.NoError(t, err)
	require.Len(t, cache.List(), 1)

	pagesBefore := src.pages
	got, err := f.Fetch(context.Background(), "BTCUSDT", iv, baseTS, baseTS+12*minuteMs)
	require.NoError(t, err)
	assert.Len(t, got, 12)
	// 第二次命中缓存，不再访问数据源
	assert.Equal(t, pagesBefore, src.pages)
}

func TestFetchPartialSuccessOnTransportError(t *testing.T) {
	src := &stubSource{candles: minuteCandles(25), failOn: 2}
	f, _ := newTestFetcher(t, src)

	got, err := f.Fetch(context.Background(), "BTCUSDT", oneMinute(t), baseTS, baseTS+25*minuteMs)
	require.NoError(t, err)
	// 第一页的 10 根作为前缀返回
	assert.Len(t, got, 10)
}

func TestFetchDoesNotCacheTruncatedPrefix(t *testing.T) {
	src := &stubSource{candles: minuteCandles(25), failOn: 2}
	f, cache := newTestFetcher(t, src)
	iv := oneMinute(t)

	got, err := f.Fetch(context.Background(), "BTCUSDT", iv, baseTS, baseTS+25*minuteMs)
	require.NoError(t, err)
	require.Len(t, got, 10)
	// 截断前缀不落缓存：条目只写一次，短序列会把窗口永远钉死
	assert.Empty(t, cache.List())

	// 数据源恢复后重拉能补全整个窗口
	src.failOn = 0
	got, err = f.Fetch(context.Background(), "BTCUSDT", iv, baseTS, baseTS+25*minuteMs)
	require.NoError(t, err)
	assert.Len(t, got, 25)
	assert.Len(t, cache.List(), 1)
}

func TestFetchStopsOnEmptyPage(t *testing.T) {
	// 只有前 7 根存在，其余窗口为空页
	src := &stubSource{candles: minuteCandles(7)}
	f, _ := newTestFetcher(t, src)

	got, err := f.Fetch(context.Background(), "BTCUSDT", oneMinute(t), baseTS, baseTS+25*minuteMs)
	require.NoError(t, err)
	assert.Len(t, got, 7)
}

func TestFetchIntegrityViolationAborts(t *testing.T) {
	candles := minuteCandles(5)
	candles[4].High = candles[4].Low - 1 // 自相矛盾的 OHLC
	src := &stubSource{candles: candles}
	f, cache := newTestFetcher(t, src)

	_, err := f.Fetch(context.Background(), "BTCUSDT", oneMinute(t), baseTS, baseTS+5*minuteMs)
	var integrity *IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, "BTCUSDT", integrity.Symbol)
	// 脏页不得进缓存
	assert.Empty(t, cache.List())
}

func TestFetchEmptyRange(t *testing.T) {
	f, _ := newTestFetcher(t, &stubSource{})
	got, err := f.Fetch(context.Background(), "BTCUSDT", oneMinute(t), baseTS, baseTS)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBybitSourceRequiresCredentials(t *testing.T) {
	_, err := NewBybitSource(BybitConfig{})
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = NewBybitSource(BybitConfig{APIKey: "k"})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestBybitSourceParsesDescendingList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v5/market/kline", r.URL.Path)
		assert.Equal(t, "linear", r.URL.Query().Get("category"))
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1", r.URL.Query().Get("interval"))
		assert.Equal(t, "k", r.Header.Get("X-BAPI-API-KEY"))

		// Bybit 倒序返回：最新在前
		resp := map[string]any{
			"retCode": 0,
			"retMsg":  "OK",
			"result": map[string]any{
				"list": [][]string{
					{fmt.Sprint(baseTS + minuteMs), "101", "102", "100", "101.5", "11", "1111"},
					{fmt.Sprint(baseTS), "100", "101", "99", "100.5", "10", "1000"},
				},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	src, err := NewBybitSource(BybitConfig{BaseURL: srv.URL, APIKey: "k", APISecret: "s"})
	require.NoError(t, err)

	got, err := src.Fetch(context.Background(), Request{
		Category: "linear",
		Symbol:   "BTCUSDT",
		Interval: mustInterval(t, "1m"),
		Start:    baseTS,
		End:      baseTS + 2*minuteMs,
		Limit:    2,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, baseTS, got[0].OpenTime)
	assert.Equal(t, baseTS+minuteMs, got[1].OpenTime)
	assert.InDelta(t, 100.5, got[0].Close, 1e-9)
}

func TestBybitSourceRetCodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"retCode":10001,"retMsg":"params error"}`))
	}))
	defer srv.Close()

	src, err := NewBybitSource(BybitConfig{BaseURL: srv.URL, APIKey: "k", APISecret: "s"})
	require.NoError(t, err)
	_, err = src.Fetch(context.Background(), Request{Symbol: "BTCUSDT", Interval: mustInterval(t, "1m")})
	assert.ErrorContains(t, err, "retCode=10001")
}

func mustInterval(t *testing.T, key string) market.Interval {
	t.Helper()
	iv, err := market.ParseInterval(key)
	require.NoError(t, err)
	return iv
}
