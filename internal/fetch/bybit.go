package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"stratlab/internal/market"

	"github.com/tidwall/gjson"
)

// BybitConfig 配置 Bybit v5 行情源。公共行情接口无须签名，
// 但缺失凭据视为前置错误：任何回测开始前即失败，不允许部分执行。
type BybitConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// BybitSource 基于 Bybit v5 /v5/market/kline。
type BybitSource struct {
	cfg    BybitConfig
	client *http.Client
}

var ErrMissingCredentials = errors.New("fetch: BYBIT_API_KEY/BYBIT_API_SECRET 未配置")

func NewBybitSource(cfg BybitConfig) (*BybitSource, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.bybit.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &BybitSource{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (b *BybitSource) Name() string { return "bybit" }

func (b *BybitSource) Schema() market.Schema { return market.SchemaOHLCV }

func (b *BybitSource) Fetch(ctx context.Context, req Request) (market.Candles, error) {
	if req.Symbol == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	category := req.Category
	if category == "" {
		category = "spot"
	}
	limit := req.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	u, _ := url.Parse(b.cfg.BaseURL)
	u.Path = "/v5/market/kline"
	q := u.Query()
	q.Set("category", category)
	q.Set("symbol", req.Symbol)
	q.Set("interval", req.Interval.BybitCode)
	q.Set("limit", strconv.Itoa(limit))
	if req.Start > 0 {
		q.Set("start", strconv.FormatInt(req.Start, 10))
	}
	if req.End > 0 {
		q.Set("end", strconv.FormatInt(req.End, 10))
	}
	u.RawQuery = q.Encode()

	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	httpReq.Header.Set("X-BAPI-API-KEY", b.cfg.APIKey)
	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("bybit 返回状态码 %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(body)
	if code := doc.Get("retCode").Int(); code != 0 {
		return nil, fmt.Errorf("bybit retCode=%d: %s", code, doc.Get("retMsg").String())
	}
	list := doc.Get("result.list").Array()
	out := make(market.Candles, 0, len(list))
	// Bybit 返回倒序（最新在前），此处反转为时间升序。
	for i := len(list) - 1; i >= 0; i-- {
		row := list[i].Array()
		if len(row) < 6 {
			continue
		}
		out = append(out, market.Candle{
			OpenTime: row[0].Int(),
			Open:     row[1].Float(),
			High:     row[2].Float(),
			Low:      row[3].Float(),
			Close:    row[4].Float(),
			Volume:   row[5].Float(),
		})
	}
	return out, nil
}
