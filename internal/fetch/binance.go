package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stratlab/internal/market"

	"github.com/adshao/go-binance/v2/futures"
)

// BinanceSource 基于 go-binance SDK 的 USDT 合约行情源，
// 产出 12 列扩展行（含 close_time / quote_volume / taker 字段）。
type BinanceSource struct {
	client *futures.Client
}

func NewBinanceSource(baseURL string, timeout time.Duration) *BinanceSource {
	client := futures.NewClient("", "")
	if base := strings.TrimSpace(baseURL); base != "" {
		client.BaseURL = base
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client.HTTPClient = &http.Client{Timeout: timeout}
	return &BinanceSource{client: client}
}

func (b *BinanceSource) Name() string { return "binance" }

func (b *BinanceSource) Schema() market.Schema { return market.SchemaExtended }

func (b *BinanceSource) Fetch(ctx context.Context, req Request) (market.Candles, error) {
	if req.Symbol == "" {
		return nil, fmt.Errorf("symbol 不能为空")
	}
	limit := req.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	svc := b.client.NewKlinesService().
		Symbol(strings.ToUpper(req.Symbol)).
		Interval(req.Interval.BinanceCode).
		Limit(limit)
	if req.Start > 0 {
		svc = svc.StartTime(req.Start)
	}
	if req.End > 0 {
		svc = svc.EndTime(req.End)
	}
	kls, err := svc.Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make(market.Candles, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:      kl.OpenTime,
			Open:          parseFloat(kl.Open),
			High:          parseFloat(kl.High),
			Low:           parseFloat(kl.Low),
			Close:         parseFloat(kl.Close),
			Volume:        parseFloat(kl.Volume),
			CloseTime:     kl.CloseTime,
			QuoteVolume:   parseFloat(kl.QuoteAssetVolume),
			Trades:        kl.TradeNum,
			TakerBuyBase:  parseFloat(kl.TakerBuyBaseAssetVolume),
			TakerBuyQuote: parseFloat(kl.TakerBuyQuoteAssetVolume),
		})
	}
	return out, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
