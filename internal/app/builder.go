package app

import (
	"fmt"

	"stratlab/internal/config"
	"stratlab/internal/dataset"
	"stratlab/internal/fetch"
	"stratlab/internal/httpapi"
	"stratlab/internal/market"
	"stratlab/internal/suite"
)

// buildApp 按配置装配全部依赖：缓存→数据源→拉取器→结果库→矩阵服务→HTTP。
func buildApp(cfg *config.Config, cfgPath string) (*App, error) {
	cache, err := dataset.Open(cfg.App.DataDir)
	if err != nil {
		return nil, fmt.Errorf("初始化数据集缓存失败: %w", err)
	}

	source, err := buildSource(cfg.Fetch)
	if err != nil {
		return nil, err
	}
	fetcher := fetch.NewFetcher(source, cache, fetch.Config{
		Category:        cfg.Fetch.Category,
		MaxBatch:        cfg.Fetch.MaxBatch,
		RateLimitPerMin: float64(cfg.Fetch.RateLimitPerMin),
		SampleStride:    cfg.Fetch.SampleStride,
	})

	store, err := suite.NewStore(cfg.App.ResultDBPath)
	if err != nil {
		return nil, fmt.Errorf("初始化结果库失败: %w", err)
	}

	policy, err := cfg.Policy()
	if err != nil {
		store.Close()
		return nil, err
	}
	runner := suite.NewRunner(fetcher, store, suite.Params{
		Ledger:        cfg.Capital.Ledger(),
		Sim:           cfg.Sim.Simulator(),
		Risk:          cfg.Risk,
		Policy:        policy,
		MaxConcurrent: cfg.Suite.MaxConcurrent,
	})

	iv, err := market.ParseInterval(cfg.Suite.Interval)
	if err != nil {
		store.Close()
		return nil, err
	}
	svc := suite.NewService(runner, iv)

	httpSrv, err := httpapi.NewServer(httpapi.Config{
		Addr:  cfg.App.HTTPAddr,
		Svc:   svc,
		Cache: cache,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &App{
		cfg:     cfg,
		cfgPath: cfgPath,
		cache:   cache,
		store:   store,
		runner:  runner,
		svc:     svc,
		httpSrv: httpSrv,
	}, nil
}

func buildSource(fc config.FetchConfig) (fetch.Source, error) {
	switch fc.Exchange {
	case "binance":
		return fetch.NewBinanceSource(fc.BaseURL, fc.Timeout()), nil
	case "bybit":
		return fetch.NewBybitSource(fetch.BybitConfig{
			BaseURL:   fc.BaseURL,
			APIKey:    fc.APIKey,
			APISecret: fc.APISecret,
			Timeout:   fc.Timeout(),
		})
	default:
		return nil, fmt.Errorf("未知数据源: %s", fc.Exchange)
	}
}
