package config

import (
	"strings"

	"stratlab/internal/risk"
)

const (
	defaultAppEnv       = "dev"
	defaultAppLogLevel  = "info"
	defaultAppHTTPAddr  = ":9992"
	defaultAppDataDir   = "data/cache"
	defaultAppResultDB  = "data/results.db"
	defaultFetchBybit   = "https://api.bybit.com"
	defaultFetchBinance = "https://fapi.binance.com"
	defaultCategory     = "linear"
	defaultTimeoutSec   = 15
	defaultMaxBatch     = 1000
	defaultRatePerMin   = 480
	defaultSampleStride = 25
	defaultInterval     = "5m"
	defaultConcurrency  = 4
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults() {
	c.App.applyDefaults()
	c.Capital.applyDefaults()
	c.Sim.applyDefaults()
	c.applyRiskDefaults()
	c.Fetch.applyDefaults()
	c.Suite.applyDefaults()
}

func (a *AppConfig) applyDefaults() {
	if strings.TrimSpace(a.Env) == "" {
		a.Env = defaultAppEnv
	}
	if strings.TrimSpace(a.LogLevel) == "" {
		a.LogLevel = defaultAppLogLevel
	}
	if strings.TrimSpace(a.HTTPAddr) == "" {
		a.HTTPAddr = defaultAppHTTPAddr
	}
	if strings.TrimSpace(a.DataDir) == "" {
		a.DataDir = defaultAppDataDir
	}
	if strings.TrimSpace(a.ResultDBPath) == "" {
		a.ResultDBPath = defaultAppResultDB
	}
}

func (c *CapitalConfig) applyDefaults() {
	if c.InitialCapitalUSD <= 0 {
		c.InitialCapitalUSD = 10000
	}
	if c.PositionSizePct <= 0 {
		c.PositionSizePct = 0.02
	}
	if c.CommissionRate < 0 {
		c.CommissionRate = 0
	}
}

func (s *SimConfig) applyDefaults() {
	if s.StopLossPct <= 0 {
		s.StopLossPct = 0.015
	}
	if s.TakeProfitPct <= 0 {
		s.TakeProfitPct = 0.03
	}
}

// 风控阈值缺省取 risk.DefaultThresholds，零值字段逐项回填。
func (c *Config) applyRiskDefaults() {
	def := risk.DefaultThresholds()
	if c.Risk.DrawdownWarning <= 0 {
		c.Risk.DrawdownWarning = def.DrawdownWarning
	}
	if c.Risk.DrawdownCritical <= 0 {
		c.Risk.DrawdownCritical = def.DrawdownCritical
	}
	if c.Risk.LossStreakWarning <= 0 {
		c.Risk.LossStreakWarning = def.LossStreakWarning
	}
	if c.Risk.LossStreakCritical <= 0 {
		c.Risk.LossStreakCritical = def.LossStreakCritical
	}
	if c.Risk.DailyLossLimit <= 0 {
		c.Risk.DailyLossLimit = def.DailyLossLimit
	}
	if c.Risk.PauseDrawdown <= 0 {
		c.Risk.PauseDrawdown = def.PauseDrawdown
	}
	if c.Risk.PauseLossStreak <= 0 {
		c.Risk.PauseLossStreak = def.PauseLossStreak
	}
}

func (f *FetchConfig) applyDefaults() {
	if strings.TrimSpace(f.Exchange) == "" {
		f.Exchange = "bybit"
	}
	f.Exchange = strings.ToLower(strings.TrimSpace(f.Exchange))
	if strings.TrimSpace(f.Category) == "" {
		f.Category = defaultCategory
	}
	if strings.TrimSpace(f.BaseURL) == "" {
		switch f.Exchange {
		case "binance":
			f.BaseURL = defaultFetchBinance
		default:
			f.BaseURL = defaultFetchBybit
		}
	}
	if f.TimeoutSeconds <= 0 {
		f.TimeoutSeconds = defaultTimeoutSec
	}
	if f.MaxBatch <= 0 {
		f.MaxBatch = defaultMaxBatch
	}
	if f.RateLimitPerMin <= 0 {
		f.RateLimitPerMin = defaultRatePerMin
	}
	if f.SampleStride <= 0 {
		f.SampleStride = defaultSampleStride
	}
}

func (s *SuiteConfig) applyDefaults() {
	if strings.TrimSpace(s.Interval) == "" {
		s.Interval = defaultInterval
	}
	if s.MaxConcurrent <= 0 {
		s.MaxConcurrent = defaultConcurrency
	}
	if len(s.Signals) == 0 {
		s.Signals = []SignalConfig{{Type: "ema_cross"}}
	}
}
