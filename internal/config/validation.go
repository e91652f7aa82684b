package config

import (
	"fmt"
	"strings"
	"time"

	"stratlab/internal/market"
)

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

var validExchanges = map[string]bool{
	"bybit": true, "binance": true,
}

var validCategories = map[string]bool{
	"linear": true, "spot": true, "inverse": true,
}

func validate(c *Config) error {
	if !validLogLevels[strings.ToLower(c.App.LogLevel)] {
		return fmt.Errorf("app.log_level 非法: %q", c.App.LogLevel)
	}
	if c.Capital.PositionSizePct > 1 {
		return fmt.Errorf("capital.position_size_percent 必须在 (0, 1] 区间: %v", c.Capital.PositionSizePct)
	}
	if c.Capital.MaxPositionSizeUSD > 0 && c.Capital.MinPositionSizeUSD > c.Capital.MaxPositionSizeUSD {
		return fmt.Errorf("capital.min_position_size_usd (%v) 大于 max (%v)",
			c.Capital.MinPositionSizeUSD, c.Capital.MaxPositionSizeUSD)
	}
	if c.Capital.CommissionRate >= 1 {
		return fmt.Errorf("capital.commission_rate 非法: %v", c.Capital.CommissionRate)
	}
	if c.Sim.StopLossPct >= 1 || c.Sim.TakeProfitPct >= 1 {
		return fmt.Errorf("simulation 止损/止盈比例必须小于 1")
	}
	if !validExchanges[c.Fetch.Exchange] {
		return fmt.Errorf("fetch.exchange 仅支持 bybit/binance: %q", c.Fetch.Exchange)
	}
	if !validCategories[c.Fetch.Category] {
		return fmt.Errorf("fetch.category 非法: %q", c.Fetch.Category)
	}
	if _, err := market.ParseInterval(c.Suite.Interval); err != nil {
		return fmt.Errorf("suite.interval: %w", err)
	}
	for i, p := range c.Suite.Periods {
		start, err := time.Parse("2006-01-02", p.Start)
		if err != nil {
			return fmt.Errorf("suite.periods[%d].start: %w", i, err)
		}
		end, err := time.Parse("2006-01-02", p.End)
		if err != nil {
			return fmt.Errorf("suite.periods[%d].end: %w", i, err)
		}
		if !end.After(start) {
			return fmt.Errorf("suite.periods[%d] 结束日期必须晚于开始日期", i)
		}
	}
	for i, s := range c.Suite.Signals {
		if strings.TrimSpace(s.Type) == "" {
			return fmt.Errorf("suite.signals[%d].type 不能为空", i)
		}
	}
	return nil
}
