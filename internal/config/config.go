package config

import (
	"fmt"
	"os"
	"strings"

	valpkg "stratlab/internal/validate"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("STRATLAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Policy 解析准入策略：优先读 policy_path 指向的 JSON 文档
// （经 schema 校验），否则在默认值上套内联覆盖项。
func (c *Config) Policy() (valpkg.Policy, error) {
	if path := strings.TrimSpace(c.Validator.PolicyPath); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return valpkg.Policy{}, fmt.Errorf("reading validator policy failed (%s): %w", path, err)
		}
		return valpkg.ParsePolicy(raw)
	}
	p := valpkg.DefaultPolicy()
	applyTier(&p.Approved, c.Validator.Approved)
	applyTier(&p.Conditional, c.Validator.Conditional)
	applyWeights(&p.Weights, c.Validator.Weights)
	return p, nil
}

func applyTier(dst *valpkg.Tier, src TierConfig) {
	if src.MinROIPct != nil {
		dst.MinROIPct = *src.MinROIPct
	}
	if src.MinWinRate != nil {
		dst.MinWinRate = *src.MinWinRate
	}
	if src.MaxDrawdownPct != nil {
		dst.MaxDrawdownPct = *src.MaxDrawdownPct
	}
	if src.MinProfitFactor != nil {
		dst.MinProfitFactor = *src.MinProfitFactor
	}
	if src.MinTrades != nil {
		dst.MinTrades = *src.MinTrades
	}
}

func applyWeights(dst *valpkg.Weights, src WeightsConfig) {
	if src.ROI != nil {
		dst.ROI = *src.ROI
	}
	if src.WinRate != nil {
		dst.WinRate = *src.WinRate
	}
	if src.ProfitFactor != nil {
		dst.ProfitFactor = *src.ProfitFactor
	}
	if src.Drawdown != nil {
		dst.Drawdown = *src.Drawdown
	}
}
