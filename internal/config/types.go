package config

import (
	"time"

	"stratlab/internal/ledger"
	"stratlab/internal/risk"
	"stratlab/internal/sim"
)

// Config 顶层配置，YAML 反序列化入口。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Capital   CapitalConfig   `mapstructure:"capital"`
	Sim       SimConfig       `mapstructure:"simulation"`
	Risk      risk.Thresholds `mapstructure:"risk"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Validator ValidatorConfig `mapstructure:"validator"`
	Suite     SuiteConfig     `mapstructure:"suite"`
}

type AppConfig struct {
	Env          string `mapstructure:"env"`
	LogLevel     string `mapstructure:"log_level"`
	LogPath      string `mapstructure:"log_path"`
	HTTPAddr     string `mapstructure:"http_addr"`
	DataDir      string `mapstructure:"data_dir"`      // 数据集缓存根目录
	ResultDBPath string `mapstructure:"result_db_path"` // 回测结果库（SQLite）
}

type CapitalConfig struct {
	InitialCapitalUSD  float64 `mapstructure:"initial_capital_usd"`
	PositionSizePct    float64 `mapstructure:"position_size_percent"`
	CompoundInterest   bool    `mapstructure:"compound_interest"`
	MinPositionSizeUSD float64 `mapstructure:"min_position_size_usd"`
	MaxPositionSizeUSD float64 `mapstructure:"max_position_size_usd"`
	CommissionRate     float64 `mapstructure:"commission_rate"`
}

// Ledger 转为账本构造参数。
func (c CapitalConfig) Ledger() ledger.Config {
	return ledger.Config{
		InitialCapital:   c.InitialCapitalUSD,
		PositionSizePct:  c.PositionSizePct,
		CompoundInterest: c.CompoundInterest,
		MinPositionUSD:   c.MinPositionSizeUSD,
		MaxPositionUSD:   c.MaxPositionSizeUSD,
		CommissionRate:   c.CommissionRate,
	}
}

type SimConfig struct {
	StopLossPct    float64 `mapstructure:"stop_loss_percent"`
	TakeProfitPct  float64 `mapstructure:"take_profit_percent"`
	MaxHoldingBars int     `mapstructure:"max_holding_bars"`
	CloseOnFinish  bool    `mapstructure:"close_on_finish"`
}

func (c SimConfig) Simulator() sim.Config {
	return sim.Config{
		StopLossPct:    c.StopLossPct,
		TakeProfitPct:  c.TakeProfitPct,
		MaxHoldingBars: c.MaxHoldingBars,
		CloseOnFinish:  c.CloseOnFinish,
	}
}

type FetchConfig struct {
	Exchange        string `mapstructure:"exchange"` // bybit | binance
	Category        string `mapstructure:"category"` // linear | spot | inverse
	BaseURL         string `mapstructure:"base_url"`
	APIKey          string `mapstructure:"api_key"`
	APISecret       string `mapstructure:"api_secret"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	MaxBatch        int    `mapstructure:"max_batch"`
	RateLimitPerMin int    `mapstructure:"rate_limit_per_min"`
	SampleStride    int    `mapstructure:"sample_stride"`
}

func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// ValidatorConfig 策略准入阈值。PolicyPath 指向外部 JSON 策略文档时
// 以文档为准，否则用内联字段覆盖默认值。
type ValidatorConfig struct {
	PolicyPath  string        `mapstructure:"policy_path"`
	Approved    TierConfig    `mapstructure:"approved"`
	Conditional TierConfig    `mapstructure:"conditional"`
	Weights     WeightsConfig `mapstructure:"weights"`
}

type TierConfig struct {
	MinROIPct       *float64 `mapstructure:"min_roi_pct"`
	MinWinRate      *float64 `mapstructure:"min_win_rate"`
	MaxDrawdownPct  *float64 `mapstructure:"max_drawdown_pct"`
	MinProfitFactor *float64 `mapstructure:"min_profit_factor"`
	MinTrades       *int     `mapstructure:"min_trades"`
}

type WeightsConfig struct {
	ROI          *float64 `mapstructure:"roi"`
	WinRate      *float64 `mapstructure:"win_rate"`
	ProfitFactor *float64 `mapstructure:"profit_factor"`
	Drawdown     *float64 `mapstructure:"drawdown"`
}

// SuiteConfig 批量回测矩阵：symbol × signal × period 的笛卡尔积。
type SuiteConfig struct {
	Symbols       []string       `mapstructure:"symbols"`
	Interval      string         `mapstructure:"interval"`
	Periods       []PeriodConfig `mapstructure:"periods"`
	Signals       []SignalConfig `mapstructure:"signals"`
	MaxConcurrent int            `mapstructure:"max_concurrent"`
}

type PeriodConfig struct {
	Start string `mapstructure:"start"` // 2006-01-02
	End   string `mapstructure:"end"`
}

type SignalConfig struct {
	Type       string `mapstructure:"type"` // ema_cross
	FastPeriod int    `mapstructure:"fast_period"`
	SlowPeriod int    `mapstructure:"slow_period"`
}
