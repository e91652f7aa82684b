package config

import (
	"os"
	"path/filepath"
	"testing"

	valpkg "stratlab/internal/validate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalYAML = `
app:
  log_level: debug
fetch:
  exchange: bybit
suite:
  symbols: [BTCUSDT]
  interval: 5m
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, ":9992", cfg.App.HTTPAddr)
	assert.Equal(t, "data/cache", cfg.App.DataDir)
	assert.InDelta(t, 10000, cfg.Capital.InitialCapitalUSD, 1e-9)
	assert.InDelta(t, 0.02, cfg.Capital.PositionSizePct, 1e-9)
	assert.InDelta(t, 0.015, cfg.Sim.StopLossPct, 1e-9)
	assert.InDelta(t, 0.10, cfg.Risk.PauseDrawdown, 1e-9)
	assert.Equal(t, "https://api.bybit.com", cfg.Fetch.BaseURL)
	assert.Equal(t, 1000, cfg.Fetch.MaxBatch)
	assert.Equal(t, 4, cfg.Suite.MaxConcurrent)
	require.Len(t, cfg.Suite.Signals, 1)
	assert.Equal(t, "ema_cross", cfg.Suite.Signals[0].Type)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"bad log level":   "app:\n  log_level: verbose\n",
		"bad exchange":    "fetch:\n  exchange: kraken\n",
		"bad interval":    "suite:\n  interval: 2m\n",
		"pct out of range": "capital:\n  position_size_percent: 1.5\n",
		"inverted period": "suite:\n  periods:\n    - start: \"2025-02-01\"\n      end: \"2025-01-01\"\n",
	}
	for name, yaml := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
	_, err = Load("")
	assert.Error(t, err)
}

func TestCapitalToLedgerConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
capital:
  initial_capital_usd: 5000
  position_size_percent: 0.05
  compound_interest: true
  commission_rate: 0.001
`))
	require.NoError(t, err)
	lc := cfg.Capital.Ledger()
	assert.InDelta(t, 5000, lc.InitialCapital, 1e-9)
	assert.InDelta(t, 0.05, lc.PositionSizePct, 1e-9)
	assert.True(t, lc.CompoundInterest)
	assert.InDelta(t, 0.001, lc.CommissionRate, 1e-9)
}

func TestPolicyInlineOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
validator:
  approved:
    min_roi_pct: 8
    min_trades: 30
  weights:
    roi: 0.4
`))
	require.NoError(t, err)
	p, err := cfg.Policy()
	require.NoError(t, err)
	// 覆盖项生效，其余保持默认
	assert.InDelta(t, 8.0, p.Approved.MinROIPct, 1e-9)
	assert.Equal(t, 30, p.Approved.MinTrades)
	assert.InDelta(t, 0.55, p.Approved.MinWinRate, 1e-9)
	assert.InDelta(t, 0.4, p.Weights.ROI, 1e-9)
	assert.InDelta(t, 0.25, p.Weights.WinRate, 1e-9)
}

func TestPolicyFromExternalDocument(t *testing.T) {
	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policy.json")
	require.NoError(t, os.WriteFile(policyPath, []byte(`{
		"approved": {"min_roi_pct": 9, "min_win_rate": 0.6, "max_drawdown_pct": 0.1, "min_profit_factor": 1.5, "min_trades": 20},
		"conditional": {"min_roi_pct": 4, "min_win_rate": 0.5, "max_drawdown_pct": 0.2, "min_profit_factor": 1.1, "min_trades": 8}
	}`), 0o644))

	cfg, err := Load(writeConfig(t, "validator:\n  policy_path: "+policyPath+"\n"))
	require.NoError(t, err)
	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.InDelta(t, 9.0, p.Approved.MinROIPct, 1e-9)
	assert.Equal(t, 8, p.Conditional.MinTrades)
}

func TestPolicyDefault(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, valpkg.DefaultPolicy(), p)
}
