package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"stratlab/internal/ledger"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type Verdict string

const (
	VerdictApproved    Verdict = "approved"
	VerdictConditional Verdict = "conditional"
	VerdictRejected    Verdict = "rejected"
)

// Tier 单档准入条件，必须全部满足才归入该档。
type Tier struct {
	MinROIPct       float64 `json:"min_roi_pct" mapstructure:"min_roi_pct"`             // 5.0 = 5%
	MinWinRate      float64 `json:"min_win_rate" mapstructure:"min_win_rate"`           // 0.55 = 55%
	MaxDrawdownPct  float64 `json:"max_drawdown_pct" mapstructure:"max_drawdown_pct"`   // 0.15 = 15%
	MinProfitFactor float64 `json:"min_profit_factor" mapstructure:"min_profit_factor"`
	MinTrades       int     `json:"min_trades" mapstructure:"min_trades"`
}

// Weights 综合评分权重。
type Weights struct {
	ROI          float64 `json:"roi" mapstructure:"roi"`
	WinRate      float64 `json:"win_rate" mapstructure:"win_rate"`
	ProfitFactor float64 `json:"profit_factor" mapstructure:"profit_factor"`
	Drawdown     float64 `json:"drawdown" mapstructure:"drawdown"`
}

// Policy 分级阈值表。这是策略（policy）而非机制，必须可外部配置。
type Policy struct {
	Approved    Tier    `json:"approved" mapstructure:"approved"`
	Conditional Tier    `json:"conditional" mapstructure:"conditional"`
	Weights     Weights `json:"weights" mapstructure:"weights"`
}

func DefaultPolicy() Policy {
	return Policy{
		Approved: Tier{
			MinROIPct:       5.0,
			MinWinRate:      0.55,
			MaxDrawdownPct:  0.15,
			MinProfitFactor: 1.2,
			MinTrades:       10,
		},
		Conditional: Tier{
			MinROIPct:       2.0,
			MinWinRate:      0.50,
			MaxDrawdownPct:  0.20,
			MinProfitFactor: 1.0,
			MinTrades:       5,
		},
		Weights: Weights{ROI: 0.30, WinRate: 0.25, ProfitFactor: 0.25, Drawdown: 0.20},
	}
}

const policySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["approved", "conditional"],
  "properties": {
    "approved": {"$ref": "#/$defs/tier"},
    "conditional": {"$ref": "#/$defs/tier"},
    "weights": {
      "type": "object",
      "properties": {
        "roi": {"type": "number", "minimum": 0},
        "win_rate": {"type": "number", "minimum": 0},
        "profit_factor": {"type": "number", "minimum": 0},
        "drawdown": {"type": "number", "minimum": 0}
      }
    }
  },
  "$defs": {
    "tier": {
      "type": "object",
      "required": ["min_roi_pct", "min_win_rate", "max_drawdown_pct", "min_profit_factor", "min_trades"],
      "properties": {
        "min_roi_pct": {"type": "number"},
        "min_win_rate": {"type": "number", "minimum": 0, "maximum": 1},
        "max_drawdown_pct": {"type": "number", "minimum": 0, "maximum": 1},
        "min_profit_factor": {"type": "number", "minimum": 0},
        "min_trades": {"type": "integer", "minimum": 0}
      }
    }
  }
}`

var compiledPolicySchema = jsonschema.MustCompileString("policy.json", policySchema)

// ParsePolicy 解析并校验外部策略文档（JSON）。
func ParsePolicy(raw []byte) (Policy, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Policy{}, fmt.Errorf("validate: policy 不是合法 JSON: %w", err)
	}
	if err := compiledPolicySchema.Validate(doc); err != nil {
		return Policy{}, fmt.Errorf("validate: policy 不符合 schema: %w", err)
	}
	p := DefaultPolicy()
	if err := json.Unmarshal(raw, &p); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Report 一次评估结果。Verdict 可由指标快照随时重算，不做可变存储。
type Report struct {
	Verdict        Verdict  `json:"verdict"`
	CompositeScore float64  `json:"composite_score"` // 0-100
	Failures       []string `json:"failures,omitempty"`
}

// Evaluate 按 approved → conditional → rejected 顺序归档；
// Failures 记录距离更高档位还差哪些条件。
func Evaluate(m ledger.Metrics, p Policy) Report {
	report := Report{CompositeScore: CompositeScore(m, p.Weights)}
	if failures := tierFailures(m, p.Approved); len(failures) == 0 {
		report.Verdict = VerdictApproved
		return report
	} else {
		report.Failures = failures
	}
	if failures := tierFailures(m, p.Conditional); len(failures) == 0 {
		report.Verdict = VerdictConditional
		return report
	}
	report.Verdict = VerdictRejected
	return report
}

func tierFailures(m ledger.Metrics, t Tier) []string {
	var out []string
	if m.ROIPct*100 < t.MinROIPct {
		out = append(out, fmt.Sprintf("roi %.2f%% < %.2f%%", m.ROIPct*100, t.MinROIPct))
	}
	if m.WinRate < t.MinWinRate {
		out = append(out, fmt.Sprintf("win_rate %.2f < %.2f", m.WinRate, t.MinWinRate))
	}
	if m.MaxDrawdownPct > t.MaxDrawdownPct {
		out = append(out, fmt.Sprintf("max_drawdown %.2f > %.2f", m.MaxDrawdownPct, t.MaxDrawdownPct))
	}
	if m.ProfitFactor < t.MinProfitFactor {
		out = append(out, fmt.Sprintf("profit_factor %.2f < %.2f", m.ProfitFactor, t.MinProfitFactor))
	}
	if m.TotalTrades < t.MinTrades {
		out = append(out, fmt.Sprintf("trades %d < %d", m.TotalTrades, t.MinTrades))
	}
	return out
}

// CompositeScore 归一化 ROI（50% 封顶）、胜率、利润因子（1~3 映射到 0~1）
// 与回撤反向项的加权和，输出 0-100。
func CompositeScore(m ledger.Metrics, w Weights) float64 {
	roiNorm := clamp01(m.ROIPct * 100 / 50.0)
	wrNorm := clamp01(m.WinRate)
	pf := m.ProfitFactor
	if math.IsInf(pf, 1) {
		pf = 3
	}
	pfNorm := clamp01((pf - 1) / 2.0)
	ddNorm := 1 - clamp01(m.MaxDrawdownPct)
	score := w.ROI*roiNorm + w.WinRate*wrNorm + w.ProfitFactor*pfNorm + w.Drawdown*ddNorm
	return score * 100
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
