package ledger

import "math"

// Metrics 一次回测的终端快照，全部可由交易日志与权益曲线重算。
type Metrics struct {
	InitialCapital float64 `json:"initial_capital"`
	FinalCapital   float64 `json:"final_capital"`
	ROI            float64 `json:"roi"`         // 绝对收益
	ROIPct         float64 `json:"roi_pct"`     // 百分比收益（0.085 = 8.5%）

	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`

	GrossProfit  float64 `json:"gross_profit"`
	GrossLoss    float64 `json:"gross_loss"`
	ProfitFactor float64 `json:"profit_factor"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	BestTrade    float64 `json:"best_trade"`
	WorstTrade   float64 `json:"worst_trade"`

	MaxDrawdown    float64 `json:"max_drawdown"`     // 货币口径
	MaxDrawdownPct float64 `json:"max_drawdown_pct"` // (peak-equity)/peak 的最大值

	LongTrades   int     `json:"long_trades"`
	ShortTrades  int     `json:"short_trades"`
	LongWinRate  float64 `json:"long_win_rate"`
	ShortWinRate float64 `json:"short_win_rate"`

	MaxLossStreak int     `json:"max_loss_streak"`
	SharpeRatio   float64 `json:"sharpe_ratio"`

	EquityCurve []float64 `json:"equity_curve"`
}

// Metrics 汇总当前账户状态。profit factor 约定：无亏损且有盈利时为 +Inf，
// 无交易时为 0。
func (l *Ledger) Metrics() Metrics {
	m := Metrics{
		InitialCapital: l.cfg.InitialCapital,
		FinalCapital:   l.equity,
		EquityCurve:    append([]float64(nil), l.equityCurve...),
	}
	m.ROI = m.FinalCapital - m.InitialCapital
	if m.InitialCapital > 0 {
		m.ROIPct = m.ROI / m.InitialCapital
	}

	var streak int
	for _, t := range l.trades {
		m.TotalTrades++
		if t.Direction == Long {
			m.LongTrades++
		} else {
			m.ShortTrades++
		}
		if t.PnL > 0 {
			m.WinningTrades++
			m.GrossProfit += t.PnL
			if t.Direction == Long {
				m.LongWinRate++
			} else {
				m.ShortWinRate++
			}
			streak = 0
		} else {
			m.LosingTrades++
			m.GrossLoss += -t.PnL
			streak++
			if streak > m.MaxLossStreak {
				m.MaxLossStreak = streak
			}
		}
		if t.PnL > m.BestTrade {
			m.BestTrade = t.PnL
		}
		if t.PnL < m.WorstTrade {
			m.WorstTrade = t.PnL
		}
	}
	if m.TotalTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	}
	if m.LongTrades > 0 {
		m.LongWinRate /= float64(m.LongTrades)
	} else {
		m.LongWinRate = 0
	}
	if m.ShortTrades > 0 {
		m.ShortWinRate /= float64(m.ShortTrades)
	} else {
		m.ShortWinRate = 0
	}
	if m.WinningTrades > 0 {
		m.AvgWin = m.GrossProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = -m.GrossLoss / float64(m.LosingTrades)
	}
	switch {
	case m.TotalTrades == 0:
		m.ProfitFactor = 0
	case m.GrossLoss == 0 && m.GrossProfit > 0:
		m.ProfitFactor = math.Inf(1)
	case m.GrossLoss == 0:
		m.ProfitFactor = 0
	default:
		m.ProfitFactor = m.GrossProfit / m.GrossLoss
	}

	m.MaxDrawdown, m.MaxDrawdownPct = maxDrawdown(l.equityCurve)
	m.SharpeRatio = sharpe(l.trades)
	return m
}

// maxDrawdown 沿权益曲线计算最大回撤（货币与百分比口径）。
func maxDrawdown(curve []float64) (float64, float64) {
	if len(curve) == 0 {
		return 0, 0
	}
	peak := curve[0]
	var maxAbs, maxPct float64
	for _, v := range curve {
		if v > peak {
			peak = v
		}
		dd := peak - v
		if dd > maxAbs {
			maxAbs = dd
		}
		if peak > 0 {
			if pct := dd / peak; pct > maxPct {
				maxPct = pct
			}
		}
	}
	return maxAbs, maxPct
}

// sharpe 用每笔收益率的均值/标准差近似年化 Sharpe（√252，无风险利率取 0）。
func sharpe(trades []Trade) float64 {
	if len(trades) < 2 {
		return 0
	}
	var sum float64
	for _, t := range trades {
		sum += t.PnLPct
	}
	mean := sum / float64(len(trades))
	var variance float64
	for _, t := range trades {
		d := t.PnLPct - mean
		variance += d * d
	}
	variance /= float64(len(trades))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(252)
}

// CurrentDrawdown 相对峰值的当前回撤比例。
func (l *Ledger) CurrentDrawdown() float64 {
	if l.peakEquity <= 0 {
		return 0
	}
	return (l.peakEquity - l.equity) / l.peakEquity
}
