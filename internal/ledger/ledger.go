package ledger

import (
	"math"
	"time"

	"stratlab/internal/logger"
)

// Direction 持仓方向，+1 多 / -1 空。
type Direction int

const (
	Long  Direction = 1
	Short Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// Config 资金管理参数，构造后不可变。
type Config struct {
	InitialCapital   float64
	PositionSizePct  float64 // 每笔投入的资金占比
	CompoundInterest bool    // true 时以当前权益为基数，否则固定用初始资金
	MinPositionUSD   float64
	MaxPositionUSD   float64
	CommissionRate   float64 // 单边费率，两腿各收一次
}

func (c Config) withDefaults() Config {
	if c.InitialCapital <= 0 {
		c.InitialCapital = 10000
	}
	if c.PositionSizePct <= 0 {
		c.PositionSizePct = 0.02
	}
	if c.MaxPositionUSD <= 0 {
		c.MaxPositionUSD = math.MaxFloat64
	}
	return c
}

// Trade 一笔已平仓交易，写入后不再修改。
type Trade struct {
	EntryTime  time.Time     `json:"entry_time"`
	ExitTime   time.Time     `json:"exit_time"`
	Direction  Direction     `json:"direction"`
	EntryPrice float64       `json:"entry_price"`
	ExitPrice  float64       `json:"exit_price"`
	Size       float64       `json:"size"`
	PnL        float64       `json:"pnl"`
	PnLPct     float64       `json:"pnl_pct"`
	ExitReason string        `json:"exit_reason"`
	Duration   time.Duration `json:"duration"`
}

// Ledger 持有一次回测的全部账户状态。每个并发 run 各用一个实例，
// 不同 run 之间不得共享。
type Ledger struct {
	cfg Config

	equity      float64
	peakEquity  float64
	dailyPnL    float64
	lastDay     string
	lossStreak  int
	trades      []Trade
	equityCurve []float64
}

func New(cfg Config) *Ledger {
	cfg = cfg.withDefaults()
	l := &Ledger{cfg: cfg}
	l.Reset()
	return l
}

// Reset 把账户还原到初始资金并清空交易日志。
// 复用同一实例跑多次回测时必须先调用，避免状态泄漏。
func (l *Ledger) Reset() {
	l.equity = l.cfg.InitialCapital
	l.peakEquity = l.cfg.InitialCapital
	l.dailyPnL = 0
	l.lastDay = ""
	l.lossStreak = 0
	l.trades = nil
	l.equityCurve = []float64{l.cfg.InitialCapital}
}

func (l *Ledger) Equity() float64         { return l.equity }
func (l *Ledger) InitialCapital() float64 { return l.cfg.InitialCapital }
func (l *Ledger) PeakEquity() float64    { return l.peakEquity }
func (l *Ledger) DailyPnL() float64      { return l.dailyPnL }
func (l *Ledger) LossStreak() int        { return l.lossStreak }
func (l *Ledger) Trades() []Trade        { return l.trades }
func (l *Ledger) EquityCurve() []float64 { return l.equityCurve }

// PositionSizeFor 计算给定价格下的下单数量。
// 基数按复利开关取当前权益或初始资金，名义价值钳制在 [min, max] 区间。
func (l *Ledger) PositionSizeFor(price float64) float64 {
	if price <= 0 {
		return 0
	}
	base := l.cfg.InitialCapital
	if l.cfg.CompoundInterest {
		base = l.equity
	}
	notional := base * l.cfg.PositionSizePct
	if notional < l.cfg.MinPositionUSD {
		notional = l.cfg.MinPositionUSD
	}
	if notional > l.cfg.MaxPositionUSD {
		notional = l.cfg.MaxPositionUSD
	}
	if notional <= 0 {
		return 0
	}
	return notional / price
}

// RollDay 在 K 线日期跨日时清零当日盈亏。
func (l *Ledger) RollDay(ts time.Time) {
	day := ts.UTC().Format("2006-01-02")
	if l.lastDay != "" && l.lastDay != day {
		l.dailyPnL = 0
	}
	l.lastDay = day
}

// ExecuteTrade 结算一笔平仓：双腿佣金、权益与峰值、连亏计数、交易日志。
// 权益不允许为负，触底时钳制到零并告警。
func (l *Ledger) ExecuteTrade(entryPrice, exitPrice float64, dir Direction, size float64, entryTime, exitTime time.Time, exitReason string) Trade {
	pnl := float64(dir) * (exitPrice - entryPrice) * size
	commission := (entryPrice + exitPrice) * size * l.cfg.CommissionRate
	pnl -= commission

	l.equity += pnl
	if l.equity < 0 {
		logger.Warnf("[ledger] 权益击穿为负（%.2f），已钳制到 0", l.equity)
		l.equity = 0
	}
	if l.equity > l.peakEquity {
		l.peakEquity = l.equity
	}
	l.dailyPnL += pnl
	if pnl > 0 {
		l.lossStreak = 0
	} else {
		l.lossStreak++
	}

	notional := entryPrice * size
	pnlPct := 0.0
	if notional > 0 {
		pnlPct = pnl / notional
	}
	trade := Trade{
		EntryTime:  entryTime,
		ExitTime:   exitTime,
		Direction:  dir,
		EntryPrice: entryPrice,
		ExitPrice:  exitPrice,
		Size:       size,
		PnL:        pnl,
		PnLPct:     pnlPct,
		ExitReason: exitReason,
		Duration:   exitTime.Sub(entryTime),
	}
	l.trades = append(l.trades, trade)
	return trade
}

// MarkBar 在每根 K 线结束时记录权益点。只有发生平仓的 bar 才会产生非零差分。
func (l *Ledger) MarkBar() {
	l.equityCurve = append(l.equityCurve, l.equity)
}
