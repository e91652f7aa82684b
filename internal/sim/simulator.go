package sim

import (
	"context"
	"time"

	"stratlab/internal/ledger"
	"stratlab/internal/logger"
	"stratlab/internal/market"
	"stratlab/internal/signal"
)

// 平仓原因，按判定优先级排列。
const (
	ExitStopLoss   = "stop_loss"
	ExitTakeProfit = "take_profit"
	ExitReversal   = "signal_reversal"
	ExitMaxTime    = "max_time"
	ExitEndOfData  = "end_of_data"
)

// Position 当前持仓。任意 bar 上最多存在一个，由模拟器独占管理。
type Position struct {
	Direction  ledger.Direction
	EntryPrice float64
	EntryTime  time.Time
	EntryIndex int
	Size       float64
	StopLoss   float64
	TakeProfit float64
}

// Config 模拟参数。
type Config struct {
	StopLossPct    float64 // 0.015 = 1.5%
	TakeProfitPct  float64
	MaxHoldingBars int  // 0 表示不限制持仓时长
	CloseOnFinish  bool // true 时序列结束强制平掉余仓；默认挂着不实现
}

func (c Config) withDefaults() Config {
	if c.StopLossPct <= 0 {
		c.StopLossPct = 0.015
	}
	if c.TakeProfitPct <= 0 {
		c.TakeProfitPct = 0.03
	}
	return c
}

// EntryGuard 在 FLAT→开仓前询问的外部闸门（如风控熔断）。
// 返回 false 则本 bar 放弃进场。
type EntryGuard interface {
	AllowEntry(ts time.Time) bool
}

// BarObserver 每根 K 线结算后回调（风控监测挂在这里）。
type BarObserver interface {
	ObserveBar(ts time.Time)
}

// Result 一次模拟的产出。序列结束时未平仓位（若有）原样返回。
type Result struct {
	Metrics      ledger.Metrics
	Trades       []ledger.Trade
	OpenPosition *Position
	ExitCounts   map[string]int
}

// Simulator 单仓位状态机：FLAT / LONG / SHORT。
// K 线严格按时间顺序回放，信号源是黑盒，资金与记账全部委托给 Ledger。
type Simulator struct {
	cfg      Config
	ledger   *ledger.Ledger
	source   signal.Source
	guard    EntryGuard
	observer BarObserver

	position *Position
}

// Option 注入可选依赖。
type Option func(*Simulator)

func WithEntryGuard(g EntryGuard) Option {
	return func(s *Simulator) { s.guard = g }
}

func WithBarObserver(o BarObserver) Option {
	return func(s *Simulator) { s.observer = o }
}

func New(cfg Config, led *ledger.Ledger, src signal.Source, opts ...Option) *Simulator {
	s := &Simulator{
		cfg:    cfg.withDefaults(),
		ledger: led,
		source: src,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Position 返回当前持仓（无仓位时为 nil）。
func (s *Simulator) Position() *Position { return s.position }

// Run 回放整段 K 线。每根 bar：先按优先级判定离场
// （止损 > 止盈 > 反向信号 > 超时），平仓后同一 bar 内不再进场；
// 空仓且信号非零时开新仓。仓位大小非正时视为 no-op 跳过。
func (s *Simulator) Run(ctx context.Context, candles market.Candles) (Result, error) {
	exitCounts := make(map[string]int)
	for i, c := range candles {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}
		barTime := barTimestamp(c)
		s.ledger.RollDay(barTime)
		sig := s.source.Evaluate(candles[:i+1])
		price := c.Close

		if s.position != nil {
			if reason, ok := s.exitReason(price, sig, i); ok {
				s.closePosition(price, barTime, reason)
				exitCounts[reason]++
			}
		} else if sig.Direction != 0 {
			s.tryOpen(sig, price, barTime, i)
		}

		s.ledger.MarkBar()
		if s.observer != nil {
			s.observer.ObserveBar(barTime)
		}
	}

	// 末 bar 刚开的仓不在同一时间点平掉，保持 exit_time > entry_time。
	if s.cfg.CloseOnFinish && s.position != nil && len(candles) > 0 && s.position.EntryIndex < len(candles)-1 {
		last := candles[len(candles)-1]
		s.closePosition(last.Close, barTimestamp(last), ExitEndOfData)
		exitCounts[ExitEndOfData]++
		// 强平发生在末 bar 结算之后，补记一个权益点，
		// 否则曲线末值与 FinalCapital 脱节，回撤统计漏掉这笔已实现盈亏。
		s.ledger.MarkBar()
	}

	return Result{
		Metrics:      s.ledger.Metrics(),
		Trades:       s.ledger.Trades(),
		OpenPosition: s.position,
		ExitCounts:   exitCounts,
	}, nil
}

// exitReason 按固定优先级检查所有离场条件。
func (s *Simulator) exitReason(price float64, sig signal.Signal, barIdx int) (string, bool) {
	pos := s.position
	switch pos.Direction {
	case ledger.Long:
		if price <= pos.StopLoss {
			return ExitStopLoss, true
		}
		if price >= pos.TakeProfit {
			return ExitTakeProfit, true
		}
	case ledger.Short:
		if price >= pos.StopLoss {
			return ExitStopLoss, true
		}
		if price <= pos.TakeProfit {
			return ExitTakeProfit, true
		}
	}
	if sig.Direction != 0 && sig.Direction != int(pos.Direction) {
		return ExitReversal, true
	}
	if s.cfg.MaxHoldingBars > 0 && barIdx-pos.EntryIndex >= s.cfg.MaxHoldingBars {
		return ExitMaxTime, true
	}
	return "", false
}

func (s *Simulator) tryOpen(sig signal.Signal, price float64, barTime time.Time, barIdx int) {
	if s.guard != nil && !s.guard.AllowEntry(barTime) {
		logger.Debugf("[sim] 熔断生效，放弃 %d 向进场 @%.4f", sig.Direction, price)
		return
	}
	size := s.ledger.PositionSizeFor(price)
	if size <= 0 {
		return
	}
	dir := ledger.Long
	if sig.Direction < 0 {
		dir = ledger.Short
	}
	stopLoss, takeProfit := ProtectiveLevels(price, dir, s.cfg.StopLossPct, s.cfg.TakeProfitPct)
	s.position = &Position{
		Direction:  dir,
		EntryPrice: price,
		EntryTime:  barTime,
		EntryIndex: barIdx,
		Size:       size,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	}
}

func (s *Simulator) closePosition(price float64, barTime time.Time, reason string) {
	pos := s.position
	s.ledger.ExecuteTrade(pos.EntryPrice, price, pos.Direction, pos.Size, pos.EntryTime, barTime, reason)
	s.position = nil
}

func barTimestamp(c market.Candle) time.Time {
	ts := c.CloseTime
	if ts == 0 {
		ts = c.OpenTime
	}
	return time.UnixMilli(ts).UTC()
}
