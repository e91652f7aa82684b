package sim

import (
	"context"
	"testing"
	"time"

	"stratlab/internal/ledger"
	"stratlab/internal/market"
	"stratlab/internal/signal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hourMs = int64(60 * 60 * 1000)

// candlesAt 以逐 bar 收盘价构造小时线。
func candlesAt(closes ...float64) market.Candles {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	out := make(market.Candles, 0, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		high := open
		if c > high {
			high = c
		}
		low := open
		if c < low {
			low = c
		}
		out = append(out, market.Candle{
			OpenTime:  start + int64(i)*hourMs,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     c,
			Volume:    100,
			CloseTime: start + int64(i+1)*hourMs - 1,
		})
	}
	return out
}

// scripted 按 bar 序号回放固定方向序列，越界后恒为 0。
func scripted(dirs ...int) signal.Source {
	i := 0
	return signal.Func{
		ID: "scripted",
		Fn: func(window market.Candles) signal.Signal {
			defer func() { i++ }()
			if i < len(dirs) {
				return signal.Signal{Direction: dirs[i], Strength: 1}
			}
			return signal.Signal{}
		},
	}
}

func newLedger() *ledger.Ledger {
	return ledger.New(ledger.Config{InitialCapital: 10000, PositionSizePct: 0.02})
}

func TestStopLossTriggersOnClose(t *testing.T) {
	led := newLedger()
	s := New(Config{StopLossPct: 0.015, TakeProfitPct: 0.03}, led, scripted(1, 0, 0))
	// 入场 45000，止损线 44325；第三根收在 44300
	candles := candlesAt(45000, 44500, 44300)

	res, err := s.Run(context.Background(), candles)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, ExitStopLoss, res.Trades[0].ExitReason)
	assert.InDelta(t, 44300, res.Trades[0].ExitPrice, 1e-9)
	assert.Nil(t, res.OpenPosition)
	assert.Equal(t, 1, res.ExitCounts[ExitStopLoss])
}

func TestTakeProfitTriggersOnClose(t *testing.T) {
	led := newLedger()
	s := New(Config{StopLossPct: 0.015, TakeProfitPct: 0.03}, led, scripted(1, 0, 0))
	// 止盈线 46350；第三根收在 46400
	candles := candlesAt(45000, 45500, 46400)

	res, err := s.Run(context.Background(), candles)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, ExitTakeProfit, res.Trades[0].ExitReason)
	assert.Positive(t, res.Trades[0].PnL)
}

func TestSignalReversalClosesWithoutReentry(t *testing.T) {
	led := newLedger()
	s := New(Config{}, led, scripted(1, 1, -1, 0))
	candles := candlesAt(100, 100.5, 100.8, 100.9)

	res, err := s.Run(context.Background(), candles)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, ExitReversal, res.Trades[0].ExitReason)
	// 平仓的同一根 bar 不再进场
	assert.Nil(t, res.OpenPosition)
}

func TestShortStopLossMirrored(t *testing.T) {
	led := newLedger()
	s := New(Config{StopLossPct: 0.015, TakeProfitPct: 0.03}, led, scripted(-1, 0, 0))
	// 空头止损在上方：100*1.015 = 101.5；第三根收 102
	candles := candlesAt(100, 101, 102)

	res, err := s.Run(context.Background(), candles)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, ExitStopLoss, res.Trades[0].ExitReason)
	assert.Negative(t, res.Trades[0].PnL)
}

func TestMaxHoldingBars(t *testing.T) {
	led := newLedger()
	s := New(Config{MaxHoldingBars: 2}, led, scripted(1, 0, 0, 0, 0))
	candles := candlesAt(100, 100.1, 100.2, 100.1, 100.2)

	res, err := s.Run(context.Background(), candles)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, ExitMaxTime, res.Trades[0].ExitReason)
}

func TestSinglePositionInvariant(t *testing.T) {
	led := newLedger()
	// 连续同向信号不叠加仓位
	s := New(Config{}, led, scripted(1, 1, 1, 1))
	candles := candlesAt(100, 100.1, 100.2, 100.3)

	res, err := s.Run(context.Background(), candles)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	require.NotNil(t, res.OpenPosition)
	assert.Equal(t, ledger.Long, res.OpenPosition.Direction)
	assert.InDelta(t, 100, res.OpenPosition.EntryPrice, 1e-9)
}

func TestCloseOnFinish(t *testing.T) {
	led := newLedger()
	s := New(Config{CloseOnFinish: true}, led, scripted(1, 0, 0))
	candles := candlesAt(100, 100.5, 101)

	res, err := s.Run(context.Background(), candles)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, ExitEndOfData, res.Trades[0].ExitReason)
	assert.Nil(t, s.Position())
	trade := res.Trades[0]
	assert.True(t, trade.ExitTime.After(trade.EntryTime))
}

func TestCloseOnFinishSkipsLastBarEntry(t *testing.T) {
	led := newLedger()
	s := New(Config{CloseOnFinish: true}, led, scripted(0, 0, 1))
	candles := candlesAt(100, 100.1, 100.2)

	res, err := s.Run(context.Background(), candles)
	require.NoError(t, err)
	// 末 bar 刚开的仓不在同一时间点平掉
	assert.Empty(t, res.Trades)
	assert.NotNil(t, res.OpenPosition)
}

func TestCloseOnFinishLossEntersEquityCurve(t *testing.T) {
	led := newLedger()
	// 止损/止盈放宽到不触发，亏损只能由强平实现
	s := New(Config{StopLossPct: 0.5, TakeProfitPct: 0.5, CloseOnFinish: true}, led, scripted(1, 0, 0))
	candles := candlesAt(100, 98, 95)

	res, err := s.Run(context.Background(), candles)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, ExitEndOfData, res.Trades[0].ExitReason)
	assert.Negative(t, res.Trades[0].PnL)

	m := res.Metrics
	require.NotEmpty(t, m.EquityCurve)
	// 强平后的权益点必须落进曲线，回撤统计才看得到这笔亏损
	assert.InDelta(t, m.FinalCapital, m.EquityCurve[len(m.EquityCurve)-1], 1e-9)
	assert.Positive(t, m.MaxDrawdown)
	assert.Positive(t, m.MaxDrawdownPct)
}

type blockAll struct{}

func (blockAll) AllowEntry(time.Time) bool { return false }

func TestEntryGuardBlocksOpens(t *testing.T) {
	led := newLedger()
	s := New(Config{}, led, scripted(1, 1, 1), WithEntryGuard(blockAll{}))
	candles := candlesAt(100, 100.1, 100.2)

	res, err := s.Run(context.Background(), candles)
	require.NoError(t, err)
	assert.Empty(t, res.Trades)
	assert.Nil(t, res.OpenPosition)
}

func TestEquityCurveStepPerBar(t *testing.T) {
	led := newLedger()
	s := New(Config{}, led, scripted(0, 0, 0))
	candles := candlesAt(100, 101, 102)

	_, err := s.Run(context.Background(), candles)
	require.NoError(t, err)
	// 初始点 + 每根 bar 一个点
	assert.Len(t, led.EquityCurve(), 4)
}

func TestRunHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	led := newLedger()
	s := New(Config{}, led, scripted(0))
	_, err := s.Run(ctx, candlesAt(100))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProtectiveLevels(t *testing.T) {
	sl, tp := ProtectiveLevels(45000, ledger.Long, 0.015, 0.03)
	assert.InDelta(t, 44325, sl, 1e-9)
	assert.InDelta(t, 46350, tp, 1e-9)

	sl, tp = ProtectiveLevels(45000, ledger.Short, 0.015, 0.03)
	assert.InDelta(t, 45675, sl, 1e-9)
	assert.InDelta(t, 43650, tp, 1e-9)
}
