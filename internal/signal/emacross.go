package signal

import (
	"fmt"
	"math"

	"stratlab/internal/market"

	talib "github.com/markcheno/go-talib"
)

// EMACross 参考实现：快慢 EMA 金叉/死叉。
// 仅作为 Source 的示例接入，模拟器不依赖其任何细节。
type EMACross struct {
	fast int
	slow int
}

func NewEMACross(fast, slow int) *EMACross {
	if fast <= 0 {
		fast = 12
	}
	if slow <= fast {
		slow = fast * 2
	}
	return &EMACross{fast: fast, slow: slow}
}

func (e *EMACross) Name() string {
	return fmt.Sprintf("ema_cross_%d_%d", e.fast, e.slow)
}

func (e *EMACross) Evaluate(window market.Candles) Signal {
	if len(window) < e.slow+2 {
		return Signal{}
	}
	closes := window.Closes()
	fastEMA := talib.Ema(closes, e.fast)
	slowEMA := talib.Ema(closes, e.slow)
	n := len(closes) - 1
	prevDiff := fastEMA[n-1] - slowEMA[n-1]
	curDiff := fastEMA[n] - slowEMA[n]

	var dir int
	switch {
	case prevDiff <= 0 && curDiff > 0:
		dir = 1
	case prevDiff >= 0 && curDiff < 0:
		dir = -1
	default:
		return Signal{}
	}
	// 强度取交叉后 EMA 间距相对价格的归一化值。
	strength := 0.5
	if closes[n] > 0 {
		strength = math.Min(1, math.Abs(curDiff)/closes[n]*100)
		if strength < 0.1 {
			strength = 0.1
		}
	}
	return Signal{Direction: dir, Strength: strength}
}
