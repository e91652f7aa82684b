package sim

import (
	"stratlab/internal/ledger"

	"github.com/shopspring/decimal"
)

// ProtectiveLevels 由入场价按固定百分比推导止损/止盈。
// 方向感知：多头止损在入场价下方、止盈在上方，空头相反。
// 用 decimal 计算避免 45000*(1-0.015) 这类乘法出现浮点尾差。
func ProtectiveLevels(entry float64, dir ledger.Direction, stopPct, takePct float64) (stopLoss, takeProfit float64) {
	e := decimal.NewFromFloat(entry)
	one := decimal.NewFromInt(1)
	sl := decimal.NewFromFloat(stopPct)
	tp := decimal.NewFromFloat(takePct)
	if dir == ledger.Long {
		stopLoss = e.Mul(one.Sub(sl)).InexactFloat64()
		takeProfit = e.Mul(one.Add(tp)).InexactFloat64()
		return
	}
	stopLoss = e.Mul(one.Add(sl)).InexactFloat64()
	takeProfit = e.Mul(one.Sub(tp)).InexactFloat64()
	return
}
