// Package signal 定义策略与模拟器之间的唯一契约：
// 给定截至当前 bar 的 K 线窗口，产出方向与强度。
// 模拟器把实现当作黑盒，不关心内部算法。
package signal

import "stratlab/internal/market"

// Signal 单根 K 线上的交易意图。Direction ∈ {-1, 0, +1}，Strength ∈ [0, 1]。
type Signal struct {
	Direction int     `json:"direction"`
	Strength  float64 `json:"strength"`
}

// Source 策略信号源。窗口以当前 bar 结尾，按时间升序。
type Source interface {
	Evaluate(window market.Candles) Signal
	Name() string
}

// Func 把普通函数适配成 Source。
type Func struct {
	ID string
	Fn func(window market.Candles) Signal
}

func (f Func) Evaluate(window market.Candles) Signal {
	if f.Fn == nil {
		return Signal{}
	}
	sig := f.Fn(window)
	return clamp(sig)
}

func (f Func) Name() string {
	if f.ID == "" {
		return "func"
	}
	return f.ID
}

func clamp(s Signal) Signal {
	if s.Direction > 0 {
		s.Direction = 1
	} else if s.Direction < 0 {
		s.Direction = -1
	}
	if s.Strength < 0 {
		s.Strength = 0
	} else if s.Strength > 1 {
		s.Strength = 1
	}
	return s
}
