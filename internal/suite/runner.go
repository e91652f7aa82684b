package suite

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stratlab/internal/fetch"
	"stratlab/internal/ledger"
	"stratlab/internal/logger"
	"stratlab/internal/market"
	"stratlab/internal/risk"
	"stratlab/internal/signal"
	"stratlab/internal/sim"
	"stratlab/internal/validate"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Period 回测时间段，[Start, End) 半开区间。
type Period struct {
	Start time.Time
	End   time.Time
}

// SignalFactory 每个组合各建一个信号源实例，组合之间不共享状态。
type SignalFactory struct {
	Name string
	New  func() signal.Source
}

// Combo 矩阵中的一个组合。
type Combo struct {
	Symbol   string
	Interval market.Interval
	Period   Period
	Signal   SignalFactory
}

// Params 所有组合共用的回测参数。
type Params struct {
	Ledger        ledger.Config
	Sim           sim.Config
	Risk          risk.Thresholds
	Policy        validate.Policy
	MaxConcurrent int
}

// RunResult 单个组合的产出。失败与跳过也产生记录，不中断矩阵。
type RunResult struct {
	ID       string          `json:"id"`
	Symbol   string          `json:"symbol"`
	Signal   string          `json:"signal"`
	Interval string          `json:"interval"`
	Period   Period          `json:"-"`
	Status   string          `json:"status"`
	Reason   string          `json:"reason,omitempty"`
	Metrics  ledger.Metrics  `json:"metrics"`
	Report   validate.Report `json:"report"`
	Trades   []ledger.Trade  `json:"-"`
	Alerts   []risk.Alert    `json:"-"`
}

// Runner 并发跑完整个组合矩阵。每个组合独享账本、风控与模拟器实例，
// 只共享数据拉取（内部自带缓存与限速）。
type Runner struct {
	fetcher *fetch.Fetcher
	store   *Store // 可为 nil，纯内存模式

	mu     sync.RWMutex
	params Params
}

func NewRunner(fetcher *fetch.Fetcher, store *Store, params Params) *Runner {
	if params.MaxConcurrent <= 0 {
		params.MaxConcurrent = 4
	}
	return &Runner{fetcher: fetcher, store: store, params: params}
}

// SetRisk 热替换风控阈值，只影响之后启动的组合。
func (r *Runner) SetRisk(th risk.Thresholds) {
	r.mu.Lock()
	r.params.Risk = th
	r.mu.Unlock()
}

func (r *Runner) snapshotParams() Params {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.params
}

// Combos 由 symbol × signal × period 展开组合矩阵。
func Combos(symbols []string, iv market.Interval, periods []Period, signals []SignalFactory) []Combo {
	var out []Combo
	for _, sym := range symbols {
		for _, sig := range signals {
			for _, p := range periods {
				out = append(out, Combo{Symbol: sym, Interval: iv, Period: p, Signal: sig})
			}
		}
	}
	return out
}

// Run 并发执行所有组合。单组合的失败只体现在其结果状态里；
// 返回 error 仅在 ctx 取消时出现。
func (r *Runner) Run(ctx context.Context, combos []Combo) ([]RunResult, error) {
	results := make([]RunResult, len(combos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.snapshotParams().MaxConcurrent)
	for i, combo := range combos {
		i, combo := i, combo
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			results[i] = r.runCombo(gctx, combo)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (r *Runner) runCombo(ctx context.Context, combo Combo) (res RunResult) {
	res = RunResult{
		ID:       uuid.NewString(),
		Symbol:   combo.Symbol,
		Signal:   combo.Signal.Name,
		Interval: combo.Interval.Key,
		Period:   combo.Period,
	}
	defer func() {
		if p := recover(); p != nil {
			res.Status = RunStatusFailed
			res.Reason = fmt.Sprintf("panic: %v", p)
			logger.Errorf("[suite] 组合 %s/%s 崩溃: %v", combo.Symbol, combo.Signal.Name, p)
		}
		r.persist(res)
	}()

	params := r.snapshotParams()
	if r.store != nil {
		if err := r.store.InsertRun(res, params); err != nil {
			logger.Warnf("[suite] 登记 run 失败: %v", err)
		}
	}

	candles, err := r.fetcher.Fetch(ctx, combo.Symbol, combo.Interval,
		combo.Period.Start.UnixMilli(), combo.Period.End.UnixMilli())
	if err != nil {
		res.Status = RunStatusSkipped
		res.Reason = fmt.Sprintf("数据拉取失败: %v", err)
		return res
	}
	if len(candles) == 0 {
		res.Status = RunStatusSkipped
		res.Reason = "该区间无可用数据"
		return res
	}

	led := ledger.New(params.Ledger)
	mon := risk.NewMonitor(led, params.Risk, nil)
	simulator := sim.New(params.Sim, led, combo.Signal.New(),
		sim.WithEntryGuard(mon), sim.WithBarObserver(mon))

	out, err := simulator.Run(ctx, candles)
	if err != nil {
		res.Status = RunStatusFailed
		res.Reason = err.Error()
		return res
	}
	res.Status = RunStatusDone
	res.Metrics = out.Metrics
	res.Trades = out.Trades
	res.Alerts = mon.Alerts()
	res.Report = validate.Evaluate(out.Metrics, params.Policy)
	logger.Infof("[suite] %s/%s %s~%s: trades=%d roi=%.2f%% verdict=%s",
		combo.Symbol, combo.Signal.Name,
		combo.Period.Start.Format("2006-01-02"), combo.Period.End.Format("2006-01-02"),
		res.Metrics.TotalTrades, res.Metrics.ROIPct*100, res.Report.Verdict)
	return res
}

func (r *Runner) persist(res RunResult) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveResult(res); err != nil {
		logger.Warnf("[suite] 结果落库失败 (%s): %v", res.ID, err)
	}
}
