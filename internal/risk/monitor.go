package risk

import (
	"sync"
	"time"

	"stratlab/internal/ledger"
	"stratlab/internal/logger"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert 一次风险越限事件，只向外发布，不参与控制流。
type Alert struct {
	Type         string    `json:"type"`
	Severity     Severity  `json:"severity"`
	CurrentValue float64   `json:"current_value"`
	Limit        float64   `json:"limit"`
	Timestamp    time.Time `json:"timestamp"`
}

// Notifier 告警出口（Telegram、日志等），由外部实现。
type Notifier interface {
	Notify(alert Alert)
}

// Thresholds 风控阈值，全部可配置。比例类字段为小数（0.10 = 10%）。
type Thresholds struct {
	DrawdownWarning    float64 `mapstructure:"drawdown_warning"`
	DrawdownCritical   float64 `mapstructure:"drawdown_critical"`
	LossStreakWarning  int     `mapstructure:"loss_streak_warning"`
	LossStreakCritical int     `mapstructure:"loss_streak_critical"`
	DailyLossLimit     float64 `mapstructure:"daily_loss_limit"` // 占初始资金比例
	PauseDrawdown      float64 `mapstructure:"pause_drawdown"`
	PauseLossStreak    int     `mapstructure:"pause_loss_streak"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		DrawdownWarning:    0.05,
		DrawdownCritical:   0.10,
		LossStreakWarning:  3,
		LossStreakCritical: 5,
		DailyLossLimit:     0.05,
		PauseDrawdown:      0.10,
		PauseLossStreak:    5,
	}
}

// Monitor 沿权益曲线持续评估回撤、连亏与当日亏损。
// 熔断是二元闩锁：一旦触发保持置位，只有显式 Reset 才清除，
// 盈利 bar 不会自动恢复。
type Monitor struct {
	mu       sync.Mutex
	led      *ledger.Ledger
	th       Thresholds
	notifier Notifier

	tripped          bool
	trippedAt        time.Time
	lastDay          string
	maxDrawdownToday float64
	lastSeverity     map[string]Severity
	alerts           []Alert
}

func NewMonitor(led *ledger.Ledger, th Thresholds, notifier Notifier) *Monitor {
	return &Monitor{
		led:          led,
		th:           th,
		notifier:     notifier,
		lastSeverity: make(map[string]Severity),
	}
}

// SetThresholds 运行中替换阈值（配置热更新入口）。
func (m *Monitor) SetThresholds(th Thresholds) {
	m.mu.Lock()
	m.th = th
	m.mu.Unlock()
}

// ObserveBar 实现 sim.BarObserver，每根 K 线结算后调用。
func (m *Monitor) ObserveBar(ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := ts.UTC().Format("2006-01-02")
	if m.lastDay != "" && m.lastDay != day {
		m.maxDrawdownToday = 0
	}
	m.lastDay = day

	dd := m.led.CurrentDrawdown()
	if dd > m.maxDrawdownToday {
		m.maxDrawdownToday = dd
	}
	streak := m.led.LossStreak()

	m.check(ts, "drawdown", dd,
		m.th.DrawdownWarning, m.th.DrawdownCritical)
	m.check(ts, "loss_streak", float64(streak),
		float64(m.th.LossStreakWarning), float64(m.th.LossStreakCritical))

	initial := m.led.InitialCapital()
	if limit := m.th.DailyLossLimit * initial; limit > 0 && m.led.DailyPnL() < -limit {
		m.emit(ts, "daily_loss", SeverityCritical, m.led.DailyPnL(), -limit)
	} else {
		delete(m.lastSeverity, "daily_loss")
	}

	if !m.tripped && (dd > m.th.PauseDrawdown || (m.th.PauseLossStreak > 0 && streak >= m.th.PauseLossStreak)) {
		m.tripped = true
		m.trippedAt = ts
		m.emit(ts, "circuit_breaker", SeverityCritical, dd, m.th.PauseDrawdown)
		logger.Warnf("[risk] 熔断触发：drawdown=%.2f%% streak=%d", dd*100, streak)
	}
}

// check 双档阈值判定，仅在状态升级时发告警，回落后解除去重。
func (m *Monitor) check(ts time.Time, kind string, value, warn, crit float64) {
	switch {
	case crit > 0 && value >= crit:
		m.emit(ts, kind, SeverityCritical, value, crit)
	case warn > 0 && value >= warn:
		m.emit(ts, kind, SeverityWarning, value, warn)
	default:
		delete(m.lastSeverity, kind)
	}
}

func (m *Monitor) emit(ts time.Time, kind string, sev Severity, value, limit float64) {
	if prev, ok := m.lastSeverity[kind]; ok && prev == sev {
		return
	}
	m.lastSeverity[kind] = sev
	alert := Alert{
		Type:         kind,
		Severity:     sev,
		CurrentValue: value,
		Limit:        limit,
		Timestamp:    ts,
	}
	m.alerts = append(m.alerts, alert)
	if m.notifier != nil {
		m.notifier.Notify(alert)
	}
}

// AllowEntry 实现 sim.EntryGuard：闩锁置位期间硬性拦截新开仓。
func (m *Monitor) AllowEntry(time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.tripped
}

// Tripped 返回熔断闩锁状态。
func (m *Monitor) Tripped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tripped
}

// Reset 显式复位闩锁与当日状态，这是唯一的恢复路径。
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tripped = false
	m.trippedAt = time.Time{}
	m.maxDrawdownToday = 0
	m.lastSeverity = make(map[string]Severity)
	m.alerts = nil
}

// Alerts 返回已发出告警的副本。
func (m *Monitor) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Alert(nil), m.alerts...)
}

// MaxDrawdownToday 当日最大回撤。
func (m *Monitor) MaxDrawdownToday() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxDrawdownToday
}
