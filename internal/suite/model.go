package suite

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
	RunStatusSkipped = "skipped"
)

// runModel 一条回测组合记录。参数与指标以 JSON 快照落库，便于重放。
type runModel struct {
	ID             string `gorm:"primaryKey;size:36"`
	Symbol         string `gorm:"size:32;index:idx_suite_runs_combo"`
	Signal         string `gorm:"size:64;index:idx_suite_runs_combo"`
	Interval       string `gorm:"size:8"`
	StartDate      string `gorm:"size:10"`
	EndDate        string `gorm:"size:10"`
	Status         string `gorm:"size:16;index"`
	Verdict        string `gorm:"size:16"`
	CompositeScore float64
	Message        string
	ConfigJSON     datatypes.JSON
	MetricsJSON    datatypes.JSON
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

func (runModel) TableName() string { return "suite_runs" }

type tradeModel struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	RunID      string `gorm:"size:36;index"`
	Direction  string `gorm:"size:8"`
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	Size       float64
	PnL        float64
	PnLPct     float64
	ExitReason string `gorm:"size:24"`
	DurationMs int64
}

func (tradeModel) TableName() string { return "suite_trades" }

type alertModel struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	RunID        string `gorm:"size:36;index"`
	Type         string `gorm:"size:24"`
	Severity     string `gorm:"size:12"`
	CurrentValue float64
	Limit        float64
	Timestamp    time.Time
}

func (alertModel) TableName() string { return "suite_alerts" }
