package suite

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stratlab/internal/ledger"
	"stratlab/internal/risk"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store 把回测结果落到单文件 SQLite（Gorm 管理迁移）。
type Store struct {
	db *gorm.DB
}

func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("suite store: 结果库路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runModel{}, &tradeModel{}, &alertModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// WAL 下留一点并发余量给 HTTP 侧的只读查询。
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InsertRun 在组合开跑时登记 running 记录。
func (s *Store) InsertRun(res RunResult, cfg any) error {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.db.Create(&runModel{
		ID:         res.ID,
		Symbol:     res.Symbol,
		Signal:     res.Signal,
		Interval:   res.Interval,
		StartDate:  res.Period.Start.Format("2006-01-02"),
		EndDate:    res.Period.End.Format("2006-01-02"),
		Status:     RunStatusRunning,
		ConfigJSON: datatypes.JSON(cfgJSON),
	}).Error
}

// SaveResult 写入最终状态、指标、逐笔交易与告警，单事务提交。
func (s *Store) SaveResult(res RunResult) error {
	metricsJSON, err := json.Marshal(res.Metrics)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return s.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"status":          res.Status,
			"verdict":         string(res.Report.Verdict),
			"composite_score": res.Report.CompositeScore,
			"message":         res.Reason,
			"metrics_json":    datatypes.JSON(metricsJSON),
			"completed_at":    &now,
		}
		if err := tx.Model(&runModel{}).Where("id = ?", res.ID).Updates(updates).Error; err != nil {
			return err
		}
		for _, t := range res.Trades {
			row := tradeModel{
				RunID:      res.ID,
				Direction:  t.Direction.String(),
				EntryTime:  t.EntryTime,
				ExitTime:   t.ExitTime,
				EntryPrice: t.EntryPrice,
				ExitPrice:  t.ExitPrice,
				Size:       t.Size,
				PnL:        t.PnL,
				PnLPct:     t.PnLPct,
				ExitReason: t.ExitReason,
				DurationMs: t.Duration.Milliseconds(),
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		for _, a := range res.Alerts {
			row := alertModel{
				RunID:        res.ID,
				Type:         a.Type,
				Severity:     string(a.Severity),
				CurrentValue: a.CurrentValue,
				Limit:        a.Limit,
				Timestamp:    a.Timestamp,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// RunRecord 查询返回的落库记录。
type RunRecord struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	Signal         string          `json:"signal"`
	Interval       string          `json:"interval"`
	StartDate      string          `json:"start_date"`
	EndDate        string          `json:"end_date"`
	Status         string          `json:"status"`
	Verdict        string          `json:"verdict,omitempty"`
	CompositeScore float64         `json:"composite_score"`
	Message        string          `json:"message,omitempty"`
	Metrics        *ledger.Metrics `json:"metrics,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

func recordFromModel(m runModel) (RunRecord, error) {
	rec := RunRecord{
		ID:             m.ID,
		Symbol:         m.Symbol,
		Signal:         m.Signal,
		Interval:       m.Interval,
		StartDate:      m.StartDate,
		EndDate:        m.EndDate,
		Status:         m.Status,
		Verdict:        m.Verdict,
		CompositeScore: m.CompositeScore,
		Message:        m.Message,
		CreatedAt:      m.CreatedAt,
		CompletedAt:    m.CompletedAt,
	}
	if len(m.MetricsJSON) > 0 {
		var metrics ledger.Metrics
		if err := json.Unmarshal(m.MetricsJSON, &metrics); err != nil {
			return RunRecord{}, err
		}
		rec.Metrics = &metrics
	}
	return rec, nil
}

func (s *Store) GetRun(id string) (RunRecord, error) {
	var m runModel
	if err := s.db.First(&m, "id = ?", id).Error; err != nil {
		return RunRecord{}, err
	}
	return recordFromModel(m)
}

func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var models []runModel
	if err := s.db.Order("created_at DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]RunRecord, 0, len(models))
	for _, m := range models {
		rec, err := recordFromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) ListTrades(runID string, limit int) ([]ledger.Trade, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	var models []tradeModel
	if err := s.db.Where("run_id = ?", runID).Order("entry_time ASC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.Trade, 0, len(models))
	for _, m := range models {
		dir := ledger.Long
		if m.Direction == "short" {
			dir = ledger.Short
		}
		out = append(out, ledger.Trade{
			EntryTime:  m.EntryTime,
			ExitTime:   m.ExitTime,
			Direction:  dir,
			EntryPrice: m.EntryPrice,
			ExitPrice:  m.ExitPrice,
			Size:       m.Size,
			PnL:        m.PnL,
			PnLPct:     m.PnLPct,
			ExitReason: m.ExitReason,
			Duration:   time.Duration(m.DurationMs) * time.Millisecond,
		})
	}
	return out, nil
}

func (s *Store) ListAlerts(runID string, limit int) ([]risk.Alert, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	var models []alertModel
	if err := s.db.Where("run_id = ?", runID).Order("timestamp ASC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]risk.Alert, 0, len(models))
	for _, m := range models {
		out = append(out, risk.Alert{
			Type:         m.Type,
			Severity:     risk.Severity(m.Severity),
			CurrentValue: m.CurrentValue,
			Limit:        m.Limit,
			Timestamp:    m.Timestamp,
		})
	}
	return out, nil
}
