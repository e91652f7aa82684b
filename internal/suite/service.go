package suite

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"stratlab/internal/logger"
	"stratlab/internal/market"
	"stratlab/internal/signal"

	"github.com/google/uuid"
)

const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

// 内存里最多保留的任务数。结果已落库，旧任务快照可以丢。
const defaultMaxJobs = 64

// JobRequest HTTP 提交的矩阵描述。未填字段回落到服务默认值。
type JobRequest struct {
	Symbols  []string    `json:"symbols" binding:"required"`
	Interval string      `json:"interval"`
	Periods  []JobPeriod `json:"periods" binding:"required"`
	Signals  []JobSignal `json:"signals"`
}

type JobPeriod struct {
	Start string `json:"start" binding:"required"` // 2006-01-02
	End   string `json:"end" binding:"required"`
}

type JobSignal struct {
	Type       string `json:"type"`
	FastPeriod int    `json:"fast_period"`
	SlowPeriod int    `json:"slow_period"`
}

// Job 一次矩阵任务的进度快照。
type Job struct {
	ID        string      `json:"id"`
	Status    string      `json:"status"`
	Total     int         `json:"total"`
	Completed int         `json:"completed"`
	Error     string      `json:"error,omitempty"`
	Results   []RunResult `json:"results,omitempty"`
	StartedAt time.Time   `json:"started_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Service 管理异步矩阵任务，HTTP 层提交后轮询进度。
type Service struct {
	runner          *Runner
	defaultInterval market.Interval

	mu      sync.RWMutex
	jobs    map[string]*Job
	order   []string // 提交顺序，驱动已完成任务的淘汰
	maxJobs int

	baseCtx context.Context
}

func NewService(runner *Runner, defaultInterval market.Interval) *Service {
	return &Service{
		runner:          runner,
		defaultInterval: defaultInterval,
		jobs:            make(map[string]*Job),
		maxJobs:         defaultMaxJobs,
		baseCtx:         context.Background(),
	}
}

// SetContext 注入宿主 ctx，用于任务取消。
func (s *Service) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

// Submit 校验请求并异步执行，立即返回任务快照。
func (s *Service) Submit(req JobRequest) (Job, error) {
	combos, err := s.combosFromRequest(req)
	if err != nil {
		return Job{}, err
	}
	job := &Job{
		ID:        uuid.NewString(),
		Status:    JobStatusPending,
		Total:     len(combos),
		StartedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	s.evictLocked()
	s.mu.Unlock()

	go s.execute(job.ID, combos)
	return *job, nil
}

// evictLocked 超出上限时按提交顺序淘汰最老的已完成任务。
// 进行中的任务不淘汰。调用方需持有写锁。
func (s *Service) evictLocked() {
	for len(s.jobs) > s.maxJobs {
		evicted := false
		for i, id := range s.order {
			job, ok := s.jobs[id]
			if !ok {
				s.order = append(s.order[:i], s.order[i+1:]...)
				evicted = true
				break
			}
			if job.Status == JobStatusDone || job.Status == JobStatusFailed {
				delete(s.jobs, id)
				s.order = append(s.order[:i], s.order[i+1:]...)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}

func (s *Service) combosFromRequest(req JobRequest) ([]Combo, error) {
	if len(req.Symbols) == 0 {
		return nil, fmt.Errorf("symbols 不能为空")
	}
	iv := s.defaultInterval
	if strings.TrimSpace(req.Interval) != "" {
		parsed, err := market.ParseInterval(req.Interval)
		if err != nil {
			return nil, err
		}
		iv = parsed
	}
	var periods []Period
	for i, p := range req.Periods {
		start, err := time.Parse("2006-01-02", p.Start)
		if err != nil {
			return nil, fmt.Errorf("periods[%d].start: %w", i, err)
		}
		end, err := time.Parse("2006-01-02", p.End)
		if err != nil {
			return nil, fmt.Errorf("periods[%d].end: %w", i, err)
		}
		if !end.After(start) {
			return nil, fmt.Errorf("periods[%d] 结束日期必须晚于开始日期", i)
		}
		periods = append(periods, Period{Start: start.UTC(), End: end.UTC()})
	}
	if len(periods) == 0 {
		return nil, fmt.Errorf("periods 不能为空")
	}
	sigs := req.Signals
	if len(sigs) == 0 {
		sigs = []JobSignal{{Type: "ema_cross"}}
	}
	factories := make([]SignalFactory, 0, len(sigs))
	for i, sc := range sigs {
		factory, err := FactoryFor(sc)
		if err != nil {
			return nil, fmt.Errorf("signals[%d]: %w", i, err)
		}
		factories = append(factories, factory)
	}
	return Combos(req.Symbols, iv, periods, factories), nil
}

// FactoryFor 把信号描述映射到可重复构造的信号源。
func FactoryFor(sc JobSignal) (SignalFactory, error) {
	switch strings.ToLower(strings.TrimSpace(sc.Type)) {
	case "", "ema_cross":
		fast, slow := sc.FastPeriod, sc.SlowPeriod
		name := "ema_cross"
		if fast > 0 && slow > 0 {
			name = fmt.Sprintf("ema_cross_%d_%d", fast, slow)
		}
		return SignalFactory{
			Name: name,
			New:  func() signal.Source { return signal.NewEMACross(fast, slow) },
		}, nil
	default:
		return SignalFactory{}, fmt.Errorf("未知信号类型: %s", sc.Type)
	}
}

func (s *Service) execute(jobID string, combos []Combo) {
	s.updateJob(jobID, func(j *Job) { j.Status = JobStatusRunning })
	results, err := s.runner.Run(s.ctx(), combos)
	s.updateJob(jobID, func(j *Job) {
		j.Results = results
		j.Completed = countFinished(results)
		if err != nil {
			j.Status = JobStatusFailed
			j.Error = err.Error()
			return
		}
		j.Status = JobStatusDone
	})
	if err != nil {
		logger.Warnf("[suite] 任务 %s 中断: %v", jobID, err)
	}
}

func countFinished(results []RunResult) int {
	n := 0
	for _, r := range results {
		if r.Status != "" {
			n++
		}
	}
	return n
}

func (s *Service) updateJob(id string, fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = time.Now()
}

// JobSnapshot 返回任务快照副本。
func (s *Service) JobSnapshot(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	snap := *job
	snap.Results = append([]RunResult(nil), job.Results...)
	return snap, true
}

// JobsSnapshot 列出全部任务（不含逐组合结果，避免响应过大）。
func (s *Service) JobsSnapshot() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		snap := *job
		snap.Results = nil
		out = append(out, snap)
	}
	return out
}

func (s *Service) ctx() context.Context {
	if s.baseCtx == nil {
		return context.Background()
	}
	return s.baseCtx
}

// Store 暴露结果库给查询接口（可能为 nil）。
func (s *Service) Store() *Store {
	if s.runner == nil {
		return nil
	}
	return s.runner.store
}
