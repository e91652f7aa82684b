package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stratlab/internal/config"
	"stratlab/internal/dataset"
	"stratlab/internal/httpapi"
	"stratlab/internal/logger"
	"stratlab/internal/suite"

	"golang.org/x/sync/errgroup"
)

// App 应用级编排：加载配置→装配依赖→启动 HTTP 与（可选的）启动矩阵。
type App struct {
	cfg     *config.Config
	cfgPath string
	cache   *dataset.Cache
	store   *suite.Store
	runner  *suite.Runner
	svc     *suite.Service
	httpSrv *httpapi.Server
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config, cfgPath string) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildApp(cfg, cfgPath)
}

// Run 启动 HTTP 服务并挂上配置热更新；配置里写了矩阵就先跑一轮。
// 阻塞直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	a.svc.SetContext(ctx)
	a.watchConfig()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.httpSrv.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	if job, ok := a.startupJob(); ok {
		group.Go(func() error {
			snap, err := a.svc.Submit(job)
			if err != nil {
				logger.Warnf("[app] 启动矩阵提交失败: %v", err)
				return nil
			}
			logger.Infof("[app] 启动矩阵已提交：job=%s 组合数=%d", snap.ID, snap.Total)
			return nil
		})
	}

	err := group.Wait()
	a.Close()
	return err
}

// startupJob 把配置里的 suite 段翻译成一次任务提交。
func (a *App) startupJob() (suite.JobRequest, bool) {
	sc := a.cfg.Suite
	if len(sc.Symbols) == 0 || len(sc.Periods) == 0 {
		return suite.JobRequest{}, false
	}
	req := suite.JobRequest{
		Symbols:  sc.Symbols,
		Interval: sc.Interval,
	}
	for _, p := range sc.Periods {
		req.Periods = append(req.Periods, suite.JobPeriod{Start: p.Start, End: p.End})
	}
	for _, s := range sc.Signals {
		req.Signals = append(req.Signals, suite.JobSignal{
			Type:       s.Type,
			FastPeriod: s.FastPeriod,
			SlowPeriod: s.SlowPeriod,
		})
	}
	return req, true
}

// watchConfig 挂配置文件监听，目前只热更新风控阈值。
func (a *App) watchConfig() {
	if strings.TrimSpace(a.cfgPath) == "" {
		return
	}
	err := config.Watch(a.cfgPath, func(cfg *config.Config) {
		a.runner.SetRisk(cfg.Risk)
		logger.SetLevel(cfg.App.LogLevel)
	})
	if err != nil {
		logger.Warnf("[app] 配置监听启动失败: %v", err)
	}
}

// RunOnce 同步跑一轮启动矩阵并返回结果（CLI 一次性模式）。
func (a *App) RunOnce(ctx context.Context) ([]suite.RunResult, error) {
	req, ok := a.startupJob()
	if !ok {
		return nil, fmt.Errorf("配置缺少 suite.symbols / suite.periods")
	}
	a.svc.SetContext(ctx)
	snap, err := a.svc.Submit(req)
	if err != nil {
		return nil, err
	}
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		job, ok := a.svc.JobSnapshot(snap.ID)
		if !ok {
			return nil, fmt.Errorf("任务丢失: %s", snap.ID)
		}
		switch job.Status {
		case suite.JobStatusDone:
			return job.Results, nil
		case suite.JobStatusFailed:
			return job.Results, fmt.Errorf("任务失败: %s", job.Error)
		}
	}
}

// Service 暴露矩阵服务（测试与回放用）。
func (a *App) Service() *suite.Service {
	if a == nil {
		return nil
	}
	return a.svc
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("[app] 关闭结果库失败: %v", err)
		}
	}
}
