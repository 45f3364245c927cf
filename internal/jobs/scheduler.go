package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job 定时任务，返回错误只记录日志
type Job func(ctx context.Context) error

// Scheduler cron 调度，任务不会并发重入
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	timeout time.Duration
	logger  *zap.Logger
}

func NewScheduler(ctx context.Context, timeout time.Duration, logger *zap.Logger) *Scheduler {
	cronLogger := cron.VerbosePrintfLogger(zap.NewStdLog(logger))
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
		ctx:     ctx,
		timeout: timeout,
		logger:  logger,
	}
}

// Add 注册任务；spec 支持标准 5 段表达式和 @every 描述符
func (s *Scheduler) Add(spec, name string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			s.logger.Error("Scheduled job failed",
				zap.String("job", name),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
			return
		}
		s.logger.Debug("Scheduled job finished",
			zap.String("job", name),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.logger.Info("Scheduled job registered", zap.String("job", name), zap.String("spec", spec))
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
