package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"deltauid-backend-go/internal/model"
	"deltauid-backend-go/internal/service"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LoginRunner 执行一次登录
type LoginRunner interface {
	Login(ctx context.Context, req model.LoginRequest) (*service.Outcome, error)
}

// DropNotifier 服务停止时通知仍在排队的用户
type DropNotifier interface {
	NotifyDropped(ctx context.Context, req model.LoginRequest)
}

// WorkerPool Worker池（可配置并发度，带限流控制）
type WorkerPool struct {
	concurrency int
	jobQueue    *JobQueue
	runner      LoginRunner
	rateLimiter *rate.Limiter
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	workerWg    sync.WaitGroup
	onDrop      func(job *Job)

	active    atomic.Int64
	processed atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	errored   atomic.Int64
}

// WorkerPoolConfig Worker池配置
type WorkerPoolConfig struct {
	Concurrency  int // 同时进行的登录数
	RateLimitQPS int // 每秒新开始的登录数，0 表示不限
}

func NewWorkerPool(config WorkerPoolConfig, jobQueue *JobQueue, runner LoginRunner, logger *zap.Logger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	limit := rate.Inf
	if config.RateLimitQPS > 0 {
		limit = rate.Limit(config.RateLimitQPS)
	}

	return &WorkerPool{
		concurrency: config.Concurrency,
		jobQueue:    jobQueue,
		runner:      runner,
		rateLimiter: rate.NewLimiter(limit, config.Concurrency*2),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start 启动Worker池
func (wp *WorkerPool) Start() {
	wp.logger.Info("🚀 登录Worker池启动",
		zap.Int("concurrency", wp.concurrency),
		zap.Float64("rate_limit", float64(wp.rateLimiter.Limit())))

	for i := 0; i < wp.concurrency; i++ {
		wp.workerWg.Add(1)
		go wp.worker(i)
	}
}

// Stop 停止Worker池，取消进行中的登录
func (wp *WorkerPool) Stop() {
	wp.logger.Info("🛑 停止登录Worker池...")
	wp.cancel()
	wp.workerWg.Wait()
	wp.logger.Info("✅ 登录Worker池已停止")
}

func (wp *WorkerPool) worker(workerID int) {
	defer wp.workerWg.Done()

	wp.logger.Debug("👷 Worker启动", zap.Int("worker_id", workerID))

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug("👷 Worker停止", zap.Int("worker_id", workerID))
			return
		case job, ok := <-wp.jobQueue.Dequeue():
			if !ok {
				return
			}
			wp.processJob(workerID, job)
		}
	}
}

func (wp *WorkerPool) processJob(workerID int, job *Job) {
	defer wp.jobQueue.Release(job)

	startTime := time.Now()
	req := job.Request

	if err := wp.rateLimiter.Wait(wp.ctx); err != nil {
		wp.logger.Debug("限流等待被取消", zap.Int64("job_id", job.ID), zap.Error(err))
		if wp.onDrop != nil {
			wp.onDrop(job)
		}
		return
	}

	wp.active.Add(1)
	outcome, err := wp.runner.Login(wp.ctx, req)
	wp.active.Add(-1)
	wp.processed.Add(1)

	fields := []zap.Field{
		zap.Int("worker_id", workerID),
		zap.Int64("job_id", job.ID),
		zap.String("platform", string(req.Platform)),
		zap.String("user_id", req.Target.UserID),
		zap.Duration("duration", time.Since(startTime)),
		zap.Duration("queued", startTime.Sub(job.EnqueuedAt)),
	}

	switch {
	case err != nil:
		if errors.Is(err, context.Canceled) {
			wp.logger.Info("登录任务已取消", fields...)
			return
		}
		wp.errored.Add(1)
		wp.logger.Error("❌ 登录任务异常", append(fields, zap.Error(err))...)
	case outcome.Success():
		wp.succeeded.Add(1)
		wp.logger.Info("✅ 登录任务完成", fields...)
	default:
		wp.failed.Add(1)
		wp.logger.Info("登录任务结束", append(fields, zap.String("state", string(outcome.State)))...)
	}
}

// Stats 统计信息
func (wp *WorkerPool) Stats() map[string]int64 {
	return map[string]int64{
		"active":    wp.active.Load(),
		"processed": wp.processed.Load(),
		"succeeded": wp.succeeded.Load(),
		"failed":    wp.failed.Load(),
		"errored":   wp.errored.Load(),
	}
}
