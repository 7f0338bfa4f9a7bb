package worker

import (
	"context"
	"sync"
	"time"

	"deltauid-backend-go/internal/model"

	"go.uber.org/zap"
)

const dropNotifyTimeout = 5 * time.Second

// Manager Worker管理器（统一管理JobQueue和WorkerPool）
type Manager struct {
	jobQueue   *JobQueue
	workerPool *WorkerPool
	runner     LoginRunner
	logger     *zap.Logger
	started    bool
	mu         sync.RWMutex
}

// ManagerConfig Manager配置
type ManagerConfig struct {
	QueueCapacity int // 队列容量
	Concurrency   int // Worker并发数
	RateLimitQPS  int // 每秒新开始的登录数
}

func NewManager(config ManagerConfig, runner LoginRunner, logger *zap.Logger) *Manager {
	jobQueue := NewJobQueue(config.QueueCapacity, logger)

	workerPool := NewWorkerPool(WorkerPoolConfig{
		Concurrency:  config.Concurrency,
		RateLimitQPS: config.RateLimitQPS,
	}, jobQueue, runner, logger)

	m := &Manager{
		jobQueue:   jobQueue,
		workerPool: workerPool,
		runner:     runner,
		logger:     logger,
	}
	workerPool.onDrop = m.dropJob
	return m
}

// Start 启动Manager
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}

	m.logger.Info("🚀 启动Worker管理器")
	m.workerPool.Start()

	m.started = true
	m.logger.Info("✅ Worker管理器启动完成")
	return nil
}

// Stop 停止Manager
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}

	m.logger.Info("🛑 停止Worker管理器")

	m.workerPool.Stop()
	for _, job := range m.jobQueue.Stop() {
		m.dropJob(job)
	}

	m.started = false
	m.logger.Info("✅ Worker管理器已停止")
	return nil
}

// dropJob 已返回 job_id 却未执行的任务，记录并通知用户
func (m *Manager) dropJob(job *Job) {
	m.logger.Warn("⚠️ 服务停止，排队中的登录未执行",
		zap.Int64("job_id", job.ID),
		zap.String("key", job.Request.Target.Key()))

	n, ok := m.runner.(DropNotifier)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), dropNotifyTimeout)
	defer cancel()
	n.NotifyDropped(ctx, job.Request)
}

// IsStarted 检查是否已启动
func (m *Manager) IsStarted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started
}

// SubmitLogin 提交登录任务
func (m *Manager) SubmitLogin(req model.LoginRequest) (int64, error) {
	return m.jobQueue.Enqueue(req)
}

// GetStats 获取统计信息
func (m *Manager) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"worker_manager": map[string]interface{}{
			"started":     m.IsStarted(),
			"concurrency": m.workerPool.concurrency,
			"rate_limit":  float64(m.workerPool.rateLimiter.Limit()),
		},
		"job_queue": map[string]int{
			"queue_length":   m.jobQueue.GetQueueLength(),
			"queue_capacity": m.jobQueue.GetQueueCapacity(),
			"in_flight":      m.jobQueue.InFlight(),
		},
		"sessions": m.workerPool.Stats(),
	}
}
