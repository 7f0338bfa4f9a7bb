package worker

import (
	"errors"
	"sync"
	"time"

	"deltauid-backend-go/internal/model"

	"go.uber.org/zap"
)

var (
	ErrQueueFull      = errors.New("登录队列已满，请稍后重试")
	ErrDuplicateLogin = errors.New("该用户已有进行中的登录")
	ErrQueueStopped   = errors.New("登录队列已停止")
)

// JobQueue 登录任务队列（内存队列，同一用户同时只允许一个登录）
type JobQueue struct {
	queue       chan *Job
	logger      *zap.Logger
	mu          sync.Mutex
	inflight    map[string]int64
	nextID      int64
	stopped     bool
	maxCapacity int
}

// Job 内存中的登录任务
type Job struct {
	ID         int64              `json:"id"`
	Request    model.LoginRequest `json:"request"`
	EnqueuedAt time.Time          `json:"enqueued_at"`
}

func NewJobQueue(capacity int, logger *zap.Logger) *JobQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &JobQueue{
		queue:       make(chan *Job, capacity),
		logger:      logger,
		inflight:    make(map[string]int64),
		maxCapacity: capacity,
	}
}

// Enqueue 入队登录任务；同一用户已在排队或登录中时拒绝
func (jq *JobQueue) Enqueue(req model.LoginRequest) (int64, error) {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	if jq.stopped {
		return 0, ErrQueueStopped
	}

	key := req.Target.Key()
	if id, ok := jq.inflight[key]; ok {
		jq.logger.Info("⚠️ 重复的登录请求",
			zap.String("key", key),
			zap.Int64("job_id", id))
		return 0, ErrDuplicateLogin
	}

	jq.nextID++
	job := &Job{
		ID:         jq.nextID,
		Request:    req,
		EnqueuedAt: time.Now(),
	}

	// 非阻塞入队
	select {
	case jq.queue <- job:
		jq.inflight[key] = job.ID
		jq.logger.Info("✅ 登录任务入队成功",
			zap.Int64("job_id", job.ID),
			zap.String("platform", string(req.Platform)),
			zap.String("user_id", req.Target.UserID))
		return job.ID, nil
	default:
		jq.logger.Warn("⚠️ 登录队列已满", zap.Int("capacity", jq.maxCapacity))
		return 0, ErrQueueFull
	}
}

// Dequeue 出队任务
func (jq *JobQueue) Dequeue() <-chan *Job {
	return jq.queue
}

// Release 任务结束后释放用户占用
func (jq *JobQueue) Release(job *Job) {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	key := job.Request.Target.Key()
	if id, ok := jq.inflight[key]; ok && id == job.ID {
		delete(jq.inflight, key)
	}
}

// Stop 停止接收新任务并关闭队列，返回尚未被取走的任务
func (jq *JobQueue) Stop() []*Job {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	if jq.stopped {
		return nil
	}
	jq.stopped = true
	close(jq.queue)

	var dropped []*Job
	for job := range jq.queue {
		delete(jq.inflight, job.Request.Target.Key())
		dropped = append(dropped, job)
	}
	jq.logger.Info("📋 登录队列已停止", zap.Int("dropped", len(dropped)))
	return dropped
}

// GetQueueLength 获取队列长度
func (jq *JobQueue) GetQueueLength() int {
	return len(jq.queue)
}

// GetQueueCapacity 获取队列容量
func (jq *JobQueue) GetQueueCapacity() int {
	return jq.maxCapacity
}

// InFlight 排队中与登录中的用户数
func (jq *JobQueue) InFlight() int {
	jq.mu.Lock()
	defer jq.mu.Unlock()
	return len(jq.inflight)
}
