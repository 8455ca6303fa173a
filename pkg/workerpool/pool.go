// Package workerpool provides a bounded worker pool for controlled concurrency.
// Used to cap concurrent care plan generation calls across intake sessions.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// TaskFunc is a unit of work executed on a pool worker.
type TaskFunc func(ctx context.Context) (interface{}, error)

type task struct {
	id     string
	ctx    context.Context
	fn     TaskFunc
	result chan taskResult
}

type taskResult struct {
	data interface{}
	err  error
}

// Config holds worker pool configuration
type Config struct {
	// Workers is the number of concurrent workers
	Workers int
	// QueueSize is the size of the task queue
	QueueSize int
	// GracefulShutdownTimeout is the timeout for graceful shutdown
	GracefulShutdownTimeout time.Duration
}

// DefaultConfig returns defaults sized for generation traffic: a handful of
// long-lived upstream calls, not high-throughput fan-out.
func DefaultConfig() Config {
	return Config{
		Workers:                 4,
		QueueSize:               64,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}

// Pool runs submitted tasks on a fixed set of workers. Callers block in Do
// until their own task finishes; results are delivered on a per-task channel
// so concurrent callers never race for each other's outcome.
type Pool struct {
	config Config
	logger *zap.Logger

	taskChan chan *task
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	tasksSubmitted int64
	tasksCompleted int64
	tasksFailed    int64
	activeWorkers  int64
	queueDepth     int64
}

// New creates a new worker pool
func New(cfg Config, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.GracefulShutdownTimeout <= 0 {
		cfg.GracefulShutdownTimeout = DefaultConfig().GracefulShutdownTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		config:   cfg,
		logger:   logger,
		taskChan: make(chan *task, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches all workers
func (p *Pool) Start() {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started",
		zap.Int("workers", p.config.Workers),
		zap.Int("queue_size", p.config.QueueSize))
}

// Do submits fn and blocks until it completes, the queue rejects it, or ctx
// is done. The function is never retried; the caller sees exactly the error
// fn produced.
func (p *Pool) Do(ctx context.Context, id string, fn TaskFunc) (interface{}, error) {
	select {
	case <-p.ctx.Done():
		return nil, fmt.Errorf("pool is shutting down")
	default:
	}

	t := &task{
		id:     id,
		ctx:    ctx,
		fn:     fn,
		result: make(chan taskResult, 1),
	}

	select {
	case p.taskChan <- t:
		atomic.AddInt64(&p.tasksSubmitted, 1)
		atomic.AddInt64(&p.queueDepth, 1)
	default:
		return nil, fmt.Errorf("task queue is full")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-t.result:
		return res.data, res.err
	}
}

// Stop gracefully shuts down the pool
func (p *Pool) Stop() error {
	p.logger.Info("stopping worker pool")

	p.cancel()
	close(p.taskChan)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-time.After(p.config.GracefulShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out")
	}

	return nil
}

// worker is the main worker goroutine
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("worker started", zap.Int("worker_id", id))
	atomic.AddInt64(&p.activeWorkers, 1)
	defer atomic.AddInt64(&p.activeWorkers, -1)

	for t := range p.taskChan {
		atomic.AddInt64(&p.queueDepth, -1)
		p.runTask(id, t)
	}

	p.logger.Debug("worker stopped", zap.Int("worker_id", id))
}

// runTask executes one task and delivers the result on the task's own
// channel. The channel is buffered, so delivery never blocks even if the
// caller already gave up on its context.
func (p *Pool) runTask(workerID int, t *task) {
	ctx := t.ctx
	if ctx == nil {
		ctx = p.ctx
	}

	select {
	case <-ctx.Done():
		atomic.AddInt64(&p.tasksFailed, 1)
		t.result <- taskResult{err: ctx.Err()}
		return
	default:
	}

	data, err := t.fn(ctx)
	if err != nil {
		atomic.AddInt64(&p.tasksFailed, 1)
		p.logger.Debug("task failed",
			zap.String("task_id", t.id),
			zap.Int("worker_id", workerID),
			zap.Error(err))
	} else {
		atomic.AddInt64(&p.tasksCompleted, 1)
	}
	t.result <- taskResult{data: data, err: err}
}

// Stats holds current pool statistics
type Stats struct {
	TasksSubmitted int64
	TasksCompleted int64
	TasksFailed    int64
	ActiveWorkers  int64
	QueueDepth     int64
	QueueCapacity  int
	Workers        int
}

// Stats returns current pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		TasksSubmitted: atomic.LoadInt64(&p.tasksSubmitted),
		TasksCompleted: atomic.LoadInt64(&p.tasksCompleted),
		TasksFailed:    atomic.LoadInt64(&p.tasksFailed),
		ActiveWorkers:  atomic.LoadInt64(&p.activeWorkers),
		QueueDepth:     atomic.LoadInt64(&p.queueDepth),
		QueueCapacity:  p.config.QueueSize,
		Workers:        p.config.Workers,
	}
}

// IsHealthy returns true if the pool is operating normally
func (p *Pool) IsHealthy() bool {
	stats := p.Stats()
	return float64(stats.QueueDepth)/float64(stats.QueueCapacity) < 0.9
}
