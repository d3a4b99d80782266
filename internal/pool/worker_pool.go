package pool

import (
	"context"
	"sync"
)

// 配置缺省时的兜底值。
const (
	defaultMaxWorkers = 8
	defaultQueueSize  = 256
)

// WorkerPool 协程池
//
// 限制并发协程数量，Webhook 投递等出站任务经由它执行，
// 避免突发流量下无界创建协程。
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan func()
	wg         sync.WaitGroup
}

// NewWorkerPool 创建协程池
//
// maxWorkers 为最大协程数，queueSize 为任务队列大小，
// 非正值使用缺省值。
func NewWorkerPool(maxWorkers, queueSize int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = defaultMaxWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	return &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan func(), queueSize),
	}
}

// Start 启动协程池
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Submit 提交任务
//
// 如果队列已满，会阻塞直到有空位
func (p *WorkerPool) Submit(task func()) {
	p.taskQueue <- task
}

// TrySubmit 尝试提交任务
//
// 如果队列已满，立即返回 false，由调用方决定降级策略
func (p *WorkerPool) TrySubmit(task func()) bool {
	select {
	case p.taskQueue <- task:
		return true
	default:
		return false
	}
}

// Stop 停止协程池，等待在途任务执行完毕
func (p *WorkerPool) Stop() {
	close(p.taskQueue)
	p.wg.Wait()
}

// worker 工作协程
func (p *WorkerPool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}

			// 任务自身的 panic 不应杀死工作协程
			func() {
				defer func() {
					_ = recover()
				}()
				task()
			}()
		}
	}
}
