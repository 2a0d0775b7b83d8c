package executor

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/shaiso/Flume/internal/telemetry"
)

// Pool — фиксированный набор горутин с неограниченной FIFO очередью.
//
// Паника задачи логируется и не останавливает воркер.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool

	size   int
	active atomic.Int64
	wg     sync.WaitGroup
	done   chan struct{}

	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// NewPool запускает size воркеров (минимум один).
func NewPool(size int, logger *slog.Logger, metrics *telemetry.Metrics) *Pool {
	if size < 1 {
		size = 1
	}

	p := &Pool{
		size:    size,
		done:    make(chan struct{}),
		logger:  telemetry.Component(logger, "pool"),
		metrics: metrics,
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	go func() {
		p.wg.Wait()
		close(p.done)
	}()

	return p
}

// Submit ставит задачу в конец очереди.
func (p *Pool) Submit(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	p.queue = append(p.queue, task)
	p.cond.Signal()
	return nil
}

// Shutdown закрывает пул и отбрасывает задачи, ещё не взятые воркерами.
// Выполняющиеся задачи доработают. Возвращает число отброшенных задач.
func (p *Pool) Shutdown() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0
	}

	p.closed = true
	dropped := len(p.queue)
	p.queue = nil
	p.cond.Broadcast()
	return dropped
}

// AwaitTermination ждёт завершения всех воркеров после Shutdown.
func (p *Pool) AwaitTermination(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Size возвращает число воркеров.
func (p *Pool) Size() int {
	return p.size
}

// Active возвращает число воркеров, выполняющих задачу.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Queued возвращает длину очереди.
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	p.active.Add(1)
	p.metrics.WorkerStarted()

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic recovered in pool task",
				"error", r,
				"stack", string(debug.Stack()),
			)
		}
		p.active.Add(-1)
		p.metrics.WorkerFinished()
	}()

	task()
}
