package executor

import (
	"sync"
	"sync/atomic"

	"github.com/shaiso/Flume/internal/domain"
)

// lane — очередь исполнения поверх общего пула.
type lane interface {
	// schedule ставит задачу. false — lane закрыт, задача отброшена.
	schedule(task func()) bool
	shutdown()
}

// parallelLane отдаёт задачи прямо в пул, без порядка.
type parallelLane struct {
	pool   *Pool
	closed atomic.Bool
}

func newParallelLane(pool *Pool) *parallelLane {
	return &parallelLane{pool: pool}
}

func (l *parallelLane) schedule(task func()) bool {
	if l.closed.Load() {
		return false
	}
	return l.pool.Submit(task) == nil
}

func (l *parallelLane) shutdown() {
	l.closed.Store(true)
}

// serialLane выполняет задачи одного StepAndKey строго по одной в порядке
// постановки. В пуле одновременно находится не больше одной его задачи.
type serialLane struct {
	target domain.StepAndKey
	pool   *Pool

	mu      sync.Mutex
	queue   []func()
	running bool
	closed  bool
}

func newSerialLane(target domain.StepAndKey, pool *Pool) *serialLane {
	return &serialLane{target: target, pool: pool}
}

func (l *serialLane) schedule(task func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}

	l.queue = append(l.queue, task)
	if l.running {
		l.mu.Unlock()
		return true
	}
	l.running = true
	l.mu.Unlock()

	if err := l.pool.Submit(l.runNext); err != nil {
		l.mu.Lock()
		l.running = false
		l.closed = true
		l.queue = nil
		l.mu.Unlock()
		return false
	}
	return true
}

// runNext выполняет голову очереди и передаёт пулу следующую задачу.
func (l *serialLane) runNext() {
	l.mu.Lock()
	if l.closed || len(l.queue) == 0 {
		l.running = false
		l.mu.Unlock()
		return
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	l.mu.Unlock()

	defer l.next()
	task()
}

func (l *serialLane) next() {
	l.mu.Lock()
	if l.closed || len(l.queue) == 0 {
		l.running = false
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	if err := l.pool.Submit(l.runNext); err != nil {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}
}

func (l *serialLane) shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.queue = nil
}
