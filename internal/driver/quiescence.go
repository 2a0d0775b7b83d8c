package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Flume/internal/domain"
	"github.com/shaiso/Flume/internal/engine"
	"github.com/shaiso/Flume/internal/executor"
	"github.com/shaiso/Flume/internal/state"
	"github.com/shaiso/Flume/internal/telemetry"
)

// Default configuration values.
const defaultIdleWait = 5 * time.Millisecond

// Config — конфигурация Quiescence.
type Config struct {
	// Graph — граф pipeline.
	Graph *engine.Graph

	// Processor — планировщик bundle'ов (executor.Executor).
	Processor executor.BundleProcessor

	// Receiver — канал завершения.
	Receiver executor.MessageReceiver

	// Initial — начальные bundle'ы корней.
	Initial []executor.RootInput

	// Backend — хранилище таймеров. Обязательно, если есть стадии process.
	Backend state.Backend

	// Now — часы processing time (по умолчанию time.Now).
	Now func() time.Time

	// IdleWait — сколько ждать новых событий, если шаг ничего не сделал
	// (default: 5ms).
	IdleWait time.Duration

	// Logger — логгер.
	Logger *slog.Logger
}

// Quiescence — in-process driver.
//
// Каждый шаг Drive:
//  1. разбирает завершённые bundle'ы и передаёт выходы потребителям
//  2. доставляет сработавшие processing-time таймеры в serial lanes
//  3. сбрасывает группировки, чьи предки закончили работу
//  4. завершает pipeline, когда работы, таймеров и буферов не осталось
//
// Drive вызывается из одной задачи за раз: состояние driver'а
// защищено только для callback'ов.
type Quiescence struct {
	graph     *engine.Graph
	processor executor.BundleProcessor
	receiver  executor.MessageReceiver
	backend   state.Backend
	now       func() time.Time
	idleWait  time.Duration
	logger    *slog.Logger

	initial []executor.RootInput
	started bool

	// Завершения от callback'ов
	mu      sync.Mutex
	pending []completion
	signal  chan struct{}

	// Состояние шагов Drive
	outstanding map[string]int
	total       int
	groups      map[string]*groupBuffer
	groupOrder  []string
	hasTimers   bool
	failed      bool // запись под mu
	finished    bool
}

type completion struct {
	input   domain.Bundle
	node    *engine.Node
	outputs []domain.Bundle
	err     error
}

// New создаёт Quiescence.
func New(cfg Config) *Quiescence {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	idleWait := cfg.IdleWait
	if idleWait <= 0 {
		idleWait = defaultIdleWait
	}

	q := &Quiescence{
		graph:       cfg.Graph,
		processor:   cfg.Processor,
		receiver:    cfg.Receiver,
		backend:     cfg.Backend,
		now:         cfg.Now,
		idleWait:    idleWait,
		logger:      telemetry.Component(cfg.Logger, "driver"),
		initial:     cfg.Initial,
		signal:      make(chan struct{}, 1),
		outstanding: make(map[string]int),
		groups:      make(map[string]*groupBuffer),
		hasTimers:   len(cfg.Graph.NodesOfKind(domain.KindProcess)) > 0,
	}

	for _, node := range cfg.Graph.NodesOfKind(domain.KindGroupByKey) {
		ancestors := cfg.Graph.Ancestors(node.ID)
		waits := false
		for id := range ancestors {
			if cfg.Graph.Node(id).Kind() == domain.KindProcess {
				waits = true
				break
			}
		}
		q.groups[node.ID] = newGroupBuffer(node.Inputs[0].ID, ancestors, waits)
		q.groupOrder = append(q.groupOrder, node.ID)
	}

	return q
}

// Factory возвращает executor.DriverFactory, создающую Quiescence
// с общей частью конфигурации cfg.
func Factory(cfg Config) executor.DriverFactory {
	return func(p executor.BundleProcessor, r executor.MessageReceiver, initial []executor.RootInput) executor.ExecutionDriver {
		c := cfg
		c.Processor = p
		c.Receiver = r
		c.Initial = initial
		return New(c)
	}
}

// HandleResult реализует executor.CompletionCallback.
func (q *Quiescence) HandleResult(input domain.Bundle, node *engine.Node, outputs []domain.Bundle) {
	q.push(completion{input: input, node: node, outputs: outputs})
}

// HandleError реализует executor.CompletionCallback.
func (q *Quiescence) HandleError(input domain.Bundle, node *engine.Node, err error) {
	q.push(completion{input: input, node: node, err: err})
}

func (q *Quiescence) push(c completion) {
	q.mu.Lock()
	if q.failed {
		q.mu.Unlock()
		q.lateFailure(c)
		return
	}
	q.pending = append(q.pending, c)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *Quiescence) takeCompletions() []completion {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.pending
	q.pending = nil
	return out
}

// Drive выполняет один шаг продвижения pipeline.
func (q *Quiescence) Drive(ctx context.Context) domain.DriverState {
	if q.failed {
		return domain.DriverFailed
	}
	if q.finished {
		return domain.DriverShutdown
	}

	progressed := false

	if !q.started {
		q.started = true
		if q.hasTimers && q.backend == nil {
			return q.fail(ErrNoBackend)
		}
		for _, in := range q.initial {
			q.schedule(in.Bundle, in.Node)
		}
		progressed = len(q.initial) > 0
	}

	// 1. Завершённые bundle'ы. Сбои публикуются все, выходы после
	// первого сбоя не маршрутизируются.
	for _, c := range q.takeCompletions() {
		progressed = true
		q.outstanding[c.node.ID]--
		q.total--

		if c.err != nil {
			q.logger.Error("bundle failed",
				"stage", c.node.ID,
				"bundle_id", c.input.ID(),
				"error", c.err,
			)
			q.fail(c.err)
			continue
		}
		if q.failed {
			continue
		}

		for _, out := range c.outputs {
			if err := q.route(out); err != nil {
				q.fail(fmt.Errorf("route %s: %w", c.node.ID, err))
				break
			}
		}
	}
	if q.failed {
		return domain.DriverFailed
	}

	// 2. Сработавшие таймеры
	if q.hasTimers {
		fired, err := q.backend.FireDueTimers(ctx, q.now())
		if err != nil {
			if ctx.Err() != nil {
				return domain.DriverContinue
			}
			return q.fail(fmt.Errorf("fire timers: %w", err))
		}
		for _, ft := range fired {
			if err := q.deliverTimer(ft); err != nil {
				return q.fail(err)
			}
			progressed = true
		}
	}

	// 3. Сброс группировок
	var pendingTimers int
	if q.hasTimers {
		n, err := q.backend.PendingTimers(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return domain.DriverContinue
			}
			return q.fail(fmt.Errorf("pending timers: %w", err))
		}
		pendingTimers = n
	}

	for _, id := range q.groupOrder {
		if q.flushable(id, pendingTimers) {
			q.flush(id)
			progressed = true
		}
	}

	// 4. Завершение
	if q.total == 0 && pendingTimers == 0 && q.allFlushed() {
		q.finished = true
		q.logger.Debug("pipeline quiescent")
		q.receiver.Completed()
		return domain.DriverShutdown
	}

	if !progressed {
		q.waitForWork(ctx, pendingTimers > 0)
	}
	return domain.DriverContinue
}

// fail публикует сбой и переводит driver в FAILED. Завершения,
// пришедшие между разбором и переходом, публикуются сразу.
func (q *Quiescence) fail(err error) domain.DriverState {
	q.mu.Lock()
	q.failed = true
	late := q.pending
	q.pending = nil
	q.mu.Unlock()

	q.receiver.Failed(err)
	for _, c := range late {
		q.lateFailure(c)
	}
	return domain.DriverFailed
}

// lateFailure публикует сбой bundle'а, завершившегося после перехода
// в FAILED. Отмена ctx при остановке сбоем не считается.
func (q *Quiescence) lateFailure(c completion) {
	if c.err == nil || errors.Is(c.err, context.Canceled) {
		return
	}

	q.logger.Error("bundle failed after pipeline failure",
		"stage", c.node.ID,
		"bundle_id", c.input.ID(),
		"error", c.err,
	)
	q.receiver.Failed(c.err)
}

func (q *Quiescence) schedule(b domain.Bundle, node *engine.Node) {
	q.outstanding[node.ID]++
	q.total++
	q.processor.Process(b, node, q)
}

// route передаёт выход всем потребителям коллекции.
func (q *Quiescence) route(b domain.Bundle) error {
	if b.IsEmpty() {
		return nil
	}

	for _, consumer := range q.graph.Consumers(b.Collection()) {
		if group, ok := q.groups[consumer.ID]; ok {
			if err := group.add(b); err != nil {
				return fmt.Errorf("stage %s: %w", consumer.ID, err)
			}
			continue
		}
		q.schedule(b, consumer)
	}
	return nil
}

// deliverTimer отправляет таймер в serial lane (stage, key) процессора.
func (q *Quiescence) deliverTimer(ft state.FiredTimer) error {
	node := q.graph.Node(ft.Target.StageID)
	if node == nil || node.Kind() != domain.KindProcess || len(node.Inputs) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownTimerTarget, ft.Target)
	}

	key := ft.Target.Key
	item := domain.TimersWorkItem(key, ft.Timer)
	b := domain.NewKeyedBundle(node.Inputs[0].ID, key).
		Add(domain.ValueInGlobalWindow(item)).
		Commit(q.now())

	q.logger.Debug("timer fired", "stage", node.ID, "key", key, "fire_at", ft.Timer.FireAt)
	q.schedule(b, node)
	return nil
}

// flushable — все предки группировки простаивают.
func (q *Quiescence) flushable(id string, pendingTimers int) bool {
	group := q.groups[id]
	if group.flushed {
		return false
	}
	if group.waitsOnTimers && pendingTimers > 0 {
		return false
	}

	for ancestor := range group.ancestors {
		if q.outstanding[ancestor] > 0 {
			return false
		}
		if up, ok := q.groups[ancestor]; ok && !up.flushed {
			return false
		}
	}
	return true
}

// flush планирует по одному keyed bundle'у на ключ.
func (q *Quiescence) flush(id string) {
	group := q.groups[id]
	node := q.graph.Node(id)
	keys, values := group.take()
	now := q.now()

	for _, key := range keys {
		b := domain.NewKeyedBundle(group.input, key)
		for _, wv := range values[key] {
			b.Add(wv)
		}
		q.schedule(b.Commit(now), node)
	}

	q.logger.Debug("group flushed", "stage", id, "keys", len(keys))
}

func (q *Quiescence) allFlushed() bool {
	for _, group := range q.groups {
		if !group.flushed {
			return false
		}
	}
	return true
}

// waitForWork ждёт завершения bundle'а, но не дольше idleWait.
func (q *Quiescence) waitForWork(ctx context.Context, timersPending bool) {
	wait := q.idleWait
	if !timersPending && q.total == 0 {
		return
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-q.signal:
	case <-timer.C:
	case <-ctx.Done():
	}
}
