package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Flume/internal/domain"
	"github.com/shaiso/Flume/internal/engine"
	"github.com/shaiso/Flume/internal/telemetry"
)

// Default configuration values.
const (
	defaultParallelism  = 4
	defaultPollInterval = 25 * time.Millisecond
	minRootFanOut       = 3
)

// Evaluator обрабатывает bundle'ы стадий. Реализация: evaluator.Registry.
type Evaluator interface {
	Evaluate(ctx context.Context, node *engine.Node, bundle domain.Bundle) ([]domain.Bundle, error)
	InitialInputs(ctx context.Context, node *engine.Node, n int) ([]domain.Bundle, error)
	Cleanup() error
}

// BundleProcessor планирует обработку bundle'а стадией.
type BundleProcessor interface {
	Process(bundle domain.Bundle, node *engine.Node, cb CompletionCallback)
}

// ExecutionDriver продвигает pipeline. Drive вызывается повторно,
// пока не вернёт DriverFailed или DriverShutdown.
type ExecutionDriver interface {
	Drive(ctx context.Context) domain.DriverState
}

// RootInput — начальный bundle корневой стадии.
type RootInput struct {
	Node   *engine.Node
	Bundle domain.Bundle
}

// DriverFactory создаёт driver для запущенного исполнителя.
type DriverFactory func(processor BundleProcessor, receiver MessageReceiver, initial []RootInput) ExecutionDriver

// Config — конфигурация Executor.
type Config struct {
	// ID — идентификатор pipeline для логов.
	ID string

	// Parallelism — размер пула (default: 4).
	Parallelism int

	// Evaluator — evaluator'ы стадий.
	Evaluator Evaluator

	// NewDriver — фабрика driver'а.
	NewDriver DriverFactory

	// Observers — получатели видимых обновлений (опционально).
	Observers []UpdateObserver

	// PollInterval — период опроса в WaitUntilFinish (default: 25ms).
	PollInterval time.Duration

	// Metrics — метрики (опционально).
	Metrics *telemetry.Metrics

	// Logger — логгер.
	Logger *slog.Logger
}

// Executor — Bundle Scheduler.
//
// Bundle'ы keyed коллекций выполняются через serial lane своего
// (стадия, ключ), остальные через общий parallel lane. Все lanes
// делят один пул фиксированного размера. Остановка выполняется на
// отдельной горутине и идемпотентна: побеждает первый переход в
// терминальное состояние.
type Executor struct {
	id           string
	parallelism  int
	evaluator    Evaluator
	newDriver    DriverFactory
	pollInterval time.Duration
	metrics      *telemetry.Metrics
	logger       *slog.Logger

	updates *updateQueue
	state   atomic.Value

	// Заполняются в Start
	ctx      context.Context
	cancel   context.CancelFunc
	pool     *Pool
	parallel *parallelLane
	lanes    *laneCache
	keyed    map[string]bool
	driver   ExecutionDriver

	started      atomic.Bool
	shuttingDown atomic.Bool
	shutdownDone chan struct{}
	ending       sync.WaitGroup
}

// New создаёт Executor в состоянии RUNNING.
func New(cfg Config) (*Executor, error) {
	if cfg.Evaluator == nil {
		return nil, ErrNoEvaluator
	}
	if cfg.NewDriver == nil {
		return nil, ErrNoDriver
	}

	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	logger := telemetry.Component(cfg.Logger, "executor")
	if cfg.ID != "" {
		logger = telemetry.WithPipelineID(logger, cfg.ID)
	}

	e := &Executor{
		id:           cfg.ID,
		parallelism:  parallelism,
		evaluator:    cfg.Evaluator,
		newDriver:    cfg.NewDriver,
		pollInterval: pollInterval,
		metrics:      cfg.Metrics,
		logger:       logger,
		updates:      newUpdateQueue(cfg.ID, cfg.Observers, logger),
		shutdownDone: make(chan struct{}),
	}
	e.state.Store(domain.StateRunning)

	return e, nil
}

// Start вычисляет начальные входы корневых стадий и запускает driver.
//
// keyed — коллекции, чьи bundle'ы идут через serial lanes
// (результат engine.ClassifyKeyed).
func (e *Executor) Start(ctx context.Context, graph *engine.Graph, keyed map[string]bool) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	e.ctx, e.cancel = context.WithCancel(ctx)
	e.keyed = keyed
	e.pool = NewPool(e.parallelism, e.logger, e.metrics)
	e.parallel = newParallelLane(e.pool)
	e.lanes = newLaneCache(e.pool, e.metrics, e.logger)

	e.logger.Info("starting pipeline",
		"parallelism", e.parallelism,
		"stages", graph.Size(),
		"roots", len(graph.Roots),
	)

	// 1. Начальные входы всех корней параллельно
	initial, err := e.initialInputs(e.ctx, graph.Roots)
	if err != nil {
		err = fmt.Errorf("initial inputs: %w", err)
		e.updates.Failed(err)
		e.shutdown(domain.StateFailed)
		return err
	}

	// 2. Driver и первая задача продвижения
	e.driver = e.newDriver(e, e.updates, initial)
	if err := e.pool.Submit(e.drive); err != nil {
		err = fmt.Errorf("submit driver: %w", err)
		e.updates.Failed(err)
		e.shutdown(domain.StateFailed)
		return err
	}

	return nil
}

// initialInputs запрашивает у каждого корня max(3, parallelism) bundle'ов.
func (e *Executor) initialInputs(ctx context.Context, roots []*engine.Node) ([]RootInput, error) {
	fanOut := max(minRootFanOut, e.parallelism)
	results := make([][]domain.Bundle, len(roots))

	g, gctx := errgroup.WithContext(ctx)
	for i, root := range roots {
		g.Go(func() error {
			bundles, err := e.evaluator.InitialInputs(gctx, root, fanOut)
			if err != nil {
				return fmt.Errorf("root %s: %w", root.ID, err)
			}
			results[i] = bundles
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	initial := make([]RootInput, 0)
	for i, root := range roots {
		for _, b := range results[i] {
			initial = append(initial, RootInput{Node: root, Bundle: b})
		}
	}
	return initial, nil
}

// drive — задача пула: один шаг driver'а, затем повторная постановка.
func (e *Executor) drive() {
	if e.shuttingDown.Load() {
		return
	}

	// Отмена родительского ctx равносильна Stop
	if e.ctx.Err() != nil {
		e.ending.Add(1)
		go func() {
			defer e.ending.Done()
			e.Stop()
		}()
		return
	}

	st := e.driver.Drive(e.ctx)
	if !st.IsTerminal() {
		if err := e.pool.Submit(e.drive); err != nil {
			e.logger.Debug("driver not resubmitted", "error", err)
		}
		return
	}

	target := domain.StateDone
	if st == domain.DriverFailed {
		target = domain.StateFailed
	}

	// Остановка ждёт завершения пула, поэтому не может идти в его задаче
	e.ending.Add(1)
	go func() {
		defer e.ending.Done()
		e.shutdown(target)
	}()
}

// Process планирует обработку bundle'а стадией node.
//
// После начала остановки вызов ничего не делает.
func (e *Executor) Process(bundle domain.Bundle, node *engine.Node, cb CompletionCallback) {
	if e.shuttingDown.Load() || e.State().IsTerminal() {
		return
	}

	if key, ok := bundle.Key(); ok && e.keyed[bundle.Collection()] {
		target := domain.StepAndKey{StageID: node.ID, Key: key}
		l, ok := e.lanes.acquire(target)
		if !ok {
			return
		}

		te := NewTransformExecutor(e.ctx, e.evaluator, bundle, node, cb, func() {
			e.lanes.release(target)
		})
		if !l.schedule(te.Run) {
			e.lanes.release(target)
		}
		return
	}

	te := NewTransformExecutor(e.ctx, e.evaluator, bundle, node, cb, nil)
	if !e.parallel.schedule(te.Run) {
		e.logger.Debug("bundle dropped", "bundle_id", bundle.ID(), "stage", node.ID)
	}
}

// WaitUntilFinish ждёт терминального состояния.
//
// Обновления опрашиваются каждые PollInterval. Возврат происходит,
// когда очередь пуста, а pipeline в терминальном состоянии. Если у
// ctx нет deadline, дополнительно ждёт завершения остановки.
// Истёкший ctx возвращает последнее состояние.
//
// Ошибка — все сбои, опубликованные к моменту возврата: первый как
// есть, несколько как PipelineError. Повторные и конкурентные вызовы
// видят одни и те же сбои.
func (e *Executor) WaitUntilFinish(ctx context.Context) (domain.PipelineState, error) {
	_, hasDeadline := ctx.Deadline()

	for {
		_, ok, err := e.updates.tryNext(ctx, e.pollInterval)
		if err != nil {
			return e.State(), e.updates.failure()
		}
		if ok {
			continue
		}

		if !e.State().IsTerminal() {
			continue
		}

		if !hasDeadline {
			e.ending.Wait()
		}
		select {
		case <-e.shutdownDone:
		case <-ctx.Done():
			return e.State(), e.updates.failure()
		}

		e.updates.drain()
		return e.State(), e.updates.failure()
	}
}

// Stop отменяет pipeline и публикует отмену.
func (e *Executor) Stop() {
	e.shutdown(domain.StateCancelled)
	e.updates.Cancelled()
}

// shutdown останавливает исполнитель. Повторные вызовы ждут первого.
//
// Порядок: lanes, parallel lane, пул (с ожиданием), cleanup evaluator'ов,
// переход RUNNING → target, публикация ShutdownError.
func (e *Executor) shutdown(target domain.PipelineState) {
	if !e.shuttingDown.CompareAndSwap(false, true) {
		<-e.shutdownDone
		return
	}
	defer close(e.shutdownDone)

	var errs []error

	if e.lanes != nil {
		e.lanes.drainAndInvalidate()
	}
	if e.parallel != nil {
		e.parallel.shutdown()
	}
	if e.pool != nil {
		dropped := e.pool.Shutdown()
		if dropped > 0 {
			e.logger.Debug("queued tasks dropped", "count", dropped)
		}
		e.cancel()
		if err := e.pool.AwaitTermination(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("await pool: %w", err))
		}
	}

	if err := e.evaluator.Cleanup(); err != nil {
		errs = append(errs, fmt.Errorf("cleanup: %w", err))
	}

	if e.state.CompareAndSwap(domain.StateRunning, target) {
		e.metrics.PipelineFinished(target.String())
		e.logger.Info("pipeline finished", "state", target)
	}

	if len(errs) > 0 {
		e.updates.Failed(&ShutdownError{Errs: errs})
	}
}

// ID возвращает идентификатор pipeline.
func (e *Executor) ID() string {
	return e.id
}

// State возвращает текущее состояние.
func (e *Executor) State() domain.PipelineState {
	return e.state.Load().(domain.PipelineState)
}

// LanesCreated возвращает число созданных serial lanes.
func (e *Executor) LanesCreated() int64 {
	if e.lanes == nil {
		return 0
	}
	return e.lanes.lanesCreated()
}

// ActiveLanes возвращает число живых serial lanes.
func (e *Executor) ActiveLanes() int {
	if e.lanes == nil {
		return 0
	}
	return e.lanes.size()
}
