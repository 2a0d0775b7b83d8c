package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/Flume/internal/domain"
	"github.com/shaiso/Flume/internal/engine"
	"github.com/shaiso/Flume/internal/splittable"
	"github.com/shaiso/Flume/internal/state"
	"github.com/shaiso/Flume/internal/telemetry"
	"github.com/shaiso/Flume/internal/transforms"
)

// Evaluator — обработчик bundle'ов для одного типа стадии.
//
// Evaluate получает закоммиченный входной bundle и возвращает
// закоммиченные выходы. Реализации должны быть потокобезопасны:
// разные bundle'ы одной стадии обрабатываются параллельно.
type Evaluator interface {
	Evaluate(ctx context.Context, node *engine.Node, bundle domain.Bundle) ([]domain.Bundle, error)
}

// RootEvaluator — evaluator корневой стадии, умеющий выдавать начальные входы.
type RootEvaluator interface {
	Evaluator
	InitialInputs(ctx context.Context, node *engine.Node, n int) ([]domain.Bundle, error)
}

// FnSource — источник пользовательских функций по имени.
//
// Реализация: transforms.Registry.
type FnSource interface {
	Root(name string, cfg map[string]any) (transforms.RootFn, error)
	Do(name string, cfg map[string]any) (transforms.DoFn, error)
	Splittable(name string, cfg map[string]any) (splittable.Fn, error)
}

// Config — конфигурация Registry.
type Config struct {
	// Functions — пользовательские функции (по умолчанию transforms.DefaultRegistry()).
	Functions FnSource

	// Backend — хранилище состояния для стадий process.
	Backend state.Backend

	// MaxOutputs — потолок выходов одного вызова splittable функции.
	MaxOutputs int

	// Now — часы (по умолчанию time.Now).
	Now func() time.Time

	// Metrics — метрики (опционально).
	Metrics *telemetry.Metrics

	// Logger — логгер.
	Logger *slog.Logger
}

// Registry — реестр evaluator'ов по типу стадии.
//
// Помимо диспетчеризации Registry превращает панику и ошибки
// пользовательского кода в UserCodeError и собирает действия
// очистки, которые выполняются при остановке pipeline.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[domain.StageKind]Evaluator

	cleanupMu sync.Mutex
	cleanups  []func() error
	cleaned   bool

	now     func() time.Time
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// NewRegistry создаёт реестр со всеми стандартными evaluator'ами.
func NewRegistry(cfg Config) *Registry {
	if cfg.Functions == nil {
		cfg.Functions = transforms.DefaultRegistry()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := telemetry.Component(cfg.Logger, "evaluator")

	r := &Registry{
		evaluators: make(map[domain.StageKind]Evaluator),
		now:        cfg.Now,
		metrics:    cfg.Metrics,
		logger:     logger,
	}

	r.Register(domain.KindCreate, newCreateEvaluator(cfg.Functions, cfg.Now))
	r.Register(domain.KindParDo, newParDoEvaluator(cfg.Functions, cfg.Now))
	r.Register(domain.KindGroupByKey, newGroupByKeyEvaluator(cfg.Now))
	r.Register(domain.KindSplit, newSplitEvaluator(cfg.Functions, cfg.Now))
	r.Register(domain.KindGroupIntoKeyedWorkItems, newGroupWorkItemsEvaluator(cfg.Now))
	r.Register(domain.KindProcess, newProcessEvaluator(processConfig{
		fns:        cfg.Functions,
		backend:    cfg.Backend,
		maxOutputs: cfg.MaxOutputs,
		now:        cfg.Now,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}))

	return r
}

// Register добавляет evaluator для типа стадии. Существующий перезаписывается.
func (r *Registry) Register(kind domain.StageKind, ev Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[kind] = ev
}

// Get возвращает evaluator для типа стадии.
func (r *Registry) Get(kind domain.StageKind) (Evaluator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ev, ok := r.evaluators[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return ev, nil
}

// Has проверяет, зарегистрирован ли evaluator.
func (r *Registry) Has(kind domain.StageKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.evaluators[kind]
	return ok
}

// Types возвращает отсортированный список зарегистрированных типов.
func (r *Registry) Types() []domain.StageKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]domain.StageKind, 0, len(r.evaluators))
	for k := range r.evaluators {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Evaluate обрабатывает bundle evaluator'ом стадии.
//
// Паника evaluator'а становится UserCodeError, FnError splittable
// функции тоже. Нарушения контракта и ошибки хранилища возвращаются
// обёрнутыми как есть.
func (r *Registry) Evaluate(ctx context.Context, node *engine.Node, bundle domain.Bundle) (outputs []domain.Bundle, err error) {
	ev, err := r.Get(node.Kind())
	if err != nil {
		return nil, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			outputs = nil
			err = &UserCodeError{Stage: node.ID, Err: fmt.Errorf("panic: %v", rec)}
		}
		if err != nil {
			r.metrics.BundleFailed(node.ID)
			return
		}
		r.metrics.BundleProcessed(node.ID)
	}()

	outputs, err = ev.Evaluate(ctx, node, bundle)
	if err != nil {
		return nil, classifyError(node.ID, err)
	}

	if node.Kind() != domain.KindProcess {
		n := 0
		for _, b := range outputs {
			n += b.Len()
		}
		r.metrics.Outputs(node.ID, n)
	}

	return outputs, nil
}

// InitialInputs возвращает до n начальных bundle'ов корневой стадии.
func (r *Registry) InitialInputs(ctx context.Context, node *engine.Node, n int) (inputs []domain.Bundle, err error) {
	ev, err := r.Get(node.Kind())
	if err != nil {
		return nil, err
	}

	root, ok := ev.(RootEvaluator)
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotRoot, node.ID, node.Kind())
	}

	defer func() {
		if rec := recover(); rec != nil {
			inputs = nil
			err = &UserCodeError{Stage: node.ID, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	return root.InitialInputs(ctx, node, n)
}

// OnCleanup регистрирует действие, выполняемое в Cleanup.
func (r *Registry) OnCleanup(fn func() error) {
	r.cleanupMu.Lock()
	defer r.cleanupMu.Unlock()
	r.cleanups = append(r.cleanups, fn)
}

// Cleanup выполняет действия очистки в обратном порядке регистрации.
// Все ошибки собираются; повторный вызов ничего не делает.
func (r *Registry) Cleanup() error {
	r.cleanupMu.Lock()
	defer r.cleanupMu.Unlock()

	if r.cleaned {
		return nil
	}
	r.cleaned = true

	var errs []error
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		if err := r.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		r.logger.Warn("evaluator cleanup failed", "errors", len(errs))
	}
	return errors.Join(errs...)
}

// classifyError отделяет ошибки пользовательского кода от остальных.
func classifyError(stage string, err error) error {
	var uce *UserCodeError
	if errors.As(err, &uce) {
		return err
	}

	var fnErr *splittable.FnError
	if errors.As(err, &fnErr) {
		return &UserCodeError{Stage: stage, Err: err}
	}

	return fmt.Errorf("stage %s: %w", stage, err)
}

// stageCache — экземпляры функций по ID стадии.
type stageCache[T any] struct {
	mu    sync.Mutex
	items map[string]T
}

func newStageCache[T any]() *stageCache[T] {
	return &stageCache[T]{items: make(map[string]T)}
}

// get возвращает экземпляр для стадии, создавая его при первом обращении.
func (c *stageCache[T]) get(stageID string, create func() (T, error)) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.items[stageID]; ok {
		return v, nil
	}

	v, err := create()
	if err != nil {
		var zero T
		return zero, err
	}
	c.items[stageID] = v
	return v, nil
}
