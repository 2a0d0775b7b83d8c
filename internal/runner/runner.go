package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Flume/internal/domain"
	"github.com/shaiso/Flume/internal/driver"
	"github.com/shaiso/Flume/internal/engine"
	"github.com/shaiso/Flume/internal/evaluator"
	"github.com/shaiso/Flume/internal/executor"
	"github.com/shaiso/Flume/internal/repo"
	"github.com/shaiso/Flume/internal/state"
	"github.com/shaiso/Flume/internal/telemetry"
	"github.com/shaiso/Flume/internal/transforms"
)

// Options — параметры запуска pipeline.
type Options struct {
	// Parallelism — размер пула (default: 4).
	Parallelism int

	// MaxOutputs — потолок выходов одного вызова splittable функции.
	MaxOutputs int

	// PollInterval — период опроса в WaitUntilFinish (default: 25ms).
	PollInterval time.Duration

	// StateBackend — имя backend'а состояния (default: memory).
	StateBackend string

	// State — параметры подключения backend'а. Scope и префикс Redis
	// дополняются идентификатором pipeline.
	State state.Config

	// Backends — реестр backend'ов (по умолчанию memory, redis, postgres).
	// Открытые через него backend'ы закрываются при остановке pipeline.
	Backends *state.Registry

	// Functions — пользовательские функции (default: transforms.DefaultRegistry()).
	Functions *transforms.Registry

	// Observers — получатели обновлений pipeline (например, mq.Publisher).
	Observers []executor.UpdateObserver

	// Now — часы processing time.
	Now func() time.Time

	// Metrics — метрики (опционально).
	Metrics *telemetry.Metrics

	// Logger — логгер.
	Logger *slog.Logger
}

// Pipeline — запущенный pipeline.
type Pipeline struct {
	id        string
	name      string
	startedAt time.Time
	exec      *executor.Executor
}

// ID возвращает идентификатор pipeline.
func (p *Pipeline) ID() string { return p.id }

// Name возвращает имя из PipelineSpec.
func (p *Pipeline) Name() string { return p.name }

// StartedAt возвращает время запуска.
func (p *Pipeline) StartedAt() time.Time { return p.startedAt }

// State возвращает текущее состояние.
func (p *Pipeline) State() domain.PipelineState { return p.exec.State() }

// WaitUntilFinish ждёт терминального состояния.
func (p *Pipeline) WaitUntilFinish(ctx context.Context) (domain.PipelineState, error) {
	return p.exec.WaitUntilFinish(ctx)
}

// Stop отменяет pipeline.
func (p *Pipeline) Stop() { p.exec.Stop() }

// LanesCreated возвращает число созданных serial lanes.
func (p *Pipeline) LanesCreated() int64 { return p.exec.LanesCreated() }

// ActiveLanes возвращает число живых serial lanes.
func (p *Pipeline) ActiveLanes() int { return p.exec.ActiveLanes() }

// NewBackendRegistry возвращает реестр со всеми встроенными backend'ами.
func NewBackendRegistry() *state.Registry {
	reg := state.NewRegistry()
	reg.Register(state.BackendPostgres, repo.OpenStateRepo)
	return reg
}

// Check проверяет PipelineSpec и наличие всех функций в реестре.
func Check(spec *domain.PipelineSpec, fns *transforms.Registry) error {
	if err := engine.Validate(spec); err != nil {
		return err
	}
	if fns == nil {
		fns = transforms.DefaultRegistry()
	}

	for i := range spec.Stages {
		stage := &spec.Stages[i]

		var ok bool
		switch stage.Kind {
		case domain.KindCreate:
			ok = fns.HasRoot(stage.Fn)
		case domain.KindParDo:
			ok = fns.HasDo(stage.Fn)
		case domain.KindSplit, domain.KindProcess:
			ok = fns.HasSplittable(stage.Fn)
		default:
			ok = true
		}

		if !ok {
			return engine.NewValidationError(stage.ID, "fn",
				fmt.Sprintf("%s stage uses unregistered function %q", stage.Kind, stage.Fn), ErrUnknownFunction)
		}
	}

	return nil
}

// Run проверяет spec, собирает компоненты и запускает pipeline.
//
// Возвращённый Pipeline уже выполняется; итог ждут через WaitUntilFinish.
// Отмена ctx равносильна Stop.
func Run(ctx context.Context, spec *domain.PipelineSpec, opts Options) (*Pipeline, error) {
	if opts.Functions == nil {
		opts.Functions = transforms.DefaultRegistry()
	}
	if opts.Backends == nil {
		opts.Backends = NewBackendRegistry()
	}
	if opts.StateBackend == "" {
		opts.StateBackend = state.BackendMemory
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if err := Check(spec, opts.Functions); err != nil {
		return nil, fmt.Errorf("check pipeline: %w", err)
	}

	graph, err := engine.BuildGraph(spec)
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	keyed, err := engine.ClassifyKeyed(graph)
	if err != nil {
		return nil, fmt.Errorf("classify keyed: %w", err)
	}

	id := uuid.NewString()
	logger := telemetry.WithPipelineID(telemetry.Component(opts.Logger, "runner"), id)

	// Состояние нужно только стадиям process
	var backend state.Backend
	if len(graph.NodesOfKind(domain.KindProcess)) > 0 {
		backend, err = opts.Backends.Open(ctx, opts.StateBackend, scoped(opts.State, id))
		if err != nil {
			return nil, err
		}
	}

	evals := evaluator.NewRegistry(evaluator.Config{
		Functions:  opts.Functions,
		Backend:    backend,
		MaxOutputs: opts.MaxOutputs,
		Now:        opts.Now,
		Metrics:    opts.Metrics,
		Logger:     opts.Logger,
	})
	// Cleanup идёт в обратном порядке: сначала очистка, потом закрытие
	evals.OnCleanup(opts.Backends.Close)
	if purger, ok := backend.(interface{ Purge(context.Context) error }); ok {
		evals.OnCleanup(func() error { return purger.Purge(context.Background()) })
	}

	exec, err := executor.New(executor.Config{
		ID:          id,
		Parallelism: opts.Parallelism,
		Evaluator:   evals,
		NewDriver: driver.Factory(driver.Config{
			Graph:   graph,
			Backend: backend,
			Now:     opts.Now,
			Logger:  opts.Logger,
		}),
		Observers:    opts.Observers,
		PollInterval: opts.PollInterval,
		Metrics:      opts.Metrics,
		Logger:       opts.Logger,
	})
	if err != nil {
		_ = evals.Cleanup()
		return nil, err
	}

	p := &Pipeline{
		id:        id,
		name:      spec.Name,
		startedAt: opts.Now(),
		exec:      exec,
	}

	if err := exec.Start(ctx, graph, keyed); err != nil {
		return nil, err
	}

	logger.Info("pipeline started", "name", spec.Name, "stages", graph.Size(), "keyed_collections", len(keyed))
	return p, nil
}

// scoped изолирует состояние pipeline внутри общего хранилища.
func scoped(cfg state.Config, id string) state.Config {
	cfg.Scope = id
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = state.DefaultRedisPrefix
	}
	cfg.RedisPrefix = cfg.RedisPrefix + ":" + id
	return cfg
}
