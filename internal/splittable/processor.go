package splittable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Flume/internal/domain"
	"github.com/shaiso/Flume/internal/state"
	"github.com/shaiso/Flume/internal/telemetry"
)

// ResumeTimerID — ID processing-time таймера продолжения.
const ResumeTimerID = "sdf-resume"

// ProcessorConfig — конфигурация Processor.
type ProcessorConfig struct {
	// StageID — стадия, от имени которой хранится состояние.
	StageID string

	// Fn — пользовательская splittable функция.
	Fn Fn

	// Backend — хранилище состояния и таймеров.
	Backend state.Backend

	// MaxOutputs — потолок выходов одного вызова (по умолчанию 10000).
	MaxOutputs int

	// Now — часы processing time (по умолчанию time.Now).
	Now func() time.Time

	// Logger — логгер.
	Logger *slog.Logger

	// Metrics — метрики (опционально).
	Metrics *telemetry.Metrics
}

// Processor — Resumable Element Processor.
//
// Обрабатывает один KeyedWorkItem за вызов. Вызовы для одного ключа
// должны быть последовательными: это обеспечивает serial lane.
type Processor struct {
	stageID    string
	fn         Fn
	backend    state.Backend
	maxOutputs int
	now        func() time.Time
	logger     *slog.Logger
	metrics    *telemetry.Metrics
}

// Result — итог одного вызова ProcessElement.
type Result struct {
	// Key — ключ work item'а.
	Key string

	// Seed — true для первой доставки.
	Seed bool

	// Phase — PhaseResidual или PhaseComplete.
	Phase domain.WorkItemPhase

	// Outputs — количество выданных элементов.
	Outputs int

	// ForcedCheckpoint — checkpoint был вызван потолком выходов.
	ForcedCheckpoint bool

	// Residual — остаток (nil для PhaseComplete).
	Residual Restriction

	// ResumeAt — время срабатывания таймера продолжения.
	ResumeAt time.Time
}

// NewProcessor создаёт Processor.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if cfg.Fn == nil {
		return nil, errors.New("processor: fn is required")
	}
	if cfg.Backend == nil {
		return nil, errors.New("processor: backend is required")
	}
	if cfg.MaxOutputs <= 0 {
		cfg.MaxOutputs = DefaultMaxOutputs
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Processor{
		stageID:    cfg.StageID,
		fn:         cfg.Fn,
		backend:    cfg.Backend,
		maxOutputs: cfg.MaxOutputs,
		now:        cfg.Now,
		logger:     telemetry.Component(cfg.Logger, "processor").With("stage", cfg.StageID),
		metrics:    cfg.Metrics,
	}, nil
}

// ProcessElement выполняет одну попытку над work item'ом.
//
// Seed-доставка сохраняет элемент, resume-доставка читает элемент и
// остаток из состояния. После вызова функции либо всё состояние
// очищается (работы не осталось), либо одним Commit записываются
// остаток, hold и таймер продолжения.
func (p *Processor) ProcessElement(ctx context.Context, item domain.KeyedWorkItem, emit func(domain.WindowedValue)) (Result, error) {
	result := Result{Key: item.Key}
	target := domain.StepAndKey{StageID: p.stageID, Key: item.Key}

	// 1. Классифицируем доставку
	timer, err := classify(item)
	if err != nil {
		return result, fmt.Errorf("work item %s: %w", item.Key, err)
	}
	result.Seed = timer == nil

	// 2. Получаем элемент и restriction
	var (
		element     domain.WindowedValue
		restriction Restriction
		namespace   string
	)

	if result.Seed {
		namespace = state.GlobalNamespace
		element, restriction, err = p.seed(ctx, target, item.Elements)
	} else {
		namespace = timer.Namespace
		element, restriction, err = p.restore(ctx, target, namespace)
	}
	if err != nil {
		return result, err
	}

	// 3. Tracker на restriction
	tracker, err := p.newTracker(restriction)
	if err != nil {
		return result, err
	}

	// 4. Вызов функции с потолком выходов
	var (
		residual      Restriction
		forced        bool
		checkpointErr error
	)
	sink := NewOutputSink(element, p.maxOutputs, emit, func() {
		forced = true
		residual, checkpointErr = tracker.Checkpoint()
	})

	cont, err := p.invoke(ctx, &ProcessContext{element: element, sink: sink}, tracker)
	result.Outputs = sink.Count()
	result.ForcedCheckpoint = forced
	p.metrics.Outputs(p.stageID, result.Outputs)
	if err != nil {
		return result, err
	}
	if checkpointErr != nil {
		return result, &FnError{Op: "checkpoint", Err: checkpointErr}
	}

	// 5. Защитный checkpoint, если потолок не был достигнут
	if !forced {
		residual, err = tracker.Checkpoint()
		if err != nil {
			return result, &FnError{Op: "checkpoint", Err: err}
		}
		if !cont.ShouldResume() && residual != nil {
			return result, fmt.Errorf("work item %s: %w", item.Key, ErrResidualOnDone)
		}
	}
	if err := tracker.CheckDone(); err != nil {
		return result, &FnError{Op: "check_done", Err: err}
	}

	// 6. Работы не осталось: очищаем всё состояние
	if residual == nil {
		err := p.backend.Commit(ctx, target, namespace, state.Mutation{
			Clears:    []string{state.CellElement, state.CellRestriction},
			ClearHold: true,
		})
		if err != nil {
			return result, fmt.Errorf("clear state %s: %w", target, err)
		}

		result.Phase = domain.PhaseComplete
		p.metrics.Completion(p.stageID)
		p.logger.Debug("work item complete", "key", item.Key, "outputs", result.Outputs)
		return result, nil
	}

	// 7. Остаток, hold и таймер одним коммитом
	encoded, err := p.fn.RestrictionCoder().Encode(residual)
	if err != nil {
		return result, fmt.Errorf("encode residual %s: %w", target, err)
	}

	hold := element.Timestamp
	if wm, ok := cont.Watermark(); ok {
		hold = wm
	}

	// Функция не видела принудительный checkpoint: продолжаем сразу
	delay := time.Duration(0)
	if cont.ShouldResume() {
		delay = cont.Delay()
	}
	resumeAt := p.now().Add(delay)

	err = p.backend.Commit(ctx, target, namespace, state.Mutation{
		Writes:  map[string][]byte{state.CellRestriction: encoded},
		AddHold: &hold,
		SetTimer: &domain.TimerData{
			Namespace: namespace,
			TimerID:   ResumeTimerID,
			FireAt:    resumeAt,
			Domain:    domain.ProcessingTime,
		},
	})
	if err != nil {
		return result, fmt.Errorf("save residual %s: %w", target, err)
	}

	result.Phase = domain.PhaseResidual
	result.Residual = residual
	result.ResumeAt = resumeAt
	p.metrics.Checkpoint(p.stageID)
	p.logger.Debug("work item checkpointed",
		"key", item.Key,
		"outputs", result.Outputs,
		"forced", forced,
		"resume_at", resumeAt,
	)

	return result, nil
}

// classify возвращает таймер для resume-доставки и nil для seed.
func classify(item domain.KeyedWorkItem) (*domain.TimerData, error) {
	switch {
	case len(item.Timers) > 1:
		return nil, ErrMultipleTimers
	case len(item.Timers) == 1 && len(item.Elements) > 0:
		return nil, ErrMixedWorkItem
	case len(item.Timers) == 1:
		timer := item.Timers[0]
		return &timer, nil
	case len(item.Elements) > 0:
		return nil, nil
	default:
		return nil, ErrEmptyWorkItem
	}
}

// seed сливает окна копий пары и сохраняет элемент до вызова функции.
func (p *Processor) seed(ctx context.Context, target domain.StepAndKey, elements []domain.WindowedValue) (domain.WindowedValue, Restriction, error) {
	imploded := implodeWindows(elements)

	pair, ok := imploded.Value.(ElementAndRestriction)
	if !ok {
		return domain.WindowedValue{}, nil, fmt.Errorf("%w: got %T", ErrBadSeed, imploded.Value)
	}

	element := imploded.WithValue(pair.Element)

	data, err := json.Marshal(element)
	if err != nil {
		return domain.WindowedValue{}, nil, fmt.Errorf("encode element %s: %w", target, err)
	}

	// Повторная запись при retry идемпотентна
	err = p.backend.Commit(ctx, target, state.GlobalNamespace, state.Mutation{
		Writes: map[string][]byte{state.CellElement: data},
	})
	if err != nil {
		return domain.WindowedValue{}, nil, fmt.Errorf("save element %s: %w", target, err)
	}

	return element, pair.Restriction, nil
}

// storedElement — элемент в state: значение декодируется отдельно.
type storedElement struct {
	Value     json.RawMessage `json:"value"`
	Timestamp time.Time       `json:"timestamp"`
	Windows   []domain.Window `json:"windows"`
	Pane      domain.Pane     `json:"pane"`
}

// restore читает элемент и остаток для resume-доставки.
func (p *Processor) restore(ctx context.Context, target domain.StepAndKey, namespace string) (domain.WindowedValue, Restriction, error) {
	elemData, ok, err := p.backend.Read(ctx, target, namespace, state.CellElement)
	if err != nil {
		return domain.WindowedValue{}, nil, fmt.Errorf("read element %s: %w", target, err)
	}
	if !ok {
		return domain.WindowedValue{}, nil, fmt.Errorf("%s element: %w", target, ErrMissingState)
	}

	restrData, ok, err := p.backend.Read(ctx, target, namespace, state.CellRestriction)
	if err != nil {
		return domain.WindowedValue{}, nil, fmt.Errorf("read restriction %s: %w", target, err)
	}
	if !ok {
		return domain.WindowedValue{}, nil, fmt.Errorf("%s restriction: %w", target, ErrMissingState)
	}

	var stored storedElement
	if err := json.Unmarshal(elemData, &stored); err != nil {
		return domain.WindowedValue{}, nil, fmt.Errorf("decode element %s: %w", target, err)
	}

	value, err := decodeElement(p.fn, stored.Value)
	if err != nil {
		return domain.WindowedValue{}, nil, &FnError{Op: "decode_element", Err: err}
	}

	restriction, err := p.fn.RestrictionCoder().Decode(restrData)
	if err != nil {
		return domain.WindowedValue{}, nil, fmt.Errorf("decode restriction %s: %w", target, err)
	}

	element := domain.WindowedValue{
		Value:     value,
		Timestamp: stored.Timestamp,
		Windows:   stored.Windows,
		Pane:      stored.Pane,
	}

	return element, restriction, nil
}

func (p *Processor) newTracker(r Restriction) (tracker Tracker, err error) {
	defer recoverFn("new_tracker", &err)

	tracker, err = p.fn.NewTracker(r)
	if err != nil {
		return nil, &FnError{Op: "new_tracker", Err: err}
	}
	return tracker, nil
}

func (p *Processor) invoke(ctx context.Context, pc *ProcessContext, tracker Tracker) (cont Continuation, err error) {
	defer recoverFn("process_element", &err)

	cont, err = p.fn.ProcessElement(ctx, pc, tracker)
	if err != nil {
		return Continuation{}, &FnError{Op: "process_element", Err: err}
	}
	return cont, nil
}

// implodeWindows собирает копии одной пары в разных окнах в один элемент.
// Timestamp и pane берутся у первой копии.
func implodeWindows(values []domain.WindowedValue) domain.WindowedValue {
	first := values[0]

	windows := make([]domain.Window, 0, len(values))
	for _, v := range values {
		windows = append(windows, v.Windows...)
	}

	return domain.WindowedValue{
		Value:     first.Value,
		Timestamp: first.Timestamp,
		Windows:   windows,
		Pane:      first.Pane,
	}
}
