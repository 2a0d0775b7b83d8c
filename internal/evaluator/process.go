package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Flume/internal/domain"
	"github.com/shaiso/Flume/internal/engine"
	"github.com/shaiso/Flume/internal/splittable"
	"github.com/shaiso/Flume/internal/state"
	"github.com/shaiso/Flume/internal/telemetry"
)

type processConfig struct {
	fns        FnSource
	backend    state.Backend
	maxOutputs int
	now        func() time.Time
	metrics    *telemetry.Metrics
	logger     *slog.Logger
}

// processEvaluator передаёт KeyedWorkItem'ы в Resumable Element Processor.
//
// Bundle приходит через serial lane (stage, key), поэтому вызовы
// процессора для одного ключа не пересекаются.
type processEvaluator struct {
	cfg        processConfig
	processors *stageCache[*splittable.Processor]
}

func newProcessEvaluator(cfg processConfig) *processEvaluator {
	return &processEvaluator{
		cfg:        cfg,
		processors: newStageCache[*splittable.Processor](),
	}
}

func (e *processEvaluator) Evaluate(ctx context.Context, node *engine.Node, bundle domain.Bundle) ([]domain.Bundle, error) {
	key, ok := bundle.Key()
	if !ok {
		return nil, fmt.Errorf("%w: bundle %s", ErrUnkeyedBundle, bundle.ID())
	}

	processor, err := e.processors.get(node.ID, func() (*splittable.Processor, error) {
		if e.cfg.backend == nil {
			return nil, errors.New("state backend is not configured")
		}
		fn, err := e.cfg.fns.Splittable(node.Stage.Fn, node.Stage.Config)
		if err != nil {
			return nil, err
		}
		return splittable.NewProcessor(splittable.ProcessorConfig{
			StageID:    node.ID,
			Fn:         fn,
			Backend:    e.cfg.backend,
			MaxOutputs: e.cfg.maxOutputs,
			Now:        e.cfg.now,
			Logger:     e.cfg.logger,
			Metrics:    e.cfg.metrics,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create processor: %w", err)
	}

	out := domain.NewBundle(node.ID)
	emit := func(wv domain.WindowedValue) { out.Add(wv) }

	for _, wv := range bundle.Elements() {
		item, ok := wv.Value.(domain.KeyedWorkItem)
		if !ok {
			return nil, fmt.Errorf("%w: got %T", ErrNotWorkItem, wv.Value)
		}
		if item.Key != key {
			return nil, fmt.Errorf("%w: %q in bundle for %q", ErrKeyMismatch, item.Key, key)
		}

		if _, err := processor.ProcessElement(ctx, item, emit); err != nil {
			return nil, err
		}
	}

	if out.Len() == 0 {
		return nil, nil
	}
	return []domain.Bundle{out.Commit(e.cfg.now())}, nil
}
