package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Flume/internal/domain"
	"github.com/shaiso/Flume/internal/engine"
	"github.com/shaiso/Flume/internal/transforms"
)

// parDoEvaluator применяет DoFn к каждому элементу bundle'а.
// Выход не keyed, даже если вход был keyed.
type parDoEvaluator struct {
	fns *stageCache[transforms.DoFn]
	src FnSource
	now func() time.Time
}

func newParDoEvaluator(src FnSource, now func() time.Time) *parDoEvaluator {
	return &parDoEvaluator{
		fns: newStageCache[transforms.DoFn](),
		src: src,
		now: now,
	}
}

func (e *parDoEvaluator) Evaluate(ctx context.Context, node *engine.Node, bundle domain.Bundle) ([]domain.Bundle, error) {
	fn, err := e.fns.get(node.ID, func() (transforms.DoFn, error) {
		return e.src.Do(node.Stage.Fn, node.Stage.Config)
	})
	if err != nil {
		return nil, fmt.Errorf("create fn: %w", err)
	}

	out := domain.NewBundle(node.ID)
	for _, wv := range bundle.Elements() {
		emit := func(v any) { out.Add(wv.WithValue(v)) }
		if err := fn.ProcessElement(ctx, wv, emit); err != nil {
			return nil, &UserCodeError{Stage: node.ID, Err: err}
		}
	}

	if out.Len() == 0 {
		return nil, nil
	}
	return []domain.Bundle{out.Commit(e.now())}, nil
}
