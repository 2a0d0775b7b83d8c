package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Flume/internal/domain"
	"github.com/shaiso/Flume/internal/engine"
	"github.com/shaiso/Flume/internal/splittable"
)

// splitEvaluator — стадия split: restriction, разбиение и уникальные ключи.
type splitEvaluator struct {
	src       FnSource
	splitters *stageCache[*splittable.Splitter]
	now       func() time.Time
}

func newSplitEvaluator(src FnSource, now func() time.Time) *splitEvaluator {
	return &splitEvaluator{
		src:       src,
		splitters: newStageCache[*splittable.Splitter](),
		now:       now,
	}
}

func (e *splitEvaluator) Evaluate(_ context.Context, node *engine.Node, bundle domain.Bundle) ([]domain.Bundle, error) {
	splitter, err := e.splitters.get(node.ID, func() (*splittable.Splitter, error) {
		fn, err := e.src.Splittable(node.Stage.Fn, node.Stage.Config)
		if err != nil {
			return nil, err
		}
		return splittable.NewSplitter(fn), nil
	})
	if err != nil {
		return nil, fmt.Errorf("create fn: %w", err)
	}

	out := domain.NewBundle(node.ID)
	for _, wv := range bundle.Elements() {
		pairs, err := splitter.Split(wv)
		if err != nil {
			return nil, err
		}
		for _, p := range pairs {
			out.Add(p)
		}
	}

	if out.Len() == 0 {
		return nil, nil
	}
	return []domain.Bundle{out.Commit(e.now())}, nil
}

// groupWorkItemsEvaluator группирует пары по уникальному ключу.
//
// Группировка не ждёт окончания входа: ключи свежие, поэтому все копии
// пары приходят в одном bundle'е. Выход — один keyed bundle на ключ
// с KeyedWorkItem в глобальном окне.
type groupWorkItemsEvaluator struct {
	now func() time.Time
}

func newGroupWorkItemsEvaluator(now func() time.Time) *groupWorkItemsEvaluator {
	return &groupWorkItemsEvaluator{now: now}
}

func (e *groupWorkItemsEvaluator) Evaluate(_ context.Context, node *engine.Node, bundle domain.Bundle) ([]domain.Bundle, error) {
	items, err := splittable.GroupIntoKeyedWorkItems(bundle.Elements())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotKV, err)
	}

	now := e.now()
	out := make([]domain.Bundle, 0, len(items))
	for _, item := range items {
		b := domain.NewKeyedBundle(node.ID, item.Key).Add(domain.ValueInGlobalWindow(item))
		out = append(out, b.Commit(now))
	}
	return out, nil
}
