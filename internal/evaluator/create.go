package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Flume/internal/domain"
	"github.com/shaiso/Flume/internal/engine"
	"github.com/shaiso/Flume/internal/transforms"
)

// RootCollection возвращает имя коллекции начальных входов корневой стадии.
func RootCollection(stageID string) string {
	return "root:" + stageID
}

// createEvaluator — корневая стадия. Элементы источника раскладываются
// по начальным bundle'ам, Evaluate переносит их в выходную коллекцию.
type createEvaluator struct {
	fns   FnSource
	roots *stageCache[transforms.RootFn]
	now   func() time.Time
}

func newCreateEvaluator(fns FnSource, now func() time.Time) *createEvaluator {
	return &createEvaluator{
		fns:   fns,
		roots: newStageCache[transforms.RootFn](),
		now:   now,
	}
}

// InitialInputs раскладывает элементы источника round-robin по n bundle'ам.
// Пустых bundle'ов не бывает: при малом числе элементов их меньше n.
func (e *createEvaluator) InitialInputs(ctx context.Context, node *engine.Node, n int) ([]domain.Bundle, error) {
	if !node.Kind().IsRoot() {
		return nil, fmt.Errorf("%w: %s", ErrNotRoot, node.ID)
	}
	if n < 1 {
		n = 1
	}

	fn, err := e.roots.get(node.ID, func() (transforms.RootFn, error) {
		return e.fns.Root(node.Stage.Fn, node.Stage.Config)
	})
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", node.ID, err)
	}

	elements, err := fn.Elements(ctx)
	if err != nil {
		return nil, &UserCodeError{Stage: node.ID, Err: err}
	}

	shards := make([]*domain.UncommittedBundle, min(n, len(elements)))
	for i := range shards {
		shards[i] = domain.NewBundle(RootCollection(node.ID))
	}
	for i, v := range elements {
		shards[i%len(shards)].Add(domain.ValueInGlobalWindow(v))
	}

	now := e.now()
	out := make([]domain.Bundle, 0, len(shards))
	for _, s := range shards {
		out = append(out, s.Commit(now))
	}
	return out, nil
}

// Evaluate переносит элементы начального bundle'а в коллекцию стадии.
func (e *createEvaluator) Evaluate(_ context.Context, node *engine.Node, bundle domain.Bundle) ([]domain.Bundle, error) {
	if bundle.IsEmpty() {
		return nil, nil
	}

	out := domain.NewBundle(node.ID)
	for _, wv := range bundle.Elements() {
		out.Add(wv)
	}
	return []domain.Bundle{out.Commit(e.now())}, nil
}
