package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Flume/internal/domain"
	"github.com/shaiso/Flume/internal/engine"
)

// groupByKeyEvaluator собирает значения одного ключа.
//
// Буферизацию до окончания входа выполняет driver: сюда приходит
// уже полный keyed bundle для одного ключа. Выход —
// KV{key, []any{values...}} с минимальным timestamp'ом входа.
type groupByKeyEvaluator struct {
	now func() time.Time
}

func newGroupByKeyEvaluator(now func() time.Time) *groupByKeyEvaluator {
	return &groupByKeyEvaluator{now: now}
}

func (e *groupByKeyEvaluator) Evaluate(_ context.Context, node *engine.Node, bundle domain.Bundle) ([]domain.Bundle, error) {
	key, ok := bundle.Key()
	if !ok {
		return nil, fmt.Errorf("%w: bundle %s", ErrUnkeyedBundle, bundle.ID())
	}
	if bundle.IsEmpty() {
		return nil, nil
	}

	values := make([]any, 0, bundle.Len())
	ts := domain.MaxTimestamp
	for _, wv := range bundle.Elements() {
		kv, ok := wv.Value.(domain.KV)
		if !ok {
			return nil, fmt.Errorf("%w: got %T", ErrNotKV, wv.Value)
		}
		if kv.Key != key {
			return nil, fmt.Errorf("%w: %q in bundle for %q", ErrKeyMismatch, kv.Key, key)
		}
		values = append(values, kv.Value)
		if wv.Timestamp.Before(ts) {
			ts = wv.Timestamp
		}
	}

	out := domain.NewKeyedBundle(node.ID, key).
		Add(domain.TimestampedValue(domain.KV{Key: key, Value: values}, ts))
	return []domain.Bundle{out.Commit(e.now())}, nil
}
