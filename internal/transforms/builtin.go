package transforms

import (
	"context"
	"fmt"

	"github.com/shaiso/Flume/internal/domain"
)

// Range — источник чисел [start, start+count).
//
// Конфигурация:
//
//	{"count": 1000, "start": 0}
type Range struct {
	Start int64
	Count int64
}

// NewRange создаёт Range из конфигурации.
func NewRange(cfg map[string]any) (RootFn, error) {
	count, err := ConfigInt64(cfg, "count", 0)
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: count must not be negative", ErrInvalidConfig)
	}
	start, err := ConfigInt64(cfg, "start", 0)
	if err != nil {
		return nil, err
	}
	return &Range{Start: start, Count: count}, nil
}

// Elements возвращает числа диапазона как int64.
func (r *Range) Elements(_ context.Context) ([]any, error) {
	out := make([]any, 0, r.Count)
	for i := int64(0); i < r.Count; i++ {
		out = append(out, r.Start+i)
	}
	return out, nil
}

// KeyedRange — источник KV{prefix+(i mod keys), i} для i в [0, count).
//
// Конфигурация:
//
//	{"count": 1000, "keys": 10, "prefix": "key-"}
type KeyedRange struct {
	Count  int64
	Keys   int64
	Prefix string
}

// NewKeyedRange создаёт KeyedRange из конфигурации.
func NewKeyedRange(cfg map[string]any) (RootFn, error) {
	count, err := ConfigInt64(cfg, "count", 0)
	if err != nil {
		return nil, err
	}
	keys, err := ConfigInt64(cfg, "keys", 1)
	if err != nil {
		return nil, err
	}
	if count < 0 || keys <= 0 {
		return nil, fmt.Errorf("%w: count must not be negative and keys must be positive", ErrInvalidConfig)
	}
	return &KeyedRange{
		Count:  count,
		Keys:   keys,
		Prefix: ConfigString(cfg, "prefix", "key-"),
	}, nil
}

// Elements возвращает KV элементы.
func (r *KeyedRange) Elements(_ context.Context) ([]any, error) {
	out := make([]any, 0, r.Count)
	for i := int64(0); i < r.Count; i++ {
		out = append(out, domain.KV{
			Key:   fmt.Sprintf("%s%d", r.Prefix, i%r.Keys),
			Value: i,
		})
	}
	return out, nil
}

// NewIdentity возвращает DoFn, выдающую элемент без изменений.
func NewIdentity(_ map[string]any) (DoFn, error) {
	return DoFunc(func(_ context.Context, wv domain.WindowedValue, emit func(any)) error {
		emit(wv.Value)
		return nil
	}), nil
}

// NewExplodeValues возвращает DoFn, разворачивающую выход group_by_key:
// KV{k, [v1, v2, ...]} → KV{k, v1}, KV{k, v2}, ...
func NewExplodeValues(_ map[string]any) (DoFn, error) {
	return DoFunc(func(_ context.Context, wv domain.WindowedValue, emit func(any)) error {
		kv, values, err := groupedValues(wv)
		if err != nil {
			return err
		}
		for _, v := range values {
			emit(domain.KV{Key: kv.Key, Value: v})
		}
		return nil
	}), nil
}

// NewCountValues возвращает DoFn: KV{k, [v...]} → KV{k, len}.
func NewCountValues(_ map[string]any) (DoFn, error) {
	return DoFunc(func(_ context.Context, wv domain.WindowedValue, emit func(any)) error {
		kv, values, err := groupedValues(wv)
		if err != nil {
			return err
		}
		emit(domain.KV{Key: kv.Key, Value: int64(len(values))})
		return nil
	}), nil
}

func groupedValues(wv domain.WindowedValue) (domain.KV, []any, error) {
	kv, ok := wv.Value.(domain.KV)
	if !ok {
		return domain.KV{}, nil, fmt.Errorf("%w: expected KV, got %T", ErrUnexpectedElement, wv.Value)
	}
	values, ok := kv.Value.([]any)
	if !ok {
		return domain.KV{}, nil, fmt.Errorf("%w: expected grouped values, got %T", ErrUnexpectedElement, kv.Value)
	}
	return kv, values, nil
}
