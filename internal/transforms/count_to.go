package transforms

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shaiso/Flume/internal/splittable"
)

// CountTo — splittable функция: для элемента n выдаёт позиции [0, n).
//
// Конфигурация:
//
//	{"parts": 4, "per_call": 100, "delay_ms": 10}
//
// parts делит начальный диапазон на части (каждая получает свой ключ).
// per_call ограничивает число позиций за вызов: после него функция
// просит продолжения через delay.
type CountTo struct {
	Parts   int64
	PerCall int64
	Delay   time.Duration
}

// NewCountTo создаёт CountTo из конфигурации.
func NewCountTo(cfg map[string]any) (splittable.Fn, error) {
	parts, err := ConfigInt64(cfg, "parts", 1)
	if err != nil {
		return nil, err
	}
	perCall, err := ConfigInt64(cfg, "per_call", 0)
	if err != nil {
		return nil, err
	}
	delay, err := ConfigDuration(cfg, "delay")
	if err != nil {
		return nil, err
	}
	if parts <= 0 || perCall < 0 {
		return nil, fmt.Errorf("%w: parts must be positive and per_call must not be negative", ErrInvalidConfig)
	}
	return &CountTo{Parts: parts, PerCall: perCall, Delay: delay}, nil
}

// InitialRestriction возвращает [0, n).
func (f *CountTo) InitialRestriction(element any) (splittable.Restriction, error) {
	n, err := asInt64(element)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: negative count %d", ErrUnexpectedElement, n)
	}
	return splittable.OffsetRange{From: 0, To: n}, nil
}

// SplitRestriction делит диапазон на Parts примерно равных частей.
func (f *CountTo) SplitRestriction(_ any, r splittable.Restriction) ([]splittable.Restriction, error) {
	rng, ok := r.(splittable.OffsetRange)
	if !ok {
		return nil, splittable.ErrBadRestriction
	}
	if f.Parts <= 1 || rng.Size() <= 1 {
		return []splittable.Restriction{rng}, nil
	}

	size := (rng.Size() + f.Parts - 1) / f.Parts
	parts := rng.Split(size)
	out := make([]splittable.Restriction, 0, len(parts))
	for _, p := range parts {
		out = append(out, p)
	}
	return out, nil
}

// NewTracker создаёт OffsetRangeTracker.
func (f *CountTo) NewTracker(r splittable.Restriction) (splittable.Tracker, error) {
	rng, ok := r.(splittable.OffsetRange)
	if !ok {
		return nil, splittable.ErrBadRestriction
	}
	return splittable.NewOffsetRangeTracker(rng), nil
}

// ProcessElement заявляет и выдаёт позиции по порядку.
func (f *CountTo) ProcessElement(ctx context.Context, pc *splittable.ProcessContext, tracker splittable.Tracker) (splittable.Continuation, error) {
	rng := tracker.CurrentRestriction().(splittable.OffsetRange)

	var claimed int64
	for pos := rng.From; ; pos++ {
		if f.PerCall > 0 && claimed == f.PerCall {
			return splittable.ResumeAfter(f.Delay), nil
		}
		if err := ctx.Err(); err != nil {
			return splittable.Continuation{}, err
		}
		if !tracker.TryClaim(pos) {
			return splittable.Done(), nil
		}
		pc.Output(pos)
		claimed++
	}
}

// RestrictionCoder кодирует OffsetRange в JSON.
func (f *CountTo) RestrictionCoder() splittable.RestrictionCoder {
	return splittable.JSONCoder[splittable.OffsetRange]{}
}

// DecodeElement восстанавливает n как int64.
func (f *CountTo) DecodeElement(data []byte) (any, error) {
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return n, nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n == float64(int64(n)) {
			return int64(n), nil
		}
	}
	return 0, fmt.Errorf("%w: expected integer, got %T", ErrUnexpectedElement, v)
}
