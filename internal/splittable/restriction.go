package splittable

import (
	"encoding/json"
	"fmt"
)

// Restriction — непрозрачное описание оставшейся работы над элементом.
// Должна кодироваться детерминированно своим RestrictionCoder.
type Restriction any

// Tracker — объект одного вызова, оборачивающий restriction.
//
// Tracker никогда не сохраняется: сохраняется только остаток,
// полученный через Checkpoint.
type Tracker interface {
	// CurrentRestriction возвращает текущую (возможно, урезанную) restriction.
	CurrentRestriction() Restriction

	// TryClaim заявляет позицию. false означает "остановись": позиция
	// за пределами restriction или после checkpoint.
	TryClaim(position any) bool

	// Checkpoint урезает текущую restriction до уже заявленной работы
	// и возвращает остаток. nil означает, что остатка нет.
	Checkpoint() (Restriction, error)

	// CheckDone проверяет, что вся работа текущей restriction выполнена.
	CheckDone() error
}

// ProgressReporter — опциональная возможность tracker'а.
type ProgressReporter interface {
	Progress() (done, remaining float64)
}

// RestrictionCoder кодирует restriction для хранения в state.
type RestrictionCoder interface {
	Encode(r Restriction) ([]byte, error)
	Decode(data []byte) (Restriction, error)
}

// JSONCoder — детерминированный JSON coder для restriction типа T.
//
// Структуры кодируются в порядке полей, поэтому вывод стабилен.
type JSONCoder[T any] struct{}

// Encode кодирует restriction. Тип должен совпадать с T.
func (JSONCoder[T]) Encode(r Restriction) ([]byte, error) {
	v, ok := r.(T)
	if !ok {
		var zero T
		return nil, fmt.Errorf("%w: got %T, want %T", ErrBadRestriction, r, zero)
	}
	return json.Marshal(v)
}

// Decode декодирует restriction типа T.
func (JSONCoder[T]) Decode(data []byte) (Restriction, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode restriction: %w", err)
	}
	return v, nil
}
