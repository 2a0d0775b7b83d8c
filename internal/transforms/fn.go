package transforms

import (
	"context"
	"errors"

	"github.com/shaiso/Flume/internal/domain"
	"github.com/shaiso/Flume/internal/splittable"
)

// Ошибки реестра функций.
var (
	// ErrFnNotFound — функция с таким именем не зарегистрирована.
	ErrFnNotFound = errors.New("function not found")

	// ErrInvalidConfig — невалидная конфигурация функции.
	ErrInvalidConfig = errors.New("invalid function config")

	// ErrUnexpectedElement — элемент неподходящего типа.
	ErrUnexpectedElement = errors.New("unexpected element type")
)

// RootFn — источник элементов для стадии create.
type RootFn interface {
	// Elements возвращает все элементы источника.
	Elements(ctx context.Context) ([]any, error)
}

// DoFn — поэлементное преобразование для стадии par_do.
//
// emit можно вызывать любое количество раз. Выходы получают
// timestamp, окна и pane входного элемента.
type DoFn interface {
	ProcessElement(ctx context.Context, wv domain.WindowedValue, emit func(any)) error
}

// RootFunc — адаптер функции к RootFn.
type RootFunc func(ctx context.Context) ([]any, error)

// Elements вызывает f.
func (f RootFunc) Elements(ctx context.Context) ([]any, error) { return f(ctx) }

// DoFunc — адаптер функции к DoFn.
type DoFunc func(ctx context.Context, wv domain.WindowedValue, emit func(any)) error

// ProcessElement вызывает f.
func (f DoFunc) ProcessElement(ctx context.Context, wv domain.WindowedValue, emit func(any)) error {
	return f(ctx, wv, emit)
}

// Фабрики создают экземпляр функции из Config стадии.
type (
	RootFactory       func(cfg map[string]any) (RootFn, error)
	DoFactory         func(cfg map[string]any) (DoFn, error)
	SplittableFactory func(cfg map[string]any) (splittable.Fn, error)
)
