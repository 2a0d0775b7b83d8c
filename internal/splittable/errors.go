package splittable

import "errors"

// Нарушения контракта.
var (
	// ErrMultipleTimers — work item содержит больше одного таймера.
	ErrMultipleTimers = errors.New("work item has more than one timer")

	// ErrEmptyWorkItem — work item без элементов и без таймеров.
	ErrEmptyWorkItem = errors.New("work item has neither elements nor timers")

	// ErrMixedWorkItem — work item содержит и элементы, и таймер.
	ErrMixedWorkItem = errors.New("work item has both elements and timers")

	// ErrEmptySplit — SplitRestriction вернул ноль частей.
	ErrEmptySplit = errors.New("restriction split produced no parts")

	// ErrResidualOnDone — функция вернула Done, но работа осталась.
	ErrResidualOnDone = errors.New("fn returned done with a non-empty residual")

	// ErrMissingState — resume без сохранённого элемента или restriction.
	ErrMissingState = errors.New("no saved state for resumed work item")
)

// Ошибки tracker'а.
var (
	// ErrClaimBeforeStart — позиция меньше начала диапазона.
	ErrClaimBeforeStart = errors.New("claimed position before range start")

	// ErrNonMonotonicClaim — позиции должны строго возрастать.
	ErrNonMonotonicClaim = errors.New("claimed positions must be strictly increasing")

	// ErrUnfinishedRange — в диапазоне осталась незаявленная работа.
	ErrUnfinishedRange = errors.New("restriction range was not fully processed")

	// ErrBadPosition — позиция неподходящего типа.
	ErrBadPosition = errors.New("position has unsupported type")

	// ErrBadRestriction — restriction неподходящего типа.
	ErrBadRestriction = errors.New("restriction has unsupported type")
)

// ErrBadSeed — seed-элемент не является ElementAndRestriction.
var ErrBadSeed = errors.New("seed element is not an element/restriction pair")

// FnError — ошибка пользовательской функции (включая панику).
//
// Отличает сбой пользовательского кода от нарушений контракта
// и ошибок хранилища.
type FnError struct {
	Op  string // вызванный метод функции
	Err error  // исходная ошибка
}

// Error реализует интерфейс error.
func (e *FnError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap возвращает исходную ошибку.
func (e *FnError) Unwrap() error {
	return e.Err
}
