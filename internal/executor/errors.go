package executor

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки исполнителя.
var (
	// ErrPoolClosed — пул остановлен и не принимает задачи.
	ErrPoolClosed = errors.New("pool is shut down")

	// ErrAlreadyStarted — Start вызван повторно.
	ErrAlreadyStarted = errors.New("executor already started")

	// ErrNoDriver — не задана фабрика driver'а.
	ErrNoDriver = errors.New("driver factory is required")

	// ErrNoEvaluator — не задан evaluator.
	ErrNoEvaluator = errors.New("evaluator is required")
)

// PipelineError — несколько сбоев одного pipeline.
//
// Cause — первый сбой, остальные в Suppressed.
type PipelineError struct {
	Cause      error
	Suppressed []error
}

// Error реализует интерфейс error.
func (e *PipelineError) Error() string {
	if len(e.Suppressed) == 0 {
		return e.Cause.Error()
	}
	return fmt.Sprintf("%v (and %d more)", e.Cause, len(e.Suppressed))
}

// Unwrap возвращает причину и подавленные ошибки.
func (e *PipelineError) Unwrap() []error {
	return append([]error{e.Cause}, e.Suppressed...)
}

// ShutdownError — ошибки, собранные при остановке.
type ShutdownError struct {
	Errs []error
}

// Error реализует интерфейс error.
func (e *ShutdownError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return "shutdown: " + strings.Join(msgs, "; ")
}

// Unwrap возвращает собранные ошибки.
func (e *ShutdownError) Unwrap() []error {
	return e.Errs
}

// chainFailures возвращает единственную ошибку как есть,
// а несколько — как PipelineError.
func chainFailures(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return &PipelineError{Cause: errs[0], Suppressed: errs[1:]}
	}
}
