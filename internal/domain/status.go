package domain

// PipelineState — состояние выполнения pipeline.
//
// Жизненный цикл:
//
//	RUNNING → DONE
//	        ↘ FAILED
//	        ↘ CANCELLED (Stop или внешний deadline)
//
// Первый переход в терминальное состояние выигрывает, повторные игнорируются.
type PipelineState string

const (
	// StateRunning — pipeline выполняется.
	StateRunning PipelineState = "RUNNING"

	// StateDone — все стадии достигли quiescence без ошибок.
	StateDone PipelineState = "DONE"

	// StateFailed — хотя бы один bundle завершился ошибкой.
	StateFailed PipelineState = "FAILED"

	// StateCancelled — pipeline остановлен пользователем.
	StateCancelled PipelineState = "CANCELLED"
)

// IsTerminal возвращает true, если состояние финальное.
func (s PipelineState) IsTerminal() bool {
	switch s {
	case StateDone, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление PipelineState.
func (s PipelineState) String() string {
	return string(s)
}

// DriverState — результат одного шага progress driver'а.
//
// CONTINUE означает "вызови ещё раз", FAILED и SHUTDOWN — терминальные.
type DriverState string

const (
	// DriverContinue — есть или может появиться работа.
	DriverContinue DriverState = "CONTINUE"

	// DriverFailed — зафиксирована ошибка bundle'а.
	DriverFailed DriverState = "FAILED"

	// DriverShutdown — pipeline достиг quiescence.
	DriverShutdown DriverState = "SHUTDOWN"
)

// IsTerminal возвращает true для FAILED и SHUTDOWN.
func (s DriverState) IsTerminal() bool {
	return s == DriverFailed || s == DriverShutdown
}

// WorkItemPhase — фаза обработки одного work item'а splittable стадии.
//
// Жизненный цикл:
//
//	SEED → PROCESSING → RESIDUAL → PROCESSING → ... → COMPLETE
//
// COMPLETE — терминальная фаза, состояние work item'а очищено.
type WorkItemPhase string

const (
	// PhaseSeed — первая доставка, элемент ещё не сохранён.
	PhaseSeed WorkItemPhase = "SEED"

	// PhaseProcessing — идёт вызов пользовательской функции.
	PhaseProcessing WorkItemPhase = "PROCESSING"

	// PhaseResidual — остаток сохранён, выставлен таймер.
	PhaseResidual WorkItemPhase = "RESIDUAL"

	// PhaseComplete — вся работа выполнена, состояние очищено.
	PhaseComplete WorkItemPhase = "COMPLETE"
)

// IsTerminal возвращает true, если фаза финальная.
func (p WorkItemPhase) IsTerminal() bool {
	return p == PhaseComplete
}

// CanTransition проверяет допустимость перехода между фазами.
func (p WorkItemPhase) CanTransition(next WorkItemPhase) bool {
	switch p {
	case PhaseSeed, PhaseResidual:
		return next == PhaseProcessing
	case PhaseProcessing:
		return next == PhaseResidual || next == PhaseComplete
	default:
		return false
	}
}
