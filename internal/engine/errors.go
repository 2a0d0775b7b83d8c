package engine

import "errors"

// Ошибки валидации PipelineSpec.
var (
	// ErrEmptyStages — pipeline не содержит стадий.
	ErrEmptyStages = errors.New("pipeline spec has no stages")

	// ErrEmptyStageID — стадия не имеет ID.
	ErrEmptyStageID = errors.New("stage has empty ID")

	// ErrDuplicateStageID — несколько стадий с одинаковым ID.
	ErrDuplicateStageID = errors.New("duplicate stage ID")

	// ErrUnknownStageKind — неизвестный тип стадии.
	ErrUnknownStageKind = errors.New("unknown stage kind")

	// ErrMissingInput — стадия читает несуществующую стадию.
	ErrMissingInput = errors.New("stage reads unknown stage")

	// ErrSelfInput — стадия читает саму себя.
	ErrSelfInput = errors.New("stage reads itself")

	// ErrCyclicDependency — обнаружен цикл между стадиями.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrRootWithInputs — корневая стадия объявила входы.
	ErrRootWithInputs = errors.New("root stage has inputs")

	// ErrNoInputs — некорневая стадия без входов.
	ErrNoInputs = errors.New("stage has no inputs")

	// ErrMissingFn — стадия требует функцию, но Fn не указана.
	ErrMissingFn = errors.New("stage has no fn")

	// ErrUnkeyedProcessInput — process стадия читает не keyed work items.
	ErrUnkeyedProcessInput = errors.New("process stage must read group_into_keyed_work_items")

	// ErrInvalidJSON — спецификацию не удалось разобрать.
	ErrInvalidJSON = errors.New("invalid pipeline spec JSON")
)

// Ошибки классификатора keyed коллекций.
var (
	// ErrNotFinalized — результат запрошен до завершения обхода.
	ErrNotFinalized = errors.New("keyed classifier: traversal not finished")

	// ErrAlreadyFinalized — классификатор использован повторно.
	ErrAlreadyFinalized = errors.New("keyed classifier: already finalized")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	StageID string // ID стадии, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.StageID != "" {
		return "stage " + e.StageID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(stageID, field, message string, err error) *ValidationError {
	return &ValidationError{
		StageID: stageID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// IsInvalidSpec возвращает true, если err — ошибка самой спецификации,
// а не окружения.
func IsInvalidSpec(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	return errors.Is(err, ErrEmptyStages) ||
		errors.Is(err, ErrCyclicDependency) ||
		errors.Is(err, ErrInvalidJSON)
}
