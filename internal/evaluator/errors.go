package evaluator

import "errors"

// Ошибки evaluator'ов.
var (
	// ErrUnknownKind — нет evaluator'а для типа стадии.
	ErrUnknownKind = errors.New("no evaluator for stage kind")

	// ErrNotRoot — InitialInputs вызван для некорневой стадии.
	ErrNotRoot = errors.New("stage is not a root")

	// ErrNotKV — элемент стадии группировки не является KV.
	ErrNotKV = errors.New("element is not a KV")

	// ErrUnkeyedBundle — стадии нужен bundle с ключом.
	ErrUnkeyedBundle = errors.New("bundle has no key")

	// ErrNotWorkItem — элемент стадии process не является KeyedWorkItem.
	ErrNotWorkItem = errors.New("element is not a keyed work item")

	// ErrKeyMismatch — ключ элемента не совпадает с ключом bundle.
	ErrKeyMismatch = errors.New("element key does not match bundle key")
)

// UserCodeError — сбой пользовательской функции (включая панику).
type UserCodeError struct {
	Stage string // стадия, где выполнялась функция
	Err   error  // исходная ошибка
}

// Error реализует интерфейс error.
func (e *UserCodeError) Error() string {
	return "user code in stage " + e.Stage + ": " + e.Err.Error()
}

// Unwrap возвращает исходную ошибку.
func (e *UserCodeError) Unwrap() error {
	return e.Err
}

// IsUserCode проверяет, вызвана ли ошибка пользовательским кодом.
func IsUserCode(err error) bool {
	var uce *UserCodeError
	return errors.As(err, &uce)
}
