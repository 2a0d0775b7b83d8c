package runner

import "errors"

// Ошибки runner'а.
var (
	// ErrUnknownFunction — стадия ссылается на незарегистрированную функцию.
	ErrUnknownFunction = errors.New("unknown function")
)
