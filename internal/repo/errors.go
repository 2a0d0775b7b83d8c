package repo

import "errors"

// Ошибки репозиториев.
var (
	// ErrNoScope — StateRepo создан без идентификатора pipeline.
	ErrNoScope = errors.New("state repo requires a scope")

	// ErrClosed — репозиторий уже закрыт.
	ErrClosed = errors.New("state repo closed")
)
