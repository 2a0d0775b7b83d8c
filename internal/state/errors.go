package state

import "errors"

var (
	// ErrClosed — backend уже закрыт.
	ErrClosed = errors.New("state backend closed")

	// ErrUnknownBackend — backend с таким именем не зарегистрирован.
	ErrUnknownBackend = errors.New("unknown state backend")

	// ErrTxConflict — транзакция не прошла после всех повторов.
	ErrTxConflict = errors.New("state transaction conflict")

	// ErrCorruptState — сохранённое значение не удалось разобрать.
	ErrCorruptState = errors.New("corrupt state value")
)
