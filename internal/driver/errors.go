package driver

import "errors"

// Ошибки driver'а.
var (
	// ErrNotKV — на вход group_by_key пришёл элемент без ключа.
	ErrNotKV = errors.New("group_by_key input is not a KV")

	// ErrLateData — данные пришли в группировку после её сброса.
	ErrLateData = errors.New("data arrived after group was flushed")

	// ErrUnknownTimerTarget — таймер сработал для стадии, которая не process.
	ErrUnknownTimerTarget = errors.New("timer fired for unknown process stage")

	// ErrNoBackend — в pipeline есть стадии process, но нет хранилища таймеров.
	ErrNoBackend = errors.New("state backend is required for process stages")
)
