// Package state хранит per-key состояние и таймеры work item'ов.
//
// Backend — контракт хранилища: чтение ячеек, watermark hold,
// атомарный Commit мутации и выдача сработавших processing-time таймеров.
//
// Реализации:
//   - memory.go — in-process хранилище (по умолчанию, тесты)
//   - redis.go  — Redis, атомарность через WATCH + MULTI/EXEC
//
// PostgreSQL реализация живёт в пакете repo и регистрируется в Registry
// при сборке runner'а.
package state
