// Package repo содержит PostgreSQL реализацию state.Backend на pgx.
//
// Таблицы создаются EnsureSchema. Для подключения через state.Registry
// зарегистрируйте OpenStateRepo под именем state.BackendPostgres.
package repo
